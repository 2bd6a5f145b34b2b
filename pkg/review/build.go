package review

import (
	"github.com/codeGROOVE-dev/review-dashboard/pkg/types"
)

// BuildState is the aggregate state of a commit's statuses.
type BuildState string

// BuildState values.
const (
	BuildUnknown    BuildState = "unknown"
	BuildSucceeded  BuildState = "succeeded"
	BuildInProgress BuildState = "in-progress"
	BuildFailed     BuildState = "failed"
)

// Icon returns a one-character marker for the state.
func (b BuildState) Icon() string {
	switch b {
	case BuildSucceeded:
		return "✓"
	case BuildInProgress:
		return "…"
	case BuildFailed:
		return "✗"
	default:
		return "?"
	}
}

// AggregateBuild reduces statuses to one state using the latest entry per status context.
func AggregateBuild(statuses []types.CommitStatus) BuildState {
	latest := make(map[types.StatusContext]types.CommitStatus, len(statuses))
	for _, s := range statuses {
		prev, ok := latest[s.Context]
		if !ok || s.CreatedAt.After(prev.CreatedAt) || (s.CreatedAt.Equal(prev.CreatedAt) && s.ID > prev.ID) {
			latest[s.Context] = s
		}
	}
	if len(latest) == 0 {
		return BuildUnknown
	}

	pending, failed := false, false
	for _, s := range latest {
		switch s.State {
		case types.StatusSucceeded, types.StatusPartiallySucceeded:
		case types.StatusPending:
			pending = true
		default:
			failed = true
		}
	}
	switch {
	case !pending && !failed:
		return BuildSucceeded
	case pending:
		return BuildInProgress
	default:
		return BuildFailed
	}
}
