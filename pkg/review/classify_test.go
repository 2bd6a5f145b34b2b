package review

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/codeGROOVE-dev/review-dashboard/pkg/types"
)

func TestClassify(t *testing.T) {
	alice := types.Identity{ID: "alice"}

	tests := []struct {
		name      string
		pr        types.PullRequest
		context   types.ListContext
		notable   bool
		want      types.Section
		wantAsked bool
	}{
		{
			name: "draft beats a negative vote",
			pr:   types.PullRequest{Draft: true, Reviewers: []types.Reviewer{reviewer("alice", -10)}},
			want: types.SectionDraft,
		},
		{
			name: "waiting on author",
			pr:   types.PullRequest{Reviewers: []types.Reviewer{reviewer("alice", -5)}},
			want: types.SectionWaitingOnAuthor,
		},
		{
			name: "rejected",
			pr:   types.PullRequest{Reviewers: []types.Reviewer{reviewer("alice", -10)}},
			want: types.SectionRejected,
		},
		{
			name:      "approved",
			pr:        types.PullRequest{Reviewers: []types.Reviewer{reviewer("alice", 10)}},
			want:      types.SectionApproved,
			wantAsked: true,
		},
		{
			name:      "approved with notable activity",
			pr:        types.PullRequest{Reviewers: []types.Reviewer{reviewer("alice", 5)}},
			notable:   true,
			want:      types.SectionApprovedNotable,
			wantAsked: true,
		},
		{
			name: "blocked by others beats last vote",
			pr:   types.PullRequest{Reviewers: []types.Reviewer{reviewer("alice", 0), reviewer("bob", -10)}},
			want: types.SectionBlockedByOthers,
		},
		{
			name: "blocking",
			pr:   types.PullRequest{Reviewers: []types.Reviewer{reviewer("alice", 0)}},
			want: types.SectionBlocking,
		},
		{
			name: "pending",
			pr:   types.PullRequest{Reviewers: []types.Reviewer{reviewer("alice", 0), reviewer("bob", 0)}},
			want: types.SectionPending,
		},
		{
			name:    "created by me",
			pr:      types.PullRequest{Reviewers: []types.Reviewer{reviewer("bob", -10)}},
			context: types.ContextCreatedByMe,
			want:    types.SectionCreatedByMeActive,
		},
		{
			name:    "created by me draft",
			pr:      types.PullRequest{Draft: true},
			context: types.ContextCreatedByMe,
			want:    types.SectionCreatedByMeDraft,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			asked := false
			ctx := tt.context
			if ctx == "" {
				ctx = types.ContextAssignedToMe
			}
			got := Classify(Input{
				PR:      &tt.pr,
				Me:      alice,
				Context: ctx,
				Notable: func() bool {
					asked = true
					return tt.notable
				},
			})
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantAsked, asked, "notability is only evaluated for approved pull requests")
		})
	}
}

func TestClassify_NilNotable(t *testing.T) {
	pr := types.PullRequest{Reviewers: []types.Reviewer{reviewer("alice", 10)}}
	got := Classify(Input{PR: &pr, Me: types.Identity{ID: "alice"}})
	assert.Equal(t, types.SectionApproved, got)
}

func TestNeedsSize(t *testing.T) {
	for _, s := range types.Sections {
		want := s != types.SectionApproved && s != types.SectionApprovedNotable &&
			s != types.SectionRejected && s != types.SectionWaitingOnAuthor
		assert.Equal(t, want, NeedsSize(s), "section %s", s)
	}
}

func TestFileCount(t *testing.T) {
	changes := []types.Change{
		{Item: types.ChangedItem{Path: "/src", IsFolder: true}},
		{Item: types.ChangedItem{Path: "/src/a.go"}},
		{Item: types.ChangedItem{Path: "/src/b.go"}},
	}

	n, ok := FileCount(&OwnersInfo{FileCount: 7}, changes, true)
	assert.True(t, ok)
	assert.Equal(t, 7, n)

	n, ok = FileCount(&OwnersInfo{}, changes, true)
	assert.True(t, ok)
	assert.Equal(t, 2, n)

	n, ok = FileCount(nil, changes, true)
	assert.True(t, ok)
	assert.Equal(t, 2, n)

	_, ok = FileCount(nil, nil, false)
	assert.False(t, ok)
}

func TestAggregateBuild(t *testing.T) {
	t0 := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	ci := types.StatusContext{Genre: "ci", Name: "build"}
	lint := types.StatusContext{Genre: "ci", Name: "lint"}
	status := func(ctx types.StatusContext, state types.StatusState, age time.Duration) types.CommitStatus {
		return types.CommitStatus{Context: ctx, State: state, CreatedAt: t0.Add(-age)}
	}

	tests := []struct {
		name     string
		statuses []types.CommitStatus
		want     BuildState
	}{
		{name: "none", want: BuildUnknown},
		{
			name:     "all succeeded",
			statuses: []types.CommitStatus{status(ci, types.StatusSucceeded, 0), status(lint, types.StatusPartiallySucceeded, 0)},
			want:     BuildSucceeded,
		},
		{
			name:     "pending",
			statuses: []types.CommitStatus{status(ci, types.StatusPending, 0), status(lint, types.StatusFailed, 0)},
			want:     BuildInProgress,
		},
		{
			name:     "failed",
			statuses: []types.CommitStatus{status(ci, types.StatusSucceeded, 0), status(lint, types.StatusError, 0)},
			want:     BuildFailed,
		},
		{
			name:     "latest entry per context wins",
			statuses: []types.CommitStatus{status(ci, types.StatusFailed, time.Hour), status(ci, types.StatusSucceeded, 0)},
			want:     BuildSucceeded,
		},
		{
			name:     "older success does not mask newer failure",
			statuses: []types.CommitStatus{status(ci, types.StatusFailed, 0), status(ci, types.StatusSucceeded, time.Hour)},
			want:     BuildFailed,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, AggregateBuild(tt.statuses))
		})
	}
}
