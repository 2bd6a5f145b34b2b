package review

import (
	"github.com/codeGROOVE-dev/review-dashboard/pkg/types"
)

// Input is everything the classifier needs about one row.
type Input struct {
	// Notable is consulted only for pull requests the current user approved.
	// A nil func means not notable.
	Notable func() bool
	PR      *types.PullRequest
	Me      types.Identity
	Context types.ListContext
}

// Classify assigns a pull request to exactly one section. The first matching rule wins.
func Classify(in Input) types.Section {
	if in.Context == types.ContextCreatedByMe {
		if in.PR.Draft {
			return types.SectionCreatedByMeDraft
		}
		return types.SectionCreatedByMeActive
	}

	if in.PR.Draft {
		return types.SectionDraft
	}

	votes := CountVotes(in.PR.Reviewers, in.Me)
	switch {
	case votes.CurrentUserVote == types.VoteWaitingOnAuthor:
		return types.SectionWaitingOnAuthor
	case votes.CurrentUserVote < 0:
		return types.SectionRejected
	case votes.CurrentUserVote > 0:
		if in.Notable != nil && in.Notable() {
			return types.SectionApprovedNotable
		}
		return types.SectionApproved
	case votes.Negative > 0:
		return types.SectionBlockedByOthers
	case votes.Missing == 1:
		return types.SectionBlocking
	default:
		return types.SectionPending
	}
}

// NeedsSize reports whether rows in section show a file count.
// Only pull requests still waiting on a review get one.
func NeedsSize(s types.Section) bool {
	switch s {
	case types.SectionBlocking, types.SectionPending, types.SectionBlockedByOthers,
		types.SectionDraft, types.SectionCreatedByMeActive, types.SectionCreatedByMeDraft:
		return true
	default:
		return false
	}
}

// FileCount picks the owners-derived count, falling back to the number of files
// changed by the merge commit. ok is false when neither source has an answer.
func FileCount(owners *OwnersInfo, changes []types.Change, haveChanges bool) (count int, ok bool) {
	if owners != nil && owners.FileCount > 0 {
		return owners.FileCount, true
	}
	if !haveChanges {
		return 0, false
	}
	for i := range changes {
		if !changes[i].Item.IsFolder {
			count++
		}
	}
	return count, true
}
