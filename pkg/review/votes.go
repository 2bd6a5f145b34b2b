// Package review holds the pure review-state logic: vote counting, notability,
// owners responsibility and row classification. Nothing here performs I/O.
package review

import (
	"github.com/codeGROOVE-dev/review-dashboard/pkg/types"
)

// VoteSummary aggregates the reviewer votes of a pull request.
type VoteSummary struct {
	CurrentUserVote types.Vote
	Missing         int
	Negative        int
}

// CountVotes summarizes reviewers from the point of view of me.
// The current user's own entry counts toward Missing or Negative like any other reviewer.
func CountVotes(reviewers []types.Reviewer, me types.Identity) VoteSummary {
	var s VoteSummary
	for i := range reviewers {
		r := &reviewers[i]
		if r.Matches(me) {
			s.CurrentUserVote = r.Vote
		}
		switch {
		case r.Vote == types.VoteNone:
			s.Missing++
		case r.Vote < 0:
			s.Negative++
		}
	}
	return s
}
