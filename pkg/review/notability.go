package review

import (
	"slices"
	"strings"

	"github.com/codeGROOVE-dev/review-dashboard/pkg/types"
)

// Thresholds controls when activity on an approved pull request is notable.
type Thresholds struct {
	NonApprovingVotes int `yaml:"non_approving_votes" env:"NOTABLE_NON_APPROVING_VOTES" env-default:"2"`
	Comments          int `yaml:"comments" env:"NOTABLE_COMMENTS" env-default:"4"`
	Words             int `yaml:"words" env:"NOTABLE_WORDS" env-default:"300"`
}

// DefaultThresholds returns the thresholds used when none are configured.
func DefaultThresholds() Thresholds {
	return Thresholds{NonApprovingVotes: 2, Comments: 4, Words: 300}
}

// NewestFirst drops deleted threads and returns the rest newest first.
// The API returns threads oldest first.
func NewestFirst(threads []types.Thread) []types.Thread {
	out := make([]types.Thread, 0, len(threads))
	for i := range threads {
		if !threads[i].Deleted {
			out = append(out, threads[i])
		}
	}
	slices.Reverse(out)
	return out
}

// IsNotable reports whether threads (newest first) show activity worth another look
// since me last voted. Threads older than my own most recent vote are ignored.
func IsNotable(threads []types.Thread, me types.Identity, th Thresholds) bool {
	nonApproving := 0
	for i := range threads {
		t := &threads[i]

		if t.Kind() == types.ThreadKindVoteUpdate {
			if voter, ok := t.Voter(); ok && voter.Matches(me) {
				return false
			}
			if vote, ok := t.VoteResult(); ok && vote < 0 {
				nonApproving++
				if nonApproving >= th.NonApprovingVotes {
					return true
				}
			}
		}

		comments, words := countDiscussion(t.Comments)
		if comments >= th.Comments || words >= th.Words {
			return true
		}
	}
	return false
}

// countDiscussion counts human comments and their words.
func countDiscussion(comments []types.Comment) (count, words int) {
	for i := range comments {
		c := &comments[i]
		if c.Deleted || c.Type == types.CommentTypeSystem || c.Content == "" {
			continue
		}
		count++
		words += len(strings.Fields(c.Content))
	}
	return count, words
}
