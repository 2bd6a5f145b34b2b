package review

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/codeGROOVE-dev/review-dashboard/pkg/types"
)

func reviewer(id string, vote types.Vote) types.Reviewer {
	return types.Reviewer{Identity: types.Identity{ID: id}, Vote: vote}
}

func TestCountVotes(t *testing.T) {
	alice := types.Identity{ID: "alice"}

	tests := []struct {
		name      string
		reviewers []types.Reviewer
		want      VoteSummary
	}{
		{
			name: "no reviewers",
			want: VoteSummary{},
		},
		{
			name:      "blocked by another reviewer",
			reviewers: []types.Reviewer{reviewer("alice", 0), reviewer("bob", -10)},
			want:      VoteSummary{CurrentUserVote: 0, Missing: 1, Negative: 1},
		},
		{
			name:      "last outstanding vote",
			reviewers: []types.Reviewer{reviewer("alice", 0)},
			want:      VoteSummary{CurrentUserVote: 0, Missing: 1},
		},
		{
			name: "mixed",
			reviewers: []types.Reviewer{
				reviewer("alice", 5), reviewer("bob", 10), reviewer("carol", -5),
				reviewer("dave", 0), reviewer("erin", 0),
			},
			want: VoteSummary{CurrentUserVote: 5, Missing: 2, Negative: 1},
		},
		{
			name:      "not a reviewer",
			reviewers: []types.Reviewer{reviewer("bob", -10)},
			want:      VoteSummary{Negative: 1},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CountVotes(tt.reviewers, alice)
			assert.Equal(t, tt.want, got)

			positive := 0
			for _, r := range tt.reviewers {
				if r.Vote > 0 {
					positive++
				}
			}
			assert.Equal(t, len(tt.reviewers), got.Missing+got.Negative+positive)
		})
	}
}

func TestCountVotes_MatchesUniqueNameCaseInsensitively(t *testing.T) {
	me := types.Identity{ID: "other-id", UniqueName: "Jane@Example.com"}
	reviewers := []types.Reviewer{
		{Identity: types.Identity{ID: "jane-id", UniqueName: "jane@example.com"}, Vote: types.VoteRejected},
	}
	got := CountVotes(reviewers, me)
	assert.Equal(t, types.VoteRejected, got.CurrentUserVote)
}
