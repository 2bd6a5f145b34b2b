package review

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/codeGROOVE-dev/review-dashboard/pkg/types"
)

var me = types.Identity{ID: "me-id", UniqueName: "me@example.com"}

func prop(v string) types.PropertyValue {
	return types.PropertyValue{Type: "System.String", Value: []byte(`"` + v + `"`)}
}

func voteThread(voter types.Identity, vote types.Vote) types.Thread {
	return types.Thread{
		Properties: map[string]types.PropertyValue{
			types.PropThreadType: prop("VoteUpdate"),
			types.PropVotedBy:    prop("1"),
			types.PropVoteResult: {Type: "System.Int32", Value: []byte(voteJSON(vote))},
		},
		Identities: map[string]types.Identity{"1": voter},
		Comments: []types.Comment{
			{Author: voter, Content: voter.DisplayName + " voted", Type: types.CommentTypeSystem},
		},
	}
}

func voteJSON(v types.Vote) string {
	switch v {
	case types.VoteRejected:
		return "-10"
	case types.VoteWaitingOnAuthor:
		return "-5"
	case types.VoteApproved:
		return "10"
	case types.VoteApprovedWithSuggestions:
		return "5"
	default:
		return "0"
	}
}

func systemThread(kind, text string) types.Thread {
	return types.Thread{
		Properties: map[string]types.PropertyValue{types.PropThreadType: prop(kind)},
		Comments:   []types.Comment{{Content: text, Type: types.CommentTypeSystem}},
	}
}

func commentThread(contents ...string) types.Thread {
	var t types.Thread
	for _, c := range contents {
		t.Comments = append(t.Comments, types.Comment{Content: c, Type: types.CommentTypeText})
	}
	return t
}

func TestIsNotable(t *testing.T) {
	bob := types.Identity{ID: "bob", UniqueName: "bob@example.com", DisplayName: "Bob"}
	carol := types.Identity{ID: "carol", UniqueName: "carol@example.com", DisplayName: "Carol"}
	th := DefaultThresholds()

	tests := []struct {
		name    string
		threads []types.Thread
		want    bool
	}{
		{name: "no threads", want: false},
		{
			name:    "quiet discussion",
			threads: []types.Thread{commentThread("looks good"), commentThread("nit", "fixed")},
			want:    false,
		},
		{
			name:    "comment threshold in one thread",
			threads: []types.Thread{commentThread("a", "b", "c", "d")},
			want:    true,
		},
		{
			name:    "comments are not summed across threads",
			threads: []types.Thread{commentThread("a", "b"), commentThread("c", "d")},
			want:    false,
		},
		{
			name:    "word threshold",
			threads: []types.Thread{commentThread(strings.Repeat("word ", 300))},
			want:    true,
		},
		{
			name:    "two negative votes by others",
			threads: []types.Thread{voteThread(bob, types.VoteRejected), voteThread(carol, types.VoteWaitingOnAuthor)},
			want:    true,
		},
		{
			name:    "one negative vote",
			threads: []types.Thread{voteThread(bob, types.VoteRejected), voteThread(carol, types.VoteApproved)},
			want:    false,
		},
		{
			name: "activity older than my vote is ignored",
			threads: []types.Thread{
				commentThread("thanks"),
				voteThread(me, types.VoteApproved),
				commentThread("a", "b", "c", "d", "e"),
				voteThread(bob, types.VoteRejected),
				voteThread(carol, types.VoteRejected),
			},
			want: false,
		},
		{
			name: "activity newer than my vote counts",
			threads: []types.Thread{
				commentThread("a", "b", "c", "d"),
				voteThread(me, types.VoteApproved),
			},
			want: true,
		},
		{
			name: "vote reset does not end the walk",
			threads: []types.Thread{
				systemThread("ResetAllVotes", "Votes reset"),
				voteThread(bob, types.VoteRejected),
				voteThread(carol, types.VoteWaitingOnAuthor),
				voteThread(me, types.VoteApproved),
			},
			want: true,
		},
		{
			name: "reviewer update does not end the walk",
			threads: []types.Thread{
				systemThread("ReviewersUpdate", "Bob was added"),
				commentThread("a", "b", "c", "d"),
			},
			want: true,
		},
		{
			name: "reset thread comments count like any other",
			threads: []types.Thread{{
				Properties: map[string]types.PropertyValue{types.PropThreadType: prop("ResetMultipleVotes")},
				Comments:   []types.Comment{{Content: "a"}, {Content: "b"}, {Content: "c"}, {Content: "d"}},
			}},
			want: true,
		},
		{
			name: "system and empty comments do not count",
			threads: []types.Thread{{Comments: []types.Comment{
				{Content: "x", Type: types.CommentTypeSystem},
				{Content: "", Type: types.CommentTypeText},
				{Content: "y", Type: types.CommentTypeText, Deleted: true},
				{Content: "z", Type: types.CommentTypeText},
			}}},
			want: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsNotable(tt.threads, me, th))
		})
	}
}

func TestIsNotable_CustomThresholds(t *testing.T) {
	threads := []types.Thread{commentThread("one", "two")}
	assert.False(t, IsNotable(threads, me, DefaultThresholds()))
	assert.True(t, IsNotable(threads, me, Thresholds{NonApprovingVotes: 2, Comments: 2, Words: 300}))
}

func TestNewestFirst(t *testing.T) {
	threads := []types.Thread{{ID: 1}, {ID: 2, Deleted: true}, {ID: 3}}
	got := NewestFirst(threads)
	if assert.Len(t, got, 2) {
		assert.Equal(t, 3, got[0].ID)
		assert.Equal(t, 1, got[1].ID)
	}
	assert.Equal(t, 1, threads[0].ID, "input must not be reordered")
}
