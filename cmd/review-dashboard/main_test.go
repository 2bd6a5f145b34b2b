package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeGROOVE-dev/review-dashboard/pkg/types"
)

func TestParsePRArg(t *testing.T) {
	tests := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{"42", 42, false},
		{"!42", 42, false},
		{"https://dev.azure.com/org/proj/_git/repo/pullrequest/7?_a=files", 7, false},
		{"0", 0, true},
		{"abc", 0, true},
		{"https://dev.azure.com/org/proj", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parsePRArg(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestReviewState(t *testing.T) {
	pr := &types.PullRequest{ID: 1, Reviewers: []types.Reviewer{{Identity: types.Identity{ID: "a"}}}}
	before := reviewState(pr)

	pr.Reviewers[0].Vote = types.VoteApproved
	assert.NotEqual(t, before, reviewState(pr), "a vote changes the state")

	voted := reviewState(pr)
	pr.Title = "renamed"
	assert.Equal(t, voted, reviewState(pr), "the title does not")

	pr.Draft = true
	assert.NotEqual(t, voted, reviewState(pr))
}

func TestRootCommand(t *testing.T) {
	root := newRootCmd()
	names := map[string]bool{}
	for _, c := range root.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"sort", "watch", "files", "check", "iterations", "whoami", "env"} {
		assert.True(t, names[want], "missing command %s", want)
	}
	assert.NotNil(t, root.PersistentFlags().Lookup("log-json"))
	assert.NotNil(t, root.PersistentFlags().ShorthandLookup("v"))
}

func TestEnvCommand(t *testing.T) {
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"env"})
	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "AZDO_PAT")
}

func TestFilesCommand_RejectsBadArgument(t *testing.T) {
	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"files", "not-a-pr"})
	require.Error(t, root.Execute())
}
