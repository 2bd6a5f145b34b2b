package azdo

import (
	"context"
	"net/http"

	"github.com/codeGROOVE-dev/review-dashboard/pkg/types"
)

// HTTPDoer provides an interface for making HTTP requests.
// This allows us to mock HTTP calls in tests.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// API defines the Azure DevOps operations the dashboard consumes.
//
//nolint:interfacebloat // the dashboard legitimately consumes this many endpoints
type API interface {
	// Pull requests
	PullRequest(ctx context.Context, id int) (*types.PullRequest, error)
	ListPullRequests(ctx context.Context, criteria SearchCriteria) ([]*types.PullRequest, error)
	Threads(ctx context.Context, pr *types.PullRequest) ([]types.Thread, error)
	Iterations(ctx context.Context, pr *types.PullRequest) ([]types.Iteration, error)

	// Properties
	Properties(ctx context.Context, pr *types.PullRequest) (map[string]types.PropertyValue, error)
	Property(ctx context.Context, pr *types.PullRequest, name string) (string, bool, error)
	SetProperty(ctx context.Context, pr *types.PullRequest, name, value string) error
	RemoveProperty(ctx context.Context, pr *types.PullRequest, name string) error

	// Commits
	MergeCommitChanges(ctx context.Context, commit *types.CommitRef) ([]types.Change, error)
	CommitStatuses(ctx context.Context, commit *types.CommitRef) ([]types.CommitStatus, error)

	// Work items
	PullRequestWorkItems(ctx context.Context, pr *types.PullRequest) ([]int, error)
	WorkItems(ctx context.Context, ids []int) ([]types.WorkItem, error)
	WorkItem(ctx context.Context, id int) (*types.WorkItem, error)

	// Identity
	ConnectionData(ctx context.Context) (*ConnectionData, error)
}

var _ API = (*Client)(nil)
