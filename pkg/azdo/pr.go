package azdo

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/codeGROOVE-dev/review-dashboard/pkg/types"
)

// SearchCriteria filters pull request listings.
type SearchCriteria struct {
	ReviewerID string
	CreatorID  string
	Status     string // "active" when empty
	Top        int
}

// sameOrigin rewrites an absolute API URL returned by the server onto the configured
// base URL's scheme and host. Organizations reachable through both dev.azure.com and
// *.visualstudio.com hand out URLs for either host.
func (c *Client) sameOrigin(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}
	base, err := url.Parse(c.baseURL)
	if err != nil {
		return raw
	}
	u.Scheme = base.Scheme
	u.Host = base.Host
	return u.String()
}

// PullRequest fetches a single pull request by id.
func (c *Client) PullRequest(ctx context.Context, id int) (*types.PullRequest, error) {
	apiURL := withVersion(fmt.Sprintf("%s/_apis/git/pullrequests/%d", c.baseURL, id), apiVersion)

	var pr types.PullRequest
	if err := c.getJSON(ctx, apiURL, &pr); err != nil {
		return nil, fmt.Errorf("fetching pull request %d: %w", id, err)
	}
	return &pr, nil
}

// ListPullRequests lists pull requests across the collection matching criteria.
func (c *Client) ListPullRequests(ctx context.Context, criteria SearchCriteria) ([]*types.PullRequest, error) {
	q := url.Values{}
	status := criteria.Status
	if status == "" {
		status = "active"
	}
	q.Set("searchCriteria.status", status)
	if criteria.ReviewerID != "" {
		q.Set("searchCriteria.reviewerId", criteria.ReviewerID)
	}
	if criteria.CreatorID != "" {
		q.Set("searchCriteria.creatorId", criteria.CreatorID)
	}
	if criteria.Top > 0 {
		q.Set("$top", strconv.Itoa(criteria.Top))
	}
	apiURL := withVersion(c.baseURL+"/_apis/git/pullrequests?"+q.Encode(), apiVersion)

	var resp struct {
		Value []*types.PullRequest `json:"value"`
		Count int                  `json:"count"`
	}
	if err := c.getJSON(ctx, apiURL, &resp); err != nil {
		return nil, fmt.Errorf("listing pull requests: %w", err)
	}
	slog.Debug("Listed pull requests", "component", "api", "count", len(resp.Value), "reviewer", criteria.ReviewerID, "creator", criteria.CreatorID)
	return resp.Value, nil
}

// Threads fetches the discussion threads of a pull request, oldest first.
func (c *Client) Threads(ctx context.Context, pr *types.PullRequest) ([]types.Thread, error) {
	apiURL := withVersion(c.sameOrigin(pr.URL)+"/threads", apiVersion)

	var resp struct {
		Value []types.Thread `json:"value"`
	}
	if err := c.getJSON(ctx, apiURL, &resp); err != nil {
		return nil, fmt.Errorf("fetching threads of pull request %d: %w", pr.ID, err)
	}
	return resp.Value, nil
}

// Iterations fetches the updates pushed to a pull request, oldest first.
func (c *Client) Iterations(ctx context.Context, pr *types.PullRequest) ([]types.Iteration, error) {
	apiURL := withVersion(c.sameOrigin(pr.URL)+"/iterations", apiVersion)

	var resp struct {
		Value []types.Iteration `json:"value"`
	}
	if err := c.getJSON(ctx, apiURL, &resp); err != nil {
		return nil, fmt.Errorf("fetching iterations of pull request %d: %w", pr.ID, err)
	}
	return resp.Value, nil
}

// Properties fetches the property bag of a pull request.
func (c *Client) Properties(ctx context.Context, pr *types.PullRequest) (map[string]types.PropertyValue, error) {
	apiURL := withVersion(c.sameOrigin(pr.URL)+"/properties", propertiesAPIVersion)

	var resp struct {
		Value map[string]types.PropertyValue `json:"value"`
	}
	if err := c.getJSON(ctx, apiURL, &resp); err != nil {
		return nil, fmt.Errorf("fetching properties of pull request %d: %w", pr.ID, err)
	}
	return resp.Value, nil
}

// Property returns a single property's raw string value.
func (c *Client) Property(ctx context.Context, pr *types.PullRequest, name string) (string, bool, error) {
	props, err := c.Properties(ctx, pr)
	if err != nil {
		return "", false, err
	}
	p, ok := props[name]
	if !ok {
		return "", false, nil
	}
	return p.String(), true, nil
}

// patchOp is a JSON patch operation.
type patchOp struct {
	Value any    `json:"value,omitempty"`
	Op    string `json:"op"`
	Path  string `json:"path"`
}

// SetProperty adds or replaces a pull request property.
func (c *Client) SetProperty(ctx context.Context, pr *types.PullRequest, name, value string) error {
	return c.patchProperties(ctx, pr, patchOp{Op: "add", Path: "/" + name, Value: value})
}

// RemoveProperty deletes a pull request property.
func (c *Client) RemoveProperty(ctx context.Context, pr *types.PullRequest, name string) error {
	return c.patchProperties(ctx, pr, patchOp{Op: "remove", Path: "/" + name})
}

func (c *Client) patchProperties(ctx context.Context, pr *types.PullRequest, op patchOp) error {
	r := request{
		method:      http.MethodPatch,
		url:         withVersion(c.sameOrigin(pr.URL)+"/properties", propertiesAPIVersion),
		body:        []patchOp{op},
		contentType: "application/json-patch+json",
	}
	if err := c.sendJSON(ctx, r, nil); err != nil {
		return fmt.Errorf("updating property %s of pull request %d: %w", op.Path, pr.ID, err)
	}
	slog.Info("Updated pull request property", "component", "api", "pr", pr.ID, "op", op.Op, "path", op.Path)
	return nil
}

// MergeCommitChanges lists the changes of a commit (typically the PR merge commit).
func (c *Client) MergeCommitChanges(ctx context.Context, commit *types.CommitRef) ([]types.Change, error) {
	apiURL := withVersion(c.sameOrigin(commit.URL)+"/changes", apiVersion)

	var resp struct {
		Changes []types.Change `json:"changes"`
	}
	if err := c.getJSON(ctx, apiURL, &resp); err != nil {
		return nil, fmt.Errorf("fetching changes of commit %s: %w", commit.CommitID, err)
	}
	return resp.Changes, nil
}

// CommitStatuses lists the statuses posted against a commit, newest first.
func (c *Client) CommitStatuses(ctx context.Context, commit *types.CommitRef) ([]types.CommitStatus, error) {
	apiURL := withVersion(c.sameOrigin(commit.URL)+"/statuses", apiVersion)

	var resp struct {
		Value []types.CommitStatus `json:"value"`
	}
	if err := c.getJSON(ctx, apiURL, &resp); err != nil {
		return nil, fmt.Errorf("fetching statuses of commit %s: %w", commit.CommitID, err)
	}
	return resp.Value, nil
}
