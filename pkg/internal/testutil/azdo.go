// Package testutil provides mock implementations and testing utilities for the dashboard packages.
package testutil

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/codeGROOVE-dev/review-dashboard/pkg/azdo"
	"github.com/codeGROOVE-dev/review-dashboard/pkg/types"
)

// MockAzDOClient implements azdo.API for testing.
// It's programmable - configure pull requests and related data, errors per call, and a hook
// that runs before every call.
type MockAzDOClient struct {
	pullRequests map[int]*types.PullRequest
	threads      map[int][]types.Thread
	iterations   map[int][]types.Iteration
	properties   map[int]map[string]string
	workItemIDs  map[int][]int
	workItems    map[int]types.WorkItem
	changes      map[string][]types.Change
	statuses     map[string][]types.CommitStatus
	errors       map[string]error
	calls        map[string]int
	beforeCall   func(method string, id int)
	user         types.Identity
	mu           sync.RWMutex
}

var _ azdo.API = (*MockAzDOClient)(nil)

// NewMockAzDOClient creates a new MockAzDOClient.
func NewMockAzDOClient() *MockAzDOClient {
	return &MockAzDOClient{
		pullRequests: make(map[int]*types.PullRequest),
		threads:      make(map[int][]types.Thread),
		iterations:   make(map[int][]types.Iteration),
		properties:   make(map[int]map[string]string),
		workItemIDs:  make(map[int][]int),
		workItems:    make(map[int]types.WorkItem),
		changes:      make(map[string][]types.Change),
		statuses:     make(map[string][]types.CommitStatus),
		errors:       make(map[string]error),
		calls:        make(map[string]int),
	}
}

// SetPullRequest configures a pull request.
func (m *MockAzDOClient) SetPullRequest(pr *types.PullRequest) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pullRequests[pr.ID] = pr
}

// SetThreads configures the threads of a pull request.
func (m *MockAzDOClient) SetThreads(prID int, threads []types.Thread) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.threads[prID] = threads
}

// SetIterations configures the iterations of a pull request.
func (m *MockAzDOClient) SetIterations(prID int, iterations []types.Iteration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.iterations[prID] = iterations
}

// SetPropertyValue configures a string property of a pull request.
func (m *MockAzDOClient) SetPropertyValue(prID int, name, value string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.properties[prID] == nil {
		m.properties[prID] = make(map[string]string)
	}
	m.properties[prID][name] = value
}

// PropertyValue returns a configured or written property.
func (m *MockAzDOClient) PropertyValue(prID int, name string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.properties[prID][name]
	return v, ok
}

// SetChanges configures the changes of a commit.
func (m *MockAzDOClient) SetChanges(commitID string, changes []types.Change) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.changes[commitID] = changes
}

// SetStatuses configures the statuses of a commit.
func (m *MockAzDOClient) SetStatuses(commitID string, statuses []types.CommitStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statuses[commitID] = statuses
}

// SetWorkItems links work items to a pull request.
func (m *MockAzDOClient) SetWorkItems(prID int, items ...types.WorkItem) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, wi := range items {
		m.workItems[wi.ID] = wi
		m.workItemIDs[prID] = append(m.workItemIDs[prID], wi.ID)
	}
}

// SetUser configures the authenticated user.
func (m *MockAzDOClient) SetUser(user types.Identity) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.user = user
}

// SetError makes method fail for id. Use id 0 for calls not scoped to a pull request.
func (m *MockAzDOClient) SetError(method string, id int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors[callKey(method, id)] = err
}

// OnCall registers a hook run before every call, outside the mock's lock.
func (m *MockAzDOClient) OnCall(fn func(method string, id int)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.beforeCall = fn
}

// CallCount returns how many times method was called for id.
func (m *MockAzDOClient) CallCount(method string, id int) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.calls[callKey(method, id)]
}

func callKey(method string, id int) string {
	return fmt.Sprintf("%s:%d", method, id)
}

// record counts the call, runs the hook and returns the configured error.
func (m *MockAzDOClient) record(method string, id int) error {
	m.mu.Lock()
	key := callKey(method, id)
	m.calls[key]++
	hook := m.beforeCall
	err := m.errors[key]
	m.mu.Unlock()

	if hook != nil {
		hook(method, id)
	}
	return err
}

func prID(pr *types.PullRequest) int {
	if pr == nil {
		return 0
	}
	return pr.ID
}

// PullRequest returns a configured pull request.
func (m *MockAzDOClient) PullRequest(_ context.Context, id int) (*types.PullRequest, error) {
	if err := m.record("PullRequest", id); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	pr, ok := m.pullRequests[id]
	if !ok {
		return nil, fmt.Errorf("pull request %d: %w", id, azdo.ErrNotFound)
	}
	return pr, nil
}

// ListPullRequests returns configured pull requests matching the reviewer or creator, ordered by id.
func (m *MockAzDOClient) ListPullRequests(_ context.Context, criteria azdo.SearchCriteria) ([]*types.PullRequest, error) {
	if err := m.record("ListPullRequests", 0); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var prs []*types.PullRequest
	for _, id := range slices.Sorted(maps.Keys(m.pullRequests)) {
		pr := m.pullRequests[id]
		switch {
		case criteria.CreatorID != "":
			if pr.Author.ID != criteria.CreatorID {
				continue
			}
		case criteria.ReviewerID != "":
			if !slices.ContainsFunc(pr.Reviewers, func(r types.Reviewer) bool { return r.ID == criteria.ReviewerID }) {
				continue
			}
		}
		prs = append(prs, pr)
	}
	return prs, nil
}

// Threads returns configured threads.
func (m *MockAzDOClient) Threads(_ context.Context, pr *types.PullRequest) ([]types.Thread, error) {
	if err := m.record("Threads", prID(pr)); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.threads[prID(pr)], nil
}

// Iterations returns configured iterations.
func (m *MockAzDOClient) Iterations(_ context.Context, pr *types.PullRequest) ([]types.Iteration, error) {
	if err := m.record("Iterations", prID(pr)); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.iterations[prID(pr)], nil
}

// Properties returns configured properties as string values.
func (m *MockAzDOClient) Properties(_ context.Context, pr *types.PullRequest) (map[string]types.PropertyValue, error) {
	if err := m.record("Properties", prID(pr)); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]types.PropertyValue, len(m.properties[prID(pr)]))
	for k, v := range m.properties[prID(pr)] {
		out[k] = stringProperty(v)
	}
	return out, nil
}

// Property returns a configured property.
func (m *MockAzDOClient) Property(_ context.Context, pr *types.PullRequest, name string) (string, bool, error) {
	if err := m.record("Property", prID(pr)); err != nil {
		return "", false, err
	}
	v, ok := m.PropertyValue(prID(pr), name)
	return v, ok, nil
}

// SetProperty stores a property.
func (m *MockAzDOClient) SetProperty(_ context.Context, pr *types.PullRequest, name, value string) error {
	if err := m.record("SetProperty", prID(pr)); err != nil {
		return err
	}
	m.SetPropertyValue(prID(pr), name, value)
	return nil
}

// RemoveProperty deletes a property.
func (m *MockAzDOClient) RemoveProperty(_ context.Context, pr *types.PullRequest, name string) error {
	if err := m.record("RemoveProperty", prID(pr)); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.properties[prID(pr)], name)
	return nil
}

// MergeCommitChanges returns configured changes keyed by commit id.
func (m *MockAzDOClient) MergeCommitChanges(_ context.Context, commit *types.CommitRef) ([]types.Change, error) {
	if err := m.record("MergeCommitChanges", 0); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.changes[commit.CommitID], nil
}

// CommitStatuses returns configured statuses keyed by commit id.
func (m *MockAzDOClient) CommitStatuses(_ context.Context, commit *types.CommitRef) ([]types.CommitStatus, error) {
	if err := m.record("CommitStatuses", 0); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.statuses[commit.CommitID], nil
}

// PullRequestWorkItems returns linked work item ids.
func (m *MockAzDOClient) PullRequestWorkItems(_ context.Context, pr *types.PullRequest) ([]int, error) {
	if err := m.record("PullRequestWorkItems", prID(pr)); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.workItemIDs[prID(pr)]), nil
}

// WorkItems returns the configured work items among ids.
func (m *MockAzDOClient) WorkItems(_ context.Context, ids []int) ([]types.WorkItem, error) {
	if err := m.record("WorkItems", 0); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []types.WorkItem
	for _, id := range ids {
		if wi, ok := m.workItems[id]; ok {
			out = append(out, wi)
		}
	}
	return out, nil
}

// WorkItem returns a configured work item.
func (m *MockAzDOClient) WorkItem(_ context.Context, id int) (*types.WorkItem, error) {
	if err := m.record("WorkItem", id); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	wi, ok := m.workItems[id]
	if !ok {
		return nil, fmt.Errorf("work item %d: %w", id, azdo.ErrNotFound)
	}
	return &wi, nil
}

// ConnectionData returns the configured user.
func (m *MockAzDOClient) ConnectionData(_ context.Context) (*azdo.ConnectionData, error) {
	if err := m.record("ConnectionData", 0); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	d := &azdo.ConnectionData{}
	d.AuthenticatedUser.ID = m.user.ID
	d.AuthenticatedUser.ProviderDisplayName = m.user.DisplayName
	d.AuthenticatedUser.Properties = map[string]types.PropertyValue{"Account": stringProperty(m.user.UniqueName)}
	return d, nil
}

func stringProperty(v string) types.PropertyValue {
	raw, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("failed to marshal property value: %v", err))
	}
	return types.PropertyValue{Type: "System.String", Value: raw}
}
