package filetree

import (
	"context"
	"strconv"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/codeGROOVE-dev/review-dashboard/pkg/azdo"
	"github.com/codeGROOVE-dev/review-dashboard/pkg/types"
)

// Memo holds the pull request currently being viewed. Concurrent requests for the
// same pull request share one fetch.
type Memo struct {
	api     azdo.API
	current *types.PullRequest
	group   singleflight.Group
	mu      sync.Mutex
}

// NewMemo creates an empty memo.
func NewMemo(api azdo.API) *Memo {
	return &Memo{api: api}
}

// Get returns the pull request, fetching it unless it is the one already held.
func (m *Memo) Get(ctx context.Context, id int) (*types.PullRequest, error) {
	m.mu.Lock()
	cur := m.current
	m.mu.Unlock()
	if cur != nil && cur.ID == id {
		return cur, nil
	}

	v, err, _ := m.group.Do(strconv.Itoa(id), func() (any, error) {
		pr, err := m.api.PullRequest(ctx, id)
		if err != nil {
			return nil, err
		}
		m.mu.Lock()
		m.current = pr
		m.mu.Unlock()
		return pr, nil
	})
	if err != nil {
		return nil, err
	}
	pr, _ := v.(*types.PullRequest)
	return pr, nil
}

// Refresh drops the held pull request and fetches id again.
func (m *Memo) Refresh(ctx context.Context, id int) (*types.PullRequest, error) {
	m.mu.Lock()
	m.current = nil
	m.mu.Unlock()
	return m.Get(ctx, id)
}
