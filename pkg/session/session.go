// Package session builds the immutable session context every component receives:
// who the current user is and where the API lives.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/codeGROOVE-dev/review-dashboard/pkg/types"
)

// ErrNoPageModel is returned by a reader that could not recover any page state.
var ErrNoPageModel = errors.New("no page model available")

// PageModel is the best-effort state a reader recovered. Any field may be empty.
type PageModel struct {
	TokenExpiry time.Time
	User        types.Identity
	APIBase     string
	Theme       string
}

// PageModelReader recovers page state from one source. Implementations must tolerate
// missing or reshaped input and report ErrNoPageModel rather than panic.
type PageModelReader interface {
	Name() string
	Read(ctx context.Context) (PageModel, error)
}

// Context is the session context. It is a value: copies cannot affect each other.
type Context struct {
	TokenExpiry time.Time
	User        types.Identity
	APIBase     string
	Theme       string
}

// Build consults readers in order and fills each field from the first reader that provides it.
// Readers that fail are skipped. A context without a user or API base is an error.
func Build(ctx context.Context, readers ...PageModelReader) (Context, error) {
	var s Context
	for _, r := range readers {
		if s.complete() {
			break
		}
		m, err := r.Read(ctx)
		if err != nil {
			if errors.Is(err, ErrNoPageModel) {
				slog.Debug("Page model reader had nothing", "component", "session", "reader", r.Name())
			} else {
				slog.Warn("Page model reader failed", "component", "session", "reader", r.Name(), "error", err)
			}
			continue
		}
		s.merge(m)
	}

	if s.APIBase == "" {
		return Context{}, fmt.Errorf("unable to determine API base URL: %w", ErrNoPageModel)
	}
	if s.User.UniqueName == "" && s.User.ID == "" {
		return Context{}, fmt.Errorf("unable to determine current user: %w", ErrNoPageModel)
	}
	if !s.TokenExpiry.IsZero() && time.Until(s.TokenExpiry) < 10*time.Minute {
		slog.Warn("Access token expires soon", "component", "session", "expires", s.TokenExpiry)
	}
	return s, nil
}

func (s *Context) complete() bool {
	return s.APIBase != "" && s.User.UniqueName != "" && s.User.ID != "" && s.User.DisplayName != "" && s.Theme != ""
}

func (s *Context) merge(m PageModel) {
	if s.APIBase == "" {
		s.APIBase = strings.TrimRight(m.APIBase, "/")
	}
	if s.Theme == "" {
		s.Theme = m.Theme
	}
	if s.TokenExpiry.IsZero() {
		s.TokenExpiry = m.TokenExpiry
	}
	if s.User.ID == "" {
		s.User.ID = m.User.ID
	}
	if s.User.UniqueName == "" {
		s.User.UniqueName = m.User.UniqueName
	}
	if s.User.DisplayName == "" {
		s.User.DisplayName = m.User.DisplayName
	}
}

// Static is a reader returning fixed values, typically from configuration.
type Static PageModel

// Name implements PageModelReader.
func (Static) Name() string { return "static" }

// Read implements PageModelReader.
func (s Static) Read(context.Context) (PageModel, error) {
	m := PageModel(s)
	if m.APIBase == "" && m.User == (types.Identity{}) && m.Theme == "" {
		return PageModel{}, ErrNoPageModel
	}
	return m, nil
}
