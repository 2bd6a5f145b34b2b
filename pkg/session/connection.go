package session

import (
	"context"

	"github.com/codeGROOVE-dev/review-dashboard/pkg/azdo"
)

// ConnectionReader asks the server who the authenticated user is.
type ConnectionReader struct {
	Client *azdo.Client
}

// Name implements PageModelReader.
func (ConnectionReader) Name() string { return "connection-data" }

// Read implements PageModelReader.
func (r ConnectionReader) Read(ctx context.Context) (PageModel, error) {
	if r.Client == nil {
		return PageModel{}, ErrNoPageModel
	}
	d, err := r.Client.ConnectionData(ctx)
	if err != nil {
		return PageModel{}, err
	}
	return PageModel{User: d.Identity(), APIBase: r.Client.BaseURL()}, nil
}
