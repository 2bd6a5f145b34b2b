package azdo

import (
	"context"
	"fmt"

	"github.com/codeGROOVE-dev/review-dashboard/pkg/types"
)

// ConnectionData describes the authenticated user as seen by the server.
type ConnectionData struct {
	AuthenticatedUser struct {
		Properties          map[string]types.PropertyValue `json:"properties"`
		ID                  string                         `json:"id"`
		ProviderDisplayName string                         `json:"providerDisplayName"`
	} `json:"authenticatedUser"`
}

// Identity converts the authenticated user into an identity. The account property holds the email.
func (d *ConnectionData) Identity() types.Identity {
	u := d.AuthenticatedUser
	return types.Identity{
		ID:          u.ID,
		DisplayName: u.ProviderDisplayName,
		UniqueName:  u.Properties["Account"].String(),
	}
}

// ConnectionData fetches information about the authenticated user.
func (c *Client) ConnectionData(ctx context.Context) (*ConnectionData, error) {
	var d ConnectionData
	if err := c.getJSON(ctx, c.baseURL+"/_apis/connectionData", &d); err != nil {
		return nil, fmt.Errorf("fetching connection data: %w", err)
	}
	return &d, nil
}
