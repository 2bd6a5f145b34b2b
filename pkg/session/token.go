package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/codeGROOVE-dev/review-dashboard/pkg/types"
)

// TokenReader recovers the user from the claims of a bearer access token.
// The token is not verified: the server does that, this only reads who it was issued to.
type TokenReader struct {
	Token string
}

// Name implements PageModelReader.
func (TokenReader) Name() string { return "token-claims" }

// Read implements PageModelReader.
func (r TokenReader) Read(context.Context) (PageModel, error) {
	if r.Token == "" {
		return PageModel{}, ErrNoPageModel
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(r.Token, claims); err != nil {
		if errors.Is(err, jwt.ErrTokenMalformed) {
			// Opaque tokens (PATs pasted into the wrong setting) carry no claims.
			return PageModel{}, ErrNoPageModel
		}
		return PageModel{}, fmt.Errorf("parsing token claims: %w", err)
	}

	m := PageModel{
		User: types.Identity{
			ID:          stringClaim(claims, "oid"),
			DisplayName: stringClaim(claims, "name"),
			UniqueName:  firstNonEmpty(stringClaim(claims, "unique_name"), stringClaim(claims, "upn"), stringClaim(claims, "email")),
		},
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		m.TokenExpiry = exp.Time
	}

	if m.User == (types.Identity{}) {
		return PageModel{}, ErrNoPageModel
	}
	return m, nil
}

func stringClaim(claims jwt.MapClaims, name string) string {
	if v, ok := claims[name].(string); ok {
		return v
	}
	return ""
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
