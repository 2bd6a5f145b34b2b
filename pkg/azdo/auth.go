package azdo

import (
	"errors"
	"net/http"
	"strings"
)

// Credentials authenticate API requests. A personal access token takes precedence over a bearer token.
type Credentials struct {
	PAT         string // personal access token, sent as basic auth
	BearerToken string // OAuth / Entra ID access token
}

// Validate reports obviously unusable credentials.
func (c Credentials) Validate() error {
	if c.PAT == "" && c.BearerToken == "" {
		return errors.New("no Azure DevOps credentials: set AZDO_PAT or AZDO_TOKEN")
	}
	if strings.ContainsAny(c.PAT, " \t\r\n") || strings.ContainsAny(c.BearerToken, " \t\r\n") {
		return errors.New("credentials contain whitespace")
	}
	return nil
}

func (c Credentials) apply(req *http.Request) {
	switch {
	case c.PAT != "":
		req.SetBasicAuth("", c.PAT)
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	}
}
