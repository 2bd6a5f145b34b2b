package session

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/codeGROOVE-dev/review-dashboard/pkg/types"
)

// Data provider keys embedded in Azure DevOps pages.
const (
	providerPageData   = "ms.vss-web.page-data"
	providerHeaderData = "ms.vss-tfs-web.header-action-data"
	providerThemeData  = "ms.vss-web.theme-data"
)

// PageDataReader reads the JSON the host embeds in its dataProviders script element.
// Origin is the page origin (scheme and host); the API base is Origin plus the suite home URL.
type PageDataReader struct {
	Origin string
	JSON   []byte
}

// Name implements PageModelReader.
func (PageDataReader) Name() string { return "page-data" }

// Read implements PageModelReader.
func (r PageDataReader) Read(context.Context) (PageModel, error) {
	if len(r.JSON) == 0 {
		return PageModel{}, ErrNoPageModel
	}

	var doc struct {
		Data map[string]json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(r.JSON, &doc); err != nil {
		return PageModel{}, fmt.Errorf("decoding page data: %w", err)
	}

	var m PageModel

	var page struct {
		User *types.Identity `json:"user"`
	}
	if raw, ok := doc.Data[providerPageData]; ok && json.Unmarshal(raw, &page) == nil && page.User != nil {
		m.User = *page.User
	}

	var header struct {
		SuiteHomeURL string `json:"suiteHomeUrl"`
	}
	if raw, ok := doc.Data[providerHeaderData]; ok && json.Unmarshal(raw, &header) == nil && header.SuiteHomeURL != "" {
		// Because of CORS, requests must go to the origin the page was served from.
		if strings.HasPrefix(header.SuiteHomeURL, "http") {
			m.APIBase = header.SuiteHomeURL
		} else if r.Origin != "" {
			m.APIBase = strings.TrimRight(r.Origin, "/") + header.SuiteHomeURL
		}
	}

	var theme struct {
		RequestedThemeID string `json:"requestedThemeId"`
	}
	if raw, ok := doc.Data[providerThemeData]; ok && json.Unmarshal(raw, &theme) == nil {
		m.Theme = themeName(theme.RequestedThemeID)
	}

	if m.User == (types.Identity{}) && m.APIBase == "" && m.Theme == "" {
		return PageModel{}, ErrNoPageModel
	}
	return m, nil
}

// themeName maps "ms.vss-web.vsts-theme-dark" to "dark".
func themeName(id string) string {
	switch {
	case id == "":
		return ""
	case strings.HasSuffix(id, "-dark"):
		return "dark"
	default:
		return "light"
	}
}
