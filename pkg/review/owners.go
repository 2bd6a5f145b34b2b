package review

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/codeGROOVE-dev/review-dashboard/pkg/types"
)

// OwnersProperty is the pull request property holding the owners review data.
const OwnersProperty = "NI.ReviewProperties"

// minOwnersVersion is the oldest schema with a separate identity table.
const minOwnersVersion = 4

// Role is the current user's responsibility for a file.
type Role string

// Role values, highest priority first. Reviewer and Expert rank equally.
const (
	RoleOwner     Role = "Owner"
	RoleAlternate Role = "Alternate"
	RoleReviewer  Role = "Reviewer"
	RoleExpert    Role = "Expert"
)

// Taxonomy maps roles to display labels.
type Taxonomy struct {
	Labels map[Role]string
	Short  map[Role]string
}

// DefaultTaxonomy labels roles by name, with single letter short forms.
func DefaultTaxonomy() Taxonomy {
	return Taxonomy{
		Labels: map[Role]string{
			RoleOwner:     "Owner",
			RoleAlternate: "Alternate",
			RoleReviewer:  "Reviewer",
			RoleExpert:    "Expert",
		},
		Short: map[Role]string{
			RoleOwner:     "O",
			RoleAlternate: "A",
			RoleReviewer:  "R",
			RoleExpert:    "E",
		},
	}
}

// Label returns the display label for r, falling back to the role name.
func (t Taxonomy) Label(r Role) string {
	if l, ok := t.Labels[r]; ok && l != "" {
		return l
	}
	return string(r)
}

// ShortLabel returns the compact label for r, falling back to its first letter.
func (t Taxonomy) ShortLabel(r Role) string {
	if l, ok := t.Short[r]; ok && l != "" {
		return l
	}
	return Initial(string(r))
}

// Initial returns the upper-cased first letter of s, or "" for an empty or invalid string.
func Initial(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if size == 0 || r == utf8.RuneError {
		return ""
	}
	return string(unicode.ToUpper(r))
}

// OwnersInfo is the current user's responsibility on one pull request.
type OwnersInfo struct {
	FilesToRole map[string]Role
	FileCount   int
}

// Responsible reports whether the current user has any role on path.
func (o *OwnersInfo) Responsible(path string) bool {
	if o == nil {
		return false
	}
	_, ok := o.FilesToRole[path]
	return ok
}

// Role returns the current user's role on path, or "" if none.
func (o *OwnersInfo) Role(path string) Role {
	if o == nil {
		return ""
	}
	return o.FilesToRole[path]
}

// ResponsibleForFolder reports whether any file under folder has a role.
func (o *OwnersInfo) ResponsibleForFolder(folder string) bool {
	if o == nil {
		return false
	}
	prefix := strings.TrimSuffix(folder, "/") + "/"
	for path := range o.FilesToRole {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// Paths returns the files with a role, sorted.
func (o *OwnersInfo) Paths() []string {
	if o == nil {
		return nil
	}
	paths := make([]string, 0, len(o.FilesToRole))
	for p := range o.FilesToRole {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

type ownersBlob struct {
	FileProperties     []fileProperty `json:"fileProperties"`
	ReviewerIdentities []struct {
		Email string `json:"email"`
	} `json:"reviewerIdentities"`
	Version int `json:"version"`
}

type fileProperty struct {
	Path      string `json:"path"`
	Reviewers []int  `json:"reviewers"`
	Experts   []int  `json:"experts"`
	Owner     int    `json:"owner"`
	Alternate int    `json:"alternate"`
}

// ResolveOwners builds the current user's file responsibilities from the owners property blob.
// It returns nil without error when the blob is empty, predates the identity table,
// or omits file properties. A user absent from the identity table gets an empty, non-nil result.
func ResolveOwners(blob string, me types.Identity) (*OwnersInfo, error) {
	if strings.TrimSpace(blob) == "" {
		return nil, nil
	}

	var props ownersBlob
	if err := json.Unmarshal([]byte(blob), &props); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", OwnersProperty, err)
	}
	if props.Version < minOwnersVersion || props.FileProperties == nil {
		return nil, nil
	}

	info := &OwnersInfo{FilesToRole: make(map[string]Role)}

	isMe := make([]bool, len(props.ReviewerIdentities))
	listed := false
	for i, id := range props.ReviewerIdentities {
		if id.Email != "" && strings.EqualFold(id.Email, me.UniqueName) {
			isMe[i] = true
			listed = true
		}
	}
	if !listed {
		return info, nil
	}

	// Indices are 1-based; zero and out-of-range mean nobody holds the role.
	matches := func(idx int) bool {
		return idx >= 1 && idx <= len(isMe) && isMe[idx-1]
	}
	anyMatch := func(indices []int) bool {
		for _, idx := range indices {
			if matches(idx) {
				return true
			}
		}
		return false
	}

	for _, f := range props.FileProperties {
		var role Role
		switch {
		case matches(f.Owner):
			role = RoleOwner
		case matches(f.Alternate):
			role = RoleAlternate
		case anyMatch(f.Reviewers):
			role = RoleReviewer
		case anyMatch(f.Experts):
			role = RoleExpert
		default:
			continue
		}
		if _, seen := info.FilesToRole[f.Path]; seen {
			continue
		}
		info.FilesToRole[f.Path] = role
		info.FileCount++
	}

	return info, nil
}
