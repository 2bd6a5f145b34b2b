// Package output renders dashboard state as fixed-width terminal text.
package output

import (
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/mattn/go-runewidth"

	"github.com/codeGROOVE-dev/review-dashboard/pkg/filetree"
	"github.com/codeGROOVE-dev/review-dashboard/pkg/page"
	"github.com/codeGROOVE-dev/review-dashboard/pkg/session"
)

const (
	titleWidth = 60
	idWidth    = 8
	roleWidth  = 10
)

// Printer writes to w, collecting the first write error.
type Printer struct {
	w   io.Writer
	err error
}

// New creates a printer writing to w.
func New(w io.Writer) *Printer {
	return &Printer{w: w}
}

// Err returns the first write error, if any.
func (p *Printer) Err() error {
	return p.err
}

func (p *Printer) printf(format string, args ...any) {
	if p.err != nil {
		return
	}
	_, p.err = fmt.Fprintf(p.w, format, args...)
}

// Sections prints every visible section with its rows and their badges.
// Rows that were never sorted are listed last.
func (p *Printer) Sections(sections []page.SectionState, unsorted []*page.Row) {
	for _, s := range sections {
		if !s.Visible || len(s.Rows) == 0 {
			continue
		}
		marker := "▸"
		if s.Open {
			marker = "▾"
		}
		p.printf("%s %s (%d)\n", marker, s.ID.Title(), len(s.Rows))
		for _, r := range s.Rows {
			p.row(r)
		}
		p.printf("\n")
	}

	if len(unsorted) > 0 {
		p.printf("  Unsorted (%d)\n", len(unsorted))
		for _, r := range unsorted {
			p.row(r)
		}
		p.printf("\n")
	}
}

func (p *Printer) row(r *page.Row) {
	id := "?"
	if n, err := r.PRID(); err == nil {
		id = fmt.Sprintf("!%d", n)
	}
	title := r.Title()
	if title == "" {
		title = r.Href()
	}

	var badges []string
	for _, a := range r.Annotations() {
		if a.Kind == page.KindSection {
			continue
		}
		badges = append(badges, "["+a.Text+"]")
	}

	p.printf("    %s %s %s\n",
		runewidth.FillRight(id, idWidth),
		runewidth.FillRight(runewidth.Truncate(title, titleWidth, "…"), titleWidth),
		strings.Join(badges, " "))
}

// Files prints a changed-files tree. Folders are indented by depth and files carry
// their review checkbox and role.
func (p *Printer) Files(v *filetree.View, hideNotToReview bool) {
	p.printf("Pull request !%d: %s (update %d)\n", v.PR.ID, v.PR.Title, v.Iteration)
	if !v.CanFilter() {
		p.printf("(no owners information, showing all files)\n")
	}

	for _, f := range v.Visible(hideNotToReview) {
		depth := strings.Count(strings.Trim(f.Path, "/"), "/")
		indent := strings.Repeat("  ", depth)
		name := path.Base(f.Path)

		if f.Folder {
			p.printf("%s   %s%s/\n", runewidth.FillRight("", roleWidth), indent, name)
			continue
		}

		box := "[ ]"
		if f.Reviewed {
			box = "[x]"
		}
		note := ""
		if f.Reviewed && f.ReviewedIn > 0 && f.ReviewedIn < v.Iteration {
			note = fmt.Sprintf("  (checked in update %d)", f.ReviewedIn)
		}
		p.printf("%s %s %s%s%s\n", runewidth.FillRight(f.Label, roleWidth), box, indent, name, note)
	}
}

// Updates prints the options of the "compare updates" picker.
func (p *Printer) Updates(options []filetree.UpdateOption) {
	for _, o := range options {
		p.printf("%s  %s\n", runewidth.FillLeft(fmt.Sprint(o.ID), 4), o.Label)
	}
}

// Session prints who the dashboard is acting as.
func (p *Printer) Session(s session.Context) {
	name := s.User.DisplayName
	if name == "" {
		name = s.User.UniqueName
	}
	p.printf("User:     %s <%s>\n", name, s.User.UniqueName)
	if s.User.ID != "" {
		p.printf("ID:       %s\n", s.User.ID)
	}
	p.printf("API base: %s\n", s.APIBase)
	if s.Theme != "" {
		p.printf("Theme:    %s\n", s.Theme)
	}
	if !s.TokenExpiry.IsZero() {
		p.printf("Token:    expires %s\n", s.TokenExpiry.Local().Format("2006-01-02 15:04"))
	}
}
