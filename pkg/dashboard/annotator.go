package dashboard

import (
	"fmt"
	"strings"

	"github.com/codeGROOVE-dev/review-dashboard/pkg/page"
	"github.com/codeGROOVE-dev/review-dashboard/pkg/prefs"
	"github.com/codeGROOVE-dev/review-dashboard/pkg/review"
	"github.com/codeGROOVE-dev/review-dashboard/pkg/types"
)

// Evaluation is everything computed for one row, ready to be applied.
type Evaluation struct {
	Section       types.Section
	Build         review.BuildState
	BugSeverity   string
	ReviewerNotes []string
	PRID          int
	FileCount     int
	HasFileCount  bool
}

// Annotator applies evaluations to rows. It is the only place rows are mutated
// on behalf of a classification.
type Annotator struct {
	doc   *page.Document
	prefs *prefs.Store
}

// NewAnnotator creates an annotator. prefs may be nil, in which case sections start collapsed.
func NewAnnotator(doc *page.Document, p *prefs.Store) *Annotator {
	return &Annotator{doc: doc, prefs: p}
}

// Apply moves row into its section and sets its badges. Badges left from an earlier
// evaluation of the same pull request are removed first, so the row shows only this one.
func (a *Annotator) Apply(row *page.Row, ev Evaluation) error {
	if err := a.doc.Place(row, ev.Section); err != nil {
		return fmt.Errorf("placing pull request %d in section %q: %w", ev.PRID, ev.Section, err)
	}
	row.StripAnnotations(ev.PRID)
	if a.prefs != nil {
		a.doc.SetOpen(ev.Section, a.prefs.SectionOpen(ev.Section))
	}

	row.Annotate(page.Annotation{Kind: page.KindSection, PRID: ev.PRID, Text: ev.Section.Title()})

	if ev.HasFileCount {
		row.Annotate(page.Annotation{
			Kind:  page.KindFileCount,
			PRID:  ev.PRID,
			Text:  fileCountText(ev.FileCount),
			Class: "file-count",
		})
	}
	if ev.Build != "" && ev.Build != review.BuildUnknown {
		row.Annotate(page.Annotation{
			Kind:  page.KindBuild,
			PRID:  ev.PRID,
			Text:  ev.Build.Icon(),
			Title: "Build " + string(ev.Build),
			Class: "build-" + string(ev.Build),
		})
	}
	if ev.BugSeverity != "" {
		row.Annotate(page.Annotation{
			Kind:  page.KindBugSeverity,
			PRID:  ev.PRID,
			Text:  ev.BugSeverity,
			Class: "bug-severity",
		})
	}
	if len(ev.ReviewerNotes) > 0 {
		row.Annotate(page.Annotation{
			Kind:  page.KindReviewerInfo,
			PRID:  ev.PRID,
			Text:  strings.Join(ev.ReviewerNotes, "; "),
			Class: "reviewer-info",
		})
	}
	return nil
}

// Reset removes everything applied for prID from row.
func (a *Annotator) Reset(row *page.Row, prID int) {
	row.StripAnnotations(prID)
	a.doc.Unplace(row)
}

// ToggleSection opens or collapses a section and remembers the choice.
func (a *Annotator) ToggleSection(s types.Section, open bool) error {
	a.doc.SetOpen(s, open)
	if a.prefs == nil {
		return nil
	}
	return a.prefs.SetSectionOpen(s, open)
}

func fileCountText(n int) string {
	if n == 1 {
		return "1 file"
	}
	return fmt.Sprintf("%d files", n)
}
