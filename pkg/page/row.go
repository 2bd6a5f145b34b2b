// Package page models the host dashboard as a document of pull request rows.
// The host owns row content; this package only lets callers decorate rows
// with keyed annotations, hide them, and place them in sections.
package page

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"sync"

	"github.com/codeGROOVE-dev/review-dashboard/pkg/types"
)

// ErrUnexpectedShape means the host rendered something this package cannot read.
var ErrUnexpectedShape = errors.New("unexpected page shape")

// Row attribute names.
const (
	AttrHref   = "href"
	AttrTitle  = "title"
	AttrMarker = "data-pr-id"
)

var prPathPattern = regexp.MustCompile(`/pullrequest/(\d+)`)

// AnnotationKind identifies an annotation slot on a row. A row holds at most one annotation per kind.
type AnnotationKind string

// AnnotationKind values.
const (
	KindFileCount    AnnotationKind = "file-count"
	KindBuild        AnnotationKind = "build-status"
	KindBugSeverity  AnnotationKind = "bug-severity"
	KindReviewerInfo AnnotationKind = "reviewer-info"
	KindSection      AnnotationKind = "section"
)

// Annotation is an element injected next to host content.
type Annotation struct {
	Kind  AnnotationKind
	Text  string
	Title string
	Class string
	PRID  int
}

// Row is one host-rendered pull request row. The host may reuse a row for another pull request.
type Row struct {
	attrs       map[string]string
	annotations map[AnnotationKind]Annotation
	context     types.ListContext
	section     types.Section
	slot        int
	mu          sync.Mutex
	hidden      bool
}

func newRow(listCtx types.ListContext, slot int, item Item) *Row {
	return &Row{
		context:     listCtx,
		slot:        slot,
		attrs:       map[string]string{AttrHref: item.Href, AttrTitle: item.Title},
		annotations: make(map[AnnotationKind]Annotation),
	}
}

// Key identifies the row slot within its document.
func (r *Row) Key() string {
	return RowKey(r.context, r.slot)
}

// RowKey builds a row key from its list and position.
func RowKey(listCtx types.ListContext, slot int) string {
	return fmt.Sprintf("%s/%d", listCtx, slot)
}

// Context returns the list the row was rendered in.
func (r *Row) Context() types.ListContext {
	return r.context
}

// Attr returns an attribute value.
func (r *Row) Attr(name string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.attrs[name]
	return v, ok
}

// SetAttr sets an attribute value.
func (r *Row) SetAttr(name, value string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attrs[name] = value
}

// Href returns the pull request link rendered by the host.
func (r *Row) Href() string {
	v, _ := r.Attr(AttrHref)
	return v
}

// Title returns the pull request title rendered by the host.
func (r *Row) Title() string {
	v, _ := r.Attr(AttrTitle)
	return v
}

// PRID parses the pull request id the host currently shows in the row.
func (r *Row) PRID() (int, error) {
	href := r.Href()
	return ParsePRID(href)
}

// ParsePRID extracts the pull request id from a link such as
// https://dev.azure.com/org/project/_git/repo/pullrequest/42.
func ParsePRID(href string) (int, error) {
	u, err := url.Parse(href)
	if err != nil {
		return 0, fmt.Errorf("%w: bad row link %q: %v", ErrUnexpectedShape, href, err)
	}
	m := prPathPattern.FindStringSubmatch(u.Path)
	if m == nil {
		return 0, fmt.Errorf("%w: row link %q has no pull request id", ErrUnexpectedShape, href)
	}
	id, err := strconv.Atoi(m[1])
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: row link %q has an invalid pull request id", ErrUnexpectedShape, href)
	}
	return id, nil
}

// Marker returns the pull request id the row was last processed for, or 0.
func (r *Row) Marker() int {
	v, ok := r.Attr(AttrMarker)
	if !ok {
		return 0
	}
	id, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return id
}

// SetMarker records the pull request id the row is being processed for.
func (r *Row) SetMarker(id int) {
	r.SetAttr(AttrMarker, strconv.Itoa(id))
}

// Annotate adds a, replacing any annotation of the same kind.
func (r *Row) Annotate(a Annotation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.annotations[a.Kind] = a
}

// Annotations returns the row's annotations ordered by kind.
func (r *Row) Annotations() []Annotation {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Annotation, 0, len(r.annotations))
	for _, a := range r.annotations {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Kind < out[j].Kind })
	return out
}

// Annotation returns the annotation of kind k.
func (r *Row) Annotation(k AnnotationKind) (Annotation, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.annotations[k]
	return a, ok
}

// StripAnnotations removes every annotation produced for prID and returns how many were removed.
func (r *Row) StripAnnotations(prID int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for k, a := range r.annotations {
		if a.PRID == prID {
			delete(r.annotations, k)
			n++
		}
	}
	return n
}

// Hide hides the row while it is being processed.
func (r *Row) Hide() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hidden = true
}

// Show makes the row visible again.
func (r *Row) Show() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hidden = false
}

// Hidden reports whether the row is hidden.
func (r *Row) Hidden() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.hidden
}

// Section returns the section the row was placed in.
func (r *Row) Section() types.Section {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.section
}

func (r *Row) setSection(s types.Section) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.section = s
}
