package page

import (
	"log/slog"
	"slices"
	"sync"

	"github.com/codeGROOVE-dev/review-dashboard/pkg/types"
)

// Item is what the host renders into a row.
type Item struct {
	Href  string
	Title string
}

// MutationKind describes what happened to a row.
type MutationKind int

// MutationKind values.
const (
	RowInserted MutationKind = iota
	RowChanged
	RowRemoved
)

func (k MutationKind) String() string {
	switch k {
	case RowInserted:
		return "inserted"
	case RowChanged:
		return "changed"
	default:
		return "removed"
	}
}

// Mutation is a change notification delivered to observers.
type Mutation struct {
	Row  *Row
	Kind MutationKind
}

// SectionState is a snapshot of one section list.
type SectionState struct {
	ID      types.Section
	Rows    []*Row
	Open    bool
	Visible bool
}

type section struct {
	rows    []*Row
	open    bool
	visible bool
}

// Document is the set of rows the host rendered, grouped in lists, plus the section lists
// rows get moved into. It is safe for concurrent use.
type Document struct {
	lists     map[types.ListContext][]*Row
	sections  map[types.Section]*section
	observers map[int]func(Mutation)
	mu        sync.Mutex
	nextObs   int
}

// NewDocument creates an empty document with all sections collapsed and hidden.
func NewDocument() *Document {
	d := &Document{
		lists:     make(map[types.ListContext][]*Row),
		sections:  make(map[types.Section]*section, len(types.Sections)),
		observers: make(map[int]func(Mutation)),
	}
	for _, s := range types.Sections {
		d.sections[s] = &section{}
	}
	return d
}

// Observe registers fn for row mutations and returns a function that unregisters it.
// Callbacks run on the goroutine that changed the document.
func (d *Document) Observe(fn func(Mutation)) (cancel func()) {
	d.mu.Lock()
	id := d.nextObs
	d.nextObs++
	d.observers[id] = fn
	d.mu.Unlock()

	return func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		delete(d.observers, id)
	}
}

func (d *Document) notify(muts []Mutation) {
	if len(muts) == 0 {
		return
	}
	d.mu.Lock()
	fns := make([]func(Mutation), 0, len(d.observers))
	for _, fn := range d.observers {
		fns = append(fns, fn)
	}
	d.mu.Unlock()

	for _, m := range muts {
		for _, fn := range fns {
			fn(m)
		}
	}
}

// Render is what the host does when it (re)draws a list. Rows are reused by position:
// a slot showing another pull request is rebound in place, surplus rows are removed.
func (d *Document) Render(listCtx types.ListContext, items []Item) {
	var muts []Mutation

	d.mu.Lock()
	rows := d.lists[listCtx]
	for i, item := range items {
		if i < len(rows) {
			r := rows[i]
			if r.Href() == item.Href && r.Title() == item.Title {
				continue
			}
			r.SetAttr(AttrHref, item.Href)
			r.SetAttr(AttrTitle, item.Title)
			muts = append(muts, Mutation{Row: r, Kind: RowChanged})
			continue
		}
		r := newRow(listCtx, i, item)
		rows = append(rows, r)
		muts = append(muts, Mutation{Row: r, Kind: RowInserted})
	}
	if len(items) < len(rows) {
		for _, r := range rows[len(items):] {
			d.unplaceLocked(r)
			muts = append(muts, Mutation{Row: r, Kind: RowRemoved})
		}
		rows = rows[:len(items)]
	}
	d.lists[listCtx] = rows
	d.mu.Unlock()

	slog.Debug("Rendered list", "component", "page", "list", listCtx, "rows", len(items), "mutations", len(muts))
	d.notify(muts)
}

// Touch re-announces a row as changed without altering it, like a host re-render of identical content.
func (d *Document) Touch(r *Row) {
	d.notify([]Mutation{{Row: r, Kind: RowChanged}})
}

// Rows returns the rows of a list in host order.
func (d *Document) Rows(listCtx types.ListContext) []*Row {
	d.mu.Lock()
	defer d.mu.Unlock()
	return slices.Clone(d.lists[listCtx])
}

// Row looks a row up by key.
func (d *Document) Row(key string) (*Row, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, rows := range d.lists {
		for _, r := range rows {
			if r.Key() == key {
				return r, true
			}
		}
	}
	return nil, false
}

// Place moves r into section s and makes the section visible.
func (d *Document) Place(r *Row, s types.Section) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	sec, ok := d.sections[s]
	if !ok {
		return ErrUnexpectedShape
	}
	d.unplaceLocked(r)
	sec.rows = append(sec.rows, r)
	sec.visible = true
	r.setSection(s)
	return nil
}

// Unplace removes r from whatever section it is in.
func (d *Document) Unplace(r *Row) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.unplaceLocked(r)
}

func (d *Document) unplaceLocked(r *Row) {
	prev := r.Section()
	if prev == types.SectionNone {
		return
	}
	if sec, ok := d.sections[prev]; ok {
		sec.rows = slices.DeleteFunc(sec.rows, func(x *Row) bool { return x == r })
	}
	r.setSection(types.SectionNone)
}

// SetOpen expands or collapses a section.
func (d *Document) SetOpen(s types.Section, open bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if sec, ok := d.sections[s]; ok {
		sec.open = open
	}
}

// Count returns the number of rows placed in s.
func (d *Document) Count(s types.Section) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	if sec, ok := d.sections[s]; ok {
		return len(sec.rows)
	}
	return 0
}

// Sections returns a snapshot of all sections in display order.
func (d *Document) Sections() []SectionState {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]SectionState, 0, len(types.Sections))
	for _, s := range types.Sections {
		sec := d.sections[s]
		out = append(out, SectionState{
			ID:      s,
			Rows:    slices.Clone(sec.rows),
			Open:    sec.open,
			Visible: sec.visible,
		})
	}
	return out
}
