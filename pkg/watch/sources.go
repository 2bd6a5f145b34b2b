package watch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/codeGROOVE-dev/review-dashboard/pkg/page"
	"github.com/codeGROOVE-dev/review-dashboard/pkg/types"
)

// RemovedState is the candidate state of a row the host removed.
const RemovedState = ""

// DocumentSource reports row insertions and rebinds in a page.Document.
// The candidate key is the row key and the state is the row link.
type DocumentSource struct {
	Doc *page.Document
}

// Name implements Source.
func (DocumentSource) Name() string { return "document" }

// Run implements Source. Rows already present are reported first.
func (s DocumentSource) Run(ctx context.Context, emit func(Candidate)) error {
	cancel := s.Doc.Observe(func(m page.Mutation) {
		state := m.Row.Href()
		if m.Kind == page.RowRemoved {
			state = RemovedState
		}
		emit(Candidate{Key: m.Row.Key(), State: state})
	})
	defer cancel()

	for _, listCtx := range []types.ListContext{types.ContextAssignedToMe, types.ContextCreatedByMe} {
		for _, r := range s.Doc.Rows(listCtx) {
			emit(Candidate{Key: r.Key(), State: r.Href()})
		}
	}

	<-ctx.Done()
	return ctx.Err()
}

// Poller calls Poll on an interval and emits whatever it returns.
// Poll may also change the document directly and return nothing.
type Poller struct {
	Poll     func(ctx context.Context) ([]Candidate, error)
	Interval time.Duration
}

// Name implements Source.
func (Poller) Name() string { return "poller" }

// Run implements Source.
func (p Poller) Run(ctx context.Context, emit func(Candidate)) error {
	if p.Interval <= 0 {
		return fmt.Errorf("invalid poll interval %v", p.Interval)
	}
	ticker := time.NewTicker(p.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			cands, err := p.Poll(ctx)
			if err != nil {
				slog.Warn("Poll failed", "component", "watch", "error", err)
				continue
			}
			for _, c := range cands {
				emit(c)
			}
		}
	}
}
