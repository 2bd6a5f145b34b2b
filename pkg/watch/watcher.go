// Package watch turns change notifications from several sources into debounced,
// deduplicated batches of candidates for registered handlers.
package watch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	// DefaultDebounce is how long the watcher waits for a burst of changes to settle.
	DefaultDebounce = 400 * time.Millisecond

	eventChannelSize  = 1000
	pullRequestPrefix = "pr:"
)

// Candidate is something that may need processing. Key identifies it and State is
// what was observed; the same key and state is processed only once.
type Candidate struct {
	Key   string
	State string
}

// PullRequestKey is the candidate key for server-pushed pull request events.
func PullRequestKey(id int) string {
	return pullRequestPrefix + strconv.Itoa(id)
}

// ParsePullRequestKey returns the pull request id of a key built by PullRequestKey.
func ParsePullRequestKey(key string) (int, bool) {
	rest, ok := strings.CutPrefix(key, pullRequestPrefix)
	if !ok {
		return 0, false
	}
	id, err := strconv.Atoi(rest)
	if err != nil {
		return 0, false
	}
	return id, true
}

// Source produces candidates until ctx is done.
type Source interface {
	Name() string
	Run(ctx context.Context, emit func(Candidate)) error
}

// Handler processes one batch of candidates.
type Handler func(ctx context.Context, batch []Candidate)

type namedHandler struct {
	fn   Handler
	name string
}

// Watcher coalesces candidates from sources and dispatches them to handlers.
type Watcher struct {
	events    chan Candidate
	lastState map[string]string
	handlers  []namedHandler
	debounce  time.Duration
	mu        sync.Mutex
}

// New creates a watcher. A debounce <= 0 uses DefaultDebounce.
func New(debounce time.Duration) *Watcher {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Watcher{
		events:    make(chan Candidate, eventChannelSize),
		lastState: make(map[string]string),
		debounce:  debounce,
	}
}

// Handle registers h under name. Handlers run in registration order.
func (w *Watcher) Handle(name string, h Handler) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handlers = append(w.handlers, namedHandler{name: name, fn: h})
}

// Emit queues a candidate without blocking. It is dropped if the queue is full.
func (w *Watcher) Emit(c Candidate) {
	select {
	case w.events <- c:
	default:
		slog.Warn("Event queue full, dropping candidate", "component", "watch", "key", c.Key)
	}
}

// Forget clears the processed state of key so the next candidate for it is processed.
func (w *Watcher) Forget(key string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.lastState, key)
}

// Run starts sources and dispatches batches until ctx is done.
func (w *Watcher) Run(ctx context.Context, sources ...Source) error {
	var wg sync.WaitGroup
	for _, src := range sources {
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					slog.Error("Event source panic", "component", "watch", "source", src.Name(), "panic", r)
				}
			}()
			if err := src.Run(ctx, w.Emit); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("Event source stopped", "component", "watch", "source", src.Name(), "error", err)
			}
		}()
	}

	err := w.loop(ctx)
	wg.Wait()
	return err
}

func (w *Watcher) loop(ctx context.Context) error {
	var (
		pending []Candidate
		timer   *time.Timer
		fire    <-chan time.Time
	)
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return ctx.Err()
		case c := <-w.events:
			pending = append(pending, c)
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				fire = timer.C
			}
		case <-fire:
			timer, fire = nil, nil
			batch := w.dedup(pending)
			pending = nil
			if len(batch) > 0 {
				w.dispatch(ctx, batch)
			}
		}
	}
}

// dedup keeps the last state per key within the batch, minus keys already processed in that state.
func (w *Watcher) dedup(pending []Candidate) []Candidate {
	latest := make(map[string]int, len(pending))
	var order []string
	for i, c := range pending {
		if _, seen := latest[c.Key]; !seen {
			order = append(order, c.Key)
		}
		latest[c.Key] = i
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	batch := make([]Candidate, 0, len(order))
	for _, key := range order {
		c := pending[latest[key]]
		if prev, ok := w.lastState[key]; ok && prev == c.State {
			continue
		}
		w.lastState[key] = c.State
		batch = append(batch, c)
	}
	if len(batch) < len(pending) {
		slog.Debug("Coalesced candidates", "component", "watch", "received", len(pending), "dispatched", len(batch))
	}
	return batch
}

func (w *Watcher) dispatch(ctx context.Context, batch []Candidate) {
	w.mu.Lock()
	handlers := make([]namedHandler, len(w.handlers))
	copy(handlers, w.handlers)
	w.mu.Unlock()

	for _, h := range handlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					slog.Error("Handler panic", "component", "watch", "handler", h.name, "panic", fmt.Sprint(r))
				}
			}()
			start := time.Now()
			h.fn(ctx, batch)
			slog.Debug("Handled batch", "component", "watch", "handler", h.name, "size", len(batch), "elapsed", time.Since(start).Round(time.Millisecond))
		}()
	}
}
