package dashboard

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime/debug"
	"strings"
	"time"

	"github.com/codeGROOVE-dev/review-dashboard/pkg/page"
)

// Notice is a dismissable message shown when a page update fails unexpectedly.
type Notice struct {
	Message    string
	Details    string // copyable diagnostics
	SupportURL string
}

// Notifier shows notices to the user.
type Notifier interface {
	Notify(n Notice)
}

// WriterNotifier prints notices to a writer, typically stderr.
type WriterNotifier struct {
	W io.Writer
}

// Notify implements Notifier.
func (w WriterNotifier) Notify(n Notice) {
	var b strings.Builder
	fmt.Fprintf(&b, "\n%s\n", n.Message)
	if n.SupportURL != "" {
		fmt.Fprintf(&b, "Report it at %s with the details below.\n", n.SupportURL)
	}
	fmt.Fprintf(&b, "---\n%s\n---\n", strings.TrimSpace(n.Details))
	if _, err := io.WriteString(w.W, b.String()); err != nil {
		slog.Debug("Failed to write notice", "component", "dashboard", "error", err)
	}
}

// Boundary catches errors and panics from one page-update cycle and turns them into notices.
type Boundary struct {
	notifier   Notifier
	now        func() time.Time
	supportURL string
}

// NewBoundary creates a boundary reporting to notifier.
func NewBoundary(notifier Notifier, supportURL string) *Boundary {
	return &Boundary{notifier: notifier, supportURL: supportURL, now: time.Now}
}

// Run calls fn and reports any error or panic. The error is returned for the caller to log.
func (b *Boundary) Run(cycle string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic during %s: %v", cycle, r)
			b.report(cycle, err, string(debug.Stack()))
		}
	}()

	if err := fn(); err != nil {
		b.report(cycle, err, "")
		return err
	}
	return nil
}

func (b *Boundary) report(cycle string, err error, stack string) {
	msg := "The dashboard hit an error while updating the page."
	if errors.Is(err, page.ErrUnexpectedShape) {
		msg = "The page looks different than expected, so some pull requests may not be sorted."
	}

	var d strings.Builder
	fmt.Fprintf(&d, "time: %s\n", b.now().UTC().Format(time.RFC3339))
	fmt.Fprintf(&d, "cycle: %s\n", cycle)
	fmt.Fprintf(&d, "error: %v\n", err)
	if stack != "" {
		d.WriteString(stack)
	}

	slog.Error("Page update failed", "component", "dashboard", "cycle", cycle, "error", err)
	if b.notifier != nil {
		b.notifier.Notify(Notice{Message: msg, Details: d.String(), SupportURL: b.supportURL})
	}
}
