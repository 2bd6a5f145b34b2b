// Package dashboard sorts pull request rows into review-status sections and decorates them.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/codeGROOVE-dev/review-dashboard/pkg/azdo"
	"github.com/codeGROOVE-dev/review-dashboard/pkg/directory"
	"github.com/codeGROOVE-dev/review-dashboard/pkg/page"
	"github.com/codeGROOVE-dev/review-dashboard/pkg/review"
	"github.com/codeGROOVE-dev/review-dashboard/pkg/types"
	"github.com/codeGROOVE-dev/review-dashboard/pkg/watch"
)

// DefaultConcurrency bounds how many rows are evaluated at once.
const DefaultConcurrency = 8

// Config configures an Enhancer.
type Config struct {
	API        azdo.API
	Document   *page.Document
	Annotator  *Annotator
	Directory  *directory.Client // optional
	Me         types.Identity
	Thresholds review.Thresholds // zero uses review.DefaultThresholds

	// Concurrency <= 0 uses DefaultConcurrency.
	Concurrency int
}

// Enhancer evaluates rows and hands the results to the annotator.
type Enhancer struct {
	api        azdo.API
	doc        *page.Document
	annotator  *Annotator
	dir        *directory.Client
	me         types.Identity
	thresholds review.Thresholds
	limit      int
}

// New creates an enhancer.
func New(cfg Config) (*Enhancer, error) {
	if cfg.API == nil || cfg.Document == nil {
		return nil, errors.New("dashboard requires an API client and a document")
	}
	if cfg.Me.UniqueName == "" && cfg.Me.ID == "" {
		return nil, errors.New("dashboard requires the current user")
	}
	limit := cfg.Concurrency
	if limit <= 0 {
		limit = DefaultConcurrency
	}
	th := cfg.Thresholds
	if th == (review.Thresholds{}) {
		th = review.DefaultThresholds()
	}
	ann := cfg.Annotator
	if ann == nil {
		ann = NewAnnotator(cfg.Document, nil)
	}
	return &Enhancer{
		api:        cfg.API,
		doc:        cfg.Document,
		annotator:  ann,
		dir:        cfg.Directory,
		me:         cfg.Me,
		thresholds: th,
		limit:      limit,
	}, nil
}

// HandleBatch processes a batch of changed rows and pushed pull requests.
// The returned error joins every shape error and panic of the batch.
func (e *Enhancer) HandleBatch(ctx context.Context, batch []watch.Candidate) error {
	type job struct {
		row   *page.Row
		force bool
	}
	var jobs []job
	seen := make(map[*page.Row]bool)
	for _, c := range batch {
		if prID, ok := watch.ParsePullRequestKey(c.Key); ok {
			for _, r := range e.rowsFor(prID) {
				if !seen[r] {
					seen[r] = true
					jobs = append(jobs, job{row: r, force: true})
				}
			}
			continue
		}
		r, ok := e.doc.Row(c.Key)
		if !ok || c.State == watch.RemovedState || seen[r] {
			continue
		}
		seen[r] = true
		jobs = append(jobs, job{row: r})
	}
	if len(jobs) == 0 {
		return nil
	}

	var (
		mu   sync.Mutex
		errs []error
	)
	var g errgroup.Group
	g.SetLimit(e.limit)
	for _, j := range jobs {
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("panic processing row %s: %v", j.row.Key(), r)
				}
				if err != nil {
					mu.Lock()
					errs = append(errs, err)
					mu.Unlock()
				}
			}()
			return e.Process(ctx, j.row, j.force)
		})
	}
	_ = g.Wait() //nolint:errcheck // errors are collected above so one row cannot cancel another
	return errors.Join(errs...)
}

// ProcessAll processes every row of both lists.
func (e *Enhancer) ProcessAll(ctx context.Context) error {
	var batch []watch.Candidate
	for _, lc := range []types.ListContext{types.ContextAssignedToMe, types.ContextCreatedByMe} {
		for _, r := range e.doc.Rows(lc) {
			batch = append(batch, watch.Candidate{Key: r.Key(), State: r.Href()})
		}
	}
	return e.HandleBatch(ctx, batch)
}

func (e *Enhancer) rowsFor(prID int) []*page.Row {
	var rows []*page.Row
	for _, lc := range []types.ListContext{types.ContextAssignedToMe, types.ContextCreatedByMe} {
		for _, r := range e.doc.Rows(lc) {
			if r.Marker() == prID {
				rows = append(rows, r)
			}
		}
	}
	return rows
}

// Process evaluates one row. A row already marked with its current pull request is left alone
// unless force is set. Fetch failures are logged and leave the row unsorted; only errors about
// the page itself are returned.
func (e *Enhancer) Process(ctx context.Context, row *page.Row, force bool) error {
	prID, err := row.PRID()
	if err != nil {
		return fmt.Errorf("row %s: %w", row.Key(), err)
	}

	prev := row.Marker()
	if prev == prID && !force {
		return nil
	}
	if prev != 0 && prev != prID {
		slog.Debug("Row now shows a different pull request", "component", "dashboard", "row", row.Key(), "old", prev, "new", prID)
		e.annotator.Reset(row, prev)
	}
	row.SetMarker(prID)

	row.Hide()
	defer row.Show()

	ev, err := e.Evaluate(ctx, row.Context(), prID)
	if err != nil {
		slog.Warn("Failed to evaluate pull request", "component", "dashboard", "pr", prID, "row", row.Key(), "error", err)
		return nil
	}

	if cur, err := row.PRID(); err != nil || cur != prID || row.Marker() != prID {
		slog.Debug("Dropping stale result", "component", "dashboard", "pr", prID, "row", row.Key())
		return nil
	}
	return e.annotator.Apply(row, ev)
}

// Evaluate fetches what is needed to classify and annotate one pull request.
// Only failures to load the pull request or its threads are errors; each badge is best effort.
func (e *Enhancer) Evaluate(ctx context.Context, listCtx types.ListContext, prID int) (Evaluation, error) {
	pr, err := e.api.PullRequest(ctx, prID)
	if err != nil {
		return Evaluation{}, fmt.Errorf("loading pull request %d: %w", prID, err)
	}

	var threadErr error
	notable := func() bool {
		threads, err := e.api.Threads(ctx, pr)
		if err != nil {
			threadErr = err
			return false
		}
		return review.IsNotable(review.NewestFirst(threads), e.me, e.thresholds)
	}

	section := review.Classify(review.Input{PR: pr, Me: e.me, Context: listCtx, Notable: notable})
	if threadErr != nil {
		return Evaluation{}, fmt.Errorf("loading threads of pull request %d: %w", prID, threadErr)
	}

	ev := Evaluation{PRID: prID, Section: section}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	if review.NeedsSize(section) {
		g.Go(func() error {
			n, ok := e.fileCount(gctx, pr)
			mu.Lock()
			ev.FileCount, ev.HasFileCount = n, ok
			mu.Unlock()
			return nil
		})
	}
	g.Go(func() error {
		b := e.buildState(gctx, pr)
		mu.Lock()
		ev.Build = b
		mu.Unlock()
		return nil
	})
	g.Go(func() error {
		s := e.bugSeverity(gctx, pr)
		mu.Lock()
		ev.BugSeverity = s
		mu.Unlock()
		return nil
	})
	if e.dir != nil && e.dir.Enabled() {
		g.Go(func() error {
			notes := e.reviewerNotes(gctx, pr)
			mu.Lock()
			ev.ReviewerNotes = notes
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Evaluation{}, err
	}
	return ev, nil
}

// fileCount prefers the owners property and falls back to the merge commit's change list.
func (e *Enhancer) fileCount(ctx context.Context, pr *types.PullRequest) (int, bool) {
	var owners *review.OwnersInfo
	blob, found, err := e.api.Property(ctx, pr, review.OwnersProperty)
	switch {
	case err != nil:
		slog.Debug("Failed to load owners property", "component", "dashboard", "pr", pr.ID, "error", err)
	case found:
		if owners, err = review.ResolveOwners(blob, e.me); err != nil {
			slog.Warn("Ignoring malformed owners property", "component", "dashboard", "pr", pr.ID, "error", err)
			owners = nil
		}
	}
	if owners != nil && owners.FileCount > 0 {
		return review.FileCount(owners, nil, false)
	}

	if pr.LastMergeCommit == nil {
		return 0, false
	}
	changes, err := e.api.MergeCommitChanges(ctx, pr.LastMergeCommit)
	if err != nil {
		slog.Debug("Failed to load merge commit changes", "component", "dashboard", "pr", pr.ID, "error", err)
		return 0, false
	}
	return review.FileCount(nil, changes, true)
}

func (e *Enhancer) buildState(ctx context.Context, pr *types.PullRequest) review.BuildState {
	if pr.LastMergeSourceCommit == nil {
		return review.BuildUnknown
	}
	statuses, err := e.api.CommitStatuses(ctx, pr.LastMergeSourceCommit)
	if err != nil {
		slog.Debug("Failed to load commit statuses", "component", "dashboard", "pr", pr.ID, "error", err)
		return review.BuildUnknown
	}
	return review.AggregateBuild(statuses)
}

// bugSeverity returns the most severe severity among linked bugs, or "" when there are none.
func (e *Enhancer) bugSeverity(ctx context.Context, pr *types.PullRequest) string {
	ids, err := e.api.PullRequestWorkItems(ctx, pr)
	if err != nil {
		slog.Debug("Failed to load linked work items", "component", "dashboard", "pr", pr.ID, "error", err)
		return ""
	}
	if len(ids) == 0 {
		return ""
	}
	items, err := e.api.WorkItems(ctx, ids)
	if err != nil {
		slog.Debug("Failed to load work items", "component", "dashboard", "pr", pr.ID, "error", err)
		return ""
	}
	return MostSevere(items)
}

// MostSevere returns the highest severity among bugs. Severities look like "2 - High";
// a lower leading number is more severe and unranked values lose to ranked ones.
func MostSevere(items []types.WorkItem) string {
	best, bestRank := "", 0
	for _, it := range items {
		if !strings.EqualFold(it.Type, "Bug") || it.Severity == "" {
			continue
		}
		rank := severityRank(it.Severity)
		if best == "" || rank < bestRank {
			best, bestRank = it.Severity, rank
		}
	}
	return best
}

func severityRank(s string) int {
	head, _, _ := strings.Cut(s, " ")
	n, err := strconv.Atoi(head)
	if err != nil || n <= 0 {
		return 1 << 30
	}
	return n
}

// reviewerNotes describes reviewers who are away or who are listed in the employee directory.
func (e *Enhancer) reviewerNotes(ctx context.Context, pr *types.PullRequest) []string {
	var notes []string
	for _, r := range pr.Reviewers {
		email := r.UniqueName
		if email == "" || !strings.Contains(email, "@") || r.Matches(e.me) {
			continue
		}
		name := r.DisplayName
		if name == "" {
			name = email
		}

		var parts []string
		if abs, ok, err := e.dir.OutOfOffice(ctx, email); err != nil {
			if !errors.Is(err, directory.ErrFeedDisabled) {
				slog.Debug("Out-of-office lookup failed", "component", "dashboard", "email", email, "error", err)
			}
		} else if ok {
			parts = append(parts, "out of office until "+abs.End.Format("Jan 2"))
		}

		if emp, ok, err := e.dir.Employee(ctx, email); err != nil {
			if !errors.Is(err, directory.ErrFeedDisabled) {
				slog.Debug("Employee lookup failed", "component", "dashboard", "email", email, "error", err)
			}
		} else if ok {
			if emp.Country != "" {
				parts = append(parts, emp.Country)
			}
			if emp.EmploymentType != "" {
				parts = append(parts, emp.EmploymentType)
			}
		}

		if len(parts) > 0 {
			notes = append(notes, name+": "+strings.Join(parts, ", "))
		}
	}
	return notes
}

// Handler adapts the enhancer to a watcher, running each batch inside boundary.
func (e *Enhancer) Handler(boundary *Boundary) watch.Handler {
	return func(ctx context.Context, batch []watch.Candidate) {
		if err := boundary.Run("sort", func() error { return e.HandleBatch(ctx, batch) }); err != nil {
			slog.Debug("Batch finished with errors", "component", "dashboard", "candidates", len(batch))
		}
	}
}
