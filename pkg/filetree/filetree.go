// Package filetree decorates a pull request's changed files for the current user:
// their owners role, a reviewed checkbox remembered per iteration, and a filter
// that hides files the user is not asked to review.
package filetree

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/codeGROOVE-dev/review-dashboard/pkg/azdo"
	"github.com/codeGROOVE-dev/review-dashboard/pkg/prefs"
	"github.com/codeGROOVE-dev/review-dashboard/pkg/review"
	"github.com/codeGROOVE-dev/review-dashboard/pkg/types"
)

// syncPropertyPrefix names the pull request property mirroring a user's checkboxes.
const syncPropertyPrefix = "ReviewDashboard.ReviewedFiles."

// Config configures an Enhancer.
type Config struct {
	API      azdo.API
	Prefs    *prefs.Store
	Memo     *Memo
	Taxonomy review.Taxonomy
	Me       types.Identity

	// SyncProperty mirrors checkbox state into a pull request property so it follows the user.
	SyncProperty bool
}

// Enhancer builds file views and records checkbox toggles.
type Enhancer struct {
	api      azdo.API
	prefs    *prefs.Store
	memo     *Memo
	taxonomy review.Taxonomy
	me       types.Identity
	sync     bool
}

// New creates an Enhancer.
func New(cfg Config) *Enhancer {
	memo := cfg.Memo
	if memo == nil {
		memo = NewMemo(cfg.API)
	}
	return &Enhancer{
		api:      cfg.API,
		prefs:    cfg.Prefs,
		memo:     memo,
		taxonomy: cfg.Taxonomy,
		me:       cfg.Me,
		sync:     cfg.SyncProperty,
	}
}

// File is one entry of the changed-files tree.
type File struct {
	Path       string
	Role       review.Role
	Label      string // role label, empty when the user has no role
	ReviewedIn int    // iteration the file was checked in, 0 if unchecked
	Folder     bool
	Reviewed   bool
	ToReview   bool
}

// View is the decorated file tree of one pull request.
type View struct {
	PR        *types.PullRequest
	Owners    *review.OwnersInfo
	Files     []File
	Iteration int
}

// CanFilter reports whether the "hide files not to review" toggle applies.
func (v *View) CanFilter() bool {
	return v.Owners != nil && v.Owners.FileCount > 0
}

// Visible returns the files shown with the filter on or off.
func (v *View) Visible(hideNotToReview bool) []File {
	if !hideNotToReview || !v.CanFilter() {
		return v.Files
	}
	var out []File
	for _, f := range v.Files {
		if f.ToReview {
			out = append(out, f)
		}
	}
	return out
}

// View fetches everything needed to render prID's file tree.
func (e *Enhancer) View(ctx context.Context, prID int) (*View, error) {
	pr, err := e.memo.Get(ctx, prID)
	if err != nil {
		return nil, fmt.Errorf("fetching pull request %d: %w", prID, err)
	}

	iterations, err := e.api.Iterations(ctx, pr)
	if err != nil {
		return nil, fmt.Errorf("fetching iterations of pull request %d: %w", prID, err)
	}

	owners, err := e.owners(ctx, pr)
	if err != nil {
		// Files are still useful without roles.
		slog.Warn("Unable to resolve owners", "component", "filetree", "pr", prID, "error", err)
	}

	var changes []types.Change
	if pr.LastMergeCommit != nil {
		changes, err = e.api.MergeCommitChanges(ctx, pr.LastMergeCommit)
		if err != nil {
			return nil, fmt.Errorf("fetching changes of pull request %d: %w", prID, err)
		}
	}

	reviewed := e.reviewed(ctx, pr)

	v := &View{PR: pr, Owners: owners, Iteration: len(iterations)}
	for _, c := range changes {
		f := File{Path: c.Item.Path, Folder: c.Item.IsFolder}
		if f.Folder {
			f.ToReview = owners.ResponsibleForFolder(ownersPath(f.Path))
		} else {
			f.Role = owners.Role(ownersPath(f.Path))
			f.ToReview = f.Role != ""
			f.ReviewedIn = reviewed[f.Path]
			f.Reviewed = f.ReviewedIn > 0
		}
		if f.Role != "" {
			f.Label = e.taxonomy.Label(f.Role)
		}
		v.Files = append(v.Files, f)
	}
	sort.Slice(v.Files, func(i, j int) bool { return v.Files[i].Path < v.Files[j].Path })
	return v, nil
}

// Toggle checks or unchecks path, recording the pull request's current iteration.
func (e *Enhancer) Toggle(ctx context.Context, prID int, path string, checked bool) (prefs.ReviewedFiles, error) {
	pr, err := e.memo.Get(ctx, prID)
	if err != nil {
		return nil, fmt.Errorf("fetching pull request %d: %w", prID, err)
	}
	iterations, err := e.api.Iterations(ctx, pr)
	if err != nil {
		return nil, fmt.Errorf("fetching iterations of pull request %d: %w", prID, err)
	}

	files, err := e.prefs.MarkReviewed(prID, path, len(iterations), checked)
	if err != nil {
		return nil, err
	}

	if e.sync {
		if err := e.push(ctx, pr, files); err != nil {
			// Local state is authoritative; the mirror catches up on the next toggle.
			slog.Warn("Unable to sync reviewed files", "component", "filetree", "pr", prID, "error", err)
		}
	}
	return files, nil
}

func (e *Enhancer) owners(ctx context.Context, pr *types.PullRequest) (*review.OwnersInfo, error) {
	blob, ok, err := e.api.Property(ctx, pr, review.OwnersProperty)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return review.ResolveOwners(blob, e.me)
}

// reviewed returns local checkbox state, seeding it from the synced property when empty.
func (e *Enhancer) reviewed(ctx context.Context, pr *types.PullRequest) prefs.ReviewedFiles {
	files := e.prefs.Reviewed(pr.ID)
	if !e.sync || len(files) > 0 {
		return files
	}

	raw, ok, err := e.api.Property(ctx, pr, e.syncProperty())
	if err != nil || !ok {
		if err != nil {
			slog.Debug("Unable to read synced reviewed files", "component", "filetree", "pr", pr.ID, "error", err)
		}
		return files
	}
	var remote prefs.ReviewedFiles
	if err := json.Unmarshal([]byte(raw), &remote); err != nil {
		slog.Warn("Ignoring malformed synced reviewed files", "component", "filetree", "pr", pr.ID, "error", err)
		return files
	}
	if err := e.prefs.ReplaceReviewed(pr.ID, remote); err != nil {
		slog.Warn("Unable to store synced reviewed files", "component", "filetree", "pr", pr.ID, "error", err)
	}
	return remote
}

func (e *Enhancer) push(ctx context.Context, pr *types.PullRequest, files prefs.ReviewedFiles) error {
	if len(files) == 0 {
		return e.api.RemoveProperty(ctx, pr, e.syncProperty())
	}
	raw, err := json.Marshal(files)
	if err != nil {
		return err
	}
	return e.api.SetProperty(ctx, pr, e.syncProperty(), string(raw))
}

func (e *Enhancer) syncProperty() string {
	id := e.me.ID
	if id == "" {
		id = e.me.UniqueName
	}
	return syncPropertyPrefix + id
}

// ownersPath converts a tree path to the form used by the owners data, which has no leading slash.
func ownersPath(p string) string {
	return strings.TrimPrefix(p, "/")
}
