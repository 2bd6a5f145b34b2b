package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strconv"
	"strings"

	"github.com/codeGROOVE-dev/review-dashboard/pkg/azdo"
	"github.com/codeGROOVE-dev/review-dashboard/pkg/cache"
	"github.com/codeGROOVE-dev/review-dashboard/pkg/config"
	"github.com/codeGROOVE-dev/review-dashboard/pkg/dashboard"
	"github.com/codeGROOVE-dev/review-dashboard/pkg/directory"
	"github.com/codeGROOVE-dev/review-dashboard/pkg/filetree"
	"github.com/codeGROOVE-dev/review-dashboard/pkg/page"
	"github.com/codeGROOVE-dev/review-dashboard/pkg/prefs"
	"github.com/codeGROOVE-dev/review-dashboard/pkg/session"
	"github.com/codeGROOVE-dev/review-dashboard/pkg/types"
	"github.com/codeGROOVE-dev/review-dashboard/pkg/watch"
)

const (
	cacheBucket = "v1/"
	listTop     = 200
)

// app holds everything the commands share.
type app struct {
	cfg     *config.Config
	client  *azdo.Client
	disk    *cache.DiskCache
	prefs   *prefs.Store
	dir     *directory.Client
	session session.Context
}

func newApp(ctx context.Context, opts *options) (*app, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}
	if opts.orgURL != "" {
		cfg.AzDO.OrgURL = opts.orgURL
	}
	if cfg.AzDO.OrgURL == "" {
		return nil, errors.New("no organization: pass --org or set AZDO_ORG_URL")
	}
	creds := cfg.AzDO.Credentials()
	if err := creds.Validate(); err != nil {
		return nil, err
	}

	client, err := azdo.New(azdo.Config{
		BaseURL:     cfg.AzDO.OrgURL,
		Credentials: creds,
		Timeout:     cfg.AzDO.Timeout,
		Attempts:    cfg.AzDO.Attempts,
	})
	if err != nil {
		return nil, fmt.Errorf("creating Azure DevOps client: %w", err)
	}

	sess, err := session.Build(ctx,
		session.TokenReader{Token: cfg.AzDO.Token},
		session.ConnectionReader{Client: client},
		session.Static{APIBase: client.BaseURL()},
	)
	if err != nil {
		return nil, fmt.Errorf("identifying the current user: %w", err)
	}

	disk, err := cache.NewDiskCache(cacheBucket, cfg.CacheDir)
	if err != nil {
		return nil, fmt.Errorf("opening cache: %w", err)
	}

	a := &app{
		cfg:     cfg,
		client:  client,
		disk:    disk,
		prefs:   prefs.New(disk.Namespace("prefs")),
		session: sess,
		dir: directory.New(directory.Config{
			Employees:    disk.Namespace("directory"),
			Absences:     disk.Namespace("ooo"),
			EmployeesURL: cfg.Directory.EmployeesURL,
			AbsencesURL:  cfg.Directory.AbsencesURL,
		}),
	}
	slog.Debug("Session ready", "user", sess.User.UniqueName, "api", sess.APIBase)
	return a, nil
}

func (a *app) Close() {
	a.disk.Close()
}

func (a *app) enhancer(doc *page.Document) (*dashboard.Enhancer, error) {
	return dashboard.New(dashboard.Config{
		API:         a.client,
		Document:    doc,
		Annotator:   dashboard.NewAnnotator(doc, a.prefs),
		Directory:   a.dir,
		Me:          a.session.User,
		Thresholds:  a.cfg.Notable,
		Concurrency: a.cfg.Watch.Concurrency,
	})
}

func (a *app) files() *filetree.Enhancer {
	return filetree.New(filetree.Config{
		API:          a.client,
		Prefs:        a.prefs,
		Taxonomy:     a.cfg.Taxonomy.Review(),
		Me:           a.session.User,
		SyncProperty: a.cfg.SyncReviewed,
	})
}

func (a *app) boundary(w io.Writer) *dashboard.Boundary {
	return dashboard.NewBoundary(dashboard.WriterNotifier{W: w}, a.cfg.SupportURL)
}

// loadLists renders both dashboard lists the way the web UI would and returns the
// pull requests it saw.
func (a *app) loadLists(ctx context.Context, doc *page.Document) ([]*types.PullRequest, error) {
	me := a.session.User.ID
	if me == "" {
		return nil, errors.New("the current user has no id; listing pull requests needs one")
	}

	assigned, err := a.client.ListPullRequests(ctx, azdo.SearchCriteria{ReviewerID: me, Top: listTop})
	if err != nil {
		return nil, fmt.Errorf("listing pull requests assigned to you: %w", err)
	}
	created, err := a.client.ListPullRequests(ctx, azdo.SearchCriteria{CreatorID: me, Top: listTop})
	if err != nil {
		return nil, fmt.Errorf("listing pull requests created by you: %w", err)
	}

	doc.Render(types.ContextAssignedToMe, a.items(assigned))
	doc.Render(types.ContextCreatedByMe, a.items(created))
	return append(assigned, created...), nil
}

func (a *app) items(prs []*types.PullRequest) []page.Item {
	items := make([]page.Item, 0, len(prs))
	for _, pr := range prs {
		items = append(items, page.Item{Href: a.webURL(pr), Title: pr.Title})
	}
	return items
}

// webURL is the browser link of pr.
func (a *app) webURL(pr *types.PullRequest) string {
	repo := pr.Repository.Name
	if repo == "" {
		repo = pr.Repository.ID
	}
	base := a.client.BaseURL()
	if a.cfg.AzDO.Project != "" {
		base += "/" + url.PathEscape(a.cfg.AzDO.Project)
	}
	return fmt.Sprintf("%s/_git/%s/pullrequest/%d", base, url.PathEscape(repo), pr.ID)
}

// reviewState fingerprints what classification depends on, so a poll can tell a pull request changed.
func reviewState(pr *types.PullRequest) string {
	var b strings.Builder
	b.WriteString(strconv.FormatBool(pr.Draft))
	if pr.LastMergeSourceCommit != nil {
		b.WriteString("|" + pr.LastMergeSourceCommit.CommitID)
	}
	for _, r := range pr.Reviewers {
		fmt.Fprintf(&b, "|%s=%d", r.ID, r.Vote)
	}
	return b.String()
}

// pollCandidates re-renders the lists and reports pull requests whose review state changed since
// the previous poll. New rows are picked up from the document itself.
func (a *app) pollCandidates(doc *page.Document) func(ctx context.Context) ([]watch.Candidate, error) {
	seen := make(map[int]string)
	return func(ctx context.Context) ([]watch.Candidate, error) {
		prs, err := a.loadLists(ctx, doc)
		if err != nil {
			return nil, err
		}
		var out []watch.Candidate
		for _, pr := range prs {
			state := reviewState(pr)
			if prev, ok := seen[pr.ID]; ok && prev != state {
				out = append(out, watch.Candidate{Key: watch.PullRequestKey(pr.ID), State: state})
			}
			seen[pr.ID] = state
		}
		return out, nil
	}
}

func parsePRArg(s string) (int, error) {
	s = strings.TrimPrefix(s, "!")
	if id, err := strconv.Atoi(s); err == nil && id > 0 {
		return id, nil
	}
	if id, err := page.ParsePRID(s); err == nil {
		return id, nil
	}
	return 0, fmt.Errorf("%q is neither a pull request id nor a pull request link", s)
}
