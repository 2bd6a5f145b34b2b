package dashboard

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeGROOVE-dev/review-dashboard/pkg/directory"
	"github.com/codeGROOVE-dev/review-dashboard/pkg/internal/testutil"
	"github.com/codeGROOVE-dev/review-dashboard/pkg/page"
	"github.com/codeGROOVE-dev/review-dashboard/pkg/prefs"
	"github.com/codeGROOVE-dev/review-dashboard/pkg/review"
	"github.com/codeGROOVE-dev/review-dashboard/pkg/types"
	"github.com/codeGROOVE-dev/review-dashboard/pkg/watch"
)

var (
	me    = types.Identity{ID: "me-id", DisplayName: "Me", UniqueName: "me@example.com"}
	alice = types.Identity{ID: "alice-id", DisplayName: "Alice", UniqueName: "alice@example.com"}
	bob   = types.Identity{ID: "bob-id", DisplayName: "Bob", UniqueName: "bob@example.com"}
)

func href(id int) string {
	return fmt.Sprintf("https://dev.azure.com/org/proj/_git/repo/pullrequest/%d", id)
}

type fixture struct {
	api   *testutil.MockAzDOClient
	doc   *page.Document
	prefs *prefs.Store
	e     *Enhancer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	api := testutil.NewMockAzDOClient()
	doc := page.NewDocument()
	store := prefs.New(testutil.NewMockCache())
	e, err := New(Config{
		API:        api,
		Document:   doc,
		Annotator:  NewAnnotator(doc, store),
		Me:         me,
		Thresholds: review.DefaultThresholds(),
	})
	require.NoError(t, err)
	return &fixture{api: api, doc: doc, prefs: store, e: e}
}

func (f *fixture) row(t *testing.T, listCtx types.ListContext, slot int) *page.Row {
	t.Helper()
	r, ok := f.doc.Row(page.RowKey(listCtx, slot))
	require.True(t, ok)
	return r
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Config{Document: page.NewDocument(), Me: me})
	require.Error(t, err)
	_, err = New(Config{API: testutil.NewMockAzDOClient(), Document: page.NewDocument()})
	require.Error(t, err)
}

func TestProcess_Sections(t *testing.T) {
	f := newFixture(t)
	f.api.SetPullRequest(&types.PullRequest{ID: 1, Reviewers: []types.Reviewer{{Identity: me}}})
	f.api.SetPullRequest(&types.PullRequest{ID: 2, Reviewers: []types.Reviewer{{Identity: me, Vote: types.VoteApproved}}})
	f.api.SetPullRequest(&types.PullRequest{ID: 3, Reviewers: []types.Reviewer{{Identity: me}, {Identity: alice, Vote: types.VoteRejected}}})
	f.api.SetPullRequest(&types.PullRequest{ID: 4, Draft: true})

	f.doc.Render(types.ContextAssignedToMe, []page.Item{{Href: href(1)}, {Href: href(2)}, {Href: href(3)}})
	f.doc.Render(types.ContextCreatedByMe, []page.Item{{Href: href(4)}})

	require.NoError(t, f.e.ProcessAll(context.Background()))

	assert.Equal(t, types.SectionBlocking, f.row(t, types.ContextAssignedToMe, 0).Section())
	assert.Equal(t, types.SectionApproved, f.row(t, types.ContextAssignedToMe, 1).Section())
	assert.Equal(t, types.SectionBlockedByOthers, f.row(t, types.ContextAssignedToMe, 2).Section())
	assert.Equal(t, types.SectionCreatedByMeDraft, f.row(t, types.ContextCreatedByMe, 0).Section())

	for _, lc := range []types.ListContext{types.ContextAssignedToMe, types.ContextCreatedByMe} {
		for _, r := range f.doc.Rows(lc) {
			assert.False(t, r.Hidden(), "row %s left hidden", r.Key())
		}
	}
	assert.Equal(t, 1, f.doc.Count(types.SectionBlocking))
}

func TestProcess_Idempotent(t *testing.T) {
	f := newFixture(t)
	f.api.SetPullRequest(&types.PullRequest{
		ID:              1,
		Reviewers:       []types.Reviewer{{Identity: me}},
		LastMergeCommit: &types.CommitRef{CommitID: "m1"},
	})
	f.api.SetChanges("m1", []types.Change{{Item: types.ChangedItem{Path: "/a.go"}}, {Item: types.ChangedItem{Path: "/b.go"}}})
	f.doc.Render(types.ContextAssignedToMe, []page.Item{{Href: href(1)}})
	r := f.row(t, types.ContextAssignedToMe, 0)

	ctx := context.Background()
	require.NoError(t, f.e.Process(ctx, r, false))
	first := r.Annotations()

	for range 3 {
		f.doc.Touch(r)
		require.NoError(t, f.e.Process(ctx, r, false))
	}

	assert.Equal(t, first, r.Annotations())
	assert.Equal(t, 1, f.api.CallCount("PullRequest", 1), "an already sorted row is not fetched again")
	a, ok := r.Annotation(page.KindFileCount)
	require.True(t, ok)
	assert.Equal(t, "2 files", a.Text)
}

func TestProcess_ForceReevaluates(t *testing.T) {
	f := newFixture(t)
	f.api.SetPullRequest(&types.PullRequest{
		ID:                    1,
		Reviewers:             []types.Reviewer{{Identity: me}},
		LastMergeCommit:       &types.CommitRef{CommitID: "m1"},
		LastMergeSourceCommit: &types.CommitRef{CommitID: "s1"},
	})
	f.api.SetChanges("m1", []types.Change{{Item: types.ChangedItem{Path: "/a.go"}}})
	f.api.SetStatuses("s1", []types.CommitStatus{{ID: 1, State: types.StatusFailed, Context: types.StatusContext{Name: "ci"}}})
	f.doc.Render(types.ContextAssignedToMe, []page.Item{{Href: href(1)}})
	r := f.row(t, types.ContextAssignedToMe, 0)

	ctx := context.Background()
	require.NoError(t, f.e.Process(ctx, r, false))
	assert.Equal(t, types.SectionBlocking, r.Section())
	_, ok := r.Annotation(page.KindFileCount)
	require.True(t, ok)
	_, ok = r.Annotation(page.KindBuild)
	require.True(t, ok)

	f.api.SetPullRequest(&types.PullRequest{
		ID:              1,
		Reviewers:       []types.Reviewer{{Identity: me, Vote: types.VoteWaitingOnAuthor}},
		LastMergeCommit: &types.CommitRef{CommitID: "m1"},
	})
	require.NoError(t, f.e.HandleBatch(ctx, []watch.Candidate{{Key: watch.PullRequestKey(1), State: "1"}}))

	assert.Equal(t, types.SectionWaitingOnAuthor, r.Section())
	assert.Equal(t, 1, f.doc.Count(types.SectionWaitingOnAuthor))
	assert.Equal(t, 0, f.doc.Count(types.SectionBlocking))

	_, ok = r.Annotation(page.KindFileCount)
	assert.False(t, ok, "completed rows carry no file count")
	_, ok = r.Annotation(page.KindBuild)
	assert.False(t, ok, "build badge of an unknown build is removed")
	a, ok := r.Annotation(page.KindSection)
	require.True(t, ok)
	assert.Equal(t, types.SectionWaitingOnAuthor.Title(), a.Text)
}

func TestProcess_ForceApprovedDropsFileCount(t *testing.T) {
	f := newFixture(t)
	f.api.SetPullRequest(&types.PullRequest{
		ID:              1,
		Reviewers:       []types.Reviewer{{Identity: me}},
		LastMergeCommit: &types.CommitRef{CommitID: "m1"},
	})
	f.api.SetChanges("m1", []types.Change{{Item: types.ChangedItem{Path: "/a.go"}}})
	f.doc.Render(types.ContextAssignedToMe, []page.Item{{Href: href(1)}})
	r := f.row(t, types.ContextAssignedToMe, 0)

	ctx := context.Background()
	require.NoError(t, f.e.Process(ctx, r, false))
	a, ok := r.Annotation(page.KindFileCount)
	require.True(t, ok)
	assert.Equal(t, "1 file", a.Text)

	f.api.SetPullRequest(&types.PullRequest{
		ID:              1,
		Reviewers:       []types.Reviewer{{Identity: me, Vote: types.VoteApproved}},
		LastMergeCommit: &types.CommitRef{CommitID: "m1"},
	})
	require.NoError(t, f.e.Process(ctx, r, true))

	assert.Equal(t, types.SectionApproved, r.Section())
	_, ok = r.Annotation(page.KindFileCount)
	assert.False(t, ok)
	for _, a := range r.Annotations() {
		assert.NotEqual(t, page.KindFileCount, a.Kind)
	}
}

func TestProcess_IdentityChange(t *testing.T) {
	f := newFixture(t)
	f.api.SetPullRequest(&types.PullRequest{
		ID:                    1,
		Reviewers:             []types.Reviewer{{Identity: me}},
		LastMergeSourceCommit: &types.CommitRef{CommitID: "s1"},
	})
	f.api.SetStatuses("s1", []types.CommitStatus{{ID: 1, State: types.StatusFailed, Context: types.StatusContext{Name: "ci"}}})
	f.api.SetPullRequest(&types.PullRequest{ID: 2, Reviewers: []types.Reviewer{{Identity: me, Vote: types.VoteApproved}}})

	f.doc.Render(types.ContextAssignedToMe, []page.Item{{Href: href(1)}})
	r := f.row(t, types.ContextAssignedToMe, 0)
	ctx := context.Background()
	require.NoError(t, f.e.Process(ctx, r, false))
	_, ok := r.Annotation(page.KindBuild)
	require.True(t, ok)
	assert.Equal(t, types.SectionBlocking, r.Section())

	f.doc.Render(types.ContextAssignedToMe, []page.Item{{Href: href(2)}})
	require.NoError(t, f.e.Process(ctx, r, false))

	assert.Equal(t, 2, r.Marker())
	assert.Equal(t, types.SectionApproved, r.Section())
	for _, a := range r.Annotations() {
		assert.Equal(t, 2, a.PRID, "annotation %s left over from the previous pull request", a.Kind)
	}
	_, ok = r.Annotation(page.KindBuild)
	assert.False(t, ok, "build badge of the old pull request was not removed")
	assert.Equal(t, 0, f.doc.Count(types.SectionBlocking))
}

func TestProcess_StaleResultDropped(t *testing.T) {
	f := newFixture(t)
	f.api.SetPullRequest(&types.PullRequest{ID: 1, Reviewers: []types.Reviewer{{Identity: me}}})
	f.api.SetPullRequest(&types.PullRequest{ID: 2, Reviewers: []types.Reviewer{{Identity: me}}})
	f.doc.Render(types.ContextAssignedToMe, []page.Item{{Href: href(1)}})
	r := f.row(t, types.ContextAssignedToMe, 0)

	var once sync.Once
	f.api.OnCall(func(method string, id int) {
		if method == "PullRequest" && id == 1 {
			once.Do(func() {
				f.doc.Render(types.ContextAssignedToMe, []page.Item{{Href: href(2)}})
			})
		}
	})

	require.NoError(t, f.e.Process(context.Background(), r, false))
	assert.Equal(t, types.SectionNone, r.Section())
	assert.Empty(t, r.Annotations())
	assert.False(t, r.Hidden())

	require.NoError(t, f.e.Process(context.Background(), r, false))
	assert.Equal(t, types.SectionBlocking, r.Section())
	assert.Equal(t, 2, r.Marker())
}

func TestProcess_FetchFailureLeavesRowVisible(t *testing.T) {
	f := newFixture(t)
	f.api.SetError("PullRequest", 1, errors.New("boom"))
	f.doc.Render(types.ContextAssignedToMe, []page.Item{{Href: href(1)}})
	r := f.row(t, types.ContextAssignedToMe, 0)

	require.NoError(t, f.e.Process(context.Background(), r, false))
	assert.False(t, r.Hidden())
	assert.Equal(t, types.SectionNone, r.Section())
}

func TestProcess_ThreadFailureLeavesRowUnsorted(t *testing.T) {
	f := newFixture(t)
	f.api.SetPullRequest(&types.PullRequest{ID: 1, Reviewers: []types.Reviewer{{Identity: me, Vote: types.VoteApproved}}})
	f.api.SetError("Threads", 1, errors.New("boom"))
	f.doc.Render(types.ContextAssignedToMe, []page.Item{{Href: href(1)}})
	r := f.row(t, types.ContextAssignedToMe, 0)

	require.NoError(t, f.e.Process(context.Background(), r, false))
	assert.Equal(t, types.SectionNone, r.Section())
}

func TestProcess_UnexpectedShape(t *testing.T) {
	f := newFixture(t)
	f.doc.Render(types.ContextAssignedToMe, []page.Item{{Href: "https://dev.azure.com/org/proj/_git/repo"}})
	r := f.row(t, types.ContextAssignedToMe, 0)

	err := f.e.Process(context.Background(), r, false)
	require.ErrorIs(t, err, page.ErrUnexpectedShape)
}

func TestProcess_OwnersFileCount(t *testing.T) {
	f := newFixture(t)
	f.api.SetPullRequest(&types.PullRequest{ID: 1, Reviewers: []types.Reviewer{{Identity: me}, {Identity: alice}}})
	f.api.SetPropertyValue(1, review.OwnersProperty, `{"version": 4,
		"fileProperties": [
			{"Path": "a.go", "Owner": 1, "Alternate": 0, "Reviewers": []},
			{"Path": "b.go", "Owner": 2, "Alternate": 0, "Reviewers": []}
		],
		"reviewerIdentities": [{"email": "me@example.com"}, {"email": "alice@example.com"}]}`)
	f.doc.Render(types.ContextAssignedToMe, []page.Item{{Href: href(1)}})
	r := f.row(t, types.ContextAssignedToMe, 0)

	require.NoError(t, f.e.Process(context.Background(), r, false))
	assert.Equal(t, types.SectionPending, r.Section())
	a, ok := r.Annotation(page.KindFileCount)
	require.True(t, ok)
	assert.Equal(t, "1 file", a.Text)
	assert.Equal(t, 0, f.api.CallCount("MergeCommitChanges", 0))
}

func TestProcess_NoFileCountForCompletedSections(t *testing.T) {
	f := newFixture(t)
	f.api.SetPullRequest(&types.PullRequest{
		ID:              1,
		Reviewers:       []types.Reviewer{{Identity: me, Vote: types.VoteRejected}},
		LastMergeCommit: &types.CommitRef{CommitID: "m1"},
	})
	f.doc.Render(types.ContextAssignedToMe, []page.Item{{Href: href(1)}})
	r := f.row(t, types.ContextAssignedToMe, 0)

	require.NoError(t, f.e.Process(context.Background(), r, false))
	assert.Equal(t, types.SectionRejected, r.Section())
	_, ok := r.Annotation(page.KindFileCount)
	assert.False(t, ok)
	assert.Equal(t, 0, f.api.CallCount("Property", 1))
}

func TestProcess_BugSeverity(t *testing.T) {
	f := newFixture(t)
	f.api.SetPullRequest(&types.PullRequest{ID: 1, Reviewers: []types.Reviewer{{Identity: me}}})
	f.api.SetWorkItems(1,
		types.WorkItem{ID: 7, Type: "Bug", Severity: "3 - Medium"},
		types.WorkItem{ID: 8, Type: "Bug", Severity: "2 - High"},
		types.WorkItem{ID: 9, Type: "Task", Severity: "1 - Critical"},
	)
	f.doc.Render(types.ContextAssignedToMe, []page.Item{{Href: href(1)}})
	r := f.row(t, types.ContextAssignedToMe, 0)

	require.NoError(t, f.e.Process(context.Background(), r, false))
	a, ok := r.Annotation(page.KindBugSeverity)
	require.True(t, ok)
	assert.Equal(t, "2 - High", a.Text)
}

func TestMostSevere(t *testing.T) {
	assert.Empty(t, MostSevere(nil))
	assert.Equal(t, "1 - Critical", MostSevere([]types.WorkItem{
		{Type: "Bug", Severity: "Unknown"},
		{Type: "bug", Severity: "1 - Critical"},
		{Type: "Bug", Severity: "4 - Low"},
	}))
	assert.Equal(t, "Unknown", MostSevere([]types.WorkItem{{Type: "Bug", Severity: "Unknown"}}))
}

func TestProcess_ReviewerNotes(t *testing.T) {
	f := newFixture(t)
	http := testutil.NewMockHTTPDoer()
	http.SetResponse("GET", "https://feeds.example.com/employees.json", 200, []types.Employee{
		{Email: "alice@example.com", Country: "DE", EmploymentType: "Contractor"},
	})
	http.SetResponse("GET", "https://feeds.example.com/ooo.json", 200, []types.Absence{
		{Email: "BOB@example.com", Start: time.Now().Add(-time.Hour), End: time.Now().Add(48 * time.Hour)},
	})
	f.e.dir = directory.New(directory.Config{
		HTTPClient:   http,
		Employees:    testutil.NewMockCache(),
		Absences:     testutil.NewMockCache(),
		EmployeesURL: "https://feeds.example.com/employees.json",
		AbsencesURL:  "https://feeds.example.com/ooo.json",
	})

	f.api.SetPullRequest(&types.PullRequest{ID: 1, Reviewers: []types.Reviewer{{Identity: me}, {Identity: alice}, {Identity: bob}}})
	f.doc.Render(types.ContextAssignedToMe, []page.Item{{Href: href(1)}})
	r := f.row(t, types.ContextAssignedToMe, 0)

	require.NoError(t, f.e.Process(context.Background(), r, false))
	a, ok := r.Annotation(page.KindReviewerInfo)
	require.True(t, ok)
	assert.Contains(t, a.Text, "Alice: DE, Contractor")
	assert.Contains(t, a.Text, "Bob: out of office until")
	assert.NotContains(t, a.Text, "Me")
}

func TestHandleBatch_SkipsRemovedAndUnknown(t *testing.T) {
	f := newFixture(t)
	f.api.SetPullRequest(&types.PullRequest{ID: 1, Reviewers: []types.Reviewer{{Identity: me}}})
	f.doc.Render(types.ContextAssignedToMe, []page.Item{{Href: href(1)}})

	err := f.e.HandleBatch(context.Background(), []watch.Candidate{
		{Key: page.RowKey(types.ContextAssignedToMe, 0), State: watch.RemovedState},
		{Key: page.RowKey(types.ContextAssignedToMe, 5), State: href(9)},
		{Key: watch.PullRequestKey(42), State: "1"},
	})
	require.NoError(t, err)
	assert.Equal(t, 0, f.api.CallCount("PullRequest", 1))
}

func TestHandleBatch_CollectsShapeErrors(t *testing.T) {
	f := newFixture(t)
	f.api.SetPullRequest(&types.PullRequest{ID: 1, Reviewers: []types.Reviewer{{Identity: me}}})
	f.doc.Render(types.ContextAssignedToMe, []page.Item{{Href: "/nope"}, {Href: href(1)}})

	err := f.e.ProcessAll(context.Background())
	require.ErrorIs(t, err, page.ErrUnexpectedShape)
	assert.Equal(t, types.SectionBlocking, f.row(t, types.ContextAssignedToMe, 1).Section(), "one bad row does not stop the others")
}

func TestSectionOpenState(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.prefs.SetSectionOpen(types.SectionBlocking, true))
	f.api.SetPullRequest(&types.PullRequest{ID: 1, Reviewers: []types.Reviewer{{Identity: me}}})
	f.doc.Render(types.ContextAssignedToMe, []page.Item{{Href: href(1)}})

	require.NoError(t, f.e.ProcessAll(context.Background()))
	for _, s := range f.doc.Sections() {
		if s.ID == types.SectionBlocking {
			assert.True(t, s.Open)
		}
	}

	require.NoError(t, f.e.annotator.ToggleSection(types.SectionBlocking, false))
	assert.False(t, f.prefs.SectionOpen(types.SectionBlocking))
}

type recordingNotifier struct {
	notices []Notice
}

func (r *recordingNotifier) Notify(n Notice) { r.notices = append(r.notices, n) }

func TestBoundary(t *testing.T) {
	n := &recordingNotifier{}
	b := NewBoundary(n, "https://example.com/issues")

	require.NoError(t, b.Run("sort", func() error { return nil }))
	assert.Empty(t, n.notices)

	err := b.Run("sort", func() error { return fmt.Errorf("row x: %w", page.ErrUnexpectedShape) })
	require.ErrorIs(t, err, page.ErrUnexpectedShape)
	require.Len(t, n.notices, 1)
	assert.Contains(t, n.notices[0].Message, "looks different")
	assert.Equal(t, "https://example.com/issues", n.notices[0].SupportURL)

	err = b.Run("sort", func() error { panic("kaboom") })
	require.Error(t, err)
	require.Len(t, n.notices, 2)
	assert.Contains(t, n.notices[1].Details, "kaboom")
	assert.Contains(t, n.notices[1].Details, "goroutine")
}

func TestWriterNotifier(t *testing.T) {
	var b strings.Builder
	WriterNotifier{W: &b}.Notify(Notice{Message: "Oops", Details: "error: x\n", SupportURL: "https://example.com"})
	out := b.String()
	assert.Contains(t, out, "Oops")
	assert.Contains(t, out, "https://example.com")
	assert.Contains(t, out, "error: x")
}

func TestHandler_ReportsThroughBoundary(t *testing.T) {
	f := newFixture(t)
	f.doc.Render(types.ContextAssignedToMe, []page.Item{{Href: "/nope"}})
	n := &recordingNotifier{}

	h := f.e.Handler(NewBoundary(n, ""))
	h(context.Background(), []watch.Candidate{{Key: page.RowKey(types.ContextAssignedToMe, 0), State: "/nope"}})
	require.Len(t, n.notices, 1)
}
