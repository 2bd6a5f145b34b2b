package azdo

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/codeGROOVE-dev/review-dashboard/pkg/types"
)

func newTestClient(t *testing.T, h http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	c, err := New(Config{
		BaseURL:     srv.URL + "/org/",
		Credentials: Credentials{PAT: "secret"},
		Timeout:     2 * time.Second,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c, srv
}

func TestNew_InvalidBaseURL(t *testing.T) {
	for _, base := range []string{"", "not a url", "/relative/path"} {
		if _, err := New(Config{BaseURL: base}); err == nil {
			t.Errorf("New(%q) expected error", base)
		}
	}
}

func TestNew_Defaults(t *testing.T) {
	c, err := New(Config{BaseURL: "https://dev.azure.com/org/"})
	if err != nil {
		t.Fatal(err)
	}
	if c.timeout != DefaultTimeout {
		t.Errorf("timeout = %v, want %v", c.timeout, DefaultTimeout)
	}
	if c.attempts != defaultAttempts {
		t.Errorf("attempts = %d, want %d", c.attempts, defaultAttempts)
	}
	if c.BaseURL() != "https://dev.azure.com/org" {
		t.Errorf("BaseURL() = %q", c.BaseURL())
	}
}

func TestClient_PullRequest(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/org/_apis/git/pullrequests/42" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("api-version") != apiVersion {
			t.Errorf("missing api-version: %s", r.URL.RawQuery)
		}
		user, pass, ok := r.BasicAuth()
		if !ok || user != "" || pass != "secret" {
			t.Errorf("unexpected auth %q %q %v", user, pass, ok)
		}
		_, _ = io.WriteString(w, `{
			"pullRequestId": 42,
			"isDraft": true,
			"title": "Fix it",
			"createdBy": {"uniqueName": "bob@example.com"},
			"reviewers": [{"uniqueName": "alice@example.com", "vote": -5}],
			"lastMergeCommit": {"commitId": "abc", "url": "https://x/commits/abc"}
		}`)
	}))

	pr, err := c.PullRequest(context.Background(), 42)
	if err != nil {
		t.Fatalf("PullRequest: %v", err)
	}
	if pr.ID != 42 || !pr.Draft || pr.Author.UniqueName != "bob@example.com" {
		t.Errorf("unexpected pr %+v", pr)
	}
	if len(pr.Reviewers) != 1 || pr.Reviewers[0].Vote != types.VoteWaitingOnAuthor {
		t.Errorf("unexpected reviewers %+v", pr.Reviewers)
	}
	if pr.LastMergeCommit == nil || pr.LastMergeCommit.CommitID != "abc" {
		t.Errorf("unexpected merge commit %+v", pr.LastMergeCommit)
	}
}

func TestClient_NotFound(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusNotFound)
	}))

	_, err := c.PullRequest(context.Background(), 1)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	var se *StatusError
	if !errors.As(err, &se) || se.Code != http.StatusNotFound {
		t.Errorf("expected StatusError 404, got %v", err)
	}
}

func TestClient_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = io.WriteString(w, `{"pullRequestId": 7}`)
	}))

	pr, err := c.PullRequest(context.Background(), 7)
	if err != nil {
		t.Fatalf("expected retry to succeed: %v", err)
	}
	if pr.ID != 7 {
		t.Errorf("got id %d", pr.ID)
	}
	if calls.Load() != 2 {
		t.Errorf("expected 2 calls, got %d", calls.Load())
	}
}

func TestClient_DoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))

	if _, err := c.PullRequest(context.Background(), 7); err == nil {
		t.Fatal("expected error")
	}
	if calls.Load() != 1 {
		t.Errorf("expected a single call, got %d", calls.Load())
	}
}

func TestClient_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	c, err := New(Config{BaseURL: srv.URL, Timeout: 100 * time.Millisecond})
	if err != nil {
		t.Fatal(err)
	}

	start := time.Now()
	if _, err := c.PullRequest(context.Background(), 1); err == nil {
		t.Fatal("expected timeout error")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("call took %v, expected to fail fast", elapsed)
	}
}

func TestClient_SameOrigin(t *testing.T) {
	var gotPath string
	c, srv := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_, _ = io.WriteString(w, `{"value": []}`)
	}))

	pr := &types.PullRequest{ID: 3, URL: "https://org.visualstudio.com/p/_apis/git/repositories/r/pullRequests/3"}
	if _, err := c.Threads(context.Background(), pr); err != nil {
		t.Fatalf("Threads: %v (server %s)", err, srv.URL)
	}
	if gotPath != "/p/_apis/git/repositories/r/pullRequests/3/threads" {
		t.Errorf("unexpected path %q", gotPath)
	}
}

func TestClient_ThreadsDecodeProperties(t *testing.T) {
	c, srv := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"value": [{
			"id": 1,
			"properties": {
				"CodeReviewThreadType": {"$type": "System.String", "$value": "VoteUpdate"},
				"CodeReviewVotedByIdentity": {"$type": "System.String", "$value": "1"},
				"CodeReviewVoteResult": {"$type": "System.String", "$value": "-10"}
			},
			"identities": {"1": {"uniqueName": "carol@example.com"}},
			"comments": [{"content": "Carol voted -10", "commentType": "system"}]
		}]}`)
	}))

	threads, err := c.Threads(context.Background(), &types.PullRequest{ID: 1, URL: srv.URL + "/org/_apis/git/repositories/r/pullRequests/1"})
	if err != nil {
		t.Fatal(err)
	}
	if len(threads) != 1 {
		t.Fatalf("expected 1 thread, got %d", len(threads))
	}
	th := threads[0]
	if th.Kind() != types.ThreadKindVoteUpdate {
		t.Errorf("kind = %s", th.Kind())
	}
	voter, ok := th.Voter()
	if !ok || voter.UniqueName != "carol@example.com" {
		t.Errorf("voter = %+v, %v", voter, ok)
	}
	if v, ok := th.VoteResult(); !ok || v != types.VoteRejected {
		t.Errorf("vote = %d, %v", v, ok)
	}
}

func TestClient_SetAndRemoveProperty(t *testing.T) {
	var ops [][]map[string]any
	c, srv := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPatch {
			t.Errorf("method = %s", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json-patch+json" {
			t.Errorf("content type = %q", ct)
		}
		if r.URL.Query().Get("api-version") != propertiesAPIVersion {
			t.Errorf("api-version = %q", r.URL.Query().Get("api-version"))
		}
		var body []map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decoding body: %v", err)
		}
		ops = append(ops, body)
		_, _ = io.WriteString(w, `{}`)
	}))

	pr := &types.PullRequest{ID: 9, URL: srv.URL + "/org/_apis/git/repositories/r/pullRequests/9"}
	ctx := context.Background()
	if err := c.SetProperty(ctx, pr, "Reviewed", `{"a.c":2}`); err != nil {
		t.Fatal(err)
	}
	if err := c.RemoveProperty(ctx, pr, "Reviewed"); err != nil {
		t.Fatal(err)
	}

	if len(ops) != 2 {
		t.Fatalf("expected 2 patches, got %d", len(ops))
	}
	if ops[0][0]["op"] != "add" || ops[0][0]["path"] != "/Reviewed" || ops[0][0]["value"] != `{"a.c":2}` {
		t.Errorf("unexpected add op %+v", ops[0])
	}
	if ops[1][0]["op"] != "remove" || ops[1][0]["path"] != "/Reviewed" {
		t.Errorf("unexpected remove op %+v", ops[1])
	}
	if _, has := ops[1][0]["value"]; has {
		t.Errorf("remove op should not carry a value: %+v", ops[1])
	}
}

func TestClient_Property(t *testing.T) {
	c, srv := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"count": 1, "value": {"NI.ReviewProperties": {"$type": "System.String", "$value": "{\"version\":4}"}}}`)
	}))
	pr := &types.PullRequest{ID: 9, URL: srv.URL + "/org/_apis/git/repositories/r/pullRequests/9"}

	v, ok, err := c.Property(context.Background(), pr, "NI.ReviewProperties")
	if err != nil || !ok {
		t.Fatalf("Property: %v %v", ok, err)
	}
	if v != `{"version":4}` {
		t.Errorf("value = %q", v)
	}

	_, ok, err = c.Property(context.Background(), pr, "Missing")
	if err != nil || ok {
		t.Errorf("expected missing property, got %v %v", ok, err)
	}
}

func TestClient_ListPullRequests(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("searchCriteria.reviewerId") != "me-id" || q.Get("searchCriteria.status") != "active" {
			t.Errorf("unexpected query %s", r.URL.RawQuery)
		}
		_, _ = io.WriteString(w, `{"count": 2, "value": [{"pullRequestId": 1}, {"pullRequestId": 2}]}`)
	}))

	prs, err := c.ListPullRequests(context.Background(), SearchCriteria{ReviewerID: "me-id"})
	if err != nil {
		t.Fatal(err)
	}
	if len(prs) != 2 || prs[1].ID != 2 {
		t.Errorf("unexpected prs %+v", prs)
	}
}

func TestClient_WorkItems(t *testing.T) {
	c, srv := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/workitems") && strings.Contains(r.URL.Path, "pullRequests"):
			_, _ = io.WriteString(w, `{"value": [{"id": "11"}, {"id": "bogus"}, {"id": "12"}]}`)
		case strings.HasSuffix(r.URL.Path, "/_apis/wit/workitems"):
			if r.URL.Query().Get("ids") != "11,12" {
				t.Errorf("ids = %q", r.URL.Query().Get("ids"))
			}
			_, _ = io.WriteString(w, `{"value": [
				{"id": 11, "fields": {"System.WorkItemType": "Bug", "System.Title": "Crash", "Microsoft.VSTS.Common.Severity": "2 - High"}},
				{"id": 12, "fields": {"System.WorkItemType": "Task", "System.Title": "Docs"}}
			]}`)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))

	ctx := context.Background()
	ids, err := c.PullRequestWorkItems(ctx, &types.PullRequest{ID: 5, URL: srv.URL + "/org/_apis/git/repositories/r/pullRequests/5"})
	if err != nil {
		t.Fatal(err)
	}
	items, err := c.WorkItems(ctx, ids)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 2 || items[0].Type != "Bug" || items[0].Severity != "2 - High" || items[1].Severity != "" {
		t.Errorf("unexpected items %+v", items)
	}
}

func TestClient_ConnectionData(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"authenticatedUser": {
			"id": "u-1",
			"providerDisplayName": "Alice",
			"properties": {"Account": {"$type": "System.String", "$value": "alice@example.com"}}
		}}`)
	}))

	d, err := c.ConnectionData(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	me := d.Identity()
	if me.ID != "u-1" || me.DisplayName != "Alice" || me.UniqueName != "alice@example.com" {
		t.Errorf("unexpected identity %+v", me)
	}
}

func TestCredentials_Validate(t *testing.T) {
	tests := []struct {
		name    string
		creds   Credentials
		wantErr bool
	}{
		{"pat", Credentials{PAT: "abc"}, false},
		{"bearer", Credentials{BearerToken: "eyJ"}, false},
		{"empty", Credentials{}, true},
		{"whitespace", Credentials{PAT: "abc def"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.creds.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestDrainAndCloseBody(t *testing.T) {
	drainAndCloseBody(io.NopCloser(strings.NewReader("leftover")))
}
