package watch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/codeGROOVE-dev/retry"
	"github.com/codeGROOVE-dev/sprinkler/pkg/client"
)

const (
	eventDedupWindow     = 5 * time.Second  // Time window for deduplicating events
	eventMapMaxSize      = 1000             // Maximum entries in event dedup map
	eventMapCleanupAge   = 1 * time.Hour    // Age threshold for cleaning up old entries
	maxReconnectAttempts = 100              // Max reconnection attempts
	reconnectBackoff     = 30 * time.Second // Initial backoff between reconnection attempts
	maxReconnectBackoff  = 5 * time.Minute
	pullRequestEventType = "pull_request"
)

// pushedPRPattern matches the path of an Azure DevOps pull request link.
var pushedPRPattern = regexp.MustCompile(`/pullrequest/(\d+)(?:/|$)`)

// SprinklerSource emits a candidate for every pull request event pushed by a sprinkler server.
// Candidates use PullRequestKey and a fresh state, so each accepted event is processed.
type SprinklerSource struct {
	now          func() time.Time
	lastEventMap map[string]time.Time // last event per URL, for dedup
	token        func() (string, error)
	serverURL    string
	organization string
	orgHost      string
	orgPath      string // lower-cased path prefix of the organization, "" for host-scoped orgs
	mu           sync.Mutex
	connected    bool
}

// SprinklerConfig configures a SprinklerSource.
type SprinklerConfig struct {
	// Token returns the credential presented to the server on each connect.
	// It must be a credential issued for the event server, not the Azure DevOps one.
	Token func() (string, error)

	// ServerURL is the websocket endpoint of the event server. Required.
	ServerURL string

	// OrgURL is the Azure DevOps organization URL, e.g. https://dev.azure.com/contoso.
	// Only events linking to pull requests under it are accepted.
	OrgURL string

	Organization string
}

// NewSprinklerSource creates a pushed-event source.
func NewSprinklerSource(cfg SprinklerConfig) (*SprinklerSource, error) {
	if cfg.ServerURL == "" {
		return nil, errors.New("event server URL is required")
	}
	if cfg.Token == nil {
		return nil, errors.New("event server token is required")
	}
	u, err := url.Parse(strings.TrimRight(cfg.OrgURL, "/"))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid organization URL %q", cfg.OrgURL)
	}
	org := cfg.Organization
	if org == "" {
		org = "*"
	}
	return &SprinklerSource{
		now:          time.Now,
		lastEventMap: make(map[string]time.Time),
		token:        cfg.Token,
		serverURL:    cfg.ServerURL,
		organization: org,
		orgHost:      strings.ToLower(u.Host),
		orgPath:      strings.ToLower(u.Path),
	}, nil
}

// Name implements Source.
func (*SprinklerSource) Name() string { return "sprinkler" }

// Connected reports whether the websocket is currently up.
func (s *SprinklerSource) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// Run implements Source. The client reconnects on its own; when it gives up,
// Run restarts it with backoff until ctx is done.
func (s *SprinklerSource) Run(ctx context.Context, emit func(Candidate)) error {
	for {
		err := retry.Do(func() error {
			return s.connect(ctx, emit)
		},
			retry.Attempts(maxReconnectAttempts),
			retry.Delay(reconnectBackoff),
			retry.MaxDelay(maxReconnectBackoff),
			retry.DelayType(retry.CombineDelay(retry.BackOffDelay, retry.RandomDelay)),
			retry.MaxJitter(reconnectBackoff/2),
			retry.LastErrorOnly(true),
			retry.RetryIf(func(err error) bool {
				return !errors.Is(err, context.Canceled)
			}),
			retry.OnRetry(func(n uint, err error) {
				slog.Warn("WebSocket client gave up, will restart after backoff",
					"component", "sprinkler",
					"outer_attempt", n+1,
					"error", err)
			}),
			retry.Context(ctx),
		)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			return fmt.Errorf("sprinkler connection: %w", err)
		}

		// Clean exit; the client normally runs until cancelled.
		slog.Info("WebSocket client exited cleanly", "component", "sprinkler")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(5 * time.Second):
		}
	}
}

func (s *SprinklerSource) connect(ctx context.Context, emit func(Candidate)) error {
	config := client.Config{
		ServerURL:      s.serverURL,
		Organization:   s.organization,
		TokenProvider:  s.token,
		EventTypes:     []string{pullRequestEventType},
		UserEventsOnly: false,
		Verbose:        false,
		NoReconnect:    false,
		OnConnect: func() {
			s.mu.Lock()
			s.connected = true
			s.mu.Unlock()
			slog.Info("WebSocket connected", "component", "sprinkler", "server", s.serverURL)
		},
		OnDisconnect: func(err error) {
			s.mu.Lock()
			wasConnected := s.connected
			s.connected = false
			s.mu.Unlock()
			if err != nil && !errors.Is(err, context.Canceled) && wasConnected {
				slog.Warn("WebSocket disconnected", "component", "sprinkler", "error", err)
			}
		},
		OnEvent: func(event client.Event) {
			if c, ok := s.candidate(event.Type, event.URL); ok {
				emit(c)
			}
		},
	}

	wsClient, err := client.New(config)
	if err != nil {
		return fmt.Errorf("failed to create client: %w", err)
	}

	startTime := time.Now()
	if err := wsClient.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Warn("WebSocket client stopped with error",
			"component", "sprinkler",
			"uptime", time.Since(startTime).Round(time.Second),
			"error", err)
		return err
	}
	slog.Info("WebSocket client stopped", "component", "sprinkler", "uptime", time.Since(startTime).Round(time.Second))
	return ctx.Err()
}

// candidate turns a pushed event into a candidate, dropping repeats within the dedup window.
func (s *SprinklerSource) candidate(eventType, rawURL string) (Candidate, bool) {
	if eventType != pullRequestEventType {
		return Candidate{}, false
	}
	if rawURL == "" {
		slog.Warn("Received PR event with empty URL", "component", "sprinkler")
		return Candidate{}, false
	}

	id, ok := s.pullRequestID(rawURL)
	if !ok {
		slog.Debug("Ignoring event for unrecognized URL", "component", "sprinkler", "url", rawURL)
		return Candidate{}, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	if last, ok := s.lastEventMap[rawURL]; ok && now.Sub(last) < eventDedupWindow {
		return Candidate{}, false
	}
	s.lastEventMap[rawURL] = now

	if len(s.lastEventMap) > eventMapMaxSize {
		cutoff := now.Add(-eventMapCleanupAge)
		for u, ts := range s.lastEventMap {
			if ts.Before(cutoff) {
				delete(s.lastEventMap, u)
			}
		}
	}

	slog.Info("PR event received", "component", "sprinkler", "url", rawURL, "pr", id)
	return Candidate{Key: PullRequestKey(id), State: strconv.FormatInt(now.UnixNano(), 10)}, true
}

// pullRequestID extracts the pull request id from a link under the configured organization.
func (s *SprinklerSource) pullRequestID(rawURL string) (int, bool) {
	u, err := url.Parse(rawURL)
	if err != nil || !strings.EqualFold(u.Host, s.orgHost) {
		return 0, false
	}
	p := strings.ToLower(u.Path)
	if s.orgPath != "" && !strings.HasPrefix(p, s.orgPath+"/") {
		return 0, false
	}
	m := pushedPRPattern.FindStringSubmatch(p[len(s.orgPath):])
	if m == nil {
		return 0, false
	}
	id, err := strconv.Atoi(m[1])
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
