// Package directory looks up reviewers in the employee directory and out-of-office feeds.
// Feeds are JSON arrays fetched from configurable URLs and cached whole.
package directory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/codeGROOVE-dev/retry"
	"golang.org/x/sync/singleflight"

	"github.com/codeGROOVE-dev/review-dashboard/pkg/azdo"
	"github.com/codeGROOVE-dev/review-dashboard/pkg/cache"
	"github.com/codeGROOVE-dev/review-dashboard/pkg/types"
)

const (
	feedVersion     = "1"
	employeesKey    = "employees"
	absencesKey     = "out-of-office"
	feedAttempts    = 3
	feedRetryDelay  = 500 * time.Millisecond
	feedTimeout     = 10 * time.Second
	maxFeedBodySize = 32 << 20
)

// ErrFeedDisabled is returned when no URL is configured for a feed.
var ErrFeedDisabled = errors.New("feed not configured")

// Config configures a Client.
type Config struct {
	HTTPClient   azdo.HTTPDoer
	Employees    cache.Store
	Absences     cache.Store
	EmployeesURL string
	AbsencesURL  string
}

// Client reads the feeds through the cache.
type Client struct {
	httpClient   azdo.HTTPDoer
	employees    cache.Store
	absences     cache.Store
	now          func() time.Time
	group        singleflight.Group
	employeesURL string
	absencesURL  string
}

// New creates a directory client. Feeds without a URL are disabled.
func New(cfg Config) *Client {
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: feedTimeout}
	}
	return &Client{
		httpClient:   hc,
		employees:    cfg.Employees,
		absences:     cfg.Absences,
		employeesURL: cfg.EmployeesURL,
		absencesURL:  cfg.AbsencesURL,
		now:          time.Now,
	}
}

// Enabled reports whether any feed is configured.
func (c *Client) Enabled() bool {
	return c.employeesURL != "" || c.absencesURL != ""
}

// Employee returns the directory entry for email.
func (c *Client) Employee(ctx context.Context, email string) (types.Employee, bool, error) {
	if c.employeesURL == "" {
		return types.Employee{}, false, ErrFeedDisabled
	}
	var all []types.Employee
	if err := c.feed(ctx, c.employees, employeesKey, c.employeesURL, cache.TTLEmployeeDirectory, &all); err != nil {
		return types.Employee{}, false, err
	}
	for _, e := range all {
		if strings.EqualFold(e.Email, email) {
			return e, true, nil
		}
	}
	return types.Employee{}, false, nil
}

// OutOfOffice returns the absence covering now for email, if any.
func (c *Client) OutOfOffice(ctx context.Context, email string) (types.Absence, bool, error) {
	if c.absencesURL == "" {
		return types.Absence{}, false, ErrFeedDisabled
	}
	var all []types.Absence
	if err := c.feed(ctx, c.absences, absencesKey, c.absencesURL, cache.TTLOutOfOffice, &all); err != nil {
		return types.Absence{}, false, err
	}
	now := c.now()
	for _, a := range all {
		if strings.EqualFold(a.Email, email) && a.Covers(now) {
			return a, true, nil
		}
	}
	return types.Absence{}, false, nil
}

// feed decodes the cached feed into dst, fetching it once across concurrent callers on a miss.
func (c *Client) feed(ctx context.Context, store cache.Store, key, url string, ttl time.Duration, dst any) error {
	if store.Lookup(key, feedVersion, dst) != cache.Miss {
		return nil
	}

	raw, err, shared := c.group.Do(key, func() (any, error) {
		body, err := c.fetch(ctx, url)
		if err != nil {
			return nil, err
		}
		if !json.Valid(body) {
			return nil, fmt.Errorf("feed %s is not valid JSON", url)
		}
		if err := store.Put(key, feedVersion, json.RawMessage(body), ttl); err != nil {
			slog.Warn("Failed to cache feed", "component", "directory", "feed", key, "error", err)
		}
		return body, nil
	})
	if err != nil {
		return fmt.Errorf("fetching %s feed: %w", key, err)
	}
	slog.Debug("Fetched feed", "component", "directory", "feed", key, "shared", shared)

	body, ok := raw.([]byte)
	if !ok {
		return fmt.Errorf("fetching %s feed: unexpected result type %T", key, raw)
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return fmt.Errorf("decoding %s feed: %w", key, err)
	}
	return nil
}

func (c *Client) fetch(ctx context.Context, url string) ([]byte, error) {
	var body []byte
	err := retry.Do(func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
		if err != nil {
			return err
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer func() {
			if err := resp.Body.Close(); err != nil {
				slog.Debug("Failed to close feed body", "component", "directory", "error", err)
			}
		}()

		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("http %d from %s", resp.StatusCode, url)
		}
		body, err = io.ReadAll(io.LimitReader(resp.Body, maxFeedBodySize))
		return err
	},
		retry.Context(ctx),
		retry.Attempts(feedAttempts),
		retry.Delay(feedRetryDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			slog.Info("Retrying feed fetch", "component", "directory", "attempt", n+1, "url", url, "error", err)
		}),
	)
	return body, err
}
