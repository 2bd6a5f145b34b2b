// Package config loads dashboard settings from an optional YAML file, a .env file and the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"

	"github.com/codeGROOVE-dev/review-dashboard/pkg/azdo"
	"github.com/codeGROOVE-dev/review-dashboard/pkg/review"
)

const appName = "review-dashboard"

// AzDO configures the Azure DevOps connection.
type AzDO struct {
	OrgURL   string        `yaml:"org_url" env:"AZDO_ORG_URL"`
	PAT      string        `yaml:"pat" env:"AZDO_PAT"`
	Token    string        `yaml:"token" env:"AZDO_TOKEN"`
	Project  string        `yaml:"project" env:"AZDO_PROJECT"`
	Timeout  time.Duration `yaml:"timeout" env:"AZDO_TIMEOUT" env-default:"5s"`
	Attempts uint          `yaml:"attempts" env:"AZDO_ATTEMPTS" env-default:"3"`
}

// Credentials returns the configured credentials.
func (a AzDO) Credentials() azdo.Credentials {
	return azdo.Credentials{PAT: a.PAT, BearerToken: a.Token}
}

// Watch configures change detection. The event server has no default address
// and its token is separate from the Azure DevOps credentials.
type Watch struct {
	Debounce       time.Duration `yaml:"debounce" env:"WATCH_DEBOUNCE" env-default:"400ms"`
	PollInterval   time.Duration `yaml:"poll_interval" env:"WATCH_POLL_INTERVAL" env-default:"2m"`
	Concurrency    int           `yaml:"concurrency" env:"WATCH_CONCURRENCY" env-default:"8"`
	Sprinkler      bool          `yaml:"sprinkler" env:"SPRINKLER_ENABLED" env-default:"false"`
	SprinklerURL   string        `yaml:"sprinkler_url" env:"SPRINKLER_URL"`
	SprinklerToken string        `yaml:"sprinkler_token" env:"SPRINKLER_TOKEN"`
	Organization   string        `yaml:"organization" env:"SPRINKLER_ORG"`
}

// Directory configures the employee and out-of-office feeds. Empty URLs disable a feed.
type Directory struct {
	EmployeesURL string `yaml:"employees_url" env:"DIRECTORY_EMPLOYEES_URL"`
	AbsencesURL  string `yaml:"absences_url" env:"DIRECTORY_ABSENCES_URL"`
}

// Taxonomy configures how owners roles are labeled.
type Taxonomy struct {
	Owner     string `yaml:"owner" env:"ROLE_LABEL_OWNER" env-default:"Owner"`
	Alternate string `yaml:"alternate" env:"ROLE_LABEL_ALTERNATE" env-default:"Alternate"`
	Reviewer  string `yaml:"reviewer" env:"ROLE_LABEL_REVIEWER" env-default:"Reviewer"`
	Expert    string `yaml:"expert" env:"ROLE_LABEL_EXPERT" env-default:"Expert"`
}

// Review returns the taxonomy used by the review package. Short labels are the first letter of each label.
func (t Taxonomy) Review() review.Taxonomy {
	tx := review.Taxonomy{Labels: map[review.Role]string{}, Short: map[review.Role]string{}}
	for role, label := range map[review.Role]string{
		review.RoleOwner:     t.Owner,
		review.RoleAlternate: t.Alternate,
		review.RoleReviewer:  t.Reviewer,
		review.RoleExpert:    t.Expert,
	} {
		if label == "" {
			continue
		}
		tx.Labels[role] = label
		tx.Short[role] = review.Initial(label)
	}
	return tx
}

// Config is the complete dashboard configuration.
type Config struct {
	AzDO       AzDO              `yaml:"azdo"`
	Watch      Watch             `yaml:"watch"`
	Directory  Directory         `yaml:"directory"`
	Taxonomy   Taxonomy          `yaml:"taxonomy"`
	CacheDir   string            `yaml:"cache_dir" env:"REVIEW_DASHBOARD_CACHE_DIR"`
	SupportURL string            `yaml:"support_url" env:"REVIEW_DASHBOARD_SUPPORT_URL" env-default:"https://github.com/codeGROOVE-dev/review-dashboard/issues"`
	Notable    review.Thresholds `yaml:"notable"`

	// SyncReviewed mirrors per-file review checkboxes into a pull request property.
	SyncReviewed bool `yaml:"sync_reviewed" env:"REVIEW_DASHBOARD_SYNC_REVIEWED" env-default:"false"`
}

// Load reads .env (if present), then path (if set), then the environment.
// Environment variables override the file.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("Failed to load .env file", "component", "config", "error", err)
	}

	var cfg Config
	var err error
	if path != "" {
		err = cleanenv.ReadConfig(path, &cfg)
	} else {
		err = cleanenv.ReadEnv(&cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("reading configuration: %w", err)
	}

	if cfg.CacheDir == "" {
		cfg.CacheDir = DefaultCacheDir()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// DefaultCacheDir returns ~/.cache/review-dashboard, or "" when no home directory is known.
func DefaultCacheDir() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, appName)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".cache", appName)
	}
	return ""
}

// Validate checks settings that have no usable default. Credentials are checked when a client is built.
func (c *Config) Validate() error {
	if c.Watch.Debounce < 0 {
		return errors.New("watch debounce must not be negative")
	}
	if c.Watch.PollInterval < 0 {
		return errors.New("watch poll interval must not be negative")
	}
	if c.Notable.NonApprovingVotes < 1 || c.Notable.Comments < 1 || c.Notable.Words < 1 {
		return fmt.Errorf("notability thresholds must be positive, got %+v", c.Notable)
	}
	if c.CacheDir != "" && !filepath.IsAbs(c.CacheDir) {
		return fmt.Errorf("cache directory %q must be an absolute path", c.CacheDir)
	}
	if c.Watch.Sprinkler {
		if err := c.Watch.validateSprinkler(); err != nil {
			return err
		}
	}
	return nil
}

func (w Watch) validateSprinkler() error {
	if w.SprinklerURL == "" {
		return errors.New("SPRINKLER_URL is required when SPRINKLER_ENABLED is set")
	}
	u, err := url.Parse(w.SprinklerURL)
	if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") || u.Host == "" {
		return fmt.Errorf("SPRINKLER_URL %q must be a ws:// or wss:// URL", w.SprinklerURL)
	}
	if w.SprinklerToken == "" {
		return errors.New("SPRINKLER_TOKEN is required when SPRINKLER_ENABLED is set")
	}
	return nil
}

// Usage describes every environment variable.
func Usage() string {
	var cfg Config
	u, err := cleanenv.GetDescription(&cfg, nil)
	if err != nil {
		return ""
	}
	return u
}
