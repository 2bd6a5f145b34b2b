package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	// cacheRetentionPeriod is how long untouched cache files are kept before cleanup.
	cacheRetentionPeriod = 30 * 24 * time.Hour
	// cacheDirPerms is the permission for cache directories.
	cacheDirPerms = 0o700
	// cacheFilePerms is the permission for cache files.
	cacheFilePerms = 0o600
)

// Recommended TTLs for different data types.
const (
	// TTLEmployeeDirectory is for the employee directory feed (changes very rarely).
	TTLEmployeeDirectory = 24 * time.Hour

	// TTLOutOfOffice is for the out-of-office feed (changes during the day).
	TTLOutOfOffice = 1 * time.Hour

	// TTLFileCheckboxes is how long per-file review state is remembered.
	TTLFileCheckboxes = 21 * 24 * time.Hour

	// TTLForever stores a value without expiry (user preferences).
	TTLForever time.Duration = 0
)

// CachedValue is a cache entry as persisted on disk.
type CachedValue struct {
	Expiration time.Time       `json:"expiration,omitzero"`
	CachedAt   time.Time       `json:"cached_at"`
	Key        string          `json:"key"`
	Version    string          `json:"version,omitempty"`
	Payload    json.RawMessage `json:"payload"`
}

// HitType indicates where a cache value was found.
type HitType string

// HitType values.
const (
	HitMemory HitType = "memory"
	HitDisk   HitType = "disk"
	Miss      HitType = "miss"
)

// DiskCache provides two-tier caching: in-memory + disk persistence.
// Payloads are kept as JSON in both tiers so lookups decode into caller types.
type DiskCache struct {
	mem      *Cache
	bucket   string
	cacheDir string
	enabled  bool
}

// NewDiskCache creates a cache whose keys are prefixed with bucket.
// If cacheDir is empty, falls back to memory-only cache.
func NewDiskCache(bucket, cacheDir string) (*DiskCache, error) {
	dc := &DiskCache{
		mem:      New(TTLForever),
		bucket:   bucket,
		cacheDir: cacheDir,
		enabled:  cacheDir != "",
	}

	if dc.enabled {
		cleanPath := filepath.Clean(cacheDir)
		if !filepath.IsAbs(cleanPath) {
			return nil, errors.New("cache directory must be absolute path")
		}

		if err := os.MkdirAll(cleanPath, cacheDirPerms); err != nil {
			slog.Warn("Failed to create cache directory, falling back to memory-only", "component", "cache", "error", err, "path", cleanPath)
			dc.enabled = false
		} else {
			dc.cacheDir = cleanPath
			go dc.cleanOldCaches()
		}
	}

	return dc, nil
}

// Namespace returns a view of the cache whose keys are prefixed with ns.
func (c *DiskCache) Namespace(ns string) *Bucket {
	return &Bucket{store: c, prefix: ns + "/"}
}

// Close stops background maintenance.
func (c *DiskCache) Close() {
	c.mem.Close()
}

func (c *DiskCache) fullKey(key string) string {
	return c.bucket + key
}

// Lookup decodes the value stored under key into dst.
// A missing entry, an expired entry, or an entry stored with another version is a miss.
func (c *DiskCache) Lookup(key, version string, dst any) HitType {
	full := c.fullKey(key)

	if v, found := c.mem.GetVersion(full, version); found {
		raw, ok := v.(json.RawMessage)
		if ok && json.Unmarshal(raw, dst) == nil {
			return HitMemory
		}
		c.mem.Delete(full)
	}

	if !c.enabled {
		return Miss
	}

	var entry CachedValue
	if !c.loadFromDisk(full, &entry) {
		return Miss
	}

	if entry.Key != full || entry.Version != version {
		slog.Debug("Disk cache entry has a different version", "component", "cache", "key", full, "want", version, "got", entry.Version)
		c.removeFromDisk(full)
		return Miss
	}

	if !entry.Expiration.IsZero() && time.Now().After(entry.Expiration) {
		slog.Debug("Disk cache entry expired", "component", "cache", "key", full, "expired_at", entry.Expiration)
		c.removeFromDisk(full)
		return Miss
	}

	if err := json.Unmarshal(entry.Payload, dst); err != nil {
		slog.Warn("Failed to unmarshal disk cache entry", "component", "cache", "key", full, "error", err)
		c.removeFromDisk(full)
		return Miss
	}

	// Restore to memory cache with the remaining lifetime.
	ttl := TTLForever
	if !entry.Expiration.IsZero() {
		ttl = time.Until(entry.Expiration)
	}
	if entry.Expiration.IsZero() || ttl > 0 {
		c.mem.SetVersion(full, version, entry.Payload, ttl)
	}

	return HitDisk
}

// Put stores value under key with a version tag. A ttl <= 0 never expires.
func (c *DiskCache) Put(key, version string, value any, ttl time.Duration) error {
	full := c.fullKey(key)

	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encoding cache value %q: %w", full, err)
	}

	c.mem.SetVersion(full, version, json.RawMessage(payload), ttl)

	if !c.enabled {
		return nil
	}

	now := time.Now()
	entry := CachedValue{
		Key:      full,
		Version:  version,
		Payload:  payload,
		CachedAt: now,
	}
	if ttl > 0 {
		entry.Expiration = now.Add(ttl)
	}

	if err := c.saveToDisk(full, entry); err != nil {
		// The memory tier still holds the value.
		slog.Debug("Failed to save to disk cache", "component", "cache", "key", full, "error", err)
	}
	return nil
}

// Remove deletes key from both tiers.
func (c *DiskCache) Remove(key string) {
	full := c.fullKey(key)
	c.mem.Delete(full)
	if c.enabled {
		c.removeFromDisk(full)
	}
}

// cacheKey generates a SHA256 hash of the key for the filename.
func (*DiskCache) cacheKey(key string) string {
	hash := sha256.Sum256([]byte(key))
	return hex.EncodeToString(hash[:])
}

func (c *DiskCache) path(key string) string {
	return filepath.Join(c.cacheDir, c.cacheKey(key)+".json")
}

// loadFromDisk loads a cache entry from disk.
func (c *DiskCache) loadFromDisk(key string, v any) bool {
	path := c.path(key)

	file, err := os.Open(path)
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Debug("Failed to open disk cache file", "component", "cache", "error", err, "path", path)
		}
		return false
	}
	defer func() {
		if err := file.Close(); err != nil {
			slog.Debug("Failed to close disk cache file", "component", "cache", "error", err, "path", path)
		}
	}()

	if err := json.NewDecoder(file).Decode(v); err != nil {
		slog.Debug("Failed to decode disk cache file", "component", "cache", "error", err, "path", path)
		return false
	}

	return true
}

// saveToDisk saves a cache entry to disk atomically.
func (c *DiskCache) saveToDisk(key string, v any) error {
	path := c.path(key)
	tmpPath := path + ".tmp"

	file, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, cacheFilePerms)
	if err != nil {
		return fmt.Errorf("creating cache file: %w", err)
	}

	if err := json.NewEncoder(file).Encode(v); err != nil {
		_ = file.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("encoding cache data: %w", err)
	}

	if err := file.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("closing cache file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("renaming cache file: %w", err)
	}

	return nil
}

// removeFromDisk removes a cache entry from disk.
func (c *DiskCache) removeFromDisk(key string) {
	path := c.path(key)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		slog.Debug("Failed to remove disk cache file", "component", "cache", "error", err, "path", path)
	}
}

// cleanOldCaches periodically removes cache files nobody has written for a long time.
func (c *DiskCache) cleanOldCaches() {
	ticker := time.NewTicker(1 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-c.mem.done:
			return
		case <-ticker.C:
		}

		entries, err := os.ReadDir(c.cacheDir)
		if err != nil {
			slog.Error("Failed to read cache directory", "component", "cache", "error", err)
			continue
		}

		cutoff := time.Now().Add(-cacheRetentionPeriod)
		removed := 0

		for _, entry := range entries {
			if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
				continue
			}

			info, err := entry.Info()
			if err != nil {
				continue
			}

			if info.ModTime().Before(cutoff) {
				path := filepath.Join(c.cacheDir, entry.Name())
				if err := os.Remove(path); err != nil {
					slog.Debug("Failed to remove old cache file", "component", "cache", "path", path, "error", err)
				} else {
					removed++
				}
			}
		}

		if removed > 0 {
			slog.Info("Cleaned old cache files", "component", "cache", "removed", removed)
		}
	}
}

// Bucket is a namespaced view of a DiskCache.
type Bucket struct {
	store  *DiskCache
	prefix string
}

// Lookup decodes the value stored under the namespaced key into dst.
func (b *Bucket) Lookup(key, version string, dst any) HitType {
	return b.store.Lookup(b.prefix+key, version, dst)
}

// Put stores a value under the namespaced key.
func (b *Bucket) Put(key, version string, value any, ttl time.Duration) error {
	return b.store.Put(b.prefix+key, version, value, ttl)
}

// Remove deletes the namespaced key.
func (b *Bucket) Remove(key string) {
	b.store.Remove(b.prefix + key)
}
