// Package prefs persists per-user dashboard preferences in the key-value cache.
package prefs

import (
	"fmt"
	"log/slog"
	"maps"
	"strconv"
	"sync"

	"github.com/codeGROOVE-dev/review-dashboard/pkg/cache"
	"github.com/codeGROOVE-dev/review-dashboard/pkg/types"
)

// Key prefixes. Values written under an older schema version are ignored.
const (
	sectionOpenPrefix   = "pr-section-open/"
	fileIterationPrefix = "pr-file-iteration/"
	schemaVersion       = "1"
)

// Store reads and writes preferences.
type Store struct {
	store cache.Store
	mu    sync.Mutex // serializes read-modify-write of checkbox maps
}

// New creates a preference store backed by store.
func New(store cache.Store) *Store {
	return &Store{store: store}
}

// SectionOpen reports whether the user left section expanded. Sections start collapsed.
func (s *Store) SectionOpen(section types.Section) bool {
	var open bool
	if s.store.Lookup(sectionOpenPrefix+string(section), schemaVersion, &open) == cache.Miss {
		return false
	}
	return open
}

// SetSectionOpen remembers whether section is expanded. It never expires.
func (s *Store) SetSectionOpen(section types.Section, open bool) error {
	if err := s.store.Put(sectionOpenPrefix+string(section), schemaVersion, open, cache.TTLForever); err != nil {
		return fmt.Errorf("saving section state: %w", err)
	}
	return nil
}

// ReviewedFiles maps a file path to the iteration it was marked reviewed in.
type ReviewedFiles map[string]int

// Reviewed returns the stored checkbox state for a pull request. It is never nil.
func (s *Store) Reviewed(prID int) ReviewedFiles {
	files := ReviewedFiles{}
	if s.store.Lookup(fileKey(prID), schemaVersion, &files) == cache.Miss || files == nil {
		return ReviewedFiles{}
	}
	return files
}

// MarkReviewed records path as reviewed in iteration, or clears it when reviewed is false.
// Each write renews the expiry of the whole pull request's state.
func (s *Store) MarkReviewed(prID int, path string, iteration int, reviewed bool) (ReviewedFiles, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	files := s.Reviewed(prID)
	if reviewed {
		files[path] = iteration
	} else {
		delete(files, path)
	}

	if err := s.store.Put(fileKey(prID), schemaVersion, files, cache.TTLFileCheckboxes); err != nil {
		return nil, fmt.Errorf("saving reviewed files of pull request %d: %w", prID, err)
	}
	slog.Debug("Saved file review state", "component", "prefs", "pr", prID, "path", path, "reviewed", reviewed, "files", len(files))
	return maps.Clone(files), nil
}

// ReplaceReviewed overwrites the stored state, used when syncing from the server.
func (s *Store) ReplaceReviewed(prID int, files ReviewedFiles) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.store.Put(fileKey(prID), schemaVersion, files, cache.TTLFileCheckboxes); err != nil {
		return fmt.Errorf("saving reviewed files of pull request %d: %w", prID, err)
	}
	return nil
}

func fileKey(prID int) string {
	return fileIterationPrefix + strconv.Itoa(prID)
}
