package store

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// ErrNoRecommendation is returned by Load when nothing was persisted yet.
var ErrNoRecommendation = errors.New("no recommendation persisted")

// RecommendationFile persists the latest recommendation as raw text. Each
// Save replaces the previous content entirely via write-then-rename.
type RecommendationFile struct {
	path string
	mu   sync.Mutex
}

// NewRecommendationFile returns a store writing to path.
func NewRecommendationFile(path string) *RecommendationFile {
	return &RecommendationFile{path: path}
}

// Save overwrites the persisted recommendation with text, byte for byte.
func (s *RecommendationFile) Save(text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".recommendation-*")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.WriteString(text); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("sync temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename: %w", err)
	}
	return nil
}

// Load returns the persisted text and the time it was written.
func (s *RecommendationFile) Load() (string, time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	info, err := os.Stat(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", time.Time{}, ErrNoRecommendation
		}
		return "", time.Time{}, err
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		return "", time.Time{}, err
	}
	return string(data), info.ModTime().UTC(), nil
}
