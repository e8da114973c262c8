// Package history stores traced firings as JSON files, one file per run.
package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/spf13/afero"
	"github.com/telnet2/evchan/internal/topology"
)

var (
	ErrNotFound  = errors.New("run not found")
	ErrInvalidID = errors.New("invalid run id")
)

// Run is one recorded firing.
type Run struct {
	ID         string              `json:"id"`
	Time       time.Time           `json:"time"`
	Topology   string              `json:"topology"`
	Channel    string              `json:"channel"`
	Payload    string              `json:"payload"`
	Deliveries []topology.Delivery `json:"deliveries"`
	Error      string              `json:"error,omitempty"`
}

// Failed reports whether the firing stopped with an error.
func (r *Run) Failed() bool { return r.Error != "" }

// Store keeps runs under a directory of an afero filesystem.
type Store struct {
	fs  afero.Fs
	dir string
	mu  sync.RWMutex
}

// New creates a Store rooted at dir.
func New(fs afero.Fs, dir string) *Store {
	return &Store{fs: fs, dir: dir}
}

// file maps a run ID to its file. Only ULIDs are accepted, so an ID can never
// name a path outside the store.
func (s *Store) file(id string) (string, error) {
	if _, err := ulid.ParseStrict(id); err != nil {
		return "", fmt.Errorf("%w %q", ErrInvalidID, id)
	}
	return filepath.Join(s.dir, id+".json"), nil
}

// Save writes run, assigning an ID and time when they are unset.
func (s *Store) Save(ctx context.Context, run *Run) error {
	if run.ID == "" {
		run.ID = ulid.Make().String()
	}
	if run.Time.IsZero() {
		run.Time = time.Now()
	}

	target, err := s.file(run.ID)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.fs.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	// Write to a temp file first so readers never see a partial run.
	tmp := target + ".tmp"
	if err := afero.WriteFile(s.fs, tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := s.fs.Rename(tmp, target); err != nil {
		s.fs.Remove(tmp)
		return fmt.Errorf("failed to rename file: %w", err)
	}
	return nil
}

// Get returns the run with the given ID.
func (s *Store) Get(ctx context.Context, id string) (*Run, error) {
	file, err := s.file(id)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read(file)
}

func (s *Store) read(file string) (*Run, error) {
	data, err := afero.ReadFile(s.fs, file)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var run Run
	if err := json.Unmarshal(data, &run); err != nil {
		return nil, fmt.Errorf("failed to unmarshal %s: %w", file, err)
	}
	return &run, nil
}

// List returns the stored runs, newest first. Files that are not named by a
// ULID or cannot be decoded are skipped.
func (s *Store) List(ctx context.Context) ([]*Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := afero.ReadDir(s.fs, s.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []*Run{}, nil
		}
		return nil, fmt.Errorf("failed to read directory: %w", err)
	}

	runs := make([]*Run, 0, len(entries))
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		name, ok := strings.CutSuffix(entry.Name(), ".json")
		if entry.IsDir() || !ok {
			continue
		}
		if _, err := ulid.ParseStrict(name); err != nil {
			continue
		}
		run, err := s.read(filepath.Join(s.dir, entry.Name()))
		if err != nil {
			continue
		}
		runs = append(runs, run)
	}

	// ULIDs sort by creation time.
	sort.Slice(runs, func(i, j int) bool { return runs[i].ID > runs[j].ID })
	return runs, nil
}

// Delete removes a run. Deleting a missing run is not an error.
func (s *Store) Delete(ctx context.Context, id string) error {
	file, err := s.file(id)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.fs.Remove(file); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

// Clear removes every stored run and returns how many were removed.
func (s *Store) Clear(ctx context.Context) (int, error) {
	runs, err := s.List(ctx)
	if err != nil {
		return 0, err
	}
	for _, run := range runs {
		if err := s.Delete(ctx, run.ID); err != nil {
			return 0, err
		}
	}
	return len(runs), nil
}
