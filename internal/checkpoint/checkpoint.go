// Package checkpoint records which pipeline stages completed successfully.
//
// A marker's only contract is that its presence means the most recent run of
// that stage fully succeeded. A failed stage never writes one, and a reload
// clears it before the stage runs again.
package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrNotFound is returned by Get when no marker exists for a key.
var ErrNotFound = errors.New("checkpoint not found")

// Marker describes a completed stage.
type Marker struct {
	Key         string    `yaml:"key" json:"key"`
	RunID       string    `yaml:"run_id" json:"run_id"`
	Rows        int64     `yaml:"rows" json:"rows"`
	Batches     int       `yaml:"batches,omitempty" json:"batches,omitempty"`
	CompletedAt time.Time `yaml:"completed_at" json:"completed_at"`
}

// Store persists markers by key.
type Store interface {
	Exists(ctx context.Context, key string) (bool, error)
	Get(ctx context.Context, key string) (Marker, error)
	Mark(ctx context.Context, m Marker) error
	Clear(ctx context.Context, key string) error
	List(ctx context.Context) ([]Marker, error)
}

// LoadKey returns the marker key for a table load.
func LoadKey(table string) string { return "load_" + table }

const fileSuffix = ".checkpoint"

// FileStore keeps one YAML file per key in a directory.
type FileStore struct {
	dir string
}

// NewFileStore creates dir if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create checkpoint dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) path(key string) string {
	return filepath.Join(s.dir, key+fileSuffix)
}

func validKey(key string) error {
	if key == "" || strings.ContainsAny(key, `/\`) || strings.HasPrefix(key, ".") {
		return fmt.Errorf("invalid checkpoint key %q", key)
	}
	return nil
}

// Exists reports whether a marker exists for key.
func (s *FileStore) Exists(ctx context.Context, key string) (bool, error) {
	if err := validKey(key); err != nil {
		return false, err
	}
	_, err := os.Stat(s.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("stat checkpoint %s: %w", key, err)
	}
	return true, nil
}

// Get reads the marker for key.
func (s *FileStore) Get(ctx context.Context, key string) (Marker, error) {
	if err := validKey(key); err != nil {
		return Marker{}, err
	}
	data, err := os.ReadFile(s.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return Marker{}, fmt.Errorf("%s: %w", key, ErrNotFound)
	}
	if err != nil {
		return Marker{}, fmt.Errorf("read checkpoint %s: %w", key, err)
	}

	var m Marker
	if err := yaml.Unmarshal(data, &m); err != nil {
		return Marker{}, fmt.Errorf("decode checkpoint %s: %w", key, err)
	}
	if m.Key == "" {
		m.Key = key
	}
	return m, nil
}

// Mark writes the marker atomically.
func (s *FileStore) Mark(ctx context.Context, m Marker) error {
	if err := validKey(m.Key); err != nil {
		return err
	}
	if m.CompletedAt.IsZero() {
		m.CompletedAt = time.Now().UTC()
	}

	data, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode checkpoint %s: %w", m.Key, err)
	}

	tmp, err := os.CreateTemp(s.dir, "."+m.Key+"-*")
	if err != nil {
		return fmt.Errorf("create checkpoint %s: %w", m.Key, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write checkpoint %s: %w", m.Key, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync checkpoint %s: %w", m.Key, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close checkpoint %s: %w", m.Key, err)
	}
	if err := os.Rename(tmp.Name(), s.path(m.Key)); err != nil {
		return fmt.Errorf("commit checkpoint %s: %w", m.Key, err)
	}
	return nil
}

// Clear removes the marker. Clearing a missing marker is not an error.
func (s *FileStore) Clear(ctx context.Context, key string) error {
	if err := validKey(key); err != nil {
		return err
	}
	err := os.Remove(s.path(key))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove checkpoint %s: %w", key, err)
	}
	return nil
}

// List returns every marker sorted by key.
func (s *FileStore) List(ctx context.Context) ([]Marker, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("list checkpoints: %w", err)
	}

	var out []Marker
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, fileSuffix) {
			continue
		}
		m, err := s.Get(ctx, strings.TrimSuffix(name, fileSuffix))
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}
