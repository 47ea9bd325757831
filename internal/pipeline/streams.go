package pipeline

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/JonMunkholm/dohpipeline/internal/tsv"
)

// streams is a set of intermediate files written to temp names and renamed
// into place together, so a failed normalization leaves no partial output.
type streams struct {
	dir     string
	names   []string
	files   []*os.File
	writers []*tsv.Writer
}

func createStreams(dir string, names []string) (*streams, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	s := &streams{dir: dir, names: names}
	for _, name := range names {
		f, err := os.CreateTemp(dir, "."+name+".*")
		if err != nil {
			s.abort()
			return nil, fmt.Errorf("create %s: %w", name, err)
		}
		s.files = append(s.files, f)
		s.writers = append(s.writers, tsv.NewWriter(f))
	}
	return s, nil
}

// commit flushes every stream and renames it to its final name.
func (s *streams) commit() error {
	for i, f := range s.files {
		if err := s.writers[i].Flush(); err != nil {
			return fmt.Errorf("flush %s: %w", s.names[i], err)
		}
		if err := f.Sync(); err != nil {
			return fmt.Errorf("sync %s: %w", s.names[i], err)
		}
		if err := f.Close(); err != nil {
			return fmt.Errorf("close %s: %w", s.names[i], err)
		}
	}
	for i, f := range s.files {
		if err := os.Rename(f.Name(), filepath.Join(s.dir, s.names[i])); err != nil {
			return fmt.Errorf("rename %s: %w", s.names[i], err)
		}
	}
	return nil
}

// abort removes every temp file and any final file already renamed.
func (s *streams) abort() {
	for i, f := range s.files {
		f.Close()
		for _, path := range []string{f.Name(), filepath.Join(s.dir, s.names[i])} {
			if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
				slog.Warn("failed to remove partial output", "path", path, "error", err)
			}
		}
	}
}
