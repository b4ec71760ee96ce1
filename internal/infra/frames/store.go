package frames

import (
	"context"
	"fmt"
	"image/png"
	"os"
	"path/filepath"

	"github.com/uiextract/uiextract-processing-service/internal/sampler"
	"go.uber.org/zap"
)

// Store writes sampled keyframes as PNG files into a single output
// directory. Reset wipes the directory so a run never mixes with stale
// files from a previous one, and duplicate filenames within a run are
// rejected instead of overwritten.
type Store struct {
	dir    string
	seen   map[string]struct{}
	logger *zap.Logger
}

func NewStore(dir string, logger *zap.Logger) *Store {
	return &Store{dir: dir, seen: map[string]struct{}{}, logger: logger}
}

// Dir is the output directory the store writes into.
func (s *Store) Dir() string { return s.dir }

func (s *Store) Reset(_ context.Context) error {
	if err := os.RemoveAll(s.dir); err != nil {
		return fmt.Errorf("clear output dir: %w", err)
	}
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("recreate output dir: %w", err)
	}
	s.seen = map[string]struct{}{}
	return nil
}

func (s *Store) Persist(frame *sampler.Frame, filename string) (string, error) {
	if _, dup := s.seen[filename]; dup {
		return "", fmt.Errorf("duplicate keyframe filename %q", filename)
	}

	path := filepath.Join(s.dir, filename)
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	if err := png.Encode(f, frame.RGBA()); err != nil {
		return "", fmt.Errorf("encode %s: %w", path, err)
	}

	s.seen[filename] = struct{}{}
	s.logger.Debug("keyframe written",
		zap.String("file", filename),
		zap.Float64("timestamp", frame.Timestamp),
	)
	return path, nil
}
