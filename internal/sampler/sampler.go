// Package sampler implements frame-difference sampling over a sequential
// video frame stream: a frame is kept when it differs from the last kept
// frame by more than a configured pixel ratio and at least a minimum time
// gap has passed. Static periods produce no duplicates and rapid flicker
// inside the gap is debounced.
package sampler

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/uiextract/uiextract-processing-service/internal/domain/entity"
	"go.uber.org/zap"
)

const (
	DefaultThreshold  = 0.015
	DefaultMinTimeGap = 0.5

	// Operator-facing bounds.
	ThresholdMin  = 0.001
	ThresholdMax  = 0.1
	MinTimeGapMin = 0.1
	MinTimeGapMax = 2.0
)

// progressEvery controls how often the progress callback fires,
// in scanned frames.
const progressEvery = 10

// Config tunes the sampler.
type Config struct {
	// Threshold is the fraction of changed pixels above which two frames
	// are considered different visual states.
	Threshold float64
	// MinTimeGap is the debounce interval in seconds; no difference check
	// is even attempted before it elapses.
	MinTimeGap float64
}

func DefaultConfig() Config {
	return Config{Threshold: DefaultThreshold, MinTimeGap: DefaultMinTimeGap}
}

func (c Config) Validate() error {
	if c.Threshold < ThresholdMin || c.Threshold > ThresholdMax {
		return fmt.Errorf("threshold %g out of range [%g, %g]", c.Threshold, ThresholdMin, ThresholdMax)
	}
	if c.MinTimeGap < MinTimeGapMin || c.MinTimeGap > MinTimeGapMax {
		return fmt.Errorf("min time gap %g out of range [%g, %g]", c.MinTimeGap, MinTimeGapMin, MinTimeGapMax)
	}
	return nil
}

// Source yields decoded frames in playback order. Next returns io.EOF once
// the stream is exhausted.
type Source interface {
	Next() (*Frame, error)
	// FrameCountHint is the total frame count when the container reports
	// one, 0 otherwise. Only used for progress reporting.
	FrameCountHint() int
}

// Persister writes a kept frame as an image file under the run's output
// directory and returns the written path. Reset clears the directory
// before a run; Persist must reject duplicate filenames.
type Persister interface {
	Reset(ctx context.Context) error
	Persist(frame *Frame, filename string) (string, error)
}

// ProgressFunc is notified periodically with the number of frames scanned
// so far and the total hint (0 when unknown). Purely informational.
type ProgressFunc func(scanned, total int)

// Sampler performs one linear sampling pass per Run call. A Sampler is not
// safe for concurrent use; run state is rebuilt on every call.
type Sampler struct {
	cfg      Config
	store    Persister
	progress ProgressFunc
	logger   *zap.Logger
}

func New(cfg Config, store Persister, logger *zap.Logger) (*Sampler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("sampler config: %w", err)
	}
	return &Sampler{cfg: cfg, store: store, logger: logger}, nil
}

// OnProgress registers an observer callback. Skipping it entirely is fine.
func (s *Sampler) OnProgress(fn ProgressFunc) {
	s.progress = fn
}

// Run consumes the source until EOF and returns the kept keyframes in
// timestamp order. The first frame of a non-empty stream is always kept.
// An empty stream yields zero keyframes and no error.
func (s *Sampler) Run(ctx context.Context, src Source) ([]entity.Keyframe, error) {
	if err := s.store.Reset(ctx); err != nil {
		return nil, fmt.Errorf("reset output: %w", err)
	}

	var (
		kept      []entity.Keyframe
		lastFrame *Frame
		lastTime  = -1.0
		scanned   int
	)
	total := src.FrameCountHint()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		frame, err := src.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read frame: %w", err)
		}

		scanned++
		if s.progress != nil && scanned%progressEvery == 0 {
			s.progress(scanned, total)
		}

		save := false
		if lastFrame == nil {
			save = true
		} else if frame.Timestamp-lastTime >= s.cfg.MinTimeGap {
			ratio, err := Difference(lastFrame, frame)
			if err != nil {
				return nil, err
			}
			save = ratio > s.cfg.Threshold
		}
		if !save {
			continue
		}

		filename := fmt.Sprintf("ui_%.2fs.png", frame.Timestamp)
		path, err := s.store.Persist(frame, filename)
		if err != nil {
			return nil, fmt.Errorf("persist %s: %w", filename, err)
		}

		kept = append(kept, entity.Keyframe{
			ImagePath: path,
			Timestamp: frame.Timestamp,
			Filename:  filename,
		})
		lastFrame = frame
		lastTime = frame.Timestamp
	}

	s.logger.Info("sampling pass finished",
		zap.Int("frames_scanned", scanned),
		zap.Int("keyframes", len(kept)),
	)
	return kept, nil
}
