package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"

	"github.com/uiextract/uiextract-processing-service/internal/sampler"
	"go.uber.org/zap"
	ffprobe "gopkg.in/vansante/go-ffprobe.v2"
)

// ErrSourceUnavailable is returned when the video container cannot be
// opened or probed. Callers surface it as "nothing to process" rather
// than a crash.
var ErrSourceUnavailable = errors.New("video source unavailable")

// Source decodes a video into a sequential stream of RGB24 frames by
// piping ffmpeg's rawvideo output. Timestamps are derived from the frame
// index and the container's average frame rate.
type Source struct {
	cmd       *exec.Cmd
	stdout    io.ReadCloser
	width     int
	height    int
	frameRate float64
	duration  float64
	frameHint int
	index     int
	logger    *zap.Logger
}

// OpenSource probes the video and starts the decoder. The returned Source
// must be closed by the caller.
func OpenSource(ctx context.Context, videoPath string, logger *zap.Logger) (*Source, error) {
	data, err := ffprobe.ProbeURL(ctx, videoPath)
	if err != nil {
		return nil, fmt.Errorf("%w: probe %s: %v", ErrSourceUnavailable, videoPath, err)
	}

	stream := data.FirstVideoStream()
	if stream == nil {
		return nil, fmt.Errorf("%w: no video stream in %s", ErrSourceUnavailable, videoPath)
	}
	if stream.Width <= 0 || stream.Height <= 0 {
		return nil, fmt.Errorf("%w: bad dimensions %dx%d", ErrSourceUnavailable, stream.Width, stream.Height)
	}

	rate, err := parseFrameRate(stream.AvgFrameRate)
	if err != nil {
		rate, err = parseFrameRate(stream.RFrameRate)
		if err != nil {
			return nil, fmt.Errorf("%w: frame rate: %v", ErrSourceUnavailable, err)
		}
	}

	duration := data.Format.DurationSeconds

	hint := 0
	if n, err := strconv.Atoi(stream.NbFrames); err == nil && n > 0 {
		hint = n
	} else if duration > 0 {
		hint = int(duration * rate)
	}

	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-v", "error",
		"-i", videoPath,
		"-f", "rawvideo",
		"-pix_fmt", "rgb24",
		"pipe:1",
	)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: start ffmpeg: %v", ErrSourceUnavailable, err)
	}

	logger.Debug("video source opened",
		zap.String("path", videoPath),
		zap.Int("width", stream.Width),
		zap.Int("height", stream.Height),
		zap.Float64("frame_rate", rate),
		zap.Int("frame_hint", hint),
	)

	return &Source{
		cmd:       cmd,
		stdout:    stdout,
		width:     stream.Width,
		height:    stream.Height,
		frameRate: rate,
		duration:  duration,
		frameHint: hint,
		logger:    logger,
	}, nil
}

// Next returns the next decoded frame, or io.EOF once the stream ends.
func (s *Source) Next() (*sampler.Frame, error) {
	pix := make([]byte, s.width*s.height*3)
	if _, err := io.ReadFull(s.stdout, pix); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("read rawvideo frame: %w", err)
	}

	frame := &sampler.Frame{
		Width:     s.width,
		Height:    s.height,
		Pix:       pix,
		Timestamp: float64(s.index) / s.frameRate,
	}
	s.index++
	return frame, nil
}

func (s *Source) FrameCountHint() int { return s.frameHint }

// Duration is the container duration in seconds, 0 when unknown.
func (s *Source) Duration() float64 { return s.duration }

func (s *Source) Close() error {
	s.stdout.Close()
	if s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
	}
	_ = s.cmd.Wait()
	return nil
}

// parseFrameRate parses ffprobe's rational rate notation, e.g. "30000/1001".
func parseFrameRate(rate string) (float64, error) {
	num, den, found := strings.Cut(rate, "/")
	if !found {
		f, err := strconv.ParseFloat(rate, 64)
		if err != nil || f <= 0 {
			return 0, fmt.Errorf("invalid frame rate %q", rate)
		}
		return f, nil
	}
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid frame rate %q", rate)
	}
	d, err := strconv.ParseFloat(den, 64)
	if err != nil || d == 0 || n <= 0 {
		return 0, fmt.Errorf("invalid frame rate %q", rate)
	}
	return n / d, nil
}
