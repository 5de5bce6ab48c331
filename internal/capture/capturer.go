package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/yegors/co-atis/internal/frequencies"
	"github.com/yegors/co-atis/pkg/logger"
)

// Backend names
const (
	BackendHTTP   = "http"
	BackendFFmpeg = "ffmpeg"
)

var (
	// ErrStreamUnreachable aliases the stream client error so callers only
	// need this package
	ErrStreamUnreachable = frequencies.ErrStreamUnreachable
	// ErrCaptureIncomplete is returned when too little audio was recorded
	// to be worth transcribing
	ErrCaptureIncomplete = errors.New("capture incomplete")
)

// Config configures the capturer
type Config struct {
	Backend        string
	TempDir        string
	Grace          time.Duration // added to the window to form the hard timeout
	MinBytes       int64         // smallest artifact forwarded to transcription
	ConnectTimeout time.Duration // ffmpeg only: longest wait for the first audio
	FFmpegPath     string
	FFmpegBitrate  string
}

// StreamOpener opens a live audio stream
type StreamOpener interface {
	StreamAudio(ctx context.Context, opts frequencies.StreamOptions) (io.ReadCloser, frequencies.StreamMetadata, error)
}

// Capturer records a fixed window of a live broadcast into a temp file
type Capturer struct {
	config  Config
	streams StreamOpener
	logger  *logger.Logger
}

// NewCapturer creates a capturer and makes sure the temp directory exists
func NewCapturer(config Config, streams StreamOpener, logger *logger.Logger) (*Capturer, error) {
	if config.Backend == "" {
		config.Backend = BackendHTTP
	}
	if config.Backend != BackendHTTP && config.Backend != BackendFFmpeg {
		return nil, fmt.Errorf("unsupported capture backend: %s", config.Backend)
	}
	if config.Backend == BackendHTTP && streams == nil {
		return nil, errors.New("http capture backend requires a stream opener")
	}
	if config.FFmpegPath == "" {
		config.FFmpegPath = "ffmpeg"
	}
	if config.FFmpegBitrate == "" {
		config.FFmpegBitrate = "128k"
	}
	if err := os.MkdirAll(config.TempDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create capture temp dir: %w", err)
	}

	return &Capturer{
		config:  config,
		streams: streams,
		logger:  logger.Named("capture"),
	}, nil
}

// Capture records duration of audio from the broadcast. The whole call is
// bounded by duration plus the configured grace. A stream that ends early
// still yields an artifact, flagged Truncated, as long as it holds at
// least MinBytes.
func (c *Capturer) Capture(ctx context.Context, freq frequencies.Frequency, duration time.Duration) (*Artifact, error) {
	if duration <= 0 {
		return nil, fmt.Errorf("invalid capture duration %s", duration)
	}

	ctx, cancel := context.WithTimeout(ctx, duration+c.config.Grace)
	defer cancel()

	c.logger.Info("Starting ATIS capture",
		logger.Airport(freq.Airport),
		logger.String("backend", c.config.Backend),
		logger.Duration("duration", duration))

	var (
		artifact *Artifact
		err      error
	)
	switch c.config.Backend {
	case BackendFFmpeg:
		artifact, err = c.recordFFmpeg(ctx, freq, duration)
	default:
		artifact, err = c.recordHTTP(ctx, freq, duration)
	}
	if err != nil {
		return nil, err
	}

	if artifact.Size < c.config.MinBytes {
		_ = artifact.Remove()
		return nil, fmt.Errorf("%w: recorded %s in %s, need at least %s",
			ErrCaptureIncomplete,
			humanize.Bytes(uint64(artifact.Size)),
			artifact.Captured.Round(time.Millisecond),
			humanize.Bytes(uint64(c.config.MinBytes)))
	}

	if artifact.Truncated {
		c.logger.Warn("Stream ended before the capture window elapsed, forwarding partial audio",
			logger.Airport(freq.Airport),
			logger.Duration("captured", artifact.Captured),
			logger.Duration("nominal", duration),
			logger.Size("size", artifact.Size))
	} else {
		c.logger.Info("ATIS capture complete",
			logger.Airport(freq.Airport),
			logger.Duration("captured", artifact.Captured),
			logger.Size("size", artifact.Size))
	}

	return artifact, nil
}

// recordHTTP copies the stream body to disk until the window closes
func (c *Capturer) recordHTTP(ctx context.Context, freq frequencies.Frequency, duration time.Duration) (*Artifact, error) {
	windowCtx, cancelWindow := context.WithTimeout(ctx, duration)
	defer cancelWindow()

	startedAt := time.Now()

	body, meta, err := c.streams.StreamAudio(windowCtx, frequencies.StreamOptions{URL: freq.StreamURL})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("%w: %w", ErrStreamUnreachable, ctxErr)
		}
		return nil, err
	}
	defer body.Close()

	file, err := c.createTempFile(freq.Airport, meta.Format)
	if err != nil {
		return nil, err
	}

	artifact := &Artifact{
		Path:      file.Name(),
		Airport:   freq.Airport,
		Format:    meta.Format,
		StartedAt: startedAt,
		Nominal:   duration,
	}

	written, copyErr := io.Copy(file, body)
	closeErr := file.Close()

	artifact.Captured = time.Since(startedAt)
	artifact.Size = written

	// The outer deadline only fires after the window, so a done parent here
	// means the caller gave up
	if ctx.Err() != nil && !errors.Is(ctx.Err(), context.DeadlineExceeded) {
		_ = artifact.Remove()
		return nil, ctx.Err()
	}

	if closeErr != nil {
		_ = artifact.Remove()
		return nil, fmt.Errorf("failed to write audio artifact: %w", closeErr)
	}

	windowElapsed := errors.Is(windowCtx.Err(), context.DeadlineExceeded)
	artifact.Truncated = !windowElapsed

	if copyErr != nil && !windowElapsed {
		c.logger.Debug("Stream read ended with error",
			logger.Airport(freq.Airport),
			logger.Error(copyErr))
	}

	return artifact, nil
}

func (c *Capturer) createTempFile(airport, format string) (*os.File, error) {
	if format == "" {
		format = "mp3"
	}
	file, err := os.CreateTemp(c.config.TempDir, fmt.Sprintf("atis_%s_*.%s", airport, format))
	if err != nil {
		return nil, fmt.Errorf("failed to create audio artifact: %w", err)
	}
	return file, nil
}
