package transcription

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/yegors/co-atis/internal/ai"
	"github.com/yegors/co-atis/internal/capture"
	"github.com/yegors/co-atis/pkg/logger"
)

// SpeechClient is the part of the AI client the transcriber needs
type SpeechClient interface {
	Transcribe(ctx context.Context, req ai.TranscriptionRequest) (string, error)
}

// Transcriber turns a captured artifact into text
type Transcriber struct {
	client SpeechClient
	config Config
	logger *logger.Logger
}

// NewTranscriber creates a new transcriber
func NewTranscriber(client SpeechClient, config Config, logger *logger.Logger) *Transcriber {
	if config.Model == "" {
		config.Model = "whisper-1"
	}
	return &Transcriber{
		client: client,
		config: config,
		logger: logger.Named("transcriber"),
	}
}

// Transcribe uploads the artifact and returns its transcript. The artifact
// is only read; removing it stays with the caller.
func (t *Transcriber) Transcribe(ctx context.Context, artifact *capture.Artifact) (*Transcript, error) {
	if artifact == nil {
		return nil, fmt.Errorf("no audio artifact to transcribe")
	}
	if t.config.MaxUploadBytes > 0 && artifact.Size > t.config.MaxUploadBytes {
		return nil, fmt.Errorf("%w: %s > %s", ErrUploadTooLarge,
			humanize.Bytes(uint64(artifact.Size)),
			humanize.Bytes(uint64(t.config.MaxUploadBytes)))
	}

	file, err := artifact.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open audio artifact: %w", err)
	}
	defer file.Close()

	start := time.Now()
	text, err := t.client.Transcribe(ctx, ai.TranscriptionRequest{
		Audio:    file,
		FileName: artifact.FileName(),
		Model:    t.config.Model,
		Language: t.config.Language,
		Prompt:   t.config.Prompt,
	})
	if err != nil {
		return nil, err
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyTranscript
	}

	t.logger.Info("Transcription complete",
		logger.Airport(artifact.Airport),
		logger.Int("chars", len(text)),
		logger.Bool("truncated", artifact.Truncated),
		logger.Duration("duration", time.Since(start)))

	return &Transcript{
		Text:       text,
		Airport:    artifact.Airport,
		CapturedAt: artifact.StartedAt,
		Truncated:  artifact.Truncated,
		Model:      t.config.Model,
	}, nil
}
