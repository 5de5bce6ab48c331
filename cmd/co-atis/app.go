package main

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/yegors/co-atis/internal/ai"
	"github.com/yegors/co-atis/internal/api"
	"github.com/yegors/co-atis/internal/capture"
	"github.com/yegors/co-atis/internal/config"
	"github.com/yegors/co-atis/internal/frequencies"
	"github.com/yegors/co-atis/internal/illustration"
	"github.com/yegors/co-atis/internal/pipeline"
	"github.com/yegors/co-atis/internal/storage/sqlite"
	"github.com/yegors/co-atis/internal/templating"
	"github.com/yegors/co-atis/internal/transcription"
	"github.com/yegors/co-atis/internal/weather"
	"github.com/yegors/co-atis/pkg/logger"
)

// application holds the wired pipeline and the resources it owns
type application struct {
	config       *config.Config
	logger       *logger.Logger
	airports     *frequencies.Directory
	orchestrator *pipeline.Orchestrator
	images       *sqlite.ImageStorage
	db           *sql.DB
}

// newAirportDirectory builds the frequency directory from the configuration
func newAirportDirectory(cfg *config.Config) (*frequencies.Directory, error) {
	freqs := make([]frequencies.Frequency, 0, len(cfg.Airports))
	for _, airport := range cfg.Airports {
		freqs = append(freqs, frequencies.Frequency{
			Airport:   airport.Code,
			Name:      airport.Name,
			StreamURL: airport.StreamURL,
		})
	}
	return frequencies.NewDirectory(freqs)
}

// newApplication wires every pipeline stage from the configuration
func newApplication(cfg *config.Config, log *logger.Logger) (*application, error) {
	airports, err := newAirportDirectory(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to build airport directory: %w", err)
	}

	airportNames := make(map[string]string, len(cfg.Airports))
	for _, freq := range airports.All() {
		airportNames[freq.Airport] = freq.Name
	}

	streams := frequencies.NewClient(cfg.ConnectTimeout(), log)
	capturer, err := capture.NewCapturer(capture.Config{
		Backend:        cfg.Capture.Backend,
		TempDir:        cfg.Capture.TempDir,
		Grace:          cfg.CaptureGrace(),
		MinBytes:       cfg.Capture.MinBytes,
		ConnectTimeout: cfg.ConnectTimeout(),
		FFmpegPath:     cfg.Capture.FFmpegPath,
		FFmpegBitrate:  cfg.Capture.FFmpegBitrate,
	}, streams, log)
	if err != nil {
		return nil, err
	}

	aiClient := ai.NewOpenAIClient(ai.Config{
		APIKey:         cfg.OpenAI.APIKey,
		BaseURL:        cfg.OpenAI.BaseURL,
		RequestTimeout: time.Duration(cfg.OpenAI.RequestTimeoutSeconds) * time.Second,
	}, log)

	prompts, err := templating.NewRenderer(cfg.Structuring.PromptPath, cfg.Illustration.PromptPath, log)
	if err != nil {
		return nil, err
	}

	transcriber := transcription.NewTranscriber(aiClient, transcription.Config{
		Model:          cfg.Transcription.Model,
		Language:       cfg.Transcription.Language,
		Prompt:         cfg.Transcription.Prompt,
		MaxUploadBytes: int64(cfg.Transcription.MaxUploadMB) << 20,
	}, log)

	structurer, err := weather.NewStructurer(aiClient, prompts, weather.Config{
		Model:          cfg.Structuring.Model,
		TargetLanguage: cfg.Structuring.TargetLanguage,
		Temperature:    cfg.Structuring.Temperature,
		AirportNames:   airportNames,
	}, log)
	if err != nil {
		return nil, err
	}

	db, err := sqlite.Open(cfg.Storage.SQLitePath)
	if err != nil {
		return nil, err
	}
	images, err := sqlite.NewImageStorage(db, log)
	if err != nil {
		db.Close()
		return nil, err
	}

	stages := pipeline.Stages{
		Resolver:    airports,
		Capturer:    capturer,
		Transcriber: transcriber,
		Structurer:  structurer,
	}

	if cfg.Illustration.Enabled {
		illustrator, err := illustration.NewIllustrator(aiClient, prompts, images, illustration.Config{
			Model:               cfg.Illustration.Model,
			Size:                cfg.Illustration.Size,
			ImagesDir:           cfg.Illustration.ImagesDir,
			URLPrefix:           cfg.Illustration.URLPrefix,
			RetentionPerAirport: cfg.Illustration.RetentionPerAirport,
			AirportNames:        airportNames,
		}, log)
		if err != nil {
			db.Close()
			return nil, err
		}
		stages.Illustrator = illustrator
	}

	orchestrator := pipeline.NewOrchestrator(stages, pipeline.Config{
		CaptureDuration:     cfg.CaptureDuration(),
		CaptureGrace:        cfg.CaptureGrace(),
		TranscribeTimeout:   time.Duration(cfg.Transcription.TimeoutSeconds) * time.Second,
		StructureTimeout:    time.Duration(cfg.Structuring.TimeoutSeconds) * time.Second,
		IllustrateTimeout:   time.Duration(cfg.Illustration.TimeoutSeconds) * time.Second,
		RetryBackoff:        cfg.RetryBackoff(),
		IllustrationEnabled: cfg.Illustration.Enabled,
	}, log)

	log.Info("Pipeline ready",
		logger.Int("airports", len(cfg.Airports)),
		logger.String("capture_backend", cfg.Capture.Backend),
		logger.Duration("capture_window", cfg.CaptureDuration()),
		logger.Bool("illustration", cfg.Illustration.Enabled),
		logger.Bool("ai_configured", cfg.AIConfigured()))

	return &application{
		config:       cfg,
		logger:       log,
		airports:     airports,
		orchestrator: orchestrator,
		images:       images,
		db:           db,
	}, nil
}

// router builds the HTTP router for the application
func (a *application) router() *api.Router {
	return api.NewRouter(a.orchestrator, a.airports, api.Options{
		CORSAllowedOrigins: a.config.Server.CORSAllowedOrigins,
		StaticFilesDir:     a.config.Server.StaticFilesDir,
		ImagesDir:          a.config.Illustration.ImagesDir,
		ImagesURLPrefix:    a.config.Illustration.URLPrefix,
		AIConfigured:       a.config.AIConfigured(),
		Images:             a.images,
	}, a.logger)
}

// Close releases the database
func (a *application) Close() error {
	return a.db.Close()
}
