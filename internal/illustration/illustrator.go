package illustration

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/yegors/co-atis/internal/ai"
	"github.com/yegors/co-atis/internal/storage/sqlite"
	"github.com/yegors/co-atis/internal/templating"
	"github.com/yegors/co-atis/internal/weather"
	"github.com/yegors/co-atis/pkg/logger"
)

// ErrIllustrationFailed wraps every failure of the illustration stage
var ErrIllustrationFailed = errors.New("illustration failed")

// ImageRef points at a generated image on disk and its public URL
type ImageRef struct {
	ID        int64     `json:"id"`
	Airport   string    `json:"airport"`
	FileName  string    `json:"file_name"`
	Path      string    `json:"-"`
	URL       string    `json:"url"`
	SizeBytes int64     `json:"size_bytes"`
	CreatedAt time.Time `json:"created_at"`
}

// ImageClient is the part of the AI client the illustrator needs
type ImageClient interface {
	GenerateImage(ctx context.Context, req ai.ImageRequest) ([]byte, error)
}

// PromptRenderer renders the image prompt
type PromptRenderer interface {
	RenderIllustrationPrompt(data templating.IllustrationData) (string, error)
}

// Registry records generated images and hands back the ones to delete
type Registry interface {
	StoreImage(record *sqlite.ImageRecord) (int64, error)
	PruneImages(airport string, keep int) ([]*sqlite.ImageRecord, error)
}

// Config configures the illustrator
type Config struct {
	Model               string
	Size                string
	ImagesDir           string
	URLPrefix           string
	RetentionPerAirport int // 0 keeps everything
	AirportNames        map[string]string
}

// Illustrator draws a weather diagram from a structured report
type Illustrator struct {
	client   ImageClient
	prompts  PromptRenderer
	registry Registry
	config   Config
	logger   *logger.Logger

	now   func() time.Time
	newID func() string
}

// NewIllustrator creates an illustrator and makes sure the images directory
// exists. registry may be nil, in which case images are neither recorded
// nor pruned.
func NewIllustrator(client ImageClient, prompts PromptRenderer, registry Registry, config Config, logger *logger.Logger) (*Illustrator, error) {
	if err := os.MkdirAll(config.ImagesDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create images dir: %w", err)
	}
	if config.URLPrefix == "" {
		config.URLPrefix = "/images"
	}

	return &Illustrator{
		client:   client,
		prompts:  prompts,
		registry: registry,
		config:   config,
		logger:   logger.Named("illustrator"),
		now:      time.Now,
		newID:    func() string { return uuid.NewString()[:8] },
	}, nil
}

// FileName returns the collision-free name of an image generated at t
func FileName(airportCode string, t time.Time, suffix string) string {
	return fmt.Sprintf("weather_%s_%s_%s.png", airportCode, t.UTC().Format("20060102T150405"), suffix)
}

// Illustrate generates, stores and registers a weather image for report
func (i *Illustrator) Illustrate(ctx context.Context, report *weather.Report, airportCode string) (*ImageRef, error) {
	if report == nil {
		return nil, fmt.Errorf("%w: no report to illustrate", ErrIllustrationFailed)
	}

	prompt, err := i.prompts.RenderIllustrationPrompt(i.promptData(report, airportCode))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIllustrationFailed, err)
	}

	start := time.Now()
	data, err := i.client.GenerateImage(ctx, ai.ImageRequest{
		Model:  i.config.Model,
		Prompt: prompt,
		Size:   i.config.Size,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIllustrationFailed, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty image payload", ErrIllustrationFailed)
	}

	createdAt := i.now()
	name := FileName(airportCode, createdAt, i.newID())
	ref := &ImageRef{
		Airport:   airportCode,
		FileName:  name,
		Path:      filepath.Join(i.config.ImagesDir, name),
		URL:       path.Join(i.config.URLPrefix, name),
		SizeBytes: int64(len(data)),
		CreatedAt: createdAt,
	}

	if err := writeFileAtomic(ref.Path, data); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIllustrationFailed, err)
	}

	if i.registry != nil {
		id, err := i.registry.StoreImage(&sqlite.ImageRecord{
			Airport:   airportCode,
			FileName:  name,
			SizeBytes: ref.SizeBytes,
			CreatedAt: createdAt,
		})
		if err != nil {
			// The file is served without a registry row, it just never gets pruned
			i.logger.Warn("Failed to register image",
				logger.String("file", name),
				logger.Error(err))
		} else {
			ref.ID = id
			i.prune(airportCode)
		}
	}

	i.logger.Info("Illustration complete",
		logger.Airport(airportCode),
		logger.String("file", name),
		logger.Size("size", ref.SizeBytes),
		logger.Duration("duration", time.Since(start)))

	return ref, nil
}

// promptData lists the present fields in display order
func (i *Illustrator) promptData(report *weather.Report, airportCode string) templating.IllustrationData {
	data := templating.IllustrationData{
		AirportCode: airportCode,
		AirportName: i.config.AirportNames[airportCode],
	}
	for _, def := range weather.Fields {
		field, _ := report.Get(def.Key)
		if value, ok := field.Value(); ok {
			data.Fields = append(data.Fields, templating.IllustrationLine{Key: def.Key, Label: def.Label, Value: value})
		}
	}
	return data
}

// prune deletes images beyond the retention limit. Failures are logged only.
func (i *Illustrator) prune(airportCode string) {
	if i.config.RetentionPerAirport <= 0 {
		return
	}

	stale, err := i.registry.PruneImages(airportCode, i.config.RetentionPerAirport)
	if err != nil {
		i.logger.Warn("Failed to prune old images",
			logger.Airport(airportCode),
			logger.Error(err))
		return
	}

	for _, record := range stale {
		// Registry names are ours, but never follow one out of the directory
		if strings.ContainsAny(record.FileName, `/\`) {
			continue
		}
		err := os.Remove(filepath.Join(i.config.ImagesDir, record.FileName))
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			i.logger.Warn("Failed to remove old image",
				logger.String("file", record.FileName),
				logger.Error(err))
		}
	}
}

// writeFileAtomic writes data next to dest and renames it into place so a
// half-written image is never served
func writeFileAtomic(dest string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(dest), ".tmp-*.png")
	if err != nil {
		return fmt.Errorf("failed to create image file: %w", err)
	}

	// CreateTemp uses 0600; images are served to anyone
	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to set image permissions: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write image file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write image file: %w", err)
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to move image into place: %w", err)
	}
	return nil
}
