package capture

import (
	"errors"
	"fmt"
	"os"
	"time"
)

// Artifact is a captured window of an ATIS broadcast stored in a
// temporary file. The pipeline owns it and must call Remove on every
// exit path.
type Artifact struct {
	Path      string
	Airport   string
	Format    string // file extension, e.g. "mp3"
	StartedAt time.Time
	Nominal   time.Duration // requested window
	Captured  time.Duration // wall-clock time actually recorded
	Size      int64
	Truncated bool // the stream ended before the window elapsed
}

// FileName returns the base name used when uploading the artifact
func (a *Artifact) FileName() string {
	return fmt.Sprintf("atis_%s.%s", a.Airport, a.Format)
}

// Open opens the artifact for reading
func (a *Artifact) Open() (*os.File, error) {
	f, err := os.Open(a.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open audio artifact: %w", err)
	}
	return f, nil
}

// Remove deletes the backing file. Removing twice is not an error.
func (a *Artifact) Remove() error {
	if a == nil || a.Path == "" {
		return nil
	}
	if err := os.Remove(a.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove audio artifact: %w", err)
	}
	return nil
}
