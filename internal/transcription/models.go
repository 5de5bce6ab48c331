package transcription

import (
	"errors"
	"time"
)

var (
	// ErrEmptyTranscript is returned when the service recognised no speech
	ErrEmptyTranscript = errors.New("transcription produced no text")
	// ErrUploadTooLarge is returned when the artifact exceeds the upload limit
	ErrUploadTooLarge = errors.New("audio artifact exceeds the upload limit")
)

// Transcript is the recognised text of one capture
type Transcript struct {
	Text       string    `json:"text"`
	Airport    string    `json:"airport"`
	CapturedAt time.Time `json:"captured_at"`
	Truncated  bool      `json:"truncated"`
	Model      string    `json:"model"`
}

// Config represents the configuration for the transcription stage
type Config struct {
	Model          string
	Language       string
	Prompt         string
	MaxUploadBytes int64
}
