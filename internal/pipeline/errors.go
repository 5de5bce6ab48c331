package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/yegors/co-atis/internal/ai"
	"github.com/yegors/co-atis/internal/capture"
	"github.com/yegors/co-atis/internal/frequencies"
	"github.com/yegors/co-atis/internal/transcription"
	"github.com/yegors/co-atis/internal/weather"
)

// ErrBusy is returned when a run is already in progress
var ErrBusy = errors.New("another ATIS run is in progress")

// Kind classifies a failed run for the caller
type Kind string

const (
	// KindCaller covers unknown airports and busy rejections
	KindCaller Kind = "caller"
	// KindUpstream covers an unreachable stream or AI service
	KindUpstream Kind = "upstream"
	// KindTimeout is a stage that ran out of its time budget
	KindTimeout Kind = "timeout"
	// KindContent covers audio or replies that cannot be used
	KindContent Kind = "content"
	// KindInternal is everything else
	KindInternal Kind = "internal"
)

// Error is the single failure type returned by Process. Message is safe to
// show to callers; Err keeps the internal cause for logs and errors.Is.
type Error struct {
	Kind    Kind
	Stage   Stage
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s error in %s: %s", e.Kind, e.Stage, e.Message)
	}
	return fmt.Sprintf("%s error in %s: %s: %v", e.Kind, e.Stage, e.Message, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// classify turns a stage failure into an *Error with a fixed user message.
// A stream that never delivered audio is reported as unreachable even when
// the stage deadline expired meanwhile. Otherwise an expired deadline wins
// over whatever the stage reported, since a cancelled AI call surfaces as a
// network failure.
func classify(stage Stage, err error) *Error {
	var pipelineErr *Error
	if errors.As(err, &pipelineErr) {
		return pipelineErr
	}

	e := &Error{Stage: stage, Err: err}
	switch {
	case errors.Is(err, frequencies.ErrUnknownAirport):
		e.Kind = KindCaller
		e.Message = "Unsupported airport code"
	case errors.Is(err, ErrBusy):
		e.Kind = KindCaller
		e.Message = "Another ATIS request is being processed, please try again shortly"

	case errors.Is(err, capture.ErrStreamUnreachable):
		e.Kind = KindUpstream
		e.Message = "Unable to connect to the ATIS broadcast stream"

	case errors.Is(err, context.DeadlineExceeded):
		e.Kind = KindTimeout
		e.Message = fmt.Sprintf("ATIS processing timed out while %s", stage)

	case errors.Is(err, ai.ErrNotConfigured):
		e.Kind = KindUpstream
		e.Message = "AI service is not configured"
	case errors.Is(err, ai.ErrServiceUnavailable), errors.Is(err, ai.ErrServiceRejected):
		e.Kind = KindUpstream
		e.Message = "AI service is temporarily unavailable, please try again later"

	case errors.Is(err, capture.ErrCaptureIncomplete):
		e.Kind = KindContent
		e.Message = "Too little audio was captured from the broadcast"
	case errors.Is(err, transcription.ErrEmptyTranscript):
		e.Kind = KindContent
		e.Message = "No speech could be recognised in the broadcast"
	case errors.Is(err, transcription.ErrUploadTooLarge):
		e.Kind = KindContent
		e.Message = "The captured audio is too large to transcribe"
	case errors.Is(err, weather.ErrMalformedReply):
		e.Kind = KindContent
		e.Message = "The ATIS content could not be interpreted"

	default:
		e.Kind = KindInternal
		e.Message = "Internal error while processing ATIS"
	}
	return e
}
