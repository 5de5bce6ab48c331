package pipeline

import (
	"time"

	"github.com/yegors/co-atis/internal/illustration"
	"github.com/yegors/co-atis/internal/transcription"
	"github.com/yegors/co-atis/internal/weather"
)

// Stage is the position of a session in the pipeline
type Stage string

const (
	StageIdle         Stage = "idle"
	StageCapturing    Stage = "capturing"
	StageTranscribing Stage = "transcribing"
	StageStructuring  Stage = "structuring"
	StageIllustrating Stage = "illustrating"
	StageCompleted    Stage = "completed"
	StageFailed       Stage = "failed"
)

// Terminal reports whether no further transition can happen
func (s Stage) Terminal() bool {
	return s == StageCompleted || s == StageFailed
}

// Session is one accepted run. Copies are handed out as snapshots.
type Session struct {
	ID             string     `json:"id"`
	Airport        string     `json:"airport_code"`
	StartedAt      time.Time  `json:"started_at"`
	Stage          Stage      `json:"stage"`
	StageStartedAt time.Time  `json:"stage_started_at"`
	FinishedAt     *time.Time `json:"finished_at,omitempty"`
	FailedStage    Stage      `json:"failed_stage,omitempty"`
	Outcome        Outcome    `json:"outcome,omitempty"`
	Error          string     `json:"error,omitempty"`
}

// Status is a read-only view of the orchestrator
type Status struct {
	Busy    bool     `json:"busy"`
	Current *Session `json:"current,omitempty"`
	Last    *Session `json:"last,omitempty"`
}

// Outcome distinguishes a full result from one missing its image
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeDegraded  Outcome = "degraded"
)

// Reasons a result can be degraded
const (
	DegradedIllustrationDisabled = "illustration disabled"
	DegradedIllustrationFailed   = "illustration failed"
)

// Result is everything a successful run produced
type Result struct {
	SessionID      string                    `json:"session_id"`
	AirportCode    string                    `json:"airport_code"`
	AirportName    string                    `json:"airport_name"`
	Transcript     *transcription.Transcript `json:"transcript"`
	Report         *weather.Report           `json:"report"`
	Image          *illustration.ImageRef    `json:"image,omitempty"`
	Outcome        Outcome                   `json:"outcome"`
	DegradedReason string                    `json:"degraded_reason,omitempty"`
	StartedAt      time.Time                 `json:"started_at"`
	FinishedAt     time.Time                 `json:"finished_at"`
}

// Truncated reports whether the transcript came from a shortened capture
func (r *Result) Truncated() bool {
	return r.Transcript != nil && r.Transcript.Truncated
}

// ImageURL returns the public image URL, or "" when there is none
func (r *Result) ImageURL() string {
	if r.Image == nil {
		return ""
	}
	return r.Image.URL
}
