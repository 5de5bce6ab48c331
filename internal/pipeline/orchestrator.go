package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/yegors/co-atis/internal/capture"
	"github.com/yegors/co-atis/internal/frequencies"
	"github.com/yegors/co-atis/internal/illustration"
	"github.com/yegors/co-atis/internal/transcription"
	"github.com/yegors/co-atis/internal/weather"
	"github.com/yegors/co-atis/pkg/logger"
	"golang.org/x/sync/semaphore"
)

// Resolver maps an airport code to its broadcast
type Resolver interface {
	Resolve(code string) (frequencies.Frequency, error)
}

// Capturer records a window of a broadcast
type Capturer interface {
	Capture(ctx context.Context, freq frequencies.Frequency, duration time.Duration) (*capture.Artifact, error)
}

// Transcriber turns captured audio into text
type Transcriber interface {
	Transcribe(ctx context.Context, artifact *capture.Artifact) (*transcription.Transcript, error)
}

// Structurer extracts and translates a transcript
type Structurer interface {
	Structure(ctx context.Context, transcript *transcription.Transcript) (*weather.Report, error)
}

// Illustrator draws a report
type Illustrator interface {
	Illustrate(ctx context.Context, report *weather.Report, airportCode string) (*illustration.ImageRef, error)
}

// Stages bundles the collaborators of the orchestrator. Illustrator may be
// nil, which behaves like illustration being disabled.
type Stages struct {
	Resolver    Resolver
	Capturer    Capturer
	Transcriber Transcriber
	Structurer  Structurer
	Illustrator Illustrator
}

// Config holds the per-stage time budgets and the retry delay
type Config struct {
	CaptureDuration     time.Duration
	CaptureGrace        time.Duration
	TranscribeTimeout   time.Duration
	StructureTimeout    time.Duration
	IllustrateTimeout   time.Duration
	RetryBackoff        time.Duration
	IllustrationEnabled bool
}

// Orchestrator runs one ATIS pipeline at a time
type Orchestrator struct {
	stages Stages
	config Config
	logger *logger.Logger

	guard *semaphore.Weighted

	mu      sync.RWMutex
	current *Session
	last    *Session

	now func() time.Time
}

// NewOrchestrator creates a new orchestrator
func NewOrchestrator(stages Stages, config Config, logger *logger.Logger) *Orchestrator {
	return &Orchestrator{
		stages: stages,
		config: config,
		logger: logger.Named("pipeline"),
		guard:  semaphore.NewWeighted(1),
		now:    time.Now,
	}
}

// Process runs the full pipeline for airportCode and blocks until it
// reaches a terminal state. Unknown airports and busy rejections return
// before any I/O. Once accepted, the run is detached from ctx cancellation
// and always finishes; only ctx values are carried over.
func (o *Orchestrator) Process(ctx context.Context, airportCode string) (result *Result, err error) {
	code := strings.ToUpper(strings.TrimSpace(airportCode))

	freq, resolveErr := o.stages.Resolver.Resolve(code)
	if resolveErr != nil {
		o.logger.Info("Rejected request for unknown airport", logger.Airport(code))
		return nil, classify(StageIdle, resolveErr)
	}

	if !o.guard.TryAcquire(1) {
		o.logger.Info("Rejected request while busy", logger.Airport(freq.Airport))
		return nil, classify(StageIdle, ErrBusy)
	}
	defer o.guard.Release(1)

	session := o.begin(freq.Airport)
	log := o.logger.WithSession(session.ID, session.Airport)

	defer func() {
		if r := recover(); r != nil {
			log.Error("Pipeline stage panicked",
				logger.Stage(string(o.currentStage())),
				logger.Any("panic", r))
			result = nil
			err = &Error{
				Kind:    KindInternal,
				Stage:   o.currentStage(),
				Message: "Internal error while processing ATIS",
				Err:     fmt.Errorf("panic: %v", r),
			}
		}
		o.finish(result, err)
	}()

	log.Info("ATIS run accepted", logger.String("airport_name", freq.Name))

	return o.run(context.WithoutCancel(ctx), session, freq, log)
}

// run executes the stages in order
func (o *Orchestrator) run(ctx context.Context, session Session, freq frequencies.Frequency, log *logger.Logger) (*Result, error) {
	// Capture, never retried: a second attempt would record different content late
	o.advance(StageCapturing)
	captureBudget := o.config.CaptureDuration + o.config.CaptureGrace
	artifact, err := runStage(ctx, captureBudget, func(ctx context.Context) (*capture.Artifact, error) {
		return o.stages.Capturer.Capture(ctx, freq, o.config.CaptureDuration)
	})
	if err != nil {
		return nil, o.fail(log, StageCapturing, err)
	}
	defer func() {
		if err := artifact.Remove(); err != nil {
			log.Warn("Failed to remove audio artifact", logger.Error(err))
		}
	}()
	log.Info("Stage finished",
		logger.Stage(string(StageCapturing)),
		logger.Int64("bytes", artifact.Size),
		logger.Bool("truncated", artifact.Truncated))

	o.advance(StageTranscribing)
	transcript, err := runStage(ctx, o.config.TranscribeTimeout, func(ctx context.Context) (*transcription.Transcript, error) {
		return withRetry(ctx, o.config.RetryBackoff, func(ctx context.Context) (*transcription.Transcript, error) {
			return o.stages.Transcriber.Transcribe(ctx, artifact)
		}, o.retryNotifier(log, StageTranscribing))
	})
	if err != nil {
		return nil, o.fail(log, StageTranscribing, err)
	}
	log.Info("Stage finished",
		logger.Stage(string(StageTranscribing)),
		logger.Int("chars", len(transcript.Text)))

	o.advance(StageStructuring)
	report, err := runStage(ctx, o.config.StructureTimeout, func(ctx context.Context) (*weather.Report, error) {
		return withRetry(ctx, o.config.RetryBackoff, func(ctx context.Context) (*weather.Report, error) {
			return o.stages.Structurer.Structure(ctx, transcript)
		}, o.retryNotifier(log, StageStructuring))
	})
	if err != nil {
		return nil, o.fail(log, StageStructuring, err)
	}
	log.Info("Stage finished",
		logger.Stage(string(StageStructuring)),
		logger.Int("fields_present", report.PresentCount()))

	result := &Result{
		SessionID:   session.ID,
		AirportCode: freq.Airport,
		AirportName: freq.Name,
		Transcript:  transcript,
		Report:      report,
		Outcome:     OutcomeCompleted,
		StartedAt:   session.StartedAt,
	}

	if !o.config.IllustrationEnabled || o.stages.Illustrator == nil {
		result.Outcome = OutcomeDegraded
		result.DegradedReason = DegradedIllustrationDisabled
	} else {
		o.advance(StageIllustrating)
		image, err := runStage(ctx, o.config.IllustrateTimeout, func(ctx context.Context) (*illustration.ImageRef, error) {
			return withRetry(ctx, o.config.RetryBackoff, func(ctx context.Context) (*illustration.ImageRef, error) {
				return o.stages.Illustrator.Illustrate(ctx, report, freq.Airport)
			}, o.retryNotifier(log, StageIllustrating))
		})
		if err != nil {
			// The transcript and translation are still worth returning
			log.Warn("Illustration failed, returning result without image", logger.Error(err))
			result.Outcome = OutcomeDegraded
			result.DegradedReason = DegradedIllustrationFailed
		} else {
			result.Image = image
		}
	}

	result.FinishedAt = o.now()
	log.Info("ATIS run complete",
		logger.String("outcome", string(result.Outcome)),
		logger.Duration("duration", result.FinishedAt.Sub(result.StartedAt)))

	return result, nil
}

// runStage calls fn under its own time budget. A zero budget means no
// stage-level deadline.
func runStage[T any](ctx context.Context, budget time.Duration, fn func(context.Context) (T, error)) (T, error) {
	if budget <= 0 {
		return fn(ctx)
	}

	stageCtx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	result, err := fn(stageCtx)
	if err != nil && errors.Is(stageCtx.Err(), context.DeadlineExceeded) && !errors.Is(err, context.DeadlineExceeded) {
		err = fmt.Errorf("%w: %w", context.DeadlineExceeded, err)
	}
	return result, err
}

// fail classifies and logs a stage failure
func (o *Orchestrator) fail(log *logger.Logger, stage Stage, err error) *Error {
	pipelineErr := classify(stage, err)
	log.Error("Stage failed",
		logger.Stage(string(stage)),
		logger.String("kind", string(pipelineErr.Kind)),
		logger.Error(err))
	return pipelineErr
}

func (o *Orchestrator) retryNotifier(log *logger.Logger, stage Stage) func(error, time.Duration) {
	return func(err error, wait time.Duration) {
		log.Warn("AI service unavailable, retrying once",
			logger.Stage(string(stage)),
			logger.Duration("backoff", wait),
			logger.Error(err))
	}
}

// begin records a new session and returns a copy of it
func (o *Orchestrator) begin(airportCode string) Session {
	now := o.now()
	session := &Session{
		ID:             uuid.NewString(),
		Airport:        airportCode,
		StartedAt:      now,
		Stage:          StageIdle,
		StageStartedAt: now,
	}

	o.mu.Lock()
	o.current = session
	o.mu.Unlock()

	return *session
}

// advance moves the current session to stage
func (o *Orchestrator) advance(stage Stage) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.current == nil {
		return
	}
	o.current.Stage = stage
	o.current.StageStartedAt = o.now()
	o.logger.Debug("Stage started",
		logger.String("session_id", o.current.ID),
		logger.Stage(string(stage)))
}

func (o *Orchestrator) currentStage() Stage {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.current == nil {
		return StageIdle
	}
	return o.current.Stage
}

// finish moves the current session to its terminal state and clears it
func (o *Orchestrator) finish(result *Result, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.current == nil {
		return
	}

	finished := o.now()
	session := o.current
	session.FinishedAt = &finished

	var pipelineErr *Error
	if errors.As(err, &pipelineErr) {
		session.FailedStage = pipelineErr.Stage
		session.Error = pipelineErr.Message
		session.Stage = StageFailed
	} else {
		session.Stage = StageCompleted
		if result != nil {
			session.Outcome = result.Outcome
		}
	}

	o.last = session
	o.current = nil
}

// Status returns a snapshot of the running and the last finished session
func (o *Orchestrator) Status() Status {
	o.mu.RLock()
	defer o.mu.RUnlock()

	status := Status{Busy: o.current != nil}
	if o.current != nil {
		current := *o.current
		status.Current = &current
	}
	if o.last != nil {
		last := *o.last
		status.Last = &last
	}
	return status
}
