// Package pipeline runs detection sessions: it pulls frames, runs the
// detector, and forwards results to displays and the snapshot recorder while
// an outside actor steers it through a control.Cell.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sethvargo/go-retry"

	"wastesort/internal/category"
	"wastesort/internal/control"
	"wastesort/internal/logger"
	"wastesort/internal/service/recorder"
	"wastesort/internal/source"
	"wastesort/internal/vision"
)

// FrameSource yields frames. See source.Source for the error contract.
type FrameSource interface {
	Next() (*vision.Frame, error)
}

// Detector finds objects in a frame. Any error ends the session.
type Detector interface {
	Infer(ctx context.Context, frame *vision.Frame) ([]vision.Detection, error)
}

// FrameAnnotator draws detections on a copy of a frame.
type FrameAnnotator interface {
	Annotate(frame *vision.Frame, detections []vision.Detection) (*vision.Frame, vision.LabelSet)
}

// AdvisoryAggregator turns a label set into advisory text.
type AdvisoryAggregator interface {
	Aggregate(labels vision.LabelSet) (string, error)
}

// DisplaySink shows frames and advisories. Calls never fail from the
// loop's point of view.
type DisplaySink interface {
	Present(frame *vision.Frame)
	PresentAdvisory(text string)
}

// SnapshotRecorder decides whether a processed frame is persisted.
type SnapshotRecorder interface {
	MaybePersist(frame *vision.Frame, counter int64, state control.State) (*recorder.PersistAction, error)
}

// StateReader gives read access to the control state.
type StateReader interface {
	Read() control.State
}

// Journal is told about every snapshot that was written.
type Journal interface {
	SnapshotSaved(action *recorder.PersistAction, frame *vision.Frame, detections []vision.Detection)
}

// ModelError wraps a detector failure.
type ModelError struct {
	Seq uint64
	Err error
}

func (e *ModelError) Error() string {
	return fmt.Sprintf("detector failed on frame %d: %v", e.Seq, e.Err)
}

func (e *ModelError) Unwrap() error {
	return e.Err
}

// Reason tells why a loop stopped.
type Reason string

const (
	ReasonExhausted    Reason = "exhausted"
	ReasonCancelled    Reason = "cancelled"
	ReasonModelError   Reason = "model_error"
	ReasonSourceError  Reason = "source_error"
	ReasonUnknownLabel Reason = "unknown_label"
)

// Result summarizes a finished loop.
type Result struct {
	Reason          Reason
	FramesProcessed int64
	Snapshots       int64
}

// errExitRequested stops a retry sequence when Exiting is observed.
var errExitRequested = errors.New("exit requested")

// Deps are the collaborators of a Loop. Journal may be nil.
type Deps struct {
	Source     FrameSource
	Detector   Detector
	Annotator  FrameAnnotator
	Aggregator AdvisoryAggregator
	Recorder   SnapshotRecorder
	Display    DisplaySink
	State      StateReader
	Journal    Journal
}

// Options tune waiting behavior.
type Options struct {
	PausePollInterval time.Duration
	RetryBase         time.Duration
	RetryMax          time.Duration
}

func (o Options) withDefaults() Options {
	if o.PausePollInterval <= 0 {
		o.PausePollInterval = 50 * time.Millisecond
	}
	if o.RetryBase <= 0 {
		o.RetryBase = 100 * time.Millisecond
	}
	if o.RetryMax <= 0 {
		o.RetryMax = 2 * time.Second
	}
	return o
}

// Loop is a single detection session. It runs on the calling goroutine
// and has no internal concurrency.
type Loop struct {
	deps    Deps
	opts    Options
	logger  *logger.Logger
	stats   *Stats
	counter int64
}

func NewLoop(deps Deps, opts Options, logger *logger.Logger) *Loop {
	return &Loop{
		deps:   deps,
		opts:   opts.withDefaults(),
		logger: logger,
		stats:  &Stats{},
	}
}

// Stats returns the live counters of the loop. Safe for concurrent use.
func (l *Loop) Stats() *Stats {
	return l.stats
}

// Run processes frames until the source is exhausted, Exiting is observed,
// ctx is cancelled, or a fatal error occurs. Exhaustion and cancellation
// return a nil error.
//
// The control state is re-read after every pull, after the detector
// returns, before a snapshot is written and before a frame is displayed.
// An in-flight detector call is never interrupted.
func (l *Loop) Run(ctx context.Context) (Result, error) {
	for {
		frame, err := l.pull(ctx)
		switch {
		case err == nil:
		case errors.Is(err, source.ErrExhausted):
			l.logger.Info("Source exhausted after %d frames", l.counter)
			return l.result(ReasonExhausted), nil
		case errors.Is(err, errExitRequested), ctx.Err() != nil:
			return l.stop(), nil
		default:
			l.logger.Error("Source failed: %v", err)
			return l.result(ReasonSourceError), fmt.Errorf("failed to read frame: %w", err)
		}

		if _, exiting := l.checkpoint(ctx); exiting {
			return l.stop(), nil
		}

		start := time.Now()
		detections, err := l.deps.Detector.Infer(ctx, frame)
		l.stats.LastInferenceNanos.Store(int64(time.Since(start)))
		if err != nil {
			if ctx.Err() != nil {
				return l.stop(), nil
			}
			merr := &ModelError{Seq: frame.Seq, Err: err}
			l.logger.Error("%v", merr)
			return l.result(ReasonModelError), merr
		}

		if _, exiting := l.checkpoint(ctx); exiting {
			return l.stop(), nil
		}

		annotated, labels := l.deps.Annotator.Annotate(frame, detections)
		advisory, err := l.deps.Aggregator.Aggregate(labels)
		if err != nil {
			l.logger.Error("Frame %d: %v", frame.Seq, err)
			if errors.Is(err, category.ErrUnknownLabel) {
				return l.result(ReasonUnknownLabel), err
			}
			return l.result(ReasonModelError), err
		}
		if advisory != "" {
			l.deps.Display.PresentAdvisory(advisory)
			l.stats.AdvisoriesPresented.Add(1)
		}

		index := l.counter
		l.counter++
		l.stats.FramesProcessed.Store(l.counter)

		state, exiting := l.checkpoint(ctx)
		if exiting {
			return l.stop(), nil
		}
		l.persist(annotated, detections, index, state)

		if _, exiting := l.checkpoint(ctx); exiting {
			return l.stop(), nil
		}
		l.deps.Display.Present(annotated)
	}
}

// pull reads the next frame, retrying transient failures forever with a
// capped exponential backoff.
func (l *Loop) pull(ctx context.Context) (*vision.Frame, error) {
	var frame *vision.Frame

	backoff := retry.WithCappedDuration(l.opts.RetryMax, retry.NewExponential(l.opts.RetryBase))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		if l.deps.State.Read().Mode == control.Exiting {
			return errExitRequested
		}

		f, err := l.deps.Source.Next()
		if errors.Is(err, source.ErrTransient) {
			n := l.stats.TransientErrors.Add(1)
			if n == 1 || n%100 == 0 {
				l.logger.Warning("Transient source error (%d so far), retrying: %v", n, err)
			}
			return retry.RetryableError(err)
		}
		if err != nil {
			return err
		}
		frame = f
		return nil
	})
	if err != nil {
		return nil, err
	}

	l.stats.FramesPulled.Add(1)
	return frame, nil
}

// checkpoint reads the control state, waiting while it is Paused. It
// reports exiting when the mode is Exiting or ctx is done.
func (l *Loop) checkpoint(ctx context.Context) (control.State, bool) {
	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		if ctx.Err() != nil {
			return control.State{}, true
		}

		state := l.deps.State.Read()
		switch state.Mode {
		case control.Running:
			return state, false
		case control.Exiting:
			return state, true
		case control.Paused:
			if timer == nil {
				timer = time.NewTimer(l.opts.PausePollInterval)
			} else {
				timer.Reset(l.opts.PausePollInterval)
			}
			select {
			case <-ctx.Done():
				return state, true
			case <-timer.C:
			}
		default:
			l.logger.Warning("Unknown control mode %v, treating as exiting", state.Mode)
			return state, true
		}
	}
}

func (l *Loop) persist(frame *vision.Frame, detections []vision.Detection, index int64, state control.State) {
	action, err := l.deps.Recorder.MaybePersist(frame, index, state)
	if err != nil {
		l.stats.SnapshotFailures.Add(1)
		l.logger.Warning("Frame %d: %v", frame.Seq, err)
		return
	}
	if action == nil {
		return
	}

	l.stats.SnapshotsWritten.Add(1)
	if l.deps.Journal != nil {
		l.deps.Journal.SnapshotSaved(action, frame, detections)
	}
}

func (l *Loop) stop() Result {
	l.logger.Info("Detection loop stopped on request after %d frames", l.counter)
	return l.result(ReasonCancelled)
}

func (l *Loop) result(reason Reason) Result {
	return Result{
		Reason:          reason,
		FramesProcessed: l.counter,
		Snapshots:       l.stats.SnapshotsWritten.Load(),
	}
}
