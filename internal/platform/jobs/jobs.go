// Package jobs runs long AI-backed operations in the background. A trigger
// persists a job record as PROCESSING, answers its HTTP request, and hands
// the record id to a Runner. The runner calls one external collaborator and
// writes exactly one terminal outcome back to the record.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

type Status string

const (
	StatusPending    Status = "PENDING"
	StatusProcessing Status = "PROCESSING"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
)

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

type Kind string

const (
	KindTranscription Kind = "audio_transcription"
	KindExamAnalysis  Kind = "exam_analysis"
	KindReport        Kind = "report_generation"
	KindCalendarSync  Kind = "calendar_sync"
)

// Sink writes the terminal outcome of a job onto its record. Complete must
// clear the error field and Fail must clear the result fields, so a record
// never carries both.
type Sink[R any] interface {
	Complete(ctx context.Context, id string, result R) error
	Fail(ctx context.Context, id string, message string) error
}

// Call performs the collaborator request and parses its response.
type Call[R any] func(ctx context.Context) (R, error)

// SinkFuncs adapts a pair of functions to Sink.
type SinkFuncs[R any] struct {
	CompleteFn func(ctx context.Context, id string, result R) error
	FailFn     func(ctx context.Context, id string, message string) error
}

func (s SinkFuncs[R]) Complete(ctx context.Context, id string, result R) error {
	return s.CompleteFn(ctx, id, result)
}

func (s SinkFuncs[R]) Fail(ctx context.Context, id string, message string) error {
	return s.FailFn(ctx, id, message)
}

// ErrorMapper turns a collaborator error into the message stored on the
// record.
type ErrorMapper func(error) string

// Execute runs call once and records the outcome through sink. A panic inside
// call is recovered and recorded as a failure. The returned error is the
// collaborator's (nil on success), joined with any terminal write error.
func Execute[R any](ctx context.Context, logger zerolog.Logger, kind Kind, id string, sink Sink[R], call Call[R], mapErr ErrorMapper) error {
	start := time.Now()
	log := logger.With().Str("job", string(kind)).Str("job_id", id).Logger()

	result, callErr := safeCall(ctx, log, call)
	if callErr != nil {
		msg := callErr.Error()
		if mapErr != nil {
			msg = mapErr(callErr)
		}
		if err := sink.Fail(ctx, id, msg); err != nil {
			log.Error().Err(err).Str("job_error", msg).Msg("failed to record job failure")
			return errors.Join(callErr, fmt.Errorf("record failure: %w", err))
		}
		log.Warn().Err(callErr).Dur("duration", time.Since(start)).Msg("job failed")
		return callErr
	}

	if err := sink.Complete(ctx, id, result); err != nil {
		log.Error().Err(err).Msg("failed to record job result")
		return fmt.Errorf("record result: %w", err)
	}
	log.Info().Dur("duration", time.Since(start)).Msg("job completed")
	return nil
}

func safeCall[R any](ctx context.Context, log zerolog.Logger, call Call[R]) (result R, err error) {
	defer func() {
		if r := recover(); r != nil {
			var stack [4096]byte
			n := runtime.Stack(stack[:], false)
			log.Error().
				Str("panic", fmt.Sprintf("%v", r)).
				Str("stack", string(stack[:n])).
				Msg("panic recovered in job")
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return call(ctx)
}

// Runner launches jobs on their own goroutines. It is created once per
// process; jobs never inherit a request context, so they outlive the request
// that triggered them and never join its database transaction.
type Runner struct {
	base     context.Context
	logger   zerolog.Logger
	wg       sync.WaitGroup
	inFlight atomic.Int64
}

// NewRunner returns a Runner whose jobs carry base's values but not its
// cancellation.
func NewRunner(base context.Context, logger zerolog.Logger) *Runner {
	return &Runner{
		base:   context.WithoutCancel(base),
		logger: logger,
	}
}

// Start runs Execute in the background and returns immediately.
func Start[R any](r *Runner, kind Kind, id string, sink Sink[R], call Call[R], mapErr ErrorMapper) {
	r.wg.Add(1)
	r.inFlight.Add(1)
	go func() {
		defer r.wg.Done()
		defer r.inFlight.Add(-1)
		defer func() {
			// A sink that panics must not take the process down.
			if p := recover(); p != nil {
				r.logger.Error().Str("job", string(kind)).Str("job_id", id).
					Str("panic", fmt.Sprintf("%v", p)).Msg("panic recovered in job runner")
			}
		}()
		_ = Execute(r.base, r.logger, kind, id, sink, call, mapErr)
	}()
}

// Run executes a job in the caller's goroutine, for endpoints that wait for
// the outcome.
func Run[R any](r *Runner, kind Kind, id string, sink Sink[R], call Call[R], mapErr ErrorMapper) error {
	return Execute(r.base, r.logger, kind, id, sink, call, mapErr)
}

func (r *Runner) InFlight() int { return int(r.inFlight.Load()) }

// Wait blocks until every started job has finished or ctx is done.
func (r *Runner) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%d jobs still running: %w", r.InFlight(), ctx.Err())
	}
}
