// Package review coordinates reviewer actions between the approval store and
// the pipeline backend.
//
// The store itself performs no I/O; the Submitter brackets each backend call
// with the processing flag and reports the outcome through the store. Every
// completion is checked against the checkpoint it was issued for, so a slow
// response landing after the pipeline has moved on is dropped instead of
// bleeding into the next checkpoint's review.
package review

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fernlabs/gateview/internal/approval"
	"github.com/fernlabs/gateview/internal/backend"
)

const instrumentationName = "github.com/fernlabs/gateview/internal/review"

// ErrNoCheckpoint is returned when an action needs an active checkpoint and
// there is none.
var ErrNoCheckpoint = errors.New("no active checkpoint")

// Backend is the slice of the backend client the submitter needs.
type Backend interface {
	SubmitFeedback(ctx context.Context, checkpointID string, req *backend.FeedbackRequest) (*approval.CheckpointFeedback, error)
	ListFeedback(ctx context.Context, checkpointID string) ([]approval.CheckpointFeedback, error)
	ApproveCheckpoint(ctx context.Context, checkpointID string) error
}

// Submitter mediates reviewer submit/approve actions.
type Submitter struct {
	store   *approval.Store
	backend Backend
	logger  *zap.Logger

	tracer        trace.Tracer
	meter         metric.Meter
	submitCounter metric.Int64Counter
	staleCounter  metric.Int64Counter
}

// NewSubmitter creates a submitter bound to a store and a backend.
func NewSubmitter(store *approval.Store, b Backend, logger *zap.Logger) (*Submitter, error) {
	if store == nil {
		return nil, errors.New("store is required")
	}
	if b == nil {
		return nil, errors.New("backend is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Submitter{
		store:   store,
		backend: b,
		logger:  logger,
		tracer:  otel.Tracer(instrumentationName),
		meter:   otel.Meter(instrumentationName),
	}
	s.initMetrics()

	return s, nil
}

func (s *Submitter) initMetrics() {
	var err error

	s.submitCounter, err = s.meter.Int64Counter(
		"gateview.review.submissions_total",
		metric.WithDescription("Total feedback submissions by outcome"),
		metric.WithUnit("{submission}"),
	)
	if err != nil {
		s.logger.Warn("failed to create submission counter", zap.Error(err))
	}

	s.staleCounter, err = s.meter.Int64Counter(
		"gateview.review.stale_completions_total",
		metric.WithDescription("Backend completions dropped because the checkpoint changed mid-flight"),
		metric.WithUnit("{completion}"),
	)
	if err != nil {
		s.logger.Warn("failed to create stale counter", zap.Error(err))
	}
}

// Submit posts reviewer feedback for the active checkpoint. The processing
// flag is set for the duration of the request. A completion that arrives
// after the checkpoint has been replaced is discarded; the processing flag is
// still cleared so the UI does not hang.
func (s *Submitter) Submit(ctx context.Context, text string, attachments []approval.Attachment) error {
	ctx, span := s.tracer.Start(ctx, "review.submit")
	defer span.End()

	cp := s.store.Checkpoint()
	if cp == nil {
		return ErrNoCheckpoint
	}
	issuedFor := cp.CheckpointID
	span.SetAttributes(attribute.String("checkpoint_id", issuedFor))

	s.store.SetProcessing(true)

	created, err := s.backend.SubmitFeedback(ctx, issuedFor, &backend.FeedbackRequest{
		ID:          uuid.New().String(),
		Feedback:    text,
		Attachments: attachments,
	})

	s.store.SetProcessing(false)
	if s.dropIfStale(issuedFor, "submit") {
		if err == nil {
			span.SetAttributes(attribute.Bool("stale", true))
		}
		return nil
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.store.SetError(err.Error())
		s.countSubmission(ctx, "error")
		return err
	}

	s.store.AddFeedback(*created)
	s.store.SetError("")
	s.countSubmission(ctx, "ok")

	s.logger.Info("feedback recorded",
		zap.String("checkpoint_id", issuedFor),
		zap.String("feedback_id", created.ID),
	)
	return nil
}

// Hydrate replaces the local feedback history with the backend's record for
// the active checkpoint. Stale completions are dropped like any other.
func (s *Submitter) Hydrate(ctx context.Context) error {
	ctx, span := s.tracer.Start(ctx, "review.hydrate")
	defer span.End()

	cp := s.store.Checkpoint()
	if cp == nil {
		return ErrNoCheckpoint
	}
	issuedFor := cp.CheckpointID
	span.SetAttributes(attribute.String("checkpoint_id", issuedFor))

	history, err := s.backend.ListFeedback(ctx, issuedFor)
	if s.dropIfStale(issuedFor, "hydrate") {
		return nil
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.store.SetError(err.Error())
		return err
	}

	s.store.SetFeedbackHistory(history)
	span.SetAttributes(attribute.Int("history_len", len(history)))
	return nil
}

// Approve signs off the active checkpoint. On success the store is fully
// cleared; the pipeline's own resume event arriving later is then a no-op.
func (s *Submitter) Approve(ctx context.Context) error {
	ctx, span := s.tracer.Start(ctx, "review.approve")
	defer span.End()

	cp := s.store.Checkpoint()
	if cp == nil {
		return ErrNoCheckpoint
	}
	issuedFor := cp.CheckpointID
	span.SetAttributes(attribute.String("checkpoint_id", issuedFor))

	s.store.SetProcessing(true)
	err := s.backend.ApproveCheckpoint(ctx, issuedFor)

	if s.dropIfStale(issuedFor, "approve") {
		s.store.SetProcessing(false)
		return nil
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.store.SetProcessing(false)
		s.store.SetError(err.Error())
		return err
	}

	s.store.Clear()
	s.logger.Info("checkpoint approved", zap.String("checkpoint_id", issuedFor))
	return nil
}

// dropIfStale reports whether the checkpoint the request was issued for is no
// longer current. The pipeline moving on is the de-facto cancellation signal;
// results issued for the old checkpoint must not be attributed to the new one.
func (s *Submitter) dropIfStale(issuedFor, op string) bool {
	cp := s.store.Checkpoint()
	if cp != nil && cp.CheckpointID == issuedFor {
		return false
	}

	current := ""
	if cp != nil {
		current = cp.CheckpointID
	}
	s.logger.Warn("dropping stale completion",
		zap.String("op", op),
		zap.String("issued_for", issuedFor),
		zap.String("current", current),
	)
	if s.staleCounter != nil {
		s.staleCounter.Add(context.Background(), 1, metric.WithAttributes(
			attribute.String("op", op),
		))
	}
	return true
}

func (s *Submitter) countSubmission(ctx context.Context, outcome string) {
	if s.submitCounter == nil {
		return
	}
	s.submitCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("outcome", outcome),
	))
}

// Timeout bounds a reviewer-triggered backend call.
const Timeout = 30 * time.Second
