package result

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/acme/outbound-batch-dialer/internal/queue"
	"github.com/acme/outbound-batch-dialer/internal/repository"
	"github.com/acme/outbound-batch-dialer/pkg/logger"
)

const (
	defaultAttempts = 3
	defaultBackoff  = 200 * time.Millisecond
)

// Reader is the subset of kafka.Reader the worker consumes from.
type Reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
}

// Worker consumes dial results, stores them in the session history and
// folds them into the group tallies.
type Worker struct {
	reader   Reader
	store    repository.ResultStore
	stats    repository.GroupStatisticsRepository
	logger   *logger.Logger
	attempts int
	backoff  time.Duration
}

// New creates a result worker.
func New(reader Reader, store repository.ResultStore, stats repository.GroupStatisticsRepository, lg *logger.Logger) *Worker {
	if lg == nil {
		lg = logger.NewNop()
	}
	return &Worker{
		reader:   reader,
		store:    store,
		stats:    stats,
		logger:   lg,
		attempts: defaultAttempts,
		backoff:  defaultBackoff,
	}
}

// Run processes result events until the context is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	tracer := otel.Tracer("dialer.resultworker")

	for {
		msg, err := w.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			w.logger.Error("result worker: fetch", zap.Error(err))
			continue
		}

		var result queue.ResultMessage
		if err := json.Unmarshal(msg.Value, &result); err != nil {
			w.logger.Error("result worker: unmarshal",
				zap.Int("partition", msg.Partition),
				zap.Int64("offset", msg.Offset),
				zap.Error(err),
			)
			w.commit(ctx, msg)
			continue
		}

		sctx, span := tracer.Start(ctx, "dial.result", trace.WithAttributes(
			attribute.String("session.id", result.SessionID.String()),
			attribute.String("group.id", result.GroupID.String()),
			attribute.Int("sequence", result.Sequence),
			attribute.Bool("call.success", result.Success),
		))
		if err := w.handleWithRetry(sctx, result); err != nil {
			span.RecordError(err)
			w.logger.WithContext(sctx).Error("result worker: giving up on result",
				zap.String("session_id", result.SessionID.String()),
				zap.Int("sequence", result.Sequence),
				zap.Error(err),
			)
		}
		w.commit(sctx, msg)
		span.End()
	}
}

// Handle persists one result and applies its tally delta.
func (w *Worker) Handle(ctx context.Context, msg queue.ResultMessage) error {
	if err := w.store.AppendResult(ctx, msg.Record()); err != nil {
		return fmt.Errorf("append result: %w", err)
	}
	if err := w.stats.ApplyDelta(ctx, msg.GroupID, Delta(msg)); err != nil {
		return fmt.Errorf("apply stats: %w", err)
	}
	return nil
}

// Delta is the tally change one result contributes to its group.
func Delta(msg queue.ResultMessage) repository.StatsDelta {
	delta := repository.StatsDelta{TotalDelta: 1}
	if msg.Success {
		delta.SucceededDelta = 1
	} else {
		delta.FailedDelta = 1
	}
	return delta
}

func (w *Worker) handleWithRetry(ctx context.Context, msg queue.ResultMessage) error {
	var err error
	for attempt := 1; attempt <= w.attempts; attempt++ {
		if err = w.Handle(ctx, msg); err == nil {
			return nil
		}
		w.logger.WithContext(ctx).Warn("result worker: handle failed",
			zap.String("session_id", msg.SessionID.String()),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		if attempt == w.attempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(w.backoff * time.Duration(attempt)):
		}
	}
	return err
}

func (w *Worker) commit(ctx context.Context, msg kafka.Message) {
	if err := w.reader.CommitMessages(ctx, msg); err != nil {
		w.logger.Error("result worker: commit", zap.Error(err))
	}
}
