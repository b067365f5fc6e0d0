package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"basegraph.app/concierge/common/logger"
	"basegraph.app/concierge/internal/queue"
	"basegraph.app/concierge/internal/triage"
)

type Config struct {
	MaxAttempts int
	// MessageTimeout bounds one triage run, LLM calls included. Zero means no limit.
	MessageTimeout time.Duration
}

type Worker struct {
	consumer Consumer
	handler  EventHandler
	cfg      Config

	stopCh    chan struct{}
	stoppedCh chan struct{}
}

func New(consumer Consumer, handler EventHandler, cfg Config) *Worker {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	return &Worker{
		consumer:  consumer,
		handler:   handler,
		cfg:       cfg,
		stopCh:    make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}
}

func (w *Worker) Run(ctx context.Context) error {
	defer close(w.stoppedCh)

	ctx = logger.WithLogFields(ctx, logger.LogFields{
		Component: "concierge.worker",
	})
	slog.InfoContext(ctx, "worker started", "max_attempts", w.cfg.MaxAttempts)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.stopCh:
			slog.InfoContext(ctx, "worker stopping")
			return nil
		default:
			if err := w.processOneBatch(ctx); err != nil {
				slog.ErrorContext(ctx, "batch processing error", "error", err)
				select {
				case <-ctx.Done():
				case <-time.After(time.Second):
				}
			}
		}
	}
}

func (w *Worker) Stop() {
	close(w.stopCh)
	<-w.stoppedCh
}

func (w *Worker) processOneBatch(ctx context.Context) error {
	messages, err := w.consumer.Read(ctx)
	if err != nil {
		return fmt.Errorf("reading from stream: %w", err)
	}

	for _, msg := range messages {
		_ = w.HandleMessage(ctx, msg)
	}
	return nil
}

// HandleMessage processes msg and settles it: ack on success, requeue on a
// retryable failure with attempts left, DLQ otherwise.
func (w *Worker) HandleMessage(ctx context.Context, msg queue.Message) error {
	ctx = messageContext(ctx, msg)

	err := w.processMessageSafe(ctx, msg)
	if err == nil {
		if ackErr := w.consumer.Ack(ctx, msg); ackErr != nil {
			// The reclaimer redelivers it and the stored state makes the rerun a no-op.
			slog.WarnContext(ctx, "failed to ACK message", "error", ackErr)
		}
		return nil
	}

	slog.ErrorContext(ctx, "message processing failed", "error", err, "attempt", msg.Attempt)
	w.handleFailedMessage(ctx, msg, err)
	return err
}

func (w *Worker) processMessageSafe(ctx context.Context, msg queue.Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.ErrorContext(ctx, "panic recovered in message processing", "panic", r)
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return w.ProcessMessage(ctx, msg)
}

// ProcessMessage runs the handler for msg without settling it.
func (w *Worker) ProcessMessage(ctx context.Context, msg queue.Message) error {
	span := logger.StartSpanFromTraceID(ctx, msg.TraceID, "concierge.worker.process_message")
	defer span.End()
	ctx = span.Context()

	if w.cfg.MessageTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.cfg.MessageTimeout)
		defer cancel()
	}

	slog.InfoContext(ctx, "processing message",
		"event_id", msg.EventID,
		"attempt", msg.Attempt)

	start := time.Now()
	outcome, err := w.handler.Handle(ctx, msg.Event)
	if err != nil {
		span.RecordError(err)
		return err
	}

	slog.InfoContext(ctx, "message processed",
		"action", outcome.Action,
		"phase", outcome.Phase,
		"duration_ms", time.Since(start).Milliseconds())
	return nil
}

func (w *Worker) handleFailedMessage(ctx context.Context, msg queue.Message, err error) {
	if !triage.IsRetryable(err) {
		slog.ErrorContext(ctx, "non-retryable failure, sending to DLQ", "attempts", msg.Attempt)
		if dlqErr := w.consumer.SendDLQ(ctx, msg, err.Error()); dlqErr != nil {
			slog.ErrorContext(ctx, "failed to send to DLQ", "error", dlqErr)
		}
		return
	}

	if msg.Attempt >= w.cfg.MaxAttempts {
		slog.ErrorContext(ctx, "max attempts reached, sending to DLQ", "attempts", msg.Attempt)
		if dlqErr := w.consumer.SendDLQ(ctx, msg, err.Error()); dlqErr != nil {
			slog.ErrorContext(ctx, "failed to send to DLQ", "error", dlqErr)
		}
		return
	}

	slog.WarnContext(ctx, "requeuing failed message", "attempt", msg.Attempt)
	if requeueErr := w.consumer.Requeue(ctx, msg, err.Error()); requeueErr != nil {
		slog.ErrorContext(ctx, "failed to requeue message", "error", requeueErr)
	}
}

func messageContext(ctx context.Context, msg queue.Message) context.Context {
	ref := msg.Event.Issue.Ref
	return logger.WithLogFields(ctx, logger.LogFields{
		MessageID:   logger.Ptr(msg.ID),
		Repo:        logger.Ptr(ref.Repo),
		IssueNumber: logger.Ptr(ref.Number),
		EventType:   logger.Ptr(msg.EventType),
	})
}
