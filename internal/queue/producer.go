package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"basegraph.app/concierge/internal/model"
)

type EventMessage struct {
	Event   model.Event
	TraceID *string
	Attempt int
}

type Producer interface {
	Enqueue(ctx context.Context, msg EventMessage) error
	Close() error
}

type redisProducer struct {
	client *redis.Client
	stream string
	logger *slog.Logger
}

func NewRedisProducer(client *redis.Client, stream string, logger *slog.Logger) Producer {
	if logger == nil {
		logger = slog.Default()
	}
	return &redisProducer{
		client: client,
		stream: stream,
		logger: logger,
	}
}

func (p *redisProducer) Enqueue(ctx context.Context, msg EventMessage) error {
	attempt := msg.Attempt
	if attempt <= 0 {
		attempt = 1
	}

	traceID := msg.Event.TraceID
	if msg.TraceID != nil && *msg.TraceID != "" {
		traceID = *msg.TraceID
	}

	fields, err := eventValues(msg.Event, attempt, traceID)
	if err != nil {
		return err
	}

	if err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		Values: fields,
	}).Err(); err != nil {
		return fmt.Errorf("enqueue event: %w", err)
	}

	p.logger.InfoContext(ctx, "enqueued event",
		"event_id", msg.Event.ID,
		"event_type", msg.Event.Type,
		"issue", msg.Event.Issue.Ref.String(),
		"attempt", attempt)
	return nil
}

func (p *redisProducer) Close() error {
	return p.client.Close()
}

func eventValues(ev model.Event, attempt int, traceID string) (map[string]any, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("marshal event: %w", err)
	}

	values := map[string]any{
		"event_type":   string(ev.Type),
		"provider":     string(ev.Issue.Ref.Provider),
		"repo":         ev.Issue.Ref.Repo,
		"issue_number": ev.Issue.Ref.Number,
		"payload":      string(payload),
		"attempt":      attempt,
	}
	if ev.ID != "" {
		values["event_id"] = ev.ID
	}
	if traceID != "" {
		values["trace_id"] = traceID
	}
	return values, nil
}
