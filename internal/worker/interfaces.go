package worker

import (
	"context"

	"basegraph.app/concierge/internal/model"
	"basegraph.app/concierge/internal/queue"
	"basegraph.app/concierge/internal/triage"
)

// Consumer abstracts the message queue for testability.
type Consumer interface {
	Read(ctx context.Context) ([]queue.Message, error)
	Ack(ctx context.Context, msg queue.Message) error
	Requeue(ctx context.Context, msg queue.Message, errMsg string) error
	SendDLQ(ctx context.Context, msg queue.Message, errMsg string) error
}

// EventHandler runs one triage step for an event. *triage.Orchestrator
// satisfies it.
type EventHandler interface {
	Handle(ctx context.Context, ev model.Event) (*triage.Outcome, error)
}
