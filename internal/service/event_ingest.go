package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"basegraph.app/concierge/internal/model"
	"basegraph.app/concierge/internal/queue"
)

const DefaultDedupeTTL = 24 * time.Hour

var ErrInvalidEvent = errors.New("invalid event")

type EventIngestResult struct {
	DedupeKey  string
	Enqueued   bool
	Duplicated bool
}

type EventIngestService interface {
	Ingest(ctx context.Context, ev model.Event) (*EventIngestResult, error)
}

type eventIngestService struct {
	deduper   queue.Deduper
	queue     queue.Producer
	dedupeTTL time.Duration
	logger    *slog.Logger
}

// NewEventIngestService builds the ingest path shared by webhooks and the
// canonical ingest endpoint. A nil deduper enqueues every event.
func NewEventIngestService(deduper queue.Deduper, producer queue.Producer, dedupeTTL time.Duration, logger *slog.Logger) EventIngestService {
	if logger == nil {
		logger = slog.Default()
	}
	if dedupeTTL <= 0 {
		dedupeTTL = DefaultDedupeTTL
	}
	return &eventIngestService{
		deduper:   deduper,
		queue:     producer,
		dedupeTTL: dedupeTTL,
		logger:    logger,
	}
}

func (s *eventIngestService) Ingest(ctx context.Context, ev model.Event) (*EventIngestResult, error) {
	if err := validateEvent(ev); err != nil {
		return nil, err
	}

	dedupeKey, err := computeDedupeKey(ev)
	if err != nil {
		return nil, err
	}

	if s.deduper != nil {
		fresh, err := s.deduper.Claim(ctx, dedupeKey, s.dedupeTTL)
		if err != nil {
			return nil, err
		}
		if !fresh {
			s.logger.InfoContext(ctx, "duplicate event deduped",
				"event_id", ev.ID,
				"issue", ev.Issue.Ref.String(),
				"dedupe_key", dedupeKey)
			return &EventIngestResult{DedupeKey: dedupeKey, Duplicated: true}, nil
		}
	}

	if err := s.queue.Enqueue(ctx, queue.EventMessage{Event: ev, Attempt: 1}); err != nil {
		if s.deduper != nil {
			if relErr := s.deduper.Release(ctx, dedupeKey); relErr != nil {
				s.logger.WarnContext(ctx, "failed to release dedupe key", "error", relErr, "dedupe_key", dedupeKey)
			}
		}
		return nil, fmt.Errorf("enqueueing event: %w", err)
	}

	return &EventIngestResult{
		DedupeKey: dedupeKey,
		Enqueued:  true,
	}, nil
}

func validateEvent(ev model.Event) error {
	switch ev.Type {
	case model.EventIssueOpened:
	case model.EventCommentCreated:
		if ev.Comment == nil {
			return fmt.Errorf("%w: comment_created requires a comment", ErrInvalidEvent)
		}
	default:
		return fmt.Errorf("%w: unsupported type %q", ErrInvalidEvent, ev.Type)
	}

	ref := ev.Issue.Ref
	if ref.Provider != model.ProviderGitHub && ref.Provider != model.ProviderGitLab {
		return fmt.Errorf("%w: unknown provider %q", ErrInvalidEvent, ref.Provider)
	}
	if ref.Repo == "" || ref.Number <= 0 {
		return fmt.Errorf("%w: issue repo and number are required", ErrInvalidEvent)
	}
	return nil
}

func computeDedupeKey(ev model.Event) (string, error) {
	source := string(ev.Issue.Ref.Provider)
	if ev.ID != "" {
		return fmt.Sprintf("%s:%s:%s", source, ev.Type, ev.ID), nil
	}

	body := struct {
		Source    string          `json:"source"`
		EventType model.EventType `json:"event_type"`
		Issue     model.IssueRef  `json:"issue"`
		Comment   *model.Comment  `json:"comment,omitempty"`
		Body      string          `json:"body,omitempty"`
	}{
		Source:    source,
		EventType: ev.Type,
		Issue:     ev.Issue.Ref,
		Comment:   ev.Comment,
		Body:      ev.Issue.Body,
	}

	data, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshal dedupe payload: %w", err)
	}

	hash := sha256.Sum256(data)
	return fmt.Sprintf("%s:%s", source, hex.EncodeToString(hash[:])), nil
}
