package queue

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/felixgeelhaar/healthbuddy/internal/session"
)

// publisher is the part of Connection the producer needs.
type publisher interface {
	PublishJSON(ctx context.Context, queue string, data any) error
}

// Producer publishes completion events to the queue
type Producer struct {
	conn publisher
}

var _ session.Publisher = (*Producer)(nil)

// NewProducer creates a new queue producer
func NewProducer(conn *Connection) *Producer {
	return &Producer{conn: conn}
}

// PublishCompletion publishes the completion event of a finished session.
func (p *Producer) PublishCompletion(ctx context.Context, sess *session.Session) error {
	ev, err := NewCompletionEvent(sess)
	if err != nil {
		return err
	}
	return p.Publish(ctx, ev)
}

// Publish sends a prepared completion event.
func (p *Producer) Publish(ctx context.Context, ev *CompletionEvent) error {
	if err := p.conn.PublishJSON(ctx, CompletedQueueName, ev); err != nil {
		return fmt.Errorf("failed to publish completion event: %w", err)
	}

	slog.Info("published completion event",
		"event_id", ev.ID,
		"session_id", ev.SessionID,
		"persona", ev.Persona,
		"trainer", ev.Trainer,
	)

	return nil
}
