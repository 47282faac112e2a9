package events

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/recommendation-engine/pkg/kafka"
)

// Sink is where published events go. *kafka.Producer satisfies it.
type Sink interface {
	Publish(ctx context.Context, event kafka.Event) error
}

// Publisher validates events and enqueues them on the rating topic.
type Publisher struct {
	sink   Sink
	logger *slog.Logger
}

// NewPublisher creates a Publisher writing to sink.
func NewPublisher(sink Sink) *Publisher {
	return &Publisher{
		sink:   sink,
		logger: slog.Default().With("component", "event-publisher"),
	}
}

// Publish validates ev and writes it keyed by Event.Key. Validation errors
// wrap ErrInvalidInput; nothing is written for them.
func (p *Publisher) Publish(ctx context.Context, ev Event) error {
	if err := ev.Validate(); err != nil {
		return err
	}
	if err := p.sink.Publish(ctx, kafka.Event{Key: ev.Key(), Value: ev}); err != nil {
		return fmt.Errorf("publishing %s event: %w", ev.Type, err)
	}
	p.logger.Debug("event published",
		"type", ev.Type,
		"user_id", ev.UserID,
		"item_id", ev.ItemID,
	)
	return nil
}
