package events

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/recommendation-engine/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/recommendation-engine/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/recommendation-engine/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/recommendation-engine/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/recommendation-engine/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/recommendation-engine/pkg/resilience"
)

// Appender durably records applied events.
type Appender interface {
	Append(ctx context.Context, ev Event) error
}

// Handler applies consumed rating events to the engine.
type Handler struct {
	target  Target
	log     Appender
	breaker *resilience.CircuitBreaker
	retry   resilience.RetryConfig
	timeout time.Duration
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewHandler builds a Handler. log may be nil when the durable event log is
// disabled.
func NewHandler(t Target, log Appender, cfg config.WorkerConfig, m *metrics.Metrics) *Handler {
	h := &Handler{
		target: t,
		log:    log,
		retry: resilience.RetryConfig{
			MaxAttempts:  cfg.RetryAttempts,
			InitialDelay: cfg.RetryInitialDelay,
			Retryable: func(err error) bool {
				return transient(err) || errors.Is(err, resilience.ErrCircuitOpen)
			},
		},
		timeout: cfg.EventTimeout,
		metrics: m,
		logger:  slog.Default().With("component", "event-handler"),
	}
	h.breaker = resilience.NewCircuitBreaker("store", resilience.CircuitBreakerConfig{
		FailureThreshold: cfg.BreakerThreshold,
		ResetTimeout:     cfg.BreakerResetTimeout,
		IsFailure:        transient,
		OnStateChange: func(name string, to resilience.State) {
			m.BreakerState(name, int(to))
		},
	})
	return h
}

// transient reports errors worth another attempt: the store was down or
// the event ran out of time.
func transient(err error) bool {
	return errors.Is(err, apperrors.ErrStoreUnavailable) || errors.Is(err, context.DeadlineExceeded)
}

// MessageHandler adapts h to the Kafka consumer.
func (h *Handler) MessageHandler() kafka.MessageHandler {
	return h.Handle
}

// Handle decodes and applies one message. Messages that can never apply are
// logged and dropped by returning nil; store failures that outlast the
// retries are returned so the consumer redelivers the message.
func (h *Handler) Handle(ctx context.Context, key, value []byte) error {
	log := logger.FromContext(ctx)
	ev, err := kafka.DecodeJSON[Event](value)
	if err != nil {
		log.Warn("dropping undecodable event", "key", string(key), "error", err)
		h.metrics.RatingEvent("unknown", "dropped")
		return nil
	}
	if err := ev.Validate(); err != nil {
		log.Warn("dropping invalid event", "type", ev.Type, "error", err)
		h.metrics.RatingEvent(string(ev.Type), "dropped")
		return nil
	}

	if ev.Type == Activate && ev.Timestamp == nil {
		// Pin the activation time so a replay of the log rescores the same.
		now := time.Now().UTC()
		ev.Timestamp = &now
	}

	err = resilience.Retry(ctx, "apply-event", h.retry, func() error {
		return h.breaker.Execute(func() error {
			return resilience.WithTimeout(ctx, h.timeout, "apply "+string(ev.Type), func(ctx context.Context) error {
				return Apply(ctx, h.target, ev)
			})
		})
	})
	if err != nil {
		if errors.Is(err, apperrors.ErrInvalidInput) {
			log.Warn("dropping rejected event", "type", ev.Type, "error", err)
			h.metrics.RatingEvent(string(ev.Type), "dropped")
			return nil
		}
		log.Error("applying event failed",
			"type", ev.Type,
			"user_id", ev.UserID,
			"item_id", ev.ItemID,
			"error", err,
		)
		h.metrics.RatingEvent(string(ev.Type), "error")
		return err
	}
	h.metrics.RatingEvent(string(ev.Type), "applied")
	log.Debug("event applied", "type", ev.Type, "user_id", ev.UserID, "item_id", ev.ItemID)

	if h.log == nil {
		return nil
	}
	// The event already changed the store; a failed append must not
	// redeliver it.
	if err := h.log.Append(ctx, ev); err != nil {
		log.Warn("event log append failed", "type", ev.Type, "error", err)
		h.metrics.EventLogAppend("error")
		return nil
	}
	h.metrics.EventLogAppend("ok")
	return nil
}
