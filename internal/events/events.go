// Package events fans committed ledger logs out to downstream systems.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/congo-pay/custody/internal/ledger"
)

// Publisher delivers committed logs to downstream systems.
type Publisher interface {
	Publish(ctx context.Context, log ledger.Log) error
}

// Envelope is the wire form of a published log.
type Envelope struct {
	ID        string          `json:"id"`
	Contract  string          `json:"contract"`
	Topic     string          `json:"topic"`
	Data      json.RawMessage `json:"data"`
	CreatedAt time.Time       `json:"created_at"`
}

// NewEnvelope converts a ledger log to its wire form.
func NewEnvelope(log ledger.Log) Envelope {
	data := json.RawMessage(log.Data)
	if len(data) == 0 {
		data = json.RawMessage("null")
	}
	return Envelope{
		ID:        log.ID.String(),
		Contract:  log.Contract.Hex(),
		Topic:     log.Topic,
		Data:      data,
		CreatedAt: log.CreatedAt.UTC(),
	}
}

// LogPublisher writes logs to the structured logger.
type LogPublisher struct {
	logger *slog.Logger
}

// NewLogPublisher constructs a publisher backed by the logger.
func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

// Publish writes the log to the structured logger.
func (p *LogPublisher) Publish(_ context.Context, log ledger.Log) error {
	if p == nil || p.logger == nil {
		return nil
	}
	p.logger.Info("event", "topic", log.Topic, "contract", log.Contract.Hex(), "id", log.ID.String(), "data", string(log.Data))
	return nil
}

// Multi publishes to every publisher and joins their errors.
type Multi []Publisher

// Publish forwards the log to each publisher in order.
func (m Multi) Publish(ctx context.Context, log ledger.Log) error {
	var errs []error
	for _, p := range m {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, log); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
