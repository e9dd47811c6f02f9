package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/maltedev/import-cost-control/internal/database"
)

// EventType represents the type of event
type EventType string

const (
	// EventTypePriceChanged is published when a refresh finds a new marketplace price
	EventTypePriceChanged EventType = "PRICE_CHANGED"
)

// PriceChangedPayload is the body of a PRICE_CHANGED event.
type PriceChangedPayload struct {
	EventID     string    `json:"event_id"`
	EventType   string    `json:"event_type"`
	Timestamp   time.Time `json:"timestamp"`
	ProductID   string    `json:"product_id"`
	SKU         string    `json:"sku,omitempty"`
	MLProductID string    `json:"ml_product_id"`
	ItemID      string    `json:"item_id,omitempty"`
	Source      string    `json:"source"`
	OldPrice    float64   `json:"old_price"`
	NewPrice    float64   `json:"new_price"`
	MarginAbs   float64   `json:"margin_abs"`
	MarginPct   float64   `json:"margin_pct"`
}

// OutboxWriter is the part of the outbox repository the publisher needs.
type OutboxWriter interface {
	InsertWithTx(ctx context.Context, tx pgx.Tx, event *database.OutboxEvent) error
}

// Publisher records events in the transactional outbox; the relay delivers
// them to Redis later.
type Publisher struct {
	outbox OutboxWriter
	stream string
	logger *slog.Logger
}

func NewPublisher(outbox OutboxWriter, stream string, logger *slog.Logger) *Publisher {
	if stream == "" {
		stream = database.DefaultStream
	}
	return &Publisher{
		outbox: outbox,
		stream: stream,
		logger: logger.With("component", "event_publisher"),
	}
}

// PublishPriceChangedWithTx writes the event in tx so it commits together
// with the product update.
func (p *Publisher) PublishPriceChangedWithTx(ctx context.Context, tx pgx.Tx, payload *PriceChangedPayload) error {
	if payload.EventID == "" {
		payload.EventID = uuid.New().String()
	}
	if payload.EventType == "" {
		payload.EventType = string(EventTypePriceChanged)
	}
	if payload.Timestamp.IsZero() {
		payload.Timestamp = time.Now()
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	outboxEvent := &database.OutboxEvent{
		AggregateType: "product",
		AggregateID:   payload.ProductID,
		EventType:     payload.EventType,
		Payload:       data,
		TargetStream:  p.stream,
	}

	if err := p.outbox.InsertWithTx(ctx, tx, outboxEvent); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	p.logger.Info("event published to outbox",
		"type", payload.EventType,
		"event_id", payload.EventID,
		"product_id", payload.ProductID,
		"old_price", payload.OldPrice,
		"new_price", payload.NewPrice,
		"outbox_id", outboxEvent.ID,
	)

	return nil
}
