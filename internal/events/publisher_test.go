package events

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/maltedev/import-cost-control/internal/database"
)

type MockOutboxWriter struct {
	mock.Mock
}

func (m *MockOutboxWriter) InsertWithTx(ctx context.Context, tx pgx.Tx, event *database.OutboxEvent) error {
	args := m.Called(ctx, tx, event)
	return args.Error(0)
}

func TestPublisher_PublishPriceChangedWithTx(t *testing.T) {
	ctx := context.Background()

	t.Run("writes event to the outbox", func(t *testing.T) {
		outbox := new(MockOutboxWriter)
		pub := NewPublisher(outbox, "", slog.Default())

		var captured *database.OutboxEvent
		outbox.On("InsertWithTx", ctx, mock.Anything, mock.AnythingOfType("*database.OutboxEvent")).
			Run(func(args mock.Arguments) {
				captured = args.Get(2).(*database.OutboxEvent)
			}).
			Return(nil)

		payload := &PriceChangedPayload{
			ProductID:   "3f0c",
			MLProductID: "MLB12345",
			Source:      "buy_box",
			OldPrice:    100,
			NewPrice:    89.9,
		}
		require.NoError(t, pub.PublishPriceChangedWithTx(ctx, nil, payload))

		assert.NotEmpty(t, payload.EventID)
		assert.Equal(t, "PRICE_CHANGED", payload.EventType)
		assert.False(t, payload.Timestamp.IsZero())

		require.NotNil(t, captured)
		assert.Equal(t, "product", captured.AggregateType)
		assert.Equal(t, "3f0c", captured.AggregateID)
		assert.Equal(t, "PRICE_CHANGED", captured.EventType)
		assert.Equal(t, database.DefaultStream, captured.TargetStream)

		var body map[string]any
		require.NoError(t, json.Unmarshal(captured.Payload, &body))
		assert.Equal(t, 89.9, body["new_price"])
		assert.Equal(t, "MLB12345", body["ml_product_id"])
		outbox.AssertExpectations(t)
	})

	t.Run("custom stream", func(t *testing.T) {
		outbox := new(MockOutboxWriter)
		pub := NewPublisher(outbox, "stream:custom", slog.Default())

		outbox.On("InsertWithTx", ctx, mock.Anything, mock.MatchedBy(func(e *database.OutboxEvent) bool {
			return e.TargetStream == "stream:custom"
		})).Return(nil)

		require.NoError(t, pub.PublishPriceChangedWithTx(ctx, nil, &PriceChangedPayload{ProductID: "x"}))
		outbox.AssertExpectations(t)
	})

	t.Run("outbox failure", func(t *testing.T) {
		outbox := new(MockOutboxWriter)
		pub := NewPublisher(outbox, "", slog.Default())

		outbox.On("InsertWithTx", ctx, mock.Anything, mock.Anything).Return(errors.New("deadlock detected"))

		err := pub.PublishPriceChangedWithTx(ctx, nil, &PriceChangedPayload{ProductID: "x"})
		assert.ErrorContains(t, err, "deadlock detected")
	})
}
