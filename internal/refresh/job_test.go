package refresh

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/maltedev/import-cost-control/internal/events"
	"github.com/maltedev/import-cost-control/internal/models"
	"github.com/maltedev/import-cost-control/internal/ratelimit"
	"github.com/maltedev/import-cost-control/internal/resolver"
	"github.com/maltedev/import-cost-control/internal/storage"
)

type MockStore struct {
	mock.Mock
}

func (m *MockStore) List(ctx context.Context) ([]*models.Product, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Product), args.Error(1)
}

func (m *MockStore) SavePricing(ctx context.Context, p *models.Product, change *events.PriceChangedPayload) error {
	args := m.Called(ctx, p, change)
	return args.Error(0)
}

// tableResolver answers from a map keyed by product input.
type tableResolver struct {
	results map[string]resolver.Result
	calls   []resolver.Request
}

func (r *tableResolver) Resolve(ctx context.Context, req resolver.Request) resolver.Result {
	r.calls = append(r.calls, req)
	key := req.ProductInput
	if key == "" {
		key = req.MyItemID
	}
	if res, ok := r.results[key]; ok {
		return res
	}
	return resolver.Failure(resolver.ErrNoPrice, 404, "no price")
}

type MockFlusher struct {
	mock.Mock
}

func (m *MockFlusher) Flush(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

func product(sku, mlID string, price float64) *models.Product {
	return &models.Product{
		ID:            uuid.New(),
		SKU:           sku,
		MLProductID:   mlID,
		Qty:           10,
		DeclaredUSD:   100,
		FreightUSD:    20,
		FX:            5,
		CommissionPct: 12,
		RevenueTaxPct: 6,
		ShippingFee:   15,
		ICMSInside:    true,
		MLPrice:       price,
	}
}

func TestJob_Run(t *testing.T) {
	ctx := context.Background()

	t.Run("updates prices and reports changes", func(t *testing.T) {
		moved := product("A", "MLB1", 250)
		steady := product("B", "MLB2", 199.9)
		missing := product("C", "MLB3", 100)

		sold := 3
		res := &tableResolver{results: map[string]resolver.Result{
			"MLB1": {OK: true, Price: 300, Source: resolver.SourceBuyBox, ItemID: "MLB1111111111", SoldWinner: &sold},
			"MLB2": {OK: true, Price: 199.9, Source: resolver.SourceItem, ItemID: "MLB2222222222"},
		}}

		store := new(MockStore)
		store.On("List", ctx).Return([]*models.Product{moved, steady, missing}, nil)

		var change *events.PriceChangedPayload
		store.On("SavePricing", ctx, moved, mock.AnythingOfType("*events.PriceChangedPayload")).
			Run(func(args mock.Arguments) { change = args.Get(2).(*events.PriceChangedPayload) }).
			Return(nil)
		store.On("SavePricing", ctx, steady, (*events.PriceChangedPayload)(nil)).Return(nil)

		flusher := new(MockFlusher)
		flusher.On("Flush", ctx).Return(1, nil)

		job := NewJob(store, res, ratelimit.NewJitterLimiter(0, 0), flusher, slog.Default())
		summary, err := job.Run(ctx)
		require.NoError(t, err)

		assert.Equal(t, 3, summary.Total)
		assert.Equal(t, 2, summary.Updated)
		assert.Equal(t, 1, summary.Changed)
		assert.Equal(t, 1, summary.Failed)
		assert.Equal(t, 1, summary.Published)
		require.Len(t, summary.Failures, 1)
		assert.Equal(t, "C", summary.Failures[0].SKU)
		assert.Equal(t, resolver.ErrNoPrice, summary.Failures[0].ErrorCode)

		assert.Equal(t, 300.0, moved.MLPrice)
		assert.Equal(t, "buy_box", moved.MLSource)
		assert.Equal(t, "MLB1111111111", moved.MLItemID)
		assert.Equal(t, 3, *moved.SoldWinner)
		assert.Equal(t, 115.66, moved.CostUnitBRL)
		assert.NotZero(t, moved.MarginAbs)

		require.NotNil(t, change)
		assert.Equal(t, moved.ID.String(), change.ProductID)
		assert.Equal(t, 250.0, change.OldPrice)
		assert.Equal(t, 300.0, change.NewPrice)
		assert.Equal(t, moved.MarginPct, change.MarginPct)

		assert.Equal(t, 100.0, missing.MLPrice, "failed products keep their old price")

		store.AssertExpectations(t)
		flusher.AssertExpectations(t)
	})

	t.Run("passes my item id", func(t *testing.T) {
		own := &models.Product{ID: uuid.New(), MyItemID: "MLB3520318133", Qty: 1}
		res := &tableResolver{results: map[string]resolver.Result{
			"MLB3520318133": {OK: true, Price: 10, Source: resolver.SourceItem},
		}}

		store := new(MockStore)
		store.On("List", ctx).Return([]*models.Product{own}, nil)
		store.On("SavePricing", ctx, own, mock.Anything).Return(nil)

		job := NewJob(store, res, nil, nil, slog.Default())
		_, err := job.Run(ctx)
		require.NoError(t, err)

		require.Len(t, res.calls, 1)
		assert.Equal(t, "", res.calls[0].ProductInput)
		assert.Equal(t, "MLB3520318133", res.calls[0].MyItemID)
	})

	t.Run("no flush without changes", func(t *testing.T) {
		store := new(MockStore)
		store.On("List", ctx).Return([]*models.Product{}, nil)

		flusher := new(MockFlusher)
		job := NewJob(store, &tableResolver{}, nil, flusher, slog.Default())

		summary, err := job.Run(ctx)
		require.NoError(t, err)
		assert.Zero(t, summary.Total)
		flusher.AssertNotCalled(t, "Flush", mock.Anything)
	})

	t.Run("list failure", func(t *testing.T) {
		store := new(MockStore)
		store.On("List", ctx).Return(nil, errors.New("connection refused"))

		job := NewJob(store, &tableResolver{}, nil, nil, slog.Default())
		_, err := job.Run(ctx)
		assert.ErrorContains(t, err, "connection refused")
	})

	t.Run("save failure is counted", func(t *testing.T) {
		p := product("A", "MLB1", 0)
		res := &tableResolver{results: map[string]resolver.Result{
			"MLB1": {OK: true, Price: 50, Source: resolver.SourceSearch},
		}}

		store := new(MockStore)
		store.On("List", ctx).Return([]*models.Product{p}, nil)
		store.On("SavePricing", ctx, p, mock.Anything).Return(errors.New("deadlock"))

		job := NewJob(store, res, nil, nil, slog.Default())
		summary, err := job.Run(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, summary.Failed)
		assert.Equal(t, 0, summary.Updated)
		assert.Equal(t, resolver.ErrInternal, summary.Failures[0].ErrorCode)
	})

	t.Run("cancelled while waiting", func(t *testing.T) {
		store := new(MockStore)
		store.On("List", mock.Anything).Return([]*models.Product{product("A", "MLB1", 0)}, nil)

		cctx, cancel := context.WithCancel(ctx)
		cancel()

		job := NewJob(store, &tableResolver{}, ratelimit.NewJitterLimiter(time.Hour, time.Hour), nil, slog.Default())
		_, err := job.Run(cctx)
		assert.Error(t, err)
	})

	t.Run("upstream errors slow the adaptive limiter", func(t *testing.T) {
		var products []*models.Product
		results := map[string]resolver.Result{}
		for i := 0; i < 3; i++ {
			p := product("S", uuid.NewString(), 0)
			products = append(products, p)
			results[p.MLProductID] = resolver.Failure(resolver.ErrUpstream, 503, "unavailable")
		}

		store := new(MockStore)
		store.On("List", ctx).Return(products, nil)

		limiter := ratelimit.NewAdaptiveRateLimiter(0, 0)
		limiter.SetDelay(time.Millisecond, time.Millisecond)

		job := NewJob(store, &tableResolver{results: results}, limiter, nil, slog.Default())
		summary, err := job.Run(ctx)
		require.NoError(t, err)
		assert.Equal(t, 3, summary.Failed)

		min, _ := limiter.Delays()
		assert.Equal(t, 1500*time.Microsecond, min)
	})
}

type fakeTx struct{ calls int }

func (f *fakeTx) Transaction(ctx context.Context, fn func(pgx.Tx) error) error {
	f.calls++
	return fn(nil)
}

type MockRepo struct {
	mock.Mock
}

func (m *MockRepo) List(ctx context.Context) ([]*models.Product, error) {
	args := m.Called(ctx)
	return args.Get(0).([]*models.Product), args.Error(1)
}

func (m *MockRepo) UpdatePricingWithTx(ctx context.Context, tx pgx.Tx, p *models.Product) error {
	args := m.Called(ctx, tx, p)
	return args.Error(0)
}

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) PublishPriceChangedWithTx(ctx context.Context, tx pgx.Tx, payload *events.PriceChangedPayload) error {
	args := m.Called(ctx, tx, payload)
	return args.Error(0)
}

func TestDBStore_SavePricing(t *testing.T) {
	ctx := context.Background()
	p := product("A", "MLB1", 10)

	t.Run("publishes change in the same transaction", func(t *testing.T) {
		tx := &fakeTx{}
		repo := new(MockRepo)
		pub := new(MockPublisher)
		change := &events.PriceChangedPayload{ProductID: p.ID.String(), NewPrice: 10}

		repo.On("UpdatePricingWithTx", ctx, mock.Anything, p).Return(nil)
		pub.On("PublishPriceChangedWithTx", ctx, mock.Anything, change).Return(nil)

		store := NewDBStore(tx, repo, pub)
		require.NoError(t, store.SavePricing(ctx, p, change))

		assert.Equal(t, 1, tx.calls)
		repo.AssertExpectations(t)
		pub.AssertExpectations(t)
	})

	t.Run("unchanged price publishes nothing", func(t *testing.T) {
		repo := new(MockRepo)
		pub := new(MockPublisher)
		repo.On("UpdatePricingWithTx", ctx, mock.Anything, p).Return(nil)

		store := NewDBStore(&fakeTx{}, repo, pub)
		require.NoError(t, store.SavePricing(ctx, p, nil))
		pub.AssertNotCalled(t, "PublishPriceChangedWithTx", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("update failure skips the event", func(t *testing.T) {
		repo := new(MockRepo)
		pub := new(MockPublisher)
		repo.On("UpdatePricingWithTx", ctx, mock.Anything, p).Return(errors.New("product not found"))

		store := NewDBStore(&fakeTx{}, repo, pub)
		err := store.SavePricing(ctx, p, &events.PriceChangedPayload{})
		assert.Error(t, err)
		pub.AssertNotCalled(t, "PublishPriceChangedWithTx", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestFileStore(t *testing.T) {
	ctx := context.Background()

	file, err := storage.NewProductFile(filepath.Join(t.TempDir(), "products.json"))
	require.NoError(t, err)

	p := product("A", "MLB1", 0)
	require.NoError(t, file.Save(ctx, p))

	store := NewFileStore(file, slog.Default())
	res := &tableResolver{results: map[string]resolver.Result{
		"MLB1": {OK: true, Price: 349.9, Source: resolver.SourceSearch},
	}}

	summary, err := NewJob(store, res, nil, nil, slog.Default()).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Changed)

	got, err := file.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 349.9, got.MLPrice)
	assert.Equal(t, "search", got.MLSource)
	assert.Greater(t, got.MarginAbs, 0.0)
}
