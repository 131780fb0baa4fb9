package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"solestore-backend/internal/apperr"
	"solestore-backend/internal/catalog"
	"solestore-backend/internal/inventory"
	"solestore-backend/internal/models"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// newTestStore connects to MONGO_TEST_URL with a throwaway database.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	uri := os.Getenv("MONGO_TEST_URL")
	if uri == "" {
		t.Skip("MONGO_TEST_URL not set")
	}
	log := logrus.New()
	log.SetLevel(logrus.WarnLevel)
	st, err := Connect(context.Background(), Options{
		URI:      uri,
		Database: fmt.Sprintf("solestore_test_%d", time.Now().UnixNano()),
	}, log)
	require.NoError(t, err)
	require.NoError(t, st.EnsureIndexes(context.Background()))
	t.Cleanup(func() {
		_ = st.db.Drop(context.Background())
		_ = st.Close(context.Background())
	})
	return st
}

func insertProduct(t *testing.T, st *Store, sizes ...models.SizeStock) models.Product {
	t.Helper()
	p := models.Product{Name: "Runner", Price: 90, Category: models.CategoryRunning, Sizes: sizes, IsActive: true,
		CreatedAt: time.Now().UTC(), UpdatedAt: time.Now().UTC()}
	require.NoError(t, st.InsertProduct(context.Background(), &p))
	return p
}

func TestMongoDecrementStockIsConditional(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	p := insertProduct(t, st, models.SizeStock{Size: 9, Stock: 2}, models.SizeStock{Size: 10, Stock: 0})

	updated, err := st.DecrementStock(ctx, p.ID, 9, 2)
	require.NoError(t, err)
	entry, _ := updated.SizeEntry(9)
	assert.Equal(t, 0, entry.Stock)

	_, err = st.DecrementStock(ctx, p.ID, 9, 1)
	var insufficient *inventory.InsufficientStockError
	require.True(t, errors.As(err, &insufficient))
	assert.Equal(t, 0, insufficient.Available)

	_, err = st.DecrementStock(ctx, p.ID, 11, 1)
	assert.True(t, errors.Is(err, inventory.ErrSizeUnavailable))
	_, err = st.DecrementStock(ctx, primitive.NewObjectID(), 9, 1)
	assert.True(t, errors.Is(err, inventory.ErrProductNotFound))

	found, err := st.IncrementStock(ctx, p.ID, 10, 3)
	require.NoError(t, err)
	assert.True(t, found)
	found, err = st.IncrementStock(ctx, p.ID, 12, 3)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestMongoConcurrentDecrement(t *testing.T) {
	st := newTestStore(t)
	p := insertProduct(t, st, models.SizeStock{Size: 9, Stock: 1})

	var wg sync.WaitGroup
	results := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := st.DecrementStock(context.Background(), p.ID, 9, 1)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	ok := 0
	for err := range results {
		if err == nil {
			ok++
		}
	}
	assert.Equal(t, 1, ok)
}

func TestMongoCompareAndSetStatus(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	o := models.Order{OrderNumber: "ORD-20260101-0000000A", OrderStatus: models.OrderProcessing,
		PaymentInfo: models.PaymentInfo{PaymentStatus: models.PaymentPaid}}
	require.NoError(t, st.InsertOrder(ctx, &o))

	ok, err := st.CompareAndSetStatus(ctx, o.ID, models.OrderProcessing, models.OrderCancelled, models.PaymentRefunded)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = st.CompareAndSetStatus(ctx, o.ID, models.OrderProcessing, models.OrderCancelled, models.PaymentRefunded)
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := st.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentRefunded, got.PaymentInfo.PaymentStatus)

	dup := models.Order{OrderNumber: o.OrderNumber}
	err = st.InsertOrder(ctx, &dup)
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
}

func TestMongoToggleHelpful(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	r := models.Review{Product: primitive.NewObjectID(), User: primitive.NewObjectID(), Rating: 4}
	require.NoError(t, st.InsertReview(ctx, &r))
	voter := primitive.NewObjectID()

	got, err := st.ToggleHelpful(ctx, r.ID, voter)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Helpful)
	assert.Len(t, got.HelpfulBy, 1)

	got, err = st.ToggleHelpful(ctx, r.ID, voter)
	require.NoError(t, err)
	assert.Equal(t, 0, got.Helpful)
	assert.Empty(t, got.HelpfulBy)

	_, err = st.ToggleHelpful(ctx, primitive.NewObjectID(), voter)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	dup := models.Review{Product: r.Product, User: r.User, Rating: 2}
	err = st.InsertReview(ctx, &dup)
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
}

func TestMongoDecrementStockSkipsInactiveProduct(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	p := insertProduct(t, st, models.SizeStock{Size: 9, Stock: 2})
	p.IsActive = false
	_, err := st.UpdateProduct(ctx, p, nil)
	require.NoError(t, err)

	_, err = st.DecrementStock(ctx, p.ID, 9, 1)
	assert.ErrorIs(t, err, inventory.ErrProductInactive)
	got, err := st.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	entry, _ := got.SizeEntry(9)
	assert.Equal(t, 2, entry.Stock)
}

func TestMongoUpdateProductKeepsStock(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	p := insertProduct(t, st, models.SizeStock{Size: 9, Stock: 5})
	_, err := st.DecrementStock(ctx, p.ID, 9, 2)
	require.NoError(t, err)

	edit := p
	edit.Price = 99
	edit.Sizes = []models.SizeStock{{Size: 9, Stock: 5}}
	got, err := st.UpdateProduct(ctx, edit, nil)
	require.NoError(t, err)
	assert.Equal(t, 99.0, got.Price)
	entry, _ := got.SizeEntry(9)
	assert.Equal(t, 3, entry.Stock)

	edit.Sizes = []models.SizeStock{{Size: 9, Stock: 3}, {Size: 10, Stock: 4}}
	_, err = st.UpdateProduct(ctx, edit, p.Sizes)
	assert.ErrorIs(t, err, catalog.ErrStockChanged)

	got, err = st.UpdateProduct(ctx, edit, []models.SizeStock{{Size: 9, Stock: 3}})
	require.NoError(t, err)
	assert.Len(t, got.Sizes, 2)
}

func TestMongoPaymentIntentIsUniqueAndSettledOrdersStay(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	o := models.Order{OrderNumber: "ORD-20260101-0000000B", OrderStatus: models.OrderProcessing,
		PaymentInfo: models.PaymentInfo{PaymentIntentID: "pi_mongo_1", PaymentStatus: models.PaymentPending}}
	require.NoError(t, st.InsertOrder(ctx, &o))

	reuse := models.Order{OrderNumber: "ORD-20260101-0000000C",
		PaymentInfo: models.PaymentInfo{PaymentIntentID: "pi_mongo_1"}}
	err := st.InsertOrder(ctx, &reuse)
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
	assert.Contains(t, err.Error(), "payment intent")

	ok, err := st.CompareAndSetStatus(ctx, o.ID, models.OrderProcessing, models.OrderCancelled, models.PaymentRefunded)
	require.NoError(t, err)
	require.True(t, ok)

	paidAt := time.Now().UTC()
	got, applied, err := st.SetPaymentStatusByIntent(ctx, "pi_mongo_1", models.PaymentPaid, &paidAt)
	require.NoError(t, err)
	assert.False(t, applied)
	assert.Equal(t, models.PaymentRefunded, got.PaymentInfo.PaymentStatus)

	_, _, err = st.SetPaymentStatusByIntent(ctx, "pi_mongo_missing", models.PaymentPaid, &paidAt)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}
