package orders_test

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"testing"
	"time"

	"solestore-backend/internal/apperr"
	"solestore-backend/internal/auth"
	"solestore-backend/internal/events"
	"solestore-backend/internal/inventory"
	"solestore-backend/internal/models"
	"solestore-backend/internal/orders"
	"solestore-backend/internal/payment"
	"solestore-backend/internal/store/memstore"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.OrderEvent
}

func (p *recordingPublisher) Publish(_ context.Context, ev events.OrderEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, ev := range p.events {
		out = append(out, ev.Type)
	}
	return out
}

type fixedPayments struct {
	status models.PaymentStatus
	amount int64
	err    error
}

func (f fixedPayments) LookupIntent(_ context.Context, id string) (payment.Intent, error) {
	return payment.Intent{ID: id, Status: f.status, Amount: f.amount}, f.err
}

type chanMailer chan models.Order

func (m chanMailer) SendOrderConfirmation(_ context.Context, o models.Order) error {
	m <- o
	return nil
}

type fixture struct {
	store   *memstore.Store
	svc     *orders.Service
	events  *recordingPublisher
	product models.Product
	user    *auth.AuthContext
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

func newFixture(t *testing.T, mutate func(*orders.Deps)) *fixture {
	t.Helper()
	st := memstore.New()
	p := models.Product{
		Name:     "Trail Runner",
		Price:    100,
		Category: models.CategoryRunning,
		Images:   []string{"trail-1.jpg", "trail-2.jpg"},
		Sizes:    []models.SizeStock{{Size: 9, Stock: 3}, {Size: 10, Stock: 1}},
		IsActive: true,
	}
	require.NoError(t, st.InsertProduct(context.Background(), &p))

	pub := &recordingPublisher{}
	log := quietLogger()
	deps := orders.Deps{
		Store:     st,
		Inventory: inventory.NewReserver(st, log),
		Tx:        st,
		Events:    pub,
		Log:       log,
	}
	if mutate != nil {
		mutate(&deps)
	}
	return &fixture{
		store:   st,
		svc:     orders.NewService(deps),
		events:  pub,
		product: p,
		user:    &auth.AuthContext{UserID: primitive.NewObjectID(), Role: models.RoleUser},
	}
}

func (f *fixture) stock(t *testing.T, size float64) int {
	t.Helper()
	p, err := f.store.GetProduct(context.Background(), f.product.ID)
	require.NoError(t, err)
	entry, _ := p.SizeEntry(size)
	return entry.Stock
}

func (f *fixture) request(qty int) orders.CheckoutRequest {
	subtotal := f.product.Price * float64(qty)
	return orders.CheckoutRequest{
		Items: []orders.CheckoutItem{{ProductID: f.product.ID, Size: 9, Quantity: qty}},
		ShippingInfo: &models.ShippingInfo{
			FullName: "Sam Doe", Address: "1 Main St", City: "Springfield",
		},
		Pricing: &models.Pricing{Subtotal: subtotal, Shipping: 10, Tax: 8, Total: subtotal + 18},
	}
}

func (f *fixture) place(t *testing.T, caller *auth.AuthContext, qty int) models.Order {
	t.Helper()
	order, err := f.svc.Checkout(context.Background(), caller, f.request(qty))
	require.NoError(t, err)
	return order
}

func TestCheckoutReservesStockAndSnapshotsItems(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.store.SaveCart(context.Background(), f.user.UserID, []models.CartItem{{Product: f.product.ID, Size: 9, Quantity: 2}})
	require.NoError(t, err)

	order := f.place(t, f.user, 2)

	assert.Equal(t, 1, f.stock(t, 9))
	assert.Equal(t, models.OrderProcessing, order.OrderStatus)
	assert.Equal(t, models.PaymentPending, order.PaymentInfo.PaymentStatus)
	assert.Equal(t, "card", order.PaymentInfo.PaymentMethod)
	assert.Regexp(t, regexp.MustCompile(`^ORD-\d{8}-[0-9A-F]{8}$`), order.OrderNumber)
	require.Len(t, order.Items, 1)
	assert.Equal(t, "Trail Runner", order.Items[0].Name)
	assert.Equal(t, 100.0, order.Items[0].Price)
	assert.Equal(t, "trail-1.jpg", order.Items[0].Image)
	require.NotNil(t, order.User)
	assert.Equal(t, f.user.UserID, *order.User)

	cart, err := f.store.GetCart(context.Background(), f.user.UserID)
	require.NoError(t, err)
	assert.Empty(t, cart.Items)
	assert.Equal(t, []string{events.TypeOrderCreated}, f.events.types())

	stored, err := f.store.GetOrder(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, order.OrderNumber, stored.OrderNumber)
}

func TestCheckoutAsGuest(t *testing.T) {
	f := newFixture(t, nil)
	order := f.place(t, nil, 1)
	assert.Nil(t, order.User)
	assert.True(t, order.IsGuest())
}

func TestCheckoutRejectsPricingMismatch(t *testing.T) {
	f := newFixture(t, nil)

	req := f.request(1)
	req.Pricing.Total = 500
	_, err := f.svc.Checkout(context.Background(), f.user, req)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	req = f.request(1)
	req.Pricing.Subtotal = 50
	req.Pricing.Total = 68
	_, err = f.svc.Checkout(context.Background(), f.user, req)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	assert.Contains(t, err.Error(), "subtotal")

	assert.Equal(t, 3, f.stock(t, 9))
	list, total, err := f.store.ListOrders(context.Background(), orders.Filter{Page: 1, Limit: 10})
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.Zero(t, total)
}

func TestCheckoutRejectsMissingFields(t *testing.T) {
	f := newFixture(t, nil)

	req := f.request(1)
	req.ShippingInfo = nil
	_, err := f.svc.Checkout(context.Background(), nil, req)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	req = f.request(1)
	req.Items = nil
	_, err = f.svc.Checkout(context.Background(), nil, req)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	req = f.request(1)
	req.Items[0].ProductID = primitive.NilObjectID
	_, err = f.svc.Checkout(context.Background(), nil, req)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestCheckoutInsufficientStock(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.svc.Checkout(context.Background(), f.user, f.request(4))

	var insufficient *inventory.InsufficientStockError
	require.True(t, errors.As(err, &insufficient))
	assert.Equal(t, 3, insufficient.Available)
	assert.Equal(t, 3, f.stock(t, 9))
	assert.Empty(t, f.events.types())
}

func TestCheckoutMarksConfirmedPaymentPaid(t *testing.T) {
	mail := make(chanMailer, 1)
	f := newFixture(t, func(d *orders.Deps) {
		d.Payments = fixedPayments{status: models.PaymentPaid, amount: 11800}
		d.Mailer = mail
	})
	req := f.request(1)
	req.PaymentIntentID = "pi_123"
	req.ShippingInfo.Email = "sam@example.com"

	order, err := f.svc.Checkout(context.Background(), f.user, req)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentPaid, order.PaymentInfo.PaymentStatus)
	assert.NotNil(t, order.PaymentInfo.PaidAt)

	select {
	case sent := <-mail:
		assert.Equal(t, order.OrderNumber, sent.OrderNumber)
	case <-time.After(2 * time.Second):
		t.Fatal("confirmation mail was not sent")
	}
}

func TestCheckoutLeavesPaymentPendingWhenGatewayFails(t *testing.T) {
	f := newFixture(t, func(d *orders.Deps) {
		d.Payments = fixedPayments{err: errors.New("gateway down")}
	})
	req := f.request(1)
	req.PaymentIntentID = "pi_123"

	order, err := f.svc.Checkout(context.Background(), f.user, req)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentPending, order.PaymentInfo.PaymentStatus)
}

func TestOwnerCancelRestoresStockOnce(t *testing.T) {
	f := newFixture(t, nil)
	order := f.place(t, f.user, 2)
	require.Equal(t, 1, f.stock(t, 9))

	cancelled, err := f.svc.CancelByOwner(context.Background(), f.user, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderCancelled, cancelled.OrderStatus)
	assert.Equal(t, models.PaymentRefunded, cancelled.PaymentInfo.PaymentStatus)
	assert.Equal(t, 3, f.stock(t, 9))

	_, err = f.svc.CancelByOwner(context.Background(), f.user, order.ID)
	assert.Equal(t, apperr.KindInvalidTransition, apperr.KindOf(err))
	assert.Contains(t, err.Error(), "already cancelled")
	assert.Equal(t, 3, f.stock(t, 9))

	assert.Equal(t, []string{events.TypeOrderCreated, events.TypeOrderCancelled}, f.events.types())
}

func TestOwnerCannotCancelShippedButAdminCan(t *testing.T) {
	f := newFixture(t, nil)
	order := f.place(t, f.user, 1)
	_, err := f.svc.SetStatus(context.Background(), order.ID, "shipped")
	require.NoError(t, err)

	_, err = f.svc.CancelByOwner(context.Background(), f.user, order.ID)
	assert.Equal(t, apperr.KindInvalidTransition, apperr.KindOf(err))
	assert.Contains(t, err.Error(), "contact support")
	assert.Equal(t, 2, f.stock(t, 9))

	cancelled, err := f.svc.CancelByAdmin(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderCancelled, cancelled.OrderStatus)
	assert.Equal(t, 3, f.stock(t, 9))
}

func TestAdminCannotCancelDelivered(t *testing.T) {
	f := newFixture(t, nil)
	order := f.place(t, f.user, 1)
	_, err := f.svc.SetStatus(context.Background(), order.ID, "delivered")
	require.NoError(t, err)

	_, err = f.svc.CancelByAdmin(context.Background(), order.ID)
	assert.Equal(t, apperr.KindInvalidTransition, apperr.KindOf(err))
	assert.Contains(t, err.Error(), "process a return instead")
	assert.Equal(t, 2, f.stock(t, 9))
}

func TestCancelRequiresOwnership(t *testing.T) {
	f := newFixture(t, nil)
	order := f.place(t, f.user, 1)
	stranger := &auth.AuthContext{UserID: primitive.NewObjectID(), Role: models.RoleUser}

	_, err := f.svc.CancelByOwner(context.Background(), stranger, order.ID)
	assert.Equal(t, apperr.KindUnauthorized, apperr.KindOf(err))

	_, err = f.svc.CancelByOwner(context.Background(), nil, order.ID)
	assert.Equal(t, apperr.KindUnauthenticated, apperr.KindOf(err))

	guestOrder := f.place(t, nil, 1)
	_, err = f.svc.CancelByOwner(context.Background(), f.user, guestOrder.ID)
	assert.Equal(t, apperr.KindUnauthorized, apperr.KindOf(err))

	_, err = f.svc.CancelByOwner(context.Background(), f.user, primitive.NewObjectID())
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

type failingRelease struct {
	*inventory.Reserver
}

func (failingRelease) Release(context.Context, []inventory.Line) (int, error) {
	return 0, errors.New("write conflict")
}

func TestCancelRevertsStatusWhenReleaseFails(t *testing.T) {
	f := newFixture(t, func(d *orders.Deps) {
		d.Inventory = failingRelease{Reserver: d.Inventory.(*inventory.Reserver)}
	})
	order := f.place(t, f.user, 1)

	_, err := f.svc.CancelByOwner(context.Background(), f.user, order.ID)
	require.Error(t, err)

	stored, err := f.store.GetOrder(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderProcessing, stored.OrderStatus)
	assert.Equal(t, models.PaymentPending, stored.PaymentInfo.PaymentStatus)
	assert.Equal(t, 2, f.stock(t, 9))
}

func TestConcurrentCancelsRestoreOnce(t *testing.T) {
	f := newFixture(t, nil)
	order := f.place(t, f.user, 2)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(admin bool) {
			defer wg.Done()
			var err error
			if admin {
				_, err = f.svc.CancelByAdmin(context.Background(), order.ID)
			} else {
				_, err = f.svc.CancelByOwner(context.Background(), f.user, order.ID)
			}
			if err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}(i%2 == 0)
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, 3, f.stock(t, 9))
}

func TestSetStatusIsDirectWrite(t *testing.T) {
	f := newFixture(t, nil)
	order := f.place(t, f.user, 1)

	_, err := f.svc.SetStatus(context.Background(), order.ID, "lost")
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	updated, err := f.svc.SetStatus(context.Background(), order.ID, "cancelled")
	require.NoError(t, err)
	assert.Equal(t, models.OrderCancelled, updated.OrderStatus)
	assert.Equal(t, 2, f.stock(t, 9), "direct status write does not restore stock")

	updated, err = f.svc.SetStatus(context.Background(), order.ID, "processing")
	require.NoError(t, err)
	assert.Equal(t, models.OrderProcessing, updated.OrderStatus)
}

func TestGetChecksVisibility(t *testing.T) {
	f := newFixture(t, nil)
	order := f.place(t, f.user, 1)

	got, err := f.svc.Get(context.Background(), f.user, order.ID)
	require.NoError(t, err)
	assert.Equal(t, order.ID, got.ID)

	_, err = f.svc.Get(context.Background(), &auth.AuthContext{UserID: primitive.NewObjectID(), Role: models.RoleUser}, order.ID)
	assert.Equal(t, apperr.KindUnauthorized, apperr.KindOf(err))

	_, err = f.svc.Get(context.Background(), &auth.AuthContext{UserID: primitive.NewObjectID(), Role: models.RoleAdmin}, order.ID)
	assert.NoError(t, err)
}

func TestListAllFiltersByStatus(t *testing.T) {
	f := newFixture(t, nil)
	first := f.place(t, f.user, 1)
	f.place(t, nil, 1)
	_, err := f.svc.SetStatus(context.Background(), first.ID, "shipped")
	require.NoError(t, err)

	list, total, err := f.svc.ListAll(context.Background(), orders.Filter{Status: models.OrderShipped})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	require.Len(t, list, 1)
	assert.Equal(t, first.ID, list[0].ID)

	_, _, err = f.svc.ListAll(context.Background(), orders.Filter{Status: "lost"})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	mine, err := f.svc.ListMine(context.Background(), f.user)
	require.NoError(t, err)
	assert.Len(t, mine, 1)
}

func TestRecordPayment(t *testing.T) {
	f := newFixture(t, nil)
	req := f.request(1)
	req.PaymentIntentID = "pi_abc"
	_, err := f.svc.Checkout(context.Background(), f.user, req)
	require.NoError(t, err)

	order, recorded, err := f.svc.RecordPayment(context.Background(), "pi_abc", models.PaymentPaid, 11800)
	require.NoError(t, err)
	assert.True(t, recorded)
	assert.Equal(t, models.PaymentPaid, order.PaymentInfo.PaymentStatus)
	assert.NotNil(t, order.PaymentInfo.PaidAt)
	assert.Contains(t, f.events.types(), events.TypeOrderPaymentUpdate)

	_, _, err = f.svc.RecordPayment(context.Background(), "pi_missing", models.PaymentFailed, 0)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestRecordPaymentIgnoresAmountMismatch(t *testing.T) {
	f := newFixture(t, nil)
	req := f.request(1)
	req.PaymentIntentID = "pi_short"
	placed, err := f.svc.Checkout(context.Background(), f.user, req)
	require.NoError(t, err)

	_, recorded, err := f.svc.RecordPayment(context.Background(), "pi_short", models.PaymentPaid, 100)
	require.NoError(t, err)
	assert.False(t, recorded)

	got, err := f.store.GetOrder(context.Background(), placed.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentPending, got.PaymentInfo.PaymentStatus)
	assert.Nil(t, got.PaymentInfo.PaidAt)
}

func TestRecordPaymentLeavesCancelledOrderRefunded(t *testing.T) {
	f := newFixture(t, nil)
	req := f.request(1)
	req.PaymentIntentID = "pi_late"
	placed, err := f.svc.Checkout(context.Background(), f.user, req)
	require.NoError(t, err)
	_, err = f.svc.CancelByOwner(context.Background(), f.user, placed.ID)
	require.NoError(t, err)
	before := len(f.events.types())

	order, recorded, err := f.svc.RecordPayment(context.Background(), "pi_late", models.PaymentPaid, 11800)
	require.NoError(t, err)
	assert.False(t, recorded)
	assert.Equal(t, models.OrderCancelled, order.OrderStatus)

	got, err := f.store.GetOrder(context.Background(), placed.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderCancelled, got.OrderStatus)
	assert.Equal(t, models.PaymentRefunded, got.PaymentInfo.PaymentStatus)
	assert.Nil(t, got.PaymentInfo.PaidAt)
	assert.Len(t, f.events.types(), before)
}

func TestCheckoutRejectsIntentAlreadyUsed(t *testing.T) {
	f := newFixture(t, func(d *orders.Deps) {
		d.Payments = fixedPayments{status: models.PaymentPaid, amount: 11800}
	})
	req := f.request(1)
	req.PaymentIntentID = "pi_once"
	_, err := f.svc.Checkout(context.Background(), f.user, req)
	require.NoError(t, err)

	_, err = f.svc.Checkout(context.Background(), f.user, req)
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
	assert.Equal(t, 2, f.stock(t, 9))
}

func TestCheckoutLeavesPaymentPendingOnAmountMismatch(t *testing.T) {
	f := newFixture(t, func(d *orders.Deps) {
		d.Payments = fixedPayments{status: models.PaymentPaid, amount: 100}
	})
	req := f.request(2)
	req.PaymentIntentID = "pi_cheap"

	order, err := f.svc.Checkout(context.Background(), f.user, req)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentPending, order.PaymentInfo.PaymentStatus)
	assert.Nil(t, order.PaymentInfo.PaidAt)
}

// ctxStock and ctxOrders fail once their context is done, the way the Mongo
// driver does.
type ctxStock struct{ *memstore.Store }

func (c ctxStock) DecrementStock(ctx context.Context, id primitive.ObjectID, size float64, qty int) (models.Product, error) {
	if err := ctx.Err(); err != nil {
		return models.Product{}, err
	}
	return c.Store.DecrementStock(ctx, id, size, qty)
}

func (c ctxStock) IncrementStock(ctx context.Context, id primitive.ObjectID, size float64, qty int) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return c.Store.IncrementStock(ctx, id, size, qty)
}

type cancellingInsert struct {
	*memstore.Store
	cancel context.CancelFunc
}

func (c cancellingInsert) InsertOrder(context.Context, *models.Order) error {
	c.cancel()
	return errors.New("connection reset")
}

func TestCheckoutReleasesStockAfterRequestCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f := newFixture(t, func(d *orders.Deps) {
		st := d.Store.(*memstore.Store)
		d.Store = cancellingInsert{Store: st, cancel: cancel}
		d.Inventory = inventory.NewReserver(ctxStock{st}, quietLogger())
	})

	_, err := f.svc.Checkout(ctx, f.user, f.request(2))
	require.Error(t, err)
	assert.Equal(t, 3, f.stock(t, 9))
}

type ctxOrders struct{ *memstore.Store }

func (c ctxOrders) CompareAndSetStatus(ctx context.Context, id primitive.ObjectID, from, to models.OrderStatus, pay models.PaymentStatus) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return c.Store.CompareAndSetStatus(ctx, id, from, to, pay)
}

type cancellingRestock struct {
	*memstore.Store
	cancel context.CancelFunc
}

func (c cancellingRestock) IncrementStock(context.Context, primitive.ObjectID, float64, int) (bool, error) {
	c.cancel()
	return false, errors.New("connection reset")
}

func TestCancelRevertsStatusAfterRequestCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f := newFixture(t, func(d *orders.Deps) {
		st := d.Store.(*memstore.Store)
		d.Store = ctxOrders{st}
		d.Inventory = inventory.NewReserver(cancellingRestock{Store: st, cancel: cancel}, quietLogger())
	})
	order := f.place(t, f.user, 1)

	_, err := f.svc.CancelByOwner(ctx, f.user, order.ID)
	require.Error(t, err)

	got, err := f.store.GetOrder(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderProcessing, got.OrderStatus)
	assert.Equal(t, models.PaymentPending, got.PaymentInfo.PaymentStatus)
	assert.Equal(t, 2, f.stock(t, 9))
}

func TestNewOrderNumber(t *testing.T) {
	now := time.Date(2026, 3, 7, 12, 0, 0, 0, time.UTC)
	a := orders.NewOrderNumber(now)
	b := orders.NewOrderNumber(now)
	assert.Regexp(t, `^ORD-20260307-[0-9A-F]{8}$`, a)
	assert.NotEqual(t, a, b)
}
