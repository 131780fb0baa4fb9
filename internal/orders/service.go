// Package orders implements checkout and the order lifecycle.
package orders

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"solestore-backend/internal/apperr"
	"solestore-backend/internal/auth"
	"solestore-backend/internal/events"
	"solestore-backend/internal/inventory"
	"solestore-backend/internal/metrics"
	"solestore-backend/internal/models"
	"solestore-backend/internal/payment"
	"solestore-backend/pkg/logkey"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// priceTolerance absorbs float rounding in client-computed totals.
const priceTolerance = 0.01

type Store interface {
	InsertOrder(ctx context.Context, o *models.Order) error
	GetOrder(ctx context.Context, id primitive.ObjectID) (models.Order, error)
	ListOrdersByUser(ctx context.Context, userID primitive.ObjectID) ([]models.Order, error)
	ListOrders(ctx context.Context, f Filter) ([]models.Order, int64, error)
	// CompareAndSetStatus moves the order to `to` only while it is still in
	// `from`. A non-empty payment status is written in the same update.
	CompareAndSetStatus(ctx context.Context, id primitive.ObjectID, from, to models.OrderStatus, pay models.PaymentStatus) (bool, error)
	SetOrderStatus(ctx context.Context, id primitive.ObjectID, to models.OrderStatus) (models.Order, error)
	GetOrderByPaymentIntent(ctx context.Context, intentID string) (models.Order, error)
	// SetPaymentStatusByIntent writes the payment status of the order that
	// carries intentID unless it is cancelled or refunded. applied is false,
	// with the stored order returned, when that order is settled already.
	SetPaymentStatusByIntent(ctx context.Context, intentID string, status models.PaymentStatus, paidAt *time.Time) (order models.Order, applied bool, err error)
	ClearCart(ctx context.Context, userID primitive.ObjectID) error
}

type Filter struct {
	Status models.OrderStatus
	Page   int
	Limit  int
}

type Inventory interface {
	Reserve(ctx context.Context, lines []inventory.Line) (map[primitive.ObjectID]models.Product, error)
	Release(ctx context.Context, lines []inventory.Line) (int, error)
}

// TxRunner runs fn as one unit of work. Implementations without
// transaction support simply call fn.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type directRunner struct{}

func (directRunner) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type PaymentVerifier interface {
	LookupIntent(ctx context.Context, intentID string) (payment.Intent, error)
}

type Mailer interface {
	SendOrderConfirmation(ctx context.Context, o models.Order) error
}

type Deps struct {
	Store     Store
	Inventory Inventory
	Tx        TxRunner
	Payments  PaymentVerifier
	Events    events.Publisher
	Mailer    Mailer
	Log       *logrus.Logger
}

type Service struct {
	store     Store
	inventory Inventory
	tx        TxRunner
	payments  PaymentVerifier
	events    events.Publisher
	mailer    Mailer
	log       *logrus.Logger
	validate  *validator.Validate
	now       func() time.Time
}

func NewService(d Deps) *Service {
	s := &Service{
		store:     d.Store,
		inventory: d.Inventory,
		tx:        d.Tx,
		payments:  d.Payments,
		events:    d.Events,
		mailer:    d.Mailer,
		log:       d.Log,
		validate:  validator.New(),
		now:       time.Now,
	}
	if s.events == nil {
		s.events = events.Nop{}
	}
	if s.tx == nil {
		s.tx = directRunner{}
	}
	if s.log == nil {
		s.log = logrus.StandardLogger()
	}
	return s
}

type CheckoutItem struct {
	ProductID primitive.ObjectID `json:"productId"`
	Size      float64            `json:"size" validate:"gt=0"`
	Quantity  int                `json:"quantity" validate:"min=1"`
}

type CheckoutRequest struct {
	Items           []CheckoutItem       `json:"items" validate:"required,min=1,dive"`
	ShippingInfo    *models.ShippingInfo `json:"shippingInfo" validate:"required"`
	Pricing         *models.Pricing      `json:"pricing" validate:"required"`
	PaymentIntentID string               `json:"paymentIntentId"`
	PaymentMethod   string               `json:"paymentMethod"`
}

// ValidatePricing enforces non-negative amounts and total = subtotal+shipping+tax.
func ValidatePricing(p models.Pricing) error {
	if p.Subtotal < 0 || p.Shipping < 0 || p.Tax < 0 || p.Total < 0 {
		return apperr.Validation("pricing amounts must be non-negative")
	}
	if math.Abs(p.Subtotal+p.Shipping+p.Tax-p.Total) > priceTolerance {
		return apperr.Validation("pricing total %.2f does not equal subtotal+shipping+tax %.2f",
			p.Total, p.Subtotal+p.Shipping+p.Tax)
	}
	return nil
}

func (s *Service) validateCheckout(req CheckoutRequest) error {
	if err := s.validate.Struct(req); err != nil {
		return apperr.FromValidator(err)
	}
	for i, it := range req.Items {
		if it.ProductID.IsZero() {
			return apperr.Validation("items[%d].productId value missing", i)
		}
	}
	return ValidatePricing(*req.Pricing)
}

// Checkout reserves stock and records the order. caller is nil for guests.
func (s *Service) Checkout(ctx context.Context, caller *auth.AuthContext, req CheckoutRequest) (models.Order, error) {
	if err := s.validateCheckout(req); err != nil {
		return models.Order{}, err
	}

	lines := make([]inventory.Line, 0, len(req.Items))
	for _, it := range req.Items {
		lines = append(lines, inventory.Line{ProductID: it.ProductID, Size: it.Size, Quantity: it.Quantity})
	}

	now := s.now().UTC()
	order := models.Order{
		ID:           primitive.NewObjectID(),
		User:         caller.UserRef(),
		OrderNumber:  NewOrderNumber(now),
		ShippingInfo: *req.ShippingInfo,
		Pricing:      *req.Pricing,
		PaymentInfo: models.PaymentInfo{
			PaymentIntentID: strings.TrimSpace(req.PaymentIntentID),
			PaymentMethod:   paymentMethodOrDefault(req.PaymentMethod),
			PaymentStatus:   models.PaymentPending,
		},
		OrderStatus: models.OrderProcessing,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.applyPaymentStatus(ctx, &order)

	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		products, err := s.inventory.Reserve(ctx, lines)
		if err != nil {
			return err
		}
		release := func(cause error) error {
			if _, rerr := s.inventory.Release(context.WithoutCancel(ctx), lines); rerr != nil {
				s.log.WithFields(logrus.Fields{logkey.OrderNum: order.OrderNumber, logkey.ERROR: rerr}).
					Error("failed to release reservation after checkout failure")
			}
			return cause
		}

		order.Items = snapshotItems(req.Items, products)
		if err := checkSubtotal(order.Items, order.Pricing); err != nil {
			return release(err)
		}
		if err := s.store.InsertOrder(ctx, &order); err != nil {
			return release(err)
		}
		return nil
	})
	if err != nil {
		metrics.ObserveReservationFailure(err)
		return models.Order{}, err
	}
	metrics.OrdersCreated.Inc()

	if order.User != nil {
		if err := s.store.ClearCart(ctx, *order.User); err != nil {
			s.log.WithFields(logrus.Fields{logkey.UserID: order.User.Hex(), logkey.ERROR: err}).
				Warn("failed to clear cart after checkout")
		}
	}
	s.afterCreate(ctx, order)
	return order, nil
}

func (s *Service) applyPaymentStatus(ctx context.Context, o *models.Order) {
	if o.PaymentInfo.PaymentIntentID == "" || s.payments == nil {
		return
	}
	log := s.log.WithFields(logrus.Fields{
		logkey.OrderNum: o.OrderNumber,
		logkey.IntentID: o.PaymentInfo.PaymentIntentID,
	})
	intent, err := s.payments.LookupIntent(ctx, o.PaymentInfo.PaymentIntentID)
	if err != nil {
		log.WithField(logkey.ERROR, err).Warn("could not verify payment intent, leaving payment pending")
		return
	}
	if intent.Status == models.PaymentPaid && intent.Amount != payment.ToMinorUnits(o.Pricing.Total) {
		log.WithFields(logrus.Fields{
			logkey.Amount:   intent.Amount,
			logkey.Expected: payment.ToMinorUnits(o.Pricing.Total),
		}).Warn("payment intent amount does not match order total, leaving payment pending")
		return
	}
	o.PaymentInfo.PaymentStatus = intent.Status
	if intent.Status == models.PaymentPaid {
		paidAt := o.CreatedAt
		o.PaymentInfo.PaidAt = &paidAt
	}
}

func (s *Service) afterCreate(ctx context.Context, o models.Order) {
	s.events.Publish(ctx, events.NewOrderEvent(events.TypeOrderCreated, o, ""))
	if s.mailer == nil || o.ShippingInfo.Email == "" {
		return
	}
	go func(ctx context.Context) {
		if err := s.mailer.SendOrderConfirmation(ctx, o); err != nil {
			s.log.WithFields(logrus.Fields{logkey.OrderNum: o.OrderNumber, logkey.ERROR: err}).
				Warn("failed to send order confirmation")
		}
	}(context.WithoutCancel(ctx))
}

func snapshotItems(items []CheckoutItem, products map[primitive.ObjectID]models.Product) []models.OrderItem {
	out := make([]models.OrderItem, 0, len(items))
	for _, it := range items {
		p := products[it.ProductID]
		out = append(out, models.OrderItem{
			Product:  it.ProductID,
			Name:     p.Name,
			Price:    p.Price,
			Size:     it.Size,
			Quantity: it.Quantity,
			Image:    p.FirstImage(),
		})
	}
	return out
}

func checkSubtotal(items []models.OrderItem, p models.Pricing) error {
	var sum float64
	for _, it := range items {
		sum += it.Price * float64(it.Quantity)
	}
	if math.Abs(sum-p.Subtotal) > priceTolerance {
		return apperr.Validation("pricing subtotal %.2f does not match items total %.2f", p.Subtotal, sum).
			WithDetail("itemsTotal", math.Round(sum*100)/100)
	}
	return nil
}

func paymentMethodOrDefault(m string) string {
	m = strings.TrimSpace(m)
	if m == "" {
		return "card"
	}
	return m
}

// NewOrderNumber returns a human-readable order number such as
// ORD-20261019-3F2A9C1B.
func NewOrderNumber(now time.Time) string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return fmt.Sprintf("ORD-%s-%s", now.Format("20060102"), strings.ToUpper(id[:8]))
}

// CancelByOwner cancels the caller's own order; only processing orders qualify.
func (s *Service) CancelByOwner(ctx context.Context, caller *auth.AuthContext, id primitive.ObjectID) (models.Order, error) {
	if caller == nil {
		return models.Order{}, apperr.Unauthenticated("authentication required")
	}
	order, err := s.store.GetOrder(ctx, id)
	if err != nil {
		return models.Order{}, err
	}
	if !auth.CanCancelOwnOrder(caller, order) {
		return models.Order{}, apperr.Unauthorized("not authorized to cancel this order")
	}
	return s.cancel(ctx, order, ActorOwner)
}

// CancelByAdmin cancels processing or shipped orders.
func (s *Service) CancelByAdmin(ctx context.Context, id primitive.ObjectID) (models.Order, error) {
	order, err := s.store.GetOrder(ctx, id)
	if err != nil {
		return models.Order{}, err
	}
	return s.cancel(ctx, order, ActorAdmin)
}

func (s *Service) cancel(ctx context.Context, order models.Order, actor Actor) (models.Order, error) {
	if err := CancelGuard(actor, order.OrderStatus); err != nil {
		return models.Order{}, err
	}
	from := order.OrderStatus
	prevPayment := order.PaymentInfo.PaymentStatus

	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		ok, err := s.store.CompareAndSetStatus(ctx, order.ID, from, models.OrderCancelled, models.PaymentRefunded)
		if err != nil {
			return err
		}
		if !ok {
			current, gerr := s.store.GetOrder(ctx, order.ID)
			if gerr != nil {
				return gerr
			}
			if guardErr := CancelGuard(actor, current.OrderStatus); guardErr != nil {
				return guardErr
			}
			return apperr.Conflict("order was modified concurrently, please retry")
		}

		if _, err := s.inventory.Release(ctx, inventory.LinesFromOrder(order)); err != nil {
			revertCtx := context.WithoutCancel(ctx)
			if _, rerr := s.store.CompareAndSetStatus(revertCtx, order.ID, models.OrderCancelled, from, prevPayment); rerr != nil {
				s.log.WithFields(logrus.Fields{logkey.OrderID: order.ID.Hex(), logkey.ERROR: rerr}).
					Error("failed to revert order status after stock restore failure")
			}
			return err
		}
		return nil
	})
	if err != nil {
		return models.Order{}, err
	}

	order.OrderStatus = models.OrderCancelled
	order.PaymentInfo.PaymentStatus = models.PaymentRefunded
	order.UpdatedAt = s.now().UTC()
	metrics.OrdersCancelled.WithLabelValues(actor.String()).Inc()
	s.events.Publish(ctx, events.NewOrderEvent(events.TypeOrderCancelled, order, actor.String()))
	return order, nil
}

// SetStatus is the admin's direct status write. It checks the value is a
// known status and nothing else: no lifecycle guard and no stock restore.
func (s *Service) SetStatus(ctx context.Context, id primitive.ObjectID, status string) (models.Order, error) {
	to := models.OrderStatus(strings.TrimSpace(status))
	if !to.Valid() {
		return models.Order{}, apperr.Validation("invalid order status %q", status)
	}
	order, err := s.store.SetOrderStatus(ctx, id, to)
	if err != nil {
		return models.Order{}, err
	}
	if to == models.OrderCancelled {
		s.log.WithFields(logrus.Fields{logkey.OrderID: id.Hex()}).
			Warn("order set to cancelled via direct status update; stock was not restored")
	}
	s.events.Publish(ctx, events.NewOrderEvent(events.TypeOrderStatusUpdated, order, ActorAdmin.String()))
	return order, nil
}

// Get returns an order visible to caller.
func (s *Service) Get(ctx context.Context, caller *auth.AuthContext, id primitive.ObjectID) (models.Order, error) {
	order, err := s.store.GetOrder(ctx, id)
	if err != nil {
		return models.Order{}, err
	}
	if !auth.CanViewOrder(caller, order) {
		return models.Order{}, apperr.Unauthorized("not authorized to view this order")
	}
	return order, nil
}

func (s *Service) ListMine(ctx context.Context, caller *auth.AuthContext) ([]models.Order, error) {
	if caller == nil {
		return nil, apperr.Unauthenticated("authentication required")
	}
	return s.store.ListOrdersByUser(ctx, caller.UserID)
}

func (s *Service) ListAll(ctx context.Context, f Filter) ([]models.Order, int64, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, 0, apperr.Validation("invalid order status %q", f.Status)
	}
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit < 1 || f.Limit > 100 {
		f.Limit = 20
	}
	return s.store.ListOrders(ctx, f)
}

// RecordPayment applies a payment gateway notification to the order that
// carries intentID. amount is in minor units and must equal the order total
// for a paid notification. recorded is false when the notification was
// acknowledged without changing the order: the amount did not match, or the
// order is already cancelled or refunded.
func (s *Service) RecordPayment(ctx context.Context, intentID string, status models.PaymentStatus, amount int64) (order models.Order, recorded bool, err error) {
	if intentID == "" || !status.Valid() {
		return models.Order{}, false, apperr.Validation("invalid payment update")
	}
	log := s.log.WithFields(logrus.Fields{logkey.IntentID: intentID, logkey.Status: status})

	var paidAt *time.Time
	if status == models.PaymentPaid {
		current, err := s.store.GetOrderByPaymentIntent(ctx, intentID)
		if err != nil {
			return models.Order{}, false, err
		}
		if want := payment.ToMinorUnits(current.Pricing.Total); amount != want {
			log.WithFields(logrus.Fields{
				logkey.OrderNum: current.OrderNumber,
				logkey.Amount:   amount,
				logkey.Expected: want,
			}).Warn("paid amount does not match order total, ignoring payment update")
			return current, false, nil
		}
		t := s.now().UTC()
		paidAt = &t
	}

	order, applied, err := s.store.SetPaymentStatusByIntent(ctx, intentID, status, paidAt)
	if err != nil {
		return models.Order{}, false, err
	}
	if !applied {
		log.WithFields(logrus.Fields{
			logkey.OrderNum:    order.OrderNumber,
			logkey.OrderStatus: order.OrderStatus,
		}).Info("order is cancelled or refunded, ignoring payment update")
		return order, false, nil
	}
	s.events.Publish(ctx, events.NewOrderEvent(events.TypeOrderPaymentUpdate, order, ""))
	return order, true, nil
}
