package handlers

import (
	"io"
	"net/http"

	"solestore-backend/internal/apperr"
	"solestore-backend/internal/models"
	"solestore-backend/internal/orders"
	"solestore-backend/internal/payment"
	"solestore-backend/pkg/ctxmanage"
	"solestore-backend/pkg/logkey"
	"solestore-backend/pkg/respond"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

const maxWebhookBody = 64 << 10

type intentRequest struct {
	Amount   float64           `json:"amount"`
	Metadata map[string]string `json:"metadata"`
}

func (h *Handler) CreatePaymentIntent(c *gin.Context) {
	var req intentRequest
	if err := bindJSON(c, &req); err != nil {
		fail(c, err, "invalid payment intent body")
		return
	}
	authz, err := h.svc.Payments.Authorize(c.Request.Context(), req.Amount, req.Metadata)
	if err != nil {
		fail(c, err, "creating payment intent failed")
		return
	}
	respond.OK(c, http.StatusOK, authz, "")
}

// CreateOrder places an order for a signed-in user or a guest.
func (h *Handler) CreateOrder(c *gin.Context) {
	var req orders.CheckoutRequest
	if err := bindJSON(c, &req); err != nil {
		fail(c, err, "invalid order body")
		return
	}
	order, err := h.svc.Orders.Checkout(c.Request.Context(), ctxmanage.GetAuth(c), req)
	if err != nil {
		fail(c, err, "checkout failed")
		return
	}
	ctxmanage.Logger(c).WithFields(logrus.Fields{
		logkey.OrderID:  order.ID.Hex(),
		logkey.OrderNum: order.OrderNumber,
	}).Info("order placed")
	respond.OK(c, http.StatusCreated, order, "order created")
}

// PaymentWebhook applies gateway notifications. Unknown intents and
// unhandled event types are acknowledged so the provider stops retrying.
func (h *Handler) PaymentWebhook(c *gin.Context) {
	if h.webhookSecret == "" && !h.allowUnsigned {
		fail(c, apperr.Unavailable("payment webhooks are not configured"), "webhook rejected")
		return
	}
	payload, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody))
	if err != nil {
		fail(c, apperr.Wrap(apperr.KindValidation, err, "unreadable webhook body"), "webhook read failed")
		return
	}
	n, err := payment.ParseWebhook(payload, c.GetHeader("Stripe-Signature"), h.webhookSecret)
	if err != nil {
		fail(c, err, "webhook rejected")
		return
	}
	log := ctxmanage.Logger(c).WithField("event_type", n.EventType)
	if !n.Handled {
		log.Debug("webhook event ignored")
		c.JSON(http.StatusOK, gin.H{"received": true})
		return
	}
	order, recorded, err := h.svc.Orders.RecordPayment(c.Request.Context(), n.IntentID, n.Status, n.Amount)
	switch {
	case apperr.Is(err, apperr.KindNotFound):
		log.WithField(logkey.IntentID, n.IntentID).Warn("no order for payment intent")
	case err != nil:
		fail(c, err, "recording payment failed")
		return
	case !recorded:
		log.WithField(logkey.OrderID, order.ID.Hex()).Info("payment notification acknowledged without change")
	default:
		log.WithFields(logrus.Fields{
			logkey.OrderID: order.ID.Hex(),
			logkey.Status:  n.Status,
		}).Info("payment status recorded")
	}
	c.JSON(http.StatusOK, gin.H{"received": true})
}

func (h *Handler) ListMyOrders(c *gin.Context) {
	list, err := h.svc.Orders.ListMine(c.Request.Context(), ctxmanage.GetAuth(c))
	if err != nil {
		fail(c, err, "listing orders failed")
		return
	}
	if list == nil {
		list = []models.Order{}
	}
	respond.OK(c, http.StatusOK, list, "")
}

func (h *Handler) GetOrder(c *gin.Context) {
	id, err := objectIDParam(c, "id")
	if err != nil {
		fail(c, err, "bad order id")
		return
	}
	order, err := h.svc.Orders.Get(c.Request.Context(), ctxmanage.GetAuth(c), id)
	if err != nil {
		fail(c, err, "order lookup failed")
		return
	}
	respond.OK(c, http.StatusOK, order, "")
}

func (h *Handler) CancelOrder(c *gin.Context) {
	id, err := objectIDParam(c, "id")
	if err != nil {
		fail(c, err, "bad order id")
		return
	}
	order, err := h.svc.Orders.CancelByOwner(c.Request.Context(), ctxmanage.GetAuth(c), id)
	if err != nil {
		fail(c, err, "cancel failed")
		return
	}
	respond.OK(c, http.StatusOK, order, "order cancelled")
}

type orderListQuery struct {
	Status string `form:"status"`
	Page   int    `form:"page"`
	Limit  int    `form:"limit"`
}

func (h *Handler) ListAllOrders(c *gin.Context) {
	var q orderListQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		fail(c, apperr.Wrap(apperr.KindValidation, err, "invalid order query"), "invalid query")
		return
	}
	p := pageQuery{Page: q.Page, Limit: q.Limit}.withDefaults(20)
	list, total, err := h.svc.Orders.ListAll(c.Request.Context(), orders.Filter{
		Status: models.OrderStatus(q.Status),
		Page:   p.Page,
		Limit:  p.Limit,
	})
	if err != nil {
		fail(c, err, "listing orders failed")
		return
	}
	respond.OK(c, http.StatusOK, paged{Items: list, Total: total, Page: p.Page, Limit: p.Limit}, "")
}

type statusRequest struct {
	OrderStatus string `json:"orderStatus"`
}

func (h *Handler) SetOrderStatus(c *gin.Context) {
	id, err := objectIDParam(c, "id")
	if err != nil {
		fail(c, err, "bad order id")
		return
	}
	var req statusRequest
	if err := bindJSON(c, &req); err != nil {
		fail(c, err, "invalid status body")
		return
	}
	order, err := h.svc.Orders.SetStatus(c.Request.Context(), id, req.OrderStatus)
	if err != nil {
		fail(c, err, "status update failed")
		return
	}
	respond.OK(c, http.StatusOK, order, "order status updated")
}

func (h *Handler) AdminCancelOrder(c *gin.Context) {
	id, err := objectIDParam(c, "id")
	if err != nil {
		fail(c, err, "bad order id")
		return
	}
	order, err := h.svc.Orders.CancelByAdmin(c.Request.Context(), id)
	if err != nil {
		fail(c, err, "admin cancel failed")
		return
	}
	respond.OK(c, http.StatusOK, order, "order cancelled")
}
