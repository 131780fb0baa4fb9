package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"solestore-backend/handlers"
	"solestore-backend/internal/auth"
	"solestore-backend/internal/carts"
	"solestore-backend/internal/catalog"
	"solestore-backend/internal/dashboard"
	"solestore-backend/internal/inventory"
	"solestore-backend/internal/models"
	"solestore-backend/internal/notify"
	"solestore-backend/internal/orders"
	"solestore-backend/internal/payment"
	"solestore-backend/internal/reviews"
	"solestore-backend/internal/store/memstore"
	"solestore-backend/internal/users"
	"solestore-backend/internal/wishlist"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const adminEmail = "admin@solestore.test"

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
	Error   string          `json:"error"`
	Details map[string]any  `json:"details"`
}

type testServer struct {
	t       *testing.T
	router  *gin.Engine
	store   *memstore.Store
	product models.Product
}

func newServer(t *testing.T) *testServer {
	t.Helper()
	return newServerWith(t, nil)
}

func newServerWith(t *testing.T, mutate func(*handlers.Options)) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)

	st := memstore.New()
	p := models.Product{
		Name:     "Court Classic",
		Brand:    "Sole",
		Price:    80,
		Category: models.CategorySneakers,
		Sizes:    []models.SizeStock{{Size: 42, Stock: 2}},
		IsActive: true,
	}
	require.NoError(t, st.InsertProduct(context.Background(), &p))

	keys, err := auth.NewKeys("handler-test-secret", time.Hour)
	require.NoError(t, err)

	svc := handlers.Services{
		Users:    users.NewService(st, keys, []string{adminEmail}),
		Catalog:  catalog.NewService(st),
		Carts:    carts.NewService(st),
		Wishlist: wishlist.NewService(st),
		Orders: orders.NewService(orders.Deps{
			Store:     st,
			Inventory: inventory.NewReserver(st, log),
			Tx:        st,
			Payments:  payment.Disabled{},
			Mailer:    notify.Nop{},
			Log:       log,
		}),
		Reviews:   reviews.NewService(st, log),
		Dashboard: dashboard.NewService(st),
		Payments:  payment.Disabled{},
	}
	opts := handlers.Options{
		Prefix:        "/api",
		CORSOrigins:   []string{"http://localhost:5173"},
		AuthRateLimit: 100,
		AuthRateBurst: 100,
		Log:           log,

		AllowUnsignedWebhooks: true,
	}
	if mutate != nil {
		mutate(&opts)
	}
	r, err := handlers.API(opts, keys, svc)
	require.NoError(t, err)
	return &testServer{t: t, router: r, store: st, product: p}
}

func (s *testServer) do(method, path, token string, body any) (*httptest.ResponseRecorder, envelope) {
	s.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(s.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var env envelope
	if w.Body.Len() > 0 {
		_ = json.Unmarshal(w.Body.Bytes(), &env)
	}
	return w, env
}

func (s *testServer) register(email string) string {
	s.t.Helper()
	w, env := s.do(http.MethodPost, "/api/auth/register", "", map[string]string{
		"name": "Test User", "email": email, "password": "secret123",
	})
	require.Equal(s.t, http.StatusCreated, w.Code, w.Body.String())
	var sess struct {
		Token string      `json:"token"`
		User  models.User `json:"user"`
	}
	require.NoError(s.t, json.Unmarshal(env.Data, &sess))
	require.NotEmpty(s.t, sess.Token)
	return sess.Token
}

func (s *testServer) stock() int {
	s.t.Helper()
	p, err := s.store.GetProduct(context.Background(), s.product.ID)
	require.NoError(s.t, err)
	e, _ := p.SizeEntry(42)
	return e.Stock
}

func orderBody(productID string, qty int) map[string]any {
	subtotal := 80.0 * float64(qty)
	return map[string]any{
		"items": []map[string]any{{"productId": productID, "size": 42, "quantity": qty}},
		"shippingInfo": map[string]any{
			"fullName": "Sam Doe", "address": "1 Main St", "city": "Springfield",
		},
		"pricing": map[string]any{"subtotal": subtotal, "shipping": 5, "tax": 3, "total": subtotal + 8},
	}
}

func TestPing(t *testing.T) {
	s := newServer(t)
	w, _ := s.do(http.MethodGet, "/ping", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRegisterLoginProfile(t *testing.T) {
	s := newServer(t)
	s.register("shopper@example.com")

	w, env := s.do(http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": "Shopper@Example.com", "password": "secret123",
	})
	require.Equal(t, http.StatusOK, w.Code)
	var sess struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &sess))

	w, env = s.do(http.MethodGet, "/api/users/profile", sess.Token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, string(env.Data), "password")
	assert.Contains(t, string(env.Data), "shopper@example.com")

	w, env = s.do(http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": "shopper@example.com", "password": "wrong-password",
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.False(t, env.Success)
	assert.Equal(t, "Unauthenticated", env.Error)
}

func TestDuplicateRegistrationConflicts(t *testing.T) {
	s := newServer(t)
	s.register("dup@example.com")
	w, env := s.do(http.MethodPost, "/api/auth/register", "", map[string]string{
		"name": "Again", "email": "dup@example.com", "password": "secret123",
	})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.False(t, env.Success)
}

func TestAdminRoutesRequireAdmin(t *testing.T) {
	s := newServer(t)
	userToken := s.register("user@example.com")
	adminToken := s.register(adminEmail)

	w, _ := s.do(http.MethodGet, "/api/admin/dashboard", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, env := s.do(http.MethodGet, "/api/admin/dashboard", userToken, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.False(t, env.Success)

	w, env = s.do(http.MethodGet, "/api/admin/dashboard", adminToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var stats dashboard.Stats
	require.NoError(t, json.Unmarshal(env.Data, &stats))
	assert.EqualValues(t, 1, stats.TotalProducts)
	assert.EqualValues(t, 2, stats.TotalUsers)
	require.Len(t, stats.LowStock, 1)
	assert.Equal(t, 2, stats.LowStock[0].Stock)
}

func TestUnknownRouteAndBadID(t *testing.T) {
	s := newServer(t)
	w, env := s.do(http.MethodGet, "/api/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "NotFound", env.Error)

	w, env = s.do(http.MethodGet, "/api/products/not-an-id", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "ValidationError", env.Error)
}

func TestProductListingAndStockAdmin(t *testing.T) {
	s := newServer(t)
	adminToken := s.register(adminEmail)

	w, env := s.do(http.MethodGet, "/api/products?category=sneakers&sort=price_asc", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var page struct {
		Items []models.Product `json:"items"`
		Total int64            `json:"total"`
		Limit int              `json:"limit"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &page))
	assert.EqualValues(t, 1, page.Total)
	assert.Equal(t, 12, page.Limit)

	w, _ = s.do(http.MethodGet, "/api/products?sort=cheapest", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	path := fmt.Sprintf("/api/products/%s/stock", s.product.ID.Hex())
	w, _ = s.do(http.MethodPatch, path, adminToken, map[string]any{"size": 42, "stock": 9})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 9, s.stock())

	w, _ = s.do(http.MethodPatch, path, adminToken, map[string]any{"size": 42, "stock": -1})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreateProductDefaultsActive(t *testing.T) {
	s := newServer(t)
	adminToken := s.register(adminEmail)
	w, env := s.do(http.MethodPost, "/api/products", adminToken, map[string]any{
		"name": "Oxford", "price": 120, "category": "formal",
		"sizes": []map[string]any{{"size": 41, "stock": 4}},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var p models.Product
	require.NoError(t, json.Unmarshal(env.Data, &p))
	assert.True(t, p.IsActive)
	assert.False(t, p.ID.IsZero())
}

func TestCheckoutAndCancelRestoresStock(t *testing.T) {
	s := newServer(t)
	token := s.register("buyer@example.com")

	w, env := s.do(http.MethodPost, "/api/payment/create-order", token, orderBody(s.product.ID.Hex(), 2))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var order models.Order
	require.NoError(t, json.Unmarshal(env.Data, &order))
	require.NotNil(t, order.User)
	assert.Equal(t, 0, s.stock())

	w, env = s.do(http.MethodPost, "/api/payment/create-order", token, orderBody(s.product.ID.Hex(), 1))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "InsufficientStock", env.Error)

	w, _ = s.do(http.MethodGet, "/api/payment/orders", token, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	cancelPath := fmt.Sprintf("/api/payment/orders/%s/cancel", order.ID.Hex())
	w, _ = s.do(http.MethodPatch, cancelPath, token, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, 2, s.stock())

	w, env = s.do(http.MethodPatch, cancelPath, token, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "InvalidTransition", env.Error)
	assert.Equal(t, 2, s.stock())
}

func TestGuestCheckoutAndOwnership(t *testing.T) {
	s := newServer(t)
	w, env := s.do(http.MethodPost, "/api/payment/create-order", "", orderBody(s.product.ID.Hex(), 1))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var order models.Order
	require.NoError(t, json.Unmarshal(env.Data, &order))
	assert.Nil(t, order.User)

	other := s.register("other@example.com")
	w, _ = s.do(http.MethodGet, "/api/payment/orders/"+order.ID.Hex(), other, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	w, _ = s.do(http.MethodPatch, "/api/payment/orders/"+order.ID.Hex()+"/cancel", other, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	admin := s.register(adminEmail)
	w, _ = s.do(http.MethodPatch, "/api/payment/admin/orders/"+order.ID.Hex(), admin, map[string]string{"orderStatus": "shipped"})
	require.Equal(t, http.StatusOK, w.Code)
	w, env = s.do(http.MethodPatch, "/api/payment/admin/orders/"+order.ID.Hex(), admin, map[string]string{"orderStatus": "lost"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "ValidationError", env.Error)

	w, _ = s.do(http.MethodPatch, "/api/payment/admin/orders/"+order.ID.Hex()+"/cancel", admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 2, s.stock())
}

func succeededEvent(intentID string, amount int64) map[string]any {
	return map[string]any{
		"id":   "evt_1",
		"type": "payment_intent.succeeded",
		"data": map[string]any{"object": map[string]any{
			"id": intentID, "object": "payment_intent", "status": "succeeded", "amount": amount,
		}},
	}
}

func TestWebhookUpdatesPaymentStatus(t *testing.T) {
	s := newServer(t)
	body := orderBody(s.product.ID.Hex(), 1)
	body["paymentIntentId"] = "pi_handler_1"
	w, env := s.do(http.MethodPost, "/api/payment/create-order", "", body)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var order models.Order
	require.NoError(t, json.Unmarshal(env.Data, &order))

	w, _ = s.do(http.MethodPost, "/api/payment/webhook", "", succeededEvent("pi_handler_1", 100))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	got, err := s.store.GetOrder(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentPending, got.PaymentInfo.PaymentStatus)

	w, _ = s.do(http.MethodPost, "/api/payment/webhook", "", succeededEvent("pi_handler_1", 8800))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	got, err = s.store.GetOrder(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentPaid, got.PaymentInfo.PaymentStatus)
	assert.NotNil(t, got.PaymentInfo.PaidAt)

	w, _ = s.do(http.MethodPost, "/api/payment/webhook", "", succeededEvent("pi_unknown", 8800))
	assert.Equal(t, http.StatusOK, w.Code)

	w, env = s.do(http.MethodPost, "/api/payment/create-order", "", body)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "Conflict", env.Error)
	assert.Equal(t, 1, s.stock())
}

func TestWebhookLeavesCancelledOrderRefunded(t *testing.T) {
	s := newServer(t)
	token := s.register("buyer@example.com")
	body := orderBody(s.product.ID.Hex(), 1)
	body["paymentIntentId"] = "pi_handler_2"
	w, env := s.do(http.MethodPost, "/api/payment/create-order", token, body)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var order models.Order
	require.NoError(t, json.Unmarshal(env.Data, &order))

	w, _ = s.do(http.MethodPatch, "/api/payment/orders/"+order.ID.Hex()+"/cancel", token, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w, _ = s.do(http.MethodPost, "/api/payment/webhook", "", succeededEvent("pi_handler_2", 8800))
	require.Equal(t, http.StatusOK, w.Code)
	got, err := s.store.GetOrder(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderCancelled, got.OrderStatus)
	assert.Equal(t, models.PaymentRefunded, got.PaymentInfo.PaymentStatus)
	assert.Nil(t, got.PaymentInfo.PaidAt)
}

func TestWebhookRejectsUnsignedWhenNotAllowed(t *testing.T) {
	s := newServerWith(t, func(o *handlers.Options) { o.AllowUnsignedWebhooks = false })
	w, env := s.do(http.MethodPost, "/api/payment/webhook", "", succeededEvent("pi_any", 8800))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.False(t, env.Success)
}

func TestPaymentIntentUnavailableWithoutGateway(t *testing.T) {
	s := newServer(t)
	w, env := s.do(http.MethodPost, "/api/payment/create-payment-intent", "", map[string]any{"amount": 25.5})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.False(t, env.Success)
}

func TestCartAndWishlistFlow(t *testing.T) {
	s := newServer(t)
	token := s.register("cart@example.com")
	pid := s.product.ID.Hex()

	w, _ := s.do(http.MethodPost, "/api/cart", token, map[string]any{"productId": pid, "size": 42, "quantity": 1})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	w, env := s.do(http.MethodPost, "/api/cart", token, map[string]any{"productId": pid, "size": 42, "quantity": 2})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "InsufficientStock", env.Error)

	w, env = s.do(http.MethodPut, "/api/cart/"+pid+"/42", token, map[string]any{"quantity": 2})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var cart models.Cart
	require.NoError(t, json.Unmarshal(env.Data, &cart))
	require.Len(t, cart.Items, 1)
	assert.Equal(t, 2, cart.Items[0].Quantity)

	w, _ = s.do(http.MethodDelete, "/api/cart/"+pid+"/42", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	w, _ = s.do(http.MethodDelete, "/api/cart", token, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = s.do(http.MethodPost, "/api/wishlist", token, map[string]any{"productId": pid})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	w, env = s.do(http.MethodPost, "/api/wishlist", token, map[string]any{"productId": pid})
	require.Equal(t, http.StatusOK, w.Code)
	var wl models.Wishlist
	require.NoError(t, json.Unmarshal(env.Data, &wl))
	assert.Len(t, wl.ProductIDs, 1)

	w, _ = s.do(http.MethodDelete, "/api/wishlist/"+pid, token, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestReviewFlowUpdatesRating(t *testing.T) {
	s := newServer(t)
	alice := s.register("alice@example.com")
	bob := s.register("bob@example.com")
	pid := s.product.ID.Hex()

	w, env := s.do(http.MethodPost, "/api/reviews", alice, map[string]any{"productId": pid, "rating": 5, "title": "Great"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var review models.Review
	require.NoError(t, json.Unmarshal(env.Data, &review))
	w, _ = s.do(http.MethodPost, "/api/reviews", bob, map[string]any{"productId": pid, "rating": 4})
	require.Equal(t, http.StatusCreated, w.Code)

	p, err := s.store.GetProduct(context.Background(), s.product.ID)
	require.NoError(t, err)
	assert.Equal(t, 4.5, p.AverageRating)
	assert.Equal(t, 2, p.TotalReviews)

	w, _ = s.do(http.MethodPut, "/api/reviews/"+review.ID.Hex(), bob, map[string]any{"rating": 1})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, env = s.do(http.MethodPatch, "/api/reviews/"+review.ID.Hex()+"/helpful", bob, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(env.Data, &review))
	assert.Equal(t, 1, review.Helpful)

	w, env = s.do(http.MethodGet, "/api/reviews/product/"+pid, "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, string(env.Data), `"total":2`)

	admin := s.register(adminEmail)
	w, env = s.do(http.MethodPost, "/api/admin/products/"+pid+"/recompute-rating", admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var sum reviews.Summary
	require.NoError(t, json.Unmarshal(env.Data, &sum))
	assert.Equal(t, reviews.Summary{AverageRating: 4.5, TotalReviews: 2}, sum)
}
