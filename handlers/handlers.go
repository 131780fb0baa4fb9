package handlers

import (
	"net/http"
	"time"

	"solestore-backend/internal/apperr"
	"solestore-backend/internal/auth"
	"solestore-backend/internal/carts"
	"solestore-backend/internal/catalog"
	"solestore-backend/internal/dashboard"
	"solestore-backend/internal/metrics"
	"solestore-backend/internal/models"
	"solestore-backend/internal/orders"
	"solestore-backend/internal/payment"
	"solestore-backend/internal/reviews"
	"solestore-backend/internal/users"
	"solestore-backend/internal/wishlist"
	"solestore-backend/middleware"
	"solestore-backend/pkg/ctxmanage"
	"solestore-backend/pkg/logkey"
	"solestore-backend/pkg/respond"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Services is everything the HTTP layer calls into.
type Services struct {
	Users     *users.Service
	Catalog   *catalog.Service
	Carts     *carts.Service
	Wishlist  *wishlist.Service
	Orders    *orders.Service
	Reviews   *reviews.Service
	Dashboard *dashboard.Service
	Payments  payment.Gateway
}

type Options struct {
	Prefix        string
	Mode          string
	CORSOrigins   []string
	WebhookSecret string
	AuthRateLimit float64
	AuthRateBurst int
	Log           *logrus.Logger

	// AllowUnsignedWebhooks accepts unsigned payment webhooks when no
	// WebhookSecret is set. Local development only.
	AllowUnsignedWebhooks bool
}

type Handler struct {
	svc           Services
	webhookSecret string
	allowUnsigned bool
}

func NewHandler(svc Services, webhookSecret string, allowUnsigned bool) *Handler {
	return &Handler{svc: svc, webhookSecret: webhookSecret, allowUnsigned: allowUnsigned}
}

func API(opts Options, k *auth.Keys, svc Services) (*gin.Engine, error) {
	if opts.Mode != "" {
		gin.SetMode(opts.Mode)
	}
	if opts.Log == nil {
		opts.Log = logrus.StandardLogger()
	}
	if opts.Prefix == "" {
		opts.Prefix = "/api"
	}
	if len(opts.CORSOrigins) == 0 {
		opts.CORSOrigins = []string{"http://localhost:5173"}
	}
	if opts.AuthRateLimit <= 0 || opts.AuthRateBurst <= 0 {
		opts.AuthRateLimit, opts.AuthRateBurst = 5, 10
	}
	m, err := middleware.NewMid(k)
	if err != nil {
		return nil, err
	}
	if svc.Payments == nil {
		svc.Payments = payment.Disabled{}
	}
	h := NewHandler(svc, opts.WebhookSecret, opts.AllowUnsignedWebhooks)

	r := gin.New()
	r.Use(middleware.Logger(opts.Log), gin.Recovery(), middleware.Metrics())
	r.Use(cors.New(cors.Config{
		AllowOrigins:     opts.CORSOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", middleware.TraceHeader},
		ExposeHeaders:    []string{middleware.TraceHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	r.NoRoute(func(c *gin.Context) {
		respond.Fail(c, http.StatusNotFound, apperr.KindNotFound.String(), "route not found")
	})

	r.GET("/ping", healthCheck)
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	api := r.Group(opts.Prefix)

	limiter := middleware.NewRateLimiter(opts.AuthRateLimit, opts.AuthRateBurst)
	authGroup := api.Group("/auth", limiter.Handler())
	{
		authGroup.POST("/register", h.Register)
		authGroup.POST("/login", h.Login)
	}

	usersGroup := api.Group("/users", m.Authentication())
	{
		usersGroup.GET("/profile", h.GetProfile)
		usersGroup.PUT("/profile", h.UpdateProfile)
		usersGroup.GET("", m.Authorize(h.ListUsers, models.RoleAdmin))
	}

	products := api.Group("/products")
	{
		products.GET("", m.OptionalAuthentication(), h.ListProducts)
		products.GET("/:id", m.OptionalAuthentication(), h.GetProduct)
		products.POST("", m.Authentication(), m.Authorize(h.CreateProduct, models.RoleAdmin))
		products.PUT("/:id", m.Authentication(), m.Authorize(h.UpdateProduct, models.RoleAdmin))
		products.DELETE("/:id", m.Authentication(), m.Authorize(h.DeleteProduct, models.RoleAdmin))
		products.PATCH("/:id/stock", m.Authentication(), m.Authorize(h.SetProductStock, models.RoleAdmin))
	}

	cart := api.Group("/cart", m.Authentication())
	{
		cart.GET("", h.GetCart)
		cart.POST("", h.AddToCart)
		cart.PUT("/:productId/:size", h.UpdateCartItem)
		cart.DELETE("/:productId/:size", h.RemoveCartItem)
		cart.DELETE("", h.ClearCart)
	}

	wl := api.Group("/wishlist", m.Authentication())
	{
		wl.GET("", h.GetWishlist)
		wl.POST("", h.AddToWishlist)
		wl.DELETE("/:productId", h.RemoveFromWishlist)
	}

	pay := api.Group("/payment")
	{
		pay.POST("/create-payment-intent", h.CreatePaymentIntent)
		pay.POST("/create-order", m.OptionalAuthentication(), h.CreateOrder)
		pay.POST("/webhook", h.PaymentWebhook)
		pay.GET("/orders", m.Authentication(), h.ListMyOrders)
		pay.GET("/orders/:id", m.Authentication(), h.GetOrder)
		pay.PATCH("/orders/:id/cancel", m.Authentication(), h.CancelOrder)
		pay.GET("/admin/orders", m.Authentication(), m.Authorize(h.ListAllOrders, models.RoleAdmin))
		pay.PATCH("/admin/orders/:id", m.Authentication(), m.Authorize(h.SetOrderStatus, models.RoleAdmin))
		pay.PATCH("/admin/orders/:id/cancel", m.Authentication(), m.Authorize(h.AdminCancelOrder, models.RoleAdmin))
	}

	rv := api.Group("/reviews")
	{
		rv.GET("/product/:productId", h.ListProductReviews)
		rv.POST("", m.Authentication(), h.CreateReview)
		rv.PUT("/:id", m.Authentication(), h.UpdateReview)
		rv.DELETE("/:id", m.Authentication(), h.DeleteReview)
		rv.PATCH("/:id/helpful", m.Authentication(), h.ToggleHelpful)
	}

	admin := api.Group("/admin", m.Authentication())
	{
		admin.GET("/dashboard", m.Authorize(h.Dashboard, models.RoleAdmin))
		admin.POST("/products/:id/recompute-rating", m.Authorize(h.RecomputeRating, models.RoleAdmin))
	}

	return r, nil
}

func healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// fail logs err against the request and writes the error envelope.
func fail(c *gin.Context, err error, msg string) {
	entry := ctxmanage.Logger(c).WithField(logkey.ERROR, err.Error())
	if apperr.KindOf(err) == apperr.KindInternal {
		entry.Error(msg)
	} else {
		entry.Info(msg)
	}
	respond.Error(c, err)
}

func objectIDParam(c *gin.Context, name string) (primitive.ObjectID, error) {
	id, err := primitive.ObjectIDFromHex(c.Param(name))
	if err != nil {
		return primitive.NilObjectID, apperr.Validation("invalid %s", name)
	}
	return id, nil
}

func bindJSON(c *gin.Context, dst any) error {
	if err := c.ShouldBindJSON(dst); err != nil {
		return apperr.Wrap(apperr.KindValidation, err, "invalid request body")
	}
	return nil
}

type pageQuery struct {
	Page  int `form:"page"`
	Limit int `form:"limit"`
}

func bindPage(c *gin.Context) (pageQuery, error) {
	var q pageQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		return q, apperr.Wrap(apperr.KindValidation, err, "invalid pagination")
	}
	return q, nil
}

// withDefaults mirrors the clamping the services apply so the echoed
// page and limit match what was served.
func (q pageQuery) withDefaults(limit int) pageQuery {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Limit < 1 || q.Limit > 100 {
		q.Limit = limit
	}
	return q
}

type paged struct {
	Items any   `json:"items"`
	Total int64 `json:"total"`
	Page  int   `json:"page"`
	Limit int   `json:"limit"`
}

func callerFrom(c *gin.Context) (*auth.AuthContext, error) {
	ac := ctxmanage.GetAuth(c)
	if ac == nil {
		return nil, apperr.Unauthenticated("authentication required")
	}
	return ac, nil
}
