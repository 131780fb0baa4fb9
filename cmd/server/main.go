package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"solestore-backend/handlers"
	"solestore-backend/internal/auth"
	"solestore-backend/internal/carts"
	"solestore-backend/internal/catalog"
	"solestore-backend/internal/config"
	"solestore-backend/internal/dashboard"
	"solestore-backend/internal/events"
	"solestore-backend/internal/inventory"
	"solestore-backend/internal/notify"
	"solestore-backend/internal/orders"
	"solestore-backend/internal/payment"
	"solestore-backend/internal/reviews"
	"solestore-backend/internal/store"
	"solestore-backend/internal/store/memstore"
	"solestore-backend/internal/users"
	"solestore-backend/internal/wishlist"
	"solestore-backend/pkg/logkey"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// backend is every persistence port the services need. Both the MongoDB
// store and the in-memory store satisfy it.
type backend interface {
	users.Store
	catalog.Store
	carts.Store
	wishlist.Store
	orders.Store
	orders.TxRunner
	reviews.Store
	inventory.Store
	dashboard.Reader
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

func main() {
	log := logrus.New()
	if err := startApp(log); err != nil {
		log.WithField(logkey.ERROR, err.Error()).Fatal("server stopped")
	}
}

func setupLogger(log *logrus.Logger, cfg *config.Config) {
	if cfg.GinMode == gin.ReleaseMode {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	lvl, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.WithField(logkey.ERROR, err.Error()).Warn("unknown log level, using info")
		lvl = logrus.InfoLevel
	}
	log.SetLevel(lvl)
}

func openBackend(ctx context.Context, cfg *config.Config, log *logrus.Logger) (backend, error) {
	if cfg.StoreDriver == config.StoreMemory {
		log.Warn("using in-memory store, data is lost on restart")
		return memstore.New(), nil
	}
	st, err := store.Connect(ctx, store.Options{
		URI:            cfg.MongoURI(),
		Database:       cfg.MongoDatabase,
		ConnectTimeout: cfg.MongoConnectTimeout,
		Transactions:   cfg.MongoTransactions,
	}, log)
	if err != nil {
		return nil, err
	}
	if err := st.EnsureIndexes(ctx); err != nil {
		_ = st.Close(context.Background())
		return nil, fmt.Errorf("ensure indexes: %w", err)
	}
	return st, nil
}

func startApp(log *logrus.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	setupLogger(log, cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := openBackend(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := db.Close(closeCtx); err != nil {
			log.WithField(logkey.ERROR, err.Error()).Warn("closing store")
		}
	}()

	keys, err := auth.NewKeys(cfg.JWTSecret, cfg.JWTTTL)
	if err != nil {
		return fmt.Errorf("auth keys: %w", err)
	}

	var gateway payment.Gateway = payment.Disabled{}
	if cfg.StripeSecretKey != "" {
		gateway = payment.NewStripe(cfg.StripeSecretKey, cfg.PaymentCurrency)
	} else {
		log.Warn("STRIPE_SECRET_KEY not set, payment intents are disabled")
	}

	var publisher events.Publisher = events.Nop{}
	if cfg.KafkaEnabled() {
		k, err := events.NewKafka(cfg.KafkaBrokers, cfg.KafkaOrderTopic, log)
		if err != nil {
			return fmt.Errorf("kafka: %w", err)
		}
		defer k.Close(context.Background())
		publisher = k
	}

	var mailer orders.Mailer = notify.Nop{}
	if cfg.MailEnabled() {
		mailer = notify.NewSendGrid(cfg.SendGridAPIKey, cfg.MailFrom, log)
	}

	svc := handlers.Services{
		Users:    users.NewService(db, keys, cfg.AdminEmails),
		Catalog:  catalog.NewService(db),
		Carts:    carts.NewService(db),
		Wishlist: wishlist.NewService(db),
		Orders: orders.NewService(orders.Deps{
			Store:     db,
			Inventory: inventory.NewReserver(db, log),
			Tx:        db,
			Payments:  gateway,
			Events:    publisher,
			Mailer:    mailer,
			Log:       log,
		}),
		Reviews:   reviews.NewService(db, log),
		Dashboard: dashboard.NewService(db),
		Payments:  gateway,
	}

	router, err := handlers.API(handlers.Options{
		Prefix:        "/api",
		Mode:          cfg.GinMode,
		CORSOrigins:   cfg.CORSOrigins,
		WebhookSecret: cfg.StripeWebhookSecret,
		AuthRateLimit: cfg.AuthRateLimit,
		AuthRateBurst: cfg.AuthRateBurst,
		Log:           log,

		AllowUnsignedWebhooks: cfg.AllowUnsignedWebhooks(),
	}, keys, svc)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.WithField("addr", srv.Addr).Info("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down http server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
