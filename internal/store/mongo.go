// Package store persists the storefront in MongoDB.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"solestore-backend/internal/apperr"
	"solestore-backend/pkg/logkey"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	colProducts  = "products"
	colOrders    = "orders"
	colCarts     = "carts"
	colWishlists = "wishlists"
	colReviews   = "reviews"
	colUsers     = "users"
)

type Options struct {
	URI            string
	Database       string
	ConnectTimeout time.Duration
	// Transactions runs WithTx inside a multi-document transaction. It
	// requires a replica set or sharded cluster.
	Transactions bool
}

type Store struct {
	client       *mongo.Client
	db           *mongo.Database
	transactions bool
	log          *logrus.Logger
}

// Connect dials the cluster and verifies it answers a ping.
func Connect(ctx context.Context, opts Options, log *logrus.Logger) (*Store, error) {
	timeout := opts.ConnectTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(opts.URI))
	if err != nil {
		return nil, fmt.Errorf("connect to mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	log.WithFields(logrus.Fields{
		logkey.Component: "store",
		"database":       opts.Database,
		"transactions":   opts.Transactions,
	}).Info("connected to MongoDB")
	return &Store{
		client:       client,
		db:           client.Database(opts.Database),
		transactions: opts.Transactions,
		log:          log,
	}, nil
}

func (s *Store) Ping(ctx context.Context) error { return s.client.Ping(ctx, nil) }

func (s *Store) Close(ctx context.Context) error { return s.client.Disconnect(ctx) }

func (s *Store) col(name string) *mongo.Collection { return s.db.Collection(name) }

// WithTx runs fn in a transaction when transactions are enabled, otherwise
// it calls fn directly. The transaction is not retried on transient errors;
// those are returned as conflicts so the client can retry.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if !s.transactions {
		return fn(ctx)
	}
	sess, err := s.client.StartSession()
	if err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	defer sess.EndSession(context.WithoutCancel(ctx))

	if err := sess.StartTransaction(); err != nil {
		return fmt.Errorf("start transaction: %w", err)
	}
	sc := mongo.NewSessionContext(ctx, sess)
	if err := fn(sc); err != nil {
		if aerr := sess.AbortTransaction(context.WithoutCancel(ctx)); aerr != nil {
			s.log.WithFields(logrus.Fields{logkey.Component: "store", logkey.ERROR: aerr}).
				Error("failed to abort transaction")
		}
		return txConflict(err)
	}
	if err := sess.CommitTransaction(sc); err != nil {
		return txConflict(fmt.Errorf("commit transaction: %w", err))
	}
	return nil
}

const (
	writeConflictCode    = 112
	transientTxnErrLabel = "TransientTransactionError"
)

// txConflict turns an abort caused by a concurrent writer into a
// KindConflict error. Anything else is returned unchanged.
func txConflict(err error) error {
	var se mongo.ServerError
	if !errors.As(err, &se) {
		return err
	}
	if se.HasErrorLabel(transientTxnErrLabel) || se.HasErrorCode(writeConflictCode) {
		return apperr.Wrap(apperr.KindConflict, err, "concurrent update, please retry")
	}
	return err
}

// EnsureIndexes creates the indexes the queries and uniqueness rules rely on.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	// One order per payment intent. Orders without an intent are left out.
	intentIndex := options.Index().SetName("paymentIntentId_unique").SetUnique(true).
		SetPartialFilterExpression(bson.M{"paymentInfo.paymentIntentId": bson.M{"$gt": ""}})
	specs := map[string][]mongo.IndexModel{
		colProducts: {
			{Keys: bson.D{{Key: "category", Value: 1}, {Key: "isActive", Value: 1}}},
			{Keys: bson.D{{Key: "name", Value: 1}}},
			{Keys: bson.D{{Key: "createdAt", Value: -1}}},
		},
		colOrders: {
			{Keys: bson.D{{Key: "orderNumber", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "user", Value: 1}, {Key: "createdAt", Value: -1}}},
			{Keys: bson.D{{Key: "paymentInfo.paymentIntentId", Value: 1}}, Options: intentIndex},
			{Keys: bson.D{{Key: "orderStatus", Value: 1}}},
		},
		colUsers: {
			{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
		colCarts: {
			{Keys: bson.D{{Key: "user", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
		colWishlists: {
			{Keys: bson.D{{Key: "user", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
		colReviews: {
			{Keys: bson.D{{Key: "product", Value: 1}, {Key: "user", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "product", Value: 1}, {Key: "createdAt", Value: -1}}},
		},
	}
	for name, models := range specs {
		if _, err := s.col(name).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("create indexes on %s: %w", name, err)
		}
	}
	return nil
}

func notFound(err error, what string) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return apperr.NotFound("%s not found", what)
	}
	return fmt.Errorf("find %s: %w", what, err)
}

func conflictOnDuplicate(err error, format string, args ...any) error {
	if mongo.IsDuplicateKeyError(err) {
		return apperr.Conflict(format, args...)
	}
	return err
}

func pageOptions(page, limit int) *options.FindOptions {
	if page < 1 {
		page = 1
	}
	return options.Find().SetSkip(int64((page - 1) * limit)).SetLimit(int64(limit))
}
