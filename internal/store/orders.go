package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"solestore-backend/internal/apperr"
	"solestore-backend/internal/models"
	"solestore-backend/internal/orders"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var newestFirst = bson.D{{Key: "createdAt", Value: -1}}

func (s *Store) InsertOrder(ctx context.Context, o *models.Order) error {
	if o.ID.IsZero() {
		o.ID = primitive.NewObjectID()
	}
	if _, err := s.col(colOrders).InsertOne(ctx, o); err != nil {
		err = fmt.Errorf("insert order: %w", err)
		if o.PaymentInfo.PaymentIntentID != "" && strings.Contains(err.Error(), "paymentIntentId") {
			return conflictOnDuplicate(err, "payment intent %s is already attached to an order", o.PaymentInfo.PaymentIntentID)
		}
		return conflictOnDuplicate(err, "order number %s already exists", o.OrderNumber)
	}
	return nil
}

func (s *Store) GetOrder(ctx context.Context, id primitive.ObjectID) (models.Order, error) {
	var o models.Order
	if err := s.col(colOrders).FindOne(ctx, bson.M{"_id": id}).Decode(&o); err != nil {
		return models.Order{}, notFound(err, "order")
	}
	return o, nil
}

func (s *Store) findOrders(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]models.Order, error) {
	cur, err := s.col(colOrders).Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	list := []models.Order{}
	if err := cur.All(ctx, &list); err != nil {
		return nil, fmt.Errorf("decode orders: %w", err)
	}
	return list, nil
}

func (s *Store) ListOrdersByUser(ctx context.Context, userID primitive.ObjectID) ([]models.Order, error) {
	return s.findOrders(ctx, bson.M{"user": userID}, options.Find().SetSort(newestFirst))
}

func (s *Store) ListOrders(ctx context.Context, f orders.Filter) ([]models.Order, int64, error) {
	filter := bson.M{}
	if f.Status != "" {
		filter["orderStatus"] = f.Status
	}
	total, err := s.col(colOrders).CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("count orders: %w", err)
	}
	list, err := s.findOrders(ctx, filter, pageOptions(f.Page, f.Limit).SetSort(newestFirst))
	if err != nil {
		return nil, 0, err
	}
	return list, total, nil
}

func (s *Store) CompareAndSetStatus(ctx context.Context, id primitive.ObjectID, from, to models.OrderStatus, payment models.PaymentStatus) (bool, error) {
	set := bson.M{"orderStatus": to, "updatedAt": time.Now().UTC()}
	if payment != "" {
		set["paymentInfo.paymentStatus"] = payment
	}
	res, err := s.col(colOrders).UpdateOne(ctx,
		bson.M{"_id": id, "orderStatus": from},
		bson.M{"$set": set},
	)
	if err != nil {
		return false, fmt.Errorf("update order status: %w", err)
	}
	return res.MatchedCount > 0, nil
}

func (s *Store) SetOrderStatus(ctx context.Context, id primitive.ObjectID, to models.OrderStatus) (models.Order, error) {
	var o models.Order
	err := s.col(colOrders).FindOneAndUpdate(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{"orderStatus": to, "updatedAt": time.Now().UTC()}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&o)
	if err != nil {
		return models.Order{}, notFound(err, "order")
	}
	return o, nil
}

func (s *Store) GetOrderByPaymentIntent(ctx context.Context, intentID string) (models.Order, error) {
	var o models.Order
	err := s.col(colOrders).FindOne(ctx, bson.M{"paymentInfo.paymentIntentId": intentID}).Decode(&o)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.Order{}, apperr.NotFound("no order for payment intent %s", intentID)
	}
	if err != nil {
		return models.Order{}, fmt.Errorf("find order by payment intent: %w", err)
	}
	return o, nil
}

// SetPaymentStatusByIntent leaves cancelled and refunded orders alone; the
// filter and the write are one document operation.
func (s *Store) SetPaymentStatusByIntent(ctx context.Context, intentID string, status models.PaymentStatus, paidAt *time.Time) (models.Order, bool, error) {
	set := bson.M{"paymentInfo.paymentStatus": status, "updatedAt": time.Now().UTC()}
	if paidAt != nil {
		set["paymentInfo.paidAt"] = *paidAt
	}
	var o models.Order
	err := s.col(colOrders).FindOneAndUpdate(ctx,
		bson.M{
			"paymentInfo.paymentIntentId": intentID,
			"orderStatus":                 bson.M{"$ne": models.OrderCancelled},
			"paymentInfo.paymentStatus":   bson.M{"$ne": models.PaymentRefunded},
		},
		bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&o)
	if errors.Is(err, mongo.ErrNoDocuments) {
		current, ferr := s.GetOrderByPaymentIntent(ctx, intentID)
		if ferr != nil {
			return models.Order{}, false, ferr
		}
		return current, false, nil
	}
	if err != nil {
		return models.Order{}, false, fmt.Errorf("update payment status: %w", err)
	}
	return o, true, nil
}

func (s *Store) HasPaidOrderFor(ctx context.Context, userID, productID primitive.ObjectID) (bool, error) {
	n, err := s.col(colOrders).CountDocuments(ctx, bson.M{
		"user":                      userID,
		"paymentInfo.paymentStatus": models.PaymentPaid,
		"items.product":             productID,
	}, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("check purchase: %w", err)
	}
	return n > 0, nil
}
