package store

import (
	"context"
	"fmt"

	"solestore-backend/internal/dashboard"
	"solestore-backend/internal/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

const lowStockLimit = 50

func (s *Store) DashboardStats(ctx context.Context, lowStockThreshold int) (dashboard.Stats, error) {
	st := dashboard.Stats{OrdersByStatus: map[string]int64{}, LowStock: []dashboard.LowStockItem{}}
	var err error

	if st.TotalProducts, err = s.col(colProducts).CountDocuments(ctx, bson.M{}); err != nil {
		return dashboard.Stats{}, fmt.Errorf("count products: %w", err)
	}
	if st.TotalOrders, err = s.col(colOrders).CountDocuments(ctx, bson.M{}); err != nil {
		return dashboard.Stats{}, fmt.Errorf("count orders: %w", err)
	}
	if st.TotalUsers, err = s.col(colUsers).CountDocuments(ctx, bson.M{}); err != nil {
		return dashboard.Stats{}, fmt.Errorf("count users: %w", err)
	}

	var revenue []struct {
		Total float64 `bson:"total"`
	}
	if err := s.aggregate(ctx, colOrders, mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"paymentInfo.paymentStatus": models.PaymentPaid}}},
		{{Key: "$group", Value: bson.M{"_id": nil, "total": bson.M{"$sum": "$pricing.total"}}}},
	}, &revenue); err != nil {
		return dashboard.Stats{}, err
	}
	if len(revenue) > 0 {
		st.Revenue = revenue[0].Total
	}

	var byStatus []struct {
		Status string `bson:"_id"`
		Count  int64  `bson:"count"`
	}
	if err := s.aggregate(ctx, colOrders, mongo.Pipeline{
		{{Key: "$group", Value: bson.M{"_id": "$orderStatus", "count": bson.M{"$sum": 1}}}},
	}, &byStatus); err != nil {
		return dashboard.Stats{}, err
	}
	for _, row := range byStatus {
		st.OrdersByStatus[row.Status] = row.Count
	}

	if err := s.aggregate(ctx, colProducts, mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"isActive": true}}},
		{{Key: "$unwind", Value: "$sizes"}},
		{{Key: "$match", Value: bson.M{"sizes.stock": bson.M{"$lte": lowStockThreshold}}}},
		{{Key: "$project", Value: bson.M{
			"_id":       0,
			"productId": bson.M{"$toString": "$_id"},
			"name":      1,
			"size":      "$sizes.size",
			"stock":     "$sizes.stock",
		}}},
		{{Key: "$sort", Value: bson.D{{Key: "stock", Value: 1}, {Key: "name", Value: 1}}}},
		{{Key: "$limit", Value: lowStockLimit}},
	}, &st.LowStock); err != nil {
		return dashboard.Stats{}, err
	}
	return st, nil
}

func (s *Store) aggregate(ctx context.Context, collection string, pipeline mongo.Pipeline, out any) error {
	cur, err := s.col(collection).Aggregate(ctx, pipeline)
	if err != nil {
		return fmt.Errorf("aggregate %s: %w", collection, err)
	}
	if err := cur.All(ctx, out); err != nil {
		return fmt.Errorf("decode %s aggregate: %w", collection, err)
	}
	return nil
}
