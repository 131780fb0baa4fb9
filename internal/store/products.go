package store

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"solestore-backend/internal/catalog"
	"solestore-backend/internal/inventory"
	"solestore-backend/internal/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func (s *Store) findProduct(ctx context.Context, id primitive.ObjectID) (models.Product, error) {
	var p models.Product
	err := s.col(colProducts).FindOne(ctx, bson.M{"_id": id}).Decode(&p)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.Product{}, inventory.ErrProductNotFound
	}
	if err != nil {
		return models.Product{}, fmt.Errorf("find product: %w", err)
	}
	return p, nil
}

func (s *Store) GetProduct(ctx context.Context, id primitive.ObjectID) (models.Product, error) {
	return s.findProduct(ctx, id)
}

func (s *Store) InsertProduct(ctx context.Context, p *models.Product) error {
	if p.ID.IsZero() {
		p.ID = primitive.NewObjectID()
	}
	if _, err := s.col(colProducts).InsertOne(ctx, p); err != nil {
		return fmt.Errorf("insert product: %w", err)
	}
	return nil
}

func catalogFields(p models.Product) bson.M {
	return bson.M{
		"name":        p.Name,
		"description": p.Description,
		"brand":       p.Brand,
		"price":       p.Price,
		"category":    p.Category,
		"images":      p.Images,
		"isActive":    p.IsActive,
		"updatedAt":   p.UpdatedAt,
	}
}

// UpdateProduct writes the catalog fields of p. The sizes array is only
// written when prevSizes is non-nil, and then only if the stored array
// still equals prevSizes, so a checkout decrement that lands in between is
// never overwritten.
func (s *Store) UpdateProduct(ctx context.Context, p models.Product, prevSizes []models.SizeStock) (models.Product, error) {
	filter := bson.M{"_id": p.ID}
	set := catalogFields(p)
	if prevSizes != nil {
		filter["sizes"] = prevSizes
		set["sizes"] = p.Sizes
	}
	var out models.Product
	err := s.col(colProducts).FindOneAndUpdate(ctx, filter,
		bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&out)
	if errors.Is(err, mongo.ErrNoDocuments) {
		if _, ferr := s.findProduct(ctx, p.ID); ferr != nil {
			return models.Product{}, ferr
		}
		return models.Product{}, catalog.ErrStockChanged
	}
	if err != nil {
		return models.Product{}, fmt.Errorf("update product: %w", err)
	}
	return out, nil
}

// UpsertProductByName is used by the seeder so that re-running it updates
// the catalog instead of duplicating it. Ratings are never touched.
func (s *Store) UpsertProductByName(ctx context.Context, p models.Product) (bool, error) {
	now := time.Now().UTC()
	p.UpdatedAt = now
	set := catalogFields(p)
	set["sizes"] = p.Sizes
	res, err := s.col(colProducts).UpdateOne(ctx,
		bson.M{"name": p.Name},
		bson.M{
			"$set":         set,
			"$setOnInsert": bson.M{"createdAt": now, "averageRating": 0.0, "totalReviews": 0},
		},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return false, fmt.Errorf("upsert product %q: %w", p.Name, err)
	}
	return res.UpsertedCount > 0, nil
}

func (s *Store) DeleteProduct(ctx context.Context, id primitive.ObjectID) error {
	res, err := s.col(colProducts).DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("delete product: %w", err)
	}
	if res.DeletedCount == 0 {
		return inventory.ErrProductNotFound
	}
	return nil
}

func (s *Store) SetSizeStock(ctx context.Context, id primitive.ObjectID, size float64, stock int) (models.Product, error) {
	var out models.Product
	err := s.col(colProducts).FindOneAndUpdate(ctx,
		bson.M{"_id": id, "sizes.size": size},
		bson.M{"$set": bson.M{"sizes.$.stock": stock, "updatedAt": time.Now().UTC()}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&out)
	if errors.Is(err, mongo.ErrNoDocuments) {
		if _, ferr := s.findProduct(ctx, id); ferr != nil {
			return models.Product{}, ferr
		}
		return models.Product{}, inventory.ErrSizeUnavailable
	}
	if err != nil {
		return models.Product{}, fmt.Errorf("set stock: %w", err)
	}
	return out, nil
}

func productSort(sort string) bson.D {
	switch sort {
	case catalog.SortPriceAsc:
		return bson.D{{Key: "price", Value: 1}}
	case catalog.SortPriceDesc:
		return bson.D{{Key: "price", Value: -1}}
	case catalog.SortRating:
		return bson.D{{Key: "averageRating", Value: -1}, {Key: "totalReviews", Value: -1}}
	case catalog.SortName:
		return bson.D{{Key: "name", Value: 1}}
	default:
		return bson.D{{Key: "createdAt", Value: -1}}
	}
}

func (s *Store) ListProducts(ctx context.Context, f catalog.Filter) ([]models.Product, int64, error) {
	filter := bson.M{}
	if !f.IncludeInactive {
		filter["isActive"] = true
	}
	if f.Category != "" {
		filter["category"] = f.Category
	}
	price := bson.M{}
	if f.MinPrice != nil {
		price["$gte"] = *f.MinPrice
	}
	if f.MaxPrice != nil {
		price["$lte"] = *f.MaxPrice
	}
	if len(price) > 0 {
		filter["price"] = price
	}
	if f.Search != "" {
		rx := primitive.Regex{Pattern: regexp.QuoteMeta(f.Search), Options: "i"}
		filter["$or"] = bson.A{
			bson.M{"name": rx},
			bson.M{"brand": rx},
			bson.M{"description": rx},
		}
	}

	total, err := s.col(colProducts).CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("count products: %w", err)
	}
	cur, err := s.col(colProducts).Find(ctx, filter, pageOptions(f.Page, f.Limit).SetSort(productSort(f.Sort)))
	if err != nil {
		return nil, 0, fmt.Errorf("list products: %w", err)
	}
	products := []models.Product{}
	if err := cur.All(ctx, &products); err != nil {
		return nil, 0, fmt.Errorf("decode products: %w", err)
	}
	return products, total, nil
}

// DecrementStock subtracts qty only if the product is active and the size
// entry still holds at least qty. The $elemMatch filter and the positional
// update run as one document operation on the server.
func (s *Store) DecrementStock(ctx context.Context, productID primitive.ObjectID, size float64, qty int) (models.Product, error) {
	filter := bson.M{
		"_id":      productID,
		"isActive": true,
		"sizes": bson.M{"$elemMatch": bson.M{
			"size":  size,
			"stock": bson.M{"$gte": qty},
		}},
	}
	update := bson.M{
		"$inc": bson.M{"sizes.$.stock": -qty},
		"$set": bson.M{"updatedAt": time.Now().UTC()},
	}
	var p models.Product
	err := s.col(colProducts).FindOneAndUpdate(ctx, filter, update,
		options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&p)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return models.Product{}, fmt.Errorf("decrement stock: %w", err)
	}

	current, ferr := s.findProduct(ctx, productID)
	if errors.Is(ferr, inventory.ErrProductNotFound) {
		return models.Product{}, inventory.Classify(nil, productID, size, qty)
	}
	if ferr != nil {
		return models.Product{}, ferr
	}
	return models.Product{}, inventory.Classify(&current, productID, size, qty)
}

func (s *Store) IncrementStock(ctx context.Context, productID primitive.ObjectID, size float64, qty int) (bool, error) {
	res, err := s.col(colProducts).UpdateOne(ctx,
		bson.M{"_id": productID, "sizes.size": size},
		bson.M{
			"$inc": bson.M{"sizes.$.stock": qty},
			"$set": bson.M{"updatedAt": time.Now().UTC()},
		},
	)
	if err != nil {
		return false, fmt.Errorf("increment stock: %w", err)
	}
	return res.MatchedCount > 0, nil
}

func (s *Store) SetProductRating(ctx context.Context, productID primitive.ObjectID, average float64, total int) error {
	res, err := s.col(colProducts).UpdateOne(ctx,
		bson.M{"_id": productID},
		bson.M{"$set": bson.M{"averageRating": average, "totalReviews": total}},
	)
	if err != nil {
		return fmt.Errorf("set product rating: %w", err)
	}
	if res.MatchedCount == 0 {
		return inventory.ErrProductNotFound
	}
	return nil
}
