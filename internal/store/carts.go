package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"solestore-backend/internal/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func (s *Store) GetCart(ctx context.Context, userID primitive.ObjectID) (models.Cart, error) {
	var cart models.Cart
	err := s.col(colCarts).FindOne(ctx, bson.M{"user": userID}).Decode(&cart)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.Cart{User: userID, Items: []models.CartItem{}}, nil
	}
	if err != nil {
		return models.Cart{}, fmt.Errorf("find cart: %w", err)
	}
	if cart.Items == nil {
		cart.Items = []models.CartItem{}
	}
	return cart, nil
}

func (s *Store) SaveCart(ctx context.Context, userID primitive.ObjectID, items []models.CartItem) (models.Cart, error) {
	if items == nil {
		items = []models.CartItem{}
	}
	var cart models.Cart
	err := s.col(colCarts).FindOneAndUpdate(ctx,
		bson.M{"user": userID},
		bson.M{"$set": bson.M{"items": items, "updatedAt": time.Now().UTC()}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&cart)
	if err != nil {
		return models.Cart{}, fmt.Errorf("save cart: %w", err)
	}
	return cart, nil
}

func (s *Store) ClearCart(ctx context.Context, userID primitive.ObjectID) error {
	_, err := s.col(colCarts).UpdateOne(ctx,
		bson.M{"user": userID},
		bson.M{"$set": bson.M{"items": []models.CartItem{}, "updatedAt": time.Now().UTC()}},
	)
	if err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}
	return nil
}

func (s *Store) GetWishlist(ctx context.Context, userID primitive.ObjectID) (models.Wishlist, error) {
	var w models.Wishlist
	err := s.col(colWishlists).FindOne(ctx, bson.M{"user": userID}).Decode(&w)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.Wishlist{User: userID, ProductIDs: []primitive.ObjectID{}}, nil
	}
	if err != nil {
		return models.Wishlist{}, fmt.Errorf("find wishlist: %w", err)
	}
	if w.ProductIDs == nil {
		w.ProductIDs = []primitive.ObjectID{}
	}
	return w, nil
}

func (s *Store) updateWishlist(ctx context.Context, userID primitive.ObjectID, update bson.M, upsert bool) (models.Wishlist, error) {
	var w models.Wishlist
	err := s.col(colWishlists).FindOneAndUpdate(ctx,
		bson.M{"user": userID},
		update,
		options.FindOneAndUpdate().SetUpsert(upsert).SetReturnDocument(options.After),
	).Decode(&w)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.Wishlist{User: userID, ProductIDs: []primitive.ObjectID{}}, nil
	}
	if err != nil {
		return models.Wishlist{}, fmt.Errorf("update wishlist: %w", err)
	}
	if w.ProductIDs == nil {
		w.ProductIDs = []primitive.ObjectID{}
	}
	return w, nil
}

func (s *Store) AddToWishlist(ctx context.Context, userID, productID primitive.ObjectID) (models.Wishlist, error) {
	return s.updateWishlist(ctx, userID, bson.M{"$addToSet": bson.M{"productIds": productID}}, true)
}

func (s *Store) RemoveFromWishlist(ctx context.Context, userID, productID primitive.ObjectID) (models.Wishlist, error) {
	return s.updateWishlist(ctx, userID, bson.M{"$pull": bson.M{"productIds": productID}}, false)
}
