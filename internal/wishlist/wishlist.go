package wishlist

import (
	"context"

	"solestore-backend/internal/apperr"
	"solestore-backend/internal/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type Store interface {
	GetWishlist(ctx context.Context, userID primitive.ObjectID) (models.Wishlist, error)
	AddToWishlist(ctx context.Context, userID, productID primitive.ObjectID) (models.Wishlist, error)
	RemoveFromWishlist(ctx context.Context, userID, productID primitive.ObjectID) (models.Wishlist, error)
	GetProduct(ctx context.Context, id primitive.ObjectID) (models.Product, error)
}

type Service struct {
	store Store
}

func NewService(store Store) *Service { return &Service{store: store} }

func (s *Service) Get(ctx context.Context, userID primitive.ObjectID) (models.Wishlist, error) {
	return s.store.GetWishlist(ctx, userID)
}

// Add is idempotent: adding a product twice keeps one entry.
func (s *Service) Add(ctx context.Context, userID, productID primitive.ObjectID) (models.Wishlist, error) {
	if productID.IsZero() {
		return models.Wishlist{}, apperr.Validation("productId value missing")
	}
	if _, err := s.store.GetProduct(ctx, productID); err != nil {
		return models.Wishlist{}, err
	}
	return s.store.AddToWishlist(ctx, userID, productID)
}

func (s *Service) Remove(ctx context.Context, userID, productID primitive.ObjectID) (models.Wishlist, error) {
	return s.store.RemoveFromWishlist(ctx, userID, productID)
}
