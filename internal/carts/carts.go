// Package carts holds the per-user shopping cart.
package carts

import (
	"context"
	"fmt"

	"solestore-backend/internal/apperr"
	"solestore-backend/internal/inventory"
	"solestore-backend/internal/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type Store interface {
	// GetCart returns an empty cart when the user has none yet.
	GetCart(ctx context.Context, userID primitive.ObjectID) (models.Cart, error)
	// SaveCart replaces the item list, creating the cart if needed.
	SaveCart(ctx context.Context, userID primitive.ObjectID, items []models.CartItem) (models.Cart, error)
	ClearCart(ctx context.Context, userID primitive.ObjectID) error
	GetProduct(ctx context.Context, id primitive.ObjectID) (models.Product, error)
}

type Service struct {
	store Store
}

func NewService(store Store) *Service { return &Service{store: store} }

func (s *Service) Get(ctx context.Context, userID primitive.ObjectID) (models.Cart, error) {
	return s.store.GetCart(ctx, userID)
}

// checkAvailable verifies the product carries size with at least qty in stock.
func (s *Service) checkAvailable(ctx context.Context, productID primitive.ObjectID, size float64, qty int) error {
	p, err := s.store.GetProduct(ctx, productID)
	if err != nil {
		return err
	}
	entry, ok := p.SizeEntry(size)
	if !ok {
		return fmt.Errorf("%w: size %g of %s", inventory.ErrSizeUnavailable, size, p.Name)
	}
	if entry.Stock < qty {
		return &inventory.InsufficientStockError{
			ProductID: productID, ProductName: p.Name, Size: size, Requested: qty, Available: entry.Stock,
		}
	}
	return nil
}

// Add puts qty of (product, size) in the cart, merging with an existing line.
func (s *Service) Add(ctx context.Context, userID primitive.ObjectID, item models.CartItem) (models.Cart, error) {
	if item.Product.IsZero() {
		return models.Cart{}, apperr.Validation("productId value missing")
	}
	if item.Quantity < 1 {
		return models.Cart{}, apperr.Validation("quantity must be at least 1")
	}
	cart, err := s.store.GetCart(ctx, userID)
	if err != nil {
		return models.Cart{}, err
	}

	wanted := item.Quantity
	found := false
	for i, it := range cart.Items {
		if it.Product == item.Product && it.Size == item.Size {
			wanted += it.Quantity
			cart.Items[i].Quantity = wanted
			found = true
			break
		}
	}
	if err := s.checkAvailable(ctx, item.Product, item.Size, wanted); err != nil {
		return models.Cart{}, err
	}
	if !found {
		cart.Items = append(cart.Items, item)
	}
	return s.store.SaveCart(ctx, userID, cart.Items)
}

// Update sets the quantity of a line; zero or less removes it.
func (s *Service) Update(ctx context.Context, userID, productID primitive.ObjectID, size float64, qty int) (models.Cart, error) {
	cart, err := s.store.GetCart(ctx, userID)
	if err != nil {
		return models.Cart{}, err
	}
	for i, it := range cart.Items {
		if it.Product != productID || it.Size != size {
			continue
		}
		if qty <= 0 {
			cart.Items = append(cart.Items[:i], cart.Items[i+1:]...)
		} else {
			if err := s.checkAvailable(ctx, productID, size, qty); err != nil {
				return models.Cart{}, err
			}
			cart.Items[i].Quantity = qty
		}
		return s.store.SaveCart(ctx, userID, cart.Items)
	}
	return models.Cart{}, apperr.NotFound("item not in cart")
}

func (s *Service) Remove(ctx context.Context, userID, productID primitive.ObjectID, size float64) (models.Cart, error) {
	return s.Update(ctx, userID, productID, size, 0)
}

func (s *Service) Clear(ctx context.Context, userID primitive.ObjectID) error {
	return s.store.ClearCart(ctx, userID)
}
