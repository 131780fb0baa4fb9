// Package memstore is an in-process implementation of every storage port.
// Each method holds one mutex for its whole read-modify-write, which gives
// the same per-document atomicity the Mongo store gets from single-document
// updates.
package memstore

import (
	"context"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"solestore-backend/internal/apperr"
	"solestore-backend/internal/catalog"
	"solestore-backend/internal/dashboard"
	"solestore-backend/internal/inventory"
	"solestore-backend/internal/models"
	"solestore-backend/internal/orders"
	"solestore-backend/internal/users"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type Store struct {
	mu        sync.Mutex
	products  map[primitive.ObjectID]models.Product
	orders    map[primitive.ObjectID]models.Order
	carts     map[primitive.ObjectID]models.Cart
	reviews   map[primitive.ObjectID]models.Review
	users     map[primitive.ObjectID]models.User
	wishlists map[primitive.ObjectID]models.Wishlist
	now       func() time.Time
}

func New() *Store {
	return &Store{
		products:  map[primitive.ObjectID]models.Product{},
		orders:    map[primitive.ObjectID]models.Order{},
		carts:     map[primitive.ObjectID]models.Cart{},
		reviews:   map[primitive.ObjectID]models.Review{},
		users:     map[primitive.ObjectID]models.User{},
		wishlists: map[primitive.ObjectID]models.Wishlist{},
		now:       time.Now,
	}
}

// WithTx runs fn directly; the memory store has no transactions.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) Close(context.Context) error { return nil }

func cloneProduct(p models.Product) models.Product {
	p.Sizes = append([]models.SizeStock(nil), p.Sizes...)
	p.Images = append([]string(nil), p.Images...)
	return p
}

func cloneOrder(o models.Order) models.Order {
	o.Items = append([]models.OrderItem(nil), o.Items...)
	if o.User != nil {
		u := *o.User
		o.User = &u
	}
	if o.PaymentInfo.PaidAt != nil {
		t := *o.PaymentInfo.PaidAt
		o.PaymentInfo.PaidAt = &t
	}
	return o
}

func cloneReview(r models.Review) models.Review {
	r.HelpfulBy = append([]primitive.ObjectID{}, r.HelpfulBy...)
	return r
}

func page[T any](items []T, pageNum, limit int) []T {
	start := (pageNum - 1) * limit
	if start >= len(items) {
		return []T{}
	}
	end := start + limit
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}

// Products

func (s *Store) GetProduct(_ context.Context, id primitive.ObjectID) (models.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[id]
	if !ok {
		return models.Product{}, inventory.ErrProductNotFound
	}
	return cloneProduct(p), nil
}

func (s *Store) InsertProduct(_ context.Context, p *models.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID.IsZero() {
		p.ID = primitive.NewObjectID()
	}
	s.products[p.ID] = cloneProduct(*p)
	return nil
}

// UpsertProductByName inserts p, or replaces the catalog fields of the
// product with the same name.
func (s *Store) UpsertProductByName(_ context.Context, p models.Product) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, cur := range s.products {
		if cur.Name == p.Name {
			p.ID = id
			p.CreatedAt = cur.CreatedAt
			p.AverageRating = cur.AverageRating
			p.TotalReviews = cur.TotalReviews
			s.products[id] = cloneProduct(p)
			return false, nil
		}
	}
	now := s.now().UTC()
	p.ID = primitive.NewObjectID()
	p.CreatedAt = now
	p.UpdatedAt = now
	s.products[p.ID] = cloneProduct(p)
	return true, nil
}

func (s *Store) UpdateProduct(_ context.Context, p models.Product, prevSizes []models.SizeStock) (models.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.products[p.ID]
	if !ok {
		return models.Product{}, inventory.ErrProductNotFound
	}
	if prevSizes == nil {
		p.Sizes = cur.Sizes
	} else if !slices.Equal(cur.Sizes, prevSizes) {
		return models.Product{}, catalog.ErrStockChanged
	}
	p.AverageRating = cur.AverageRating
	p.TotalReviews = cur.TotalReviews
	s.products[p.ID] = cloneProduct(p)
	return cloneProduct(p), nil
}

func (s *Store) DeleteProduct(_ context.Context, id primitive.ObjectID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.products[id]; !ok {
		return inventory.ErrProductNotFound
	}
	delete(s.products, id)
	return nil
}

func (s *Store) SetSizeStock(_ context.Context, id primitive.ObjectID, size float64, stock int) (models.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[id]
	if !ok {
		return models.Product{}, inventory.ErrProductNotFound
	}
	for i := range p.Sizes {
		if p.Sizes[i].Size == size {
			p.Sizes[i].Stock = stock
			p.UpdatedAt = s.now().UTC()
			s.products[id] = p
			return cloneProduct(p), nil
		}
	}
	return models.Product{}, inventory.ErrSizeUnavailable
}

func (s *Store) ListProducts(_ context.Context, f catalog.Filter) ([]models.Product, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	search := strings.ToLower(f.Search)
	var out []models.Product
	for _, p := range s.products {
		if !f.IncludeInactive && !p.IsActive {
			continue
		}
		if f.Category != "" && p.Category != f.Category {
			continue
		}
		if f.MinPrice != nil && p.Price < *f.MinPrice {
			continue
		}
		if f.MaxPrice != nil && p.Price > *f.MaxPrice {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(p.Name+" "+p.Brand+" "+p.Description), search) {
			continue
		}
		out = append(out, cloneProduct(p))
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		switch f.Sort {
		case catalog.SortPriceAsc:
			return a.Price < b.Price
		case catalog.SortPriceDesc:
			return a.Price > b.Price
		case catalog.SortRating:
			return a.AverageRating > b.AverageRating
		case catalog.SortName:
			return a.Name < b.Name
		default:
			return a.CreatedAt.After(b.CreatedAt)
		}
	})
	return page(out, f.Page, f.Limit), int64(len(out)), nil
}

// Inventory

func (s *Store) DecrementStock(_ context.Context, productID primitive.ObjectID, size float64, qty int) (models.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[productID]
	if !ok {
		return models.Product{}, inventory.Classify(nil, productID, size, qty)
	}
	if !p.IsActive {
		return models.Product{}, inventory.Classify(&p, productID, size, qty)
	}
	for i := range p.Sizes {
		if p.Sizes[i].Size == size && p.Sizes[i].Stock >= qty {
			p.Sizes[i].Stock -= qty
			s.products[productID] = p
			return cloneProduct(p), nil
		}
	}
	return models.Product{}, inventory.Classify(&p, productID, size, qty)
}

func (s *Store) IncrementStock(_ context.Context, productID primitive.ObjectID, size float64, qty int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[productID]
	if !ok {
		return false, nil
	}
	for i := range p.Sizes {
		if p.Sizes[i].Size == size {
			p.Sizes[i].Stock += qty
			s.products[productID] = p
			return true, nil
		}
	}
	return false, nil
}

// Orders

func (s *Store) InsertOrder(_ context.Context, o *models.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if o.ID.IsZero() {
		o.ID = primitive.NewObjectID()
	}
	intent := o.PaymentInfo.PaymentIntentID
	for _, cur := range s.orders {
		if cur.OrderNumber == o.OrderNumber {
			return apperr.Conflict("order number %s already exists", o.OrderNumber)
		}
		if intent != "" && cur.PaymentInfo.PaymentIntentID == intent {
			return apperr.Conflict("payment intent %s is already attached to an order", intent)
		}
	}
	s.orders[o.ID] = cloneOrder(*o)
	return nil
}

func (s *Store) GetOrder(_ context.Context, id primitive.ObjectID) (models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return models.Order{}, apperr.NotFound("order not found")
	}
	return cloneOrder(o), nil
}

func sortOrdersNewest(list []models.Order) {
	sort.SliceStable(list, func(i, j int) bool { return list[i].CreatedAt.After(list[j].CreatedAt) })
}

func (s *Store) ListOrdersByUser(_ context.Context, userID primitive.ObjectID) ([]models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.Order{}
	for _, o := range s.orders {
		if o.OwnedBy(userID) {
			out = append(out, cloneOrder(o))
		}
	}
	sortOrdersNewest(out)
	return out, nil
}

func (s *Store) ListOrders(_ context.Context, f orders.Filter) ([]models.Order, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Order
	for _, o := range s.orders {
		if f.Status != "" && o.OrderStatus != f.Status {
			continue
		}
		out = append(out, cloneOrder(o))
	}
	sortOrdersNewest(out)
	return page(out, f.Page, f.Limit), int64(len(out)), nil
}

func (s *Store) CompareAndSetStatus(_ context.Context, id primitive.ObjectID, from, to models.OrderStatus, payment models.PaymentStatus) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok || o.OrderStatus != from {
		return false, nil
	}
	o.OrderStatus = to
	if payment != "" {
		o.PaymentInfo.PaymentStatus = payment
	}
	o.UpdatedAt = s.now().UTC()
	s.orders[id] = o
	return true, nil
}

func (s *Store) SetOrderStatus(_ context.Context, id primitive.ObjectID, to models.OrderStatus) (models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return models.Order{}, apperr.NotFound("order not found")
	}
	o.OrderStatus = to
	o.UpdatedAt = s.now().UTC()
	s.orders[id] = o
	return cloneOrder(o), nil
}

func (s *Store) GetOrderByPaymentIntent(_ context.Context, intentID string) (models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range s.orders {
		if o.PaymentInfo.PaymentIntentID == intentID {
			return cloneOrder(o), nil
		}
	}
	return models.Order{}, apperr.NotFound("no order for payment intent %s", intentID)
}

func (s *Store) SetPaymentStatusByIntent(_ context.Context, intentID string, status models.PaymentStatus, paidAt *time.Time) (models.Order, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, o := range s.orders {
		if o.PaymentInfo.PaymentIntentID != intentID {
			continue
		}
		if o.OrderStatus == models.OrderCancelled || o.PaymentInfo.PaymentStatus == models.PaymentRefunded {
			return cloneOrder(o), false, nil
		}
		o.PaymentInfo.PaymentStatus = status
		if paidAt != nil {
			t := *paidAt
			o.PaymentInfo.PaidAt = &t
		}
		o.UpdatedAt = s.now().UTC()
		s.orders[id] = o
		return cloneOrder(o), true, nil
	}
	return models.Order{}, false, apperr.NotFound("no order for payment intent %s", intentID)
}

// Carts

func (s *Store) GetCart(_ context.Context, userID primitive.ObjectID) (models.Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.carts[userID]
	if !ok {
		return models.Cart{User: userID, Items: []models.CartItem{}}, nil
	}
	c.Items = append([]models.CartItem{}, c.Items...)
	return c, nil
}

func (s *Store) SaveCart(_ context.Context, userID primitive.ObjectID, items []models.CartItem) (models.Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.carts[userID]
	if !ok {
		c = models.Cart{ID: primitive.NewObjectID(), User: userID}
	}
	c.Items = append([]models.CartItem{}, items...)
	c.UpdatedAt = s.now().UTC()
	s.carts[userID] = c
	out := c
	out.Items = append([]models.CartItem{}, c.Items...)
	return out, nil
}

func (s *Store) ClearCart(_ context.Context, userID primitive.ObjectID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.carts[userID]; ok {
		c.Items = []models.CartItem{}
		c.UpdatedAt = s.now().UTC()
		s.carts[userID] = c
	}
	return nil
}

// Wishlists

func (s *Store) GetWishlist(_ context.Context, userID primitive.ObjectID) (models.Wishlist, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.wishlists[userID]
	if !ok {
		return models.Wishlist{User: userID, ProductIDs: []primitive.ObjectID{}}, nil
	}
	w.ProductIDs = append([]primitive.ObjectID{}, w.ProductIDs...)
	return w, nil
}

func (s *Store) AddToWishlist(_ context.Context, userID, productID primitive.ObjectID) (models.Wishlist, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.wishlists[userID]
	if !ok {
		w = models.Wishlist{ID: primitive.NewObjectID(), User: userID}
	}
	present := false
	for _, id := range w.ProductIDs {
		if id == productID {
			present = true
			break
		}
	}
	if !present {
		w.ProductIDs = append(w.ProductIDs, productID)
	}
	s.wishlists[userID] = w
	w.ProductIDs = append([]primitive.ObjectID{}, w.ProductIDs...)
	return w, nil
}

func (s *Store) RemoveFromWishlist(_ context.Context, userID, productID primitive.ObjectID) (models.Wishlist, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.wishlists[userID]
	if !ok {
		return models.Wishlist{User: userID, ProductIDs: []primitive.ObjectID{}}, nil
	}
	kept := make([]primitive.ObjectID, 0, len(w.ProductIDs))
	for _, id := range w.ProductIDs {
		if id != productID {
			kept = append(kept, id)
		}
	}
	w.ProductIDs = kept
	s.wishlists[userID] = w
	w.ProductIDs = append([]primitive.ObjectID{}, kept...)
	return w, nil
}

// Users

func (s *Store) InsertUser(_ context.Context, u *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, cur := range s.users {
		if cur.Email == u.Email {
			return apperr.Conflict("email %s is already registered", u.Email)
		}
	}
	if u.ID.IsZero() {
		u.ID = primitive.NewObjectID()
	}
	s.users[u.ID] = *u
	return nil
}

func (s *Store) GetUser(_ context.Context, id primitive.ObjectID) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return models.User{}, apperr.NotFound("user not found")
	}
	return u, nil
}

func (s *Store) GetUserByEmail(_ context.Context, email string) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == email {
			return u, nil
		}
	}
	return models.User{}, apperr.NotFound("user not found")
}

func (s *Store) UpdateUserProfile(_ context.Context, id primitive.ObjectID, p users.ProfileUpdate) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return models.User{}, apperr.NotFound("user not found")
	}
	if p.Name != nil {
		u.Name = *p.Name
	}
	if p.Phone != nil {
		u.Phone = *p.Phone
	}
	if p.Address != nil {
		u.Address = *p.Address
	}
	s.users[id] = u
	return u, nil
}

func (s *Store) ListUsers(_ context.Context, pageNum, limit int) ([]models.User, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, u)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return page(out, pageNum, limit), int64(len(out)), nil
}

// Reviews

func (s *Store) InsertReview(_ context.Context, r *models.Review) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, cur := range s.reviews {
		if cur.Product == r.Product && cur.User == r.User {
			return apperr.Conflict("you have already reviewed this product")
		}
	}
	if r.ID.IsZero() {
		r.ID = primitive.NewObjectID()
	}
	s.reviews[r.ID] = cloneReview(*r)
	return nil
}

func (s *Store) GetReview(_ context.Context, id primitive.ObjectID) (models.Review, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reviews[id]
	if !ok {
		return models.Review{}, apperr.NotFound("review not found")
	}
	return cloneReview(r), nil
}

// UpdateReview writes the editable fields only, leaving helpful votes as
// they are in the store.
func (s *Store) UpdateReview(_ context.Context, r models.Review) (models.Review, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.reviews[r.ID]
	if !ok {
		return models.Review{}, apperr.NotFound("review not found")
	}
	cur.Rating = r.Rating
	cur.Title = r.Title
	cur.Comment = r.Comment
	cur.UpdatedAt = r.UpdatedAt
	s.reviews[r.ID] = cur
	return cloneReview(cur), nil
}

func (s *Store) DeleteReview(_ context.Context, id primitive.ObjectID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.reviews[id]; !ok {
		return apperr.NotFound("review not found")
	}
	delete(s.reviews, id)
	return nil
}

func (s *Store) FindReviewByAuthor(_ context.Context, productID, userID primitive.ObjectID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.reviews {
		if r.Product == productID && r.User == userID {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) ListReviews(_ context.Context, productID primitive.ObjectID, pageNum, limit int) ([]models.Review, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Review
	for _, r := range s.reviews {
		if r.Product == productID {
			out = append(out, cloneReview(r))
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return page(out, pageNum, limit), int64(len(out)), nil
}

func (s *Store) ListRatings(_ context.Context, productID primitive.ObjectID) ([]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []int{}
	for _, r := range s.reviews {
		if r.Product == productID {
			out = append(out, r.Rating)
		}
	}
	return out, nil
}

func (s *Store) SetProductRating(_ context.Context, productID primitive.ObjectID, average float64, total int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[productID]
	if !ok {
		return inventory.ErrProductNotFound
	}
	p.AverageRating = average
	p.TotalReviews = total
	s.products[productID] = p
	return nil
}

func (s *Store) ToggleHelpful(_ context.Context, reviewID, userID primitive.ObjectID) (models.Review, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reviews[reviewID]
	if !ok {
		return models.Review{}, apperr.NotFound("review not found")
	}
	if r.MarkedHelpfulBy(userID) {
		kept := make([]primitive.ObjectID, 0, len(r.HelpfulBy))
		for _, id := range r.HelpfulBy {
			if id != userID {
				kept = append(kept, id)
			}
		}
		r.HelpfulBy = kept
		r.Helpful--
	} else {
		r.HelpfulBy = append(append([]primitive.ObjectID{}, r.HelpfulBy...), userID)
		r.Helpful++
	}
	s.reviews[reviewID] = r
	return cloneReview(r), nil
}

func (s *Store) HasPaidOrderFor(_ context.Context, userID, productID primitive.ObjectID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range s.orders {
		if !o.OwnedBy(userID) || o.PaymentInfo.PaymentStatus != models.PaymentPaid {
			continue
		}
		for _, it := range o.Items {
			if it.Product == productID {
				return true, nil
			}
		}
	}
	return false, nil
}

// Dashboard

func (s *Store) DashboardStats(_ context.Context, lowStockThreshold int) (dashboard.Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := dashboard.Stats{
		TotalProducts:  int64(len(s.products)),
		TotalOrders:    int64(len(s.orders)),
		TotalUsers:     int64(len(s.users)),
		OrdersByStatus: map[string]int64{},
		LowStock:       []dashboard.LowStockItem{},
	}
	for _, o := range s.orders {
		st.OrdersByStatus[string(o.OrderStatus)]++
		if o.PaymentInfo.PaymentStatus == models.PaymentPaid {
			st.Revenue += o.Pricing.Total
		}
	}
	for _, p := range s.products {
		if !p.IsActive {
			continue
		}
		for _, sz := range p.Sizes {
			if sz.Stock <= lowStockThreshold {
				st.LowStock = append(st.LowStock, dashboard.LowStockItem{
					ProductID: p.ID.Hex(), Name: p.Name, Size: sz.Size, Stock: sz.Stock,
				})
			}
		}
	}
	sort.SliceStable(st.LowStock, func(i, j int) bool { return st.LowStock[i].Stock < st.LowStock[j].Stock })
	return st, nil
}
