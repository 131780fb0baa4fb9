// Package catalog is the product listing and admin product management.
package catalog

import (
	"context"
	"strings"
	"time"

	"solestore-backend/internal/apperr"
	"solestore-backend/internal/models"

	"github.com/go-playground/validator/v10"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	SortNewest    = "newest"
	SortPriceAsc  = "price_asc"
	SortPriceDesc = "price_desc"
	SortRating    = "rating"
	SortName      = "name"
)

type Filter struct {
	Category        models.Category
	Search          string
	MinPrice        *float64
	MaxPrice        *float64
	Sort            string
	Page            int
	Limit           int
	IncludeInactive bool
}

// ErrStockChanged means stock moved between reading a product and writing
// its new size list.
var ErrStockChanged = apperr.Conflict("product stock changed during the update, please retry")

type Store interface {
	ListProducts(ctx context.Context, f Filter) ([]models.Product, int64, error)
	GetProduct(ctx context.Context, id primitive.ObjectID) (models.Product, error)
	InsertProduct(ctx context.Context, p *models.Product) error
	// UpdateProduct replaces the editable fields; rating fields are left
	// alone. Sizes are untouched when prevSizes is nil. Otherwise they are
	// replaced only while the stored sizes still equal prevSizes, and
	// ErrStockChanged is returned when they do not.
	UpdateProduct(ctx context.Context, p models.Product, prevSizes []models.SizeStock) (models.Product, error)
	DeleteProduct(ctx context.Context, id primitive.ObjectID) error
	SetSizeStock(ctx context.Context, id primitive.ObjectID, size float64, stock int) (models.Product, error)
}

type Service struct {
	store    Store
	validate *validator.Validate
	now      func() time.Time
}

func NewService(store Store) *Service {
	return &Service{store: store, validate: validator.New(), now: time.Now}
}

// Normalize fills defaults and rejects unknown filter values.
func (f Filter) Normalize() (Filter, error) {
	if f.Category != "" && !f.Category.Valid() {
		return f, apperr.Validation("unknown category %q", f.Category)
	}
	switch f.Sort {
	case "":
		f.Sort = SortNewest
	case SortNewest, SortPriceAsc, SortPriceDesc, SortRating, SortName:
	default:
		return f, apperr.Validation("unknown sort %q", f.Sort)
	}
	if f.MinPrice != nil && f.MaxPrice != nil && *f.MinPrice > *f.MaxPrice {
		return f, apperr.Validation("minPrice is greater than maxPrice")
	}
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit < 1 || f.Limit > 100 {
		f.Limit = 12
	}
	f.Search = strings.TrimSpace(f.Search)
	return f, nil
}

func (s *Service) List(ctx context.Context, f Filter) ([]models.Product, int64, error) {
	f, err := f.Normalize()
	if err != nil {
		return nil, 0, err
	}
	return s.store.ListProducts(ctx, f)
}

func (s *Service) Get(ctx context.Context, id primitive.ObjectID) (models.Product, error) {
	return s.store.GetProduct(ctx, id)
}

func (s *Service) validateProduct(p models.Product) error {
	if err := s.validate.Struct(p); err != nil {
		return apperr.FromValidator(err)
	}
	if !p.HasUniqueSizes() {
		return apperr.Validation("size values must be unique per product")
	}
	return nil
}

func (s *Service) Create(ctx context.Context, p models.Product) (models.Product, error) {
	p.Name = strings.TrimSpace(p.Name)
	if err := s.validateProduct(p); err != nil {
		return models.Product{}, err
	}
	now := s.now().UTC()
	p.ID = primitive.NilObjectID
	p.AverageRating = 0
	p.TotalReviews = 0
	p.CreatedAt = now
	p.UpdatedAt = now
	if err := s.store.InsertProduct(ctx, &p); err != nil {
		return models.Product{}, err
	}
	return p, nil
}

func (s *Service) Update(ctx context.Context, id primitive.ObjectID, p models.Product) (models.Product, error) {
	current, err := s.store.GetProduct(ctx, id)
	if err != nil {
		return models.Product{}, err
	}
	p.Name = strings.TrimSpace(p.Name)
	if err := s.validateProduct(p); err != nil {
		return models.Product{}, err
	}
	p.ID = id
	p.CreatedAt = current.CreatedAt
	p.AverageRating = current.AverageRating
	p.TotalReviews = current.TotalReviews
	p.UpdatedAt = s.now().UTC()

	// Stock of sizes that already exist is owned by checkout and SetStock.
	// The body's stock only seeds sizes that are new.
	for i := range p.Sizes {
		if cur, ok := current.SizeEntry(p.Sizes[i].Size); ok {
			p.Sizes[i].Stock = cur.Stock
		}
	}
	if sameSizeSet(current.Sizes, p.Sizes) {
		return s.store.UpdateProduct(ctx, p, nil)
	}
	return s.store.UpdateProduct(ctx, p, current.Sizes)
}

func sameSizeSet(a, b []models.SizeStock) bool {
	if len(a) != len(b) {
		return false
	}
	seen := make(map[float64]struct{}, len(a))
	for _, e := range a {
		seen[e.Size] = struct{}{}
	}
	for _, e := range b {
		if _, ok := seen[e.Size]; !ok {
			return false
		}
	}
	return true
}

func (s *Service) Delete(ctx context.Context, id primitive.ObjectID) error {
	return s.store.DeleteProduct(ctx, id)
}

// SetStock overwrites the stock of one existing size.
func (s *Service) SetStock(ctx context.Context, id primitive.ObjectID, size float64, stock int) (models.Product, error) {
	if stock < 0 {
		return models.Product{}, apperr.Validation("stock must be non-negative")
	}
	return s.store.SetSizeStock(ctx, id, size, stock)
}
