package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type Category string

const (
	CategoryRunning  Category = "running"
	CategoryCasual   Category = "casual"
	CategorySports   Category = "sports"
	CategoryFormal   Category = "formal"
	CategorySneakers Category = "sneakers"
)

func (c Category) Valid() bool {
	switch c {
	case CategoryRunning, CategoryCasual, CategorySports, CategoryFormal, CategorySneakers:
		return true
	}
	return false
}

// SizeStock is the stock counter for one shoe size of a product.
type SizeStock struct {
	Size  float64 `bson:"size" json:"size" yaml:"size" validate:"gt=0"`
	Stock int     `bson:"stock" json:"stock" yaml:"stock" validate:"gte=0"`
}

type Product struct {
	ID            primitive.ObjectID `bson:"_id,omitempty" json:"id" yaml:"-"`
	Name          string             `bson:"name" json:"name" yaml:"name" validate:"required,max=200"`
	Description   string             `bson:"description" json:"description" yaml:"description"`
	Brand         string             `bson:"brand" json:"brand" yaml:"brand"`
	Price         float64            `bson:"price" json:"price" yaml:"price" validate:"gte=0"`
	Category      Category           `bson:"category" json:"category" yaml:"category" validate:"required,oneof=running casual sports formal sneakers"`
	Images        []string           `bson:"images" json:"images" yaml:"images"`
	Sizes         []SizeStock        `bson:"sizes" json:"sizes" yaml:"sizes" validate:"required,min=1,dive"`
	AverageRating float64            `bson:"averageRating" json:"averageRating" yaml:"-"`
	TotalReviews  int                `bson:"totalReviews" json:"totalReviews" yaml:"-"`
	IsActive      bool               `bson:"isActive" json:"isActive" yaml:"isActive"`
	CreatedAt     time.Time          `bson:"createdAt" json:"createdAt" yaml:"-"`
	UpdatedAt     time.Time          `bson:"updatedAt" json:"updatedAt" yaml:"-"`
}

// SizeEntry returns the stock entry for size, if the product carries it.
func (p Product) SizeEntry(size float64) (SizeStock, bool) {
	for _, s := range p.Sizes {
		if s.Size == size {
			return s, true
		}
	}
	return SizeStock{}, false
}

// HasUniqueSizes reports whether no size value appears twice.
func (p Product) HasUniqueSizes() bool {
	seen := make(map[float64]struct{}, len(p.Sizes))
	for _, s := range p.Sizes {
		if _, ok := seen[s.Size]; ok {
			return false
		}
		seen[s.Size] = struct{}{}
	}
	return true
}

// FirstImage is what order snapshots carry.
func (p Product) FirstImage() string {
	if len(p.Images) == 0 {
		return ""
	}
	return p.Images[0]
}
