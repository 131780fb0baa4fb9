// Package reviews manages product reviews and keeps each product's
// averageRating/totalReviews in step with its review set.
package reviews

import (
	"context"
	"fmt"
	"math"
	"sync"

	"solestore-backend/internal/metrics"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type RatingStore interface {
	ListRatings(ctx context.Context, productID primitive.ObjectID) ([]int, error)
	SetProductRating(ctx context.Context, productID primitive.ObjectID, average float64, total int) error
}

type Summary struct {
	AverageRating float64 `json:"averageRating"`
	TotalReviews  int     `json:"totalReviews"`
}

// Summarize computes the mean rounded to one decimal; no ratings gives 0.
func Summarize(ratings []int) Summary {
	if len(ratings) == 0 {
		return Summary{}
	}
	sum := 0
	for _, r := range ratings {
		sum += r
	}
	mean := float64(sum) / float64(len(ratings))
	return Summary{
		AverageRating: math.Round(mean*10) / 10,
		TotalReviews:  len(ratings),
	}
}

const lockStripes = 64

// Aggregator serializes recomputes of the same product within the process,
// so a slow recompute that read fewer ratings cannot overwrite a newer
// summary. Separate processes can still interleave; the admin
// recompute-rating endpoint repairs such a product.
type Aggregator struct {
	store RatingStore
	locks [lockStripes]sync.Mutex
}

func NewAggregator(store RatingStore) *Aggregator {
	return &Aggregator{store: store}
}

func (a *Aggregator) lockFor(productID primitive.ObjectID) *sync.Mutex {
	// The trailing ObjectID bytes are a counter, which spreads ids evenly.
	return &a.locks[int(productID[11])%lockStripes]
}

// Recompute reads every rating for the product and writes the summary back.
func (a *Aggregator) Recompute(ctx context.Context, productID primitive.ObjectID) (Summary, error) {
	mu := a.lockFor(productID)
	mu.Lock()
	defer mu.Unlock()

	ratings, err := a.store.ListRatings(ctx, productID)
	if err != nil {
		metrics.ObserveRecompute(err)
		return Summary{}, fmt.Errorf("list ratings: %w", err)
	}
	sum := Summarize(ratings)
	if err := a.store.SetProductRating(ctx, productID, sum.AverageRating, sum.TotalReviews); err != nil {
		metrics.ObserveRecompute(err)
		return Summary{}, fmt.Errorf("set product rating: %w", err)
	}
	metrics.ObserveRecompute(nil)
	return sum, nil
}
