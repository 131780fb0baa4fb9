// Package inventory reserves per-size stock for orders and gives it back
// when orders are cancelled.
//
// Every decrement is a single conditional update in the store
// (stock -= n where stock >= n), so two concurrent reservations of the
// last unit cannot both succeed. A reservation covering several lines is
// all-or-nothing: when a line fails, the lines already applied in the same
// call are put back before the error is returned.
package inventory

import (
	"context"
	"fmt"

	"solestore-backend/internal/apperr"
	"solestore-backend/internal/models"
	"solestore-backend/pkg/logkey"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

var (
	ErrProductNotFound = apperr.NotFound("product not found")
	ErrSizeUnavailable = apperr.NotFound("size not available")
	ErrProductInactive = apperr.Validation("product is not available for sale")
)

// InsufficientStockError reports how many units were actually available.
type InsufficientStockError struct {
	ProductID   primitive.ObjectID
	ProductName string
	Size        float64
	Requested   int
	Available   int
}

func (e *InsufficientStockError) Error() string {
	name := e.ProductName
	if name == "" {
		name = e.ProductID.Hex()
	}
	return fmt.Sprintf("insufficient stock for %s (size %g): requested %d, available %d",
		name, e.Size, e.Requested, e.Available)
}

func (e *InsufficientStockError) ErrorKind() apperr.Kind { return apperr.KindInsufficientStock }

func (e *InsufficientStockError) ErrorDetails() map[string]any {
	return map[string]any{
		"productId": e.ProductID.Hex(),
		"size":      e.Size,
		"requested": e.Requested,
		"available": e.Available,
	}
}

// Line is one (product, size, quantity) request against the catalog.
type Line struct {
	ProductID primitive.ObjectID
	Size      float64
	Quantity  int
}

// Store is the persistence the reserver needs.
type Store interface {
	// DecrementStock atomically subtracts qty from the size entry of an
	// active product when it holds at least qty, returning the updated
	// product. When nothing was updated it returns ErrProductNotFound,
	// ErrProductInactive, ErrSizeUnavailable (all may be wrapped) or
	// *InsufficientStockError.
	DecrementStock(ctx context.Context, productID primitive.ObjectID, size float64, qty int) (models.Product, error)
	// IncrementStock adds qty to the size entry. found is false when the
	// product or the size no longer exists.
	IncrementStock(ctx context.Context, productID primitive.ObjectID, size float64, qty int) (found bool, err error)
}

type Reserver struct {
	store Store
	log   *logrus.Logger
}

func NewReserver(store Store, log *logrus.Logger) *Reserver {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Reserver{store: store, log: log}
}

// Merge folds lines for the same product and size together, keeping the
// order of first appearance.
func Merge(lines []Line) []Line {
	type key struct {
		id   primitive.ObjectID
		size float64
	}
	idx := make(map[key]int, len(lines))
	out := make([]Line, 0, len(lines))
	for _, l := range lines {
		k := key{l.ProductID, l.Size}
		if i, ok := idx[k]; ok {
			out[i].Quantity += l.Quantity
			continue
		}
		idx[k] = len(out)
		out = append(out, l)
	}
	return out
}

// Reserve decrements stock for every line. On success it returns the
// updated product documents keyed by id.
func (r *Reserver) Reserve(ctx context.Context, lines []Line) (map[primitive.ObjectID]models.Product, error) {
	if len(lines) == 0 {
		return nil, apperr.Validation("no items to reserve")
	}
	for _, l := range lines {
		if l.Quantity < 1 {
			return nil, apperr.Validation("quantity must be at least 1")
		}
	}

	merged := Merge(lines)
	products := make(map[primitive.ObjectID]models.Product, len(merged))
	for i, l := range merged {
		p, err := r.store.DecrementStock(ctx, l.ProductID, l.Size, l.Quantity)
		if err != nil {
			r.undoReserve(ctx, merged[:i])
			return nil, err
		}
		products[l.ProductID] = p
	}
	return products, nil
}

// undoReserve and undoRelease run detached from the caller's cancellation:
// a request that is cancelled mid-reservation must still give back what it
// took.
func (r *Reserver) undoReserve(ctx context.Context, applied []Line) {
	ctx = context.WithoutCancel(ctx)
	for _, l := range applied {
		if _, err := r.store.IncrementStock(ctx, l.ProductID, l.Size, l.Quantity); err != nil {
			r.log.WithFields(logrus.Fields{
				logkey.Component: "inventory",
				logkey.ProductID: l.ProductID.Hex(),
				logkey.Size:      l.Size,
				logkey.Quantity:  l.Quantity,
				logkey.ERROR:     err,
			}).Error("failed to undo partial reservation")
		}
	}
}

// Release gives stock back for every line. Lines whose product or size no
// longer exists are skipped. A storage error puts back the increments
// already applied in this call and is returned. restored counts the lines
// that found their size entry.
func (r *Reserver) Release(ctx context.Context, lines []Line) (restored int, err error) {
	merged := Merge(lines)
	applied := make([]Line, 0, len(merged))
	for _, l := range merged {
		if l.Quantity < 1 {
			continue
		}
		found, err := r.store.IncrementStock(ctx, l.ProductID, l.Size, l.Quantity)
		if err != nil {
			r.undoRelease(ctx, applied)
			return 0, fmt.Errorf("restore stock for %s: %w", l.ProductID.Hex(), err)
		}
		if !found {
			r.log.WithFields(logrus.Fields{
				logkey.Component: "inventory",
				logkey.ProductID: l.ProductID.Hex(),
				logkey.Size:      l.Size,
			}).Debug("skipping stock restore for missing product or size")
			continue
		}
		applied = append(applied, l)
	}
	return len(applied), nil
}

func (r *Reserver) undoRelease(ctx context.Context, applied []Line) {
	ctx = context.WithoutCancel(ctx)
	for _, l := range applied {
		if _, err := r.store.DecrementStock(ctx, l.ProductID, l.Size, l.Quantity); err != nil {
			r.log.WithFields(logrus.Fields{
				logkey.Component: "inventory",
				logkey.ProductID: l.ProductID.Hex(),
				logkey.ERROR:     err,
			}).Error("failed to undo partial stock restore")
		}
	}
}

// LinesFromOrder turns order snapshots back into reservation lines.
func LinesFromOrder(o models.Order) []Line {
	lines := make([]Line, 0, len(o.Items))
	for _, it := range o.Items {
		lines = append(lines, Line{ProductID: it.Product, Size: it.Size, Quantity: it.Quantity})
	}
	return lines
}

// Classify explains why a conditional decrement on p matched nothing. A
// nil product means the id did not resolve.
func Classify(p *models.Product, productID primitive.ObjectID, size float64, qty int) error {
	if p == nil {
		return fmt.Errorf("%w: %s", ErrProductNotFound, productID.Hex())
	}
	if !p.IsActive {
		return fmt.Errorf("%w: %s", ErrProductInactive, p.Name)
	}
	entry, ok := p.SizeEntry(size)
	if !ok {
		return fmt.Errorf("%w: size %g of %s", ErrSizeUnavailable, size, p.Name)
	}
	return &InsufficientStockError{
		ProductID:   productID,
		ProductName: p.Name,
		Size:        size,
		Requested:   qty,
		Available:   entry.Stock,
	}
}
