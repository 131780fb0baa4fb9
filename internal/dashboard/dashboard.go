// Package dashboard reports store-wide figures for the admin dashboard.
package dashboard

import "context"

// LowStockThreshold is the stock level at or below which a size is reported.
const LowStockThreshold = 5

type LowStockItem struct {
	ProductID string  `json:"productId" bson:"productId"`
	Name      string  `json:"name" bson:"name"`
	Size      float64 `json:"size" bson:"size"`
	Stock     int     `json:"stock" bson:"stock"`
}

type Stats struct {
	TotalProducts  int64            `json:"totalProducts"`
	TotalOrders    int64            `json:"totalOrders"`
	TotalUsers     int64            `json:"totalUsers"`
	Revenue        float64          `json:"revenue"`
	OrdersByStatus map[string]int64 `json:"ordersByStatus"`
	LowStock       []LowStockItem   `json:"lowStock"`
}

type Reader interface {
	DashboardStats(ctx context.Context, lowStockThreshold int) (Stats, error)
}

type Service struct {
	reader Reader
}

func NewService(r Reader) *Service { return &Service{reader: r} }

func (s *Service) Stats(ctx context.Context) (Stats, error) {
	st, err := s.reader.DashboardStats(ctx, LowStockThreshold)
	if err != nil {
		return Stats{}, err
	}
	if st.OrdersByStatus == nil {
		st.OrdersByStatus = map[string]int64{}
	}
	if st.LowStock == nil {
		st.LowStock = []LowStockItem{}
	}
	return st, nil
}
