package memstore

import (
	"solestore-backend/internal/carts"
	"solestore-backend/internal/catalog"
	"solestore-backend/internal/dashboard"
	"solestore-backend/internal/inventory"
	"solestore-backend/internal/orders"
	"solestore-backend/internal/reviews"
	"solestore-backend/internal/users"
	"solestore-backend/internal/wishlist"
)

var (
	_ inventory.Store  = (*Store)(nil)
	_ orders.Store     = (*Store)(nil)
	_ orders.TxRunner  = (*Store)(nil)
	_ reviews.Store    = (*Store)(nil)
	_ catalog.Store    = (*Store)(nil)
	_ carts.Store      = (*Store)(nil)
	_ users.Store      = (*Store)(nil)
	_ wishlist.Store   = (*Store)(nil)
	_ dashboard.Reader = (*Store)(nil)
)
