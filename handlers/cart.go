package handlers

import (
	"net/http"
	"strconv"

	"solestore-backend/internal/apperr"
	"solestore-backend/internal/models"
	"solestore-backend/pkg/respond"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type cartItemRequest struct {
	ProductID primitive.ObjectID `json:"productId"`
	Size      float64            `json:"size"`
	Quantity  int                `json:"quantity"`
}

type quantityRequest struct {
	Quantity int `json:"quantity"`
}

func sizeParam(c *gin.Context) (float64, error) {
	size, err := strconv.ParseFloat(c.Param("size"), 64)
	if err != nil || size <= 0 {
		return 0, apperr.Validation("invalid size")
	}
	return size, nil
}

func (h *Handler) GetCart(c *gin.Context) {
	caller, err := callerFrom(c)
	if err != nil {
		fail(c, err, "no caller")
		return
	}
	cart, err := h.svc.Carts.Get(c.Request.Context(), caller.UserID)
	if err != nil {
		fail(c, err, "loading cart failed")
		return
	}
	respond.OK(c, http.StatusOK, cart, "")
}

func (h *Handler) AddToCart(c *gin.Context) {
	caller, err := callerFrom(c)
	if err != nil {
		fail(c, err, "no caller")
		return
	}
	var req cartItemRequest
	if err := bindJSON(c, &req); err != nil {
		fail(c, err, "invalid cart body")
		return
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}
	cart, err := h.svc.Carts.Add(c.Request.Context(), caller.UserID, models.CartItem{
		Product:  req.ProductID,
		Size:     req.Size,
		Quantity: req.Quantity,
	})
	if err != nil {
		fail(c, err, "adding to cart failed")
		return
	}
	respond.OK(c, http.StatusOK, cart, "item added to cart")
}

func (h *Handler) UpdateCartItem(c *gin.Context) {
	caller, err := callerFrom(c)
	if err != nil {
		fail(c, err, "no caller")
		return
	}
	productID, err := objectIDParam(c, "productId")
	if err != nil {
		fail(c, err, "bad product id")
		return
	}
	size, err := sizeParam(c)
	if err != nil {
		fail(c, err, "bad size")
		return
	}
	var req quantityRequest
	if err := bindJSON(c, &req); err != nil {
		fail(c, err, "invalid quantity body")
		return
	}
	cart, err := h.svc.Carts.Update(c.Request.Context(), caller.UserID, productID, size, req.Quantity)
	if err != nil {
		fail(c, err, "updating cart failed")
		return
	}
	respond.OK(c, http.StatusOK, cart, "cart updated")
}

func (h *Handler) RemoveCartItem(c *gin.Context) {
	caller, err := callerFrom(c)
	if err != nil {
		fail(c, err, "no caller")
		return
	}
	productID, err := objectIDParam(c, "productId")
	if err != nil {
		fail(c, err, "bad product id")
		return
	}
	size, err := sizeParam(c)
	if err != nil {
		fail(c, err, "bad size")
		return
	}
	cart, err := h.svc.Carts.Remove(c.Request.Context(), caller.UserID, productID, size)
	if err != nil {
		fail(c, err, "removing cart item failed")
		return
	}
	respond.OK(c, http.StatusOK, cart, "item removed from cart")
}

func (h *Handler) ClearCart(c *gin.Context) {
	caller, err := callerFrom(c)
	if err != nil {
		fail(c, err, "no caller")
		return
	}
	if err := h.svc.Carts.Clear(c.Request.Context(), caller.UserID); err != nil {
		fail(c, err, "clearing cart failed")
		return
	}
	respond.OK(c, http.StatusOK, nil, "cart cleared")
}

type wishlistRequest struct {
	ProductID primitive.ObjectID `json:"productId"`
}

func (h *Handler) GetWishlist(c *gin.Context) {
	caller, err := callerFrom(c)
	if err != nil {
		fail(c, err, "no caller")
		return
	}
	wl, err := h.svc.Wishlist.Get(c.Request.Context(), caller.UserID)
	if err != nil {
		fail(c, err, "loading wishlist failed")
		return
	}
	respond.OK(c, http.StatusOK, wl, "")
}

func (h *Handler) AddToWishlist(c *gin.Context) {
	caller, err := callerFrom(c)
	if err != nil {
		fail(c, err, "no caller")
		return
	}
	var req wishlistRequest
	if err := bindJSON(c, &req); err != nil {
		fail(c, err, "invalid wishlist body")
		return
	}
	wl, err := h.svc.Wishlist.Add(c.Request.Context(), caller.UserID, req.ProductID)
	if err != nil {
		fail(c, err, "adding to wishlist failed")
		return
	}
	respond.OK(c, http.StatusOK, wl, "added to wishlist")
}

func (h *Handler) RemoveFromWishlist(c *gin.Context) {
	caller, err := callerFrom(c)
	if err != nil {
		fail(c, err, "no caller")
		return
	}
	productID, err := objectIDParam(c, "productId")
	if err != nil {
		fail(c, err, "bad product id")
		return
	}
	wl, err := h.svc.Wishlist.Remove(c.Request.Context(), caller.UserID, productID)
	if err != nil {
		fail(c, err, "removing from wishlist failed")
		return
	}
	respond.OK(c, http.StatusOK, wl, "removed from wishlist")
}
