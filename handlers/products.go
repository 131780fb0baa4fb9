package handlers

import (
	"net/http"

	"solestore-backend/internal/apperr"
	"solestore-backend/internal/catalog"
	"solestore-backend/internal/models"
	"solestore-backend/pkg/ctxmanage"
	"solestore-backend/pkg/logkey"
	"solestore-backend/pkg/respond"

	"github.com/gin-gonic/gin"
)

type productQuery struct {
	Category        string   `form:"category"`
	Search          string   `form:"search"`
	MinPrice        *float64 `form:"minPrice"`
	MaxPrice        *float64 `form:"maxPrice"`
	Sort            string   `form:"sort"`
	Page            int      `form:"page"`
	Limit           int      `form:"limit"`
	IncludeInactive bool     `form:"includeInactive"`
}

func (h *Handler) ListProducts(c *gin.Context) {
	var q productQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		fail(c, apperr.Wrap(apperr.KindValidation, err, "invalid product query"), "invalid query")
		return
	}
	f, err := catalog.Filter{
		Category: models.Category(q.Category),
		Search:   q.Search,
		MinPrice: q.MinPrice,
		MaxPrice: q.MaxPrice,
		Sort:     q.Sort,
		Page:     q.Page,
		Limit:    q.Limit,
		// only admins may see deactivated products
		IncludeInactive: q.IncludeInactive && ctxmanage.GetAuth(c).IsAdmin(),
	}.Normalize()
	if err != nil {
		fail(c, err, "invalid product filter")
		return
	}
	list, total, err := h.svc.Catalog.List(c.Request.Context(), f)
	if err != nil {
		fail(c, err, "listing products failed")
		return
	}
	respond.OK(c, http.StatusOK, paged{Items: list, Total: total, Page: f.Page, Limit: f.Limit}, "")
}

func (h *Handler) GetProduct(c *gin.Context) {
	id, err := objectIDParam(c, "id")
	if err != nil {
		fail(c, err, "bad product id")
		return
	}
	p, err := h.svc.Catalog.Get(c.Request.Context(), id)
	if err == nil && !p.IsActive && !ctxmanage.GetAuth(c).IsAdmin() {
		err = apperr.NotFound("product not found")
	}
	if err != nil {
		fail(c, err, "product lookup failed")
		return
	}
	respond.OK(c, http.StatusOK, p, "")
}

// bindProduct decodes a product body. isActive defaults to true when the
// client leaves it out.
func bindProduct(c *gin.Context) (models.Product, error) {
	p := models.Product{IsActive: true}
	err := bindJSON(c, &p)
	return p, err
}

func (h *Handler) CreateProduct(c *gin.Context) {
	p, err := bindProduct(c)
	if err != nil {
		fail(c, err, "invalid product body")
		return
	}
	created, err := h.svc.Catalog.Create(c.Request.Context(), p)
	if err != nil {
		fail(c, err, "creating product failed")
		return
	}
	ctxmanage.Logger(c).WithField(logkey.ProductID, created.ID.Hex()).Info("product created")
	respond.OK(c, http.StatusCreated, created, "product created")
}

func (h *Handler) UpdateProduct(c *gin.Context) {
	id, err := objectIDParam(c, "id")
	if err != nil {
		fail(c, err, "bad product id")
		return
	}
	p, err := bindProduct(c)
	if err != nil {
		fail(c, err, "invalid product body")
		return
	}
	updated, err := h.svc.Catalog.Update(c.Request.Context(), id, p)
	if err != nil {
		fail(c, err, "updating product failed")
		return
	}
	respond.OK(c, http.StatusOK, updated, "product updated")
}

func (h *Handler) DeleteProduct(c *gin.Context) {
	id, err := objectIDParam(c, "id")
	if err != nil {
		fail(c, err, "bad product id")
		return
	}
	if err := h.svc.Catalog.Delete(c.Request.Context(), id); err != nil {
		fail(c, err, "deleting product failed")
		return
	}
	ctxmanage.Logger(c).WithField(logkey.ProductID, id.Hex()).Info("product deleted")
	respond.OK(c, http.StatusOK, nil, "product deleted")
}

type stockRequest struct {
	Size  float64 `json:"size"`
	Stock *int    `json:"stock"`
}

func (h *Handler) SetProductStock(c *gin.Context) {
	id, err := objectIDParam(c, "id")
	if err != nil {
		fail(c, err, "bad product id")
		return
	}
	var req stockRequest
	if err := bindJSON(c, &req); err != nil {
		fail(c, err, "invalid stock body")
		return
	}
	if req.Stock == nil || req.Size <= 0 {
		fail(c, apperr.Validation("size and stock are required"), "invalid stock body")
		return
	}
	p, err := h.svc.Catalog.SetStock(c.Request.Context(), id, req.Size, *req.Stock)
	if err != nil {
		fail(c, err, "setting stock failed")
		return
	}
	respond.OK(c, http.StatusOK, p, "stock updated")
}
