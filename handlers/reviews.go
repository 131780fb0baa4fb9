package handlers

import (
	"net/http"

	"solestore-backend/internal/reviews"
	"solestore-backend/pkg/ctxmanage"
	"solestore-backend/pkg/respond"

	"github.com/gin-gonic/gin"
)

func (h *Handler) ListProductReviews(c *gin.Context) {
	productID, err := objectIDParam(c, "productId")
	if err != nil {
		fail(c, err, "bad product id")
		return
	}
	q, err := bindPage(c)
	if err != nil {
		fail(c, err, "invalid query")
		return
	}
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Limit < 1 || q.Limit > 50 {
		q.Limit = 10
	}
	list, total, err := h.svc.Reviews.ListForProduct(c.Request.Context(), productID, q.Page, q.Limit)
	if err != nil {
		fail(c, err, "listing reviews failed")
		return
	}
	respond.OK(c, http.StatusOK, paged{Items: list, Total: total, Page: q.Page, Limit: q.Limit}, "")
}

func (h *Handler) CreateReview(c *gin.Context) {
	var in reviews.CreateInput
	if err := bindJSON(c, &in); err != nil {
		fail(c, err, "invalid review body")
		return
	}
	r, err := h.svc.Reviews.Create(c.Request.Context(), ctxmanage.GetAuth(c), in)
	if err != nil {
		fail(c, err, "creating review failed")
		return
	}
	respond.OK(c, http.StatusCreated, r, "review created")
}

func (h *Handler) UpdateReview(c *gin.Context) {
	id, err := objectIDParam(c, "id")
	if err != nil {
		fail(c, err, "bad review id")
		return
	}
	var in reviews.UpdateInput
	if err := bindJSON(c, &in); err != nil {
		fail(c, err, "invalid review body")
		return
	}
	r, err := h.svc.Reviews.Update(c.Request.Context(), ctxmanage.GetAuth(c), id, in)
	if err != nil {
		fail(c, err, "updating review failed")
		return
	}
	respond.OK(c, http.StatusOK, r, "review updated")
}

func (h *Handler) DeleteReview(c *gin.Context) {
	id, err := objectIDParam(c, "id")
	if err != nil {
		fail(c, err, "bad review id")
		return
	}
	if err := h.svc.Reviews.Delete(c.Request.Context(), ctxmanage.GetAuth(c), id); err != nil {
		fail(c, err, "deleting review failed")
		return
	}
	respond.OK(c, http.StatusOK, nil, "review deleted")
}

func (h *Handler) ToggleHelpful(c *gin.Context) {
	id, err := objectIDParam(c, "id")
	if err != nil {
		fail(c, err, "bad review id")
		return
	}
	r, err := h.svc.Reviews.ToggleHelpful(c.Request.Context(), ctxmanage.GetAuth(c), id)
	if err != nil {
		fail(c, err, "helpful toggle failed")
		return
	}
	respond.OK(c, http.StatusOK, r, "")
}
