package handlers

import (
	"net/http"

	"solestore-backend/pkg/ctxmanage"
	"solestore-backend/pkg/logkey"
	"solestore-backend/pkg/respond"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

func (h *Handler) Dashboard(c *gin.Context) {
	stats, err := h.svc.Dashboard.Stats(c.Request.Context())
	if err != nil {
		fail(c, err, "dashboard stats failed")
		return
	}
	respond.OK(c, http.StatusOK, stats, "")
}

// RecomputeRating rebuilds a product's rating summary from its reviews.
func (h *Handler) RecomputeRating(c *gin.Context) {
	id, err := objectIDParam(c, "id")
	if err != nil {
		fail(c, err, "bad product id")
		return
	}
	sum, err := h.svc.Reviews.Aggregator().Recompute(c.Request.Context(), id)
	if err != nil {
		fail(c, err, "rating recompute failed")
		return
	}
	ctxmanage.Logger(c).WithFields(logrus.Fields{
		logkey.ProductID: id.Hex(),
		"average":        sum.AverageRating,
		"total":          sum.TotalReviews,
	}).Info("rating recomputed")
	respond.OK(c, http.StatusOK, sum, "rating recomputed")
}
