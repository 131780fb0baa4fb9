package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"solestore-backend/internal/apperr"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObserveReservationFailure(t *testing.T) {
	before := testutil.ToFloat64(ReservationFailures.WithLabelValues("NotFound"))
	ObserveReservationFailure(apperr.NotFound("product not found"))
	ObserveReservationFailure(nil)
	after := testutil.ToFloat64(ReservationFailures.WithLabelValues("NotFound"))

	assert.Equal(t, before+1, after)
}

func TestObserveRecompute(t *testing.T) {
	before := testutil.ToFloat64(RatingRecomputes.WithLabelValues("error"))
	ObserveRecompute(errors.New("db down"))
	assert.Equal(t, before+1, testutil.ToFloat64(RatingRecomputes.WithLabelValues("error")))
}

func TestHandlerServesRegistry(t *testing.T) {
	OrdersCreated.Inc()
	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "storefront_orders_created_total")
}
