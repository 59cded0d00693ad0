package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kingrea/raga-review/internal/review"
)

func TestCollectorCountsEvents(t *testing.T) {
	c := NewCollector()
	c.Publish(review.Event{Type: review.EventApproved})
	c.Publish(review.Event{Type: review.EventApproved})
	c.Publish(review.Event{Type: review.EventFlaggedHighRisk})

	assert.Equal(t, 2.0, testutil.ToFloat64(c.Decisions.WithLabelValues(string(review.EventApproved))))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.Decisions.WithLabelValues(string(review.EventFlaggedHighRisk))))
}

func TestCollectorDeliveriesAndHTTP(t *testing.T) {
	c := NewCollector()
	c.RecordDelivery("triage", "log", nil)
	c.RecordDelivery("triage", "log", errors.New("boom"))
	c.RecordHTTP(http.MethodPost, "/api/v1/summaries/{id}/approve", http.StatusOK, 5*time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.Deliveries.WithLabelValues("triage", "log", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.Deliveries.WithLabelValues("triage", "log", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.HTTPRequests.WithLabelValues(http.MethodPost, "/api/v1/summaries/{id}/approve", "200")))
}

func TestHandlerExposesPendingGauge(t *testing.T) {
	c := NewCollector()
	c.TrackPending(func() int { return 2 })

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "raga_review_pending_summaries 2")
}
