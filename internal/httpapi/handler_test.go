package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kingrea/raga-review/internal/metrics"
	"github.com/kingrea/raga-review/internal/review"
	"github.com/kingrea/raga-review/internal/seed"
)

func newTestStore(t *testing.T) *review.Store {
	t.Helper()
	store, err := review.NewStore(seed.Demo(), review.WithClock(func() time.Time {
		return time.Date(2025, 10, 13, 9, 0, 0, 0, time.UTC)
	}))
	require.NoError(t, err)
	return store
}

func newTestHandler(t *testing.T, store *review.Store, opts ...HandlerOption) http.Handler {
	t.Helper()
	settings := Settings{Enabled: true, RatePerSecond: 1000, Burst: 1000}
	return NewHandler(store, settings, opts...).Routes()
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestListSummaries(t *testing.T) {
	h := newTestHandler(t, newTestStore(t))

	rec := do(t, h, http.MethodGet, "/api/v1/summaries", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	body := decodeBody[queueResponse](t, rec)
	require.Len(t, body.Summaries, 3)
	assert.Equal(t, "w1", body.SelectedID)
	assert.Equal(t, 2, body.PendingCount)
	assert.Equal(t, 1, body.Counts[review.StatusApproved])
}

func TestGetSummary(t *testing.T) {
	h := newTestHandler(t, newTestStore(t))

	rec := do(t, h, http.MethodGet, "/api/v1/summaries/w2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	summary := decodeBody[review.Summary](t, rec)
	assert.Equal(t, "Arjun K.", summary.UserName)

	rec = do(t, h, http.MethodGet, "/api/v1/summaries/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestApproveAdvancesSelection(t *testing.T) {
	store := newTestStore(t)
	h := newTestHandler(t, store)

	rec := do(t, h, http.MethodPost, "/api/v1/summaries/w1/approve", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody[decisionResponse](t, rec)
	assert.Equal(t, review.StatusApproved, body.Summary.Status)
	assert.Equal(t, "w2", body.SelectedID)

	rec = do(t, h, http.MethodPost, "/api/v1/summaries/w1/approve", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, decodeBody[map[string]string](t, rec)["error"], "not allowed")
}

func TestSendBack(t *testing.T) {
	store := newTestStore(t)
	h := newTestHandler(t, store)

	rec := do(t, h, http.MethodPost, "/api/v1/summaries/w2/send-back", `{"note":"Soften the opening."}`)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody[decisionResponse](t, rec)
	assert.Equal(t, review.StatusSentBack, body.Summary.Status)
	assert.True(t, strings.HasSuffix(body.Summary.AIDraft, "[SENT BACK: 10/13/2025] Soften the opening."))

	t.Run("empty body uses default note", func(t *testing.T) {
		rec := do(t, h, http.MethodPost, "/api/v1/summaries/w1/send-back", "")
		require.Equal(t, http.StatusOK, rec.Code)
		body := decodeBody[decisionResponse](t, rec)
		assert.True(t, strings.HasSuffix(body.Summary.AIDraft, review.DefaultSendBackNote))
	})

	t.Run("approved summary conflicts", func(t *testing.T) {
		rec := do(t, h, http.MethodPost, "/api/v1/summaries/w3/send-back", `{"note":"late"}`)
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("unknown field rejected", func(t *testing.T) {
		rec := do(t, h, http.MethodPost, "/api/v1/summaries/w1/send-back", `{"reason":"x"}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("overlong note rejected", func(t *testing.T) {
		payload, err := json.Marshal(sendBackRequest{Note: strings.Repeat("a", 2001)})
		require.NoError(t, err)
		rec := do(t, h, http.MethodPost, "/api/v1/summaries/w1/send-back", string(payload))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, decodeBody[map[string]string](t, rec)["error"], "note must be at most 2000")
	})
}

func TestFlagHighRiskLeavesSummary(t *testing.T) {
	store := newTestStore(t)
	h := newTestHandler(t, store)
	before := store.Revision()

	rec := do(t, h, http.MethodPost, "/api/v1/summaries/w3/flag-high-risk", "")
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, before, store.Revision())

	rec = do(t, h, http.MethodPost, "/api/v1/summaries/nope/flag-high-risk", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSelection(t *testing.T) {
	store := newTestStore(t)
	h := newTestHandler(t, store)

	rec := do(t, h, http.MethodPut, "/api/v1/selection", `{"id":"w3"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody[selectionResponse](t, rec)
	assert.Equal(t, "w3", body.SelectedID)
	require.NotNil(t, body.Summary)
	assert.Equal(t, review.StatusApproved, body.Summary.Status)

	rec = do(t, h, http.MethodPut, "/api/v1/selection", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "id is required", decodeBody[map[string]string](t, rec)["error"])

	rec = do(t, h, http.MethodPut, "/api/v1/selection", `{"id":"ghost"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "w3", store.SelectedID())

	rec = do(t, h, http.MethodPost, "/api/v1/selection/next", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "w1", decodeBody[selectionResponse](t, rec).SelectedID)

	rec = do(t, h, http.MethodGet, "/api/v1/selection", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "w1", decodeBody[selectionResponse](t, rec).SelectedID)
}

func TestOpenNextWithNothingPending(t *testing.T) {
	store, err := review.NewStore([]review.Summary{{ID: "done", Status: review.StatusApproved}})
	require.NoError(t, err)
	h := newTestHandler(t, store)

	rec := do(t, h, http.MethodPost, "/api/v1/selection/next", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "done", store.SelectedID())
}

func TestRateLimit(t *testing.T) {
	store := newTestStore(t)
	h := NewHandler(store, Settings{RatePerSecond: 0.001, Burst: 2}).Routes()

	for i := 0; i < 2; i++ {
		rec := do(t, h, http.MethodGet, "/api/v1/summaries", "")
		require.Equal(t, http.StatusOK, rec.Code)
	}
	rec := do(t, h, http.MethodGet, "/api/v1/summaries", "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))

	rec = do(t, h, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code, "health is outside the limiter")
}

func TestMetricsAndRecorder(t *testing.T) {
	store := newTestStore(t)
	collector := metrics.NewCollector()
	collector.TrackPending(store.PendingCount)
	h := newTestHandler(t, store, WithRecorder(collector), WithMetricsHandler(collector.Handler()))

	do(t, h, http.MethodGet, "/api/v1/summaries/w1", "")
	do(t, h, http.MethodGet, "/api/v1/summaries/w2", "")

	got := testutil.ToFloat64(collector.HTTPRequests.WithLabelValues(http.MethodGet, "/api/v1/summaries/{id}", "200"))
	assert.Equal(t, 2.0, got)

	rec := do(t, h, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "raga_review_pending_summaries 2")
}

func TestServerLifecycle(t *testing.T) {
	store := newTestStore(t)
	settings := Settings{Enabled: true, Host: "127.0.0.1", Port: 0, ReadTimeout: time.Second, WriteTimeout: time.Second, IdleTimeout: time.Second}
	srv := NewServer(settings, NewHandler(store, settings), nil)
	t.Cleanup(func() {
		_ = srv.Shutdown(context.Background())
	})
	require.NoError(t, srv.Start(context.Background()))
	require.Error(t, srv.Start(context.Background()), "second start must fail")
	assert.Equal(t, StatusReady, srv.Status())

	resp, err := http.Get(srv.BaseURL() + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var health healthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	assert.Equal(t, "ready", health.Status)
	assert.Equal(t, 2, health.Pending)

	require.NoError(t, srv.Shutdown(context.Background()))
	assert.Equal(t, StatusDraining, srv.Status())
	assert.Empty(t, srv.Addr())
}

func TestServerDisabled(t *testing.T) {
	srv := NewServer(Settings{}, NewHandler(newTestStore(t), Settings{}), nil)
	assert.ErrorIs(t, srv.Start(context.Background()), ErrServerDisabled)
}

func TestSettingsFromConfigHonorsEnv(t *testing.T) {
	t.Setenv("RAGA_REVIEW_API_PORT", "9001")
	t.Setenv("RAGA_REVIEW_API_HOST", "0.0.0.0")
	t.Setenv("RAGA_REVIEW_API_ENABLED", "true")
	settings := SettingsFromConfig(nil)
	assert.Equal(t, 9001, settings.Port)
	assert.Equal(t, "0.0.0.0", settings.Host)
	assert.True(t, settings.Enabled)
	assert.Equal(t, DefaultBurst, settings.Burst)
	assert.Equal(t, "http://0.0.0.0:9001", settings.URL())
}
