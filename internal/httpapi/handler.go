package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kingrea/raga-review/internal/review"
)

// APIVersion is reported by /health.
const APIVersion = "1.0.0"

// Queue is the review Store surface the API serves.
type Queue interface {
	Summaries() []review.Summary
	Summary(id string) (review.Summary, error)
	SelectedID() string
	PendingCount() int
	Counts() map[review.Status]int
	Select(id string) error
	OpenNextPending() (review.Summary, bool)
	Approve(id string) error
	SendBack(id, note string) error
	FlagHighRisk(id string) error
}

type lifecycle interface {
	Status() ServerStatus
	Uptime() time.Duration
}

// HandlerOption customizes Handler construction.
type HandlerOption func(*Handler)

// WithLogger overrides the default no-op logger.
func WithLogger(logger *zap.Logger) HandlerOption {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithRecorder reports served requests to r.
func WithRecorder(r HTTPRecorder) HandlerOption {
	return func(h *Handler) {
		h.recorder = r
	}
}

// WithMetricsHandler mounts h at /metrics.
func WithMetricsHandler(metrics http.Handler) HandlerOption {
	return func(h *Handler) {
		h.metrics = metrics
	}
}

// Handler serves the review API.
type Handler struct {
	queue    Queue
	settings Settings
	logger   *zap.Logger
	recorder HTTPRecorder
	metrics  http.Handler
	validate *validator.Validate

	lifeMu sync.RWMutex
	life   lifecycle

	once   sync.Once
	router http.Handler
}

// NewHandler builds the API over queue.
func NewHandler(queue Queue, settings Settings, opts ...HandlerOption) *Handler {
	h := &Handler{
		queue:    queue,
		settings: settings,
		logger:   zap.NewNop(),
		validate: validator.New(),
	}
	h.settings.normalize()
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

func (h *Handler) attach(l lifecycle) {
	h.lifeMu.Lock()
	h.life = l
	h.lifeMu.Unlock()
}

// Routes returns the chi router, built once.
func (h *Handler) Routes() http.Handler {
	h.once.Do(func() {
		h.router = h.buildRouter()
	})
	return h.router
}

func (h *Handler) buildRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(requestLogger(h.logger, h.recorder))
	r.Use(chimiddleware.Recoverer)
	origins := h.settings.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:*", "http://127.0.0.1:*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/health", h.handleHealth)
	if h.metrics != nil {
		r.Handle("/metrics", h.metrics)
	}

	limiter := rate.NewLimiter(rate.Limit(h.settings.RatePerSecond), h.settings.Burst)
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(rateLimit(limiter))
		r.Get("/summaries", h.handleListSummaries)
		r.Get("/summaries/{id}", h.handleGetSummary)
		r.Post("/summaries/{id}/approve", h.handleApprove)
		r.Post("/summaries/{id}/send-back", h.handleSendBack)
		r.Post("/summaries/{id}/flag-high-risk", h.handleFlagHighRisk)
		r.Get("/selection", h.handleGetSelection)
		r.Put("/selection", h.handleSelect)
		r.Post("/selection/next", h.handleOpenNext)
	})
	return r
}

type healthResponse struct {
	Status        string `json:"status"`
	Version       string `json:"version"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	Pending       int    `json:"pending"`
}

type queueResponse struct {
	Summaries    []review.Summary      `json:"summaries"`
	SelectedID   string                `json:"selected_id"`
	PendingCount int                   `json:"pending_count"`
	Counts       map[review.Status]int `json:"counts"`
}

type selectionResponse struct {
	SelectedID string          `json:"selected_id"`
	Summary    *review.Summary `json:"summary"`
}

type decisionResponse struct {
	Summary    review.Summary `json:"summary"`
	SelectedID string         `json:"selected_id"`
}

type sendBackRequest struct {
	Note string `json:"note" validate:"max=2000"`
}

type selectRequest struct {
	ID string `json:"id" validate:"required"`
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:  string(StatusReady),
		Version: APIVersion,
		Pending: h.queue.PendingCount(),
	}
	h.lifeMu.RLock()
	life := h.life
	h.lifeMu.RUnlock()
	if life != nil {
		resp.Status = string(life.Status())
		resp.UptimeSeconds = int64(life.Uptime().Seconds())
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleListSummaries(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, queueResponse{
		Summaries:    h.queue.Summaries(),
		SelectedID:   h.queue.SelectedID(),
		PendingCount: h.queue.PendingCount(),
		Counts:       h.queue.Counts(),
	})
}

func (h *Handler) handleGetSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.queue.Summary(chi.URLParam(r, "id"))
	if err != nil {
		h.writeQueueError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (h *Handler) handleApprove(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.queue.Approve(id); err != nil {
		h.writeQueueError(w, err)
		return
	}
	h.writeDecision(w, id)
}

func (h *Handler) handleSendBack(w http.ResponseWriter, r *http.Request) {
	var req sendBackRequest
	if err := h.decode(w, r, &req, true); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	id := chi.URLParam(r, "id")
	if err := h.queue.SendBack(id, req.Note); err != nil {
		h.writeQueueError(w, err)
		return
	}
	h.writeDecision(w, id)
}

func (h *Handler) handleFlagHighRisk(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.queue.FlagHighRisk(id); err != nil {
		h.writeQueueError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "triage notified", "summary_id": id})
}

func (h *Handler) handleGetSelection(w http.ResponseWriter, r *http.Request) {
	h.writeSelection(w)
}

func (h *Handler) handleSelect(w http.ResponseWriter, r *http.Request) {
	var req selectRequest
	if err := h.decode(w, r, &req, false); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.queue.Select(req.ID); err != nil {
		h.writeQueueError(w, err)
		return
	}
	h.writeSelection(w)
}

func (h *Handler) handleOpenNext(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.queue.OpenNextPending(); !ok {
		writeError(w, http.StatusNotFound, "no pending summaries")
		return
	}
	h.writeSelection(w)
}

func (h *Handler) writeSelection(w http.ResponseWriter) {
	resp := selectionResponse{SelectedID: h.queue.SelectedID()}
	if resp.SelectedID != "" {
		if summary, err := h.queue.Summary(resp.SelectedID); err == nil {
			resp.Summary = &summary
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) writeDecision(w http.ResponseWriter, id string) {
	summary, err := h.queue.Summary(id)
	if err != nil {
		h.writeQueueError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, decisionResponse{Summary: summary, SelectedID: h.queue.SelectedID()})
}

func (h *Handler) writeQueueError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, review.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, review.ErrInvalidTransition):
		writeError(w, http.StatusConflict, err.Error())
	default:
		h.logger.Error("httpapi: queue operation failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// decode reads a JSON body into dst and validates it. An empty body is
// accepted when optional is set.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any, optional bool) error {
	reader := http.MaxBytesReader(w, r.Body, h.settings.MaxBodyBytes)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.Is(err, io.EOF) && optional:
		case errors.Is(err, io.EOF):
			return errors.New("request body is required")
		case errors.As(err, &maxErr):
			return errors.New("payload exceeds limit")
		default:
			return errors.New("invalid JSON")
		}
	}
	if err := h.validate.Struct(dst); err != nil {
		return formatValidationError(err)
	}
	return nil
}

func formatValidationError(err error) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		field := strings.ToLower(fe.Field())
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, fmt.Sprintf("%s is required", field))
		case "max":
			msgs = append(msgs, fmt.Sprintf("%s must be at most %s characters", field, fe.Param()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s is invalid", field))
		}
	}
	return errors.New(strings.Join(msgs, "; "))
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
