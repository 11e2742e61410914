// Package api exposes the transaction table and the simulation entry points
// over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"payment-relay/pkg/direct"
	"payment-relay/pkg/types"
)

const (
	defaultSimulateCount = 5
	maxSimulateCount     = 100
)

type Store interface {
	ListAll(ctx context.Context) ([]types.Transaction, error)
	Clear(ctx context.Context) error
}

// DirectProcessor runs the Direct Invocation Path.
type DirectProcessor interface {
	ProcessDirect(ctx context.Context, count int) ([]direct.Result, error)
}

// Publisher sends generated requests through the message channel.
type Publisher interface {
	Publish(ctx context.Context, count int) ([]types.Request, error)
}

// Health describes how the relay is currently ingesting transactions.
type Health struct {
	Status   string `json:"status"`
	Mode     string `json:"mode"`
	Listener string `json:"listener"`
}

type Handler struct {
	store     Store
	direct    DirectProcessor
	publisher Publisher
	health    func() Health
	logger    *slog.Logger
}

type Option func(*Handler)

// WithDirect makes POST /simulate process inline.
func WithDirect(d DirectProcessor) Option {
	return func(h *Handler) { h.direct = d }
}

// WithPublisher makes POST /simulate publish to the inbound topic. It takes
// precedence over WithDirect.
func WithPublisher(p Publisher) Option {
	return func(h *Handler) { h.publisher = p }
}

func WithHealth(fn func() Health) Option {
	return func(h *Handler) { h.health = fn }
}

func WithLogger(logger *slog.Logger) Option {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

func New(store Store, opts ...Option) *Handler {
	h := &Handler{
		store:  store,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		health: func() Health { return Health{Status: "ok"} },
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register mounts the relay endpoints on r.
func (h *Handler) Register(r chi.Router) {
	r.Get("/transactions", h.HandleList)
	r.Delete("/transactions", h.HandleClear)
	r.Post("/simulate", h.HandleSimulate)
	r.Get("/health", h.HandleHealth)
}

// HandleList handles GET /transactions.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	txs, err := h.store.ListAll(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list transactions failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list transactions")
		return
	}
	if txs == nil {
		txs = []types.Transaction{}
	}
	writeJSON(w, http.StatusOK, txs)
}

// HandleClear handles DELETE /transactions. It must not run while
// transactions are being processed.
func (h *Handler) HandleClear(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Clear(r.Context()); err != nil {
		h.logger.ErrorContext(r.Context(), "clear transactions failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to clear transactions")
		return
	}
	h.logger.WarnContext(r.Context(), "transaction table cleared")
	w.WriteHeader(http.StatusNoContent)
}

type publishedResponse struct {
	Published []string `json:"published"`
}

type simulateError struct {
	Error   string          `json:"error"`
	Results []direct.Result `json:"results"`
}

// HandleSimulate handles POST /simulate?count=N.
func (h *Handler) HandleSimulate(w http.ResponseWriter, r *http.Request) {
	count, err := parseCount(r.URL.Query().Get("count"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ctx := r.Context()

	switch {
	case h.publisher != nil:
		sent, err := h.publisher.Publish(ctx, count)
		ids := make([]string, len(sent))
		for i, req := range sent {
			ids[i] = req.ID
		}
		if err != nil {
			h.logger.ErrorContext(ctx, "simulation publish failed", "published", len(sent), "error", err)
			writeJSON(w, http.StatusBadGateway, map[string]any{"error": "failed to publish transactions", "published": ids})
			return
		}
		writeJSON(w, http.StatusAccepted, publishedResponse{Published: ids})

	case h.direct != nil:
		results, err := h.direct.ProcessDirect(ctx, count)
		if results == nil {
			results = []direct.Result{}
		}
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, simulateError{Error: err.Error(), Results: results})
			return
		}
		writeJSON(w, http.StatusOK, results)

	default:
		writeError(w, http.StatusServiceUnavailable, "simulation is not available")
	}
}

// HandleHealth handles GET /health.
func (h *Handler) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.health())
}

func parseCount(raw string) (int, error) {
	if raw == "" {
		return defaultSimulateCount, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 || n > maxSimulateCount {
		return 0, errors.New("count must be an integer between 1 and " + strconv.Itoa(maxSimulateCount))
	}
	return n, nil
}

// writeJSON encodes v before sending the header so an encoding failure can
// still be reported as a 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"failed to encode response"}`))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(append(b, '\n'))
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
