// Package handlers implements the HTTP endpoint handlers of the match
// service.
package handlers

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/Clash-of-Prodigies/Ragnarok/internal/auth"
	"github.com/Clash-of-Prodigies/Ragnarok/internal/clock"
	"github.com/Clash-of-Prodigies/Ragnarok/internal/engine"
	"github.com/Clash-of-Prodigies/Ragnarok/internal/metrics"
	"github.com/Clash-of-Prodigies/Ragnarok/internal/persistence"
	"github.com/Clash-of-Prodigies/Ragnarok/internal/registry"
)

// Handlers manages all HTTP endpoint handlers.
type Handlers struct {
	registry   *registry.Registry
	introspect auth.Introspector
	clk        clock.Clock
	metrics    *metrics.Registry
	store      persistence.MatchStore

	mu      sync.Mutex
	records map[string]persistence.Record
}

// New wires the handlers. store may be nil to disable persistence.
func New(reg *registry.Registry, intro auth.Introspector, clk clock.Clock, m *metrics.Registry, store persistence.MatchStore) *Handlers {
	if clk == nil {
		clk = clock.System{}
	}
	return &Handlers{
		registry:   reg,
		introspect: intro,
		clk:        clk,
		metrics:    m,
		store:      store,
		records:    make(map[string]persistence.Record),
	}
}

func (h *Handlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, `{"error":"json encoding failed"}`, http.StatusInternalServerError)
	}
}

func (h *Handlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, ErrorResponse{Error: message})
}

// ErrorResponse mirrors the top-level error envelope.
type ErrorResponse struct {
	Error string `json:"error"`
}

// MessageResponse acknowledges a successful mutation.
type MessageResponse struct {
	Message string `json:"message"`
}

// writeDomainError maps a typed engine error onto its HTTP status.
func (h *Handlers) writeDomainError(w http.ResponseWriter, err error) {
	h.writeError(w, statusFor(err), err.Error())
}

func statusFor(err error) int {
	switch engine.KindOf(err) {
	case engine.KindBadRequest, engine.KindConflict:
		return http.StatusBadRequest
	case engine.KindNotFound:
		return http.StatusNotFound
	case engine.KindUnauthenticated:
		return http.StatusUnauthorized
	case engine.KindUnauthorized:
		return http.StatusForbidden
	case engine.KindUnavailable:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// NotFound handles unmatched routes.
func (h *Handlers) NotFound(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	h.writeError(w, http.StatusNotFound, "The requested endpoint does not exist")
}

// MethodNotAllowed handles known paths hit with the wrong method.
func (h *Handlers) MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	h.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
}

// Health handles GET /health.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"matches":   h.registry.Len(),
		"timestamp": h.clk.Now(),
	})
}

// Restore seeds the record set with previously persisted records,
// typically loaded from the store at startup. Without it the first
// admin mutation would persist only the matches created since boot,
// wiping the rest from the store.
func (h *Handlers) Restore(records []persistence.Record) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, rec := range records {
		h.records[rec.MatchID] = rec
	}
}

// persist pushes the current record set to the store. Failures are
// logged, not surfaced; the in-memory registry stays authoritative.
func (h *Handlers) persist(r *http.Request) {
	if h.store == nil {
		return
	}
	h.mu.Lock()
	records := make([]persistence.Record, 0, len(h.records))
	for _, rec := range h.records {
		records = append(records, rec)
	}
	h.mu.Unlock()
	if err := h.store.PersistMatches(r.Context(), records); err != nil {
		log.Error().Err(err).Msg("failed to persist matches")
	}
}
