package handlers

import (
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/Clash-of-Prodigies/Ragnarok/internal/auth"
)

// Protected wraps next with token introspection and an exact role
// check. The identity is passed through so handlers can attribute
// actions and build player snapshots.
func (h *Handlers) Protected(role string, next func(http.ResponseWriter, *http.Request, auth.Identity)) http.HandlerFunc {
	return h.guard(func(id auth.Identity) bool { return id.UserRole == role }, next)
}

// Authenticated wraps next with token introspection only; any role
// passes. Used for endpoints every participant may call, such as
// verify-answers.
func (h *Handlers) Authenticated(next func(http.ResponseWriter, *http.Request, auth.Identity)) http.HandlerFunc {
	return h.guard(func(auth.Identity) bool { return true }, next)
}

func (h *Handlers) guard(allowed func(auth.Identity) bool, next func(http.ResponseWriter, *http.Request, auth.Identity)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := auth.TokenFromRequest(r)
		identity, err := h.introspect.Introspect(r.Context(), token)
		if err != nil {
			switch {
			case errors.Is(err, auth.ErrMissingToken):
				h.authResult("missing_token")
				h.writeError(w, http.StatusUnauthorized, "Missing token")
			case errors.Is(err, auth.ErrUnauthenticated):
				h.authResult("unauthenticated")
				h.writeError(w, http.StatusUnauthorized, "Unauthenticated")
			case errors.Is(err, auth.ErrUnavailable):
				h.authResult("unavailable")
				log.Error().Err(err).Msg("error connecting to auth service")
				h.writeError(w, http.StatusServiceUnavailable, "Authentication service unavailable")
			default:
				h.authResult("error")
				log.Error().Err(err).Msg("unexpected introspection error")
				h.writeError(w, http.StatusInternalServerError, "Internal Server Error")
			}
			return
		}
		if !allowed(identity) {
			h.authResult("forbidden")
			h.writeError(w, http.StatusForbidden, "Insufficient permissions")
			return
		}
		h.authResult("ok")
		next(w, r, identity)
	}
}

func (h *Handlers) authResult(result string) {
	if h.metrics != nil {
		h.metrics.AuthRequests.WithLabelValues(result).Inc()
	}
}
