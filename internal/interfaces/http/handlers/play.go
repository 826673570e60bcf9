package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/Clash-of-Prodigies/Ragnarok/internal/auth"
	"github.com/Clash-of-Prodigies/Ragnarok/internal/engine"
)

type submitRequest struct {
	SelectedOption *int `json:"selected_option"`
}

// Submit handles POST /matches/{id} (user role): stores the player's
// answer to the current question, last write wins.
func (h *Handlers) Submit(w http.ResponseWriter, r *http.Request, identity auth.Identity) {
	m, err := h.registry.Get(mux.Vars(r)["id"])
	if err != nil {
		h.playResult("unknown_match")
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.playResult("bad_body")
		h.writeError(w, http.StatusBadRequest, "Request body must be valid JSON")
		return
	}
	selected := -1
	if req.SelectedOption != nil {
		selected = *req.SelectedOption
	}
	player := engine.PlayerInfo{
		UserID:      identity.UserID,
		UserName:    identity.UserName,
		Affiliation: identity.Affiliation,
	}
	if _, err := m.StoreAnswer(player, selected); err != nil {
		h.playResult("rejected")
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.playResult("ok")
	h.writeJSON(w, http.StatusOK, MessageResponse{Message: "Answer submitted successfully"})
}

// CurrentQuestion handles GET /matches/{id}/current-question: the
// read-only view of the question inside its visibility window.
func (h *Handlers) CurrentQuestion(w http.ResponseWriter, r *http.Request) {
	m, err := h.registry.Get(mux.Vars(r)["id"])
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	view, err := m.CurrentQuestion()
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, view)
}

// Verify handles POST /matches/{id}/verify-answers?id=<question-id>
// (any authenticated caller). Grading runs at most once; replays serve
// the cached graded list.
func (h *Handlers) Verify(w http.ResponseWriter, r *http.Request, identity auth.Identity) {
	m, err := h.registry.Get(mux.Vars(r)["id"])
	if err != nil {
		h.verifyResult("unknown_match")
		h.writeDomainError(w, err)
		return
	}
	answers, err := m.Verify(r.URL.Query().Get("id"))
	if err != nil {
		h.verifyResult("rejected")
		h.writeDomainError(w, err)
		return
	}
	h.verifyResult("ok")
	h.writeJSON(w, http.StatusOK, answers)
}

func (h *Handlers) playResult(result string) {
	if h.metrics != nil {
		h.metrics.AnswersSubmitted.WithLabelValues(result).Inc()
	}
}

func (h *Handlers) verifyResult(result string) {
	if h.metrics != nil {
		h.metrics.VerifiesTotal.WithLabelValues(result).Inc()
	}
}
