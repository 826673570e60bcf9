package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/Clash-of-Prodigies/Ragnarok/internal/adapter"
	"github.com/Clash-of-Prodigies/Ragnarok/internal/auth"
	"github.com/Clash-of-Prodigies/Ragnarok/internal/engine"
	"github.com/Clash-of-Prodigies/Ragnarok/internal/persistence"
)

// List handles GET /matches. The optional date query filters by the
// match's UTC start date.
func (h *Handlers) List(w http.ResponseWriter, r *http.Request) {
	matches, err := h.registry.FilterByDate(r.URL.Query().Get("date"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	summaries := make([]engine.Summary, 0, len(matches))
	for _, m := range matches {
		summaries = append(summaries, m.Summary())
	}
	h.writeJSON(w, http.StatusOK, summaries)
}

// Get handles GET /matches/{id}. mode=extended embeds the current
// question and the graded answer preview, each replaced by an error
// object while its time gate is closed.
func (h *Handlers) Get(w http.ResponseWriter, r *http.Request) {
	m, err := h.registry.Get(mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, http.StatusNotFound, err.Error())
		return
	}
	details := summaryMap(m.Summary())
	if r.URL.Query().Get("mode") == "extended" {
		if view, err := m.CurrentQuestion(); err != nil {
			details["question"] = ErrorResponse{Error: err.Error()}
		} else {
			details["question"] = view
		}
		if answers, err := m.PreviewCorrectAnswers(); err != nil {
			details["answers"] = ErrorResponse{Error: err.Error()}
		} else {
			details["answers"] = answers
		}
	}
	h.writeJSON(w, http.StatusOK, details)
}

func summaryMap(s engine.Summary) map[string]interface{} {
	raw, _ := json.Marshal(s)
	details := make(map[string]interface{})
	_ = json.Unmarshal(raw, &details)
	return details
}

type createRequest struct {
	MatchType string `json:"match_type"`
	adapter.Params
}

// Create handles PUT /matches/{id} (admin).
func (h *Handlers) Create(w http.ResponseWriter, r *http.Request, identity auth.Identity) {
	matchID := mux.Vars(r)["id"]
	if matchID == "" {
		h.writeError(w, http.StatusBadRequest, "Match ID is required")
		return
	}
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Request body must be valid JSON")
		return
	}
	if req.MatchType == "" {
		h.writeError(w, http.StatusBadRequest, "match_type is required")
		return
	}
	if req.HomeTeam == "" || req.AwayTeam == "" {
		h.writeError(w, http.StatusBadRequest, "home_team and away_team are required")
		return
	}
	if h.registry.Has(matchID) {
		h.writeError(w, http.StatusBadRequest, "Match with this ID already exists")
		return
	}
	req.Params.MatchID = matchID
	m, err := adapter.NewMatch(req.MatchType, req.Params, h.clk)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	if err := h.registry.Add(m); err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.recordCreated(matchID, req)
	h.persist(r)
	h.matchGauges(true)
	log.Info().Str("match_id", matchID).Str("user", identity.UserName).Msg("match added")
	h.writeJSON(w, http.StatusCreated, MessageResponse{Message: "Match added successfully"})
}

func (h *Handlers) recordCreated(matchID string, req createRequest) {
	doc, err := json.Marshal(req)
	if err != nil {
		return
	}
	h.mu.Lock()
	h.records[matchID] = persistence.Record{
		MatchID:   matchID,
		MatchType: req.MatchType,
		Document:  doc,
		UpdatedAt: h.clk.Now(),
	}
	h.mu.Unlock()
}

type updateRequest struct {
	State        *int      `json:"state"`
	HomeTeam     *string   `json:"home_team"`
	AwayTeam     *string   `json:"away_team"`
	Rounds       *int      `json:"rounds"`
	QPR          *int      `json:"qpr"`
	TPQ          []float64 `json:"tpq"`
	PPQ          *float64  `json:"ppq"`
	CooldownSecs *float64  `json:"cooldown_secs"`
	StartDate    *string   `json:"start_date"`
}

// Update handles PATCH /matches/{id} (admin): state transitions and,
// while suspended, settings edits.
func (h *Handlers) Update(w http.ResponseWriter, r *http.Request, identity auth.Identity) {
	m, err := h.registry.Get(mux.Vars(r)["id"])
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	var req updateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Request body must be valid JSON")
		return
	}
	update := engine.Update{
		HomeTeam: req.HomeTeam,
		AwayTeam: req.AwayTeam,
		Rounds:   req.Rounds,
		QPR:      req.QPR,
		TPQ:      req.TPQ,
		PPQ:      req.PPQ,
	}
	if req.State != nil {
		state := engine.State(*req.State)
		update.State = &state
	}
	if req.CooldownSecs != nil {
		cooldown := time.Duration(*req.CooldownSecs * float64(time.Second))
		update.Cooldown = &cooldown
	}
	if req.StartDate != nil {
		start, err := time.Parse(time.RFC3339, *req.StartDate)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "start_date must be an RFC3339 timestamp")
			return
		}
		utc := start.UTC()
		update.StartTime = &utc
	}
	if err := m.Apply(update); err != nil {
		h.writeDomainError(w, err)
		return
	}
	log.Info().Str("match_id", m.ID()).Str("user", identity.UserName).Msg("match updated")
	h.writeJSON(w, http.StatusOK, MessageResponse{Message: "Successfully changed state"})
}

// Delete handles DELETE /matches/{id} (admin).
func (h *Handlers) Delete(w http.ResponseWriter, r *http.Request, identity auth.Identity) {
	matchID := mux.Vars(r)["id"]
	if err := h.registry.Remove(matchID); err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.mu.Lock()
	delete(h.records, matchID)
	h.mu.Unlock()
	h.persist(r)
	h.matchGauges(false)
	log.Info().Str("match_id", matchID).Str("user", identity.UserName).Msg("match removed")
	h.writeJSON(w, http.StatusOK, MessageResponse{Message: "Match removed successfully"})
}

// Clear handles DELETE /matches (admin).
func (h *Handlers) Clear(w http.ResponseWriter, r *http.Request, identity auth.Identity) {
	h.registry.Clear()
	h.mu.Lock()
	h.records = make(map[string]persistence.Record)
	h.mu.Unlock()
	h.persist(r)
	h.matchGauges(false)
	log.Info().Str("user", identity.UserName).Msg("all matches cleared")
	h.writeJSON(w, http.StatusOK, MessageResponse{Message: "All matches cleared"})
}

func (h *Handlers) matchGauges(created bool) {
	if h.metrics == nil {
		return
	}
	h.metrics.MatchesActive.Set(float64(h.registry.Len()))
	if created {
		h.metrics.MatchesTotal.Inc()
	}
}
