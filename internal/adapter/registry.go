package adapter

import (
	"sort"
	"time"

	"github.com/Clash-of-Prodigies/Ragnarok/internal/clock"
	"github.com/Clash-of-Prodigies/Ragnarok/internal/engine"
)

// Params carries the admin-supplied match settings from the create
// call. Zero fields fall back to the ruleset's defaults.
type Params struct {
	MatchID   string    `json:"match_id"`
	HomeTeam  string    `json:"home_team"`
	AwayTeam  string    `json:"away_team"`
	Rounds    int       `json:"rounds"`
	QPR       int       `json:"qpr"`
	TPQ       []float64 `json:"tpq"`
	PPQ       float64   `json:"ppq"`
	Cooldown  float64   `json:"cooldown_secs"`
	StartDate string    `json:"start_date"`
}

// defaults per ruleset, applied to unset Params fields.
type defaults struct {
	rounds int
	qpr    int
	tpq    []float64
	ppq    float64
}

type entry struct {
	rules    engine.Ruleset
	defaults defaults
}

var rulesets = map[string]entry{
	"HouseBamzy": {
		rules:    HouseBamzy{},
		defaults: defaults{rounds: 2, qpr: 5, tpq: []float64{10, 20}, ppq: 5},
	},
}

// Names lists the registered match types.
func Names() []string {
	names := make([]string, 0, len(rulesets))
	for name := range rulesets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Lookup returns the ruleset registered for matchType.
func Lookup(matchType string) (engine.Ruleset, bool) {
	e, ok := rulesets[matchType]
	return e.rules, ok
}

// NewMatch builds a match of the given type, filling unset params with
// the ruleset's defaults.
func NewMatch(matchType string, p Params, clk clock.Clock) (*engine.Match, error) {
	e, ok := rulesets[matchType]
	if !ok {
		return nil, &engine.Error{Kind: engine.KindBadRequest, Message: "Adapter not found"}
	}
	if p.Rounds == 0 {
		p.Rounds = e.defaults.rounds
	}
	if p.QPR == 0 {
		p.QPR = e.defaults.qpr
	}
	if len(p.TPQ) == 0 {
		p.TPQ = e.defaults.tpq
	}
	if p.PPQ == 0 {
		p.PPQ = e.defaults.ppq
	}
	var startTime time.Time
	if p.StartDate != "" {
		t, err := time.Parse(time.RFC3339, p.StartDate)
		if err != nil {
			return nil, &engine.Error{Kind: engine.KindBadRequest, Message: "start_date must be an RFC3339 timestamp"}
		}
		startTime = t.UTC()
	}
	cfg := engine.Config{
		MatchID:   p.MatchID,
		HomeTeam:  p.HomeTeam,
		AwayTeam:  p.AwayTeam,
		Rounds:    p.Rounds,
		QPR:       p.QPR,
		TPQ:       p.TPQ,
		PPQ:       p.PPQ,
		Cooldown:  time.Duration(p.Cooldown * float64(time.Second)),
		StartTime: startTime,
	}
	return engine.NewMatch(cfg, e.rules, clk)
}
