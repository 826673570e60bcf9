package engine

import "time"

// Update carries a partial match edit from the admin PATCH surface.
// Nil fields are left untouched.
type Update struct {
	State     *State
	HomeTeam  *string
	AwayTeam  *string
	Rounds    *int
	QPR       *int
	TPQ       []float64
	PPQ       *float64
	Cooldown  *time.Duration
	StartTime *time.Time
}

func (u Update) hasSettings() bool {
	return u.HomeTeam != nil || u.AwayTeam != nil || u.Rounds != nil ||
		u.QPR != nil || u.TPQ != nil || u.PPQ != nil ||
		u.Cooldown != nil || u.StartTime != nil
}

// Apply edits the match. Non-state settings may only change while the
// match is Suspended; state changes go through the transition matrix.
// When both are present the settings are applied first, then the
// transition runs.
func (m *Match) Apply(u Update) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if u.hasSettings() {
		if m.state != StateSuspended {
			return badRequest("Match must be suspended to update other attributes")
		}
		if err := m.applySettingsLocked(u); err != nil {
			return err
		}
	}
	if u.State != nil {
		return m.changeStateLocked(*u.State)
	}
	if !u.hasSettings() {
		return badRequest("Nothing to update")
	}
	return nil
}

func (m *Match) applySettingsLocked(u Update) error {
	rounds := m.rounds
	if u.Rounds != nil {
		rounds = *u.Rounds
	}
	tpq := m.tpq
	if u.TPQ != nil {
		tpq = u.TPQ
	}
	if u.HomeTeam != nil && *u.HomeTeam == "" {
		return badRequest("Both teams must be defined")
	}
	if u.AwayTeam != nil && *u.AwayTeam == "" {
		return badRequest("Both teams must be defined")
	}
	if rounds <= 0 {
		return badRequest("Rounds must be a positive integer")
	}
	if u.QPR != nil && *u.QPR <= 0 {
		return badRequest("Questions per round must be a positive integer")
	}
	if len(tpq) < rounds {
		return badRequest("Time per question list must have at least as many entries as rounds")
	}
	for _, secs := range tpq {
		if secs <= 0 {
			return badRequest("Time per question must be positive")
		}
	}
	if u.PPQ != nil && *u.PPQ < 0 {
		return badRequest("Points per question cannot be negative")
	}
	if u.Cooldown != nil && *u.Cooldown < 0 {
		return badRequest("Cooldown cannot be negative")
	}

	if u.HomeTeam != nil {
		m.homeTeam = *u.HomeTeam
	}
	if u.AwayTeam != nil {
		m.awayTeam = *u.AwayTeam
	}
	m.rounds = rounds
	if u.QPR != nil {
		m.qpr = *u.QPR
	}
	if u.TPQ != nil {
		m.tpq = append([]float64(nil), u.TPQ...)
	}
	if u.PPQ != nil {
		m.ppq = *u.PPQ
	}
	if u.Cooldown != nil {
		m.cooldown = *u.Cooldown
	}
	if u.StartTime != nil {
		m.startTime = *u.StartTime
	}
	return nil
}
