package engine

// Ruleset scoring helpers. These run inside RecordCorrectAnswers, which
// the verify path invokes with the match lock held; they must not be
// called from anywhere else.

// CreditHome appends the answer to the scorer ledger and adds pts to
// the home total. The returned copy carries the base points awarded.
func (m *Match) CreditHome(ans Answer, pts float64) Answer {
	ans.BasePoints = pts
	m.scorers = append(m.scorers, ans)
	m.homeScore += pts
	return ans
}

// CreditAway is the away-team counterpart of CreditHome.
func (m *Match) CreditAway(ans Answer, pts float64) Answer {
	ans.BasePoints = pts
	m.scorers = append(m.scorers, ans)
	m.awayScore += pts
	return ans
}

// AddBonusHome adds pts to both the answer's bonus and the home total.
func (m *Match) AddBonusHome(ans Answer, pts float64) Answer {
	ans.BonusPoints += pts
	m.homeScore += pts
	return ans
}

// AddBonusAway adds pts to both the answer's bonus and the away total.
func (m *Match) AddBonusAway(ans Answer, pts float64) Answer {
	ans.BonusPoints += pts
	m.awayScore += pts
	return ans
}

// ScorerLedger exposes the ordered scorer ledger, oldest first, for
// rulesets that look back at recent scorers (consecutive-scorer rules).
func (m *Match) ScorerLedger() []Answer { return m.scorers }

// Read-only settings accessors for rulesets. The fields are mutable
// only while the match is Suspended, which cannot overlap a ruleset
// hook, so plain reads are safe here.

func (m *Match) HomeTeam() string { return m.homeTeam }
func (m *Match) AwayTeam() string { return m.awayTeam }
func (m *Match) Rounds() int      { return m.rounds }
func (m *Match) QPR() int         { return m.qpr }
func (m *Match) TPQ() []float64   { return m.tpq }
func (m *Match) PPQ() float64     { return m.ppq }
