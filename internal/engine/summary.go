package engine

import (
	"fmt"
	"time"
)

// Summary is the short wire form of a match.
type Summary struct {
	MatchID   string       `json:"match_id"`
	HomeTeam  string       `json:"home_team"`
	AwayTeam  string       `json:"away_team"`
	HomeScore float64      `json:"home_score"`
	AwayScore float64      `json:"away_score"`
	Rounds    int          `json:"rounds"`
	State     int          `json:"state"`
	Scorers   []AnswerView `json:"scorers"`
	StartTime *string      `json:"start_time"`
	EndTime   *string      `json:"end_time"`
	Progress  string       `json:"progress"`
}

// Summary builds the short view: identifiers, scores, the scorer
// ledger and a "used/total" progress fraction.
func (m *Match) Summary() Summary {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Summary{
		MatchID:   m.matchID,
		HomeTeam:  m.homeTeam,
		AwayTeam:  m.awayTeam,
		HomeScore: m.homeScore,
		AwayScore: m.awayScore,
		Rounds:    m.rounds,
		State:     int(m.state),
		Scorers:   answerViews(m.scorers),
		StartTime: isoOrNil(m.startTime),
		EndTime:   isoOrNil(m.endTime),
		Progress:  fmt.Sprintf("%d/%d", len(m.used), m.rounds*m.qpr),
	}
}

func isoOrNil(t time.Time) *string {
	if t.IsZero() {
		return nil
	}
	s := t.UTC().Format(time.RFC3339)
	return &s
}
