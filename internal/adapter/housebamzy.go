package adapter

import (
	"sort"
	"time"

	"github.com/Clash-of-Prodigies/Ragnarok/internal/engine"
)

// House of Bamzy tunables.
const (
	bamzyRecess     = 120 * time.Second
	bamzyPPW        = 50.0 // points per win, reserved for end-of-round bonuses
	bamzyFastBonus  = 5.0  // W2S: within-two-seconds bonus
	bamzyFastWindow = 2 * time.Second
)

// HouseBamzy is the House of Bamzy ruleset: first correct answer wins
// the question, fast answers earn a flat bonus, and players on a
// scoring streak have their base points multiplied.
type HouseBamzy struct {
	Base
}

func (HouseBamzy) Name() string { return "HouseBamzy" }

func (HouseBamzy) RecessDuration() time.Duration { return bamzyRecess }

// PickCorrectAnswers narrows the base grading to a single winner:
// correct answers are deduplicated per player keeping the latest
// submission, ordered by receive time, and only the earliest survives.
func (hb HouseBamzy) PickCorrectAnswers(q engine.Question) ([]engine.Answer, error) {
	correct, err := hb.Base.PickCorrectAnswers(q)
	if err != nil {
		return nil, err
	}
	latest := make(map[string]engine.Answer, len(correct))
	for _, ans := range correct {
		prev, seen := latest[ans.Player.UserID]
		if !seen || ans.TimeReceived.After(prev.TimeReceived) {
			latest[ans.Player.UserID] = ans
		}
	}
	if len(latest) == 0 {
		return nil, nil
	}
	ordered := make([]engine.Answer, 0, len(latest))
	for _, ans := range latest {
		ordered = append(ordered, ans)
	}
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].TimeReceived.Before(ordered[j].TimeReceived)
	})
	return ordered[:1], nil
}

// RecordCorrectAnswers applies the consecutive-scorer multiplier and
// the fast-answer bonus on top of the base award.
func (hb HouseBamzy) RecordCorrectAnswers(m *engine.Match, q engine.Question, graded []engine.Answer) []engine.Answer {
	credited := make([]engine.Answer, 0, len(graded))
	for _, ans := range graded {
		pts := q.Points * streakMultiplier(m.ScorerLedger(), ans.Player.UserName)
		switch ans.Player.Affiliation {
		case m.HomeTeam():
			ans = m.CreditHome(ans, pts)
			ans = hb.fastBonus(m, q, ans, true)
		case m.AwayTeam():
			ans = m.CreditAway(ans, pts)
			ans = hb.fastBonus(m, q, ans, false)
		}
		credited = append(credited, ans)
	}
	return credited
}

// streakMultiplier counts the trailing run of ledger entries sharing
// the scorer's name, including the incoming answer. The third win in a
// row doubles the points and the fourth triples them; after the triple
// the counter resets, so a longer streak pays 1, 1, 2, 3 cyclically.
func streakMultiplier(ledger []engine.Answer, userName string) float64 {
	run := 1
	for i := len(ledger) - 1; i >= 0; i-- {
		name := ledger[i].Player.UserName
		if name == "" || name != userName {
			break
		}
		run++
	}
	switch run % 4 {
	case 3:
		return 2
	case 0:
		return 3
	default:
		return 1
	}
}

func (HouseBamzy) fastBonus(m *engine.Match, q engine.Question, ans engine.Answer, home bool) engine.Answer {
	if q.SendAt.IsZero() || ans.TimeReceived.Sub(q.SendAt) > bamzyFastWindow {
		return ans
	}
	if home {
		return m.AddBonusHome(ans, bamzyFastBonus)
	}
	return m.AddBonusAway(ans, bamzyFastBonus)
}
