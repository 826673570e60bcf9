// Package adapter holds the competition rulesets pluggable into the
// match engine, plus the match_type registry the create endpoint uses
// to construct matches.
package adapter

import (
	"fmt"
	"time"

	"github.com/Clash-of-Prodigies/Ragnarok/internal/engine"
)

// Base provides the shared default rules: a deterministic placeholder
// question bank, straight multiple-choice grading that keeps every
// correct scorer, and flat per-question awards routed by affiliation.
// Concrete house rulesets embed Base and override what differs.
type Base struct{}

func (Base) Name() string { return "base" }

func (Base) RecessDuration() time.Duration { return 0 }

// FetchQuestions generates the placeholder bank: Rounds*QPR questions
// with ids "q-{round}-{index}", four options with option 1 correct, and
// the round's TPQ entry as duration.
func (Base) FetchQuestions(m *engine.Match) []engine.Question {
	tpq := m.TPQ()
	questions := make([]engine.Question, 0, m.Rounds()*m.QPR())
	for r := 1; r <= m.Rounds(); r++ {
		duration := time.Duration(tpq[r-1] * float64(time.Second))
		for i := 1; i <= m.QPR(); i++ {
			questions = append(questions, engine.Question{
				ID:       fmt.Sprintf("q-%d-%d", r, i),
				Text:     fmt.Sprintf("Sample question %d?", r),
				Points:   1,
				Duration: duration,
				Options: []string{
					"Option 1", "Option 2", "Option 3", "Option 4",
				},
				CorrectOption: 0,
			})
		}
	}
	return questions
}

// PickCorrectAnswers keeps every answer whose selected option matches
// the correct one. Free-form questions cannot be graded here; a ruleset
// that sources them must override this.
func (Base) PickCorrectAnswers(q engine.Question) ([]engine.Answer, error) {
	if !q.MultipleChoice() {
		return nil, fmt.Errorf("question %s is not multiple choice and cannot be graded", q.ID)
	}
	var correct []engine.Answer
	for _, ans := range q.Answers {
		if ans.SelectedOption == q.CorrectOption {
			correct = append(correct, ans)
		}
	}
	return correct, nil
}

// RecordCorrectAnswers awards the question's base points to each graded
// answer, routed to the scorer's team.
func (Base) RecordCorrectAnswers(m *engine.Match, q engine.Question, graded []engine.Answer) []engine.Answer {
	credited := make([]engine.Answer, 0, len(graded))
	for _, ans := range graded {
		switch ans.Player.Affiliation {
		case m.HomeTeam():
			ans = m.CreditHome(ans, q.Points)
		case m.AwayTeam():
			ans = m.CreditAway(ans, q.Points)
		}
		credited = append(credited, ans)
	}
	return credited
}
