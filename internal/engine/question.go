package engine

import "time"

// PlayerInfo is the identity snapshot attached to an answer at receive
// time. Affiliation must equal one of the match's team labels for the
// answer to be accepted.
type PlayerInfo struct {
	UserID      string
	UserName    string
	Affiliation string
}

// Answer records one submission. BasePoints and BonusPoints stay zero
// until grading credits the answer.
type Answer struct {
	Player         PlayerInfo
	TimeReceived   time.Time
	BasePoints     float64
	BonusPoints    float64
	SelectedOption int
}

// AnswerView is the wire form of an answer. The user id is stripped
// before anything leaves the engine.
type AnswerView struct {
	PlayerInfo   map[string]string `json:"player_info"`
	TimeReceived string            `json:"time_received"`
}

// View builds the wire form of the answer.
func (a Answer) View() AnswerView {
	return AnswerView{
		PlayerInfo: map[string]string{
			"user_name":        a.Player.UserName,
			"user_affiliation": a.Player.Affiliation,
		},
		TimeReceived: a.TimeReceived.UTC().Format(time.RFC3339),
	}
}

// Question is one quiz item. SendAt stays zero until the question
// becomes current. Answers caches the graded result set once Graded
// flips; it is never populated before grading.
//
// A question with Options is multiple choice and carries the index of
// the correct option. A question without options cannot be graded by
// the shipped rulesets.
type Question struct {
	ID            string
	Text          string
	Points        float64
	Duration      time.Duration
	SendAt        time.Time
	Answers       []Answer
	Graded        bool
	Options       []string
	CorrectOption int
}

// MultipleChoice reports whether the question carries selectable options.
func (q Question) MultipleChoice() bool { return len(q.Options) > 0 }

// QuestionView is the read-only projection served to players.
type QuestionView struct {
	ID       string   `json:"id"`
	Text     string   `json:"text"`
	SentDate string   `json:"sentDate"`
	Duration float64  `json:"duration"`
	Options  []string `json:"options,omitempty"`
}

// View builds the wire form of the question. Duration is reported in
// seconds; the correct option never leaves the engine.
func (q Question) View() QuestionView {
	sent := ""
	if !q.SendAt.IsZero() {
		sent = q.SendAt.UTC().Format(time.RFC3339)
	}
	return QuestionView{
		ID:       q.ID,
		Text:     q.Text,
		SentDate: sent,
		Duration: q.Duration.Seconds(),
		Options:  q.Options,
	}
}

func answerViews(answers []Answer) []AnswerView {
	views := make([]AnswerView, 0, len(answers))
	for _, a := range answers {
		views = append(views, a.View())
	}
	return views
}
