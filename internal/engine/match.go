// Package engine implements the per-match state machine of the Ragnarok
// quiz service: question lifecycles, submission time gates, grading of
// answer snapshots and scoring, with at-most-once grading per question
// under concurrent verification.
//
// Match flow: an admin creates a match (Upcoming), initializes it
// (Standby, questions fetched), then starts it (Active, first question
// primed). Players poll for the current question once its send time
// passes and submit answers inside the question window. After the
// window closes a verify call grades the submission snapshot, credits
// the scorers and advances to the next question. When the unused queue
// runs dry the match completes.
package engine

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Clash-of-Prodigies/Ragnarok/internal/clock"
)

// DefaultCooldown is prepended before each question becomes visible
// when no explicit send time is supplied.
const DefaultCooldown = 10 * time.Second

// Ruleset is the pluggable per-competition contract: question sourcing,
// grading and point awards. PickCorrectAnswers and RecordCorrectAnswers
// run inside the match verify lock and must use the Credit/AddBonus
// helpers rather than locking methods.
type Ruleset interface {
	// Name identifies the ruleset; it doubles as the match_type key.
	Name() string

	// FetchQuestions produces the unused queue for a freshly
	// initialized match: exactly Rounds*QPR questions, one TPQ entry
	// per round applied as the duration of that round's questions.
	FetchQuestions(m *Match) []Question

	// PickCorrectAnswers grades a snapshot question. q.Answers holds
	// the submissions to grade; the returned list is the graded result
	// set in its final order.
	PickCorrectAnswers(q Question) ([]Answer, error)

	// RecordCorrectAnswers awards points for the graded list and
	// returns the credited answers (base and bonus points filled in).
	RecordCorrectAnswers(m *Match, q Question, graded []Answer) []Answer

	// RecessDuration is added to start_time when pausing Active to
	// Standby. Zero means no recess.
	RecessDuration() time.Duration
}

// Config carries the admin-supplied settings for a new match.
type Config struct {
	MatchID   string
	HomeTeam  string
	AwayTeam  string
	Rounds    int
	QPR       int       // questions per round
	TPQ       []float64 // seconds per question, one entry per round
	PPQ       float64   // base points per question
	Cooldown  time.Duration
	StartTime time.Time
}

// Match is one head-to-head contest. All exported methods other than
// the ruleset helpers lock the match; the verify path is the single
// critical section that grades, scores and advances atomically.
type Match struct {
	mu sync.Mutex

	clk   clock.Clock
	rules Ruleset

	matchID   string
	homeTeam  string
	awayTeam  string
	homeScore float64
	awayScore float64
	rounds    int
	qpr       int
	tpq       []float64
	ppq       float64
	state     State
	scorers   []Answer
	unused    []Question
	used      []Question
	current   *Question
	answers   map[string]Answer // user_id -> latest answer for the current question
	startTime time.Time
	endTime   time.Time
	cooldown  time.Duration
}

// NewMatch validates cfg and returns an Upcoming match bound to rules.
func NewMatch(cfg Config, rules Ruleset, clk clock.Clock) (*Match, error) {
	if cfg.MatchID == "" {
		return nil, badRequest("Match ID cannot be empty")
	}
	if cfg.HomeTeam == "" || cfg.AwayTeam == "" {
		return nil, badRequest("Both teams must be defined")
	}
	if cfg.Rounds <= 0 {
		return nil, badRequest("Rounds must be a positive integer")
	}
	if cfg.QPR <= 0 {
		return nil, badRequest("Questions per round must be a positive integer")
	}
	if len(cfg.TPQ) < cfg.Rounds {
		return nil, badRequest("Time per question list must have at least as many entries as rounds")
	}
	for _, secs := range cfg.TPQ {
		if secs <= 0 {
			return nil, badRequest("Time per question must be positive")
		}
	}
	if cfg.PPQ < 0 {
		return nil, badRequest("Points per question cannot be negative")
	}
	if rules == nil {
		return nil, internalErr("match requires a ruleset")
	}
	if clk == nil {
		clk = clock.System{}
	}
	cooldown := cfg.Cooldown
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	return &Match{
		clk:       clk,
		rules:     rules,
		matchID:   cfg.MatchID,
		homeTeam:  cfg.HomeTeam,
		awayTeam:  cfg.AwayTeam,
		rounds:    cfg.Rounds,
		qpr:       cfg.QPR,
		tpq:       append([]float64(nil), cfg.TPQ...),
		ppq:       cfg.PPQ,
		state:     StateUpcoming,
		answers:   make(map[string]Answer),
		startTime: cfg.StartTime,
		cooldown:  cooldown,
	}, nil
}

// ID returns the match identifier.
func (m *Match) ID() string { return m.matchID }

// RulesetName returns the name of the bound ruleset.
func (m *Match) RulesetName() string { return m.rules.Name() }

// State returns the current lifecycle state.
func (m *Match) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Score returns the home and away totals.
func (m *Match) Score() (home, away float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.homeScore, m.awayScore
}

// StartedAt returns the scheduled or actual start time, if set.
func (m *Match) StartedAt() (time.Time, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.startTime, !m.startTime.IsZero()
}

// QueueSizes returns the unused and used question counts.
func (m *Match) QueueSizes() (unused, used int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.unused), len(m.used)
}

// ChangeState drives the transition matrix. Any transition outside the
// matrix is rejected with a bad-request error.
func (m *Match) ChangeState(target State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.changeStateLocked(target)
}

func (m *Match) changeStateLocked(target State) error {
	if !target.Known() {
		return badRequest("Invalid state value")
	}
	if target == m.state {
		return badRequest("Match is already in the desired state")
	}
	switch target {
	case StateUpcoming:
		if m.state != StateStandby {
			return badRequest("Match must be 'standby' to reset to 'upcoming'")
		}
		m.resetLocked()
	case StateStandby:
		switch m.state {
		case StateUpcoming, StateSuspended:
			m.initLocked()
		case StateActive:
			m.pauseLocked()
		default:
			return badRequest("Match must be 'upcoming', 'suspended' or 'active' to change to 'standby'")
		}
	case StateActive:
		if m.state != StateStandby && m.state != StateSuspended {
			return badRequest("Match must be 'standby' or 'suspended' to start")
		}
		return m.startLocked()
	case StateSuspended:
		if m.state != StateStandby && m.state != StateActive {
			return badRequest("Match must be 'active' or 'standby' to suspend")
		}
		m.state = StateSuspended
	case StateCompleted:
		if m.state != StateActive && m.state != StateSuspended {
			return badRequest("Match must be 'active' or 'suspended' to complete")
		}
		m.endLocked()
	case StateCancelled:
		switch m.state {
		case StateSuspended, StateUpcoming, StateStandby:
			m.state = StateCancelled
		default:
			return badRequest("Match must be 'suspended', 'upcoming', or 'standby' to cancel")
		}
	}
	return nil
}

// initLocked resets scoring state, fetches a fresh question queue from
// the ruleset and parks the match in Standby.
func (m *Match) initLocked() {
	m.state = StateStandby
	m.homeScore = 0
	m.awayScore = 0
	m.scorers = nil
	m.current = nil
	m.answers = make(map[string]Answer)
	m.used = nil
	m.unused = m.rules.FetchQuestions(m)
}

func (m *Match) startLocked() error {
	now := m.clk.Now()
	if m.startTime.IsZero() {
		m.startTime = now.Add(m.cooldown)
	} else if now.Before(m.startTime) {
		return retryAt("Cannot start before schedule.", m.startTime)
	}
	if m.homeTeam == "" || m.awayTeam == "" {
		return badRequest("Both teams must be defined to start the match")
	}
	m.state = StateActive
	return m.prepNextLocked(time.Time{})
}

func (m *Match) pauseLocked() {
	m.state = StateStandby
	if recess := m.rules.RecessDuration(); recess > 0 {
		m.startTime = m.clk.Now().Add(recess)
	}
}

func (m *Match) endLocked() {
	if m.endTime.IsZero() {
		m.endTime = m.clk.Now()
	}
	m.state = StateCompleted
}

func (m *Match) resetLocked() {
	m.homeScore = 0
	m.awayScore = 0
	m.scorers = nil
	m.unused = nil
	m.used = nil
	m.current = nil
	m.answers = make(map[string]Answer)
	m.state = StateUpcoming
	m.startTime = time.Time{}
	m.endTime = time.Time{}
}

// prepNextLocked retires the current question to used and primes the
// next unused question. The queue is consumed front to back, so the
// deterministic placeholder bank plays out in generation order.
func (m *Match) prepNextLocked(sendAt time.Time) error {
	if m.state != StateActive {
		return badRequest("Match is not active")
	}
	if len(m.unused) == 0 {
		return ErrNoMoreQuestions
	}
	if m.current != nil {
		m.used = append(m.used, *m.current)
	}
	next := m.unused[0]
	m.unused = m.unused[1:]
	if sendAt.IsZero() {
		sendAt = m.clk.Now().Add(m.cooldown)
	}
	next.SendAt = sendAt
	m.current = &next
	m.answers = make(map[string]Answer)
	return nil
}

// CurrentQuestion returns the read-only view of the current question,
// subject to its visibility window.
func (m *Match) CurrentQuestion() (QuestionView, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateActive {
		return QuestionView{}, badRequest("Match is not active")
	}
	if m.current == nil {
		return QuestionView{}, badRequest("No current question available")
	}
	if m.current.SendAt.IsZero() {
		return QuestionView{}, badRequest("Current question has no sent time set yet")
	}
	now := m.clk.Now()
	if m.current.SendAt.After(now) {
		return QuestionView{}, retryAt("Current question is not ready.", m.current.SendAt)
	}
	if now.After(m.current.SendAt.Add(m.current.Duration)) {
		return QuestionView{}, badRequest("Current question time has expired")
	}
	return m.current.View(), nil
}

// StoreAnswer records the player's answer to the current question,
// last write wins per player. The receive instant is taken from the
// match clock.
func (m *Match) StoreAnswer(player PlayerInfo, selectedOption int) (AnswerView, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateActive {
		return AnswerView{}, badRequest("Match is not active")
	}
	if m.current == nil {
		return AnswerView{}, badRequest("No current question to submit answer for")
	}
	if player.Affiliation != m.homeTeam && player.Affiliation != m.awayTeam {
		return AnswerView{}, badRequest("Player does not belong to either team")
	}
	if m.current.SendAt.IsZero() {
		return AnswerView{}, badRequest("Current question has no sent time set yet")
	}
	now := m.clk.Now()
	if now.Before(m.current.SendAt) {
		return AnswerView{}, retryAt("Cannot submit answer yet.", m.current.SendAt)
	}
	ans := Answer{Player: player, TimeReceived: now, SelectedOption: selectedOption}
	if ans.TimeReceived.Sub(m.current.SendAt) > m.current.Duration {
		return AnswerView{}, badRequest("Answer submitted after time limit")
	}
	m.answers[player.UserID] = ans
	return ans.View(), nil
}

// Verify closes the question window: it grades the snapshot of
// submitted answers, credits scorers, and advances to the next
// question, ending the match when none remain. Verify is idempotent;
// repeated calls for a graded question return the cached list without
// re-scoring, in any lifecycle state.
func (m *Match) Verify(questionID string) ([]AnswerView, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if questionID == "" {
		if m.current == nil {
			return nil, badRequest("No current question to verify")
		}
		questionID = m.current.ID
	}

	// A racing caller may have advanced past the queried id; serve the
	// cached result from the used queue.
	for i := range m.used {
		if m.used[i].ID != questionID {
			continue
		}
		if !m.used[i].Graded {
			return nil, badRequest("Question exists but has not been verified yet")
		}
		return answerViews(m.used[i].Answers), nil
	}

	if m.current == nil {
		return nil, badRequest("No current question to verify")
	}
	if m.current.ID != questionID {
		return nil, notFound("Question id does not match current question and was not found in used questions")
	}
	if m.current.Graded {
		return answerViews(m.current.Answers), nil
	}

	if m.state != StateActive {
		return nil, badRequest("Match is not active")
	}
	if m.current.SendAt.IsZero() {
		return nil, badRequest("Current question has no sent time set yet")
	}
	closeAt := m.current.SendAt.Add(m.current.Duration)
	if m.clk.Now().Before(closeAt) {
		return nil, retryAt("Cannot verify yet.", closeAt)
	}

	// Grading is a pure function of the snapshot: attach the submitted
	// answers to a copy of the question and hand it to the ruleset.
	snapshot := *m.current
	snapshot.Answers = m.answersSnapshotLocked()
	graded, err := m.rules.PickCorrectAnswers(snapshot)
	if err != nil {
		return nil, fmt.Errorf("grading %s: %w", snapshot.ID, err)
	}
	snapshot.Answers = graded
	snapshot.Graded = true
	*m.current = snapshot

	credited := m.rules.RecordCorrectAnswers(m, snapshot, graded)
	m.current.Answers = credited

	if err := m.prepNextLocked(time.Time{}); err != nil {
		if !errors.Is(err, ErrNoMoreQuestions) {
			return nil, err
		}
		m.endLocked()
	}
	return answerViews(credited), nil
}

// PreviewCorrectAnswers grades the current snapshot without recording
// scores or advancing. Extended match views use it to show results
// once the question window has closed.
func (m *Match) PreviewCorrectAnswers() ([]AnswerView, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateActive {
		return nil, badRequest("Match is not active")
	}
	if m.current == nil {
		return nil, badRequest("No current question to pick answers for")
	}
	if m.current.SendAt.IsZero() {
		return nil, badRequest("Current question has no sent time set yet")
	}
	closeAt := m.current.SendAt.Add(m.current.Duration)
	if m.clk.Now().Before(closeAt) {
		return nil, retryAt("Cannot verify yet.", closeAt)
	}
	snapshot := *m.current
	if !snapshot.Graded {
		snapshot.Answers = m.answersSnapshotLocked()
	}
	graded, err := m.rules.PickCorrectAnswers(snapshot)
	if err != nil {
		return nil, fmt.Errorf("grading %s: %w", snapshot.ID, err)
	}
	return answerViews(graded), nil
}

func (m *Match) answersSnapshotLocked() []Answer {
	snapshot := make([]Answer, 0, len(m.answers))
	for _, ans := range m.answers {
		snapshot = append(snapshot, ans)
	}
	return snapshot
}
