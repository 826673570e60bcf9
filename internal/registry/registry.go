// Package registry keeps the process-wide collection of matches. Admin
// operations mutate it; gameplay only reads, so a reader/writer lock
// keeps poll-heavy endpoints cheap.
package registry

import (
	"fmt"
	"sync"
	"time"

	"github.com/Clash-of-Prodigies/Ragnarok/internal/engine"
)

// Registry is an in-memory match collection keyed by match id.
type Registry struct {
	mu      sync.RWMutex
	matches []*engine.Match
}

func New() *Registry {
	return &Registry{}
}

// Get returns the match with the given id.
func (r *Registry) Get(matchID string) (*engine.Match, error) {
	if matchID == "" {
		return nil, &engine.Error{Kind: engine.KindBadRequest, Message: "Match ID is required"}
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, m := range r.matches {
		if m.ID() == matchID {
			return m, nil
		}
	}
	return nil, &engine.Error{Kind: engine.KindNotFound, Message: "Match not found"}
}

// Has reports whether a match with the given id exists.
func (r *Registry) Has(matchID string) bool {
	m, err := r.Get(matchID)
	return err == nil && m != nil
}

// Add registers the match, rejecting duplicate ids.
func (r *Registry) Add(m *engine.Match) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.matches {
		if existing.ID() == m.ID() {
			return &engine.Error{Kind: engine.KindConflict, Message: "Match with this ID already exists"}
		}
	}
	r.matches = append(r.matches, m)
	return nil
}

// Remove deletes the match with the given id.
func (r *Registry) Remove(matchID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, m := range r.matches {
		if m.ID() == matchID {
			r.matches = append(r.matches[:i], r.matches[i+1:]...)
			return nil
		}
	}
	return &engine.Error{Kind: engine.KindNotFound, Message: "Match not found"}
}

// Clear removes every match.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.matches = nil
}

// Len returns the number of registered matches.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.matches)
}

// All returns the matches in insertion order.
func (r *Registry) All() []*engine.Match {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]*engine.Match(nil), r.matches...)
}

// FilterByDate returns the matches whose start time falls on the given
// calendar date (UTC). An empty date returns everything.
func (r *Registry) FilterByDate(isoDate string) ([]*engine.Match, error) {
	if isoDate == "" {
		return r.All(), nil
	}
	wanted, err := parseDay(isoDate)
	if err != nil {
		return nil, &engine.Error{Kind: engine.KindBadRequest, Message: fmt.Sprintf("invalid date %q", isoDate)}
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	var filtered []*engine.Match
	for _, m := range r.matches {
		start, ok := m.StartedAt()
		if !ok {
			continue
		}
		y, mo, d := start.UTC().Date()
		if y == wanted.Year() && mo == wanted.Month() && d == wanted.Day() {
			filtered = append(filtered, m)
		}
	}
	return filtered, nil
}

func parseDay(isoDate string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, isoDate); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable date %q", isoDate)
}
