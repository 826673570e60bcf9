// Package persistence defines the durable match storage contract. The
// engine runs entirely in memory; stores only load the match set at
// startup and persist it on admin mutations and shutdown.
package persistence

import (
	"context"
	"encoding/json"
	"time"
)

// Record is the durable snapshot of one match: its type, plus the
// creation document needed to rebuild it through the adapter registry.
type Record struct {
	MatchID   string          `json:"match_id" db:"match_id"`
	MatchType string          `json:"match_type" db:"match_type"`
	Document  json.RawMessage `json:"document" db:"document"`
	UpdatedAt time.Time       `json:"updated_at" db:"updated_at"`
}

// MatchStore loads and persists the full match set. PersistMatches
// replaces the stored set wholesale.
type MatchStore interface {
	LoadMatches(ctx context.Context) ([]Record, error)
	PersistMatches(ctx context.Context, records []Record) error
}
