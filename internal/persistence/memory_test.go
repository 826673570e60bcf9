package persistence

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	records, err := s.LoadMatches(ctx)
	require.NoError(t, err)
	assert.Empty(t, records)

	in := []Record{{
		MatchID:   "m1",
		MatchType: "HouseBamzy",
		Document:  json.RawMessage(`{"home_team":"Asgard"}`),
		UpdatedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}}
	require.NoError(t, s.PersistMatches(ctx, in))

	records, err = s.LoadMatches(ctx)
	require.NoError(t, err)
	assert.Equal(t, in, records)

	// Persist replaces, never merges.
	require.NoError(t, s.PersistMatches(ctx, nil))
	records, err = s.LoadMatches(ctx)
	require.NoError(t, err)
	assert.Empty(t, records)
}
