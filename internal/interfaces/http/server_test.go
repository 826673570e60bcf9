package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Clash-of-Prodigies/Ragnarok/internal/adapter"
	"github.com/Clash-of-Prodigies/Ragnarok/internal/auth"
	"github.com/Clash-of-Prodigies/Ragnarok/internal/clock"
	"github.com/Clash-of-Prodigies/Ragnarok/internal/interfaces/http/handlers"
	"github.com/Clash-of-Prodigies/Ragnarok/internal/metrics"
	"github.com/Clash-of-Prodigies/Ragnarok/internal/persistence"
	"github.com/Clash-of-Prodigies/Ragnarok/internal/registry"
)

type stubIntrospector struct {
	tokens map[string]auth.Identity
}

func (s stubIntrospector) Introspect(_ context.Context, token string) (auth.Identity, error) {
	if token == "" {
		return auth.Identity{}, auth.ErrMissingToken
	}
	id, ok := s.tokens[token]
	if !ok {
		return auth.Identity{}, auth.ErrUnauthenticated
	}
	return id, nil
}

var testEpoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	clk   *clock.Fake
	srv   *httptest.Server
	store *persistence.MemoryStore
}

func newFixture(t *testing.T, cfg ServerConfig) *fixture {
	t.Helper()
	clk := clock.NewFake(testEpoch)
	intro := stubIntrospector{tokens: map[string]auth.Identity{
		"admin-token": {UserID: "a1", UserName: "overseer", UserRole: "admin", Affiliation: "overseer"},
		"home-token":  {UserID: "u1", UserName: "sigrun", UserRole: "user", Affiliation: "Asgard"},
		"away-token":  {UserID: "u2", UserName: "loki", UserRole: "user", Affiliation: "Jotunheim"},
	}}
	store := persistence.NewMemoryStore()
	h := handlers.New(registry.New(), intro, clk, metrics.NewRegistry(), store)
	if cfg.SubmitRPS == 0 {
		cfg.SubmitRPS = 100
		cfg.SubmitBurst = 100
	}
	if len(cfg.AllowedHosts) == 0 {
		cfg.AllowedHosts = []string{"localhost", "room.clashofprodigies.org"}
	}
	server := NewServer(cfg, h, metrics.NewRegistry())
	srv := httptest.NewServer(server.Router())
	t.Cleanup(srv.Close)
	return &fixture{clk: clk, srv: srv, store: store}
}

func (f *fixture) do(t *testing.T, method, path, token string, body interface{}) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, f.srv.URL+path, &buf)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	res, err := f.srv.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { res.Body.Close() })
	return res
}

func decode(t *testing.T, res *http.Response, out interface{}) {
	t.Helper()
	require.NoError(t, json.NewDecoder(res.Body).Decode(out))
}

func createBody() map[string]interface{} {
	return map[string]interface{}{
		"match_type": "HouseBamzy",
		"home_team":  "Asgard",
		"away_team":  "Jotunheim",
		"rounds":     1,
		"qpr":        2,
		"tpq":        []float64{10},
	}
}

func TestMatchLifecycleOverHTTP(t *testing.T) {
	f := newFixture(t, ServerConfig{})

	res := f.do(t, http.MethodPut, "/matches/m1", "admin-token", createBody())
	require.Equal(t, http.StatusCreated, res.StatusCode)

	var listed []map[string]interface{}
	res = f.do(t, http.MethodGet, "/matches", "", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	decode(t, res, &listed)
	require.Len(t, listed, 1)
	assert.Equal(t, "m1", listed[0]["match_id"])
	assert.Equal(t, "0/2", listed[0]["progress"])

	// Upcoming -> Standby -> Active.
	res = f.do(t, http.MethodPatch, "/matches/m1", "admin-token", map[string]int{"state": 1})
	require.Equal(t, http.StatusOK, res.StatusCode)
	res = f.do(t, http.MethodPatch, "/matches/m1", "admin-token", map[string]int{"state": 2})
	require.Equal(t, http.StatusOK, res.StatusCode)

	// Question is primed one cooldown (10s default) ahead.
	res = f.do(t, http.MethodGet, "/matches/m1/current-question", "", nil)
	require.Equal(t, http.StatusBadRequest, res.StatusCode)
	var fail map[string]string
	decode(t, res, &fail)
	assert.Contains(t, fail["error"], "Try again at")

	f.clk.Advance(10 * time.Second)
	res = f.do(t, http.MethodGet, "/matches/m1/current-question", "", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	var question map[string]interface{}
	decode(t, res, &question)
	assert.Equal(t, "q-1-1", question["id"])
	assert.Equal(t, 10.0, question["duration"])

	res = f.do(t, http.MethodPost, "/matches/m1", "home-token", map[string]int{"selected_option": 0})
	require.Equal(t, http.StatusOK, res.StatusCode)
	f.clk.Advance(time.Second)
	res = f.do(t, http.MethodPost, "/matches/m1", "away-token", map[string]int{"selected_option": 2})
	require.Equal(t, http.StatusOK, res.StatusCode)

	f.clk.Advance(10 * time.Second)
	res = f.do(t, http.MethodPost, "/matches/m1/verify-answers?id=q-1-1", "home-token", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	var answers []map[string]interface{}
	decode(t, res, &answers)
	require.Len(t, answers, 1)
	player := answers[0]["player_info"].(map[string]interface{})
	assert.Equal(t, "sigrun", player["user_name"])
	assert.NotContains(t, player, "user_id")

	// Replays serve the cached result.
	res = f.do(t, http.MethodPost, "/matches/m1/verify-answers?id=q-1-1", "away-token", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)

	var summary map[string]interface{}
	res = f.do(t, http.MethodGet, "/matches/m1", "", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	decode(t, res, &summary)
	assert.Equal(t, 6.0, summary["home_score"]) // 1 base + 5 fast bonus
	assert.Equal(t, 0.0, summary["away_score"])
	assert.Equal(t, "1/2", summary["progress"])
}

func TestAuthBoundary(t *testing.T) {
	f := newFixture(t, ServerConfig{})

	res := f.do(t, http.MethodPut, "/matches/m1", "", createBody())
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)

	res = f.do(t, http.MethodPut, "/matches/m1", "bogus-token", createBody())
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)

	// Role mismatch: users cannot administer, admins cannot play.
	res = f.do(t, http.MethodPut, "/matches/m1", "home-token", createBody())
	assert.Equal(t, http.StatusForbidden, res.StatusCode)

	res = f.do(t, http.MethodPut, "/matches/m1", "admin-token", createBody())
	require.Equal(t, http.StatusCreated, res.StatusCode)
	res = f.do(t, http.MethodPost, "/matches/m1", "admin-token", map[string]int{"selected_option": 0})
	assert.Equal(t, http.StatusForbidden, res.StatusCode)
}

func TestCreateValidation(t *testing.T) {
	f := newFixture(t, ServerConfig{})

	body := createBody()
	delete(body, "match_type")
	res := f.do(t, http.MethodPut, "/matches/m1", "admin-token", body)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)

	body = createBody()
	body["match_type"] = "Nonesuch"
	res = f.do(t, http.MethodPut, "/matches/m1", "admin-token", body)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)

	res = f.do(t, http.MethodPut, "/matches/m1", "admin-token", createBody())
	require.Equal(t, http.StatusCreated, res.StatusCode)
	res = f.do(t, http.MethodPut, "/matches/m1", "admin-token", createBody())
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
	var fail map[string]string
	decode(t, res, &fail)
	assert.Equal(t, "Match with this ID already exists", fail["error"])
}

func TestDeleteAndClear(t *testing.T) {
	f := newFixture(t, ServerConfig{})

	res := f.do(t, http.MethodPut, "/matches/m1", "admin-token", createBody())
	require.Equal(t, http.StatusCreated, res.StatusCode)
	res = f.do(t, http.MethodPut, "/matches/m2", "admin-token", createBody())
	require.Equal(t, http.StatusCreated, res.StatusCode)

	res = f.do(t, http.MethodDelete, "/matches/m1", "admin-token", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	res = f.do(t, http.MethodGet, "/matches/m1", "", nil)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)

	res = f.do(t, http.MethodDelete, "/matches", "admin-token", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	var listed []map[string]interface{}
	res = f.do(t, http.MethodGet, "/matches", "", nil)
	decode(t, res, &listed)
	assert.Empty(t, listed)

	// The store saw the deletions too.
	records, err := f.store.LoadMatches(context.Background())
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestListDateFilter(t *testing.T) {
	f := newFixture(t, ServerConfig{})

	body := createBody()
	body["start_date"] = "2026-03-05T18:00:00Z"
	res := f.do(t, http.MethodPut, "/matches/m1", "admin-token", body)
	require.Equal(t, http.StatusCreated, res.StatusCode)
	res = f.do(t, http.MethodPut, "/matches/m2", "admin-token", createBody())
	require.Equal(t, http.StatusCreated, res.StatusCode)

	var listed []map[string]interface{}
	res = f.do(t, http.MethodGet, "/matches?date=2026-03-05", "", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	decode(t, res, &listed)
	require.Len(t, listed, 1)
	assert.Equal(t, "m1", listed[0]["match_id"])

	res = f.do(t, http.MethodGet, "/matches?date=garbage", "", nil)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
}

func TestExtendedMode(t *testing.T) {
	f := newFixture(t, ServerConfig{})
	res := f.do(t, http.MethodPut, "/matches/m1", "admin-token", createBody())
	require.Equal(t, http.StatusCreated, res.StatusCode)

	var extended map[string]interface{}
	res = f.do(t, http.MethodGet, "/matches/m1?mode=extended", "", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	decode(t, res, &extended)

	// Both gates are closed on an upcoming match: error objects, not data.
	question := extended["question"].(map[string]interface{})
	assert.Contains(t, question["error"], "not active")
	answers := extended["answers"].(map[string]interface{})
	assert.Contains(t, answers["error"], "not active")
}

func TestSuspendedSettingsUpdate(t *testing.T) {
	f := newFixture(t, ServerConfig{})
	res := f.do(t, http.MethodPut, "/matches/m1", "admin-token", createBody())
	require.Equal(t, http.StatusCreated, res.StatusCode)

	// Settings edits outside Suspended are rejected.
	res = f.do(t, http.MethodPatch, "/matches/m1", "admin-token", map[string]interface{}{"home_team": "Vanaheim"})
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)

	res = f.do(t, http.MethodPatch, "/matches/m1", "admin-token", map[string]int{"state": 1})
	require.Equal(t, http.StatusOK, res.StatusCode)
	res = f.do(t, http.MethodPatch, "/matches/m1", "admin-token", map[string]int{"state": -1})
	require.Equal(t, http.StatusOK, res.StatusCode)

	res = f.do(t, http.MethodPatch, "/matches/m1", "admin-token", map[string]interface{}{"home_team": "Vanaheim"})
	require.Equal(t, http.StatusOK, res.StatusCode)

	var summary map[string]interface{}
	res = f.do(t, http.MethodGet, "/matches/m1", "", nil)
	decode(t, res, &summary)
	assert.Equal(t, "Vanaheim", summary["home_team"])
}

func TestCORS(t *testing.T) {
	f := newFixture(t, ServerConfig{})

	req, err := http.NewRequest(http.MethodOptions, f.srv.URL+"/matches", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://room.clashofprodigies.org")
	res, err := f.srv.Client().Do(req)
	require.NoError(t, err)
	defer res.Body.Close()
	assert.Equal(t, http.StatusNoContent, res.StatusCode)
	assert.Equal(t, "https://room.clashofprodigies.org", res.Header.Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", res.Header.Get("Access-Control-Allow-Credentials"))
	assert.Contains(t, res.Header.Get("Access-Control-Allow-Headers"), "Authorization")

	req, err = http.NewRequest(http.MethodOptions, f.srv.URL+"/matches", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://evil.example.com")
	res, err = f.srv.Client().Do(req)
	require.NoError(t, err)
	defer res.Body.Close()
	assert.Empty(t, res.Header.Get("Access-Control-Allow-Origin"))

	// Preflights are answered before routing, so any path gets its 204.
	req, err = http.NewRequest(http.MethodOptions, f.srv.URL+"/matches/m1/verify-answers", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://room.clashofprodigies.org")
	res, err = f.srv.Client().Do(req)
	require.NoError(t, err)
	defer res.Body.Close()
	assert.Equal(t, http.StatusNoContent, res.StatusCode)
	assert.Equal(t, "https://room.clashofprodigies.org", res.Header.Get("Access-Control-Allow-Origin"))
}

func TestSubmitRateLimit(t *testing.T) {
	f := newFixture(t, ServerConfig{SubmitRPS: 0.01, SubmitBurst: 2})

	res := f.do(t, http.MethodPut, "/matches/m1", "admin-token", createBody())
	require.Equal(t, http.StatusCreated, res.StatusCode)

	// The first burst is admitted (and rejected by the engine, which is
	// fine); the next request trips the limiter.
	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		res = f.do(t, http.MethodPost, "/matches/m1", "home-token", map[string]int{"selected_option": 0})
		codes = append(codes, res.StatusCode)
	}
	assert.Equal(t, []int{http.StatusBadRequest, http.StatusBadRequest, http.StatusTooManyRequests}, codes)
}

func TestHealthAndUnknownRoute(t *testing.T) {
	f := newFixture(t, ServerConfig{})

	res := f.do(t, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	var health map[string]interface{}
	decode(t, res, &health)
	assert.Equal(t, "healthy", health["status"])
	assert.NotEmpty(t, res.Header.Get("X-Request-ID"))

	res = f.do(t, http.MethodGet, "/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
	var fail map[string]string
	decode(t, res, &fail)
	assert.Equal(t, "The requested endpoint does not exist", fail["error"])

	// Unknown methods on unknown paths get the 404 envelope too, not
	// mux's plain-text 405.
	res = f.do(t, http.MethodPost, "/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)

	// Known path, wrong method.
	res = f.do(t, http.MethodPost, "/health", "", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, res.StatusCode)

	res = f.do(t, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, res.StatusCode)
}

func TestPersistenceAcrossRestart(t *testing.T) {
	f := newFixture(t, ServerConfig{})
	res := f.do(t, http.MethodPut, "/matches/m1", "admin-token", createBody())
	require.Equal(t, http.StatusCreated, res.StatusCode)

	records, err := f.store.LoadMatches(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "m1", records[0].MatchID)
	assert.Equal(t, "HouseBamzy", records[0].MatchType)

	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal(records[0].Document, &doc))
	assert.Equal(t, "Asgard", doc["home_team"])
}

func TestVerifyRequiresAuthentication(t *testing.T) {
	f := newFixture(t, ServerConfig{})
	res := f.do(t, http.MethodPut, "/matches/m1", "admin-token", createBody())
	require.Equal(t, http.StatusCreated, res.StatusCode)

	res = f.do(t, http.MethodPost, "/matches/m1/verify-answers?id=q-1-1", "", nil)
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)

	// Any authenticated role may verify, including admins.
	res = f.do(t, http.MethodPost, "/matches/m1/verify-answers?id=q-1-1", "admin-token", nil)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode) // no current question yet
}

// Matches restored from the store at boot must survive later admin
// mutations: a PUT after restart persists the union, not just the
// matches created since boot.
func TestRestoredMatchesSurviveMutations(t *testing.T) {
	ctx := context.Background()
	store := persistence.NewMemoryStore()
	seed := persistence.Record{
		MatchID:   "m0",
		MatchType: "HouseBamzy",
		Document:  json.RawMessage(`{"match_type":"HouseBamzy","match_id":"m0","home_team":"Asgard","away_team":"Jotunheim"}`),
		UpdatedAt: testEpoch,
	}
	require.NoError(t, store.PersistMatches(ctx, []persistence.Record{seed}))

	// Boot sequence: rebuild the registry from the store, then seed the
	// handlers with the loaded records.
	clk := clock.NewFake(testEpoch)
	reg := registry.New()
	restored, err := adapter.NewMatch("HouseBamzy", adapter.Params{
		MatchID:  "m0",
		HomeTeam: "Asgard",
		AwayTeam: "Jotunheim",
	}, clk)
	require.NoError(t, err)
	require.NoError(t, reg.Add(restored))

	intro := stubIntrospector{tokens: map[string]auth.Identity{
		"admin-token": {UserID: "a1", UserName: "overseer", UserRole: "admin"},
	}}
	h := handlers.New(reg, intro, clk, metrics.NewRegistry(), store)
	loaded, err := store.LoadMatches(ctx)
	require.NoError(t, err)
	h.Restore(loaded)

	server := NewServer(ServerConfig{
		SubmitRPS:    100,
		SubmitBurst:  100,
		AllowedHosts: []string{"localhost"},
	}, h, metrics.NewRegistry())
	srv := httptest.NewServer(server.Router())
	defer srv.Close()

	f := &fixture{clk: clk, srv: srv, store: store}
	res := f.do(t, http.MethodPut, "/matches/m1", "admin-token", createBody())
	require.Equal(t, http.StatusCreated, res.StatusCode)

	records, err := store.LoadMatches(ctx)
	require.NoError(t, err)
	ids := make([]string, 0, len(records))
	for _, rec := range records {
		ids = append(ids, rec.MatchID)
	}
	assert.ElementsMatch(t, []string{"m0", "m1"}, ids)

	// Deleting the new match keeps the restored one stored.
	res = f.do(t, http.MethodDelete, "/matches/m1", "admin-token", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	records, err = store.LoadMatches(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "m0", records[0].MatchID)
}

func TestClientLimiterBounded(t *testing.T) {
	c := newClientLimiter(1, 1)
	c.maxClients = 8
	for i := 0; i < 100; i++ {
		c.allow(fmt.Sprintf("client-%d", i))
	}
	c.mu.Lock()
	size := len(c.limiters)
	c.mu.Unlock()
	assert.LessOrEqual(t, size, 8)

	// Throttling still works after an eviction cycle.
	assert.True(t, c.allow("steady"))
	assert.False(t, c.allow("steady"))
}

func TestOriginAllowed(t *testing.T) {
	s := &Server{config: ServerConfig{AllowedHosts: []string{"localhost", "room.clashofprodigies.org"}}}
	tests := []struct {
		origin string
		want   bool
	}{
		{"http://localhost:3000", true},
		{"https://room.clashofprodigies.org", true},
		{"https://ROOM.clashofprodigies.ORG", true},
		{"https://evil.example.com", false},
		{"https://room.clashofprodigies.org.evil.com", false},
		{"not a url" + string(rune(0x7f)), false},
		{"", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, s.originAllowed(tt.origin), fmt.Sprintf("origin %q", tt.origin))
	}
}
