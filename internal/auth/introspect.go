// Package auth integrates the external Cerberus identity service. The
// engine never parses tokens; it consumes the introspection result.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"

	"github.com/Clash-of-Prodigies/Ragnarok/internal/cache"
)

// Introspection failure modes, mapped to 401/503 at the boundary.
var (
	ErrMissingToken    = errors.New("missing token")
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrUnavailable     = errors.New("authentication service unavailable")
)

// Identity is the introspection result for a bearer token.
type Identity struct {
	UserID      string `json:"user_id"`
	UserName    string `json:"user_name"`
	UserRole    string `json:"user_role"`
	Affiliation string `json:"user_affiliation"`
}

// Introspector resolves bearer tokens to identities.
type Introspector interface {
	Introspect(ctx context.Context, token string) (Identity, error)
}

// Cerberus introspects tokens with an OPTIONS request against the
// identity service, expecting 204 plus X-User-* headers. Responses are
// cached briefly and the call is wrapped in a circuit breaker so an
// auth outage fails fast instead of stalling every request.
type Cerberus struct {
	url     string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
	cache   cache.Cache
	ttl     time.Duration
}

// NewCerberus builds an introspector for the service at url. cache may
// be nil to disable identity caching.
func NewCerberus(url string, c cache.Cache, cacheTTL time.Duration) *Cerberus {
	return &Cerberus{
		url:    url,
		client: &http.Client{Timeout: 3 * time.Second},
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "cerberus",
			Timeout: 30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
		}),
		cache: c,
		ttl:   cacheTTL,
	}
}

func (c *Cerberus) Introspect(ctx context.Context, token string) (Identity, error) {
	if token == "" {
		return Identity{}, ErrMissingToken
	}
	key := "introspect:" + token
	if c.cache != nil {
		if raw, ok := c.cache.Get(key); ok {
			var id Identity
			if err := json.Unmarshal(raw, &id); err == nil {
				return id, nil
			}
			c.cache.Delete(key)
		}
	}

	// Rejected tokens are transport-level successes; only network
	// failures count against the breaker.
	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.introspectOnce(ctx, token)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return Identity{}, fmt.Errorf("%w: circuit open", ErrUnavailable)
		}
		log.Error().Err(err).Msg("auth introspection failed")
		return Identity{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	res := result.(introspectResult)
	if !res.authenticated {
		return Identity{}, ErrUnauthenticated
	}
	id := res.id
	if c.cache != nil && c.ttl > 0 {
		if raw, err := json.Marshal(id); err == nil {
			c.cache.Set(key, raw, c.ttl)
		}
	}
	return id, nil
}

type introspectResult struct {
	id            Identity
	authenticated bool
}

func (c *Cerberus) introspectOnce(ctx context.Context, token string) (introspectResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodOptions, c.url, nil)
	if err != nil {
		return introspectResult{}, err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	res, err := c.client.Do(req)
	if err != nil {
		return introspectResult{}, err
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusNoContent {
		return introspectResult{}, nil
	}

	id := Identity{
		UserID:      res.Header.Get("X-User-Id"),
		UserName:    res.Header.Get("X-User-Name"),
		UserRole:    res.Header.Get("X-User-Role"),
		Affiliation: res.Header.Get("X-User-Affiliation"),
	}
	if id.Affiliation == "" {
		id.Affiliation = id.UserName
	}
	return introspectResult{id: id, authenticated: true}, nil
}

// TokenFromRequest extracts the bearer token from the Authorization
// header, falling back to the jwt cookie.
func TokenFromRequest(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	if cookie, err := r.Cookie("jwt"); err == nil {
		return cookie.Value
	}
	return ""
}
