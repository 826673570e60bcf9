// Package http hosts the JSON API of the match service: routing,
// middleware (request ids, logging, CORS, timeouts, submission rate
// limiting) and server lifecycle.
package http

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/Clash-of-Prodigies/Ragnarok/internal/interfaces/http/handlers"
	"github.com/Clash-of-Prodigies/Ragnarok/internal/metrics"
)

// Server is the HTTP front of the match service.
type Server struct {
	router   *mux.Router
	handler  http.Handler
	server   *http.Server
	handlers *handlers.Handlers
	metrics  *metrics.Registry
	config   ServerConfig
	limiter  *clientLimiter
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	Host           string
	Port           int
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	RequestTimeout time.Duration
	AllowedHosts   []string // origin hostnames allowed to use credentials
	SubmitRPS      float64
	SubmitBurst    int
}

// NewServer assembles the router, middleware and http.Server.
func NewServer(config ServerConfig, h *handlers.Handlers, m *metrics.Registry) *Server {
	s := &Server{
		router:   mux.NewRouter(),
		handlers: h,
		metrics:  m,
		config:   config,
		limiter:  newClientLimiter(rate.Limit(config.SubmitRPS), config.SubmitBurst),
	}
	s.setupRoutes()
	// The global middleware wraps the router rather than registering on
	// it, so it also covers preflights and requests that match no route.
	s.handler = s.requestIDMiddleware(s.requestLoggingMiddleware(s.timeoutMiddleware(s.corsMiddleware(s.router))))
	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", config.Host, config.Port),
		Handler:      s.handler,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		IdleTimeout:  config.IdleTimeout,
	}
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(s.jsonContentTypeMiddleware)

	s.router.HandleFunc("/health", s.handlers.Health).Methods("GET")
	s.router.Handle("/metrics", s.metrics.Handler()).Methods("GET")

	s.router.HandleFunc("/matches", s.handlers.List).Methods("GET")
	s.router.HandleFunc("/matches", s.handlers.Protected("admin", s.handlers.Clear)).Methods("DELETE")
	s.router.HandleFunc("/matches/{id}", s.handlers.Get).Methods("GET")
	s.router.HandleFunc("/matches/{id}", s.handlers.Protected("admin", s.handlers.Create)).Methods("PUT")
	s.router.HandleFunc("/matches/{id}", s.handlers.Protected("admin", s.handlers.Update)).Methods("PATCH")
	s.router.HandleFunc("/matches/{id}", s.handlers.Protected("admin", s.handlers.Delete)).Methods("DELETE")
	s.router.HandleFunc("/matches/{id}", s.rateLimited(s.handlers.Protected("user", s.handlers.Submit))).Methods("POST")
	s.router.HandleFunc("/matches/{id}/current-question", s.handlers.CurrentQuestion).Methods("GET")
	s.router.HandleFunc("/matches/{id}/verify-answers", s.handlers.Authenticated(s.handlers.Verify)).Methods("POST")

	s.router.NotFoundHandler = http.HandlerFunc(s.handlers.NotFound)
	s.router.MethodNotAllowedHandler = http.HandlerFunc(s.handlers.MethodNotAllowed)
}

type contextKey string

const requestIDKey contextKey = "request_id"

func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.New().String()[:8]
		ctx := context.WithValue(r.Context(), requestIDKey, requestID)
		w.Header().Set("X-Request-ID", requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) requestLoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapper := &responseWrapper{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapper, r)
		duration := time.Since(start)

		requestID, _ := r.Context().Value(requestIDKey).(string)
		log.Info().
			Str("request_id", requestID).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", wrapper.statusCode).
			Dur("duration", duration).
			Str("remote", r.RemoteAddr).
			Msg("request")

		if s.metrics != nil {
			status := fmt.Sprintf("%d", wrapper.statusCode)
			s.metrics.RequestDuration.WithLabelValues(r.Method, status).Observe(duration.Seconds())
			s.metrics.RequestsTotal.WithLabelValues(r.Method, status).Inc()
		}
	})
}

func (s *Server) timeoutMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		timeout := s.config.RequestTimeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// corsMiddleware echoes the request origin only when its hostname is
// on the allow-list, so credentialed requests work from the known
// frontends without opening the API to arbitrary origins. Preflights
// are answered here, before routing, so they get a 204 on every path.
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && s.originAllowed(origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, ngrok-skip-browser-warning")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS, PUT, PATCH, DELETE")
			w.Header().Add("Vary", "Origin")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) originAllowed(origin string) bool {
	parsed, err := url.Parse(origin)
	if err != nil {
		return false
	}
	host := parsed.Hostname()
	if host == "" {
		return false
	}
	for _, allowed := range s.config.AllowedHosts {
		if strings.EqualFold(host, allowed) {
			return true
		}
	}
	return false
}

func (s *Server) jsonContentTypeMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

// rateLimited throttles answer submissions per client, keyed by token
// when present and remote address otherwise.
func (s *Server) rateLimited(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get("Authorization")
		if key == "" {
			key = r.RemoteAddr
		}
		if !s.limiter.allow(key) {
			w.WriteHeader(http.StatusTooManyRequests)
			fmt.Fprint(w, `{"error":"Too many submissions"}`)
			return
		}
		next(w, r)
	}
}

// limiterMaxClients bounds the per-client limiter map.
const limiterMaxClients = 4096

type clientLimiter struct {
	mu         sync.Mutex
	limiters   map[string]*rate.Limiter
	rps        rate.Limit
	burst      int
	maxClients int
}

func newClientLimiter(rps rate.Limit, burst int) *clientLimiter {
	if rps <= 0 {
		rps = 5
	}
	if burst <= 0 {
		burst = 20
	}
	return &clientLimiter{
		limiters:   make(map[string]*rate.Limiter),
		rps:        rps,
		burst:      burst,
		maxClients: limiterMaxClients,
	}
}

func (c *clientLimiter) allow(key string) bool {
	c.mu.Lock()
	limiter, ok := c.limiters[key]
	if !ok {
		// At the cap, drop the whole map instead of tracking recency:
		// refilled buckets are harmless at this granularity.
		if len(c.limiters) >= c.maxClients {
			c.limiters = make(map[string]*rate.Limiter)
		}
		limiter = rate.NewLimiter(c.rps, c.burst)
		c.limiters[key] = limiter
	}
	c.mu.Unlock()
	return limiter.Allow()
}

// Start runs the server until Shutdown or a listener error.
func (s *Server) Start() error {
	log.Info().Str("addr", s.server.Addr).Msg("starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	log.Info().Msg("shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// Address returns the bind address.
func (s *Server) Address() string {
	return s.server.Addr
}

// Router exposes the full handler chain, mainly for tests.
func (s *Server) Router() http.Handler { return s.handler }

type responseWrapper struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWrapper) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
