// Package api provides the HTTP server for PuffQuest.
// It exposes tracking, statistics and progression as a JSON API.
package api

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/puffquest/puffquest/internal/app/account"
	"github.com/puffquest/puffquest/internal/app/engagement"
	"github.com/puffquest/puffquest/internal/app/stats"
	"github.com/puffquest/puffquest/internal/app/tracking"
	"github.com/puffquest/puffquest/internal/domain"
	"github.com/puffquest/puffquest/internal/health"
	"github.com/puffquest/puffquest/internal/infra/metrics"
)

// Services are the application services the API exposes.
type Services struct {
	Accounts *account.Service
	Tracking *tracking.Service
	Stats    *stats.Service
	Game     *engagement.Service
	Health   *health.Checker // optional
}

// Options tune the HTTP surface.
type Options struct {
	CORSOrigins   []string
	RatePerSecond float64 // write requests per client; 0 disables limiting
	RateBurst     int
	Metrics       bool
	Timeout       time.Duration
	Version       string
}

// Server is the PuffQuest HTTP API server.
type Server struct {
	svc     Services
	opts    Options
	writes  *limiterSet
	logger  *zap.Logger
	handler http.Handler
	once    sync.Once
}

// NewServer creates a new API server.
func NewServer(svc Services, opts Options, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	s := &Server{svc: svc, opts: opts, logger: logger.Named("api")}
	if opts.RatePerSecond > 0 {
		s.writes = newLimiterSet(rate.Limit(opts.RatePerSecond), max(opts.RateBurst, 1))
	}
	return s
}

// Handler returns the chi router with all routes mounted.
func (s *Server) Handler() http.Handler {
	s.once.Do(func() { s.handler = s.routes() })
	return s.handler
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(s.opts.Timeout))
	r.Use(s.cors)
	r.Use(s.observe)

	r.Get("/health", s.handleHealth)

	r.Get("/api/version", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"version": s.opts.Version})
	})
	r.Get("/api/level", s.handleLevel)

	r.Route("/api/users", func(r chi.Router) {
		r.With(s.limitWrites).Post("/", s.handleOnboard)
		r.Get("/current", s.handleCurrentUser)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.handleGetUser)
			r.Delete("/", s.handleReset)

			r.With(s.limitWrites).Post("/entries", s.handleAddEntry)
			r.Get("/entries", s.handleEntries)

			r.Get("/stats/day", s.handleDayCount)
			r.Get("/stats/totals", s.handleTotals)
			r.Get("/stats/week", s.handleWeek)
			r.Get("/calendar", s.handleCalendar)

			r.With(s.limitWrites).Post("/recalc", s.handleRecalc)
			r.Get("/progress", s.handleProgress)
			r.Get("/rewards", s.handleRewards)
		})
	})

	if s.opts.Metrics {
		r.Handle("/metrics", promhttp.Handler())
	}

	return r
}

// ─── Responses ──────────────────────────────────────────────────────────────

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Message string              `json:"message"`
	Type    string              `json:"type"`
	Fields  []domain.FieldError `json:"fields,omitempty"`
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, typ, msg string) {
	writeJSON(w, status, map[string]errorBody{"error": {Message: msg, Type: typ}})
}

// writeFailure maps a service error to its HTTP status.
func (s *Server) writeFailure(w http.ResponseWriter, r *http.Request, err error) {
	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, map[string]errorBody{
			"error": {Message: verr.Error(), Type: "invalid_request", Fields: verr.Fields},
		})
	case errors.Is(err, domain.ErrUnknownMethod), errors.Is(err, domain.ErrInvalidEntryType):
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, domain.ErrUserNotFound), errors.Is(err, domain.ErrAchievementNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case domain.IsStorageError(err):
		s.logger.Error("storage unavailable",
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Error(err),
		)
		writeError(w, http.StatusServiceUnavailable, "unavailable", "storage unavailable, retry later")
	default:
		s.logger.Error("request failed",
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "internal", "internal error")
	}
}

// ─── Middleware ─────────────────────────────────────────────────────────────

// cors adds CORS headers for the configured origins.
func (s *Server) cors(next http.Handler) http.Handler {
	allowAll := len(s.opts.CORSOrigins) == 0
	allowed := make(map[string]bool, len(s.opts.CORSOrigins))
	for _, o := range s.opts.CORSOrigins {
		if o == "*" {
			allowAll = true
		}
		allowed[o] = true
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		switch {
		case allowAll:
			w.Header().Set("Access-Control-Allow-Origin", "*")
		case allowed[origin]:
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Add("Vary", "Origin")
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// observe records request count and latency by route pattern.
func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		metrics.HTTPRequests.WithLabelValues(route, strconv.Itoa(status)).Inc()
		metrics.HTTPLatency.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// limitWrites applies a per-client token bucket to mutating requests.
func (s *Server) limitWrites(next http.Handler) http.Handler {
	if s.writes == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.writes.allow(clientKey(r)) {
			w.Header().Set("Retry-After", "1")
			writeError(w, http.StatusTooManyRequests, "rate_limited", "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return strings.TrimSpace(r.RemoteAddr)
	}
	return host
}

// limiterSet holds one token bucket per client, dropped after idleTTL.
type limiterSet struct {
	mu      sync.Mutex
	limit   rate.Limit
	burst   int
	clients map[string]*clientLimiter
}

type clientLimiter struct {
	limiter *rate.Limiter
	seen    time.Time
}

const idleTTL = 5 * time.Minute

func newLimiterSet(limit rate.Limit, burst int) *limiterSet {
	return &limiterSet{limit: limit, burst: burst, clients: make(map[string]*clientLimiter)}
}

func (l *limiterSet) allow(key string) bool {
	now := time.Now()

	l.mu.Lock()
	for k, c := range l.clients {
		if now.Sub(c.seen) > idleTTL {
			delete(l.clients, k)
		}
	}
	c, ok := l.clients[key]
	if !ok {
		c = &clientLimiter{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.clients[key] = c
	}
	c.seen = now
	l.mu.Unlock()

	return c.limiter.AllowN(now, 1)
}
