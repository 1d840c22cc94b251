package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"subtrack/internal/cache"
	"subtrack/internal/engine"
)

// VersionSource reports a token that changes whenever the underlying
// store changes. It keys the derived-view cache.
type VersionSource interface {
	SnapshotVersion(ctx context.Context) (string, error)
}

// Options tune the server. Zero values fall back to defaults.
type Options struct {
	HorizonMonths int
	WindowDays    int
	CacheSize     int
	CacheTTL      time.Duration
	RateLimit     int
	// Clock supplies "now" for every request. Tests pin it.
	Clock func() time.Time
}

func (o *Options) fillDefaults() {
	if o.HorizonMonths <= 0 {
		o.HorizonMonths = engine.DefaultHorizonMonths
	}
	if o.WindowDays <= 0 {
		o.WindowDays = engine.DefaultUpcomingWindowDays
	}
	if o.CacheSize <= 0 {
		o.CacheSize = 256
	}
	if o.CacheTTL <= 0 {
		o.CacheTTL = 5 * time.Minute
	}
	if o.RateLimit <= 0 {
		o.RateLimit = 60
	}
	if o.Clock == nil {
		o.Clock = time.Now
	}
}

// Server exposes the derived views over a JSON API, with rendered
// results cached per snapshot version.
type Server struct {
	http.Server

	engine   *engine.Engine
	versions VersionSource
	writer   *writeAPI

	opts         Options
	rateLimiter  *rateLimiter
	viewCache    *cache.LRUCache[[]byte]
	cacheManager *cache.Manager
	shutdownOnce sync.Once
}

// NewServer configures routes and caches, returning a ready-to-run
// server. writer may be nil, in which case mutating endpoints answer
// 503.
func NewServer(addr string, eng *engine.Engine, versions VersionSource, writer SubscriptionWriter, opts Options) *Server {
	opts.fillDefaults()

	mux := http.NewServeMux()
	s := &Server{
		Server: http.Server{
			Addr:    addr,
			Handler: mux,
		},
		engine:       eng,
		versions:     versions,
		opts:         opts,
		rateLimiter:  newRateLimiter(opts.RateLimit),
		viewCache:    cache.NewLRUCache[[]byte](opts.CacheSize, opts.CacheTTL),
		cacheManager: cache.NewManager(),
	}
	if writer != nil {
		s.writer = &writeAPI{server: s, writer: writer}
	}
	s.cacheManager.Register(s.viewCache)
	s.cacheManager.StartCleanup(10 * time.Minute)

	mux.HandleFunc("/healthz", handleHealth)
	mux.HandleFunc("/readyz", s.handleReady)

	mux.HandleFunc("/api/dashboard", s.withObservability(s.handleDashboard))
	mux.HandleFunc("/api/categories", s.withObservability(s.handleCategories))
	mux.HandleFunc("/api/projection", s.withObservability(s.handleProjection))
	mux.HandleFunc("/api/peaks", s.withObservability(s.handlePeakMonths))
	mux.HandleFunc("/api/trends", s.withObservability(s.handleTrends))
	mux.HandleFunc("/api/timeline", s.withObservability(s.handleTimeline))
	mux.HandleFunc("/api/upcoming", s.withObservability(s.handleUpcoming))
	mux.HandleFunc("/api/calendar", s.withObservability(s.handleCalendar))

	mux.HandleFunc("/api/export/categories.csv", s.withObservability(s.handleExportCategories))
	mux.HandleFunc("/api/export/projection.csv", s.withObservability(s.handleExportProjection))
	mux.HandleFunc("/api/export/timeline.csv", s.withObservability(s.handleExportTimeline))
	mux.HandleFunc("/api/export/upcoming.csv", s.withObservability(s.handleExportUpcoming))

	mux.HandleFunc("/api/subscriptions", s.withObservability(s.handleSubscriptions))
	mux.HandleFunc("/api/actions", s.withObservability(s.handleRecordAction))

	return s
}

// InvalidateViews drops every cached rendered view. Wired to the AMQP
// invalidation consumer.
func (s *Server) InvalidateViews() {
	s.cacheManager.PurgeAll()
}

// Shutdown stops the HTTP server and the cache and limiter cleanup
// goroutines.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.cacheManager.Stop()
		s.rateLimiter.stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

// withObservability adds request IDs, security headers, rate limiting
// for mutating methods, and request logging.
func (s *Server) withObservability(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		clientIP := r.Header.Get("X-Forwarded-For")
		if clientIP == "" {
			clientIP = r.Header.Get("X-Real-IP")
		}
		if clientIP == "" {
			clientIP = r.RemoteAddr
		}

		requestID := generateRequestID()
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		slog.InfoContext(ctx, "Request started",
			"request_id", requestID,
			"method", r.Method,
			"url", r.URL.Path,
			"client_ip", clientIP)

		if r.Method != http.MethodGet && !s.rateLimiter.allow(clientIP) {
			slog.WarnContext(ctx, "Rate limit exceeded", "client_ip", clientIP, "method", r.Method, "url", r.URL.Path)
			w.Header().Set("Retry-After", "60")
			writeJSONError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}

		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next(rw, r)

		slog.InfoContext(ctx, "Request completed",
			"request_id", requestID,
			"method", r.Method,
			"url", r.URL.Path,
			"status", rw.statusCode,
			"duration_ms", time.Since(start).Milliseconds())
	}
}

type requestIDKey struct{}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if _, err := s.versions.SnapshotVersion(r.Context()); err != nil {
		writeJSONError(w, http.StatusServiceUnavailable, "store not reachable")
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

// serveView renders one derived view, serving from the rendered-JSON
// cache when the store version and parameters match a previous request.
func (s *Server) serveView(w http.ResponseWriter, r *http.Request, view string, params []string, compute func(snap *engine.Snapshot, now time.Time) (any, error)) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	ctx := r.Context()
	now := s.opts.Clock()

	key := ""
	version, err := s.versions.SnapshotVersion(ctx)
	if err != nil {
		slog.WarnContext(ctx, "Snapshot version unavailable, bypassing cache", "error", err)
	} else {
		key = cache.ViewKey(version, view, params...)
		if body, ok := s.viewCache.Get(key); ok {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("X-Cache", "HIT")
			_, _ = w.Write(body)
			return
		}
	}

	snap, err := s.engine.Snapshot(ctx, now)
	if err != nil {
		slog.ErrorContext(ctx, "Snapshot failed", "view", view, "error", err)
		writeJSONError(w, http.StatusInternalServerError, "snapshot failed")
		return
	}
	result, err := compute(snap, now)
	if err != nil {
		slog.ErrorContext(ctx, "View computation failed", "view", view, "error", err)
		writeJSONError(w, http.StatusInternalServerError, "view computation failed")
		return
	}

	body, err := json.Marshal(result)
	if err != nil {
		slog.ErrorContext(ctx, "View encoding failed", "view", view, "error", err)
		writeJSONError(w, http.StatusInternalServerError, "view encoding failed")
		return
	}
	if key != "" {
		s.viewCache.Set(key, body)
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Cache", "MISS")
	_, _ = w.Write(body)
}
