package http

import (
	"context"
	"html/template"
	"io/fs"
	"net/http"
	"sync"
	"time"

	"vahan/internal/core"
	applog "vahan/internal/log"
	"vahan/internal/metrics"
	"vahan/internal/middleware/ratelimit"
	"vahan/internal/middleware/security"
	"vahan/internal/middleware/trace"
	"vahan/internal/services"
	appweb "vahan/web"
)

// Reports is the report surface the dashboard renders.
type Reports interface {
	Options(ctx context.Context) (core.Options, error)
	Report(ctx context.Context, q services.Query) (services.Report, error)
	Series(ctx context.Context, q services.Query, dims []core.Dimension) (core.GrowthSeries, error)
	Leaderboard(ctx context.Context, q services.Query, dims []core.Dimension) (core.Leaderboard, error)
	Invalidate(ctx context.Context) int
}

// ReadinessCheck reports whether a dependency can serve traffic.
type ReadinessCheck func(ctx context.Context) error

type Server struct {
	http.Server
	reports   Reports
	templates *template.Template
	parser    *QueryParser
	metrics   *metrics.Metrics
	logger    *applog.Logger

	securityDetector *security.Detector
	rateLimiter      *ratelimit.Limiter
	rateLimitConfig  ratelimit.Config
	checks           map[string]ReadinessCheck
	startedAt        time.Time

	shutdownOnce sync.Once
}

type Option func(*Server)

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

func WithLogger(l *applog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithReadinessCheck adds a named dependency check to /readyz.
func WithReadinessCheck(name string, check ReadinessCheck) Option {
	return func(s *Server) { s.checks[name] = check }
}

// WithRateLimit configures the limiter guarding cache invalidation.
func WithRateLimit(cfg ratelimit.Config) Option {
	return func(s *Server) { s.rateLimitConfig = cfg }
}

// NewServer configures routes and templates, returning a ready-to-run http.Server.
func NewServer(addr string, reports Reports, opts ...Option) *Server {
	s := &Server{
		reports:          reports,
		parser:           NewQueryParser(),
		securityDetector: security.NewDetector(),
		rateLimitConfig:  ratelimit.DefaultConfig(),
		checks:           make(map[string]ReadinessCheck),
		startedAt:        time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = applog.New(applog.DefaultConfig())
	}
	s.logger = s.logger.WithComponent(applog.ComponentHTTP)
	s.rateLimiter = ratelimit.NewLimiter(s.rateLimitConfig)

	// Parse embedded templates at startup.
	t, err := template.ParseFS(appweb.TemplatesFS, "templates/*.html")
	if err != nil {
		s.logger.WithComponent(applog.ComponentTemplate).Warn("Failed parsing templates", applog.FieldError, err)
	}
	s.templates = t

	mux := http.NewServeMux()
	s.routes(mux)

	tracer := trace.NewMiddleware(s.logger, s.metrics, s.securityDetector.ExtractClientIP)
	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig())
	handler := headers.Middleware(s.securityDetector.Middleware(tracer.Middleware(mux)))

	s.Server = http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

func (s *Server) routes(mux *http.ServeMux) {
	// Static assets (served from embedded FS)
	if sub, err := fs.Sub(appweb.StaticFS, "static"); err == nil {
		static := http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
		mux.Handle("GET /static/", security.StaticAssetMiddleware(3600)(static))
	} else {
		s.logger.Warn("Failed to mount embedded static FS", applog.FieldError, err)
	}

	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /ui/report", s.handleReportPartial)

	mux.HandleFunc("GET /api/options", s.handleOptions)
	mux.HandleFunc("GET /api/report", s.handleReport)
	mux.HandleFunc("GET /api/series", s.handleSeries)
	mux.HandleFunc("GET /api/latest", s.handleLatest)
	limit := s.rateLimiter.Middleware(s.securityDetector.ExtractClientIP, s.handleRateLimited, http.MethodPost)
	mux.Handle("POST /api/cache/invalidate", limit(http.HandlerFunc(s.handleInvalidate)))

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}
}

// Shutdown stops the rate limiter and gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.rateLimiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}
