package http

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"sync"
	"time"

	"ledger/internal/core"
	"ledger/internal/ledger"
	"ledger/internal/log"
	"ledger/internal/middleware/ratelimit"
	"ledger/internal/middleware/security"
	"ledger/internal/middleware/trace"
	appweb "ledger/web"
)

// Ledger is what the handlers need from the store.
type Ledger interface {
	Add(ctx context.Context, amount, description string) (core.Record, error)
	Delete(ctx context.Context, id int64) error
	ToggleEdit(id int64) bool
	SaveEdit(ctx context.Context, id int64, amount, description string) (core.Record, error)
	ClearAll(ctx context.Context) error
	Snapshot() ledger.Snapshot
}

var _ Ledger = (*ledger.Store)(nil)

// Options tune the server; zero values fall back to defaults.
type Options struct {
	CurrencySymbol     string
	RateLimitPerMinute int
	Logger             *log.Logger
	// ReadyCheck backs /readyz; nil means always ready.
	ReadyCheck func(ctx context.Context) error
}

type Server struct {
	http.Server
	ledger    Ledger
	templates *template.Template
	currency  string
	logger    *log.Logger
	ready     func(ctx context.Context) error

	limiter  *ratelimit.Limiter
	detector *security.Detector
	tracer   *trace.Middleware

	shutdownOnce sync.Once
}

// NewServer configures routes, middleware and templates, returning a
// ready-to-run server.
func NewServer(addr string, l Ledger, opts Options) (*Server, error) {
	if l == nil {
		return nil, errors.New("ledger is required")
	}
	if opts.CurrencySymbol == "" {
		opts.CurrencySymbol = "¥"
	}
	if opts.Logger == nil {
		opts.Logger = log.New(log.DefaultConfig())
	}
	logger := opts.Logger.WithComponent(log.ComponentHTTP)

	t, err := template.ParseFS(appweb.TemplatesFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}

	s := &Server{
		Server: http.Server{
			Addr:              addr,
			ReadTimeout:       10 * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      10 * time.Second,
			IdleTimeout:       60 * time.Second,
			MaxHeaderBytes:    1 << 16,
		},
		ledger:    l,
		templates: t,
		currency:  opts.CurrencySymbol,
		logger:    logger,
		ready:     opts.ReadyCheck,
		limiter:   ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: opts.RateLimitPerMinute}),
		detector:  security.NewDetector(),
	}
	s.tracer = trace.NewMiddleware(logger, s.detector.ExtractClientIP, s.detector.Suspicious)

	mux := http.NewServeMux()

	sub, err := fs.Sub(appweb.StaticFS, "static")
	if err != nil {
		return nil, fmt.Errorf("mount static assets: %w", err)
	}
	static := http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
	mux.Handle("GET /static/", security.StaticAssetMiddleware(3600)(static))

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)

	pages := http.NewServeMux()
	pages.HandleFunc("GET /{$}", s.handleIndex)
	pages.HandleFunc("GET /ui/ledger", s.handleLedgerPartial)
	pages.HandleFunc("POST /expenses", s.handleAdd)
	pages.HandleFunc("POST /expenses/clear", s.handleClear)
	pages.HandleFunc("POST /expenses/{id}/edit", s.handleToggleEdit)
	pages.HandleFunc("POST /expenses/{id}", s.handleSaveEdit)
	pages.HandleFunc("DELETE /expenses/{id}", s.handleDelete)
	pages.HandleFunc("POST /expenses/{id}/delete", s.handleDelete)
	pages.HandleFunc("GET /api/expenses", s.handleAPIList)
	pages.HandleFunc("GET /api/total", s.handleAPITotal)
	mux.Handle("/", security.NoStore(pages))

	limited := s.limiter.Middleware(s.detector.ExtractClientIP, s.onRateLimited)(mux)
	s.Handler = s.tracer.Handler(security.Headers(security.DefaultHeadersConfig())(limited))
	return s, nil
}

func (s *Server) onRateLimited(w http.ResponseWriter, r *http.Request) {
	log.FromContext(r.Context()).WarnContext(r.Context(), "Rate limit exceeded",
		log.FieldClientIP, s.detector.ExtractClientIP(r),
		log.FieldMethod, r.Method,
		log.FieldPath, r.URL.Path)
	TooManyRequestsError("Too many changes, slow down a little.").Write(w)
}

// Shutdown stops background goroutines and drains the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		err = s.Server.Shutdown(ctx)
	})
	return err
}

// Stats exposes the request counters collected by the trace middleware.
func (s *Server) Stats() trace.Stats {
	return s.tracer.Stats()
}
