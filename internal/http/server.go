package http

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"lodge/internal/auth"
	"lodge/internal/cache"
	"lodge/internal/core"
	applog "lodge/internal/log"
	"lodge/internal/middleware/ratelimit"
	"lodge/internal/middleware/security"
	"lodge/internal/middleware/trace"
	"lodge/internal/services"
)

// Pinger reports whether the persistence backend is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Services groups the use cases the API exposes.
type Services struct {
	Roster  *services.RosterService
	Dues    *services.DuesService
	Cash    *services.CashService
	Reports *services.ReportService
	Polls   *services.PollService
}

// Config carries the server wiring that is not a use case.
type Config struct {
	Addr     string
	Verifier *auth.Verifier
	Logger   *applog.Logger
	// Pinger is optional; without it readiness only checks the server itself.
	Pinger         Pinger
	Formatter      core.Formatter
	RateLimit      ratelimit.Config
	CacheTTL       time.Duration
	TrustedProxies []string
}

// cashMonth is the cached payload of GET /api/cash.
type cashMonth struct {
	Balance   core.CashBalance
	Movements []core.CashMovement
}

type Server struct {
	http.Server
	svc      Services
	verifier *auth.Verifier
	logger   *applog.Logger
	pinger   Pinger
	presenter

	rateLimiter      *ratelimit.Limiter
	securityDetector *security.Detector
	securityHeaders  *security.HeadersMiddleware
	traceMiddleware  *trace.Middleware

	// Report caches with eviction policy, keyed by year first so a write
	// can drop every entry of its year.
	balanceCache *cache.LRUCache[cashMonth]
	yearCache    *cache.LRUCache[[]core.CashBalance]
	overdueCache *cache.LRUCache[services.OverdueReport]
	cacheManager *cache.Manager

	// cacheGen counts invalidations; a read that started before one must
	// not refill the caches with what it loaded.
	cacheMu  sync.Mutex
	cacheGen uint64

	appMetrics   appMetrics
	shutdownOnce sync.Once
}

type appMetrics struct {
	uptime        time.Time
	duesBatches   atomic.Int64
	cashMovements atomic.Int64
	votes         atomic.Int64
	exports       atomic.Int64
	cacheHits     atomic.Int64
	cacheMisses   atomic.Int64
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(cfg Config, svc Services) (*Server, error) {
	if cfg.Verifier == nil {
		return nil, fmt.Errorf("token verifier is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = applog.New(applog.DefaultConfig())
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 5 * time.Minute
	}

	detector := security.NewDetector()
	for _, cidr := range cfg.TrustedProxies {
		if err := detector.AddTrustedProxy(cidr); err != nil {
			return nil, fmt.Errorf("trusted proxy: %w", err)
		}
	}

	mux := http.NewServeMux()
	s := &Server{
		Server: http.Server{
			Addr:              cfg.Addr,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      60 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
		svc:              svc,
		verifier:         cfg.Verifier,
		logger:           cfg.Logger,
		pinger:           cfg.Pinger,
		presenter:        presenter{formatter: cfg.Formatter, now: time.Now},
		rateLimiter:      ratelimit.NewLimiter(cfg.RateLimit),
		securityDetector: detector,
		securityHeaders:  security.NewHeadersMiddleware(security.DefaultHeadersConfig()),
		traceMiddleware:  trace.NewMiddleware(),
		balanceCache:     cache.NewLRUCache[cashMonth](100, cfg.CacheTTL),
		yearCache:        cache.NewLRUCache[[]core.CashBalance](20, cfg.CacheTTL),
		overdueCache:     cache.NewLRUCache[services.OverdueReport](1, cfg.CacheTTL),
		cacheManager:     cache.NewManager(),
	}
	s.appMetrics.uptime = time.Now()

	s.cacheManager.Register(s.balanceCache)
	s.cacheManager.Register(s.yearCache)
	s.cacheManager.Register(s.overdueCache)
	s.cacheManager.StartCleanup(10 * time.Minute)

	s.routes(mux)
	s.Handler = s.chain(mux)
	return s, nil
}

func (s *Server) routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /metrics", s.handleMetrics)

	api := http.NewServeMux()

	api.HandleFunc("GET /api/members", s.handleListMembers)
	api.HandleFunc("POST /api/members", s.handleCreateMember)
	api.HandleFunc("GET /api/members/{id}", s.handleGetMember)
	api.HandleFunc("PUT /api/members/{id}", s.handleUpdateMember)
	api.HandleFunc("DELETE /api/members/{id}", s.handleDeleteMember)
	api.HandleFunc("GET /api/members/{id}/profile", s.handleMemberProfile)

	api.HandleFunc("GET /api/sessions", s.handleListSessions)
	api.HandleFunc("POST /api/sessions", s.handleCreateSession)
	api.HandleFunc("GET /api/sessions/{id}", s.handleGetSession)
	api.HandleFunc("PUT /api/sessions/{id}", s.handleUpdateSession)
	api.HandleFunc("DELETE /api/sessions/{id}", s.handleDeleteSession)
	api.HandleFunc("GET /api/sessions/{id}/attendance", s.handleSessionAttendance)
	api.HandleFunc("PUT /api/sessions/{id}/attendance", s.handleSetAttendance)

	api.HandleFunc("GET /api/reports/attendance", s.handleAttendanceReport)
	api.HandleFunc("GET /api/reports/alerts", s.handleAbsenceAlerts)
	api.HandleFunc("GET /api/reports/overdue", s.handleOverdueReport)
	api.HandleFunc("GET /api/reports/payments", s.handlePaymentReport)

	api.HandleFunc("GET /api/dues", s.handleListDues)
	api.HandleFunc("POST /api/dues/batch", s.handleCreateDuesBatch)
	api.HandleFunc("POST /api/dues/{id}/pay", s.handleMarkPaid)
	api.HandleFunc("GET /api/dues/grid", s.handleDuesGrid)
	api.HandleFunc("GET /api/fee", s.handleCurrentFee)

	api.HandleFunc("GET /api/cash", s.handleCashMonth)
	api.HandleFunc("POST /api/cash", s.handleRecordMovement)
	api.HandleFunc("GET /api/cash/year", s.handleCashYear)

	api.HandleFunc("GET /api/polls", s.handleListPolls)
	api.HandleFunc("POST /api/polls", s.handleCreatePoll)
	api.HandleFunc("GET /api/polls/{id}", s.handlePollResults)
	api.HandleFunc("POST /api/polls/{id}/votes", s.handleVote)

	api.HandleFunc("GET /api/export/{file}", s.handleExport)

	protected := auth.Middleware(s.verifier)(s.withRequestScope(api))
	mux.Handle("/api/", protected)
}

// chain wraps the mux with the outer middleware, outermost first.
func (s *Server) chain(next http.Handler) http.Handler {
	h := s.rateLimiter.Middleware(s.securityDetector.ExtractClientIP, s.handleRateLimited)(next)
	h = s.securityDetector.Middleware(h)
	h = s.securityHeaders.Middleware(h)
	h = applog.Middleware(s.logger, trace.FromRequest)(h)
	return s.traceMiddleware.Middleware(h)
}

// withRequestScope gives each authenticated request its own capability
// cache so role lookups happen at most once per member per request.
func (s *Server) withRequestScope(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := services.WithCapabilityCache(r.Context())
		if id, ok := auth.FromContext(ctx); ok {
			ctx = applog.WithLogger(ctx, applog.FromContext(ctx).With(applog.FieldActor, id.MemberID))
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) handleRateLimited(w http.ResponseWriter, r *http.Request) {
	applog.FromContext(r.Context()).WarnContext(r.Context(), "Rate limit exceeded",
		applog.FieldClientIP, s.securityDetector.ExtractClientIP(r),
		applog.FieldPath, r.URL.Path)
	ErrorResponse(http.StatusTooManyRequests, "rate limit exceeded").Write(w)
}

// actor returns the authenticated member id. Routes under /api/ always
// carry an identity; zero never passes an authorization check.
func actor(r *http.Request) int64 {
	id, _ := auth.FromContext(r.Context())
	return id.MemberID
}

func (s *Server) invalidateCash(year int) {
	prefix := fmt.Sprintf("%04d", year)
	s.cacheMu.Lock()
	s.cacheGen++
	n := s.balanceCache.DeletePrefix(prefix) + s.yearCache.DeletePrefix(prefix)
	s.cacheMu.Unlock()
	if n > 0 {
		s.logger.Debug("Cash caches invalidated", applog.FieldYear, year, "entries", n)
	}
}

func (s *Server) invalidateOverdue() {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	s.cacheGen++
	s.overdueCache.DeletePrefix("")
}

// cacheGeneration is read before loading data that will be cached.
func (s *Server) cacheGeneration() uint64 {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	return s.cacheGen
}

// storeIfCurrent runs set unless an invalidation happened since gen.
func (s *Server) storeIfCurrent(gen uint64, set func()) bool {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	if s.cacheGen != gen {
		return false
	}
	set()
	return true
}

// Shutdown stops the background goroutines and then the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.cacheManager.Stop()
		s.rateLimiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}
