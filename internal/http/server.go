// Package http exposes the ledger as a JSON API: reference data, transactions,
// recurring templates, statistics and exports.
package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"fintrack/internal/cache"
	"fintrack/internal/core"
	"fintrack/internal/log"
	"fintrack/internal/middleware/ratelimit"
	"fintrack/internal/middleware/security"
	"fintrack/internal/middleware/trace"
	"fintrack/internal/services"
	"fintrack/internal/state"
	"fintrack/internal/stats"
	"fintrack/internal/storage"
)

const (
	statsCacheSize = 200
	statsCacheTTL  = 10 * time.Minute
	requestTimeout = 15 * time.Second
)

// TransactionStore reads transactions beyond the cached window.
type TransactionStore interface {
	GetWithDetails(ctx context.Context, id string) (core.TransactionWithDetails, error)
	ListWithDetails(ctx context.Context, limit int) ([]core.TransactionWithDetails, error)
	ListByType(ctx context.Context, typ core.TransactionType, limit int) ([]core.Transaction, error)
	ListByDateRange(ctx context.Context, rng storage.DateRange) ([]core.Transaction, error)
	TotalByType(ctx context.Context, typ core.TransactionType, rng *storage.DateRange) (decimal.Decimal, error)
}

// Pinger reports whether the database is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the collaborators a Server serves requests with.
type Deps struct {
	State        *state.State
	Ledger       *services.Ledger
	Processor    services.DueProcessor
	Transactions TransactionStore
	DB           Pinger
	Logger       *log.Logger

	RateLimitPerMinute int
	// Now defaults to time.Now.
	Now func() time.Time
}

type Server struct {
	http.Server

	state        *state.State
	ledger       *services.Ledger
	processor    services.DueProcessor
	transactions TransactionStore
	db           Pinger
	logger       *log.Logger
	now          func() time.Time
	started      time.Time

	monthlyCache  *cache.LRUCache[stats.MonthlyStats]
	categoryCache *cache.LRUCache[[]stats.CategoryStat]
	trendCache    *cache.LRUCache[[]stats.TrendPoint]
	cacheManager  *cache.Manager

	rateLimiter *ratelimit.Limiter
	detector    *security.Detector
	tracer      *trace.Middleware

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run http.Server.
func NewServer(addr string, deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = log.FromContext(context.Background())
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}

	s := &Server{
		state:         deps.State,
		ledger:        deps.Ledger,
		processor:     deps.Processor,
		transactions:  deps.Transactions,
		db:            deps.DB,
		logger:        logger.WithComponent(log.ComponentHTTP),
		now:           now,
		started:       now(),
		monthlyCache:  cache.NewLRUCache[stats.MonthlyStats](statsCacheSize, statsCacheTTL),
		categoryCache: cache.NewLRUCache[[]stats.CategoryStat](statsCacheSize, statsCacheTTL),
		trendCache:    cache.NewLRUCache[[]stats.TrendPoint](statsCacheSize, statsCacheTTL),
		cacheManager:  cache.NewManager(logger),
		rateLimiter: ratelimit.NewLimiter(ratelimit.Config{
			RequestsPerMinute: deps.RateLimitPerMinute,
		}, logger),
		detector: security.NewDetector(logger),
	}
	s.tracer = trace.NewMiddleware(logger, s.detector.ClientIP)

	s.cacheManager.Register(s.monthlyCache)
	s.cacheManager.Register(s.categoryCache)
	s.cacheManager.Register(s.trendCache)
	s.cacheManager.StartCleanup(statsCacheTTL)

	mux := http.NewServeMux()
	s.routes(mux)

	limited := s.rateLimiter.Middleware(s.detector.ClientIP, func(w http.ResponseWriter, r *http.Request) {
		ErrorResponse(http.StatusTooManyRequests, "rate limit exceeded").Write(w)
	})
	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig())

	s.Server = http.Server{
		Addr:              addr,
		Handler:           s.tracer.Middleware(s.detector.Middleware(headers.Middleware(limitWrites(limited, mux)))),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

func (s *Server) routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /metrics", s.handleMetrics)

	mux.HandleFunc("GET /api/state", s.handleState)
	mux.HandleFunc("GET /api/currencies", s.handleCurrencies)
	mux.HandleFunc("GET /api/settings", s.handleGetSettings)
	mux.HandleFunc("PUT /api/settings", s.handleUpdateSettings)

	mux.HandleFunc("GET /api/categories", s.handleListCategories)
	mux.HandleFunc("POST /api/categories", s.handleCreateCategory)
	mux.HandleFunc("PATCH /api/categories/{id}", s.handleUpdateCategory)
	mux.HandleFunc("DELETE /api/categories/{id}", s.handleDeleteCategory)

	mux.HandleFunc("GET /api/payment-methods", s.handleListPaymentMethods)
	mux.HandleFunc("POST /api/payment-methods", s.handleCreatePaymentMethod)
	mux.HandleFunc("PATCH /api/payment-methods/{id}", s.handleUpdatePaymentMethod)
	mux.HandleFunc("DELETE /api/payment-methods/{id}", s.handleDeletePaymentMethod)

	mux.HandleFunc("GET /api/transactions", s.handleListTransactions)
	mux.HandleFunc("POST /api/transactions", s.handleCreateTransaction)
	mux.HandleFunc("GET /api/transactions/{id}", s.handleGetTransaction)
	mux.HandleFunc("PATCH /api/transactions/{id}", s.handleUpdateTransaction)
	mux.HandleFunc("DELETE /api/transactions/{id}", s.handleDeleteTransaction)

	mux.HandleFunc("GET /api/recurring", s.handleListRecurring)
	mux.HandleFunc("POST /api/recurring", s.handleCreateRecurring)
	mux.HandleFunc("PATCH /api/recurring/{id}", s.handleUpdateRecurring)
	mux.HandleFunc("DELETE /api/recurring/{id}", s.handleDeleteRecurring)
	mux.HandleFunc("POST /api/recurring/process", s.handleProcessRecurring)

	mux.HandleFunc("GET /api/stats/monthly", s.handleMonthlyStats)
	mux.HandleFunc("GET /api/stats/categories", s.handleCategoryStats)
	mux.HandleFunc("GET /api/stats/balance", s.handleBalance)
	mux.HandleFunc("GET /api/stats/trend", s.handleTrend)
	mux.HandleFunc("GET /api/export", s.handleExport)
}

// limitWrites sends mutating requests through limited and everything else
// straight to next.
func limitWrites(limited func(http.Handler) http.Handler, next http.Handler) http.Handler {
	guarded := limited(next)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			next.ServeHTTP(w, r)
		default:
			guarded.ServeHTTP(w, r)
		}
	})
}

// requestContext bounds handler work that touches storage.
func (s *Server) requestContext(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), requestTimeout)
}

// Shutdown gracefully shuts down the server and its background routines.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.cacheManager.Stop()
		s.rateLimiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}
