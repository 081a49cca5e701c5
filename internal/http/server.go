// Package http exposes the ledger as a JSON API. Every response is a
// core.Response envelope; ledger error kinds choose the status code.
package http

import (
	"context"
	"fmt"
	"net/http"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"wallet/internal/cache"
	"wallet/internal/core"
	"wallet/internal/ledger"
	"wallet/internal/log"
	"wallet/internal/middleware/ratelimit"
	"wallet/internal/middleware/security"
	"wallet/internal/services"
	"wallet/internal/store"
)

type (
	// Ledger is the mutation surface of the ledger engine.
	Ledger interface {
		Record(ctx context.Context, in core.TransactionInput) (core.Transaction, error)
		Amend(ctx context.Context, id string, patch core.TransactionPatch) (core.Transaction, error)
		Remove(ctx context.Context, id, accountID string) error
		Reconcile(ctx context.Context, accountID string) (ledger.Report, error)
	}

	Accounts interface {
		Create(ctx context.Context, in services.NewAccount) (core.Account, error)
		Update(ctx context.Context, id string, p services.AccountPatch) (core.Account, error)
		Delete(ctx context.Context, id string) (int, error)
		Get(ctx context.Context, id string) (core.Account, error)
		List(ctx context.Context, userID string) ([]core.Account, error)
	}

	Stats interface {
		Stats(ctx context.Context, userID string, p core.Period) (core.Stats, error)
	}

	// Transactions is the read side used for listings and ownership checks.
	Transactions interface {
		GetTransaction(ctx context.Context, id string) (core.Transaction, error)
		ListTransactions(ctx context.Context, q store.TransactionQuery) ([]core.Transaction, error)
	}

	Pinger interface {
		Ping(ctx context.Context) error
	}
)

// Config holds the transport settings of the API.
type Config struct {
	Addr               string
	RateLimitPerMinute int
	TrustedProxies     []string
	BlockSuspicious    bool
}

// Deps are the collaborators behind the API. Caches are optional.
type Deps struct {
	Ledger       Ledger
	Accounts     Accounts
	Stats        Stats
	Transactions Transactions
	Health       Pinger
	AccountCache cache.Cache[core.Account]
	ListCache    cache.Cache[[]core.Account]
	Logger       *log.Logger
}

type appMetrics struct {
	recorded    atomic.Int64
	amended     atomic.Int64
	removed     atomic.Int64
	reconciled  atomic.Int64
	cacheHits   atomic.Int64
	cacheMisses atomic.Int64
	panics      atomic.Int64
}

type Server struct {
	http.Server
	deps     Deps
	logger   *log.Logger
	limiter  *ratelimit.Limiter
	detector *security.Detector
	metrics  appMetrics
	started  time.Time

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(cfg Config, deps Deps) (*Server, error) {
	detector, err := security.NewDetector(cfg.BlockSuspicious, cfg.TrustedProxies...)
	if err != nil {
		return nil, fmt.Errorf("security detector: %w", err)
	}
	logger := deps.Logger
	if logger == nil {
		logger = log.Discard()
	}
	logger = logger.WithComponent(log.ComponentHTTP)

	s := &Server{
		deps:     deps,
		logger:   logger,
		limiter:  ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: cfg.RateLimitPerMinute}),
		detector: detector,
		started:  time.Now(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /metrics", s.handleMetrics)

	mux.HandleFunc("POST /transactions", s.handleRecord)
	mux.HandleFunc("GET /transactions", s.handleListTransactions)
	mux.HandleFunc("PATCH /transactions/{id}", s.handleAmend)
	mux.HandleFunc("DELETE /transactions/{id}", s.handleRemove)

	mux.HandleFunc("POST /accounts", s.handleCreateAccount)
	mux.HandleFunc("GET /accounts", s.handleListAccounts)
	mux.HandleFunc("GET /accounts/{id}", s.handleGetAccount)
	mux.HandleFunc("PATCH /accounts/{id}", s.handleUpdateAccount)
	mux.HandleFunc("DELETE /accounts/{id}", s.handleDeleteAccount)
	mux.HandleFunc("POST /accounts/{id}/reconcile", s.handleReconcile)

	mux.HandleFunc("GET /stats/{period}", s.handleStats)

	tooMany := func(w http.ResponseWriter, r *http.Request) {
		s.logger.WarnContext(r.Context(), "Rate limit exceeded", log.FieldClientIP, detector.ClientIP(r))
		writeJSON(w, http.StatusTooManyRequests, core.Response{Msg: "rate limit exceeded, try again later"})
	}
	forbidden := func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusForbidden, core.Response{Msg: "forbidden"})
	}

	var h http.Handler = mux
	h = s.limiter.Middleware(detector.ClientIP, tooMany)(h)
	h = detector.Middleware(forbidden)(h)
	h = security.Headers(security.DefaultHeadersConfig())(h)
	h = s.recoverer(h)
	h = log.Middleware(logger, detector.ClientIP)(h)

	s.Server = http.Server{
		Addr:              cfg.Addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}
	return s, nil
}

// recoverer turns a handler panic into a 500 envelope.
func (s *Server) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if v := recover(); v != nil {
				if v == http.ErrAbortHandler {
					panic(v)
				}
				s.metrics.panics.Add(1)
				log.FromContext(r.Context()).ErrorContext(r.Context(), "Handler panic",
					"panic", fmt.Sprint(v),
					"stack", string(debug.Stack()))
				writeJSON(w, http.StatusInternalServerError, core.Response{Msg: "internal error"})
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// Shutdown gracefully shuts down the server and its background routines.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		err = s.Server.Shutdown(ctx)
	})
	return err
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeOK(w, http.StatusOK, "ok", map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"uptime":    time.Since(s.started).Round(time.Second).String(),
	})
}

// handleReady checks the store is reachable.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := map[string]string{"store": "ok"}
	if s.deps.Health == nil {
		checks["store"] = "not_configured"
	} else if err := s.deps.Health.Ping(ctx); err != nil {
		checks["store"] = "failed: " + err.Error()
		writeJSON(w, http.StatusServiceUnavailable, core.Response{Msg: "not ready", Kind: core.KindUnavailable, Data: checks})
		return
	}
	writeOK(w, http.StatusOK, "ready", checks)
}

// handleMetrics writes counters in Prometheus text format.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
	rl := s.limiter.GetMetrics()
	sec := s.detector.GetMetrics()

	counter := func(name, help string, v int64) {
		fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s counter\n%s %d\n\n", name, help, name, name, v)
	}
	counter("ledger_transactions_recorded_total", "Transactions recorded", s.metrics.recorded.Load())
	counter("ledger_transactions_amended_total", "Transactions amended", s.metrics.amended.Load())
	counter("ledger_transactions_removed_total", "Transactions removed", s.metrics.removed.Load())
	counter("ledger_accounts_reconciled_total", "Manual account reconciliations", s.metrics.reconciled.Load())
	counter("cache_hits_total", "Account cache hits", s.metrics.cacheHits.Load())
	counter("cache_misses_total", "Account cache misses", s.metrics.cacheMisses.Load())
	counter("rate_limit_hits_total", "Requests rejected by the rate limiter", rl.TotalHits)
	counter("suspicious_requests_total", "Requests flagged as suspicious", sec.SuspiciousRequests)
	counter("http_panics_total", "Recovered handler panics", s.metrics.panics.Load())

	fmt.Fprintf(w, "# HELP active_rate_limit_clients Currently tracked rate limit clients\n")
	fmt.Fprintf(w, "# TYPE active_rate_limit_clients gauge\n")
	fmt.Fprintf(w, "active_rate_limit_clients %d\n\n", rl.ClientCount)
	fmt.Fprintf(w, "# HELP uptime_seconds Application uptime in seconds\n")
	fmt.Fprintf(w, "# TYPE uptime_seconds gauge\n")
	fmt.Fprintf(w, "uptime_seconds %.0f\n", time.Since(s.started).Seconds())
}

// invalidate drops cached reads of the given accounts and of user's list.
func (s *Server) invalidate(ctx context.Context, user string, accountIDs ...string) {
	keys := make([]string, 0, len(accountIDs))
	for _, id := range accountIDs {
		if id != "" {
			keys = append(keys, cache.AccountKey(id))
		}
	}
	if s.deps.AccountCache != nil && len(keys) > 0 {
		s.deps.AccountCache.Delete(ctx, keys...)
	}
	if s.deps.ListCache != nil && user != "" {
		s.deps.ListCache.Delete(ctx, cache.AccountListKey(user))
	}
}
