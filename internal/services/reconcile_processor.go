package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"wallet/internal/cache"
	"wallet/internal/ledger"
	"wallet/internal/store"
)

// Auditor is the part of the ledger engine the processor drives.
type Auditor interface {
	Audit(ctx context.Context, accountID string) (ledger.Report, error)
	Reconcile(ctx context.Context, accountID string) (ledger.Report, error)
}

// KeyDeleter drops cached entries. Any cache.Cache satisfies it.
type KeyDeleter interface {
	Delete(ctx context.Context, keys ...string)
}

// ReconcileProcessorConfig holds configuration for the reconcile processor
type ReconcileProcessorConfig struct {
	// Interval is how often every account is audited (default: 1h)
	Interval time.Duration

	// Concurrency bounds parallel audits within a sweep (default: 4)
	Concurrency int

	// AutoRepair rewrites drifted aggregates instead of only reporting them
	AutoRepair bool
}

// DefaultReconcileProcessorConfig returns sensible defaults
func DefaultReconcileProcessorConfig() ReconcileProcessorConfig {
	return ReconcileProcessorConfig{
		Interval:    time.Hour,
		Concurrency: 4,
		AutoRepair:  false,
	}
}

// SweepResult counts the outcome of one sweep.
type SweepResult struct {
	Audited  int64
	Drifted  int64
	Repaired int64
	Failed   int64
}

// ReconcileProcessor periodically audits every account and optionally
// repairs drifted aggregates.
type ReconcileProcessor struct {
	accounts store.AccountStore
	auditor  Auditor
	config   ReconcileProcessorConfig
	cache    KeyDeleter

	// Lifecycle management
	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func NewReconcileProcessor(accounts store.AccountStore, auditor Auditor, config ReconcileProcessorConfig) *ReconcileProcessor {
	if config.Interval <= 0 {
		config.Interval = time.Hour
	}
	if config.Concurrency <= 0 {
		config.Concurrency = 1
	}
	return &ReconcileProcessor{accounts: accounts, auditor: auditor, config: config}
}

// WithCache makes repairs evict the account and its owner's account list
// from a cache shared with the API.
func (p *ReconcileProcessor) WithCache(c KeyDeleter) *ReconcileProcessor {
	p.cache = c
	return p
}

// Start begins the sweep loop. Returns an error if already running.
func (p *ReconcileProcessor) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("reconcile processor is already running")
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})
	p.mu.Unlock()

	go p.runLoop(ctx)

	slog.InfoContext(ctx, "Reconcile processor started",
		"interval", p.config.Interval,
		"concurrency", p.config.Concurrency,
		"auto_repair", p.config.AutoRepair)
	return nil
}

// Stop gracefully stops the processor and waits for the current sweep.
func (p *ReconcileProcessor) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	close(p.stopCh)

	select {
	case <-p.doneCh:
		slog.InfoContext(ctx, "Reconcile processor stopped gracefully")
	case <-ctx.Done():
		slog.WarnContext(ctx, "Reconcile processor stop timed out")
		return ctx.Err()
	}

	p.mu.Lock()
	p.running = false
	p.mu.Unlock()
	return nil
}

func (p *ReconcileProcessor) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *ReconcileProcessor) runLoop(ctx context.Context) {
	defer close(p.doneCh)

	ticker := time.NewTicker(p.config.Interval)
	defer ticker.Stop()

	p.sweepAndLog(ctx)
	for {
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.sweepAndLog(ctx)
		}
	}
}

func (p *ReconcileProcessor) sweepAndLog(ctx context.Context) {
	res, err := p.Sweep(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "Reconcile sweep failed", "error", err)
		return
	}
	level := slog.LevelDebug
	if res.Drifted > 0 || res.Failed > 0 {
		level = slog.LevelWarn
	}
	slog.Log(ctx, level, "Reconcile sweep finished",
		"audited", res.Audited,
		"drifted", res.Drifted,
		"repaired", res.Repaired,
		"failed", res.Failed)
}

// Sweep audits every account with bounded concurrency. A failing account is
// counted and logged; it never stops the sweep.
func (p *ReconcileProcessor) Sweep(ctx context.Context) (SweepResult, error) {
	accounts, err := p.accounts.ListAccounts(ctx, store.AccountQuery{})
	if err != nil {
		return SweepResult{}, fmt.Errorf("list accounts: %w", err)
	}

	var audited, drifted, repaired, failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.config.Concurrency)
	for _, a := range accounts {
		id := a.ID
		g.Go(func() error {
			rep, err := p.CheckAccount(gctx, id)
			audited.Add(1)
			if err != nil {
				failed.Add(1)
				slog.WarnContext(gctx, "Account audit failed", "account_id", id, "error", err)
				return nil
			}
			if rep.Drifted() || rep.Repaired {
				drifted.Add(1)
			}
			if rep.Repaired {
				repaired.Add(1)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return SweepResult{}, err
	}
	return SweepResult{
		Audited:  audited.Load(),
		Drifted:  drifted.Load(),
		Repaired: repaired.Load(),
		Failed:   failed.Load(),
	}, nil
}

// CheckAccount audits one account and repairs it when drifted and
// auto-repair is on.
func (p *ReconcileProcessor) CheckAccount(ctx context.Context, accountID string) (ledger.Report, error) {
	rep, err := p.auditor.Audit(ctx, accountID)
	if err != nil {
		return ledger.Report{}, err
	}
	if !rep.Drifted() {
		return rep, nil
	}
	slog.WarnContext(ctx, "Account aggregates drifted",
		"account_id", accountID,
		"stored_amount", rep.Account.Amount.String(),
		"expected_amount", rep.Expected.Amount.String(),
		"transactions", rep.Transactions)
	if !p.config.AutoRepair {
		return rep, nil
	}
	rep, err = p.auditor.Reconcile(ctx, accountID)
	if err != nil {
		return ledger.Report{}, err
	}
	if rep.Repaired && p.cache != nil {
		p.cache.Delete(ctx, cache.AccountKey(accountID), cache.AccountListKey(rep.Account.UserID))
	}
	return rep, nil
}
