package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"conti/internal/ledger"
)

// LimitResetConfig holds configuration for the limit reset processor.
type LimitResetConfig struct {
	// Interval is how often rollover is checked (default: 1m).
	Interval time.Duration

	// Location is the time zone windows roll over in (default: UTC).
	Location *time.Location
}

func DefaultLimitResetConfig() LimitResetConfig {
	return LimitResetConfig{
		Interval: time.Minute,
		Location: time.UTC,
	}
}

// ResetSummary reports what one ResetDue pass did.
type ResetSummary struct {
	DailyReset      bool
	DailyAccounts   int64
	MonthlyReset    bool
	MonthlyAccounts int64
}

// LimitResetProcessor zeroes daily and monthly limit usage when their window
// rolls over. It is the external scheduler the engine relies on.
type LimitResetProcessor struct {
	store    ledger.LimitResetter
	config   LimitResetConfig
	checkers map[LimitScope]ResetChecker
	now      func() time.Time

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func NewLimitResetProcessor(store ledger.LimitResetter, config LimitResetConfig) *LimitResetProcessor {
	if config.Interval <= 0 {
		config.Interval = DefaultLimitResetConfig().Interval
	}
	checkers := make(map[LimitScope]ResetChecker, 2)
	for _, scope := range []LimitScope{ScopeDaily, ScopeMonthly} {
		checkers[scope], _ = GetResetChecker(scope)
	}
	if config.Location != nil {
		checkers[ScopeDaily] = DailyReset{Location: config.Location}
		checkers[ScopeMonthly] = MonthlyReset{Location: config.Location}
	}
	return &LimitResetProcessor{
		store:    store,
		config:   config,
		checkers: checkers,
		now:      time.Now,
	}
}

// ResetDue resets every scope whose window rolled over since its last reset.
func (p *LimitResetProcessor) ResetDue(ctx context.Context, now time.Time) (ResetSummary, error) {
	if p.store == nil {
		return ResetSummary{}, fmt.Errorf("limit reset processor not properly initialized")
	}

	lastDaily, lastMonthly, err := p.store.LastLimitReset(ctx)
	if err != nil {
		return ResetSummary{}, fmt.Errorf("get last limit reset: %w", err)
	}

	var summary ResetSummary
	if p.checkers[ScopeDaily].IsDue(lastDaily, now) {
		n, err := p.store.ResetDailyUsage(ctx, now)
		if err != nil {
			return summary, fmt.Errorf("reset daily usage: %w", err)
		}
		summary.DailyReset, summary.DailyAccounts = true, n
		slog.InfoContext(ctx, "Daily limit usage reset",
			"accounts", n,
			"previous_reset", formatReset(lastDaily))
	}
	if p.checkers[ScopeMonthly].IsDue(lastMonthly, now) {
		n, err := p.store.ResetMonthlyUsage(ctx, now)
		if err != nil {
			return summary, fmt.Errorf("reset monthly usage: %w", err)
		}
		summary.MonthlyReset, summary.MonthlyAccounts = true, n
		slog.InfoContext(ctx, "Monthly limit usage reset",
			"accounts", n,
			"previous_reset", formatReset(lastMonthly))
	}
	return summary, nil
}

// Start begins the check loop. Returns an error if already running.
func (p *LimitResetProcessor) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("limit reset processor is already running")
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})
	p.mu.Unlock()

	go p.runLoop(ctx)

	slog.InfoContext(ctx, "Limit reset processor started", "interval", p.config.Interval)
	return nil
}

// Stop signals the loop and waits for it to exit.
func (p *LimitResetProcessor) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	stopCh, doneCh := p.stopCh, p.doneCh
	p.running = false
	p.mu.Unlock()

	close(stopCh)

	select {
	case <-doneCh:
		slog.InfoContext(ctx, "Limit reset processor stopped gracefully")
		return nil
	case <-ctx.Done():
		slog.WarnContext(ctx, "Limit reset processor stop timed out")
		return ctx.Err()
	}
}

func (p *LimitResetProcessor) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *LimitResetProcessor) runLoop(ctx context.Context) {
	defer close(p.doneCh)

	ticker := time.NewTicker(p.config.Interval)
	defer ticker.Stop()

	// Catch up immediately after downtime.
	p.tick(ctx)

	for {
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.tick(ctx)
		}
	}
}

func (p *LimitResetProcessor) tick(ctx context.Context) {
	if _, err := p.ResetDue(ctx, p.now()); err != nil {
		slog.ErrorContext(ctx, "Limit reset failed", "error", err)
	}
}

func formatReset(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return t.Format(time.RFC3339)
}
