// Package scheduler runs the background loops that keep tokens fresh and
// collect balances and trades for every active account.
package scheduler

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/brokerwatch/internal/domain"
	"github.com/aristath/brokerwatch/internal/modules/aggregator"
	"github.com/aristath/brokerwatch/internal/tokens"
)

// Loop names, also used as metric labels
const (
	LoopToken       = "token"
	LoopBalance     = "balance"
	LoopIntraday    = "intraday"
	LoopDailyTrades = "daily_trades"
)

// AccountLister provides the accounts to schedule
type AccountLister interface {
	ListActive(ctx context.Context) ([]domain.Account, error)
}

// Core is the per-account work the loops drive
type Core interface {
	RefreshTokenIfNeeded(ctx context.Context, account *domain.Account) error
	FetchAndStoreBalance(ctx context.Context, account *domain.Account, kind domain.SnapshotKind) (*domain.BalanceSnapshot, error)
	SyncDailyTrades(ctx context.Context, account *domain.Account, start, end time.Time) (int, []aggregator.SyncFailure)
}

// MarketClock gates the intraday loop
type MarketClock interface {
	IsOpen(t time.Time) bool
}

// Notifier is told about accounts failing in a loop, and about them recovering
type Notifier interface {
	NotifyFailure(ctx context.Context, account *domain.Account, loop, message string)
	Reset(accountID, loop string)
}

// Recorder receives loop outcomes
type Recorder interface {
	ObserveCycle(loop string, succeeded, failed int)
	ObserveRestart(loop string)
}

type nopRecorder struct{}

func (nopRecorder) ObserveCycle(string, int, int) {}
func (nopRecorder) ObserveRestart(string)         {}

type nopNotifier struct{}

func (nopNotifier) NotifyFailure(context.Context, *domain.Account, string, string) {}
func (nopNotifier) Reset(string, string)                                           {}

// Config holds loop timing
type Config struct {
	Tick                  time.Duration // how often each loop wakes up
	TokenInterval         time.Duration // per-account token check interval
	BalanceInterval       time.Duration // per-account balance interval
	IntradayEnabled       bool
	IntradayInterval      time.Duration
	DailyTradesSchedule   string // cron with seconds, evaluated in KST
	DailyTradesWindowDays int
	RestartBackoff        time.Duration
}

// DefaultConfig returns the production timings
func DefaultConfig() Config {
	return Config{
		Tick:                  5 * time.Second,
		TokenInterval:         60 * time.Second,
		BalanceInterval:       60 * time.Second,
		IntradayEnabled:       true,
		IntradayInterval:      20 * time.Second,
		DailyTradesSchedule:   "0 0 3 * * *",
		DailyTradesWindowDays: 7,
		RestartBackoff:        5 * time.Second,
	}
}

// AccountFailure pairs an account with why it failed
type AccountFailure struct {
	Account string `json:"account"`
	Message string `json:"message"`
}

// CycleReport summarizes one loop cycle
type CycleReport struct {
	Loop      string           `json:"loop"`
	At        time.Time        `json:"at"`
	Succeeded int              `json:"succeeded"`
	Failed    int              `json:"failed"`
	Partial   int              `json:"partial,omitempty"` // failed accounts that still stored some rows
	Skipped   int              `json:"skipped"`
	Failures  []AccountFailure `json:"failures,omitempty"`
}

// loop is one periodic worker. lastChecked is only touched by the goroutine
// running the loop.
type loop struct {
	name        string
	interval    time.Duration
	gate        func(time.Time) bool
	work        func(ctx context.Context, account *domain.Account) error
	lastChecked map[string]time.Time
}

// Supervisor owns the background loops and the cron jobs
type Supervisor struct {
	cfg      Config
	accounts AccountLister
	core     Core
	market   MarketClock
	notifier Notifier
	recorder Recorder
	cron     *CronScheduler
	loops    []*loop
	now      func() time.Time
	log      zerolog.Logger

	mu              sync.Mutex
	started         bool
	dailyRegistered bool
	cancel          context.CancelFunc
	wg              sync.WaitGroup
	reports         map[string]CycleReport
}

// New creates a supervisor. Zero config fields fall back to DefaultConfig.
func New(cfg Config, accounts AccountLister, core Core, market MarketClock, log zerolog.Logger) *Supervisor {
	def := DefaultConfig()
	if cfg.Tick <= 0 {
		cfg.Tick = def.Tick
	}
	if cfg.TokenInterval <= 0 {
		cfg.TokenInterval = def.TokenInterval
	}
	if cfg.BalanceInterval <= 0 {
		cfg.BalanceInterval = def.BalanceInterval
	}
	if cfg.IntradayInterval <= 0 {
		cfg.IntradayInterval = def.IntradayInterval
	}
	if cfg.DailyTradesSchedule == "" {
		cfg.DailyTradesSchedule = def.DailyTradesSchedule
	}
	if cfg.DailyTradesWindowDays <= 0 {
		cfg.DailyTradesWindowDays = def.DailyTradesWindowDays
	}
	if cfg.RestartBackoff <= 0 {
		cfg.RestartBackoff = def.RestartBackoff
	}

	s := &Supervisor{
		cfg:      cfg,
		accounts: accounts,
		core:     core,
		market:   market,
		notifier: nopNotifier{},
		recorder: nopRecorder{},
		cron:     NewCronScheduler(tokens.KST, log),
		now:      time.Now,
		log:      log.With().Str("component", "supervisor").Logger(),
		reports:  make(map[string]CycleReport),
	}

	s.loops = []*loop{
		{
			name:     LoopToken,
			interval: cfg.TokenInterval,
			work: func(ctx context.Context, a *domain.Account) error {
				return s.core.RefreshTokenIfNeeded(ctx, a)
			},
		},
		{
			name:     LoopBalance,
			interval: cfg.BalanceInterval,
			work: func(ctx context.Context, a *domain.Account) error {
				_, err := s.core.FetchAndStoreBalance(ctx, a, domain.SnapshotPeriodic)
				return err
			},
		},
	}
	if cfg.IntradayEnabled && market != nil {
		s.loops = append(s.loops, &loop{
			name:     LoopIntraday,
			interval: cfg.IntradayInterval,
			gate:     market.IsOpen,
			work: func(ctx context.Context, a *domain.Account) error {
				_, err := s.core.FetchAndStoreBalance(ctx, a, domain.SnapshotIntraday)
				return err
			},
		})
	}
	for _, l := range s.loops {
		l.lastChecked = make(map[string]time.Time)
	}

	return s
}

// SetNotifier installs a failure notifier
func (s *Supervisor) SetNotifier(n Notifier) {
	if n != nil {
		s.notifier = n
	}
}

// SetRecorder installs a metrics recorder
func (s *Supervisor) SetRecorder(r Recorder) {
	if r != nil {
		s.recorder = r
	}
}

// AddJob registers an extra cron job (backups, maintenance). Must be called before Start.
func (s *Supervisor) AddJob(schedule string, job Job) error {
	return s.cron.AddJob(schedule, job)
}

// Start launches every loop and the cron jobs. Calling Start on a running
// supervisor is a no-op.
func (s *Supervisor) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		s.log.Warn().Msg("Supervisor already started, ignoring")
		return nil
	}

	if err := s.registerDailyTrades(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.started = true

	for _, l := range s.loops {
		s.wg.Add(1)
		go s.run(ctx, l)
	}
	s.cron.Start()

	names := make([]string, 0, len(s.loops))
	for _, l := range s.loops {
		names = append(names, l.name)
	}
	s.log.Info().
		Strs("loops", names).
		Str("daily_trades_schedule", s.cfg.DailyTradesSchedule).
		Msg("Supervisor started")
	return nil
}

// registerDailyTrades adds the trade sync job once; caller holds mu
func (s *Supervisor) registerDailyTrades() error {
	if s.dailyRegistered {
		return nil
	}
	if err := s.cron.AddJob(s.cfg.DailyTradesSchedule, &dailyTradesJob{s: s}); err != nil {
		return fmt.Errorf("invalid daily trades schedule %q: %w", s.cfg.DailyTradesSchedule, err)
	}
	s.dailyRegistered = true
	return nil
}

// Stop cancels every loop at its next sleep and waits for in-flight cycles
// and jobs to finish. Calling Stop on a stopped supervisor is a no-op.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	cancel := s.cancel
	s.mu.Unlock()

	cancel()
	s.cron.Stop()
	s.wg.Wait()
	s.log.Info().Msg("Supervisor stopped")
}

// Running reports whether the loops are started
func (s *Supervisor) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

// Reports returns the latest cycle report per loop
func (s *Supervisor) Reports() map[string]CycleReport {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]CycleReport, len(s.reports))
	for k, v := range s.reports {
		out[k] = v
	}
	return out
}

// run keeps a loop alive, restarting it after a panic
func (s *Supervisor) run(ctx context.Context, l *loop) {
	defer s.wg.Done()
	for {
		if !s.runLoop(ctx, l) {
			return
		}
		s.recorder.ObserveRestart(l.name)
		if !sleep(ctx, s.cfg.RestartBackoff) {
			return
		}
		s.log.Warn().Str("loop", l.name).Msg("Restarting loop")
	}
}

// runLoop cycles until ctx is cancelled. It returns true when a panic ended it.
func (s *Supervisor) runLoop(ctx context.Context, l *loop) (panicked bool) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error().
				Str("loop", l.name).
				Interface("panic", r).
				Str("stack", string(debug.Stack())).
				Msg("Loop panicked")
			panicked = true
		}
	}()

	// In-flight work is not interrupted by Stop
	workCtx := context.WithoutCancel(ctx)
	for {
		s.cycle(workCtx, l)
		if !sleep(ctx, s.cfg.Tick) {
			return false
		}
	}
}

// cycle runs the loop body once over a snapshot of the active accounts
func (s *Supervisor) cycle(ctx context.Context, l *loop) CycleReport {
	now := s.now()
	report := CycleReport{Loop: l.name, At: now}

	if l.gate != nil && !l.gate(now) {
		return report
	}

	accounts, err := s.accounts.ListActive(ctx)
	if err != nil {
		s.log.Error().Err(err).Str("loop", l.name).Msg("Failed to load active accounts")
		return report
	}

	seen := make(map[string]bool, len(accounts))
	for i := range accounts {
		account := &accounts[i]
		seen[account.ID] = true

		if last, ok := l.lastChecked[account.ID]; ok && now.Sub(last) < l.interval {
			report.Skipped++
			continue
		}

		err := s.safeWork(ctx, l, account)
		// A failed account waits a full interval too: fixed-interval retry
		l.lastChecked[account.ID] = now
		if err != nil {
			report.Failed++
			report.Failures = append(report.Failures, AccountFailure{Account: account.Label(), Message: err.Error()})
			s.notifier.NotifyFailure(ctx, account, l.name, err.Error())
			continue
		}
		report.Succeeded++
		s.notifier.Reset(account.ID, l.name)
	}

	// Forget accounts that were deleted or deactivated
	for id := range l.lastChecked {
		if !seen[id] {
			delete(l.lastChecked, id)
		}
	}

	s.finish(report)
	return report
}

// safeWork isolates a panic in one account's work from the rest of the cycle
func (s *Supervisor) safeWork(ctx context.Context, l *loop, account *domain.Account) (err error) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error().
				Str("loop", l.name).
				Str("account", account.Label()).
				Interface("panic", r).
				Str("stack", string(debug.Stack())).
				Msg("Account work panicked")
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return l.work(ctx, account)
}

func (s *Supervisor) finish(report CycleReport) {
	if report.Succeeded+report.Failed == 0 {
		return
	}

	s.recorder.ObserveCycle(report.Loop, report.Succeeded, report.Failed)
	s.mu.Lock()
	s.reports[report.Loop] = report
	s.mu.Unlock()

	event := s.log.Info()
	if report.Failed > 0 {
		event = s.log.Warn()
	}
	event.Str("loop", report.Loop).
		Int("succeeded", report.Succeeded).
		Int("failed", report.Failed).
		Int("partial", report.Partial).
		Msgf("%s cycle: %d succeeded, %d failed", report.Loop, report.Succeeded, report.Failed)
	for _, f := range report.Failures {
		s.log.Warn().Str("loop", report.Loop).Str("account", f.Account).Msg(f.Message)
	}
}

// SyncDailyTrades runs the daily trade sync over every active account now
func (s *Supervisor) SyncDailyTrades(ctx context.Context) CycleReport {
	now := s.now()
	end := now
	start := now.AddDate(0, 0, -s.cfg.DailyTradesWindowDays)
	report := CycleReport{Loop: LoopDailyTrades, At: now}

	accounts, err := s.accounts.ListActive(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to load active accounts for trade sync")
		return report
	}

	for i := range accounts {
		account := &accounts[i]
		stored, failures := s.core.SyncDailyTrades(ctx, account, start, end)
		if len(failures) == 0 {
			report.Succeeded++
			s.notifier.Reset(account.ID, LoopDailyTrades)
			continue
		}
		report.Failed++
		if stored > 0 {
			report.Partial++
		}
		for _, f := range failures {
			report.Failures = append(report.Failures, AccountFailure{Account: f.AccountName, Message: f.Message})
		}
		s.notifier.NotifyFailure(ctx, account, LoopDailyTrades,
			fmt.Sprintf("%d stored, %d failed: %s", stored, len(failures), failures[0].Message))
	}

	s.finish(report)
	return report
}

type dailyTradesJob struct {
	s *Supervisor
}

func (j *dailyTradesJob) Name() string { return LoopDailyTrades }

func (j *dailyTradesJob) Run() error {
	report := j.s.SyncDailyTrades(context.Background())
	if report.Failed > 0 {
		return fmt.Errorf("%d of %d accounts failed", report.Failed, report.Failed+report.Succeeded)
	}
	return nil
}

// sleep waits for d or until ctx is done. It returns false when cancelled.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
