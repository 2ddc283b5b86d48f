// Package poller drives the governor: it follows the ledger head, pulls new
// contract logs and hands the decoded events to the dispatcher.
package poller

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vietddude/governor/internal/core/domain"
	"github.com/vietddude/governor/internal/governing/metrics"
	"github.com/vietddude/governor/internal/infra/ledger"
)

// DefaultInterval is the pause between poll ticks.
const DefaultInterval = 10 * time.Second

// Dispatcher consumes decoded events in log order.
type Dispatcher interface {
	Dispatch(ctx context.Context, events []domain.Event) error
}

// Recoverer relaunches in-progress games from ledger state.
type Recoverer interface {
	Scan(ctx context.Context) (int, error)
}

// Config holds poller settings.
type Config struct {
	Source     ledger.LogSource
	Dispatcher Dispatcher
	Recovery   Recoverer // optional

	Interval time.Duration

	// MaxBlockRange caps the blocks fetched per tick. Zero means unbounded.
	MaxBlockRange uint64

	// RecoveryInterval re-runs recovery while polling. Zero runs it only at
	// startup.
	RecoveryInterval time.Duration
}

// PollTickError reports a tick that failed to fetch or dispatch a range. The
// cursor is left unchanged and the range is retried on the next tick.
type PollTickError struct {
	From, To uint64
	Err      error
}

func (e *PollTickError) Error() string {
	if e.To == 0 {
		return fmt.Sprintf("poll tick from block %d: %v", e.From, e.Err)
	}
	return fmt.Sprintf("poll tick for blocks %d-%d: %v", e.From, e.To, e.Err)
}

func (e *PollTickError) Unwrap() error { return e.Err }

// Phase is the poller's lifecycle state.
type Phase string

const (
	PhaseIdle         Phase = "idle"
	PhaseInitializing Phase = "initializing"
	PhasePolling      Phase = "polling"
)

// Status is a liveness snapshot.
type Status struct {
	Phase       Phase     `json:"phase"`
	Cursor      uint64    `json:"cursor"`
	Head        uint64    `json:"head"`
	LastTick    time.Time `json:"last_tick"`
	LastSuccess time.Time `json:"last_success"`
	LastError   string    `json:"last_error,omitempty"`
}

// Lag returns how many blocks the cursor trails the head.
func (s Status) Lag() uint64 {
	if s.Head <= s.Cursor {
		return 0
	}
	return s.Head - s.Cursor
}

// Poller is the owned poll loop. Construct one per process.
type Poller struct {
	cfg      Config
	log      *slog.Logger
	running  atomic.Bool
	stop     chan struct{}
	stopOnce sync.Once

	mu           sync.RWMutex
	status       Status
	lastRecovery time.Time
}

// New creates a poller.
func New(cfg Config) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	return &Poller{
		cfg:    cfg,
		log:    slog.Default().With("component", "poller"),
		stop:   make(chan struct{}),
		status: Status{Phase: PhaseIdle},
	}
}

// Start initializes the cursor, runs recovery once, then polls until ctx is
// done or Stop is called. Tick failures never end the loop.
func (p *Poller) Start(ctx context.Context) error {
	if !p.running.CompareAndSwap(false, true) {
		return fmt.Errorf("poller already running")
	}
	defer p.running.Store(false)
	defer p.setPhase(PhaseIdle)

	p.setPhase(PhaseInitializing)
	for {
		err := p.initialize(ctx)
		if err == nil {
			break
		}
		p.log.Error("Failed to read ledger head, retrying", "error", err)
		if !p.sleep(ctx) {
			return nil
		}
	}

	p.recover(ctx)
	p.setPhase(PhasePolling)
	p.log.Info("Polling started", "cursor", p.Status().Cursor, "interval", p.cfg.Interval)

	for {
		if err := p.tick(ctx); err != nil {
			p.log.Error("Poll tick failed", "error", err)
		}
		if p.recoveryDue() {
			p.recover(ctx)
		}
		if !p.sleep(ctx) {
			return nil
		}
	}
}

// Stop ends the loop after the current tick. In-flight lifecycle tasks are
// not affected.
func (p *Poller) Stop() {
	p.stopOnce.Do(func() { close(p.stop) })
}

// Running reports whether the loop is active.
func (p *Poller) Running() bool {
	return p.running.Load()
}

// Status returns a liveness snapshot.
func (p *Poller) Status() Status {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.status
}

func (p *Poller) initialize(ctx context.Context) error {
	head, err := p.cfg.Source.LatestBlock(ctx)
	if err != nil {
		return err
	}

	p.mu.Lock()
	p.status.Cursor = head
	p.status.Head = head
	p.mu.Unlock()

	metrics.CursorBlock.Set(float64(head))
	metrics.ChainHeadBlock.Set(float64(head))
	return nil
}

// tick processes one range. On failure the cursor is not moved.
func (p *Poller) tick(ctx context.Context) (err error) {
	cursor := p.Status().Cursor
	now := time.Now()

	defer func() {
		p.mu.Lock()
		p.status.LastTick = now
		if err != nil {
			p.status.LastError = err.Error()
		} else {
			p.status.LastSuccess = now
			p.status.LastError = ""
		}
		p.mu.Unlock()
	}()

	head, err := p.cfg.Source.LatestBlock(ctx)
	if err != nil {
		metrics.PollTicksTotal.WithLabelValues("error").Inc()
		return &PollTickError{From: cursor + 1, Err: fmt.Errorf("read head: %w", err)}
	}
	p.mu.Lock()
	p.status.Head = head
	p.mu.Unlock()
	metrics.ChainHeadBlock.Set(float64(head))

	if head <= cursor {
		metrics.PollTicksTotal.WithLabelValues("idle").Inc()
		return nil
	}

	from, to := cursor+1, head
	if p.cfg.MaxBlockRange > 0 && to-from+1 > p.cfg.MaxBlockRange {
		to = from + p.cfg.MaxBlockRange - 1
	}

	logs, err := p.cfg.Source.GetLogs(ctx, from, to)
	if err != nil {
		metrics.PollTicksTotal.WithLabelValues("error").Inc()
		return &PollTickError{From: from, To: to, Err: fmt.Errorf("get logs: %w", err)}
	}

	events := make([]domain.Event, 0, len(logs))
	for _, raw := range logs {
		if ev, ok := p.cfg.Source.Decode(raw); ok {
			events = append(events, ev)
		}
	}

	if err := p.cfg.Dispatcher.Dispatch(ctx, events); err != nil {
		metrics.PollTicksTotal.WithLabelValues("error").Inc()
		return &PollTickError{From: from, To: to, Err: err}
	}

	p.mu.Lock()
	p.status.Cursor = to
	p.mu.Unlock()
	metrics.CursorBlock.Set(float64(to))
	metrics.PollTicksTotal.WithLabelValues("ok").Inc()

	if len(events) > 0 {
		p.log.Debug("Dispatched range", "from", from, "to", to, "logs", len(logs), "events", len(events))
	}
	return nil
}

func (p *Poller) recover(ctx context.Context) {
	p.mu.Lock()
	p.lastRecovery = time.Now()
	p.mu.Unlock()

	if p.cfg.Recovery == nil {
		return
	}
	if _, err := p.cfg.Recovery.Scan(ctx); err != nil {
		p.log.Error("Recovery scan failed", "error", err)
	}
}

func (p *Poller) recoveryDue() bool {
	if p.cfg.RecoveryInterval <= 0 {
		return false
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	return time.Since(p.lastRecovery) >= p.cfg.RecoveryInterval
}

func (p *Poller) setPhase(phase Phase) {
	p.mu.Lock()
	p.status.Phase = phase
	p.mu.Unlock()
}

// sleep waits one interval and reports whether the loop should continue.
func (p *Poller) sleep(ctx context.Context) bool {
	timer := time.NewTimer(p.cfg.Interval)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-p.stop:
		return false
	case <-timer.C:
		return true
	}
}
