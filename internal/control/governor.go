package control

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"github.com/vietddude/governor/internal/core/config"
	"github.com/vietddude/governor/internal/core/taskset"
	"github.com/vietddude/governor/internal/governing/dispatcher"
	"github.com/vietddude/governor/internal/governing/health"
	"github.com/vietddude/governor/internal/governing/lifecycle"
	"github.com/vietddude/governor/internal/governing/poller"
	"github.com/vietddude/governor/internal/governing/recovery"
	"github.com/vietddude/governor/internal/infra/journal"
	"github.com/vietddude/governor/internal/infra/ledger"
	"github.com/vietddude/governor/internal/infra/ledger/jsonrpc"
	"github.com/vietddude/governor/internal/telemetry"
)

// Options carries the embedder's hooks and optional overrides.
type Options struct {
	// Resolver is the game-specific resolution routine. Nil disables
	// lifecycle tasks; the governor then only reports events.
	Resolver lifecycle.Resolver
	Handlers dispatcher.Handlers

	// Gateway replaces the JSON-RPC gateway built from config.
	Gateway ledger.Gateway
	// TaskSet replaces the task set built from config.
	TaskSet taskset.TaskSet
}

// Governor is the main application struct that owns the poll loop and every
// component behind it. Construct one per process.
type Governor struct {
	cfg *config.AppConfig

	gateway      ledger.Gateway
	runner       *lifecycle.Runner
	poller       *poller.Poller
	healthMon    *health.Monitor
	healthServer *health.Server
	journal      *journal.Journal
	closers      []io.Closer
	log          *slog.Logger

	mu       sync.Mutex
	cancel   context.CancelFunc
	done     chan struct{}
	tracing  func(context.Context) error
	stopOnce sync.Once
}

// NewGovernor creates a Governor with all dependencies initialized.
func NewGovernor(ctx context.Context, cfg *config.AppConfig, opts Options) (*Governor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	fee, err := cfg.Governor.FeeAmount()
	if err != nil {
		return nil, err
	}
	self := cfg.Governor.Self()

	g := &Governor{
		cfg: cfg,
		log: slog.Default().With("component", "governor"),
	}

	// 1. Ledger gateway
	gateway := opts.Gateway
	if gateway == nil {
		gw, err := jsonrpc.NewGateway(cfg.Ledger)
		if err != nil {
			return nil, fmt.Errorf("failed to init ledger gateway: %w", err)
		}
		g.closers = append(g.closers, gw)
		gateway = gw
	}
	g.gateway = gateway
	submitter := ledger.NewRetryingSubmitter(gateway, cfg.Submit)

	// 2. Task set
	tasks := opts.TaskSet
	if tasks == nil {
		if cfg.Redis.URL != "" {
			rs, err := taskset.NewRedis(cfg.Redis, self)
			if err != nil {
				g.close()
				return nil, fmt.Errorf("failed to init redis task set: %w", err)
			}
			g.closers = append(g.closers, rs)
			tasks = rs
			g.log.Info("Using shared Redis task set", "ttl", cfg.Redis.TTL)
		} else {
			tasks = taskset.NewMemory()
		}
	}

	// 3. Outcome journal
	var recorder lifecycle.OutcomeRecorder
	if cfg.Journal.Enabled() {
		j, err := journal.Open(ctx, cfg.Journal)
		if err != nil {
			g.close()
			return nil, fmt.Errorf("failed to init journal: %w", err)
		}
		g.journal = j
		g.closers = append(g.closers, j)
		recorder = j
	}

	// 4. Engine
	g.runner = lifecycle.NewRunner(lifecycle.Config{
		Resolver:  opts.Resolver,
		TaskSet:   tasks,
		Submitter: submitter,
		Fee:       fee,
		Recorder:  recorder,
	})

	disp := dispatcher.New(dispatcher.Config{
		Self:             self,
		Reader:           gateway,
		Handlers:         opts.Handlers,
		Launcher:         g.runner,
		AutoStartPlayers: cfg.Governor.AutoStartPlayers,
		Submitter:        submitter,
	})

	scanner := recovery.NewScanner(recovery.Config{
		Self:        self,
		Source:      gateway,
		Launcher:    g.runner,
		PageSize:    cfg.Governor.RecoveryPageSize,
		Concurrency: cfg.Governor.RecoveryConcurrency,
	})

	g.poller = poller.New(poller.Config{
		Source:           gateway,
		Dispatcher:       disp,
		Recovery:         scanner,
		Interval:         cfg.Governor.PollInterval,
		MaxBlockRange:    cfg.Governor.MaxBlockRange,
		RecoveryInterval: cfg.Governor.RecoveryInterval,
	})

	// 5. Health
	g.healthMon = health.NewMonitor(g.poller, g.runner, health.DefaultThresholds(cfg.Governor.PollInterval))
	if cfg.Server.Port > 0 {
		g.healthServer = health.NewServer(g.healthMon, cfg.Server.Port)
	}

	if !g.runner.Enabled() {
		g.log.Warn("No resolution routine configured, started games will not be resolved")
	}

	return g, nil
}

// Start brings up tracing and the health server, then runs the poll loop in
// the background. It returns once everything is launched.
func (g *Governor) Start(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.done != nil {
		return errors.New("governor already started")
	}

	shutdown, err := telemetry.Setup(ctx, g.cfg.Tracing)
	if err != nil {
		g.log.Warn("Tracing disabled", "error", err)
	}
	g.tracing = shutdown

	if g.healthServer != nil {
		go func() {
			if err := g.healthServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				g.log.Error("Health server failed", "error", err)
			}
		}()
	}

	pollCtx, cancel := context.WithCancel(ctx)
	g.cancel = cancel
	g.done = make(chan struct{})

	g.log.Info("Starting governor",
		"governor", g.cfg.Governor.Self(),
		"contract", g.cfg.Governor.Contract,
		"interval", g.cfg.Governor.PollInterval,
	)
	go func() {
		defer close(g.done)
		if err := g.poller.Start(pollCtx); err != nil {
			g.log.Error("Poll loop failed", "error", err)
		}
	}()

	return nil
}

// Stop stops issuing ticks, waits for in-flight lifecycle tasks until ctx is
// done, then releases resources. Tasks still running at the deadline are
// abandoned; recovery picks their games up on the next start.
func (g *Governor) Stop(ctx context.Context) error {
	var stopErr error
	g.stopOnce.Do(func() {
		g.log.Info("Stopping governor...")

		g.mu.Lock()
		cancel, done := g.cancel, g.done
		g.mu.Unlock()

		g.poller.Stop()
		if cancel != nil {
			cancel()
		}
		if done != nil {
			select {
			case <-done:
			case <-ctx.Done():
			}
		}

		if err := g.runner.Wait(ctx); err != nil {
			g.log.Warn("Lifecycle tasks still running at shutdown", "error", err)
			stopErr = err
		}

		if g.healthServer != nil {
			if err := g.healthServer.Stop(ctx); err != nil {
				g.log.Warn("Failed to stop health server", "error", err)
			}
		}
		if g.tracing != nil {
			if err := g.tracing(ctx); err != nil {
				g.log.Warn("Failed to flush traces", "error", err)
			}
		}
		g.close()
		g.log.Info("Governor stopped")
	})
	return stopErr
}

// Health returns the current health report.
func (g *Governor) Health() health.Report {
	return g.healthMon.CheckHealth()
}

// Status returns the poll loop's liveness snapshot.
func (g *Governor) Status() poller.Status {
	return g.poller.Status()
}

// RunningTasks returns the number of lifecycle tasks in flight.
func (g *Governor) RunningTasks() int {
	return g.runner.Running()
}

func (g *Governor) close() {
	for i := len(g.closers) - 1; i >= 0; i-- {
		if err := g.closers[i].Close(); err != nil {
			g.log.Warn("Failed to close resource", "error", err)
		}
	}
	g.closers = nil
}
