package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vietddude/governor/internal/core/domain"
	"github.com/vietddude/governor/internal/core/taskset"
	"github.com/vietddude/governor/internal/governing/metrics"
	"github.com/vietddude/governor/internal/infra/ledger"
)

// Config holds runner dependencies.
type Config struct {
	Resolver  Resolver
	TaskSet   taskset.TaskSet
	Submitter ledger.Submitter
	Fee       *big.Int
	Recorder  OutcomeRecorder // optional
}

// Runner launches at most one lifecycle task per game.
type Runner struct {
	cfg     Config
	log     *slog.Logger
	tracer  trace.Tracer
	wg      sync.WaitGroup
	running atomic.Int64
}

// NewRunner creates a runner. A nil Resolver disables launching.
func NewRunner(cfg Config) *Runner {
	if cfg.Fee == nil {
		cfg.Fee = new(big.Int)
	}
	return &Runner{
		cfg:    cfg,
		log:    slog.Default().With("component", "lifecycle"),
		tracer: otel.Tracer("github.com/vietddude/governor/internal/governing/lifecycle"),
	}
}

// Enabled reports whether a resolution routine is configured.
func (r *Runner) Enabled() bool {
	return r != nil && r.cfg.Resolver != nil
}

// Running returns the number of tasks in flight.
func (r *Runner) Running() int {
	return int(r.running.Load())
}

// Launch claims the game and, if the claim succeeds, runs its lifecycle task
// in a new goroutine. The claim is released when the task ends, whatever the
// result. Launch never blocks on the task and reports whether one was spawned.
func (r *Runner) Launch(ctx context.Context, game *domain.Game) bool {
	if !r.Enabled() {
		return false
	}

	ok, err := r.cfg.TaskSet.Claim(ctx, game.ID)
	if err != nil {
		metrics.ClaimsTotal.WithLabelValues("error").Inc()
		r.log.Error("Failed to claim game", "game", game.ID, "error", err)
		return false
	}
	if !ok {
		metrics.ClaimsTotal.WithLabelValues("contended").Inc()
		r.log.Debug("Game already has a running task", "game", game.ID)
		return false
	}
	metrics.ClaimsTotal.WithLabelValues("acquired").Inc()

	// Tasks outlive the poll loop's context; shutdown never cancels them.
	// Only losing the claim does.
	baseCtx := context.WithoutCancel(ctx)
	taskCtx, cancelTask := context.WithCancelCause(baseCtx)

	r.wg.Add(1)
	r.running.Add(1)
	metrics.TasksRunning.Inc()

	go func() {
		stopKeepalive := r.keepClaim(baseCtx, game.ID, cancelTask)
		defer func() {
			stopKeepalive()
			cancelTask(nil)
			if err := r.cfg.TaskSet.Release(baseCtx, game.ID); err != nil {
				r.log.Error("Failed to release game claim", "game", game.ID, "error", err)
			}
			metrics.TasksRunning.Dec()
			r.running.Add(-1)
			r.wg.Done()
		}()

		if err := r.Run(taskCtx, game); err != nil {
			r.log.Error("Lifecycle task failed", "game", game.ID, "error", err)
		}
	}()

	return true
}

// keepClaim refreshes an expiring claim every third of its TTL until the
// returned stop func is called. If the claim is gone, or no refresh has
// succeeded for a full TTL, the task is cancelled with ErrClaimLost since
// another process may now hold the game.
func (r *Runner) keepClaim(ctx context.Context, id domain.GameID, lost context.CancelCauseFunc) (stop func()) {
	ext, ok := r.cfg.TaskSet.(taskset.Extender)
	if !ok || ext.TTL() <= 0 {
		return func() {}
	}
	ttl := ext.TTL()

	done := make(chan struct{})
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		ticker := time.NewTicker(ttl / 3)
		defer ticker.Stop()

		lastHeld := time.Now()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
			}

			held, err := ext.Extend(ctx, id)
			switch {
			case err == nil && held:
				lastHeld = time.Now()
				continue
			case err == nil:
				r.log.Error("Game claim lost while task running", "game", id)
			case time.Since(lastHeld) < ttl:
				r.log.Warn("Failed to extend game claim", "game", id, "error", err)
				continue
			default:
				r.log.Error("Game claim expired while task running", "game", id, "error", err)
			}
			metrics.ClaimsTotal.WithLabelValues("lost").Inc()
			lost(ErrClaimLost)
			return
		}
	}()

	return func() {
		close(done)
		<-finished
	}
}

// Run executes the resolution routine for game to completion. Callers that
// bypass Launch are responsible for claiming the game.
func (r *Runner) Run(ctx context.Context, game *domain.Game) (err error) {
	runID := uuid.NewString()
	log := r.log.With("game", game.ID, "run", runID)

	ctx, span := r.tracer.Start(ctx, "governor.lifecycle.run", trace.WithAttributes(
		attribute.String("game_id", game.ID.String()),
		attribute.String("run_id", runID),
		attribute.Int("players", len(game.Players)),
	))
	defer span.End()

	var called, resolveFailed atomic.Bool

	resolve := func(ctx context.Context, losers []domain.Address) error {
		if !called.CompareAndSwap(false, true) {
			return ErrAlreadyResolved
		}
		if errors.Is(context.Cause(ctx), ErrClaimLost) {
			resolveFailed.Store(true)
			return ErrClaimLost
		}
		call := domain.ResolveCall{
			GameID: game.ID,
			Losers: slices.Clone(losers),
			Fee:    new(big.Int).Set(r.cfg.Fee),
		}
		receipt, err := r.cfg.Submitter.Submit(ctx, call)
		r.record(context.WithoutCancel(ctx), runID, call, receipt, err)
		if err != nil {
			resolveFailed.Store(true)
			log.Error("Resolve submission failed", "error", err)
			return err
		}
		log.Info("Game resolved", "losers", len(call.Losers), "tx", txHash(receipt))
		return nil
	}

	defer func() {
		if p := recover(); p != nil {
			err = &TaskError{GameID: game.ID, RunID: runID, Err: fmt.Errorf("resolver panicked: %v", p)}
		}

		switch {
		case err != nil:
			metrics.TasksFinishedTotal.WithLabelValues("failed").Inc()
			span.RecordError(err)
			span.SetStatus(otelcodes.Error, err.Error())
		case !called.Load():
			metrics.TasksFinishedTotal.WithLabelValues("declined").Inc()
			log.Info("Resolver declined to resolve, game stays started")
		case resolveFailed.Load():
			metrics.TasksFinishedTotal.WithLabelValues("failed").Inc()
			log.Warn("Resolver returned nil after a failed resolve")
		default:
			metrics.TasksFinishedTotal.WithLabelValues("resolved").Inc()
		}
	}()

	log.Debug("Running resolution routine", "players", len(game.Players))
	if err := r.cfg.Resolver(ctx, game, resolve); err != nil {
		return &TaskError{GameID: game.ID, RunID: runID, Err: err}
	}
	return nil
}

// Wait blocks until every launched task has finished or ctx is done.
func (r *Runner) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("abandoning %d running task(s): %w", r.Running(), ctx.Err())
	}
}

func (r *Runner) record(
	ctx context.Context,
	runID string,
	call domain.ResolveCall,
	receipt *domain.Receipt,
	submitErr error,
) {
	if r.cfg.Recorder == nil {
		return
	}

	outcome := domain.Outcome{
		GameID:     call.GameID,
		RunID:      runID,
		Losers:     call.Losers,
		Fee:        call.Fee,
		Status:     domain.OutcomeStatusSubmitted,
		RecordedAt: time.Now(),
	}
	outcome.TxHash = txHash(receipt)
	if submitErr != nil {
		outcome.Status = domain.OutcomeStatusFailed
		outcome.Error = submitErr.Error()
	}

	if err := r.cfg.Recorder.RecordOutcome(ctx, outcome); err != nil {
		r.log.Warn("Failed to record outcome", "game", call.GameID, "error", err)
	}
}

func txHash(receipt *domain.Receipt) string {
	if receipt == nil {
		return ""
	}
	return receipt.TxHash
}
