// Package dispatcher routes decoded escrow events to lifecycle callbacks and
// launches lifecycle tasks for games this process governs.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/vietddude/governor/internal/core/domain"
	"github.com/vietddude/governor/internal/governing/metrics"
	"github.com/vietddude/governor/internal/infra/ledger"
)

// Handlers are the optional lifecycle callbacks. A nil handler is a no-op.
// Every handler receives a fresh read of the game taken after the event.
type Handlers struct {
	OnCreated   func(ctx context.Context, game *domain.Game, ev domain.GameCreated) error
	OnJoined    func(ctx context.Context, game *domain.Game, ev domain.PlayerJoined) error
	OnForfeited func(ctx context.Context, game *domain.Game, ev domain.PlayerForfeited) error
	OnStarted   func(ctx context.Context, game *domain.Game) error
	OnResolved  func(ctx context.Context, game *domain.Game, ev domain.GameResolved) error
}

// Launcher starts lifecycle tasks. *lifecycle.Runner implements it.
type Launcher interface {
	Enabled() bool
	Launch(ctx context.Context, game *domain.Game) bool
}

// Config holds dispatcher dependencies.
type Config struct {
	Self     domain.Address
	Reader   ledger.GameReader
	Handlers Handlers
	Launcher Launcher // optional

	// AutoStartPlayers starts a Created game once it has this many active
	// players. Zero disables auto-start.
	AutoStartPlayers int
	Submitter        ledger.Submitter // required when AutoStartPlayers > 0
}

// DispatchError reports a lifecycle callback that failed for one event.
// It never aborts the batch.
type DispatchError struct {
	Kind   domain.EventKind
	GameID domain.GameID
	Err    error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("dispatch %s for game %s: %v", e.Kind, e.GameID, e.Err)
}

func (e *DispatchError) Unwrap() error { return e.Err }

// Dispatcher maps events to callbacks.
type Dispatcher struct {
	cfg Config
	log *slog.Logger
}

// New creates a dispatcher.
func New(cfg Config) *Dispatcher {
	return &Dispatcher{
		cfg: cfg,
		log: slog.Default().With("component", "dispatcher"),
	}
}

// Dispatch processes events in order. Callback failures and games the ledger
// cannot return are logged and isolated per event. A transient state read
// failure stops the batch and is returned so the caller can redeliver the
// range.
func (d *Dispatcher) Dispatch(ctx context.Context, events []domain.Event) error {
	for _, ev := range events {
		if err := d.dispatch(ctx, ev); err != nil {
			return err
		}
	}
	return nil
}

func (d *Dispatcher) dispatch(ctx context.Context, ev domain.Event) error {
	game, err := d.cfg.Reader.ReadGame(ctx, ev.Game())
	if err != nil {
		// A read that can never succeed must not pin the cursor for every
		// later event; skip this one and keep going.
		if ctx.Err() == nil && (errors.Is(err, ledger.ErrGameNotFound) || ledger.IsDeterministic(err)) {
			metrics.DispatchErrorsTotal.WithLabelValues(string(ev.Kind())).Inc()
			d.log.Error("Skipping event, game state unreadable",
				"kind", ev.Kind(),
				"game", ev.Game(),
				"block", ev.Meta().BlockNumber,
				"error", &DispatchError{Kind: ev.Kind(), GameID: ev.Game(), Err: err},
			)
			return nil
		}
		return fmt.Errorf("read game %s for %s at block %d: %w",
			ev.Game(), ev.Kind(), ev.Meta().BlockNumber, err)
	}
	metrics.EventsDispatchedTotal.WithLabelValues(string(ev.Kind())).Inc()

	if err := d.invoke(ctx, game, ev); err != nil {
		dispatchErr := &DispatchError{Kind: ev.Kind(), GameID: ev.Game(), Err: err}
		metrics.DispatchErrorsTotal.WithLabelValues(string(ev.Kind())).Inc()
		d.log.Error("Lifecycle callback failed",
			"kind", ev.Kind(),
			"game", ev.Game(),
			"block", ev.Meta().BlockNumber,
			"error", dispatchErr,
		)
	}

	switch e := ev.(type) {
	case domain.PlayerJoined:
		d.maybeStart(ctx, game, e)
	case domain.GameStarted:
		d.maybeLaunch(ctx, game)
	}
	return nil
}

func (d *Dispatcher) invoke(ctx context.Context, game *domain.Game, ev domain.Event) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("callback panicked: %v", p)
		}
	}()

	h := d.cfg.Handlers
	switch e := ev.(type) {
	case domain.GameCreated:
		if h.OnCreated != nil {
			return h.OnCreated(ctx, game, e)
		}
	case domain.PlayerJoined:
		if h.OnJoined != nil {
			return h.OnJoined(ctx, game, e)
		}
	case domain.PlayerForfeited:
		if h.OnForfeited != nil {
			return h.OnForfeited(ctx, game, e)
		}
	case domain.GameStarted:
		if h.OnStarted != nil {
			return h.OnStarted(ctx, game)
		}
	case domain.GameResolved:
		if h.OnResolved != nil {
			return h.OnResolved(ctx, game, e)
		}
	default:
		d.log.Debug("Ignoring unhandled event", "kind", ev.Kind(), "game", ev.Game())
	}
	return nil
}

func (d *Dispatcher) maybeLaunch(ctx context.Context, game *domain.Game) {
	if d.cfg.Launcher == nil || !d.cfg.Launcher.Enabled() {
		return
	}
	if !game.GovernedBy(d.cfg.Self) {
		return
	}
	if game.State == domain.GameStateResolved {
		d.log.Debug("Game already resolved, skipping launch", "game", game.ID)
		return
	}
	d.cfg.Launcher.Launch(ctx, game)
}

func (d *Dispatcher) maybeStart(ctx context.Context, game *domain.Game, ev domain.PlayerJoined) {
	if d.cfg.AutoStartPlayers <= 0 || d.cfg.Submitter == nil {
		return
	}
	if game.State != domain.GameStateCreated || !game.GovernedBy(d.cfg.Self) {
		return
	}
	if len(game.ActivePlayers()) < d.cfg.AutoStartPlayers {
		return
	}

	receipt, err := d.cfg.Submitter.Submit(ctx, domain.StartCall{GameID: game.ID})
	if err != nil {
		if ledger.IsDeterministic(err) {
			d.log.Debug("Start rejected", "game", game.ID, "error", err)
			return
		}
		d.log.Error("Failed to start game", "game", game.ID, "error", err)
		return
	}
	tx := ""
	if receipt != nil {
		tx = receipt.TxHash
	}
	d.log.Info("Game started", "game", game.ID, "players", len(game.Players), "trigger", ev.Player, "tx", tx)
}
