// Package recovery re-derives in-progress games from ledger state and
// relaunches their lifecycle tasks.
package recovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/vietddude/governor/internal/core/domain"
	"github.com/vietddude/governor/internal/governing/dispatcher"
	"github.com/vietddude/governor/internal/governing/metrics"
	"github.com/vietddude/governor/internal/infra/ledger"
)

const (
	DefaultPageSize    = 50
	DefaultConcurrency = 4
)

// Source lists and reads games.
type Source interface {
	ledger.GameLister
	ledger.GameReader
}

// Config holds scanner settings.
type Config struct {
	Self        domain.Address
	Source      Source
	Launcher    dispatcher.Launcher
	PageSize    int
	Concurrency int // parallel state reads per page
}

// Scanner relaunches tasks for Started games governed by this process.
type Scanner struct {
	cfg Config
	log *slog.Logger
}

// NewScanner creates a scanner, applying defaults.
func NewScanner(cfg Config) *Scanner {
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultPageSize
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	return &Scanner{
		cfg: cfg,
		log: slog.Default().With("component", "recovery"),
	}
}

// Scan lists every Started game owned by this governor, then re-reads each
// one and launches a task for those still Started. Listing completes before
// any launch so that games resolving mid-scan cannot shift later pages.
// Games that already have a running task are skipped by the launcher's
// claim. It returns the number of tasks launched.
func (s *Scanner) Scan(ctx context.Context) (int, error) {
	if s.cfg.Launcher == nil || !s.cfg.Launcher.Enabled() {
		return 0, nil
	}

	ids, err := s.listStarted(ctx)
	if err != nil {
		return 0, err
	}

	launched := 0
	for batch := range slices.Chunk(ids, s.cfg.PageSize) {
		games, err := s.readAll(ctx, batch)
		if err != nil {
			return launched, err
		}

		for _, game := range games {
			if game == nil || game.State != domain.GameStateStarted || !game.GovernedBy(s.cfg.Self) {
				continue
			}
			if s.cfg.Launcher.Launch(ctx, game) {
				launched++
				metrics.GamesRecoveredTotal.Inc()
			}
		}
	}

	s.log.Info("Recovery scan complete", "listed", len(ids), "launched", launched)
	return launched, nil
}

// listStarted pages through the Started games governed by this process.
func (s *Scanner) listStarted(ctx context.Context) ([]domain.GameID, error) {
	var (
		ids  []domain.GameID
		seen = make(map[domain.GameID]struct{})
	)
	for offset := 0; ; offset += s.cfg.PageSize {
		page, err := s.cfg.Source.ListGames(ctx, ledger.GameFilter{
			Governor: s.cfg.Self,
			State:    domain.GameStateStarted,
			Offset:   offset,
			Limit:    s.cfg.PageSize,
		})
		if err != nil {
			return nil, fmt.Errorf("list started games at offset %d: %w", offset, err)
		}
		for _, id := range page {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
		if len(page) < s.cfg.PageSize {
			return ids, nil
		}
	}
}

// readAll reads the current state of ids concurrently, preserving order.
// Games the ledger no longer knows are left nil.
func (s *Scanner) readAll(ctx context.Context, ids []domain.GameID) ([]*domain.Game, error) {
	games := make([]*domain.Game, len(ids))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)
	for i, id := range ids {
		g.Go(func() error {
			game, err := s.cfg.Source.ReadGame(gctx, id)
			if errors.Is(err, ledger.ErrGameNotFound) {
				s.log.Warn("Listed game not found, skipping", "game", id)
				return nil
			}
			if err != nil {
				return fmt.Errorf("read game %s: %w", id, err)
			}
			games[i] = game
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return games, nil
}
