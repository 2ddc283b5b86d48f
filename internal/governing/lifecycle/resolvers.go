package lifecycle

import (
	"context"

	"github.com/vietddude/governor/internal/core/domain"
)

// ForfeitResolver resolves a game once at least one player has forfeited
// while another remains active. Forfeited players are the losers. Otherwise
// it declines and the game stays started.
func ForfeitResolver(ctx context.Context, game *domain.Game, resolve ResolveFunc) error {
	if len(game.Forfeited) == 0 || len(game.ActivePlayers()) == 0 {
		return nil
	}

	losers := make([]domain.Address, 0, len(game.Forfeited))
	for _, p := range game.Players {
		if game.HasForfeited(p) {
			losers = append(losers, p)
		}
	}
	return resolve(ctx, losers)
}
