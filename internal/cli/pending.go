package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/vietddude/governor/internal/core/domain"
	"github.com/vietddude/governor/internal/infra/ledger"
	"github.com/vietddude/governor/internal/infra/ledger/jsonrpc"
)

var pendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "List started games owned by this governor that are not resolved yet",
	Run:   runPending,
}

func init() {
	rootCmd.AddCommand(pendingCmd)
}

func runPending(cmd *cobra.Command, args []string) {
	cfg := loadConfig()
	if err := cfg.Validate(); err != nil {
		slog.Error("Invalid config", "error", err)
		os.Exit(1)
	}

	gw, err := jsonrpc.NewGateway(cfg.Ledger)
	if err != nil {
		slog.Error("Failed to init ledger gateway", "error", err)
		os.Exit(1)
	}
	defer func() {
		_ = gw.Close()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	self := cfg.Governor.Self()
	pageSize := cfg.Governor.RecoveryPageSize

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "GAME\tPLAYERS\tFORFEITED\tSTAKE")

	for offset := 0; ; offset += pageSize {
		ids, err := gw.ListGames(ctx, ledger.GameFilter{
			Governor: self,
			State:    domain.GameStateStarted,
			Offset:   offset,
			Limit:    pageSize,
		})
		if err != nil {
			slog.Error("Failed to list games", "offset", offset, "error", err)
			os.Exit(1)
		}

		for _, id := range ids {
			game, err := gw.ReadGame(ctx, id)
			if err != nil {
				slog.Warn("Failed to read game", "game", id, "error", err)
				continue
			}
			_, _ = fmt.Fprintf(w, "%s\t%d\t%d\t%s\n", game.ID, len(game.Players), len(game.Forfeited), game.Stake)
		}

		if len(ids) < pageSize {
			break
		}
	}
	_ = w.Flush()
}
