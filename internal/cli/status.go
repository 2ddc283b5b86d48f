package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/vietddude/governor/internal/core/domain"
	"github.com/vietddude/governor/internal/infra/journal"
)

var (
	statusLimit int
	statusGame  uint64
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show recent resolve submissions from the outcome journal",
	Run:   runStatus,
}

func init() {
	statusCmd.Flags().IntVar(&statusLimit, "limit", 20, "number of outcomes to show")
	statusCmd.Flags().Uint64Var(&statusGame, "game", 0, "only show outcomes for this game id")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) {
	cfg := loadConfig()
	if !cfg.Journal.Enabled() {
		slog.Error("Outcome journal is not configured (journal.url)")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	j, err := journal.Open(ctx, cfg.Journal)
	if err != nil {
		slog.Error("Failed to open journal", "error", err)
		os.Exit(1)
	}
	defer func() {
		_ = j.Close()
	}()

	var outcomes []domain.Outcome
	if statusGame != 0 {
		outcomes, err = j.ForGame(ctx, domain.GameID(statusGame))
	} else {
		outcomes, err = j.Recent(ctx, statusLimit)
	}
	if err != nil {
		slog.Error("Failed to query outcomes", "error", err)
		os.Exit(1)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "GAME\tSTATUS\tLOSERS\tFEE\tTX\tRECORDED\tERROR")

	for _, o := range outcomes {
		losers := make([]string, len(o.Losers))
		for i, l := range o.Losers {
			losers[i] = l.String()
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			o.GameID,
			o.Status,
			strings.Join(losers, ","),
			o.Fee,
			o.TxHash,
			o.RecordedAt.Format(time.RFC3339),
			o.Error,
		)
	}
	_ = w.Flush()
}
