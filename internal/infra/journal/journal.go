// Package journal keeps an audit trail of resolve submissions. The engine
// only writes to it; nothing read back here influences resolution.
package journal

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"github.com/vietddude/governor/internal/core/domain"
	"github.com/vietddude/governor/internal/infra/journal/migrations"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

func init() {
	sqlx.BindDriver(DriverSQLite, sqlx.QUESTION)
}

// Config holds journal connection settings. An empty URL disables the
// journal.
type Config struct {
	Driver string `yaml:"driver" env:"GOVERNOR_JOURNAL_DRIVER"`
	URL    string `yaml:"url" env:"GOVERNOR_JOURNAL_URL"`
}

// Enabled reports whether a journal is configured.
func (c Config) Enabled() bool {
	return c.URL != ""
}

// Journal stores outcomes in Postgres or SQLite.
type Journal struct {
	db     *sqlx.DB
	driver string
}

// Open connects and applies pending migrations.
func Open(ctx context.Context, cfg Config) (*Journal, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = DriverPostgres
	}

	var dialect goose.Dialect
	switch driver {
	case DriverPostgres:
		dialect = goose.DialectPostgres
	case DriverSQLite:
		dialect = goose.DialectSQLite3
		if cfg.URL != ":memory:" {
			if dir := filepath.Dir(cfg.URL); dir != "" && dir != "." {
				if err := os.MkdirAll(dir, 0o755); err != nil {
					return nil, fmt.Errorf("create journal directory: %w", err)
				}
			}
		}
	default:
		return nil, fmt.Errorf("unsupported journal driver %q", driver)
	}

	db, err := sqlx.Open(driver, cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}

	if driver == DriverSQLite {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	} else {
		db.SetMaxOpenConns(5)
		db.SetMaxIdleConns(2)
		db.SetConnMaxLifetime(time.Hour)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping journal: %w", err)
	}

	provider, err := goose.NewProvider(dialect, db.DB, migrations.FS)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to load journal migrations: %w", err)
	}
	if _, err := provider.Up(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to migrate journal: %w", err)
	}

	return &Journal{db: db, driver: driver}, nil
}

// Close closes the database connection.
func (j *Journal) Close() error {
	return j.db.Close()
}

type outcomeRow struct {
	RunID      string `db:"run_id"`
	GameID     int64  `db:"game_id"`
	Losers     string `db:"losers"`
	Fee        string `db:"fee"`
	TxHash     string `db:"tx_hash"`
	Status     string `db:"status"`
	ErrorMsg   string `db:"error_msg"`
	RecordedAt int64  `db:"recorded_at"`
}

// RecordOutcome stores one resolve submission.
func (j *Journal) RecordOutcome(ctx context.Context, o domain.Outcome) error {
	losers, err := json.Marshal(o.Losers)
	if err != nil {
		return fmt.Errorf("encode losers: %w", err)
	}
	fee := "0"
	if o.Fee != nil {
		fee = o.Fee.String()
	}
	recordedAt := o.RecordedAt
	if recordedAt.IsZero() {
		recordedAt = time.Now()
	}

	query := `
		INSERT INTO governor_outcomes (run_id, game_id, losers, fee, tx_hash, status, error_msg, recorded_at)
		VALUES (:run_id, :game_id, :losers, :fee, :tx_hash, :status, :error_msg, :recorded_at)
	`
	_, err = j.db.NamedExecContext(ctx, query, outcomeRow{
		RunID:      o.RunID,
		GameID:     int64(o.GameID),
		Losers:     string(losers),
		Fee:        fee,
		TxHash:     o.TxHash,
		Status:     string(o.Status),
		ErrorMsg:   o.Error,
		RecordedAt: recordedAt.UnixMilli(),
	})
	if err != nil {
		return fmt.Errorf("failed to record outcome for game %s: %w", o.GameID, err)
	}
	return nil
}

// Recent returns the latest outcomes, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]domain.Outcome, error) {
	query := j.db.Rebind(`
		SELECT run_id, game_id, losers, fee, tx_hash, status, error_msg, recorded_at
		FROM governor_outcomes
		ORDER BY recorded_at DESC
		LIMIT ?
	`)
	var rows []outcomeRow
	if err := j.db.SelectContext(ctx, &rows, query, limit); err != nil {
		return nil, fmt.Errorf("failed to list outcomes: %w", err)
	}
	return toOutcomes(rows)
}

// ForGame returns every outcome recorded for a game, oldest first.
func (j *Journal) ForGame(ctx context.Context, id domain.GameID) ([]domain.Outcome, error) {
	query := j.db.Rebind(`
		SELECT run_id, game_id, losers, fee, tx_hash, status, error_msg, recorded_at
		FROM governor_outcomes
		WHERE game_id = ?
		ORDER BY recorded_at ASC
	`)
	var rows []outcomeRow
	if err := j.db.SelectContext(ctx, &rows, query, int64(id)); err != nil {
		return nil, fmt.Errorf("failed to list outcomes for game %s: %w", id, err)
	}
	return toOutcomes(rows)
}

func toOutcomes(rows []outcomeRow) ([]domain.Outcome, error) {
	out := make([]domain.Outcome, 0, len(rows))
	for _, r := range rows {
		var losers []domain.Address
		if err := json.Unmarshal([]byte(r.Losers), &losers); err != nil {
			return nil, fmt.Errorf("decode losers for run %s: %w", r.RunID, err)
		}
		fee, ok := new(big.Int).SetString(r.Fee, 10)
		if !ok {
			return nil, fmt.Errorf("invalid fee %q for run %s", r.Fee, r.RunID)
		}
		out = append(out, domain.Outcome{
			GameID:     domain.GameID(r.GameID),
			RunID:      r.RunID,
			Losers:     losers,
			Fee:        fee,
			TxHash:     r.TxHash,
			Status:     domain.OutcomeStatus(r.Status),
			Error:      r.ErrorMsg,
			RecordedAt: time.UnixMilli(r.RecordedAt),
		})
	}
	return out, nil
}
