// Package lifecycle runs the embedder's resolution routine for a started game
// and commits its outcome to the ledger.
package lifecycle

import (
	"context"
	"errors"
	"fmt"

	"github.com/vietddude/governor/internal/core/domain"
)

// ResolveFunc commits the outcome of a game: losers are marked and winner
// balances computed in one ledger call. It may be called at most once per task.
type ResolveFunc func(ctx context.Context, losers []domain.Address) error

// Resolver is the game-specific resolution routine. Returning without calling
// resolve leaves the game started; a later event or recovery pass retries.
type Resolver func(ctx context.Context, game *domain.Game, resolve ResolveFunc) error

// ErrAlreadyResolved is returned by a ResolveFunc called a second time.
var ErrAlreadyResolved = errors.New("resolve already called for this task")

// ErrClaimLost cancels a task whose claim on the game expired or was taken
// over while it ran.
var ErrClaimLost = errors.New("claim on game lost while task running")

// OutcomeRecorder receives every resolve submission. Implementations must not
// influence engine decisions.
type OutcomeRecorder interface {
	RecordOutcome(ctx context.Context, outcome domain.Outcome) error
}

// TaskError reports a lifecycle task that failed. The claim on the game is
// released and the game stays started.
type TaskError struct {
	GameID domain.GameID
	RunID  string
	Err    error
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("lifecycle task for game %s (run %s): %v", e.GameID, e.RunID, e.Err)
}

func (e *TaskError) Unwrap() error { return e.Err }
