// Package ledger defines the boundary between the governor and the escrow
// contract's host ledger.
//
// The engine only consumes the small role interfaces declared here; concrete
// clients (see the jsonrpc sub-package) implement all of them through Gateway.
package ledger

import (
	"context"
	"encoding/json"

	"github.com/vietddude/governor/internal/core/domain"
)

// RawLog is an undecoded contract log entry.
type RawLog struct {
	BlockNumber uint64          `json:"blockNumber"`
	LogIndex    uint64          `json:"logIndex"`
	TxHash      string          `json:"transactionHash"`
	Event       string          `json:"event"`
	Data        json.RawMessage `json:"data"`
}

// GameFilter selects games for ListGames.
type GameFilter struct {
	Governor domain.Address
	State    domain.GameState
	Offset   int
	Limit    int
}

// HeadReader reads the ledger's current block height.
type HeadReader interface {
	LatestBlock(ctx context.Context) (uint64, error)
}

// LogSource fetches and decodes contract logs.
type LogSource interface {
	HeadReader

	// GetLogs returns contract logs in [fromBlock, toBlock], in log order.
	GetLogs(ctx context.Context, fromBlock, toBlock uint64) ([]RawLog, error)

	// Decode turns a raw log into a typed event. Logs that are not escrow
	// lifecycle events yield false.
	Decode(log RawLog) (domain.Event, bool)
}

// GameReader reads the current state of a game.
type GameReader interface {
	ReadGame(ctx context.Context, id domain.GameID) (*domain.Game, error)
}

// GameLister pages through games matching a filter.
type GameLister interface {
	ListGames(ctx context.Context, filter GameFilter) ([]domain.GameID, error)
}

// Submitter sends a state-changing call. Failures are reported as
// *DeterministicError or *TransientError.
type Submitter interface {
	Submit(ctx context.Context, call domain.Call) (*domain.Receipt, error)
}

// Gateway is the full ledger capability set.
type Gateway interface {
	LogSource
	GameReader
	GameLister
	Submitter
}
