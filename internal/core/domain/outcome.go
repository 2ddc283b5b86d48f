package domain

import (
	"math/big"
	"time"
)

type OutcomeStatus string

const (
	OutcomeStatusSubmitted OutcomeStatus = "submitted"
	OutcomeStatusFailed    OutcomeStatus = "failed"
)

// Outcome records one resolve submission made by a lifecycle task.
type Outcome struct {
	GameID     GameID
	RunID      string
	Losers     []Address
	Fee        *big.Int
	TxHash     string
	Status     OutcomeStatus
	Error      string
	RecordedAt time.Time
}
