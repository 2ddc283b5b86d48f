package domain

import "math/big"

// CallKind names a state-changing escrow entry point.
type CallKind string

const (
	CallKindStart   CallKind = "start"
	CallKindResolve CallKind = "resolve"
)

// Call is a state-changing request submitted to the escrow contract.
type Call interface {
	Kind() CallKind
	Game() GameID
}

// StartCall moves a Created game to Started.
type StartCall struct {
	GameID GameID
}

// ResolveCall marks losers and computes claimable balances for the winners
// in one ledger transaction.
type ResolveCall struct {
	GameID GameID
	Losers []Address
	Fee    *big.Int
}

func (c StartCall) Kind() CallKind   { return CallKindStart }
func (c ResolveCall) Kind() CallKind { return CallKindResolve }

func (c StartCall) Game() GameID   { return c.GameID }
func (c ResolveCall) Game() GameID { return c.GameID }

// Receipt is the ledger's acknowledgement of a submitted call.
type Receipt struct {
	TxHash      string
	BlockNumber uint64
}
