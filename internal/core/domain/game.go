package domain

import (
	"math/big"
	"slices"
	"strconv"
	"strings"
)

// GameID identifies a game on the escrow contract.
type GameID uint64

func (id GameID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}

// GameState is the on-ledger lifecycle state of a game.
// It only moves forward: Created -> Started -> Resolved.
type GameState uint8

const (
	GameStateCreated  GameState = 0
	GameStateStarted  GameState = 1
	GameStateResolved GameState = 2
)

func (s GameState) String() string {
	switch s {
	case GameStateCreated:
		return "created"
	case GameStateStarted:
		return "started"
	case GameStateResolved:
		return "resolved"
	default:
		return "unknown(" + strconv.Itoa(int(s)) + ")"
	}
}

// Address is a ledger account address, normalized to lower case.
type Address string

// NewAddress normalizes a raw address string.
func NewAddress(raw string) Address {
	return Address(strings.ToLower(strings.TrimSpace(raw)))
}

// Equal compares two addresses case-insensitively.
func (a Address) Equal(other Address) bool {
	return strings.EqualFold(string(a), string(other))
}

func (a Address) String() string {
	return string(a)
}

// Game is a point-in-time read of a game. The ledger owns the authoritative
// copy; callers must not cache it across events.
type Game struct {
	ID        GameID
	State     GameState
	Governor  Address
	Creator   Address
	Players   []Address // join order
	Forfeited []Address
	Stake     *big.Int
}

// GovernedBy reports whether addr is the recorded governor of the game.
func (g *Game) GovernedBy(addr Address) bool {
	return g.Governor != "" && g.Governor.Equal(addr)
}

// HasForfeited reports whether player forfeited.
func (g *Game) HasForfeited(player Address) bool {
	return slices.ContainsFunc(g.Forfeited, player.Equal)
}

// ActivePlayers returns players that have not forfeited, in join order.
func (g *Game) ActivePlayers() []Address {
	active := make([]Address, 0, len(g.Players))
	for _, p := range g.Players {
		if !g.HasForfeited(p) {
			active = append(active, p)
		}
	}
	return active
}
