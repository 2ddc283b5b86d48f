package domain

import "math/big"

// EventKind names an escrow contract event.
type EventKind string

const (
	EventKindCreated   EventKind = "GameCreated"
	EventKindJoined    EventKind = "PlayerJoined"
	EventKindForfeited EventKind = "PlayerForfeited"
	EventKindStarted   EventKind = "GameStarted"
	EventKindResolved  EventKind = "GameResolved"
)

// EventMeta locates an event in the ledger's log.
type EventMeta struct {
	BlockNumber uint64
	LogIndex    uint64
	TxHash      string
}

// Event is a decoded escrow contract event. The set of implementations is
// closed: GameCreated, PlayerJoined, PlayerForfeited, GameStarted and
// GameResolved.
type Event interface {
	Kind() EventKind
	Game() GameID
	Meta() EventMeta
	isEvent()
}

type GameCreated struct {
	EventMeta
	GameID  GameID
	Creator Address
	Stake   *big.Int
}

type PlayerJoined struct {
	EventMeta
	GameID GameID
	Player Address
}

type PlayerForfeited struct {
	EventMeta
	GameID GameID
	Player Address
}

type GameStarted struct {
	EventMeta
	GameID GameID
}

type GameResolved struct {
	EventMeta
	GameID  GameID
	Winners []Address
	Losers  []Address
}

func (e GameCreated) Kind() EventKind     { return EventKindCreated }
func (e PlayerJoined) Kind() EventKind    { return EventKindJoined }
func (e PlayerForfeited) Kind() EventKind { return EventKindForfeited }
func (e GameStarted) Kind() EventKind     { return EventKindStarted }
func (e GameResolved) Kind() EventKind    { return EventKindResolved }

func (e GameCreated) Game() GameID     { return e.GameID }
func (e PlayerJoined) Game() GameID    { return e.GameID }
func (e PlayerForfeited) Game() GameID { return e.GameID }
func (e GameStarted) Game() GameID     { return e.GameID }
func (e GameResolved) Game() GameID    { return e.GameID }

func (e GameCreated) Meta() EventMeta     { return e.EventMeta }
func (e PlayerJoined) Meta() EventMeta    { return e.EventMeta }
func (e PlayerForfeited) Meta() EventMeta { return e.EventMeta }
func (e GameStarted) Meta() EventMeta     { return e.EventMeta }
func (e GameResolved) Meta() EventMeta    { return e.EventMeta }

func (GameCreated) isEvent()     {}
func (PlayerJoined) isEvent()    {}
func (PlayerForfeited) isEvent() {}
func (GameStarted) isEvent()     {}
func (GameResolved) isEvent()    {}
