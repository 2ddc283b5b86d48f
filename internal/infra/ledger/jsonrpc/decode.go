package jsonrpc

import (
	"encoding/json"

	"github.com/vietddude/governor/internal/core/domain"
	"github.com/vietddude/governor/internal/infra/ledger"
)

type createdData struct {
	GameID  quantity `json:"gameId"`
	Creator string   `json:"creator"`
	Stake   amount   `json:"stake"`
}

type playerData struct {
	GameID quantity `json:"gameId"`
	Player string   `json:"player"`
}

type startedData struct {
	GameID quantity `json:"gameId"`
}

type resolvedData struct {
	GameID  quantity `json:"gameId"`
	Winners []string `json:"winners"`
	Losers  []string `json:"losers"`
}

// Decode maps a relayer log to an escrow event. Unknown event names and
// malformed payloads yield false.
func (g *Gateway) Decode(raw ledger.RawLog) (domain.Event, bool) {
	meta := domain.EventMeta{
		BlockNumber: raw.BlockNumber,
		LogIndex:    raw.LogIndex,
		TxHash:      raw.TxHash,
	}

	var (
		ev  domain.Event
		err error
	)
	switch domain.EventKind(raw.Event) {
	case domain.EventKindCreated:
		var d createdData
		if err = json.Unmarshal(raw.Data, &d); err == nil {
			ev = domain.GameCreated{
				EventMeta: meta,
				GameID:    domain.GameID(d.GameID),
				Creator:   domain.NewAddress(d.Creator),
				Stake:     d.Stake.value(),
			}
		}
	case domain.EventKindJoined:
		var d playerData
		if err = json.Unmarshal(raw.Data, &d); err == nil {
			ev = domain.PlayerJoined{EventMeta: meta, GameID: domain.GameID(d.GameID), Player: domain.NewAddress(d.Player)}
		}
	case domain.EventKindForfeited:
		var d playerData
		if err = json.Unmarshal(raw.Data, &d); err == nil {
			ev = domain.PlayerForfeited{EventMeta: meta, GameID: domain.GameID(d.GameID), Player: domain.NewAddress(d.Player)}
		}
	case domain.EventKindStarted:
		var d startedData
		if err = json.Unmarshal(raw.Data, &d); err == nil {
			ev = domain.GameStarted{EventMeta: meta, GameID: domain.GameID(d.GameID)}
		}
	case domain.EventKindResolved:
		var d resolvedData
		if err = json.Unmarshal(raw.Data, &d); err == nil {
			ev = domain.GameResolved{
				EventMeta: meta,
				GameID:    domain.GameID(d.GameID),
				Winners:   addresses(d.Winners),
				Losers:    addresses(d.Losers),
			}
		}
	default:
		return nil, false
	}

	if err != nil {
		g.log.Warn("Dropping malformed log",
			"event", raw.Event,
			"block", raw.BlockNumber,
			"tx", raw.TxHash,
			"error", err,
		)
		return nil, false
	}
	return ev, true
}
