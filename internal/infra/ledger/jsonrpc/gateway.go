package jsonrpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/vietddude/governor/internal/core/domain"
	"github.com/vietddude/governor/internal/infra/ledger"
)

const DefaultTimeout = 30 * time.Second

// Config holds relayer connection settings.
type Config struct {
	URL      string        `yaml:"url" env:"GOVERNOR_LEDGER_URL"`
	Timeout  time.Duration `yaml:"timeout" env:"GOVERNOR_LEDGER_TIMEOUT"`
	Contract string        `yaml:"-"`
}

// Gateway implements ledger.Gateway over JSON-RPC.
type Gateway struct {
	rpc      *client
	contract domain.Address
	log      *slog.Logger
}

var _ ledger.Gateway = (*Gateway)(nil)

// NewGateway creates a gateway bound to one escrow contract.
func NewGateway(cfg Config) (*Gateway, error) {
	if cfg.URL == "" {
		return nil, errors.New("ledger url is required")
	}
	if cfg.Contract == "" {
		return nil, errors.New("escrow contract address is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Gateway{
		rpc:      newClient(cfg.URL, cfg.Timeout),
		contract: domain.NewAddress(cfg.Contract),
		log:      slog.Default().With("component", "ledger"),
	}, nil
}

// Close releases idle connections.
func (g *Gateway) Close() error {
	g.rpc.close()
	return nil
}

func (g *Gateway) LatestBlock(ctx context.Context) (uint64, error) {
	var head quantity
	ok, err := g.rpc.call(ctx, "escrow_blockNumber", []any{}, &head)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, errors.New("escrow_blockNumber: empty result")
	}
	return uint64(head), nil
}

type logFilter struct {
	Address   domain.Address `json:"address"`
	FromBlock quantity       `json:"fromBlock"`
	ToBlock   quantity       `json:"toBlock"`
}

type wireLog struct {
	BlockNumber quantity        `json:"blockNumber"`
	LogIndex    quantity        `json:"logIndex"`
	TxHash      string          `json:"transactionHash"`
	Event       string          `json:"event"`
	Data        json.RawMessage `json:"data"`
}

func (g *Gateway) GetLogs(ctx context.Context, fromBlock, toBlock uint64) ([]ledger.RawLog, error) {
	var raw []wireLog
	_, err := g.rpc.call(ctx, "escrow_getLogs", []any{logFilter{
		Address:   g.contract,
		FromBlock: quantity(fromBlock),
		ToBlock:   quantity(toBlock),
	}}, &raw)
	if err != nil {
		return nil, err
	}

	logs := make([]ledger.RawLog, 0, len(raw))
	for _, l := range raw {
		logs = append(logs, ledger.RawLog{
			BlockNumber: uint64(l.BlockNumber),
			LogIndex:    uint64(l.LogIndex),
			TxHash:      l.TxHash,
			Event:       l.Event,
			Data:        l.Data,
		})
	}
	return logs, nil
}

type wireGame struct {
	ID        quantity `json:"id"`
	State     uint8    `json:"state"`
	Governor  string   `json:"governor"`
	Creator   string   `json:"creator"`
	Players   []string `json:"players"`
	Forfeited []string `json:"forfeited"`
	Stake     amount   `json:"stake"`
}

func (w wireGame) toDomain() *domain.Game {
	return &domain.Game{
		ID:        domain.GameID(w.ID),
		State:     domain.GameState(w.State),
		Governor:  domain.NewAddress(w.Governor),
		Creator:   domain.NewAddress(w.Creator),
		Players:   addresses(w.Players),
		Forfeited: addresses(w.Forfeited),
		Stake:     w.Stake.value(),
	}
}

func (g *Gateway) ReadGame(ctx context.Context, id domain.GameID) (*domain.Game, error) {
	var w wireGame
	ok, err := g.rpc.call(ctx, "escrow_getGame", []any{g.contract, quantity(id)}, &w)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("game %s: %w", id, ledger.ErrGameNotFound)
	}
	game := w.toDomain()
	game.ID = id
	return game, nil
}

type listFilter struct {
	Address  domain.Address `json:"address"`
	Governor domain.Address `json:"governor,omitempty"`
	State    uint8          `json:"state"`
	Offset   int            `json:"offset"`
	Limit    int            `json:"limit"`
}

func (g *Gateway) ListGames(ctx context.Context, filter ledger.GameFilter) ([]domain.GameID, error) {
	var raw []quantity
	_, err := g.rpc.call(ctx, "escrow_listGames", []any{listFilter{
		Address:  g.contract,
		Governor: filter.Governor,
		State:    uint8(filter.State),
		Offset:   filter.Offset,
		Limit:    filter.Limit,
	}}, &raw)
	if err != nil {
		return nil, err
	}

	ids := make([]domain.GameID, len(raw))
	for i, q := range raw {
		ids[i] = domain.GameID(q)
	}
	return ids, nil
}

type startParams struct {
	Address domain.Address `json:"address"`
	GameID  quantity       `json:"gameId"`
}

type resolveParams struct {
	Address domain.Address   `json:"address"`
	GameID  quantity         `json:"gameId"`
	Losers  []domain.Address `json:"losers"`
	Fee     amount           `json:"fee"`
}

type wireReceipt struct {
	TxHash      string    `json:"transactionHash"`
	BlockNumber quantity  `json:"blockNumber"`
	Status      *quantity `json:"status"`
}

// Submit sends a state-changing call. Every failure is tagged as
// deterministic or transient.
func (g *Gateway) Submit(ctx context.Context, call domain.Call) (*domain.Receipt, error) {
	var (
		method string
		params any
	)
	switch c := call.(type) {
	case domain.StartCall:
		method = "escrow_start"
		params = startParams{Address: g.contract, GameID: quantity(c.GameID)}
	case domain.ResolveCall:
		losers := c.Losers
		if losers == nil {
			losers = []domain.Address{}
		}
		method = "escrow_resolve"
		params = resolveParams{
			Address: g.contract,
			GameID:  quantity(c.GameID),
			Losers:  losers,
			Fee:     amount{c.Fee},
		}
	default:
		return nil, &ledger.DeterministicError{Err: fmt.Errorf("unsupported call %T", call)}
	}

	var w wireReceipt
	ok, err := g.rpc.call(ctx, method, []any{params}, &w)
	if err != nil {
		return nil, ledger.Wrap(err)
	}
	if !ok {
		return nil, &ledger.TransientError{Err: fmt.Errorf("%s: empty receipt", method)}
	}
	if w.Status != nil && *w.Status == 0 {
		return nil, &ledger.DeterministicError{Err: fmt.Errorf("%s: execution reverted in tx %s", method, w.TxHash)}
	}

	g.log.Debug("Call submitted", "method", method, "game", call.Game(), "tx", w.TxHash)
	return &domain.Receipt{TxHash: w.TxHash, BlockNumber: uint64(w.BlockNumber)}, nil
}

func addresses(raw []string) []domain.Address {
	out := make([]domain.Address, 0, len(raw))
	for _, s := range raw {
		out = append(out, domain.NewAddress(s))
	}
	return out
}
