package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"

	errorsmod "cosmossdk.io/errors"
	"cosmossdk.io/log"
	abci "github.com/cometbft/cometbft/abci/types"

	"github.com/sqfasd/asch-dice-game-dapp/internal/codec"
	"github.com/sqfasd/asch-dice-game-dapp/internal/dice/assets"
	"github.com/sqfasd/asch-dice-game-dapp/internal/dice/registry"
	"github.com/sqfasd/asch-dice-game-dapp/internal/dice/settlement"
	"github.com/sqfasd/asch-dice-game-dapp/internal/dice/types"
	"github.com/sqfasd/asch-dice-game-dapp/internal/state"
	"github.com/sqfasd/asch-dice-game-dapp/internal/store"
)

const (
	AppVersion uint64 = 1
)

type Options struct {
	// AllowMint enables the unsigned bank/mint faucet. Localnets only.
	AllowMint bool
}

// DiceApp is the ABCI application hosting the dice asset handlers.
type DiceApp struct {
	*abci.BaseApplication

	ledger    *state.Ledger
	store     *store.Store
	registry  *registry.Registry
	pipeline  *Pipeline
	submitter *Submitter
	logger    log.Logger
	opts      Options

	mu       sync.Mutex
	height   int64
	lastHash []byte
	block    []*types.Transaction
}

func New(ctx context.Context, ledger *state.Ledger, st *store.Store, logger log.Logger, opts Options) (*DiceApp, error) {
	if ledger == nil || st == nil {
		return nil, fmt.Errorf("ledger and store are required")
	}
	if logger == nil {
		logger = log.NewNopLogger()
	}

	if err := ledger.ResetUnconfirmed(ctx); err != nil {
		return nil, err
	}
	height, err := ledger.Height()
	if err != nil {
		return nil, err
	}
	// Rows above the committed height belong to a block that was executed
	// but never committed. CometBFT replays it, so they must go.
	pruned, err := st.PruneAbove(ctx, height)
	if err != nil {
		return nil, err
	}
	if pruned > 0 {
		logger.Info("pruned uncommitted transactions", "height", height, "count", pruned)
	}
	reg := registry.New()
	if err := reg.Rebuild(ctx, st); err != nil {
		return nil, err
	}
	router, err := assets.NewRouter(
		assets.NewRollHandler(ledger, st, logger),
		assets.NewBetHandler(ledger, st, reg, logger),
		assets.NewRevealHandler(ledger, st, reg, logger),
	)
	if err != nil {
		return nil, err
	}
	hash, err := ledger.AppHash(height)
	if err != nil {
		return nil, err
	}

	p := NewPipeline(router, ledger, st, logger)
	a := &DiceApp{
		BaseApplication: abci.NewBaseApplication(),
		ledger:          ledger,
		store:           st,
		registry:        reg,
		pipeline:        p,
		submitter:       NewSubmitter(p),
		logger:          logger.With("module", "app"),
		opts:            opts,
		height:          height,
		lastHash:        hash,
	}
	a.logger.Info("dice app loaded", "height", height, "types", strings.Join(router.Types(), ","))
	return a, nil
}

func (a *DiceApp) Submitter() *Submitter { return a.submitter }

func (a *DiceApp) Info(_ context.Context, _ *abci.InfoRequest) (*abci.InfoResponse, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	return &abci.InfoResponse{
		Data:             "dice (v0)",
		Version:          "v0",
		AppVersion:       AppVersion,
		LastBlockHeight:  a.height,
		LastBlockAppHash: a.lastHash,
	}, nil
}

func (a *DiceApp) CheckTx(ctx context.Context, req *abci.CheckTxRequest) (*abci.CheckTxResponse, error) {
	env, err := codec.DecodeTxEnvelope(req.Tx)
	if err != nil {
		return checkErr(err), nil
	}
	if env.Type == codec.TxTypeBankMint {
		if _, err := a.decodeMint(env); err != nil {
			return checkErr(err), nil
		}
		return &abci.CheckTxResponse{Code: 0}, nil
	}
	tx, err := decodeSigned(env, req.Tx)
	if err != nil {
		return checkErr(err), nil
	}
	// Our own submissions are pooled before they are broadcast.
	if a.pipeline.IsPooled(ctx, tx.ID) {
		return &abci.CheckTxResponse{Code: 0}, nil
	}
	if err := a.pipeline.ProcessUnconfirmed(ctx, tx); err != nil {
		return checkErr(err), nil
	}
	return &abci.CheckTxResponse{Code: 0}, nil
}

func (a *DiceApp) FinalizeBlock(ctx context.Context, req *abci.FinalizeBlockRequest) (*abci.FinalizeBlockResponse, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.block = a.block[:0]
	txResults := make([]*abci.ExecTxResult, 0, len(req.Txs))
	err := a.pipeline.RunBlock(ctx, func(ctx context.Context) error {
		for _, txBytes := range req.Txs {
			res, err := a.deliverTx(ctx, txBytes, req.Height)
			if err != nil {
				// Corrupted state: undo the block and halt loudly.
				if rerr := a.pipeline.rollbackBlock(ctx, a.block); rerr != nil {
					a.logger.Error("block rollback failed", "height", req.Height, "err", rerr)
				} else {
					a.logger.Error("block reverted", "height", req.Height, "txs", len(a.block), "err", err)
				}
				a.block = a.block[:0]
				return err
			}
			txResults = append(txResults, res)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	hash, err := a.ledger.AppHash(req.Height)
	if err != nil {
		return nil, err
	}
	a.height = req.Height
	a.lastHash = hash

	return &abci.FinalizeBlockResponse{
		TxResults: txResults,
		AppHash:   a.lastHash,
	}, nil
}

func (a *DiceApp) Commit(_ context.Context, _ *abci.CommitRequest) (*abci.CommitResponse, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.ledger.Commit(a.height); err != nil {
		return nil, err
	}
	a.block = a.block[:0]
	return &abci.CommitResponse{}, nil
}

// deliverTx executes one block transaction inside Pipeline.RunBlock. Only
// integrity failures are returned as errors; everything else becomes a
// failed tx result.
func (a *DiceApp) deliverTx(ctx context.Context, txBytes []byte, height int64) (*abci.ExecTxResult, error) {
	env, err := codec.DecodeTxEnvelope(txBytes)
	if err != nil {
		return execErr(err), nil
	}

	if env.Type == codec.TxTypeBankMint {
		msg, err := a.decodeMint(env)
		if err != nil {
			return execErr(err), nil
		}
		if _, err := a.ledger.Mint(ctx, msg.To, msg.Amount); err != nil {
			return execErr(err), nil
		}
		return okEvent(types.EventTypeBankMinted, map[string]string{
			"to":     msg.To,
			"amount": fmt.Sprintf("%d", msg.Amount),
		}), nil
	}

	tx, err := decodeSigned(env, txBytes)
	if err != nil {
		return execErr(err), nil
	}
	if err := a.pipeline.apply(ctx, height, tx); err != nil {
		if types.Class(err) == types.ClassIntegrity && !isDishonestReveal(err) {
			return nil, err
		}
		return execErr(err), nil
	}
	a.block = append(a.block, tx)
	return a.txEvents(ctx, tx), nil
}

// isDishonestReveal separates a reveal that fails its commitment check,
// which is the sender's fault, from corrupted node state.
func isDishonestReveal(err error) bool {
	return errors.Is(err, types.ErrCommitmentMismatch)
}

func (a *DiceApp) decodeMint(env codec.TxEnvelope) (codec.BankMintTx, error) {
	if !a.opts.AllowMint {
		return codec.BankMintTx{}, types.ErrUnknownTxType.Wrap("bank/mint is disabled")
	}
	var msg codec.BankMintTx
	if err := json.Unmarshal(env.Value, &msg); err != nil {
		return codec.BankMintTx{}, types.ErrInvalidParams.Wrap("bad bank/mint value")
	}
	if msg.To == "" || msg.Amount <= 0 {
		return codec.BankMintTx{}, types.ErrInvalidParams.Wrap("missing to/amount")
	}
	return msg, nil
}

func decodeSigned(env codec.TxEnvelope, txBytes []byte) (*types.Transaction, error) {
	if err := codec.VerifyEnvelope(env); err != nil {
		return nil, err
	}
	return codec.DecodeDiceTx(env, codec.TxID(txBytes))
}

func (a *DiceApp) txEvents(ctx context.Context, tx *types.Transaction) *abci.ExecTxResult {
	switch {
	case tx.Asset.Roll != nil:
		return okEvent(types.EventTypeRollOpened, map[string]string{
			"rollId":    tx.ID,
			"creator":   tx.SenderID,
			"amount":    fmt.Sprintf("%d", tx.Amount),
			"maxPlayer": fmt.Sprintf("%d", tx.Asset.Roll.MaxPlayer),
		})
	case tx.Asset.Bet != nil:
		return okEvent(types.EventTypeBetPlaced, map[string]string{
			"betId":  tx.ID,
			"rollId": tx.Asset.Bet.RollID,
			"bettor": tx.SenderID,
			"amount": fmt.Sprintf("%d", tx.Amount),
			"rule":   fmt.Sprintf("%d", tx.Asset.Bet.Rule),
			"point":  fmt.Sprintf("%d", tx.Asset.Bet.Point),
		})
	case tx.Asset.Reveal != nil:
		r := tx.Asset.Reveal
		res := okEvent(types.EventTypeRollRevealed, map[string]string{
			"rollId":   r.RollID,
			"revealId": tx.ID,
			"revealer": tx.SenderID,
			"points":   joinPoints(r.Points),
		})
		res.Events = append(res.Events, a.settlementEvents(ctx, r)...)
		return res
	}
	return &abci.ExecTxResult{Code: 0}
}

// settlementEvents reports each bet's outcome. The ledger was already moved
// by the reveal handler; this only recomputes the same result for clients.
func (a *DiceApp) settlementEvents(ctx context.Context, r *types.RevealAsset) []abci.Event {
	session, err := a.store.GetSession(ctx, r.RollID)
	if err != nil || session == nil {
		return nil
	}
	wagers, err := a.store.GetWagersForSession(ctx, r.RollID)
	if err != nil {
		return nil
	}
	res, err := settlement.Settle(r.Points, session, wagers)
	if err != nil {
		return nil
	}
	out := make([]abci.Event, 0, len(res.Wagers))
	for _, w := range res.Wagers {
		ev := okEvent(types.EventTypeWagerSettled, map[string]string{
			"rollId":      r.RollID,
			"betId":       w.ID,
			"bettor":      w.SenderID,
			"won":         strconv.FormatBool(w.Won),
			"odds":        fmt.Sprintf("%d", w.Odds),
			"finalAmount": fmt.Sprintf("%d", w.FinalAmount),
		})
		out = append(out, ev.Events...)
	}
	return out
}

// RollDetail is the /roll/<id> query view.
type RollDetail struct {
	Roll   types.Session     `json:"roll"`
	Bets   []types.Wager     `json:"bets"`
	Reveal *types.Disclosure `json:"reveal,omitempty"`
}

func (a *DiceApp) Query(ctx context.Context, req *abci.QueryRequest) (*abci.QueryResponse, error) {
	a.mu.Lock()
	height := a.height
	a.mu.Unlock()

	// Paths:
	// - /account/<addr>
	// - /roll/<id>
	// - /rolls?limit=&offset=
	path := strings.TrimSpace(req.Path)
	switch {
	case path == "/rolls" || strings.HasPrefix(path, "/rolls?"):
		limit, offset := 20, 0
		if i := strings.IndexByte(path, '?'); i >= 0 {
			q, err := url.ParseQuery(path[i+1:])
			if err != nil {
				return queryErr(types.ErrInvalidParams.Wrap("bad query string"), height), nil
			}
			if v := q.Get("limit"); v != "" {
				if limit, err = strconv.Atoi(v); err != nil {
					return queryErr(types.ErrInvalidParams.Wrap("bad limit"), height), nil
				}
			}
			if v := q.Get("offset"); v != "" {
				if offset, err = strconv.Atoi(v); err != nil {
					return queryErr(types.ErrInvalidParams.Wrap("bad offset"), height), nil
				}
			}
		}
		rolls, err := a.store.ListRolls(ctx, limit, offset)
		if err != nil {
			return queryErr(err, height), nil
		}
		b, _ := json.Marshal(rolls)
		return &abci.QueryResponse{Code: 0, Value: b, Height: height}, nil
	case strings.HasPrefix(path, "/account/"):
		addr := strings.TrimPrefix(path, "/account/")
		acc, err := a.ledger.GetAccount(ctx, addr)
		if err != nil {
			return queryErr(err, height), nil
		}
		b, _ := json.Marshal(acc)
		return &abci.QueryResponse{Code: 0, Value: b, Height: height}, nil
	case strings.HasPrefix(path, "/roll/"):
		id := strings.TrimPrefix(path, "/roll/")
		session, err := a.store.GetSession(ctx, id)
		if err != nil {
			return queryErr(err, height), nil
		}
		if session == nil {
			return queryErr(types.ErrSessionNotFound.Wrap(id), height), nil
		}
		bets, err := a.store.GetWagersForSession(ctx, id)
		if err != nil {
			return queryErr(err, height), nil
		}
		reveal, err := a.store.GetRevealForRoll(ctx, id)
		if err != nil {
			return queryErr(err, height), nil
		}
		if bets == nil {
			bets = []types.Wager{}
		}
		b, _ := json.Marshal(RollDetail{Roll: *session, Bets: bets, Reveal: reveal})
		return &abci.QueryResponse{Code: 0, Value: b, Height: height}, nil
	default:
		return &abci.QueryResponse{Code: 1, Log: "unknown query path", Height: height}, nil
	}
}

func checkErr(err error) *abci.CheckTxResponse {
	codespace, code, logMsg := errorsmod.ABCIInfo(err, false)
	return &abci.CheckTxResponse{Code: code, Codespace: codespace, Log: logMsg}
}

func execErr(err error) *abci.ExecTxResult {
	codespace, code, logMsg := errorsmod.ABCIInfo(err, false)
	return &abci.ExecTxResult{Code: code, Codespace: codespace, Log: logMsg}
}

func queryErr(err error, height int64) *abci.QueryResponse {
	codespace, code, logMsg := errorsmod.ABCIInfo(err, false)
	return &abci.QueryResponse{Code: code, Codespace: codespace, Log: logMsg, Height: height}
}

func joinPoints(points []int64) string {
	parts := make([]string, len(points))
	for i, p := range points {
		parts[i] = strconv.FormatInt(p, 10)
	}
	return strings.Join(parts, ",")
}

func okEvent(typ string, attrs map[string]string) *abci.ExecTxResult {
	ev := abci.Event{Type: typ}
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		ev.Attributes = append(ev.Attributes, abci.EventAttribute{Key: k, Value: attrs[k], Index: true})
	}
	return &abci.ExecTxResult{
		Code:   0,
		Events: []abci.Event{ev},
	}
}
