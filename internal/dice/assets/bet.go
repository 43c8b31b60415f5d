package assets

import (
	"context"

	"cosmossdk.io/log"
	sdkmath "cosmossdk.io/math"

	"github.com/sqfasd/asch-dice-game-dapp/internal/dice/registry"
	"github.com/sqfasd/asch-dice-game-dapp/internal/dice/types"
)

// BetHandler places a wager against an open roll.
type BetHandler struct {
	ledger   types.Ledger
	store    types.Store
	registry *registry.Registry
	logger   log.Logger
}

var _ Handler = (*BetHandler)(nil)

func NewBetHandler(ledger types.Ledger, store types.Store, reg *registry.Registry, logger log.Logger) *BetHandler {
	if ledger == nil {
		panic("bet handler: ledger is nil")
	}
	if store == nil {
		panic("bet handler: store is nil")
	}
	if reg == nil {
		panic("bet handler: registry is nil")
	}
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &BetHandler{
		ledger:   ledger,
		store:    store,
		registry: reg,
		logger:   logger.With("module", types.TxTypeBet),
	}
}

func (h *BetHandler) Type() string { return types.TxTypeBet }

func (h *BetHandler) Create(params types.CreateParams, draft *types.Transaction) (*types.Transaction, error) {
	if draft == nil {
		return nil, types.ErrInvalidParams.Wrap("nil transaction draft")
	}
	draft.Type = types.TxTypeBet
	draft.RecipientID = ""
	draft.Amount = params.Amount
	draft.Asset = types.Asset{Bet: &types.BetAsset{
		Rule:   params.Rule,
		Point:  params.Point,
		RollID: params.RollID,
	}}
	draft.Fee = h.CalculateFee(draft)
	return draft, nil
}

func (h *BetHandler) CalculateFee(tx *types.Transaction) int64 { return feeFor(tx) }

func (h *BetHandler) Verify(ctx context.Context, tx *types.Transaction, _ *types.Account) error {
	if err := checkNoRecipient(tx); err != nil {
		return err
	}
	a := tx.Asset.Bet
	if a == nil {
		return types.ErrInvalidParams.Wrap("missing bet asset")
	}
	if tx.Amount <= 0 {
		return types.ErrInvalidParams.Wrapf("bet amount must be positive, got %d", tx.Amount)
	}
	if a.Rule < types.RuleBigSmall || a.Rule > types.RuleTotal {
		return types.ErrInvalidRule.Wrapf("got %d", a.Rule)
	}
	if a.RollID == "" {
		return types.ErrInvalidParams.Wrap("missing roll id")
	}

	session, err := h.store.GetSession(ctx, a.RollID)
	if err != nil {
		return err
	}
	if session == nil {
		return types.ErrSessionNotFound.Wrapf("roll %s", a.RollID)
	}

	if pending := int64(h.registry.PendingWagers(a.RollID)); pending >= session.MaxPlayer {
		return types.ErrPlayerLimitExceeded.Wrapf("roll %s already has %d of %d bets", a.RollID, pending, session.MaxPlayer)
	}

	// Every bet must be coverable by the escrow at the worst odds with a
	// full table.
	exposure := sdkmath.NewInt(tx.Amount).MulRaw(types.MaxOdds).MulRaw(session.MaxPlayer)
	if exposure.GT(sdkmath.NewInt(session.Amount)) {
		return types.ErrEscrowExceeded.Wrapf("exposure %s exceeds escrow %d", exposure, session.Amount)
	}
	return nil
}

// Apply debits the stake. A roll revealed since the bet was admitted is
// closed, so the bet fails instead of funding a game that already paid out.
func (h *BetHandler) Apply(ctx context.Context, tx *types.Transaction, sender *types.Account) error {
	a := tx.Asset.Bet
	if a == nil {
		return types.ErrInvalidParams.Wrap("missing bet asset")
	}
	if h.registry.IsSettled(a.RollID) {
		return types.ErrGameAlreadySettled.Wrapf("roll %s", a.RollID)
	}
	sum, err := spend(tx.Amount, tx.Fee)
	if err != nil {
		return types.ErrInvalidParams.Wrap(err.Error())
	}
	_, err = h.ledger.MergeAccountAndGet(ctx, types.AccountDiff{Address: sender.Address, Balance: -sum})
	return err
}

func (h *BetHandler) Undo(ctx context.Context, tx *types.Transaction, sender *types.Account) error {
	sum, err := spend(tx.Amount, tx.Fee)
	if err != nil {
		return types.ErrInvalidParams.Wrap(err.Error())
	}
	if err := h.ledger.UndoMerging(ctx, types.AccountDiff{Address: sender.Address, Balance: -sum}); err != nil {
		return undoFailed(err, "undo bet "+tx.ID)
	}
	return nil
}

func (h *BetHandler) ApplyUnconfirmed(ctx context.Context, tx *types.Transaction, sender *types.Account) error {
	a := tx.Asset.Bet
	if a == nil {
		return types.ErrInvalidParams.Wrap("missing bet asset")
	}
	if h.registry.IsSettled(a.RollID) {
		return types.ErrGameAlreadySettled.Wrapf("roll %s", a.RollID)
	}
	sum, err := spend(tx.Amount, tx.Fee)
	if err != nil {
		return types.ErrInvalidParams.Wrap(err.Error())
	}
	if sender.UBalance < sum {
		return types.ErrInsufficientUnconfirmedFunds.Wrapf("have %d need %d", sender.UBalance, sum)
	}
	if _, err := h.ledger.MergeAccountAndGet(ctx, types.AccountDiff{Address: sender.Address, UBalance: -sum}); err != nil {
		return err
	}
	n := h.registry.AddPendingWager(a.RollID)
	h.logger.Debug("bet admitted", "betId", tx.ID, "rollId", a.RollID, "pending", n)
	return nil
}

func (h *BetHandler) UndoUnconfirmed(ctx context.Context, tx *types.Transaction, sender *types.Account) error {
	a := tx.Asset.Bet
	if a == nil {
		return types.ErrInvalidParams.Wrap("missing bet asset")
	}
	sum, err := spend(tx.Amount, tx.Fee)
	if err != nil {
		return types.ErrInvalidParams.Wrap(err.Error())
	}
	if err := h.ledger.UndoMerging(ctx, types.AccountDiff{Address: sender.Address, UBalance: -sum}); err != nil {
		return undoFailed(err, "undo unconfirmed bet "+tx.ID)
	}
	h.registry.RemovePendingWager(a.RollID)
	return nil
}

func (h *BetHandler) Ready(*types.Transaction, *types.Account) error { return nil }

func (h *BetHandler) Save(ctx context.Context, tx *types.Transaction) error {
	if tx.Asset.Bet == nil {
		return types.ErrInvalidParams.Wrap("missing bet asset")
	}
	return h.store.SaveBet(ctx, tx.ID, *tx.Asset.Bet)
}

func (h *BetHandler) Load(ctx context.Context, txID string) (*types.Asset, error) {
	a, err := h.store.LoadBet(ctx, txID)
	if err != nil || a == nil {
		return nil, err
	}
	return &types.Asset{Bet: a}, nil
}
