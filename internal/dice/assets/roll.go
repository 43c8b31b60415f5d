package assets

import (
	"context"

	"cosmossdk.io/log"

	"github.com/sqfasd/asch-dice-game-dapp/internal/dice/types"
)

// RollHandler opens a game: the creator escrows a stake and publishes the
// hash of a hidden draw.
type RollHandler struct {
	ledger types.Ledger
	store  types.AssetStore
	logger log.Logger
}

var _ Handler = (*RollHandler)(nil)

func NewRollHandler(ledger types.Ledger, store types.AssetStore, logger log.Logger) *RollHandler {
	if ledger == nil {
		panic("roll handler: ledger is nil")
	}
	if store == nil {
		panic("roll handler: store is nil")
	}
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &RollHandler{
		ledger: ledger,
		store:  store,
		logger: logger.With("module", types.TxTypeRoll),
	}
}

func (h *RollHandler) Type() string { return types.TxTypeRoll }

func (h *RollHandler) Create(params types.CreateParams, draft *types.Transaction) (*types.Transaction, error) {
	if draft == nil {
		return nil, types.ErrInvalidParams.Wrap("nil transaction draft")
	}
	draft.Type = types.TxTypeRoll
	draft.RecipientID = ""
	draft.Amount = params.Amount
	draft.Asset = types.Asset{Roll: &types.RollAsset{
		MaxPlayer:  params.MaxPlayer,
		PointsHash: params.PointsHash,
	}}
	draft.Fee = h.CalculateFee(draft)
	return draft, nil
}

func (h *RollHandler) CalculateFee(tx *types.Transaction) int64 { return feeFor(tx) }

func (h *RollHandler) Verify(_ context.Context, tx *types.Transaction, _ *types.Account) error {
	if err := checkNoRecipient(tx); err != nil {
		return err
	}
	a := tx.Asset.Roll
	if a == nil {
		return types.ErrInvalidParams.Wrap("missing roll asset")
	}
	if tx.Amount <= types.MinRollAmount {
		return types.ErrInsufficientStake.Wrapf("amount %d must exceed %d", tx.Amount, types.MinRollAmount)
	}
	if a.MaxPlayer <= 0 {
		return types.ErrInvalidPlayerLimit.Wrapf("got %d", a.MaxPlayer)
	}
	if a.PointsHash == "" {
		return types.ErrMissingCommitment
	}
	return nil
}

func (h *RollHandler) Apply(ctx context.Context, tx *types.Transaction, sender *types.Account) error {
	sum, err := spend(tx.Amount, tx.Fee)
	if err != nil {
		return types.ErrInvalidParams.Wrap(err.Error())
	}
	if _, err := h.ledger.MergeAccountAndGet(ctx, types.AccountDiff{Address: sender.Address, Balance: -sum}); err != nil {
		return err
	}
	h.logger.Debug("roll escrowed", "rollId", tx.ID, "creator", sender.Address, "amount", tx.Amount)
	return nil
}

func (h *RollHandler) Undo(ctx context.Context, tx *types.Transaction, sender *types.Account) error {
	sum, err := spend(tx.Amount, tx.Fee)
	if err != nil {
		return types.ErrInvalidParams.Wrap(err.Error())
	}
	if err := h.ledger.UndoMerging(ctx, types.AccountDiff{Address: sender.Address, Balance: -sum}); err != nil {
		return undoFailed(err, "undo roll "+tx.ID)
	}
	return nil
}

func (h *RollHandler) ApplyUnconfirmed(ctx context.Context, tx *types.Transaction, sender *types.Account) error {
	sum, err := spend(tx.Amount, tx.Fee)
	if err != nil {
		return types.ErrInvalidParams.Wrap(err.Error())
	}
	if sender.UBalance < sum {
		return types.ErrInsufficientUnconfirmedFunds.Wrapf("have %d need %d", sender.UBalance, sum)
	}
	_, err = h.ledger.MergeAccountAndGet(ctx, types.AccountDiff{Address: sender.Address, UBalance: -sum})
	return err
}

func (h *RollHandler) UndoUnconfirmed(ctx context.Context, tx *types.Transaction, sender *types.Account) error {
	sum, err := spend(tx.Amount, tx.Fee)
	if err != nil {
		return types.ErrInvalidParams.Wrap(err.Error())
	}
	if err := h.ledger.UndoMerging(ctx, types.AccountDiff{Address: sender.Address, UBalance: -sum}); err != nil {
		return undoFailed(err, "undo unconfirmed roll "+tx.ID)
	}
	return nil
}

func (h *RollHandler) Ready(*types.Transaction, *types.Account) error { return nil }

func (h *RollHandler) Save(ctx context.Context, tx *types.Transaction) error {
	if tx.Asset.Roll == nil {
		return types.ErrInvalidParams.Wrap("missing roll asset")
	}
	return h.store.SaveRoll(ctx, tx.ID, *tx.Asset.Roll)
}

func (h *RollHandler) Load(ctx context.Context, txID string) (*types.Asset, error) {
	a, err := h.store.LoadRoll(ctx, txID)
	if err != nil || a == nil {
		return nil, err
	}
	return &types.Asset{Roll: a}, nil
}
