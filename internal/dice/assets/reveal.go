package assets

import (
	"context"
	"sort"

	"cosmossdk.io/log"

	"github.com/sqfasd/asch-dice-game-dapp/internal/dice/registry"
	"github.com/sqfasd/asch-dice-game-dapp/internal/dice/settlement"
	"github.com/sqfasd/asch-dice-game-dapp/internal/dice/types"
)

// RevealHandler discloses a roll's hidden draw and settles every bet placed
// against it.
type RevealHandler struct {
	ledger   types.Ledger
	store    types.Store
	registry *registry.Registry
	logger   log.Logger
}

var _ Handler = (*RevealHandler)(nil)

func NewRevealHandler(ledger types.Ledger, store types.Store, reg *registry.Registry, logger log.Logger) *RevealHandler {
	if ledger == nil {
		panic("reveal handler: ledger is nil")
	}
	if store == nil {
		panic("reveal handler: store is nil")
	}
	if reg == nil {
		panic("reveal handler: registry is nil")
	}
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &RevealHandler{
		ledger:   ledger,
		store:    store,
		registry: reg,
		logger:   logger.With("module", types.TxTypeReveal),
	}
}

func (h *RevealHandler) Type() string { return types.TxTypeReveal }

func (h *RevealHandler) Create(params types.CreateParams, draft *types.Transaction) (*types.Transaction, error) {
	if draft == nil {
		return nil, types.ErrInvalidParams.Wrap("nil transaction draft")
	}
	draft.Type = types.TxTypeReveal
	draft.RecipientID = ""
	draft.Amount = 0
	draft.Asset = types.Asset{Reveal: &types.RevealAsset{
		Nonce:  params.Nonce,
		Points: append([]int64(nil), params.Points...),
		RollID: params.RollID,
	}}
	draft.Fee = h.CalculateFee(draft)
	return draft, nil
}

func (h *RevealHandler) CalculateFee(tx *types.Transaction) int64 { return feeFor(tx) }

func (h *RevealHandler) Verify(ctx context.Context, tx *types.Transaction, _ *types.Account) error {
	if err := checkNoRecipient(tx); err != nil {
		return err
	}
	a := tx.Asset.Reveal
	if a == nil {
		return types.ErrInvalidParams.Wrap("missing reveal asset")
	}
	if tx.Amount != 0 {
		return types.ErrInvalidParams.Wrapf("reveal amount must be 0, got %d", tx.Amount)
	}
	if a.Nonce < 0 || a.Nonce > types.MaxNonce {
		return types.ErrInvalidNonce.Wrapf("got %d", a.Nonce)
	}
	if !validPoints(a.Points) {
		return types.ErrInvalidPointsShape.Wrapf("got %v", a.Points)
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
	if GenerateCommitment(a.Points, a.Nonce) != session.PointsHash {
		return types.ErrCommitmentMismatch.Wrapf("roll %s", a.RollID)
	}
	return nil
}

func (h *RevealHandler) ApplyUnconfirmed(ctx context.Context, tx *types.Transaction, sender *types.Account) error {
	a := tx.Asset.Reveal
	if a == nil {
		return types.ErrInvalidParams.Wrap("missing reveal asset")
	}
	if h.registry.IsSettled(a.RollID) {
		return types.ErrGameAlreadySettled.Wrapf("roll %s is already revealed", a.RollID)
	}
	if tx.Fee < 0 {
		return types.ErrInvalidParams.Wrapf("negative fee %d", tx.Fee)
	}
	if sender.UBalance < tx.Fee {
		return types.ErrInsufficientUnconfirmedFunds.Wrapf("have %d need %d", sender.UBalance, tx.Fee)
	}
	if !h.registry.ReservePendingReveal(a.RollID) {
		return types.ErrGameAlreadySettled.Wrapf("roll %s already has a pending reveal", a.RollID)
	}
	if _, err := h.ledger.MergeAccountAndGet(ctx, types.AccountDiff{Address: sender.Address, UBalance: -tx.Fee}); err != nil {
		h.registry.ReleasePendingReveal(a.RollID)
		return err
	}
	return nil
}

func (h *RevealHandler) UndoUnconfirmed(ctx context.Context, tx *types.Transaction, sender *types.Account) error {
	a := tx.Asset.Reveal
	if a == nil {
		return types.ErrInvalidParams.Wrap("missing reveal asset")
	}
	if err := h.ledger.UndoMerging(ctx, types.AccountDiff{Address: sender.Address, UBalance: -tx.Fee}); err != nil {
		return undoFailed(err, "undo unconfirmed reveal "+tx.ID)
	}
	h.registry.ReleasePendingReveal(a.RollID)
	return nil
}

func (h *RevealHandler) Apply(ctx context.Context, tx *types.Transaction, sender *types.Account) error {
	a := tx.Asset.Reveal
	if a == nil {
		return types.ErrInvalidParams.Wrap("missing reveal asset")
	}
	if h.registry.IsSettled(a.RollID) {
		return types.ErrGameAlreadySettled.Wrapf("roll %s", a.RollID)
	}
	res, diffs, err := h.settle(ctx, tx, sender)
	if err != nil {
		return err
	}
	if err := commitDiffs(ctx, h.ledger, diffs); err != nil {
		return err
	}
	h.registry.MarkSettled(a.RollID)

	won := 0
	for _, w := range res.Wagers {
		if w.Won {
			won++
		}
	}
	h.logger.Info("roll settled",
		"rollId", a.RollID,
		"revealId", tx.ID,
		"bets", len(res.Wagers),
		"won", won,
		"creatorFinal", res.SessionAmount,
	)
	return nil
}

// Undo reverses a confirmed reveal. The settlement is recomputed from the
// same confirmed rows, so the inverse diffs match Apply exactly.
func (h *RevealHandler) Undo(ctx context.Context, tx *types.Transaction, sender *types.Account) error {
	a := tx.Asset.Reveal
	if a == nil {
		return types.ErrInvalidParams.Wrap("missing reveal asset")
	}
	_, diffs, err := h.settle(ctx, tx, sender)
	if err != nil {
		return undoFailed(err, "recompute settlement for roll "+a.RollID)
	}
	if err := commitDiffs(ctx, h.ledger, invert(diffs)); err != nil {
		return undoFailed(err, "undo reveal "+tx.ID)
	}
	h.registry.Unsettle(a.RollID)
	return nil
}

func (h *RevealHandler) Ready(*types.Transaction, *types.Account) error { return nil }

func (h *RevealHandler) Save(ctx context.Context, tx *types.Transaction) error {
	if tx.Asset.Reveal == nil {
		return types.ErrInvalidParams.Wrap("missing reveal asset")
	}
	return h.store.SaveReveal(ctx, tx.ID, *tx.Asset.Reveal)
}

func (h *RevealHandler) Load(ctx context.Context, txID string) (*types.Asset, error) {
	a, err := h.store.LoadReveal(ctx, txID)
	if err != nil || a == nil {
		return nil, err
	}
	return &types.Asset{Reveal: a}, nil
}

// settle runs the settlement for the revealed roll and stages the ledger
// diffs in a fixed order: creator, revealer fee, then bettors by bet id.
//
// The fee is charged to whoever signs the reveal, not to the roll's creator.
// The two coincide when creators reveal their own rolls; a third-party
// revealer pays for the transaction it submitted. The unconfirmed balance
// was already charged the fee at admission, so the fee only moves the
// confirmed balance. Payouts credit both tracks.
func (h *RevealHandler) settle(ctx context.Context, tx *types.Transaction, sender *types.Account) (settlement.Result, []types.AccountDiff, error) {
	a := tx.Asset.Reveal
	session, err := h.store.GetSession(ctx, a.RollID)
	if err != nil {
		return settlement.Result{}, nil, err
	}
	if session == nil {
		return settlement.Result{}, nil, types.ErrSessionNotFound.Wrapf("roll %s", a.RollID)
	}
	wagers, err := h.store.GetWagersForSession(ctx, a.RollID)
	if err != nil {
		return settlement.Result{}, nil, err
	}
	res, err := settlement.Settle(a.Points, session, wagers)
	if err != nil {
		return settlement.Result{}, nil, err
	}
	if tx.Fee < 0 {
		return settlement.Result{}, nil, types.ErrInvalidParams.Wrapf("negative fee %d", tx.Fee)
	}

	diffs := make([]types.AccountDiff, 0, len(res.Wagers)+2)
	diffs = append(diffs,
		types.AccountDiff{Address: session.SenderID, Balance: res.SessionAmount, UBalance: res.SessionAmount},
		types.AccountDiff{Address: sender.Address, Balance: -tx.Fee},
	)
	paid := make([]settlement.SettledWager, 0, len(res.Wagers))
	for _, w := range res.Wagers {
		if w.FinalAmount != 0 {
			paid = append(paid, w)
		}
	}
	sort.SliceStable(paid, func(i, j int) bool { return paid[i].ID < paid[j].ID })
	for _, w := range paid {
		diffs = append(diffs, types.AccountDiff{Address: w.SenderID, Balance: w.FinalAmount, UBalance: w.FinalAmount})
	}
	return res, diffs, nil
}
