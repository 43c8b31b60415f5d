// Package assets implements the roll, bet and reveal transaction handlers.
//
// Every handler follows the same lifecycle. Verify is called before pool
// admission, ApplyUnconfirmed reserves funds in the unconfirmed balance,
// Apply moves the reservation into the confirmed ledger, and Undo /
// UndoUnconfirmed reverse those steps in strict inverse order when the chain
// reorganizes or the pool evicts a transaction. A hook that returns an error
// has changed nothing.
package assets

import (
	"context"
	"fmt"
	"sort"

	"github.com/sqfasd/asch-dice-game-dapp/internal/dice/types"
)

type Handler interface {
	Type() string
	Create(params types.CreateParams, draft *types.Transaction) (*types.Transaction, error)
	CalculateFee(tx *types.Transaction) int64
	Verify(ctx context.Context, tx *types.Transaction, sender *types.Account) error
	Apply(ctx context.Context, tx *types.Transaction, sender *types.Account) error
	Undo(ctx context.Context, tx *types.Transaction, sender *types.Account) error
	ApplyUnconfirmed(ctx context.Context, tx *types.Transaction, sender *types.Account) error
	UndoUnconfirmed(ctx context.Context, tx *types.Transaction, sender *types.Account) error
	Ready(tx *types.Transaction, sender *types.Account) error
	Save(ctx context.Context, tx *types.Transaction) error
	Load(ctx context.Context, txID string) (*types.Asset, error)
}

// Router dispatches transactions to the handler registered for their type.
type Router struct {
	handlers map[string]Handler
}

func NewRouter(handlers ...Handler) (*Router, error) {
	r := &Router{handlers: make(map[string]Handler, len(handlers))}
	for _, h := range handlers {
		if h == nil {
			return nil, fmt.Errorf("assets: nil handler")
		}
		if _, dup := r.handlers[h.Type()]; dup {
			return nil, fmt.Errorf("assets: handler for %q registered twice", h.Type())
		}
		r.handlers[h.Type()] = h
	}
	return r, nil
}

func (r *Router) Handler(txType string) (Handler, error) {
	h, ok := r.handlers[txType]
	if !ok {
		return nil, types.ErrUnknownTxType.Wrapf("%q", txType)
	}
	return h, nil
}

func (r *Router) Types() []string {
	out := make([]string, 0, len(r.handlers))
	for t := range r.handlers {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// feeFor is the flat fee shared by every dice transaction.
func feeFor(*types.Transaction) int64 {
	return types.TxFee
}

func checkNoRecipient(tx *types.Transaction) error {
	if tx.RecipientID != "" {
		return types.ErrInvalidRecipient.Wrapf("got %q", tx.RecipientID)
	}
	return nil
}

// undoFailed marks a compensating action that could not be performed.
func undoFailed(err error, what string) error {
	return types.ErrIntegrity.Wrapf("%s: %v", what, err)
}
