package app

import (
	"bytes"
	"context"
	"errors"

	"cosmossdk.io/log"

	"github.com/sqfasd/asch-dice-game-dapp/internal/dice/assets"
	"github.com/sqfasd/asch-dice-game-dapp/internal/dice/types"
)

// Ledger is what the pipeline needs from account storage.
type Ledger interface {
	types.Ledger
	RegisterKey(ctx context.Context, addr string, pub []byte) (*types.Account, error)
	UnbindKey(ctx context.Context, addr string) error
}

// TxStore records confirmed transactions.
type TxStore interface {
	SaveTransaction(ctx context.Context, tx *types.Transaction, height int64) error
	DeleteTransaction(ctx context.Context, id string) error
	HasTransaction(ctx context.Context, id string) (bool, error)
}

// Pipeline drives transactions through the asset handler lifecycle:
// admission into the unconfirmed pool, confirmation in a block, and reversal
// of both. Every exported method runs inside the pipeline's Sequence.
//
// Blocks execute against confirmed state only. The pool's reservations are
// undone before the first block tx and the pool is re-admitted afterwards,
// so every node reaches the same results whatever its pool holds.
type Pipeline struct {
	seq    *Sequence
	router *assets.Router
	ledger Ledger
	store  TxStore
	logger log.Logger

	pool  map[string]*types.Transaction
	order []string

	// keys bound by the block being executed, by tx id
	bound map[string]string
}

func NewPipeline(router *assets.Router, ledger Ledger, store TxStore, logger log.Logger) *Pipeline {
	if router == nil {
		panic("pipeline: router is nil")
	}
	if ledger == nil {
		panic("pipeline: ledger is nil")
	}
	if store == nil {
		panic("pipeline: store is nil")
	}
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &Pipeline{
		seq:    NewSequence(),
		router: router,
		ledger: ledger,
		store:  store,
		logger: logger.With("module", "pipeline"),
		pool:   map[string]*types.Transaction{},
		bound:  map[string]string{},
	}
}

// ProcessUnconfirmed admits tx into the pool: Verify then ApplyUnconfirmed.
// A rejected transaction leaves no trace.
func (p *Pipeline) ProcessUnconfirmed(ctx context.Context, tx *types.Transaction) error {
	return p.seq.Do(ctx, func(ctx context.Context) error {
		return p.processUnconfirmed(ctx, tx)
	})
}

func (p *Pipeline) processUnconfirmed(ctx context.Context, tx *types.Transaction) error {
	if _, ok := p.pool[tx.ID]; ok {
		return types.ErrDuplicateTx.Wrap(tx.ID)
	}
	h, sender, err := p.admit(ctx, tx)
	if err != nil {
		return err
	}
	if err := h.ApplyUnconfirmed(ctx, tx, sender); err != nil {
		return err
	}
	p.pool[tx.ID] = tx
	p.order = append(p.order, tx.ID)
	p.logger.Debug("tx pooled", "id", tx.ID, "type", tx.Type, "sender", tx.SenderID)
	return nil
}

// admit runs the checks shared by the pool and by block transactions that
// never passed through this node's pool.
func (p *Pipeline) admit(ctx context.Context, tx *types.Transaction) (assets.Handler, *types.Account, error) {
	if tx == nil || tx.ID == "" {
		return nil, nil, types.ErrInvalidParams.Wrap("transaction id is required")
	}
	seen, err := p.store.HasTransaction(ctx, tx.ID)
	if err != nil {
		return nil, nil, err
	}
	if seen {
		return nil, nil, types.ErrDuplicateTx.Wrap(tx.ID)
	}
	h, err := p.router.Handler(tx.Type)
	if err != nil {
		return nil, nil, err
	}
	if want := h.CalculateFee(tx); tx.Fee != want {
		return nil, nil, types.ErrInvalidParams.Wrapf("fee must be %d, got %d", want, tx.Fee)
	}
	if tx.Amount < 0 {
		return nil, nil, types.ErrInvalidParams.Wrapf("negative amount %d", tx.Amount)
	}
	sender, err := p.ledger.GetAccount(ctx, tx.SenderID)
	if err != nil {
		return nil, nil, err
	}
	if len(sender.PublicKey) != 0 && !bytes.Equal(sender.PublicKey, tx.SenderPublicKey) {
		return nil, nil, types.ErrInvalidSignature.Wrapf("account %s is bound to another key", tx.SenderID)
	}
	if err := h.Verify(ctx, tx, sender); err != nil {
		return nil, nil, err
	}
	return h, sender, nil
}

// bindKey records the sender's public key once a transaction it signed is
// confirmed. It reports whether this call bound the key.
func (p *Pipeline) bindKey(ctx context.Context, tx *types.Transaction) (bool, error) {
	acc, err := p.ledger.GetAccount(ctx, tx.SenderID)
	if err != nil {
		return false, err
	}
	if len(acc.PublicKey) != 0 {
		return false, nil
	}
	if _, err := p.ledger.RegisterKey(ctx, tx.SenderID, tx.SenderPublicKey); err != nil {
		return false, err
	}
	return true, nil
}

// RunBlock runs fn with the pool suspended. Inside fn, call apply and
// rollbackBlock directly; the pipeline's sequence is already held. Pooled
// transactions that no longer pass admission afterwards are dropped.
func (p *Pipeline) RunBlock(ctx context.Context, fn func(ctx context.Context) error) error {
	return p.seq.Do(ctx, func(ctx context.Context) error {
		suspended, err := p.suspendPool(ctx)
		if err != nil {
			return err
		}
		p.bound = map[string]string{}
		ferr := fn(ctx)
		p.resumePool(ctx, suspended)
		return ferr
	})
}

// ApplyBlock confirms txs in order and returns one result per transaction.
func (p *Pipeline) ApplyBlock(ctx context.Context, height int64, txs []*types.Transaction) ([]error, error) {
	out := make([]error, len(txs))
	err := p.RunBlock(ctx, func(ctx context.Context) error {
		for i, tx := range txs {
			out[i] = p.apply(ctx, height, tx)
		}
		return nil
	})
	return out, err
}

// suspendPool undoes every pooled reservation, newest first, and empties the
// pool. It returns the suspended transactions in admission order.
func (p *Pipeline) suspendPool(ctx context.Context) ([]*types.Transaction, error) {
	suspended := make([]*types.Transaction, 0, len(p.order))
	for _, id := range p.order {
		suspended = append(suspended, p.pool[id])
	}
	for i := len(suspended) - 1; i >= 0; i-- {
		tx := suspended[i]
		h, err := p.router.Handler(tx.Type)
		if err != nil {
			return nil, err
		}
		sender, err := p.ledger.GetAccount(ctx, tx.SenderID)
		if err != nil {
			return nil, types.ErrIntegrity.Wrapf("suspend pooled %s: %v", tx.ID, err)
		}
		if err := h.UndoUnconfirmed(ctx, tx, sender); err != nil {
			return nil, err
		}
		p.removeFromPool(tx.ID)
	}
	return suspended, nil
}

// resumePool re-admits suspended transactions in their original order.
func (p *Pipeline) resumePool(ctx context.Context, suspended []*types.Transaction) {
	for _, tx := range suspended {
		if err := p.processUnconfirmed(ctx, tx); err != nil {
			p.logger.Debug("tx dropped from pool", "id", tx.ID, "type", tx.Type, "err", err)
		}
	}
}

// apply confirms one block transaction at height. The caller holds the
// sequence and the pool is suspended, so the transaction is admitted here
// against confirmed state. On failure every step this call took is reversed.
func (p *Pipeline) apply(ctx context.Context, height int64, tx *types.Transaction) error {
	if err := p.processUnconfirmed(ctx, tx); err != nil {
		return err
	}
	h, err := p.router.Handler(tx.Type)
	if err != nil {
		return err
	}
	sender, err := p.ledger.GetAccount(ctx, tx.SenderID)
	if err != nil {
		return p.dropPooled(ctx, h, tx, err)
	}
	if err := h.Ready(tx, sender); err != nil {
		return p.dropPooled(ctx, h, tx, err)
	}
	if err := h.Apply(ctx, tx, sender); err != nil {
		return p.dropPooled(ctx, h, tx, err)
	}
	if err := p.persist(ctx, h, tx, height); err != nil {
		if uerr := h.Undo(ctx, tx, sender); uerr != nil {
			return uerr
		}
		return p.dropPooled(ctx, h, tx, err)
	}
	bound, err := p.bindKey(ctx, tx)
	if err != nil {
		if derr := p.store.DeleteTransaction(ctx, tx.ID); derr != nil {
			return types.ErrIntegrity.Wrapf("remove unbound tx %s: %v", tx.ID, derr)
		}
		if uerr := h.Undo(ctx, tx, sender); uerr != nil {
			return uerr
		}
		return p.dropPooled(ctx, h, tx, err)
	}
	if bound {
		p.bound[tx.ID] = tx.SenderID
	}
	p.removeFromPool(tx.ID)
	return nil
}

func (p *Pipeline) persist(ctx context.Context, h assets.Handler, tx *types.Transaction, height int64) error {
	if err := p.store.SaveTransaction(ctx, tx, height); err != nil {
		return err
	}
	if err := h.Save(ctx, tx); err != nil {
		if derr := p.store.DeleteTransaction(ctx, tx.ID); derr != nil {
			return types.ErrIntegrity.Wrapf("remove half-saved tx %s: %v", tx.ID, derr)
		}
		return err
	}
	return nil
}

// dropPooled undoes the unconfirmed step of a transaction whose confirmation
// failed and returns cause.
func (p *Pipeline) dropPooled(ctx context.Context, h assets.Handler, tx *types.Transaction, cause error) error {
	sender, err := p.ledger.GetAccount(ctx, tx.SenderID)
	if err != nil {
		return types.ErrIntegrity.Wrapf("reload sender of %s: %v", tx.ID, err)
	}
	if err := h.UndoUnconfirmed(ctx, tx, sender); err != nil {
		return err
	}
	p.removeFromPool(tx.ID)
	return cause
}

// RollbackBlock reverses confirmed txs of the last executed block, last
// first: the stored rows go, then Undo, then UndoUnconfirmed. Keys that
// block bound are released.
func (p *Pipeline) RollbackBlock(ctx context.Context, txs []*types.Transaction) error {
	return p.seq.Do(ctx, func(ctx context.Context) error {
		return p.rollbackBlock(ctx, txs)
	})
}

func (p *Pipeline) rollbackBlock(ctx context.Context, txs []*types.Transaction) error {
	for i := len(txs) - 1; i >= 0; i-- {
		if err := p.rollback(ctx, txs[i]); err != nil {
			return err
		}
	}
	return nil
}

func (p *Pipeline) rollback(ctx context.Context, tx *types.Transaction) error {
	h, err := p.router.Handler(tx.Type)
	if err != nil {
		return err
	}
	sender, err := p.ledger.GetAccount(ctx, tx.SenderID)
	if err != nil {
		return types.ErrIntegrity.Wrapf("rollback %s: %v", tx.ID, err)
	}
	if err := p.store.DeleteTransaction(ctx, tx.ID); err != nil {
		return types.ErrIntegrity.Wrapf("rollback %s: %v", tx.ID, err)
	}
	if err := h.Undo(ctx, tx, sender); err != nil {
		return err
	}
	if err := h.UndoUnconfirmed(ctx, tx, sender); err != nil {
		return err
	}
	if addr, ok := p.bound[tx.ID]; ok {
		if err := p.ledger.UnbindKey(ctx, addr); err != nil {
			return types.ErrIntegrity.Wrapf("rollback %s: %v", tx.ID, err)
		}
		delete(p.bound, tx.ID)
	}
	p.logger.Info("tx rolled back", "id", tx.ID, "type", tx.Type)
	return nil
}

// Evict removes a pooled transaction and returns its reservation.
func (p *Pipeline) Evict(ctx context.Context, id string) error {
	return p.seq.Do(ctx, func(ctx context.Context) error {
		tx, ok := p.pool[id]
		if !ok {
			return nil
		}
		h, err := p.router.Handler(tx.Type)
		if err != nil {
			return err
		}
		sender, err := p.ledger.GetAccount(ctx, tx.SenderID)
		if err != nil && !errors.Is(err, types.ErrAccountNotFound) {
			return err
		}
		if sender == nil {
			return types.ErrIntegrity.Wrapf("pooled tx %s has no sender account", id)
		}
		if err := h.UndoUnconfirmed(ctx, tx, sender); err != nil {
			return err
		}
		p.removeFromPool(id)
		return nil
	})
}

// Pooled returns the ids of pooled transactions in admission order.
func (p *Pipeline) Pooled(ctx context.Context) []string {
	var out []string
	_ = p.seq.Do(ctx, func(context.Context) error {
		out = append([]string(nil), p.order...)
		return nil
	})
	return out
}

func (p *Pipeline) IsPooled(ctx context.Context, id string) bool {
	var ok bool
	_ = p.seq.Do(ctx, func(context.Context) error {
		_, ok = p.pool[id]
		return nil
	})
	return ok
}

func (p *Pipeline) removeFromPool(id string) {
	if _, ok := p.pool[id]; !ok {
		return
	}
	delete(p.pool, id)
	for i, v := range p.order {
		if v == id {
			p.order = append(p.order[:i], p.order[i+1:]...)
			break
		}
	}
}
