// Package state is the account ledger: confirmed and unconfirmed balances per
// address, persisted in a cosmos-db key/value store.
package state

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"sync"

	dbm "github.com/cosmos/cosmos-db"

	"github.com/sqfasd/asch-dice-game-dapp/internal/dice/types"
)

var (
	accountPrefix = []byte("a/")
	heightKey     = []byte("m/height")
)

func accountKey(addr string) []byte {
	return append(append([]byte{}, accountPrefix...), addr...)
}

// Ledger implements types.Ledger. All mutations are serialized by one mutex;
// a failed call writes nothing.
//
// Writes are buffered in memory and reach the database only at Commit, so a
// block that never commits leaves no trace on disk.
type Ledger struct {
	mu    sync.Mutex
	db    dbm.DB
	dirty map[string]types.Account
}

var _ types.Ledger = (*Ledger)(nil)

func NewLedger(db dbm.DB) *Ledger {
	if db == nil {
		panic("state: db is nil")
	}
	return &Ledger{db: db, dirty: map[string]types.Account{}}
}

// Open opens (or creates) the ledger database "ledger" under dir.
func Open(backend string, dir string) (*Ledger, error) {
	db, err := dbm.NewDB("ledger", dbm.BackendType(backend), dir)
	if err != nil {
		return nil, fmt.Errorf("open ledger db: %w", err)
	}
	return NewLedger(db), nil
}

func (l *Ledger) Close() error {
	return l.db.Close()
}

func (l *Ledger) get(addr string) (*types.Account, error) {
	if acc, ok := l.dirty[addr]; ok {
		return &acc, nil
	}
	b, err := l.db.Get(accountKey(addr))
	if err != nil {
		return nil, fmt.Errorf("read account %s: %w", addr, err)
	}
	if b == nil {
		return nil, nil
	}
	var acc types.Account
	if err := json.Unmarshal(b, &acc); err != nil {
		return nil, fmt.Errorf("decode account %s: %w", addr, err)
	}
	return &acc, nil
}

func (l *Ledger) put(acc *types.Account) error {
	if acc.Address == "" {
		return types.ErrInvalidParams.Wrap("empty address")
	}
	l.dirty[acc.Address] = *acc
	return nil
}

func (l *Ledger) GetAccount(_ context.Context, addr string) (*types.Account, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	acc, err := l.get(addr)
	if err != nil {
		return nil, err
	}
	if acc == nil {
		return nil, types.ErrAccountNotFound.Wrap(addr)
	}
	return acc, nil
}

// MergeAccountAndGet adds diff to both balance tracks of its address,
// creating the account when it does not exist yet.
func (l *Ledger) MergeAccountAndGet(_ context.Context, diff types.AccountDiff) (*types.Account, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.merge(diff)
}

func (l *Ledger) UndoMerging(_ context.Context, diff types.AccountDiff) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, err := l.merge(diff.Inverse())
	return err
}

func (l *Ledger) merge(diff types.AccountDiff) (*types.Account, error) {
	if diff.Address == "" {
		return nil, types.ErrInvalidParams.Wrap("empty address")
	}
	acc, err := l.get(diff.Address)
	if err != nil {
		return nil, err
	}
	if acc == nil {
		acc = &types.Account{Address: diff.Address}
	}
	bal, ok := addChecked(acc.Balance, diff.Balance)
	if !ok {
		return nil, types.ErrIntegrity.Wrapf("%s: balance overflow", diff.Address)
	}
	ubal, ok := addChecked(acc.UBalance, diff.UBalance)
	if !ok {
		return nil, types.ErrIntegrity.Wrapf("%s: u_balance overflow", diff.Address)
	}
	if bal < 0 {
		return nil, types.ErrInsufficientFunds.Wrapf("%s: have=%d need=%d", diff.Address, acc.Balance, -diff.Balance)
	}
	if ubal < 0 {
		return nil, types.ErrInsufficientFunds.Wrapf("%s: unconfirmed have=%d need=%d", diff.Address, acc.UBalance, -diff.UBalance)
	}
	acc.Balance, acc.UBalance = bal, ubal
	if err := l.put(acc); err != nil {
		return nil, err
	}
	return acc, nil
}

func addChecked(a int64, b int64) (int64, bool) {
	if (b > 0 && a > math.MaxInt64-b) || (b < 0 && a < math.MinInt64-b) {
		return 0, false
	}
	return a + b, true
}

// RegisterKey binds pub to addr the first time the address signs. A
// different key for an already bound address is rejected.
func (l *Ledger) RegisterKey(_ context.Context, addr string, pub []byte) (*types.Account, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	acc, err := l.get(addr)
	if err != nil {
		return nil, err
	}
	if acc == nil {
		acc = &types.Account{Address: addr}
	}
	switch {
	case len(acc.PublicKey) == 0:
		acc.PublicKey = append([]byte(nil), pub...)
	case !bytes.Equal(acc.PublicKey, pub):
		return nil, types.ErrInvalidSignature.Wrapf("account %s is bound to another key", addr)
	default:
		return acc, nil
	}
	if err := l.put(acc); err != nil {
		return nil, err
	}
	return acc, nil
}

// UnbindKey clears the key bound to addr. It reverses a RegisterKey whose
// transaction is being rolled back.
func (l *Ledger) UnbindKey(_ context.Context, addr string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	acc, err := l.get(addr)
	if err != nil {
		return err
	}
	if acc == nil || len(acc.PublicKey) == 0 {
		return nil
	}
	acc.PublicKey = nil
	return l.put(acc)
}

// Mint credits amount to both tracks. It backs the dev faucet only.
func (l *Ledger) Mint(_ context.Context, addr string, amount int64) (*types.Account, error) {
	if amount <= 0 {
		return nil, types.ErrInvalidParams.Wrapf("mint amount must be positive, got %d", amount)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.merge(types.AccountDiff{Address: addr, Balance: amount, UBalance: amount})
}

// Accounts returns every account ordered by address.
func (l *Ledger) Accounts(_ context.Context) ([]types.Account, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.accounts()
}

func (l *Ledger) accounts() ([]types.Account, error) {
	it, err := dbm.IteratePrefix(l.db, accountPrefix)
	if err != nil {
		return nil, fmt.Errorf("iterate accounts: %w", err)
	}
	defer it.Close()

	var out []types.Account
	for ; it.Valid(); it.Next() {
		var acc types.Account
		if err := json.Unmarshal(it.Value(), &acc); err != nil {
			return nil, fmt.Errorf("decode account %q: %w", it.Key(), err)
		}
		if _, ok := l.dirty[acc.Address]; ok {
			continue
		}
		out = append(out, acc)
	}
	if err := it.Error(); err != nil {
		return nil, fmt.Errorf("iterate accounts: %w", err)
	}
	for _, acc := range l.dirty {
		out = append(out, acc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })
	return out, nil
}

// ResetUnconfirmed sets every unconfirmed balance back to the confirmed one.
// The pool does not survive a restart, so nothing is reserved at startup.
func (l *Ledger) ResetUnconfirmed(_ context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	accs, err := l.accounts()
	if err != nil {
		return err
	}
	for i := range accs {
		if accs[i].UBalance == accs[i].Balance {
			continue
		}
		accs[i].UBalance = accs[i].Balance
		if err := l.put(&accs[i]); err != nil {
			return err
		}
	}
	return nil
}

func (l *Ledger) Height() (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, err := l.db.Get(heightKey)
	if err != nil {
		return 0, fmt.Errorf("read height: %w", err)
	}
	if len(b) != 8 {
		return 0, nil
	}
	return int64(binary.BigEndian.Uint64(b)), nil
}

// Commit writes every buffered account together with height in one synced
// batch. It is the only durable write of a block.
func (l *Ledger) Commit(height int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	batch := l.db.NewBatch()
	defer batch.Close()

	addrs := make([]string, 0, len(l.dirty))
	for a := range l.dirty {
		addrs = append(addrs, a)
	}
	sort.Strings(addrs)
	for _, a := range addrs {
		acc := l.dirty[a]
		b, err := json.Marshal(&acc)
		if err != nil {
			return fmt.Errorf("encode account %s: %w", a, err)
		}
		if err := batch.Set(accountKey(a), b); err != nil {
			return fmt.Errorf("stage account %s: %w", a, err)
		}
	}
	var hb [8]byte
	binary.BigEndian.PutUint64(hb[:], uint64(height))
	if err := batch.Set(heightKey, hb[:]); err != nil {
		return fmt.Errorf("stage height: %w", err)
	}
	if err := batch.WriteSync(); err != nil {
		return fmt.Errorf("commit height %d: %w", height, err)
	}
	l.dirty = map[string]types.Account{}
	return nil
}

// AppHash hashes the confirmed view of the ledger. Unconfirmed balances
// depend on each node's pool and are left out.
func (l *Ledger) AppHash(height int64) ([]byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	type accountKV struct {
		Addr    string `json:"addr"`
		PubKey  []byte `json:"pubKey,omitempty"`
		Balance int64  `json:"balance"`
	}
	accs, err := l.accounts()
	if err != nil {
		return nil, err
	}
	kvs := make([]accountKV, 0, len(accs))
	for _, a := range accs {
		kvs = append(kvs, accountKV{Addr: a.Address, PubKey: a.PublicKey, Balance: a.Balance})
	}
	normalized := struct {
		Height   int64       `json:"height"`
		Accounts []accountKV `json:"accounts"`
	}{Height: height, Accounts: kvs}

	b, err := json.Marshal(normalized)
	if err != nil {
		return nil, fmt.Errorf("encode app hash view: %w", err)
	}
	sum := sha256.Sum256(b)
	return sum[:], nil
}
