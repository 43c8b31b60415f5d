package types

import "context"

// Ledger is the account store. It must never let either balance track go
// negative; such calls fail with ErrInsufficientFunds.
type Ledger interface {
	GetAccount(ctx context.Context, address string) (*Account, error)
	MergeAccountAndGet(ctx context.Context, diff AccountDiff) (*Account, error)
	UndoMerging(ctx context.Context, diff AccountDiff) error
}

// SessionStore resolves confirmed rolls and the bets placed against them.
// GetSession returns nil, nil when the roll does not exist.
type SessionStore interface {
	GetSession(ctx context.Context, id string) (*Session, error)
	GetWagersForSession(ctx context.Context, id string) ([]Wager, error)
}

// AssetStore persists asset payloads keyed by transaction id. Loads return
// nil, nil when there is no row.
type AssetStore interface {
	SaveRoll(ctx context.Context, txID string, a RollAsset) error
	SaveBet(ctx context.Context, txID string, a BetAsset) error
	SaveReveal(ctx context.Context, txID string, a RevealAsset) error
	LoadRoll(ctx context.Context, txID string) (*RollAsset, error)
	LoadBet(ctx context.Context, txID string) (*BetAsset, error)
	LoadReveal(ctx context.Context, txID string) (*RevealAsset, error)
}

// Store is everything the dice handlers need from persistence.
type Store interface {
	SessionStore
	AssetStore
}
