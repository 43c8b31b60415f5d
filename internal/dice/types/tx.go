package types

// Transaction is the host's transaction draft as seen by the dice handlers.
type Transaction struct {
	ID              string `json:"id,omitempty"`
	Type            string `json:"type"`
	Timestamp       int64  `json:"timestamp"`
	SenderPublicKey []byte `json:"senderPublicKey"` // 32-byte ed25519 key (base64 in JSON)
	SenderID        string `json:"senderId"`
	RecipientID     string `json:"recipientId,omitempty"`
	Amount          int64  `json:"amount"`
	Fee             int64  `json:"fee"`
	Asset           Asset  `json:"asset"`
}

// Asset carries exactly one kind-specific payload.
type Asset struct {
	Roll   *RollAsset   `json:"roll,omitempty"`
	Bet    *BetAsset    `json:"bet,omitempty"`
	Reveal *RevealAsset `json:"reveal,omitempty"`
}

type RollAsset struct {
	MaxPlayer  int64  `json:"maxPlayer"`
	PointsHash string `json:"pointsHash"`
}

type BetAsset struct {
	Rule   int64  `json:"rule"`
	Point  int64  `json:"point"`
	RollID string `json:"rollId"`
}

type RevealAsset struct {
	Nonce  int64   `json:"nonce"`
	Points []int64 `json:"points"`
	RollID string  `json:"rollId"`
}

// Account is one address in the ledger. UBalance tracks the unconfirmed pool.
type Account struct {
	Address   string `json:"address"`
	PublicKey []byte `json:"publicKey,omitempty"`
	Balance   int64  `json:"balance"`
	UBalance  int64  `json:"u_balance"`
}

// AccountDiff is a signed delta against both balance tracks of one address.
type AccountDiff struct {
	Address  string `json:"address"`
	Balance  int64  `json:"balance,omitempty"`
	UBalance int64  `json:"u_balance,omitempty"`
}

func (d AccountDiff) Inverse() AccountDiff {
	return AccountDiff{Address: d.Address, Balance: -d.Balance, UBalance: -d.UBalance}
}

func (d AccountDiff) IsZero() bool {
	return d.Balance == 0 && d.UBalance == 0
}

// Session is a confirmed roll: an open wagering round.
type Session struct {
	ID         string `json:"id"`
	SenderID   string `json:"senderId"`
	Amount     int64  `json:"amount"`
	MaxPlayer  int64  `json:"maxPlayer"`
	PointsHash string `json:"pointsHash"`
}

// Wager is a confirmed bet against a session.
type Wager struct {
	ID       string `json:"id"`
	SenderID string `json:"senderId"`
	Amount   int64  `json:"amount"`
	Rule     int64  `json:"rule"`
	Point    int64  `json:"point"`
	RollID   string `json:"rollId"`
}

// Disclosure is a confirmed reveal.
type Disclosure struct {
	ID       string  `json:"id"`
	SenderID string  `json:"senderId"`
	Nonce    int64   `json:"nonce"`
	Points   []int64 `json:"points"`
	RollID   string  `json:"rollId"`
}

// CreateParams are the caller-supplied fields of a new dice transaction.
// Each handler reads only the fields of its own kind.
type CreateParams struct {
	Amount int64

	MaxPlayer  int64
	PointsHash string

	Rule  int64
	Point int64

	Nonce  int64
	Points []int64

	RollID string
}
