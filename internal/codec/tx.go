package codec

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/sqfasd/asch-dice-game-dapp/internal/dice/types"
)

// TxEnvelope is the wire container for every transaction. CometBFT treats
// transactions as opaque bytes; ours are JSON.
type TxEnvelope struct {
	Type  string          `json:"type"`
	Value json.RawMessage `json:"value"`

	// Nonce keeps otherwise identical payloads distinct; it is part of the
	// signed message. Signer is the hex ed25519 public key of the sender.
	Nonce  string `json:"nonce,omitempty"`
	Signer string `json:"signer,omitempty"`
	Sig    []byte `json:"sig,omitempty"`
}

func DecodeTxEnvelope(txBytes []byte) (TxEnvelope, error) {
	var env TxEnvelope
	if err := json.Unmarshal(txBytes, &env); err != nil {
		return TxEnvelope{}, types.ErrInvalidParams.Wrapf("invalid tx json: %v", err)
	}
	if env.Type == "" {
		return TxEnvelope{}, types.ErrInvalidParams.Wrap("missing tx.type")
	}
	return env, nil
}

func EncodeTxEnvelope(env TxEnvelope) ([]byte, error) {
	b, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("encode tx envelope: %w", err)
	}
	return b, nil
}

// TxID is the hex SHA-256 of the raw transaction bytes.
func TxID(txBytes []byte) string {
	sum := sha256.Sum256(txBytes)
	return hex.EncodeToString(sum[:])
}

// DecodeDiceTx unpacks a dice transaction from a verified envelope. The
// payload must agree with the envelope on type and signer.
func DecodeDiceTx(env TxEnvelope, id string) (*types.Transaction, error) {
	var tx types.Transaction
	dec := json.NewDecoder(bytes.NewReader(env.Value))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&tx); err != nil {
		return nil, types.ErrInvalidParams.Wrapf("bad %s value: %v", env.Type, err)
	}
	if tx.Type != env.Type {
		return nil, types.ErrInvalidParams.Wrapf("value type %q does not match envelope type %q", tx.Type, env.Type)
	}
	if hex.EncodeToString(tx.SenderPublicKey) != env.Signer {
		return nil, types.ErrInvalidSignature.Wrap("sender public key does not match tx.signer")
	}
	addr, err := AddressFromPubKey(tx.SenderPublicKey)
	if err != nil {
		return nil, err
	}
	if tx.SenderID != addr {
		return nil, types.ErrInvalidSignature.Wrapf("sender id %q does not match key address %q", tx.SenderID, addr)
	}
	tx.ID = id
	return &tx, nil
}

// ---- Bank ----

// TxTypeBankMint credits an account out of thin air. Localnets only.
const TxTypeBankMint = "bank/mint"

type BankMintTx struct {
	To     string `json:"to"`
	Amount int64  `json:"amount"`
}
