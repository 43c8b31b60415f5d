package codec

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cometbft/cometbft/crypto/ed25519"

	"github.com/sqfasd/asch-dice-game-dapp/internal/dice/types"
)

const txAuthDomainV0 = "dice/tx/v0"

// SignBytes is the message a sender signs:
// DOMAIN || 0x00 || type || 0x00 || nonce || 0x00 || signer || 0x00 || sha256(value)
func SignBytes(typ string, value []byte, nonce string, signer string) []byte {
	sum := sha256.Sum256(value)
	out := make([]byte, 0, len(txAuthDomainV0)+1+len(typ)+1+len(nonce)+1+len(signer)+1+sha256.Size)
	out = append(out, []byte(txAuthDomainV0)...)
	out = append(out, 0)
	out = append(out, []byte(typ)...)
	out = append(out, 0)
	out = append(out, []byte(nonce)...)
	out = append(out, 0)
	out = append(out, []byte(signer)...)
	out = append(out, 0)
	out = append(out, sum[:]...)
	return out
}

// KeyFromSecret derives the account keypair from a secret phrase.
func KeyFromSecret(secret string) ed25519.PrivKey {
	return ed25519.GenPrivKeyFromSecret([]byte(secret))
}

// AddressFromPubKey is the lowercase hex of the key's 20-byte address.
func AddressFromPubKey(pub []byte) (string, error) {
	if len(pub) != ed25519.PubKeySize {
		return "", types.ErrInvalidSignature.Wrapf("public key must be %d bytes, got %d", ed25519.PubKeySize, len(pub))
	}
	return strings.ToLower(ed25519.PubKey(pub).Address().String()), nil
}

// Sign fills in Signer and Sig for env using priv.
func Sign(env *TxEnvelope, priv ed25519.PrivKey) error {
	env.Signer = hex.EncodeToString(priv.PubKey().Bytes())
	sig, err := priv.Sign(SignBytes(env.Type, env.Value, env.Nonce, env.Signer))
	if err != nil {
		return types.ErrInvalidSignature.Wrapf("sign: %v", err)
	}
	env.Sig = sig
	return nil
}

// VerifyEnvelope checks that env carries a valid signature by its signer.
func VerifyEnvelope(env TxEnvelope) error {
	if env.Nonce == "" {
		return types.ErrInvalidSignature.Wrap("missing tx.nonce")
	}
	if env.Signer == "" {
		return types.ErrInvalidSignature.Wrap("missing tx.signer")
	}
	if len(env.Sig) != ed25519.SignatureSize {
		return types.ErrInvalidSignature.Wrapf("invalid tx.sig length: got %d want %d", len(env.Sig), ed25519.SignatureSize)
	}
	pub, err := hex.DecodeString(env.Signer)
	if err != nil || len(pub) != ed25519.PubKeySize {
		return types.ErrInvalidSignature.Wrap("tx.signer is not a hex ed25519 public key")
	}
	if !ed25519.PubKey(pub).VerifySignature(SignBytes(env.Type, env.Value, env.Nonce, env.Signer), env.Sig) {
		return types.ErrInvalidSignature.Wrap("invalid signature")
	}
	return nil
}

// SignTx wraps tx in a signed envelope and returns the wire bytes and the
// resulting transaction id. tx.ID must be empty: it is derived from the bytes.
func SignTx(tx *types.Transaction, priv ed25519.PrivKey, nonce string) ([]byte, string, error) {
	if tx.ID != "" {
		return nil, "", types.ErrInvalidParams.Wrap("transaction id is derived, leave it empty")
	}
	value, err := json.Marshal(tx)
	if err != nil {
		return nil, "", fmt.Errorf("encode %s value: %w", tx.Type, err)
	}
	env := TxEnvelope{Type: tx.Type, Value: value, Nonce: nonce}
	if err := Sign(&env, priv); err != nil {
		return nil, "", err
	}
	b, err := EncodeTxEnvelope(env)
	if err != nil {
		return nil, "", err
	}
	return b, TxID(b), nil
}
