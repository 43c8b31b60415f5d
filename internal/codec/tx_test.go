package codec

import (
	"encoding/hex"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sqfasd/asch-dice-game-dapp/internal/dice/types"
)

func TestDecodeTxEnvelope_OK(t *testing.T) {
	b, err := json.Marshal(map[string]any{
		"type":  TxTypeBankMint,
		"value": map[string]any{"to": "alice", "amount": 123},
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	env, err := DecodeTxEnvelope(b)
	if err != nil {
		t.Fatalf("DecodeTxEnvelope: %v", err)
	}
	if env.Type != TxTypeBankMint {
		t.Fatalf("unexpected type: %q", env.Type)
	}

	var v BankMintTx
	if err := json.Unmarshal(env.Value, &v); err != nil {
		t.Fatalf("unmarshal value: %v", err)
	}
	if v.To != "alice" || v.Amount != 123 {
		t.Fatalf("unexpected value: %#v", v)
	}
}

func TestDecodeTxEnvelope_MissingType(t *testing.T) {
	b, err := json.Marshal(map[string]any{"value": map[string]any{"x": 1}})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	_, err = DecodeTxEnvelope(b)
	require.ErrorIs(t, err, types.ErrInvalidParams)
}

func TestDecodeTxEnvelope_InvalidJSON(t *testing.T) {
	_, err := DecodeTxEnvelope([]byte("{not json"))
	require.ErrorIs(t, err, types.ErrInvalidParams)
}

func TestTxID_IsContentHash(t *testing.T) {
	require.Equal(t, TxID([]byte("a")), TxID([]byte("a")))
	require.NotEqual(t, TxID([]byte("a")), TxID([]byte("b")))
	require.Len(t, TxID(nil), 64)
}

func signedDiceEnvelope(t *testing.T, secret string, mutate func(*types.Transaction)) TxEnvelope {
	t.Helper()
	priv := KeyFromSecret(secret)
	pub := priv.PubKey().Bytes()
	addr, err := AddressFromPubKey(pub)
	require.NoError(t, err)

	tx := types.Transaction{
		Type:            types.TxTypeBet,
		Timestamp:       1,
		SenderPublicKey: pub,
		SenderID:        addr,
		Amount:          types.FixedPoint,
		Fee:             types.TxFee,
		Asset:           types.Asset{Bet: &types.BetAsset{Rule: types.RuleTotal, Point: 9, RollID: "r1"}},
	}
	if mutate != nil {
		mutate(&tx)
	}
	value, err := json.Marshal(tx)
	require.NoError(t, err)
	env := TxEnvelope{Type: tx.Type, Value: value, Nonce: "1"}
	require.NoError(t, Sign(&env, priv))
	return env
}

func TestDecodeDiceTx(t *testing.T) {
	env := signedDiceEnvelope(t, "alice secret", nil)
	require.NoError(t, VerifyEnvelope(env))

	tx, err := DecodeDiceTx(env, "txid")
	require.NoError(t, err)
	require.Equal(t, "txid", tx.ID)
	require.Equal(t, &types.BetAsset{Rule: types.RuleTotal, Point: 9, RollID: "r1"}, tx.Asset.Bet)
}

func TestDecodeDiceTx_SenderMustMatchSigner(t *testing.T) {
	env := signedDiceEnvelope(t, "alice secret", func(tx *types.Transaction) { tx.SenderID = "someone-else" })
	_, err := DecodeDiceTx(env, "txid")
	require.ErrorIs(t, err, types.ErrInvalidSignature)

	other := KeyFromSecret("bob secret").PubKey().Bytes()
	env = signedDiceEnvelope(t, "alice secret", func(tx *types.Transaction) { tx.SenderPublicKey = other })
	_, err = DecodeDiceTx(env, "txid")
	require.ErrorIs(t, err, types.ErrInvalidSignature)
}

func TestDecodeDiceTx_TypeMismatchAndBadNumbers(t *testing.T) {
	env := signedDiceEnvelope(t, "alice secret", nil)
	env.Type = types.TxTypeRoll
	_, err := DecodeDiceTx(env, "txid")
	require.ErrorIs(t, err, types.ErrInvalidParams)

	env = signedDiceEnvelope(t, "alice secret", nil)
	env.Value = json.RawMessage(`{"type":"dice/bet","amount":1.5}`)
	_, err = DecodeDiceTx(env, "txid")
	require.ErrorIs(t, err, types.ErrInvalidParams)
}

func TestVerifyEnvelope_Tampered(t *testing.T) {
	env := signedDiceEnvelope(t, "alice secret", nil)
	env.Nonce = "2"
	require.ErrorIs(t, VerifyEnvelope(env), types.ErrInvalidSignature)

	env = signedDiceEnvelope(t, "alice secret", nil)
	env.Value = append(json.RawMessage(nil), env.Value...)
	env.Value[len(env.Value)-2] ^= 1
	require.ErrorIs(t, VerifyEnvelope(env), types.ErrInvalidSignature)

	env = signedDiceEnvelope(t, "alice secret", nil)
	env.Signer = hex.EncodeToString(KeyFromSecret("bob secret").PubKey().Bytes())
	require.ErrorIs(t, VerifyEnvelope(env), types.ErrInvalidSignature)

	env = signedDiceEnvelope(t, "alice secret", nil)
	env.Sig = env.Sig[:10]
	require.ErrorIs(t, VerifyEnvelope(env), types.ErrInvalidSignature)
}

func TestKeyFromSecret_Deterministic(t *testing.T) {
	a, err := AddressFromPubKey(KeyFromSecret("s").PubKey().Bytes())
	require.NoError(t, err)
	b, err := AddressFromPubKey(KeyFromSecret("s").PubKey().Bytes())
	require.NoError(t, err)
	require.Equal(t, a, b)
	require.Len(t, a, 40)

	_, err = AddressFromPubKey([]byte{1, 2})
	require.ErrorIs(t, err, types.ErrInvalidSignature)
}
