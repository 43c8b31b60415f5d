package assets

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sqfasd/asch-dice-game-dapp/internal/dice/types"
)

func TestRoll_CreateSetsFeeAndAsset(t *testing.T) {
	f := newFixture(t)
	tx, err := f.roll.Create(types.CreateParams{Amount: 5 * coin, MaxPlayer: 3, PointsHash: "abc", RollID: "ignored"}, &types.Transaction{RecipientID: "x"})
	require.NoError(t, err)
	require.Equal(t, types.TxTypeRoll, tx.Type)
	require.Empty(t, tx.RecipientID)
	require.Equal(t, int64(5*coin), tx.Amount)
	require.Equal(t, types.TxFee, tx.Fee)
	require.Equal(t, &types.RollAsset{MaxPlayer: 3, PointsHash: "abc"}, tx.Asset.Roll)
	require.Nil(t, tx.Asset.Bet)
}

func TestRoll_Verify(t *testing.T) {
	f := newFixture(t)
	valid := func() *types.Transaction {
		tx, err := f.roll.Create(types.CreateParams{Amount: 2 * coin, MaxPlayer: 2, PointsHash: "h"}, &types.Transaction{ID: "r"})
		require.NoError(t, err)
		return tx
	}
	require.NoError(t, f.roll.Verify(f.ctx, valid(), nil))

	cases := []struct {
		name   string
		mutate func(*types.Transaction)
		want   error
	}{
		{"recipient", func(tx *types.Transaction) { tx.RecipientID = "bob" }, types.ErrInvalidRecipient},
		{"stake at minimum", func(tx *types.Transaction) { tx.Amount = types.MinRollAmount }, types.ErrInsufficientStake},
		{"zero players", func(tx *types.Transaction) { tx.Asset.Roll.MaxPlayer = 0 }, types.ErrInvalidPlayerLimit},
		{"no commitment", func(tx *types.Transaction) { tx.Asset.Roll.PointsHash = "" }, types.ErrMissingCommitment},
		{"no asset", func(tx *types.Transaction) { tx.Asset.Roll = nil }, types.ErrInvalidParams},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tx := valid()
			tc.mutate(tx)
			require.ErrorIs(t, f.roll.Verify(f.ctx, tx, nil), tc.want)
		})
	}
}

func TestRoll_UnconfirmedAndConfirmedTracks(t *testing.T) {
	f := newFixture(t)
	f.ledger.fund("house", 10*coin)
	tx, err := f.roll.Create(types.CreateParams{Amount: 5 * coin, MaxPlayer: 2, PointsHash: "h"}, &types.Transaction{ID: "r"})
	require.NoError(t, err)
	total := 5*coin + types.TxFee

	require.NoError(t, f.roll.ApplyUnconfirmed(f.ctx, tx, f.sender(t, "house")))
	require.Equal(t, int64(10*coin-total), f.ledger.account("house").UBalance)
	require.Equal(t, int64(10*coin), f.ledger.account("house").Balance)

	require.NoError(t, f.roll.Apply(f.ctx, tx, f.sender(t, "house")))
	require.Equal(t, int64(10*coin-total), f.ledger.account("house").Balance)

	require.NoError(t, f.roll.Undo(f.ctx, tx, f.sender(t, "house")))
	require.NoError(t, f.roll.UndoUnconfirmed(f.ctx, tx, f.sender(t, "house")))
	require.Equal(t, types.Account{Address: "house", Balance: 10 * coin, UBalance: 10 * coin}, f.ledger.account("house"))
}

func TestRoll_ApplyUnconfirmedInsufficient(t *testing.T) {
	f := newFixture(t)
	f.ledger.fund("house", 5*coin)
	tx, err := f.roll.Create(types.CreateParams{Amount: 5 * coin, MaxPlayer: 2, PointsHash: "h"}, &types.Transaction{ID: "r"})
	require.NoError(t, err)

	before := f.ledger.snapshot()
	require.ErrorIs(t, f.roll.ApplyUnconfirmed(f.ctx, tx, f.sender(t, "house")), types.ErrInsufficientUnconfirmedFunds)
	require.Equal(t, before, f.ledger.snapshot())
}

func TestRoll_SaveLoad(t *testing.T) {
	f := newFixture(t)
	tx, err := f.roll.Create(types.CreateParams{Amount: 5 * coin, MaxPlayer: 2, PointsHash: "h"}, &types.Transaction{ID: "r"})
	require.NoError(t, err)
	require.NoError(t, f.roll.Save(f.ctx, tx))

	got, err := f.roll.Load(f.ctx, "r")
	require.NoError(t, err)
	require.Equal(t, tx.Asset.Roll, got.Roll)

	missing, err := f.roll.Load(f.ctx, "nope")
	require.NoError(t, err)
	require.Nil(t, missing)
	require.NoError(t, f.roll.Ready(tx, nil))
}

func TestGenerateCommitment(t *testing.T) {
	got := GenerateCommitment([]int64{4, 5, 6}, 12345)
	require.Equal(t, "60ca382c6f5dbe4d8a2564f17c9eff9f7c9d22817600dfd250727a7d85243979", got)
	require.Equal(t, got, GenerateCommitment([]int64{4, 5, 6}, 12345))
	require.NotEqual(t, got, GenerateCommitment([]int64{4, 5, 6}, 12346))
	require.NotEqual(t, got, GenerateCommitment([]int64{6, 5, 4}, 12345))
}

func TestRandomDraw(t *testing.T) {
	for i := 0; i < 50; i++ {
		d, err := RandomDraw()
		require.NoError(t, err)
		require.True(t, validPoints(d.Points), "%v", d.Points)
		require.GreaterOrEqual(t, d.Nonce, int64(0))
		require.LessOrEqual(t, d.Nonce, int64(types.MaxNonce))
		require.Equal(t, GenerateCommitment(d.Points, d.Nonce), d.Commitment())
	}
}
