package assets

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sqfasd/asch-dice-game-dapp/internal/dice/types"
)

func TestReveal_Verify(t *testing.T) {
	f := newFixture(t)
	draw := f.openScenarioRoll(t)

	tx := f.revealTx(t, "rv", draw, "roll1")
	require.Equal(t, int64(0), tx.Amount)
	require.Equal(t, types.TxFee, tx.Fee)
	require.NoError(t, f.reveal.Verify(f.ctx, tx, nil))

	cases := []struct {
		name   string
		mutate func(*types.Transaction)
		want   error
	}{
		{"recipient", func(tx *types.Transaction) { tx.RecipientID = "x" }, types.ErrInvalidRecipient},
		{"negative nonce", func(tx *types.Transaction) { tx.Asset.Reveal.Nonce = -1 }, types.ErrInvalidNonce},
		{"nonce too large", func(tx *types.Transaction) { tx.Asset.Reveal.Nonce = types.MaxNonce + 1 }, types.ErrInvalidNonce},
		{"two points", func(tx *types.Transaction) { tx.Asset.Reveal.Points = []int64{4, 5} }, types.ErrInvalidPointsShape},
		{"face out of range", func(tx *types.Transaction) { tx.Asset.Reveal.Points = []int64{4, 5, 7} }, types.ErrInvalidPointsShape},
		{"unknown roll", func(tx *types.Transaction) { tx.Asset.Reveal.RollID = "nope" }, types.ErrSessionNotFound},
		{"wrong nonce", func(tx *types.Transaction) { tx.Asset.Reveal.Nonce = draw.Nonce + 1 }, types.ErrCommitmentMismatch},
		{"wrong points", func(tx *types.Transaction) { tx.Asset.Reveal.Points = []int64{6, 5, 4} }, types.ErrCommitmentMismatch},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tx := f.revealTx(t, "rv", draw, "roll1")
			tc.mutate(tx)
			require.ErrorIs(t, f.reveal.Verify(f.ctx, tx, nil), tc.want)
		})
	}
}

func TestReveal_ApplySettlesScenario(t *testing.T) {
	f := newFixture(t)
	draw := f.openScenarioRoll(t)
	tx := f.revealTx(t, "rv", draw, "roll1")

	require.NoError(t, f.reveal.Apply(f.ctx, tx, f.sender(t, "carol")))
	require.True(t, f.reg.IsSettled("roll1"))

	require.Equal(t, types.Account{Address: "house", Balance: 1095 * coin, UBalance: 1095 * coin}, f.ledger.account("house"))
	require.Equal(t, types.Account{Address: "alice", Balance: 120 * coin, UBalance: 120 * coin}, f.ledger.account("alice"))
	require.Equal(t, types.Account{Address: "bob", Balance: 100 * coin, UBalance: 100 * coin}, f.ledger.account("bob"))
	// The fee only leaves the confirmed balance; the unconfirmed one paid at admission.
	require.Equal(t, types.Account{Address: "carol", Balance: 100*coin - types.TxFee, UBalance: 100 * coin}, f.ledger.account("carol"))
}

func TestReveal_CreatorRevealCoalesces(t *testing.T) {
	f := newFixture(t)
	draw := f.openScenarioRoll(t)
	tx := f.revealTx(t, "rv", draw, "roll1")

	require.NoError(t, f.reveal.Apply(f.ctx, tx, f.sender(t, "house")))
	require.Equal(t, types.Account{Address: "house", Balance: 1095*coin - types.TxFee, UBalance: 1095 * coin}, f.ledger.account("house"))

	houseMerges := 0
	for _, d := range f.ledger.merges {
		if d.Address == "house" {
			houseMerges++
		}
	}
	require.Equal(t, 1, houseMerges)
}

func TestReveal_DuplicateAfterConfirmMutatesNothing(t *testing.T) {
	f := newFixture(t)
	draw := f.openScenarioRoll(t)
	require.NoError(t, f.reveal.Apply(f.ctx, f.revealTx(t, "rv1", draw, "roll1"), f.sender(t, "house")))

	before := f.ledger.snapshot()
	dup := f.revealTx(t, "rv2", draw, "roll1")
	require.ErrorIs(t, f.reveal.ApplyUnconfirmed(f.ctx, dup, f.sender(t, "carol")), types.ErrGameAlreadySettled)
	require.ErrorIs(t, f.reveal.Apply(f.ctx, dup, f.sender(t, "carol")), types.ErrGameAlreadySettled)
	require.Equal(t, before, f.ledger.snapshot())
	require.True(t, f.reg.IsSettled("roll1"))
	require.False(t, f.reg.HasPendingReveal("roll1"))
}

func TestReveal_OnePendingRevealPerRoll(t *testing.T) {
	f := newFixture(t)
	draw := f.openScenarioRoll(t)

	first := f.revealTx(t, "rv1", draw, "roll1")
	require.NoError(t, f.reveal.ApplyUnconfirmed(f.ctx, first, f.sender(t, "house")))
	require.True(t, f.reg.HasPendingReveal("roll1"))
	require.Equal(t, int64(1000*coin-types.TxFee), f.ledger.account("house").UBalance)

	second := f.revealTx(t, "rv2", draw, "roll1")
	require.ErrorIs(t, f.reveal.ApplyUnconfirmed(f.ctx, second, f.sender(t, "carol")), types.ErrGameAlreadySettled)
	require.Equal(t, int64(100*coin), f.ledger.account("carol").UBalance)

	require.NoError(t, f.reveal.UndoUnconfirmed(f.ctx, first, f.sender(t, "house")))
	require.False(t, f.reg.HasPendingReveal("roll1"))
	require.Equal(t, int64(1000*coin), f.ledger.account("house").UBalance)
	require.NoError(t, f.reveal.ApplyUnconfirmed(f.ctx, second, f.sender(t, "carol")))
}

func TestReveal_ApplyUnconfirmedInsufficientReleasesNothing(t *testing.T) {
	f := newFixture(t)
	draw := f.openScenarioRoll(t)
	f.ledger.fund("broke", types.TxFee-1)

	tx := f.revealTx(t, "rv", draw, "roll1")
	require.ErrorIs(t, f.reveal.ApplyUnconfirmed(f.ctx, tx, f.sender(t, "broke")), types.ErrInsufficientUnconfirmedFunds)
	require.False(t, f.reg.HasPendingReveal("roll1"))
}

func TestReveal_UndoIsExactInverse(t *testing.T) {
	f := newFixture(t)
	draw := f.openScenarioRoll(t)
	before := f.ledger.snapshot()

	tx := f.revealTx(t, "rv", draw, "roll1")
	require.NoError(t, f.reveal.ApplyUnconfirmed(f.ctx, tx, f.sender(t, "carol")))
	require.NoError(t, f.reveal.Apply(f.ctx, tx, f.sender(t, "carol")))
	require.NoError(t, f.reveal.Undo(f.ctx, tx, f.sender(t, "carol")))
	require.NoError(t, f.reveal.UndoUnconfirmed(f.ctx, tx, f.sender(t, "carol")))

	require.Equal(t, before, f.ledger.snapshot())
	require.False(t, f.reg.IsSettled("roll1"))
	require.False(t, f.reg.HasPendingReveal("roll1"))
}

func TestReveal_PartialFailureIsCompensated(t *testing.T) {
	f := newFixture(t)
	draw := f.openScenarioRoll(t)
	// alice is the last diff in order: creator, revealer, then bettors.
	f.ledger.failOn["alice"] = true
	before := f.ledger.snapshot()

	err := f.reveal.Apply(f.ctx, f.revealTx(t, "rv", draw, "roll1"), f.sender(t, "carol"))
	require.ErrorIs(t, err, types.ErrInsufficientFunds)
	require.Equal(t, before, f.ledger.snapshot())
	require.False(t, f.reg.IsSettled("roll1"))
}

func TestReveal_PrecheckStopsBeforeAnyMerge(t *testing.T) {
	f := newFixture(t)
	draw := f.openScenarioRoll(t)
	f.ledger.fund("carol", 0)

	err := f.reveal.Apply(f.ctx, f.revealTx(t, "rv", draw, "roll1"), f.sender(t, "carol"))
	require.ErrorIs(t, err, types.ErrInsufficientFunds)
	require.Empty(t, f.ledger.merges)
	require.False(t, f.reg.IsSettled("roll1"))
}

func TestReveal_MalformedSessionFailsClosed(t *testing.T) {
	f := newFixture(t)
	draw := f.openScenarioRoll(t)
	f.store.sessions["roll1"].SenderID = ""

	err := f.reveal.Apply(f.ctx, f.revealTx(t, "rv", draw, "roll1"), f.sender(t, "carol"))
	require.ErrorIs(t, err, types.ErrMalformedSession)
	require.Equal(t, types.ClassIntegrity, types.Class(err))
	require.Empty(t, f.ledger.merges)
}
