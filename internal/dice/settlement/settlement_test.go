package settlement_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sqfasd/asch-dice-game-dapp/internal/dice/settlement"
	"github.com/sqfasd/asch-dice-game-dapp/internal/dice/types"
)

func TestResolve_BigSmall(t *testing.T) {
	require.Equal(t, settlement.Outcome{Won: true, Odds: 1}, settlement.Resolve([]int64{4, 5, 6}, types.RuleBigSmall, 1))
	require.Equal(t, settlement.Outcome{Won: false, Odds: 1}, settlement.Resolve([]int64{4, 5, 6}, types.RuleBigSmall, 0))
	// 10 is small.
	require.Equal(t, settlement.Outcome{Won: true, Odds: 1}, settlement.Resolve([]int64{3, 3, 4}, types.RuleBigSmall, 0))
	require.Equal(t, settlement.Outcome{Won: true, Odds: 1}, settlement.Resolve([]int64{3, 4, 4}, types.RuleBigSmall, 1))
}

func TestResolve_FaceCountIsOdds(t *testing.T) {
	require.Equal(t, settlement.Outcome{Won: false, Odds: 1}, settlement.Resolve([]int64{1, 2, 3}, types.RuleFace, 6))
	require.Equal(t, settlement.Outcome{Won: true, Odds: 1}, settlement.Resolve([]int64{1, 2, 3}, types.RuleFace, 2))
	require.Equal(t, settlement.Outcome{Won: true, Odds: 2}, settlement.Resolve([]int64{5, 2, 5}, types.RuleFace, 5))
	require.Equal(t, settlement.Outcome{Won: true, Odds: 3}, settlement.Resolve([]int64{6, 6, 6}, types.RuleFace, 6))
}

func TestResolve_Total(t *testing.T) {
	require.Equal(t, settlement.Outcome{Won: true, Odds: 2}, settlement.Resolve([]int64{4, 5, 6}, types.RuleTotal, 15))
	require.Equal(t, settlement.Outcome{Won: true, Odds: 1}, settlement.Resolve([]int64{4, 5, 6}, types.RuleTotal, 14))
	require.Equal(t, settlement.Outcome{Won: true, Odds: 1}, settlement.Resolve([]int64{4, 5, 6}, types.RuleTotal, 16))
	require.Equal(t, settlement.Outcome{Won: false, Odds: 1}, settlement.Resolve([]int64{4, 5, 6}, types.RuleTotal, 10))
}

func TestResolve_UnknownRuleLoses(t *testing.T) {
	for _, rule := range []int64{0, 4, -1} {
		require.Equal(t, settlement.Outcome{Won: false, Odds: 1}, settlement.Resolve([]int64{1, 1, 1}, rule, 1))
	}
}

func TestResolve_DeterministicAndTotal(t *testing.T) {
	for a := int64(1); a <= 6; a++ {
		for b := int64(1); b <= 6; b++ {
			for c := int64(1); c <= 6; c++ {
				pts := []int64{a, b, c}
				for rule := types.RuleBigSmall; rule <= types.RuleTotal; rule++ {
					for guess := int64(0); guess <= 18; guess++ {
						first := settlement.Resolve(pts, rule, guess)
						require.Equal(t, first, settlement.Resolve(pts, rule, guess))
						require.GreaterOrEqual(t, first.Odds, int64(1))
						require.LessOrEqual(t, first.Odds, types.MaxOdds)
					}
				}
			}
		}
	}
}

func TestSettle_Scenario(t *testing.T) {
	session := &types.Session{ID: "roll1", SenderID: "house", Amount: 100, MaxPlayer: 2, PointsHash: "h"}
	wagers := []types.Wager{
		{ID: "a", SenderID: "alice", Amount: 10, Rule: types.RuleBigSmall, Point: 1, RollID: "roll1"},
		{ID: "b", SenderID: "bob", Amount: 5, Rule: types.RuleTotal, Point: 10, RollID: "roll1"},
	}

	res, err := settlement.Settle([]int64{4, 5, 6}, session, wagers)
	require.NoError(t, err)
	require.Equal(t, int64(95), res.SessionAmount)
	require.Len(t, res.Wagers, 2)
	require.Equal(t, int64(20), res.Wagers[0].FinalAmount)
	require.True(t, res.Wagers[0].Won)
	require.Equal(t, int64(0), res.Wagers[1].FinalAmount)
	require.False(t, res.Wagers[1].Won)
	require.Equal(t, int64(115), res.Total().Int64())

	// Inputs are untouched.
	require.Equal(t, int64(100), session.Amount)
	require.Equal(t, int64(10), wagers[0].Amount)
	require.Equal(t, int64(5), wagers[1].Amount)
}

func TestSettle_ZeroSumAcrossAllDraws(t *testing.T) {
	session := &types.Session{ID: "r", SenderID: "house", Amount: 1_000, MaxPlayer: 5, PointsHash: "h"}
	wagers := []types.Wager{
		{ID: "1", SenderID: "p1", Amount: 7, Rule: types.RuleBigSmall, Point: 0},
		{ID: "2", SenderID: "p2", Amount: 11, Rule: types.RuleFace, Point: 3},
		{ID: "3", SenderID: "p3", Amount: 13, Rule: types.RuleTotal, Point: 9},
		{ID: "4", SenderID: "p4", Amount: 17, Rule: types.RuleFace, Point: 6},
		{ID: "5", SenderID: "p5", Amount: 19, Rule: 9, Point: 1},
	}
	want := int64(1_000 + 7 + 11 + 13 + 17 + 19)
	for a := int64(1); a <= 6; a++ {
		for b := int64(1); b <= 6; b++ {
			for c := int64(1); c <= 6; c++ {
				res, err := settlement.Settle([]int64{a, b, c}, session, wagers)
				require.NoError(t, err)
				require.Equal(t, want, res.Total().Int64())
				require.GreaterOrEqual(t, res.SessionAmount, int64(0))
			}
		}
	}
}

func TestSettle_OrderIndependent(t *testing.T) {
	session := &types.Session{ID: "r", SenderID: "house", Amount: 300, MaxPlayer: 3, PointsHash: "h"}
	w := []types.Wager{
		{ID: "1", SenderID: "p1", Amount: 10, Rule: types.RuleFace, Point: 2},
		{ID: "2", SenderID: "p2", Amount: 20, Rule: types.RuleTotal, Point: 7},
		{ID: "3", SenderID: "p3", Amount: 30, Rule: types.RuleBigSmall, Point: 1},
	}
	rev := []types.Wager{w[2], w[1], w[0]}

	a, err := settlement.Settle([]int64{2, 2, 3}, session, w)
	require.NoError(t, err)
	b, err := settlement.Settle([]int64{2, 2, 3}, session, rev)
	require.NoError(t, err)
	require.Equal(t, a.SessionAmount, b.SessionAmount)
	require.Equal(t, a.Wagers[0].FinalAmount, b.Wagers[2].FinalAmount)
}

func TestSettle_MalformedSessionFailsClosed(t *testing.T) {
	wagers := []types.Wager{{ID: "a", SenderID: "alice", Amount: 10, Rule: 1, Point: 1}}
	for _, s := range []*types.Session{
		nil,
		{ID: "r", Amount: 100, PointsHash: "h"},
		{ID: "r", SenderID: "house", Amount: 100},
	} {
		_, err := settlement.Settle([]int64{1, 2, 3}, s, wagers)
		require.ErrorIs(t, err, types.ErrMalformedSession)
		require.Equal(t, types.ClassIntegrity, types.Class(err))
	}
}

func TestSettle_RejectsForeignWager(t *testing.T) {
	session := &types.Session{ID: "r", SenderID: "house", Amount: 100, PointsHash: "h"}
	_, err := settlement.Settle([]int64{1, 2, 3}, session, []types.Wager{{ID: "a", Amount: 1, RollID: "other"}})
	require.ErrorIs(t, err, types.ErrIntegrity)
}
