// Package settlement computes dice outcomes and the zero-sum redistribution of
// a roll's escrow. Everything here is pure: no I/O, inputs are never mutated.
package settlement

import (
	sdkmath "cosmossdk.io/math"

	"github.com/sqfasd/asch-dice-game-dapp/internal/dice/types"
)

// Outcome is the result of one bet against revealed dice. Odds is the payout
// multiplier applied to the stake on a win.
type Outcome struct {
	Won  bool
	Odds int64
}

// Resolve decides a single bet. Unknown rules lose at odds 1.
func Resolve(points []int64, rule int64, guess int64) Outcome {
	var total int64
	for _, p := range points {
		total += p
	}
	out := Outcome{Won: false, Odds: 1}

	switch rule {
	case types.RuleBigSmall:
		var big int64
		if total > types.BigThreshold {
			big = 1
		}
		out.Won = big == guess
	case types.RuleFace:
		var count int64
		for _, p := range points {
			if p == guess {
				count++
			}
		}
		if count > 0 {
			out.Won = true
			out.Odds = count
		}
	case types.RuleTotal:
		switch total - guess {
		case 0:
			out.Won = true
			out.Odds = 2
		case 1, -1:
			out.Won = true
		}
	}
	return out
}

// SettledWager is a wager together with its outcome. FinalAmount is what the
// bettor receives: stake plus winnings, or zero on a loss.
type SettledWager struct {
	types.Wager
	Outcome
	FinalAmount int64
}

// Result is the settlement of one roll.
type Result struct {
	SessionID     string
	SessionAmount int64
	Wagers        []SettledWager
}

// Total is the sum of every final amount. It equals the escrow plus all stakes.
func (r Result) Total() sdkmath.Int {
	sum := sdkmath.NewInt(r.SessionAmount)
	for _, w := range r.Wagers {
		sum = sum.AddRaw(w.FinalAmount)
	}
	return sum
}

// Settle resolves every wager against the revealed points and moves stakes
// between the roll's escrow and the bettors. Wagers are settled in the order
// given; the final amounts do not depend on that order.
func Settle(points []int64, session *types.Session, wagers []types.Wager) (Result, error) {
	if session == nil || session.ID == "" || session.SenderID == "" || session.PointsHash == "" {
		return Result{}, types.ErrMalformedSession.Wrap("roll is missing id, creator or points hash")
	}
	if len(points) != types.DiceCount {
		return Result{}, types.ErrInvalidPointsShape.Wrapf("got %d points", len(points))
	}

	escrow := sdkmath.NewInt(session.Amount)
	before := escrow
	settled := make([]SettledWager, 0, len(wagers))
	for _, w := range wagers {
		if w.RollID != "" && w.RollID != session.ID {
			return Result{}, types.ErrIntegrity.Wrapf("bet %s belongs to roll %s, not %s", w.ID, w.RollID, session.ID)
		}
		if w.Amount < 0 {
			return Result{}, types.ErrIntegrity.Wrapf("bet %s has negative amount %d", w.ID, w.Amount)
		}
		before = before.AddRaw(w.Amount)

		out := Resolve(points, w.Rule, w.Point)
		stake := sdkmath.NewInt(w.Amount)
		final := sdkmath.ZeroInt()
		if out.Won {
			win := stake.MulRaw(out.Odds)
			escrow = escrow.Sub(win)
			final = stake.Add(win)
		} else {
			escrow = escrow.Add(stake)
		}
		if !final.IsInt64() {
			return Result{}, types.ErrIntegrity.Wrapf("bet %s payout overflows int64", w.ID)
		}
		settled = append(settled, SettledWager{
			Wager:       w,
			Outcome:     out,
			FinalAmount: final.Int64(),
		})
	}
	if !escrow.IsInt64() {
		return Result{}, types.ErrIntegrity.Wrapf("roll %s escrow overflows int64", session.ID)
	}

	res := Result{
		SessionID:     session.ID,
		SessionAmount: escrow.Int64(),
		Wagers:        settled,
	}
	if !res.Total().Equal(before) {
		return Result{}, types.ErrIntegrity.Wrapf("settlement of roll %s is not zero-sum", session.ID)
	}
	return res, nil
}
