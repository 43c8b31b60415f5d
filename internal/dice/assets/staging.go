package assets

import (
	"context"
	"errors"

	"github.com/sqfasd/asch-dice-game-dapp/internal/dice/types"
)

// coalesce merges diffs for the same address, keeping the order in which
// addresses first appear, and drops diffs that net to zero.
func coalesce(diffs []types.AccountDiff) ([]types.AccountDiff, error) {
	index := map[string]int{}
	out := make([]types.AccountDiff, 0, len(diffs))
	for _, d := range diffs {
		i, seen := index[d.Address]
		if !seen {
			index[d.Address] = len(out)
			out = append(out, types.AccountDiff{Address: d.Address})
			i = len(out) - 1
		}
		var err error
		if out[i].Balance, err = addInt64Checked(out[i].Balance, d.Balance, "balance delta"); err != nil {
			return nil, types.ErrIntegrity.Wrap(err.Error())
		}
		if out[i].UBalance, err = addInt64Checked(out[i].UBalance, d.UBalance, "u_balance delta"); err != nil {
			return nil, types.ErrIntegrity.Wrap(err.Error())
		}
	}
	kept := out[:0]
	for _, d := range out {
		if !d.IsZero() {
			kept = append(kept, d)
		}
	}
	return kept, nil
}

func invert(diffs []types.AccountDiff) []types.AccountDiff {
	out := make([]types.AccountDiff, len(diffs))
	for i, d := range diffs {
		out[i] = d.Inverse()
	}
	return out
}

// commitDiffs applies a multi-account update as one unit. Every diff is
// checked against current balances first; then they are merged in order and,
// if one fails anyway, the merged prefix is undone in reverse order.
func commitDiffs(ctx context.Context, ledger types.Ledger, diffs []types.AccountDiff) error {
	staged, err := coalesce(diffs)
	if err != nil {
		return err
	}

	for _, d := range staged {
		acc, err := ledger.GetAccount(ctx, d.Address)
		if err != nil {
			if !errors.Is(err, types.ErrAccountNotFound) {
				return err
			}
			acc = &types.Account{Address: d.Address}
		}
		bal, err := addInt64Checked(acc.Balance, d.Balance, "balance")
		if err != nil {
			return types.ErrIntegrity.Wrap(err.Error())
		}
		ubal, err := addInt64Checked(acc.UBalance, d.UBalance, "u_balance")
		if err != nil {
			return types.ErrIntegrity.Wrap(err.Error())
		}
		if bal < 0 || ubal < 0 {
			return types.ErrInsufficientFunds.Wrapf("%s: balance=%d u_balance=%d after delta (%d, %d)",
				d.Address, acc.Balance, acc.UBalance, d.Balance, d.UBalance)
		}
	}

	for i, d := range staged {
		if _, err := ledger.MergeAccountAndGet(ctx, d); err != nil {
			for j := i - 1; j >= 0; j-- {
				if uerr := ledger.UndoMerging(ctx, staged[j]); uerr != nil {
					return undoFailed(uerr, "compensate partial settlement")
				}
			}
			return err
		}
	}
	return nil
}
