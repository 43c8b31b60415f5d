package assets

import (
	"fmt"
	"math"
)

func addInt64Checked(a int64, b int64, field string) (int64, error) {
	if (b > 0 && a > math.MaxInt64-b) || (b < 0 && a < math.MinInt64-b) {
		return 0, fmt.Errorf("%s overflows int64", field)
	}
	return a + b, nil
}

// spend is amount+fee, the total a sender reserves for a transaction.
func spend(amount int64, fee int64) (int64, error) {
	if amount < 0 || fee < 0 {
		return 0, fmt.Errorf("negative amount or fee: amount=%d fee=%d", amount, fee)
	}
	return addInt64Checked(amount, fee, "amount+fee")
}
