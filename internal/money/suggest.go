// Package money holds the cash arithmetic used at the register: quick-pick
// suggestions, change and rupiah rendering. Amounts are integers in the
// smallest currency unit.
package money

import "sort"

// Denominations is the bill ladder offered as quick picks, ascending.
var Denominations = []int64{1000, 2000, 5000, 10000, 20000, 50000, 100000}

// Suggest returns the distinct cash amounts a customer is likely to hand
// over for total, ascending. The total itself is always included.
func Suggest(total int64) []int64 {
	if total < 0 {
		total = 0
	}
	maxUnit := Denominations[len(Denominations)-1]

	seen := map[int64]struct{}{total: {}}
	for _, unit := range Denominations {
		if total < unit && total%unit != 0 {
			seen[unit] = struct{}{}
		}
	}

	if total > maxUnit && total%maxUnit != 0 {
		next := (total + maxUnit - 1) / maxUnit * maxUnit
		seen[next] = struct{}{}
	}

	result := make([]int64, 0, len(seen))
	for amount := range seen {
		result = append(result, amount)
	}
	sort.Slice(result, func(i, j int) bool { return result[i] < result[j] })
	return result
}

// Change is what goes back to the customer; never negative.
func Change(total, received int64) int64 {
	if received <= total {
		return 0
	}
	return received - total
}
