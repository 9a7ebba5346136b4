package ledger

import "github.com/shopspring/decimal"

// BalanceTolerance absorbs sub-cent rounding when comparing a total against
// a balance.
var BalanceTolerance = decimal.RequireFromString("0.001")

// Round2 rounds a monetary amount to cents.
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// LineTotal is round2(price * quantity).
func LineTotal(price decimal.Decimal, quantity int) decimal.Decimal {
	return Round2(price.Mul(decimal.NewFromInt(int64(quantity))))
}

// SumItems is round2 of the sum of the already rounded item totals.
func SumItems(items []PurchaseItem) decimal.Decimal {
	total := decimal.Zero
	for _, it := range items {
		total = total.Add(it.Total)
	}
	return Round2(total)
}

// Covers reports whether balance pays for total within BalanceTolerance.
func Covers(balance, total decimal.Decimal) bool {
	return !total.GreaterThan(balance.Add(BalanceTolerance))
}

// FormatMoney renders an amount with exactly two decimals.
func FormatMoney(d decimal.Decimal) string {
	return Round2(d).StringFixed(2)
}
