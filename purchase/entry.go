/*
Package purchase is the cashier-side purchase engine.

PURPOSE:
  Turns scanner or keyboard input into a cart of product lines, keeps a
  live total computed with exactly the rounding the ledger applies at
  commit, and hands the cart to the ledger as one purchase.

ENTRY GRAMMAR:
  "<qty>*<code>"  qty units of the product whose barcode is code
  "<code>"        one unit

  qty must be a positive integer. The code part is matched exactly
  against barcodes; no fuzzy matching.

CHECKS:
  Stock and balance checks here are advisory. The ledger re-validates on
  commit and its answer is the one that counts.

SEE ALSO:
  - cart.go: Cart operations
  - ledger/purchases.go: CommitPurchase
*/
package purchase

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/warp/canteen-ledger/ledger"
)

var entryPattern = regexp.MustCompile(`^(\d+)\*(.+)$`)

// ParseEntry splits scanner input into a quantity and a product code.
// Input without a quantity prefix is one unit of the whole trimmed input.
func ParseEntry(input string) (int, string, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return 0, "", &ledger.ValidationError{Field: "entry", Reason: "empty input"}
	}
	m := entryPattern.FindStringSubmatch(input)
	if m == nil {
		return 1, input, nil
	}
	qty, err := strconv.Atoi(m[1])
	if err != nil || qty <= 0 {
		return 0, "", &ledger.ValidationError{Field: "quantity", Reason: "must be a positive integer"}
	}
	code := strings.TrimSpace(m[2])
	if code == "" {
		return 0, "", &ledger.ValidationError{Field: "entry", Reason: "missing product code"}
	}
	return qty, code, nil
}

// SearchCode returns the code part of a search term, dropping any
// quantity prefix ("2*123" searches for "123").
func SearchCode(term string) string {
	term = strings.TrimSpace(term)
	if m := entryPattern.FindStringSubmatch(term); m != nil {
		return m[2]
	}
	return term
}

// Search filters products down to those in stock whose name contains the
// term case-insensitively or whose barcode contains it.
func Search(products []ledger.Product, term string) []ledger.Product {
	code := SearchCode(term)
	lower := strings.ToLower(code)
	out := []ledger.Product{}
	for _, p := range products {
		if p.Stock <= 0 {
			continue
		}
		if strings.Contains(strings.ToLower(p.Name), lower) ||
			(p.Barcode != "" && strings.Contains(p.Barcode, code)) {
			out = append(out, p)
		}
	}
	return out
}
