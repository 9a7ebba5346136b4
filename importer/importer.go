/*
Package importer bulk-loads products and people from tabular rows.

PURPOSE:
  Turns parsed CSV rows into ledger calls. A bad row never aborts the
  batch: its problem is recorded as a RowError and the next row is
  processed. Only infrastructure failures (an unreadable file) are
  returned as errors.

COLUMNS:
  Products: name (required), barcode, price (required), stock
  People:   name (required), customId | codigo, initialDeposit | deposito,
            photo | foto

  Headers match case-insensitively. Row numbers are file line numbers:
  the header is line 1, and skipped blank lines still count.

NUMBERS:
  A numeric column that is absent or blank takes its default. A column
  that is present but does not parse to a finite non-negative number is
  a row error, never a silent zero.

SEE ALSO:
  - csv.go: ReadCSV
  - api/handlers.go: /api/import endpoints
*/
package importer

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/warp/canteen-ledger/ledger"
)

// =============================================================================
// TYPES
// =============================================================================

// Row is one data line keyed by lower-cased header. Line is the file line
// the record starts on; zero when the row was not read from a file.
type Row struct {
	Line   int
	Fields map[string]string
}

// Get returns the first non-blank value among keys.
func (r Row) Get(keys ...string) (string, bool) {
	for _, k := range keys {
		if v := strings.TrimSpace(r.Fields[strings.ToLower(k)]); v != "" {
			return v, true
		}
	}
	return "", false
}

// RowError is a rejected row.
type RowError struct {
	Row    int    `json:"row"`
	Reason string `json:"reason"`
}

func (e RowError) Error() string {
	return fmt.Sprintf("row %d: %s", e.Row, e.Reason)
}

type ProductResult struct {
	Imported int        `json:"imported"`
	Updated  int        `json:"updated"`
	Skipped  int        `json:"skipped"`
	Errors   []RowError `json:"errors"`
}

type PeopleResult struct {
	Imported int        `json:"imported"`
	Errors   []RowError `json:"errors"`
}

// ProductRow is a validated product row.
type ProductRow struct {
	Name    string
	Barcode string
	Price   decimal.Decimal
	Stock   int
}

// ConflictFunc decides whether an existing product with the same barcode
// is overwritten by the row (true) or the row is skipped (false).
type ConflictFunc func(row ProductRow, existing ledger.Product) bool

// UpdateOnConflict and SkipOnConflict are the two fixed policies.
func UpdateOnConflict(ProductRow, ledger.Product) bool { return true }
func SkipOnConflict(ProductRow, ledger.Product) bool   { return false }

// ProductStore is the part of *ledger.Ledger ImportProducts needs.
type ProductStore interface {
	ProductByBarcode(code string) (ledger.Product, error)
	AddProduct(in ledger.NewProduct) (ledger.Product, error)
	UpdateProduct(id string, patch ledger.ProductPatch) (ledger.Product, error)
}

// PeopleStore is the part of *ledger.Ledger ImportPeople needs.
type PeopleStore interface {
	People() []ledger.Person
	AddPerson(in ledger.NewPerson) (ledger.Person, error)
}

// firstDataRow is the line number assumed for rows[0] when rows carry none.
const firstDataRow = 2

func lineOf(r Row, i int) int {
	if r.Line > 0 {
		return r.Line
	}
	return i + firstDataRow
}

// =============================================================================
// PRODUCTS
// =============================================================================

// ImportProducts inserts new products and, for rows whose barcode already
// exists, asks onConflict whether to update. A declined update is counted
// as skipped, not as an error.
func ImportProducts(store ProductStore, rows []Row, onConflict ConflictFunc) ProductResult {
	if onConflict == nil {
		onConflict = SkipOnConflict
	}
	result := ProductResult{Errors: []RowError{}}
	for i, r := range rows {
		line := lineOf(r, i)
		row, reason := parseProductRow(r)
		if reason != "" {
			result.Errors = append(result.Errors, RowError{Row: line, Reason: reason})
			continue
		}

		if row.Barcode != "" {
			existing, err := store.ProductByBarcode(row.Barcode)
			if err == nil {
				if !onConflict(row, existing) {
					result.Skipped++
					continue
				}
				name, price, stock, barcode := row.Name, row.Price, row.Stock, row.Barcode
				_, err := store.UpdateProduct(existing.ID, ledger.ProductPatch{
					Name: &name, Price: &price, Stock: &stock, Barcode: &barcode,
				})
				if err != nil {
					result.Errors = append(result.Errors, RowError{Row: line, Reason: err.Error()})
					continue
				}
				result.Updated++
				continue
			}
		}

		_, err := store.AddProduct(ledger.NewProduct{
			Name: row.Name, Barcode: row.Barcode, Price: row.Price, Stock: row.Stock,
		})
		if err != nil {
			result.Errors = append(result.Errors, RowError{Row: line, Reason: err.Error()})
			continue
		}
		result.Imported++
	}
	return result
}

func parseProductRow(r Row) (ProductRow, string) {
	name, _ := r.Get("name")
	priceText, hasPrice := r.Get("price")
	if name == "" || !hasPrice {
		return ProductRow{}, "name and price are required"
	}
	price, ok := parseAmount(priceText)
	if !ok {
		return ProductRow{}, fmt.Sprintf("invalid price %q", priceText)
	}
	stock := 0
	if text, present := r.Get("stock"); present {
		n, err := strconv.Atoi(text)
		if err != nil || n < 0 {
			return ProductRow{}, fmt.Sprintf("invalid stock %q", text)
		}
		stock = n
	}
	barcode, _ := r.Get("barcode")
	barcode = unwrapText(barcode)
	return ProductRow{Name: name, Barcode: barcode, Price: price, Stock: stock}, ""
}

// =============================================================================
// PEOPLE
// =============================================================================

// ImportPeople adds one person per row. A name already present, compared
// case-insensitively and including rows imported earlier in the batch, is
// a row error.
func ImportPeople(store PeopleStore, rows []Row) PeopleResult {
	result := PeopleResult{Errors: []RowError{}}
	names := make(map[string]bool)
	for _, p := range store.People() {
		names[strings.ToLower(p.Name)] = true
	}

	for i, r := range rows {
		line := lineOf(r, i)
		name, _ := r.Get("name")
		if name == "" {
			result.Errors = append(result.Errors, RowError{Row: line, Reason: "name is required"})
			continue
		}
		deposit := decimal.Zero
		if text, present := r.Get("initialDeposit", "deposito"); present {
			d, ok := parseAmount(text)
			if !ok {
				result.Errors = append(result.Errors, RowError{Row: line, Reason: fmt.Sprintf("invalid initial deposit %q", text)})
				continue
			}
			deposit = d
		}
		if names[strings.ToLower(name)] {
			result.Errors = append(result.Errors, RowError{Row: line, Reason: fmt.Sprintf("person %q already exists", name)})
			continue
		}
		customID, _ := r.Get("customId", "codigo")
		photo, _ := r.Get("photo", "foto")

		if _, err := store.AddPerson(ledger.NewPerson{Name: name, CustomID: customID, Photo: photo, InitialDeposit: deposit}); err != nil {
			result.Errors = append(result.Errors, RowError{Row: line, Reason: err.Error()})
			continue
		}
		names[strings.ToLower(name)] = true
		result.Imported++
	}
	return result
}

// unwrapText undoes the ="..." wrapping our own exports put around
// barcodes.
func unwrapText(v string) string {
	if strings.HasPrefix(v, `="`) && strings.HasSuffix(v, `"`) && len(v) >= 3 {
		return v[2 : len(v)-1]
	}
	return v
}

// parseAmount accepts plain decimal notation only. Negative values are
// rejected.
func parseAmount(text string) (decimal.Decimal, bool) {
	d, err := decimal.NewFromString(text)
	if err != nil || d.IsNegative() {
		return decimal.Decimal{}, false
	}
	return d, true
}
