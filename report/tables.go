/*
Package report builds tabular reports from ledger snapshots and renders
them as CSV or XLSX.

PURPOSE:
  Reports are write-only audit outputs. They are always built from a
  ledger.Snapshot, never from live state, so a report describes exactly
  one version of the ledger.

KEY CONCEPTS:
  - Table:    Named header + rows, with per-column text marking
  - Renderer: Writes a Table in one file format
  - FileSink: Writes the settlement report set to a directory

TEXT COLUMNS:
  Barcodes and custom ids are marked Text. Renderers must keep them from
  being read back as numbers by spreadsheet software (leading zeros,
  scientific notation).

SEE ALSO:
  - render.go: CSVRenderer, XLSXRenderer
  - sink.go: FileSink
*/
package report

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/canteen-ledger/ledger"
)

// =============================================================================
// TABLE
// =============================================================================

type Column struct {
	Header string
	Text   bool
}

type Table struct {
	Name    string
	Columns []Column
	Rows    [][]string
}

func (t *Table) add(values ...string) {
	t.Rows = append(t.Rows, values)
}

// Report kinds served by Build.
const (
	KindPeople         = "people"
	KindPeopleDetailed = "people-detailed"
	KindProducts       = "products"
	KindSales          = "sales"
)

// Kinds lists every kind Build accepts.
var Kinds = []string{KindPeople, KindPeopleDetailed, KindProducts, KindSales}

// Build returns the on-demand report of the given kind.
func Build(kind string, s ledger.Snapshot) (Table, error) {
	switch kind {
	case KindPeople:
		return PeopleSummary(s), nil
	case KindPeopleDetailed:
		return PeopleDetailed(s), nil
	case KindProducts:
		return Products(s), nil
	case KindSales:
		return SalesSummary(s), nil
	}
	return Table{}, &ledger.ValidationError{Field: "kind", Reason: fmt.Sprintf("unknown report %q", kind)}
}

// =============================================================================
// FORMATTING
// =============================================================================

const dateLayout = "02/01/2006"

func brl(d decimal.Decimal) string {
	return "R$ " + ledger.FormatMoney(d)
}

func itoa(n int) string {
	return fmt.Sprintf("%d", n)
}

func dispositionName(d ledger.Disposition) string {
	if d == ledger.DispositionMissionaryDonation {
		return "Missionário"
	}
	return "Saque"
}

// =============================================================================
// ON-DEMAND REPORTS
// =============================================================================

// PeopleSummary has one row per person.
func PeopleSummary(s ledger.Snapshot) Table {
	t := Table{
		Name: "pessoas-simples",
		Columns: []Column{
			{Header: "Nome"},
			{Header: "ID Personalizado", Text: true},
			{Header: "Saldo Atual"},
			{Header: "Depósito Inicial"},
			{Header: "Total Compras"},
		},
	}
	for _, p := range s.People {
		t.add(p.Name, p.CustomID, brl(p.Balance), brl(p.InitialDeposit), itoa(len(p.Purchases)))
	}
	return t
}

// PeopleDetailed has one row per purchase item, or a single placeholder
// row for a person without purchases.
func PeopleDetailed(s ledger.Snapshot) Table {
	t := Table{
		Name: "pessoas-detalhadas",
		Columns: []Column{
			{Header: "Nome"},
			{Header: "ID Personalizado", Text: true},
			{Header: "Saldo"},
			{Header: "Data Compra"},
			{Header: "Produto"},
			{Header: "Quantidade"},
			{Header: "Valor"},
		},
	}
	for _, p := range s.People {
		forEachItem(p, func(date time.Time, it *ledger.PurchaseItem) {
			if it == nil {
				t.add(p.Name, p.CustomID, brl(p.Balance), "", "Nenhuma compra", "", "")
				return
			}
			t.add(p.Name, p.CustomID, brl(p.Balance), date.Format(dateLayout), it.ProductName, itoa(it.Quantity), brl(it.Total))
		})
	}
	return t
}

// forEachItem calls fn for every item of every purchase, or once with a
// nil item when the person has none.
func forEachItem(p ledger.Person, fn func(time.Time, *ledger.PurchaseItem)) {
	n := 0
	for _, pu := range p.Purchases {
		for i := range pu.Items {
			fn(pu.Date, &pu.Items[i])
			n++
		}
	}
	if n == 0 {
		fn(time.Time{}, nil)
	}
}

// Products lists every product with its stock value.
func Products(s ledger.Snapshot) Table {
	t := Table{
		Name: "produtos",
		Columns: []Column{
			{Header: "Nome"},
			{Header: "Código de Barras", Text: true},
			{Header: "Preço"},
			{Header: "Estoque"},
			{Header: "Valor Total Estoque"},
		},
	}
	for _, p := range s.Products {
		t.add(p.Name, p.Barcode, brl(p.Price), itoa(p.Stock), brl(p.StockValue()))
	}
	return t
}

// =============================================================================
// SALES
// =============================================================================

type productSales struct {
	name     string
	quantity int
	total    decimal.Decimal
}

type salesTotals struct {
	transactions int
	grandTotal   decimal.Decimal
	products     []productSales
}

func (st salesTotals) averageTicket() decimal.Decimal {
	if st.transactions == 0 {
		return decimal.Zero
	}
	return ledger.Round2(st.grandTotal.Div(decimal.NewFromInt(int64(st.transactions))))
}

// collectSales aggregates sale entries only. Special entries move money
// but sell nothing.
func collectSales(s ledger.Snapshot) salesTotals {
	st := salesTotals{grandTotal: decimal.Zero}
	index := make(map[string]int)
	for _, p := range s.People {
		for _, pu := range p.Purchases {
			if pu.IsSpecial() {
				continue
			}
			st.transactions++
			st.grandTotal = st.grandTotal.Add(pu.Total)
			for _, it := range pu.Items {
				i, ok := index[it.ProductID]
				if !ok {
					i = len(st.products)
					index[it.ProductID] = i
					st.products = append(st.products, productSales{name: it.ProductName, total: decimal.Zero})
				}
				st.products[i].quantity += it.Quantity
				st.products[i].total = st.products[i].total.Add(it.Total)
			}
		}
	}
	st.grandTotal = ledger.Round2(st.grandTotal)
	sort.SliceStable(st.products, func(a, b int) bool {
		return st.products[a].total.GreaterThan(st.products[b].total)
	})
	return st
}

func (ps productSales) average() decimal.Decimal {
	return ledger.Round2(ps.total.Div(decimal.NewFromInt(int64(ps.quantity))))
}

// SalesSummary aggregates sales per product, best sellers first, after a
// leading grand-total row.
func SalesSummary(s ledger.Snapshot) Table {
	st := collectSales(s)
	t := Table{
		Name: "resumo-vendas",
		Columns: []Column{
			{Header: "Produto"},
			{Header: "Quantidade Vendida"},
			{Header: "Total Vendas"},
			{Header: "Ticket Médio"},
		},
	}
	t.add("=== RESUMO GERAL ===", itoa(st.transactions), brl(st.grandTotal), brl(st.averageTicket()))
	for _, ps := range st.products {
		t.add(ps.name, itoa(ps.quantity), brl(ps.total), brl(ps.average()))
	}
	return t
}
