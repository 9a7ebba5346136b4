package report

import (
	"time"

	"github.com/warp/canteen-ledger/ledger"
)

// SettlementTables builds the final report set from the pre-settlement
// snapshot.
func SettlementTables(s ledger.Snapshot, d ledger.Disposition, at time.Time) []Table {
	return []Table{
		settlementSummary(s, d, at),
		settlementPeople(s, d),
		settlementProducts(s),
		settlementSales(s, d),
	}
}

func settlementSummary(s ledger.Snapshot, d ledger.Disposition, at time.Time) Table {
	destination := "Saque"
	if d == ledger.DispositionMissionaryDonation {
		destination = "Doação Missionário"
	}
	t := Table{
		Name:    "encerramento-resumo-geral",
		Columns: []Column{{Header: "Item"}, {Header: "Valor"}},
	}
	t.add("Data", at.Format(dateLayout))
	t.add("Organização", s.Branding.OrganizationName)
	t.add("Total de Pessoas", itoa(len(s.People)))
	t.add("Pessoas com Saldo", itoa(len(s.PeopleWithBalance())))
	t.add("Total de Saldos", brl(s.OutstandingBalance()))
	t.add("Total de Produtos", itoa(len(s.Products)))
	t.add("Produtos em Estoque", itoa(s.ProductsWithStock()))
	t.add("Destino dos Saldos", destination)
	return t
}

func settlementPeople(s ledger.Snapshot, d ledger.Disposition) Table {
	t := Table{
		Name: "encerramento-pessoas-completo",
		Columns: []Column{
			{Header: "Nome"},
			{Header: "ID", Text: true},
			{Header: "Saldo Final"},
			{Header: "Depósito"},
			{Header: "Data Compra"},
			{Header: "Produto"},
			{Header: "Quantidade"},
			{Header: "Valor"},
			{Header: "Destino Saldo"},
		},
	}
	for _, p := range s.People {
		destination := ""
		if p.Balance.IsPositive() {
			destination = dispositionName(d)
		}
		forEachItem(p, func(date time.Time, it *ledger.PurchaseItem) {
			if it == nil {
				t.add(p.Name, p.CustomID, brl(p.Balance), brl(p.InitialDeposit), "", "Nenhuma compra", "", "", destination)
				return
			}
			t.add(p.Name, p.CustomID, brl(p.Balance), brl(p.InitialDeposit),
				date.Format(dateLayout), it.ProductName, itoa(it.Quantity), brl(it.Total), destination)
		})
	}
	return t
}

func settlementProducts(s ledger.Snapshot) Table {
	t := Table{
		Name: "encerramento-produtos",
		Columns: []Column{
			{Header: "Nome"},
			{Header: "Código", Text: true},
			{Header: "Preço"},
			{Header: "Estoque Final"},
			{Header: "Valor Estoque"},
		},
	}
	for _, p := range s.Products {
		t.add(p.Name, p.Barcode, brl(p.Price), itoa(p.Stock), brl(p.StockValue()))
	}
	return t
}

func settlementSales(s ledger.Snapshot, d ledger.Disposition) Table {
	st := collectSales(s)
	t := Table{
		Name: "encerramento-resumo-vendas",
		Columns: []Column{
			{Header: "Produto"},
			{Header: "Quantidade"},
			{Header: "Total Vendas"},
			{Header: "Ticket Médio"},
			{Header: "Saldos Restantes"},
			{Header: "Destino Saldos"},
		},
	}
	t.add("=== RESUMO FINAL ===", itoa(st.transactions), brl(st.grandTotal), brl(st.averageTicket()),
		brl(s.OutstandingBalance()), dispositionName(d))
	for _, ps := range st.products {
		t.add(ps.name, itoa(ps.quantity), brl(ps.total), brl(ps.average()), "", "")
	}
	return t
}
