package report_test

import (
	"bytes"
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/canteen-ledger/ledger"
	"github.com/warp/canteen-ledger/report"
	"github.com/warp/canteen-ledger/settlement"
	"github.com/xuri/excelize/v2"
)

var reportAt = time.Date(2025, time.July, 20, 18, 0, 0, 0, time.UTC)

func money(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// snapshot: Ana bought 2 sodas and 1 chips, then gave an offer; Bruno
// bought nothing.
func snapshot(t *testing.T) ledger.Snapshot {
	t.Helper()
	l := ledger.New(ledger.WithClock(func() time.Time { return reportAt }))
	ana, err := l.AddPerson(ledger.NewPerson{Name: "Ana", CustomID: "007", InitialDeposit: money("20")})
	require.NoError(t, err)
	_, err = l.AddPerson(ledger.NewPerson{Name: "Bruno", InitialDeposit: money("5")})
	require.NoError(t, err)
	soda, err := l.AddProduct(ledger.NewProduct{Name: "Soda", Barcode: "00789", Price: money("3.50"), Stock: 10})
	require.NoError(t, err)
	chips, err := l.AddProduct(ledger.NewProduct{Name: "Chips", Barcode: "123", Price: money("2.00"), Stock: 5})
	require.NoError(t, err)
	_, err = l.CommitPurchase(ana.ID, []ledger.LineRequest{{ProductID: soda.ID, Quantity: 2}})
	require.NoError(t, err)
	_, err = l.CommitPurchase(ana.ID, []ledger.LineRequest{{ProductID: chips.ID, Quantity: 1}})
	require.NoError(t, err)
	_, err = l.RecordSpecialTransaction(ana.ID, ledger.KindMissionaryOffer, money("1"))
	require.NoError(t, err)
	return l.Snapshot()
}

// =============================================================================
// TABLES
// =============================================================================

func TestPeopleDetailed_PlaceholderForNoPurchases(t *testing.T) {
	table := report.PeopleDetailed(snapshot(t))

	require.Len(t, table.Rows, 4)
	assert.Equal(t, "Soda", table.Rows[0][4])
	assert.Equal(t, "20/07/2025", table.Rows[0][3])
	assert.Equal(t, "R$ 7.00", table.Rows[0][6])
	assert.Equal(t, ledger.MissionaryOfferLabel, table.Rows[2][4])
	assert.Equal(t, []string{"Bruno", "", "R$ 5.00", "", "Nenhuma compra", "", ""}, table.Rows[3])
}

func TestSalesSummary_GrandTotalFirstThenBestSellers(t *testing.T) {
	table := report.SalesSummary(snapshot(t))

	require.Len(t, table.Rows, 3)
	assert.Equal(t, []string{"=== RESUMO GERAL ===", "2", "R$ 9.00", "R$ 4.50"}, table.Rows[0])
	assert.Equal(t, []string{"Soda", "2", "R$ 7.00", "R$ 3.50"}, table.Rows[1])
	assert.Equal(t, []string{"Chips", "1", "R$ 2.00", "R$ 2.00"}, table.Rows[2])
}

func TestProducts_StockValue(t *testing.T) {
	table := report.Products(snapshot(t))

	assert.Equal(t, []string{"Soda", "00789", "R$ 3.50", "8", "R$ 28.00"}, table.Rows[0])
	assert.True(t, table.Columns[1].Text)
}

func TestBuild_UnknownKind(t *testing.T) {
	_, err := report.Build("nope", ledger.Snapshot{})
	assert.ErrorIs(t, err, ledger.ErrValidation)

	for _, kind := range report.Kinds {
		_, err := report.Build(kind, snapshot(t))
		assert.NoError(t, err, kind)
	}
}

func TestSettlementTables(t *testing.T) {
	tables := report.SettlementTables(snapshot(t), ledger.DispositionMissionaryDonation, reportAt)

	require.Len(t, tables, 4)
	summary := tables[0]
	assert.Equal(t, "encerramento-resumo-geral", summary.Name)
	assert.Contains(t, summary.Rows, []string{"Total de Saldos", "R$ 15.00"})
	assert.Contains(t, summary.Rows, []string{"Destino dos Saldos", "Doação Missionário"})

	people := tables[1]
	assert.Equal(t, "Missionário", people.Rows[0][8])

	sales := tables[3]
	assert.Equal(t, "R$ 15.00", sales.Rows[0][4])
}

// =============================================================================
// RENDERERS
// =============================================================================

func TestCSVRenderer_BOMAndTextCells(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, report.CSVRenderer{}.Render(&buf, report.Products(snapshot(t))))

	data := buf.Bytes()
	require.True(t, bytes.HasPrefix(data, []byte{0xEF, 0xBB, 0xBF}))

	records, err := csv.NewReader(bytes.NewReader(data[3:])).ReadAll()
	require.NoError(t, err)
	assert.Equal(t, "Código de Barras", records[0][1])
	assert.Equal(t, `="00789"`, records[1][1])
}

func TestXLSXRenderer_BarcodesStayText(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, report.XLSXRenderer{}.Render(&buf, report.Products(snapshot(t))))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	barcode, err := f.GetCellValue("produtos", "B2")
	require.NoError(t, err)
	assert.Equal(t, "00789", barcode)

	stock, err := f.GetCellValue("produtos", "D2")
	require.NoError(t, err)
	assert.Equal(t, "8", stock)
}

func TestRendererFor(t *testing.T) {
	r, err := report.RendererFor("XLSX")
	require.NoError(t, err)
	assert.Equal(t, "xlsx", r.Format())

	_, err = report.RendererFor("pdf")
	assert.Error(t, err)
}

// =============================================================================
// FILE SINK
// =============================================================================

func TestFileSink_WritesEveryTableInEveryFormat(t *testing.T) {
	dir := t.TempDir()
	sink := report.NewFileSink(dir, report.CSVRenderer{}, report.XLSXRenderer{})

	artifacts, err := sink.WriteSettlementReports(context.Background(), settlement.Request{
		Snapshot:    snapshot(t),
		Disposition: ledger.DispositionWithdrawal,
		At:          reportAt,
	})
	require.NoError(t, err)

	assert.Len(t, artifacts, 8)
	for _, a := range artifacts {
		_, statErr := os.Stat(a.Path)
		assert.NoError(t, statErr, a.Path)
	}
	assert.FileExists(t, filepath.Join(dir, "encerramento-produtos-2025-07-20-180000.csv"))
}

func TestFileSink_SameDaySettlementsKeepSeparateFiles(t *testing.T) {
	// GIVEN: A settlement already written its reports
	dir := t.TempDir()
	sink := report.NewFileSink(dir)
	first, err := sink.WriteSettlementReports(context.Background(), settlement.Request{
		ID: "aaaaaaaa-1111", Snapshot: snapshot(t), Disposition: ledger.DispositionWithdrawal, At: reportAt,
	})
	require.NoError(t, err)

	// WHEN: A second settlement runs later the same day
	second, err := sink.WriteSettlementReports(context.Background(), settlement.Request{
		ID: "bbbbbbbb-2222", Snapshot: snapshot(t), Disposition: ledger.DispositionWithdrawal, At: reportAt.Add(time.Hour),
	})
	require.NoError(t, err)

	// THEN: Both sets of files exist side by side
	require.Len(t, second, len(first))
	for i := range first {
		assert.NotEqual(t, first[i].Path, second[i].Path)
		assert.FileExists(t, first[i].Path)
		assert.FileExists(t, second[i].Path)
	}
	assert.Contains(t, first[0].Path, "aaaaaaaa")
}

func TestFileSink_NeverOverwrites(t *testing.T) {
	dir := t.TempDir()
	sink := report.NewFileSink(dir)
	req := settlement.Request{ID: "same", Snapshot: snapshot(t), Disposition: ledger.DispositionWithdrawal, At: reportAt}
	_, err := sink.WriteSettlementReports(context.Background(), req)
	require.NoError(t, err)

	_, err = sink.WriteSettlementReports(context.Background(), req)

	assert.Error(t, err)
}

func TestFileSink_UnwritableDirFails(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o600))
	sink := report.NewFileSink(filepath.Join(blocker, "reports"))

	_, err := sink.WriteSettlementReports(context.Background(), settlement.Request{At: reportAt})

	assert.Error(t, err)
}
