package ledger_test

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/canteen-ledger/ledger"
)

// =============================================================================
// TEST SETUP
// =============================================================================

var testNow = time.Date(2025, time.July, 12, 15, 0, 0, 0, time.UTC)

func newTestLedger(t *testing.T) *ledger.Ledger {
	t.Helper()
	n := 0
	return ledger.New(
		ledger.WithClock(func() time.Time { return testNow }),
		ledger.WithIDGenerator(func() string {
			n++
			return fmt.Sprintf("id-%d", n)
		}),
	)
}

func money(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func assertMoney(t *testing.T, want string, got decimal.Decimal, msgAndArgs ...any) {
	t.Helper()
	assert.Equal(t, money(want).StringFixed(2), got.StringFixed(2), msgAndArgs...)
}

func addPerson(t *testing.T, l *ledger.Ledger, name, deposit string) ledger.Person {
	t.Helper()
	p, err := l.AddPerson(ledger.NewPerson{Name: name, InitialDeposit: money(deposit)})
	require.NoError(t, err)
	return p
}

func addProduct(t *testing.T, l *ledger.Ledger, name, barcode, price string, stock int) ledger.Product {
	t.Helper()
	p, err := l.AddProduct(ledger.NewProduct{Name: name, Barcode: barcode, Price: money(price), Stock: stock})
	require.NoError(t, err)
	return p
}

func person(t *testing.T, l *ledger.Ledger, id string) ledger.Person {
	t.Helper()
	p, err := l.Person(id)
	require.NoError(t, err)
	return p
}

func product(t *testing.T, l *ledger.Ledger, id string) ledger.Product {
	t.Helper()
	p, err := l.Product(id)
	require.NoError(t, err)
	return p
}

// assertBalanceInvariant checks balance == deposit - sum(purchase totals).
func assertBalanceInvariant(t *testing.T, p ledger.Person) {
	t.Helper()
	want := p.InitialDeposit.Sub(p.TotalSpent())
	assertMoney(t, want.StringFixed(2), p.Balance, "balance invariant for %s", p.Name)
}

// =============================================================================
// PEOPLE
// =============================================================================

func TestAddPerson_BalanceStartsAtDeposit(t *testing.T) {
	l := newTestLedger(t)

	p := addPerson(t, l, "  Ana  ", "50")

	assert.Equal(t, "Ana", p.Name)
	assertMoney(t, "50.00", p.InitialDeposit)
	assertMoney(t, "50.00", p.Balance)
	assert.Empty(t, p.Purchases)
}

func TestAddPerson_Validation(t *testing.T) {
	l := newTestLedger(t)

	_, err := l.AddPerson(ledger.NewPerson{Name: "Ana", InitialDeposit: money("-1")})
	assert.ErrorIs(t, err, ledger.ErrValidation)

	_, err = l.AddPerson(ledger.NewPerson{Name: "   ", InitialDeposit: money("1")})
	assert.ErrorIs(t, err, ledger.ErrValidation)

	assert.Empty(t, l.People())
	assert.Zero(t, l.Version(), "failed adds must not bump the version")
}

func TestAddPerson_CustomIDUnique(t *testing.T) {
	l := newTestLedger(t)
	_, err := l.AddPerson(ledger.NewPerson{Name: "Ana", CustomID: "A1"})
	require.NoError(t, err)

	_, err = l.AddPerson(ledger.NewPerson{Name: "Bia", CustomID: "A1"})
	var vErr *ledger.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "customId", vErr.Field)

	// Empty custom ids never collide.
	_, err = l.AddPerson(ledger.NewPerson{Name: "Caio"})
	require.NoError(t, err)
	_, err = l.AddPerson(ledger.NewPerson{Name: "Duda"})
	require.NoError(t, err)
}

func TestUpdatePerson_DepositDeltaMovesBalance(t *testing.T) {
	// GIVEN: Deposit 50, spent 7
	// WHEN: Deposit corrected to 80
	// THEN: Balance moves by +30 and history is untouched

	l := newTestLedger(t)
	p := addPerson(t, l, "Ana", "50")
	soda := addProduct(t, l, "Soda", "", "3.50", 10)
	_, err := l.CommitPurchase(p.ID, []ledger.LineRequest{{ProductID: soda.ID, Quantity: 2}})
	require.NoError(t, err)

	deposit := money("80")
	updated, err := l.UpdatePerson(p.ID, ledger.PersonPatch{InitialDeposit: &deposit})
	require.NoError(t, err)

	assertMoney(t, "80.00", updated.InitialDeposit)
	assertMoney(t, "73.00", updated.Balance)
	assert.Len(t, updated.Purchases, 1)
	assertBalanceInvariant(t, updated)
}

func TestUpdatePerson_NotFound(t *testing.T) {
	l := newTestLedger(t)
	name := "X"
	_, err := l.UpdatePerson("missing", ledger.PersonPatch{Name: &name})

	var nf *ledger.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "person", nf.Entity)
}

func TestDeletePerson_DiscardsHistoryKeepsStock(t *testing.T) {
	l := newTestLedger(t)
	p := addPerson(t, l, "Ana", "50")
	soda := addProduct(t, l, "Soda", "", "3.50", 10)
	_, err := l.CommitPurchase(p.ID, []ledger.LineRequest{{ProductID: soda.ID, Quantity: 2}})
	require.NoError(t, err)

	require.NoError(t, l.DeletePerson(p.ID))

	assert.Empty(t, l.People())
	assert.Equal(t, 8, product(t, l, soda.ID).Stock)
	assert.ErrorIs(t, l.DeletePerson(p.ID), ledger.ErrNotFound)
}

// =============================================================================
// PRODUCTS
// =============================================================================

func TestAddProduct_DuplicateBarcode(t *testing.T) {
	l := newTestLedger(t)
	first := addProduct(t, l, "Soda", "789", "3.50", 10)

	_, err := l.AddProduct(ledger.NewProduct{Name: "Juice", Barcode: "789", Price: money("4")})

	var dup *ledger.DuplicateBarcodeError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, first.ID, dup.ExistingID)
	assert.Len(t, l.Products(), 1)
}

func TestAddProduct_EmptyBarcodesDoNotCollide(t *testing.T) {
	l := newTestLedger(t)
	addProduct(t, l, "Soda", "", "3.50", 10)
	addProduct(t, l, "Juice", "", "4.00", 10)
	assert.Len(t, l.Products(), 2)
}

func TestUpdateProduct_BarcodeUniquenessExcludesSelf(t *testing.T) {
	l := newTestLedger(t)
	soda := addProduct(t, l, "Soda", "789", "3.50", 10)
	juice := addProduct(t, l, "Juice", "456", "4.00", 10)

	same := "789"
	_, err := l.UpdateProduct(soda.ID, ledger.ProductPatch{Barcode: &same})
	require.NoError(t, err, "keeping its own barcode is fine")

	_, err = l.UpdateProduct(juice.ID, ledger.ProductPatch{Barcode: &same})
	assert.ErrorIs(t, err, ledger.ErrDuplicateBarcode)
	assert.Equal(t, "456", product(t, l, juice.ID).Barcode)
}

func TestUpdateProduct_RejectsNegativeStock(t *testing.T) {
	l := newTestLedger(t)
	soda := addProduct(t, l, "Soda", "", "3.50", 10)

	stock := -1
	price := money("5")
	_, err := l.UpdateProduct(soda.ID, ledger.ProductPatch{Stock: &stock, Price: &price})
	assert.ErrorIs(t, err, ledger.ErrValidation)

	got := product(t, l, soda.ID)
	assert.Equal(t, 10, got.Stock)
	assertMoney(t, "3.50", got.Price, "no field of a rejected patch is applied")
}

func TestDeleteProduct_KeepsPurchaseSnapshots(t *testing.T) {
	l := newTestLedger(t)
	p := addPerson(t, l, "Ana", "50")
	soda := addProduct(t, l, "Soda", "", "3.50", 10)
	_, err := l.CommitPurchase(p.ID, []ledger.LineRequest{{ProductID: soda.ID, Quantity: 1}})
	require.NoError(t, err)

	require.NoError(t, l.DeleteProduct(soda.ID))

	got := person(t, l, p.ID)
	require.Len(t, got.Purchases, 1)
	assert.Equal(t, "Soda", got.Purchases[0].Items[0].ProductName)
	assert.Equal(t, soda.ID, got.Purchases[0].Items[0].ProductID)
}

// =============================================================================
// COMMIT PURCHASE
// =============================================================================

func TestCommitPurchase_ScenarioA(t *testing.T) {
	// GIVEN: Deposit 50.00; Soda 3.50 x 10 in stock
	// WHEN: Buying 2 sodas
	// THEN: Balance 43.00, stock 8, one purchase of 7.00

	l := newTestLedger(t)
	p := addPerson(t, l, "Ana", "50.00")
	soda := addProduct(t, l, "Soda", "", "3.50", 10)

	purchase, err := l.CommitPurchase(p.ID, []ledger.LineRequest{{ProductID: soda.ID, Quantity: 2}})
	require.NoError(t, err)

	assertMoney(t, "7.00", purchase.Total)
	assert.Equal(t, ledger.KindSale, purchase.Kind)
	assert.Equal(t, testNow, purchase.Date)

	got := person(t, l, p.ID)
	assertMoney(t, "43.00", got.Balance)
	require.Len(t, got.Purchases, 1)
	assert.Equal(t, 8, product(t, l, soda.ID).Stock)
	assertBalanceInvariant(t, got)
}

func TestCommitPurchase_ScenarioB_InsufficientStock(t *testing.T) {
	l := newTestLedger(t)
	p := addPerson(t, l, "Ana", "100")
	chips := addProduct(t, l, "Chips", "", "1.00", 20)
	soda := addProduct(t, l, "Soda", "", "3.50", 10)

	_, err := l.CommitPurchase(p.ID, []ledger.LineRequest{
		{ProductID: chips.ID, Quantity: 2},
		{ProductID: soda.ID, Quantity: 11},
	})

	var stockErr *ledger.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, 10, stockErr.Available)
	assert.Equal(t, 11, stockErr.Requested)

	assertMoney(t, "100.00", person(t, l, p.ID).Balance)
	assert.Equal(t, 20, product(t, l, chips.ID).Stock, "no earlier line may be decremented")
	assert.Equal(t, 10, product(t, l, soda.ID).Stock)
}

func TestCommitPurchase_ScenarioC_InsufficientBalance(t *testing.T) {
	l := newTestLedger(t)
	p := addPerson(t, l, "Ana", "5.00")
	soda := addProduct(t, l, "Soda", "", "3.50", 10)

	_, err := l.CommitPurchase(p.ID, []ledger.LineRequest{{ProductID: soda.ID, Quantity: 2}})

	var balErr *ledger.InsufficientBalanceError
	require.ErrorAs(t, err, &balErr)
	assertMoney(t, "2.00", balErr.Shortfall)
	assert.Equal(t, 10, product(t, l, soda.ID).Stock)
	assert.Empty(t, person(t, l, p.ID).Purchases)
}

func TestCommitPurchase_ExactBalanceAllowed(t *testing.T) {
	l := newTestLedger(t)
	p := addPerson(t, l, "Ana", "7.00")
	soda := addProduct(t, l, "Soda", "", "3.50", 10)

	_, err := l.CommitPurchase(p.ID, []ledger.LineRequest{{ProductID: soda.ID, Quantity: 2}})
	require.NoError(t, err)
	assertMoney(t, "0.00", person(t, l, p.ID).Balance)
}

func TestCommitPurchase_RoundsEachLine(t *testing.T) {
	l := newTestLedger(t)
	p := addPerson(t, l, "Ana", "10")
	a, err := l.AddProduct(ledger.NewProduct{Name: "Gum", Price: money("0.10"), Stock: 10})
	require.NoError(t, err)
	b := addProduct(t, l, "Candy", "", "0.35", 10)

	purchase, err := l.CommitPurchase(p.ID, []ledger.LineRequest{
		{ProductID: a.ID, Quantity: 3},
		{ProductID: b.ID, Quantity: 3},
	})
	require.NoError(t, err)

	assertMoney(t, "0.30", purchase.Items[0].Total)
	assertMoney(t, "1.05", purchase.Items[1].Total)
	assertMoney(t, "1.35", purchase.Total)
	assertMoney(t, "8.65", person(t, l, p.ID).Balance)
}

func TestCommitPurchase_MergesRepeatedProduct(t *testing.T) {
	l := newTestLedger(t)
	p := addPerson(t, l, "Ana", "50")
	soda := addProduct(t, l, "Soda", "", "3.50", 3)

	purchase, err := l.CommitPurchase(p.ID, []ledger.LineRequest{
		{ProductID: soda.ID, Quantity: 2},
		{ProductID: soda.ID, Quantity: 1},
	})
	require.NoError(t, err)
	require.Len(t, purchase.Items, 1)
	assert.Equal(t, 3, purchase.Items[0].Quantity)
	assert.Equal(t, 0, product(t, l, soda.ID).Stock)

	_, err = l.CommitPurchase(p.ID, []ledger.LineRequest{{ProductID: soda.ID, Quantity: 1}})
	assert.ErrorIs(t, err, ledger.ErrInsufficientStock)
}

func TestCommitPurchase_Errors(t *testing.T) {
	l := newTestLedger(t)
	p := addPerson(t, l, "Ana", "50")
	soda := addProduct(t, l, "Soda", "", "3.50", 10)

	_, err := l.CommitPurchase("ghost", []ledger.LineRequest{{ProductID: soda.ID, Quantity: 1}})
	assert.ErrorIs(t, err, ledger.ErrNotFound)

	_, err = l.CommitPurchase(p.ID, []ledger.LineRequest{{ProductID: "ghost", Quantity: 1}})
	assert.ErrorIs(t, err, ledger.ErrProductNotFound)

	_, err = l.CommitPurchase(p.ID, nil)
	assert.ErrorIs(t, err, ledger.ErrValidation)

	_, err = l.CommitPurchase(p.ID, []ledger.LineRequest{{ProductID: soda.ID, Quantity: 0}})
	assert.ErrorIs(t, err, ledger.ErrValidation)

	assert.Equal(t, 10, product(t, l, soda.ID).Stock)
}

func TestCommitPurchase_SnapshotsPriceAndName(t *testing.T) {
	l := newTestLedger(t)
	p := addPerson(t, l, "Ana", "50")
	soda := addProduct(t, l, "Soda", "", "3.50", 10)
	purchase, err := l.CommitPurchase(p.ID, []ledger.LineRequest{{ProductID: soda.ID, Quantity: 1}})
	require.NoError(t, err)

	name, price := "Soda Zero", money("9.99")
	_, err = l.UpdateProduct(soda.ID, ledger.ProductPatch{Name: &name, Price: &price})
	require.NoError(t, err)

	got := person(t, l, p.ID).Purchases[0]
	assert.Equal(t, purchase.ID, got.ID)
	assert.Equal(t, "Soda", got.Items[0].ProductName)
	assertMoney(t, "3.50", got.Items[0].Price)
}

// =============================================================================
// DELETE / EDIT PURCHASES
// =============================================================================

func TestDeletePurchase_RoundTripRestoresBalanceAndStock(t *testing.T) {
	l := newTestLedger(t)
	p := addPerson(t, l, "Ana", "50")
	soda := addProduct(t, l, "Soda", "", "3.50", 10)
	chips := addProduct(t, l, "Chips", "", "2.25", 5)

	purchase, err := l.CommitPurchase(p.ID, []ledger.LineRequest{
		{ProductID: soda.ID, Quantity: 2},
		{ProductID: chips.ID, Quantity: 3},
	})
	require.NoError(t, err)

	require.NoError(t, l.DeletePurchase(p.ID, purchase.ID))

	got := person(t, l, p.ID)
	assertMoney(t, "50.00", got.Balance)
	assert.Empty(t, got.Purchases)
	assert.Equal(t, 10, product(t, l, soda.ID).Stock)
	assert.Equal(t, 5, product(t, l, chips.ID).Stock)
}

func TestDeletePurchase_SkipsDeletedProducts(t *testing.T) {
	l := newTestLedger(t)
	p := addPerson(t, l, "Ana", "50")
	soda := addProduct(t, l, "Soda", "", "3.50", 10)
	chips := addProduct(t, l, "Chips", "", "2.00", 5)
	purchase, err := l.CommitPurchase(p.ID, []ledger.LineRequest{
		{ProductID: soda.ID, Quantity: 1},
		{ProductID: chips.ID, Quantity: 1},
	})
	require.NoError(t, err)
	require.NoError(t, l.DeleteProduct(soda.ID))

	require.NoError(t, l.DeletePurchase(p.ID, purchase.ID))

	assertMoney(t, "50.00", person(t, l, p.ID).Balance)
	assert.Equal(t, 5, product(t, l, chips.ID).Stock)
	assert.Len(t, l.Products(), 1)
}

func TestDeletePurchase_NotFound(t *testing.T) {
	l := newTestLedger(t)
	p := addPerson(t, l, "Ana", "50")

	err := l.DeletePurchase(p.ID, "nope")
	var nf *ledger.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "purchase", nf.Entity)
}

func TestDeletePurchaseItem_RecomputesTotal(t *testing.T) {
	l := newTestLedger(t)
	p := addPerson(t, l, "Ana", "50")
	soda := addProduct(t, l, "Soda", "", "3.50", 10)
	chips := addProduct(t, l, "Chips", "", "2.25", 5)
	purchase, err := l.CommitPurchase(p.ID, []ledger.LineRequest{
		{ProductID: soda.ID, Quantity: 2},
		{ProductID: chips.ID, Quantity: 2},
	})
	require.NoError(t, err)
	assertMoney(t, "11.50", purchase.Total)

	require.NoError(t, l.DeletePurchaseItem(p.ID, purchase.ID, soda.ID))

	got := person(t, l, p.ID)
	require.Len(t, got.Purchases, 1)
	assert.Len(t, got.Purchases[0].Items, 1)
	assertMoney(t, "4.50", got.Purchases[0].Total)
	assertMoney(t, "45.50", got.Balance)
	assert.Equal(t, 10, product(t, l, soda.ID).Stock)
	assertBalanceInvariant(t, got)
}

func TestDeletePurchaseItem_LastItemRemovesPurchase(t *testing.T) {
	l := newTestLedger(t)
	p := addPerson(t, l, "Ana", "50")
	soda := addProduct(t, l, "Soda", "", "3.50", 10)
	purchase, err := l.CommitPurchase(p.ID, []ledger.LineRequest{{ProductID: soda.ID, Quantity: 2}})
	require.NoError(t, err)

	require.NoError(t, l.DeletePurchaseItem(p.ID, purchase.ID, soda.ID))

	got := person(t, l, p.ID)
	assert.Empty(t, got.Purchases)
	assertMoney(t, "50.00", got.Balance)
	assert.Equal(t, 10, product(t, l, soda.ID).Stock)
}

func TestSetPurchaseItemQuantity_SameQuantityIsNoop(t *testing.T) {
	l := newTestLedger(t)
	p := addPerson(t, l, "Ana", "50")
	soda := addProduct(t, l, "Soda", "", "3.50", 10)
	purchase, err := l.CommitPurchase(p.ID, []ledger.LineRequest{{ProductID: soda.ID, Quantity: 2}})
	require.NoError(t, err)
	before := l.Snapshot()

	require.NoError(t, l.SetPurchaseItemQuantity(p.ID, purchase.ID, soda.ID, 2))

	after := l.Snapshot()
	assert.Equal(t, before.Version, after.Version)
	assertMoney(t, "43.00", person(t, l, p.ID).Balance)
	assertMoney(t, "7.00", person(t, l, p.ID).Purchases[0].Total)
	assert.Equal(t, 8, product(t, l, soda.ID).Stock)
}

func TestSetPurchaseItemQuantity_IncreaseAndDecrease(t *testing.T) {
	l := newTestLedger(t)
	p := addPerson(t, l, "Ana", "50")
	soda := addProduct(t, l, "Soda", "", "3.50", 10)
	purchase, err := l.CommitPurchase(p.ID, []ledger.LineRequest{{ProductID: soda.ID, Quantity: 2}})
	require.NoError(t, err)

	require.NoError(t, l.SetPurchaseItemQuantity(p.ID, purchase.ID, soda.ID, 5))
	got := person(t, l, p.ID)
	assertMoney(t, "17.50", got.Purchases[0].Total)
	assertMoney(t, "32.50", got.Balance)
	assert.Equal(t, 5, product(t, l, soda.ID).Stock)

	require.NoError(t, l.SetPurchaseItemQuantity(p.ID, purchase.ID, soda.ID, 1))
	got = person(t, l, p.ID)
	assertMoney(t, "3.50", got.Purchases[0].Total)
	assertMoney(t, "46.50", got.Balance)
	assert.Equal(t, 9, product(t, l, soda.ID).Stock)
	assertBalanceInvariant(t, got)
}

func TestSetPurchaseItemQuantity_UsesSnapshottedPrice(t *testing.T) {
	l := newTestLedger(t)
	p := addPerson(t, l, "Ana", "50")
	soda := addProduct(t, l, "Soda", "", "3.50", 10)
	purchase, err := l.CommitPurchase(p.ID, []ledger.LineRequest{{ProductID: soda.ID, Quantity: 1}})
	require.NoError(t, err)
	price := money("10")
	_, err = l.UpdateProduct(soda.ID, ledger.ProductPatch{Price: &price})
	require.NoError(t, err)

	require.NoError(t, l.SetPurchaseItemQuantity(p.ID, purchase.ID, soda.ID, 2))

	assertMoney(t, "7.00", person(t, l, p.ID).Purchases[0].Total)
}

func TestSetPurchaseItemQuantity_InsufficientStockChangesNothing(t *testing.T) {
	l := newTestLedger(t)
	p := addPerson(t, l, "Ana", "50")
	soda := addProduct(t, l, "Soda", "", "3.50", 3)
	purchase, err := l.CommitPurchase(p.ID, []ledger.LineRequest{{ProductID: soda.ID, Quantity: 2}})
	require.NoError(t, err)
	before := l.Snapshot()

	err = l.SetPurchaseItemQuantity(p.ID, purchase.ID, soda.ID, 4)

	assert.ErrorIs(t, err, ledger.ErrInsufficientStock)
	assert.Equal(t, before, l.Snapshot())
}

func TestSetPurchaseItemQuantity_ZeroDeletesItem(t *testing.T) {
	l := newTestLedger(t)
	p := addPerson(t, l, "Ana", "50")
	soda := addProduct(t, l, "Soda", "", "3.50", 10)
	purchase, err := l.CommitPurchase(p.ID, []ledger.LineRequest{{ProductID: soda.ID, Quantity: 2}})
	require.NoError(t, err)

	require.NoError(t, l.SetPurchaseItemQuantity(p.ID, purchase.ID, soda.ID, 0))

	assert.Empty(t, person(t, l, p.ID).Purchases)
	assert.Equal(t, 10, product(t, l, soda.ID).Stock)
}

func TestSetPurchaseItemQuantity_DeletedProductCanOnlyShrink(t *testing.T) {
	l := newTestLedger(t)
	p := addPerson(t, l, "Ana", "50")
	soda := addProduct(t, l, "Soda", "", "3.50", 10)
	purchase, err := l.CommitPurchase(p.ID, []ledger.LineRequest{{ProductID: soda.ID, Quantity: 3}})
	require.NoError(t, err)
	require.NoError(t, l.DeleteProduct(soda.ID))

	assert.ErrorIs(t, l.SetPurchaseItemQuantity(p.ID, purchase.ID, soda.ID, 4), ledger.ErrProductNotFound)
	require.NoError(t, l.SetPurchaseItemQuantity(p.ID, purchase.ID, soda.ID, 1))
	assertMoney(t, "46.50", person(t, l, p.ID).Balance)
}

// =============================================================================
// SPECIAL TRANSACTIONS
// =============================================================================

func TestRecordSpecialTransaction_MissionaryOffer(t *testing.T) {
	l := newTestLedger(t)
	p := addPerson(t, l, "Ana", "20")
	soda := addProduct(t, l, "Soda", "", "3.50", 10)

	entry, err := l.RecordSpecialTransaction(p.ID, ledger.KindMissionaryOffer, money("12.5"))
	require.NoError(t, err)

	assert.True(t, entry.IsSpecial())
	require.Len(t, entry.Items, 1)
	assert.Equal(t, ledger.MissionaryOfferLabel, entry.Items[0].ProductName)
	assert.Contains(t, entry.Items[0].ProductID, "missionary-offer-")
	assertMoney(t, "12.50", entry.Total)

	got := person(t, l, p.ID)
	assertMoney(t, "7.50", got.Balance)
	assert.Equal(t, 10, product(t, l, soda.ID).Stock)
	assertBalanceInvariant(t, got)
}

func TestRecordSpecialTransaction_InvalidAmount(t *testing.T) {
	l := newTestLedger(t)
	p := addPerson(t, l, "Ana", "20")

	for _, amount := range []string{"0", "-1", "20.01"} {
		_, err := l.RecordSpecialTransaction(p.ID, ledger.KindWithdrawal, money(amount))
		assert.ErrorIs(t, err, ledger.ErrInvalidAmount, amount)
	}
	_, err := l.RecordSpecialTransaction(p.ID, ledger.KindSale, money("1"))
	assert.ErrorIs(t, err, ledger.ErrValidation)

	assertMoney(t, "20.00", person(t, l, p.ID).Balance)
}

func TestRecordSpecialTransaction_FullWithdrawalThenDelete(t *testing.T) {
	l := newTestLedger(t)
	p := addPerson(t, l, "Ana", "20")

	entry, err := l.RecordSpecialTransaction(p.ID, ledger.KindWithdrawal, money("20"))
	require.NoError(t, err)
	assertMoney(t, "0.00", person(t, l, p.ID).Balance)

	err = l.SetPurchaseItemQuantity(p.ID, entry.ID, entry.Items[0].ProductID, 2)
	assert.ErrorIs(t, err, ledger.ErrValidation, "special entries are not quantity-editable")

	require.NoError(t, l.DeletePurchase(p.ID, entry.ID))
	assertMoney(t, "20.00", person(t, l, p.ID).Balance)
}

// =============================================================================
// SETTLE
// =============================================================================

func TestSettle_ScenarioD(t *testing.T) {
	// GIVEN: A with balance 10.00, B with 0.00, products with stock
	// WHEN: Settling with Withdrawal
	// THEN: A gets one 10.00 entry, B gets none, all stock is 0

	l := newTestLedger(t)
	a := addPerson(t, l, "A", "10.00")
	b := addPerson(t, l, "B", "0.00")
	soda := addProduct(t, l, "Soda", "", "3.50", 10)
	chips := addProduct(t, l, "Chips", "", "2.00", 0)

	at := testNow.Add(time.Hour)
	outcome, err := l.Settle(l.Version(), ledger.DispositionWithdrawal, at)
	require.NoError(t, err)

	assert.Equal(t, 1, outcome.PeoplePaidOut)
	assertMoney(t, "10.00", outcome.AmountPaidOut)
	assert.Equal(t, 1, outcome.ProductsCleared)

	gotA := person(t, l, a.ID)
	require.Len(t, gotA.Purchases, 1)
	entry := gotA.Purchases[0]
	assert.Equal(t, ledger.KindSettlement, entry.Kind)
	assertMoney(t, "10.00", entry.Total)
	assert.Equal(t, at, entry.Date)
	assert.Equal(t, ledger.DispositionWithdrawal.Label(), entry.Items[0].ProductName)
	assertMoney(t, "0.00", gotA.Balance)
	assertBalanceInvariant(t, gotA)

	gotB := person(t, l, b.ID)
	assert.Empty(t, gotB.Purchases)
	assertMoney(t, "0.00", gotB.Balance)

	assert.Equal(t, 0, product(t, l, soda.ID).Stock)
	assert.Equal(t, 0, product(t, l, chips.ID).Stock)
}

func TestSettle_StaleVersionRejected(t *testing.T) {
	l := newTestLedger(t)
	addPerson(t, l, "A", "10")
	planned := l.Snapshot()
	addPerson(t, l, "B", "5")

	_, err := l.Settle(planned.Version, ledger.DispositionMissionaryDonation, testNow)

	assert.True(t, errors.Is(err, ledger.ErrConcurrentModification))
	for _, p := range l.People() {
		assert.True(t, p.Balance.IsPositive(), "nothing settled")
	}
}

func TestSettle_InvalidDisposition(t *testing.T) {
	l := newTestLedger(t)
	_, err := l.Settle(l.Version(), ledger.Disposition("burn"), testNow)
	assert.ErrorIs(t, err, ledger.ErrValidation)
}

// =============================================================================
// NOTIFICATION / SNAPSHOT / RESTORE
// =============================================================================

func TestSubscribe_NotifiedAfterSuccessOnly(t *testing.T) {
	l := newTestLedger(t)
	var changes []ledger.Change
	l.Subscribe(func(c ledger.Change) {
		// Reading from inside a listener must not deadlock.
		_ = l.People()
		changes = append(changes, c)
	})

	p := addPerson(t, l, "Ana", "5")
	_, err := l.AddPerson(ledger.NewPerson{Name: ""})
	require.Error(t, err)

	require.Len(t, changes, 1)
	assert.Equal(t, ledger.ChangePersonAdded, changes[0].Type)
	assert.Equal(t, p.ID, changes[0].EntityID)
	assert.Equal(t, uint64(1), changes[0].Version)
	assert.Len(t, changes[0].Snapshot.People, 1)
}

func TestSnapshot_IsDeepCopy(t *testing.T) {
	l := newTestLedger(t)
	p := addPerson(t, l, "Ana", "50")
	soda := addProduct(t, l, "Soda", "", "3.50", 10)
	_, err := l.CommitPurchase(p.ID, []ledger.LineRequest{{ProductID: soda.ID, Quantity: 1}})
	require.NoError(t, err)

	snap := l.Snapshot()
	snap.People[0].Purchases[0].Items[0].Quantity = 99
	snap.Products[0].Stock = 99

	assert.Equal(t, 1, person(t, l, p.ID).Purchases[0].Items[0].Quantity)
	assert.Equal(t, 9, product(t, l, soda.ID).Stock)
}

func TestRestore_ReplacesState(t *testing.T) {
	src := newTestLedger(t)
	p := addPerson(t, src, "Ana", "50")
	soda := addProduct(t, src, "Soda", "789", "3.50", 10)
	_, err := src.CommitPurchase(p.ID, []ledger.LineRequest{{ProductID: soda.ID, Quantity: 2}})
	require.NoError(t, err)

	dst := ledger.New()
	addPerson(t, dst, "Someone else", "1")
	require.NoError(t, dst.Restore(src.Snapshot()))

	people := dst.People()
	require.Len(t, people, 1)
	assert.Equal(t, "Ana", people[0].Name)
	assertMoney(t, "43.00", people[0].Balance)
	got, err := dst.ProductByBarcode("789")
	require.NoError(t, err)
	assert.Equal(t, 8, got.Stock)
}

func TestRestore_InvalidSnapshotLeavesStateAlone(t *testing.T) {
	l := newTestLedger(t)
	addPerson(t, l, "Ana", "50")

	bad := ledger.Snapshot{
		Products: []ledger.Product{
			{ID: "p1", Name: "A", Barcode: "1", Price: money("1")},
			{ID: "p2", Name: "B", Barcode: "1", Price: money("1")},
		},
		Branding: ledger.DefaultBranding(),
	}
	assert.ErrorIs(t, l.Restore(bad), ledger.ErrDuplicateBarcode)
	assert.Len(t, l.People(), 1)
}

func TestRestore_RejectsPurchaseIDSharedAcrossPeople(t *testing.T) {
	// GIVEN: Two people whose entries were stamped with the same id
	l := newTestLedger(t)
	addPerson(t, l, "Current", "1")
	entry := func(personID string) ledger.Purchase {
		return ledger.Purchase{
			ID: "1700000000000", PersonID: personID, Kind: ledger.KindSale, Date: testNow, Total: money("1"),
			Items: []ledger.PurchaseItem{{ProductID: "p", ProductName: "Gum", Quantity: 1, Price: money("1"), Total: money("1")}},
		}
	}
	bad := ledger.Snapshot{
		People: []ledger.Person{
			{ID: "a", Name: "A", InitialDeposit: money("10"), Balance: money("9"), Purchases: []ledger.Purchase{entry("a")}},
			{ID: "b", Name: "B", InitialDeposit: money("10"), Balance: money("9"), Purchases: []ledger.Purchase{entry("b")}},
		},
		Branding: ledger.DefaultBranding(),
	}

	// WHEN: The snapshot is restored
	err := l.Restore(bad)

	// THEN: It is rejected and nothing changes
	assert.ErrorIs(t, err, ledger.ErrValidation)
	assert.Contains(t, err.Error(), "1700000000000")
	people := l.People()
	require.Len(t, people, 1)
	assert.Equal(t, "Current", people[0].Name)
}

func TestValidateSnapshot_EntryKinds(t *testing.T) {
	withKind := func(kind ledger.EntryKind) ledger.Snapshot {
		return ledger.Snapshot{
			People: []ledger.Person{{ID: "a", Name: "A", Purchases: []ledger.Purchase{{
				ID: "e1", PersonID: "a", Kind: kind, Date: testNow, Total: money("1"),
				Items: []ledger.PurchaseItem{{ProductID: "x", ProductName: "X", Quantity: 1, Price: money("1"), Total: money("1")}},
			}}}},
			Branding: ledger.DefaultBranding(),
		}
	}

	for _, kind := range []ledger.EntryKind{ledger.KindSale, ledger.KindWithdrawal, ledger.KindMissionaryOffer, ledger.KindSettlement} {
		assert.NoError(t, ledger.ValidateSnapshot(withKind(kind)), kind)
	}
	assert.ErrorIs(t, ledger.ValidateSnapshot(withKind("refund")), ledger.ErrValidation)
	assert.ErrorIs(t, ledger.ValidateSnapshot(withKind("")), ledger.ErrValidation)
}

func TestPersonPhoto(t *testing.T) {
	l := newTestLedger(t)
	p, err := l.AddPerson(ledger.NewPerson{Name: "Ana", Photo: " https://example.org/ana.png "})
	require.NoError(t, err)
	assert.Equal(t, "https://example.org/ana.png", p.Photo)

	name := "Ana Souza"
	p, err = l.UpdatePerson(p.ID, ledger.PersonPatch{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, "https://example.org/ana.png", p.Photo, "unchanged when not patched")

	empty := ""
	p, err = l.UpdatePerson(p.ID, ledger.PersonPatch{Photo: &empty})
	require.NoError(t, err)
	assert.Empty(t, p.Photo)
}

func TestUpdateBranding_RequiresOrganizationName(t *testing.T) {
	l := newTestLedger(t)
	empty := " "
	_, err := l.UpdateBranding(ledger.BrandingPatch{OrganizationName: &empty})
	assert.ErrorIs(t, err, ledger.ErrValidation)

	name := "Camp 2026"
	show := false
	b, err := l.UpdateBranding(ledger.BrandingPatch{OrganizationName: &name, ShowLogo: &show})
	require.NoError(t, err)
	assert.Equal(t, "Camp 2026", b.OrganizationName)
	assert.False(t, b.ShowLogo)
	assert.Equal(t, "/LOGO.png", b.LogoURL)
}

func TestSearchPeople(t *testing.T) {
	l := newTestLedger(t)
	_, err := l.AddPerson(ledger.NewPerson{Name: "Ana Souza", CustomID: "T-01"})
	require.NoError(t, err)
	addPerson(t, l, "Bruno", "0")

	assert.Len(t, l.SearchPeople("souza"), 1)
	assert.Len(t, l.SearchPeople("t-01"), 1)
	assert.Len(t, l.SearchPeople(""), 2)
	assert.Empty(t, l.SearchPeople("zzz"))
}
