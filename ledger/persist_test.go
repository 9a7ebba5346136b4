package ledger_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/canteen-ledger/ledger"
	"github.com/warp/canteen-ledger/ledger/store"
)

func TestAutosave_PersistsEveryChange(t *testing.T) {
	mem := store.NewMemory()
	l := newTestLedger(t)
	l.Subscribe(ledger.Autosave(mem, t.Logf))

	p := addPerson(t, l, "Ana", "50")
	addProduct(t, l, "Soda", "", "3.50", 10)

	assert.Equal(t, 2, mem.Saves())
	snap, err := mem.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, snap.People, 1)
	assert.Equal(t, p.ID, snap.People[0].ID)
	assertMoney(t, "50.00", snap.People[0].Balance)
}

func TestAutosave_FailureIsLoggedNotRolledBack(t *testing.T) {
	mem := store.NewMemory()
	mem.SaveErr = errors.New("disk full")
	var logged []string
	l := newTestLedger(t)
	l.Subscribe(ledger.Autosave(mem, func(format string, args ...any) {
		logged = append(logged, fmt.Sprintf(format, args...))
	}))

	addPerson(t, l, "Ana", "50")

	assert.Len(t, l.People(), 1)
	require.Len(t, logged, 1)
	assert.Contains(t, logged[0], "disk full")
}

// blockingPersister holds the save of one version until release is closed.
type blockingPersister struct {
	*store.Memory
	block   uint64
	started chan struct{}
	release chan struct{}
}

func (b *blockingPersister) Save(ctx context.Context, s ledger.Snapshot) error {
	if s.Version == b.block {
		close(b.started)
		<-b.release
	}
	return b.Memory.Save(ctx, s)
}

func TestAutosave_SlowEarlierSaveDoesNotOverwriteLaterChange(t *testing.T) {
	// GIVEN: The save of the first change is stuck in the persister
	mem := &blockingPersister{
		Memory:  store.NewMemory(),
		block:   1,
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	l := newTestLedger(t)
	l.Subscribe(ledger.Autosave(mem, t.Logf))

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := l.AddPerson(ledger.NewPerson{Name: "Ana", InitialDeposit: money("50")})
		errs <- err
	}()
	<-mem.started

	// WHEN: A second change lands while the first save is pending
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := l.AddProduct(ledger.NewProduct{Name: "Soda", Price: money("3.50"), Stock: 10})
		errs <- err
	}()
	close(mem.release)
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	// THEN: The store holds the latest state
	stored, err := mem.Load(context.Background())
	require.NoError(t, err)
	assert.Len(t, stored.People, 1)
	assert.Len(t, stored.Products, 1)
}

func TestAutosave_DropsChangeOlderThanLastSave(t *testing.T) {
	mem := store.NewMemory()
	save := ledger.Autosave(mem, t.Logf)

	l := newTestLedger(t)
	addPerson(t, l, "Ana", "50")
	older := l.Snapshot()
	addProduct(t, l, "Soda", "", "3.50", 10)
	newer := l.Snapshot()

	save(ledger.Change{Type: ledger.ChangeProductAdded, Version: newer.Version, Snapshot: newer})
	save(ledger.Change{Type: ledger.ChangePersonAdded, Version: older.Version, Snapshot: older})

	assert.Equal(t, 1, mem.Saves())
	stored, err := mem.Load(context.Background())
	require.NoError(t, err)
	assert.Len(t, stored.Products, 1)
}

func TestAutosave_RetriesAfterFailedSave(t *testing.T) {
	mem := store.NewMemory()
	mem.SaveErr = errors.New("disk full")
	l := newTestLedger(t)
	l.Subscribe(ledger.Autosave(mem, t.Logf))

	addPerson(t, l, "Ana", "50")
	mem.SaveErr = nil
	addPerson(t, l, "Bruno", "20")

	stored, err := mem.Load(context.Background())
	require.NoError(t, err)
	assert.Len(t, stored.People, 2)
}

func TestNewSettlementRecord_SummarisesSnapshot(t *testing.T) {
	l := newTestLedger(t)
	a := addPerson(t, l, "A", "10")
	addPerson(t, l, "B", "0")
	soda := addProduct(t, l, "Soda", "789", "2.00", 4)
	_, err := l.CommitPurchase(a.ID, []ledger.LineRequest{{ProductID: soda.ID, Quantity: 1}})
	require.NoError(t, err)

	r := ledger.NewSettlementRecord("s1", testNow, ledger.DispositionWithdrawal, l.Snapshot())

	assert.Equal(t, 2, r.PeopleCount)
	assert.Equal(t, 1, r.PeopleWithBalance)
	assertMoney(t, "8.00", r.TotalBalance)
	assert.Equal(t, 1, r.ProductsWithStock)
	assert.Equal(t, 1, r.People[0].TotalPurchases)
	assertMoney(t, "2.00", r.People[0].TotalSpent)
	assert.Equal(t, 3, r.Products[0].FinalStock)
}
