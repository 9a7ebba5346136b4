/*
persist.go - Persistence contract between the ledger and its storage

PURPOSE:
  The ledger is in-memory; storage is a collaborator injected at start-up.
  A Persister loads the three collections once and saves them after
  mutations. A SettlementRecorder keeps the immutable settlement history,
  which lives outside the People/Products collections.

LIFECYCLE:
  1. Start-up: snap, err := persister.Load(ctx); ledger.Restore(snap)
  2. Running:  ledger.Subscribe(ledger.Autosave(persister, log.Printf))
  3. Settle:   recorder.SaveSettlement(ctx, record) once per settlement

IMPLEMENTATIONS:
  - store/sqlite: SQLite tables
  - ledger/store: In-memory for testing/dev

SEE ALSO:
  - ledger.go: Change notification
  - settlement/engine.go: Builds SettlementRecord
*/
package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// Persister loads and saves the People, Products and Branding collections.
type Persister interface {
	// Load returns the stored state. An empty store yields an empty
	// snapshot with default branding, not an error.
	Load(ctx context.Context) (Snapshot, error)

	// Save replaces the stored state atomically.
	Save(ctx context.Context, s Snapshot) error
}

// SettlementRecorder stores settlement records. Insert-only.
type SettlementRecorder interface {
	SaveSettlement(ctx context.Context, r SettlementRecord) error
	ListSettlements(ctx context.Context) ([]SettlementRecord, error)
}

// SettlementRecord is the audit summary of one settlement, taken from the
// pre-settlement snapshot. It is never modified after it is written.
type SettlementRecord struct {
	ID                string              `json:"id"`
	At                time.Time           `json:"at"`
	Disposition       Disposition         `json:"disposition"`
	PeopleCount       int                 `json:"peopleCount"`
	PeopleWithBalance int                 `json:"peopleWithBalance"`
	TotalBalance      decimal.Decimal     `json:"totalBalance"`
	ProductsCount     int                 `json:"productsCount"`
	ProductsWithStock int                 `json:"productsWithStock"`
	People            []PersonSettlement  `json:"people"`
	Products          []ProductSettlement `json:"products"`
	Reports           []string            `json:"reports"`
}

type PersonSettlement struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	CustomID       string          `json:"customId,omitempty"`
	FinalBalance   decimal.Decimal `json:"finalBalance"`
	InitialDeposit decimal.Decimal `json:"initialDeposit"`
	TotalPurchases int             `json:"totalPurchases"`
	TotalSpent     decimal.Decimal `json:"totalSpent"`
}

type ProductSettlement struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Barcode    string          `json:"barcode,omitempty"`
	FinalStock int             `json:"finalStock"`
	Price      decimal.Decimal `json:"price"`
}

// NewSettlementRecord summarises a pre-settlement snapshot.
func NewSettlementRecord(id string, at time.Time, d Disposition, s Snapshot) SettlementRecord {
	r := SettlementRecord{
		ID:                id,
		At:                at,
		Disposition:       d,
		PeopleCount:       len(s.People),
		PeopleWithBalance: len(s.PeopleWithBalance()),
		TotalBalance:      s.OutstandingBalance(),
		ProductsCount:     len(s.Products),
		ProductsWithStock: s.ProductsWithStock(),
		People:            make([]PersonSettlement, len(s.People)),
		Products:          make([]ProductSettlement, len(s.Products)),
	}
	for i, p := range s.People {
		r.People[i] = PersonSettlement{
			ID:             p.ID,
			Name:           p.Name,
			CustomID:       p.CustomID,
			FinalBalance:   p.Balance,
			InitialDeposit: p.InitialDeposit,
			TotalPurchases: len(p.Purchases),
			TotalSpent:     p.TotalSpent(),
		}
	}
	for i, p := range s.Products {
		r.Products[i] = ProductSettlement{
			ID:         p.ID,
			Name:       p.Name,
			Barcode:    p.Barcode,
			FinalStock: p.Stock,
			Price:      p.Price,
		}
	}
	return r
}

// Autosave returns a Listener that persists the snapshot of every change.
// Listeners of concurrent mutations may arrive out of order, so saves are
// serialised and a Change older than the last saved one is dropped. A
// failed save is reported through logf; the ledger keeps its state.
func Autosave(p Persister, logf func(format string, args ...any)) Listener {
	var (
		mu    sync.Mutex
		saved uint64
	)
	return func(c Change) {
		mu.Lock()
		defer mu.Unlock()

		if c.Version <= saved {
			return
		}
		if err := p.Save(context.Background(), c.Snapshot); err != nil {
			logf("[Autosave] save after %s (v%d) failed: %v", c.Type, c.Version, err)
			return
		}
		saved = c.Version
	}
}
