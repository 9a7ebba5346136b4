/*
scenarios.go - Demo data sets for testing and demonstrations

PURPOSE:

	Provides pre-built camp states for demos and manual testing. Each
	scenario is built on a scratch ledger through the regular operations
	(AddProduct, AddPerson, cart commits, special transactions) and then
	restored into the live ledger in one step.

AVAILABLE SCENARIOS:

	empty:        No people, no products, default branding
	camp-opening: Catalog stocked, campers registered, nothing sold yet
	mid-camp:     Two days of sales and one missionary offer
	closing-day:  Third day sold, one account closed, ready for settlement

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "mid-camp"}

NOTE:

	Loading a scenario replaces the whole state. Only use in
	development/demo environments.

SEE ALSO:
  - handlers.go: Restore uses the same replacement path
*/
package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/canteen-ledger/ledger"
	"github.com/warp/canteen-ledger/purchase"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "empty",
		Name:        "Empty",
		Description: "No people and no products",
	},
	{
		ID:          "camp-opening",
		Name:        "Camp Opening",
		Description: "Catalog stocked and campers registered with their deposits",
	},
	{
		ID:          "mid-camp",
		Name:        "Mid-Camp",
		Description: "Two days of sales and a missionary offer",
	},
	{
		ID:          "closing-day",
		Name:        "Closing Day",
		Description: "Third day sold and one account closed, ready for settlement",
	},
}

// ListScenarios returns available scenarios.
// GET /api/scenarios
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
// GET /api/scenarios/current
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	current := h.scenario()
	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, nil)
}

// LoadScenario replaces the ledger state with a demo data set.
// POST /api/scenarios/load
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	snap, err := BuildScenario(req.ScenarioID, h.now())
	if err != nil {
		writeLedgerError(w, "Failed to build scenario", err)
		return
	}
	if err := h.Ledger.Restore(snap); err != nil {
		writeLedgerError(w, fmt.Sprintf("Failed to load scenario: %v", err), err)
		return
	}

	h.setScenario(req.ScenarioID)
	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": req.ScenarioID})
}

// BuildScenario returns the snapshot of a demo data set. Entries are dated
// relative to now.
func BuildScenario(id string, now time.Time) (ledger.Snapshot, error) {
	s := newSeeder(now.Add(-72 * time.Hour))

	switch id {
	case "empty":
	case "camp-opening":
		s.catalog()
		s.campers()
	case "mid-camp":
		s.catalog()
		s.campers()
		s.firstDay()
		s.secondDay()
	case "closing-day":
		s.catalog()
		s.campers()
		s.firstDay()
		s.secondDay()
		s.lastDay()
	default:
		return ledger.Snapshot{}, &ledger.ValidationError{Field: "scenario_id", Reason: fmt.Sprintf("unknown scenario %q", id)}
	}

	if s.err != nil {
		return ledger.Snapshot{}, fmt.Errorf("scenario %s: %w", id, s.err)
	}
	return s.l.Snapshot(), nil
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

func (s *seeder) catalog() {
	s.product("Refrigerante Lata", "7894900011517", "5.00", 48)
	s.product("Água Mineral 500ml", "7896065800013", "3.00", 60)
	s.product("Suco de Caixinha", "7891098000255", "3.50", 30)
	s.product("Chocolate ao Leite", "7622300991432", "4.50", 40)
	s.product("Salgadinho", "7892840800079", "6.00", 36)
	s.product("Pão de Queijo", "00789", "2.50", 50)
	s.product("Picolé", "2000000000015", "4.00", 24)
	s.product("Camiseta do Acampamento", "2000000000022", "35.00", 15)
}

func (s *seeder) campers() {
	s.person("Ana Souza", "001", "80.00")
	s.person("Bruno Lima", "002", "50.00")
	s.person("Carla Mendes", "003", "120.00")
	s.person("Daniel Rocha", "004", "30.00")
	s.person("Elisa Martins", "005", "60.00")
	s.person("Felipe Costa", "", "40.00")
}

func (s *seeder) firstDay() {
	s.buy("Ana Souza", "7894900011517", "2*00789")
	s.buy("Bruno Lima", "3*7622300991432")
	s.buy("Carla Mendes", "2000000000022", "7896065800013")
	s.buy("Daniel Rocha", "2*7892840800079", "7894900011517")
	s.buy("Elisa Martins", "2*7891098000255")
	s.advance(24 * time.Hour)
}

func (s *seeder) secondDay() {
	s.buy("Ana Souza", "2000000000015", "7896065800013")
	s.buy("Bruno Lima", "2*7894900011517", "2*00789")
	s.buy("Felipe Costa", "4*2000000000015")
	s.special("Carla Mendes", ledger.KindMissionaryOffer, "20.00")
	s.advance(24 * time.Hour)
}

func (s *seeder) lastDay() {
	s.buy("Ana Souza", "2000000000022", "2*7622300991432")
	s.buy("Elisa Martins", "3*7892840800079", "2*7894900011517")
	s.buy("Felipe Costa", "2*7891098000255", "7896065800013")
	s.closeAccount("Daniel Rocha")
}

// =============================================================================
// SEEDER
// =============================================================================

// seeder drives a scratch ledger and keeps the first error.
type seeder struct {
	l   *ledger.Ledger
	at  time.Time
	ids map[string]string
	err error
}

func newSeeder(start time.Time) *seeder {
	s := &seeder{at: start, ids: make(map[string]string)}
	s.l = ledger.New(ledger.WithClock(func() time.Time { return s.at }))
	return s
}

func (s *seeder) advance(d time.Duration) {
	s.at = s.at.Add(d)
}

func (s *seeder) product(name, barcode, price string, stock int) {
	if s.err != nil {
		return
	}
	_, s.err = s.l.AddProduct(ledger.NewProduct{
		Name:    name,
		Barcode: barcode,
		Price:   decimal.RequireFromString(price),
		Stock:   stock,
	})
}

func (s *seeder) person(name, customID, deposit string) {
	if s.err != nil {
		return
	}
	p, err := s.l.AddPerson(ledger.NewPerson{
		Name:           name,
		CustomID:       customID,
		InitialDeposit: decimal.RequireFromString(deposit),
	})
	s.err = err
	s.ids[name] = p.ID
}

// buy scans entries the way the cashier would and commits the cart.
func (s *seeder) buy(name string, entries ...string) {
	if s.err != nil {
		return
	}
	cart := purchase.NewCart(s.l)
	for _, e := range entries {
		if _, s.err = cart.Scan(e); s.err != nil {
			return
		}
	}
	_, s.err = cart.Commit(s.l, s.ids[name])
	s.advance(15 * time.Minute)
}

func (s *seeder) special(name string, kind ledger.EntryKind, amount string) {
	if s.err != nil {
		return
	}
	_, s.err = s.l.RecordSpecialTransaction(s.ids[name], kind, decimal.RequireFromString(amount))
}

func (s *seeder) closeAccount(name string) {
	if s.err != nil {
		return
	}
	p, err := s.l.Person(s.ids[name])
	if err != nil {
		s.err = err
		return
	}
	_, s.err = s.l.RecordSpecialTransaction(p.ID, ledger.KindWithdrawal, p.Balance)
}
