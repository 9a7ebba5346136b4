/*
Package settlement closes an event: it renders the final reports, pays out
every remaining balance under one disposition and clears all stock.

STATE MACHINE:
  Confirm --Confirm()--> BalanceChoice --ChooseDisposition()--> Processing
     |                                                             |
     +--Confirm() when nobody has a positive balance---------------+
                                                                   |
                                                        Finalize() v
                                                               Completed

  A failure while Processing drops back to Confirm with nothing mutated,
  except when only the settlement record failed to persist: the ledger
  has already settled, so the engine is Completed and the error is
  returned alongside the result.

ORDERING:
  Reports are rendered from a snapshot before any mutation. The ledger is
  then settled against that snapshot's version, so a change slipping in
  between the two makes Settle fail instead of settling data the reports
  never saw.

SEE ALSO:
  - ledger/settle.go: Ledger.Settle
  - report/sink.go: FileSink, the production ReportSink
*/
package settlement

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/warp/canteen-ledger/ledger"
)

// =============================================================================
// STATE
// =============================================================================

type State int

const (
	StateConfirm State = iota
	StateBalanceChoice
	StateProcessing
	StateCompleted
)

func (s State) String() string {
	switch s {
	case StateConfirm:
		return "confirm"
	case StateBalanceChoice:
		return "balance_choice"
	case StateProcessing:
		return "processing"
	case StateCompleted:
		return "completed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// ErrWrongState is returned when a step is taken out of order.
var ErrWrongState = errors.New("settlement step out of order")

// =============================================================================
// COLLABORATORS
// =============================================================================

// Ledger is the part of *ledger.Ledger the engine needs.
type Ledger interface {
	Snapshot() ledger.Snapshot
	Settle(expectedVersion uint64, d ledger.Disposition, at time.Time) (ledger.SettleOutcome, error)
}

// Request is what a ReportSink renders: the pre-settlement state and the
// chosen disposition.
type Request struct {
	// ID is the id the settlement record will be stored under.
	ID          string
	Snapshot    ledger.Snapshot
	Disposition ledger.Disposition
	At          time.Time
}

// Artifact describes one rendered report.
type Artifact struct {
	Name   string `json:"name"`
	Format string `json:"format"`
	Path   string `json:"path,omitempty"`
	Rows   int    `json:"rows"`
}

// ReportSink renders the final reports. An error aborts the settlement.
type ReportSink interface {
	WriteSettlementReports(ctx context.Context, req Request) ([]Artifact, error)
}

// =============================================================================
// ENGINE
// =============================================================================

// Summary is the pre-settlement overview shown at the Confirm step.
type Summary struct {
	PeopleCount       int             `json:"people_count"`
	PeopleWithBalance int             `json:"people_with_balance"`
	TotalBalance      decimal.Decimal `json:"total_balance"`
	ProductsCount     int             `json:"products_count"`
	ProductsWithStock int             `json:"products_with_stock"`
	NeedsDisposition  bool            `json:"needs_disposition"`
}

// Result is reported on completion. Counts come from the pre-settlement
// snapshot.
type Result struct {
	RecordID          string             `json:"record_id"`
	Disposition       ledger.Disposition `json:"disposition"`
	At                time.Time          `json:"at"`
	PeopleWithBalance int                `json:"people_with_balance"`
	TotalBalance      decimal.Decimal    `json:"total_balance"`
	ProductsCleared   int                `json:"products_cleared"`
	Reports           []Artifact         `json:"reports"`
}

type Engine struct {
	mu       sync.Mutex
	ledger   Ledger
	sink     ReportSink
	recorder ledger.SettlementRecorder
	now      func() time.Time

	state       State
	disposition ledger.Disposition
	result      *Result
}

func NewEngine(l Ledger, sink ReportSink, recorder ledger.SettlementRecorder) *Engine {
	return &Engine{
		ledger:   l,
		sink:     sink,
		recorder: recorder,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the settlement timestamp source.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Summary describes what settling now would do.
func (e *Engine) Summary() Summary {
	return summarize(e.ledger.Snapshot())
}

func summarize(s ledger.Snapshot) Summary {
	withBalance := len(s.PeopleWithBalance())
	return Summary{
		PeopleCount:       len(s.People),
		PeopleWithBalance: withBalance,
		TotalBalance:      s.OutstandingBalance(),
		ProductsCount:     len(s.Products),
		ProductsWithStock: s.ProductsWithStock(),
		NeedsDisposition:  withBalance > 0,
	}
}

// Confirm leaves the Confirm step. When nobody has a positive balance the
// disposition is irrelevant and the engine goes straight to Processing.
func (e *Engine) Confirm() (State, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.confirmLocked()
}

func (e *Engine) confirmLocked() (State, error) {
	if e.state == StateCompleted {
		e.reset()
	}
	if e.state != StateConfirm {
		return e.state, fmt.Errorf("%w: confirm from %s", ErrWrongState, e.state)
	}
	if summarize(e.ledger.Snapshot()).NeedsDisposition {
		e.state = StateBalanceChoice
	} else {
		e.disposition = ledger.DispositionWithdrawal
		e.state = StateProcessing
	}
	return e.state, nil
}

// ChooseDisposition picks where the remaining balances go.
func (e *Engine) ChooseDisposition(d ledger.Disposition) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.chooseLocked(d)
}

func (e *Engine) chooseLocked(d ledger.Disposition) error {
	if e.state != StateBalanceChoice {
		return fmt.Errorf("%w: choose disposition from %s", ErrWrongState, e.state)
	}
	if !d.Valid() {
		return &ledger.ValidationError{Field: "disposition", Reason: "must be withdrawal or missionary_donation"}
	}
	e.disposition = d
	e.state = StateProcessing
	return nil
}

// Finalize renders the reports, settles the ledger and stores the record.
func (e *Engine) Finalize(ctx context.Context) (Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.finalizeLocked(ctx)
}

func (e *Engine) finalizeLocked(ctx context.Context) (Result, error) {
	if e.state != StateProcessing {
		return Result{}, fmt.Errorf("%w: finalize from %s", ErrWrongState, e.state)
	}

	id := uuid.NewString()
	at := e.now()
	snap := e.ledger.Snapshot()
	artifacts, err := e.sink.WriteSettlementReports(ctx, Request{ID: id, Snapshot: snap, Disposition: e.disposition, At: at})
	if err != nil {
		e.reset()
		return Result{}, fmt.Errorf("render settlement reports: %w", err)
	}

	if _, err := e.ledger.Settle(snap.Version, e.disposition, at); err != nil {
		e.reset()
		return Result{}, fmt.Errorf("settle ledger: %w", err)
	}

	record := ledger.NewSettlementRecord(id, at, e.disposition, snap)
	for _, a := range artifacts {
		if a.Path != "" {
			record.Reports = append(record.Reports, filepath.Base(a.Path))
		} else {
			record.Reports = append(record.Reports, a.Name+"."+a.Format)
		}
	}
	result := Result{
		RecordID:          record.ID,
		Disposition:       e.disposition,
		At:                at,
		PeopleWithBalance: record.PeopleWithBalance,
		TotalBalance:      record.TotalBalance,
		ProductsCleared:   record.ProductsWithStock,
		Reports:           artifacts,
	}
	e.state = StateCompleted
	e.result = &result

	if err := e.recorder.SaveSettlement(ctx, record); err != nil {
		return result, fmt.Errorf("save settlement record: %w", err)
	}
	return result, nil
}

// Run drives the whole flow with one disposition, abandoning any
// interactive flow left half way. It is what the HTTP layer calls; the
// step methods exist for interactive front ends.
func (e *Engine) Run(ctx context.Context, d ledger.Disposition) (Result, error) {
	if !d.Valid() {
		return Result{}, &ledger.ValidationError{Field: "disposition", Reason: "must be withdrawal or missionary_donation"}
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.reset()
	state, err := e.confirmLocked()
	if err != nil {
		return Result{}, err
	}
	if state == StateBalanceChoice {
		if err := e.chooseLocked(d); err != nil {
			return Result{}, err
		}
	}
	return e.finalizeLocked(ctx)
}

// LastResult returns the most recent completed result, if any.
func (e *Engine) LastResult() (Result, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.result == nil {
		return Result{}, false
	}
	return *e.result, true
}

func (e *Engine) reset() {
	e.state = StateConfirm
	e.disposition = ""
}
