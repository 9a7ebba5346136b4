package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// SettleOutcome summarises what Settle changed.
type SettleOutcome struct {
	Disposition     Disposition
	At              time.Time
	PeoplePaidOut   int
	AmountPaidOut   decimal.Decimal
	PeopleZeroed    int // balance <= 0 reset without an entry
	ProductsCleared int // products that still had stock
	Entries         []Purchase
}

// Settle closes the event. Every positive balance is paid out through one
// settlement entry labelled for the disposition; non-positive balances are
// reset to zero with no entry; every product's stock becomes zero.
//
// expectedVersion must equal the current Version. Callers take a Snapshot,
// render their audit artifacts from it, and then settle against that
// snapshot's version. Any mutation in between makes Settle fail with
// ErrConcurrentModification and nothing changes.
func (l *Ledger) Settle(expectedVersion uint64, d Disposition, at time.Time) (SettleOutcome, error) {
	out := SettleOutcome{Disposition: d, At: at, AmountPaidOut: decimal.Zero}
	err := l.apply(func() (Change, error) {
		if !d.Valid() {
			return Change{}, &ValidationError{Field: "disposition", Reason: "must be withdrawal or missionary_donation"}
		}
		if expectedVersion != l.version {
			return Change{}, ErrConcurrentModification
		}

		for _, person := range l.people {
			if !person.Balance.IsPositive() {
				if !person.Balance.IsZero() {
					out.PeopleZeroed++
				}
				person.Balance = decimal.Zero
				continue
			}
			amount := person.Balance
			entry := l.specialEntry(person.ID, KindSettlement, d.Label(), amount)
			entry.Date = at
			person.Purchases = append(person.Purchases, entry)
			person.Balance = decimal.Zero
			out.PeoplePaidOut++
			out.AmountPaidOut = out.AmountPaidOut.Add(amount)
			out.Entries = append(out.Entries, entry.clone())
		}
		for _, product := range l.products {
			if product.Stock > 0 {
				out.ProductsCleared++
			}
			product.Stock = 0
		}
		out.AmountPaidOut = Round2(out.AmountPaidOut)
		return Change{Type: ChangeSettled}, nil
	})
	if err != nil {
		return SettleOutcome{}, err
	}
	return out, nil
}
