package ledger

import (
	"github.com/shopspring/decimal"
)

// =============================================================================
// COMMIT
// =============================================================================

// CommitPurchase sells lines to a person at current product prices.
//
// All checks run before anything moves: every product must resolve, every
// quantity must fit in stock, and the rounded total must be covered by the
// balance within BalanceTolerance. Repeated product ids are merged into one
// line in first-seen order.
func (l *Ledger) CommitPurchase(personID string, lines []LineRequest) (Purchase, error) {
	var out Purchase
	err := l.apply(func() (Change, error) {
		person := l.findPerson(personID)
		if person == nil {
			return Change{}, &NotFoundError{Entity: "person", ID: personID}
		}
		merged, err := mergeLines(lines)
		if err != nil {
			return Change{}, err
		}

		products := make([]*Product, len(merged))
		items := make([]PurchaseItem, len(merged))
		for i, line := range merged {
			product := l.findProduct(line.ProductID)
			if product == nil {
				return Change{}, &ProductNotFoundError{Code: line.ProductID}
			}
			if line.Quantity > product.Stock {
				return Change{}, &InsufficientStockError{
					ProductID:   product.ID,
					ProductName: product.Name,
					Available:   product.Stock,
					Requested:   line.Quantity,
				}
			}
			products[i] = product
			items[i] = PurchaseItem{
				ProductID:   product.ID,
				ProductName: product.Name,
				Quantity:    line.Quantity,
				Price:       product.Price,
				Total:       LineTotal(product.Price, line.Quantity),
			}
		}

		total := SumItems(items)
		if !Covers(person.Balance, total) {
			return Change{}, &InsufficientBalanceError{
				PersonID:  person.ID,
				Available: person.Balance,
				Requested: total,
				Shortfall: total.Sub(person.Balance),
			}
		}

		purchase := Purchase{
			ID:       l.newID(),
			PersonID: person.ID,
			Kind:     KindSale,
			Date:     l.now(),
			Items:    items,
			Total:    total,
		}
		person.Purchases = append(person.Purchases, purchase)
		person.Balance = Round2(person.Balance.Sub(total))
		for i, product := range products {
			product.Stock -= items[i].Quantity
		}
		out = purchase.clone()
		return Change{Type: ChangePurchaseCommitted, EntityID: purchase.ID}, nil
	})
	return out, err
}

func mergeLines(lines []LineRequest) ([]LineRequest, error) {
	if len(lines) == 0 {
		return nil, &ValidationError{Field: "items", Reason: "at least one item is required"}
	}
	index := make(map[string]int, len(lines))
	var merged []LineRequest
	for _, line := range lines {
		if line.Quantity <= 0 {
			return nil, &ValidationError{Field: "quantity", Reason: "must be positive"}
		}
		if i, ok := index[line.ProductID]; ok {
			merged[i].Quantity += line.Quantity
			continue
		}
		index[line.ProductID] = len(merged)
		merged = append(merged, line)
	}
	return merged, nil
}

// =============================================================================
// DELETE / EDIT
// =============================================================================

// DeletePurchase reverses an entry: the balance gets its total back and, for
// sales, every product that still exists gets its units back.
func (l *Ledger) DeletePurchase(personID, purchaseID string) error {
	return l.apply(func() (Change, error) {
		person, idx, err := l.locatePurchase(personID, purchaseID)
		if err != nil {
			return Change{}, err
		}
		purchase := person.Purchases[idx]
		person.Balance = Round2(person.Balance.Add(purchase.Total))
		if !purchase.IsSpecial() {
			for _, it := range purchase.Items {
				if product := l.findProduct(it.ProductID); product != nil {
					product.Stock += it.Quantity
				}
			}
		}
		person.Purchases = append(person.Purchases[:idx], person.Purchases[idx+1:]...)
		return Change{Type: ChangePurchaseDeleted, EntityID: purchaseID}, nil
	})
}

// DeletePurchaseItem removes one line. Removing the last line removes the
// whole purchase.
func (l *Ledger) DeletePurchaseItem(personID, purchaseID, productID string) error {
	return l.apply(func() (Change, error) {
		return l.deleteItemLocked(personID, purchaseID, productID)
	})
}

func (l *Ledger) deleteItemLocked(personID, purchaseID, productID string) (Change, error) {
	person, idx, err := l.locatePurchase(personID, purchaseID)
	if err != nil {
		return Change{}, err
	}
	purchase := &person.Purchases[idx]
	itemIdx := purchase.itemIndex(productID)
	if itemIdx < 0 {
		return Change{}, &NotFoundError{Entity: "item", ID: productID}
	}
	item := purchase.Items[itemIdx]

	person.Balance = Round2(person.Balance.Add(item.Total))
	if !purchase.IsSpecial() {
		if product := l.findProduct(productID); product != nil {
			product.Stock += item.Quantity
		}
	}

	if len(purchase.Items) == 1 {
		person.Purchases = append(person.Purchases[:idx], person.Purchases[idx+1:]...)
		return Change{Type: ChangePurchaseDeleted, EntityID: purchaseID}, nil
	}
	purchase.Items = append(purchase.Items[:itemIdx], purchase.Items[itemIdx+1:]...)
	purchase.Total = SumItems(purchase.Items)
	return Change{Type: ChangePurchaseEdited, EntityID: purchaseID}, nil
}

// SetPurchaseItemQuantity changes the quantity of a sale line at its
// snapshotted unit price. A quantity of zero or less deletes the line.
//
// Stock availability is checked before either stock or balance moves. When
// the product has since been deleted the line can still shrink (no stock is
// returned) but cannot grow.
func (l *Ledger) SetPurchaseItemQuantity(personID, purchaseID, productID string, quantity int) error {
	return l.apply(func() (Change, error) {
		if quantity <= 0 {
			return l.deleteItemLocked(personID, purchaseID, productID)
		}

		person, idx, err := l.locatePurchase(personID, purchaseID)
		if err != nil {
			return Change{}, err
		}
		purchase := &person.Purchases[idx]
		if purchase.IsSpecial() {
			return Change{}, &ValidationError{Field: "purchase", Reason: "special transactions cannot be edited"}
		}
		itemIdx := purchase.itemIndex(productID)
		if itemIdx < 0 {
			return Change{}, &NotFoundError{Entity: "item", ID: productID}
		}
		item := &purchase.Items[itemIdx]

		diff := quantity - item.Quantity
		if diff == 0 {
			return Change{}, nil
		}
		product := l.findProduct(productID)
		if diff > 0 {
			if product == nil {
				return Change{}, &ProductNotFoundError{Code: productID}
			}
			if diff > product.Stock {
				return Change{}, &InsufficientStockError{
					ProductID:   product.ID,
					ProductName: product.Name,
					Available:   product.Stock,
					Requested:   diff,
				}
			}
		}

		if product != nil {
			product.Stock -= diff
		}
		newTotal := LineTotal(item.Price, quantity)
		delta := newTotal.Sub(item.Total)
		item.Quantity = quantity
		item.Total = newTotal
		purchase.Total = Round2(purchase.Total.Add(delta))
		person.Balance = Round2(person.Balance.Sub(delta))
		return Change{Type: ChangePurchaseEdited, EntityID: purchaseID}, nil
	})
}

func (l *Ledger) locatePurchase(personID, purchaseID string) (*Person, int, error) {
	person := l.findPerson(personID)
	if person == nil {
		return nil, -1, &NotFoundError{Entity: "person", ID: personID}
	}
	idx := person.purchaseIndex(purchaseID)
	if idx < 0 {
		return nil, -1, &NotFoundError{Entity: "purchase", ID: purchaseID}
	}
	return person, idx, nil
}

// =============================================================================
// SPECIAL TRANSACTIONS
// =============================================================================

// RecordSpecialTransaction debits amount from a person as a withdrawal or a
// missionary offer. The entry carries one synthetic line whose product id is
// a fresh sentinel; no stock is touched.
func (l *Ledger) RecordSpecialTransaction(personID string, kind EntryKind, amount decimal.Decimal) (Purchase, error) {
	var out Purchase
	err := l.apply(func() (Change, error) {
		var label string
		switch kind {
		case KindWithdrawal:
			label = WithdrawalLabel
		case KindMissionaryOffer:
			label = MissionaryOfferLabel
		default:
			return Change{}, &ValidationError{Field: "kind", Reason: "must be withdrawal or missionary_offer"}
		}
		person := l.findPerson(personID)
		if person == nil {
			return Change{}, &NotFoundError{Entity: "person", ID: personID}
		}
		amount = Round2(amount)
		if !amount.IsPositive() || amount.GreaterThan(person.Balance) {
			return Change{}, &InvalidAmountError{Amount: amount, Balance: person.Balance}
		}

		entry := l.specialEntry(person.ID, kind, label, amount)
		person.Purchases = append(person.Purchases, entry)
		person.Balance = Round2(person.Balance.Sub(amount))
		out = entry.clone()
		return Change{Type: ChangeSpecialRecorded, EntityID: entry.ID}, nil
	})
	return out, err
}

func (l *Ledger) specialEntry(personID string, kind EntryKind, label string, amount decimal.Decimal) Purchase {
	return Purchase{
		ID:       l.newID(),
		PersonID: personID,
		Kind:     kind,
		Date:     l.now(),
		Items: []PurchaseItem{{
			ProductID:   kind.sentinelPrefix() + l.newID(),
			ProductName: label,
			Quantity:    1,
			Price:       amount,
			Total:       amount,
		}},
		Total: amount,
	}
}
