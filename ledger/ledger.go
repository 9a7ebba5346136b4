/*
ledger.go - Invariant-preserving mutations of people, products and purchases

PURPOSE:
  The Ledger holds the People and Products collections and is the single
  source of truth for balances, stock and purchase history. Every exported
  mutation validates its whole input first and only then applies it, so a
  failed call leaves no observable trace.

CONCURRENCY:
  Single-writer model. Mutations run to completion under one mutex; reads
  take the read lock and return deep copies. Listeners are invoked after the
  lock is released, so a listener may read the ledger again. Listeners of
  concurrent mutations can run in any order; Change.Version orders them.

VERSIONING:
  Every successful mutation increments Version. Snapshot carries the
  version it was taken at; Settle refuses to run against a stale one.

CHANGE NOTIFICATION:
  Subscribe registers a Listener that receives a Change (with a fresh
  Snapshot) after each successful mutation. Persistence and re-rendering
  hang off this hook rather than off the mutation paths.

SEE ALSO:
  - types.go: Entities and inputs
  - settle.go: The terminal settlement mutation
  - persist.go: Persister contract and autosave listener
*/
package ledger

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// CHANGE NOTIFICATION
// =============================================================================

type ChangeType string

const (
	ChangePersonAdded       ChangeType = "person_added"
	ChangePersonUpdated     ChangeType = "person_updated"
	ChangePersonDeleted     ChangeType = "person_deleted"
	ChangeProductAdded      ChangeType = "product_added"
	ChangeProductUpdated    ChangeType = "product_updated"
	ChangeProductDeleted    ChangeType = "product_deleted"
	ChangePurchaseCommitted ChangeType = "purchase_committed"
	ChangePurchaseEdited    ChangeType = "purchase_edited"
	ChangePurchaseDeleted   ChangeType = "purchase_deleted"
	ChangeSpecialRecorded   ChangeType = "special_recorded"
	ChangeSettled           ChangeType = "settled"
	ChangeRestored          ChangeType = "restored"
	ChangeBrandingUpdated   ChangeType = "branding_updated"
)

// Change describes one successful mutation.
type Change struct {
	Type     ChangeType
	EntityID string
	Version  uint64
	Snapshot Snapshot
}

// Listener is called after every successful mutation.
type Listener func(Change)

// =============================================================================
// LEDGER
// =============================================================================

type Ledger struct {
	mu       sync.RWMutex
	people   []*Person
	products []*Product
	branding Branding
	version  uint64

	lmu       sync.Mutex
	listeners []Listener

	now   func() time.Time
	newID func() string
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock overrides the time source used to stamp entries.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// WithIDGenerator overrides the id source for people, products and entries.
func WithIDGenerator(gen func() string) Option {
	return func(l *Ledger) { l.newID = gen }
}

// New creates an empty ledger with default branding.
func New(opts ...Option) *Ledger {
	l := &Ledger{
		branding: DefaultBranding(),
		now:      func() time.Time { return time.Now().UTC() },
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Subscribe registers fn to be called after each successful mutation.
func (l *Ledger) Subscribe(fn Listener) {
	l.lmu.Lock()
	defer l.lmu.Unlock()
	l.listeners = append(l.listeners, fn)
}

// Version returns the number of successful mutations so far.
func (l *Ledger) Version() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.version
}

// apply runs fn under the write lock. fn must not mutate anything before it
// has finished validating. A Change with an empty Type is a no-op and is
// neither versioned nor broadcast.
func (l *Ledger) apply(fn func() (Change, error)) error {
	l.mu.Lock()
	change, err := fn()
	if err != nil || change.Type == "" {
		l.mu.Unlock()
		return err
	}
	l.version++
	change.Version = l.version
	change.Snapshot = l.snapshotLocked()
	l.mu.Unlock()

	l.lmu.Lock()
	listeners := append([]Listener(nil), l.listeners...)
	l.lmu.Unlock()
	for _, fn := range listeners {
		fn(change)
	}
	return nil
}

// =============================================================================
// READS
// =============================================================================

// Snapshot returns a deep copy of the whole ledger.
func (l *Ledger) Snapshot() Snapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.snapshotLocked()
}

func (l *Ledger) snapshotLocked() Snapshot {
	s := Snapshot{
		Version:  l.version,
		People:   make([]Person, len(l.people)),
		Products: make([]Product, len(l.products)),
		Branding: l.branding,
	}
	for i, p := range l.people {
		s.People[i] = p.clone()
	}
	for i, p := range l.products {
		s.Products[i] = p.clone()
	}
	return s
}

func (l *Ledger) People() []Person {
	return l.Snapshot().People
}

func (l *Ledger) Products() []Product {
	return l.Snapshot().Products
}

func (l *Ledger) Person(id string) (Person, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	p := l.findPerson(id)
	if p == nil {
		return Person{}, &NotFoundError{Entity: "person", ID: id}
	}
	return p.clone(), nil
}

func (l *Ledger) Product(id string) (Product, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	p := l.findProduct(id)
	if p == nil {
		return Product{}, &NotFoundError{Entity: "product", ID: id}
	}
	return p.clone(), nil
}

// ProductByBarcode looks a product up by exact barcode match.
func (l *Ledger) ProductByBarcode(code string) (Product, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if code != "" {
		for _, p := range l.products {
			if p.Barcode == code {
				return p.clone(), nil
			}
		}
	}
	return Product{}, &ProductNotFoundError{Code: code}
}

// SearchPeople matches term case-insensitively against name and custom id.
// An empty term returns everybody.
func (l *Ledger) SearchPeople(term string) []Person {
	term = strings.ToLower(strings.TrimSpace(term))
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []Person
	for _, p := range l.people {
		if term == "" ||
			strings.Contains(strings.ToLower(p.Name), term) ||
			strings.Contains(strings.ToLower(p.CustomID), term) {
			out = append(out, p.clone())
		}
	}
	return out
}

func (l *Ledger) Branding() Branding {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.branding
}

func (l *Ledger) findPerson(id string) *Person {
	for _, p := range l.people {
		if p.ID == id {
			return p
		}
	}
	return nil
}

func (l *Ledger) findProduct(id string) *Product {
	for _, p := range l.products {
		if p.ID == id {
			return p
		}
	}
	return nil
}

// =============================================================================
// PEOPLE
// =============================================================================

// AddPerson creates a person whose balance starts at the initial deposit.
func (l *Ledger) AddPerson(in NewPerson) (Person, error) {
	var out Person
	err := l.apply(func() (Change, error) {
		name := strings.TrimSpace(in.Name)
		customID := strings.TrimSpace(in.CustomID)
		if name == "" {
			return Change{}, &ValidationError{Field: "name", Reason: "required"}
		}
		if in.InitialDeposit.IsNegative() {
			return Change{}, &ValidationError{Field: "initialDeposit", Reason: "must not be negative"}
		}
		if err := l.checkCustomID(customID, ""); err != nil {
			return Change{}, err
		}

		deposit := Round2(in.InitialDeposit)
		p := &Person{
			ID:             l.newID(),
			CustomID:       customID,
			Name:           name,
			Photo:          strings.TrimSpace(in.Photo),
			InitialDeposit: deposit,
			Balance:        deposit,
			Purchases:      []Purchase{},
		}
		l.people = append(l.people, p)
		out = p.clone()
		return Change{Type: ChangePersonAdded, EntityID: p.ID}, nil
	})
	return out, err
}

// UpdatePerson merges patch into the person. Changing the initial deposit
// moves the balance by exactly the delta; purchase history is untouched.
func (l *Ledger) UpdatePerson(id string, patch PersonPatch) (Person, error) {
	var out Person
	err := l.apply(func() (Change, error) {
		p := l.findPerson(id)
		if p == nil {
			return Change{}, &NotFoundError{Entity: "person", ID: id}
		}

		name := p.Name
		if patch.Name != nil {
			name = strings.TrimSpace(*patch.Name)
			if name == "" {
				return Change{}, &ValidationError{Field: "name", Reason: "required"}
			}
		}
		customID := p.CustomID
		if patch.CustomID != nil {
			customID = strings.TrimSpace(*patch.CustomID)
			if err := l.checkCustomID(customID, p.ID); err != nil {
				return Change{}, err
			}
		}
		deposit := p.InitialDeposit
		if patch.InitialDeposit != nil {
			if patch.InitialDeposit.IsNegative() {
				return Change{}, &ValidationError{Field: "initialDeposit", Reason: "must not be negative"}
			}
			deposit = Round2(*patch.InitialDeposit)
		}

		p.Name = name
		p.CustomID = customID
		if patch.Photo != nil {
			p.Photo = strings.TrimSpace(*patch.Photo)
		}
		if !deposit.Equal(p.InitialDeposit) {
			p.Balance = Round2(p.Balance.Add(deposit.Sub(p.InitialDeposit)))
			p.InitialDeposit = deposit
		}
		out = p.clone()
		return Change{Type: ChangePersonUpdated, EntityID: p.ID}, nil
	})
	return out, err
}

// DeletePerson removes the person together with their purchase history.
// Stock is not restored: the sales happened.
func (l *Ledger) DeletePerson(id string) error {
	return l.apply(func() (Change, error) {
		for i, p := range l.people {
			if p.ID == id {
				l.people = append(l.people[:i], l.people[i+1:]...)
				return Change{Type: ChangePersonDeleted, EntityID: id}, nil
			}
		}
		return Change{}, &NotFoundError{Entity: "person", ID: id}
	})
}

func (l *Ledger) checkCustomID(customID, selfID string) error {
	if customID == "" {
		return nil
	}
	for _, p := range l.people {
		if p.ID != selfID && p.CustomID == customID {
			return &ValidationError{Field: "customId", Reason: "already used by " + p.Name}
		}
	}
	return nil
}

// =============================================================================
// PRODUCTS
// =============================================================================

// AddProduct creates a product. A non-empty barcode must be unique.
func (l *Ledger) AddProduct(in NewProduct) (Product, error) {
	var out Product
	err := l.apply(func() (Change, error) {
		p := Product{
			Name:              strings.TrimSpace(in.Name),
			Barcode:           strings.TrimSpace(in.Barcode),
			Price:             Round2(in.Price),
			Stock:             in.Stock,
			CostPrice:         in.CostPrice,
			PurchasedQuantity: in.PurchasedQuantity,
		}
		if err := l.validateProduct(p, ""); err != nil {
			return Change{}, err
		}
		p.ID = l.newID()
		stored := p.clone()
		l.products = append(l.products, &stored)
		out = stored.clone()
		return Change{Type: ChangeProductAdded, EntityID: p.ID}, nil
	})
	return out, err
}

// UpdateProduct merges patch into the product, re-checking barcode
// uniqueness against every other product.
func (l *Ledger) UpdateProduct(id string, patch ProductPatch) (Product, error) {
	var out Product
	err := l.apply(func() (Change, error) {
		current := l.findProduct(id)
		if current == nil {
			return Change{}, &NotFoundError{Entity: "product", ID: id}
		}

		next := current.clone()
		if patch.Name != nil {
			next.Name = strings.TrimSpace(*patch.Name)
		}
		if patch.Barcode != nil {
			next.Barcode = strings.TrimSpace(*patch.Barcode)
		}
		if patch.Price != nil {
			next.Price = Round2(*patch.Price)
		}
		if patch.Stock != nil {
			next.Stock = *patch.Stock
		}
		if patch.CostPrice != nil {
			c := *patch.CostPrice
			next.CostPrice = &c
		}
		if patch.PurchasedQuantity != nil {
			q := *patch.PurchasedQuantity
			next.PurchasedQuantity = &q
		}
		if err := l.validateProduct(next, id); err != nil {
			return Change{}, err
		}

		*current = next
		out = next.clone()
		return Change{Type: ChangeProductUpdated, EntityID: id}, nil
	})
	return out, err
}

// DeleteProduct removes the product. Past purchase items keep their
// snapshots and stock is not restored anywhere.
func (l *Ledger) DeleteProduct(id string) error {
	return l.apply(func() (Change, error) {
		for i, p := range l.products {
			if p.ID == id {
				l.products = append(l.products[:i], l.products[i+1:]...)
				return Change{Type: ChangeProductDeleted, EntityID: id}, nil
			}
		}
		return Change{}, &NotFoundError{Entity: "product", ID: id}
	})
}

func (l *Ledger) validateProduct(p Product, selfID string) error {
	if p.Name == "" {
		return &ValidationError{Field: "name", Reason: "required"}
	}
	if p.Price.IsNegative() {
		return &ValidationError{Field: "price", Reason: "must not be negative"}
	}
	if p.Stock < 0 {
		return &ValidationError{Field: "stock", Reason: "must not be negative"}
	}
	if p.CostPrice != nil && p.CostPrice.IsNegative() {
		return &ValidationError{Field: "costPrice", Reason: "must not be negative"}
	}
	if p.PurchasedQuantity != nil && *p.PurchasedQuantity < 0 {
		return &ValidationError{Field: "purchasedQuantity", Reason: "must not be negative"}
	}
	if p.Barcode != "" {
		for _, other := range l.products {
			if other.ID != selfID && other.Barcode == p.Barcode {
				return &DuplicateBarcodeError{Barcode: p.Barcode, ExistingID: other.ID}
			}
		}
	}
	return nil
}

// =============================================================================
// BRANDING
// =============================================================================

func (l *Ledger) UpdateBranding(patch BrandingPatch) (Branding, error) {
	var out Branding
	err := l.apply(func() (Change, error) {
		next := l.branding
		if patch.OrganizationName != nil {
			next.OrganizationName = strings.TrimSpace(*patch.OrganizationName)
		}
		if patch.LogoURL != nil {
			next.LogoURL = strings.TrimSpace(*patch.LogoURL)
		}
		if patch.ShowLogo != nil {
			next.ShowLogo = *patch.ShowLogo
		}
		if next.OrganizationName == "" {
			return Change{}, &ValidationError{Field: "organizationName", Reason: "required"}
		}
		l.branding = next
		out = next
		return Change{Type: ChangeBrandingUpdated}, nil
	})
	return out, err
}

// =============================================================================
// RESTORE
// =============================================================================

// Restore replaces the whole state with s. Nothing is merged. The snapshot
// is validated first; an invalid one leaves the ledger untouched.
func (l *Ledger) Restore(s Snapshot) error {
	if err := ValidateSnapshot(s); err != nil {
		return err
	}
	return l.apply(func() (Change, error) {
		people := make([]*Person, len(s.People))
		for i := range s.People {
			p := s.People[i].clone()
			if p.Purchases == nil {
				p.Purchases = []Purchase{}
			}
			people[i] = &p
		}
		products := make([]*Product, len(s.Products))
		for i := range s.Products {
			p := s.Products[i].clone()
			products[i] = &p
		}
		l.people = people
		l.products = products
		l.branding = s.Branding
		if l.branding.OrganizationName == "" {
			l.branding = DefaultBranding()
		}
		return Change{Type: ChangeRestored}, nil
	})
}

// ValidateSnapshot checks the structural invariants a restorable snapshot
// must satisfy.
func ValidateSnapshot(s Snapshot) error {
	personIDs := make(map[string]bool, len(s.People))
	customIDs := make(map[string]bool)
	// Purchase ids are unique across all people, not only within one.
	purchaseIDs := make(map[string]bool)
	for _, p := range s.People {
		if p.ID == "" || personIDs[p.ID] {
			return &ValidationError{Field: "people", Reason: "missing or duplicate id " + p.ID}
		}
		personIDs[p.ID] = true
		if strings.TrimSpace(p.Name) == "" {
			return &ValidationError{Field: "people", Reason: "person " + p.ID + " has no name"}
		}
		if p.InitialDeposit.IsNegative() {
			return &ValidationError{Field: "people", Reason: "person " + p.ID + " has a negative deposit"}
		}
		if p.CustomID != "" {
			if customIDs[p.CustomID] {
				return &ValidationError{Field: "people", Reason: "duplicate custom id " + p.CustomID}
			}
			customIDs[p.CustomID] = true
		}
		for _, pu := range p.Purchases {
			if pu.ID == "" || purchaseIDs[pu.ID] {
				return &ValidationError{Field: "purchases", Reason: "missing or duplicate id " + pu.ID}
			}
			purchaseIDs[pu.ID] = true
			if !pu.Kind.Valid() {
				return &ValidationError{Field: "purchases", Reason: fmt.Sprintf("unknown kind %q in purchase %s", pu.Kind, pu.ID)}
			}
			for _, it := range pu.Items {
				if it.Quantity <= 0 {
					return &ValidationError{Field: "purchases", Reason: "item quantity must be positive in purchase " + pu.ID}
				}
			}
		}
	}

	productIDs := make(map[string]bool, len(s.Products))
	barcodes := make(map[string]string)
	for _, p := range s.Products {
		if p.ID == "" || productIDs[p.ID] {
			return &ValidationError{Field: "products", Reason: "missing or duplicate id " + p.ID}
		}
		productIDs[p.ID] = true
		if strings.TrimSpace(p.Name) == "" {
			return &ValidationError{Field: "products", Reason: "product " + p.ID + " has no name"}
		}
		if p.Stock < 0 || p.Price.IsNegative() {
			return &ValidationError{Field: "products", Reason: "product " + p.ID + " has negative stock or price"}
		}
		if p.Barcode != "" {
			if other, ok := barcodes[p.Barcode]; ok {
				return &DuplicateBarcodeError{Barcode: p.Barcode, ExistingID: other}
			}
			barcodes[p.Barcode] = p.ID
		}
	}
	return nil
}
