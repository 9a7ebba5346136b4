/*
Package ledger provides the balance/stock ledger core of the canteen.

PURPOSE:
  Tracks people with prepaid balances, products with stock, and the
  purchases that move money out of a balance and units out of stock.
  The Ledger is the only authority allowed to mutate balance, stock or
  purchase collections; every other package reads copies from it and
  submits intents.

KEY CONCEPTS IN THIS FILE (types.go):
  - Person:       A prepaid account with an ordered purchase history
  - Product:      A sellable item with a unit price and a stock count
  - Purchase:     A ledger entry owned by one person (sale or special)
  - PurchaseItem: A line of a purchase, snapshotting name and unit price
  - Branding:     Presentation metadata for reports

INVARIANTS:
  1. balance == initialDeposit - sum(purchases.total) + manual deposit deltas
  2. stock >= 0 for every product, always
  3. every PurchaseItem has quantity > 0
  4. non-empty barcodes are unique among products
  5. non-empty custom ids are unique among people

LEDGER ENTRIES:
  A Purchase is a tagged union on Kind. KindSale entries carry real
  product lines and affect stock. Special entries (withdrawal, missionary
  offer, settlement payout) carry a single synthetic line whose product id
  never resolves to a Product; they affect only the balance.

SEE ALSO:
  - ledger.go: Mutation operations
  - money.go: Rounding rules
  - errors.go: Error taxonomy
*/
package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// ENTRY KINDS
// =============================================================================

// EntryKind tags a Purchase as a product sale or a special transaction.
type EntryKind string

const (
	KindSale            EntryKind = "sale"
	KindWithdrawal      EntryKind = "withdrawal"
	KindMissionaryOffer EntryKind = "missionary_offer"
	KindSettlement      EntryKind = "settlement"
)

// Valid reports whether k is a known entry kind.
func (k EntryKind) Valid() bool {
	switch k {
	case KindSale, KindWithdrawal, KindMissionaryOffer, KindSettlement:
		return true
	}
	return false
}

// IsSpecial reports whether entries of this kind bypass stock.
func (k EntryKind) IsSpecial() bool {
	return k != KindSale && k != ""
}

// sentinelPrefix is prepended to the generated product id of a special line.
func (k EntryKind) sentinelPrefix() string {
	switch k {
	case KindWithdrawal:
		return "withdrawal-"
	case KindMissionaryOffer:
		return "missionary-offer-"
	case KindSettlement:
		return "settlement-"
	}
	return ""
}

// Disposition is the single global destination of remaining balances at
// settlement.
type Disposition string

const (
	DispositionWithdrawal         Disposition = "withdrawal"
	DispositionMissionaryDonation Disposition = "missionary_donation"
)

// Valid reports whether d is a known disposition.
func (d Disposition) Valid() bool {
	return d == DispositionWithdrawal || d == DispositionMissionaryDonation
}

// Label is the line name written into the payout entry.
func (d Disposition) Label() string {
	if d == DispositionMissionaryDonation {
		return "Encerramento - Saldo para Missionário"
	}
	return "Encerramento - Saldo para Saque"
}

// Line names used for special entries.
const (
	WithdrawalLabel      = "Saque - Fechamento de Conta"
	MissionaryOfferLabel = "Oferta Missionária"
)

// =============================================================================
// ENTITIES
// =============================================================================

type Person struct {
	ID             string          `json:"id"`
	CustomID       string          `json:"customId,omitempty"`
	Name           string          `json:"name"`
	Photo          string          `json:"photo,omitempty"` // image URL or data URL
	InitialDeposit decimal.Decimal `json:"initialDeposit"`
	Balance        decimal.Decimal `json:"balance"`
	Purchases      []Purchase      `json:"purchases"`
}

// TotalSpent sums the totals of every entry, special ones included.
func (p Person) TotalSpent() decimal.Decimal {
	total := decimal.Zero
	for _, pu := range p.Purchases {
		total = total.Add(pu.Total)
	}
	return Round2(total)
}

// purchaseIndex returns the index of the purchase with the given id, or -1.
func (p *Person) purchaseIndex(id string) int {
	for i := range p.Purchases {
		if p.Purchases[i].ID == id {
			return i
		}
	}
	return -1
}

func (p Person) clone() Person {
	out := p
	out.Purchases = make([]Purchase, len(p.Purchases))
	for i, pu := range p.Purchases {
		out.Purchases[i] = pu.clone()
	}
	return out
}

type Product struct {
	ID                string           `json:"id"`
	Barcode           string           `json:"barcode,omitempty"`
	Name              string           `json:"name"`
	Price             decimal.Decimal  `json:"price"`
	Stock             int              `json:"stock"`
	CostPrice         *decimal.Decimal `json:"costPrice,omitempty"`
	PurchasedQuantity *int             `json:"purchasedQuantity,omitempty"`
}

// StockValue is price * stock rounded to cents.
func (p Product) StockValue() decimal.Decimal {
	return LineTotal(p.Price, p.Stock)
}

func (p Product) clone() Product {
	out := p
	if p.CostPrice != nil {
		c := *p.CostPrice
		out.CostPrice = &c
	}
	if p.PurchasedQuantity != nil {
		q := *p.PurchasedQuantity
		out.PurchasedQuantity = &q
	}
	return out
}

type Purchase struct {
	ID       string          `json:"id"`
	PersonID string          `json:"personId"`
	Kind     EntryKind       `json:"kind"`
	Date     time.Time       `json:"date"`
	Items    []PurchaseItem  `json:"items"`
	Total    decimal.Decimal `json:"total"`
}

// IsSpecial reports whether the purchase is a balance-only entry.
func (p Purchase) IsSpecial() bool { return p.Kind.IsSpecial() }

func (p Purchase) itemIndex(productID string) int {
	for i := range p.Items {
		if p.Items[i].ProductID == productID {
			return i
		}
	}
	return -1
}

func (p Purchase) clone() Purchase {
	out := p
	out.Items = append([]PurchaseItem(nil), p.Items...)
	return out
}

// PurchaseItem snapshots the product name and unit price at purchase time.
// Later renames or price changes of the product do not touch it.
type PurchaseItem struct {
	ProductID   string          `json:"productId"`
	ProductName string          `json:"productName"`
	Quantity    int             `json:"quantity"`
	Price       decimal.Decimal `json:"price"`
	Total       decimal.Decimal `json:"total"`
}

type Branding struct {
	OrganizationName string `json:"organizationName"`
	LogoURL          string `json:"logoUrl"`
	ShowLogo         bool   `json:"showLogo"`
}

// DefaultBranding is used when nothing has been configured yet.
func DefaultBranding() Branding {
	return Branding{
		OrganizationName: "Acampamento de Jovens 2025",
		LogoURL:          "/LOGO.png",
		ShowLogo:         true,
	}
}

// =============================================================================
// INPUTS
// =============================================================================

// NewPerson is the input to AddPerson.
type NewPerson struct {
	Name           string
	CustomID       string
	Photo          string
	InitialDeposit decimal.Decimal
}

// NewProduct is the input to AddProduct.
type NewProduct struct {
	Name              string
	Barcode           string
	Price             decimal.Decimal
	Stock             int
	CostPrice         *decimal.Decimal
	PurchasedQuantity *int
}

// PersonPatch lists the fields UpdatePerson may change. Nil means unchanged.
// Balance is not patchable: it moves only through deposits and entries.
type PersonPatch struct {
	Name           *string
	CustomID       *string
	Photo          *string
	InitialDeposit *decimal.Decimal
}

// ProductPatch lists the fields UpdateProduct may change. Nil means unchanged.
type ProductPatch struct {
	Name              *string
	Barcode           *string
	Price             *decimal.Decimal
	Stock             *int
	CostPrice         *decimal.Decimal
	PurchasedQuantity *int
}

// BrandingPatch lists the branding fields UpdateBranding may change.
type BrandingPatch struct {
	OrganizationName *string
	LogoURL          *string
	ShowLogo         *bool
}

// LineRequest asks for quantity units of a product in CommitPurchase.
type LineRequest struct {
	ProductID string
	Quantity  int
}

// =============================================================================
// SNAPSHOT
// =============================================================================

// Snapshot is a read-only deep copy of the ledger state.
// Version identifies the mutation count the copy was taken at.
type Snapshot struct {
	Version  uint64    `json:"-"`
	People   []Person  `json:"people"`
	Products []Product `json:"products"`
	Branding Branding  `json:"branding"`
}

// PeopleWithBalance returns the people whose balance is strictly positive.
func (s Snapshot) PeopleWithBalance() []Person {
	var out []Person
	for _, p := range s.People {
		if p.Balance.IsPositive() {
			out = append(out, p)
		}
	}
	return out
}

// OutstandingBalance sums the strictly positive balances.
func (s Snapshot) OutstandingBalance() decimal.Decimal {
	total := decimal.Zero
	for _, p := range s.People {
		if p.Balance.IsPositive() {
			total = total.Add(p.Balance)
		}
	}
	return Round2(total)
}

// ProductsWithStock counts products that still have units.
func (s Snapshot) ProductsWithStock() int {
	n := 0
	for _, p := range s.Products {
		if p.Stock > 0 {
			n++
		}
	}
	return n
}
