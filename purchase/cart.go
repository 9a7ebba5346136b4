package purchase

import (
	"github.com/shopspring/decimal"
	"github.com/warp/canteen-ledger/ledger"
)

// Catalog resolves products for the cart. *ledger.Ledger satisfies it.
type Catalog interface {
	Product(id string) (ledger.Product, error)
	ProductByBarcode(code string) (ledger.Product, error)
}

// Committer records a finished cart. *ledger.Ledger satisfies it.
type Committer interface {
	CommitPurchase(personID string, lines []ledger.LineRequest) (ledger.Purchase, error)
}

// Line is one product in the cart, priced at the product's current price.
type Line struct {
	ProductID   string          `json:"productId"`
	ProductName string          `json:"productName"`
	Quantity    int             `json:"quantity"`
	Price       decimal.Decimal `json:"price"`
	Total       decimal.Decimal `json:"total"`
	Stock       int             `json:"stock"`
}

// Cart is a transient, single-cashier list of lines. Not safe for
// concurrent use.
type Cart struct {
	catalog Catalog
	lines   []Line
}

func NewCart(catalog Catalog) *Cart {
	return &Cart{catalog: catalog}
}

// =============================================================================
// ADDING
// =============================================================================

// Scan parses input with the entry grammar, looks the code up by barcode
// and adds the quantity, merging with an existing line. The line is
// rejected, not clamped, when the merged quantity would exceed stock.
func (c *Cart) Scan(input string) (Line, error) {
	qty, code, err := ParseEntry(input)
	if err != nil {
		return Line{}, err
	}
	product, err := c.catalog.ProductByBarcode(code)
	if err != nil {
		return Line{}, err
	}
	return c.add(product, qty)
}

// Add puts qty units of a product, picked by id, in the cart.
func (c *Cart) Add(productID string, qty int) (Line, error) {
	if qty <= 0 {
		return Line{}, &ledger.ValidationError{Field: "quantity", Reason: "must be positive"}
	}
	product, err := c.catalog.Product(productID)
	if err != nil {
		return Line{}, &ledger.ProductNotFoundError{Code: productID}
	}
	return c.add(product, qty)
}

func (c *Cart) add(product ledger.Product, qty int) (Line, error) {
	idx := c.index(product.ID)
	current := 0
	if idx >= 0 {
		current = c.lines[idx].Quantity
	}
	if current+qty > product.Stock {
		return Line{}, &ledger.InsufficientStockError{
			ProductID:   product.ID,
			ProductName: product.Name,
			Available:   product.Stock,
			Requested:   current + qty,
		}
	}
	line := newLine(product, current+qty)
	if idx >= 0 {
		c.lines[idx] = line
	} else {
		c.lines = append(c.lines, line)
	}
	return line, nil
}

// =============================================================================
// EDITING
// =============================================================================

// SetQuantity clamps qty to [0, stock] and applies it; zero removes the
// line. It returns the quantity actually kept.
func (c *Cart) SetQuantity(productID string, qty int) (int, error) {
	idx := c.index(productID)
	if idx < 0 {
		return 0, &ledger.NotFoundError{Entity: "item", ID: productID}
	}
	product, err := c.catalog.Product(productID)
	if err != nil {
		c.Remove(productID)
		return 0, &ledger.ProductNotFoundError{Code: productID}
	}
	if qty > product.Stock {
		qty = product.Stock
	}
	if qty <= 0 {
		c.Remove(productID)
		return 0, nil
	}
	c.lines[idx] = newLine(product, qty)
	return qty, nil
}

// Remove drops a line. Unknown ids are ignored.
func (c *Cart) Remove(productID string) {
	if idx := c.index(productID); idx >= 0 {
		c.lines = append(c.lines[:idx], c.lines[idx+1:]...)
	}
}

func (c *Cart) Clear() {
	c.lines = nil
}

// =============================================================================
// READING
// =============================================================================

func (c *Cart) Lines() []Line {
	return append([]Line(nil), c.lines...)
}

func (c *Cart) Empty() bool {
	return len(c.lines) == 0
}

// Total is round2 of the sum of the rounded line totals, the same value
// CommitPurchase will charge.
func (c *Cart) Total() decimal.Decimal {
	total := decimal.Zero
	for _, l := range c.lines {
		total = total.Add(l.Total)
	}
	return ledger.Round2(total)
}

// CanAfford is the advisory balance check.
func (c *Cart) CanAfford(balance decimal.Decimal) bool {
	return ledger.Covers(ledger.Round2(balance), c.Total())
}

// Requests converts the cart into commit lines.
func (c *Cart) Requests() []ledger.LineRequest {
	out := make([]ledger.LineRequest, len(c.lines))
	for i, l := range c.lines {
		out[i] = ledger.LineRequest{ProductID: l.ProductID, Quantity: l.Quantity}
	}
	return out
}

// Commit submits the cart as one purchase and clears it on success. On
// failure the cart is left as it was so the cashier can fix it.
func (c *Cart) Commit(committer Committer, personID string) (ledger.Purchase, error) {
	if c.Empty() {
		return ledger.Purchase{}, &ledger.ValidationError{Field: "items", Reason: "cart is empty"}
	}
	p, err := committer.CommitPurchase(personID, c.Requests())
	if err != nil {
		return ledger.Purchase{}, err
	}
	c.Clear()
	return p, nil
}

func (c *Cart) index(productID string) int {
	for i := range c.lines {
		if c.lines[i].ProductID == productID {
			return i
		}
	}
	return -1
}

func newLine(p ledger.Product, qty int) Line {
	return Line{
		ProductID:   p.ID,
		ProductName: p.Name,
		Quantity:    qty,
		Price:       p.Price,
		Total:       ledger.LineTotal(p.Price, qty),
		Stock:       p.Stock,
	}
}
