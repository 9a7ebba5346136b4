/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the ledger's domain model (and its camelCase backup format) from the
  external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

TYPES:
  People:
    PersonDTO, CreatePersonRequest, UpdatePersonRequest

  Purchases:
    PurchaseDTO, PurchaseItemDTO, PurchaseRequest, LineDTO,
    QuantityRequest, AmountRequest, QuoteResponse

  Products:
    ProductDTO, CreateProductRequest, UpdateProductRequest, LookupResponse

  Settlement:
    SettlementStatusDTO, SettleRequest, SettleResponse

  Branding / Scenarios:
    BrandingDTO, UpdateBrandingRequest, ScenarioDTO, LoadScenarioRequest

MONEY:
  Amounts are decimal.Decimal. They are written as JSON strings ("12.50")
  and accepted either as strings or as JSON numbers.

VALIDATION:
  Validation is done by the ledger, not in DTOs. DTOs are pure data carriers.
  Optional fields are pointers: nil means "not sent".

SEE ALSO:
  - handlers.go: Uses these types
  - ledger/types.go: Domain types
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/canteen-ledger/ledger"
	"github.com/warp/canteen-ledger/purchase"
	"github.com/warp/canteen-ledger/settlement"
)

const dateTimeLayout = time.RFC3339

// =============================================================================
// PEOPLE
// =============================================================================

// PersonDTO represents a person in API responses. Purchases are only
// filled in on single-person responses.
type PersonDTO struct {
	ID             string          `json:"id"`
	CustomID       string          `json:"custom_id,omitempty"`
	Name           string          `json:"name"`
	Photo          string          `json:"photo,omitempty"`
	InitialDeposit decimal.Decimal `json:"initial_deposit"`
	Balance        decimal.Decimal `json:"balance"`
	TotalSpent     decimal.Decimal `json:"total_spent"`
	PurchaseCount  int             `json:"purchase_count"`
	Purchases      []PurchaseDTO   `json:"purchases,omitempty"`
}

// CreatePersonRequest is the request to register a person.
type CreatePersonRequest struct {
	Name           string          `json:"name"`
	CustomID       string          `json:"custom_id"`
	Photo          string          `json:"photo"`
	InitialDeposit decimal.Decimal `json:"initial_deposit"`
}

// UpdatePersonRequest is a partial update. Balance cannot be sent: it
// follows the initial deposit.
type UpdatePersonRequest struct {
	Name           *string          `json:"name"`
	CustomID       *string          `json:"custom_id"`
	Photo          *string          `json:"photo"`
	InitialDeposit *decimal.Decimal `json:"initial_deposit"`
}

// =============================================================================
// PURCHASES
// =============================================================================

// PurchaseDTO represents one ledger entry.
type PurchaseDTO struct {
	ID    string            `json:"id"`
	Kind  ledger.EntryKind  `json:"kind"`
	Date  string            `json:"date"`
	Items []PurchaseItemDTO `json:"items"`
	Total decimal.Decimal   `json:"total"`
	// Editable is false for special entries, whose lines cannot change.
	Editable bool `json:"editable"`
}

type PurchaseItemDTO struct {
	ProductID   string          `json:"product_id"`
	ProductName string          `json:"product_name"`
	Quantity    int             `json:"quantity"`
	Price       decimal.Decimal `json:"price"`
	Total       decimal.Decimal `json:"total"`
}

// LineDTO asks for a quantity of a product by id.
type LineDTO struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

// PurchaseRequest lists the cart. Items address products by id; Entries
// use the cashier grammar ("3*7891234", "7891234").
type PurchaseRequest struct {
	Items   []LineDTO `json:"items"`
	Entries []string  `json:"entries"`
}

// QuantityRequest sets a purchase line's quantity. Zero deletes the line.
type QuantityRequest struct {
	Quantity *int `json:"quantity"`
}

// AmountRequest carries a special transaction amount. A withdrawal without
// an amount closes the account.
type AmountRequest struct {
	Amount *decimal.Decimal `json:"amount"`
}

// QuoteResponse is the advisory pre-validation of a cart.
type QuoteResponse struct {
	Lines     []purchase.Line `json:"lines"`
	Total     decimal.Decimal `json:"total"`
	Balance   decimal.Decimal `json:"balance"`
	CanAfford bool            `json:"can_afford"`
}

// =============================================================================
// PRODUCTS
// =============================================================================

type ProductDTO struct {
	ID                string           `json:"id"`
	Barcode           string           `json:"barcode,omitempty"`
	Name              string           `json:"name"`
	Price             decimal.Decimal  `json:"price"`
	Stock             int              `json:"stock"`
	StockValue        decimal.Decimal  `json:"stock_value"`
	CostPrice         *decimal.Decimal `json:"cost_price,omitempty"`
	PurchasedQuantity *int             `json:"purchased_quantity,omitempty"`
}

type CreateProductRequest struct {
	Name              string           `json:"name"`
	Barcode           string           `json:"barcode"`
	Price             decimal.Decimal  `json:"price"`
	Stock             int              `json:"stock"`
	CostPrice         *decimal.Decimal `json:"cost_price"`
	PurchasedQuantity *int             `json:"purchased_quantity"`
}

type UpdateProductRequest struct {
	Name              *string          `json:"name"`
	Barcode           *string          `json:"barcode"`
	Price             *decimal.Decimal `json:"price"`
	Stock             *int             `json:"stock"`
	CostPrice         *decimal.Decimal `json:"cost_price"`
	PurchasedQuantity *int             `json:"purchased_quantity"`
}

// LookupResponse is a parsed cashier entry resolved to a product.
type LookupResponse struct {
	Quantity int        `json:"quantity"`
	Product  ProductDTO `json:"product"`
}

// =============================================================================
// SETTLEMENT
// =============================================================================

// SettlementStatusDTO is what the confirmation screen shows.
type SettlementStatusDTO struct {
	State      string             `json:"state"`
	Summary    settlement.Summary `json:"summary"`
	LastResult *settlement.Result `json:"last_result,omitempty"`
}

// SettleRequest runs the whole settlement. Confirm must be true.
// Disposition may be omitted only when nobody has a balance left.
type SettleRequest struct {
	Disposition ledger.Disposition `json:"disposition"`
	Confirm     bool               `json:"confirm"`
}

// SettleResponse carries the result. Warning is set when the ledger was
// settled but the audit record could not be stored.
type SettleResponse struct {
	Result  settlement.Result `json:"result"`
	Warning string            `json:"warning,omitempty"`
}

// =============================================================================
// BRANDING / SCENARIOS
// =============================================================================

type BrandingDTO struct {
	OrganizationName string `json:"organization_name"`
	LogoURL          string `json:"logo_url"`
	ShowLogo         bool   `json:"show_logo"`
}

type UpdateBrandingRequest struct {
	OrganizationName *string `json:"organization_name"`
	LogoURL          *string `json:"logo_url"`
	ShowLogo         *bool   `json:"show_logo"`
}

// ScenarioDTO represents a demo data set.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func toPersonDTO(p ledger.Person, withPurchases bool) PersonDTO {
	dto := PersonDTO{
		ID:             p.ID,
		CustomID:       p.CustomID,
		Name:           p.Name,
		Photo:          p.Photo,
		InitialDeposit: p.InitialDeposit,
		Balance:        p.Balance,
		TotalSpent:     p.TotalSpent(),
		PurchaseCount:  len(p.Purchases),
	}
	if withPurchases {
		dto.Purchases = make([]PurchaseDTO, 0, len(p.Purchases))
		for _, pu := range p.Purchases {
			dto.Purchases = append(dto.Purchases, toPurchaseDTO(pu))
		}
	}
	return dto
}

func toPersonDTOs(people []ledger.Person) []PersonDTO {
	dtos := make([]PersonDTO, 0, len(people))
	for _, p := range people {
		dtos = append(dtos, toPersonDTO(p, false))
	}
	return dtos
}

func toPurchaseDTO(p ledger.Purchase) PurchaseDTO {
	items := make([]PurchaseItemDTO, 0, len(p.Items))
	for _, it := range p.Items {
		items = append(items, PurchaseItemDTO{
			ProductID:   it.ProductID,
			ProductName: it.ProductName,
			Quantity:    it.Quantity,
			Price:       it.Price,
			Total:       it.Total,
		})
	}
	return PurchaseDTO{
		ID:       p.ID,
		Kind:     p.Kind,
		Date:     p.Date.Format(dateTimeLayout),
		Items:    items,
		Total:    p.Total,
		Editable: !p.IsSpecial(),
	}
}

func toProductDTO(p ledger.Product) ProductDTO {
	return ProductDTO{
		ID:                p.ID,
		Barcode:           p.Barcode,
		Name:              p.Name,
		Price:             p.Price,
		Stock:             p.Stock,
		StockValue:        p.StockValue(),
		CostPrice:         p.CostPrice,
		PurchasedQuantity: p.PurchasedQuantity,
	}
}

func toProductDTOs(products []ledger.Product) []ProductDTO {
	dtos := make([]ProductDTO, 0, len(products))
	for _, p := range products {
		dtos = append(dtos, toProductDTO(p))
	}
	return dtos
}

func toBrandingDTO(b ledger.Branding) BrandingDTO {
	return BrandingDTO{
		OrganizationName: b.OrganizationName,
		LogoURL:          b.LogoURL,
		ShowLogo:         b.ShowLogo,
	}
}
