/*
errors.go - Error taxonomy for the ledger core

PURPOSE:
  Every ledger operation fails fast with one of these errors and never
  applies partial state. Callers classify with errors.Is against the
  sentinels, or errors.As against the structured types for details.

ERROR CATEGORIES:
  1. Input errors      - ValidationError, InvalidAmountError
  2. Lookup errors     - NotFoundError, ProductNotFoundError
  3. Constraint errors - DuplicateBarcodeError, InsufficientStockError,
                         InsufficientBalanceError
  4. Sequencing errors - ErrConcurrentModification

SEE ALSO:
  - ledger.go: Returns these errors
  - api/handlers.go: Maps them to HTTP status codes
*/
package ledger

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrValidation is returned for bad input shape or range.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound is returned for an unknown person, product or purchase id.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateBarcode is returned when a non-empty barcode is already taken.
	ErrDuplicateBarcode = errors.New("duplicate barcode")

	// ErrInsufficientStock is returned when a quantity exceeds current stock.
	ErrInsufficientStock = errors.New("insufficient stock")

	// ErrInsufficientBalance is returned when a total exceeds balance + tolerance.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrInvalidAmount is returned for a special transaction outside (0, balance].
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrProductNotFound is returned when a product id or code does not resolve.
	ErrProductNotFound = errors.New("product not found")

	// ErrConcurrentModification is returned when the ledger changed between
	// the snapshot an operation was planned on and the operation itself.
	ErrConcurrentModification = errors.New("concurrent modification detected")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError describes a rejected field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// NotFoundError names the missing entity.
type NotFoundError struct {
	Entity string // "person", "product", "purchase", "item"
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Entity, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// DuplicateBarcodeError names the product already holding the barcode.
type DuplicateBarcodeError struct {
	Barcode    string
	ExistingID string
}

func (e *DuplicateBarcodeError) Error() string {
	return fmt.Sprintf("barcode %q already used by product %s", e.Barcode, e.ExistingID)
}

func (e *DuplicateBarcodeError) Unwrap() error { return ErrDuplicateBarcode }

// InsufficientStockError provides details about a stock shortage.
type InsufficientStockError struct {
	ProductID   string
	ProductName string
	Available   int
	Requested   int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s: available %d, requested %d",
		e.ProductName, e.Available, e.Requested)
}

func (e *InsufficientStockError) Unwrap() error { return ErrInsufficientStock }

// InsufficientBalanceError provides details about a balance shortage.
type InsufficientBalanceError struct {
	PersonID  string
	Available decimal.Decimal
	Requested decimal.Decimal
	Shortfall decimal.Decimal
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance: available %s, requested %s, shortfall %s",
		FormatMoney(e.Available), FormatMoney(e.Requested), FormatMoney(e.Shortfall))
}

func (e *InsufficientBalanceError) Unwrap() error { return ErrInsufficientBalance }

// InvalidAmountError is returned when a special transaction amount is not
// in (0, balance].
type InvalidAmountError struct {
	Amount  decimal.Decimal
	Balance decimal.Decimal
}

func (e *InvalidAmountError) Error() string {
	return fmt.Sprintf("invalid amount %s (balance %s)", FormatMoney(e.Amount), FormatMoney(e.Balance))
}

func (e *InvalidAmountError) Unwrap() error { return ErrInvalidAmount }

// ProductNotFoundError is a product id or scanned code that resolves to nothing.
type ProductNotFoundError struct {
	Code string
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("no product matches %q", e.Code)
}

func (e *ProductNotFoundError) Unwrap() error { return ErrProductNotFound }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvalidAmount)
}

// IsNotFound returns true if the error indicates a missing entity.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrProductNotFound)
}

// IsConflict returns true if the request is well-formed but collides with
// current ledger state.
func IsConflict(err error) bool {
	return errors.Is(err, ErrDuplicateBarcode) ||
		errors.Is(err, ErrInsufficientStock) ||
		errors.Is(err, ErrInsufficientBalance) ||
		errors.Is(err, ErrConcurrentModification)
}
