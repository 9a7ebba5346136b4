/*
handlers.go - HTTP API handlers for the canteen ledger

PURPOSE:
  Exposes the ledger, the purchase engine, the importer and the settlement
  engine via REST API. Handles HTTP request/response, JSON serialization,
  and delegates to domain logic.

ENDPOINTS:
  People:
    GET    /api/people                   List people (?q= filters by name/custom id)
    POST   /api/people                   Register person
    GET    /api/people/{id}              Person with purchase history
    PATCH  /api/people/{id}              Partial update
    DELETE /api/people/{id}              Delete person and history

  Purchases:
    POST   /api/people/{id}/purchases                               Commit cart
    POST   /api/people/{id}/cart/quote                              Price cart (advisory)
    DELETE /api/people/{id}/purchases/{purchaseID}                  Refund entry
    DELETE /api/people/{id}/purchases/{purchaseID}/items/{productID} Remove line
    PUT    /api/people/{id}/purchases/{purchaseID}/items/{productID} Set line quantity
    POST   /api/people/{id}/withdrawals                             Withdrawal (default: full balance)
    POST   /api/people/{id}/offers                                  Missionary offer

  Products:
    GET    /api/products                 List products
    POST   /api/products                 Create product
    GET    /api/products/lookup?code=    Resolve "qty*code" entry
    GET    /api/products/search?q=       In-stock search by name/barcode
    GET    /api/products/{id}            Get product
    PATCH  /api/products/{id}            Partial update
    DELETE /api/products/{id}            Delete product

  Import / Backup / Branding / Reports:
    POST   /api/import/products?on_conflict=update|skip
    POST   /api/import/people
    GET    /api/backup                   Download full-state bundle
    POST   /api/restore                  Replace state from bundle
    GET    /api/branding, PUT /api/branding
    GET    /api/reports/{kind}?format=csv|xlsx

  Settlement:
    GET    /api/settlement               State and summary
    POST   /api/settlement               Run settlement
    GET    /api/settlement/history       Stored settlement records

ARCHITECTURE:
  Handler struct holds all dependencies:
  - Ledger: In-memory state, single source of truth
  - Settlement: Settlement state machine
  - Recorder: Settlement history

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Person, product or purchase not found
  - 409: Duplicate barcode, stock/balance conflicts, concurrent change,
         settlement step out of order
  - 422: Special transaction amount outside (0, balance]
  - 500: Internal errors

SECURITY NOTE:
  No authentication. The server is meant to run on the canteen's own
  machine.

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo data sets
  - server.go: Router setup and middleware
*/
package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/warp/canteen-ledger/importer"
	"github.com/warp/canteen-ledger/ledger"
	"github.com/warp/canteen-ledger/purchase"
	"github.com/warp/canteen-ledger/report"
	"github.com/warp/canteen-ledger/settlement"
)

// maxUploadSize bounds CSV imports and restore bundles.
const maxUploadSize = 32 << 20

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Ledger     *ledger.Ledger
	Settlement *settlement.Engine
	Recorder   ledger.SettlementRecorder

	now func() time.Time

	// Track currently loaded scenario
	mu              sync.Mutex
	currentScenario string
}

// NewHandler creates a new handler.
func NewHandler(l *ledger.Ledger, engine *settlement.Engine, recorder ledger.SettlementRecorder) *Handler {
	return &Handler{
		Ledger:     l,
		Settlement: engine,
		Recorder:   recorder,
		now:        time.Now,
	}
}

// =============================================================================
// PEOPLE ENDPOINTS
// =============================================================================

// ListPeople returns all people, optionally filtered.
// GET /api/people?q=
func (h *Handler) ListPeople(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeJSON(w, http.StatusOK, toPersonDTOs(h.Ledger.People()))
		return
	}
	writeJSON(w, http.StatusOK, toPersonDTOs(h.Ledger.SearchPeople(q)))
}

// CreatePerson registers a person with an initial deposit.
// POST /api/people
func (h *Handler) CreatePerson(w http.ResponseWriter, r *http.Request) {
	var req CreatePersonRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	p, err := h.Ledger.AddPerson(ledger.NewPerson{
		Name:           req.Name,
		CustomID:       req.CustomID,
		Photo:          req.Photo,
		InitialDeposit: req.InitialDeposit,
	})
	if err != nil {
		writeLedgerError(w, "Failed to create person", err)
		return
	}

	writeJSON(w, http.StatusCreated, toPersonDTO(p, true))
}

// GetPerson returns a person with the full purchase history.
// GET /api/people/{id}
func (h *Handler) GetPerson(w http.ResponseWriter, r *http.Request) {
	p, err := h.Ledger.Person(chi.URLParam(r, "id"))
	if err != nil {
		writeLedgerError(w, "Person not found", err)
		return
	}
	writeJSON(w, http.StatusOK, toPersonDTO(p, true))
}

// UpdatePerson applies a partial update.
// PATCH /api/people/{id}
func (h *Handler) UpdatePerson(w http.ResponseWriter, r *http.Request) {
	var req UpdatePersonRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	p, err := h.Ledger.UpdatePerson(chi.URLParam(r, "id"), ledger.PersonPatch{
		Name:           req.Name,
		CustomID:       req.CustomID,
		Photo:          req.Photo,
		InitialDeposit: req.InitialDeposit,
	})
	if err != nil {
		writeLedgerError(w, "Failed to update person", err)
		return
	}

	writeJSON(w, http.StatusOK, toPersonDTO(p, true))
}

// DeletePerson removes a person and their history. Stock is not restored.
// DELETE /api/people/{id}
func (h *Handler) DeletePerson(w http.ResponseWriter, r *http.Request) {
	if err := h.Ledger.DeletePerson(chi.URLParam(r, "id")); err != nil {
		writeLedgerError(w, "Failed to delete person", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "deleted"})
}

// =============================================================================
// PURCHASE ENDPOINTS
// =============================================================================

// buildCart fills a cart from the request, in the order items then entries.
func (h *Handler) buildCart(req PurchaseRequest) (*purchase.Cart, error) {
	cart := purchase.NewCart(h.Ledger)
	for _, item := range req.Items {
		if _, err := cart.Add(item.ProductID, item.Quantity); err != nil {
			return nil, err
		}
	}
	for _, entry := range req.Entries {
		if _, err := cart.Scan(entry); err != nil {
			return nil, err
		}
	}
	return cart, nil
}

// QuoteCart prices a cart against the person's balance without committing.
// The answer is advisory: CreatePurchase validates again.
// POST /api/people/{id}/cart/quote
func (h *Handler) QuoteCart(w http.ResponseWriter, r *http.Request) {
	person, err := h.Ledger.Person(chi.URLParam(r, "id"))
	if err != nil {
		writeLedgerError(w, "Person not found", err)
		return
	}

	var req PurchaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	cart, err := h.buildCart(req)
	if err != nil {
		writeLedgerError(w, "Failed to price cart", err)
		return
	}

	lines := cart.Lines()
	if lines == nil {
		lines = []purchase.Line{}
	}
	writeJSON(w, http.StatusOK, QuoteResponse{
		Lines:     lines,
		Total:     cart.Total(),
		Balance:   person.Balance,
		CanAfford: cart.CanAfford(person.Balance),
	})
}

// CreatePurchase commits a cart as one purchase.
// POST /api/people/{id}/purchases
func (h *Handler) CreatePurchase(w http.ResponseWriter, r *http.Request) {
	var req PurchaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	cart, err := h.buildCart(req)
	if err != nil {
		writeLedgerError(w, "Failed to build cart", err)
		return
	}

	p, err := cart.Commit(h.Ledger, chi.URLParam(r, "id"))
	if err != nil {
		writeLedgerError(w, "Failed to commit purchase", err)
		return
	}

	writeJSON(w, http.StatusCreated, toPurchaseDTO(p))
}

// DeletePurchase refunds an entry. Sale lines return their stock.
// DELETE /api/people/{id}/purchases/{purchaseID}
func (h *Handler) DeletePurchase(w http.ResponseWriter, r *http.Request) {
	personID := chi.URLParam(r, "id")
	if err := h.Ledger.DeletePurchase(personID, chi.URLParam(r, "purchaseID")); err != nil {
		writeLedgerError(w, "Failed to delete purchase", err)
		return
	}
	h.writePerson(w, personID)
}

// DeletePurchaseItem removes one line from a sale.
// DELETE /api/people/{id}/purchases/{purchaseID}/items/{productID}
func (h *Handler) DeletePurchaseItem(w http.ResponseWriter, r *http.Request) {
	personID := chi.URLParam(r, "id")
	err := h.Ledger.DeletePurchaseItem(personID, chi.URLParam(r, "purchaseID"), chi.URLParam(r, "productID"))
	if err != nil {
		writeLedgerError(w, "Failed to delete purchase item", err)
		return
	}
	h.writePerson(w, personID)
}

// SetPurchaseItemQuantity edits a sale line at its original price.
// PUT /api/people/{id}/purchases/{purchaseID}/items/{productID}
func (h *Handler) SetPurchaseItemQuantity(w http.ResponseWriter, r *http.Request) {
	var req QuantityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Quantity == nil {
		writeError(w, http.StatusBadRequest, "quantity is required", nil)
		return
	}

	personID := chi.URLParam(r, "id")
	err := h.Ledger.SetPurchaseItemQuantity(personID, chi.URLParam(r, "purchaseID"), chi.URLParam(r, "productID"), *req.Quantity)
	if err != nil {
		writeLedgerError(w, "Failed to update quantity", err)
		return
	}
	h.writePerson(w, personID)
}

// CreateWithdrawal records a cash withdrawal. Without an amount the whole
// balance is withdrawn ("close account").
// POST /api/people/{id}/withdrawals
func (h *Handler) CreateWithdrawal(w http.ResponseWriter, r *http.Request) {
	h.recordSpecial(w, r, ledger.KindWithdrawal, true)
}

// CreateOffer records a missionary offer.
// POST /api/people/{id}/offers
func (h *Handler) CreateOffer(w http.ResponseWriter, r *http.Request) {
	h.recordSpecial(w, r, ledger.KindMissionaryOffer, false)
}

func (h *Handler) recordSpecial(w http.ResponseWriter, r *http.Request, kind ledger.EntryKind, defaultFull bool) {
	personID := chi.URLParam(r, "id")

	var req AmountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	if req.Amount == nil {
		if !defaultFull {
			writeError(w, http.StatusBadRequest, "amount is required", nil)
			return
		}
		person, err := h.Ledger.Person(personID)
		if err != nil {
			writeLedgerError(w, "Person not found", err)
			return
		}
		req.Amount = &person.Balance
	}

	p, err := h.Ledger.RecordSpecialTransaction(personID, kind, *req.Amount)
	if err != nil {
		writeLedgerError(w, "Failed to record transaction", err)
		return
	}

	writeJSON(w, http.StatusCreated, toPurchaseDTO(p))
}

func (h *Handler) writePerson(w http.ResponseWriter, personID string) {
	p, err := h.Ledger.Person(personID)
	if err != nil {
		// The purchase edit succeeded; only the read-back failed.
		writeJSON(w, http.StatusOK, map[string]any{"status": "updated"})
		return
	}
	writeJSON(w, http.StatusOK, toPersonDTO(p, true))
}

// =============================================================================
// PRODUCT ENDPOINTS
// =============================================================================

// ListProducts returns all products.
// GET /api/products
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, toProductDTOs(h.Ledger.Products()))
}

// CreateProduct adds a product. A non-empty barcode must be unique.
// POST /api/products
func (h *Handler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var req CreateProductRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	p, err := h.Ledger.AddProduct(ledger.NewProduct{
		Name:              req.Name,
		Barcode:           req.Barcode,
		Price:             req.Price,
		Stock:             req.Stock,
		CostPrice:         req.CostPrice,
		PurchasedQuantity: req.PurchasedQuantity,
	})
	if err != nil {
		writeLedgerError(w, "Failed to create product", err)
		return
	}

	writeJSON(w, http.StatusCreated, toProductDTO(p))
}

// GetProduct returns one product.
// GET /api/products/{id}
func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.Ledger.Product(chi.URLParam(r, "id"))
	if err != nil {
		writeLedgerError(w, "Product not found", err)
		return
	}
	writeJSON(w, http.StatusOK, toProductDTO(p))
}

// UpdateProduct applies a partial update. Existing purchase lines keep
// their snapshotted name and price.
// PATCH /api/products/{id}
func (h *Handler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	var req UpdateProductRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	p, err := h.Ledger.UpdateProduct(chi.URLParam(r, "id"), ledger.ProductPatch{
		Name:              req.Name,
		Barcode:           req.Barcode,
		Price:             req.Price,
		Stock:             req.Stock,
		CostPrice:         req.CostPrice,
		PurchasedQuantity: req.PurchasedQuantity,
	})
	if err != nil {
		writeLedgerError(w, "Failed to update product", err)
		return
	}

	writeJSON(w, http.StatusOK, toProductDTO(p))
}

// DeleteProduct removes a product from the catalog.
// DELETE /api/products/{id}
func (h *Handler) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	if err := h.Ledger.DeleteProduct(chi.URLParam(r, "id")); err != nil {
		writeLedgerError(w, "Failed to delete product", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "deleted"})
}

// LookupProduct resolves a cashier entry such as "3*7891234".
// GET /api/products/lookup?code=
func (h *Handler) LookupProduct(w http.ResponseWriter, r *http.Request) {
	qty, code, err := purchase.ParseEntry(r.URL.Query().Get("code"))
	if err != nil {
		writeLedgerError(w, "Invalid entry", err)
		return
	}

	p, err := h.Ledger.ProductByBarcode(code)
	if err != nil {
		writeLedgerError(w, "Product not found", err)
		return
	}

	writeJSON(w, http.StatusOK, LookupResponse{Quantity: qty, Product: toProductDTO(p)})
}

// SearchProducts filters in-stock products by name or barcode.
// GET /api/products/search?q=
func (h *Handler) SearchProducts(w http.ResponseWriter, r *http.Request) {
	found := purchase.Search(h.Ledger.Products(), r.URL.Query().Get("q"))
	writeJSON(w, http.StatusOK, toProductDTOs(found))
}

// =============================================================================
// IMPORT ENDPOINTS
// =============================================================================

// ImportProducts loads a product CSV. Rows whose barcode already exists are
// updated or skipped according to on_conflict (default skip).
// POST /api/import/products?on_conflict=update|skip
func (h *Handler) ImportProducts(w http.ResponseWriter, r *http.Request) {
	var policy importer.ConflictFunc
	switch r.URL.Query().Get("on_conflict") {
	case "", "skip":
		policy = importer.SkipOnConflict
	case "update":
		policy = importer.UpdateOnConflict
	default:
		writeError(w, http.StatusBadRequest, "on_conflict must be update or skip", nil)
		return
	}

	rows, err := readUpload(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid CSV", err)
		return
	}

	writeJSON(w, http.StatusOK, importer.ImportProducts(h.Ledger, rows, policy))
}

// ImportPeople loads a people CSV. Names already registered are rejected
// per row.
// POST /api/import/people
func (h *Handler) ImportPeople(w http.ResponseWriter, r *http.Request) {
	rows, err := readUpload(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid CSV", err)
		return
	}

	writeJSON(w, http.StatusOK, importer.ImportPeople(h.Ledger, rows))
}

// readUpload accepts either a raw CSV body or a multipart form with a
// "file" field.
func readUpload(w http.ResponseWriter, r *http.Request) ([]importer.Row, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		file, _, err := r.FormFile("file")
		if err != nil {
			return nil, fmt.Errorf("read form file: %w", err)
		}
		defer file.Close()
		return importer.ReadCSV(file)
	}
	return importer.ReadCSV(r.Body)
}

// =============================================================================
// BACKUP ENDPOINTS
// =============================================================================

// Backup downloads the full state as one JSON bundle.
// GET /api/backup
func (h *Handler) Backup(w http.ResponseWriter, r *http.Request) {
	now := h.now()
	data, err := ledger.EncodeBundle(h.Ledger.Snapshot(), now)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to encode backup", err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, backupFileName(now)))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// Restore replaces the whole state with an uploaded bundle. Nothing is
// merged; an invalid bundle leaves the ledger untouched.
// POST /api/restore
func (h *Handler) Restore(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxUploadSize))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to read backup", err)
		return
	}

	snap, err := ledger.DecodeBundle(data)
	if err != nil {
		writeLedgerError(w, "Invalid backup", err)
		return
	}
	if err := h.Ledger.Restore(snap); err != nil {
		writeLedgerError(w, "Failed to restore backup", err)
		return
	}

	h.setScenario("")
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "restored",
		"people":   len(snap.People),
		"products": len(snap.Products),
	})
}

// =============================================================================
// BRANDING ENDPOINTS
// =============================================================================

// GetBranding returns the organisation branding.
// GET /api/branding
func (h *Handler) GetBranding(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, toBrandingDTO(h.Ledger.Branding()))
}

// UpdateBranding applies a partial branding update.
// PUT /api/branding
func (h *Handler) UpdateBranding(w http.ResponseWriter, r *http.Request) {
	var req UpdateBrandingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	b, err := h.Ledger.UpdateBranding(ledger.BrandingPatch{
		OrganizationName: req.OrganizationName,
		LogoURL:          req.LogoURL,
		ShowLogo:         req.ShowLogo,
	})
	if err != nil {
		writeLedgerError(w, "Failed to update branding", err)
		return
	}

	writeJSON(w, http.StatusOK, toBrandingDTO(b))
}

// =============================================================================
// REPORT ENDPOINTS
// =============================================================================

// GetReport renders an on-demand report from the current snapshot.
// GET /api/reports/{kind}?format=csv|xlsx
func (h *Handler) GetReport(w http.ResponseWriter, r *http.Request) {
	renderer, err := report.RendererFor(r.URL.Query().Get("format"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Unsupported format", err)
		return
	}

	table, err := report.Build(chi.URLParam(r, "kind"), h.Ledger.Snapshot())
	if err != nil {
		writeLedgerError(w, "Unknown report", err)
		return
	}

	// Render fully before writing so a failure can still produce JSON.
	var buf bytes.Buffer
	if err := renderer.Render(&buf, table); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to render report", err)
		return
	}

	name := fmt.Sprintf("%s-%s.%s", table.Name, h.now().Format("2006-01-02"), renderer.Format())
	w.Header().Set("Content-Type", renderer.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, name))
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

// =============================================================================
// SETTLEMENT ENDPOINTS
// =============================================================================

// GetSettlement returns the engine state and what settling now would do.
// GET /api/settlement
func (h *Handler) GetSettlement(w http.ResponseWriter, r *http.Request) {
	dto := SettlementStatusDTO{
		State:   h.Settlement.State().String(),
		Summary: h.Settlement.Summary(),
	}
	if res, ok := h.Settlement.LastResult(); ok {
		dto.LastResult = &res
	}
	writeJSON(w, http.StatusOK, dto)
}

// Settle closes the period: reports first, then balances are paid out and
// stock is cleared.
// POST /api/settlement
func (h *Handler) Settle(w http.ResponseWriter, r *http.Request) {
	var req SettleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if !req.Confirm {
		writeError(w, http.StatusBadRequest, "Settlement must be confirmed", nil)
		return
	}
	if req.Disposition == "" {
		if h.Settlement.Summary().NeedsDisposition {
			writeError(w, http.StatusBadRequest, "disposition is required while balances remain", nil)
			return
		}
		req.Disposition = ledger.DispositionWithdrawal
	}

	result, err := h.Settlement.Run(r.Context(), req.Disposition)
	if err != nil {
		if result.RecordID != "" {
			// Settled, but the audit record was not stored.
			writeJSON(w, http.StatusOK, SettleResponse{Result: result, Warning: err.Error()})
			return
		}
		writeLedgerError(w, "Settlement failed", err)
		return
	}

	writeJSON(w, http.StatusOK, SettleResponse{Result: result})
}

// ListSettlements returns stored settlement records, newest first.
// GET /api/settlement/history
func (h *Handler) ListSettlements(w http.ResponseWriter, r *http.Request) {
	records, err := h.Recorder.ListSettlements(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list settlements", err)
		return
	}
	if records == nil {
		records = []ledger.SettlementRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeLedgerError maps domain errors to a status and a stable code.
func writeLedgerError(w http.ResponseWriter, message string, err error) {
	status, code := classify(err)
	writeJSON(w, status, ErrorResponse{Error: message, Code: code, Details: err.Error()})
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, ledger.ErrInvalidAmount):
		return http.StatusUnprocessableEntity, "invalid_amount"
	case ledger.IsClientError(err):
		return http.StatusBadRequest, "validation"
	case ledger.IsNotFound(err):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, ledger.ErrDuplicateBarcode):
		return http.StatusConflict, "duplicate_barcode"
	case errors.Is(err, ledger.ErrInsufficientStock):
		return http.StatusConflict, "insufficient_stock"
	case errors.Is(err, ledger.ErrInsufficientBalance):
		return http.StatusConflict, "insufficient_balance"
	case errors.Is(err, ledger.ErrConcurrentModification):
		return http.StatusConflict, "concurrent_modification"
	case errors.Is(err, settlement.ErrWrongState):
		return http.StatusConflict, "wrong_state"
	}
	return http.StatusInternalServerError, "internal"
}

func (h *Handler) setScenario(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.currentScenario = id
}

func (h *Handler) scenario() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.currentScenario
}
