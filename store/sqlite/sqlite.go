/*
Package sqlite provides a SQLite-backed ledger.Persister and
ledger.SettlementRecorder.

PURPOSE:
  The ledger keeps its state in memory. This store is where that state
  lands after every mutation and where it is read back at start-up.

INTERFACES IMPLEMENTED:
  ledger.Persister:          Load / Save of the full snapshot
  ledger.SettlementRecorder: Append-only settlement history

SAVE SEMANTICS:
  Save replaces People, Products and Branding in one SQL transaction.
  A failed save leaves the previous state intact.

APPEND-ONLY ENFORCEMENT:
  The settlements table is insert-only:
  - No UPDATE or DELETE statements are issued against it
  - Triggers abort any UPDATE or DELETE that reaches it anyway

KEY TABLES:
  people:         One row per person, ordered by position
  products:       One row per product, ordered by position
  purchases:      Ledger entries, tagged by kind
  purchase_items: Lines of each entry
  branding:       Single row (id = 1)
  settlements:    Immutable settlement records as JSON

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging):
  - Readers don't block the writer
  - Better crash recovery

USAGE:
  store, err := sqlite.New("./data/cantina.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  snap, err := store.Load(ctx)
  led.Restore(snap)
  led.Subscribe(ledger.Autosave(store, log.Printf))

SEE ALSO:
  - ledger/persist.go: Interface definitions
  - ledger/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/warp/canteen-ledger/ledger"
)

// Store implements ledger.Persister and ledger.SettlementRecorder.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// An in-memory database lives and dies with its connection.
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS people (
		id TEXT PRIMARY KEY,
		position INTEGER NOT NULL,
		custom_id TEXT,
		name TEXT NOT NULL,
		photo TEXT,
		initial_deposit TEXT NOT NULL,
		balance TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS products (
		id TEXT PRIMARY KEY,
		position INTEGER NOT NULL,
		barcode TEXT,
		name TEXT NOT NULL,
		price TEXT NOT NULL,
		stock INTEGER NOT NULL CHECK (stock >= 0),
		cost_price TEXT,
		purchased_quantity INTEGER
	);

	-- Non-empty barcodes are unique
	CREATE UNIQUE INDEX IF NOT EXISTS idx_products_barcode
		ON products(barcode) WHERE barcode IS NOT NULL AND barcode != '';

	CREATE TABLE IF NOT EXISTS purchases (
		id TEXT PRIMARY KEY,
		person_id TEXT NOT NULL REFERENCES people(id) ON DELETE CASCADE,
		position INTEGER NOT NULL,
		kind TEXT NOT NULL,
		date TEXT NOT NULL,
		total TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_purchases_person
		ON purchases(person_id, position);

	CREATE TABLE IF NOT EXISTS purchase_items (
		purchase_id TEXT NOT NULL REFERENCES purchases(id) ON DELETE CASCADE,
		line INTEGER NOT NULL,
		product_id TEXT NOT NULL,
		product_name TEXT NOT NULL,
		quantity INTEGER NOT NULL CHECK (quantity > 0),
		price TEXT NOT NULL,
		total TEXT NOT NULL,
		PRIMARY KEY (purchase_id, line)
	);

	CREATE TABLE IF NOT EXISTS branding (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		organization_name TEXT NOT NULL,
		logo_url TEXT NOT NULL,
		show_logo BOOLEAN NOT NULL
	);

	-- Settlements (append-only audit history)
	CREATE TABLE IF NOT EXISTS settlements (
		id TEXT PRIMARY KEY,
		settled_at TEXT NOT NULL,
		disposition TEXT NOT NULL,
		record_json TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_settlements_settled_at
		ON settlements(settled_at);

	CREATE TRIGGER IF NOT EXISTS settlements_no_update
		BEFORE UPDATE ON settlements
		BEGIN SELECT RAISE(ABORT, 'settlements are append-only'); END;

	CREATE TRIGGER IF NOT EXISTS settlements_no_delete
		BEFORE DELETE ON settlements
		BEGIN SELECT RAISE(ABORT, 'settlements are append-only'); END;
	`

	if _, err := s.db.Exec(schema); err != nil {
		return err
	}

	// Columns added after the first release.
	return s.addColumnIfMissing("people", "photo", "TEXT")
}

func (s *Store) addColumnIfMissing(table, column, decl string) error {
	rows, err := s.db.Query("PRAGMA table_info(" + table + ")")
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			cid        int
			name, typ  string
			notNull    bool
			dflt       sql.NullString
			primaryKey int
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &dflt, &primaryKey); err != nil {
			return err
		}
		if name == column {
			return nil
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}
	rows.Close()

	_, err = s.db.Exec("ALTER TABLE " + table + " ADD COLUMN " + column + " " + decl)
	return err
}

// =============================================================================
// SNAPSHOT (ledger.Persister interface)
// =============================================================================

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Save replaces the stored state with snap atomically.
func (s *Store) Save(ctx context.Context, snap ledger.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, table := range []string{"purchase_items", "purchases", "people", "products"} {
			if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
				return fmt.Errorf("failed to clear %s: %w", table, err)
			}
		}
		for i, p := range snap.People {
			if err := insertPerson(ctx, tx, i, p); err != nil {
				return err
			}
		}
		for i, p := range snap.Products {
			if err := insertProduct(ctx, tx, i, p); err != nil {
				return err
			}
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO branding (id, organization_name, logo_url, show_logo)
			VALUES (1, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				organization_name = excluded.organization_name,
				logo_url = excluded.logo_url,
				show_logo = excluded.show_logo
		`, snap.Branding.OrganizationName, snap.Branding.LogoURL, snap.Branding.ShowLogo)
		if err != nil {
			return fmt.Errorf("failed to save branding: %w", err)
		}
		return nil
	})
}

func insertPerson(ctx context.Context, db execer, pos int, p ledger.Person) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO people (id, position, custom_id, name, photo, initial_deposit, balance)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, p.ID, pos, nullString(p.CustomID), p.Name, nullString(p.Photo), p.InitialDeposit.String(), p.Balance.String())
	if err != nil {
		return fmt.Errorf("failed to save person %s: %w", p.ID, err)
	}

	for i, pu := range p.Purchases {
		_, err := db.ExecContext(ctx, `
			INSERT INTO purchases (id, person_id, position, kind, date, total)
			VALUES (?, ?, ?, ?, ?, ?)
		`, pu.ID, p.ID, i, string(pu.Kind), pu.Date.UTC().Format(time.RFC3339Nano), pu.Total.String())
		if err != nil {
			return fmt.Errorf("failed to save purchase %s: %w", pu.ID, err)
		}
		for line, it := range pu.Items {
			_, err := db.ExecContext(ctx, `
				INSERT INTO purchase_items (purchase_id, line, product_id, product_name, quantity, price, total)
				VALUES (?, ?, ?, ?, ?, ?, ?)
			`, pu.ID, line, it.ProductID, it.ProductName, it.Quantity, it.Price.String(), it.Total.String())
			if err != nil {
				return fmt.Errorf("failed to save item %d of purchase %s: %w", line, pu.ID, err)
			}
		}
	}
	return nil
}

func insertProduct(ctx context.Context, db execer, pos int, p ledger.Product) error {
	var cost sql.NullString
	if p.CostPrice != nil {
		cost = sql.NullString{String: p.CostPrice.String(), Valid: true}
	}
	var purchased sql.NullInt64
	if p.PurchasedQuantity != nil {
		purchased = sql.NullInt64{Int64: int64(*p.PurchasedQuantity), Valid: true}
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO products (id, position, barcode, name, price, stock, cost_price, purchased_quantity)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, p.ID, pos, nullString(p.Barcode), p.Name, p.Price.String(), p.Stock, cost, purchased)
	if err != nil {
		if isUniqueConstraintError(err) {
			return &ledger.DuplicateBarcodeError{Barcode: p.Barcode}
		}
		return fmt.Errorf("failed to save product %s: %w", p.ID, err)
	}
	return nil
}

// Load reads the stored state. An empty database yields an empty snapshot
// with default branding.
func (s *Store) Load(ctx context.Context) (ledger.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := ledger.Snapshot{
		People:   []ledger.Person{},
		Products: []ledger.Product{},
		Branding: ledger.DefaultBranding(),
	}

	err := s.db.QueryRowContext(ctx, `
		SELECT organization_name, logo_url, show_logo FROM branding WHERE id = 1
	`).Scan(&snap.Branding.OrganizationName, &snap.Branding.LogoURL, &snap.Branding.ShowLogo)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return ledger.Snapshot{}, fmt.Errorf("failed to load branding: %w", err)
	}

	people, err := s.loadPeople(ctx)
	if err != nil {
		return ledger.Snapshot{}, err
	}
	snap.People = people

	products, err := s.loadProducts(ctx)
	if err != nil {
		return ledger.Snapshot{}, err
	}
	snap.Products = products

	return snap, nil
}

func (s *Store) loadPeople(ctx context.Context) ([]ledger.Person, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, custom_id, name, photo, initial_deposit, balance
		FROM people ORDER BY position
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query people: %w", err)
	}
	defer rows.Close()

	people := []ledger.Person{}
	index := make(map[string]int)
	for rows.Next() {
		var p ledger.Person
		var customID, photo sql.NullString
		var deposit, balance string
		if err := rows.Scan(&p.ID, &customID, &p.Name, &photo, &deposit, &balance); err != nil {
			return nil, err
		}
		p.CustomID = customID.String
		p.Photo = photo.String
		if p.InitialDeposit, err = decimal.NewFromString(deposit); err != nil {
			return nil, fmt.Errorf("person %s: bad deposit %q: %w", p.ID, deposit, err)
		}
		if p.Balance, err = decimal.NewFromString(balance); err != nil {
			return nil, fmt.Errorf("person %s: bad balance %q: %w", p.ID, balance, err)
		}
		p.Purchases = []ledger.Purchase{}
		index[p.ID] = len(people)
		people = append(people, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	purchases, err := s.loadPurchases(ctx)
	if err != nil {
		return nil, err
	}
	for _, pu := range purchases {
		if i, ok := index[pu.PersonID]; ok {
			people[i].Purchases = append(people[i].Purchases, pu)
		}
	}
	return people, nil
}

func (s *Store) loadPurchases(ctx context.Context) ([]ledger.Purchase, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT p.id, p.person_id, p.kind, p.date, p.total,
		       i.product_id, i.product_name, i.quantity, i.price, i.total
		FROM purchases p
		JOIN purchase_items i ON i.purchase_id = p.id
		ORDER BY p.person_id, p.position, i.line
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query purchases: %w", err)
	}
	defer rows.Close()

	var out []ledger.Purchase
	for rows.Next() {
		var (
			pu                   ledger.Purchase
			kind, date, total    string
			it                   ledger.PurchaseItem
			itemPrice, itemTotal string
		)
		if err := rows.Scan(&pu.ID, &pu.PersonID, &kind, &date, &total,
			&it.ProductID, &it.ProductName, &it.Quantity, &itemPrice, &itemTotal); err != nil {
			return nil, err
		}
		if it.Price, err = decimal.NewFromString(itemPrice); err != nil {
			return nil, fmt.Errorf("purchase %s: bad price: %w", pu.ID, err)
		}
		if it.Total, err = decimal.NewFromString(itemTotal); err != nil {
			return nil, fmt.Errorf("purchase %s: bad item total: %w", pu.ID, err)
		}

		if n := len(out); n > 0 && out[n-1].ID == pu.ID {
			out[n-1].Items = append(out[n-1].Items, it)
			continue
		}
		pu.Kind = ledger.EntryKind(kind)
		if pu.Date, err = time.Parse(time.RFC3339Nano, date); err != nil {
			return nil, fmt.Errorf("purchase %s: bad date %q: %w", pu.ID, date, err)
		}
		if pu.Total, err = decimal.NewFromString(total); err != nil {
			return nil, fmt.Errorf("purchase %s: bad total: %w", pu.ID, err)
		}
		pu.Items = []ledger.PurchaseItem{it}
		out = append(out, pu)
	}
	return out, rows.Err()
}

func (s *Store) loadProducts(ctx context.Context) ([]ledger.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, barcode, name, price, stock, cost_price, purchased_quantity
		FROM products ORDER BY position
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query products: %w", err)
	}
	defer rows.Close()

	products := []ledger.Product{}
	for rows.Next() {
		var (
			p         ledger.Product
			barcode   sql.NullString
			price     string
			cost      sql.NullString
			purchased sql.NullInt64
		)
		if err := rows.Scan(&p.ID, &barcode, &p.Name, &price, &p.Stock, &cost, &purchased); err != nil {
			return nil, err
		}
		p.Barcode = barcode.String
		if p.Price, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("product %s: bad price %q: %w", p.ID, price, err)
		}
		if cost.Valid {
			c, err := decimal.NewFromString(cost.String)
			if err != nil {
				return nil, fmt.Errorf("product %s: bad cost price: %w", p.ID, err)
			}
			p.CostPrice = &c
		}
		if purchased.Valid {
			q := int(purchased.Int64)
			p.PurchasedQuantity = &q
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

// =============================================================================
// SETTLEMENTS (ledger.SettlementRecorder interface)
// =============================================================================

// SaveSettlement inserts a settlement record. Records are never updated.
func (s *Store) SaveSettlement(ctx context.Context, r ledger.SettlementRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	recordJSON, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to encode settlement: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO settlements (id, settled_at, disposition, record_json, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, r.ID, r.At.UTC().Format(time.RFC3339Nano), string(r.Disposition), string(recordJSON),
		time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("settlement %s already recorded: %w", r.ID, err)
		}
		return fmt.Errorf("failed to save settlement: %w", err)
	}
	return nil
}

// ListSettlements returns every settlement record, newest first.
func (s *Store) ListSettlements(ctx context.Context) ([]ledger.SettlementRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT record_json FROM settlements ORDER BY settled_at DESC, created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query settlements: %w", err)
	}
	defer rows.Close()

	records := []ledger.SettlementRecord{}
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var r ledger.SettlementRecord
		if err := json.Unmarshal([]byte(raw), &r); err != nil {
			return nil, fmt.Errorf("failed to decode settlement: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// =============================================================================
// HELPERS
// =============================================================================

// withTx runs fn in a transaction, committing only if fn succeeds.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
