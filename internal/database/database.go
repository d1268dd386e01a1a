package database

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"sqdc-watcher/internal/models"

	_ "github.com/mattn/go-sqlite3"
)

// DB wraps the sqlite connection. Every exported method is a
// self-contained transaction so the scan loop and the command
// listener can share it without coordination.
type DB struct {
	conn *sql.DB
}

// New opens (or creates) the database at dbPath and applies the schema.
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}

	db := &DB{conn: conn}

	if err := db.init(); err != nil {
		conn.Close()
		return nil, err
	}

	log.Println("Database initialized")
	return db, nil
}

// Close closes the underlying connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) init() error {
	schema := `
	CREATE TABLE IF NOT EXISTS products (
		id TEXT PRIMARY KEY,
		title TEXT,
		url TEXT NOT NULL,
		brand TEXT,
		category TEXT,
		cannabis_type TEXT,
		producer_name TEXT,
		in_stock BOOLEAN DEFAULT 0,
		is_new BOOLEAN DEFAULT 0,
		availability_stats REAL DEFAULT 0,
		created_at DATETIME NOT NULL,
		last_updated DATETIME NOT NULL,
		last_notified_at DATETIME
	);

	CREATE TABLE IF NOT EXISTS product_variants (
		id TEXT NOT NULL,
		product_id TEXT NOT NULL,
		in_stock BOOLEAN DEFAULT 0,
		specifications TEXT,
		list_price REAL DEFAULT 0,
		price REAL DEFAULT 0,
		price_per_gram REAL DEFAULT 0,
		quantity_description TEXT,
		out_of_stock_since DATETIME,
		created_at DATETIME NOT NULL,
		last_updated DATETIME NOT NULL,
		PRIMARY KEY (product_id, id)
	);

	CREATE TABLE IF NOT EXISTS product_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		product_id TEXT NOT NULL,
		variant_id TEXT NOT NULL,
		event TEXT NOT NULL,
		timestamp DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_history_variant
		ON product_history (product_id, variant_id);
	CREATE INDEX IF NOT EXISTS idx_history_event
		ON product_history (product_id, event, timestamp DESC);

	CREATE TABLE IF NOT EXISTS notification_rules (
		username TEXT NOT NULL,
		keyword TEXT NOT NULL,
		chat_id INTEGER DEFAULT 0,
		PRIMARY KEY (username, keyword)
	);

	CREATE TABLE IF NOT EXISTS app_state (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		last_scan_timestamp DATETIME
	);
	`

	if _, err := db.conn.Exec(schema); err != nil {
		return err
	}
	_, err := db.conn.Exec("INSERT OR IGNORE INTO app_state (id, last_scan_timestamp) VALUES (1, NULL)")
	return err
}

// SaveProducts upserts the given products and all their variants.
// Mutable fields are fully replaced; identity and created_at survive.
func (db *DB) SaveProducts(products []models.Product) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	productStmt, err := tx.Prepare(`
		INSERT INTO products (id, title, url, brand, category, cannabis_type, producer_name,
			in_stock, is_new, availability_stats, created_at, last_updated, last_notified_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			url = excluded.url,
			brand = excluded.brand,
			category = excluded.category,
			cannabis_type = excluded.cannabis_type,
			producer_name = excluded.producer_name,
			in_stock = excluded.in_stock,
			is_new = excluded.is_new,
			availability_stats = excluded.availability_stats,
			last_updated = excluded.last_updated`)
	if err != nil {
		return err
	}
	defer productStmt.Close()

	variantStmt, err := tx.Prepare(`
		INSERT INTO product_variants (id, product_id, in_stock, specifications, list_price,
			price, price_per_gram, quantity_description, out_of_stock_since, created_at, last_updated)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(product_id, id) DO UPDATE SET
			in_stock = excluded.in_stock,
			specifications = excluded.specifications,
			list_price = excluded.list_price,
			price = excluded.price,
			price_per_gram = excluded.price_per_gram,
			quantity_description = excluded.quantity_description,
			out_of_stock_since = excluded.out_of_stock_since,
			last_updated = excluded.last_updated`)
	if err != nil {
		return err
	}
	defer variantStmt.Close()

	now := time.Now()
	for i := range products {
		p := &products[i]
		createdAt := p.CreatedAt
		if createdAt.IsZero() {
			createdAt = now
		}
		_, err := productStmt.Exec(p.ID, p.Title, p.URL, p.Brand, p.Category, p.CannabisType,
			p.ProducerName, p.InStock, p.IsNew, p.AvailabilityStats, createdAt, now, p.LastNotifiedAt)
		if err != nil {
			return fmt.Errorf("saving product %s: %w", p.ID, err)
		}

		for j := range p.Variants {
			v := &p.Variants[j]
			var specsJSON interface{}
			if v.Specifications != nil {
				raw, err := json.Marshal(v.Specifications)
				if err != nil {
					return fmt.Errorf("encoding specifications for variant %s: %w", v.ID, err)
				}
				specsJSON = string(raw)
			}
			variantCreated := v.CreatedAt
			if variantCreated.IsZero() {
				variantCreated = now
			}
			_, err := variantStmt.Exec(v.ID, p.ID, v.InStock, specsJSON, v.ListPrice, v.Price,
				v.PricePerGram, v.QuantityDescription, v.OutOfStockSince, variantCreated, now)
			if err != nil {
				return fmt.Errorf("saving variant %s of product %s: %w", v.ID, p.ID, err)
			}
		}
	}

	return tx.Commit()
}

// GetProducts returns the full persisted snapshot with variants attached.
func (db *DB) GetProducts() ([]models.Product, error) {
	rows, err := db.conn.Query(`
		SELECT id, title, url, brand, category, cannabis_type, producer_name,
			in_stock, is_new, availability_stats, created_at, last_updated, last_notified_at
		FROM products ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var products []models.Product
	index := make(map[string]int)
	for rows.Next() {
		var p models.Product
		var lastNotified sql.NullTime
		err := rows.Scan(&p.ID, &p.Title, &p.URL, &p.Brand, &p.Category, &p.CannabisType,
			&p.ProducerName, &p.InStock, &p.IsNew, &p.AvailabilityStats, &p.CreatedAt,
			&p.LastUpdated, &lastNotified)
		if err != nil {
			return nil, err
		}
		if lastNotified.Valid {
			t := lastNotified.Time
			p.LastNotifiedAt = &t
		}
		index[p.ID] = len(products)
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	variantRows, err := db.conn.Query(`
		SELECT id, product_id, in_stock, specifications, list_price, price, price_per_gram,
			quantity_description, out_of_stock_since, created_at, last_updated
		FROM product_variants ORDER BY product_id, id`)
	if err != nil {
		return nil, err
	}
	defer variantRows.Close()

	for variantRows.Next() {
		var v models.Variant
		var specs sql.NullString
		var quantityDesc sql.NullString
		var outOfStockSince sql.NullTime
		err := variantRows.Scan(&v.ID, &v.ProductID, &v.InStock, &specs, &v.ListPrice, &v.Price,
			&v.PricePerGram, &quantityDesc, &outOfStockSince, &v.CreatedAt, &v.LastUpdated)
		if err != nil {
			return nil, err
		}
		if specs.Valid && specs.String != "" {
			if err := json.Unmarshal([]byte(specs.String), &v.Specifications); err != nil {
				log.Printf("Ignoring malformed specifications for variant %s/%s: %v", v.ProductID, v.ID, err)
			}
		}
		if quantityDesc.Valid {
			v.QuantityDescription = quantityDesc.String
		}
		if outOfStockSince.Valid {
			t := outOfStockSince.Time
			v.OutOfStockSince = &t
		}
		if i, ok := index[v.ProductID]; ok {
			products[i].Variants = append(products[i].Variants, v)
		}
	}
	return products, variantRows.Err()
}

// AppendHistory inserts the given events into the append-only log.
func (db *DB) AppendHistory(events []models.HistoryEvent) error {
	if len(events) == 0 {
		return nil
	}
	tx, err := db.conn.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare("INSERT INTO product_history (product_id, variant_id, event, timestamp) VALUES (?, ?, ?, ?)")
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, e := range events {
		ts := e.Timestamp
		if ts.IsZero() {
			ts = time.Now()
		}
		if _, err := stmt.Exec(e.ProductID, e.VariantID, string(e.Kind), ts); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// GetHistory returns the events for one variant, oldest first.
func (db *DB) GetHistory(productID, variantID string) ([]models.HistoryEvent, error) {
	rows, err := db.conn.Query(`
		SELECT id, product_id, variant_id, event, timestamp FROM product_history
		WHERE product_id = ? AND variant_id = ? ORDER BY timestamp ASC, id ASC`,
		productID, variantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []models.HistoryEvent
	for rows.Next() {
		var e models.HistoryEvent
		var kind string
		if err := rows.Scan(&e.ID, &e.ProductID, &e.VariantID, &kind, &e.Timestamp); err != nil {
			return nil, err
		}
		e.Kind = models.EventKind(kind)
		events = append(events, e)
	}
	return events, rows.Err()
}

// GetLastInStockEvent returns the most recent in-stock event recorded
// for any variant of the product, or nil when none exists.
func (db *DB) GetLastInStockEvent(productID string) (*models.HistoryEvent, error) {
	var e models.HistoryEvent
	var kind string
	err := db.conn.QueryRow(`
		SELECT id, product_id, variant_id, event, timestamp FROM product_history
		WHERE product_id = ? AND event = ? ORDER BY timestamp DESC, id DESC LIMIT 1`,
		productID, string(models.EventInStock)).
		Scan(&e.ID, &e.ProductID, &e.VariantID, &kind, &e.Timestamp)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	e.Kind = models.EventKind(kind)
	return &e, nil
}

// MarkNotified stamps last_notified_at on the given products.
func (db *DB) MarkNotified(products []models.Product) error {
	if len(products) == 0 {
		return nil
	}
	tx, err := db.conn.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare("UPDATE products SET last_notified_at = ? WHERE id = ?")
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now()
	for i := range products {
		if _, err := stmt.Exec(now, products[i].ID); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// GetAppState returns the singleton application state row.
func (db *DB) GetAppState() (models.AppState, error) {
	var state models.AppState
	var ts sql.NullTime
	err := db.conn.QueryRow("SELECT last_scan_timestamp FROM app_state WHERE id = 1").Scan(&ts)
	if err != nil {
		return state, err
	}
	if ts.Valid {
		t := ts.Time
		state.LastScanTimestamp = &t
	}
	return state, nil
}

// UpdateLastScanTimestamp records when the catalog was last really fetched.
func (db *DB) UpdateLastScanTimestamp(ts time.Time) error {
	_, err := db.conn.Exec("UPDATE app_state SET last_scan_timestamp = ? WHERE id = 1", ts)
	return err
}

// AddRule inserts a notification rule. It reports true when the rule
// was newly added and false when the pair already existed.
func (db *DB) AddRule(rule models.NotificationRule) (bool, error) {
	result, err := db.conn.Exec(
		"INSERT OR IGNORE INTO notification_rules (username, keyword, chat_id) VALUES (?, ?, ?)",
		rule.Username, rule.Keyword, rule.ChatID)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// DeleteRule removes a rule and reports whether a row was actually deleted.
func (db *DB) DeleteRule(username, keyword string) (bool, error) {
	result, err := db.conn.Exec(
		"DELETE FROM notification_rules WHERE username = ? AND keyword = ?", username, keyword)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// ListRulesForUser returns the rules registered by one user.
func (db *DB) ListRulesForUser(username string) ([]models.NotificationRule, error) {
	rows, err := db.conn.Query(
		"SELECT username, keyword, chat_id FROM notification_rules WHERE username = ? ORDER BY keyword", username)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRules(rows)
}

// ListAllRules returns every rule grouped by username.
func (db *DB) ListAllRules() (map[string][]models.NotificationRule, error) {
	rows, err := db.conn.Query(
		"SELECT username, keyword, chat_id FROM notification_rules ORDER BY username, keyword")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	rules, err := scanRules(rows)
	if err != nil {
		return nil, err
	}
	grouped := make(map[string][]models.NotificationRule)
	for _, r := range rules {
		grouped[r.Username] = append(grouped[r.Username], r)
	}
	return grouped, nil
}

func scanRules(rows *sql.Rows) ([]models.NotificationRule, error) {
	var rules []models.NotificationRule
	for rows.Next() {
		var r models.NotificationRule
		if err := rows.Scan(&r.Username, &r.Keyword, &r.ChatID); err != nil {
			return nil, err
		}
		rules = append(rules, r)
	}
	return rules, rows.Err()
}
