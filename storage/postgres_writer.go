package storage

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"shopee-research/models"
)

const resultColumns = 14

// dialect holds the few statements that differ between backends.
type dialect struct {
	name        string
	schema      string
	placeholder func(n int) string
}

const postgresSchema = `
		CREATE TABLE IF NOT EXISTS product_results (
			id                SERIAL PRIMARY KEY,
			run_id            TEXT          NOT NULL,
			keyword           TEXT          NOT NULL DEFAULT '',
			name              TEXT          NOT NULL,
			price             NUMERIC(12,2) NOT NULL DEFAULT 0,
			sales             BIGINT        NOT NULL DEFAULT 0,
			rating            NUMERIC(4,2)  NOT NULL DEFAULT 0,
			stock             BIGINT        NOT NULL DEFAULT 0,
			shop_location     TEXT          NOT NULL DEFAULT '',
			shop_name         TEXT          NOT NULL DEFAULT '',
			product_url       TEXT          NOT NULL,
			sales_rate        NUMERIC(14,2) NOT NULL DEFAULT 0,
			commission        NUMERIC(14,2) NOT NULL DEFAULT 0,
			estimated_revenue NUMERIC(14,2) NOT NULL DEFAULT 0,
			created_at        TIMESTAMPTZ   NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_product_results_keyword ON product_results(keyword);
		CREATE INDEX IF NOT EXISTS idx_product_results_revenue ON product_results(estimated_revenue);
	`

var postgresDialect = dialect{
	name:        "postgres",
	schema:      postgresSchema,
	placeholder: func(n int) string { return fmt.Sprintf("$%d", n) },
}

// SQLWriter exports ranked results to a product_results table.
type SQLWriter struct {
	db      *sql.DB
	dialect dialect
}

// NewPostgresWriter opens a connection to PostgreSQL, runs schema migrations,
// and returns a ready-to-use writer.
func NewPostgresWriter(dsn string) (*SQLWriter, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}

	for i := 0; i < 10; i++ {
		if err = db.Ping(); err == nil {
			break
		}
		time.Sleep(2 * time.Second)
	}
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres: ping failed after retries: %w", err)
	}

	return newSQLWriter(db, postgresDialect)
}

func newSQLWriter(db *sql.DB, d dialect) (*SQLWriter, error) {
	w := &SQLWriter{db: db, dialect: d}
	if err := w.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%s: migrate: %w", d.name, err)
	}
	return w, nil
}

func (w *SQLWriter) migrate() error {
	_, err := w.db.Exec(w.dialect.schema)
	return err
}

// Write replaces the table contents with rs in one transaction.
func (w *SQLWriter) Write(runID string, rs models.ResultSet) error {
	tx, err := w.db.Begin()
	if err != nil {
		return fmt.Errorf("%s: begin: %w", w.dialect.name, err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec("DELETE FROM product_results"); err != nil {
		return fmt.Errorf("%s: clear: %w", w.dialect.name, err)
	}

	now := time.Now().UTC()
	const batchSize = 50
	for i := 0; i < len(rs); i += batchSize {
		end := i + batchSize
		if end > len(rs) {
			end = len(rs)
		}
		if err := w.insertBatch(tx, runID, rs[i:end], now); err != nil {
			return fmt.Errorf("%s: insert: %w", w.dialect.name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%s: commit: %w", w.dialect.name, err)
	}
	return nil
}

func (w *SQLWriter) insertBatch(tx *sql.Tx, runID string, batch models.ResultSet, now time.Time) error {
	valueStrings := make([]string, 0, len(batch))
	valueArgs := make([]interface{}, 0, len(batch)*resultColumns)

	for idx, p := range batch {
		base := idx * resultColumns
		ph := make([]string, resultColumns)
		for c := range ph {
			ph[c] = w.dialect.placeholder(base + c + 1)
		}
		valueStrings = append(valueStrings, "("+strings.Join(ph, ",")+")")
		valueArgs = append(valueArgs,
			runID, p.Keyword, p.Name, p.Price, p.Sales, p.Rating, p.Stock,
			p.ShopLocation, p.ShopName, p.URL, p.SalesRate, p.Commission, p.EstimatedRevenue,
			now)
	}

	query := fmt.Sprintf(`
		INSERT INTO product_results (run_id, keyword, name, price, sales, rating, stock,
			shop_location, shop_name, product_url, sales_rate, commission, estimated_revenue, created_at)
		VALUES %s
	`, strings.Join(valueStrings, ","))

	_, err := tx.Exec(query, valueArgs...)
	return err
}

// Count returns the number of exported rows.
func (w *SQLWriter) Count() (int, error) {
	var n int
	if err := w.db.QueryRow("SELECT COUNT(*) FROM product_results").Scan(&n); err != nil {
		return 0, fmt.Errorf("%s: count: %w", w.dialect.name, err)
	}
	return n, nil
}

func (w *SQLWriter) Close() error {
	return w.db.Close()
}
