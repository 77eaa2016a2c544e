package storage

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
		CREATE TABLE IF NOT EXISTS product_results (
			id                INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id            TEXT    NOT NULL,
			keyword           TEXT    NOT NULL DEFAULT '',
			name              TEXT    NOT NULL,
			price             REAL    NOT NULL DEFAULT 0,
			sales             INTEGER NOT NULL DEFAULT 0,
			rating            REAL    NOT NULL DEFAULT 0,
			stock             INTEGER NOT NULL DEFAULT 0,
			shop_location     TEXT    NOT NULL DEFAULT '',
			shop_name         TEXT    NOT NULL DEFAULT '',
			product_url       TEXT    NOT NULL,
			sales_rate        REAL    NOT NULL DEFAULT 0,
			commission        REAL    NOT NULL DEFAULT 0,
			estimated_revenue REAL    NOT NULL DEFAULT 0,
			created_at        TIMESTAMP NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_product_results_keyword ON product_results(keyword);
		CREATE INDEX IF NOT EXISTS idx_product_results_revenue ON product_results(estimated_revenue);
	`

var sqliteDialect = dialect{
	name:        "sqlite",
	schema:      sqliteSchema,
	placeholder: func(int) string { return "?" },
}

// NewSQLiteWriter opens (or creates) the database file at path. ":memory:"
// is accepted and kept on a single connection.
func NewSQLiteWriter(path string) (*SQLWriter, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: ping: %w", err)
	}
	return newSQLWriter(db, sqliteDialect)
}
