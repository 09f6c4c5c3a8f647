package transport

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/roach88/fedplan/internal/plan"
)

// SQLite answers sqlite engine requests from one database file.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens the database at path for reading.
//
// The connection is configured with:
//   - a 5-second busy timeout for lock contention with writers
//   - query_only, so generated SQL can never modify the file
func OpenSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Pragmas are per connection, so keep exactly one.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA query_only = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return &SQLite{db: db}, nil
}

// NewSQLite wraps an already open database. The caller keeps ownership of
// its configuration.
func NewSQLite(db *sql.DB) *SQLite {
	return &SQLite{db: db}
}

// Close closes the database.
func (s *SQLite) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Send runs req.Query with req.Args.
func (s *SQLite) Send(ctx context.Context, req plan.Request) (plan.Response, error) {
	if req.Query == "" {
		return plan.Response{}, fmt.Errorf("sqlite: request for %s has no query", req.Source)
	}
	rows, err := s.db.QueryContext(ctx, req.Query, req.Args...)
	if err != nil {
		return plan.Response{}, fmt.Errorf("sqlite: query: %w", err)
	}
	return scanRows(rows)
}

// scanRows reads a database/sql result set and closes it.
func scanRows(rows *sql.Rows) (plan.Response, error) {
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return plan.Response{}, fmt.Errorf("read columns: %w", err)
	}
	resp := plan.Response{Columns: cols, Rows: [][]any{}}
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return plan.Response{}, fmt.Errorf("scan row %d: %w", len(resp.Rows), err)
		}
		for i, v := range values {
			if b, ok := v.([]byte); ok {
				values[i] = string(b)
			}
		}
		resp.Rows = append(resp.Rows, values)
	}
	if err := rows.Err(); err != nil {
		return plan.Response{}, fmt.Errorf("iterate rows: %w", err)
	}
	return resp, nil
}
