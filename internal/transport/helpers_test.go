package transport

import (
	"database/sql"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

// salesDB writes a small sales table to a fresh database file and returns
// its path.
func salesDB(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sales.db")
	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	defer db.Close()

	stmts := []string{
		`CREATE TABLE sales (country TEXT, city TEXT, price REAL, cost REAL)`,
		`INSERT INTO sales VALUES ('US', 'NYC', 10, 4)`,
		`INSERT INTO sales VALUES ('US', 'NYC', 20, 5)`,
		`INSERT INTO sales VALUES ('US', 'LA', 8, 6)`,
		`INSERT INTO sales VALUES ('FR', 'Paris', 30, 10)`,
	}
	for _, stmt := range stmts {
		_, err := db.Exec(stmt)
		require.NoError(t, err, stmt)
	}
	return path
}

func openSales(t *testing.T) *SQLite {
	t.Helper()
	s, err := OpenSQLite(salesDB(t))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}
