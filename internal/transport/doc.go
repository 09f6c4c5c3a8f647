// Package transport carries plan requests to the systems that answer them.
//
// Each transport implements orchestrator.Transport for one kind of source:
//
//   - SQLite: a local database file through database/sql and go-sqlite3
//   - Postgres: a pgx connection pool
//   - ParquetFiles: parquet files read with parquet-go
//   - HTTPClient: a remote gateway speaking the JSON wire form
//
// Mux routes requests to transports by engine name, and Server exposes any
// transport as an HTTP gateway. Transports return driver values as plain Go
// values (string, float64, int64, bool, time.Time, nil); the backend
// transform decides what they mean.
package transport
