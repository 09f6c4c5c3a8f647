package transport

import (
	"context"
	"fmt"
	"net/netip"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/roach88/fedplan/internal/plan"
)

// Postgres answers postgres engine requests from a connection pool.
type Postgres struct {
	pool *pgxpool.Pool
}

// OpenPostgres connects to dsn and checks the connection. Every session
// of the pool is read-only.
func OpenPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	config, err := postgresConfig(dsn)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

// postgresConfig parses dsn and forces read-only transactions, whatever
// the dsn asks for.
func postgresConfig(dsn string) (*pgxpool.Config, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if config.ConnConfig.RuntimeParams == nil {
		config.ConnConfig.RuntimeParams = map[string]string{}
	}
	config.ConnConfig.RuntimeParams["default_transaction_read_only"] = "on"
	return config, nil
}

// Close closes the pool.
func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}

// Send runs req.Query with req.Args.
func (p *Postgres) Send(ctx context.Context, req plan.Request) (plan.Response, error) {
	if req.Query == "" {
		return plan.Response{}, fmt.Errorf("postgres: request for %s has no query", req.Source)
	}
	rows, err := p.pool.Query(ctx, req.Query, req.Args...)
	if err != nil {
		return plan.Response{}, fmt.Errorf("postgres: query: %w", err)
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	resp := plan.Response{Columns: make([]string, len(fields)), Rows: [][]any{}}
	for i, f := range fields {
		resp.Columns[i] = f.Name
	}
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return plan.Response{}, fmt.Errorf("postgres: row %d: %w", len(resp.Rows), err)
		}
		for i, v := range values {
			if values[i], err = pgNative(v); err != nil {
				return plan.Response{}, fmt.Errorf("postgres: row %d column %s: %w", len(resp.Rows), resp.Columns[i], err)
			}
		}
		resp.Rows = append(resp.Rows, values)
	}
	if err := rows.Err(); err != nil {
		return plan.Response{}, fmt.Errorf("postgres: %w", err)
	}
	return resp, nil
}

// pgNative reduces pgx decoded values to the plain values transforms
// understand.
func pgNative(v any) (any, error) {
	switch val := v.(type) {
	case pgtype.Numeric:
		if !val.Valid {
			return nil, nil
		}
		f, err := val.Float64Value()
		if err != nil {
			return nil, err
		}
		return f.Float64, nil
	case int16:
		return int64(val), nil
	case int32:
		return int64(val), nil
	case float32:
		return float64(val), nil
	case [16]byte:
		return uuid.UUID(val).String(), nil
	case netip.Prefix:
		return val.String(), nil
	case netip.Addr:
		return val.String(), nil
	case pgtype.Interval:
		if !val.Valid {
			return nil, nil
		}
		d := time.Duration(val.Microseconds)*time.Microsecond +
			time.Duration(val.Days)*24*time.Hour
		if val.Months != 0 {
			return fmt.Sprintf("%d months %s", val.Months, d), nil
		}
		return d.String(), nil
	default:
		return v, nil
	}
}
