package transport

import (
	"context"
	"math/big"
	"net/netip"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/fedplan/internal/plan"
)

func TestPGNative(t *testing.T) {
	id := uuid.MustParse("0190a9f4-7b2c-7c3d-8e4f-5a6b7c8d9e0f")
	tests := []struct {
		name string
		in   any
		want any
	}{
		{"numeric", pgtype.Numeric{Int: big.NewInt(1250), Exp: -2, Valid: true}, 12.5},
		{"null numeric", pgtype.Numeric{}, nil},
		{"int4", int32(7), int64(7)},
		{"int2", int16(-3), int64(-3)},
		{"float4", float32(0.5), 0.5},
		{"uuid", [16]byte(id), id.String()},
		{"inet", netip.MustParseAddr("10.0.0.1"), "10.0.0.1"},
		{"interval", pgtype.Interval{Days: 1, Microseconds: int64(time.Hour / time.Microsecond), Valid: true}, "25h0m0s"},
		{"text", "plain", "plain"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := pgNative(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPostgresConfigIsReadOnly(t *testing.T) {
	config, err := postgresConfig("postgres://fedplan@localhost:5432/shop?default_transaction_read_only=off")
	require.NoError(t, err)
	assert.Equal(t, "on", config.ConnConfig.RuntimeParams["default_transaction_read_only"])

	_, err = postgresConfig("postgres://%zz")
	assert.ErrorContains(t, err, "failed to parse config")
}

// FEDPLAN_TEST_POSTGRES_DSN points at a scratch database.
func TestPostgresRefusesWrites(t *testing.T) {
	dsn := os.Getenv("FEDPLAN_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("FEDPLAN_TEST_POSTGRES_DSN not set")
	}
	ctx := context.Background()
	pg, err := OpenPostgres(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pg.Close() })

	resp, err := pg.Send(ctx, plan.Request{Engine: "postgres", Kind: plan.KindQuery, Query: "SELECT 1 AS one"})
	require.NoError(t, err)
	assert.Equal(t, []string{"one"}, resp.Columns)

	_, err = pg.Send(ctx, plan.Request{Engine: "postgres", Kind: plan.KindQuery, Query: "CREATE TABLE fedplan_write_check (id int)"})
	assert.ErrorContains(t, err, "read-only transaction")
}
