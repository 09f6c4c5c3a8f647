package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/roach88/fedplan/internal/plan"
)

// readBatch is the number of rows read from a file per call.
const readBatch = 256

// ParquetFiles answers parquet engine requests by reading local files.
// Relative request sources resolve against root.
type ParquetFiles struct {
	root string
}

// NewParquetFiles creates a parquet transport rooted at root. An empty root
// resolves against the working directory.
func NewParquetFiles(root string) *ParquetFiles {
	return &ParquetFiles{root: root}
}

// Send reads the schema or the rows of req.Source.
func (p *ParquetFiles) Send(ctx context.Context, req plan.Request) (plan.Response, error) {
	path := req.Source
	if !filepath.IsAbs(path) && p.root != "" {
		path = filepath.Join(p.root, path)
	}
	file, err := os.Open(path)
	if err != nil {
		return plan.Response{}, fmt.Errorf("parquet: %w", err)
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return plan.Response{}, fmt.Errorf("parquet: failed to get file stats: %w", err)
	}
	pf, err := parquet.OpenFile(file, stat.Size())
	if err != nil {
		return plan.Response{}, fmt.Errorf("parquet: failed to open %s: %w", path, err)
	}

	fields := pf.Schema().Fields()
	for _, f := range fields {
		if !f.Leaf() {
			return plan.Response{}, fmt.Errorf("parquet: %s: nested column %s is not supported", path, f.Name())
		}
	}

	switch req.Kind {
	case plan.KindIntrospect:
		resp := plan.Response{Columns: []string{"name", "type"}}
		for _, f := range fields {
			resp.Rows = append(resp.Rows, []any{f.Name(), f.Type().String()})
		}
		return resp, nil
	case plan.KindQuery:
		return readParquet(ctx, pf, fields, req)
	default:
		return plan.Response{}, fmt.Errorf("parquet: unknown request kind %q", req.Kind)
	}
}

func readParquet(ctx context.Context, pf *parquet.File, fields []parquet.Field, req plan.Request) (plan.Response, error) {
	columns := req.Columns
	if len(columns) == 0 {
		columns = make([]string, len(fields))
		for i, f := range fields {
			columns[i] = f.Name()
		}
	}

	// position maps a leaf column index to its place in the output row.
	position := make(map[int]int, len(columns))
	for out, name := range columns {
		found := false
		for idx, f := range fields {
			if f.Name() == name {
				position[idx] = out
				found = true
				break
			}
		}
		if !found {
			return plan.Response{}, fmt.Errorf("parquet: no column %q", name)
		}
	}

	reader := parquet.NewReader(pf)
	defer reader.Close()

	resp := plan.Response{Columns: columns, Rows: [][]any{}}
	buf := make([]parquet.Row, readBatch)
	for {
		if err := ctx.Err(); err != nil {
			return plan.Response{}, err
		}
		n, err := reader.ReadRows(buf)
		for _, row := range buf[:n] {
			if req.Limit > 0 && len(resp.Rows) >= req.Limit {
				return resp, nil
			}
			out := make([]any, len(columns))
			for _, v := range row {
				pos, ok := position[v.Column()]
				if !ok {
					continue
				}
				native, convErr := parquetNative(v, fields[v.Column()].Type().String())
				if convErr != nil {
					return plan.Response{}, fmt.Errorf("parquet: row %d column %s: %w", len(resp.Rows), columns[pos], convErr)
				}
				out[pos] = native
			}
			resp.Rows = append(resp.Rows, out)
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return plan.Response{}, fmt.Errorf("parquet: read rows: %w", err)
		}
	}
	return resp, nil
}

// parquetNative converts a leaf value using its physical kind and printed
// logical type.
func parquetNative(v parquet.Value, typ string) (any, error) {
	if v.IsNull() {
		return nil, nil
	}
	switch v.Kind() {
	case parquet.Boolean:
		return v.Boolean(), nil
	case parquet.Int32:
		if typ == "DATE" {
			return time.Unix(int64(v.Int32())*86400, 0).UTC(), nil
		}
		return int64(v.Int32()), nil
	case parquet.Int64:
		if strings.HasPrefix(typ, "TIMESTAMP") {
			n := v.Int64()
			switch {
			case strings.Contains(typ, "MILLIS"):
				return time.UnixMilli(n).UTC(), nil
			case strings.Contains(typ, "MICROS"):
				return time.UnixMicro(n).UTC(), nil
			default:
				return time.Unix(0, n).UTC(), nil
			}
		}
		return v.Int64(), nil
	case parquet.Float:
		return float64(v.Float()), nil
	case parquet.Double:
		return v.Double(), nil
	case parquet.ByteArray, parquet.FixedLenByteArray:
		return string(v.ByteArray()), nil
	default:
		return nil, fmt.Errorf("unsupported parquet kind %s", v.Kind())
	}
}
