package plan

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/roach88/fedplan/internal/expr"
)

// timeLayouts are the textual time encodings transports commonly return:
// SQLite text columns and JSON-encoded responses.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ConvertValue converts a transport value to a Value of type t. An empty
// type falls back to the value's natural Go type.
func ConvertValue(raw any, t expr.Type) (expr.Value, error) {
	if raw == nil {
		return expr.Null{}, nil
	}
	if b, ok := raw.([]byte); ok {
		raw = string(b)
	}
	switch t {
	case expr.TypeNumber:
		switch v := raw.(type) {
		case float64:
			return expr.Number(v), nil
		case float32:
			return expr.Number(v), nil
		case int64:
			return expr.Number(v), nil
		case int32:
			return expr.Number(v), nil
		case int:
			return expr.Number(v), nil
		case string:
			f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if err != nil {
				return nil, fmt.Errorf("not a number: %q", v)
			}
			return expr.Number(f), nil
		}
	case expr.TypeTime:
		switch v := raw.(type) {
		case time.Time:
			return expr.Time(v.UTC()), nil
		case int64:
			return expr.Time(time.Unix(v, 0).UTC()), nil
		case string:
			for _, layout := range timeLayouts {
				if ts, err := time.Parse(layout, v); err == nil {
					return expr.Time(ts.UTC()), nil
				}
			}
			return nil, fmt.Errorf("not a time: %q", v)
		}
	case expr.TypeBoolean:
		switch v := raw.(type) {
		case bool:
			return expr.Bool(v), nil
		case int64:
			return expr.Bool(v != 0), nil
		}
	case expr.TypeString:
		if s, ok := raw.(string); ok {
			return expr.String(s), nil
		}
		return expr.String(fmt.Sprint(raw)), nil
	}
	return expr.FromNative(raw)
}
