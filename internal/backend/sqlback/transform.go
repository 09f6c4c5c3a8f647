package sqlback

import (
	"fmt"
	"strings"

	"github.com/roach88/fedplan/internal/expr"
	"github.com/roach88/fedplan/internal/plan"
)

// newTransform maps a query response onto the plan's output schema. Columns
// outside a known schema (the row counter of an empty total) are dropped.
// Bucketed split keys come back as their start and are widened to ranges.
func newTransform(p *plan.Plan) func(plan.Response) (plan.Dataset, error) {
	attrs := p.Attributes()
	var key string
	var split expr.Expr
	if p.Mode() == plan.ModeSplit {
		key, split = p.Key(), p.SplitExpr()
	}

	return func(resp plan.Response) (plan.Dataset, error) {
		type column struct {
			index int
			name  string
			typ   expr.Type
		}
		var cols []column
		for i, name := range resp.Columns {
			if attrs == nil {
				cols = append(cols, column{index: i, name: name})
				continue
			}
			attr, ok := attrs.Get(name)
			if !ok {
				continue
			}
			cols = append(cols, column{index: i, name: name, typ: attr.Type})
		}

		ds := plan.Dataset{Attributes: make([]string, len(cols))}
		for i, col := range cols {
			ds.Attributes[i] = col.name
		}
		for r, row := range resp.Rows {
			if len(row) != len(resp.Columns) {
				return plan.Dataset{}, fmt.Errorf("row %d has %d values for %d columns", r, len(row), len(resp.Columns))
			}
			d := make(plan.Datum, len(cols))
			for _, col := range cols {
				var v expr.Value
				var err error
				if col.name == key && split != nil {
					v, err = keyValue(row[col.index], split)
				} else {
					v, err = plan.ConvertValue(row[col.index], col.typ)
				}
				if err != nil {
					return plan.Dataset{}, fmt.Errorf("row %d column %s: %w", r, col.name, err)
				}
				d[col.name] = v
			}
			ds.Data = append(ds.Data, d)
		}
		return ds, nil
	}
}

func keyValue(raw any, split expr.Expr) (expr.Value, error) {
	switch b := split.(type) {
	case expr.NumberBucket:
		v, err := plan.ConvertValue(raw, expr.TypeNumber)
		if err != nil {
			return nil, err
		}
		start, ok := v.(expr.Number)
		if !ok {
			return v, nil
		}
		return expr.NumberRange{Start: float64(start), End: float64(start) + b.Size}, nil
	case expr.TimeBucket:
		v, err := plan.ConvertValue(raw, expr.TypeTime)
		if err != nil {
			return nil, err
		}
		start, ok := v.(expr.Time)
		if !ok {
			return v, nil
		}
		return expr.TimeRange{Start: start.Std(), End: plan.ShiftTime(start.Std(), b.Unit, 1)}, nil
	default:
		return plan.ConvertValue(raw, split.Type())
	}
}

// introspectionTransform maps (name, declared type) rows onto attributes.
func introspectionTransform() func(plan.Response) (plan.Attributes, error) {
	return func(resp plan.Response) (plan.Attributes, error) {
		attrs := plan.Attributes{}
		for i, row := range resp.Rows {
			if len(row) < 2 {
				return nil, fmt.Errorf("introspection row %d: want name and type, got %d values", i, len(row))
			}
			name, ok := asString(row[0])
			if !ok || name == "" {
				return nil, fmt.Errorf("introspection row %d: bad column name %v", i, row[0])
			}
			declared, _ := asString(row[1])
			attrs = append(attrs, plan.Attribute{Name: name, Type: SemanticType(declared)})
		}
		return attrs, nil
	}
}

func asString(v any) (string, bool) {
	switch s := v.(type) {
	case string:
		return s, true
	case []byte:
		return string(s), true
	}
	return "", false
}

// SemanticType maps a declared column type to a semantic type. SQLite
// declarations follow its type affinity rules; postgres reports
// information_schema names. Anything unrecognized reads as a string.
func SemanticType(declared string) expr.Type {
	t := strings.ToLower(strings.TrimSpace(declared))
	switch {
	case t == "interval", strings.Contains(t, "point"):
		return expr.TypeString
	case strings.Contains(t, "bool"):
		return expr.TypeBoolean
	case strings.Contains(t, "timestamp"), strings.Contains(t, "date"), t == "time", strings.HasPrefix(t, "time "):
		return expr.TypeTime
	case strings.Contains(t, "int"), strings.Contains(t, "real"), strings.Contains(t, "floa"),
		strings.Contains(t, "doub"), strings.Contains(t, "numeric"), strings.Contains(t, "decimal"):
		return expr.TypeNumber
	default:
		return expr.TypeString
	}
}
