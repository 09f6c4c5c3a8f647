package expr

import (
	"encoding/json"
	"fmt"
	"time"
)

// Encode converts an expression to its record form: nested
// map[string]any values with an "op" key, suitable for JSON.
func Encode(e Expr) (map[string]any, error) {
	switch n := e.(type) {
	case nil:
		return nil, fmt.Errorf("cannot encode nil expression")
	case Literal:
		return encodeLiteral(n)
	case Ref:
		rec := map[string]any{"op": "ref", "name": n.Name}
		if n.Nest > 0 {
			rec["nest"] = n.Nest
		}
		if n.Kind != TypeUnknown {
			rec["type"] = string(n.Kind)
		}
		return rec, nil
	case Binary:
		lhs, err := Encode(n.LHS)
		if err != nil {
			return nil, fmt.Errorf("%s lhs: %w", n.Op, err)
		}
		rhs, err := Encode(n.RHS)
		if err != nil {
			return nil, fmt.Errorf("%s rhs: %w", n.Op, err)
		}
		return map[string]any{"op": string(n.Op), "lhs": lhs, "rhs": rhs}, nil
	case Not:
		operand, err := Encode(n.Operand)
		if err != nil {
			return nil, fmt.Errorf("not: %w", err)
		}
		return map[string]any{"op": "not", "operand": operand}, nil
	case Aggregate:
		ds, err := Encode(n.Dataset)
		if err != nil {
			return nil, fmt.Errorf("%s dataset: %w", n.Kind, err)
		}
		rec := map[string]any{"op": string(n.Kind), "dataset": ds}
		if n.Operand != nil {
			operand, err := Encode(n.Operand)
			if err != nil {
				return nil, fmt.Errorf("%s operand: %w", n.Kind, err)
			}
			rec["operand"] = operand
		}
		if n.Kind == AggQuantile {
			rec["quantile"] = n.Quantile
		}
		return rec, nil
	case NumberBucket:
		operand, err := Encode(n.Operand)
		if err != nil {
			return nil, fmt.Errorf("numberBucket: %w", err)
		}
		return map[string]any{"op": "numberBucket", "operand": operand, "size": n.Size, "offset": n.Offset}, nil
	case TimeBucket:
		operand, err := Encode(n.Operand)
		if err != nil {
			return nil, fmt.Errorf("timeBucket: %w", err)
		}
		return map[string]any{"op": "timeBucket", "operand": operand, "unit": n.Unit}, nil
	default:
		return nil, fmt.Errorf("unknown expression type: %T", e)
	}
}

func encodeLiteral(l Literal) (map[string]any, error) {
	rec := map[string]any{"op": "literal"}
	switch v := l.Value.(type) {
	case nil, Null:
		rec["value"] = nil
	case String:
		rec["value"] = string(v)
	case Number:
		rec["value"] = float64(v)
	case Bool:
		rec["value"] = bool(v)
	case Time:
		rec["type"] = string(TypeTime)
		rec["value"] = v.Std().UTC().Format(time.RFC3339Nano)
	case NumberRange:
		rec["type"] = string(TypeNumberRange)
		rec["value"] = map[string]any{"start": v.Start, "end": v.End}
	case TimeRange:
		rec["type"] = string(TypeTimeRange)
		rec["value"] = map[string]any{
			"start": v.Start.UTC().Format(time.RFC3339Nano),
			"end":   v.End.UTC().Format(time.RFC3339Nano),
		}
	case ExternalValue:
		return nil, fmt.Errorf("embedded plan literals cannot be serialized")
	default:
		return nil, fmt.Errorf("unknown literal value: %T", l.Value)
	}
	return rec, nil
}

// Decode is the inverse of Encode.
func Decode(rec map[string]any) (Expr, error) {
	op, _ := rec["op"].(string)
	switch {
	case op == "literal":
		return decodeLiteral(rec)
	case op == "ref":
		name, _ := rec["name"].(string)
		if name == "" {
			return nil, fmt.Errorf("ref: missing name")
		}
		r := Ref{Name: name}
		if nest, ok := floatOf(rec["nest"]); ok {
			r.Nest = int(nest)
		}
		if t, ok := rec["type"].(string); ok {
			kind, err := ParseType(t)
			if err != nil {
				return nil, fmt.Errorf("ref %s: %w", name, err)
			}
			r.Kind = kind
		}
		return r, nil
	case op == "not":
		operand, err := decodeChild(rec, "operand")
		if err != nil {
			return nil, fmt.Errorf("not: %w", err)
		}
		return Not{Operand: operand}, nil
	case IsAggKind(op):
		ds, err := decodeChild(rec, "dataset")
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		agg := Aggregate{Kind: AggKind(op), Dataset: ds}
		if _, ok := rec["operand"]; ok {
			if agg.Operand, err = decodeChild(rec, "operand"); err != nil {
				return nil, fmt.Errorf("%s: %w", op, err)
			}
		} else if agg.Kind != AggCount {
			return nil, fmt.Errorf("%s: missing operand", op)
		}
		if q, ok := floatOf(rec["quantile"]); ok {
			agg.Quantile = q
		}
		return agg, nil
	case op == "numberBucket":
		operand, err := decodeChild(rec, "operand")
		if err != nil {
			return nil, fmt.Errorf("numberBucket: %w", err)
		}
		size, _ := floatOf(rec["size"])
		offset, _ := floatOf(rec["offset"])
		if size <= 0 {
			return nil, fmt.Errorf("numberBucket: size must be positive")
		}
		return NumberBucket{Operand: operand, Size: size, Offset: offset}, nil
	case op == "timeBucket":
		operand, err := decodeChild(rec, "operand")
		if err != nil {
			return nil, fmt.Errorf("timeBucket: %w", err)
		}
		unit, _ := rec["unit"].(string)
		if !IsTimeUnit(unit) {
			return nil, fmt.Errorf("timeBucket: unknown unit %q", unit)
		}
		return TimeBucket{Operand: operand, Unit: unit}, nil
	case opSymbols[Op(op)] != "":
		lhs, err := decodeChild(rec, "lhs")
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		rhs, err := decodeChild(rec, "rhs")
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		return Binary{Op: Op(op), LHS: lhs, RHS: rhs}, nil
	default:
		return nil, fmt.Errorf("unknown op %q", op)
	}
}

func decodeChild(rec map[string]any, key string) (Expr, error) {
	child, ok := rec[key].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("missing %s", key)
	}
	return Decode(child)
}

func decodeLiteral(rec map[string]any) (Expr, error) {
	t, _ := rec["type"].(string)
	raw := rec["value"]
	switch Type(t) {
	case TypeTime:
		s, _ := raw.(string)
		ts, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return nil, fmt.Errorf("time literal: %w", err)
		}
		return Lit(Time(ts)), nil
	case TypeNumberRange:
		m, _ := raw.(map[string]any)
		start, _ := floatOf(m["start"])
		end, _ := floatOf(m["end"])
		return Lit(NumberRange{Start: start, End: end}), nil
	case TypeTimeRange:
		m, _ := raw.(map[string]any)
		start, err := time.Parse(time.RFC3339Nano, fmt.Sprint(m["start"]))
		if err != nil {
			return nil, fmt.Errorf("time range start: %w", err)
		}
		end, err := time.Parse(time.RFC3339Nano, fmt.Sprint(m["end"]))
		if err != nil {
			return nil, fmt.Errorf("time range end: %w", err)
		}
		return Lit(TimeRange{Start: start, End: end}), nil
	}
	v, err := FromNative(raw)
	if err != nil {
		return nil, fmt.Errorf("literal: %w", err)
	}
	return Lit(v), nil
}

// MarshalJSON encodes an expression as JSON.
func MarshalJSON(e Expr) ([]byte, error) {
	rec, err := Encode(e)
	if err != nil {
		return nil, err
	}
	return json.Marshal(rec)
}

// UnmarshalJSON decodes an expression from JSON.
func UnmarshalJSON(data []byte) (Expr, error) {
	var rec map[string]any
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode expression: %w", err)
	}
	return Decode(rec)
}

// timeUnits are the calendar units accepted by TimeBucket.
var timeUnits = []string{"minute", "hour", "day", "week", "month", "year"}

// IsTimeUnit reports whether unit is a supported TimeBucket unit.
func IsTimeUnit(unit string) bool {
	for _, u := range timeUnits {
		if u == unit {
			return true
		}
	}
	return false
}

// floatOf accepts the numeric shapes produced by encoding/json and yaml.v3.
func floatOf(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
