package expr

import (
	"fmt"
	"strconv"
	"time"
)

// Type is the semantic type of an expression or attribute.
type Type string

const (
	TypeUnknown     Type = ""
	TypeNull        Type = "NULL"
	TypeBoolean     Type = "BOOLEAN"
	TypeNumber      Type = "NUMBER"
	TypeTime        Type = "TIME"
	TypeString      Type = "STRING"
	TypeNumberRange Type = "NUMBER_RANGE"
	TypeTimeRange   Type = "TIME_RANGE"
	TypeDataset     Type = "DATASET"
)

// ParseType validates a type name.
func ParseType(s string) (Type, error) {
	switch t := Type(s); t {
	case TypeNull, TypeBoolean, TypeNumber, TypeTime, TypeString,
		TypeNumberRange, TypeTimeRange, TypeDataset:
		return t, nil
	default:
		return TypeUnknown, fmt.Errorf("unknown type %q", s)
	}
}

// Value is a sealed interface representing literal values.
// Only the types in this file implement it.
type Value interface {
	literalValue()
}

// Null is the absent value.
type Null struct{}

func (Null) literalValue() {}

// String is a string value.
type String string

func (String) literalValue() {}

// Number is a numeric value. All numbers are float64.
type Number float64

func (Number) literalValue() {}

// Bool is a boolean value.
type Bool bool

func (Bool) literalValue() {}

// Time is an instant.
type Time time.Time

func (Time) literalValue() {}

// Std returns the value as a time.Time.
func (t Time) Std() time.Time { return time.Time(t) }

// NumberRange is the half-open interval [Start, End).
type NumberRange struct {
	Start float64
	End   float64
}

func (NumberRange) literalValue() {}

// TimeRange is the half-open interval [Start, End).
type TimeRange struct {
	Start time.Time
	End   time.Time
}

func (TimeRange) literalValue() {}

// External is a remote plan that can be embedded in a literal.
// Implemented by *plan.Plan.
type External interface {
	ID() string
	String() string
}

// ExternalValue boxes an embedded plan.
type ExternalValue struct {
	External External
}

func (ExternalValue) literalValue() {}

// ValueType returns the semantic type of a value.
func ValueType(v Value) Type {
	switch v.(type) {
	case nil, Null:
		return TypeNull
	case String:
		return TypeString
	case Number:
		return TypeNumber
	case Bool:
		return TypeBoolean
	case Time:
		return TypeTime
	case NumberRange:
		return TypeNumberRange
	case TimeRange:
		return TypeTimeRange
	case ExternalValue:
		return TypeDataset
	default:
		return TypeUnknown
	}
}

// ValueEqual reports whether two values are equal.
// Embedded plans compare by ID.
func ValueEqual(a, b Value) bool {
	switch av := a.(type) {
	case nil, Null:
		return ValueType(b) == TypeNull
	case Time:
		bv, ok := b.(Time)
		return ok && av.Std().Equal(bv.Std())
	case TimeRange:
		bv, ok := b.(TimeRange)
		return ok && av.Start.Equal(bv.Start) && av.End.Equal(bv.End)
	case ExternalValue:
		bv, ok := b.(ExternalValue)
		if !ok || av.External == nil || bv.External == nil {
			return false
		}
		return av.External.ID() == bv.External.ID()
	default:
		return a == b
	}
}

// FormatValue renders a value in the expression text syntax.
func FormatValue(v Value) string {
	switch val := v.(type) {
	case nil, Null:
		return "null"
	case String:
		return strconv.Quote(string(val))
	case Number:
		return strconv.FormatFloat(float64(val), 'g', -1, 64)
	case Bool:
		return strconv.FormatBool(bool(val))
	case Time:
		return "@" + val.Std().UTC().Format(time.RFC3339Nano)
	case NumberRange:
		return fmt.Sprintf("[%s,%s)",
			strconv.FormatFloat(val.Start, 'g', -1, 64),
			strconv.FormatFloat(val.End, 'g', -1, 64))
	case TimeRange:
		return fmt.Sprintf("[%s,%s)",
			val.Start.UTC().Format(time.RFC3339Nano),
			val.End.UTC().Format(time.RFC3339Nano))
	case ExternalValue:
		if val.External == nil {
			return "external()"
		}
		return val.External.String()
	default:
		return fmt.Sprintf("<%T>", v)
	}
}

// Native converts a value to a plain Go value (string, float64, bool,
// time.Time, nil). Ranges return their start; embedded plans are returned
// unchanged.
func Native(v Value) any {
	switch val := v.(type) {
	case nil, Null:
		return nil
	case String:
		return string(val)
	case Number:
		return float64(val)
	case Bool:
		return bool(val)
	case Time:
		return val.Std()
	case NumberRange:
		return val.Start
	case TimeRange:
		return val.Start
	case ExternalValue:
		return val.External
	default:
		return nil
	}
}

// FromNative converts a plain Go value into a Value.
func FromNative(v any) (Value, error) {
	switch val := v.(type) {
	case nil:
		return Null{}, nil
	case Value:
		return val, nil
	case string:
		return String(val), nil
	case []byte:
		return String(val), nil
	case float64:
		return Number(val), nil
	case float32:
		return Number(val), nil
	case int:
		return Number(val), nil
	case int32:
		return Number(val), nil
	case int64:
		return Number(val), nil
	case bool:
		return Bool(val), nil
	case time.Time:
		return Time(val), nil
	case External:
		return ExternalValue{External: val}, nil
	default:
		return nil, fmt.Errorf("unsupported literal type %T", v)
	}
}
