package plan

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/roach88/fedplan/internal/expr"
)

// Datum is one result row.
type Datum map[string]expr.Value

// Dataset is a tabular result. Attributes fixes the column order.
type Dataset struct {
	Attributes []string
	Data       []Datum
}

// Apply returns a copy of the dataset with name set on every row to the
// value computed by fn.
func (d Dataset) Apply(name string, fn func(Datum) (expr.Value, error)) (Dataset, error) {
	out := Dataset{Attributes: append([]string(nil), d.Attributes...)}
	if !slices.Contains(out.Attributes, name) {
		out.Attributes = append(out.Attributes, name)
	}
	out.Data = make([]Datum, len(d.Data))
	for i, row := range d.Data {
		v, err := fn(row)
		if err != nil {
			return Dataset{}, fmt.Errorf("row %d: %w", i, err)
		}
		next := make(Datum, len(row)+1)
		for k, val := range row {
			next[k] = val
		}
		next[name] = v
		out.Data[i] = next
	}
	return out, nil
}

// Records converts the rows to plain Go values for encoding. Nested plans
// are rendered with their String form.
func (d Dataset) Records() []map[string]any {
	out := make([]map[string]any, len(d.Data))
	for i, row := range d.Data {
		rec := make(map[string]any, len(row))
		for k, v := range row {
			switch val := v.(type) {
			case expr.ExternalValue:
				rec[k] = expr.FormatValue(val)
			case expr.NumberRange, expr.TimeRange:
				rec[k] = expr.FormatValue(val)
			default:
				rec[k] = expr.Native(v)
			}
		}
		out[i] = rec
	}
	return out
}

// AttachNested attaches to each row the raw plan that produced it, under the
// plan's data name. A total row gets the raw equivalent itself; a split row
// gets the raw equivalent filtered to the row's key.
//
// A raw plan, or one without a data name, returns the dataset unchanged.
// When the backend rejects a row's key filter the row gets a null value and
// the rejection is returned together with the otherwise complete dataset.
func (p *Plan) AttachNested(ds Dataset) (Dataset, error) {
	if err := p.check(); err != nil {
		return Dataset{}, err
	}
	if p.dataName == "" {
		return ds, nil
	}
	raw := p.ToRaw()
	switch p.mode {
	case ModeTotal:
		return ds.Apply(p.dataName, func(Datum) (expr.Value, error) {
			return expr.ExternalValue{External: raw}, nil
		})
	case ModeSplit:
		var rejections []error
		out, err := ds.Apply(p.dataName, func(d Datum) (expr.Value, error) {
			keyValue, ok := d[p.key]
			if !ok || keyValue == nil {
				keyValue = expr.Null{}
			}
			filter := expr.Simplify(expr.Is(p.split, expr.Lit(keyValue)))
			sub, err := raw.Add(Filter{Expr: filter})
			if IsRejection(err) {
				rejections = append(rejections, err)
				return expr.Null{}, nil
			}
			if err != nil {
				return nil, err
			}
			return expr.ExternalValue{External: sub}, nil
		})
		if err != nil {
			return Dataset{}, err
		}
		return out, errors.Join(rejections...)
	default:
		return ds, nil
	}
}

// Simulate produces one representative row with a sample value per output
// attribute, without any network access, and attaches nested plans to it
// the same way a real result would be.
func (p *Plan) Simulate() (Dataset, error) {
	if err := p.check(); err != nil {
		return Dataset{}, err
	}
	datum := Datum{}
	var names []string
	if p.mode == ModeRaw {
		for _, attr := range p.attributes {
			v, err := sampleValue(attr.Type, nil)
			if err != nil {
				return Dataset{}, fmt.Errorf("attribute %s: %w", attr.Name, err)
			}
			datum[attr.Name] = v
			names = append(names, attr.Name)
		}
	} else {
		if p.mode == ModeSplit {
			v, err := sampleValue(p.split.Type(), p.split)
			if err != nil {
				return Dataset{}, fmt.Errorf("key %s: %w", p.key, err)
			}
			datum[p.key] = v
			names = append(names, p.key)
		}
		for _, a := range p.applies {
			v, err := sampleValue(a.Expr.Type(), a.Expr)
			if err != nil {
				return Dataset{}, fmt.Errorf("apply %s: %w", a.Name, err)
			}
			datum[a.Name] = v
			if !slices.Contains(names, a.Name) {
				names = append(names, a.Name)
			}
		}
	}
	return p.AttachNested(Dataset{Attributes: names, Data: []Datum{datum}})
}

// sampleDay is the instant every simulated time value derives from.
var sampleDay = time.Date(2015, 3, 14, 0, 0, 0, 0, time.UTC)

func sampleValue(t expr.Type, e expr.Expr) (expr.Value, error) {
	switch t {
	case expr.TypeBoolean:
		return expr.Bool(true), nil
	case expr.TypeNumber:
		return expr.Number(4), nil
	case expr.TypeTime:
		return expr.Time(sampleDay), nil
	case expr.TypeNumberRange:
		if b, ok := e.(expr.NumberBucket); ok {
			return expr.NumberRange{Start: b.Offset, End: b.Offset + b.Size}, nil
		}
		return expr.NumberRange{Start: 0, End: 1}, nil
	case expr.TypeTimeRange:
		if b, ok := e.(expr.TimeBucket); ok {
			start := FloorTime(sampleDay, b.Unit)
			return expr.TimeRange{Start: start, End: ShiftTime(start, b.Unit, 1)}, nil
		}
		return expr.TimeRange{Start: sampleDay, End: sampleDay.AddDate(0, 0, 1)}, nil
	case expr.TypeString:
		if r, ok := e.(expr.Ref); ok {
			return expr.String("some_" + r.Name), nil
		}
		return expr.String("something"), nil
	default:
		return nil, fmt.Errorf("unsupported simulation on: %q", t)
	}
}

// FloorTime truncates t (in UTC) to the start of its unit. Weeks start on
// Monday.
func FloorTime(t time.Time, unit string) time.Time {
	t = t.UTC()
	switch unit {
	case "minute":
		return t.Truncate(time.Minute)
	case "hour":
		return t.Truncate(time.Hour)
	case "day":
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	case "week":
		day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
		offset := (int(day.Weekday()) + 6) % 7
		return day.AddDate(0, 0, -offset)
	case "month":
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	case "year":
		return time.Date(t.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
	default:
		return t
	}
}

// ShiftTime moves t by n units.
func ShiftTime(t time.Time, unit string, n int) time.Time {
	switch unit {
	case "minute":
		return t.Add(time.Duration(n) * time.Minute)
	case "hour":
		return t.Add(time.Duration(n) * time.Hour)
	case "day":
		return t.AddDate(0, 0, n)
	case "week":
		return t.AddDate(0, 0, 7*n)
	case "month":
		return t.AddDate(0, n, 0)
	case "year":
		return t.AddDate(n, 0, 0)
	default:
		return t
	}
}
