package plan

import (
	"fmt"
	"slices"
	"strconv"

	"github.com/roach88/fedplan/internal/expr"
)

// TempNamePrefix starts every synthesized attribute name.
const TempNamePrefix = "_sd_"

// Decompose breaks an apply into primitive aggregate applies plus a
// combining apply.
//
// An apply that is already a single aggregate is returned as is. Otherwise
// every maximal aggregate inside the expression is replaced by a reference:
// to an existing apply computing the same aggregate when there is one, or
// to a fresh temporary apply. The rewritten expression is returned last
// under the original name.
//
//	r = sum($a) - sum($b)
//
// becomes
//
//	_sd_0 = sum($a)
//	_sd_1 = sum($b)
//	r     = $_sd_0 - $_sd_1
func (p *Plan) Decompose(a Apply) ([]Apply, error) {
	if err := p.check(); err != nil {
		return nil, err
	}
	if _, ok := a.Expr.(expr.Aggregate); ok {
		return []Apply{a}, nil
	}

	var (
		applies []Apply
		used    = []string{a.Name}
		nameErr error
	)
	combined := expr.SubstituteAggregates(a.Expr, func(agg expr.Aggregate) expr.Expr {
		if nameErr != nil {
			return agg
		}
		if existing, ok := findApply(p.applies, agg); ok {
			return expr.Ref{Name: existing.Name, Kind: existing.Expr.Type()}
		}
		if existing, ok := findApply(applies, agg); ok {
			return expr.Ref{Name: existing.Name, Kind: existing.Expr.Type()}
		}
		name, err := p.TempName(used...)
		if err != nil {
			nameErr = err
			return agg
		}
		used = append(used, name)
		applies = append(applies, Apply{Name: name, Expr: agg})
		return expr.Ref{Name: name, Kind: agg.Type()}
	})
	if nameErr != nil {
		return nil, nameErr
	}
	return append(applies, Apply{Name: a.Name, Expr: combined}), nil
}

// TempName returns the first "_sd_<i>" name that is neither excluded nor
// already an attribute of the plan. Failing to find one within the
// configured bound is fatal.
func (p *Plan) TempName(exclude ...string) (string, error) {
	if err := p.check(); err != nil {
		return "", err
	}
	for i := 0; i < p.tempNameLimit; i++ {
		name := TempNamePrefix + strconv.Itoa(i)
		if !slices.Contains(exclude, name) && !p.isKnownName(name) {
			return name, nil
		}
	}
	return "", fmt.Errorf("%w within %d attempts", ErrNamesExhausted, p.tempNameLimit)
}

func (p *Plan) isKnownName(name string) bool {
	return p.attributes.Has(name)
}

func findApply(applies []Apply, e expr.Expr) (Apply, bool) {
	for _, a := range applies {
		if expr.Equal(a.Expr, e) {
			return a, true
		}
	}
	return Apply{}, false
}
