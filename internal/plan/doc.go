// Package plan accumulates operations into an immutable remote query plan
// against a single backend.
//
// A plan starts in raw mode, built by New from a Spec through the factory
// registered for its engine. Operations are offered one at a time with Add:
//
//	p, _ := plan.New(plan.Spec{Engine: "sqlite", Source: plan.Source{Table: "sales"}})
//	p, err := p.Add(plan.Filter{Expr: expr.MustParse(`$country == "US"`, env)})
//	p, err = p.Add(plan.Split{Name: "city", Expr: expr.NewRef("city", expr.TypeString), DataName: "rows"})
//	p, err = p.Add(plan.Apply{Name: "margin", Expr: expr.MustParse(`$main.sum($price) - $main.sum($cost)`, env)})
//
// Every accepted operation returns a new Plan. An operation the backend
// cannot execute, or one that is illegal in the current mode, returns a
// *Rejection and the caller handles that operation locally. Fatal errors
// (ErrUnknownOperation, ErrNamesExhausted, ErrNotConstructed) signal a broken
// planner invariant.
//
// Compound aggregate applies are decomposed into primitive aggregates plus a
// combining expression (see Decompose). Finished plans hand a wire Query to a
// transport; the orchestrator package drives that round trip.
package plan
