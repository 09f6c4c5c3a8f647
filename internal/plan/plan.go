package plan

import (
	"fmt"
	"sort"

	"github.com/roach88/fedplan/internal/expr"
)

// Mode is the lifecycle stage of a plan.
//
//	raw -> total
//	raw -> split
//
// total and split are terminal: no further mode transition is legal.
type Mode string

const (
	ModeRaw   Mode = "raw"
	ModeTotal Mode = "total"
	ModeSplit Mode = "split"
)

// DefaultTempNameLimit bounds the search for a free temporary name.
const DefaultTempNameLimit = 1_000_000

// Plan is an immutable remote query plan against a single backend.
//
// Plans are built only through New. Every accepted operation returns a new
// Plan; the receiver is never modified, so plans may be shared between
// goroutines without coordination.
type Plan struct {
	backend Backend
	engine  string
	mode    Mode

	// suppress marks an intermediate node that is not materialized directly.
	suppress bool

	// dataName is the attribute under which nested plans are attached to
	// this plan's result rows.
	dataName string

	attributes         Attributes
	attributeOverrides Attributes
	rawAttributes      Attributes
	key                string

	// derived holds the raw-mode derived attributes in definition order.
	derived []Apply

	filter  expr.Expr
	split   expr.Expr
	applies []Apply
	sort    *Sort
	limit   *Limit
	having  expr.Expr

	source        Source
	tempNameLimit int
}

// Option configures New.
type Option func(*Plan)

// WithTempNameLimit bounds the temporary name search of the decomposer.
// Values below one are ignored.
func WithTempNameLimit(n int) Option {
	return func(p *Plan) {
		if n > 0 {
			p.tempNameLimit = n
		}
	}
}

// New constructs a raw plan from its spec through the registered factory
// for spec.Engine.
func New(spec Spec, opts ...Option) (*Plan, error) {
	if spec.Engine == "" {
		return nil, fmt.Errorf("plan engine must be defined")
	}
	factory, err := lookupFactory(spec.Engine)
	if err != nil {
		return nil, err
	}
	backend, err := factory(spec)
	if err != nil {
		return nil, fmt.Errorf("engine %s: %w", spec.Engine, err)
	}
	filter := spec.Filter
	if filter == nil {
		filter = expr.True
	}
	p := &Plan{
		backend:            backend,
		engine:             spec.Engine,
		mode:               ModeRaw,
		suppress:           true,
		attributes:         spec.Attributes.clone(),
		attributeOverrides: spec.AttributeOverrides.clone(),
		rawAttributes:      spec.RawAttributes.clone(),
		key:                spec.Key,
		filter:             filter,
		source:             spec.Source,
		tempNameLimit:      DefaultTempNameLimit,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

func (p *Plan) check() error {
	if p == nil || p.backend == nil {
		return ErrNotConstructed
	}
	return nil
}

// clone returns a shallow copy whose slices can be replaced without touching
// the receiver.
func (p *Plan) clone() *Plan {
	c := *p
	c.applies = cloneApplies(p.applies)
	c.derived = cloneApplies(p.derived)
	return &c
}

func cloneApplies(applies []Apply) []Apply {
	if applies == nil {
		return nil
	}
	out := make([]Apply, len(applies))
	copy(out, applies)
	return out
}

// Backend returns the plan's backend.
func (p *Plan) Backend() Backend { return p.backend }

// Engine returns the engine name.
func (p *Plan) Engine() string { return p.engine }

// Mode returns the lifecycle stage.
func (p *Plan) Mode() Mode { return p.mode }

// Suppress reports whether the plan is an intermediate node.
func (p *Plan) Suppress() bool { return p.suppress }

// DataName is the attribute nested plans are attached under.
func (p *Plan) DataName() string { return p.dataName }

// Attributes returns the current output schema, nil if not yet introspected.
func (p *Plan) Attributes() Attributes { return p.attributes.clone() }

// RawAttributes returns the pre-aggregation schema of a non-raw plan.
func (p *Plan) RawAttributes() Attributes { return p.rawAttributes.clone() }

// AttributeOverrides returns the pending schema patch.
func (p *Plan) AttributeOverrides() Attributes { return p.attributeOverrides.clone() }

// Key is the split key attribute name.
func (p *Plan) Key() string { return p.key }

// Filter is the row filter; never nil.
func (p *Plan) Filter() expr.Expr { return p.filter }

// SplitExpr is the grouping expression of a split plan.
func (p *Plan) SplitExpr() expr.Expr { return p.split }

// Having is the post-aggregate filter of a split plan.
func (p *Plan) Having() expr.Expr { return p.having }

// Applies returns the aggregate projections in order.
func (p *Plan) Applies() []Apply { return cloneApplies(p.applies) }

// Derived returns the raw-mode derived attributes in order.
func (p *Plan) Derived() []Apply { return cloneApplies(p.derived) }

// SortSpec returns the sort directive, if any.
func (p *Plan) SortSpec() (Sort, bool) {
	if p.sort == nil {
		return Sort{}, false
	}
	return *p.sort, true
}

// LimitSpec returns the limit directive, if any.
func (p *Plan) LimitSpec() (Limit, bool) {
	if p.limit == nil {
		return Limit{}, false
	}
	return *p.limit, true
}

// Source returns the backend-specific spec fields.
func (p *Plan) Source() Source { return p.source }

// ID identifies the underlying dataset: a digest of the engine and the
// fingerprint of the filter. A filter holding a value with no canonical
// form is identified by its printed form instead.
func (p *Plan) ID() string {
	if p == nil {
		return ""
	}
	filter, err := expr.Fingerprint(p.filter)
	if err != nil {
		filter = exprString(p.filter)
	}
	return expr.Digest(expr.DomainPlan, []byte(p.engine+"\x00"+filter))
}

// Equal reports whether two plans target the same engine in the same mode
// with structurally equal filters.
func (p *Plan) Equal(o *Plan) bool {
	if p == nil || o == nil {
		return p == o
	}
	return p.engine == o.engine && p.mode == o.mode && expr.Equal(p.filter, o.filter)
}

func (p *Plan) String() string {
	if p == nil {
		return "External()"
	}
	switch p.mode {
	case ModeRaw:
		return fmt.Sprintf("ExternalRaw(%s)", exprString(p.filter))
	case ModeTotal:
		return fmt.Sprintf("ExternalTotal(%d)", len(p.applies))
	case ModeSplit:
		return fmt.Sprintf("ExternalSplit(%d)", len(p.applies))
	default:
		return "External()"
	}
}

// AttributeInfo looks a name up in the pre-aggregation schema when there is
// one, and in the current schema otherwise.
func (p *Plan) AttributeInfo(name string) (Attribute, bool) {
	if p.rawAttributes != nil {
		return p.rawAttributes.Get(name)
	}
	return p.attributes.Get(name)
}

// NeedsIntrospect reports whether the schema is still unknown.
func (p *Plan) NeedsIntrospect() bool { return p.attributes == nil }

// FullType describes the plan's output as a dataset type.
func (p *Plan) FullType() (FullType, error) {
	if err := p.check(); err != nil {
		return FullType{}, err
	}
	if p.attributes == nil {
		return FullType{}, ErrNotIntrospected
	}
	remote := []string{p.engine}
	datasetType := make(map[string]FullType, len(p.attributes))
	for _, attr := range p.attributes {
		datasetType[attr.Name] = FullType{Type: attr.Type, Remote: remote}
	}
	return FullType{Type: expr.TypeDataset, DatasetType: datasetType, Remote: remote}, nil
}

// SortOnLabel reports whether the plan sorts on its split key rather than
// on an aggregate.
func (p *Plan) SortOnLabel() bool {
	if p.sort == nil {
		return false
	}
	ref, ok := p.sort.Expr.(expr.Ref)
	if !ok || ref.Name != p.key {
		return false
	}
	for _, a := range p.applies {
		if a.Name == ref.Name {
			return false
		}
	}
	return true
}

// ToRaw returns the raw equivalent of the plan: the same dataset and filter
// with the pre-aggregation schema and no split, applies, sort or limit.
// A raw plan is returned unchanged.
func (p *Plan) ToRaw() *Plan {
	if p.check() != nil || p.mode == ModeRaw {
		return p
	}
	c := p.clone()
	c.suppress = true
	c.mode = ModeRaw
	c.dataName = ""
	c.attributes = p.rawAttributes.clone()
	c.rawAttributes = nil
	c.applies = nil
	c.split = nil
	c.having = nil
	c.sort = nil
	c.limit = nil
	return c
}

// ToTotal returns the total equivalent of a raw plan: a single aggregate row
// with an empty projection list. dataName names the attribute the nested raw
// plan is attached under.
func (p *Plan) ToTotal(dataName string) (*Plan, error) {
	if err := p.check(); err != nil {
		return nil, err
	}
	if p.mode != ModeRaw {
		return nil, reject(RejectMode, nil, "can only total a raw plan (mode is %s)", p.mode)
	}
	if !p.backend.CanAcceptTotal() {
		return nil, reject(RejectCapability, nil, "%s cannot compute a total", p.engine)
	}
	c := p.clone()
	c.suppress = false
	c.mode = ModeTotal
	c.dataName = dataName
	c.rawAttributes = p.attributes.clone()
	c.attributes = Attributes{}
	c.applies = []Apply{}
	return c, nil
}

// WithAttributes returns a copy with the schema replaced.
func (p *Plan) WithAttributes(attrs Attributes) *Plan {
	c := p.clone()
	c.attributes = attrs.clone()
	return c
}

// WithIntrospection returns a copy with the discovered schema installed.
// Pending attribute overrides are applied once and then dropped, so a later
// introspection does not see them again.
func (p *Plan) WithIntrospection(discovered Attributes) *Plan {
	c := p.clone()
	attrs := discovered.clone()
	if attrs == nil {
		attrs = Attributes{}
	}
	if len(p.attributeOverrides) > 0 {
		attrs = attrs.Override(p.attributeOverrides)
	}
	c.attributes = attrs
	c.attributeOverrides = nil
	return c
}

// BuildQuery asks the backend for the wire query of the plan.
func (p *Plan) BuildQuery() (Query, error) {
	if err := p.check(); err != nil {
		return Query{}, err
	}
	return p.backend.BuildQuery(p)
}

// BuildIntrospection asks the backend for the schema discovery query.
func (p *Plan) BuildIntrospection() (Introspection, error) {
	if err := p.check(); err != nil {
		return Introspection{}, err
	}
	return p.backend.BuildIntrospection(p)
}

// MergePlans flattens groups of plans, keeping the first plan of each ID,
// ordered by ID.
func MergePlans(groups ...[]*Plan) []*Plan {
	seen := map[string]*Plan{}
	for _, group := range groups {
		for _, p := range group {
			if p == nil {
				continue
			}
			if _, ok := seen[p.ID()]; !ok {
				seen[p.ID()] = p
			}
		}
	}
	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]*Plan, len(ids))
	for i, id := range ids {
		out[i] = seen[id]
	}
	return out
}
