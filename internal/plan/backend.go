package plan

import (
	"fmt"
	"sort"
	"sync"

	"github.com/roach88/fedplan/internal/expr"
)

// Backend is the capability and query-construction contract of one engine.
//
// Every method is required. The capability predicates are pure: they look
// only at their argument and the backend's own configuration, never at the
// plan being built.
type Backend interface {
	// Engine is the registered engine name.
	Engine() string

	CanAcceptFilter(e expr.Expr) bool
	CanAcceptTotal() bool
	CanAcceptSplit(e expr.Expr) bool
	CanAcceptApply(e expr.Expr) bool
	CanAcceptSort(s Sort) bool
	CanAcceptLimit(l Limit) bool
	CanAcceptHavingFilter(e expr.Expr) bool

	// BuildQuery produces the wire request for a finalized plan and the
	// transform that maps the response into a Dataset.
	BuildQuery(p *Plan) (Query, error)

	// BuildIntrospection produces the schema discovery request.
	BuildIntrospection(p *Plan) (Introspection, error)
}

// Factory builds the backend for a plan spec. It validates the
// backend-specific fields (table, dataSource, ...).
type Factory func(spec Spec) (Backend, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
)

// Register makes a backend available under engine. It is meant to be called
// from an init function and panics if engine is registered twice.
func Register(engine string, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if f == nil {
		panic("plan: Register factory is nil")
	}
	if _, dup := registry[engine]; dup {
		panic("plan: Register called twice for engine " + engine)
	}
	registry[engine] = f
}

// Engines returns the registered engine names, sorted.
func Engines() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func lookupFactory(engine string) (Factory, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	f, ok := registry[engine]
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownEngine, engine)
	}
	return f, nil
}

// Request is a backend-built wire query. The same shape travels to every
// transport; each engine reads the fields it needs.
type Request struct {
	// ID correlates logs and metrics of one round trip.
	ID string `json:"id,omitempty"`

	// Engine selects the transport handler.
	Engine string `json:"engine"`

	// Kind is "query" or "introspect".
	Kind string `json:"kind"`

	// Source is the table name or file path.
	Source string `json:"source,omitempty"`

	// Query is the SQL text, for SQL engines.
	Query string `json:"query,omitempty"`

	// Args are the positional parameters of Query.
	Args []any `json:"args,omitempty"`

	// Columns restricts a file read to these columns.
	Columns []string `json:"columns,omitempty"`

	// Limit caps a file read. Zero means no limit.
	Limit int `json:"limit,omitempty"`

	// Context is passed through from the plan spec.
	Context map[string]any `json:"context,omitempty"`
}

// Request kinds.
const (
	KindQuery      = "query"
	KindIntrospect = "introspect"
)

// Response is a tabular transport result.
type Response struct {
	Columns []string `json:"columns"`
	Rows    [][]any  `json:"rows"`
}

// Query pairs a wire request with its response transform.
type Query struct {
	Request   Request
	Transform func(Response) (Dataset, error)
}

// Introspection pairs a schema discovery request with its transform.
type Introspection struct {
	Request   Request
	Transform func(Response) (Attributes, error)
}
