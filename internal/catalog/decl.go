// Package catalog turns data source declarations into plan specs.
//
// Sources are declared in CUE under a top-level "source" struct, one field
// per source:
//
//	source: sales: {
//		engine:        "postgres"
//		table:         "analytics.sales"
//		timeAttribute: "time"
//		attributes: {
//			time:    "TIME"
//			country: "STRING"
//			price:   "NUMBER"
//		}
//		filter: "$country == \"US\""
//		context: timeoutMs: 5000
//	}
//
// Attribute order follows declaration order. A source without attributes is
// introspected before planning.
package catalog

import (
	"fmt"

	"github.com/roach88/fedplan/internal/expr"
	"github.com/roach88/fedplan/internal/plan"
)

// SourceDecl is one declared data source.
type SourceDecl struct {
	Name               string          `yaml:"name"`
	Engine             string          `yaml:"engine"`
	Table              string          `yaml:"table"`
	DataSource         string          `yaml:"dataSource"`
	TimeAttribute      string          `yaml:"timeAttribute"`
	AllowEternity      bool            `yaml:"allowEternity"`
	ExactResultsOnly   bool            `yaml:"exactResultsOnly"`
	Attributes         []AttributeDecl `yaml:"attributes"`
	AttributeOverrides []AttributeDecl `yaml:"attributeOverrides"`
	Filter             string          `yaml:"filter"`
	Context            map[string]any  `yaml:"context"`
}

// AttributeDecl is a declared column.
type AttributeDecl struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`
}

// Spec validates the declaration and converts it into a plan spec.
func (d SourceDecl) Spec() (plan.Spec, error) {
	if d.Engine == "" {
		return plan.Spec{}, &CompileError{Field: "engine", Message: "engine is required"}
	}
	attrs, err := attributes("attributes", d.Attributes)
	if err != nil {
		return plan.Spec{}, err
	}
	overrides, err := attributes("attributeOverrides", d.AttributeOverrides)
	if err != nil {
		return plan.Spec{}, err
	}

	spec := plan.Spec{
		Engine:             d.Engine,
		Attributes:         attrs,
		AttributeOverrides: overrides,
		Source: plan.Source{
			Table:            d.Table,
			DataSource:       d.DataSource,
			TimeAttribute:    d.TimeAttribute,
			AllowEternity:    d.AllowEternity,
			ExactResultsOnly: d.ExactResultsOnly,
			Context:          d.Context,
		},
	}
	if d.TimeAttribute != "" && attrs != nil {
		if a, ok := attrs.Get(d.TimeAttribute); !ok || a.Type != expr.TypeTime {
			return plan.Spec{}, &CompileError{
				Field:   "timeAttribute",
				Message: fmt.Sprintf("%s is not a TIME attribute", d.TimeAttribute),
			}
		}
	}
	if d.Filter != "" {
		f, err := expr.Parse(d.Filter, attrs.Env())
		if err != nil {
			return plan.Spec{}, &CompileError{Field: "filter", Message: err.Error()}
		}
		if f.Type() != expr.TypeBoolean {
			return plan.Spec{}, &CompileError{Field: "filter", Message: "filter must be a boolean expression"}
		}
		spec.Filter = f
	}

	// Backend-specific requirements (a table, a file path) are checked by
	// constructing the plan once.
	if _, err := plan.New(spec); err != nil {
		return plan.Spec{}, &CompileError{Field: "engine", Message: err.Error()}
	}
	return spec, nil
}

func attributes(field string, decls []AttributeDecl) (plan.Attributes, error) {
	if decls == nil {
		return nil, nil
	}
	attrs := make(plan.Attributes, 0, len(decls))
	seen := map[string]bool{}
	for _, d := range decls {
		if d.Name == "" {
			return nil, &CompileError{Field: field, Message: "attribute name is empty"}
		}
		if seen[d.Name] {
			return nil, &CompileError{Field: field, Message: fmt.Sprintf("attribute %s declared twice", d.Name)}
		}
		seen[d.Name] = true
		t, err := expr.ParseType(d.Type)
		if err != nil {
			return nil, &CompileError{Field: field + "." + d.Name, Message: err.Error()}
		}
		attrs = append(attrs, plan.Attribute{Name: d.Name, Type: t})
	}
	return attrs, nil
}
