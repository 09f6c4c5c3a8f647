package plan

import (
	"encoding/json"
	"fmt"

	"github.com/roach88/fedplan/internal/expr"
)

// Source holds the backend-specific fields of a plan spec.
type Source struct {
	// Table is the relation name for SQL engines.
	Table string `json:"table,omitempty"`

	// DataSource is the file path for file engines.
	DataSource string `json:"dataSource,omitempty"`

	// TimeAttribute names the primary time column.
	TimeAttribute string `json:"timeAttribute,omitempty"`

	// AllowEternity permits queries that are not bounded on TimeAttribute.
	AllowEternity bool `json:"allowEternity,omitempty"`

	// ExactResultsOnly rejects aggregates the engine can only approximate.
	ExactResultsOnly bool `json:"exactResultsOnly,omitempty"`

	// Context is passed through to every request.
	Context map[string]any `json:"context,omitempty"`
}

// Spec is the serialized form of a plan.
//
// A spec only describes the raw dataset: operations added later are not
// serialized. Filter is omitted when it is the always-true predicate.
type Spec struct {
	Engine             string
	Attributes         Attributes
	AttributeOverrides Attributes
	Key                string
	Filter             expr.Expr
	RawAttributes      Attributes
	Source
}

type specJSON struct {
	Engine             string         `json:"engine"`
	Attributes         Attributes     `json:"attributes,omitempty"`
	AttributeOverrides Attributes     `json:"attributeOverrides,omitempty"`
	Key                string         `json:"key,omitempty"`
	Filter             map[string]any `json:"filter,omitempty"`
	RawAttributes      Attributes     `json:"rawAttributes,omitempty"`
	Source
}

// MarshalJSON implements json.Marshaler.
func (s Spec) MarshalJSON() ([]byte, error) {
	out := specJSON{
		Engine:             s.Engine,
		Attributes:         s.Attributes,
		AttributeOverrides: s.AttributeOverrides,
		Key:                s.Key,
		RawAttributes:      s.RawAttributes,
		Source:             s.Source,
	}
	if s.Filter != nil && !expr.Equal(s.Filter, expr.True) {
		rec, err := expr.Encode(s.Filter)
		if err != nil {
			return nil, fmt.Errorf("encode filter: %w", err)
		}
		out.Filter = rec
	}
	return json.Marshal(out)
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *Spec) UnmarshalJSON(data []byte) error {
	var in specJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*s = Spec{
		Engine:             in.Engine,
		Attributes:         in.Attributes,
		AttributeOverrides: in.AttributeOverrides,
		Key:                in.Key,
		Filter:             expr.True,
		RawAttributes:      in.RawAttributes,
		Source:             in.Source,
	}
	if in.Filter != nil {
		f, err := expr.Decode(in.Filter)
		if err != nil {
			return fmt.Errorf("decode filter: %w", err)
		}
		s.Filter = f
	}
	return nil
}

// FromJSON parses a serialized spec and constructs its plan.
func FromJSON(data []byte, opts ...Option) (*Plan, error) {
	var spec Spec
	if err := json.Unmarshal(data, &spec); err != nil {
		return nil, fmt.Errorf("parse plan spec: %w", err)
	}
	return New(spec, opts...)
}

// Spec returns the serialized form of the plan.
func (p *Plan) Spec() (Spec, error) {
	if err := p.check(); err != nil {
		return Spec{}, err
	}
	return Spec{
		Engine:             p.engine,
		Attributes:         p.attributes.clone(),
		AttributeOverrides: p.attributeOverrides.clone(),
		Key:                p.key,
		Filter:             p.filter,
		RawAttributes:      p.rawAttributes.clone(),
		Source:             p.source,
	}, nil
}

// MarshalJSON serializes the plan through its spec.
func (p *Plan) MarshalJSON() ([]byte, error) {
	spec, err := p.Spec()
	if err != nil {
		return nil, err
	}
	return json.Marshal(spec)
}
