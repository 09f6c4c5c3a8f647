package plan

import "github.com/roach88/fedplan/internal/expr"

// Attribute is one column of a plan's schema.
type Attribute struct {
	Name string    `json:"name"`
	Type expr.Type `json:"type"`
}

// Attributes is an ordered schema. A nil Attributes means the schema has not
// been discovered yet; an empty non-nil one is a known empty schema.
type Attributes []Attribute

// Get returns the attribute with the given name.
func (a Attributes) Get(name string) (Attribute, bool) {
	for _, attr := range a {
		if attr.Name == name {
			return attr, true
		}
	}
	return Attribute{}, false
}

// Has reports whether name is in the schema.
func (a Attributes) Has(name string) bool {
	_, ok := a.Get(name)
	return ok
}

// With returns a copy with name set to t. An existing attribute keeps its
// position; a new one is appended.
func (a Attributes) With(name string, t expr.Type) Attributes {
	out := make(Attributes, 0, len(a)+1)
	replaced := false
	for _, attr := range a {
		if attr.Name == name {
			attr.Type = t
			replaced = true
		}
		out = append(out, attr)
	}
	if !replaced {
		out = append(out, Attribute{Name: name, Type: t})
	}
	return out
}

// Override returns a copy with every attribute of patch applied over a.
func (a Attributes) Override(patch Attributes) Attributes {
	out := a.clone()
	if out == nil {
		out = Attributes{}
	}
	for _, attr := range patch {
		out = out.With(attr.Name, attr.Type)
	}
	return out
}

// Names returns the attribute names in schema order.
func (a Attributes) Names() []string {
	names := make([]string, len(a))
	for i, attr := range a {
		names[i] = attr.Name
	}
	return names
}

// Env returns the schema as a parser environment.
func (a Attributes) Env() expr.Env {
	env := make(expr.Env, len(a))
	for _, attr := range a {
		env[attr.Name] = attr.Type
	}
	return env
}

func (a Attributes) clone() Attributes {
	if a == nil {
		return nil
	}
	out := make(Attributes, len(a))
	copy(out, a)
	return out
}

// FullType describes a dataset-valued expression together with the engines
// that compute it.
type FullType struct {
	Type        expr.Type           `json:"type"`
	Remote      []string            `json:"remote,omitempty"`
	DatasetType map[string]FullType `json:"datasetType,omitempty"`
}
