package catalog

import (
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
)

// CompileError is a declaration error with its source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// CompileSource parses one CUE source struct, e.g. the value at
// "source.sales", into a declaration and checks that it yields a valid
// plan spec.
func CompileSource(v cue.Value) (SourceDecl, error) {
	if err := v.Err(); err != nil {
		return SourceDecl{}, formatCUEError(err)
	}

	var d SourceDecl
	labels := v.Path().Selectors()
	if len(labels) > 0 {
		d.Name = labels[len(labels)-1].String()
	}

	stringFields := []struct {
		field string
		dst   *string
	}{
		{"engine", &d.Engine},
		{"table", &d.Table},
		{"dataSource", &d.DataSource},
		{"timeAttribute", &d.TimeAttribute},
		{"filter", &d.Filter},
	}
	for _, s := range stringFields {
		if err := lookupString(v, s.field, s.dst); err != nil {
			return SourceDecl{}, err
		}
	}
	if d.Engine == "" {
		return SourceDecl{}, &CompileError{Field: "engine", Message: "engine is required", Pos: v.Pos()}
	}

	bools := []struct {
		field string
		dst   *bool
	}{
		{"allowEternity", &d.AllowEternity},
		{"exactResultsOnly", &d.ExactResultsOnly},
	}
	for _, b := range bools {
		f := v.LookupPath(cue.ParsePath(b.field))
		if !f.Exists() {
			continue
		}
		val, err := f.Bool()
		if err != nil {
			return SourceDecl{}, &CompileError{Field: b.field, Message: "must be a bool", Pos: f.Pos()}
		}
		*b.dst = val
	}

	var err error
	if d.Attributes, err = parseAttributes(v, "attributes"); err != nil {
		return SourceDecl{}, err
	}
	if d.AttributeOverrides, err = parseAttributes(v, "attributeOverrides"); err != nil {
		return SourceDecl{}, err
	}

	if ctxVal := v.LookupPath(cue.ParsePath("context")); ctxVal.Exists() {
		if err := ctxVal.Decode(&d.Context); err != nil {
			return SourceDecl{}, &CompileError{Field: "context", Message: err.Error(), Pos: ctxVal.Pos()}
		}
	}

	if _, err := d.Spec(); err != nil {
		var ce *CompileError
		if errors.As(err, &ce) && !ce.Pos.IsValid() {
			ce.Pos = v.Pos()
		}
		return SourceDecl{}, err
	}
	return d, nil
}

func lookupString(v cue.Value, field string, dst *string) error {
	f := v.LookupPath(cue.ParsePath(field))
	if !f.Exists() {
		return nil
	}
	s, err := f.String()
	if err != nil {
		return &CompileError{Field: field, Message: "must be a string", Pos: f.Pos()}
	}
	*dst = s
	return nil
}

// parseAttributes reads an ordered name: "TYPE" struct. An absent field
// yields nil, which means the schema is unknown.
func parseAttributes(v cue.Value, field string) ([]AttributeDecl, error) {
	attrsVal := v.LookupPath(cue.ParsePath(field))
	if !attrsVal.Exists() {
		return nil, nil
	}
	iter, err := attrsVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	decls := []AttributeDecl{}
	for iter.Next() {
		name := iter.Label()
		typ, err := iter.Value().String()
		if err != nil {
			return nil, &CompileError{
				Field:   field + "." + name,
				Message: "attribute type must be a string",
				Pos:     iter.Value().Pos(),
			}
		}
		decls = append(decls, AttributeDecl{Name: name, Type: typ})
	}
	return decls, nil
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}
	first := errs[0]
	if positions := errors.Positions(first); len(positions) > 0 {
		return &CompileError{Field: "cue", Message: first.Error(), Pos: positions[0]}
	}
	return err
}
