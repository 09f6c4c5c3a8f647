package catalog

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"

	"github.com/roach88/fedplan/internal/plan"
)

// LoadMode controls how errors are handled during loading.
type LoadMode int

const (
	// LoadModeFailFast stops on the first error encountered.
	LoadModeFailFast LoadMode = iota
	// LoadModeCollectAll collects all errors before returning.
	LoadModeCollectAll
)

// Error codes shared with the CLI.
const (
	ErrCodeGeneric     = "E001"
	ErrCodeScanError   = "E002"
	ErrCodeNoFiles     = "E003"
	ErrCodeLoadFailed  = "E004"
	ErrCodeNotFound    = "E005"
	ErrCodeBuildFailed = "E006"

	ErrCodeEngine     = "E101"
	ErrCodeAttributes = "E102"
	ErrCodeFilter     = "E103"
	ErrCodeTimeAttr   = "E104"
)

// ErrUnknownSource is returned for a source name the catalog does not
// declare.
var ErrUnknownSource = errors.New("catalog: unknown source")

// LoadError is a catalog loading error.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Catalog holds the declared sources of one directory.
type Catalog struct {
	names     []string
	decls     map[string]SourceDecl
	FileCount int
}

// New builds a catalog from declarations, checking each one.
func New(decls ...SourceDecl) (*Catalog, error) {
	c := &Catalog{decls: map[string]SourceDecl{}}
	for _, d := range decls {
		if err := c.add(d); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (c *Catalog) add(d SourceDecl) error {
	if d.Name == "" {
		return &CompileError{Field: "name", Message: "source name is required"}
	}
	if _, dup := c.decls[d.Name]; dup {
		return &CompileError{Field: "name", Message: fmt.Sprintf("source %s declared twice", d.Name)}
	}
	if _, err := d.Spec(); err != nil {
		return fmt.Errorf("source %s: %w", d.Name, err)
	}
	c.names = append(c.names, d.Name)
	c.decls[d.Name] = d
	return nil
}

// Names returns the source names in declaration order.
func (c *Catalog) Names() []string {
	return append([]string(nil), c.names...)
}

// Decl returns the declaration of name.
func (c *Catalog) Decl(name string) (SourceDecl, bool) {
	d, ok := c.decls[name]
	return d, ok
}

// Plan creates a fresh raw plan over the named source.
func (c *Catalog) Plan(name string, opts ...plan.Option) (*plan.Plan, error) {
	d, ok := c.decls[name]
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownSource, name)
	}
	spec, err := d.Spec()
	if err != nil {
		return nil, fmt.Errorf("source %s: %w", name, err)
	}
	return plan.New(spec, opts...)
}

// Load reads every CUE file of dir and compiles its sources.
// If mode is LoadModeFailFast, returns on first error.
// If mode is LoadModeCollectAll, collects all errors.
func Load(dir string, mode LoadMode) (*Catalog, []error) {
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("catalog directory not found: %s", dir)}}
	}
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing catalog directory: %v", err)}}
	}
	if !info.IsDir() {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("not a directory: %s", dir)}}
	}

	cueFiles, err := FindCUEFiles(dir)
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeScanError, Message: fmt.Sprintf("error scanning directory: %v", err)}}
	}
	if len(cueFiles) == 0 {
		return nil, []error{&LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no CUE files found in %s", dir)}}
	}

	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, []error{&LoadError{Code: ErrCodeLoadFailed, Message: "no CUE instances loaded"}}
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, []error{&LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("loading CUE files: %v", inst.Err)}}
	}

	value := cuecontext.New().BuildInstance(inst)
	if err := value.Err(); err != nil {
		return nil, []error{&LoadError{Code: ErrCodeBuildFailed, Message: fmt.Sprintf("building CUE value: %v", err)}}
	}

	c, errs := FromValue(value, mode)
	if c != nil {
		c.FileCount = len(cueFiles)
	}
	return c, errs
}

// FromValue compiles the sources of an already built CUE value.
func FromValue(value cue.Value, mode LoadMode) (*Catalog, []error) {
	var errs []error
	c := &Catalog{decls: map[string]SourceDecl{}}

	sources := value.LookupPath(cue.ParsePath("source"))
	if !sources.Exists() {
		return c, []error{&LoadError{Code: ErrCodeGeneric, Message: "no sources declared"}}
	}
	iter, err := sources.Fields()
	if err != nil {
		return c, []error{&LoadError{Code: ErrCodeGeneric, Message: fmt.Sprintf("iterating sources: %v", err)}}
	}
	for iter.Next() {
		d, err := CompileSource(iter.Value())
		if err == nil {
			err = c.add(d)
		}
		if err != nil {
			errs = append(errs, convertCompileError(err, "source."+iter.Label()))
			if mode == LoadModeFailFast {
				return c, errs
			}
		}
	}
	return c, errs
}

// FindCUEFiles walks the directory and returns all .cue file paths.
func FindCUEFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && filepath.Ext(path) == ".cue" {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

func convertCompileError(err error, context string) *LoadError {
	var ce *CompileError
	if errors.As(err, &ce) {
		return &LoadError{
			Code:    MapFieldToErrorCode(ce.Field),
			Message: fmt.Sprintf("%s: %s", context, ce.Message),
			Pos:     ce.Pos,
		}
	}
	return &LoadError{Code: ErrCodeGeneric, Message: fmt.Sprintf("%s: %v", context, err)}
}

// MapFieldToErrorCode maps a declaration field to an error code.
func MapFieldToErrorCode(field string) string {
	switch {
	case field == "engine":
		return ErrCodeEngine
	case strings.HasPrefix(field, "attribute"):
		return ErrCodeAttributes
	case field == "filter":
		return ErrCodeFilter
	case field == "timeAttribute":
		return ErrCodeTimeAttr
	default:
		return ErrCodeGeneric
	}
}
