// Package normfile loads norm bundles, a norm together with the catalogue
// parameters it rates, from YAML or JSON files.
package normfile

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/ZanzyTHEbar/corrosion-rating/internal/rating"
	"github.com/bmatcuk/doublestar/v4"
	yamlv3 "gopkg.in/yaml.v3"
)

//go:embed schema/norm.cue
var schemaSource []byte

// Pattern matches the files LoadDir picks up.
const Pattern = "**/*.{yaml,yml,json}"

// Bundle is one norm file. It carries every parameter its norm rates.
type Bundle struct {
	Parameters []rating.Parameter `json:"parameters,omitempty"`
	Norm       rating.Norm        `json:"norm"`
	Source     string             `json:"-"`
}

// Catalog indexes the bundle's parameters by id.
func (b *Bundle) Catalog() map[string]rating.Parameter {
	out := make(map[string]rating.Parameter, len(b.Parameters))
	for _, p := range b.Parameters {
		out[p.ID] = p
	}
	return out
}

// SchemaError reports a file that does not match the bundle schema.
type SchemaError struct {
	File string
	Err  error
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("%s: schema validation failed: %v", e.File, e.Err)
}

func (e *SchemaError) Unwrap() error { return e.Err }

// Loader parses and validates bundles. It is not safe for concurrent use.
type Loader struct {
	ctx    *cue.Context
	bundle cue.Value
}

// NewLoader compiles the embedded bundle schema.
func NewLoader() (*Loader, error) {
	ctx := cuecontext.New()
	schema := ctx.CompileBytes(schemaSource, cue.Filename("norm.cue"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("compile norm schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#Bundle"))
	if !def.Exists() {
		return nil, errors.New("norm schema has no #Bundle definition")
	}
	return &Loader{ctx: ctx, bundle: def}, nil
}

// Parse decodes data, checks it against the schema and then against the
// semantic rules of parameters and norms. name is used in error messages.
func (l *Loader) Parse(name string, data []byte) (*Bundle, error) {
	var doc map[string]any
	if err := yamlv3.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%s: parse: %w", name, err)
	}
	if doc == nil {
		return nil, &SchemaError{File: name, Err: errors.New("document is empty")}
	}

	value := l.ctx.Encode(doc)
	if err := value.Err(); err != nil {
		return nil, fmt.Errorf("%s: encode: %w", name, err)
	}
	unified := l.bundle.Unify(value)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return nil, &SchemaError{File: name, Err: err}
	}

	// The schema guarantees the shape, JSON carries it into the typed model.
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	var b Bundle
	if err := json.Unmarshal(raw, &b); err != nil {
		return nil, fmt.Errorf("%s: decode: %w", name, err)
	}
	b.Source = name

	if err := Validate([]*Bundle{&b}); err != nil {
		return nil, err
	}
	return &b, nil
}

// LoadFile reads and parses a single bundle file.
func (l *Loader) LoadFile(path string) (*Bundle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read norm file: %w", err)
	}
	return l.Parse(path, data)
}

// LoadDir loads every bundle under dir. Files that fail are reported in the
// joined error; the bundles that loaded are still returned.
func (l *Loader) LoadDir(dir string) ([]*Bundle, error) {
	matches, err := doublestar.Glob(os.DirFS(dir), Pattern)
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", dir, err)
	}
	sort.Strings(matches)

	var (
		bundles []*Bundle
		errs    []error
		seen    = map[string]string{}
	)
	for _, rel := range matches {
		path := filepath.Join(dir, filepath.FromSlash(rel))
		b, err := l.LoadFile(path)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if prev, dup := seen[b.Norm.ID]; dup {
			errs = append(errs, fmt.Errorf("%s: norm %q already defined in %s", path, b.Norm.ID, prev))
			continue
		}
		seen[b.Norm.ID] = path
		bundles = append(bundles, b)
	}
	return bundles, errors.Join(errs...)
}

// Validate checks every parameter and norm of the bundles against the
// catalogue the bundles define together.
func Validate(bundles []*Bundle) error {
	catalog := map[string]rating.Parameter{}
	var errs []error
	for _, b := range bundles {
		for _, p := range b.Parameters {
			if err := p.Validate(); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", b.Source, err))
				continue
			}
			catalog[p.ID] = p
		}
	}

	for _, b := range bundles {
		for i, np := range b.Norm.Parameters {
			if _, ok := catalog[np.ParameterID]; !ok {
				errs = append(errs, fmt.Errorf("%s: %w", b.Source, &rating.ConfigError{
					Subject: "norm " + b.Norm.ID,
					Field:   fmt.Sprintf("parameters[%d].parameterId", i),
					Reason:  fmt.Sprintf("unknown parameter %q", np.ParameterID),
				}))
			}
		}
		if err := b.Norm.WithCatalog(catalog).Validate(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", b.Source, err))
		}
	}
	return errors.Join(errs...)
}

// IsSchemaError reports whether err contains a SchemaError.
func IsSchemaError(err error) bool {
	var se *SchemaError
	return errors.As(err, &se)
}
