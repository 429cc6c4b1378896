package schema

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"github.com/tailscale/hujson"
	"gopkg.in/yaml.v3"
)

//go:embed schema.cue
var schemaCUE string

// Format identifies the encoding of a schema document.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	FormatCUE  Format = "cue"
)

// FormatFromPath picks a format from a file extension. Unknown extensions are
// read as JSON.
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	case ".cue":
		return FormatCUE
	default:
		return FormatJSON
	}
}

// LoadFile reads, validates and compiles the schema file at path.
func LoadFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schema: %w", err)
	}
	doc, err := Parse(data, FormatFromPath(path), path)
	if err != nil {
		return nil, err
	}
	return NewCatalog(doc)
}

// Parse decodes a schema document and checks it against the #Schema
// definition. filename is only used in error positions.
func Parse(data []byte, format Format, filename string) (Document, error) {
	ctx := cuecontext.New()

	def := ctx.CompileString(schemaCUE, cue.Filename("schema.cue")).LookupPath(cue.ParsePath("#Schema"))
	if err := def.Err(); err != nil {
		return Document{}, fmt.Errorf("compile schema definition: %w", err)
	}

	var value cue.Value
	switch format {
	case FormatCUE:
		value = ctx.CompileBytes(data, cue.Filename(filename))
	case FormatYAML:
		var raw any
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return Document{}, fmt.Errorf("%w: %s: %w", ErrInvalidSchema, filename, err)
		}
		value = ctx.Encode(raw)
	case FormatJSON:
		standardized, err := hujson.Standardize(data)
		if err != nil {
			return Document{}, fmt.Errorf("%w: %s: invalid JSONC: %w", ErrInvalidSchema, filename, err)
		}
		var raw any
		if err := json.Unmarshal(standardized, &raw); err != nil {
			return Document{}, fmt.Errorf("%w: %s: %w", ErrInvalidSchema, filename, err)
		}
		value = ctx.Encode(raw)
	default:
		return Document{}, fmt.Errorf("%w: unsupported format %q", ErrInvalidSchema, format)
	}
	if err := value.Err(); err != nil {
		return Document{}, fmt.Errorf("%w: %s", ErrInvalidSchema, cueerrors.Details(err, nil))
	}

	unified := def.Unify(value)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return Document{}, fmt.Errorf("%w: %s", ErrInvalidSchema, strings.TrimSpace(cueerrors.Details(err, nil)))
	}

	var doc Document
	if err := unified.Decode(&doc); err != nil {
		return Document{}, fmt.Errorf("%w: decode: %w", ErrInvalidSchema, err)
	}
	return doc, nil
}

// Encode renders a document in the given format. CUE output is not supported.
func Encode(doc Document, format Format) ([]byte, error) {
	switch format {
	case FormatYAML:
		return yaml.Marshal(doc)
	case FormatJSON:
		data, err := json.MarshalIndent(doc, "", "  ")
		if err != nil {
			return nil, err
		}
		return append(data, '\n'), nil
	default:
		return nil, fmt.Errorf("cannot encode schema as %q", format)
	}
}
