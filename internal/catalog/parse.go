package catalog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/goccy/go-yaml"
)

// Format is the authoring format of a catalog file.
type Format string

// Supported formats.
const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// FormatFromPath picks a format from the file extension, ignoring a
// trailing .zst. Unknown extensions are treated as YAML.
func FormatFromPath(path string) Format {
	path = strings.TrimSuffix(path, ".zst")
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return FormatJSON
	}
	return FormatYAML
}

// Parse decodes an authored catalog. Unknown fields are rejected so typos
// in a catalog fail loudly instead of silently dropping content.
func Parse(data []byte, format Format) (*Document, error) {
	var doc Document
	switch format {
	case FormatJSON:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&doc); err != nil {
			return nil, fmt.Errorf("parse catalog json: %w", err)
		}
	case FormatYAML, "":
		if err := yaml.UnmarshalWithOptions(data, &doc, yaml.DisallowUnknownField()); err != nil {
			return nil, fmt.Errorf("parse catalog yaml:\n%s", yaml.FormatError(err, false, true))
		}
	default:
		return nil, fmt.Errorf("parse catalog: unsupported format %q", format)
	}
	return &doc, nil
}

// Compile parses and validates in one step.
func Compile(data []byte, format Format) (*Catalog, error) {
	doc, err := Parse(data, format)
	if err != nil {
		return nil, err
	}
	return New(doc)
}
