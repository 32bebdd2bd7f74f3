package catalog

import (
	_ "embed"
	"fmt"
)

// DefaultYAML is the built-in restaurant menu used when no catalog path is configured.
//
//go:embed default.yaml
var DefaultYAML []byte

// Builtin compiles the embedded catalog.
func Builtin() (*Catalog, error) {
	c, err := Compile(DefaultYAML, FormatYAML)
	if err != nil {
		return nil, fmt.Errorf("builtin catalog: %w", err)
	}
	return c, nil
}
