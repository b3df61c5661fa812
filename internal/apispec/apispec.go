// Package apispec embeds the OpenAPI description of the HTTP API.
package apispec

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/getkin/kin-openapi/openapi3"
)

//go:embed openapi.yaml
var document []byte

// Raw returns the embedded document as served to clients.
func Raw() []byte {
	return document
}

// Load parses and validates the embedded document.
func Load(ctx context.Context) (*openapi3.T, error) {
	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromData(document)
	if err != nil {
		return nil, fmt.Errorf("in internal/apispec/apispec.go/Load(): error while `loader.LoadFromData()` calling: %w", err)
	}

	if err := doc.Validate(ctx); err != nil {
		return nil, fmt.Errorf("in internal/apispec/apispec.go/Load(): error while `doc.Validate()` calling: %w", err)
	}

	return doc, nil
}
