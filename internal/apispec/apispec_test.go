package apispec

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	doc, err := Load(context.Background())
	require.NoError(t, err)

	for _, path := range []string{"/", "/users", "/users/{id}", "/ping", "/internal/stats", "/openapi.yaml"} {
		assert.NotNil(t, doc.Paths.Find(path), "path %s should be described", path)
	}
	assert.NotEmpty(t, Raw())
}
