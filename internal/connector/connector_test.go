package connector

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStripEphemeralKeys(t *testing.T) {
	config := map[string]any{
		"host": "db1", "ui": true, "connection_id": "c1", "batch_size": 100,
		"watermark_column": "updated_at",
	}
	stripped := StripEphemeralKeys(config)
	assert.Equal(t, map[string]any{"host": "db1"}, stripped)
}

func TestNormalizeAssetIdentifier(t *testing.T) {
	schema, name := NormalizeAssetIdentifier("public.orders", "default")
	assert.Equal(t, "public", schema)
	assert.Equal(t, "orders", name)

	schema, name = NormalizeAssetIdentifier("orders", "default")
	assert.Equal(t, "default", schema)
	assert.Equal(t, "orders", name)

	schema, name = NormalizeAssetIdentifier("a.b.c", "default")
	assert.Equal(t, "a.b", schema)
	assert.Equal(t, "c", name)
}
