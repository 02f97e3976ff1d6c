package chunk

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEmptyChunkIsValid(t *testing.T) {
	c := NewEmpty([]string{"id", "name"})
	assert.True(t, c.Empty())
	assert.Equal(t, []string{"id", "name"}, c.Columns)
}

func TestFromMapsUnionsColumns(t *testing.T) {
	c := FromMaps([]map[string]any{
		{"id": 1, "name": "a"},
		{"id": 2},
	})
	assert.ElementsMatch(t, []string{"id", "name"}, c.Columns)
	assert.Equal(t, 2, c.Len())
}

func TestCloneIsIndependent(t *testing.T) {
	c := FromMaps([]map[string]any{{"id": 1}})
	clone := c.Clone()
	clone.Rows[0]["id"] = 99
	assert.Equal(t, 1, c.Rows[0]["id"])
	assert.Equal(t, 99, clone.Rows[0]["id"])
}

func TestBuilderAccumulates(t *testing.T) {
	b := NewBuilder()
	b.Add(Row{"id": 1})
	b.Add(Row{"id": 2, "name": "x"})
	out := b.Build()
	assert.Equal(t, 2, out.Len())
	assert.ElementsMatch(t, []string{"id", "name"}, out.Columns)
}

func TestFilterPreservesOrder(t *testing.T) {
	c := FromMaps([]map[string]any{{"id": 1}, {"id": 2}, {"id": 3}})
	out := c.Filter(func(r Row) bool {
		id, _ := r["id"].(int)
		return id%2 == 1
	})
	assert.Equal(t, 2, out.Len())
	assert.Equal(t, 1, out.Rows[0]["id"])
	assert.Equal(t, 3, out.Rows[1]["id"])
}
