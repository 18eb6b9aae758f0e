package jsonflat

import (
	"testing"

	"github.com/latticedb/lattice/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlattenOrderedScalarTypes(t *testing.T) {
	raw := []byte(`{"name":"ada","age":36,"score":9.5,"active":true,"nickname":null}`)
	leaves, err := FlattenOrdered(raw)
	require.NoError(t, err)
	require.Len(t, leaves, 5)

	byPath := map[string]Leaf{}
	for _, l := range leaves {
		byPath[l.Path] = l
	}

	assert.Equal(t, model.LeafString, byPath["name"].DataType)
	assert.Equal(t, "ada", byPath["name"].Encoded)

	assert.Equal(t, model.LeafInteger, byPath["age"].DataType)
	assert.Equal(t, "36", byPath["age"].Encoded)

	assert.Equal(t, model.LeafNumber, byPath["score"].DataType)
	assert.Equal(t, "9.5", byPath["score"].Encoded)

	assert.Equal(t, model.LeafBoolean, byPath["active"].DataType)
	assert.Equal(t, "true", byPath["active"].Encoded)

	assert.Equal(t, model.LeafNull, byPath["nickname"].DataType)
	assert.True(t, byPath["nickname"].IsNull)
	assert.Equal(t, NullSentinel, byPath["nickname"].Encoded)
}

func TestFlattenOrderedNestedObject(t *testing.T) {
	raw := []byte(`{"address":{"city":"boston","zip":"02101"}}`)
	leaves, err := FlattenOrdered(raw)
	require.NoError(t, err)
	require.Len(t, leaves, 2)
	assert.Equal(t, "address.city", leaves[0].Path)
	assert.Equal(t, "address.zip", leaves[1].Path)
}

func TestFlattenOrderedArrayContributesNoSegment(t *testing.T) {
	raw := []byte(`{"tags":["a","b","c"]}`)
	leaves, err := FlattenOrdered(raw)
	require.NoError(t, err)
	require.Len(t, leaves, 3)
	for _, l := range leaves {
		assert.Equal(t, "tags", l.Path)
	}
	assert.Equal(t, "a", leaves[0].Encoded)
	assert.Equal(t, "b", leaves[1].Encoded)
	assert.Equal(t, "c", leaves[2].Encoded)
}

func TestFlattenOrderedArrayOfObjectsFlattensWithArrayPathAsParent(t *testing.T) {
	raw := []byte(`{"items":[{"sku":"A1","qty":2},{"sku":"B2","qty":1}]}`)
	leaves, err := FlattenOrdered(raw)
	require.NoError(t, err)
	require.Len(t, leaves, 4)
	assert.Equal(t, "items.sku", leaves[0].Path)
	assert.Equal(t, "items.qty", leaves[1].Path)
	assert.Equal(t, "items.sku", leaves[2].Path)
	assert.Equal(t, "items.qty", leaves[3].Path)
}

func TestFlattenOrderedPreservesDocumentOrder(t *testing.T) {
	raw := []byte(`{"z":1,"a":2,"m":3}`)
	leaves, err := FlattenOrdered(raw)
	require.NoError(t, err)
	require.Len(t, leaves, 3)
	assert.Equal(t, []string{"z", "a", "m"}, []string{leaves[0].Path, leaves[1].Path, leaves[2].Path})
}

func TestIsIntegerLiteral(t *testing.T) {
	assert.True(t, isIntegerLiteral("42"))
	assert.True(t, isIntegerLiteral("-7"))
	assert.False(t, isIntegerLiteral("4.2"))
	assert.False(t, isIntegerLiteral("4e2"))
}
