package schemadiscovery

import (
	"testing"

	"github.com/latticedb/lattice/internal/jsonflat"
	"github.com/latticedb/lattice/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiscoverCollapsesDuplicatePaths(t *testing.T) {
	leaves := []jsonflat.Leaf{
		{Path: "tags", DataType: model.LeafString, Encoded: "a"},
		{Path: "tags", DataType: model.LeafString, Encoded: "b"},
	}
	els := Discover(leaves)
	require.Len(t, els, 1)
	assert.Equal(t, "tags", els[0].Key)
	assert.False(t, els[0].Nullable)
}

func TestDiscoverNullAndNonNullBecomesNullable(t *testing.T) {
	leaves := []jsonflat.Leaf{
		{Path: "nickname", DataType: model.LeafNull, IsNull: true, Encoded: jsonflat.NullSentinel},
		{Path: "nickname", DataType: model.LeafString, Encoded: "ada"},
	}
	els := Discover(leaves)
	require.Len(t, els, 1)
	assert.Equal(t, model.LeafString, els[0].DataType)
	assert.True(t, els[0].Nullable)
}

func TestDiscoverConflictingNonNullTypesWidenToString(t *testing.T) {
	leaves := []jsonflat.Leaf{
		{Path: "value", DataType: model.LeafInteger, Encoded: "1"},
		{Path: "value", DataType: model.LeafBoolean, Encoded: "true"},
	}
	els := Discover(leaves)
	require.Len(t, els, 1)
	assert.Equal(t, model.LeafString, els[0].DataType)
	assert.True(t, els[0].Nullable)
}

func TestDiscoverPreservesOrder(t *testing.T) {
	leaves := []jsonflat.Leaf{
		{Path: "z", DataType: model.LeafString, Encoded: "1"},
		{Path: "a", DataType: model.LeafString, Encoded: "2"},
	}
	els := Discover(leaves)
	require.Len(t, els, 2)
	assert.Equal(t, "z", els[0].Key)
	assert.Equal(t, "a", els[1].Key)
}

func TestHashDeterministic(t *testing.T) {
	els := []model.SchemaElement{
		{Key: "name", DataType: model.LeafString},
		{Key: "age", DataType: model.LeafInteger},
	}
	h1, err := Hash(els)
	require.NoError(t, err)
	h2, err := Hash(els)
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
	assert.Len(t, h1, 64)
}

func TestHashDiffersOnOrder(t *testing.T) {
	a := []model.SchemaElement{{Key: "name", DataType: model.LeafString}, {Key: "age", DataType: model.LeafInteger}}
	b := []model.SchemaElement{{Key: "age", DataType: model.LeafInteger}, {Key: "name", DataType: model.LeafString}}
	ha, err := Hash(a)
	require.NoError(t, err)
	hb, err := Hash(b)
	require.NoError(t, err)
	assert.NotEqual(t, ha, hb)
}
