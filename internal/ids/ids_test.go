package ids

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewHasExpectedPrefix(t *testing.T) {
	id := New(PrefixDocument)
	require.True(t, strings.HasPrefix(id, "doc_"))
	assert.True(t, HasPrefix(id, PrefixDocument))
	assert.False(t, HasPrefix(id, PrefixCollection))
}

func TestNewIsUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := New(PrefixCollection)
		require.False(t, seen[id], "collision at iteration %d", i)
		seen[id] = true
	}
}

func TestValid(t *testing.T) {
	assert.True(t, Valid(New(PrefixSchema)))
	assert.False(t, Valid("not-an-id"))
	assert.False(t, Valid("doc_"))
	assert.False(t, Valid(""))
}
