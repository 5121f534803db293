package halcyon

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore(t *testing.T) {
	store := NewStore()

	_, ok := store.Get("missing")
	assert.False(t, ok)

	store.Set("key", 42)
	store.Set("other", "value")

	assert.Equal(t, 2, store.Len())

	value, ok := store.Get("key")
	require.True(t, ok)
	assert.Equal(t, 42, value)

	store.Set("key", 43)

	value, _ = store.Get("key")
	assert.Equal(t, 43, value)

	store.Delete("key")

	_, ok = store.Get("key")
	assert.False(t, ok)
	assert.Equal(t, 1, store.Len())
}

func TestStoreGetTyped(t *testing.T) {
	store := NewStore()
	store.Set("count", 7)

	count, ok := StoreGet[int](store, "count")
	require.True(t, ok)
	assert.Equal(t, 7, count)

	// Wrong type.
	_, ok = StoreGet[string](store, "count")
	assert.False(t, ok)

	// Missing key.
	_, ok = StoreGet[int](store, "missing")
	assert.False(t, ok)
}
