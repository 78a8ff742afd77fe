package taskqueue

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryRegisterAndLookup(t *testing.T) {
	t.Parallel()

	r := NewRegistry()

	_, ok := r.Lookup("metadata_extract")
	assert.False(t, ok)
	assert.False(t, r.Registered("metadata_extract"))

	r.Register("metadata_extract", func(ctx context.Context, params json.RawMessage) (any, error) {
		return "first", nil
	})

	h, ok := r.Lookup("metadata_extract")
	require.True(t, ok)
	require.True(t, r.Registered("metadata_extract"))

	result, err := h(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "first", result)
}

func TestRegistryRegisterReplacesHandler(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	r.Register("library_scan", func(ctx context.Context, params json.RawMessage) (any, error) {
		return "old", nil
	})
	r.Register("library_scan", func(ctx context.Context, params json.RawMessage) (any, error) {
		return "new", nil
	})

	h, ok := r.Lookup("library_scan")
	require.True(t, ok)

	result, err := h(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "new", result)
}

func TestRegistryTypesSorted(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	noop := func(ctx context.Context, params json.RawMessage) (any, error) { return nil, nil }
	r.Register("library_scan", noop)
	r.Register("batch_export", noop)
	r.Register("metadata_extract", noop)

	assert.Equal(t, []string{"batch_export", "library_scan", "metadata_extract"}, r.Types())
}
