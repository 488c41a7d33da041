package activeaudit

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"auditflow/internal/ports"
)

func TestKey(t *testing.T) {
	assert.Equal(t, "active_audit_c42", Key("c42"))
}

func TestStores(t *testing.T) {
	stores := map[string]ports.KeyValueStore{
		"memory": NewMemoryStore(),
		"file":   NewFileStore(filepath.Join(t.TempDir(), "nested", "state.json")),
	}
	for name, s := range stores {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			_, ok, err := s.Get(ctx, Key("1"))
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, s.Set(ctx, Key("1"), "a1"))
			require.NoError(t, s.Set(ctx, Key("2"), "a2"))
			v, ok, err := s.Get(ctx, Key("1"))
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, "a1", v)

			require.NoError(t, s.Delete(ctx, Key("1")))
			require.NoError(t, s.Delete(ctx, Key("1")))
			_, ok, _ = s.Get(ctx, Key("1"))
			assert.False(t, ok)
			v, _, _ = s.Get(ctx, Key("2"))
			assert.Equal(t, "a2", v)
		})
	}
}

func TestFileStore_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	ctx := context.Background()
	require.NoError(t, NewFileStore(path).Set(ctx, Key("1"), "a9"))

	v, ok, err := NewFileStore(path).Get(ctx, Key("1"))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "a9", v)
}

func TestFileStore_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))
	_, _, err := NewFileStore(path).Get(context.Background(), Key("1"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse state file")
}
