package storage_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/quillfeed/sessionkit/storage"
)

func newAdapter(t *testing.T) *storage.Adapter {
	t.Helper()
	return storage.NewAdapter(storage.NewMemoryBackend(), zerolog.Nop())
}

func TestAdapterStringRoundTrip(t *testing.T) {
	a := newAdapter(t)

	require.True(t, a.WriteString("k", "v"))
	require.Equal(t, "v", a.ReadString("k", "default"))

	require.True(t, a.Remove("k"))
	require.Equal(t, "default", a.ReadString("k", "default"))
}

func TestAdapterJSONRoundTrip(t *testing.T) {
	a := newAdapter(t)

	type payload struct {
		Name  string `json:"name"`
		Count int    `json:"count"`
	}

	require.True(t, a.WriteJSON("k", payload{Name: "quill", Count: 3}))

	var got payload
	require.True(t, a.ReadJSON("k", &got))
	require.Equal(t, payload{Name: "quill", Count: 3}, got)
}

func TestAdapterAbsentKeyIsDefault(t *testing.T) {
	a := newAdapter(t)

	var got map[string]string
	require.False(t, a.ReadJSON("missing", &got))
	require.Equal(t, "fallback", a.ReadString("missing", "fallback"))
}

func TestAdapterCorruptValueDegradesToDefault(t *testing.T) {
	backend := storage.NewMemoryBackend()
	require.NoError(t, backend.Set("k", "{not json"))
	a := storage.NewAdapter(backend, zerolog.Nop())

	var got map[string]string
	require.False(t, a.ReadJSON("k", &got))
}

func TestAdapterUnavailableBackendNeverFailsCaller(t *testing.T) {
	a := storage.NewAdapter(storage.Unavailable(), zerolog.Nop())

	require.Equal(t, "default", a.ReadString("k", "default"))
	require.False(t, a.WriteString("k", "v"))
	require.False(t, a.WriteJSON("k", map[string]string{"a": "b"}))
	require.False(t, a.Remove("k"))

	var got map[string]string
	require.False(t, a.ReadJSON("k", &got))
}

func TestFileBackendPersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")

	fb, err := storage.OpenFileBackend(path)
	require.NoError(t, err)
	require.NoError(t, fb.Set("k", "v"))

	reopened, err := storage.OpenFileBackend(path)
	require.NoError(t, err)
	v, err := reopened.Get("k")
	require.NoError(t, err)
	require.Equal(t, "v", v)
}

func TestFileBackendCorruptFileStartsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte("garbage"), 0o600))

	fb, err := storage.OpenFileBackend(path)
	require.NoError(t, err)
	_, err = fb.Get("k")
	require.Error(t, err)

	require.NoError(t, fb.Set("k", "v"))
	v, err := fb.Get("k")
	require.NoError(t, err)
	require.Equal(t, "v", v)
}
