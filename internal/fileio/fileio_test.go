package fileio

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveFileAtomicCreatesDirsAndReplaces(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "out.wav")

	require.NoError(t, SaveFileAtomic(path, []byte("first"), 0o644))
	require.NoError(t, SaveFileAtomic(path, []byte("second"), 0o644))

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "second", string(got))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not be left behind")
}

func TestSaveJSONAtomic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "meta.json")
	require.NoError(t, SaveJSONAtomic(path, map[string]interface{}{"id": "abc", "entities": 2}))

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	var m map[string]interface{}
	require.NoError(t, json.Unmarshal(b, &m))
	assert.Equal(t, "abc", m["id"])
	assert.EqualValues(t, 2, m["entities"])
}
