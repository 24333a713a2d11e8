package prompts

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_DefaultsWhenMissing(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "prompts.yaml"))

	list, err := s.List()
	require.NoError(t, err)
	require.Len(t, list, 3)

	minutes, err := s.Get("MINUTES")
	require.NoError(t, err)
	assert.Contains(t, minutes.Text, "## KEHADIRAN")
	assert.Contains(t, minutes.Text, "[Tindakan:")
}

func TestStore_AddRemove(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "prompts.yaml")
	s := NewStore(path)

	require.NoError(t, s.Add("decisions", "List the decisions only."))
	assert.FileExists(t, path)

	p, err := s.Get("decisions")
	require.NoError(t, err)
	assert.Equal(t, "List the decisions only.", p.Text)

	assert.ErrorIs(t, s.Add("Decisions", "dup"), ErrExists)
	assert.Error(t, s.Add("  ", "text"))

	require.NoError(t, s.Remove("summary"))
	_, err = s.Get("summary")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.Remove("summary"), ErrNotFound)

	list, err := s.List()
	require.NoError(t, err)
	assert.Len(t, list, 3)
}

func TestStore_BadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompts.yaml")
	require.NoError(t, os.WriteFile(path, []byte("prompts: [unterminated"), 0o644))

	_, err := NewStore(path).List()
	assert.Error(t, err)
}
