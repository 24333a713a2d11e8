package state

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "session.json")
	s := NewSessionStore(path)

	_, err := s.Load()
	assert.ErrorIs(t, err, ErrNoSession)

	assert.Error(t, s.Save(Session{}))

	want := Session{Token: "tok-1", TokenType: "bearer", Email: "a@b.my", CreatedAt: time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)}
	require.NoError(t, s.Save(want))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	got, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, want, got)

	require.NoError(t, s.Clear())
	require.NoError(t, s.Clear())
	_, err = s.Load()
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestSessionStore_Corrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	require.NoError(t, os.WriteFile(path, []byte("{"), 0o600))

	_, err := NewSessionStore(path).Load()
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoSession)
}

func TestAudioLibrary(t *testing.T) {
	lib := NewAudioLibrary(filepath.Join(t.TempDir(), "audio.json"))
	base := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	files, err := lib.List()
	require.NoError(t, err)
	assert.Empty(t, files)

	require.NoError(t, lib.Add(AudioFile{ID: "f1", Name: "mesyuarat.mp3", Size: 1024, UploadedAt: base}))
	require.NoError(t, lib.Add(AudioFile{ID: "f2", Name: "taklimat.wav", Size: 2048, UploadedAt: base.Add(time.Hour)}))
	require.NoError(t, lib.Add(AudioFile{ID: "f1", Name: "mesyuarat-v2.mp3", Size: 4096, UploadedAt: base}))
	assert.Error(t, lib.Add(AudioFile{Name: "no-id"}))

	files, err = lib.List()
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "f2", files[0].ID, "newest first")
	assert.Equal(t, "mesyuarat-v2.mp3", files[1].Name)

	f, ok, err := lib.Get("f1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.EqualValues(t, 4096, f.Size)

	removed, err := lib.Remove("f1")
	require.NoError(t, err)
	assert.True(t, removed)
	removed, err = lib.Remove("f1")
	require.NoError(t, err)
	assert.False(t, removed)

	_, ok, err = lib.Get("f1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAudioLibrary_FileShape(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audio.json")
	lib := NewAudioLibrary(path)
	require.NoError(t, lib.Add(AudioFile{ID: "f1", Name: "a.mp3", Size: 1, UploadedAt: time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, `{"audioFiles":[{"id":"f1","name":"a.mp3","size":1,"uploadedAt":"2026-03-02T10:00:00Z"}]}`, string(data))
}
