package storage

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStorageSaveOpenDelete(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	size, err := store.SaveStream("2024/05/note.pdf", strings.NewReader("medical note"))
	require.NoError(t, err)
	assert.EqualValues(t, len("medical note"), size)

	f, err := store.Open("2024/05/note.pdf")
	require.NoError(t, err)
	body, err := io.ReadAll(f)
	require.NoError(t, f.Close())
	require.NoError(t, err)
	assert.Equal(t, "medical note", string(body))

	_, err = store.SaveStream("2024/05/note.pdf", strings.NewReader("again"))
	assert.Error(t, err, "existing blobs are never overwritten")

	require.NoError(t, store.Delete("2024/05/note.pdf"))
	require.NoError(t, store.Delete("2024/05/note.pdf"))
	_, err = store.Open("2024/05/note.pdf")
	assert.Error(t, err)
}

func TestLocalStorageRejectsEscapingPaths(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	for _, name := range []string{"", "../secret", "/etc/passwd", "a/../../b"} {
		_, err := store.SaveStream(name, strings.NewReader("x"))
		assert.ErrorIs(t, err, ErrInvalidPath, name)
	}
}

func TestLocalStorageSweepOlderThan(t *testing.T) {
	dir := t.TempDir()
	store, err := NewLocalStorage(dir)
	require.NoError(t, err)

	for _, name := range []string{"kept.pdf", "orphan.pdf", "fresh.pdf"} {
		_, err := store.SaveStream(name, strings.NewReader(name))
		require.NoError(t, err)
	}
	old := time.Now().Add(-48 * time.Hour)
	require.NoError(t, os.Chtimes(filepath.Join(dir, "kept.pdf"), old, old))
	require.NoError(t, os.Chtimes(filepath.Join(dir, "orphan.pdf"), old, old))

	deleted, err := store.SweepOlderThan(24*time.Hour, func(name string) bool { return name == "kept.pdf" })
	require.NoError(t, err)
	assert.Equal(t, []string{"orphan.pdf"}, deleted)

	_, err = os.Stat(filepath.Join(dir, "kept.pdf"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, "fresh.pdf"))
	assert.NoError(t, err)
}
