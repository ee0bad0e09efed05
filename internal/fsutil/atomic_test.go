package fsutil

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteAtomicKeepsPermissions(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "board.step")
	require.NoError(t, os.WriteFile(target, []byte("old"), 0o600))

	err := WriteAtomic(target, "$tempfile$.step", func(w io.Writer) error {
		_, err := io.WriteString(w, "new")
		return err
	})
	require.NoError(t, err)

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "new", string(data))
	st, err := os.Stat(target)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), st.Mode().Perm())
	assert.False(t, Exists(filepath.Join(dir, "$tempfile$.step")))
}

func TestWriteAtomicFailureLeavesNothing(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "board.glb")
	boom := errors.New("boom")

	err := WriteAtomic(target, "$tempfile$.glb", func(w io.Writer) error {
		io.WriteString(w, "partial")
		return boom
	})
	assert.ErrorIs(t, err, boom)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestWriteDirect(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "board.brep")
	require.NoError(t, WriteDirect(target, func(w io.Writer) error {
		_, err := io.WriteString(w, "x")
		return err
	}))
	assert.True(t, Exists(target))

	err := WriteDirect(filepath.Join(dir, "bad.brep"), func(io.Writer) error { return io.ErrUnexpectedEOF })
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	assert.False(t, Exists(filepath.Join(dir, "bad.brep")))
}
