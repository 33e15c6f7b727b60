package store

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"photoframe/internal/common"
)

type row struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func TestOpen_SeedsEmptyCollection(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "data", "rows.json")

	s, err := Open[row](path, nil)
	require.NoError(t, err)

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "[]", strings.TrimSpace(string(b)))
	assert.Empty(t, s.Load())
}

func TestSaveLoad_PreservesOrder(t *testing.T) {
	s, err := Open[row](filepath.Join(t.TempDir(), "rows.json"), nil)
	require.NoError(t, err)

	in := []row{{ID: "b", Name: "second"}, {ID: "a", Name: "first"}}
	require.NoError(t, s.Save(in))
	assert.Equal(t, in, s.Load())

	b, err := os.ReadFile(s.Path())
	require.NoError(t, err)
	assert.Contains(t, string(b), "\n  {", "file should be pretty-printed")
}

func TestLoad_CorruptFileIsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rows.json")
	s, err := Open[row](path, nil)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))
	assert.Empty(t, s.Load())

	require.NoError(t, os.Remove(path))
	assert.Empty(t, s.Load())
}

func TestUpdate_AbortsOnError(t *testing.T) {
	s, err := Open[row](filepath.Join(t.TempDir(), "rows.json"), nil)
	require.NoError(t, err)
	require.NoError(t, s.Save([]row{{ID: "a"}}))

	boom := errors.New("boom")
	err = s.Update(func(rs []row) ([]row, error) {
		return append(rs, row{ID: "b"}), boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Len(t, s.Load(), 1)

	require.NoError(t, s.Update(func(rs []row) ([]row, error) {
		return append(rs, row{ID: "b"}), nil
	}))
	assert.Len(t, s.Load(), 2)
}

func TestSave_WriteFailureIsStorageError(t *testing.T) {
	dir := t.TempDir()
	s, err := Open[row](filepath.Join(dir, "rows.json"), nil)
	require.NoError(t, err)

	// Replacing the data dir with a file makes the tmp write fail.
	require.NoError(t, os.RemoveAll(dir))
	require.NoError(t, os.WriteFile(dir, []byte("x"), 0o600))
	t.Cleanup(func() { _ = os.Remove(dir) })

	err = s.Save([]row{{ID: "a"}})
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrStorage)
}
