package fsutil

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanRelPath(t *testing.T) {
	tests := map[string]string{
		"":               "",
		".":              "",
		"/":              "",
		"  family  ":     "family",
		"/family/":       "family",
		"a//b":           "a/b",
		`a\b`:            "a/b",
		"../../etc":      "etc",
		"family/../misc": "misc",
	}
	for in, want := range tests {
		assert.Equal(t, want, CleanRelPath(in), "in=%q", in)
	}
}

func TestIsSafeRelPath(t *testing.T) {
	assert.True(t, IsSafeRelPath("family/2024"))
	assert.True(t, IsSafeRelPath(""))
	assert.True(t, IsSafeRelPath("a..b"))
	assert.False(t, IsSafeRelPath("../etc"))
	assert.False(t, IsSafeRelPath(`family\..\..`))
	assert.False(t, IsSafeRelPath("family\x00"))
}

func TestJoinWithinRoot(t *testing.T) {
	root := t.TempDir()

	got, err := JoinWithinRoot(root, "")
	require.NoError(t, err)
	assert.Equal(t, filepath.Clean(root), got)

	got, err = JoinWithinRoot(root, "../../family/a.jpg")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "family", "a.jpg"), got)

	_, err = JoinWithinRoot(root, "a\x00b")
	assert.ErrorIs(t, err, ErrUnsafePath)
}

func TestSafeFileName(t *testing.T) {
	assert.Equal(t, "photo.jpg", SafeFileName("photo.jpg"))
	assert.Equal(t, "photo.jpg", SafeFileName("../../photo.jpg"))
	assert.Equal(t, "photo.jpg", SafeFileName(`C:\Users\me\photo.jpg`))
	assert.Equal(t, "ab.jpg", SafeFileName("a\nb.jpg"))
	assert.Equal(t, "file", SafeFileName(".."))
	assert.Equal(t, "file", SafeFileName(""))
}
