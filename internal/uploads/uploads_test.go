package uploads

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"photoframe/internal/store"
)

func newLedger(t *testing.T) *Ledger {
	t.Helper()
	st, err := store.Open[Entry](filepath.Join(t.TempDir(), "upload-metadata.json"), nil)
	require.NoError(t, err)
	fixed := time.Date(2025, 2, 2, 0, 0, 0, 0, time.UTC)
	return New(st, func() time.Time { return fixed })
}

func TestRecordAndOwnership(t *testing.T) {
	l := newLedger(t)
	require.NoError(t, l.Record("kids", "Kids", "family/a.jpg", "/family/b.jpg"))
	require.NoError(t, l.Record("gran", "Gran", "family/c.jpg"))

	assert.True(t, l.IsOwner("kids", "family/a.jpg"))
	assert.True(t, l.IsOwner("kids", "family/b.jpg"))
	assert.False(t, l.IsOwner("kids", "family/c.jpg"))
	assert.Equal(t, map[string]bool{"family/c.jpg": true}, l.OwnedPaths("gran"))

	entries := l.ByAccount("kids")
	require.Len(t, entries, 2)
	assert.Equal(t, "Kids", entries[0].AccountName)
	assert.Equal(t, 2025, entries[0].UploadedAt.Year())
}

func TestForget(t *testing.T) {
	l := newLedger(t)
	require.NoError(t, l.Record("kids", "Kids", "a.jpg", "b.jpg", "c.jpg"))

	require.NoError(t, l.Forget("a.jpg", "c.jpg"))
	assert.Equal(t, map[string]bool{"b.jpg": true}, l.OwnedPaths("kids"))

	require.NoError(t, l.Forget("missing.jpg"))
	assert.Len(t, l.ByAccount("kids"), 1)
}

func TestRecord_NothingToDo(t *testing.T) {
	l := newLedger(t)
	require.NoError(t, l.Record("kids", "Kids"))
	assert.Empty(t, l.ByAccount("kids"))
}
