package photos

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"photoframe/internal/access"
	"photoframe/internal/common"
)

func newLibrary(t *testing.T) *Library {
	t.Helper()
	l, err := New(Options{Root: filepath.Join(t.TempDir(), "photos"), StateDir: t.TempDir()})
	require.NoError(t, err)
	return l
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, 0, color.RGBA{R: 255, A: 255})
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func writeFile(t *testing.T, l *Library, rel string, b []byte) {
	t.Helper()
	abs := filepath.Join(l.Root(), filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(abs), 0o755))
	require.NoError(t, os.WriteFile(abs, b, 0o644))
}

func TestEnsureFolders(t *testing.T) {
	l := newLibrary(t)
	require.NoError(t, l.EnsureFolders(DefaultFolders))
	for _, f := range DefaultFolders {
		st, err := os.Stat(filepath.Join(l.Root(), f))
		require.NoError(t, err)
		assert.True(t, st.IsDir())
	}
}

func TestList_FiltersByScope(t *testing.T) {
	l := newLibrary(t)
	img := pngBytes(t, 2, 2)
	require.NoError(t, l.EnsureFolders([]string{"family/2024", "vacation", "fam"}))
	writeFile(t, l, "top.png", img)
	writeFile(t, l, "family/a.png", img)
	writeFile(t, l, "family/notes.txt", []byte("x"))
	writeFile(t, l, ".hidden.png", img)

	all, err := l.List("", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"fam", "family", "vacation"}, folderNames(all))
	require.Len(t, all.Images, 1)
	assert.Equal(t, "top.png", all.Images[0].Name)

	scope := access.NewScope([]string{"family"})
	root, err := l.List("", scope)
	require.NoError(t, err)
	assert.Equal(t, []string{"family"}, folderNames(root))
	assert.Empty(t, root.Images)

	fam, err := l.List("family", scope)
	require.NoError(t, err)
	assert.Equal(t, []string{"2024"}, folderNames(fam))
	require.Len(t, fam.Images, 1)
	assert.Equal(t, "family/a.png", fam.Images[0].Path)
	assert.Len(t, fam.Breadcrumb, 2)

	_, err = l.List("vacation", scope)
	assert.ErrorIs(t, err, common.ErrForbidden)

	_, err = l.List("missing", nil)
	assert.ErrorIs(t, err, common.ErrNotFound)

	_, err = l.List("../outside", nil)
	assert.ErrorIs(t, err, common.ErrValidation)
}

func folderNames(l Listing) []string {
	var out []string
	for _, f := range l.Folders {
		out = append(out, f.Name)
	}
	return out
}

func TestSave(t *testing.T) {
	l := newLibrary(t)
	img := pngBytes(t, 4, 4)

	rel, err := l.Save(context.Background(), "family", "../../pic.png", bytes.NewReader(img))
	require.NoError(t, err)
	assert.Equal(t, "family/pic.png", rel)

	rel2, err := l.Save(context.Background(), "family", "pic.png", bytes.NewReader(img))
	require.NoError(t, err)
	assert.NotEqual(t, rel, rel2)
	assert.True(t, strings.HasPrefix(rel2, "family/pic-"))

	ents, err := os.ReadDir(filepath.Join(l.Root(), "family"))
	require.NoError(t, err)
	assert.Len(t, ents, 2, "no temp files left behind")
}

func TestSave_Rejects(t *testing.T) {
	l, err := New(Options{Root: t.TempDir(), StateDir: t.TempDir(), MaxFileSize: 64})
	require.NoError(t, err)

	_, err = l.Save(context.Background(), "", "doc.txt", strings.NewReader("hello"))
	assert.ErrorIs(t, err, common.ErrValidation)

	_, err = l.Save(context.Background(), "", "fake.png", strings.NewReader("not really a png"))
	d, ok := common.AsDenial(err)
	require.True(t, ok)
	assert.Equal(t, common.CodeInvalidFileType, d.Code)

	big := append(pngBytes(t, 2, 2), make([]byte, 1024)...)
	_, err = l.Save(context.Background(), "", "big.png", bytes.NewReader(big))
	d, ok = common.AsDenial(err)
	require.True(t, ok)
	assert.Equal(t, common.CodeFileTooLarge, d.Code)

	ents, err := os.ReadDir(l.Root())
	require.NoError(t, err)
	assert.Empty(t, ents)
}

func TestDelete(t *testing.T) {
	l := newLibrary(t)
	writeFile(t, l, "family/a.png", pngBytes(t, 2, 2))

	require.NoError(t, l.Delete("family/a.png"))
	assert.ErrorIs(t, l.Delete("family/a.png"), common.ErrNotFound)
	assert.ErrorIs(t, l.Delete("family"), common.ErrValidation)
}

func TestRandom(t *testing.T) {
	l := newLibrary(t)
	writeFile(t, l, "family/a.png", pngBytes(t, 2, 2))
	writeFile(t, l, "vacation/b.png", pngBytes(t, 2, 2))

	for i := 0; i < 20; i++ {
		rel, ok, err := l.Random("", access.NewScope([]string{"family"}))
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "family/a.png", rel)
	}

	_, ok, err := l.Random("", access.NewScope([]string{"nothing"}))
	require.NoError(t, err)
	assert.False(t, ok)

	_, _, err = l.Random("missing", nil)
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestThumb(t *testing.T) {
	l := newLibrary(t)
	writeFile(t, l, "big.png", pngBytes(t, 600, 300))

	b, err := l.Thumb("big.png", 0)
	require.NoError(t, err)
	cfg, err := jpeg.DecodeConfig(bytes.NewReader(b))
	require.NoError(t, err)
	assert.Equal(t, 256, cfg.Width)
	assert.Equal(t, 128, cfg.Height)

	cached, err := os.ReadDir(l.thumbDir)
	require.NoError(t, err)
	assert.Len(t, cached, 1)

	again, err := l.Thumb("big.png", 0)
	require.NoError(t, err)
	assert.Equal(t, b, again)

	_, err = l.Thumb("nope.png", 0)
	assert.ErrorIs(t, err, common.ErrNotFound)

	require.NoError(t, l.Delete("big.png"))
	cached, err = os.ReadDir(l.thumbDir)
	require.NoError(t, err)
	assert.Empty(t, cached)
}
