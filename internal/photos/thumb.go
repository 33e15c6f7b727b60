package photos

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"io/fs"
	"os"
	"path/filepath"

	// decoders
	_ "image/gif"
	_ "image/png"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"photoframe/internal/common"
	"photoframe/internal/fsutil"
)

const DefaultThumbSize = 256

// Thumb returns a JPEG thumbnail of the image at rel whose longer edge is at
// most max pixels. Results are cached on disk keyed by path, size and
// modification time, so an edited file gets a fresh thumbnail.
func (l *Library) Thumb(rel string, max int) ([]byte, error) {
	if max <= 0 {
		max = DefaultThumbSize
	}
	abs, err := l.abs(rel)
	if err != nil {
		return nil, err
	}
	rel = fsutil.CleanRelPath(rel)
	if !IsImage(rel) {
		return nil, common.Deny(common.ErrValidation, common.CodeInvalidFileType, "Not an image")
	}
	st, err := os.Stat(abs)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, common.Deny(common.ErrNotFound, common.CodeImageNotFound, "Image not found")
		}
		return nil, err
	}

	cached := filepath.Join(l.thumbDir, thumbKey(rel, max, st.ModTime().UnixNano()))
	if b, err := os.ReadFile(cached); err == nil {
		return b, nil
	}

	b, err := makeThumb(abs, max)
	if err != nil {
		return nil, err
	}
	tmp := cached + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err == nil {
		if err := os.Rename(tmp, cached); err != nil {
			_ = os.Remove(tmp)
		}
	} else {
		l.log.Warn("thumbnail cache write failed", "path", rel, "err", err)
	}
	return b, nil
}

// dropThumbs removes cached thumbnails for rel at the default size. Other
// sizes age out on their own since their key includes the mtime.
func (l *Library) dropThumbs(rel string) error {
	matches, err := filepath.Glob(filepath.Join(l.thumbDir, thumbPrefix(rel)+"*"))
	if err != nil {
		return err
	}
	for _, m := range matches {
		_ = os.Remove(m)
	}
	return nil
}

func thumbPrefix(rel string) string {
	sum := sha256.Sum256([]byte(rel))
	return hex.EncodeToString(sum[:16])
}

func thumbKey(rel string, max int, mtime int64) string {
	return fmt.Sprintf("%s-%d-%d.jpg", thumbPrefix(rel), max, mtime)
}

func makeThumb(absPath string, max int) ([]byte, error) {
	f, err := os.Open(absPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	src, _, err := image.Decode(f)
	if err != nil {
		return nil, err
	}
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= 0 || h <= 0 {
		return nil, os.ErrInvalid
	}

	nw, nh := w, h
	if w > h {
		if w > max {
			nw = max
			nh = h * max / w
		}
	} else if h > max {
		nh = max
		nw = w * max / h
	}
	nw, nh = atLeastOne(nw), atLeastOne(nh)

	dst := image.NewRGBA(image.Rect(0, 0, nw, nh))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Src, nil)

	var out bytes.Buffer
	if err := jpeg.Encode(&out, dst, &jpeg.Options{Quality: 82}); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

func atLeastOne(n int) int {
	if n < 1 {
		return 1
	}
	return n
}
