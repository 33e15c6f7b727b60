package photos

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"photoframe/internal/common"
	"photoframe/internal/fsutil"
)

// Save streams r into dir under a sanitized, non-clashing version of name
// and returns the stored path relative to the root. The data is written to
// a temp file first and renamed into place once complete, so a failed
// upload never leaves a partial image behind.
func (l *Library) Save(ctx context.Context, dir, name string, r io.Reader) (string, error) {
	name = fsutil.SafeFileName(name)
	if !IsImage(name) {
		return "", common.Deny(common.ErrValidation, common.CodeInvalidFileType, "Only image files are allowed")
	}
	dirAbs, err := l.abs(dir)
	if err != nil {
		return "", err
	}
	dir = fsutil.CleanRelPath(dir)
	if err := os.MkdirAll(dirAbs, 0o755); err != nil {
		return "", err
	}

	tmp, err := os.CreateTemp(dirAbs, ".upload-*.part")
	if err != nil {
		return "", err
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpPath)
		}
	}()

	head := make([]byte, 512)
	n, err := io.ReadFull(r, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		tmp.Close()
		return "", err
	}
	head = head[:n]
	if !strings.HasPrefix(http.DetectContentType(head), "image/") {
		tmp.Close()
		return "", common.Deny(common.ErrValidation, common.CodeInvalidFileType, "Only image files are allowed")
	}

	src := io.MultiReader(bytes.NewReader(head), r)
	written, err := copyCtx(ctx, tmp, io.LimitReader(src, l.maxSize+1))
	if err == nil && written > l.maxSize {
		err = common.Deny(common.ErrValidation, common.CodeFileTooLarge,
			fmt.Sprintf("File exceeds the %d MB limit", l.maxSize>>20))
	}
	if err == nil {
		err = tmp.Sync()
	}
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return "", err
	}

	final, err := uniqueName(dirAbs, name)
	if err != nil {
		return "", err
	}
	if err := os.Rename(tmpPath, filepath.Join(dirAbs, final)); err != nil {
		return "", err
	}
	committed = true
	return path.Join(dir, final), nil
}

// uniqueName returns name, or name with a short random suffix when a file
// of that name already exists.
func uniqueName(dirAbs, name string) (string, error) {
	if _, err := os.Lstat(filepath.Join(dirAbs, name)); errors.Is(err, fs.ErrNotExist) {
		return name, nil
	}
	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)
	for i := 0; i < 8; i++ {
		b := make([]byte, 4)
		if _, err := rand.Read(b); err != nil {
			return "", err
		}
		cand := base + "-" + hex.EncodeToString(b) + ext
		if _, err := os.Lstat(filepath.Join(dirAbs, cand)); errors.Is(err, fs.ErrNotExist) {
			return cand, nil
		}
	}
	return "", errors.New("could not find a free file name")
}

func copyCtx(ctx context.Context, dst io.Writer, src io.Reader) (int64, error) {
	buf := make([]byte, 256<<10)
	var n int64
	for {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		rn, rerr := src.Read(buf)
		if rn > 0 {
			wn, werr := dst.Write(buf[:rn])
			n += int64(wn)
			if werr != nil {
				return n, werr
			}
		}
		if errors.Is(rerr, io.EOF) {
			return n, nil
		}
		if rerr != nil {
			return n, rerr
		}
	}
}
