// Package fsutil keeps user-supplied paths inside the photo root.
package fsutil

import (
	"errors"
	"path"
	"path/filepath"
	"strings"
	"unicode"
)

var ErrUnsafePath = errors.New("unsafe path")

// CleanRelPath takes a user path like "", ".", "/a/b", "a//b", and returns a
// safe, slash-based, no-leading-slash relative path ("" means root).
// Leading ".." segments are absorbed by the root.
func CleanRelPath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" || p == "." || p == "/" {
		return ""
	}
	p = strings.ReplaceAll(p, "\\", "/")
	p = path.Clean("/" + p)
	p = strings.TrimPrefix(p, "/")
	if p == "." {
		return ""
	}
	return p
}

// IsSafeRelPath rejects raw input that tries to climb out of the root or
// smuggle a NUL, before any cleaning happens. Callers that want to refuse
// rather than silently clamp use this.
func IsSafeRelPath(p string) bool {
	if strings.ContainsRune(p, 0) {
		return false
	}
	p = strings.ReplaceAll(p, "\\", "/")
	for _, seg := range strings.Split(p, "/") {
		if seg == ".." {
			return false
		}
	}
	return true
}

// JoinWithinRoot returns an absolute filesystem path under root for a given
// rel path. It rejects escapes and NUL bytes.
func JoinWithinRoot(rootAbs string, rel string) (string, error) {
	if strings.ContainsRune(rel, 0) {
		return "", ErrUnsafePath
	}
	rel = CleanRelPath(rel)
	rootClean := filepath.Clean(rootAbs)
	if rel == "" {
		return rootClean, nil
	}
	abs := filepath.Clean(filepath.Join(rootClean, filepath.FromSlash(rel)))
	if abs != rootClean && !strings.HasPrefix(abs, rootClean+string(filepath.Separator)) {
		return "", ErrUnsafePath
	}
	return abs, nil
}

// SafeFileName reduces an uploaded file name to its base name with control
// and separator characters replaced. It never returns "", "." or "..".
func SafeFileName(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = path.Base(name)
	name = strings.Map(func(r rune) rune {
		switch {
		case r == '/' || r == ':' || r == 0:
			return '_'
		case unicode.IsControl(r):
			return -1
		}
		return r
	}, name)
	name = strings.TrimSpace(name)
	if name == "" || name == "." || name == ".." {
		return "file"
	}
	return name
}
