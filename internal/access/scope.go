// Package access narrows what a PIN account may see to its assigned folders.
package access

import (
	"path"
	"strings"

	"photoframe/internal/fsutil"
)

// Scope is a set of assigned folders. A nil or empty Scope is unrestricted,
// which is what admins and unscoped accounts get.
type Scope []string

func NewScope(folders []string) Scope {
	s := make(Scope, 0, len(folders))
	for _, f := range folders {
		s = append(s, fsutil.CleanRelPath(f))
	}
	return s
}

func (s Scope) Unrestricted() bool {
	return len(s) == 0
}

// AllowsFolder reports whether dir equals an assigned folder, is an ancestor
// of one (so it can be navigated through) or lies beneath one.
func (s Scope) AllowsFolder(dir string) bool {
	if s.Unrestricted() {
		return true
	}
	dir = fsutil.CleanRelPath(dir)
	for _, a := range s {
		if dir == a || isWithin(a, dir) || isWithin(dir, a) {
			return true
		}
	}
	return false
}

// AllowsFile checks the folder that contains file. Unlike folders, files are
// only visible at or beneath an assigned folder.
func (s Scope) AllowsFile(file string) bool {
	if s.Unrestricted() {
		return true
	}
	dir := parentDir(fsutil.CleanRelPath(file))
	for _, a := range s {
		if dir == a || isWithin(dir, a) {
			return true
		}
	}
	return false
}

// AllowsWrite reports whether dir may receive uploads or deletions: it has to
// be an assigned folder or beneath one. Ancestors are browse-only.
func (s Scope) AllowsWrite(dir string) bool {
	if s.Unrestricted() {
		return true
	}
	dir = fsutil.CleanRelPath(dir)
	for _, a := range s {
		if dir == a || isWithin(dir, a) {
			return true
		}
	}
	return false
}

// Filter keeps the entries whose path passes the matching check. Each entry
// is judged on its own.
func Filter[T any](s Scope, entries []T, relPath func(T) string, isDir func(T) bool) []T {
	if s.Unrestricted() {
		return entries
	}
	out := make([]T, 0, len(entries))
	for _, e := range entries {
		p := relPath(e)
		ok := false
		if isDir(e) {
			ok = s.AllowsFolder(p)
		} else {
			ok = s.AllowsFile(p)
		}
		if ok {
			out = append(out, e)
		}
	}
	return out
}

// isWithin reports whether p lies strictly beneath dir, matching whole path
// segments. The root "" contains everything.
func isWithin(p, dir string) bool {
	if p == dir {
		return false
	}
	if dir == "" {
		return true
	}
	return strings.HasPrefix(p, dir+"/")
}

func parentDir(p string) string {
	d := path.Dir(p)
	if d == "." || d == "/" {
		return ""
	}
	return d
}
