// Package photos is the file side of the frame: listing folders, writing
// uploads, deleting images, picking slideshow images and making thumbnails.
// It knows nothing about who is asking; callers check access first.
package photos

import (
	"errors"
	"io/fs"
	"log/slog"
	"math/rand/v2"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"photoframe/internal/access"
	"photoframe/internal/common"
	"photoframe/internal/fsutil"
)

var DefaultFolders = []string{"family", "vacation", "holidays", "misc"}

var imageExts = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".webp": true,
}

// IsImage reports whether name has one of the accepted image extensions.
func IsImage(name string) bool {
	return imageExts[strings.ToLower(filepath.Ext(name))]
}

type Folder struct {
	Name          string `json:"name"`
	Path          string `json:"path"`
	ImageCount    int    `json:"imageCount"`
	HasSubfolders bool   `json:"hasSubfolders"`
}

type Image struct {
	Name    string    `json:"filename"`
	Path    string    `json:"path"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"modTime"`
}

type Crumb struct {
	Name string `json:"name"`
	Path string `json:"path"`
}

type Listing struct {
	Path       string   `json:"path"`
	Breadcrumb []Crumb  `json:"breadcrumb"`
	Folders    []Folder `json:"folders"`
	Images     []Image  `json:"images"`
}

type Library struct {
	root     string
	thumbDir string
	maxSize  int64
	log      *slog.Logger
}

type Options struct {
	Root     string
	StateDir string
	// MaxFileSize caps a single upload in bytes. Zero means 50 MiB.
	MaxFileSize int64
	Logger      *slog.Logger
}

const defaultMaxFileSize = 50 << 20

func New(opts Options) (*Library, error) {
	root, err := filepath.Abs(opts.Root)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	thumbDir := filepath.Join(opts.StateDir, "thumbs")
	if err := os.MkdirAll(thumbDir, 0o755); err != nil {
		return nil, err
	}
	l := &Library{root: root, thumbDir: thumbDir, maxSize: opts.MaxFileSize, log: opts.Logger}
	if l.maxSize <= 0 {
		l.maxSize = defaultMaxFileSize
	}
	if l.log == nil {
		l.log = slog.Default()
	}
	return l, nil
}

func (l *Library) Root() string {
	return l.root
}

func (l *Library) MaxFileSize() int64 {
	return l.maxSize
}

// EnsureFolders creates the named top-level folders if missing.
func (l *Library) EnsureFolders(names []string) error {
	for _, n := range names {
		abs, err := l.abs(n)
		if err != nil {
			return err
		}
		if err := os.MkdirAll(abs, 0o755); err != nil {
			return err
		}
	}
	return nil
}

// Abs resolves rel inside the root, refusing traversal attempts.
func (l *Library) Abs(rel string) (string, error) {
	return l.abs(rel)
}

func (l *Library) abs(rel string) (string, error) {
	if !fsutil.IsSafeRelPath(rel) {
		return "", common.Deny(common.ErrValidation, common.CodeInvalidPath, "Invalid path")
	}
	p, err := fsutil.JoinWithinRoot(l.root, rel)
	if err != nil {
		return "", common.Deny(common.ErrValidation, common.CodeInvalidPath, "Invalid path")
	}
	return p, nil
}

// List returns the folders and images directly inside rel, narrowed to
// scope. Folders come first, each group sorted by name. Hidden entries are
// skipped.
func (l *Library) List(rel string, scope access.Scope) (Listing, error) {
	dir, err := l.abs(rel)
	if err != nil {
		return Listing{}, err
	}
	rel = fsutil.CleanRelPath(rel)
	if !scope.AllowsFolder(rel) {
		return Listing{}, common.Deny(common.ErrForbidden, common.CodeFolderForbidden, "Access to this folder is not allowed")
	}
	ents, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Listing{}, common.Deny(common.ErrNotFound, common.CodeFolderNotFound, "Folder not found")
		}
		return Listing{}, err
	}

	ents = access.Filter(scope, ents, func(e fs.DirEntry) string { return path.Join(rel, e.Name()) }, fs.DirEntry.IsDir)

	out := Listing{Path: rel, Breadcrumb: breadcrumb(rel), Folders: []Folder{}, Images: []Image{}}
	for _, e := range ents {
		name := e.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}
		childRel := path.Join(rel, name)
		switch {
		case e.IsDir():
			count, hasSub := l.summarize(filepath.Join(dir, name))
			out.Folders = append(out.Folders, Folder{Name: name, Path: childRel, ImageCount: count, HasSubfolders: hasSub})
		case e.Type().IsRegular() && IsImage(name):
			info, err := e.Info()
			if err != nil {
				continue
			}
			out.Images = append(out.Images, Image{Name: name, Path: childRel, Size: info.Size(), ModTime: info.ModTime().UTC()})
		}
	}
	sort.Slice(out.Folders, func(i, j int) bool { return strings.ToLower(out.Folders[i].Name) < strings.ToLower(out.Folders[j].Name) })
	sort.Slice(out.Images, func(i, j int) bool { return strings.ToLower(out.Images[i].Name) < strings.ToLower(out.Images[j].Name) })
	return out, nil
}

func (l *Library) summarize(dir string) (images int, hasSub bool) {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return 0, false
	}
	for _, e := range ents {
		if e.IsDir() && !strings.HasPrefix(e.Name(), ".") {
			hasSub = true
		} else if e.Type().IsRegular() && IsImage(e.Name()) {
			images++
		}
	}
	return images, hasSub
}

// Random picks one image at or beneath folder that scope allows. ok is
// false when there is none.
func (l *Library) Random(folder string, scope access.Scope) (rel string, ok bool, err error) {
	start, err := l.abs(folder)
	if err != nil {
		return "", false, err
	}
	var picks []string
	err = filepath.WalkDir(start, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == start {
				return err
			}
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") && p != start {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !d.Type().IsRegular() || !IsImage(d.Name()) {
			return nil
		}
		r, err := filepath.Rel(l.root, p)
		if err != nil {
			return nil
		}
		picks = append(picks, filepath.ToSlash(r))
		return nil
	})
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", false, common.Deny(common.ErrNotFound, common.CodeFolderNotFound, "Folder not found")
		}
		return "", false, err
	}
	picks = access.Filter(scope, picks, func(p string) string { return p }, func(string) bool { return false })
	if len(picks) == 0 {
		return "", false, nil
	}
	return picks[rand.IntN(len(picks))], true, nil
}

// Delete removes one image. Only image files can be deleted this way.
func (l *Library) Delete(rel string) error {
	abs, err := l.abs(rel)
	if err != nil {
		return err
	}
	rel = fsutil.CleanRelPath(rel)
	if rel == "" || !IsImage(rel) {
		return common.Deny(common.ErrValidation, common.CodeInvalidPath, "Invalid path")
	}
	if err := os.Remove(abs); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return common.Deny(common.ErrNotFound, common.CodeImageNotFound, "Image not found")
		}
		return err
	}
	_ = l.dropThumbs(rel)
	return nil
}

func breadcrumb(rel string) []Crumb {
	if rel == "" {
		return []Crumb{}
	}
	out := []Crumb{{Name: "Root", Path: ""}}
	cur := ""
	for _, part := range strings.Split(rel, "/") {
		cur = path.Join(cur, part)
		out = append(out, Crumb{Name: part, Path: cur})
	}
	return out
}
