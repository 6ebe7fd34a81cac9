package loaders

import (
	"bytes"
	"context"
	"io/fs"
	"net/url"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/spaghettifunk/scenebake/engine/assets"
)

// fetchFS exposes the siblings of a locator (external buffers and images
// referenced by relative URI) as a read-only file system backed by a Fetcher.
type fetchFS struct {
	ctx     context.Context
	fetcher assets.Fetcher
	base    string
}

func (f fetchFS) Open(name string) (fs.File, error) {
	if !fs.ValidPath(name) {
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrInvalid}
	}
	data, err := f.fetcher.Fetch(f.ctx, resolveSibling(f.base, name))
	if err != nil {
		return nil, &fs.PathError{Op: "open", Path: name, Err: err}
	}
	return &memFile{name: name, Reader: bytes.NewReader(data), size: int64(len(data))}, nil
}

// resolveSibling resolves a relative reference against the locator of the
// document that contains it.
func resolveSibling(base, ref string) string {
	if strings.HasPrefix(base, "http://") || strings.HasPrefix(base, "https://") {
		b, err := url.Parse(base)
		if err != nil {
			return ref
		}
		r, err := url.Parse(ref)
		if err != nil {
			return ref
		}
		return b.ResolveReference(r).String()
	}
	if filepath.IsAbs(base) {
		return filepath.Join(filepath.Dir(base), filepath.FromSlash(ref))
	}
	return path.Join(path.Dir(filepath.ToSlash(base)), ref)
}

type memFile struct {
	*bytes.Reader
	name string
	size int64
}

func (m *memFile) Stat() (fs.FileInfo, error) { return m, nil }
func (m *memFile) Close() error               { return nil }
func (m *memFile) Name() string               { return path.Base(m.name) }
func (m *memFile) Size() int64                { return m.size }
func (m *memFile) Mode() fs.FileMode          { return 0o444 }
func (m *memFile) ModTime() time.Time         { return time.Time{} }
func (m *memFile) IsDir() bool                { return false }
func (m *memFile) Sys() any                   { return nil }
