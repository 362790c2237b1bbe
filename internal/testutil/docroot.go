package testutil

import (
	"errors"
	"os"
	"path"
	"strings"
	"testing"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
)

// ErrOpenDenied is what FailingOpenFS returns from Open.
var ErrOpenDenied = errors.New("open denied")

// NewMemDocRoot builds an in-memory document root. Keys ending in "/"
// create directories; all other keys create files with the given content.
func NewMemDocRoot(t *testing.T, files map[string]string) billy.Filesystem {
	t.Helper()
	fs := memfs.New()
	for name, content := range files {
		if strings.HasSuffix(name, "/") {
			if err := fs.MkdirAll(name, 0o755); err != nil {
				t.Fatalf("mkdir %s: %v", name, err)
			}
			continue
		}
		if dir := path.Dir(name); dir != "." && dir != "/" {
			if err := fs.MkdirAll(dir, 0o755); err != nil {
				t.Fatalf("mkdir %s: %v", dir, err)
			}
		}
		f, err := fs.Create(name)
		if err != nil {
			t.Fatalf("create %s: %v", name, err)
		}
		if _, err := f.Write([]byte(content)); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
		if err := f.Close(); err != nil {
			t.Fatalf("close %s: %v", name, err)
		}
	}
	return fs
}

// FailingOpenFS stats like the wrapped filesystem but refuses every Open,
// the way a permission change racing the stat would.
type FailingOpenFS struct {
	billy.Basic
}

func (f FailingOpenFS) Open(filename string) (billy.File, error) {
	return nil, &os.PathError{Op: "open", Path: filename, Err: ErrOpenDenied}
}

// ShrinkingFS reports the wrapped file's size plus Extra from Stat, so the
// body sent is shorter than the advertised Content-Length.
type ShrinkingFS struct {
	billy.Basic
	Extra int64
}

func (s ShrinkingFS) Stat(filename string) (os.FileInfo, error) {
	fi, err := s.Basic.Stat(filename)
	if err != nil {
		return nil, err
	}
	return sizedInfo{FileInfo: fi, size: fi.Size() + s.Extra}, nil
}

type sizedInfo struct {
	os.FileInfo
	size int64
}

func (s sizedInfo) Size() int64 { return s.size }

// ClosedTracker wraps a filesystem and records whether opened files were closed.
type ClosedTracker struct {
	billy.Basic
	Opened int
	Closed int
}

func (c *ClosedTracker) Open(filename string) (billy.File, error) {
	f, err := c.Basic.Open(filename)
	if err != nil {
		return nil, err
	}
	c.Opened++
	return &trackedFile{File: f, onClose: func() { c.Closed++ }}, nil
}

type trackedFile struct {
	billy.File
	onClose func()
}

func (t *trackedFile) Close() error {
	t.onClose()
	return t.File.Close()
}
