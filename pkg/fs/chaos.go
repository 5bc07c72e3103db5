package fs

import (
	"os"
	"sync"
	"syscall"
)

// Chaos wraps another [FS] and injects failures into file IO. Unlike
// probabilistic fault injection, failures here are armed explicitly per
// operation kind, which keeps device-transport tests deterministic:
// arm a failure, issue the IO, observe the error surface.
//
// A Chaos from [NewChaos] passes everything through until failures are
// armed; the zero value has no inner FS and is not usable. Chaos is
// safe for concurrent use.
type Chaos struct {
	inner FS

	mu        sync.Mutex
	failReads int
	failWrite int
	failSync  int
}

// NewChaos wraps inner with fault injection disabled.
func NewChaos(inner FS) *Chaos {
	return &Chaos{inner: inner}
}

// FailReads arms the next n ReadAt calls to fail with EIO.
func (c *Chaos) FailReads(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.failReads = n
}

// FailWrites arms the next n WriteAt calls to fail with EIO.
func (c *Chaos) FailWrites(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.failWrite = n
}

// FailSyncs arms the next n Sync calls to fail with EIO.
func (c *Chaos) FailSyncs(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.failSync = n
}

func (c *Chaos) take(counter *int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if *counter > 0 {
		*counter--
		return true
	}

	return false
}

// OpenFile opens path through the inner FS, wrapping the handle.
func (c *Chaos) OpenFile(path string, flag int, perm os.FileMode) (File, error) {
	f, err := c.inner.OpenFile(path, flag, perm)
	if err != nil {
		return nil, err
	}

	return &chaosFile{File: f, chaos: c}, nil
}

// ReadFile is a passthrough to the inner FS.
func (c *Chaos) ReadFile(path string) ([]byte, error) {
	return c.inner.ReadFile(path)
}

// Stat is a passthrough to the inner FS.
func (c *Chaos) Stat(path string) (os.FileInfo, error) {
	return c.inner.Stat(path)
}

// Remove is a passthrough to the inner FS.
func (c *Chaos) Remove(path string) error {
	return c.inner.Remove(path)
}

type chaosFile struct {
	File
	chaos *Chaos
}

func (f *chaosFile) ReadAt(p []byte, off int64) (int, error) {
	if f.chaos.take(&f.chaos.failReads) {
		return 0, &os.PathError{Op: "read", Err: syscall.EIO}
	}

	return f.File.ReadAt(p, off)
}

func (f *chaosFile) WriteAt(p []byte, off int64) (int, error) {
	if f.chaos.take(&f.chaos.failWrite) {
		return 0, &os.PathError{Op: "write", Err: syscall.EIO}
	}

	return f.File.WriteAt(p, off)
}

func (f *chaosFile) Sync() error {
	if f.chaos.take(&f.chaos.failSync) {
		return &os.PathError{Op: "sync", Err: syscall.EIO}
	}

	return f.File.Sync()
}
