// Package fs provides the filesystem abstraction used by device-file
// IO, plus a fault-injecting implementation for tests.
//
// The main types are:
//   - [FS]: interface for the operations device files need
//   - [File]: interface for open files (satisfied by [os.File])
//   - [Real]: production implementation using the [os] package
//   - [Chaos]: testing implementation that injects failures
package fs

import (
	"io"
	"os"
)

// File is an OS-backed open file. The intent is os-like behavior:
// implementations must behave like [os.File], including positional
// ReadAt/WriteAt semantics, so they compose with the standard library.
//
// Implementations must be safe for concurrent use by multiple
// goroutines; device IO workers issue positional reads and writes to
// one shared handle.
type File interface {
	io.ReaderAt
	io.WriterAt
	io.Closer

	// Sync flushes written data. See [os.File.Sync].
	Sync() error

	// Truncate changes the file size. See [os.File.Truncate].
	Truncate(size int64) error

	// Fd returns the file descriptor, for low-level calls such as
	// fdatasync. See [os.File.Fd].
	Fd() uintptr

	// Stat returns the file's [os.FileInfo].
	Stat() (os.FileInfo, error)
}

// FS is the filesystem surface device files and manifests are opened
// through.
type FS interface {
	// OpenFile opens path. See [os.OpenFile].
	OpenFile(path string, flag int, perm os.FileMode) (File, error)

	// ReadFile reads the whole file. See [os.ReadFile].
	ReadFile(path string) ([]byte, error)

	// Stat stats a path. See [os.Stat].
	Stat(path string) (os.FileInfo, error)

	// Remove removes a path. See [os.Remove].
	Remove(path string) error
}
