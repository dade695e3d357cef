// Package fsx provides the filesystem abstraction used by the KVS log store
// and its engine guard: an [FS] interface for the operations they need, a
// production implementation backed by [os], and a fault-injecting
// implementation used to exercise crash-safety claims in tests.
package fsx

import (
	"io"
	"os"
)

// File is the subset of *os.File operations the rest of this module needs.
//
// Implementations must behave like [os.File]: in particular [File.Fd] must
// return a file descriptor usable with syscalls such as flock, for as long
// as the file remains open.
type File interface {
	io.ReadWriteCloser
	io.Seeker

	Fd() uintptr
	Stat() (os.FileInfo, error)
	Sync() error
}

// FS defines the filesystem operations the KVS log store and its engine
// guard rely on. Two implementations are provided: [Real] for production,
// and [Chaos] for fault-injection testing.
type FS interface {
	Open(path string) (File, error)
	Create(path string) (File, error)
	OpenFile(path string, flag int, perm os.FileMode) (File, error)

	ReadFile(path string) ([]byte, error)

	// WriteFileAtomic writes data to path via a temp file + rename, so a
	// crash never leaves a partially written file at path.
	WriteFileAtomic(path string, data []byte, perm os.FileMode) error

	MkdirAll(path string, perm os.FileMode) error
	Stat(path string) (os.FileInfo, error)
	Exists(path string) (bool, error)

	Remove(path string) error
	Rename(oldpath, newpath string) error
}

var _ File = (*os.File)(nil)
