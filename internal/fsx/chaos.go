package fsx

import (
	"errors"
	"os"
	"sync"
	"syscall"
)

// ChaosConfig controls fault injection probabilities for [Chaos]. Each rate
// is a float64 in [0.0, 1.0]; the zero value disables all injection.
//
// This is a deliberately small slice of the teacher's fault-injection
// surface: only the fault classes the KVS log store's failure semantics
// name (§7 of the spec: I/O errors during set/remove, partial writes,
// atomic-rename failure during compaction). Read corruption, directory
// listing faults, and stat faults exercise filesystem behaviors the
// single-writer append-only log never relies on.
type ChaosConfig struct {
	// WriteFailRate fails File.Write entirely: nothing is written and an
	// error is returned.
	WriteFailRate float64

	// PartialWriteRate makes File.Write write fewer bytes than requested
	// and return an error, simulating a write interrupted mid-record.
	PartialWriteRate float64

	// RenameFailRate fails FS.Rename (the compaction commit point) with EIO.
	RenameFailRate float64
}

// Chaos wraps an [FS] and injects faults per [ChaosConfig] using a supplied
// random source, so tests are deterministic given a seed.
type Chaos struct {
	inner FS
	cfg   ChaosConfig
	rnd   func() float64

	mu      sync.Mutex
	enabled bool
}

// NewChaos wraps inner with fault injection governed by cfg. rnd must
// return values uniformly distributed in [0, 1); pass a seeded
// math/rand.Rand.Float64 for reproducible tests.
func NewChaos(inner FS, cfg ChaosConfig, rnd func() float64) *Chaos {
	return &Chaos{inner: inner, cfg: cfg, rnd: rnd, enabled: true}
}

// SetEnabled toggles fault injection without discarding the configuration,
// letting a test disable chaos mid-run (e.g. to let reopen-after-crash
// replay succeed after the simulated fault).
func (c *Chaos) SetEnabled(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.enabled = enabled
}

func (c *Chaos) isEnabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.enabled
}

func (c *Chaos) Open(path string) (File, error) { return c.inner.Open(path) }

func (c *Chaos) Create(path string) (File, error) {
	f, err := c.inner.Create(path)
	if err != nil {
		return nil, err
	}

	return &chaosFile{File: f, chaos: c}, nil
}

func (c *Chaos) OpenFile(path string, flag int, perm os.FileMode) (File, error) {
	f, err := c.inner.OpenFile(path, flag, perm)
	if err != nil {
		return nil, err
	}

	return &chaosFile{File: f, chaos: c}, nil
}

func (c *Chaos) ReadFile(path string) ([]byte, error) { return c.inner.ReadFile(path) }

func (c *Chaos) WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	return c.inner.WriteFileAtomic(path, data, perm)
}

func (c *Chaos) MkdirAll(path string, perm os.FileMode) error { return c.inner.MkdirAll(path, perm) }
func (c *Chaos) Stat(path string) (os.FileInfo, error)        { return c.inner.Stat(path) }
func (c *Chaos) Exists(path string) (bool, error)             { return c.inner.Exists(path) }
func (c *Chaos) Remove(path string) error                     { return c.inner.Remove(path) }

func (c *Chaos) Rename(oldpath, newpath string) error {
	if c.isEnabled() && c.cfg.RenameFailRate > 0 && c.rnd() < c.cfg.RenameFailRate {
		return &os.LinkError{Op: "rename", Old: oldpath, New: newpath, Err: syscall.EIO}
	}

	return c.inner.Rename(oldpath, newpath)
}

type chaosFile struct {
	File
	chaos *Chaos
}

func (f *chaosFile) Write(p []byte) (int, error) {
	if !f.chaos.isEnabled() {
		return f.File.Write(p)
	}

	if f.chaos.cfg.WriteFailRate > 0 && f.chaos.rnd() < f.chaos.cfg.WriteFailRate {
		return 0, errors.New("chaos: simulated write failure")
	}

	if f.chaos.cfg.PartialWriteRate > 0 && f.chaos.rnd() < f.chaos.cfg.PartialWriteRate && len(p) > 1 {
		n := len(p)/2 + 1
		written, err := f.File.Write(p[:n])
		if err != nil {
			return written, err
		}

		return written, errors.New("chaos: simulated partial write")
	}

	return f.File.Write(p)
}

var _ FS = (*Chaos)(nil)
