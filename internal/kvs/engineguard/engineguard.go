// Package engineguard enforces spec §4.1/§6.2's on-disk engine marker: the
// engine used to open a store directory must match the one recorded there
// at first successful startup.
package engineguard

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/Tomatosoup97/distributed-rust/internal/fsx"
)

// ErrWrongEngineUsed is returned when the directory's recorded engine name
// does not match the engine being opened.
var ErrWrongEngineUsed = errors.New("wrong engine used")

const markerFileName = "engine"

// Ensure reads the ./engine marker in dir. If absent, it is created
// (atomically, via [fsx.FS.WriteFileAtomic]) recording engine. If present
// and it names a different engine, Ensure fails with [ErrWrongEngineUsed].
func Ensure(dir, engine string, fs fsx.FS) error {
	markerPath := filepath.Join(dir, markerFileName)

	exists, err := fs.Exists(markerPath)
	if err != nil {
		return fmt.Errorf("checking engine marker: %w", err)
	}

	if !exists {
		if err := fs.WriteFileAtomic(markerPath, []byte(engine), 0o644); err != nil {
			return fmt.Errorf("writing engine marker: %w", err)
		}

		return nil
	}

	recorded, err := fs.ReadFile(markerPath)
	if err != nil {
		return fmt.Errorf("reading engine marker: %w", err)
	}

	if string(recorded) != engine {
		return fmt.Errorf("%w: directory was last opened with %q, refusing to open with %q",
			ErrWrongEngineUsed, recorded, engine)
	}

	return nil
}
