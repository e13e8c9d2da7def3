// Package runlock provides the advisory marker-file lock that keeps ingest
// runs and validation sweeps from overlapping.
package runlock

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// MarkerName is the fixed name of the run-lock marker file.
const MarkerName = ".bagvault.lock"

// ErrLocked means a marker already exists: another run is (or was) active.
// Callers abort immediately; there is no queueing.
var ErrLocked = errors.New("run lock held")

// Lock is a held marker-file lock.
type Lock struct {
	path string
}

// Acquire creates the marker file in dir. It fails with ErrLocked when the
// marker already exists.
func Acquire(dir string) (*Lock, error) {
	path := filepath.Join(dir, MarkerName)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrLocked, path)
		}
		return nil, fmt.Errorf("acquire run lock: %w", err)
	}
	fmt.Fprintf(f, "pid %d\n", os.Getpid())
	f.Close()
	return &Lock{path: path}, nil
}

// Release removes the marker. Safe to call once per acquired lock on every
// exit path.
func (l *Lock) Release() error {
	if l == nil {
		return nil
	}
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("release run lock: %w", err)
	}
	return nil
}
