package site

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

// LockName is the lock file guarding a working directory.
const LockName = ".psdist.lock"

// Lock takes the working-directory lock, retrying until timeout. The returned
// func releases it.
func Lock(workDir string, timeout time.Duration) (func(), error) {
	lockPath := filepath.Join(workDir, LockName)
	l := flock.New(lockPath)
	deadline := time.Now().Add(timeout)
	for {
		locked, err := l.TryLock()
		if err != nil {
			return func() {}, fmt.Errorf("cannot acquire lock: %w", err)
		}
		if locked {
			return func() { _ = l.Unlock() }, nil
		}
		if time.Now().After(deadline) {
			return func() {}, fmt.Errorf("another build is in progress (lock: %s)", lockPath)
		}
		time.Sleep(200 * time.Millisecond)
	}
}
