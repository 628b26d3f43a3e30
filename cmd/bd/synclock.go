package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gofrs/flock"
)

const syncLockName = ".sync.lock"

// acquireSyncLock serializes sync against other bd processes in the
// same workspace. The holder's PID is written into the lock file so a
// blocked caller can report who it is waiting on, and whether that
// holder is still alive.
func acquireSyncLock(dir string, wait time.Duration) (*flock.Flock, error) {
	path := filepath.Join(dir, syncLockName)
	lock := flock.New(path)

	deadline := time.Now().Add(wait)
	for {
		locked, err := lock.TryLock()
		if err != nil {
			return nil, fmt.Errorf("failed to acquire sync lock: %w", err)
		}
		if locked {
			// Best effort; the flock itself is the real guard.
			_ = os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())+"\n"), 0o600)
			return lock, nil
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("sync lock held by %s", describeLockHolder(path))
		}
		time.Sleep(100 * time.Millisecond)
	}
}

func releaseSyncLock(lock *flock.Flock) {
	if lock == nil {
		return
	}
	path := lock.Path()
	_ = lock.Unlock()
	_ = os.Remove(path)
}

func describeLockHolder(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return "another process"
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return "another process"
	}
	if !processAlive(pid) {
		return fmt.Sprintf("pid %d (no longer running; the lock should clear shortly)", pid)
	}
	return fmt.Sprintf("pid %d", pid)
}
