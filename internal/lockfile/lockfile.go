// Package lockfile enforces one chat host per state directory. Two hosts
// would race for the listen port and interleave writes into the same log
// file, so the second instance is turned away before it touches either.
package lockfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// ErrAlreadyRunning is returned by TryAcquire when a live process holds the
// lock.
var ErrAlreadyRunning = errors.New("another instance is already running")

// staleAfter is how old a lockfile may grow before it is reclaimed even
// when its PID still resolves to a running process.
const staleAfter = time.Hour

// Lockfile is a file-based instance lock. The file carries the owning PID
// and an acquisition timestamp so a crashed host's lock can be reclaimed.
type Lockfile struct {
	path   string
	file   *os.File
	pid    int
	locked bool
}

// New creates a lock for path without acquiring it.
func New(path string) *Lockfile {
	return &Lockfile{path: path}
}

// TryAcquire takes the lock or fails immediately. A lockfile left behind by
// a dead or hung process is removed and acquisition retried once; a lock
// held by a live process yields ErrAlreadyRunning.
func (l *Lockfile) TryAcquire() error {
	dir := filepath.Dir(l.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create lockfile directory: %w", err)
	}

	err := l.acquire()
	if err == nil {
		return nil
	}
	if !os.IsExist(err) {
		return err
	}

	stale, reason, checkErr := l.checkStale()
	if checkErr != nil {
		return fmt.Errorf("failed to check lockfile staleness: %w", checkErr)
	}
	if !stale {
		return fmt.Errorf("%w: %s", ErrAlreadyRunning, reason)
	}

	if removeErr := os.Remove(l.path); removeErr != nil {
		return fmt.Errorf("failed to remove stale lockfile (%s): %w", reason, removeErr)
	}
	if err := l.acquire(); err != nil {
		return fmt.Errorf("failed to acquire lock after removing stale lockfile: %w", err)
	}
	return nil
}

// acquire creates the lockfile exclusively and writes our PID and the
// current time into it. The error satisfies os.IsExist when another
// lockfile is in the way.
func (l *Lockfile) acquire() error {
	file, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0644)
	if err != nil {
		if os.IsExist(err) {
			return err
		}
		return fmt.Errorf("failed to create lockfile: %w", err)
	}

	l.file = file
	l.pid = os.Getpid()
	l.locked = true

	content := fmt.Sprintf("%d\n%s\n", l.pid, time.Now().Format(time.RFC3339))
	if _, err := l.file.WriteString(content); err != nil {
		l.Release()
		return fmt.Errorf("failed to write to lockfile: %w", err)
	}
	if err := l.file.Sync(); err != nil {
		l.Release()
		return fmt.Errorf("failed to sync lockfile: %w", err)
	}
	return nil
}

// checkStale reports whether the existing lockfile belongs to a process
// that is gone or has held the lock past staleAfter.
func (l *Lockfile) checkStale() (bool, string, error) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		// Unreadable lockfile, treat as corrupted and reclaim it.
		return true, "cannot read lockfile", nil
	}

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) < 1 {
		return true, "invalid lockfile format", nil
	}

	pid, err := strconv.Atoi(strings.TrimSpace(lines[0]))
	if err != nil {
		return true, "invalid PID in lockfile", nil
	}

	running, reason := isProcessRunning(pid)
	if !running {
		return true, reason, nil
	}

	if len(lines) >= 2 {
		acquired, err := time.Parse(time.RFC3339, strings.TrimSpace(lines[1]))
		if err == nil && time.Since(acquired) > staleAfter {
			return true, fmt.Sprintf("lockfile is older than %s", staleAfter), nil
		}
	}

	return false, fmt.Sprintf("process with PID %d is running", pid), nil
}

// Release drops the lock and removes the lockfile. Releasing an unheld lock
// is a no-op.
func (l *Lockfile) Release() error {
	if !l.locked {
		return nil
	}

	var err error
	if l.file != nil {
		if closeErr := l.file.Close(); closeErr != nil {
			err = closeErr
		}
		l.file = nil
	}

	if removeErr := os.Remove(l.path); removeErr != nil && !os.IsNotExist(removeErr) {
		if err != nil {
			err = fmt.Errorf("%v; failed to remove lockfile: %w", err, removeErr)
		} else {
			err = fmt.Errorf("failed to remove lockfile: %w", removeErr)
		}
	}

	l.locked = false
	return err
}

// PID returns the PID that acquired the lock.
func (l *Lockfile) PID() int {
	return l.pid
}

// Locked returns true if the lock is held.
func (l *Lockfile) Locked() bool {
	return l.locked
}

// Path returns the lockfile path.
func (l *Lockfile) Path() string {
	return l.path
}
