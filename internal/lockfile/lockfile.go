// Package lockfile keeps two segakai servers from sharing one state directory.
//
// The lock is an flock on a file inside the state directory, so the kernel
// drops it when the process exits, however it exits.
package lockfile

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// LockFileName is the lock file created in the state directory.
const LockFileName = "segakai.lock"

// Holder describes the process owning a lock. It is written to the lock file
// as key=value lines.
type Holder struct {
	PID       int
	Addr      string
	StartedAt time.Time
}

func (h Holder) encode() string {
	var b strings.Builder
	fmt.Fprintf(&b, "pid=%d\n", h.PID)
	if h.Addr != "" {
		fmt.Fprintf(&b, "addr=%s\n", h.Addr)
	}
	if !h.StartedAt.IsZero() {
		fmt.Fprintf(&b, "started_at=%s\n", h.StartedAt.UTC().Format(time.RFC3339))
	}
	return b.String()
}

// parseHolder reads whatever it can from lock file content. Unknown or
// malformed lines are skipped.
func parseHolder(content string) Holder {
	var h Holder
	sc := bufio.NewScanner(strings.NewReader(content))
	for sc.Scan() {
		key, value, ok := strings.Cut(strings.TrimSpace(sc.Text()), "=")
		if !ok {
			continue
		}
		switch key {
		case "pid":
			if pid, err := strconv.Atoi(value); err == nil && pid > 0 {
				h.PID = pid
			}
		case "addr":
			h.Addr = value
		case "started_at":
			if t, err := time.Parse(time.RFC3339, value); err == nil {
				h.StartedAt = t
			}
		}
	}
	return h
}

// Lock is a held state directory lock.
type Lock struct {
	file   *os.File
	path   string
	holder Holder
}

// Acquire takes the exclusive lock on stateDir, creating the directory if
// needed. addr is recorded for the error shown to a second server. A held
// lock yields a *LockError describing the current holder.
func Acquire(stateDir, addr string) (*Lock, error) {
	lockPath := filepath.Join(stateDir, LockFileName)
	slog.Debug("Lockfile.Acquire: acquiring", "lock_path", lockPath)

	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create state directory %s: %w", stateDir, err)
	}

	// O_TRUNC would wipe the holder's details before we know we own the lock.
	file, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open lock file %s: %w", lockPath, err)
	}

	if err := syscall.Flock(int(file.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		file.Close()
		lockErr := &LockError{LockPath: lockPath, Cause: err}
		if data, readErr := os.ReadFile(lockPath); readErr == nil {
			lockErr.Holder = parseHolder(string(data))
			lockErr.Running = lockErr.Holder.PID > 0 && isProcessRunning(lockErr.Holder.PID)
		}
		slog.Error("Lockfile.Acquire: state directory is locked", "lock_path", lockPath, "holder_pid", lockErr.Holder.PID, "holder_addr", lockErr.Holder.Addr)
		return nil, lockErr
	}

	holder := Holder{PID: os.Getpid(), Addr: addr, StartedAt: time.Now()}
	if err := writeHolder(file, holder); err != nil {
		syscall.Flock(int(file.Fd()), syscall.LOCK_UN)
		file.Close()
		return nil, fmt.Errorf("failed to write lock information to %s: %w", lockPath, err)
	}

	slog.Info("Lockfile.Acquire: lock acquired", "lock_path", lockPath, "pid", holder.PID)
	return &Lock{file: file, path: lockPath, holder: holder}, nil
}

func writeHolder(file *os.File, h Holder) error {
	if err := file.Truncate(0); err != nil {
		return err
	}
	if _, err := file.WriteAt([]byte(h.encode()), 0); err != nil {
		return err
	}
	if err := file.Sync(); err != nil {
		slog.Warn("Lockfile.Acquire: failed to sync lock file", "error", err)
	}
	return nil
}

// Path returns the lock file path.
func (l *Lock) Path() string {
	return l.path
}

// Holder returns the details recorded for this process.
func (l *Lock) Holder() Holder {
	return l.holder
}

// Release drops the lock and removes the file. Calling it again is a no-op.
func (l *Lock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	// Remove before unlocking so a waiting server never opens a file that is
	// about to disappear.
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		slog.Warn("Lockfile.Release: failed to remove lock file", "error", err, "lock_path", l.path)
	}
	if err := syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN); err != nil {
		slog.Warn("Lockfile.Release: failed to unlock", "error", err, "lock_path", l.path)
	}
	err := l.file.Close()
	l.file = nil
	if err != nil {
		return fmt.Errorf("failed to close lock file %s: %w", l.path, err)
	}
	slog.Info("Lockfile.Release: lock released", "lock_path", l.path)
	return nil
}

// LockError is returned when another process holds the lock.
type LockError struct {
	LockPath string
	Holder   Holder
	// Running reports whether the holder's PID is still alive.
	Running bool
	Cause   error
}

func (e *LockError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "another segakai server is using this state directory (lock file %s)", e.LockPath)
	if e.Holder.PID > 0 {
		state := "running"
		if !e.Running {
			state = "not running, lock may be stale"
		}
		fmt.Fprintf(&b, "; held by pid %d (%s)", e.Holder.PID, state)
	}
	if e.Holder.Addr != "" {
		fmt.Fprintf(&b, " listening on %s", e.Holder.Addr)
	}
	if !e.Holder.StartedAt.IsZero() {
		fmt.Fprintf(&b, " since %s", e.Holder.StartedAt.Format(time.RFC3339))
	}
	return b.String()
}

func (e *LockError) Unwrap() error {
	return e.Cause
}

// isProcessRunning sends signal 0, which checks for existence without
// delivering anything.
func isProcessRunning(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return process.Signal(syscall.Signal(0)) == nil
}
