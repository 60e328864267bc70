package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/ynput/openpype/internal/errors"
	"github.com/ynput/openpype/internal/logging"
)

// LockFileName is the name of the lock file within a scene directory
const LockFileName = "openpype.lock"

// ErrSessionLocked is returned when another live process holds the scene lock
var ErrSessionLocked = errors.New("scene is locked by another process")

// Lock represents an acquired scene lock
type Lock struct {
	SessionID string    `json:"session_id"`
	Host      string    `json:"host"`
	PID       int       `json:"pid"`
	Hostname  string    `json:"hostname"`
	StartedAt time.Time `json:"started_at"`

	// Internal fields (not serialized)
	lockFile string
	logger   *logging.Logger
}

// AcquireLock takes an exclusive lock on dir so that only one process
// mutates the scene's instance metadata at a time. A lock left by a dead
// process is removed. The logger parameter is optional.
func AcquireLock(dir, sessionID, host string, logger *logging.Logger) (*Lock, error) {
	if logger == nil {
		logger = logging.NopLogger()
	}
	lockPath := filepath.Join(dir, LockFileName)

	if existing, err := ReadLock(lockPath); err == nil {
		if isProcessAlive(existing.PID) {
			logger.Error("failed to acquire lock",
				"session_id", sessionID,
				"holder_pid", existing.PID,
				"holder_host", existing.Host,
			)
			return nil, fmt.Errorf("%w: PID %d on %s", ErrSessionLocked, existing.PID, existing.Hostname)
		}
		if err := os.Remove(lockPath); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to remove stale lock: %w", err)
		}
		logger.Warn("stale lock cleaned", "session_id", sessionID, "old_pid", existing.PID)
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create lock directory: %w", err)
	}

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	lock := &Lock{
		SessionID: sessionID,
		Host:      host,
		PID:       os.Getpid(),
		Hostname:  hostname,
		StartedAt: time.Now(),
		lockFile:  lockPath,
		logger:    logger,
	}

	data, err := json.MarshalIndent(lock, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal lock: %w", err)
	}

	// O_EXCL fails if another process created the file since the check above
	f, err := os.OpenFile(lockPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		if os.IsExist(err) {
			return nil, ErrSessionLocked
		}
		return nil, fmt.Errorf("failed to create lock file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		os.Remove(lockPath)
		return nil, fmt.Errorf("failed to write lock file: %w", err)
	}

	logger.Debug("scene lock acquired", "session_id", sessionID, "pid", lock.PID)
	return lock, nil
}

// Release removes the lock file if this process still owns it.
// Safe to call multiple times.
func (l *Lock) Release() error {
	if l == nil || l.lockFile == "" {
		return nil
	}

	existing, err := ReadLock(l.lockFile)
	if err != nil || existing.PID != l.PID || existing.SessionID != l.SessionID {
		return nil
	}

	if err := os.Remove(l.lockFile); err != nil && !os.IsNotExist(err) {
		return err
	}
	if l.logger != nil {
		l.logger.Debug("scene lock released", "session_id", l.SessionID)
	}
	return nil
}

// ReadLock reads a lock file.
func ReadLock(lockPath string) (*Lock, error) {
	data, err := os.ReadFile(lockPath)
	if err != nil {
		return nil, err
	}

	var lock Lock
	if err := json.Unmarshal(data, &lock); err != nil {
		return nil, fmt.Errorf("failed to parse lock file: %w", err)
	}
	lock.lockFile = lockPath
	return &lock, nil
}

// IsLocked reports whether dir is locked by a live process.
func IsLocked(dir string) (*Lock, bool) {
	lock, err := ReadLock(filepath.Join(dir, LockFileName))
	if err != nil {
		return nil, false
	}
	if !isProcessAlive(lock.PID) {
		return lock, false
	}
	return lock, true
}

// isProcessAlive checks if a process with the given PID is still running.
func isProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	// Signal 0 checks existence without affecting the process
	return process.Signal(syscall.Signal(0)) == nil
}
