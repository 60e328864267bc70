package session

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/ynput/openpype/internal/errors"
)

func TestAcquireLock(t *testing.T) {
	dir := t.TempDir()

	lock, err := AcquireLock(dir, "s1", "nuke", nil)
	if err != nil {
		t.Fatalf("AcquireLock() error = %v", err)
	}
	if lock.PID != os.Getpid() || lock.Host != "nuke" {
		t.Errorf("lock = %+v", lock)
	}

	if _, err := AcquireLock(dir, "s2", "nuke", nil); !errors.Is(err, ErrSessionLocked) {
		t.Errorf("AcquireLock() while held error = %v, want ErrSessionLocked", err)
	}

	if err := lock.Release(); err != nil {
		t.Fatalf("Release() error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, LockFileName)); !os.IsNotExist(err) {
		t.Error("Release() should remove the lock file")
	}
	if err := lock.Release(); err != nil {
		t.Errorf("second Release() error = %v", err)
	}
}

func TestAcquireLock_StaleLockCleaned(t *testing.T) {
	dir := t.TempDir()
	stale, _ := json.Marshal(Lock{SessionID: "old", PID: 0, Hostname: "farm01"})
	if err := os.WriteFile(filepath.Join(dir, LockFileName), stale, 0644); err != nil {
		t.Fatal(err)
	}

	if _, locked := IsLocked(dir); locked {
		t.Error("lock held by a dead process must not count as locked")
	}

	lock, err := AcquireLock(dir, "new", "maya", nil)
	if err != nil {
		t.Fatalf("AcquireLock() over stale lock error = %v", err)
	}
	defer lock.Release()

	current, err := ReadLock(filepath.Join(dir, LockFileName))
	if err != nil {
		t.Fatalf("ReadLock() error = %v", err)
	}
	if current.SessionID != "new" {
		t.Errorf("lock session = %q, want new", current.SessionID)
	}
}

func TestRelease_ForeignLockKept(t *testing.T) {
	dir := t.TempDir()
	lock, err := AcquireLock(dir, "mine", "maya", nil)
	if err != nil {
		t.Fatal(err)
	}

	// Another session took over the file
	other, _ := json.Marshal(Lock{SessionID: "theirs", PID: os.Getpid()})
	if err := os.WriteFile(filepath.Join(dir, LockFileName), other, 0644); err != nil {
		t.Fatal(err)
	}

	if err := lock.Release(); err != nil {
		t.Fatalf("Release() error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, LockFileName)); err != nil {
		t.Error("Release() must not remove a lock owned by another session")
	}
}
