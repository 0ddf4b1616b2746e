package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

const lockFileName = "tinychat.lock"

// LockInstance marks the data directory as in use by this process.
// Lock file: <data_dir>/tinychat.lock, content: PID
func (s *ConversationStore) LockInstance() error {
	pid := strconv.Itoa(os.Getpid())
	return os.WriteFile(s.lockPath(), []byte(pid), 0600)
}

// UnlockInstance removes the instance lock
func (s *ConversationStore) UnlockInstance() error {
	err := os.Remove(s.lockPath())
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// CheckInstanceLock reports whether another live process holds the lock.
// Stale or unreadable lock files are removed.
func (s *ConversationStore) CheckInstanceLock() (bool, int, error) {
	data, err := os.ReadFile(s.lockPath())
	if os.IsNotExist(err) {
		return false, 0, nil
	}
	if err != nil {
		return false, 0, fmt.Errorf("failed to read lock file: %w", err)
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid == os.Getpid() {
		_ = os.Remove(s.lockPath())
		return false, 0, nil
	}

	if !processAlive(pid) {
		_ = os.Remove(s.lockPath())
		return false, 0, nil
	}
	return true, pid, nil
}

func (s *ConversationStore) lockPath() string {
	return filepath.Join(s.dataDir, lockFileName)
}

func processAlive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}
