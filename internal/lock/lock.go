// Package lock keeps two smartcart processes from sharing a data directory.
package lock

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"
)

const fileName = "LOCK"

// HeldError is returned when another process holds the directory lock.
type HeldError struct {
	PID     int
	Command string
	Path    string
}

func (e *HeldError) Error() string {
	if e.Command != "" {
		return fmt.Sprintf("%s is in use by PID %d (%s)", filepath.Dir(e.Path), e.PID, e.Command)
	}
	return fmt.Sprintf("%s is in use by PID %d", filepath.Dir(e.Path), e.PID)
}

// Lock represents an acquired lock file.
type Lock struct {
	file *os.File
	path string
}

// Acquire takes an exclusive flock on dir/LOCK, recording the PID and
// command for diagnostics. Returns HeldError if another process holds it.
func Acquire(dir, command string) (*Lock, error) {
	lockPath := filepath.Join(dir, fileName)

	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		_ = f.Close()
		held := &HeldError{Path: lockPath}
		if data, rerr := os.ReadFile(lockPath); rerr == nil {
			held.PID, held.Command = parse(string(data))
		}
		return nil, held
	}

	if err := f.Truncate(0); err != nil {
		_ = f.Close()
		return nil, err
	}
	content := fmt.Sprintf("pid=%d\ncmd=%s\ntime=%s\n", os.Getpid(), command, time.Now().UTC().Format(time.RFC3339))
	if _, err := f.WriteAt([]byte(content), 0); err != nil {
		_ = f.Close()
		return nil, err
	}

	return &Lock{file: f, path: lockPath}, nil
}

// Release releases the lock. Safe to call on nil receiver and more than once.
func (l *Lock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	// Remove before closing so a waiting process never sees a stale file.
	_ = os.Remove(l.path)
	err := l.file.Close()
	l.file = nil
	return err
}

func parse(content string) (pid int, command string) {
	for _, line := range strings.Split(content, "\n") {
		if after, ok := strings.CutPrefix(line, "pid="); ok {
			pid, _ = strconv.Atoi(after)
		}
		if after, ok := strings.CutPrefix(line, "cmd="); ok {
			command = after
		}
	}
	return pid, command
}
