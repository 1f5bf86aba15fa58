// Package pidfile guards against two forwarder processes sharing the same
// state files.
package pidfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

// ErrLocked is returned when another live process holds the file
var ErrLocked = errors.New("pid file is locked by another process")

// File is an exclusively locked PID marker
type File struct {
	path string
	file *os.File
}

// Acquire creates path, locks it and writes the current PID into it
func Acquire(path string) (*File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create pid dir: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open pid file: %w", err)
	}

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		_ = f.Close()
		if errors.Is(err, syscall.EWOULDBLOCK) {
			if pid, rerr := Read(path); rerr == nil {
				return nil, fmt.Errorf("%w (pid %d)", ErrLocked, pid)
			}
			return nil, ErrLocked
		}
		return nil, fmt.Errorf("lock pid file: %w", err)
	}

	release := func(cause error) (*File, error) {
		_ = syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
		_ = f.Close()
		return nil, cause
	}
	if err := f.Truncate(0); err != nil {
		return release(fmt.Errorf("truncate pid file: %w", err))
	}
	if _, err := f.Seek(0, 0); err != nil {
		return release(fmt.Errorf("seek pid file: %w", err))
	}
	if _, err := fmt.Fprintf(f, "%d\n", os.Getpid()); err != nil {
		return release(fmt.Errorf("write pid: %w", err))
	}
	if err := f.Sync(); err != nil {
		return release(fmt.Errorf("sync pid file: %w", err))
	}

	return &File{path: path, file: f}, nil
}

// Path returns the marker location
func (p *File) Path() string { return p.path }

// Release unlocks and removes the marker. Calling it twice is a no-op.
func (p *File) Release() error {
	if p == nil || p.file == nil {
		return nil
	}
	defer func() { p.file = nil }()

	// remove while still holding the lock so a waiting process cannot
	// lock the old inode
	if err := os.Remove(p.path); err != nil && !os.IsNotExist(err) {
		_ = p.file.Close()
		return fmt.Errorf("remove pid file: %w", err)
	}
	if err := syscall.Flock(int(p.file.Fd()), syscall.LOCK_UN); err != nil {
		_ = p.file.Close()
		return fmt.Errorf("release lock: %w", err)
	}
	if err := p.file.Close(); err != nil {
		return fmt.Errorf("close pid file: %w", err)
	}
	return nil
}

// Read returns the PID stored in path
func Read(path string) (int, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(raw)))
	if err != nil {
		return 0, fmt.Errorf("invalid pid file content: %w", err)
	}
	return pid, nil
}
