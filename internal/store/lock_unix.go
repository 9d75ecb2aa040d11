//go:build unix

package store

import (
	"errors"
	"fmt"
	"os"
	"syscall"
)

// ErrLocked is returned when another process holds the store file
var ErrLocked = errors.New("store is in use by another process")

// fileLock is an exclusive advisory lock next to the store file
type fileLock struct {
	fd int
}

func acquireLock(path string) (*fileLock, error) {
	fd, err := syscall.Open(path, syscall.O_CREAT|syscall.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open lock file: %w", err)
	}

	// Non-blocking exclusive lock
	if err := syscall.Flock(fd, syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		syscall.Close(fd)
		if errors.Is(err, syscall.EWOULDBLOCK) {
			return nil, fmt.Errorf("%s: %w", path, ErrLocked)
		}
		return nil, fmt.Errorf("failed to acquire lock: %w", err)
	}

	// Record the owner for operators inspecting the lock
	if err := syscall.Ftruncate(fd, 0); err == nil {
		_, _ = syscall.Write(fd, []byte(fmt.Sprintf("%d\n", os.Getpid())))
	}

	return &fileLock{fd: fd}, nil
}

func (l *fileLock) release() error {
	if l == nil || l.fd < 0 {
		return nil
	}
	_ = syscall.Flock(l.fd, syscall.LOCK_UN)
	err := syscall.Close(l.fd)
	l.fd = -1
	return err
}
