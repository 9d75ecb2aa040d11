//go:build !unix

package store

import "errors"

var ErrLocked = errors.New("store is in use by another process")

type fileLock struct{}

// Locking is not supported on this platform
func acquireLock(path string) (*fileLock, error) {
	return &fileLock{}, nil
}

func (l *fileLock) release() error {
	return nil
}
