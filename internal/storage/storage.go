// Package storage handles file system operations: content hashing,
// date-based output path resolution, and disk space checking.
package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

var log = logrus.New()

// SetLogger replaces the package-level logger.
func SetLogger(l *logrus.Logger) { log = l }

// ComputeSHA256 calculates the SHA-256 hash of a byte payload and returns
// it hex-encoded. Used as the content-addressed deduplication key.
func ComputeSHA256(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// ResolveOutputPath maps (base, username, filename, modifiedAt) to the
// target path, creating all missing ancestor directories. With a
// modification timestamp the layout is base/username/YYYY/MM/filename,
// otherwise base/username/filename. Directory creation is idempotent.
func ResolveOutputPath(base, username, filename string, modifiedAt *time.Time) (string, error) {
	dir := filepath.Join(base, username)
	if modifiedAt != nil {
		dir = filepath.Join(dir,
			fmt.Sprintf("%d", modifiedAt.Year()),
			fmt.Sprintf("%02d", int(modifiedAt.Month())))
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory %s: %w", dir, err)
	}

	return filepath.Join(dir, filename), nil
}

// SaveFile writes a payload to the given path.
func SaveFile(path string, data []byte) error {
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write file %s: %w", path, err)
	}
	return nil
}

// CheckStorageSpace checks if there is enough free disk space under path.
func CheckStorageSpace(path string, minFreeBytes uint64) error {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return fmt.Errorf("failed to check storage space: %w", err)
	}
	availableBytes := stat.Bavail * uint64(stat.Bsize)
	if availableBytes < minFreeBytes {
		return fmt.Errorf("insufficient storage space: %d bytes available, %d bytes required",
			availableBytes, minFreeBytes)
	}
	return nil
}

// UploadDir is the runtime-reconfigurable upload base directory. Ingestion
// reads it concurrently; reconfiguration takes the write lock.
type UploadDir struct {
	mu   sync.RWMutex
	path string
}

// NewUploadDir creates the handle, ensuring the directory exists.
func NewUploadDir(path string) (*UploadDir, error) {
	if err := os.MkdirAll(path, 0755); err != nil {
		return nil, fmt.Errorf("failed to create upload directory %s: %w", path, err)
	}
	return &UploadDir{path: path}, nil
}

// Get returns the current upload base directory.
func (d *UploadDir) Get() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.path
}

// WithRead runs fn with the read lock held, so a concurrent Set cannot
// swap the directory out from under an in-flight upload.
func (d *UploadDir) WithRead(fn func(base string) error) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return fn(d.path)
}

// Set switches the upload base directory, creating the target first. The
// write lock blocks until in-flight uploads release their reads.
func (d *UploadDir) Set(path string) error {
	if err := os.MkdirAll(path, 0755); err != nil {
		return fmt.Errorf("failed to create upload directory %s: %w", path, err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.path = path

	log.Infof("Upload directory set to %s", path)
	return nil
}
