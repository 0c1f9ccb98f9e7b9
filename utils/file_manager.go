package utils

import (
	"fmt"
	"os"
)

// CreateJobDir creates an isolated working directory for one job under baseDir
func CreateJobDir(baseDir, prefix string) (string, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create directory %s: %w", baseDir, err)
	}
	dir, err := os.MkdirTemp(baseDir, prefix+"-*")
	if err != nil {
		return "", fmt.Errorf("failed to create job directory: %w", err)
	}
	return dir, nil
}

// CleanupJobDir removes a job working directory and everything in it
func CleanupJobDir(dir string) error {
	if dir == "" {
		return nil
	}
	return os.RemoveAll(dir)
}

// GetFileSize returns file size in bytes
func GetFileSize(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}
