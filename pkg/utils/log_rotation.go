package utils

import (
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// RotationConfig keeps the log file of repeated runs bounded. Rotated files
// are numbered: app.log.1 is the newest, optionally gzip-compressed.
type RotationConfig struct {
	// Filename is the file to write logs to
	Filename string

	// MaxSizeMB is the size in megabytes at which the file is rotated (0 = never)
	MaxSizeMB int64

	// MaxBackups is the number of rotated files to keep (0 = keep all)
	MaxBackups int

	// Compress gzips rotated files
	Compress bool
}

// RotatingFile is an append-only log file that rotates itself by size.
type RotatingFile struct {
	mu sync.Mutex

	config RotationConfig
	file   *os.File
	size   int64
}

// OpenRotatingFile opens or creates the log file.
func OpenRotatingFile(config RotationConfig) (*RotatingFile, error) {
	if config.Filename == "" {
		return nil, fmt.Errorf("filename is required")
	}

	rf := &RotatingFile{config: config}
	if err := rf.openFile(); err != nil {
		return nil, err
	}
	return rf, nil
}

// Write implements io.Writer
func (rf *RotatingFile) Write(p []byte) (int, error) {
	rf.mu.Lock()
	defer rf.mu.Unlock()

	if rf.file == nil {
		return 0, os.ErrClosed
	}
	if rf.shouldRotate(int64(len(p))) {
		if err := rf.rotate(); err != nil {
			return 0, fmt.Errorf("failed to rotate log: %w", err)
		}
	}

	n, err := rf.file.Write(p)
	rf.size += int64(n)
	return n, err
}

// Close closes the log file
func (rf *RotatingFile) Close() error {
	rf.mu.Lock()
	defer rf.mu.Unlock()

	if rf.file == nil {
		return nil
	}
	err := rf.file.Close()
	rf.file = nil
	return err
}

// Sync flushes the log file
func (rf *RotatingFile) Sync() error {
	rf.mu.Lock()
	defer rf.mu.Unlock()

	if rf.file == nil {
		return nil
	}
	return rf.file.Sync()
}

// shouldRotate never rotates an empty file, so one oversized entry still
// gets written.
func (rf *RotatingFile) shouldRotate(writeSize int64) bool {
	if rf.config.MaxSizeMB <= 0 || rf.size == 0 {
		return false
	}
	return rf.size+writeSize > rf.config.MaxSizeMB*1024*1024
}

func (rf *RotatingFile) rotate() error {
	if rf.file != nil {
		if err := rf.file.Close(); err != nil {
			return fmt.Errorf("failed to close current log file: %w", err)
		}
		rf.file = nil
	}

	newest := 0
	for {
		if _, ok := rf.existingBackup(newest + 1); !ok {
			break
		}
		newest++
	}

	// Drop the backups that would be shifted past MaxBackups.
	if keep := rf.config.MaxBackups; keep > 0 {
		for i := newest; i >= keep; i-- {
			if name, ok := rf.existingBackup(i); ok {
				if err := os.Remove(name); err != nil {
					return fmt.Errorf("failed to remove old backup: %w", err)
				}
			}
		}
		if newest >= keep {
			newest = keep - 1
		}
	}

	for i := newest; i >= 1; i-- {
		name, ok := rf.existingBackup(i)
		if !ok {
			continue
		}
		target := rf.backupName(i + 1)
		if strings.HasSuffix(name, ".gz") {
			target += ".gz"
		}
		if err := os.Rename(name, target); err != nil {
			return fmt.Errorf("failed to shift backup: %w", err)
		}
	}

	first := rf.backupName(1)
	if err := os.Rename(rf.config.Filename, first); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to rename log file: %w", err)
	}
	if rf.config.Compress {
		if err := compressFile(first); err != nil {
			// The uncompressed backup is kept.
			fmt.Fprintf(os.Stderr, "Failed to compress log file %s: %v\n", first, err)
		}
	}

	return rf.openFile()
}

func (rf *RotatingFile) openFile() error {
	if err := os.MkdirAll(filepath.Dir(rf.config.Filename), 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}

	file, err := os.OpenFile(rf.config.Filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	info, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return fmt.Errorf("failed to stat log file: %w", err)
	}

	rf.file = file
	rf.size = info.Size()
	return nil
}

func (rf *RotatingFile) backupName(i int) string {
	return fmt.Sprintf("%s.%d", rf.config.Filename, i)
}

// existingBackup returns the name of backup i, compressed or not.
func (rf *RotatingFile) existingBackup(i int) (string, bool) {
	plain := rf.backupName(i)
	for _, name := range []string{plain, plain + ".gz"} {
		if _, err := os.Stat(name); err == nil {
			return name, true
		}
	}
	return "", false
}

// compressFile replaces filename with filename.gz.
func compressFile(filename string) error {
	src, err := os.Open(filename)
	if err != nil {
		return err
	}
	defer func() { _ = src.Close() }()

	dst, err := os.Create(filename + ".gz")
	if err != nil {
		return err
	}

	gz := gzip.NewWriter(dst)
	if _, err := io.Copy(gz, src); err != nil {
		_ = dst.Close()
		_ = os.Remove(filename + ".gz")
		return err
	}
	if err := gz.Close(); err != nil {
		_ = dst.Close()
		_ = os.Remove(filename + ".gz")
		return err
	}
	if err := dst.Close(); err != nil {
		_ = os.Remove(filename + ".gz")
		return err
	}

	return os.Remove(filename)
}
