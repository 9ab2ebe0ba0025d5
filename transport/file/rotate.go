// Package file — rotate.go provides size-based rotation for the audit file.
//
// When MaxBytes would be exceeded the active file is renamed with a numeric
// suffix (audit.jsonl → audit.jsonl.1) and a fresh file is opened. Up to
// MaxBackups old files are kept.
package file

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// ─────────────────────────────────────────────────────────────────────────────
// RotateConfig
// ─────────────────────────────────────────────────────────────────────────────

// RotateConfig controls rotation.
type RotateConfig struct {
	// FilePath is the active file name (required).
	FilePath string

	// MaxBytes triggers rotation when a write would take the active file
	// past this size. Zero disables rotation.
	MaxBytes int64

	// MaxBackups is the number of rotated files to keep. Zero keeps all.
	MaxBackups int
}

// ─────────────────────────────────────────────────────────────────────────────
// RotatingFile
// ─────────────────────────────────────────────────────────────────────────────

// RotatingFile is an io.WriteCloser that performs size-based rotation.
// It is safe for concurrent use.
type RotatingFile struct {
	mu     sync.Mutex
	cfg    RotateConfig
	file   *os.File
	size   int64
	logger *slog.Logger
}

// NewRotatingFile opens (or creates) cfg.FilePath, creating parent
// directories. The caller must call Close when finished.
func NewRotatingFile(cfg RotateConfig, logger *slog.Logger) (*RotatingFile, error) {
	if cfg.FilePath == "" {
		return nil, fmt.Errorf("transport/file: rotate: FilePath is required")
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}

	dir := filepath.Dir(cfg.FilePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("transport/file: rotate: mkdir %s: %w", dir, err)
	}

	rf := &RotatingFile{cfg: cfg, logger: logger}
	if err := rf.openFile(); err != nil {
		return nil, err
	}
	return rf, nil
}

// Path is the active file name.
func (rf *RotatingFile) Path() string { return rf.cfg.FilePath }

// Size is the current size of the active file.
func (rf *RotatingFile) Size() int64 {
	rf.mu.Lock()
	defer rf.mu.Unlock()
	return rf.size
}

// Write implements io.Writer. A record larger than MaxBytes still goes to
// a fresh file whole.
func (rf *RotatingFile) Write(p []byte) (int, error) {
	rf.mu.Lock()
	defer rf.mu.Unlock()

	if rf.file == nil {
		return 0, fmt.Errorf("transport/file: rotate: %w", ErrClosed)
	}
	if rf.cfg.MaxBytes > 0 && rf.size > 0 && rf.size+int64(len(p)) > rf.cfg.MaxBytes {
		if err := rf.rotate(); err != nil {
			// keep writing to whatever is open rather than losing events
			rf.logger.Error("transport/file: rotate failed", "error", err.Error())
		}
	}
	if rf.file == nil {
		return 0, fmt.Errorf("transport/file: rotate: no open file")
	}

	n, err := rf.file.Write(p)
	rf.size += int64(n)
	return n, err
}

// Reopen closes and reopens the active file, for use after an external
// tool moved it away.
func (rf *RotatingFile) Reopen() error {
	rf.mu.Lock()
	defer rf.mu.Unlock()
	if rf.file != nil {
		_ = rf.file.Close()
		rf.file = nil
	}
	return rf.openFile()
}

// Close closes the active file.
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

// ─────────────────────────────────────────────────────────────────────────────
// Internal helpers
// ─────────────────────────────────────────────────────────────────────────────

func (rf *RotatingFile) openFile() error {
	f, err := os.OpenFile(rf.cfg.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("transport/file: rotate: open %s: %w", rf.cfg.FilePath, err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("transport/file: rotate: stat %s: %w", rf.cfg.FilePath, err)
	}
	rf.file = f
	rf.size = info.Size()
	return nil
}

func (rf *RotatingFile) backup(i int) string { return fmt.Sprintf("%s.%d", rf.cfg.FilePath, i) }

// rotate shifts the backups up by one and opens a fresh active file:
//
//	audit.jsonl   → audit.jsonl.1
//	audit.jsonl.1 → audit.jsonl.2
//	...
//	audit.jsonl.N → removed when N = MaxBackups
func (rf *RotatingFile) rotate() error {
	if err := rf.file.Close(); err != nil {
		rf.logger.Warn("transport/file: rotate: close error", "error", err.Error())
	}
	rf.file = nil

	top := rf.cfg.MaxBackups
	if top > 0 {
		_ = os.Remove(rf.backup(top))
	} else {
		top = rf.highestBackup() + 1
	}
	for i := top - 1; i >= 1; i-- {
		_ = os.Rename(rf.backup(i), rf.backup(i+1))
	}
	if err := os.Rename(rf.cfg.FilePath, rf.backup(1)); err != nil && !os.IsNotExist(err) {
		rf.logger.Warn("transport/file: rotate: rename error", "error", err.Error())
	}
	if rf.cfg.MaxBackups > 0 {
		rf.prune()
	}

	rf.logger.Info("transport/file: rotated", "file", rf.cfg.FilePath)
	return rf.openFile()
}

func (rf *RotatingFile) highestBackup() int {
	n := 0
	for i := 1; ; i++ {
		if _, err := os.Stat(rf.backup(i)); os.IsNotExist(err) {
			return n
		}
		n = i
	}
}

// prune removes backups beyond MaxBackups left by an earlier, larger setting.
func (rf *RotatingFile) prune() {
	for i := rf.cfg.MaxBackups + 1; ; i++ {
		name := rf.backup(i)
		if err := os.Remove(name); err != nil {
			return
		}
		rf.logger.Debug("transport/file: pruned old backup", "file", name)
	}
}
