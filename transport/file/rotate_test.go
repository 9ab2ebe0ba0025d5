package file_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/vpbank/snmp_emulator/transport/file"
)

func newRotating(t *testing.T, cfg file.RotateConfig) *file.RotatingFile {
	t.Helper()
	rf, err := file.NewRotatingFile(cfg, nil)
	if err != nil {
		t.Fatalf("NewRotatingFile: %v", err)
	}
	t.Cleanup(func() { rf.Close() })
	return rf
}

func TestRotatingFile_BasicWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	rf := newRotating(t, file.RotateConfig{FilePath: path})

	data := []byte("hello world\n")
	n, err := rf.Write(data)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if n != len(data) {
		t.Errorf("Write returned %d, want %d", n, len(data))
	}
	if rf.Size() != int64(len(data)) {
		t.Errorf("Size = %d, want %d", rf.Size(), len(data))
	}

	content, _ := os.ReadFile(path)
	if string(content) != "hello world\n" {
		t.Errorf("file content = %q, want %q", content, "hello world\n")
	}
}

func TestRotatingFile_RotatesOnSize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	rf := newRotating(t, file.RotateConfig{FilePath: path, MaxBytes: 50, MaxBackups: 3})

	msg := []byte("12345678901234567890123456\n") // 27 bytes
	for i := 0; i < 4; i++ {
		if _, err := rf.Write(msg); err != nil {
			t.Fatalf("Write %d: %v", i, err)
		}
	}

	// one record per file: every file holds whole lines
	for _, p := range []string{path, path + ".1", path + ".2", path + ".3"} {
		content, err := os.ReadFile(p)
		if err != nil {
			t.Fatalf("%s should exist: %v", p, err)
		}
		if string(content) != string(msg) {
			t.Errorf("%s = %q, want one record", p, content)
		}
	}
}

func TestRotatingFile_PrunesOldBackups(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	rf := newRotating(t, file.RotateConfig{FilePath: path, MaxBytes: 20, MaxBackups: 2})

	for i := 0; i < 5; i++ {
		if _, err := rf.Write([]byte(strings.Repeat("x", 20) + "\n")); err != nil {
			t.Fatalf("Write %d: %v", i, err)
		}
	}

	for _, p := range []string{path + ".1", path + ".2"} {
		if _, err := os.Stat(p); err != nil {
			t.Errorf("backup %s should exist: %v", p, err)
		}
	}
	if _, err := os.Stat(path + ".3"); !os.IsNotExist(err) {
		t.Error("backup .3 should have been pruned")
	}
}

func TestRotatingFile_UnlimitedBackups(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	rf := newRotating(t, file.RotateConfig{FilePath: path, MaxBytes: 5})

	for _, rec := range []string{"one\n", "two\n", "three\n"} {
		if _, err := rf.Write([]byte(rec)); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}

	want := map[string]string{path: "three\n", path + ".1": "two\n", path + ".2": "one\n"}
	for p, rec := range want {
		content, _ := os.ReadFile(p)
		if string(content) != rec {
			t.Errorf("%s = %q, want %q", p, content, rec)
		}
	}
}

func TestRotatingFile_RequiresFilePath(t *testing.T) {
	if _, err := file.NewRotatingFile(file.RotateConfig{}, nil); err == nil {
		t.Error("expected error for empty FilePath, got nil")
	}
}

func TestRotatingFile_CreatesParentDirs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a", "b", "c", "audit.jsonl")
	rf := newRotating(t, file.RotateConfig{FilePath: path})
	if _, err := rf.Write([]byte("ok\n")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if rf.Path() != path {
		t.Errorf("Path = %q, want %q", rf.Path(), path)
	}
}

func TestRotatingFile_Reopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "audit.jsonl")
	rf := newRotating(t, file.RotateConfig{FilePath: path})

	if _, err := rf.Write([]byte("before\n")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	moved := filepath.Join(dir, "moved.jsonl")
	if err := os.Rename(path, moved); err != nil {
		t.Fatalf("Rename: %v", err)
	}
	if err := rf.Reopen(); err != nil {
		t.Fatalf("Reopen: %v", err)
	}
	if _, err := rf.Write([]byte("after\n")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	content, _ := os.ReadFile(path)
	if string(content) != "after\n" {
		t.Errorf("active file = %q, want %q", content, "after\n")
	}
}
