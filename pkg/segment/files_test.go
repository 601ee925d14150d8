package segment

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestFileManagerFinalize(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "artifact.data")

	fm, err := NewFileManager(path, testWriterOptions())
	if err != nil {
		t.Fatalf("NewFileManager: %v", err)
	}
	if _, err := fm.Write([]byte("payload")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	// Until finalized, nothing sits at the advertised path.
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("advertised path exists before finalize: %v", err)
	}

	if err := fm.FinalizeFile(); err != nil {
		t.Fatalf("FinalizeFile: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(data) != "payload" {
		t.Errorf("finalized content = %q, want %q", data, "payload")
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".tmp") {
			t.Errorf("temporary file %q survived finalize", e.Name())
		}
	}
}

func TestFileManagerCleanup(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "artifact.data")

	fm, err := NewFileManager(path, testWriterOptions())
	if err != nil {
		t.Fatalf("NewFileManager: %v", err)
	}
	if _, err := fm.Write([]byte("doomed")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := fm.Cleanup(); err != nil {
		t.Fatalf("Cleanup: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("cleanup left %d files behind", len(entries))
	}

	// Cleanup after cleanup is harmless.
	if err := fm.Cleanup(); err != nil {
		t.Errorf("second Cleanup: %v", err)
	}
}

func TestFileManagerCreatesDirectories(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a", "b", "artifact.data")

	fm, err := NewFileManager(path, testWriterOptions())
	if err != nil {
		t.Fatalf("NewFileManager: %v", err)
	}
	if err := fm.FinalizeFile(); err != nil {
		t.Fatalf("FinalizeFile: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("artifact missing after finalize in nested dir: %v", err)
	}
}
