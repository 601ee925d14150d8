package segment

import (
	"fmt"
	"os"
	"path/filepath"
)

// FileManager owns one artifact file during a segment build. All writes go
// to a hidden temporary file beside the advertised path; FinalizeFile
// renames it into place and Cleanup removes it. Readers therefore never
// observe a partially written artifact, and an aborted build leaves nothing
// behind at the advertised path.
type FileManager struct {
	path    string
	tmpPath string
	file    *os.File
}

// NewFileManager creates the temporary file backing path, creating parent
// directories as needed.
func NewFileManager(path string, opts WriterOptions) (*FileManager, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	tmpPath := filepath.Join(dir, fmt.Sprintf(".%s.tmp", filepath.Base(path)))
	flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC | opts.OpenFlags
	file, err := os.OpenFile(tmpPath, flags, opts.FileMode)
	if err != nil {
		return nil, fmt.Errorf("failed to create temporary file: %w", err)
	}
	return &FileManager{
		path:    path,
		tmpPath: tmpPath,
		file:    file,
	}, nil
}

// Write writes data at the current position.
func (fm *FileManager) Write(data []byte) (int, error) {
	return fm.file.Write(data)
}

// Sync flushes the file's contents to stable storage.
func (fm *FileManager) Sync() error {
	return fm.file.Sync()
}

// Close closes the file handle without renaming anything. Close is
// idempotent.
func (fm *FileManager) Close() error {
	if fm.file == nil {
		return nil
	}
	err := fm.file.Close()
	fm.file = nil
	return err
}

// FinalizeFile closes the file and renames it to its advertised path.
func (fm *FileManager) FinalizeFile() error {
	if err := fm.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", fm.tmpPath, err)
	}
	if err := os.Rename(fm.tmpPath, fm.path); err != nil {
		return fmt.Errorf("failed to rename %s: %w", fm.tmpPath, err)
	}
	return nil
}

// Cleanup closes and removes the temporary file after a failed or aborted
// build. A finalized file is left alone.
func (fm *FileManager) Cleanup() error {
	fm.Close()
	if err := os.Remove(fm.tmpPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove %s: %w", fm.tmpPath, err)
	}
	return nil
}
