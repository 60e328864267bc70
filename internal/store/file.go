package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

const sidecarExt = ".json"

// FileStore keeps one JSON sidecar file per instance inside a directory.
type FileStore struct {
	baseDir string
	mu      sync.RWMutex
}

// NewFileStore creates a new FileStore rooted at the given directory.
// The directory will be created if it doesn't exist.
func NewFileStore(baseDir string) (*FileStore, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}
	return &FileStore{baseDir: baseDir}, nil
}

// Dir returns the directory holding the sidecar files.
func (fs *FileStore) Dir() string { return fs.baseDir }

func (fs *FileStore) path(id string) string {
	return filepath.Join(fs.baseDir, id+sidecarExt)
}

// Read loads the sidecar for id.
func (fs *FileStore) Read(ctx context.Context, id string) (map[string]any, error) {
	if err := ValidateID(id); err != nil {
		return nil, err
	}

	fs.mu.RLock()
	defer fs.mu.RUnlock()

	b, err := os.ReadFile(fs.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, notFound(id)
		}
		return nil, fmt.Errorf("failed to read sidecar: %w", err)
	}
	return decode(id, b)
}

// Write replaces the sidecar for id using an atomic write.
func (fs *FileStore) Write(ctx context.Context, id string, data map[string]any) error {
	if err := ValidateID(id); err != nil {
		return err
	}
	b, err := encode(id, data)
	if err != nil {
		return err
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()

	return atomicWriteFile(fs.path(id), b, 0644)
}

// Delete removes the sidecar for id.
func (fs *FileStore) Delete(ctx context.Context, id string) error {
	if err := ValidateID(id); err != nil {
		return err
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()

	if err := os.Remove(fs.path(id)); err != nil {
		if os.IsNotExist(err) {
			return notFound(id)
		}
		return fmt.Errorf("failed to delete sidecar: %w", err)
	}
	return nil
}

// List reads every sidecar in the directory. Temp files left behind by an
// interrupted write are ignored.
func (fs *FileStore) List(ctx context.Context) ([]Record, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	entries, err := os.ReadDir(fs.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list sidecars: %w", err)
	}

	var records []Record
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, sidecarExt) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		id := strings.TrimSuffix(name, sidecarExt)
		b, err := os.ReadFile(filepath.Join(fs.baseDir, name))
		if err != nil {
			return nil, fmt.Errorf("failed to read sidecar %s: %w", name, err)
		}
		data, err := decode(id, b)
		if err != nil {
			return nil, err
		}
		records = append(records, Record{ID: id, Data: data})
	}
	sortRecords(records)
	return records, nil
}

// atomicWriteFile writes data to a file atomically by writing to a temporary
// file first, then renaming. This ensures the target file is never in a
// partially-written state.
func atomicWriteFile(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)

	// Create temp file in same directory to ensure atomic rename
	tmpFile, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	// Clean up temp file on any error
	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}

	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}

	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Chmod(tmpPath, perm); err != nil {
		return fmt.Errorf("failed to set permissions: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	success = true
	return nil
}
