package store

import (
	"path/filepath"

	"github.com/ynput/openpype/internal/config"
	"github.com/ynput/openpype/internal/errors"
)

// Open returns the InstanceStore selected by cfg.Store.Backend.
// Callers should Close the store when it implements Closer.
func Open(cfg *config.Config) (InstanceStore, error) {
	switch cfg.Store.Backend {
	case "file", "":
		return NewFileStore(cfg.Paths.InstanceStore)
	case "sqlite":
		return OpenSQLiteStore(cfg.Store.SQLitePath)
	case "memory":
		return NewMemoryStore(), nil
	}
	return nil, errors.Wrapf(errors.ErrInvalidInput, "unknown store backend %q", cfg.Store.Backend)
}

// ScenePath returns where the persisted scene graph lives for cfg.
// The file backend keeps it as a hidden file among the sidecars.
func ScenePath(cfg *config.Config) string {
	if cfg.Store.Backend == "sqlite" {
		return filepath.Join(filepath.Dir(cfg.Store.SQLitePath), "scene.json")
	}
	return filepath.Join(cfg.Paths.InstanceStore, ".scene.json")
}
