package storage

import (
	"fmt"
	"log/slog"
)

// NewStore builds the backend named by kind. path is the database file for
// sqlite and the directory for badger; memory ignores it.
func NewStore(kind, path string) (Store, error) {
	return NewStoreWithLogger(kind, path, nil)
}

// NewStoreWithLogger is NewStore with a logger for backends that produce
// their own diagnostics.
func NewStoreWithLogger(kind, path string, logger *slog.Logger) (Store, error) {
	switch kind {
	case "", "memory":
		return NewMemoryStore(), nil
	case "sqlite":
		return newSQLiteStore(path)
	case "badger":
		if path == "" {
			return nil, fmt.Errorf("badger backend requires a directory path")
		}
		return NewBadgerStore(BadgerConfig{Path: path, SyncWrites: true, Logger: logger}), nil
	default:
		return nil, fmt.Errorf("unsupported store backend: %s", kind)
	}
}

func CloseIfSupported(store Store) error {
	closer, ok := store.(interface{ Close() error })
	if !ok {
		return nil
	}
	return closer.Close()
}
