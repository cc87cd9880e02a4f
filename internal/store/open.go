package store

import (
	"fmt"
	"path/filepath"
)

// Backend names accepted by Open
const (
	BackendFS     = "fs"
	BackendSQLite = "sqlite"
)

// sqliteFile is the database name used by Open inside the data directory.
const sqliteFile = "runs.db"

// Open returns the store for backend rooted at dataDir.
func Open(backend, dataDir string) (Store, error) {
	switch backend {
	case BackendFS, "":
		return NewFSStore(dataDir)
	case BackendSQLite:
		if err := ensureDir(dataDir); err != nil {
			return nil, err
		}
		return NewSQLiteStore(filepath.Join(dataDir, sqliteFile))
	default:
		return nil, fmt.Errorf("unknown store backend %q (want %s or %s)", backend, BackendFS, BackendSQLite)
	}
}
