// Package storagetest opens throwaway databases for package tests.
package storagetest

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"griff_shop/internal/storage"
)

// New opens a migrated in-memory sqlite database. A single connection keeps
// concurrent transactions strictly serialized, the way row locks do on mysql.
func New(t *testing.T) *gorm.DB {
	t.Helper()
	return open(t, storage.Options{Driver: "sqlite", DSN: storage.MemoryDSN(), MaxOpen: 1, MaxIdle: 1})
}

// NewFile opens a migrated sqlite file with the server's default pool, so
// transactions really run on separate connections.
func NewFile(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "griff_test.db")
	return open(t, storage.Options{Driver: "sqlite", DSN: dsn, MaxOpen: 5, MaxIdle: 5})
}

func open(t *testing.T, opts storage.Options) *gorm.DB {
	t.Helper()
	db, err := storage.Open(opts)
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}
