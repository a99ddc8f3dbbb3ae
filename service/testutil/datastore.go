// Package testutil provides a real gorm datastore for package tests.
package testutil

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/fingrow/service-welfare/service/models"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Datastore satisfies the DB accessor of *frame.Service over a single gorm handle.
type Datastore struct {
	db *gorm.DB
}

func (d *Datastore) DB(ctx context.Context, _ bool) *gorm.DB {
	return d.db.WithContext(ctx)
}

// NewDatastore opens a migrated SQLite database that lives for the duration of t.
func NewDatastore(t *testing.T) *Datastore {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), "welfare.db") + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() {
		_ = sqlDB.Close()
	})

	require.NoError(t, db.AutoMigrate(models.Migratable()...))

	return &Datastore{db: db}
}

// NewDatastoreFromDB wraps an existing connection, e.g. one opened against
// a test container.
func NewDatastoreFromDB(db *gorm.DB) *Datastore {
	return &Datastore{db: db}
}
