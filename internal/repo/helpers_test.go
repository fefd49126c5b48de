package repo

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite (no CGO)
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/sahulathub/sahulat-hub/internal/domain"
)

// newRepoDB opens a file-backed SQLite database under t.TempDir and migrates
// the given models. A single connection serializes concurrent writers.
func newRepoDB(t *testing.T, migrate ...any) *gorm.DB {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), fmt.Sprintf("repo_%d.db", time.Now().UnixNano()))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db.DB(): %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	// Ensure the file handle is released before TempDir cleanup (Windows needs this).
	t.Cleanup(func() { _ = sqlDB.Close() })

	if len(migrate) > 0 {
		if err := db.AutoMigrate(migrate...); err != nil {
			t.Fatalf("automigrate: %v", err)
		}
	}
	return db
}

func allModels() []any {
	return []any{
		&domain.User{}, &domain.ProviderCategory{}, &domain.Job{}, &domain.Bid{},
		&domain.JobStatus{}, &domain.Message{}, &domain.Review{}, &domain.Idempotency{},
	}
}

func seedJob(t *testing.T, db *gorm.DB, customerID, category string) *domain.Job {
	t.Helper()
	j := &domain.Job{
		CustomerID: customerID, CustomerEmail: customerID + "@x.pk", CustomerName: "Cust " + customerID,
		Category: category, Title: "Leak fix", Description: "kitchen sink", Location: "Lahore", Price: 500,
	}
	if err := CreateJob(context.Background(), db, j); err != nil {
		t.Fatalf("seed job: %v", err)
	}
	return j
}
