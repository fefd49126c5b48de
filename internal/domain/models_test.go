package domain

import (
	"fmt"
	"reflect"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite (no CGO)
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newDomainDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	// Enforce FKs so cascades actually execute.
	db.Exec("PRAGMA foreign_keys=ON;")
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func TestTableNames(t *testing.T) {
	cases := map[string]string{
		User{}.TableName():             "users",
		Job{}.TableName():              "jobs",
		Bid{}.TableName():              "bids",
		JobStatus{}.TableName():        "job_statuses",
		Message{}.TableName():          "messages",
		Review{}.TableName():           "reviews",
		ProviderCategory{}.TableName(): "provider_categories",
		Idempotency{}.TableName():      "idempotency",
	}
	for got, want := range cases {
		if got != want {
			t.Fatalf("TableName() = %q; want %q", got, want)
		}
	}
}

func TestRoleAndBidStatusValid(t *testing.T) {
	if !RoleCustomer.Valid() || !RoleProvider.Valid() || Role("admin").Valid() {
		t.Fatalf("Role.Valid mismatch")
	}
	if !BidPending.Valid() || !BidAccepted.Valid() || BidStatus("rejected").Valid() {
		t.Fatalf("BidStatus.Valid mismatch")
	}
}

func TestUser_DisplayName(t *testing.T) {
	cases := []struct {
		u    User
		want string
	}{
		{User{FirstName: "Ali", LastName: "Khan", Username: "ak"}, "Ali Khan"},
		{User{FirstName: "Ali", Username: "ak"}, "Ali"},
		{User{Username: "ak"}, "ak"},
	}
	for _, tc := range cases {
		if got := tc.u.DisplayName(); got != tc.want {
			t.Fatalf("DisplayName() = %q; want %q", got, tc.want)
		}
	}
}

func TestMigrations_Indexes_Constraints_AndCascades(t *testing.T) {
	db := newDomainDB(t)

	if err := db.AutoMigrate(&User{}, &Job{}, &Bid{}, &JobStatus{}, &Message{}, &Review{}, &ProviderCategory{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	m := db.Migrator()

	for _, ix := range []struct {
		model any
		name  string
	}{
		{&User{}, "ux_users_email"},
		{&Job{}, "idx_jobs_open"},
		{&Bid{}, "idx_bids_job"},
		{&Message{}, "idx_thread_msgs"},
		{&Message{}, "idx_pair_msgs"},
		{&Review{}, "ux_reviews_job"},
		{&ProviderCategory{}, "ux_provider_category"},
	} {
		if !m.HasIndex(ix.model, ix.name) {
			t.Fatalf("expected index %s on %T", ix.name, ix.model)
		}
	}

	now := time.Now().UTC()
	job := &Job{ID: "j1", CustomerID: "c1", CustomerEmail: "c@x.pk", CustomerName: "C", Category: "Plumber",
		Title: "Leak fix", Description: "kitchen", Location: "Lahore", Price: 500, State: JobOpen, CreatedAt: now}
	if err := db.Create(job).Error; err != nil {
		t.Fatalf("insert job: %v", err)
	}
	bid := &Bid{ID: "b1", JobID: "j1", JobTitle: "Leak fix", JobCategory: "Plumber", JobLocation: "Lahore",
		CustomerID: "c1", CustomerName: "C", ProviderID: "p1", ProviderName: "P", Amount: 150, Status: BidPending, CreatedAt: now}
	if err := db.Create(bid).Error; err != nil {
		t.Fatalf("insert bid: %v", err)
	}

	// CHECK constraints.
	bad := *bid
	bad.ID, bad.Status = "b2", BidStatus("rejected")
	if err := db.Create(&bad).Error; err == nil {
		t.Fatalf("expected CHECK violation for unknown bid status")
	}
	if err := db.Create(&Review{ID: "r0", JobID: "j1", ProviderID: "p1", CustomerID: "c1", Rating: 6}).Error; err == nil {
		t.Fatalf("expected CHECK violation for rating 6")
	}
	if err := db.Create(&User{ID: "u0", Role: Role("admin"), Email: "a@x.pk", Username: "a", FirstName: "a", LastName: "b", Phone: "1", PasswordHash: "h"}).Error; err == nil {
		t.Fatalf("expected CHECK violation for unknown role")
	}

	// Unique review per job.
	if err := db.Create(&Review{ID: "r1", JobID: "j1", ProviderID: "p1", CustomerID: "c1", Rating: 5}).Error; err != nil {
		t.Fatalf("insert review: %v", err)
	}
	if err := db.Create(&Review{ID: "r2", JobID: "j1", ProviderID: "p1", CustomerID: "c1", Rating: 4}).Error; err == nil {
		t.Fatalf("expected unique violation for second review on job")
	}

	// Hard-deleting a job cascades to its bids and reviews.
	if err := db.Unscoped().Delete(&Job{}, "id = ?", "j1").Error; err != nil {
		t.Fatalf("delete job: %v", err)
	}
	var n int64
	db.Model(&Bid{}).Where("job_id = ?", "j1").Count(&n)
	if n != 0 {
		t.Fatalf("expected bids to cascade, got %d", n)
	}
	db.Model(&Review{}).Where("job_id = ?", "j1").Count(&n)
	if n != 0 {
		t.Fatalf("expected reviews to cascade, got %d", n)
	}
}

func TestProviderCategory_DocumentsSerializer(t *testing.T) {
	db := newDomainDB(t)
	if err := db.AutoMigrate(&ProviderCategory{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	pc := &ProviderCategory{ID: "pc1", ProviderID: "p1", Category: "Taxi", Documents: []string{"Driving License"}}
	if err := db.Create(pc).Error; err != nil {
		t.Fatalf("insert: %v", err)
	}
	var got ProviderCategory
	if err := db.First(&got, "id = ?", "pc1").Error; err != nil {
		t.Fatalf("load: %v", err)
	}
	if !reflect.DeepEqual(got.Documents, []string{"Driving License"}) {
		t.Fatalf("documents = %#v", got.Documents)
	}
}
