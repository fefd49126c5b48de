// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the two-party
// job completion record.
package repo

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/sahulathub/sahulat-hub/internal/domain"
)

// GetJobStatus fetches the completion record of jobID, or ErrNotFound.
func GetJobStatus(ctx context.Context, db *gorm.DB, jobID string) (*domain.JobStatus, error) {
	var st domain.JobStatus
	if err := db.WithContext(ctx).Where("job_id = ?", jobID).First(&st).Error; err != nil {
		return nil, err
	}
	return &st, nil
}

// ConfirmJobStatus sets the confirmation flag for role on jobID's record,
// creating it (labelled with key) if absent. Only the actor's column is
// written on conflict, so concurrent confirmations from both parties merge.
func ConfirmJobStatus(ctx context.Context, db *gorm.DB, jobID, key string, role domain.Role) error {
	var column string
	switch role {
	case domain.RoleCustomer:
		column = "customer_confirmed"
	case domain.RoleProvider:
		column = "provider_confirmed"
	default:
		return fmt.Errorf("confirm job status: unknown role %q", role)
	}

	now := time.Now().UTC()
	st := &domain.JobStatus{
		Key:               key,
		JobID:             jobID,
		CustomerConfirmed: role == domain.RoleCustomer,
		ProviderConfirmed: role == domain.RoleProvider,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "job_id"}},
			DoUpdates: clause.AssignmentColumns([]string{column, "updated_at"}),
		}).
		Create(st).Error
}
