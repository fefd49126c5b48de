// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides small aggregate/statistics queries used
// primarily for conditional responses (ETag generation) in the HTTP layer.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/sahulathub/sahulat-hub/internal/domain"
)

// latest returns the row count of q and the greatest updated_at among its rows.
// When q matches nothing, count is 0 and maxUpdatedAt is nil.
func latest(q *gorm.DB) (count int64, maxUpdatedAt *time.Time, err error) {
	if err = q.Session(&gorm.Session{}).Count(&count).Error; err != nil {
		return 0, nil, err
	}
	if count == 0 {
		return 0, nil, nil
	}

	// Get latest updated_at (avoid MAX() -> TEXT in SQLite)
	var row struct {
		UpdatedAt time.Time
	}
	if err = q.Session(&gorm.Session{}).Select("updated_at").Order("updated_at DESC").Limit(1).Scan(&row).Error; err != nil {
		return 0, nil, err
	}
	return count, &row.UpdatedAt, nil
}

// ThreadStats returns the message count and latest update within a job thread.
func ThreadStats(ctx context.Context, db *gorm.DB, threadID string) (int64, *time.Time, error) {
	return latest(db.WithContext(ctx).Model(&domain.Message{}).Where("thread_id = ?", threadID))
}

// BidsStats returns the bid count and latest bid update for a job.
func BidsStats(ctx context.Context, db *gorm.DB, jobID string) (int64, *time.Time, error) {
	return latest(db.WithContext(ctx).Model(&domain.Bid{}).Where("job_id = ?", jobID))
}

// OpenJobsStats returns the count and latest update of open jobs in category.
func OpenJobsStats(ctx context.Context, db *gorm.DB, category string) (int64, *time.Time, error) {
	return latest(db.WithContext(ctx).
		Model(&domain.Job{}).
		Where("state = ? AND LOWER(category) = LOWER(?)", domain.JobOpen, category))
}
