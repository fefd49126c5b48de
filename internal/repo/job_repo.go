// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Job model.
//
// Functions:
//
//   - CreateJob(ctx, db, job) -> error
//     Inserts a job in state open with UUID primary key and UTC timestamp.
//
//   - GetJob(ctx, db, id) -> *domain.Job, error
//     Fetches one job or ErrNotFound.
//
//   - ListOpenJobsByCategory(ctx, db, category) -> []domain.Job, error
//     Open jobs whose category matches case-insensitively, newest first.
//
//   - ListOpenJobs(ctx, db, limit) -> []domain.Job, error
//     Open jobs across all categories, newest first (search corpus).
//
//   - CountJobsByCustomer / ListJobsByCustomerPage
//     A customer's own jobs, paginated, newest first.
//
//   - ListCompletedJobsFor(ctx, db, userID) -> []domain.Job, error
//     Completed jobs where the user is the customer or the awarded provider.
//
//   - CloseBidding(ctx, db, jobID, bidID) -> (bool, error)
//     Conditional open -> bidding_closed. false means the job was not open.
//
//   - MarkCompleted(ctx, db, jobID) -> (bool, error)
//     Conditional bidding_closed -> completed.
//
//   - TouchJob(ctx, db, jobID) -> error
//     Row lock for read-modify-write sequences on a job.
//
// State transitions are single conditional UPDATE statements so concurrent
// callers cannot both win.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/sahulathub/sahulat-hub/internal/domain"
)

// CreateJob inserts job. ID, State and timestamps are assigned here.
func CreateJob(ctx context.Context, db *gorm.DB, job *domain.Job) error {
	now := time.Now().UTC()
	job.ID = uuid.NewString()
	job.State = domain.JobOpen
	job.AcceptedBidID = nil
	job.CreatedAt, job.UpdatedAt = now, now
	return db.WithContext(ctx).Create(job).Error
}

// GetJob fetches a single job by its ID.
func GetJob(ctx context.Context, db *gorm.DB, id string) (*domain.Job, error) {
	var j domain.Job
	if err := db.WithContext(ctx).Where("id = ?", id).First(&j).Error; err != nil {
		return nil, err
	}
	return &j, nil
}

// ListOpenJobsByCategory returns open jobs in category (case-insensitive),
// newest first. One query; no per-job lookups.
func ListOpenJobsByCategory(ctx context.Context, db *gorm.DB, category string) ([]domain.Job, error) {
	out := []domain.Job{}
	err := db.WithContext(ctx).
		Where("state = ? AND LOWER(category) = LOWER(?)", domain.JobOpen, category).
		Order("created_at desc, id desc").
		Find(&out).Error
	return out, err
}

// ListOpenJobs returns up to limit open jobs, newest first. limit <= 0 means
// no limit.
func ListOpenJobs(ctx context.Context, db *gorm.DB, limit int) ([]domain.Job, error) {
	out := []domain.Job{}
	q := db.WithContext(ctx).
		Where("state = ?", domain.JobOpen).
		Order("created_at desc, id desc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&out).Error
	return out, err
}

// CountJobsByCustomer returns the number of jobs the customer has posted.
func CountJobsByCustomer(ctx context.Context, db *gorm.DB, customerID string) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.Job{}).
		Where("customer_id = ?", customerID).
		Count(&total).Error
	return total, err
}

// ListJobsByCustomerPage returns a page of the customer's jobs, newest first.
func ListJobsByCustomerPage(ctx context.Context, db *gorm.DB, customerID string, offset, limit int) ([]domain.Job, error) {
	out := []domain.Job{}
	err := db.WithContext(ctx).
		Where("customer_id = ?", customerID).
		Order("created_at desc, id desc").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// ListCompletedJobsFor returns completed jobs the user took part in, either
// as the customer or as the provider of the accepted bid, newest first.
func ListCompletedJobsFor(ctx context.Context, db *gorm.DB, userID string) ([]domain.Job, error) {
	out := []domain.Job{}
	err := db.WithContext(ctx).
		Where("state = ?", domain.JobCompleted).
		Where("(customer_id = ? OR accepted_bid_id IN (SELECT id FROM bids WHERE provider_id = ?))", userID, userID).
		Order("updated_at desc, id desc").
		Find(&out).Error
	return out, err
}

// CloseBidding moves an open job to bidding_closed and records the accepted
// bid. It reports false when the job was not open (already awarded,
// completed, or missing).
func CloseBidding(ctx context.Context, db *gorm.DB, jobID, bidID string) (bool, error) {
	res := db.WithContext(ctx).
		Model(&domain.Job{}).
		Where("id = ? AND state = ?", jobID, domain.JobOpen).
		Updates(map[string]any{
			"state":           domain.JobBiddingClosed,
			"accepted_bid_id": bidID,
			"updated_at":      time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// MarkCompleted moves a bidding_closed job to completed. It reports false
// when the job was in any other state.
func MarkCompleted(ctx context.Context, db *gorm.DB, jobID string) (bool, error) {
	res := db.WithContext(ctx).
		Model(&domain.Job{}).
		Where("id = ? AND state = ?", jobID, domain.JobBiddingClosed).
		Updates(map[string]any{
			"state":      domain.JobCompleted,
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// TouchJob bumps the job's updated_at. Called first inside a transaction it
// takes the row's write lock, serializing concurrent transactions on the job.
func TouchJob(ctx context.Context, db *gorm.DB, jobID string) error {
	res := db.WithContext(ctx).
		Model(&domain.Job{}).
		Where("id = ?", jobID).
		Update("updated_at", time.Now().UTC())
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
