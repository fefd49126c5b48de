// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Bid model.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/sahulathub/sahulat-hub/internal/domain"
)

// CreateBid inserts bid in status pending.
func CreateBid(ctx context.Context, db *gorm.DB, bid *domain.Bid) error {
	now := time.Now().UTC()
	bid.ID = uuid.NewString()
	bid.Status = domain.BidPending
	bid.AcceptedAt = nil
	bid.CreatedAt, bid.UpdatedAt = now, now
	return db.WithContext(ctx).Create(bid).Error
}

// GetBid fetches a bid by ID.
func GetBid(ctx context.Context, db *gorm.DB, id string) (*domain.Bid, error) {
	var b domain.Bid
	if err := db.WithContext(ctx).Where("id = ?", id).First(&b).Error; err != nil {
		return nil, err
	}
	return &b, nil
}

// ListBidsForJob returns a job's bids in arrival order (CreatedAt ASC, ID ASC).
func ListBidsForJob(ctx context.Context, db *gorm.DB, jobID string) ([]domain.Bid, error) {
	out := []domain.Bid{}
	err := db.WithContext(ctx).
		Where("job_id = ?", jobID).
		Order("created_at asc, id asc").
		Find(&out).Error
	return out, err
}

// ListBidsForProvider returns a provider's bids, newest first.
func ListBidsForProvider(ctx context.Context, db *gorm.DB, providerID string) ([]domain.Bid, error) {
	out := []domain.Bid{}
	err := db.WithContext(ctx).
		Where("provider_id = ?", providerID).
		Order("created_at desc, id desc").
		Find(&out).Error
	return out, err
}

// ListAcceptedBidsForProvider returns the provider's accepted bids, most
// recently accepted first.
func ListAcceptedBidsForProvider(ctx context.Context, db *gorm.DB, providerID string) ([]domain.Bid, error) {
	out := []domain.Bid{}
	err := db.WithContext(ctx).
		Where("provider_id = ? AND status = ?", providerID, domain.BidAccepted).
		Order("accepted_at desc, id desc").
		Find(&out).Error
	return out, err
}

// GetAcceptedBidForJob returns the job's accepted bid or ErrNotFound.
func GetAcceptedBidForJob(ctx context.Context, db *gorm.DB, jobID string) (*domain.Bid, error) {
	var b domain.Bid
	err := db.WithContext(ctx).
		Where("job_id = ? AND status = ?", jobID, domain.BidAccepted).
		First(&b).Error
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// AcceptBid flips a pending bid to accepted, stamping AcceptedAt with at.
// It reports false when the bid was not pending.
func AcceptBid(ctx context.Context, db *gorm.DB, bidID string, at time.Time) (bool, error) {
	res := db.WithContext(ctx).
		Model(&domain.Bid{}).
		Where("id = ? AND status = ?", bidID, domain.BidPending).
		Updates(map[string]any{
			"status":      domain.BidAccepted,
			"accepted_at": at.UTC(),
			"updated_at":  at.UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
