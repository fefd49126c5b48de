// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Review model.
//
// The repository follows a "thin" approach: it performs persistence and simple
// query composition, leaving business rules to the services package.
//
// Error semantics:
//   - A second review for the same job is rejected by the unique index on
//     job_id and returned as ErrDuplicate.
//   - On other DB errors the raw gorm error is propagated.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/sahulathub/sahulat-hub/internal/domain"
)

// CreateReview inserts a review row for a completed job.
func CreateReview(ctx context.Context, db *gorm.DB, r *domain.Review) error {
	now := time.Now().UTC()
	r.ID = uuid.NewString()
	r.CreatedAt, r.UpdatedAt = now, now
	if err := db.WithContext(ctx).Create(r).Error; err != nil {
		if isDuplicateErr(err) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

// ProviderRating returns the mean rating and review count for a provider.
// A provider with no reviews yields (0, 0, nil).
func ProviderRating(ctx context.Context, db *gorm.DB, providerID string) (avg float64, count int64, err error) {
	var row struct {
		Avg   *float64
		Count int64
	}
	err = db.WithContext(ctx).
		Model(&domain.Review{}).
		Select("CAST(AVG(rating) AS DOUBLE PRECISION) AS avg, COUNT(*) AS count").
		Where("provider_id = ?", providerID).
		Scan(&row).Error
	if err != nil {
		return 0, 0, err
	}
	if row.Avg != nil {
		avg = *row.Avg
	}
	return avg, row.Count, nil
}

// ListReviewsForProvider returns a provider's reviews, newest first.
func ListReviewsForProvider(ctx context.Context, db *gorm.DB, providerID string, limit int) ([]domain.Review, error) {
	out := []domain.Review{}
	q := db.WithContext(ctx).
		Where("provider_id = ?", providerID).
		Order("created_at desc, id desc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&out).Error
	return out, err
}
