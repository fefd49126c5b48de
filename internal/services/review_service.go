// Package services – ReviewService
//
// This file implements provider reviews. After a job completes, its customer
// may rate the provider who did the work (1 to 5, optional comment) exactly
// once. Ratings feed BidService.RatingsForProviders.
package services

import (
	"context"
	"strings"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/sahulathub/sahulat-hub/internal/domain"
	"github.com/sahulathub/sahulat-hub/internal/repo"
)

// MaxReviewCommentRunes caps review comments.
const MaxReviewCommentRunes = 1000

// ReviewService implements the use-cases around provider reviews.
type ReviewService struct {
	// DB is the database handle used for all review operations.
	DB *gorm.DB
}

// Leave records the session customer's review of the job's provider.
//
// Semantics and validation:
//   - rating must be between 1 and 5; comment at most 1000 runes.
//   - The job must exist and belong to the caller; otherwise ErrJobNotFound
//     or ErrNotJobOwner.
//   - The job must be completed; otherwise ErrJobNotCompleted.
//   - One review per job; a second attempt yields ErrAlreadyReviewed.
//
// The checks and the insert run in one transaction.
func (s *ReviewService) Leave(ctx context.Context, sess Session, jobID string, rating int, comment string) (*domain.Review, error) {
	tr := otel.Tracer("services/ReviewService")
	ctx, span := tr.Start(ctx, "Leave",
		trace.WithAttributes(
			attribute.String("job.id", jobID),
			attribute.Int("rating", rating),
		),
	)
	defer span.End()

	if rating < 1 || rating > 5 {
		return nil, invalid("rating", "must be between 1 and 5")
	}
	comment = strings.TrimSpace(comment)
	if utf8.RuneCountInString(comment) > MaxReviewCommentRunes {
		return nil, invalid("comment", "is too long")
	}

	var out *domain.Review
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		job, err := repo.GetJob(ctx, tx, jobID)
		if err != nil {
			if isNotFound(err) {
				return ErrJobNotFound
			}
			return err
		}
		if job.CustomerID != sess.UserID {
			return ErrNotJobOwner
		}
		if job.State != domain.JobCompleted || job.AcceptedBidID == nil {
			return ErrJobNotCompleted
		}
		bid, err := repo.GetBid(ctx, tx, *job.AcceptedBidID)
		if err != nil {
			return err
		}

		r := &domain.Review{
			JobID:      job.ID,
			ProviderID: bid.ProviderID,
			CustomerID: sess.UserID,
			Rating:     rating,
			Comment:    comment,
		}
		if err := repo.CreateReview(ctx, tx, r); err != nil {
			if isDuplicate(err) {
				return ErrAlreadyReviewed
			}
			return err
		}
		out = r
		return nil
	})
	if err != nil {
		return nil, writeFailed("leave review", err)
	}
	return out, nil
}

// ForProvider returns up to limit of the provider's reviews, newest first.
func (s *ReviewService) ForProvider(ctx context.Context, providerID string, limit int) ([]domain.Review, error) {
	out, err := repo.ListReviewsForProvider(ctx, s.DB, providerID, limit)
	if err != nil {
		return nil, readFailed("list reviews", err)
	}
	return out, nil
}
