package repo

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/sahulathub/sahulat-hub/internal/domain"
)

func TestReviews_UniquePerJobAndRating(t *testing.T) {
	db := newRepoDB(t, &domain.Job{}, &domain.Review{})
	ctx := context.Background()

	avg, n, err := ProviderRating(ctx, db, "p1")
	if err != nil || avg != 0 || n != 0 {
		t.Fatalf("empty rating: avg=%v n=%d err=%v", avg, n, err)
	}

	j1 := seedJob(t, db, "c1", "Plumber")
	j2 := seedJob(t, db, "c2", "Plumber")
	if err := CreateReview(ctx, db, &domain.Review{JobID: j1.ID, ProviderID: "p1", CustomerID: "c1", Rating: 5}); err != nil {
		t.Fatalf("review 1: %v", err)
	}
	if err := CreateReview(ctx, db, &domain.Review{JobID: j2.ID, ProviderID: "p1", CustomerID: "c2", Rating: 4, Comment: "theek"}); err != nil {
		t.Fatalf("review 2: %v", err)
	}
	err = CreateReview(ctx, db, &domain.Review{JobID: j1.ID, ProviderID: "p1", CustomerID: "c1", Rating: 1})
	if !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate for second review on job, got %v", err)
	}

	avg, n, err = ProviderRating(ctx, db, "p1")
	if err != nil || n != 2 || math.Abs(avg-4.5) > 1e-9 {
		t.Fatalf("rating: avg=%v n=%d err=%v", avg, n, err)
	}

	list, err := ListReviewsForProvider(ctx, db, "p1", 1)
	if err != nil || len(list) != 1 {
		t.Fatalf("list: %+v err=%v", list, err)
	}
}
