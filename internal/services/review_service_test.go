package services

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestLeaveReview(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()
	job, _ := w.awardedJob(t, "Leak")

	if _, err := w.rev.Leave(ctx, w.customer, job.ID, 5, "great"); !errors.Is(err, ErrJobNotCompleted) {
		t.Fatalf("before completion: %v", err)
	}
	_, _ = w.done.ConfirmDone(ctx, w.customer, job.ID)
	_, _ = w.done.ConfirmDone(ctx, w.provider, job.ID)

	for _, rating := range []int{0, 6} {
		if _, err := w.rev.Leave(ctx, w.customer, job.ID, rating, ""); !isValidation(err) {
			t.Fatalf("rating %d: %v", rating, err)
		}
	}
	if _, err := w.rev.Leave(ctx, w.customer, job.ID, 5, strings.Repeat("x", MaxReviewCommentRunes+1)); !isValidation(err) {
		t.Fatalf("long comment: %v", err)
	}
	if _, err := w.rev.Leave(ctx, w.outsider, job.ID, 5, ""); !errors.Is(err, ErrNotJobOwner) {
		t.Fatalf("outsider: %v", err)
	}
	if _, err := w.rev.Leave(ctx, w.customer, "missing", 5, ""); !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("missing job: %v", err)
	}

	r, err := w.rev.Leave(ctx, w.customer, job.ID, 5, "  quick and tidy ")
	if err != nil {
		t.Fatal(err)
	}
	if r.ProviderID != w.provider.UserID || r.CustomerID != w.customer.UserID || r.Comment != "quick and tidy" {
		t.Fatalf("unexpected review: %+v", r)
	}
	if _, err := w.rev.Leave(ctx, w.customer, job.ID, 4, ""); !errors.Is(err, ErrAlreadyReviewed) {
		t.Fatalf("second review: %v", err)
	}

	list, err := w.rev.ForProvider(ctx, w.provider.UserID, 10)
	if err != nil || len(list) != 1 || list[0].Rating != 5 {
		t.Fatalf("ForProvider: %+v %v", list, err)
	}
}
