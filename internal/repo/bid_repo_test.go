package repo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sahulathub/sahulat-hub/internal/domain"
)

func seedBid(t *testing.T, _ context.Context, job *domain.Job, providerID string, amount float64) *domain.Bid {
	t.Helper()
	b := &domain.Bid{
		JobID: job.ID, JobTitle: job.Title, JobCategory: job.Category, JobLocation: job.Location,
		CustomerID: job.CustomerID, CustomerName: job.CustomerName,
		ProviderID: providerID, ProviderName: "Prov " + providerID, Amount: amount,
	}
	return b
}

func TestCreateBid_AndListings(t *testing.T) {
	db := newRepoDB(t, &domain.Job{}, &domain.Bid{})
	ctx := context.Background()

	j1 := seedJob(t, db, "c1", "Plumber")
	j2 := seedJob(t, db, "c1", "Plumber")

	first := seedBid(t, ctx, j1, "p1", 150)
	second := seedBid(t, ctx, j1, "p2", 120)
	other := seedBid(t, ctx, j2, "p1", 300)
	for _, b := range []*domain.Bid{first, second, other} {
		if err := CreateBid(ctx, db, b); err != nil {
			t.Fatalf("CreateBid: %v", err)
		}
		if b.ID == "" || b.Status != domain.BidPending || b.AcceptedAt != nil {
			t.Fatalf("unexpected bid after create: %+v", b)
		}
	}
	base := time.Now().UTC()
	db.Model(&domain.Bid{}).Where("id = ?", first.ID).Update("created_at", base.Add(-time.Minute))
	db.Model(&domain.Bid{}).Where("id = ?", second.ID).Update("created_at", base)

	forJob, err := ListBidsForJob(ctx, db, j1.ID)
	if err != nil || len(forJob) != 2 || forJob[0].ID != first.ID {
		t.Fatalf("ListBidsForJob: %+v err=%v", forJob, err)
	}
	forProv, err := ListBidsForProvider(ctx, db, "p1")
	if err != nil || len(forProv) != 2 {
		t.Fatalf("ListBidsForProvider: %+v err=%v", forProv, err)
	}
	if _, err := GetBid(ctx, db, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestAcceptBid_IsOneWay(t *testing.T) {
	db := newRepoDB(t, &domain.Job{}, &domain.Bid{})
	ctx := context.Background()

	j := seedJob(t, db, "c1", "Taxi")
	b := seedBid(t, ctx, j, "p1", 500)
	if err := CreateBid(ctx, db, b); err != nil {
		t.Fatalf("CreateBid: %v", err)
	}

	at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	if ok, err := AcceptBid(ctx, db, b.ID, at); err != nil || !ok {
		t.Fatalf("AcceptBid: ok=%v err=%v", ok, err)
	}
	if ok, _ := AcceptBid(ctx, db, b.ID, at.Add(time.Hour)); ok {
		t.Fatal("second accept must report false")
	}

	got, err := GetAcceptedBidForJob(ctx, db, j.ID)
	if err != nil {
		t.Fatalf("GetAcceptedBidForJob: %v", err)
	}
	if got.ID != b.ID || got.AcceptedAt == nil || !got.AcceptedAt.Equal(at) {
		t.Fatalf("unexpected accepted bid: %+v", got)
	}

	accepted, err := ListAcceptedBidsForProvider(ctx, db, "p1")
	if err != nil || len(accepted) != 1 {
		t.Fatalf("ListAcceptedBidsForProvider: %+v err=%v", accepted, err)
	}
	if none, _ := ListAcceptedBidsForProvider(ctx, db, "p2"); len(none) != 0 {
		t.Fatalf("expected no accepted bids for p2, got %+v", none)
	}
}
