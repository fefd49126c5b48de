package services

import (
	"context"
	"errors"
	"testing"

	"github.com/sahulathub/sahulat-hub/internal/domain"
	"github.com/sahulathub/sahulat-hub/internal/events"
)

func TestPostJob_ListedOnceUnderAnyCase(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()
	sub := w.broker.Subscribe(events.ForCategories("plumber"))
	defer sub.Close()

	job := w.postJob(t, "Fix kitchen leak")
	if job.State != domain.JobOpen || job.Category != "Plumber" || job.Price != 500 {
		t.Fatalf("unexpected job: %+v", job)
	}
	if job.CustomerID != w.customer.UserID || job.CustomerName != "Sana Ahmed" {
		t.Fatalf("customer not copied onto job: %+v", job)
	}

	for _, cat := range []string{"plumber", "PLUMBER", " Plumber "} {
		jobs, err := w.jobs.ListOpenJobsByCategory(ctx, cat)
		if err != nil {
			t.Fatalf("list %q: %v", cat, err)
		}
		n := 0
		for _, j := range jobs {
			if j.ID == job.ID {
				n++
			}
		}
		if n != 1 {
			t.Fatalf("list %q: job listed %d times", cat, n)
		}
	}
	if n := countTopic(drain(sub), events.TopicJobCreated); n != 1 {
		t.Fatalf("expected one job.created for the category, got %d", n)
	}
}

func TestPostJob_ValidationPerformsNoWrite(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()
	base := PostJobInput{Category: "Plumber", Title: "T", Description: "D", Location: "L", Price: "500"}

	cases := []struct {
		name   string
		mutate func(*PostJobInput)
	}{
		{"missing title", func(in *PostJobInput) { in.Title = "   " }},
		{"missing price", func(in *PostJobInput) { in.Price = "" }},
		{"price without digits", func(in *PostJobInput) { in.Price = "abc" }},
		{"unknown category", func(in *PostJobInput) { in.Category = "Astronaut" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := base
			tc.mutate(&in)
			before := w.store.calls.Load()
			_, err := w.jobs.PostJob(ctx, w.customer, in)
			if !isValidation(err) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if got := w.store.calls.Load(); got != before {
				t.Fatalf("store touched %d times on invalid input", got-before)
			}
		})
	}

	if _, err := w.jobs.PostJob(ctx, w.provider, base); !errors.Is(err, ErrNotCustomer) {
		t.Fatalf("provider posting: expected ErrNotCustomer, got %v", err)
	}
}

func TestPostJob_PriceKeepsDigits(t *testing.T) {
	if got := DigitsOnly("Rs 1,500"); got != "1500" {
		t.Fatalf("DigitsOnly = %q", got)
	}
	w := newWorld(t)
	job, err := w.jobs.PostJob(context.Background(), w.customer, PostJobInput{
		Category: "electrician", Title: "Rewire", Description: "Two rooms", Location: "DHA", Price: "1,500",
	})
	if err != nil {
		t.Fatal(err)
	}
	if job.Price != 1500 || job.Category != "Electrician" {
		t.Fatalf("got price=%d category=%q", job.Price, job.Category)
	}
}

func TestJobService_GetAndListMine(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()
	a := w.postJob(t, "First")
	b := w.postJob(t, "Second")

	got, err := w.jobs.Get(ctx, a.ID)
	if err != nil || got.Title != "First" {
		t.Fatalf("Get: %+v %v", got, err)
	}
	if _, err := w.jobs.Get(ctx, "missing"); !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("expected ErrJobNotFound, got %v", err)
	}

	items, total, err := w.jobs.ListMine(ctx, w.customer, 1, 1)
	if err != nil || total != 2 || len(items) != 1 {
		t.Fatalf("ListMine: items=%d total=%d err=%v", len(items), total, err)
	}
	items2, _, _ := w.jobs.ListMine(ctx, w.customer, 2, 1)
	if len(items2) != 1 || items2[0].ID == items[0].ID {
		t.Fatalf("second page should hold the other job")
	}
	if ids := map[string]bool{items[0].ID: true, items2[0].ID: true}; !ids[a.ID] || !ids[b.ID] {
		t.Fatalf("pages missing a job")
	}

	empty, total, err := w.jobs.ListMine(ctx, w.outsider, 1, 10)
	if err != nil || total != 0 || len(empty) != 0 {
		t.Fatalf("outsider ListMine: %v %d %v", empty, total, err)
	}
	if _, _, err := w.jobs.ListMine(ctx, w.provider, 1, 10); !errors.Is(err, ErrNotCustomer) {
		t.Fatalf("provider ListMine: %v", err)
	}
}

func TestJobService_Search(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()
	leak := w.postJob(t, "Bathroom pipe leak")
	w.postJob(t, "Install geyser")

	hits, err := w.jobs.Search(ctx, "pipe leak", 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) == 0 || hits[0].Job.ID != leak.ID || hits[0].Score <= 0 {
		t.Fatalf("unexpected hits: %+v", hits)
	}

	// Awarded jobs leave the index.
	bid := w.placeBid(t, w.provider, leak.ID, "300")
	if _, err := w.bids.AcceptBid(ctx, w.customer, bid.ID); err != nil {
		t.Fatal(err)
	}
	hits, _ = w.jobs.Search(ctx, "pipe leak", 5)
	for _, h := range hits {
		if h.Job.ID == leak.ID {
			t.Fatal("awarded job should not be searchable")
		}
	}

	if _, err := w.jobs.Search(ctx, "  ", 5); !isValidation(err) {
		t.Fatalf("blank query: %v", err)
	}
}
