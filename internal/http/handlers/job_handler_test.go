package handlers

import (
	"net/http"
	"testing"

	"github.com/sahulathub/sahulat-hub/internal/domain"
)

func TestPostJob(t *testing.T) {
	a := newApp(t)
	customer := a.signUp(domain.RoleCustomer, "Sana")
	provider := a.signUp(domain.RoleProvider, "Bilal")

	job := a.postJob(customer, "Fix kitchen sink")
	if job.ID == "" || job.State != domain.JobOpen || job.Price != 1500 || job.CustomerID != customer.sess.UserID {
		t.Fatalf("unexpected job: %+v", job)
	}

	req := PostJobRequest{Category: "Plumber", Title: "t", Description: "d", Location: "l", Price: "100"}
	expectError(t, a.do(http.MethodPost, "/jobs", provider, req), http.StatusForbidden, ErrCodeForbidden)

	req.Title = "   "
	er := expectError(t, a.do(http.MethodPost, "/jobs", customer, req), http.StatusBadRequest, ErrCodeValidation)
	if er.Message != "title: is required" {
		t.Fatalf("message=%q", er.Message)
	}

	req.Title, req.Category = "t", "Astronaut"
	expectError(t, a.do(http.MethodPost, "/jobs", customer, req), http.StatusBadRequest, ErrCodeValidation)
}

func TestPostJob_IdempotentReplay(t *testing.T) {
	a := newApp(t)
	customer := a.signUp(domain.RoleCustomer, "Sana")
	req := PostJobRequest{Category: "Plumber", Title: "Sink", Description: "Leak", Location: "DHA", Price: "900"}

	w1 := a.do(http.MethodPost, "/jobs", customer, req, "Idempotency-Key", "job-key-1")
	if w1.Code != http.StatusCreated {
		t.Fatalf("first: %d %s", w1.Code, w1.Body.String())
	}
	first := decode[domain.Job](t, w1)

	w2 := a.do(http.MethodPost, "/jobs", customer, req, "Idempotency-Key", "job-key-1")
	if w2.Code != http.StatusOK || w2.Header().Get("Idempotency-Replayed") != "true" {
		t.Fatalf("replay: %d headers=%v", w2.Code, w2.Header())
	}
	if again := decode[domain.Job](t, w2); again.ID != first.ID {
		t.Fatalf("replay returned %s, want %s", again.ID, first.ID)
	}

	w := a.do(http.MethodGet, "/jobs/mine", customer, nil)
	if got := decode[PagedJobsResponse](t, w); got.Pagination.Total != 1 {
		t.Fatalf("replay created a second job: total=%d", got.Pagination.Total)
	}

	// A different key is a new job.
	if w := a.do(http.MethodPost, "/jobs", customer, req, "Idempotency-Key", "job-key-2"); w.Code != http.StatusCreated {
		t.Fatalf("second key: %d", w.Code)
	}
	expectError(t, a.do(http.MethodPost, "/jobs", customer, req, "Idempotency-Key", "bad key!"), http.StatusBadRequest, "bad_idempotency_key")
}

func TestListOpenJobs_ETag(t *testing.T) {
	a := newApp(t)
	customer := a.signUp(domain.RoleCustomer, "Sana")
	provider := a.signUp(domain.RoleProvider, "Bilal")
	a.postJob(customer, "Fix sink")

	expectError(t, a.do(http.MethodGet, "/jobs", provider, nil), http.StatusBadRequest, ErrCodeBadRequest)

	w := a.do(http.MethodGet, "/jobs?category=plumber", provider, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list: %d %s", w.Code, w.Body.String())
	}
	etag := w.Header().Get("ETag")
	if etag == "" {
		t.Fatalf("missing ETag")
	}
	if got := decode[ListJobsResponse](t, w); len(got.Jobs) != 1 || got.Jobs[0].Category != "Plumber" {
		t.Fatalf("jobs: %+v", got.Jobs)
	}

	w = a.do(http.MethodGet, "/jobs?category=Plumber", provider, nil, "If-None-Match", etag)
	if w.Code != http.StatusNotModified || w.Body.Len() != 0 {
		t.Fatalf("expected 304, got %d %s", w.Code, w.Body.String())
	}

	a.postJob(customer, "Fix shower")
	w = a.do(http.MethodGet, "/jobs?category=plumber", provider, nil, "If-None-Match", etag)
	if w.Code != http.StatusOK || w.Header().Get("ETag") == etag {
		t.Fatalf("ETag did not change after a new job: %d %s", w.Code, w.Header().Get("ETag"))
	}
	if got := decode[ListJobsResponse](t, w); len(got.Jobs) != 2 {
		t.Fatalf("jobs: %+v", got.Jobs)
	}

	w = a.do(http.MethodGet, "/jobs?category=Electrician", provider, nil)
	if got := decode[ListJobsResponse](t, w); len(got.Jobs) != 0 {
		t.Fatalf("other category leaked: %+v", got.Jobs)
	}
}

func TestListMyJobs_Pagination(t *testing.T) {
	a := newApp(t)
	customer := a.signUp(domain.RoleCustomer, "Sana")
	provider := a.signUp(domain.RoleProvider, "Bilal")
	for _, title := range []string{"one", "two", "three"} {
		a.postJob(customer, title)
	}

	w := a.do(http.MethodGet, "/jobs/mine?page=1&page_size=2", customer, nil)
	got := decode[PagedJobsResponse](t, w)
	if len(got.Jobs) != 2 || got.Pagination.Total != 3 || got.Pagination.TotalPages != 2 || !got.Pagination.HasNext {
		t.Fatalf("page 1: %+v", got.Pagination)
	}
	w = a.do(http.MethodGet, "/jobs/mine?page=2&page_size=2", customer, nil)
	if got := decode[PagedJobsResponse](t, w); len(got.Jobs) != 1 || got.Pagination.HasNext {
		t.Fatalf("page 2: %+v", got.Pagination)
	}

	expectError(t, a.do(http.MethodGet, "/jobs/mine", provider, nil), http.StatusForbidden, ErrCodeForbidden)
}

func TestSearchAndGetJob(t *testing.T) {
	a := newApp(t)
	customer := a.signUp(domain.RoleCustomer, "Sana")
	job := a.postJob(customer, "Leaking kitchen sink")

	w := a.do(http.MethodGet, "/jobs/search?q=sink", customer, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("search: %d %s", w.Code, w.Body.String())
	}
	hits := decode[SearchJobsResponse](t, w).Hits
	if len(hits) != 1 || hits[0].Job.ID != job.ID || hits[0].Score <= 0 {
		t.Fatalf("hits: %+v", hits)
	}
	expectError(t, a.do(http.MethodGet, "/jobs/search", customer, nil), http.StatusBadRequest, ErrCodeValidation)

	w = a.do(http.MethodGet, "/jobs/"+job.ID, customer, nil)
	if w.Code != http.StatusOK || decode[domain.Job](t, w).Title != "Leaking kitchen sink" {
		t.Fatalf("get: %d %s", w.Code, w.Body.String())
	}
	expectError(t, a.do(http.MethodGet, "/jobs/does-not-exist", customer, nil), http.StatusNotFound, ErrCodeNotFound)
}

func TestListCategories(t *testing.T) {
	a := newApp(t)
	w := a.do(http.MethodGet, "/categories", user{}, nil)
	got := decode[CategoriesResponse](t, w)
	if len(got.Categories) != 7 || got.Categories[0].Name != "Mechanic" {
		t.Fatalf("categories: %+v", got.Categories)
	}
}
