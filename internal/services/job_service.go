// Package services – JobService
//
// This file implements the Job Record Manager: customers post jobs, providers
// browse open jobs by category, and anyone signed in can keyword-search open
// jobs.
//
// A job carries an explicit state (open, bidding_closed, completed). Listing
// open jobs is one filtered query; bid acceptance and completion move the
// state forward inside BidService and CompletionService transactions.
package services

import (
	"context"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/sahulathub/sahulat-hub/internal/catalog"
	"github.com/sahulathub/sahulat-hub/internal/domain"
	"github.com/sahulathub/sahulat-hub/internal/events"
	"github.com/sahulathub/sahulat-hub/internal/search"
)

// JobRepo defines the repository contract required by JobService.
type JobRepo interface {
	CreateJob(ctx context.Context, db *gorm.DB, job *domain.Job) error
	GetJob(ctx context.Context, db *gorm.DB, id string) (*domain.Job, error)
	ListOpenJobsByCategory(ctx context.Context, db *gorm.DB, category string) ([]domain.Job, error)
	ListOpenJobs(ctx context.Context, db *gorm.DB, limit int) ([]domain.Job, error)
	CountJobsByCustomer(ctx context.Context, db *gorm.DB, customerID string) (int64, error)
	ListJobsByCustomerPage(ctx context.Context, db *gorm.DB, customerID string, offset, limit int) ([]domain.Job, error)
}

// PostJobInput is the raw form input for a new job. Price is the text as
// typed; it is reduced to its digits.
type PostJobInput struct {
	Category    string
	Title       string
	Description string
	Location    string
	Price       string
}

// JobService provides job posting and browsing.
type JobService struct {
	DB      *gorm.DB
	Repo    JobRepo
	Catalog *catalog.Catalog
	Events  Publisher

	// SearchLimit caps how many open jobs are indexed per search.
	SearchLimit int
}

// NewJobService constructs a JobService with the built-in catalog.
func NewJobService(db *gorm.DB, r JobRepo, cat *catalog.Catalog, pub Publisher) *JobService {
	if cat == nil {
		cat = catalog.Default()
	}
	return &JobService{DB: db, Repo: r, Catalog: cat, Events: pub, SearchLimit: 500}
}

// PostJob validates in and stores a new open job owned by the session's
// customer. Every field is required after trimming; validation failures
// perform no write.
func (s *JobService) PostJob(ctx context.Context, sess Session, in PostJobInput) (*domain.Job, error) {
	tr := otel.Tracer("services/JobService")
	ctx, span := tr.Start(ctx, "PostJob",
		trace.WithAttributes(
			attribute.String("user.id", sess.UserID),
			attribute.String("job.category", in.Category),
		),
	)
	defer span.End()

	if !sess.IsCustomer() {
		return nil, ErrNotCustomer
	}
	job, err := s.validate(sess, in)
	if err != nil {
		return nil, err
	}
	if err := s.Repo.CreateJob(ctx, s.DB, job); err != nil {
		return nil, writeFailed("create job", err)
	}

	publish(s.Events, events.Event{
		Topic:    events.TopicJobCreated,
		Change:   events.Added,
		Key:      job.ID,
		Data:     job,
		Audience: []string{job.CustomerID},
		Category: job.Category,
	})
	return job, nil
}

func (s *JobService) validate(sess Session, in PostJobInput) (*domain.Job, error) {
	fields := []struct{ name, value string }{
		{"category", in.Category},
		{"title", in.Title},
		{"description", in.Description},
		{"location", in.Location},
		{"price", in.Price},
	}
	for _, f := range fields {
		if strings.TrimSpace(f.value) == "" {
			return nil, invalid(f.name, "is required")
		}
	}

	category, ok := s.Catalog.Canonical(in.Category)
	if !ok {
		return nil, invalid("category", "unknown service category")
	}
	digits := DigitsOnly(in.Price)
	if digits == "" {
		return nil, invalid("price", "must contain digits")
	}
	price, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return nil, invalid("price", "is too large")
	}

	return &domain.Job{
		CustomerID:    sess.UserID,
		CustomerEmail: sess.Email,
		CustomerName:  sess.DisplayName,
		Category:      category,
		Title:         strings.TrimSpace(in.Title),
		Description:   strings.TrimSpace(in.Description),
		Location:      strings.TrimSpace(in.Location),
		Price:         price,
	}, nil
}

// DigitsOnly strips every non-digit from a typed price ("1,500.00" keeps
// "150000", as the form's input mask did).
func DigitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ListOpenJobsByCategory returns open jobs matching category ignoring case,
// newest first.
func (s *JobService) ListOpenJobsByCategory(ctx context.Context, category string) ([]domain.Job, error) {
	tr := otel.Tracer("services/JobService")
	ctx, span := tr.Start(ctx, "ListOpenJobsByCategory",
		trace.WithAttributes(attribute.String("job.category", category)),
	)
	defer span.End()

	if strings.TrimSpace(category) == "" {
		return nil, invalid("category", "is required")
	}
	jobs, err := s.Repo.ListOpenJobsByCategory(ctx, s.DB, strings.TrimSpace(category))
	if err != nil {
		return nil, readFailed("list open jobs", err)
	}
	return jobs, nil
}

// Get returns one job.
func (s *JobService) Get(ctx context.Context, id string) (*domain.Job, error) {
	job, err := s.Repo.GetJob(ctx, s.DB, id)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrJobNotFound
		}
		return nil, readFailed("get job", err)
	}
	return job, nil
}

// ListMine returns a page of the customer's own jobs, newest first.
func (s *JobService) ListMine(ctx context.Context, sess Session, page, pageSize int) ([]domain.Job, int64, error) {
	if !sess.IsCustomer() {
		return nil, 0, ErrNotCustomer
	}
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	total, err := s.Repo.CountJobsByCustomer(ctx, s.DB, sess.UserID)
	if err != nil {
		return nil, 0, readFailed("count jobs", err)
	}
	if total == 0 {
		return []domain.Job{}, 0, nil
	}
	items, err := s.Repo.ListJobsByCustomerPage(ctx, s.DB, sess.UserID, offset, pageSize)
	if err != nil {
		return nil, 0, readFailed("list jobs", err)
	}
	return items, total, nil
}

// JobHit is a search result: the job and its relevance score.
type JobHit struct {
	Job   domain.Job `json:"job"`
	Score float64    `json:"score"`
}

// Search ranks open jobs against query by keyword overlap of title,
// description, category and location.
func (s *JobService) Search(ctx context.Context, query string, k int) ([]JobHit, error) {
	tr := otel.Tracer("services/JobService")
	ctx, span := tr.Start(ctx, "Search",
		trace.WithAttributes(attribute.String("query", query), attribute.Int("k", k)),
	)
	defer span.End()

	if strings.TrimSpace(query) == "" {
		return nil, invalid("q", "is required")
	}
	jobs, err := s.Repo.ListOpenJobs(ctx, s.DB, s.SearchLimit)
	if err != nil {
		return nil, readFailed("list open jobs", err)
	}

	byID := make(map[string]domain.Job, len(jobs))
	docs := make([]search.Doc, 0, len(jobs))
	for _, j := range jobs {
		byID[j.ID] = j
		docs = append(docs, search.Doc{
			ID:   j.ID,
			Text: strings.Join([]string{j.Title, j.Description, j.Category, j.Location}, "\n"),
		})
	}
	idx := search.NewIndex(docs, search.WithStopwords(search.DefaultStopwords))
	span.SetAttributes(attribute.Int("search.docs", idx.Len()))

	results := idx.TopK(query, k)
	out := make([]JobHit, 0, len(results))
	for _, r := range results {
		out = append(out, JobHit{Job: byID[r.ID], Score: r.Score})
	}
	return out, nil
}
