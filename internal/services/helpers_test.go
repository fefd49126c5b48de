package services

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/sahulathub/sahulat-hub/internal/catalog"
	"github.com/sahulathub/sahulat-hub/internal/domain"
	"github.com/sahulathub/sahulat-hub/internal/events"
	"github.com/sahulathub/sahulat-hub/internal/repo"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), fmt.Sprintf("svc_%s.db", uuid.NewString()))

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db.DB(): %v", err)
	}
	// One connection: transactions from concurrent callers queue instead of
	// failing with SQLITE_BUSY.
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

// fakeClock is a settable Clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(t time.Time) *fakeClock { return &fakeClock{now: t} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// countingStore proxies the repo package and counts every call, so tests can
// assert that validation failures never reach the store.
type countingStore struct {
	calls         atomic.Int64
	failRatingFor string
}

func (s *countingStore) hit() { s.calls.Add(1) }

func (s *countingStore) CreateJob(ctx context.Context, db *gorm.DB, job *domain.Job) error {
	s.hit()
	return repo.CreateJob(ctx, db, job)
}
func (s *countingStore) GetJob(ctx context.Context, db *gorm.DB, id string) (*domain.Job, error) {
	s.hit()
	return repo.GetJob(ctx, db, id)
}
func (s *countingStore) ListOpenJobsByCategory(ctx context.Context, db *gorm.DB, category string) ([]domain.Job, error) {
	s.hit()
	return repo.ListOpenJobsByCategory(ctx, db, category)
}
func (s *countingStore) ListOpenJobs(ctx context.Context, db *gorm.DB, limit int) ([]domain.Job, error) {
	s.hit()
	return repo.ListOpenJobs(ctx, db, limit)
}
func (s *countingStore) CountJobsByCustomer(ctx context.Context, db *gorm.DB, customerID string) (int64, error) {
	s.hit()
	return repo.CountJobsByCustomer(ctx, db, customerID)
}
func (s *countingStore) ListJobsByCustomerPage(ctx context.Context, db *gorm.DB, customerID string, offset, limit int) ([]domain.Job, error) {
	s.hit()
	return repo.ListJobsByCustomerPage(ctx, db, customerID, offset, limit)
}
func (s *countingStore) GetUser(ctx context.Context, db *gorm.DB, id string) (*domain.User, error) {
	s.hit()
	return repo.GetUser(ctx, db, id)
}
func (s *countingStore) CreateBid(ctx context.Context, db *gorm.DB, bid *domain.Bid) error {
	s.hit()
	return repo.CreateBid(ctx, db, bid)
}
func (s *countingStore) GetBid(ctx context.Context, db *gorm.DB, id string) (*domain.Bid, error) {
	s.hit()
	return repo.GetBid(ctx, db, id)
}
func (s *countingStore) ListBidsForJob(ctx context.Context, db *gorm.DB, jobID string) ([]domain.Bid, error) {
	s.hit()
	return repo.ListBidsForJob(ctx, db, jobID)
}
func (s *countingStore) ListBidsForProvider(ctx context.Context, db *gorm.DB, providerID string) ([]domain.Bid, error) {
	s.hit()
	return repo.ListBidsForProvider(ctx, db, providerID)
}
func (s *countingStore) ListAcceptedBidsForProvider(ctx context.Context, db *gorm.DB, providerID string) ([]domain.Bid, error) {
	s.hit()
	return repo.ListAcceptedBidsForProvider(ctx, db, providerID)
}
func (s *countingStore) CloseBidding(ctx context.Context, db *gorm.DB, jobID, bidID string) (bool, error) {
	s.hit()
	return repo.CloseBidding(ctx, db, jobID, bidID)
}
func (s *countingStore) AcceptBid(ctx context.Context, db *gorm.DB, bidID string, at time.Time) (bool, error) {
	s.hit()
	return repo.AcceptBid(ctx, db, bidID, at)
}
func (s *countingStore) ProviderRating(ctx context.Context, db *gorm.DB, providerID string) (float64, int64, error) {
	s.hit()
	if providerID == s.failRatingFor {
		return 0, 0, fmt.Errorf("rating backend down")
	}
	return repo.ProviderRating(ctx, db, providerID)
}

var (
	_ JobRepo = (*countingStore)(nil)
	_ BidRepo = (*countingStore)(nil)
)

// world wires every service against one database and broker.
type world struct {
	db     *gorm.DB
	broker *events.Broker
	store  *countingStore
	clock  *fakeClock

	jobs *JobService
	bids *BidService
	done *CompletionService
	chat *ChatService
	rev  *ReviewService
	prof *ProfileService

	customer Session
	provider Session
	rival    Session // second provider
	outsider Session // unrelated customer
}

func newWorld(t *testing.T) *world {
	t.Helper()
	db := newTestDB(t)
	broker := events.NewBroker(64)
	t.Cleanup(broker.Close)
	store := &countingStore{}
	clock := newFakeClock(time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC))

	w := &world{
		db:     db,
		broker: broker,
		store:  store,
		clock:  clock,
		jobs:   NewJobService(db, store, catalog.Default(), broker),
		bids:   NewBidService(db, store, 100, broker),
		done:   &CompletionService{DB: db, Events: broker},
		chat:   NewChatService(db, broker),
		rev:    &ReviewService{DB: db},
		prof:   &ProfileService{DB: db, Catalog: catalog.Default()},
	}
	w.bids.Clock = clock

	w.customer = seedUser(t, db, domain.RoleCustomer, "Sana", "Ahmed")
	w.provider = seedUser(t, db, domain.RoleProvider, "Bilal", "Raza")
	w.rival = seedUser(t, db, domain.RoleProvider, "Usman", "Ali")
	w.outsider = seedUser(t, db, domain.RoleCustomer, "Hina", "Shah")
	return w
}

func seedUser(t *testing.T, db *gorm.DB, role domain.Role, first, last string) Session {
	t.Helper()
	u := &domain.User{
		Role: role, Email: fmt.Sprintf("%s.%s@example.pk", first, uuid.NewString()[:8]),
		Username: first, FirstName: first, LastName: last,
		Phone: "03001234567", PasswordHash: "x",
	}
	if role == domain.RoleProvider {
		u.CNIC = "3520212345671"
	}
	if err := repo.CreateUser(context.Background(), db, u); err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return sessionOf(u)
}

func (w *world) postJob(t *testing.T, title string) *domain.Job {
	t.Helper()
	job, err := w.jobs.PostJob(context.Background(), w.customer, PostJobInput{
		Category: "Plumber", Title: title, Description: "Kitchen sink leaking",
		Location: "Gulberg, Lahore", Price: "500",
	})
	if err != nil {
		t.Fatalf("PostJob: %v", err)
	}
	return job
}

func (w *world) placeBid(t *testing.T, who Session, jobID, amount string) *domain.Bid {
	t.Helper()
	bid, err := w.bids.PlaceBid(context.Background(), who, jobID, amount, "2hr")
	if err != nil {
		t.Fatalf("PlaceBid: %v", err)
	}
	return bid
}

// awardedJob posts a job, has the provider bid and the customer accept.
func (w *world) awardedJob(t *testing.T, title string) (*domain.Job, *domain.Bid) {
	t.Helper()
	job := w.postJob(t, title)
	bid := w.placeBid(t, w.provider, job.ID, "150")
	if _, err := w.bids.AcceptBid(context.Background(), w.customer, bid.ID); err != nil {
		t.Fatalf("AcceptBid: %v", err)
	}
	return job, bid
}

// drain collects events already delivered to s.
func drain(s *events.Subscription) []events.Event {
	var out []events.Event
	for {
		select {
		case ev := <-s.C():
			out = append(out, ev)
		default:
			return out
		}
	}
}

func countTopic(evs []events.Event, topic events.Topic) int {
	n := 0
	for _, ev := range evs {
		if ev.Topic == topic {
			n++
		}
	}
	return n
}
