package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/sahulathub/sahulat-hub/internal/catalog"
	"github.com/sahulathub/sahulat-hub/internal/domain"
	"github.com/sahulathub/sahulat-hub/internal/events"
	"github.com/sahulathub/sahulat-hub/internal/http/middleware"
	"github.com/sahulathub/sahulat-hub/internal/repo"
	"github.com/sahulathub/sahulat-hub/internal/services"
)

// ---------- test DB + repo shim ----------

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), fmt.Sprintf("handlers_%s.db", uuid.NewString()))
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
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

// testRepo implements services.JobRepo and services.BidRepo using the repo
// package, like the router's shim.
type testRepo struct{}

func (testRepo) CreateJob(ctx context.Context, db *gorm.DB, job *domain.Job) error {
	return repo.CreateJob(ctx, db, job)
}
func (testRepo) GetJob(ctx context.Context, db *gorm.DB, id string) (*domain.Job, error) {
	return repo.GetJob(ctx, db, id)
}
func (testRepo) ListOpenJobsByCategory(ctx context.Context, db *gorm.DB, category string) ([]domain.Job, error) {
	return repo.ListOpenJobsByCategory(ctx, db, category)
}
func (testRepo) ListOpenJobs(ctx context.Context, db *gorm.DB, limit int) ([]domain.Job, error) {
	return repo.ListOpenJobs(ctx, db, limit)
}
func (testRepo) CountJobsByCustomer(ctx context.Context, db *gorm.DB, customerID string) (int64, error) {
	return repo.CountJobsByCustomer(ctx, db, customerID)
}
func (testRepo) ListJobsByCustomerPage(ctx context.Context, db *gorm.DB, customerID string, offset, limit int) ([]domain.Job, error) {
	return repo.ListJobsByCustomerPage(ctx, db, customerID, offset, limit)
}
func (testRepo) GetUser(ctx context.Context, db *gorm.DB, id string) (*domain.User, error) {
	return repo.GetUser(ctx, db, id)
}
func (testRepo) CreateBid(ctx context.Context, db *gorm.DB, bid *domain.Bid) error {
	return repo.CreateBid(ctx, db, bid)
}
func (testRepo) GetBid(ctx context.Context, db *gorm.DB, id string) (*domain.Bid, error) {
	return repo.GetBid(ctx, db, id)
}
func (testRepo) ListBidsForJob(ctx context.Context, db *gorm.DB, jobID string) ([]domain.Bid, error) {
	return repo.ListBidsForJob(ctx, db, jobID)
}
func (testRepo) ListBidsForProvider(ctx context.Context, db *gorm.DB, providerID string) ([]domain.Bid, error) {
	return repo.ListBidsForProvider(ctx, db, providerID)
}
func (testRepo) ListAcceptedBidsForProvider(ctx context.Context, db *gorm.DB, providerID string) ([]domain.Bid, error) {
	return repo.ListAcceptedBidsForProvider(ctx, db, providerID)
}
func (testRepo) CloseBidding(ctx context.Context, db *gorm.DB, jobID, bidID string) (bool, error) {
	return repo.CloseBidding(ctx, db, jobID, bidID)
}
func (testRepo) AcceptBid(ctx context.Context, db *gorm.DB, bidID string, at time.Time) (bool, error) {
	return repo.AcceptBid(ctx, db, bidID, at)
}
func (testRepo) ProviderRating(ctx context.Context, db *gorm.DB, providerID string) (float64, int64, error) {
	return repo.ProviderRating(ctx, db, providerID)
}

// ---------- app harness ----------

type app struct {
	t      *testing.T
	db     *gorm.DB
	broker *events.Broker
	auth   *services.AuthService
	h      *Handlers
	r      *gin.Engine
}

type user struct {
	sess  services.Session
	token string
}

func newApp(t *testing.T) *app {
	t.Helper()
	gin.SetMode(gin.TestMode)
	db := newTestDB(t)
	broker := events.NewBroker(64)
	t.Cleanup(broker.Close)

	auth := services.NewAuthService(db, "handlers-test-secret", time.Hour, broker)
	auth.Cost = bcrypt.MinCost
	cat := catalog.Default()

	h := New(Deps{
		DB:       db,
		Auth:     auth,
		Jobs:     services.NewJobService(db, testRepo{}, cat, broker),
		Bids:     services.NewBidService(db, testRepo{}, 100, broker),
		Status:   &services.CompletionService{DB: db, Events: broker},
		Chat:     services.NewChatService(db, broker),
		Reviews:  &services.ReviewService{DB: db},
		Profiles: &services.ProfileService{DB: db, Catalog: cat},
		Catalog:  cat,
		Broker:   broker,
	})

	r := gin.New()
	r.Use(middleware.RequestID())
	r.Use(middleware.Authenticate(func(ctx context.Context, tok string) (middleware.Principal, error) {
		sess, err := auth.CurrentUser(ctx, tok)
		if err != nil {
			return nil, err
		}
		return sess, nil
	}))
	r.Use(middleware.IdempotencyValidator(
		middleware.IdempotencyOptions{Scope: middleware.ScopeByRoute("")},
		func(ctx context.Context, userID, scope, key string, now time.Time) (bool, error) {
			_, err := repo.GetIdempotency(ctx, db, userID, scope, key, now)
			return err == nil, nil
		},
	))

	r.POST("/auth/signup", h.SignUp)
	r.POST("/auth/signin", h.SignIn)
	r.GET("/categories", h.ListCategories)

	a := r.Group("", middleware.RequireAuth())
	a.POST("/auth/signout", h.SignOut)
	a.GET("/me", h.Me)
	a.POST("/me/verification", h.SubmitVerification)
	a.GET("/users/:id", h.GetProfile)
	a.POST("/jobs", h.PostJob)
	a.GET("/jobs", h.ListOpenJobs)
	a.GET("/jobs/mine", h.ListMyJobs)
	a.GET("/jobs/search", h.SearchJobs)
	a.GET("/jobs/:id", h.GetJob)
	a.POST("/jobs/:id/bids", h.PlaceBid)
	a.GET("/jobs/:id/bids", h.ListJobBids)
	a.GET("/bids/mine", h.ListMyBids)
	a.POST("/bids/:id/accept", h.AcceptBid)
	a.POST("/jobs/:id/done", h.ConfirmDone)
	a.GET("/jobs/:id/status", h.JobStatus)
	a.POST("/jobs/:id/messages", h.SendMessage)
	a.GET("/jobs/:id/messages", h.ListThread)
	a.GET("/conversations/:peerId", h.ListConversation)
	a.POST("/jobs/:id/review", h.LeaveReview)
	a.GET("/providers/ratings", h.ProviderRatings)
	a.GET("/providers/:id/reviews", h.ListProviderReviews)
	a.GET("/stream", h.Stream)

	return &app{t: t, db: db, broker: broker, auth: auth, h: h, r: r}
}

func (a *app) signUp(role domain.Role, first string) user {
	a.t.Helper()
	in := services.SignUpInput{
		Role: role, FirstName: first, LastName: "Khan", Username: first,
		Phone: "03001234567", Email: first + "." + uuid.NewString()[:8] + "@example.pk", Password: "secret123",
	}
	if role == domain.RoleProvider {
		in.CNIC = "3520212345671"
	}
	sess, tok, err := a.auth.SignUp(context.Background(), in)
	if err != nil {
		a.t.Fatalf("SignUp %s: %v", first, err)
	}
	return user{sess: sess, token: tok}
}

// do sends a JSON request as u (zero user for anonymous) with optional
// extra headers given as key, value pairs.
func (a *app) do(method, path string, u user, body any, headers ...string) *httptest.ResponseRecorder {
	a.t.Helper()
	var rdr *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			a.t.Fatalf("marshal: %v", err)
		}
		rdr = bytes.NewReader(b)
	} else {
		rdr = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rdr)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if u.token != "" {
		req.Header.Set("Authorization", "Bearer "+u.token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	a.r.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %T: %v (body=%s)", v, err, w.Body.String())
	}
	return v
}

func expectError(t *testing.T, w *httptest.ResponseRecorder, status int, code string) ErrorResponse {
	t.Helper()
	if w.Code != status {
		t.Fatalf("status=%d want %d body=%s", w.Code, status, w.Body.String())
	}
	er := decode[ErrorResponse](t, w)
	if er.Code != code {
		t.Fatalf("code=%q want %q (%s)", er.Code, code, er.Message)
	}
	return er
}

func (a *app) postJob(u user, title string) domain.Job {
	a.t.Helper()
	w := a.do(http.MethodPost, "/jobs", u, PostJobRequest{
		Category: "Plumber", Title: title, Description: "Sink leaking",
		Location: "Gulberg, Lahore", Price: "1,500",
	})
	if w.Code != http.StatusCreated {
		a.t.Fatalf("post job: %d %s", w.Code, w.Body.String())
	}
	return decode[domain.Job](a.t, w)
}

func (a *app) placeBid(u user, jobID, amount string) domain.Bid {
	a.t.Helper()
	w := a.do(http.MethodPost, "/jobs/"+jobID+"/bids", u, PlaceBidRequest{Amount: amount, Notes: "today"})
	if w.Code != http.StatusCreated {
		a.t.Fatalf("place bid: %d %s", w.Code, w.Body.String())
	}
	return decode[domain.Bid](a.t, w)
}

// awarded posts a job as customer, bids on it as provider and accepts.
func (a *app) awarded(customer, provider user, title string) (domain.Job, domain.Bid) {
	a.t.Helper()
	job := a.postJob(customer, title)
	bid := a.placeBid(provider, job.ID, "1500")
	if w := a.do(http.MethodPost, "/bids/"+bid.ID+"/accept", customer, nil); w.Code != http.StatusOK {
		a.t.Fatalf("accept: %d %s", w.Code, w.Body.String())
	}
	return job, bid
}
