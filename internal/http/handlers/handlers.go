// Package handlers exposes the marketplace over HTTP.
//
// Handlers are transport-thin: they bind and validate request shapes, take
// the caller's Session from the auth middleware, delegate to the services
// and translate results into responses (including conditional GETs and
// idempotent replays).
package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/sahulathub/sahulat-hub/internal/catalog"
	"github.com/sahulathub/sahulat-hub/internal/domain"
	"github.com/sahulathub/sahulat-hub/internal/events"
	"github.com/sahulathub/sahulat-hub/internal/http/middleware"
	"github.com/sahulathub/sahulat-hub/internal/repo"
	"github.com/sahulathub/sahulat-hub/internal/services"
	"github.com/sahulathub/sahulat-hub/internal/utils"
)

//
// Service contracts (context-aware)
//

// AuthService issues and resolves sessions.
type AuthService interface {
	SignUp(ctx context.Context, in services.SignUpInput) (services.Session, string, error)
	SignIn(ctx context.Context, email, password string) (services.Session, string, error)
	SignOut(ctx context.Context, sess services.Session) error
}

// JobService posts and browses jobs.
type JobService interface {
	PostJob(ctx context.Context, sess services.Session, in services.PostJobInput) (*domain.Job, error)
	ListOpenJobsByCategory(ctx context.Context, category string) ([]domain.Job, error)
	Get(ctx context.Context, id string) (*domain.Job, error)
	ListMine(ctx context.Context, sess services.Session, page, pageSize int) ([]domain.Job, int64, error)
	Search(ctx context.Context, query string, k int) ([]services.JobHit, error)
}

// BidService is the bid ledger.
type BidService interface {
	PlaceBid(ctx context.Context, sess services.Session, jobID, amount, notes string) (*domain.Bid, error)
	AcceptBid(ctx context.Context, sess services.Session, bidID string) (*domain.Bid, error)
	BidsForJob(ctx context.Context, sess services.Session, jobID string) ([]domain.Bid, error)
	BidsForProvider(ctx context.Context, sess services.Session) ([]domain.Bid, error)
	AcceptedBidsForProvider(ctx context.Context, providerID string) ([]domain.Bid, error)
	RatingsForProviders(ctx context.Context, ids []string) []services.ProviderRating
}

// CompletionService coordinates two-party job completion.
type CompletionService interface {
	ConfirmDone(ctx context.Context, sess services.Session, jobID string) (services.StatusView, error)
	Status(ctx context.Context, sess services.Session, jobID string) (services.StatusView, error)
	CompletedFor(ctx context.Context, sess services.Session) ([]services.StatusView, error)
}

// ChatService routes job-scoped messages.
type ChatService interface {
	Send(ctx context.Context, sess services.Session, jobID, text string) (*domain.Message, error)
	Thread(ctx context.Context, sess services.Session, jobID string, page, pageSize int) ([]domain.Message, int64, error)
	Conversation(ctx context.Context, sess services.Session, peerID string, page, pageSize int) ([]domain.Message, int64, error)
}

// ReviewService records provider reviews.
type ReviewService interface {
	Leave(ctx context.Context, sess services.Session, jobID string, rating int, comment string) (*domain.Review, error)
	ForProvider(ctx context.Context, providerID string, limit int) ([]domain.Review, error)
}

// ProfileService reads profiles and records verification submissions.
type ProfileService interface {
	Me(ctx context.Context, sess services.Session) (*services.Profile, error)
	Get(ctx context.Context, viewer services.Session, id string) (*services.Profile, error)
	SubmitVerification(ctx context.Context, sess services.Session, docs map[string][]string) ([]domain.ProviderCategory, error)
}

//
// Handler wiring
//

// Deps carries everything the handlers need. DB backs conditional GETs and
// idempotency records; Broker backs the live stream.
type Deps struct {
	DB       *gorm.DB
	Auth     AuthService
	Jobs     JobService
	Bids     BidService
	Status   CompletionService
	Chat     ChatService
	Reviews  ReviewService
	Profiles ProfileService
	Catalog  *catalog.Catalog
	Broker   *events.Broker

	// IdempotencyTTL is how long a recorded POST result can be replayed.
	IdempotencyTTL time.Duration
	// FreshnessWindow bounds which replayed acceptances notify on the stream.
	FreshnessWindow time.Duration
	Clock           services.Clock
}

// Handlers groups the HTTP endpoints.
type Handlers struct {
	db       *gorm.DB
	auth     AuthService
	jobs     JobService
	bids     BidService
	status   CompletionService
	chat     ChatService
	reviews  ReviewService
	profiles ProfileService
	catalog  *catalog.Catalog
	broker   *events.Broker

	idemTTL   time.Duration
	freshness time.Duration
	clock     services.Clock
}

// New constructs Handlers from d, filling defaults for zero values.
func New(d Deps) *Handlers {
	h := &Handlers{
		db: d.DB, auth: d.Auth, jobs: d.Jobs, bids: d.Bids, status: d.Status,
		chat: d.Chat, reviews: d.Reviews, profiles: d.Profiles,
		catalog: d.Catalog, broker: d.Broker,
		idemTTL: d.IdempotencyTTL, freshness: d.FreshnessWindow, clock: d.Clock,
	}
	if h.catalog == nil {
		h.catalog = catalog.Default()
	}
	if h.idemTTL <= 0 {
		h.idemTTL = 24 * time.Hour
	}
	if h.freshness <= 0 {
		h.freshness = 10 * time.Second
	}
	if h.clock == nil {
		h.clock = services.SystemClock
	}
	return h
}

//
// DTOs
//

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

func paginate(page, pageSize int, total int64) Pagination {
	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	return Pagination{
		Page:       page,
		PageSize:   pageSize,
		Total:      total,
		TotalPages: totalPages,
		HasNext:    page < totalPages,
	}
}

//
// Helpers
//

// clampPagination parses and bounds page and page_size query params,
// returning (page, pageSize).
func clampPagination(c *gin.Context) (page, pageSize int) {
	const (
		defaultPage     = 1
		defaultPageSize = 20
		maxPageSize     = 100
	)
	page = max(utils.AtoiDefault(c.Query("page"), defaultPage), 1)
	pageSize = utils.Clamp(utils.AtoiDefault(c.Query("page_size"), defaultPageSize), 1, maxPageSize)
	return
}

// session returns the caller's Session. Routes behind RequireAuth always
// have one; the 401 branch only guards misconfigured routes.
func session(c *gin.Context) (services.Session, bool) {
	p, found := middleware.PrincipalFrom(c)
	if !found {
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "sign in required")
		return services.Session{}, false
	}
	sess, isSession := p.(services.Session)
	if !isSession {
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "sign in required")
		return services.Session{}, false
	}
	return sess, true
}

// notModified sets a weak ETag built from (kind, id, count, latest update)
// and reports whether the request's If-None-Match already matches it.
// Stats failures skip the ETag rather than failing the request.
func notModified(c *gin.Context, kind, id string, stats func() (int64, *time.Time, error)) bool {
	count, maxTS, err := stats()
	if err != nil {
		return false
	}
	var ts int64
	if maxTS != nil {
		ts = maxTS.UnixNano()
	}
	etag := fmt.Sprintf(`W/"%s:%s:%d:%d"`, kind, id, count, ts)
	c.Header("ETag", etag)
	if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
		c.Status(http.StatusNotModified)
		return true
	}
	return false
}

// replayedResource returns the resource recorded for a replayed POST.
func (h *Handlers) replayedResource(c *gin.Context, userID string) (string, bool) {
	if !middleware.IsReplay(c) || h.db == nil {
		return "", false
	}
	key, _ := middleware.GetIdempotencyKey(c)
	rec, err := repo.GetIdempotency(c.Request.Context(), h.db, userID, middleware.IdempotencyScope(c), key, h.clock.Now())
	if err != nil {
		return "", false
	}
	return rec.ResourceID, true
}

// remember records a successful POST under its idempotency key. Failures
// are logged; the original response still goes out.
func (h *Handlers) remember(c *gin.Context, userID, resourceID string, status int) {
	key, hasKey := middleware.GetIdempotencyKey(c)
	if !hasKey || h.db == nil {
		return
	}
	_, err := repo.CreateIdempotency(c.Request.Context(), h.db, userID, middleware.IdempotencyScope(c), key, resourceID, status, h.idemTTL)
	if err != nil && !errors.Is(err, repo.ErrDuplicate) {
		middleware.LoggerFrom(c).Warn().Err(err).Msg("idempotency record not stored")
	}
}
