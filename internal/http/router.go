// Package httpapi wires the HTTP transport (Gin) to the marketplace services,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, logging/redaction, panic recovery, metrics,
// authentication, idempotency, rate limiting, CORS and security headers.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/sahulathub/sahulat-hub/internal/catalog"
	"github.com/sahulathub/sahulat-hub/internal/config"
	"github.com/sahulathub/sahulat-hub/internal/domain"
	"github.com/sahulathub/sahulat-hub/internal/events"
	"github.com/sahulathub/sahulat-hub/internal/http/handlers"
	"github.com/sahulathub/sahulat-hub/internal/http/middleware"
	"github.com/sahulathub/sahulat-hub/internal/repo"
	"github.com/sahulathub/sahulat-hub/internal/services"
)

// marketRepoShim adapts the repository free functions to the JobRepo and
// BidRepo interfaces expected by the services.
type marketRepoShim struct{}

// CreateJob proxies repo.CreateJob.
func (marketRepoShim) CreateJob(ctx context.Context, db *gorm.DB, job *domain.Job) error {
	return repo.CreateJob(ctx, db, job)
}

// GetJob proxies repo.GetJob.
func (marketRepoShim) GetJob(ctx context.Context, db *gorm.DB, id string) (*domain.Job, error) {
	return repo.GetJob(ctx, db, id)
}

// ListOpenJobsByCategory proxies repo.ListOpenJobsByCategory.
func (marketRepoShim) ListOpenJobsByCategory(ctx context.Context, db *gorm.DB, category string) ([]domain.Job, error) {
	return repo.ListOpenJobsByCategory(ctx, db, category)
}

// ListOpenJobs proxies repo.ListOpenJobs (search corpus).
func (marketRepoShim) ListOpenJobs(ctx context.Context, db *gorm.DB, limit int) ([]domain.Job, error) {
	return repo.ListOpenJobs(ctx, db, limit)
}

// CountJobsByCustomer proxies repo.CountJobsByCustomer (pagination support).
func (marketRepoShim) CountJobsByCustomer(ctx context.Context, db *gorm.DB, customerID string) (int64, error) {
	return repo.CountJobsByCustomer(ctx, db, customerID)
}

// ListJobsByCustomerPage proxies repo.ListJobsByCustomerPage (pagination support).
func (marketRepoShim) ListJobsByCustomerPage(ctx context.Context, db *gorm.DB, customerID string, offset, limit int) ([]domain.Job, error) {
	return repo.ListJobsByCustomerPage(ctx, db, customerID, offset, limit)
}

// GetUser proxies repo.GetUser.
func (marketRepoShim) GetUser(ctx context.Context, db *gorm.DB, id string) (*domain.User, error) {
	return repo.GetUser(ctx, db, id)
}

// CreateBid proxies repo.CreateBid.
func (marketRepoShim) CreateBid(ctx context.Context, db *gorm.DB, bid *domain.Bid) error {
	return repo.CreateBid(ctx, db, bid)
}

// GetBid proxies repo.GetBid.
func (marketRepoShim) GetBid(ctx context.Context, db *gorm.DB, id string) (*domain.Bid, error) {
	return repo.GetBid(ctx, db, id)
}

// ListBidsForJob proxies repo.ListBidsForJob.
func (marketRepoShim) ListBidsForJob(ctx context.Context, db *gorm.DB, jobID string) ([]domain.Bid, error) {
	return repo.ListBidsForJob(ctx, db, jobID)
}

// ListBidsForProvider proxies repo.ListBidsForProvider.
func (marketRepoShim) ListBidsForProvider(ctx context.Context, db *gorm.DB, providerID string) ([]domain.Bid, error) {
	return repo.ListBidsForProvider(ctx, db, providerID)
}

// ListAcceptedBidsForProvider proxies repo.ListAcceptedBidsForProvider.
func (marketRepoShim) ListAcceptedBidsForProvider(ctx context.Context, db *gorm.DB, providerID string) ([]domain.Bid, error) {
	return repo.ListAcceptedBidsForProvider(ctx, db, providerID)
}

// CloseBidding proxies repo.CloseBidding.
func (marketRepoShim) CloseBidding(ctx context.Context, db *gorm.DB, jobID, bidID string) (bool, error) {
	return repo.CloseBidding(ctx, db, jobID, bidID)
}

// AcceptBid proxies repo.AcceptBid.
func (marketRepoShim) AcceptBid(ctx context.Context, db *gorm.DB, bidID string, at time.Time) (bool, error) {
	return repo.AcceptBid(ctx, db, bidID, at)
}

// ProviderRating proxies repo.ProviderRating.
func (marketRepoShim) ProviderRating(ctx context.Context, db *gorm.DB, providerID string) (float64, int64, error) {
	return repo.ProviderRating(ctx, db, providerID)
}

// RegisterRoutes attaches all middleware and HTTP endpoints to r and
// returns the handler set (for tests).
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. RedactingLogger: structured logs with PII scrubbing
//  4. Recovery: capture panics after logger
//  5. Body size limiter
//  6. Metrics
//  7. Authenticate: resolve a presented bearer token (anonymous passes)
//  8. Idempotency validator (needs the user; before the rate limiter)
//  9. Rate limiter (per user/IP, bypass on replay)
//  10. Compression, CORS and security headers
func RegisterRoutes(r *gin.Engine, db *gorm.DB, broker *events.Broker, cat *catalog.Catalog, cfg config.Config) *handlers.Handlers {
	r.HandleMethodNotAllowed = true
	base := cfg.APIBasePath
	if base == "/" {
		base = ""
	}
	streamPath := base + "/stream"

	authSvc := services.NewAuthService(db, cfg.Auth.JWTSecret, cfg.Auth.TokenTTL, broker)
	resolve := func(ctx context.Context, token string) (middleware.Principal, error) {
		sess, err := authSvc.CurrentUser(ctx, token)
		if err != nil {
			return nil, err
		}
		return sess, nil
	}

	r.Use(otelgin.Middleware(observability.ServiceName(cfg.OTEL)))
	r.Use(middleware.RequestID())
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{
		MaskHeaders: []string{middleware.HeaderIdempotencyKey},
	}))
	r.Use(middleware.Recovery())
	r.Use(limitBody(1 << 20))

	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.Use(middleware.Authenticate(resolve))

	r.Use(middleware.IdempotencyValidator(
		middleware.IdempotencyOptions{
			MaxLen: 200,
			Scope:  middleware.ScopeByRoute(base),
		},
		func(ctx context.Context, userID, scope, key string, now time.Time) (bool, error) {
			rec, err := repo.GetIdempotency(ctx, db, userID, scope, key, now)
			if err != nil || rec == nil {
				return false, nil
			}
			return true, nil
		},
	))

	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByUserOrIP(),
		"/health", "/ready", "/metrics", streamPath)
	r.Use(rl.Handler())

	// Websocket upgrades hijack the connection; compressing them breaks the handshake.
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{streamPath})))

	allowHeaders := []string{"Origin", "Content-Type", "Accept", "Authorization", "If-None-Match", middleware.HeaderIdempotencyKey}
	exposeHeaders := []string{"X-Request-ID", "Content-Length", "ETag", "Idempotency-Replayed"}
	if len(cfg.CORS.AllowedOrigins) == 0 {
		r.Use(func(c *gin.Context) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowAllOrigins:  true,
			AllowMethods:     []string{"GET", "POST", "OPTIONS"},
			AllowHeaders:     allowHeaders,
			ExposeHeaders:    exposeHeaders,
			AllowCredentials: false, // must remain false with AllowAllOrigins
			MaxAge:           12 * time.Hour,
		}))
	} else {
		allowed := make(map[string]struct{}, len(cfg.CORS.AllowedOrigins))
		for _, o := range cfg.CORS.AllowedOrigins {
			allowed[o] = struct{}{}
		}
		r.Use(func(c *gin.Context) {
			if origin := c.GetHeader("Origin"); origin != "" {
				if _, found := allowed[origin]; found {
					h := c.Writer.Header()
					h.Set("Access-Control-Allow-Origin", origin)
					h.Add("Vary", "Origin")
				}
			}
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORS.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "OPTIONS"},
			AllowHeaders:     allowHeaders,
			ExposeHeaders:    exposeHeaders,
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}))
	}

	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:      cfg.Security.EnableHSTS,
		HSTSMaxAge:      cfg.Security.HSTSMaxAge,
		EnablePolicy:    true,
		NoStorePrefixes: []string{base + "/me", base + "/auth"},
	}))

	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/ready", readiness(db))
	if cfg.SwaggerEnabled {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	bidSvc := services.NewBidService(db, marketRepoShim{}, cfg.Market.MinBidAmount, broker)
	h := handlers.New(handlers.Deps{
		DB:              db,
		Auth:            authSvc,
		Jobs:            services.NewJobService(db, marketRepoShim{}, cat, broker),
		Bids:            bidSvc,
		Status:          &services.CompletionService{DB: db, Events: broker},
		Chat:            services.NewChatService(db, broker),
		Reviews:         &services.ReviewService{DB: db},
		Profiles:        &services.ProfileService{DB: db, Catalog: cat},
		Catalog:         cat,
		Broker:          broker,
		IdempotencyTTL:  cfg.IdempotencyTTL,
		FreshnessWindow: cfg.Market.FreshnessWindow,
	})

	api := groupWithPrefix(r, base)
	{
		api.POST("/auth/signup", h.SignUp)
		api.POST("/auth/signin", h.SignIn)
		api.GET("/categories", h.ListCategories)
	}

	authed := api.Group("", middleware.RequireAuth())
	{
		authed.POST("/auth/signout", h.SignOut)
		authed.GET("/me", h.Me)
		authed.POST("/me/verification", h.SubmitVerification)
		authed.GET("/users/:id", h.GetProfile)

		// Jobs
		authed.POST("/jobs", h.PostJob)
		authed.GET("/jobs", h.ListOpenJobs)
		authed.GET("/jobs/mine", h.ListMyJobs)
		authed.GET("/jobs/search", h.SearchJobs)
		authed.GET("/jobs/:id", h.GetJob)

		// Bids
		authed.POST("/jobs/:id/bids", h.PlaceBid)
		authed.GET("/jobs/:id/bids", h.ListJobBids)
		authed.GET("/bids/mine", h.ListMyBids)
		authed.POST("/bids/:id/accept", h.AcceptBid)

		// Completion
		authed.POST("/jobs/:id/done", h.ConfirmDone)
		authed.GET("/jobs/:id/status", h.JobStatus)

		// Messages
		authed.POST("/jobs/:id/messages", h.SendMessage)
		authed.GET("/jobs/:id/messages", h.ListThread)
		authed.GET("/conversations/:peerId", h.ListConversation)

		// Reviews
		authed.POST("/jobs/:id/review", h.LeaveReview)
		authed.GET("/providers/ratings", h.ProviderRatings)
		authed.GET("/providers/:id/reviews", h.ListProviderReviews)

		authed.GET("/stream", h.Stream)
	}
	return h
}

// readiness pings the database.
func readiness(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		sqlDB, err := db.DB()
		if err == nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			err = sqlDB.PingContext(ctx)
		}
		if err != nil {
			handlers.Fail(c, http.StatusServiceUnavailable, handlers.ErrCodeInternal, "database unavailable")
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	}
}

// limitBody caps the request body size for all endpoints to maxBytes using
// http.MaxBytesReader.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
