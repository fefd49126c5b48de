// Job HTTP handlers.
//
//   - POST /jobs               (customers; Idempotency-Key aware)
//   - GET  /jobs?category=     (open jobs in a category, weak ETag)
//   - GET  /jobs/mine          (caller's own jobs, paginated)
//   - GET  /jobs/search?q=     (keyword search over open jobs)
//   - GET  /jobs/{id}
//   - GET  /categories         (service catalog)
package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/sahulathub/sahulat-hub/internal/catalog"
	"github.com/sahulathub/sahulat-hub/internal/domain"
	"github.com/sahulathub/sahulat-hub/internal/repo"
	"github.com/sahulathub/sahulat-hub/internal/services"
	"github.com/sahulathub/sahulat-hub/internal/utils"
)

// PostJobRequest is the job posting form. Price is the text as typed.
type PostJobRequest struct {
	Category    string `json:"category"    example:"Plumber"`
	Title       string `json:"title"       example:"Fix kitchen sink"`
	Description string `json:"description" example:"Sink is leaking under the cabinet"`
	Location    string `json:"location"    example:"Gulberg, Lahore"`
	Price       string `json:"price"       example:"1,500"`
}

// ListJobsResponse wraps a list of jobs.
type ListJobsResponse struct {
	Jobs []domain.Job `json:"jobs"`
}

// PagedJobsResponse wraps a page of jobs and pagination information.
type PagedJobsResponse struct {
	Jobs       []domain.Job `json:"jobs"`
	Pagination Pagination   `json:"pagination"`
}

// SearchJobsResponse wraps ranked search hits.
type SearchJobsResponse struct {
	Hits []services.JobHit `json:"hits"`
}

// CategoriesResponse lists the service catalog.
type CategoriesResponse struct {
	Categories []catalog.Category `json:"categories"`
}

// PostJob godoc
// @ID          postJob
// @Summary     Post a job
// @Description Creates an open job owned by the calling customer.
// @Description Supports idempotency via the Idempotency-Key header (same key, same job).
// @Tags        Jobs
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       Idempotency-Key  header  string                   false  "Idempotency key for safe retries"
// @Param       body             body    handlers.PostJobRequest  true   "Job form"
// @Success     201  {object}  domain.Job
// @Success     200  {object}  domain.Job  "Replayed"
// @Failure     400  {object}  handlers.ErrorResponse  "Validation failed"
// @Failure     403  {object}  handlers.ErrorResponse  "Customers only"
// @Failure     500  {object}  handlers.ErrorResponse  "Write failed"
// @Router      /jobs [post]
func (h *Handlers) PostJob(c *gin.Context) {
	sess, found := session(c)
	if !found {
		return
	}
	ctx := c.Request.Context()

	if id, replay := h.replayedResource(c, sess.UserID); replay {
		if prev, err := h.jobs.Get(ctx, id); err == nil {
			c.Header("Idempotency-Replayed", "true")
			ok(c, http.StatusOK, prev)
			return
		}
	}

	var req PostJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	job, err := h.jobs.PostJob(ctx, sess, services.PostJobInput{
		Category:    req.Category,
		Title:       req.Title,
		Description: req.Description,
		Location:    req.Location,
		Price:       req.Price,
	})
	if err != nil {
		failErr(c, err)
		return
	}
	h.remember(c, sess.UserID, job.ID, http.StatusCreated)
	ok(c, http.StatusCreated, job)
}

// ListOpenJobs godoc
// @ID          listOpenJobs
// @Summary     Open jobs in a category
// @Description Returns open jobs whose category matches ignoring case, newest first.
// @Description Supports weak ETag via If-None-Match and may return 304.
// @Tags        Jobs
// @Produce     json
// @Security    BearerAuth
// @Param       category       query   string  true   "Service category"  example(Plumber)
// @Param       If-None-Match  header  string  false  "Return 304 if ETag matches"
// @Success     200  {object}  handlers.ListJobsResponse
// @Header      200  {string}  ETag  "Weak ETag for current result"
// @Success     304  {string}  string  "Not Modified"
// @Failure     400  {object}  handlers.ErrorResponse
// @Router      /jobs [get]
func (h *Handlers) ListOpenJobs(c *gin.Context) {
	ctx := c.Request.Context()
	category := strings.TrimSpace(c.Query("category"))
	if category == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "category query parameter required")
		return
	}

	if h.db != nil && notModified(c, "jobs", strings.ToLower(category), func() (int64, *time.Time, error) {
		return repo.OpenJobsStats(ctx, h.db, category)
	}) {
		return
	}

	jobs, err := h.jobs.ListOpenJobsByCategory(ctx, category)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, ListJobsResponse{Jobs: jobs})
}

// ListMyJobs godoc
// @ID          listMyJobs
// @Summary     Caller's own jobs (paginated)
// @Tags        Jobs
// @Produce     json
// @Security    BearerAuth
// @Param       page       query  int  false  "Page number"     minimum(1) default(1)
// @Param       page_size  query  int  false  "Items per page"  minimum(1) maximum(100) default(20)
// @Success     200  {object}  handlers.PagedJobsResponse
// @Failure     403  {object}  handlers.ErrorResponse  "Customers only"
// @Router      /jobs/mine [get]
func (h *Handlers) ListMyJobs(c *gin.Context) {
	sess, found := session(c)
	if !found {
		return
	}
	page, pageSize := clampPagination(c)
	items, total, err := h.jobs.ListMine(c.Request.Context(), sess, page, pageSize)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, PagedJobsResponse{Jobs: items, Pagination: paginate(page, pageSize, total)})
}

// SearchJobs godoc
// @ID          searchJobs
// @Summary     Search open jobs
// @Description Ranks open jobs by keyword overlap with q.
// @Tags        Jobs
// @Produce     json
// @Security    BearerAuth
// @Param       q  query  string  true   "Keywords"  example(sink leak)
// @Param       k  query  int     false  "Max hits"  minimum(1) maximum(50) default(10)
// @Success     200  {object}  handlers.SearchJobsResponse
// @Failure     400  {object}  handlers.ErrorResponse
// @Router      /jobs/search [get]
func (h *Handlers) SearchJobs(c *gin.Context) {
	k := utils.Clamp(utils.AtoiDefault(c.Query("k"), 10), 1, 50)
	hits, err := h.jobs.Search(c.Request.Context(), c.Query("q"), k)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, SearchJobsResponse{Hits: hits})
}

// GetJob godoc
// @ID          getJob
// @Summary     Get a job
// @Tags        Jobs
// @Produce     json
// @Security    BearerAuth
// @Param       id  path  string  true  "Job ID (UUID)"  format(uuid)
// @Success     200  {object}  domain.Job
// @Failure     404  {object}  handlers.ErrorResponse
// @Router      /jobs/{id} [get]
func (h *Handlers) GetJob(c *gin.Context) {
	job, err := h.jobs.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, job)
}

// ListCategories godoc
// @ID          listCategories
// @Summary     Service catalog
// @Description Lists the service categories and the documents each requires for verification.
// @Tags        Catalog
// @Produce     json
// @Success     200  {object}  handlers.CategoriesResponse
// @Router      /categories [get]
func (h *Handlers) ListCategories(c *gin.Context) {
	ok(c, http.StatusOK, CategoriesResponse{Categories: h.catalog.Categories()})
}
