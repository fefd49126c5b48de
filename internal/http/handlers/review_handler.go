// Review and profile HTTP handlers.
//
//   - POST /jobs/{id}/review          (job owner, completed jobs, once)
//   - GET  /providers/{id}/reviews
//   - GET  /users/{id}                (public profile)
//   - POST /me/verification           (providers)
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/sahulathub/sahulat-hub/internal/domain"
	"github.com/sahulathub/sahulat-hub/internal/utils"
)

// LeaveReviewRequest rates the provider of a completed job.
type LeaveReviewRequest struct {
	Rating  int    `json:"rating"  example:"5" minimum:"1" maximum:"5"`
	Comment string `json:"comment" example:"On time and tidy"`
}

// ListReviewsResponse wraps a provider's reviews.
type ListReviewsResponse struct {
	Reviews []domain.Review `json:"reviews"`
}

// VerificationRequest maps each selected category to the submitted document
// names.
type VerificationRequest struct {
	Categories map[string][]string `json:"categories"`
}

// VerificationResponse lists the stored categories.
type VerificationResponse struct {
	Categories []domain.ProviderCategory `json:"categories"`
}

// LeaveReview godoc
// @ID          leaveReview
// @Summary     Review the provider of a completed job
// @Tags        Reviews
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id    path  string                       true  "Job ID (UUID)"  format(uuid)
// @Param       body  body  handlers.LeaveReviewRequest  true  "Review"
// @Success     201  {object}  domain.Review
// @Failure     400  {object}  handlers.ErrorResponse
// @Failure     403  {object}  handlers.ErrorResponse
// @Failure     409  {object}  handlers.ErrorResponse  "Not completed or already reviewed"
// @Router      /jobs/{id}/review [post]
func (h *Handlers) LeaveReview(c *gin.Context) {
	sess, found := session(c)
	if !found {
		return
	}
	var req LeaveReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	r, err := h.reviews.Leave(c.Request.Context(), sess, c.Param("id"), req.Rating, req.Comment)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusCreated, r)
}

// ListProviderReviews godoc
// @ID          listProviderReviews
// @Summary     A provider's reviews, newest first
// @Tags        Reviews
// @Produce     json
// @Security    BearerAuth
// @Param       id     path   string  true   "Provider ID"
// @Param       limit  query  int     false  "Max reviews"  minimum(1) maximum(100) default(20)
// @Success     200  {object}  handlers.ListReviewsResponse
// @Router      /providers/{id}/reviews [get]
func (h *Handlers) ListProviderReviews(c *gin.Context) {
	limit := utils.AtoiDefault(c.Query("limit"), 20)
	if limit < 1 || limit > 100 {
		limit = 20
	}
	out, err := h.reviews.ForProvider(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, ListReviewsResponse{Reviews: out})
}

// GetProfile godoc
// @ID          getProfile
// @Summary     Public profile
// @Description Phone and email are included only for the other party of an awarded job.
// @Tags        Profiles
// @Produce     json
// @Security    BearerAuth
// @Param       id  path  string  true  "User ID"
// @Success     200  {object}  services.Profile
// @Failure     404  {object}  handlers.ErrorResponse
// @Router      /users/{id} [get]
func (h *Handlers) GetProfile(c *gin.Context) {
	sess, found := session(c)
	if !found {
		return
	}
	p, err := h.profiles.Get(c.Request.Context(), sess, c.Param("id"))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, p)
}

// SubmitVerification godoc
// @ID          submitVerification
// @Summary     Submit provider verification documents
// @Description Every non-optional document of each selected category must be listed.
// @Tags        Profiles
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       body  body  handlers.VerificationRequest  true  "Categories and documents"
// @Success     200  {object}  handlers.VerificationResponse
// @Failure     400  {object}  handlers.ErrorResponse
// @Failure     403  {object}  handlers.ErrorResponse  "Providers only"
// @Router      /me/verification [post]
func (h *Handlers) SubmitVerification(c *gin.Context) {
	sess, found := session(c)
	if !found {
		return
	}
	var req VerificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	cats, err := h.profiles.SubmitVerification(c.Request.Context(), sess, req.Categories)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, VerificationResponse{Categories: cats})
}
