// Bid HTTP handlers.
//
//   - POST /jobs/{id}/bids          (providers; Idempotency-Key aware)
//   - GET  /jobs/{id}/bids          (job owner; weak ETag)
//   - GET  /bids/mine               (provider's own bids)
//   - POST /bids/{id}/accept        (job owner)
//   - GET  /providers/ratings?ids=  (best-effort batch)
package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/sahulathub/sahulat-hub/internal/domain"
	"github.com/sahulathub/sahulat-hub/internal/repo"
	"github.com/sahulathub/sahulat-hub/internal/services"
	"github.com/sahulathub/sahulat-hub/internal/utils"
)

// maxRatingIDs caps a ratings batch.
const maxRatingIDs = 50

// PlaceBidRequest is the bid form. Amount is the text as typed.
type PlaceBidRequest struct {
	Amount string `json:"amount" example:"1500"`
	Notes  string `json:"notes"  example:"Can come today after 5pm"`
}

// ListBidsResponse wraps a list of bids.
type ListBidsResponse struct {
	Bids []domain.Bid `json:"bids"`
}

// RatingsResponse wraps provider ratings.
type RatingsResponse struct {
	Ratings []services.ProviderRating `json:"ratings"`
}

// PlaceBid godoc
// @ID          placeBid
// @Summary     Bid on a job
// @Description Places the calling provider's priced offer on an open job.
// @Description Supports idempotency via the Idempotency-Key header.
// @Tags        Bids
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       Idempotency-Key  header  string                    false  "Idempotency key for safe retries"
// @Param       id               path    string                    true   "Job ID (UUID)"  format(uuid)
// @Param       body             body    handlers.PlaceBidRequest  true   "Bid form"
// @Success     201  {object}  domain.Bid
// @Success     200  {object}  domain.Bid  "Replayed"
// @Failure     400  {object}  handlers.ErrorResponse  "Validation failed"
// @Failure     403  {object}  handlers.ErrorResponse  "Providers only"
// @Failure     404  {object}  handlers.ErrorResponse  "Job not found"
// @Failure     409  {object}  handlers.ErrorResponse  "Job is not open"
// @Router      /jobs/{id}/bids [post]
func (h *Handlers) PlaceBid(c *gin.Context) {
	sess, found := session(c)
	if !found {
		return
	}
	ctx := c.Request.Context()

	if id, replay := h.replayedResource(c, sess.UserID); replay {
		if prev, err := repo.GetBid(ctx, h.db, id); err == nil {
			c.Header("Idempotency-Replayed", "true")
			ok(c, http.StatusOK, prev)
			return
		}
	}

	var req PlaceBidRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	bid, err := h.bids.PlaceBid(ctx, sess, c.Param("id"), req.Amount, req.Notes)
	if err != nil {
		failErr(c, err)
		return
	}
	h.remember(c, sess.UserID, bid.ID, http.StatusCreated)
	ok(c, http.StatusCreated, bid)
}

// ListJobBids godoc
// @ID          listJobBids
// @Summary     Bids on a job
// @Description Returns the job's bids in arrival order. Job owner only.
// @Description Supports weak ETag via If-None-Match and may return 304.
// @Tags        Bids
// @Produce     json
// @Security    BearerAuth
// @Param       id             path    string  true   "Job ID (UUID)"  format(uuid)
// @Param       If-None-Match  header  string  false  "Return 304 if ETag matches"
// @Success     200  {object}  handlers.ListBidsResponse
// @Success     304  {string}  string  "Not Modified"
// @Failure     403  {object}  handlers.ErrorResponse
// @Failure     404  {object}  handlers.ErrorResponse
// @Router      /jobs/{id}/bids [get]
func (h *Handlers) ListJobBids(c *gin.Context) {
	sess, found := session(c)
	if !found {
		return
	}
	ctx := c.Request.Context()
	jobID := c.Param("id")

	// The ETag carries the bid count, so only the owner gets one.
	if h.db != nil {
		if job, err := h.jobs.Get(ctx, jobID); err == nil && job.CustomerID == sess.UserID {
			if notModified(c, "bids", jobID, func() (int64, *time.Time, error) {
				return repo.BidsStats(ctx, h.db, jobID)
			}) {
				return
			}
		}
	}

	bids, err := h.bids.BidsForJob(ctx, sess, jobID)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, ListBidsResponse{Bids: bids})
}

// ListMyBids godoc
// @ID          listMyBids
// @Summary     Caller's own bids
// @Tags        Bids
// @Produce     json
// @Security    BearerAuth
// @Success     200  {object}  handlers.ListBidsResponse
// @Failure     403  {object}  handlers.ErrorResponse  "Providers only"
// @Router      /bids/mine [get]
func (h *Handlers) ListMyBids(c *gin.Context) {
	sess, found := session(c)
	if !found {
		return
	}
	bids, err := h.bids.BidsForProvider(c.Request.Context(), sess)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, ListBidsResponse{Bids: bids})
}

// AcceptBid godoc
// @ID          acceptBid
// @Summary     Accept a bid
// @Description Awards the job to the bid and closes bidding. Only one bid per job can be accepted.
// @Tags        Bids
// @Produce     json
// @Security    BearerAuth
// @Param       id  path  string  true  "Bid ID (UUID)"  format(uuid)
// @Success     200  {object}  domain.Bid
// @Failure     403  {object}  handlers.ErrorResponse  "Not the job owner"
// @Failure     404  {object}  handlers.ErrorResponse
// @Failure     409  {object}  handlers.ErrorResponse  "Another bid was already accepted"
// @Router      /bids/{id}/accept [post]
func (h *Handlers) AcceptBid(c *gin.Context) {
	sess, found := session(c)
	if !found {
		return
	}
	bid, err := h.bids.AcceptBid(c.Request.Context(), sess, c.Param("id"))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, bid)
}

// ProviderRatings godoc
// @ID          providerRatings
// @Summary     Ratings for several providers
// @Description Best effort: a provider whose lookup fails comes back with available=false.
// @Tags        Reviews
// @Produce     json
// @Security    BearerAuth
// @Param       ids  query  string  true  "Comma-separated provider IDs"
// @Success     200  {object}  handlers.RatingsResponse
// @Failure     400  {object}  handlers.ErrorResponse
// @Router      /providers/ratings [get]
func (h *Handlers) ProviderRatings(c *gin.Context) {
	ids, within := utils.SplitList(c.Query("ids"), maxRatingIDs)
	if len(ids) == 0 {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "ids query parameter required")
		return
	}
	if !within {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "too many ids")
		return
	}
	ok(c, http.StatusOK, RatingsResponse{Ratings: h.bids.RatingsForProviders(c.Request.Context(), ids)})
}
