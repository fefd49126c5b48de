// Job completion HTTP handlers.
//
//   - POST /jobs/{id}/done    (either party confirms; idempotent per party)
//   - GET  /jobs/{id}/status
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// ConfirmDone godoc
// @ID          confirmDone
// @Summary     Confirm the job is done
// @Description Records the caller's confirmation. Once both the customer and the
// @Description accepted provider confirmed, the job is completed and the customer
// @Description receives a payment reminder.
// @Tags        Completion
// @Produce     json
// @Security    BearerAuth
// @Param       id  path  string  true  "Job ID (UUID)"  format(uuid)
// @Success     200  {object}  services.StatusView
// @Failure     403  {object}  handlers.ErrorResponse  "Not a participant"
// @Failure     404  {object}  handlers.ErrorResponse
// @Failure     409  {object}  handlers.ErrorResponse  "No accepted bid"
// @Router      /jobs/{id}/done [post]
func (h *Handlers) ConfirmDone(c *gin.Context) {
	sess, found := session(c)
	if !found {
		return
	}
	view, err := h.status.ConfirmDone(c.Request.Context(), sess, c.Param("id"))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, view)
}

// JobStatus godoc
// @ID          jobStatus
// @Summary     Completion status of a job
// @Tags        Completion
// @Produce     json
// @Security    BearerAuth
// @Param       id  path  string  true  "Job ID (UUID)"  format(uuid)
// @Success     200  {object}  services.StatusView
// @Failure     403  {object}  handlers.ErrorResponse
// @Failure     409  {object}  handlers.ErrorResponse
// @Router      /jobs/{id}/status [get]
func (h *Handlers) JobStatus(c *gin.Context) {
	sess, found := session(c)
	if !found {
		return
	}
	view, err := h.status.Status(c.Request.Context(), sess, c.Param("id"))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, view)
}
