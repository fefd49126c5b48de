// Message HTTP handlers.
//
//   - POST /jobs/{id}/messages          (customer or accepted provider)
//   - GET  /jobs/{id}/messages          (job thread, paginated, weak ETag)
//   - GET  /conversations/{peerId}      (every message with one peer, all jobs)
//
// The thread is authorized before the ETag is computed, so non-participants
// never learn its size.
package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/sahulathub/sahulat-hub/internal/domain"
	"github.com/sahulathub/sahulat-hub/internal/repo"
)

// SendMessageRequest is the JSON payload for a chat line.
type SendMessageRequest struct {
	Text string `json:"text" example:"I can come at 5pm, is that okay?"`
}

// ListMessagesResponse contains a page of messages and pagination metadata.
type ListMessagesResponse struct {
	Messages   []domain.Message `json:"messages"`
	Pagination Pagination       `json:"pagination"`
}

// SendMessage godoc
// @ID          sendMessage
// @Summary     Send a chat message
// @Description Appends text to the job's thread. Only the job's customer and the provider
// @Description whose bid was accepted may chat; the recipient is the other party.
// @Tags        Messages
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id    path  string                       true  "Job ID (UUID)"  format(uuid)
// @Param       body  body  handlers.SendMessageRequest  true  "Message"
// @Success     201  {object}  domain.Message
// @Failure     400  {object}  handlers.ErrorResponse  "Empty text"
// @Failure     403  {object}  handlers.ErrorResponse  "Not a participant"
// @Failure     409  {object}  handlers.ErrorResponse  "No accepted bid"
// @Router      /jobs/{id}/messages [post]
func (h *Handlers) SendMessage(c *gin.Context) {
	sess, found := session(c)
	if !found {
		return
	}
	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	m, err := h.chat.Send(c.Request.Context(), sess, c.Param("id"), req.Text)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusCreated, m)
}

// ListThread godoc
// @ID          listThread
// @Summary     Job chat thread (paginated)
// @Description Returns the job's messages in ascending time order.
// @Description Supports weak ETag via If-None-Match and may return 304.
// @Tags        Messages
// @Produce     json
// @Security    BearerAuth
// @Param       id             path    string  true   "Job ID (UUID)"  format(uuid)
// @Param       page           query   int     false  "Page number"     minimum(1) default(1)
// @Param       page_size      query   int     false  "Items per page"  minimum(1) maximum(100) default(20)
// @Param       If-None-Match  header  string  false  "Return 304 if ETag matches"
// @Success     200  {object}  handlers.ListMessagesResponse
// @Success     304  {string}  string  "Not Modified"
// @Failure     403  {object}  handlers.ErrorResponse
// @Router      /jobs/{id}/messages [get]
func (h *Handlers) ListThread(c *gin.Context) {
	sess, found := session(c)
	if !found {
		return
	}
	ctx := c.Request.Context()
	jobID := c.Param("id")
	page, pageSize := clampPagination(c)

	items, total, err := h.chat.Thread(ctx, sess, jobID, page, pageSize)
	if err != nil {
		failErr(c, err)
		return
	}
	if h.db != nil && notModified(c, "thread", fmt.Sprintf("%s:%d:%d", jobID, page, pageSize), func() (int64, *time.Time, error) {
		return repo.ThreadStats(ctx, h.db, jobID)
	}) {
		return
	}
	ok(c, http.StatusOK, ListMessagesResponse{Messages: items, Pagination: paginate(page, pageSize, total)})
}

// ListConversation godoc
// @ID          listConversation
// @Summary     Conversation with one user (paginated)
// @Description Every message exchanged with peerId across all jobs, ascending by time.
// @Tags        Messages
// @Produce     json
// @Security    BearerAuth
// @Param       peerId     path   string  true   "Other user's ID"
// @Param       page       query  int     false  "Page number"     minimum(1) default(1)
// @Param       page_size  query  int     false  "Items per page"  minimum(1) maximum(100) default(20)
// @Success     200  {object}  handlers.ListMessagesResponse
// @Failure     400  {object}  handlers.ErrorResponse
// @Router      /conversations/{peerId} [get]
func (h *Handlers) ListConversation(c *gin.Context) {
	sess, found := session(c)
	if !found {
		return
	}
	page, pageSize := clampPagination(c)
	items, total, err := h.chat.Conversation(c.Request.Context(), sess, c.Param("peerId"), page, pageSize)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, ListMessagesResponse{Messages: items, Pagination: paginate(page, pageSize, total)})
}
