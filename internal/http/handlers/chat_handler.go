// Chat session HTTP handlers.
//
// This file exposes REST endpoints for live chat resources:
//   - POST /chat/sessions                (start, idempotent per customer)
//   - GET  /chat/sessions                (list own, paginated)
//   - GET  /chat/sessions/{id}           (fetch one)
//   - POST /chat/sessions/{id}/messages  (send)
//   - GET  /chat/sessions/{id}/messages  (cursor-based incremental sync)
//   - POST /chat/sessions/{id}/read      (advance the read watermark)
//   - POST /chat/sessions/{id}/end       (customer ends own session)
//
// The sync and read endpoints share their implementation with tickets; both
// thread kinds use the same message model underneath.
package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/supportdesk/conversation-engine/internal/auth"
	"github.com/supportdesk/conversation-engine/internal/domain"
)

//
// DTOs
//

// StartChatRequest is the JSON payload for starting a chat session.
type StartChatRequest struct {
	// Subject optionally labels the session; derived from the first message
	// when empty.
	Subject string `json:"subject,omitempty" example:"Billing question"`
	// InitialMessage optionally seeds the conversation.
	InitialMessage string `json:"initial_message,omitempty" example:"Hi, I was double charged this month."`
}

// StartChatResponse wraps the session plus a flag telling the client whether
// an existing active session was returned instead of a new one.
type StartChatResponse struct {
	Session *domain.ChatSession `json:"session"`
	Reused  bool                `json:"reused"`
}

// ListChatSessionsResponse wraps a page of sessions and pagination metadata.
type ListChatSessionsResponse struct {
	Sessions   []domain.ChatSession `json:"sessions"`
	Pagination Pagination           `json:"pagination"`
}

//
// Handlers
//

// StartChat godoc
// @ID          startChat
// @Summary     Start a chat session
// @Description Starts a live chat session for the current customer. At most one active session exists per customer: a duplicate start returns the existing session with reused=true instead of creating another.
// @Tags        Chat
// @Accept      json
// @Produce     json
//
// @Param       X-User-ID  header  string  true  "User ID"  example(cust-42)
// @Param       body       body    handlers.StartChatRequest  true  "Start payload"
//
// @Success     200  {object}  handlers.StartChatResponse  "Existing active session returned"
// @Success     201  {object}  handlers.StartChatResponse  "New session created"
// @Failure     400  {object}  handlers.ErrorResponse  "Validation error"
// @Failure     409  {object}  handlers.ErrorResponse  "Active session exists (reuse disabled)"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /chat/sessions [post]
func (h *Handlers) StartChat(c *gin.Context) {
	id, okID := identity(c)
	if !okID {
		return
	}

	var req StartChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	sess, reused, err := h.chatSvc.Start(c.Request.Context(), id.UserID, id.Name, req.Subject, sanitizeContent(req.InitialMessage))
	if err != nil {
		failErr(c, err)
		return
	}

	status := http.StatusCreated
	if reused {
		status = http.StatusOK
	}
	ok(c, status, StartChatResponse{Session: sess, Reused: reused})
}

// ListChatSessions godoc
// @ID          listChatSessions
// @Summary     List own chat sessions (paginated)
// @Description Returns a page of the customer's chat sessions, newest first.
// @Tags        Chat
// @Produce     json
//
// @Param       X-User-ID  header  string  true  "User ID"        example(cust-42)
// @Param       status     query   string  false "Filter by status"  Enums(active, ended, abandoned)
// @Param       page       query   int     false "Page number"    minimum(1) default(1)
// @Param       page_size  query   int     false "Items per page" minimum(1) maximum(100) default(20)
//
// @Success     200  {object} handlers.ListChatSessionsResponse
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /chat/sessions [get]
func (h *Handlers) ListChatSessions(c *gin.Context) {
	id, okID := identity(c)
	if !okID {
		return
	}
	page, pageSize := clampPagination(c)
	status := domain.ChatStatus(strings.ToLower(c.Query("status")))

	items, total, err := h.chatSvc.ListForCustomer(c.Request.Context(), id.UserID, status, page, pageSize)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, ListChatSessionsResponse{
		Sessions:   items,
		Pagination: newPagination(page, pageSize, total),
	})
}

// GetChatSession godoc
// @ID          getChatSession
// @Summary     Fetch a chat session
// @Description Returns one session. Customers only see sessions they own; a foreign id yields 404, never 403.
// @Tags        Chat
// @Produce     json
//
// @Param       X-User-ID  header  string  true  "User ID"            example(cust-42)
// @Param       id         path    string  true  "Session ID (UUID)"  format(uuid)
//
// @Success     200  {object} domain.ChatSession
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Session not found"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /chat/sessions/{id} [get]
func (h *Handlers) GetChatSession(c *gin.Context) {
	id, okID := identity(c)
	if !okID {
		return
	}
	sessionID := c.Param("id")
	if _, err := uuid.Parse(sessionID); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "session id must be a UUID")
		return
	}

	var (
		sess *domain.ChatSession
		err  error
	)
	if id.IsAdmin() {
		sess, err = h.chatSvc.Get(c.Request.Context(), sessionID)
	} else {
		sess, err = h.chatSvc.GetForCustomer(c.Request.Context(), sessionID, id.UserID)
	}
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, sess)
}

// PostChatMessage godoc
// @ID          postChatMessage
// @Summary     Send a message in a chat session
// @Description Appends a message to an active session and resets its inactivity window. Supports idempotency via the Idempotency-Key header. Terminal sessions reject sends with 409.
// @Tags        Chat
// @Accept      json
// @Produce     json
//
// @Param       X-User-ID        header  string  true  "User ID"  example(cust-42)
// @Param       Idempotency-Key  header  string  false "Idempotency key for safe retries"
// @Param       id               path    string  true  "Session ID (UUID)"  format(uuid)
// @Param       body             body    handlers.PostMessageRequest  true  "Message payload"
//
// @Success     201  {object}  handlers.PostMessageResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Validation error"
// @Failure     404  {object}  handlers.ErrorResponse  "Session not found"
// @Failure     409  {object}  handlers.ErrorResponse  "Session ended"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /chat/sessions/{id}/messages [post]
func (h *Handlers) PostChatMessage(c *gin.Context) {
	id, okID := identity(c)
	if !okID {
		return
	}
	sessionID := c.Param("id")
	if _, err := uuid.Parse(sessionID); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "session id must be a UUID")
		return
	}

	var req PostMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "content required")
		return
	}
	content := sanitizeContent(req.Content)
	if content == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "content required")
		return
	}
	// Chat has no internal notes; the flag only exists on tickets.
	if req.IsInternal {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "chat messages cannot be internal")
		return
	}

	if err := h.gate.Can(c.Request.Context(), id, auth.ActionSend, domain.ThreadChat, sessionID); err != nil {
		failErr(c, err)
		return
	}
	if h.replayMessage(c, id.UserID, sessionID) {
		return
	}

	m, err := h.chatSvc.SendMessage(c.Request.Context(), sessionID, senderOf(id), senderIDOf(id), id.Name, content)
	if err != nil {
		failErr(c, err)
		return
	}
	h.storeIdempotency(c, id.UserID, sessionID, m.ID)
	ok(c, http.StatusCreated, PostMessageResponse{Message: m})
}

// SyncChatMessages godoc
// @ID          syncChatMessages
// @Summary     Poll a chat session for new messages
// @Description Returns messages with sequence greater than the cursor, the cursor to echo back, the session status, and the caller's unread count. Pure read; polling never mutates state, so the abandonment window is unaffected.
// @Tags        Chat
// @Produce     json
//
// @Param       X-User-ID      header  string  true  "User ID"  example(cust-42)
// @Param       If-None-Match  header  string  false "Return 304 if ETag matches"
// @Param       id             path    string  true  "Session ID (UUID)"  format(uuid)
// @Param       cursor         query   int     false "Last seen sequence number"  minimum(0) default(0)
// @Param       limit          query   int     false "Max messages returned"      minimum(1) maximum(200)
//
// @Success     200  {object} services.SyncResponse
// @Header      200  {string} ETag "Weak ETag for current thread state"
// @Success     304  {string} string "Not Modified"
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Session not found"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /chat/sessions/{id}/messages [get]
func (h *Handlers) SyncChatMessages(c *gin.Context) {
	h.syncThread(c, domain.ThreadChat)
}

// MarkChatRead godoc
// @ID          markChatRead
// @Summary     Advance the chat read watermark
// @Description Marks messages up to the given sequence as read for the caller. Monotonic; a lower value than the current watermark is a no-op.
// @Tags        Chat
// @Accept      json
// @Produce     json
//
// @Param       X-User-ID  header  string  true  "User ID"            example(cust-42)
// @Param       id         path    string  true  "Session ID (UUID)"  format(uuid)
// @Param       body       body    handlers.MarkReadRequest  true  "Watermark payload"
//
// @Success     204  {string} string "No Content"
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Session not found"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /chat/sessions/{id}/read [post]
func (h *Handlers) MarkChatRead(c *gin.Context) {
	h.markRead(c, domain.ThreadChat)
}

// EndChat godoc
// @ID          endChat
// @Summary     End a chat session
// @Description Ends the caller's own session. Ending an already terminal session yields 409. The transition is first-wins against a concurrent sweep or admin end.
// @Tags        Chat
// @Produce     json
//
// @Param       X-User-ID  header  string  true  "User ID"            example(cust-42)
// @Param       id         path    string  true  "Session ID (UUID)"  format(uuid)
//
// @Success     200  {object} domain.ChatSession
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Session not found"
// @Failure     409  {object} handlers.ErrorResponse "Already ended"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /chat/sessions/{id}/end [post]
func (h *Handlers) EndChat(c *gin.Context) {
	id, okID := identity(c)
	if !okID {
		return
	}
	sessionID := c.Param("id")
	if _, err := uuid.Parse(sessionID); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "session id must be a UUID")
		return
	}

	if err := h.gate.Can(c.Request.Context(), id, auth.ActionSend, domain.ThreadChat, sessionID); err != nil {
		failErr(c, err)
		return
	}

	sess, err := h.chatSvc.End(c.Request.Context(), sessionID, domain.ChatEnded)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, sess)
}
