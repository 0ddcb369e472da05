// Ticket HTTP handlers.
//
// This file exposes REST endpoints for support ticket resources:
//   - POST /tickets                    (create)
//   - GET  /tickets                    (list own, paginated)
//   - GET  /tickets/{id}               (fetch one)
//   - POST /tickets/{id}/messages      (send a message on the thread)
//   - GET  /tickets/{id}/messages      (cursor-based incremental sync)
//   - POST /tickets/{id}/read          (advance the read watermark)
//
// Handlers are transport-thin: they validate input, call application
// services, and translate results into HTTP responses. Message sends support
// idempotent retries via the Idempotency-Key header, and the sync endpoint
// supports weak ETags so unchanged polls can return 304.
package handlers

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/supportdesk/conversation-engine/internal/auth"
	"github.com/supportdesk/conversation-engine/internal/domain"
	"github.com/supportdesk/conversation-engine/internal/http/middleware"
	"github.com/supportdesk/conversation-engine/internal/repo"
	"github.com/supportdesk/conversation-engine/internal/services"
	"github.com/supportdesk/conversation-engine/internal/utils"
)

//
// Service contracts (context-aware)
//

// TicketService defines ticket lifecycle operations consumed by HTTP
// handlers. Implementations must be safe for concurrent use and honor the
// provided context.
type TicketService interface {
	// Create opens a ticket for the customer.
	Create(ctx context.Context, customerID string, in services.CreateTicketInput) (*domain.Ticket, error)
	// Get returns a ticket without ownership scoping (admin paths).
	Get(ctx context.Context, ticketID string) (*domain.Ticket, error)
	// GetForCustomer returns a ticket owned by the customer.
	GetForCustomer(ctx context.Context, ticketID, customerID string) (*domain.Ticket, error)
	// ListForCustomer returns a page of the customer's tickets and the total.
	ListForCustomer(ctx context.Context, customerID string, status domain.TicketStatus, page, pageSize int) ([]domain.Ticket, int64, error)
	// ListAll returns a filtered page across all customers (admin paths).
	ListAll(ctx context.Context, f repo.TicketFilter, page, pageSize int) ([]domain.Ticket, int64, error)
	// Update applies an admin patch, enforcing the status state machine.
	Update(ctx context.Context, ticketID string, patch services.TicketPatch) (*domain.Ticket, error)
	// Assign assigns the ticket to an admin.
	Assign(ctx context.Context, ticketID, adminID string) (*domain.Ticket, error)
	// SendMessage appends a message to the ticket thread.
	SendMessage(ctx context.Context, ticketID string, senderType domain.SenderType, senderID *string, senderName, content string, isInternal bool, attachments []domain.Attachment) (*domain.Message, error)
}

// ChatService defines chat session lifecycle operations consumed by HTTP
// handlers.
type ChatService interface {
	// Start begins a session for the customer; reused is true when an
	// existing active session was returned instead of a new one.
	Start(ctx context.Context, customerID, customerName, subject, initialMessage string) (session *domain.ChatSession, reused bool, err error)
	// Get returns a session without ownership scoping (admin paths).
	Get(ctx context.Context, sessionID string) (*domain.ChatSession, error)
	// GetForCustomer returns a session owned by the customer.
	GetForCustomer(ctx context.Context, sessionID, customerID string) (*domain.ChatSession, error)
	// ListForCustomer returns a page of the customer's sessions and the total.
	ListForCustomer(ctx context.Context, customerID string, status domain.ChatStatus, page, pageSize int) ([]domain.ChatSession, int64, error)
	// End transitions a session to a terminal status.
	End(ctx context.Context, sessionID string, reason domain.ChatStatus) (*domain.ChatSession, error)
	// AssignAdmin pairs an admin with an active session.
	AssignAdmin(ctx context.Context, sessionID, adminID string) error
	// SendMessage appends a message to an active session.
	SendMessage(ctx context.Context, sessionID string, senderType domain.SenderType, senderID *string, senderName, content string) (*domain.Message, error)
}

// SyncService defines the polling protocol operations consumed by HTTP
// handlers.
type SyncService interface {
	// ListSince returns messages after the cursor with the next cursor and
	// the viewer's unread count.
	ListSince(ctx context.Context, viewer services.Viewer, threadType domain.ThreadType, threadID string, cursor int64, limit int) (*services.SyncResponse, error)
	// MarkRead advances the viewer's read watermark.
	MarkRead(ctx context.Context, viewer services.Viewer, threadID string, uptoSeq int64) error
	// UnreadCount returns the viewer's unread count for the thread.
	UnreadCount(ctx context.Context, viewer services.Viewer, threadID string) (int64, error)
}

//
// Handler wiring
//

// Handlers groups HTTP endpoints for tickets, chat sessions, sync, and the
// admin surface. It depends on abstract service interfaces to keep transport
// concerns separate from business logic.
type Handlers struct {
	ticketSvc TicketService
	chatSvc   ChatService
	syncSvc   SyncService
	gate      auth.Gate

	// db powers the handler-level extras that bypass services on purpose:
	// idempotency replay lookups and ETag pre-checks.
	db      *gorm.DB
	idemTTL time.Duration
}

// New constructs a Handlers instance bound to the given services. The db and
// ttl enable idempotent message sends; pass a zero ttl to default to 24h.
func New(ticketSvc TicketService, chatSvc ChatService, syncSvc SyncService, gate auth.Gate, db *gorm.DB, idemTTL time.Duration) *Handlers {
	if idemTTL <= 0 {
		idemTTL = 24 * time.Hour
	}
	return &Handlers{
		ticketSvc: ticketSvc,
		chatSvc:   chatSvc,
		syncSvc:   syncSvc,
		gate:      gate,
		db:        db,
		idemTTL:   idemTTL,
	}
}

// identity returns the authenticated caller, or aborts with 401 when absent.
// The bool result reports whether processing may continue.
func identity(c *gin.Context) (auth.Identity, bool) {
	id, ok := middleware.IdentityFrom(c)
	if !ok {
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "authentication required")
		return auth.Identity{}, false
	}
	return id, true
}

// viewerOf adapts an identity to the sync protocol's viewer.
func viewerOf(id auth.Identity) services.Viewer {
	return services.Viewer{UserID: id.UserID, Role: id.Role}
}

// senderOf maps the caller's role to the message sender type.
func senderOf(id auth.Identity) domain.SenderType {
	if id.IsAdmin() {
		return domain.SenderAdmin
	}
	return domain.SenderCustomer
}

//
// DTOs
//

// CreateTicketRequest is the JSON payload for opening a ticket.
type CreateTicketRequest struct {
	// Subject is the one-line summary (1-255 chars).
	Subject string `json:"subject" binding:"required,min=1,max=255" example:"Cannot log in"`
	// Description is the full problem statement.
	Description string `json:"description" binding:"required,min=1" example:"Password reset emails never arrive."`
	// CategoryID optionally files the ticket under a category.
	CategoryID *string `json:"category_id,omitempty"`
	// Priority defaults to medium when omitted.
	Priority string `json:"priority" example:"high"`
}

// PostMessageRequest is the JSON payload for sending a message on a thread.
type PostMessageRequest struct {
	// Content is the message body. It must be non-empty.
	Content string `json:"content" binding:"required,min=1" example:"I tried again this morning, same error."`
	// IsInternal marks an admin-only note; rejected for customers.
	IsInternal bool `json:"is_internal,omitempty"`
	// Attachments carries optional file metadata captured client-side.
	Attachments []domain.Attachment `json:"attachments,omitempty"`
}

// PostMessageResponse is the JSON envelope for a newly appended message.
type PostMessageResponse struct {
	Message *domain.Message `json:"message"`
}

// MarkReadRequest is the JSON payload for advancing the read watermark.
type MarkReadRequest struct {
	// UpToSeq is the highest sequence number the client has rendered.
	UpToSeq int64 `json:"up_to_seq" binding:"required,min=1" example:"42"`
}

// ListTicketsResponse wraps a page of tickets and pagination information.
type ListTicketsResponse struct {
	Tickets    []domain.Ticket `json:"tickets"`
	Pagination Pagination      `json:"pagination"`
}

//
// Helpers
//

// clampPagination parses and bounds page and page_size query params.
func clampPagination(c *gin.Context) (page, pageSize int) {
	const (
		defaultPage     = 1
		defaultPageSize = 20
		maxPageSize     = 100
	)
	page = utils.AtoiDefault(c.Query("page"), defaultPage)
	if page < 1 {
		page = 1
	}
	pageSize = utils.AtoiDefault(c.Query("page_size"), defaultPageSize)
	if pageSize < 1 {
		pageSize = 1
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return
}

// nlCollapseRE collapses runs of 3+ newlines to two, preserving paragraphs.
var nlCollapseRE = regexp.MustCompile(`\n{3,}`)

// sanitizeContent normalizes message text: CRLF/CR to LF, runs of 3+ LFs to
// exactly two, surrounding whitespace trimmed.
func sanitizeContent(raw string) string {
	s := strings.ReplaceAll(raw, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = nlCollapseRE.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// senderIDOf returns a pointer to the identity's user id, for the message
// sender column.
func senderIDOf(id auth.Identity) *string {
	uid := id.UserID
	return &uid
}

// replayMessage serves a previously stored send for (user, thread, key).
// Returns true when the response has been written.
func (h *Handlers) replayMessage(c *gin.Context, userID, threadID string) bool {
	key, okKey := middleware.GetIdempotencyKey(c)
	if !okKey || h.db == nil {
		return false
	}
	rec, err := repo.GetIdempotency(c.Request.Context(), h.db, userID, threadID, key, time.Now().UTC())
	if err != nil || rec == nil {
		return false
	}
	prev, err := repo.GetMessage(c.Request.Context(), h.db, rec.MessageID)
	if err != nil {
		return false
	}
	c.Header("Idempotency-Replayed", "true")
	ok(c, http.StatusCreated, PostMessageResponse{Message: prev})
	return true
}

// storeIdempotency records a completed send for later replay. Best effort.
func (h *Handlers) storeIdempotency(c *gin.Context, userID, threadID, messageID string) {
	key, okKey := middleware.GetIdempotencyKey(c)
	if !okKey || h.db == nil {
		return
	}
	_, _ = repo.CreateIdempotency(c.Request.Context(), h.db, userID, threadID, key, messageID, http.StatusCreated, h.idemTTL)
}

//
// Handlers
//

// CreateTicket godoc
// @ID          createTicket
// @Summary     Open a support ticket
// @Description Creates a ticket for the current customer and returns the ticket resource.
// @Tags        Tickets
// @Accept      json
// @Produce     json
//
// @Param       X-User-ID  header  string  true  "User ID"  example(cust-42)
// @Param       body       body    handlers.CreateTicketRequest  true  "Create ticket payload"
//
// @Success     201  {object}  domain.Ticket
// @Failure     400  {object}  handlers.ErrorResponse  "Validation error"
// @Failure     401  {object}  handlers.ErrorResponse  "Unauthorized"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /tickets [post]
func (h *Handlers) CreateTicket(c *gin.Context) {
	id, okID := identity(c)
	if !okID {
		return
	}

	var req CreateTicketRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	t, err := h.ticketSvc.Create(c.Request.Context(), id.UserID, services.CreateTicketInput{
		Subject:     req.Subject,
		Description: sanitizeContent(req.Description),
		CategoryID:  req.CategoryID,
		Priority:    domain.Priority(strings.ToLower(strings.TrimSpace(req.Priority))),
	})
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusCreated, t)
}

// ListTickets godoc
// @ID          listTickets
// @Summary     List own tickets (paginated)
// @Description Returns a page of the customer's tickets, newest first. Admins see their own customer view here; the admin listing lives under /admin/tickets.
// @Tags        Tickets
// @Produce     json
//
// @Param       X-User-ID  header  string  true  "User ID"        example(cust-42)
// @Param       status     query   string  false "Filter by status"  Enums(open, in_progress, waiting_for_customer, resolved, closed)
// @Param       page       query   int     false "Page number"    minimum(1) default(1)
// @Param       page_size  query   int     false "Items per page" minimum(1) maximum(100) default(20)
//
// @Success     200  {object} handlers.ListTicketsResponse
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     401  {object} handlers.ErrorResponse "Unauthorized"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /tickets [get]
func (h *Handlers) ListTickets(c *gin.Context) {
	id, okID := identity(c)
	if !okID {
		return
	}
	page, pageSize := clampPagination(c)
	status := domain.TicketStatus(strings.ToLower(c.Query("status")))

	items, total, err := h.ticketSvc.ListForCustomer(c.Request.Context(), id.UserID, status, page, pageSize)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, ListTicketsResponse{
		Tickets:    items,
		Pagination: newPagination(page, pageSize, total),
	})
}

// GetTicket godoc
// @ID          getTicket
// @Summary     Fetch a ticket
// @Description Returns one ticket. Customers only see tickets they own; a foreign id yields 404, never 403.
// @Tags        Tickets
// @Produce     json
//
// @Param       X-User-ID  header  string  true  "User ID"        example(cust-42)
// @Param       id         path    string  true  "Ticket ID (UUID)"  format(uuid)
//
// @Success     200  {object} domain.Ticket
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Ticket not found"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /tickets/{id} [get]
func (h *Handlers) GetTicket(c *gin.Context) {
	id, okID := identity(c)
	if !okID {
		return
	}
	ticketID := c.Param("id")
	if _, err := uuid.Parse(ticketID); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "ticket id must be a UUID")
		return
	}

	var (
		t   *domain.Ticket
		err error
	)
	if id.IsAdmin() {
		t, err = h.ticketSvc.Get(c.Request.Context(), ticketID)
	} else {
		t, err = h.ticketSvc.GetForCustomer(c.Request.Context(), ticketID, id.UserID)
	}
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, t)
}

// PostTicketMessage godoc
// @ID          postTicketMessage
// @Summary     Send a message on a ticket
// @Description Appends a message to the ticket thread. Supports idempotency via the Idempotency-Key header (same key, same stored message). A customer reply on a waiting_for_customer ticket moves it back to in_progress.
// @Tags        Tickets
// @Accept      json
// @Produce     json
//
// @Param       X-User-ID        header  string  true  "User ID"  example(cust-42)
// @Param       Idempotency-Key  header  string  false "Idempotency key for safe retries"
// @Param       id               path    string  true  "Ticket ID (UUID)"  format(uuid)
// @Param       body             body    handlers.PostMessageRequest  true  "Message payload"
//
// @Success     201  {object}  handlers.PostMessageResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Validation error"
// @Failure     403  {object}  handlers.ErrorResponse  "Internal flag rejected"
// @Failure     404  {object}  handlers.ErrorResponse  "Ticket not found"
// @Failure     409  {object}  handlers.ErrorResponse  "Ticket closed"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /tickets/{id}/messages [post]
func (h *Handlers) PostTicketMessage(c *gin.Context) {
	id, okID := identity(c)
	if !okID {
		return
	}
	ticketID := c.Param("id")
	if _, err := uuid.Parse(ticketID); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "ticket id must be a UUID")
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

	if err := h.gate.Can(c.Request.Context(), id, auth.ActionSend, domain.ThreadTicket, ticketID); err != nil {
		failErr(c, err)
		return
	}
	if h.replayMessage(c, id.UserID, ticketID) {
		return
	}

	m, err := h.ticketSvc.SendMessage(c.Request.Context(), ticketID, senderOf(id), senderIDOf(id), id.Name, content, req.IsInternal, req.Attachments)
	if err != nil {
		failErr(c, err)
		return
	}
	h.storeIdempotency(c, id.UserID, ticketID, m.ID)
	ok(c, http.StatusCreated, PostMessageResponse{Message: m})
}

// SyncTicketMessages godoc
// @ID          syncTicketMessages
// @Summary     Poll a ticket thread for new messages
// @Description Returns messages with sequence greater than the cursor, the cursor to echo back, and the caller's unread count. Pure read; a stale cursor is always safe. Supports weak ETags for unchanged polls.
// @Tags        Tickets
// @Produce     json
//
// @Param       X-User-ID      header  string  true  "User ID"  example(cust-42)
// @Param       If-None-Match  header  string  false "Return 304 if ETag matches"
// @Param       id             path    string  true  "Ticket ID (UUID)"  format(uuid)
// @Param       cursor         query   int     false "Last seen sequence number"  minimum(0) default(0)
// @Param       limit          query   int     false "Max messages returned"      minimum(1) maximum(200)
//
// @Success     200  {object} services.SyncResponse
// @Header      200  {string} ETag "Weak ETag for current thread state"
// @Success     304  {string} string "Not Modified"
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Ticket not found"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /tickets/{id}/messages [get]
func (h *Handlers) SyncTicketMessages(c *gin.Context) {
	h.syncThread(c, domain.ThreadTicket)
}

// MarkTicketRead godoc
// @ID          markTicketRead
// @Summary     Advance the ticket read watermark
// @Description Marks messages up to the given sequence as read for the caller. Monotonic; a lower value than the current watermark is a no-op.
// @Tags        Tickets
// @Accept      json
// @Produce     json
//
// @Param       X-User-ID  header  string  true  "User ID"  example(cust-42)
// @Param       id         path    string  true  "Ticket ID (UUID)"  format(uuid)
// @Param       body       body    handlers.MarkReadRequest  true  "Watermark payload"
//
// @Success     204  {string} string "No Content"
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Ticket not found"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /tickets/{id}/read [post]
func (h *Handlers) MarkTicketRead(c *gin.Context) {
	h.markRead(c, domain.ThreadTicket)
}

//
// Shared thread plumbing (tickets and chat use the same message model)
//

// syncThread implements the poll endpoint for either thread kind.
func (h *Handlers) syncThread(c *gin.Context, threadType domain.ThreadType) {
	id, okID := identity(c)
	if !okID {
		return
	}
	threadID := c.Param("id")
	if _, err := uuid.Parse(threadID); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "thread id must be a UUID")
		return
	}

	if err := h.gate.Can(c.Request.Context(), id, auth.ActionRead, threadType, threadID); err != nil {
		failErr(c, err)
		return
	}

	// ETag pre-check (best effort). The tag folds in the viewer so customer
	// and admin views of the same thread never share a cache entry, and
	// customer tags are computed from visible rows only.
	if h.db != nil {
		count, maxSeq, err := repo.ThreadStats(c.Request.Context(), h.db, threadID, id.Role == domain.RoleAdmin)
		if err == nil {
			etag := fmt.Sprintf(`W/"%s:%s:%s:%d:%d"`, threadType, threadID, id.UserID, count, maxSeq)
			c.Header("ETag", etag)
			if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
				c.Status(http.StatusNotModified)
				return
			}
		}
	}

	cursor := utils.ParseInt64Default(c.Query("cursor"), 0)
	limit := utils.AtoiDefault(c.Query("limit"), 0)

	resp, err := h.syncSvc.ListSince(c.Request.Context(), viewerOf(id), threadType, threadID, cursor, limit)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, resp)
}

// markRead implements the watermark endpoint for either thread kind.
func (h *Handlers) markRead(c *gin.Context, threadType domain.ThreadType) {
	id, okID := identity(c)
	if !okID {
		return
	}
	threadID := c.Param("id")
	if _, err := uuid.Parse(threadID); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "thread id must be a UUID")
		return
	}

	var req MarkReadRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.UpToSeq < 1 {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "up_to_seq must be >= 1")
		return
	}

	if err := h.gate.Can(c.Request.Context(), id, auth.ActionRead, threadType, threadID); err != nil {
		failErr(c, err)
		return
	}
	if err := h.syncSvc.MarkRead(c.Request.Context(), viewerOf(id), threadID, req.UpToSeq); err != nil {
		failErr(c, err)
		return
	}
	noContent(c)
}
