// Admin HTTP handlers.
//
// This file exposes the admin surface, mounted behind the RequireAdmin
// middleware:
//   - GET   /admin/tickets                    (cross-customer listing with filters)
//   - PATCH /admin/tickets/{id}               (status, priority, assignment, notes)
//   - POST  /admin/tickets/{id}/assign        (assign to an admin)
//   - POST  /admin/chat/sessions/{id}/assign  (pair an admin with a session)
//   - POST  /admin/chat/sessions/{id}/end     (end any session)
//   - GET   /admin/analytics                  (aggregate counters per time range)
//
// Status changes run through the ticket state machine; a rejected transition
// returns 409 invalid_state_transition with the from/to pair in details.
package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/supportdesk/conversation-engine/internal/domain"
	"github.com/supportdesk/conversation-engine/internal/repo"
	"github.com/supportdesk/conversation-engine/internal/services"
)

//
// DTOs
//

// PatchTicketRequest is the JSON payload for the admin ticket update. Absent
// fields are left untouched.
type PatchTicketRequest struct {
	Status          *string `json:"status,omitempty" example:"in_progress"`
	Priority        *string `json:"priority,omitempty" example:"urgent"`
	CategoryID      *string `json:"category_id,omitempty"`
	AssignedAdminID *string `json:"assigned_admin_id,omitempty" example:"admin-7"`
	InternalNotes   *string `json:"internal_notes,omitempty"`
}

// AssignRequest is the JSON payload for assignment endpoints. An empty
// AdminID assigns the resource to the calling admin.
type AssignRequest struct {
	AdminID string `json:"admin_id,omitempty" example:"admin-7"`
}

// AnalyticsResponse aggregates conversation counters for a time range.
type AnalyticsResponse struct {
	Range             string                        `json:"range"`
	Since             time.Time                     `json:"since"`
	Until             time.Time                     `json:"until"`
	TicketsByStatus   map[domain.TicketStatus]int64 `json:"tickets_by_status"`
	TicketsByPriority map[domain.Priority]int64     `json:"tickets_by_priority"`
	ChatsByStatus     map[domain.ChatStatus]int64   `json:"chats_by_status"`
	MessageVolume     map[domain.ThreadType]int64   `json:"message_volume"`
}

//
// Handlers
//

// AdminListTickets godoc
// @ID          adminListTickets
// @Summary     List tickets across all customers
// @Description Returns a filtered, paginated ticket listing. Search matches subject, description, and ticket number, case-insensitive.
// @Tags        Admin
// @Produce     json
//
// @Param       X-User-ID    header  string  true  "Admin user ID"  example(admin-7)
// @Param       X-User-Role  header  string  true  "Must be admin"  example(admin)
// @Param       status       query   string  false "Filter by status"    Enums(open, in_progress, waiting_for_customer, resolved, closed)
// @Param       priority     query   string  false "Filter by priority"  Enums(low, medium, high, urgent)
// @Param       assigned_to  query   string  false "Filter by assigned admin id"
// @Param       search       query   string  false "Substring search"
// @Param       page         query   int     false "Page number"    minimum(1) default(1)
// @Param       page_size    query   int     false "Items per page" minimum(1) maximum(100) default(20)
//
// @Success     200  {object} handlers.ListTicketsResponse
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     403  {object} handlers.ErrorResponse "Admin access required"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /admin/tickets [get]
func (h *Handlers) AdminListTickets(c *gin.Context) {
	page, pageSize := clampPagination(c)
	f := repo.TicketFilter{
		Status:          domain.TicketStatus(strings.ToLower(c.Query("status"))),
		Priority:        domain.Priority(strings.ToLower(c.Query("priority"))),
		AssignedAdminID: strings.TrimSpace(c.Query("assigned_to")),
		Search:          strings.TrimSpace(c.Query("search")),
	}

	items, total, err := h.ticketSvc.ListAll(c.Request.Context(), f, page, pageSize)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, ListTicketsResponse{
		Tickets:    items,
		Pagination: newPagination(page, pageSize, total),
	})
}

// AdminPatchTicket godoc
// @ID          adminPatchTicket
// @Summary     Update a ticket
// @Description Applies a partial update. Status changes must follow the lifecycle (open, in_progress, waiting_for_customer, resolved, closed); anything else yields 409 with the rejected from/to pair.
// @Tags        Admin
// @Accept      json
// @Produce     json
//
// @Param       X-User-ID    header  string  true  "Admin user ID"  example(admin-7)
// @Param       X-User-Role  header  string  true  "Must be admin"  example(admin)
// @Param       id           path    string  true  "Ticket ID (UUID)"  format(uuid)
// @Param       body         body    handlers.PatchTicketRequest  true  "Patch payload"
//
// @Success     200  {object} domain.Ticket
// @Failure     400  {object} handlers.ErrorResponse "Validation error"
// @Failure     404  {object} handlers.ErrorResponse "Ticket not found"
// @Failure     409  {object} handlers.ErrorResponse "Invalid state transition"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /admin/tickets/{id} [patch]
func (h *Handlers) AdminPatchTicket(c *gin.Context) {
	ticketID := c.Param("id")
	if _, err := uuid.Parse(ticketID); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "ticket id must be a UUID")
		return
	}

	var req PatchTicketRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	patch := services.TicketPatch{
		CategoryID:      req.CategoryID,
		AssignedAdminID: req.AssignedAdminID,
		InternalNotes:   req.InternalNotes,
	}
	if req.Status != nil {
		st := domain.TicketStatus(strings.ToLower(strings.TrimSpace(*req.Status)))
		patch.Status = &st
	}
	if req.Priority != nil {
		pr := domain.Priority(strings.ToLower(strings.TrimSpace(*req.Priority)))
		patch.Priority = &pr
	}

	t, err := h.ticketSvc.Update(c.Request.Context(), ticketID, patch)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, t)
}

// AdminAssignTicket godoc
// @ID          adminAssignTicket
// @Summary     Assign a ticket to an admin
// @Description Assigns the ticket. When admin_id is omitted the ticket is assigned to the calling admin. First assignment stamps assigned_at.
// @Tags        Admin
// @Accept      json
// @Produce     json
//
// @Param       X-User-ID    header  string  true  "Admin user ID"  example(admin-7)
// @Param       X-User-Role  header  string  true  "Must be admin"  example(admin)
// @Param       id           path    string  true  "Ticket ID (UUID)"  format(uuid)
// @Param       body         body    handlers.AssignRequest  true  "Assignment payload"
//
// @Success     200  {object} domain.Ticket
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Ticket not found"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /admin/tickets/{id}/assign [post]
func (h *Handlers) AdminAssignTicket(c *gin.Context) {
	id, okID := identity(c)
	if !okID {
		return
	}
	ticketID := c.Param("id")
	if _, err := uuid.Parse(ticketID); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "ticket id must be a UUID")
		return
	}

	var req AssignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	adminID := strings.TrimSpace(req.AdminID)
	if adminID == "" {
		adminID = id.UserID
	}

	t, err := h.ticketSvc.Assign(c.Request.Context(), ticketID, adminID)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, t)
}

// AdminAssignChat godoc
// @ID          adminAssignChat
// @Summary     Pair an admin with a chat session
// @Description Attaches an admin to an active session. When admin_id is omitted the calling admin is paired. Terminal sessions yield 409.
// @Tags        Admin
// @Accept      json
// @Produce     json
//
// @Param       X-User-ID    header  string  true  "Admin user ID"  example(admin-7)
// @Param       X-User-Role  header  string  true  "Must be admin"  example(admin)
// @Param       id           path    string  true  "Session ID (UUID)"  format(uuid)
// @Param       body         body    handlers.AssignRequest  true  "Assignment payload"
//
// @Success     204  {string} string "No Content"
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Session not found"
// @Failure     409  {object} handlers.ErrorResponse "Session ended"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /admin/chat/sessions/{id}/assign [post]
func (h *Handlers) AdminAssignChat(c *gin.Context) {
	id, okID := identity(c)
	if !okID {
		return
	}
	sessionID := c.Param("id")
	if _, err := uuid.Parse(sessionID); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "session id must be a UUID")
		return
	}

	var req AssignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	adminID := strings.TrimSpace(req.AdminID)
	if adminID == "" {
		adminID = id.UserID
	}

	if err := h.chatSvc.AssignAdmin(c.Request.Context(), sessionID, adminID); err != nil {
		failErr(c, err)
		return
	}
	noContent(c)
}

// AdminEndChat godoc
// @ID          adminEndChat
// @Summary     End any chat session
// @Description Ends the session regardless of owner. First-wins against a concurrent customer end or sweep; the loser yields 409.
// @Tags        Admin
// @Produce     json
//
// @Param       X-User-ID    header  string  true  "Admin user ID"  example(admin-7)
// @Param       X-User-Role  header  string  true  "Must be admin"  example(admin)
// @Param       id           path    string  true  "Session ID (UUID)"  format(uuid)
//
// @Success     200  {object} domain.ChatSession
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Session not found"
// @Failure     409  {object} handlers.ErrorResponse "Already ended"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /admin/chat/sessions/{id}/end [post]
func (h *Handlers) AdminEndChat(c *gin.Context) {
	sessionID := c.Param("id")
	if _, err := uuid.Parse(sessionID); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "session id must be a UUID")
		return
	}

	sess, err := h.chatSvc.End(c.Request.Context(), sessionID, domain.ChatEnded)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, sess)
}

// AdminAnalytics godoc
// @ID          adminAnalytics
// @Summary     Conversation analytics
// @Description Returns ticket, chat, and message counters for a trailing time range.
// @Tags        Admin
// @Produce     json
//
// @Param       X-User-ID    header  string  true  "Admin user ID"  example(admin-7)
// @Param       X-User-Role  header  string  true  "Must be admin"  example(admin)
// @Param       range        query   string  false "Trailing window"  Enums(24h, 7d, 30d, 90d) default(7d)
//
// @Success     200  {object} handlers.AnalyticsResponse
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /admin/analytics [get]
func (h *Handlers) AdminAnalytics(c *gin.Context) {
	rng := strings.ToLower(strings.TrimSpace(c.DefaultQuery("range", "7d")))
	var span time.Duration
	switch rng {
	case "24h":
		span = 24 * time.Hour
	case "7d":
		span = 7 * 24 * time.Hour
	case "30d":
		span = 30 * 24 * time.Hour
	case "90d":
		span = 90 * 24 * time.Hour
	default:
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "range must be one of 24h, 7d, 30d, 90d")
		return
	}

	ctx := c.Request.Context()
	until := time.Now().UTC()
	since := until.Add(-span)

	byStatus, err := repo.TicketCountsByStatus(ctx, h.db, since, until)
	if err != nil {
		failErr(c, err)
		return
	}
	byPriority, err := repo.TicketCountsByPriority(ctx, h.db, since, until)
	if err != nil {
		failErr(c, err)
		return
	}
	chats, err := repo.ChatCountsByStatus(ctx, h.db, since, until)
	if err != nil {
		failErr(c, err)
		return
	}
	volume, err := repo.MessageVolume(ctx, h.db, since, until)
	if err != nil {
		failErr(c, err)
		return
	}

	ok(c, http.StatusOK, AnalyticsResponse{
		Range:             rng,
		Since:             since,
		Until:             until,
		TicketsByStatus:   byStatus,
		TicketsByPriority: byPriority,
		ChatsByStatus:     chats,
		MessageVolume:     volume,
	})
}
