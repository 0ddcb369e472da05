// This file implements the TicketService, which owns the ticket lifecycle:
// creation with a human-readable ticket number, the status state machine,
// assignment and priority/category metadata, and message sends on ticket
// threads. Predictable failures are returned as service-level errors
// (ErrTicketNotFound, ErrThreadClosed, StateTransitionError, ValidationError)
// so handlers can map them to HTTP results consistently.
//
// Observability: public methods are OpenTelemetry-instrumented; spans include
// ticket and caller identifiers.
package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/supportdesk/conversation-engine/internal/domain"
	"github.com/supportdesk/conversation-engine/internal/events"
	"github.com/supportdesk/conversation-engine/internal/repo"
)

// TicketService coordinates ticket persistence, the status state machine,
// and the ticket-side of the shared message log.
type TicketService struct {
	DB       *gorm.DB
	Producer events.Producer

	// MaxContentRunes caps message content length; 0 disables the cap.
	MaxContentRunes int
	// MaxSubjectRunes caps ticket subjects by rune length.
	MaxSubjectRunes int
}

// NewTicketService constructs a TicketService with the default limits.
func NewTicketService(db *gorm.DB, producer events.Producer) *TicketService {
	return &TicketService{
		DB:              db,
		Producer:        producer,
		MaxContentRunes: 4000,
		MaxSubjectRunes: 255,
	}
}

// CreateTicketInput carries the customer-supplied fields for a new ticket.
type CreateTicketInput struct {
	Subject     string
	Description string
	CategoryID  *string
	Priority    domain.Priority
}

// TicketPatch is the admin-facing update set. Nil pointers leave the field
// untouched; status changes are validated against the state machine.
type TicketPatch struct {
	Status          *domain.TicketStatus
	Priority        *domain.Priority
	CategoryID      *string
	AssignedAdminID *string
	InternalNotes   *string
}

// Create validates input, persists the ticket with status open, and appends
// a system creation message so the activity feed starts with a record of the
// ticket itself. Ticket and message are written in one transaction.
func (s *TicketService) Create(ctx context.Context, customerID string, in CreateTicketInput) (*domain.Ticket, error) {
	tr := otel.Tracer("services/TicketService")
	ctx, span := tr.Start(ctx, "Create",
		trace.WithAttributes(attribute.String("customer.id", customerID)),
	)
	defer span.End()

	subject := collapseSpaces(in.Subject)
	description := strings.TrimSpace(in.Description)

	fields := map[string]string{}
	if subject == "" {
		fields["subject"] = "must not be empty"
	} else if s.MaxSubjectRunes > 0 && utf8.RuneCountInString(subject) > s.MaxSubjectRunes {
		fields["subject"] = fmt.Sprintf("must be at most %d characters", s.MaxSubjectRunes)
	}
	if description == "" {
		fields["description"] = "must not be empty"
	}
	priority := in.Priority
	if priority == "" {
		priority = domain.PriorityMedium
	}
	if !priority.Valid() {
		fields["priority"] = "must be one of low, medium, high, urgent"
	}
	if len(fields) > 0 {
		return nil, &ValidationError{Fields: fields}
	}

	now := time.Now().UTC()
	t := &domain.Ticket{
		ID:           uuid.NewString(),
		TicketNumber: newTicketNumber(now),
		CustomerID:   customerID,
		Subject:      subject,
		Description:  description,
		CategoryID:   in.CategoryID,
		Priority:     priority,
		Status:       domain.TicketOpen,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := repo.CreateTicket(ctx, tx, t); err != nil {
			return err
		}
		sys := repo.NewMessage(t.ID, domain.ThreadTicket, domain.SenderSystem, nil, "",
			fmt.Sprintf("Ticket %s created", t.TicketNumber), false, nil)
		_, err := repo.AppendMessage(ctx, tx, sys)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.emit(ctx, events.TicketCreated, t)
	return t, nil
}

// Get returns a ticket by id without ownership scoping; callers must have
// passed the authorization gate first.
func (s *TicketService) Get(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	t, err := repo.GetTicket(ctx, s.DB, ticketID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrTicketNotFound
		}
		return nil, err
	}
	return t, nil
}

// GetForCustomer returns a ticket owned by customerID, or ErrTicketNotFound.
func (s *TicketService) GetForCustomer(ctx context.Context, ticketID, customerID string) (*domain.Ticket, error) {
	t, err := repo.GetCustomerTicket(ctx, s.DB, ticketID, customerID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrTicketNotFound
		}
		return nil, err
	}
	return t, nil
}

// ListForCustomer returns a page of the customer's tickets plus the total.
func (s *TicketService) ListForCustomer(ctx context.Context, customerID string, status domain.TicketStatus, page, pageSize int) ([]domain.Ticket, int64, error) {
	if status != "" && !status.Valid() {
		return nil, 0, newValidationError("status", "unknown status")
	}
	page, pageSize, offset := clampPage(page, pageSize)
	_ = page

	total, err := repo.CountCustomerTickets(ctx, s.DB, customerID, status)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.Ticket{}, 0, nil
	}
	items, err := repo.ListCustomerTickets(ctx, s.DB, customerID, status, offset, pageSize)
	return items, total, err
}

// ListAll returns a page of tickets matching the admin filter plus the total.
func (s *TicketService) ListAll(ctx context.Context, f repo.TicketFilter, page, pageSize int) ([]domain.Ticket, int64, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, 0, newValidationError("status", "unknown status")
	}
	if f.Priority != "" && !f.Priority.Valid() {
		return nil, 0, newValidationError("priority", "unknown priority")
	}
	_, pageSize, offset := clampPage(page, pageSize)
	return repo.ListTickets(ctx, s.DB, f, offset, pageSize)
}

// Update applies an admin patch. Status changes must satisfy the transition
// table; the first transition into resolved/closed stamps the matching
// timestamp, and the first assignment stamps AssignedAt (re-assignment does
// not re-stamp).
func (s *TicketService) Update(ctx context.Context, ticketID string, patch TicketPatch) (*domain.Ticket, error) {
	tr := otel.Tracer("services/TicketService")
	ctx, span := tr.Start(ctx, "Update",
		trace.WithAttributes(attribute.String("ticket.id", ticketID)),
	)
	defer span.End()

	t, err := s.Get(ctx, ticketID)
	if err != nil {
		return nil, err
	}

	cols := map[string]any{}
	now := time.Now().UTC()

	if patch.Status != nil && *patch.Status != t.Status {
		to := *patch.Status
		if !to.Valid() {
			return nil, newValidationError("status", "unknown status")
		}
		if !domain.CanTransition(t.Status, to) {
			return nil, &StateTransitionError{From: string(t.Status), To: string(to)}
		}
		cols["status"] = to
		if to == domain.TicketResolved && t.ResolvedAt == nil {
			cols["resolved_at"] = now
		}
		if to == domain.TicketClosed && t.ClosedAt == nil {
			cols["closed_at"] = now
		}
	}
	if patch.Priority != nil {
		if !patch.Priority.Valid() {
			return nil, newValidationError("priority", "must be one of low, medium, high, urgent")
		}
		cols["priority"] = *patch.Priority
	}
	if patch.CategoryID != nil {
		cols["category_id"] = *patch.CategoryID
	}
	if patch.AssignedAdminID != nil {
		cols["assigned_admin_id"] = *patch.AssignedAdminID
		if t.AssignedAdminID == nil && t.AssignedAt == nil {
			cols["assigned_at"] = now
		}
	}
	if patch.InternalNotes != nil {
		cols["internal_notes"] = *patch.InternalNotes
	}

	if len(cols) == 0 {
		return t, nil
	}
	if err := repo.UpdateTicket(ctx, s.DB, ticketID, cols); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrTicketNotFound
		}
		return nil, err
	}

	updated, err := s.Get(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	s.emit(ctx, events.TicketUpdated, updated)
	return updated, nil
}

// Assign is a convenience wrapper for assigning a ticket to an admin.
func (s *TicketService) Assign(ctx context.Context, ticketID, adminID string) (*domain.Ticket, error) {
	if strings.TrimSpace(adminID) == "" {
		return nil, newValidationError("admin_id", "must not be empty")
	}
	t, err := s.Update(ctx, ticketID, TicketPatch{AssignedAdminID: &adminID})
	if err != nil {
		return nil, err
	}
	s.emit(ctx, events.TicketAssigned, t)
	return t, nil
}

// SendMessage appends a message to a ticket thread. Customers cannot send
// internal messages, closed tickets reject sends, and a customer reply on a
// waiting_for_customer ticket moves it back to in_progress.
func (s *TicketService) SendMessage(ctx context.Context, ticketID string, senderType domain.SenderType, senderID *string, senderName, content string, isInternal bool, attachments []domain.Attachment) (*domain.Message, error) {
	tr := otel.Tracer("services/TicketService")
	ctx, span := tr.Start(ctx, "SendMessage",
		trace.WithAttributes(
			attribute.String("ticket.id", ticketID),
			attribute.String("sender.type", string(senderType)),
		),
	)
	defer span.End()

	content = strings.TrimSpace(content)
	if content == "" {
		return nil, newValidationError("content", "must not be empty")
	}
	if s.MaxContentRunes > 0 && utf8.RuneCountInString(content) > s.MaxContentRunes {
		return nil, newValidationError("content", fmt.Sprintf("must be at most %d characters", s.MaxContentRunes))
	}
	if isInternal && senderType != domain.SenderAdmin {
		return nil, ErrInternalNotAllowed
	}

	t, err := s.Get(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if t.Closed() {
		return nil, ErrThreadClosed
	}

	var msg *domain.Message
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		m := repo.NewMessage(ticketID, domain.ThreadTicket, senderType, senderID, senderName, content, isInternal, attachments)
		stored, err := repo.AppendMessage(ctx, tx, m)
		if err != nil {
			return err
		}
		msg = stored

		// Customer activity reopens work on a ticket parked on the customer.
		if senderType == domain.SenderCustomer && t.Status == domain.TicketWaitingForCustomer {
			return repo.UpdateTicket(ctx, tx, ticketID, map[string]any{"status": domain.TicketInProgress})
		}
		return repo.TouchTicket(ctx, tx, ticketID)
	})
	if err != nil {
		return nil, err
	}

	messagesAppended.WithLabelValues(string(domain.ThreadTicket), string(senderType)).Inc()
	if s.Producer != nil {
		s.Producer.Emit(ctx, events.MessageSent, ticketID, map[string]any{
			"thread_type": domain.ThreadTicket,
			"message_id":  msg.ID,
			"sender_type": senderType,
			"internal":    isInternal,
		})
	}
	return msg, nil
}

// emit publishes a ticket lifecycle event, if a producer is configured.
func (s *TicketService) emit(ctx context.Context, event string, t *domain.Ticket) {
	if s.Producer == nil {
		return
	}
	payload := map[string]any{
		"ticket_number": t.TicketNumber,
		"customer_id":   t.CustomerID,
		"status":        t.Status,
		"priority":      t.Priority,
	}
	if t.AssignedAdminID != nil {
		payload["assigned_admin_id"] = *t.AssignedAdminID
	}
	s.Producer.Emit(ctx, event, t.ID, payload)
}

// newTicketNumber builds a human-readable reference like TKT-20260901-4F2A1C.
// Uniqueness is backed by the unique index on ticket_number; the random
// suffix makes collisions within a day vanishingly unlikely.
func newTicketNumber(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:6])
	return fmt.Sprintf("TKT-%s-%s", now.Format("20060102"), suffix)
}

// clampPage bounds page/pageSize and derives the offset.
func clampPage(page, pageSize int) (p, ps, offset int) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}
	return page, pageSize, (page - 1) * pageSize
}

// collapseSpaces trims and collapses runs of whitespace to single spaces.
func collapseSpaces(s string) string {
	return whitespaceRE.ReplaceAllString(strings.TrimSpace(s), " ")
}

// whitespaceRE collapses consecutive whitespace to a single space.
var whitespaceRE = regexp.MustCompile(`\s+`)
