// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Ticket
// model.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations. They
// follow the "thin repository" approach: no business logic, only CRUD
// persistence and query composition. State-machine enforcement lives in the
// service layer.
//
// Error semantics:
//   - When a ticket is not found, functions return gorm.ErrRecordNotFound
//     (also exported here as ErrNotFound).
//   - On DB errors (constraint violations, connectivity issues, etc.),
//     the raw gorm error is propagated.
package repo

import (
	"context"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/supportdesk/conversation-engine/internal/domain"
)

// TicketFilter narrows admin-facing ticket listings. Zero values mean "no
// constraint". Search matches subject and description case-insensitively.
type TicketFilter struct {
	Status          domain.TicketStatus
	Priority        domain.Priority
	AssignedAdminID string
	Search          string
}

// CreateTicket inserts a new ticket row. The caller is responsible for having
// populated identity fields (ID, TicketNumber) and the initial status.
func CreateTicket(ctx context.Context, db *gorm.DB, t *domain.Ticket) error {
	return db.WithContext(ctx).Create(t).Error
}

// GetTicket fetches a ticket by ID, or ErrNotFound.
func GetTicket(ctx context.Context, db *gorm.DB, id string) (*domain.Ticket, error) {
	var t domain.Ticket
	if err := db.WithContext(ctx).Where("id = ?", id).First(&t).Error; err != nil {
		return nil, err
	}
	return &t, nil
}

// GetCustomerTicket fetches a ticket by ID ensuring it belongs to customerID,
// or ErrNotFound. Ownership misses are indistinguishable from missing rows so
// thread existence does not leak across customers.
func GetCustomerTicket(ctx context.Context, db *gorm.DB, id, customerID string) (*domain.Ticket, error) {
	var t domain.Ticket
	err := db.WithContext(ctx).
		Where("id = ? AND customer_id = ?", id, customerID).
		First(&t).Error
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// ListCustomerTickets returns a page of customerID's tickets ordered by
// creation time descending, optionally filtered by status.
func ListCustomerTickets(ctx context.Context, db *gorm.DB, customerID string, status domain.TicketStatus, offset, limit int) ([]domain.Ticket, error) {
	q := db.WithContext(ctx).
		Where("customer_id = ?", customerID).
		Order("created_at desc")
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var out []domain.Ticket
	err := q.Offset(offset).Limit(limit).Find(&out).Error
	return out, err
}

// CountCustomerTickets returns the total for pagination metadata.
func CountCustomerTickets(ctx context.Context, db *gorm.DB, customerID string, status domain.TicketStatus) (int64, error) {
	q := db.WithContext(ctx).Model(&domain.Ticket{}).Where("customer_id = ?", customerID)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var total int64
	err := q.Count(&total).Error
	return total, err
}

// ListTickets returns a page of tickets matching the admin filter, newest
// first, along with the unpaginated total.
func ListTickets(ctx context.Context, db *gorm.DB, f TicketFilter, offset, limit int) ([]domain.Ticket, int64, error) {
	q := db.WithContext(ctx).Model(&domain.Ticket{})
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.Priority != "" {
		q = q.Where("priority = ?", f.Priority)
	}
	if f.AssignedAdminID != "" {
		q = q.Where("assigned_admin_id = ?", f.AssignedAdminID)
	}
	if s := strings.TrimSpace(f.Search); s != "" {
		like := "%" + strings.ToLower(s) + "%"
		q = q.Where("LOWER(subject) LIKE ? OR LOWER(description) LIKE ? OR LOWER(ticket_number) LIKE ?", like, like, like)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var out []domain.Ticket
	err := q.Order("created_at desc").Offset(offset).Limit(limit).Find(&out).Error
	return out, total, err
}

// UpdateTicket applies a column patch to a ticket. The patch is produced by
// the service layer after state-machine validation; this function only
// persists it. Returns ErrNotFound when the ticket does not exist.
func UpdateTicket(ctx context.Context, db *gorm.DB, id string, patch map[string]any) error {
	if len(patch) == 0 {
		return nil
	}
	patch["updated_at"] = time.Now().UTC()
	res := db.WithContext(ctx).
		Model(&domain.Ticket{}).
		Where("id = ?", id).
		Updates(patch)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// TouchTicket bumps a ticket's updated_at to now. Used when a message is
// appended so listings sort by recency of activity.
func TouchTicket(ctx context.Context, db *gorm.DB, id string) error {
	return db.WithContext(ctx).
		Model(&domain.Ticket{}).
		Where("id = ?", id).
		Update("updated_at", time.Now().UTC()).Error
}
