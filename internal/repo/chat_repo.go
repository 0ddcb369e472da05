// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the ChatSession
// model, including the conditional state transitions the abandonment sweep
// relies on.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/supportdesk/conversation-engine/internal/domain"
)

// CreateChatSession inserts a new session row.
func CreateChatSession(ctx context.Context, db *gorm.DB, s *domain.ChatSession) error {
	return db.WithContext(ctx).Create(s).Error
}

// GetChatSession fetches a session by ID, or ErrNotFound.
func GetChatSession(ctx context.Context, db *gorm.DB, id string) (*domain.ChatSession, error) {
	var s domain.ChatSession
	if err := db.WithContext(ctx).Where("id = ?", id).First(&s).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

// GetCustomerChatSession fetches a session by ID ensuring it belongs to
// customerID, or ErrNotFound.
func GetCustomerChatSession(ctx context.Context, db *gorm.DB, id, customerID string) (*domain.ChatSession, error) {
	var s domain.ChatSession
	err := db.WithContext(ctx).
		Where("id = ? AND customer_id = ?", id, customerID).
		First(&s).Error
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// GetActiveChatSession returns the customer's active session, or ErrNotFound.
// The service layer keeps at most one session active per customer.
func GetActiveChatSession(ctx context.Context, db *gorm.DB, customerID string) (*domain.ChatSession, error) {
	var s domain.ChatSession
	err := db.WithContext(ctx).
		Where("customer_id = ? AND status = ?", customerID, domain.ChatActive).
		Order("created_at desc").
		First(&s).Error
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// ListCustomerChatSessions returns a page of customerID's sessions ordered by
// creation time descending, optionally filtered by status.
func ListCustomerChatSessions(ctx context.Context, db *gorm.DB, customerID string, status domain.ChatStatus, offset, limit int) ([]domain.ChatSession, error) {
	q := db.WithContext(ctx).
		Where("customer_id = ?", customerID).
		Order("created_at desc")
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var out []domain.ChatSession
	err := q.Offset(offset).Limit(limit).Find(&out).Error
	return out, err
}

// CountCustomerChatSessions returns the total for pagination metadata.
func CountCustomerChatSessions(ctx context.Context, db *gorm.DB, customerID string, status domain.ChatStatus) (int64, error) {
	q := db.WithContext(ctx).Model(&domain.ChatSession{}).Where("customer_id = ?", customerID)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var total int64
	err := q.Count(&total).Error
	return total, err
}

// EndChatSession transitions a session out of active into the given terminal
// status, setting ended_at. The WHERE clause is the compare-and-swap: only a
// session still active is touched, so concurrent enders and the abandonment
// sweep cannot double-transition. Returns true when this call won the
// transition.
func EndChatSession(ctx context.Context, db *gorm.DB, id string, to domain.ChatStatus, now time.Time) (bool, error) {
	res := db.WithContext(ctx).
		Model(&domain.ChatSession{}).
		Where("id = ? AND status = ?", id, domain.ChatActive).
		Updates(map[string]any{
			"status":     to,
			"ended_at":   now,
			"updated_at": now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// MarkChatAbandoned is the sweep's conditional transition: it moves a session
// to abandoned only if it is still active AND has had no activity since
// lastActivityBefore. Safe to run concurrently from multiple instances; only
// one caller observes RowsAffected == 1.
func MarkChatAbandoned(ctx context.Context, db *gorm.DB, id string, lastActivityBefore, now time.Time) (bool, error) {
	res := db.WithContext(ctx).
		Model(&domain.ChatSession{}).
		Where("id = ? AND status = ? AND updated_at < ?", id, domain.ChatActive, lastActivityBefore).
		Updates(map[string]any{
			"status":     domain.ChatAbandoned,
			"ended_at":   now,
			"updated_at": now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// ListIdleActiveSessions returns ids of active sessions with no activity
// since the cutoff. When skipAssigned is true, sessions with an assigned
// admin are excluded from abandonment.
func ListIdleActiveSessions(ctx context.Context, db *gorm.DB, cutoff time.Time, skipAssigned bool, limit int) ([]string, error) {
	q := db.WithContext(ctx).
		Model(&domain.ChatSession{}).
		Where("status = ? AND updated_at < ?", domain.ChatActive, cutoff)
	if skipAssigned {
		q = q.Where("assigned_admin_id IS NULL")
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	var ids []string
	err := q.Pluck("id", &ids).Error
	return ids, err
}

// AssignChatAdmin pairs an admin with a session and bumps activity.
func AssignChatAdmin(ctx context.Context, db *gorm.DB, id, adminID string) error {
	res := db.WithContext(ctx).
		Model(&domain.ChatSession{}).
		Where("id = ? AND status = ?", id, domain.ChatActive).
		Updates(map[string]any{
			"assigned_admin_id": adminID,
			"updated_at":        time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// TouchChatSession bumps updated_at, resetting the abandonment window.
func TouchChatSession(ctx context.Context, db *gorm.DB, id string) error {
	return db.WithContext(ctx).
		Model(&domain.ChatSession{}).
		Where("id = ?", id).
		Update("updated_at", time.Now().UTC()).Error
}

// UpdateChatSubject sets the session subject. Used by the auto-subject logic
// when the first customer message arrives on an untitled session.
func UpdateChatSubject(ctx context.Context, db *gorm.DB, id, subject string) error {
	return db.WithContext(ctx).
		Model(&domain.ChatSession{}).
		Where("id = ?", id).
		Update("subject", subject).Error
}
