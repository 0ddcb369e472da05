// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides the message store: an append-mostly,
// per-thread ordered log.
//
// Ordering contract: AppendMessage assigns each message a dense per-thread
// sequence number. Concurrent appends to the same thread serialize on the
// (thread_id, seq) unique index; losers of the race retry with a fresh
// sequence. Cross-thread appends never contend with each other.
package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/supportdesk/conversation-engine/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// appendAttempts bounds the optimistic-retry loop in AppendMessage. Under
// SQLite's write serialization two attempts are almost always enough; the
// margin covers server-mode databases.
const appendAttempts = 5

// NewMessage fills in identity and timestamp fields for a message about to be
// appended. Seq is left zero; AppendMessage assigns it.
func NewMessage(threadID string, threadType domain.ThreadType, senderType domain.SenderType, senderID *string, senderName, content string, isInternal bool, attachments []domain.Attachment) *domain.Message {
	return &domain.Message{
		ID:          uuid.NewString(),
		ThreadID:    threadID,
		ThreadType:  threadType,
		SenderType:  senderType,
		SenderID:    senderID,
		SenderName:  senderName,
		Content:     content,
		IsInternal:  isInternal,
		Attachments: attachments,
		CreatedAt:   time.Now().UTC(),
	}
}

// AppendMessage inserts m with the next sequence number for its thread.
// The read-max-and-insert pair runs in one transaction; a concurrent append
// that claims the same sequence trips the (thread_id, seq) unique index and
// the loop retries with a recomputed sequence. Returns the stored message
// with Seq populated.
func AppendMessage(ctx context.Context, db *gorm.DB, m *domain.Message) (*domain.Message, error) {
	var lastErr error
	for attempt := 0; attempt < appendAttempts; attempt++ {
		err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var maxSeq int64
			if err := tx.Model(&domain.Message{}).
				Where("thread_id = ?", m.ThreadID).
				Select("COALESCE(MAX(seq), 0)").
				Scan(&maxSeq).Error; err != nil {
				return err
			}
			m.Seq = maxSeq + 1
			return tx.Create(m).Error
		})
		if err == nil {
			return m, nil
		}
		if !isUniqueViolation(err) {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}

// ListMessagesSince returns up to limit messages of a thread with seq greater
// than cursor, in ascending sequence order. When includeInternal is false,
// internal messages are excluded at the query level; callers still apply
// domain.FilterVisible on the result so no path can skip the visibility rule.
// The call is a pure read: polling with the same cursor and no intervening
// writes yields identical results.
func ListMessagesSince(ctx context.Context, db *gorm.DB, threadID string, cursor int64, limit int, includeInternal bool) ([]domain.Message, error) {
	q := db.WithContext(ctx).
		Where("thread_id = ? AND seq > ?", threadID, cursor).
		Order("seq ASC")
	if !includeInternal {
		q = q.Where("is_internal = ?", false)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	var out []domain.Message
	err := q.Find(&out).Error
	return out, err
}

// CountMessages returns the number of messages in a thread, optionally
// restricted to customer-visible ones.
func CountMessages(ctx context.Context, db *gorm.DB, threadID string, includeInternal bool) (int64, error) {
	q := db.WithContext(ctx).Model(&domain.Message{}).Where("thread_id = ?", threadID)
	if !includeInternal {
		q = q.Where("is_internal = ?", false)
	}
	var total int64
	err := q.Count(&total).Error
	return total, err
}

// CountUnread returns the number of messages in a thread with seq greater
// than the watermark that were not sent by ownSender, honoring visibility.
// System messages count for both sides.
func CountUnread(ctx context.Context, db *gorm.DB, threadID string, watermark int64, ownSender domain.SenderType, includeInternal bool) (int64, error) {
	q := db.WithContext(ctx).Model(&domain.Message{}).
		Where("thread_id = ? AND seq > ? AND sender_type <> ?", threadID, watermark, ownSender)
	if !includeInternal {
		q = q.Where("is_internal = ?", false)
	}
	var total int64
	err := q.Count(&total).Error
	return total, err
}

// GetMessage fetches a message by ID.
func GetMessage(ctx context.Context, db *gorm.DB, id string) (*domain.Message, error) {
	var m domain.Message
	if err := db.WithContext(ctx).Where("id = ?", id).First(&m).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

// isUniqueViolation detects unique-constraint violations across drivers that
// may not map to gorm.ErrDuplicatedKey.
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "constraint failed: unique") ||
		strings.Contains(msg, "duplicate key")
}
