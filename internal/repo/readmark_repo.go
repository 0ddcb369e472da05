// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for per-viewer read
// watermarks.
package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/supportdesk/conversation-engine/internal/domain"
)

// GetReadMark returns the viewer's watermark for a thread, or 0 when the
// viewer has never marked anything read.
func GetReadMark(ctx context.Context, db *gorm.DB, threadID, userID string) (int64, error) {
	var rm domain.ReadMark
	err := db.WithContext(ctx).
		Where("thread_id = ? AND user_id = ?", threadID, userID).
		First(&rm).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return rm.LastReadSeq, nil
}

// AdvanceReadMark raises the viewer's watermark to uptoSeq. The update is
// conditional on last_read_seq < uptoSeq, so a stale caller can never lower
// the mark; such calls succeed silently. Insert-then-update handles the
// first-mark race: a concurrent insert trips the unique (thread_id, user_id)
// index and this call falls through to the conditional update.
func AdvanceReadMark(ctx context.Context, db *gorm.DB, threadID, userID string, uptoSeq int64) error {
	if uptoSeq <= 0 {
		return nil
	}
	now := time.Now().UTC()
	rm := &domain.ReadMark{
		ID:          uuid.NewString(),
		ThreadID:    threadID,
		UserID:      userID,
		LastReadSeq: uptoSeq,
		UpdatedAt:   now,
	}
	err := db.WithContext(ctx).Create(rm).Error
	if err == nil {
		return nil
	}
	if !isUniqueViolation(err) {
		return err
	}
	return db.WithContext(ctx).
		Model(&domain.ReadMark{}).
		Where("thread_id = ? AND user_id = ? AND last_read_seq < ?", threadID, userID, uptoSeq).
		Updates(map[string]any{
			"last_read_seq": uptoSeq,
			"updated_at":    now,
		}).Error
}
