// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides aggregate queries for the admin
// analytics endpoint. Each function is context-aware and safe to call from
// services or handlers.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/supportdesk/conversation-engine/internal/domain"
)

// statusCount is the scan target for GROUP BY status queries.
type statusCount struct {
	Status string
	Total  int64
}

// TicketCountsByStatus returns ticket totals grouped by status for tickets
// created within [since, until).
func TicketCountsByStatus(ctx context.Context, db *gorm.DB, since, until time.Time) (map[domain.TicketStatus]int64, error) {
	var rows []statusCount
	err := db.WithContext(ctx).
		Model(&domain.Ticket{}).
		Select("status, COUNT(*) AS total").
		Where("created_at >= ? AND created_at < ?", since, until).
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[domain.TicketStatus]int64, len(rows))
	for _, r := range rows {
		out[domain.TicketStatus(r.Status)] = r.Total
	}
	return out, nil
}

// TicketCountsByPriority returns ticket totals grouped by priority for
// tickets created within [since, until).
func TicketCountsByPriority(ctx context.Context, db *gorm.DB, since, until time.Time) (map[domain.Priority]int64, error) {
	var rows []struct {
		Priority string
		Total    int64
	}
	err := db.WithContext(ctx).
		Model(&domain.Ticket{}).
		Select("priority, COUNT(*) AS total").
		Where("created_at >= ? AND created_at < ?", since, until).
		Group("priority").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[domain.Priority]int64, len(rows))
	for _, r := range rows {
		out[domain.Priority(r.Priority)] = r.Total
	}
	return out, nil
}

// ChatCountsByStatus returns chat session totals grouped by status for
// sessions started within [since, until).
func ChatCountsByStatus(ctx context.Context, db *gorm.DB, since, until time.Time) (map[domain.ChatStatus]int64, error) {
	var rows []statusCount
	err := db.WithContext(ctx).
		Model(&domain.ChatSession{}).
		Select("status, COUNT(*) AS total").
		Where("created_at >= ? AND created_at < ?", since, until).
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[domain.ChatStatus]int64, len(rows))
	for _, r := range rows {
		out[domain.ChatStatus(r.Status)] = r.Total
	}
	return out, nil
}

// MessageVolume returns the number of messages appended within [since, until),
// split by thread type.
func MessageVolume(ctx context.Context, db *gorm.DB, since, until time.Time) (map[domain.ThreadType]int64, error) {
	var rows []struct {
		ThreadType string
		Total      int64
	}
	err := db.WithContext(ctx).
		Model(&domain.Message{}).
		Select("thread_type, COUNT(*) AS total").
		Where("created_at >= ? AND created_at < ?", since, until).
		Group("thread_type").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[domain.ThreadType]int64, len(rows))
	for _, r := range rows {
		out[domain.ThreadType(r.ThreadType)] = r.Total
	}
	return out, nil
}

// ThreadStats returns aggregate metadata for a thread's messages: the total
// number of rows and the greatest sequence number. Used for ETag-style
// conditional responses on the poll endpoints. When includeInternal is false
// only customer-visible rows are counted, so internal notes never move a
// customer's tag.
func ThreadStats(ctx context.Context, db *gorm.DB, threadID string, includeInternal bool) (count int64, maxSeq int64, err error) {
	q := db.WithContext(ctx).Model(&domain.Message{}).Where("thread_id = ?", threadID)
	if !includeInternal {
		q = q.Where("is_internal = ?", false)
	}
	if err = q.Count(&count).Error; err != nil {
		return 0, 0, err
	}
	if count == 0 {
		return 0, 0, nil
	}
	if err = q.Select("COALESCE(MAX(seq), 0)").Scan(&maxSeq).Error; err != nil {
		return 0, 0, err
	}
	return count, maxSeq, nil
}
