// This file implements the conversation sync protocol shared by ticket
// threads and chat sessions: cursor-based incremental fetch, the per-viewer
// visibility filter, read watermarks, and unread counts. Clients poll
// ListSince at a fixed interval, echoing back the cursor from the previous
// response. Polling is a pure read: a stale or zero cursor is always safe
// and has no side effects.
package services

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/supportdesk/conversation-engine/internal/domain"
	"github.com/supportdesk/conversation-engine/internal/repo"
)

// SyncResponse is the poll payload for one thread: new messages after the
// cursor, the cursor to echo back next time, and the viewer's unread badge.
type SyncResponse struct {
	ThreadID    string            `json:"thread_id"`
	ThreadType  domain.ThreadType `json:"thread_type"`
	Status      string            `json:"status"`
	Messages    []domain.Message  `json:"messages"`
	NextCursor  int64             `json:"next_cursor"`
	UnreadCount int64             `json:"unread_count"`
}

// Viewer identifies who is reading, for visibility and unread accounting.
type Viewer struct {
	UserID string
	Role   domain.Role
}

// ownSender maps the viewer's role to the sender type whose messages never
// count as unread for them.
func (v Viewer) ownSender() domain.SenderType {
	if v.Role == domain.RoleAdmin {
		return domain.SenderAdmin
	}
	return domain.SenderCustomer
}

// SyncService implements the polling contract over the message store.
type SyncService struct {
	DB *gorm.DB

	// MaxLimit caps the page size of one poll; DefaultLimit applies when the
	// caller passes limit <= 0.
	MaxLimit     int
	DefaultLimit int
}

// NewSyncService constructs a SyncService with the default page bounds.
func NewSyncService(db *gorm.DB) *SyncService {
	return &SyncService{DB: db, MaxLimit: 200, DefaultLimit: 50}
}

// ListSince returns the thread's messages with sequence greater than cursor,
// ascending, post visibility filter, together with the next cursor and the
// viewer's unread count. NextCursor equals the sequence of the last returned
// message, or the input cursor when nothing new arrived, so callers can echo
// it back verbatim. The thread's current status rides along so pollers
// observe lifecycle changes without a second request.
func (s *SyncService) ListSince(ctx context.Context, viewer Viewer, threadType domain.ThreadType, threadID string, cursor int64, limit int) (*SyncResponse, error) {
	tr := otel.Tracer("services/SyncService")
	ctx, span := tr.Start(ctx, "ListSince",
		trace.WithAttributes(
			attribute.String("thread.id", threadID),
			attribute.String("thread.type", string(threadType)),
			attribute.Int64("cursor", cursor),
		),
	)
	defer span.End()

	status, err := s.threadStatus(ctx, threadType, threadID)
	if err != nil {
		return nil, err
	}

	if cursor < 0 {
		cursor = 0
	}
	if limit <= 0 {
		limit = s.DefaultLimit
	}
	if s.MaxLimit > 0 && limit > s.MaxLimit {
		limit = s.MaxLimit
	}

	includeInternal := viewer.Role == domain.RoleAdmin
	msgs, err := repo.ListMessagesSince(ctx, s.DB, threadID, cursor, limit, includeInternal)
	if err != nil {
		return nil, err
	}
	// The query already excludes internal rows for customers; the pure filter
	// runs regardless so no read path can bypass the visibility rule.
	msgs = domain.FilterVisible(msgs, viewer.Role)

	next := cursor
	if n := len(msgs); n > 0 {
		next = msgs[n-1].Seq
	}

	unread, err := s.UnreadCount(ctx, viewer, threadID)
	if err != nil {
		return nil, err
	}

	return &SyncResponse{
		ThreadID:    threadID,
		ThreadType:  threadType,
		Status:      status,
		Messages:    msgs,
		NextCursor:  next,
		UnreadCount: unread,
	}, nil
}

// MarkRead advances the viewer's watermark to uptoSeq. The watermark is
// monotonic: a lower value is silently ignored and never regresses the
// unread count.
func (s *SyncService) MarkRead(ctx context.Context, viewer Viewer, threadID string, uptoSeq int64) error {
	return repo.AdvanceReadMark(ctx, s.DB, threadID, viewer.UserID, uptoSeq)
}

// UnreadCount returns the number of messages visible to the viewer after
// their watermark that were not authored by their own side.
func (s *SyncService) UnreadCount(ctx context.Context, viewer Viewer, threadID string) (int64, error) {
	watermark, err := repo.GetReadMark(ctx, s.DB, threadID, viewer.UserID)
	if err != nil {
		return 0, err
	}
	includeInternal := viewer.Role == domain.RoleAdmin
	return repo.CountUnread(ctx, s.DB, threadID, watermark, viewer.ownSender(), includeInternal)
}

// threadStatus fetches the thread's current lifecycle state, mapping misses
// to the thread-kind's not-found sentinel.
func (s *SyncService) threadStatus(ctx context.Context, threadType domain.ThreadType, threadID string) (string, error) {
	switch threadType {
	case domain.ThreadTicket:
		t, err := repo.GetTicket(ctx, s.DB, threadID)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return "", ErrTicketNotFound
			}
			return "", err
		}
		return string(t.Status), nil
	case domain.ThreadChat:
		sess, err := repo.GetChatSession(ctx, s.DB, threadID)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return "", ErrSessionNotFound
			}
			return "", err
		}
		return string(sess.Status), nil
	default:
		return "", ErrTicketNotFound
	}
}
