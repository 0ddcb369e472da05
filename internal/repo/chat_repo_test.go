package repo

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/supportdesk/conversation-engine/internal/domain"
)

func newChatRepoDB(t *testing.T, migrate ...any) *gorm.DB {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), fmt.Sprintf("chat_repo_test_%d.db", time.Now().UnixNano()))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}

	// Ensure the file handle is released before TempDir cleanup (Windows needs this).
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	if len(migrate) > 0 {
		if err := db.AutoMigrate(migrate...); err != nil {
			t.Fatalf("automigrate: %v", err)
		}
	}
	return db
}

func seedSession(t *testing.T, db *gorm.DB, customerID string, status domain.ChatStatus, updatedAt time.Time, adminID *string) *domain.ChatSession {
	t.Helper()
	s := &domain.ChatSession{
		ID:              uuid.NewString(),
		CustomerID:      customerID,
		AssignedAdminID: adminID,
		Subject:         "help",
		Status:          status,
		CreatedAt:       updatedAt,
		UpdatedAt:       updatedAt,
	}
	if err := db.Create(s).Error; err != nil {
		t.Fatalf("seed session: %v", err)
	}
	return s
}

func TestCreateChatSession_RoundTrip(t *testing.T) {
	db := newChatRepoDB(t, &domain.ChatSession{})

	s := &domain.ChatSession{ID: uuid.NewString(), CustomerID: "c1", Subject: "billing", Status: domain.ChatActive}
	if err := CreateChatSession(context.Background(), db, s); err != nil {
		t.Fatalf("CreateChatSession: %v", err)
	}

	got, err := GetChatSession(context.Background(), db, s.ID)
	if err != nil {
		t.Fatalf("GetChatSession: %v", err)
	}
	if got.CustomerID != "c1" || got.Status != domain.ChatActive || got.Subject != "billing" {
		t.Fatalf("unexpected session: %+v", got)
	}
}

func TestGetCustomerChatSession_OwnershipMissIsNotFound(t *testing.T) {
	db := newChatRepoDB(t, &domain.ChatSession{})
	s := seedSession(t, db, "c1", domain.ChatActive, time.Now().UTC(), nil)

	if _, err := GetCustomerChatSession(context.Background(), db, s.ID, "c1"); err != nil {
		t.Fatalf("owner fetch: %v", err)
	}
	// A foreign viewer gets the same error as a missing row.
	if _, err := GetCustomerChatSession(context.Background(), db, s.ID, "c2"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound for foreign viewer, got %v", err)
	}
	if _, err := GetCustomerChatSession(context.Background(), db, "missing", "c1"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound for missing id, got %v", err)
	}
}

func TestGetActiveChatSession_IgnoresTerminalSessions(t *testing.T) {
	db := newChatRepoDB(t, &domain.ChatSession{})
	now := time.Now().UTC()
	seedSession(t, db, "c1", domain.ChatEnded, now.Add(-2*time.Hour), nil)
	seedSession(t, db, "c1", domain.ChatAbandoned, now.Add(-1*time.Hour), nil)

	if _, err := GetActiveChatSession(context.Background(), db, "c1"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound with only terminal sessions, got %v", err)
	}

	active := seedSession(t, db, "c1", domain.ChatActive, now, nil)
	got, err := GetActiveChatSession(context.Background(), db, "c1")
	if err != nil {
		t.Fatalf("GetActiveChatSession: %v", err)
	}
	if got.ID != active.ID {
		t.Fatalf("expected active session %s, got %s", active.ID, got.ID)
	}
}

func TestListCustomerChatSessions_OrderAndStatusFilter(t *testing.T) {
	db := newChatRepoDB(t, &domain.ChatSession{})
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	s1 := seedSession(t, db, "c1", domain.ChatEnded, base, nil)
	s2 := seedSession(t, db, "c1", domain.ChatActive, base.Add(time.Hour), nil)
	seedSession(t, db, "c2", domain.ChatActive, base.Add(2*time.Hour), nil)

	all, err := ListCustomerChatSessions(context.Background(), db, "c1", "", 0, 10)
	if err != nil {
		t.Fatalf("ListCustomerChatSessions: %v", err)
	}
	if len(all) != 2 || all[0].ID != s2.ID || all[1].ID != s1.ID {
		t.Fatalf("unexpected order: %+v", all)
	}

	ended, err := ListCustomerChatSessions(context.Background(), db, "c1", domain.ChatEnded, 0, 10)
	if err != nil {
		t.Fatalf("filtered list: %v", err)
	}
	if len(ended) != 1 || ended[0].ID != s1.ID {
		t.Fatalf("unexpected filtered result: %+v", ended)
	}

	total, err := CountCustomerChatSessions(context.Background(), db, "c1", "")
	if err != nil {
		t.Fatalf("CountCustomerChatSessions: %v", err)
	}
	if total != 2 {
		t.Fatalf("expected 2, got %d", total)
	}
}

func TestEndChatSession_CompareAndSwap(t *testing.T) {
	db := newChatRepoDB(t, &domain.ChatSession{})
	s := seedSession(t, db, "c1", domain.ChatActive, time.Now().UTC(), nil)
	now := time.Now().UTC()

	won, err := EndChatSession(context.Background(), db, s.ID, domain.ChatEnded, now)
	if err != nil {
		t.Fatalf("EndChatSession: %v", err)
	}
	if !won {
		t.Fatalf("first caller must win the transition")
	}

	// The session is terminal; a second ender loses without error.
	won, err = EndChatSession(context.Background(), db, s.ID, domain.ChatEnded, now)
	if err != nil {
		t.Fatalf("second EndChatSession: %v", err)
	}
	if won {
		t.Fatalf("second caller must not win")
	}

	got, err := GetChatSession(context.Background(), db, s.ID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if got.Status != domain.ChatEnded || got.EndedAt == nil {
		t.Fatalf("expected ended with EndedAt set, got %+v", got)
	}
}

func TestMarkChatAbandoned_RespectsActivityCutoff(t *testing.T) {
	db := newChatRepoDB(t, &domain.ChatSession{})
	now := time.Now().UTC()
	cutoff := now.Add(-30 * time.Minute)

	idle := seedSession(t, db, "c1", domain.ChatActive, now.Add(-time.Hour), nil)
	fresh := seedSession(t, db, "c2", domain.ChatActive, now.Add(-time.Minute), nil)

	won, err := MarkChatAbandoned(context.Background(), db, idle.ID, cutoff, now)
	if err != nil {
		t.Fatalf("MarkChatAbandoned idle: %v", err)
	}
	if !won {
		t.Fatalf("idle session should be abandoned")
	}

	// Activity after the cutoff keeps the session alive.
	won, err = MarkChatAbandoned(context.Background(), db, fresh.ID, cutoff, now)
	if err != nil {
		t.Fatalf("MarkChatAbandoned fresh: %v", err)
	}
	if won {
		t.Fatalf("recently active session must not be abandoned")
	}

	// Already abandoned: a second sweeper loses the CAS.
	won, err = MarkChatAbandoned(context.Background(), db, idle.ID, now.Add(time.Hour), now)
	if err != nil {
		t.Fatalf("second MarkChatAbandoned: %v", err)
	}
	if won {
		t.Fatalf("terminal session must not transition again")
	}
}

func TestListIdleActiveSessions_SkipAssignedAndLimit(t *testing.T) {
	db := newChatRepoDB(t, &domain.ChatSession{})
	now := time.Now().UTC()
	cutoff := now.Add(-30 * time.Minute)
	admin := "a1"

	idle1 := seedSession(t, db, "c1", domain.ChatActive, now.Add(-2*time.Hour), nil)
	idle2 := seedSession(t, db, "c2", domain.ChatActive, now.Add(-time.Hour), nil)
	// Assigned, fresh, and terminal sessions are never candidates.
	seedSession(t, db, "c3", domain.ChatActive, now.Add(-time.Hour), &admin)
	seedSession(t, db, "c4", domain.ChatActive, now, nil)
	seedSession(t, db, "c5", domain.ChatEnded, now.Add(-time.Hour), nil)

	ids, err := ListIdleActiveSessions(context.Background(), db, cutoff, true, 0)
	if err != nil {
		t.Fatalf("ListIdleActiveSessions: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("expected 2 idle unassigned sessions, got %d (%v)", len(ids), ids)
	}
	found := map[string]bool{ids[0]: true, ids[1]: true}
	if !found[idle1.ID] || !found[idle2.ID] {
		t.Fatalf("unexpected ids: %v", ids)
	}

	// With skipAssigned false the assigned session joins the candidates.
	ids, err = ListIdleActiveSessions(context.Background(), db, cutoff, false, 0)
	if err != nil {
		t.Fatalf("ListIdleActiveSessions all: %v", err)
	}
	if len(ids) != 3 {
		t.Fatalf("expected 3 candidates without skipAssigned, got %d", len(ids))
	}

	ids, err = ListIdleActiveSessions(context.Background(), db, cutoff, true, 1)
	if err != nil {
		t.Fatalf("ListIdleActiveSessions limited: %v", err)
	}
	if len(ids) != 1 {
		t.Fatalf("expected limit to cap results, got %d", len(ids))
	}
}

func TestAssignChatAdmin_OnlyActiveSessions(t *testing.T) {
	db := newChatRepoDB(t, &domain.ChatSession{})
	s := seedSession(t, db, "c1", domain.ChatActive, time.Now().UTC(), nil)

	if err := AssignChatAdmin(context.Background(), db, s.ID, "a1"); err != nil {
		t.Fatalf("AssignChatAdmin: %v", err)
	}
	got, err := GetChatSession(context.Background(), db, s.ID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if got.AssignedAdminID == nil || *got.AssignedAdminID != "a1" {
		t.Fatalf("expected assigned admin a1, got %+v", got.AssignedAdminID)
	}

	ended := seedSession(t, db, "c2", domain.ChatEnded, time.Now().UTC(), nil)
	if err := AssignChatAdmin(context.Background(), db, ended.ID, "a1"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound for ended session, got %v", err)
	}
}

func TestTouchChatSession_ResetsAbandonmentWindow(t *testing.T) {
	db := newChatRepoDB(t, &domain.ChatSession{})
	now := time.Now().UTC()
	s := seedSession(t, db, "c1", domain.ChatActive, now.Add(-2*time.Hour), nil)

	if err := TouchChatSession(context.Background(), db, s.ID); err != nil {
		t.Fatalf("TouchChatSession: %v", err)
	}

	// The session no longer qualifies as idle.
	ids, err := ListIdleActiveSessions(context.Background(), db, now.Add(-30*time.Minute), true, 0)
	if err != nil {
		t.Fatalf("ListIdleActiveSessions: %v", err)
	}
	if len(ids) != 0 {
		t.Fatalf("touched session still idle: %v", ids)
	}
}

func TestUpdateChatSubject(t *testing.T) {
	db := newChatRepoDB(t, &domain.ChatSession{})
	s := seedSession(t, db, "c1", domain.ChatActive, time.Now().UTC(), nil)

	if err := UpdateChatSubject(context.Background(), db, s.ID, "Order #1234 missing"); err != nil {
		t.Fatalf("UpdateChatSubject: %v", err)
	}
	got, err := GetChatSession(context.Background(), db, s.ID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if got.Subject != "Order #1234 missing" {
		t.Fatalf("expected updated subject, got %q", got.Subject)
	}
}
