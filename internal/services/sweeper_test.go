package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/supportdesk/conversation-engine/internal/domain"
	"github.com/supportdesk/conversation-engine/internal/repo"
)

func seedIdleSession(t *testing.T, db *gorm.DB, customerID string, lastActivity time.Time, adminID *string) *domain.ChatSession {
	t.Helper()
	s := &domain.ChatSession{
		ID:              uuid.NewString(),
		CustomerID:      customerID,
		AssignedAdminID: adminID,
		Status:          domain.ChatActive,
		CreatedAt:       lastActivity,
		UpdatedAt:       lastActivity,
	}
	if err := db.Create(s).Error; err != nil {
		t.Fatalf("seed session: %v", err)
	}
	return s
}

func TestSweeperRunOnce_AbandonsIdleSessions(t *testing.T) {
	db := newServiceDB(t)
	prod := &fakeProducer{}
	sw := NewSweeper(db, prod, zerolog.Nop(), 30*time.Minute, time.Minute, true)
	ctx := context.Background()
	now := time.Now().UTC()

	idle := seedIdleSession(t, db, "c1", now.Add(-time.Hour), nil)
	fresh := seedIdleSession(t, db, "c2", now.Add(-time.Minute), nil)

	swept, err := sw.RunOnce(ctx)
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if swept != 1 {
		t.Fatalf("expected 1 swept, got %d", swept)
	}

	got, err := repo.GetChatSession(ctx, db, idle.ID)
	if err != nil {
		t.Fatalf("reload idle: %v", err)
	}
	if got.Status != domain.ChatAbandoned || got.EndedAt == nil {
		t.Fatalf("idle session not abandoned: %+v", got)
	}
	if !prod.has("chat.abandoned") {
		t.Fatalf("chat.abandoned not emitted")
	}

	// The abandonment is recorded on the thread itself.
	msgs, err := repo.ListMessagesSince(ctx, db, idle.ID, 0, 0, true)
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if len(msgs) != 1 || msgs[0].SenderType != domain.SenderSystem {
		t.Fatalf("expected system abandonment message, got %+v", msgs)
	}

	got, err = repo.GetChatSession(ctx, db, fresh.ID)
	if err != nil {
		t.Fatalf("reload fresh: %v", err)
	}
	if got.Status != domain.ChatActive {
		t.Fatalf("fresh session swept: %+v", got)
	}
}

func TestSweeperRunOnce_SkipsAssignedSessions(t *testing.T) {
	db := newServiceDB(t)
	sw := NewSweeper(db, nil, zerolog.Nop(), 30*time.Minute, time.Minute, true)
	ctx := context.Background()
	admin := "a1"

	assigned := seedIdleSession(t, db, "c1", time.Now().UTC().Add(-time.Hour), &admin)

	swept, err := sw.RunOnce(ctx)
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if swept != 0 {
		t.Fatalf("expected 0 swept with skipAssigned, got %d", swept)
	}
	got, _ := repo.GetChatSession(ctx, db, assigned.ID)
	if got.Status != domain.ChatActive {
		t.Fatalf("assigned session swept: %+v", got)
	}

	// With the policy off the same session is fair game.
	sw.SkipAssigned = false
	swept, err = sw.RunOnce(ctx)
	if err != nil {
		t.Fatalf("second RunOnce: %v", err)
	}
	if swept != 1 {
		t.Fatalf("expected 1 swept without skipAssigned, got %d", swept)
	}
}

func TestSweeperRunOnce_SecondPassFindsNothing(t *testing.T) {
	db := newServiceDB(t)
	sw := NewSweeper(db, nil, zerolog.Nop(), 30*time.Minute, time.Minute, true)
	ctx := context.Background()

	seedIdleSession(t, db, "c1", time.Now().UTC().Add(-time.Hour), nil)

	if swept, err := sw.RunOnce(ctx); err != nil || swept != 1 {
		t.Fatalf("first pass: swept=%d err=%v", swept, err)
	}
	if swept, err := sw.RunOnce(ctx); err != nil || swept != 0 {
		t.Fatalf("second pass must be empty: swept=%d err=%v", swept, err)
	}
}

func TestSweeperRun_StopsOnContextCancel(t *testing.T) {
	db := newServiceDB(t)
	sw := NewSweeper(db, nil, zerolog.Nop(), 30*time.Minute, 10*time.Millisecond, true)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sw.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("sweeper did not stop on cancel")
	}
}
