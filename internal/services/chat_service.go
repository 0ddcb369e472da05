// This file implements the ChatService, which owns the live chat session
// lifecycle: idempotent session start (at most one active session per
// customer), admin pairing, explicit ending, and message sends that reset the
// abandonment window. Auto-subject generation from the first customer message
// mirrors the ticket subject so admin listings stay scannable.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/supportdesk/conversation-engine/internal/domain"
	"github.com/supportdesk/conversation-engine/internal/events"
	"github.com/supportdesk/conversation-engine/internal/repo"
)

// ChatService coordinates chat session persistence and the chat side of the
// shared message log.
type ChatService struct {
	DB       *gorm.DB
	Producer events.Producer

	// ReuseActive controls the duplicate-start policy: when true (default),
	// starting a chat while one is active returns the existing session;
	// when false the start is rejected with ErrActiveSessionExists.
	ReuseActive bool

	// MaxContentRunes caps message content length; 0 disables the cap.
	MaxContentRunes int
	// SubjectMaxLen caps auto-generated subjects by rune length.
	SubjectMaxLen int
	// SubjectLocale selects the casing locale for auto-generated subjects.
	SubjectLocale language.Tag
}

// NewChatService constructs a ChatService with the default policy and limits.
func NewChatService(db *gorm.DB, producer events.Producer) *ChatService {
	return &ChatService{
		DB:              db,
		Producer:        producer,
		ReuseActive:     true,
		MaxContentRunes: 4000,
		SubjectMaxLen:   60,
		SubjectLocale:   language.English,
	}
}

// Start begins a chat session for the customer. If an active session already
// exists the call is idempotent under the default policy: the existing
// session is returned unchanged with reused=true and no duplicate is
// created. The check and insert run in one transaction so two concurrent
// starts cannot both create a session.
func (s *ChatService) Start(ctx context.Context, customerID, customerName, subject, initialMessage string) (*domain.ChatSession, bool, error) {
	tr := otel.Tracer("services/ChatService")
	ctx, span := tr.Start(ctx, "Start",
		trace.WithAttributes(attribute.String("customer.id", customerID)),
	)
	defer span.End()

	subject = collapseSpaces(subject)
	initialMessage = strings.TrimSpace(initialMessage)
	if s.MaxContentRunes > 0 && utf8.RuneCountInString(initialMessage) > s.MaxContentRunes {
		return nil, false, newValidationError("initial_message", fmt.Sprintf("must be at most %d characters", s.MaxContentRunes))
	}

	var (
		session *domain.ChatSession
		reused  bool
	)
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := repo.GetActiveChatSession(ctx, tx, customerID)
		if err == nil {
			if !s.ReuseActive {
				return ErrActiveSessionExists
			}
			session, reused = existing, true
			return nil
		}
		if !errors.Is(err, repo.ErrNotFound) {
			return err
		}

		now := time.Now().UTC()
		if subject == "" && initialMessage != "" {
			subject = s.subjectFrom(initialMessage)
		}
		session = &domain.ChatSession{
			ID:         uuid.NewString(),
			CustomerID: customerID,
			Subject:    subject,
			Status:     domain.ChatActive,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if err := repo.CreateChatSession(ctx, tx, session); err != nil {
			return err
		}
		if initialMessage != "" {
			m := repo.NewMessage(session.ID, domain.ThreadChat, domain.SenderCustomer, &customerID, customerName, initialMessage, false, nil)
			if _, err := repo.AppendMessage(ctx, tx, m); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}

	if !reused && s.Producer != nil {
		s.Producer.Emit(ctx, events.ChatStarted, session.ID, map[string]any{
			"customer_id": customerID,
			"subject":     session.Subject,
		})
	}
	return session, reused, nil
}

// Get returns a session by id without ownership scoping; callers must have
// passed the authorization gate first.
func (s *ChatService) Get(ctx context.Context, sessionID string) (*domain.ChatSession, error) {
	sess, err := repo.GetChatSession(ctx, s.DB, sessionID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	return sess, nil
}

// GetForCustomer returns a session owned by customerID, or ErrSessionNotFound.
func (s *ChatService) GetForCustomer(ctx context.Context, sessionID, customerID string) (*domain.ChatSession, error) {
	sess, err := repo.GetCustomerChatSession(ctx, s.DB, sessionID, customerID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	return sess, nil
}

// ListForCustomer returns a page of the customer's sessions plus the total.
func (s *ChatService) ListForCustomer(ctx context.Context, customerID string, status domain.ChatStatus, page, pageSize int) ([]domain.ChatSession, int64, error) {
	if status != "" && !status.Valid() {
		return nil, 0, newValidationError("status", "unknown status")
	}
	_, pageSize, offset := clampPage(page, pageSize)

	total, err := repo.CountCustomerChatSessions(ctx, s.DB, customerID, status)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.ChatSession{}, 0, nil
	}
	items, err := repo.ListCustomerChatSessions(ctx, s.DB, customerID, status, offset, pageSize)
	return items, total, err
}

// End transitions a session to the given terminal status. Ending an already
// terminal session returns ErrThreadClosed; the compare-and-swap in the repo
// ensures a concurrent end and sweep cannot both win. A system message
// records the ending for the activity feed.
func (s *ChatService) End(ctx context.Context, sessionID string, reason domain.ChatStatus) (*domain.ChatSession, error) {
	tr := otel.Tracer("services/ChatService")
	ctx, span := tr.Start(ctx, "End",
		trace.WithAttributes(
			attribute.String("session.id", sessionID),
			attribute.String("reason", string(reason)),
		),
	)
	defer span.End()

	if !reason.Terminal() {
		return nil, newValidationError("reason", "must be ended or abandoned")
	}

	// Existence first, so unknown ids surface as not-found rather than closed.
	if _, err := s.Get(ctx, sessionID); err != nil {
		return nil, err
	}

	won, err := repo.EndChatSession(ctx, s.DB, sessionID, reason, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	if !won {
		return nil, ErrThreadClosed
	}

	sys := repo.NewMessage(sessionID, domain.ThreadChat, domain.SenderSystem, nil, "",
		"Chat session "+string(reason), false, nil)
	if _, err := repo.AppendMessage(ctx, s.DB, sys); err != nil {
		// The session is already terminal; the marker message is best effort
		// and a retry would read as a conflict.
		log.Error().Err(err).Str("session_id", sessionID).Msg("failed to record chat ending message")
	}

	if s.Producer != nil {
		event := events.ChatEnded
		if reason == domain.ChatAbandoned {
			event = events.ChatAbandoned
		}
		s.Producer.Emit(ctx, event, sessionID, map[string]any{"reason": reason})
	}
	return s.Get(ctx, sessionID)
}

// AssignAdmin pairs an admin with an active session.
func (s *ChatService) AssignAdmin(ctx context.Context, sessionID, adminID string) error {
	if strings.TrimSpace(adminID) == "" {
		return newValidationError("admin_id", "must not be empty")
	}
	err := repo.AssignChatAdmin(ctx, s.DB, sessionID, adminID)
	if errors.Is(err, repo.ErrNotFound) {
		// Either missing or no longer active; distinguish for the caller.
		if _, gerr := s.Get(ctx, sessionID); gerr != nil {
			return gerr
		}
		return ErrThreadClosed
	}
	return err
}

// SendMessage appends a message to an active session and bumps the session's
// activity timestamp, resetting the abandonment window. Sends on terminal
// sessions fail with ErrThreadClosed.
func (s *ChatService) SendMessage(ctx context.Context, sessionID string, senderType domain.SenderType, senderID *string, senderName, content string) (*domain.Message, error) {
	tr := otel.Tracer("services/ChatService")
	ctx, span := tr.Start(ctx, "SendMessage",
		trace.WithAttributes(
			attribute.String("session.id", sessionID),
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

	sess, err := s.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !sess.Active() {
		return nil, ErrThreadClosed
	}

	var msg *domain.Message
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		m := repo.NewMessage(sessionID, domain.ThreadChat, senderType, senderID, senderName, content, false, nil)
		stored, err := repo.AppendMessage(ctx, tx, m)
		if err != nil {
			return err
		}
		msg = stored

		if sess.Subject == "" && senderType == domain.SenderCustomer {
			if subject := s.subjectFrom(content); subject != "" {
				if err := repo.UpdateChatSubject(ctx, tx, sessionID, subject); err != nil {
					return err
				}
			}
		}
		return repo.TouchChatSession(ctx, tx, sessionID)
	})
	if err != nil {
		return nil, err
	}

	messagesAppended.WithLabelValues(string(domain.ThreadChat), string(senderType)).Inc()
	if s.Producer != nil {
		s.Producer.Emit(ctx, events.MessageSent, sessionID, map[string]any{
			"thread_type": domain.ThreadChat,
			"message_id":  msg.ID,
			"sender_type": senderType,
		})
	}
	return msg, nil
}

// subjectFrom derives a concise session subject from a message.
func (s *ChatService) subjectFrom(content string) string {
	words := strings.Fields(content)
	if len(words) == 0 {
		return ""
	}
	if len(words) > 8 {
		words = words[:8]
	}
	caser := cases.Title(s.localeOrDefault())
	subject := caser.String(strings.ToLower(words[0]))
	if len(words) > 1 {
		subject += " " + strings.Join(words[1:], " ")
	}
	max := s.SubjectMaxLen
	if max <= 0 {
		max = 60
	}
	if utf8.RuneCountInString(subject) > max {
		subject = string([]rune(subject)[:max])
	}
	return subject
}

// localeOrDefault returns the configured casing locale or English if unset.
func (s *ChatService) localeOrDefault() language.Tag {
	if s.SubjectLocale == language.Und {
		return language.English
	}
	return s.SubjectLocale
}
