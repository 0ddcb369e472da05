// This file implements the background abandonment sweep for chat sessions.
// Sessions whose last activity is older than the configured window are
// transitioned to abandoned. The per-session compare-and-swap makes the
// sweep safe to run on every instance concurrently: exactly one sweeper
// wins each session, and a message that lands between the scan and the
// swap keeps the session alive.
package services

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/supportdesk/conversation-engine/internal/domain"
	"github.com/supportdesk/conversation-engine/internal/events"
	"github.com/supportdesk/conversation-engine/internal/repo"
)

// sweepBatchSize caps the number of candidate sessions per pass. Leftovers
// are picked up on the next tick.
const sweepBatchSize = 500

// Sweeper marks idle chat sessions abandoned on a fixed interval.
type Sweeper struct {
	DB       *gorm.DB
	Producer events.Producer
	Log      zerolog.Logger

	// AbandonAfter is the inactivity window after which an active session is
	// considered abandoned.
	AbandonAfter time.Duration
	// Interval is the delay between sweep runs.
	Interval time.Duration
	// SkipAssigned leaves sessions with an admin attached to an explicit end.
	SkipAssigned bool
}

// NewSweeper constructs a Sweeper with the given policy.
func NewSweeper(db *gorm.DB, producer events.Producer, log zerolog.Logger, abandonAfter, interval time.Duration, skipAssigned bool) *Sweeper {
	return &Sweeper{
		DB:           db,
		Producer:     producer,
		Log:          log,
		AbandonAfter: abandonAfter,
		Interval:     interval,
		SkipAssigned: skipAssigned,
	}
}

// Run executes the sweep on s.Interval until ctx is cancelled. One run is
// performed immediately on start.
func (s *Sweeper) Run(ctx context.Context) {
	interval := s.Interval
	if interval <= 0 {
		interval = time.Minute
	}

	if _, err := s.RunOnce(ctx); err != nil {
		s.Log.Error().Err(err).Msg("abandonment sweep failed")
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.Log.Info().Msg("abandonment sweeper stopping")
			return
		case <-ticker.C:
			if _, err := s.RunOnce(ctx); err != nil {
				s.Log.Error().Err(err).Msg("abandonment sweep failed")
			}
		}
	}
}

// RunOnce performs a single sweep pass and returns the number of sessions it
// transitioned. Losing a session's compare-and-swap is not an error; another
// instance won it or activity resumed.
func (s *Sweeper) RunOnce(ctx context.Context) (int, error) {
	tr := otel.Tracer("services/Sweeper")
	ctx, span := tr.Start(ctx, "RunOnce")
	defer span.End()

	now := time.Now().UTC()
	cutoff := now.Add(-s.AbandonAfter)
	ids, err := repo.ListIdleActiveSessions(ctx, s.DB, cutoff, s.SkipAssigned, sweepBatchSize)
	if err != nil {
		sweepRuns.WithLabelValues("error").Inc()
		return 0, err
	}

	swept := 0
	for _, id := range ids {
		won, err := repo.MarkChatAbandoned(ctx, s.DB, id, cutoff, now)
		if err != nil {
			// One bad session must not stop the rest of the pass.
			s.Log.Error().Err(err).Str("session_id", id).Msg("failed to mark session abandoned")
			continue
		}
		if !won {
			continue
		}
		swept++
		sessionsSwept.Inc()

		sys := repo.NewMessage(id, domain.ThreadChat, domain.SenderSystem, nil, "",
			"Chat session abandoned due to inactivity", false, nil)
		if _, err := repo.AppendMessage(ctx, s.DB, sys); err != nil {
			s.Log.Error().Err(err).Str("session_id", id).Msg("failed to record abandonment message")
		}
		if s.Producer != nil {
			s.Producer.Emit(ctx, events.ChatAbandoned, id, map[string]any{"reason": "inactivity"})
		}
		s.Log.Info().Str("session_id", id).Msg("chat session marked abandoned")
	}

	span.SetAttributes(attribute.Int("sessions.candidates", len(ids)), attribute.Int("sessions.swept", swept))
	sweepRuns.WithLabelValues("ok").Inc()
	if swept > 0 {
		s.Log.Info().Int("candidates", len(ids)).Int("swept", swept).Msg("abandonment sweep completed")
	}
	return swept, nil
}
