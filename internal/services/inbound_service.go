// Package services – InboundService
//
// This file implements the per-message pipeline behind the webhook:
// dedup → linking / identity resolution → per-sender rate limit → the
// tool-calling agent → outbound send → assistant turn append.
//
// Processing runs off the HTTP request path; the webhook handler calls
// Dispatch and returns its acknowledgment immediately. Deliveries for the
// same sender are serialized with a keyed mutex so the history
// read-then-append is atomic per sender; distinct senders proceed
// concurrently.
package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/finchat/go-finance-bot/internal/agent"
	"github.com/finchat/go-finance-bot/internal/domain"
	"github.com/finchat/go-finance-bot/internal/repo"
)

// InboundMessage is one text message event from the platform envelope.
type InboundMessage struct {
	PlatformMsgID string
	SenderID      string
	Text          string
	ReceivedAt    time.Time
}

// Sender delivers a reply to the messaging platform.
type Sender interface {
	SendText(ctx context.Context, to, text string) error
}

// InboundService coordinates the whole inbound pipeline. All collaborators
// are injected so the pipeline is testable with fakes.
type InboundService struct {
	DB     *gorm.DB
	Agent  *agent.Orchestrator
	Sender Sender
	Linker *LinkingService

	HistoryWindow int           // recent turns fed to the model
	RateLimitMax  int           // user messages allowed per window
	RateLimitWin  time.Duration // trailing window for the count

	// ProcessTimeout bounds one message's background processing.
	ProcessTimeout time.Duration

	mu    sync.Mutex
	locks map[string]*sync.Mutex

	// wg tracks in-flight background work so tests and shutdown can wait.
	wg sync.WaitGroup
}

// Dispatch launches background processing for one message and returns
// immediately. The platform's retry timers never wait on model latency.
func (s *InboundService) Dispatch(msg InboundMessage) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		timeout := s.ProcessTimeout
		if timeout <= 0 {
			timeout = 2 * time.Minute
		}
		// Detached from the HTTP request context on purpose.
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		s.Process(ctx, msg)
	}()
}

// Wait blocks until all dispatched messages have finished processing.
func (s *InboundService) Wait() { s.wg.Wait() }

// Process runs the pipeline for one message synchronously. Nothing here is
// fatal: every failure kind degrades to a reply or a silent drop.
func (s *InboundService) Process(ctx context.Context, msg InboundMessage) {
	tr := otel.Tracer("services/InboundService")
	ctx, span := tr.Start(ctx, "Process",
		trace.WithAttributes(attribute.String("platform_msg_id", msg.PlatformMsgID)),
	)
	defer span.End()

	start := time.Now()
	defer func() { processingDuration.Observe(time.Since(start).Seconds()) }()

	// Serialize per sender: history read-then-append must not interleave.
	lock := s.lockFor(msg.SenderID)
	lock.Lock()
	defer lock.Unlock()

	// Dedup: insert-if-absent keyed by the platform message id.
	userTurn, err := repo.CreateUserTurn(ctx, s.DB, msg.PlatformMsgID, msg.SenderID, msg.Text)
	if err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			messagesProcessed.WithLabelValues(outcomeDuplicate).Inc()
			log.Debug().Str("platform_msg_id", msg.PlatformMsgID).Msg("duplicate delivery dropped")
			return
		}
		messagesProcessed.WithLabelValues(outcomeFailed).Inc()
		log.Error().Err(err).Str("platform_msg_id", msg.PlatformMsgID).Msg("user turn insert failed")
		return
	}

	// Linking attempts are handled before identity resolution.
	if code, ok := ExtractPairingCode(msg.Text); ok {
		reply := s.Linker.Attempt(ctx, msg.SenderID, code)
		s.finish(ctx, msg.SenderID, reply, domain.ActionNone, start, outcomeLinkAttempt)
		return
	}

	profile, err := repo.FindProfileBySender(ctx, s.DB, msg.SenderID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			s.finish(ctx, msg.SenderID, ReplyLinkPrompt, domain.ActionNone, start, outcomeUnlinked)
			return
		}
		messagesProcessed.WithLabelValues(outcomeFailed).Inc()
		log.Error().Err(err).Str("sender_id", msg.SenderID).Msg("profile lookup failed")
		return
	}

	if IsUnlinkCommand(msg.Text) {
		reply := s.Linker.Unlink(ctx, msg.SenderID)
		s.finish(ctx, msg.SenderID, reply, domain.ActionNone, start, outcomeLinkAttempt)
		return
	}

	// Per-sender burst control over the trailing window. The count includes
	// the turn just inserted, so with a limit of 5 the sixth message inside
	// the window short-circuits and the fifth does not.
	count, err := repo.CountUserTurnsSince(ctx, s.DB, msg.SenderID, time.Now().UTC().Add(-s.RateLimitWin))
	if err != nil {
		log.Error().Err(err).Str("sender_id", msg.SenderID).Msg("rate-limit count failed")
	} else if count > int64(s.RateLimitMax) {
		s.finish(ctx, msg.SenderID, ReplySlowDown, domain.ActionNone, start, outcomeRateLimited)
		return
	}

	history, err := repo.RecentTurns(ctx, s.DB, msg.SenderID, userTurn.ID, s.HistoryWindow)
	if err != nil {
		log.Error().Err(err).Str("sender_id", msg.SenderID).Msg("history read failed")
		history = nil
	}

	reply, action := s.runAgent(ctx, profile, history, msg.Text)
	outcome := outcomeAnswered
	if action == domain.ActionFailed && reply == ReplyFailure {
		outcome = outcomeFailed
	}
	s.finish(ctx, msg.SenderID, reply, action, start, outcome)
}

// runAgent invokes the orchestrator and degrades model or network failures
// to the generic failure reply. There is no retry here: the platform's own
// redelivery is deduped by message id, so a genuine failure stays failed.
func (s *InboundService) runAgent(ctx context.Context, profile *domain.Profile, history []domain.ConversationTurn, text string) (string, string) {
	out, err := s.Agent.Respond(ctx, profile, history, text)
	if err != nil {
		log.Error().Err(err).Str("profile_id", profile.ID).Msg("agent run failed")
		return ReplyFailure, domain.ActionFailed
	}
	return out.Text, out.Action
}

// finish sends the reply and appends the assistant turn. A send failure is
// logged and counted but does not undo prior state changes: the user's
// action has already taken effect even if they never see the confirmation.
func (s *InboundService) finish(ctx context.Context, senderID, reply, action string, start time.Time, outcome string) {
	if err := s.Sender.SendText(ctx, senderID, reply); err != nil {
		sendFailures.Inc()
		log.Error().Err(err).Str("sender_id", senderID).Msg("outbound send failed")
	}
	if _, err := repo.AppendAssistantTurn(ctx, s.DB, senderID, reply, action, time.Since(start)); err != nil {
		log.Error().Err(err).Str("sender_id", senderID).Msg("assistant turn append failed")
	}
	messagesProcessed.WithLabelValues(outcome).Inc()
}

// lockFor returns the mutex guarding a sender's pipeline, creating it on
// first use. Locks are never evicted; sender cardinality is bounded by the
// user base.
func (s *InboundService) lockFor(senderID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.locks == nil {
		s.locks = make(map[string]*sync.Mutex)
	}
	if l, ok := s.locks[senderID]; ok {
		return l
	}
	l := &sync.Mutex{}
	s.locks[senderID] = l
	return l
}
