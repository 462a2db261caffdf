package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aradsms/imessage_bridge/internal/bridge_service/domain"
)

// Outcome is the result of one pipeline invocation.
type Outcome string

const (
	OutcomeProcessed Outcome = "processed"
	OutcomeInvalid   Outcome = "invalid"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeRejected  Outcome = "rejected"
	OutcomeEmpty     Outcome = "empty"
	OutcomeFailed    Outcome = "failed"
)

// MessageProcessor is what both intake paths feed into.
type MessageProcessor interface {
	Process(ctx context.Context, msg domain.InboundMessage, source string) (Outcome, error)
}

// IngestionPipeline is the only place where inbound messages are claimed,
// authorized and forwarded.
type IngestionPipeline struct {
	dedup      *Deduplicator
	guard      *AccessGuard
	provider   domain.Provider
	backend    domain.Backend
	statusRepo domain.OutboundStatusRepository
	terminal   domain.TerminalSet
	now        func() time.Time
	logger     *slog.Logger
}

func NewIngestionPipeline(
	dedup *Deduplicator,
	guard *AccessGuard,
	provider domain.Provider,
	backend domain.Backend,
	statusRepo domain.OutboundStatusRepository,
	terminal domain.TerminalSet,
	logger *slog.Logger,
) *IngestionPipeline {
	return &IngestionPipeline{
		dedup:      dedup,
		guard:      guard,
		provider:   provider,
		backend:    backend,
		statusRepo: statusRepo,
		terminal:   terminal,
		now:        time.Now,
		logger:     logger.With("component", "ingestion_pipeline"),
	}
}

// Process runs one message through claim, authorization and backend dispatch.
// Duplicates, rejected senders and empty messages are normal outcomes and
// come back with a nil error.
func (p *IngestionPipeline) Process(ctx context.Context, msg domain.InboundMessage, source string) (outcome Outcome, err error) {
	defer func() { inboundMessagesCounter.WithLabelValues(source, string(outcome)).Inc() }()

	msg.Normalize()
	if err := msg.Validate(); err != nil {
		p.logger.WarnContext(ctx, "Discarding invalid inbound message", "source", source, "error", err)
		return OutcomeInvalid, err
	}
	log := p.logger.With("message_handle", msg.Handle, "source", source)

	claimed, err := p.dedup.TryClaim(ctx, msg.Handle)
	if err != nil {
		log.ErrorContext(ctx, "Failed to claim inbound message", "error", err)
		return OutcomeFailed, err
	}
	if !claimed {
		log.DebugContext(ctx, "Dropping inbound message", "reason", domain.ErrDuplicateMessage)
		return OutcomeDuplicate, nil
	}

	if !p.guard.IsAllowed(msg.FromNumber) {
		log.InfoContext(ctx, "Dropping inbound message", "reason", domain.ErrPolicyRejected, "from_number", msg.FromNumber, "access_mode", string(p.guard.Mode()))
		return OutcomeRejected, nil
	}

	if !msg.HasPayload() {
		log.DebugContext(ctx, "Inbound message has no text or media; dropping")
		return OutcomeEmpty, nil
	}

	if err := p.provider.MarkRead(ctx, msg.FromNumber); err != nil {
		log.DebugContext(ctx, "Mark-read failed; continuing", "error", err)
	}

	env := domain.NewEnvelope(msg, source, p.now())
	events, err := p.backend.Dispatch(ctx, env)
	if err != nil {
		log.ErrorContext(ctx, "Backend dispatch failed", "envelope_id", env.ID.String(), "error", err)
		return OutcomeFailed, fmt.Errorf("dispatch %q: %w", msg.Handle, err)
	}

	if err := p.relay(ctx, env, events, log); err != nil {
		return OutcomeFailed, err
	}
	log.InfoContext(ctx, "Inbound message processed", "envelope_id", env.ID.String())
	return OutcomeProcessed, nil
}

// relay consumes backend events until the channel closes. It is the single
// dispatch loop for one reply.
func (p *IngestionPipeline) relay(ctx context.Context, env domain.Envelope, events <-chan domain.ReplyEvent, log *slog.Logger) error {
	var errs []error
	for {
		select {
		case <-ctx.Done():
			return errors.Join(append(errs, ctx.Err())...)
		case ev, ok := <-events:
			if !ok {
				return errors.Join(errs...)
			}
			switch ev.Kind {
			case domain.ReplyStarted:
				if err := p.provider.SendTypingIndicator(ctx, env.ChatID); err != nil {
					log.DebugContext(ctx, "Typing indicator failed", "error", err)
				}
			case domain.ReplyContent:
				if err := p.deliver(ctx, env.ChatID, ev, log); err != nil {
					log.ErrorContext(ctx, "Failed to deliver reply", "chat_id", env.ChatID, "error", err)
					errs = append(errs, err)
				}
			case domain.ReplyIdle:
				log.DebugContext(ctx, "Backend reply idle")
			case domain.ReplyError:
				log.ErrorContext(ctx, "Backend reported an error", "error", ev.Err)
				if ev.Err != nil {
					errs = append(errs, ev.Err)
				}
			default:
				log.WarnContext(ctx, "Ignoring unknown reply event", "kind", ev.Kind.String())
			}
		}
	}
}

// deliver sends one chunk of reply content and registers it for delivery tracking.
func (p *IngestionPipeline) deliver(ctx context.Context, chatID string, ev domain.ReplyEvent, log *slog.Logger) error {
	var (
		res domain.SendResult
		err error
	)
	switch {
	case ev.MediaURL != "":
		res, err = p.provider.SendMedia(ctx, chatID, ev.Text, ev.MediaURL)
	case strings.TrimSpace(ev.Text) != "":
		res, err = p.provider.SendText(ctx, chatID, ev.Text)
	default:
		return nil
	}
	if err != nil {
		return fmt.Errorf("send reply: %w", err)
	}
	if res.Handle == "" {
		log.WarnContext(ctx, "Provider returned no message handle; delivery will not be tracked", "chat_id", chatID)
		return nil
	}

	status := domain.StatusSent
	if res.Status != "" && !p.terminal.IsTerminal(res.Status) {
		status = strings.ToLower(res.Status)
	}
	rec := domain.OutboundStatusRecord{
		Handle:    res.Handle,
		ChatID:    chatID,
		Status:    status,
		CreatedAt: p.now().UTC(),
	}
	if err := p.statusRepo.Create(ctx, rec); err != nil {
		return fmt.Errorf("record outbound status %q: %w", res.Handle, err)
	}
	return nil
}

var _ MessageProcessor = (*IngestionPipeline)(nil)
