package app

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/aradsms/imessage_bridge/internal/bridge_service/domain"
	"github.com/aradsms/imessage_bridge/internal/platform/messagebroker"
)

// ReconcilerConfig controls DeliveryStatusReconciler scheduling.
type ReconcilerConfig struct {
	Interval    time.Duration
	BatchSize   int
	CallTimeout time.Duration
	// SubjectPrefix is prepended to the status when publishing change events.
	SubjectPrefix string
}

// ReconcileResult summarizes one reconciliation cycle.
type ReconcileResult struct {
	Checked  int
	Updated  int
	Terminal int
	Failed   int
}

// DeliveryStatusReconciler polls the provider for the status of messages this
// service sent and records what it learns.
type DeliveryStatusReconciler struct {
	repo      domain.OutboundStatusRepository
	provider  domain.Provider
	terminal  domain.TerminalSet
	publisher messagebroker.Publisher // optional
	cfg       ReconcilerConfig
	now       func() time.Time
	logger    *slog.Logger
}

// NewDeliveryStatusReconciler builds a reconciler. publisher may be nil.
func NewDeliveryStatusReconciler(
	repo domain.OutboundStatusRepository,
	provider domain.Provider,
	terminal domain.TerminalSet,
	publisher messagebroker.Publisher,
	cfg ReconcilerConfig,
	logger *slog.Logger,
) *DeliveryStatusReconciler {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 25
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 10 * time.Second
	}
	if cfg.SubjectPrefix == "" {
		cfg.SubjectPrefix = "bridge.status"
	}
	return &DeliveryStatusReconciler{
		repo:      repo,
		provider:  provider,
		terminal:  terminal,
		publisher: publisher,
		cfg:       cfg,
		now:       time.Now,
		logger:    logger.With("component", "status_reconciler"),
	}
}

// ReconcileOnce checks one batch of pending records, least recently checked first.
// Only a failure to list the batch is returned; per-record failures are counted.
func (r *DeliveryStatusReconciler) ReconcileOnce(ctx context.Context) (ReconcileResult, error) {
	var res ReconcileResult
	start := time.Now()
	defer func() { reconcileDurationHist.Observe(time.Since(start).Seconds()) }()

	pending, err := r.repo.ListPending(ctx, r.cfg.BatchSize)
	if err != nil {
		return res, err
	}

	for _, rec := range pending {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		res.Checked++
		r.checkOne(ctx, rec, &res)
	}
	if res.Checked > 0 {
		r.logger.InfoContext(ctx, "Reconciliation cycle complete",
			"checked", res.Checked, "updated", res.Updated, "terminal", res.Terminal, "failed", res.Failed)
	}
	return res, nil
}

func (r *DeliveryStatusReconciler) checkOne(ctx context.Context, rec domain.OutboundStatusRecord, res *ReconcileResult) {
	log := r.logger.With("message_handle", rec.Handle)

	callCtx, cancel := context.WithTimeout(ctx, r.cfg.CallTimeout)
	status, err := r.provider.LookupStatus(callCtx, rec.Handle)
	cancel()
	status = strings.ToLower(strings.TrimSpace(status))

	checkedAt := r.now().UTC()
	if err != nil || status == "" {
		res.Failed++
		statusChecksCounter.WithLabelValues("lookup_error").Inc()
		log.WarnContext(ctx, "Status lookup failed; rotating record to back of queue", "error", err)
		// Status and terminal flag stay as they are; only the check time moves.
		if err := r.repo.TouchChecked(ctx, rec.Handle, checkedAt); err != nil {
			log.ErrorContext(ctx, "Failed to refresh last_checked_at", "error", err)
		}
		return
	}

	terminal := r.terminal.IsTerminal(status)
	updated, err := r.repo.UpdateStatus(ctx, rec.Handle, status, terminal, checkedAt)
	if err != nil {
		res.Failed++
		statusChecksCounter.WithLabelValues("store_error").Inc()
		log.ErrorContext(ctx, "Failed to store delivery status", "status", status, "error", err)
		return
	}
	if !updated {
		// The record went terminal (or vanished) after it was listed.
		current, err := r.repo.Get(ctx, rec.Handle)
		if err != nil {
			log.DebugContext(ctx, "Status update skipped; record no longer pending", "status", status, "error", err)
			return
		}
		log.DebugContext(ctx, "Status update skipped; record already terminal",
			"status", status, "stored_status", current.Status, "is_terminal", current.IsTerminal)
		return
	}

	res.Updated++
	if terminal {
		res.Terminal++
		statusChecksCounter.WithLabelValues("terminal").Inc()
	} else {
		statusChecksCounter.WithLabelValues("updated").Inc()
	}

	if status != rec.Status || terminal {
		log.InfoContext(ctx, "Delivery status changed", "previous_status", rec.Status, "status", status, "is_terminal", terminal)
		r.publish(ctx, domain.StatusChange{
			Handle:     rec.Handle,
			ChatID:     rec.ChatID,
			Status:     status,
			IsTerminal: terminal,
			CheckedAt:  checkedAt,
		})
	}
}

func (r *DeliveryStatusReconciler) publish(ctx context.Context, change domain.StatusChange) {
	if r.publisher == nil {
		return
	}
	payload, err := json.Marshal(change)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to marshal status change", "message_handle", change.Handle, "error", err)
		return
	}
	subject := StatusSubject(r.cfg.SubjectPrefix, change.Status)
	if err := r.publisher.Publish(ctx, subject, payload); err != nil {
		r.logger.WarnContext(ctx, "Failed to publish status change", "subject", subject, "message_handle", change.Handle, "error", err)
	}
}

// StatusSubject builds "<prefix>.<status>", replacing characters NATS treats
// as token separators or wildcards.
func StatusSubject(prefix, status string) string {
	token := strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t':
			return '_'
		}
		return r
	}, strings.ToLower(status))
	return prefix + "." + token
}

// Run reconciles on every tick until ctx is cancelled.
func (r *DeliveryStatusReconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()
	r.logger.InfoContext(ctx, "Status reconciler started", "interval", r.cfg.Interval.String(), "batch_size", r.cfg.BatchSize)
	for {
		select {
		case <-ctx.Done():
			r.logger.InfoContext(ctx, "Status reconciler stopping")
			return
		case <-ticker.C:
			if _, err := r.ReconcileOnce(ctx); err != nil && ctx.Err() == nil {
				r.logger.ErrorContext(ctx, "Reconciliation cycle failed", "error", err)
			}
		}
	}
}
