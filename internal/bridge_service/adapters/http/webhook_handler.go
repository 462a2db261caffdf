package http

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	chi_middleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"

	"github.com/aradsms/imessage_bridge/internal/bridge_service/app"
	"github.com/aradsms/imessage_bridge/internal/bridge_service/domain"
	"github.com/aradsms/imessage_bridge/internal/bridge_service/ratelimit"
)

const DefaultMaxBodyBytes = 1 << 20 // 1 MiB

// Header conventions accepted for the shared secret, checked in order.
const (
	HeaderProviderSecret = "X-Sendblue-Secret"
	HeaderWebhookSecret  = "X-Webhook-Secret"
	HeaderAPIKey         = "X-Api-Key"
)

// WebhookConfig configures the receiver.
type WebhookConfig struct {
	// Secret, when non-empty, must be presented by every request.
	Secret         string
	MaxBodyBytes   int64
	ProcessTimeout time.Duration
	TrustedProxies *TrustedProxies
}

// WebhookHandler accepts messages pushed by the provider. It acknowledges a
// structurally valid payload before processing, then runs the pipeline in
// the background.
type WebhookHandler struct {
	processor app.MessageProcessor
	limiter   ratelimit.Limiter
	cfg       WebhookConfig
	validate  *validator.Validate
	logger    *slog.Logger

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func NewWebhookHandler(processor app.MessageProcessor, limiter ratelimit.Limiter, cfg WebhookConfig, logger *slog.Logger) *WebhookHandler {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if cfg.ProcessTimeout <= 0 {
		cfg.ProcessTimeout = time.Minute
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &WebhookHandler{
		processor: processor,
		limiter:   limiter,
		cfg:       cfg,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
		logger:    logger.With("component", "webhook_handler"),
		baseCtx:   ctx,
		cancel:    cancel,
	}
}

// HandleWebhook is mounted at the configured webhook path for every method.
func (h *WebhookHandler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.logger.With("request_id", chi_middleware.GetReqID(ctx))

	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		h.jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	clientIP := ClientIP(r, h.cfg.TrustedProxies)
	if allowed, retryAfter := h.limiter.Allow(ctx, clientIP); !allowed {
		w.Header().Set("Retry-After", retryAfterSeconds(retryAfter))
		h.reject(ctx, w, logger.With("client_ip", clientIP), domain.ErrRateLimited)
		return
	}

	if h.cfg.Secret != "" && !h.secretMatches(r.Header) {
		h.reject(ctx, w, logger.With("client_ip", clientIP), fmt.Errorf("%w: webhook secret mismatch", domain.ErrUnauthorized))
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxBodyBytes)
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			logger.WarnContext(ctx, "Webhook body too large", "limit_bytes", tooLarge.Limit)
			h.jsonError(w, "Request body too large", http.StatusRequestEntityTooLarge)
			return
		}
		logger.ErrorContext(ctx, "Failed to read webhook body", "error", err)
		h.jsonError(w, "Error reading request body", http.StatusBadRequest)
		return
	}

	var payload WebhookPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		h.reject(ctx, w, logger, fmt.Errorf("%w: invalid JSON payload: %w", domain.ErrValidation, err))
		return
	}
	payload.trim()
	if err := h.validate.Struct(payload); err != nil {
		h.reject(ctx, w, logger, fmt.Errorf("%w: message_handle and from_number are required: %w", domain.ErrValidation, err))
		return
	}

	h.writeJSON(w, http.StatusOK, webhookAck{Received: true})

	if payload.IsOutbound {
		logger.DebugContext(ctx, "Discarding outbound echo", "message_handle", payload.MessageHandle)
		return
	}
	h.processAsync(payload.toInbound(), logger)
}

func (h *WebhookHandler) processAsync(msg domain.InboundMessage, logger *slog.Logger) {
	h.wg.Add(1)
	webhookInFlightGauge.Inc()
	go func() {
		defer h.wg.Done()
		defer webhookInFlightGauge.Dec()
		ctx, cancel := context.WithTimeout(h.baseCtx, h.cfg.ProcessTimeout)
		defer cancel()
		if _, err := h.processor.Process(ctx, msg, domain.SourceWebhook); err != nil {
			logger.ErrorContext(ctx, "Webhook message processing failed", "message_handle", msg.Handle, "error", err)
		}
	}()
}

// Close waits for acknowledged messages to finish processing. If ctx expires
// first, the remaining work is cancelled and ctx's error is returned.
func (h *WebhookHandler) Close(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		h.cancel()
		return nil
	case <-ctx.Done():
		h.cancel()
		<-done
		return ctx.Err()
	}
}

func (h *WebhookHandler) secretMatches(header http.Header) bool {
	candidates := []string{
		header.Get(HeaderProviderSecret),
		header.Get(HeaderWebhookSecret),
		header.Get(HeaderAPIKey),
		bearerToken(header.Get("Authorization")),
	}
	expected := []byte(h.cfg.Secret)
	for _, c := range candidates {
		if c != "" && subtle.ConstantTimeCompare([]byte(c), expected) == 1 {
			return true
		}
	}
	return false
}

func bearerToken(authz string) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(authz), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

func retryAfterSeconds(d time.Duration) string {
	secs := int(math.Ceil(d.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(secs)
}

func (h *WebhookHandler) writeJSON(w http.ResponseWriter, status int, body any) {
	webhookResponsesCounter.WithLabelValues(strconv.Itoa(status)).Inc()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Warn("Failed to write webhook response", "error", err)
	}
}

// reject maps a domain error to its HTTP status and writes it.
func (h *WebhookHandler) reject(ctx context.Context, w http.ResponseWriter, logger *slog.Logger, err error) {
	status := http.StatusInternalServerError
	message := "Internal server error"
	switch {
	case errors.Is(err, domain.ErrRateLimited):
		status, message = http.StatusTooManyRequests, "Too many requests"
	case errors.Is(err, domain.ErrUnauthorized):
		status, message = http.StatusUnauthorized, "Unauthorized"
	case errors.Is(err, domain.ErrValidation):
		status, message = http.StatusBadRequest, "Invalid webhook payload"
	}
	logger.WarnContext(ctx, "Webhook request rejected", "status_code", status, "error", err)
	h.jsonError(w, message, status)
}

func (h *WebhookHandler) jsonError(w http.ResponseWriter, message string, status int) {
	h.writeJSON(w, status, errorResponse{Error: message})
}
