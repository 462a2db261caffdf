package http_test

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	adapter_http "github.com/aradsms/imessage_bridge/internal/bridge_service/adapters/http"
	"github.com/aradsms/imessage_bridge/internal/bridge_service/app"
	"github.com/aradsms/imessage_bridge/internal/bridge_service/domain"
	"github.com/aradsms/imessage_bridge/internal/bridge_service/ratelimit"
)

const webhookPath = "/webhooks/sendblue"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type recordingProcessor struct {
	mu       sync.Mutex
	messages []domain.InboundMessage
	sources  []string
}

func (p *recordingProcessor) Process(_ context.Context, msg domain.InboundMessage, source string) (app.Outcome, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, msg)
	p.sources = append(p.sources, source)
	return app.OutcomeProcessed, nil
}

func (p *recordingProcessor) Messages() []domain.InboundMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]domain.InboundMessage(nil), p.messages...)
}

type webhookFixture struct {
	handler   *adapter_http.WebhookHandler
	processor *recordingProcessor
	router    http.Handler
}

func newWebhookFixture(t *testing.T, cfg adapter_http.WebhookConfig, limit int) *webhookFixture {
	t.Helper()
	limiter, err := ratelimit.NewFixedWindowLimiter(limit, time.Minute, discardLogger())
	require.NoError(t, err)
	processor := &recordingProcessor{}
	handler := adapter_http.NewWebhookHandler(processor, limiter, cfg, discardLogger())
	return &webhookFixture{
		handler:   handler,
		processor: processor,
		router:    adapter_http.NewRouter(handler, webhookPath, discardLogger()),
	}
}

func (f *webhookFixture) do(method, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, webhookPath, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, req)
	return rr
}

func (f *webhookFixture) drain(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, f.handler.Close(ctx))
}

const validBody = `{"message_handle":"m1","from_number":"+15559876543","to_number":"+15550001111","content":"hello","date_sent":"2024-03-01T12:00:00.000Z"}`

func TestWebhookHandler_AcceptsBearerSecret(t *testing.T) {
	f := newWebhookFixture(t, adapter_http.WebhookConfig{Secret: "s3cret"}, 60)

	rr := f.do(http.MethodPost, validBody, map[string]string{"Authorization": "Bearer s3cret"})
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"received":true}`, rr.Body.String())

	f.drain(t)
	msgs := f.processor.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "m1", msgs[0].Handle)
	assert.Equal(t, "+15559876543", msgs[0].FromNumber)
	assert.Equal(t, time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC), msgs[0].SentAt.UTC())
}

func TestWebhookHandler_SecretHeaderConventions(t *testing.T) {
	for _, header := range []string{adapter_http.HeaderProviderSecret, adapter_http.HeaderWebhookSecret, adapter_http.HeaderAPIKey} {
		t.Run(header, func(t *testing.T) {
			f := newWebhookFixture(t, adapter_http.WebhookConfig{Secret: "s3cret"}, 60)
			rr := f.do(http.MethodPost, validBody, map[string]string{header: "s3cret"})
			assert.Equal(t, http.StatusOK, rr.Code)
			f.drain(t)
		})
	}
}

func TestWebhookHandler_RejectsMissingOrWrongSecret(t *testing.T) {
	f := newWebhookFixture(t, adapter_http.WebhookConfig{Secret: "s3cret"}, 60)

	rr := f.do(http.MethodPost, validBody, nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = f.do(http.MethodPost, validBody, map[string]string{"Authorization": "Basic s3cret"})
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = f.do(http.MethodPost, validBody, map[string]string{adapter_http.HeaderWebhookSecret: "s3cret-not"})
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	f.drain(t)
	assert.Empty(t, f.processor.Messages())
}

func TestWebhookHandler_NoSecretConfigured(t *testing.T) {
	f := newWebhookFixture(t, adapter_http.WebhookConfig{}, 60)

	rr := f.do(http.MethodPost, validBody, nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	f.drain(t)
}

func TestWebhookHandler_ValidationErrors(t *testing.T) {
	f := newWebhookFixture(t, adapter_http.WebhookConfig{Secret: "s3cret"}, 60)
	auth := map[string]string{"Authorization": "Bearer s3cret"}

	rr := f.do(http.MethodPost, `{"message_handle":"m1","content":"hi"}`, auth)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = f.do(http.MethodPost, `{"message_handle":"  ","from_number":"+15559876543"}`, auth)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = f.do(http.MethodPost, `{"message_handle":`, auth)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	f.drain(t)
	assert.Empty(t, f.processor.Messages())
}

func TestWebhookHandler_BodyTooLarge(t *testing.T) {
	f := newWebhookFixture(t, adapter_http.WebhookConfig{MaxBodyBytes: 64}, 60)

	big := `{"message_handle":"m1","from_number":"+15559876543","content":"` + strings.Repeat("x", 128) + `"}`
	req := httptest.NewRequest(http.MethodPost, webhookPath, bytes.NewBufferString(big))
	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)
}

func TestWebhookHandler_MethodNotAllowed(t *testing.T) {
	f := newWebhookFixture(t, adapter_http.WebhookConfig{}, 60)

	rr := f.do(http.MethodGet, "", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
	assert.Equal(t, http.MethodPost, rr.Header().Get("Allow"))
}

func TestWebhookHandler_RateLimited(t *testing.T) {
	f := newWebhookFixture(t, adapter_http.WebhookConfig{}, 2)

	assert.Equal(t, http.StatusOK, f.do(http.MethodPost, validBody, nil).Code)
	assert.Equal(t, http.StatusOK, f.do(http.MethodPost, validBody, nil).Code)

	rr := f.do(http.MethodPost, validBody, nil)
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.NotEmpty(t, rr.Header().Get("Retry-After"))
	f.drain(t)
}

func TestWebhookHandler_DiscardsOutboundEcho(t *testing.T) {
	f := newWebhookFixture(t, adapter_http.WebhookConfig{}, 60)

	rr := f.do(http.MethodPost, `{"message_handle":"m9","from_number":"+15559876543","content":"sent by us","is_outbound":true}`, nil)
	assert.Equal(t, http.StatusOK, rr.Code)

	f.drain(t)
	assert.Empty(t, f.processor.Messages())
}

func TestRouter_Health(t *testing.T) {
	router := adapter_http.NewRouter(nil, webhookPath, discardLogger())

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, webhookPath, strings.NewReader(validBody)))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}
