// Package provider is the REST client for the messaging provider.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/aradsms/imessage_bridge/internal/bridge_service/domain"
)

const (
	headerAPIKeyID  = "sb-api-key-id"
	headerAPISecret = "sb-api-secret-key"

	pathMessages        = "/api/v2/messages"
	pathSendMessage     = "/api/send-message"
	pathMarkRead        = "/api/mark-read"
	pathTypingIndicator = "/api/send-typing-indicator"
	pathStatus          = "/api/status"

	maxResponseBytes = 4 << 20
)

// Config holds provider credentials and endpoint settings.
type Config struct {
	BaseURL    string
	APIKey     string
	APISecret  string
	FromNumber string
	Timeout    time.Duration
}

// APIError is a non-retryable rejection (4xx) from the provider.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("provider rejected request (status %d): %s", e.StatusCode, e.Message)
}

// Client implements domain.Provider over the provider's JSON API.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient builds a client. A nil httpClient gets one bounded by cfg.Timeout.
func NewClient(cfg Config, httpClient *http.Client, logger *slog.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Client{
		cfg:        cfg,
		httpClient: httpClient,
		logger:     logger.With("provider", "sendblue"),
	}
}

type messageDTO struct {
	MessageHandle string `json:"message_handle"`
	FromNumber    string `json:"from_number"`
	Number        string `json:"number"`
	ToNumber      string `json:"to_number"`
	Content       string `json:"content"`
	MediaURL      string `json:"media_url"`
	DateSent      string `json:"date_sent"`
	IsOutbound    bool   `json:"is_outbound"`
	Status        string `json:"status"`
}

func (m messageDTO) toDomain() domain.InboundMessage {
	from := m.FromNumber
	if from == "" {
		from = m.Number
	}
	msg := domain.InboundMessage{
		Handle:     m.MessageHandle,
		FromNumber: from,
		ToNumber:   m.ToNumber,
		Content:    m.Content,
		MediaURL:   m.MediaURL,
		IsOutbound: m.IsOutbound,
	}
	if ts, err := time.Parse(time.RFC3339Nano, m.DateSent); err == nil {
		msg.SentAt = ts
	}
	return msg
}

type listMessagesResponse struct {
	Data []messageDTO `json:"data"`
}

type sendMessageRequest struct {
	Number     string `json:"number"`
	FromNumber string `json:"from_number,omitempty"`
	Content    string `json:"content,omitempty"`
	MediaURL   string `json:"media_url,omitempty"`
}

type numberRequest struct {
	Number     string `json:"number"`
	FromNumber string `json:"from_number,omitempty"`
}

type statusResponse struct {
	Status string `json:"status"`
}

// FetchInbound lists inbound messages created at or after since.
func (c *Client) FetchInbound(ctx context.Context, since time.Time) ([]domain.InboundMessage, error) {
	q := url.Values{}
	q.Set("is_outbound", "false")
	q.Set("created_at_gte", since.UTC().Format(time.RFC3339Nano))
	if c.cfg.FromNumber != "" {
		q.Set("sendblue_number", c.cfg.FromNumber)
	}

	var resp listMessagesResponse
	if err := c.do(ctx, "fetch_inbound", http.MethodGet, pathMessages, q, nil, &resp); err != nil {
		return nil, err
	}
	out := make([]domain.InboundMessage, 0, len(resp.Data))
	for _, m := range resp.Data {
		out = append(out, m.toDomain())
	}
	return out, nil
}

func (c *Client) SendText(ctx context.Context, to string, text string) (domain.SendResult, error) {
	return c.send(ctx, "send_text", sendMessageRequest{Number: to, FromNumber: c.cfg.FromNumber, Content: text})
}

func (c *Client) SendMedia(ctx context.Context, to string, text string, mediaURL string) (domain.SendResult, error) {
	return c.send(ctx, "send_media", sendMessageRequest{Number: to, FromNumber: c.cfg.FromNumber, Content: text, MediaURL: mediaURL})
}

func (c *Client) send(ctx context.Context, op string, req sendMessageRequest) (domain.SendResult, error) {
	var resp messageDTO
	if err := c.do(ctx, op, http.MethodPost, pathSendMessage, nil, req, &resp); err != nil {
		return domain.SendResult{}, err
	}
	c.logger.DebugContext(ctx, "Provider accepted message", "message_handle", resp.MessageHandle, "status", resp.Status)
	return domain.SendResult{Handle: resp.MessageHandle, Status: resp.Status}, nil
}

func (c *Client) MarkRead(ctx context.Context, chatID string) error {
	return c.do(ctx, "mark_read", http.MethodPost, pathMarkRead, nil, numberRequest{Number: chatID, FromNumber: c.cfg.FromNumber}, nil)
}

func (c *Client) SendTypingIndicator(ctx context.Context, to string) error {
	return c.do(ctx, "typing_indicator", http.MethodPost, pathTypingIndicator, nil, numberRequest{Number: to, FromNumber: c.cfg.FromNumber}, nil)
}

func (c *Client) LookupStatus(ctx context.Context, handle string) (string, error) {
	q := url.Values{}
	q.Set("handle", handle)
	var resp statusResponse
	if err := c.do(ctx, "lookup_status", http.MethodGet, pathStatus, q, nil, &resp); err != nil {
		return "", err
	}
	return resp.Status, nil
}

// do performs one request. Transport errors, 429 and 5xx wrap
// domain.ErrProviderTransient; other non-2xx responses return *APIError.
func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, body any, out any) (err error) {
	start := time.Now()
	defer func() {
		outcome := "ok"
		switch {
		case errors.Is(err, domain.ErrProviderTransient):
			outcome = "transient"
		case err != nil:
			outcome = "rejected"
		}
		providerRequestDurationHist.WithLabelValues(op, outcome).Observe(time.Since(start).Seconds())
	}()

	endpoint := c.cfg.BaseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal %s request: %w", op, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("build %s request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set(headerAPIKeyID, c.cfg.APIKey)
	req.Header.Set(headerAPISecret, c.cfg.APISecret)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", domain.ErrProviderTransient, op, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("%w: read %s response: %w", domain.ErrProviderTransient, op, err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		c.logger.WarnContext(ctx, "Provider request failed", "operation", op, "status_code", resp.StatusCode)
		return fmt.Errorf("%w: %s returned status %d", domain.ErrProviderTransient, op, resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(respBody))}
	}

	if out == nil || len(bytes.TrimSpace(respBody)) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("decode %s response: %w", op, err)
	}
	return nil
}

var _ domain.Provider = (*Client)(nil)
