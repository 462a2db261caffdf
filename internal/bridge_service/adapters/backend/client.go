// Package backend is the HTTP client for the conversational backend.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aradsms/imessage_bridge/internal/bridge_service/domain"
)

const maxReplyBytes = 4 << 20

type Reply struct {
	Text     string `json:"text"`
	MediaURL string `json:"media_url,omitempty"`
}

// ReplyResponse is the backend's answer to one envelope.
type ReplyResponse struct {
	Replies []Reply `json:"replies"`
	Error   string  `json:"error,omitempty"`
}

// Client posts envelopes to the backend and turns the answer into reply events.
type Client struct {
	url        string
	httpClient *http.Client
	logger     *slog.Logger
}

func NewClient(url string, timeout time.Duration, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{
		url:        url,
		httpClient: httpClient,
		logger:     logger.With("component", "backend_client"),
	}
}

// Dispatch emits ReplyStarted right away, then one ReplyContent per reply and a
// final ReplyIdle, or a ReplyError if the call fails. The channel is closed
// when the exchange is over.
func (c *Client) Dispatch(ctx context.Context, env domain.Envelope) (<-chan domain.ReplyEvent, error) {
	payload, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("marshal envelope: %w", err)
	}

	events := make(chan domain.ReplyEvent, 4)
	go func() {
		defer close(events)
		if !emit(ctx, events, domain.ReplyEvent{Kind: domain.ReplyStarted}) {
			return
		}
		resp, err := c.post(ctx, env, payload)
		if err != nil {
			emit(ctx, events, domain.ReplyEvent{Kind: domain.ReplyError, Err: err})
			return
		}
		for _, r := range resp.Replies {
			if strings.TrimSpace(r.Text) == "" && r.MediaURL == "" {
				continue
			}
			if !emit(ctx, events, domain.ReplyEvent{Kind: domain.ReplyContent, Text: r.Text, MediaURL: r.MediaURL}) {
				return
			}
		}
		emit(ctx, events, domain.ReplyEvent{Kind: domain.ReplyIdle})
	}()
	return events, nil
}

func emit(ctx context.Context, ch chan<- domain.ReplyEvent, ev domain.ReplyEvent) bool {
	select {
	case ch <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

func (c *Client) post(ctx context.Context, env domain.Envelope, payload []byte) (*ReplyResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build backend request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", env.ID.String())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: backend request: %w", domain.ErrProviderTransient, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxReplyBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read backend response: %w", domain.ErrProviderTransient, err)
	}
	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("%w: backend returned status %d", domain.ErrProviderTransient, resp.StatusCode)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("backend rejected envelope (status %d): %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var out ReplyResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("decode backend response: %w", err)
	}
	if out.Error != "" {
		return nil, fmt.Errorf("backend error: %s", out.Error)
	}
	c.logger.DebugContext(ctx, "Backend replied", "message_handle", env.Handle, "replies", len(out.Replies))
	return &out, nil
}

var _ domain.Backend = (*Client)(nil)
