package app

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/aradsms/imessage_bridge/internal/bridge_service/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// --- Mocks ---

type MockProvider struct {
	mock.Mock
}

func (m *MockProvider) FetchInbound(ctx context.Context, since time.Time) ([]domain.InboundMessage, error) {
	args := m.Called(ctx, since)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.InboundMessage), args.Error(1)
}

func (m *MockProvider) SendText(ctx context.Context, to string, text string) (domain.SendResult, error) {
	args := m.Called(ctx, to, text)
	return args.Get(0).(domain.SendResult), args.Error(1)
}

func (m *MockProvider) SendMedia(ctx context.Context, to string, text string, mediaURL string) (domain.SendResult, error) {
	args := m.Called(ctx, to, text, mediaURL)
	return args.Get(0).(domain.SendResult), args.Error(1)
}

func (m *MockProvider) MarkRead(ctx context.Context, chatID string) error {
	args := m.Called(ctx, chatID)
	return args.Error(0)
}

func (m *MockProvider) SendTypingIndicator(ctx context.Context, to string) error {
	args := m.Called(ctx, to)
	return args.Error(0)
}

func (m *MockProvider) LookupStatus(ctx context.Context, handle string) (string, error) {
	args := m.Called(ctx, handle)
	return args.String(0), args.Error(1)
}

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, subject string, data []byte) error {
	args := m.Called(ctx, subject, data)
	return args.Error(0)
}

// fakeBackend replays a fixed reply for every dispatch and counts calls.
type fakeBackend struct {
	mu    sync.Mutex
	calls []domain.Envelope
	reply []domain.ReplyEvent
	err   error
}

func (b *fakeBackend) Dispatch(_ context.Context, env domain.Envelope) (<-chan domain.ReplyEvent, error) {
	b.mu.Lock()
	b.calls = append(b.calls, env)
	reply, err := b.reply, b.err
	b.mu.Unlock()
	if err != nil {
		return nil, err
	}
	ch := make(chan domain.ReplyEvent, len(reply))
	for _, ev := range reply {
		ch <- ev
	}
	close(ch)
	return ch, nil
}

func (b *fakeBackend) Calls() []domain.Envelope {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]domain.Envelope(nil), b.calls...)
}

// recordingProcessor stands in for the pipeline in poller tests.
type recordingProcessor struct {
	mu      sync.Mutex
	handles []string
	err     error
}

func (p *recordingProcessor) Process(_ context.Context, msg domain.InboundMessage, _ string) (Outcome, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handles = append(p.handles, msg.Handle)
	if p.err != nil {
		return OutcomeFailed, p.err
	}
	return OutcomeProcessed, nil
}

func (p *recordingProcessor) Handles() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.handles...)
}

// steppingClock advances by step on every call.
type steppingClock struct {
	mu   sync.Mutex
	t    time.Time
	step time.Duration
}

func (c *steppingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(c.step)
	return c.t
}
