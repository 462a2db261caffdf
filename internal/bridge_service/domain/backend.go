package domain

import "context"

// ReplyEventKind enumerates what a backend can report while producing a reply.
type ReplyEventKind int

const (
	ReplyStarted ReplyEventKind = iota + 1
	ReplyContent
	ReplyIdle
	ReplyError
)

func (k ReplyEventKind) String() string {
	switch k {
	case ReplyStarted:
		return "reply_started"
	case ReplyContent:
		return "content"
	case ReplyIdle:
		return "idle"
	case ReplyError:
		return "error"
	default:
		return "unknown"
	}
}

// ReplyEvent is one step of a backend reply. Text and MediaURL are set for
// ReplyContent, Err for ReplyError.
type ReplyEvent struct {
	Kind     ReplyEventKind
	Text     string
	MediaURL string
	Err      error
}

// Backend turns an inbound envelope into a stream of reply events. The
// channel is closed by the backend when the reply is complete.
type Backend interface {
	Dispatch(ctx context.Context, env Envelope) (<-chan ReplyEvent, error)
}
