package adapters

import (
	"strconv"
	"sync/atomic"

	"github.com/agentstation/labsync/internal/events"
	"github.com/agentstation/labsync/internal/server/sse"
)

// SSESubscriber forwards broker events to an SSE broadcaster.
type SSESubscriber struct {
	broadcaster *sse.Broadcaster
	seq         atomic.Uint64
}

// NewSSESubscriber creates an SSE subscriber.
func NewSSESubscriber(broadcaster *sse.Broadcaster) *SSESubscriber {
	return &SSESubscriber{broadcaster: broadcaster}
}

// Send delivers an event to all SSE clients. Frame ids increase
// monotonically for the life of the subscriber.
func (s *SSESubscriber) Send(event events.Event) error {
	s.broadcaster.Broadcast(sse.Event{
		Event: string(event.Type),
		ID:    strconv.FormatUint(s.seq.Add(1), 10),
		Data:  event.Data,
	})
	return nil
}

// Close is a no-op; the broadcaster stops with its own context.
func (s *SSESubscriber) Close() error {
	return nil
}
