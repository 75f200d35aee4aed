package events

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingSubscriber records every event it is sent.
type recordingSubscriber struct {
	mu     sync.Mutex
	events []Event
	closed bool
	err    error
}

func (m *recordingSubscriber) Send(event Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return m.err
}

func (m *recordingSubscriber) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *recordingSubscriber) types() []EventType {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]EventType, 0, len(m.events))
	for _, e := range m.events {
		out = append(out, e.Type)
	}
	return out
}

func (m *recordingSubscriber) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func startBroker(t *testing.T) (*Broker, context.CancelFunc) {
	t.Helper()
	logger := zerolog.Nop()
	b := NewBroker(&logger)
	ctx, cancel := context.WithCancel(context.Background())
	go b.Run(ctx)
	t.Cleanup(cancel)
	return b, cancel
}

func TestBrokerDeliversInPublishOrder(t *testing.T) {
	b, _ := startBroker(t)
	sub := &recordingSubscriber{}
	b.Subscribe(sub)
	require.Eventually(t, func() bool { return b.SubscriberCount() == 1 }, time.Second, time.Millisecond)

	b.Publish(NodeState, map[string]any{"node_id": "n1"})
	b.Publish(LinkState, map[string]any{"link_name": "l1"})
	b.Publish(LabState, map[string]any{"state": "running"})

	require.Eventually(t, func() bool { return len(sub.types()) == 3 }, time.Second, time.Millisecond)
	assert.Equal(t, []EventType{NodeState, LinkState, LabState}, sub.types())
}

func TestBrokerSubscribeBeforeRun(t *testing.T) {
	logger := zerolog.Nop()
	b := NewBroker(&logger)
	sub := &recordingSubscriber{}
	b.Subscribe(sub)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.Run(ctx)

	b.Publish(Resync, nil)
	require.Eventually(t, func() bool { return len(sub.types()) == 1 }, time.Second, time.Millisecond)
}

func TestBrokerFanOut(t *testing.T) {
	b, _ := startBroker(t)
	subs := []*recordingSubscriber{{}, {}, {}}
	for _, s := range subs {
		b.Subscribe(s)
	}
	require.Eventually(t, func() bool { return b.SubscriberCount() == 3 }, time.Second, time.Millisecond)

	b.Publish(NotificationAdded, map[string]any{"title": "Job started"})
	for _, s := range subs {
		require.Eventually(t, func() bool { return len(s.types()) == 1 }, time.Second, time.Millisecond)
	}
}

func TestBrokerSendErrorDoesNotStopDelivery(t *testing.T) {
	b, _ := startBroker(t)
	failing := &recordingSubscriber{err: errors.New("client gone")}
	ok := &recordingSubscriber{}
	b.Subscribe(failing)
	b.Subscribe(ok)
	require.Eventually(t, func() bool { return b.SubscriberCount() == 2 }, time.Second, time.Millisecond)

	b.Publish(ToastShown, nil)
	b.Publish(ToastClosed, nil)
	require.Eventually(t, func() bool { return len(ok.types()) == 2 }, time.Second, time.Millisecond)
	assert.Len(t, failing.types(), 2)
}

func TestBrokerUnsubscribe(t *testing.T) {
	b, _ := startBroker(t)
	sub := &recordingSubscriber{}
	b.Subscribe(sub)
	require.Eventually(t, func() bool { return b.SubscriberCount() == 1 }, time.Second, time.Millisecond)

	b.Unsubscribe(sub)
	require.Eventually(t, func() bool { return b.SubscriberCount() == 0 }, time.Second, time.Millisecond)
	assert.True(t, sub.isClosed())

	// unknown subscribers are ignored
	b.Unsubscribe(&recordingSubscriber{})
	b.Publish(Resync, nil)
	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, sub.types())
}

func TestBrokerShutdownClosesSubscribers(t *testing.T) {
	b, cancel := startBroker(t)
	sub1, sub2 := &recordingSubscriber{}, &recordingSubscriber{}
	b.Subscribe(sub1)
	b.Subscribe(sub2)
	require.Eventually(t, func() bool { return b.SubscriberCount() == 2 }, time.Second, time.Millisecond)

	cancel()
	require.Eventually(t, func() bool { return b.SubscriberCount() == 0 }, time.Second, time.Millisecond)
	assert.True(t, sub1.isClosed())
	assert.True(t, sub2.isClosed())

	// neither call blocks after shutdown
	b.Subscribe(&recordingSubscriber{})
	b.Unsubscribe(sub1)
	b.Publish(Resync, nil)
}

func TestBrokerPublishDropsWhenFull(t *testing.T) {
	logger := zerolog.Nop()
	b := NewBroker(&logger)
	// not running: the buffer fills and further publishes return immediately
	for i := 0; i < cap(b.events)+10; i++ {
		b.Publish(NodeState, i)
	}
	assert.Len(t, b.events, cap(b.events))
}

func TestFuncSubscriber(t *testing.T) {
	b, _ := startBroker(t)
	got := make(chan Event, 1)
	sub := NewFuncSubscriber(func(e Event) error {
		got <- e
		return nil
	})
	b.Subscribe(sub)
	require.Eventually(t, func() bool { return b.SubscriberCount() == 1 }, time.Second, time.Millisecond)

	b.Publish(ConnectionState, map[string]any{"state": "connected"})
	select {
	case e := <-got:
		assert.Equal(t, ConnectionState, e.Type)
		assert.False(t, e.Timestamp.IsZero())
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}

	b.Unsubscribe(sub)
	require.Eventually(t, func() bool { return b.SubscriberCount() == 0 }, time.Second, time.Millisecond)
	assert.NoError(t, sub.Close())
}
