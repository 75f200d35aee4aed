package events

// Subscriber consumes the broker's event stream.
// Send must not block; the broker delivers events to a subscriber in
// publish order.
type Subscriber interface {
	Send(Event) error
	Close() error
}

// FuncSubscriber adapts a function to the Subscriber interface.
type FuncSubscriber struct {
	fn func(Event) error
}

// NewFuncSubscriber wraps fn. The returned pointer identifies the
// subscription for Unsubscribe.
func NewFuncSubscriber(fn func(Event) error) *FuncSubscriber {
	return &FuncSubscriber{fn: fn}
}

// Send calls the wrapped function.
func (f *FuncSubscriber) Send(e Event) error { return f.fn(e) }

// Close is a no-op.
func (f *FuncSubscriber) Close() error { return nil }
