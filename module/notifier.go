package module

// Notifier is a concurrency primitive for informing worker routines about
// the arrival of new work unit(s). Notifiers essentially behave like
// channels in that they can be passed by value and still allow concurrent
// updates of the same internal state.
type Notifier struct {
	// Notify pushes to the channel if it has capacity, so producers never
	// block; a worker receiving from Channel consumes the pending
	// notification and re-arms the gate.
	notifier chan struct{} // buffered channel with capacity 1
}

// NewNotifier instantiates a Notifier.
func NewNotifier() Notifier {
	return Notifier{make(chan struct{}, 1)}
}

// Notify sends a notification. If a notification is already pending, this
// is a no-op: the worker will observe all work enqueued before it drains.
func (n Notifier) Notify() {
	select {
	case n.notifier <- struct{}{}:
	default:
	}
}

// Channel returns a channel for receiving notifications.
func (n Notifier) Channel() <-chan struct{} {
	return n.notifier
}
