// Package primitive implements the thread/event/clock/atomic building
// blocks the device state machine (§5) is specified against: an
// auto-reset event, atomic 32-bit state transitions, and a monotonic
// clock. Go's runtime already gives us real threads and true atomics,
// so this package is a thin, idiomatic restatement of those semantics
// rather than a from-scratch primitive implementation.
package primitive

// AutoResetEvent is a single-waiter, auto-resetting event: Signal wakes
// at most one blocked Wait call and the event is consumed by that wake,
// matching the wakeup/start/stop events in §5. It is backed by a
// buffered channel of capacity 1, the idiomatic Go equivalent of a
// Win32 auto-reset event.
type AutoResetEvent struct {
	ch chan struct{}
}

// NewAutoResetEvent returns a new, initially unsignaled event.
func NewAutoResetEvent() *AutoResetEvent {
	return &AutoResetEvent{ch: make(chan struct{}, 1)}
}

// Signal wakes one waiter, or leaves the event signaled for the next
// Wait call if nobody is currently waiting.
func (e *AutoResetEvent) Signal() {
	select {
	case e.ch <- struct{}{}:
	default:
	}
}

// Wait blocks until Signal is called, consuming the signal.
func (e *AutoResetEvent) Wait() {
	<-e.ch
}

// WaitChan exposes the underlying channel for select-based waits, e.g.
// racing against a context cancellation or another event.
func (e *AutoResetEvent) WaitChan() <-chan struct{} {
	return e.ch
}
