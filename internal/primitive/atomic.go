package primitive

import "sync/atomic"

// State32 is an atomically-mutated 32-bit state word, the mechanism §5
// mandates for the device state machine and the work_result field.
type State32 struct {
	v atomic.Int32
}

// Load reads the current value.
func (s *State32) Load() int32 { return s.v.Load() }

// Store unconditionally publishes a new value.
func (s *State32) Store(v int32) { s.v.Store(v) }

// CompareAndSwap performs the linearizable transition §5 requires:
// callers race to be the one that moves the state from old to new, and
// exactly one wins.
func (s *State32) CompareAndSwap(old, new int32) bool {
	return s.v.CompareAndSwap(old, new)
}

// CallbackPointer is an atomically-exchanged pointer, used to install
// new device callbacks without torn reads (§5: "each invocation of a
// callback sees some value installed at-or-before the invocation").
type CallbackPointer[T any] struct {
	v atomic.Pointer[T]
}

// Store publishes a new callback value.
func (p *CallbackPointer[T]) Store(v *T) { p.v.Store(v) }

// Load returns the most recently published callback value, or nil if
// none has been installed.
func (p *CallbackPointer[T]) Load() *T { return p.v.Load() }
