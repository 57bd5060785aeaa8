package limiter

import "context"

// Slots bounds the number of renders running at once. Foreground callers
// block in Acquire; background callers use TryAcquire and give up instead
// of queueing behind other work.
type Slots struct {
	ch chan struct{}
}

func New(n int) *Slots {
	if n <= 0 {
		n = 2
	}
	return &Slots{ch: make(chan struct{}, n)}
}

// Acquire blocks until a slot is free or ctx is done.
// Returns a release function on success.
func (s *Slots) Acquire(ctx context.Context) (func(), error) {
	select {
	case s.ch <- struct{}{}:
		return func() { <-s.ch }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// TryAcquire reserves a slot without waiting.
// Returns a release function and true if allowed; otherwise nil,false.
func (s *Slots) TryAcquire() (func(), bool) {
	select {
	case s.ch <- struct{}{}:
		return func() { <-s.ch }, true
	default:
		return nil, false
	}
}

// InUse returns the number of currently held slots.
func (s *Slots) InUse() int { return len(s.ch) }
