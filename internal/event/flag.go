package event

import (
	"context"
	"sync"
	"time"
)

// Flag is a binary signal shared by one setter and one waiter. A set flag
// stays set until Clear is called, so a Set that happens before Wait is
// still observed.
type Flag struct {
	mu  sync.Mutex
	set bool
	ch  chan struct{}
}

func NewFlag() *Flag {
	return &Flag{ch: make(chan struct{})}
}

func (f *Flag) Set() {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.set {
		f.set = true
		close(f.ch)
	}
}

func (f *Flag) Clear() {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.set {
		f.set = false
		f.ch = make(chan struct{})
	}
}

func (f *Flag) IsSet() bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.set
}

// Done returns a channel that is closed once the flag is set. The channel
// is replaced on Clear, so callers must fetch it again after clearing.
func (f *Flag) Done() <-chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.ch
}

// Outcome reports what ended a wait.
type Outcome int

const (
	Signaled Outcome = iota
	TimedOut
	Stopped
	Cancelled
)

// Wait blocks until the flag is set, the timeout elapses or ctx is done.
// It returns true only when the flag was observed set.
func (f *Flag) Wait(ctx context.Context, timeout time.Duration) bool {
	return f.WaitOrStop(ctx, timeout, nil) == Signaled
}

// WaitOrStop is Wait that also returns once stop is set. A nil stop never
// fires. When several conditions hold at once the flag wins.
func (f *Flag) WaitOrStop(ctx context.Context, timeout time.Duration, stop *Flag) Outcome {
	ch := f.Done()

	var stopCh <-chan struct{}
	if stop != nil {
		stopCh = stop.Done()
	}

	t := time.NewTimer(timeout)
	defer t.Stop()

	select {
	case <-ch:
		return Signaled
	case <-t.C:
	case <-stopCh:
	case <-ctx.Done():
	}

	switch {
	case f.IsSet():
		return Signaled
	case ctx.Err() != nil:
		return Cancelled
	case stop != nil && stop.IsSet():
		return Stopped
	default:
		return TimedOut
	}
}
