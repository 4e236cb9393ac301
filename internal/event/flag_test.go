package event

import (
	"context"
	"testing"
	"time"
)

func TestFlag_SetBeforeWait(t *testing.T) {
	f := NewFlag()
	f.Set()

	if !f.Wait(context.Background(), 10*time.Millisecond) {
		t.Error("Expected Wait to observe an earlier Set")
	}
	if !f.IsSet() {
		t.Error("Expected flag to stay set after Wait")
	}
}

func TestFlag_WaitTimeout(t *testing.T) {
	f := NewFlag()

	start := time.Now()
	if f.Wait(context.Background(), 30*time.Millisecond) {
		t.Fatal("Expected Wait to time out")
	}
	if elapsed := time.Since(start); elapsed < 30*time.Millisecond {
		t.Errorf("Expected Wait to block for the timeout, returned after %s", elapsed)
	}
}

func TestFlag_SetWakesWaiter(t *testing.T) {
	f := NewFlag()

	go func() {
		time.Sleep(10 * time.Millisecond)
		f.Set()
	}()

	if !f.Wait(context.Background(), time.Second) {
		t.Error("Expected Wait to be woken by Set")
	}
}

func TestFlag_Clear(t *testing.T) {
	f := NewFlag()
	f.Set()
	f.Clear()
	f.Clear()

	if f.IsSet() {
		t.Fatal("Expected flag to be cleared")
	}
	if f.Wait(context.Background(), 5*time.Millisecond) {
		t.Error("Expected Wait on cleared flag to time out")
	}

	f.Set()
	f.Set()
	if !f.Wait(context.Background(), 5*time.Millisecond) {
		t.Error("Expected flag to be settable again after Clear")
	}
}

func TestFlag_WaitCancelled(t *testing.T) {
	f := NewFlag()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if f.Wait(ctx, time.Second) {
		t.Error("Expected Wait to return false on cancelled context")
	}
}

func TestFlag_WaitOrStop(t *testing.T) {
	f, stop := NewFlag(), NewFlag()

	go func() {
		time.Sleep(10 * time.Millisecond)
		stop.Set()
	}()

	start := time.Now()
	if got := f.WaitOrStop(context.Background(), time.Second, stop); got != Stopped {
		t.Fatalf("Expected Stopped, got %d", got)
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("Expected stop to end the wait early, took %s", elapsed)
	}

	if got := f.WaitOrStop(context.Background(), 5*time.Millisecond, nil); got != TimedOut {
		t.Errorf("Expected TimedOut, got %d", got)
	}

	f.Set()
	if got := f.WaitOrStop(context.Background(), time.Second, stop); got != Signaled {
		t.Errorf("Expected the flag to win over a set stop, got %d", got)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if got := NewFlag().WaitOrStop(ctx, time.Second, nil); got != Cancelled {
		t.Errorf("Expected Cancelled, got %d", got)
	}
}
