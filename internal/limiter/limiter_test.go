package limiter

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestTryAcquireExhaustsSlots(t *testing.T) {
	s := New(2)

	r1, ok := s.TryAcquire()
	if !ok {
		t.Fatal("first TryAcquire failed")
	}
	r2, ok := s.TryAcquire()
	if !ok {
		t.Fatal("second TryAcquire failed")
	}
	if _, ok := s.TryAcquire(); ok {
		t.Fatal("third TryAcquire succeeded with 2 slots")
	}
	if got := s.InUse(); got != 2 {
		t.Errorf("InUse() = %d, want 2", got)
	}

	r1()
	if _, ok := s.TryAcquire(); !ok {
		t.Fatal("TryAcquire failed after release")
	}
	r2()
}

func TestAcquireBlocksUntilRelease(t *testing.T) {
	s := New(1)
	release, err := s.Acquire(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	acquired := make(chan struct{})
	go func() {
		r, err := s.Acquire(context.Background())
		if err != nil {
			t.Error(err)
			return
		}
		r()
		close(acquired)
	}()

	select {
	case <-acquired:
		t.Fatal("second Acquire returned while slot was held")
	case <-time.After(20 * time.Millisecond):
	}

	release()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("Acquire did not proceed after release")
	}
}

func TestAcquireHonorsContext(t *testing.T) {
	s := New(1)
	release, err := s.Acquire(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := s.Acquire(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want context.DeadlineExceeded", err)
	}
}

func TestZeroSizeDefaults(t *testing.T) {
	s := New(0)
	if _, ok := s.TryAcquire(); !ok {
		t.Error("defaulted limiter refused its first slot")
	}
}
