package sched

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/local/flipbook/internal/source"
)

// fakeSource is an in-memory Renderer. When gate is non-nil every render
// blocks on it, which lets tests hold renders in flight.
type fakeSource struct {
	n    int
	gate chan struct{}
	fail map[int]bool
	// spillDir makes renders produce file-backed payloads so release
	// behavior is observable.
	spillDir string

	mu    sync.Mutex
	calls map[int]int
}

func newFakeSource(n int) *fakeSource {
	return &fakeSource{n: n, calls: make(map[int]int)}
}

func (f *fakeSource) SlotCount() int { return f.n }

func (f *fakeSource) RenderSlot(ctx context.Context, index int) (*source.Payload, error) {
	f.mu.Lock()
	f.calls[index]++
	f.mu.Unlock()

	if f.gate != nil {
		<-f.gate
	}
	if f.fail[index] {
		return nil, &source.RenderError{Slot: index, Err: errors.New("simulated failure")}
	}
	if f.spillDir != "" {
		path := filepath.Join(f.spillDir, fmt.Sprintf("slot-%d.jpg", index))
		if err := os.WriteFile(path, []byte{0xff, 0xd8}, 0o644); err != nil {
			return nil, err
		}
		return &source.Payload{Kind: source.KindFile, Path: path, Size: 2}, nil
	}
	return &source.Payload{Kind: source.KindDataURL, DataURL: source.EncodeToDataURL([]byte{0xff, 0xd8}), Size: 2}, nil
}

func (f *fakeSource) callCount(index int) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[index]
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestRequestRenderCachesExactlyOnce(t *testing.T) {
	src := newFakeSource(10)
	s := New(src, Config{})

	for i := 0; i < 3; i++ {
		if err := s.RequestRender(context.Background(), 4, Foreground); err != nil {
			t.Fatalf("RequestRender: %v", err)
		}
	}
	if got := src.callCount(4); got != 1 {
		t.Errorf("render called %d times, want 1", got)
	}
	if _, ok := s.Payload(4); !ok {
		t.Error("slot 4 missing from cache")
	}
}

func TestCompletedEntriesAreNeverOverwritten(t *testing.T) {
	src := newFakeSource(10)
	s := New(src, Config{})

	if err := s.RequestRender(context.Background(), 2, Foreground); err != nil {
		t.Fatalf("RequestRender: %v", err)
	}
	first, _ := s.Payload(2)

	_ = s.RequestRender(context.Background(), 2, Background)
	second, _ := s.Payload(2)
	if first != second {
		t.Error("cached payload was replaced by a later render")
	}
}

func TestInFlightSlotIsNotRenderedTwice(t *testing.T) {
	src := newFakeSource(10)
	src.gate = make(chan struct{})
	s := New(src, Config{})

	done := make(chan struct{})
	go func() {
		_ = s.RequestRender(context.Background(), 3, Foreground)
		close(done)
	}()
	waitFor(t, time.Second, func() bool { return src.callCount(3) == 1 })

	// Second request while the first render is still in flight must no-op
	// without blocking.
	if err := s.RequestRender(context.Background(), 3, Background); err != nil {
		t.Fatalf("RequestRender: %v", err)
	}

	close(src.gate)
	<-done

	if got := src.callCount(3); got != 1 {
		t.Errorf("render called %d times, want 1", got)
	}
}

func TestRequestRenderRejectsOutOfRange(t *testing.T) {
	s := New(newFakeSource(5), Config{})
	if err := s.RequestRender(context.Background(), 5, Foreground); err == nil {
		t.Error("expected error for index == pageCount")
	}
	if err := s.RequestRender(context.Background(), -1, Foreground); err == nil {
		t.Error("expected error for negative index")
	}
}

func TestRenderFailureIsContained(t *testing.T) {
	src := newFakeSource(10)
	src.fail = map[int]bool{4: true}
	s := New(src, Config{})

	if err := s.RequestRender(context.Background(), 4, Foreground); err != nil {
		t.Fatalf("failure escaped the scheduler: %v", err)
	}
	if _, ok := s.Payload(4); ok {
		t.Error("failed render must not create a cache entry")
	}
	s.mu.Lock()
	_, busy := s.inflight[4]
	s.mu.Unlock()
	if busy {
		t.Error("failed render left slot in the in-flight set")
	}

	// The slot stays eligible: a later pass re-requests it.
	src.fail = nil
	if err := s.RequestRender(context.Background(), 4, Foreground); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if _, ok := s.Payload(4); !ok {
		t.Error("retry after failure did not populate the cache")
	}
	if got := src.callCount(4); got != 2 {
		t.Errorf("render called %d times, want 2", got)
	}
}

func TestNavigateRendersSpreadThenPrefetches(t *testing.T) {
	src := newFakeSource(10)
	s := New(src, Config{Window: 2, Ahead: 1, BatchSize: 4, BackgroundDelay: 5 * time.Millisecond, MaxRenders: 4})

	if err := s.OnNavigate(context.Background(), 0); err != nil {
		t.Fatalf("OnNavigate: %v", err)
	}

	// Foreground pass completed before OnNavigate returned.
	if got := s.Cached(); !reflect.DeepEqual(got, []int{0, 1}) {
		t.Fatalf("after foreground pass cache = %v, want [0 1]", got)
	}

	// Background pass fills the window: ±2 plus one ahead, capped at 4,
	// minus the already-cached spread.
	waitFor(t, 2*time.Second, func() bool {
		return reflect.DeepEqual(s.Cached(), []int{0, 1, 2, 3})
	})
	if got := src.callCount(4); got != 0 {
		t.Errorf("slot 4 rendered %d times, want 0 (outside batch)", got)
	}
}

func TestNavigateClampsToBounds(t *testing.T) {
	src := newFakeSource(10)
	s := New(src, Config{BackgroundDelay: time.Hour})

	if err := s.OnNavigate(context.Background(), 99); err != nil {
		t.Fatalf("OnNavigate: %v", err)
	}
	if got := s.Current(); got != 9 {
		t.Errorf("Current() = %d, want 9", got)
	}
	if _, ok := s.Payload(9); !ok {
		t.Error("last slot not rendered after clamped navigation")
	}
}

func TestNavigateEmptyDocumentFails(t *testing.T) {
	s := New(newFakeSource(0), Config{})
	if err := s.OnNavigate(context.Background(), 0); err == nil {
		t.Error("expected error navigating an empty document")
	}
}

func TestDisposeReleasesCachedPayloads(t *testing.T) {
	src := newFakeSource(10)
	src.spillDir = t.TempDir()
	s := New(src, Config{})

	_ = s.RequestRender(context.Background(), 0, Foreground)
	_ = s.RequestRender(context.Background(), 1, Foreground)
	p0, _ := s.Payload(0)
	p1, _ := s.Payload(1)

	s.Dispose()

	for _, p := range []*source.Payload{p0, p1} {
		if p.Path != "" {
			t.Errorf("payload still holds spill path %q after dispose", p.Path)
		}
	}
	entries, err := os.ReadDir(src.spillDir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("%d spill files left after dispose", len(entries))
	}
	if _, ok := s.Payload(0); ok {
		t.Error("cache not cleared by dispose")
	}
}

func TestRenderCompletingAfterDisposeIsDiscarded(t *testing.T) {
	src := newFakeSource(10)
	src.gate = make(chan struct{})
	src.spillDir = t.TempDir()
	s := New(src, Config{})

	done := make(chan struct{})
	go func() {
		_ = s.RequestRender(context.Background(), 0, Foreground)
		close(done)
	}()
	waitFor(t, time.Second, func() bool { return src.callCount(0) == 1 })

	s.Dispose()
	close(src.gate)
	<-done

	if _, ok := s.Payload(0); ok {
		t.Error("render completing after dispose was inserted into the cache")
	}
	entries, err := os.ReadDir(src.spillDir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Error("discarded render leaked its spill file")
	}
}

func TestDisposeIsIdempotent(t *testing.T) {
	s := New(newFakeSource(3), Config{})
	_ = s.RequestRender(context.Background(), 0, Foreground)
	s.Dispose()
	s.Dispose()
	if err := s.RequestRender(context.Background(), 1, Foreground); err != nil {
		t.Fatalf("RequestRender after dispose: %v", err)
	}
	if _, ok := s.Payload(1); ok {
		t.Error("disposed scheduler accepted a new render")
	}
}

func TestRapidNavigationDebouncesBackgroundPass(t *testing.T) {
	src := newFakeSource(50)
	s := New(src, Config{Window: 2, Ahead: 1, BatchSize: 4, BackgroundDelay: 30 * time.Millisecond, MaxRenders: 4})

	for _, idx := range []int{0, 10, 20} {
		if err := s.OnNavigate(context.Background(), idx); err != nil {
			t.Fatalf("OnNavigate(%d): %v", idx, err)
		}
	}

	// Only the last position gets a background pass; earlier timers were
	// reset before firing.
	waitFor(t, 2*time.Second, func() bool { return src.callCount(22) > 0 })
	if got := src.callCount(2); got != 0 {
		t.Errorf("slot 2 prefetched %d times despite debounce", got)
	}
	if got := src.callCount(12); got != 0 {
		t.Errorf("slot 12 prefetched %d times despite debounce", got)
	}
}
