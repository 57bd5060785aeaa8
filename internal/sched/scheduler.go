package sched

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/local/flipbook/internal/limiter"
	"github.com/local/flipbook/internal/metrics"
	"github.com/local/flipbook/internal/source"
)

// Priority is the immediacy class of a render request. Foreground requests
// gate perceived readiness of the visible spread; background requests are
// opportunistic prefetch.
type Priority int

const (
	Foreground Priority = iota
	Background
)

func (p Priority) String() string {
	if p == Foreground {
		return "foreground"
	}
	return "background"
}

// Renderer is the slice of the Document Source the scheduler depends on.
type Renderer interface {
	SlotCount() int
	RenderSlot(ctx context.Context, index int) (*source.Payload, error)
}

// Config tunes the preload policy.
type Config struct {
	// Window is the half-width of the background prefetch window.
	Window int
	// Ahead extends the window forward, in reading direction.
	Ahead int
	// BatchSize caps one background pass.
	BatchSize int
	// BackgroundDelay debounces the background pass after navigation.
	BackgroundDelay time.Duration
	// MaxRenders bounds concurrent renders.
	MaxRenders int
}

func (c Config) withDefaults() Config {
	if c.Window <= 0 {
		c.Window = 2
	}
	if c.Ahead < 0 {
		c.Ahead = 0
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 4
	}
	if c.BackgroundDelay <= 0 {
		c.BackgroundDelay = 150 * time.Millisecond
	}
	if c.MaxRenders <= 0 {
		c.MaxRenders = 2
	}
	return c
}

// Scheduler owns the page image cache and decides which slots to render
// next. Completed entries are immutable for the life of the scheduler; a
// slot is rendered at most once at a time and never re-rendered after
// success. The viewport only reads cache contents through Payload/Cached.
type Scheduler struct {
	cfg   Config
	src   Renderer
	slots *limiter.Slots
	log   zerolog.Logger

	mu       sync.Mutex
	cache    map[int]*source.Payload
	inflight map[int]struct{}
	current  int
	disposed bool
	bgTimer  *time.Timer
}

func New(src Renderer, cfg Config) *Scheduler {
	cfg = cfg.withDefaults()
	return &Scheduler{
		cfg:      cfg,
		src:      src,
		slots:    limiter.New(cfg.MaxRenders),
		log:      log.With().Str("component", "sched").Logger(),
		cache:    make(map[int]*source.Payload),
		inflight: make(map[int]struct{}),
	}
}

// RequestRender renders one slot unless it is already cached or in flight.
// Render failures are contained: they are logged and the slot stays
// eligible for a later pass. The returned error is non-nil only for an
// invalid index or a cancelled foreground wait.
func (s *Scheduler) RequestRender(ctx context.Context, index int, pri Priority) error {
	if n := s.src.SlotCount(); index < 0 || index >= n {
		return fmt.Errorf("slot %d out of range [0,%d)", index, n)
	}

	// The busy check and the in-flight mark happen under one lock hold so
	// no two renders of the same slot can ever start.
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return nil
	}
	if _, done := s.cache[index]; done {
		s.mu.Unlock()
		return nil
	}
	if _, busy := s.inflight[index]; busy {
		s.mu.Unlock()
		return nil
	}
	s.inflight[index] = struct{}{}
	s.mu.Unlock()

	var release func()
	if pri == Foreground {
		r, err := s.slots.Acquire(ctx)
		if err != nil {
			s.clearInflight(index)
			return err
		}
		release = r
	} else {
		r, ok := s.slots.TryAcquire()
		if !ok {
			s.clearInflight(index)
			metrics.IncRenderSkipped(pri.String())
			return nil
		}
		release = r
	}
	defer release()

	start := time.Now()
	payload, err := s.src.RenderSlot(ctx, index)

	s.mu.Lock()
	delete(s.inflight, index)
	if err != nil {
		s.mu.Unlock()
		metrics.ObserveRender(pri.String(), "error", time.Since(start))
		s.log.Warn().Err(err).Int("slot", index).Str("priority", pri.String()).Msg("render failed")
		return nil
	}
	if s.disposed {
		s.mu.Unlock()
		payload.Release()
		metrics.ObserveRender(pri.String(), "discarded", time.Since(start))
		return nil
	}
	if _, done := s.cache[index]; done {
		// first completed render wins
		s.mu.Unlock()
		payload.Release()
		return nil
	}
	s.cache[index] = payload
	size := len(s.cache)
	s.mu.Unlock()

	metrics.ObserveRender(pri.String(), "ok", time.Since(start))
	metrics.SetCacheEntries(size)
	s.log.Debug().Int("slot", index).Str("priority", pri.String()).Int("bytes", payload.Size).Msg("slot cached")
	return nil
}

// OnNavigate records the new current slot, renders the visible spread
// before returning, and debounces a background prefetch pass.
func (s *Scheduler) OnNavigate(ctx context.Context, index int) error {
	n := s.src.SlotCount()
	if n <= 0 {
		return fmt.Errorf("document has no slots")
	}
	if index < 0 {
		index = 0
	}
	if index > n-1 {
		index = n - 1
	}

	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return nil
	}
	s.current = index
	s.mu.Unlock()
	metrics.IncNavigation()

	var wg sync.WaitGroup
	for _, i := range selectForeground(index, n) {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = s.RequestRender(ctx, i, Foreground)
		}(i)
	}
	wg.Wait()

	s.scheduleBackground()
	return nil
}

// SelectForeground returns the slots that must be ready for the spread at
// current. Pure; ignores cache state (RequestRender no-ops on cached slots).
func (s *Scheduler) SelectForeground(current int) []int {
	return selectForeground(current, s.src.SlotCount())
}

// SelectBackground returns the prefetch candidates around current that are
// neither cached nor in flight.
func (s *Scheduler) SelectBackground(current int) []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return selectBackground(current, s.src.SlotCount(), s.cfg.Window, s.cfg.Ahead, s.cfg.BatchSize, func(i int) bool {
		if _, done := s.cache[i]; done {
			return true
		}
		_, busy := s.inflight[i]
		return busy
	})
}

// Payload returns the cached image for a slot, if completed.
func (s *Scheduler) Payload(index int) (*source.Payload, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.cache[index]
	return p, ok
}

// Cached returns the completed slot indices in ascending order.
func (s *Scheduler) Cached() []int {
	s.mu.Lock()
	out := make([]int, 0, len(s.cache))
	for i := range s.cache {
		out = append(out, i)
	}
	s.mu.Unlock()
	sort.Ints(out)
	return out
}

// Current returns the slot the viewport last navigated to.
func (s *Scheduler) Current() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Dispose releases every cached payload and discards renders that complete
// afterwards. Idempotent and safe while renders are in flight.
func (s *Scheduler) Dispose() {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return
	}
	s.disposed = true
	if s.bgTimer != nil {
		s.bgTimer.Stop()
		s.bgTimer = nil
	}
	payloads := make([]*source.Payload, 0, len(s.cache))
	for _, p := range s.cache {
		payloads = append(payloads, p)
	}
	s.cache = make(map[int]*source.Payload)
	s.inflight = make(map[int]struct{})
	s.mu.Unlock()

	for _, p := range payloads {
		p.Release()
	}
	metrics.SetCacheEntries(0)
	s.log.Info().Int("released", len(payloads)).Msg("scheduler disposed")
}

func (s *Scheduler) clearInflight(index int) {
	s.mu.Lock()
	delete(s.inflight, index)
	s.mu.Unlock()
}

// scheduleBackground (re)arms the debounce timer so the background pass
// runs off the navigation turn and rapid flips collapse into one pass.
func (s *Scheduler) scheduleBackground() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		return
	}
	if s.bgTimer != nil {
		s.bgTimer.Stop()
	}
	s.bgTimer = time.AfterFunc(s.cfg.BackgroundDelay, s.backgroundPass)
}

func (s *Scheduler) backgroundPass() {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return
	}
	current := s.current
	s.mu.Unlock()

	for _, i := range s.SelectBackground(current) {
		go func(i int) {
			_ = s.RequestRender(context.Background(), i, Background)
		}(i)
	}
}
