package toolplane

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// ErrAcquireTimeout is returned when a slot acquisition exceeds max_wait_ms.
type ErrAcquireTimeout struct {
	Tool string
	Ms   int64
}

func (e *ErrAcquireTimeout) Error() string {
	return fmt.Sprintf("tool %q: acquire-slot timed out after %dms", e.Tool, e.Ms)
}

// toolSemaphore is a per-tool FIFO-ordered semaphore. Waiters are queued
// explicitly (rather than relying on sync.Cond's broadcast-and-race wakeup)
// so release order deterministically matches acquisition order, per the
// concurrency manager's FIFO contract.
type toolSemaphore struct {
	mu      sync.Mutex
	limit   int
	active  int
	waiters []chan struct{}
}

func newToolSemaphore(limit int) *toolSemaphore {
	if limit <= 0 {
		limit = 1
	}
	return &toolSemaphore{limit: limit}
}

// acquire blocks until a slot is free or maxWait elapses. waitMs reports how
// long the caller actually waited, for bookkeeping against the acquire
// budget (kept separate from the running attempt's retry/timeout budget).
func (s *toolSemaphore) acquire(ctx context.Context, maxWait time.Duration) (waitMs int64, err error) {
	start := time.Now()

	s.mu.Lock()
	if s.active < s.limit {
		s.active++
		s.mu.Unlock()
		return 0, nil
	}

	ch := make(chan struct{})
	s.waiters = append(s.waiters, ch)
	s.mu.Unlock()

	var timeoutCh <-chan time.Time
	if maxWait > 0 {
		timer := time.NewTimer(maxWait)
		defer timer.Stop()
		timeoutCh = timer.C
	}

	select {
	case <-ch:
		return time.Since(start).Milliseconds(), nil
	case <-timeoutCh:
		s.removeWaiter(ch)
		return time.Since(start).Milliseconds(), &ErrAcquireTimeout{Ms: maxWait.Milliseconds()}
	case <-ctx.Done():
		s.removeWaiter(ch)
		return time.Since(start).Milliseconds(), ctx.Err()
	}
}

func (s *toolSemaphore) removeWaiter(ch chan struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, w := range s.waiters {
		if w == ch {
			s.waiters = append(s.waiters[:i], s.waiters[i+1:]...)
			return
		}
	}
	// The waiter already won the race with release(): consume the grant
	// rather than leaking an active slot.
	select {
	case <-ch:
		s.active--
	default:
	}
}

// release wakes the next FIFO waiter, or gives the slot back if none wait.
func (s *toolSemaphore) release() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.waiters) == 0 {
		if s.active > 0 {
			s.active--
		}
		return
	}

	next := s.waiters[0]
	s.waiters = s.waiters[1:]
	close(next)
	// active count stays the same: the slot passes directly to the next waiter.
}

func (s *toolSemaphore) stats() (active, waiting, limit int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active, len(s.waiters), s.limit
}

// ConcurrencyManager owns one FIFO semaphore per tool, created lazily with a
// per-tool limit (falling back to a manager-wide default).
type ConcurrencyManager struct {
	mu          sync.Mutex
	defaultMax  int
	limits      map[string]int
	semaphores  map[string]*toolSemaphore
	defaultWait time.Duration
}

// NewConcurrencyManager creates a manager with the given default per-tool
// concurrency limit and default acquire-budget timeout.
func NewConcurrencyManager(defaultMax int, defaultMaxWait time.Duration) *ConcurrencyManager {
	if defaultMax <= 0 {
		defaultMax = 4
	}
	return &ConcurrencyManager{
		defaultMax:  defaultMax,
		defaultWait: defaultMaxWait,
		limits:      make(map[string]int),
		semaphores:  make(map[string]*toolSemaphore),
	}
}

// SetLimit configures the concurrency limit for a specific tool.
func (m *ConcurrencyManager) SetLimit(tool string, limit int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.limits[tool] = limit
	if sem, ok := m.semaphores[tool]; ok {
		sem.mu.Lock()
		sem.limit = limit
		sem.mu.Unlock()
	}
}

func (m *ConcurrencyManager) semaphoreFor(tool string) *toolSemaphore {
	m.mu.Lock()
	defer m.mu.Unlock()

	if sem, ok := m.semaphores[tool]; ok {
		return sem
	}
	limit, ok := m.limits[tool]
	if !ok {
		limit = m.defaultMax
	}
	sem := newToolSemaphore(limit)
	m.semaphores[tool] = sem
	return sem
}

// Slot represents a held concurrency slot; Release must be called exactly
// once, on every exit path including cancellation.
type Slot struct {
	tool    string
	manager *ConcurrencyManager
	sem     *toolSemaphore
	WaitMs  int64
}

// Release returns the slot to its tool's semaphore. A second call is a
// no-op, since the first clears the slot's semaphore reference.
func (s *Slot) Release() {
	if s == nil || s.sem == nil {
		return
	}
	s.sem.release()
	s.sem = nil
}

// AcquireSlot blocks until a slot for tool is free or maxWait elapses. If
// maxWait is zero, the manager's default acquire budget is used; a negative
// value disables the budget (wait indefinitely, bounded only by ctx).
func (m *ConcurrencyManager) AcquireSlot(ctx context.Context, tool string, maxWait time.Duration) (*Slot, error) {
	sem := m.semaphoreFor(tool)
	if maxWait == 0 {
		maxWait = m.defaultWait
	}
	if maxWait < 0 {
		maxWait = 0
	}

	waitMs, err := sem.acquire(ctx, maxWait)
	if err != nil {
		return nil, err
	}
	return &Slot{tool: tool, manager: m, sem: sem, WaitMs: waitMs}, nil
}

// Stats reports the active/waiting/limit counters for a tool's semaphore.
func (m *ConcurrencyManager) Stats(tool string) (active, waiting, limit int) {
	return m.semaphoreFor(tool).stats()
}

// GC drops the bookkeeping for a tool with no active holders and no
// waiters, matching the spec's garbage-collect-on-empty contract.
func (m *ConcurrencyManager) GC(tool string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sem, ok := m.semaphores[tool]
	if !ok {
		return
	}
	active, waiting, _ := sem.stats()
	if active == 0 && waiting == 0 {
		delete(m.semaphores, tool)
	}
}
