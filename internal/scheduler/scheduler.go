package scheduler

import (
	"container/heap"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// entry represents a scheduled module update in the heap.
type entry struct {
	moduleID string
	schedule cron.Schedule
	nextRun  time.Time
}

// entryHeap is a min-heap of entries ordered by nextRun (earliest first).
type entryHeap []entry

func (h entryHeap) Len() int           { return len(h) }
func (h entryHeap) Less(i, j int) bool { return h[i].nextRun.Before(h[j].nextRun) }
func (h entryHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *entryHeap) Push(x any)        { *h = append(*h, x.(entry)) }
func (h *entryHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	*h = old[:n-1]
	return e
}

// Scheduler drives periodic history updates using a min-heap and a
// single timer goroutine.
type Scheduler struct {
	mu    sync.Mutex
	heap  entryHeap
	timer *time.Timer
	done  chan struct{}
	wg    sync.WaitGroup
	fire  func(moduleID string)
	reset chan struct{} // signals the goroutine to re-read the timer
}

// NewScheduler creates a Scheduler that calls fire when a module's
// update is due.
func NewScheduler(fire func(moduleID string)) *Scheduler {
	return &Scheduler{
		fire:  fire,
		done:  make(chan struct{}),
		reset: make(chan struct{}, 1),
	}
}

// Add schedules updates for a module. An existing schedule for the
// same module is replaced. The timer is reset if the new entry is the
// earliest.
func (s *Scheduler) Add(moduleID string, schedule cron.Schedule) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.removeLocked(moduleID)

	e := entry{
		moduleID: moduleID,
		schedule: schedule,
		nextRun:  NextTime(schedule, time.Now()),
	}
	heap.Push(&s.heap, e)
	s.resetTimerLocked()
}

// Remove unschedules a module.
func (s *Scheduler) Remove(moduleID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(moduleID)
	s.resetTimerLocked()
}

// removeLocked removes the first entry matching moduleID. Caller must hold s.mu.
func (s *Scheduler) removeLocked(moduleID string) {
	for i, e := range s.heap {
		if e.moduleID == moduleID {
			heap.Remove(&s.heap, i)
			return
		}
	}
}

// NextUpdate returns the next scheduled update time for the module.
func (s *Scheduler) NextUpdate(moduleID string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.heap {
		if e.moduleID == moduleID {
			return e.nextRun, true
		}
	}
	return time.Time{}, false
}

// Start launches the scheduler goroutine.
func (s *Scheduler) Start() {
	s.mu.Lock()
	// Create a stopped timer; it will be set properly by resetTimerLocked.
	s.timer = time.NewTimer(0)
	if !s.timer.Stop() {
		<-s.timer.C
	}
	s.resetTimerLocked()
	s.mu.Unlock()

	s.wg.Add(1)
	go s.run()
}

// Stop signals the scheduler goroutine to exit and waits for it.
func (s *Scheduler) Stop() {
	close(s.done)
	s.wg.Wait()
}

// run is the main scheduler loop.
func (s *Scheduler) run() {
	defer s.wg.Done()
	for {
		select {
		case <-s.done:
			s.mu.Lock()
			s.timer.Stop()
			s.mu.Unlock()
			return
		case <-s.reset:
			// Timer was reset externally (Add/Remove); loop back to
			// wait on the updated timer.
			continue
		case <-s.timer.C:
			s.mu.Lock()
			if s.heap.Len() == 0 {
				s.mu.Unlock()
				continue
			}

			now := time.Now()
			e := s.heap[0]

			if e.nextRun.After(now) {
				// Spurious wake; reset and wait again.
				s.resetTimerLocked()
				s.mu.Unlock()
				continue
			}

			// Pop the entry, fire the callback, recalculate, and re-push.
			heap.Pop(&s.heap)
			moduleID := e.moduleID
			e.nextRun = NextTime(e.schedule, now)
			heap.Push(&s.heap, e)
			s.resetTimerLocked()
			s.mu.Unlock()

			s.fire(moduleID)
		}
	}
}

// resetTimerLocked resets the timer to fire at the earliest entry's nextRun.
// Caller must hold s.mu. Safe to call before Start (timer may be nil).
func (s *Scheduler) resetTimerLocked() {
	if s.timer == nil {
		return
	}
	s.timer.Stop()
	if s.heap.Len() == 0 {
		return
	}
	d := time.Until(s.heap[0].nextRun)
	if d < 0 {
		d = 0
	}
	s.timer.Reset(d)

	// Non-blocking send to wake the goroutine so it re-selects on the new timer.
	select {
	case s.reset <- struct{}{}:
	default:
	}
}
