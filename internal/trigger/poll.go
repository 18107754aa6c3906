package trigger

import (
	"container/heap"
	"reflect"
	"sync"
	"time"
)

// Scheduler runs submitted tasks on a small fixed worker pool and can also
// run a task once at a future time. It is the Go analogue of the teacher
// lineage's half-baked ThreadPoolExecutor-backed Scheduler: a worker pool
// plus a time-ordered queue woken by whichever deadline is soonest.
type Scheduler struct {
	jobs chan func()

	mu      sync.Mutex
	cond    *sync.Cond
	pq      timerQueue
	started bool
	closing bool
}

// NewScheduler creates a Scheduler backed by workers goroutines.
func NewScheduler(workers int) *Scheduler {
	if workers < 1 {
		workers = 1
	}
	s := &Scheduler{jobs: make(chan func())}
	s.cond = sync.NewCond(&s.mu)
	for i := 0; i < workers; i++ {
		go s.worker()
	}
	return s
}

func (s *Scheduler) worker() {
	for job := range s.jobs {
		job()
	}
}

// Submit runs task on the worker pool as soon as a worker is free.
func (s *Scheduler) Submit(task func()) {
	s.jobs <- task
}

type timerTask struct {
	at   time.Time
	task func()
}

type timerQueue []timerTask

func (q timerQueue) Len() int           { return len(q) }
func (q timerQueue) Less(i, j int) bool { return q[i].at.Before(q[j].at) }
func (q timerQueue) Swap(i, j int)      { q[i], q[j] = q[j], q[i] }
func (q *timerQueue) Push(x any)        { *q = append(*q, x.(timerTask)) }
func (q *timerQueue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	*q = old[:n-1]
	return item
}

// SubmitAt schedules task to run on the worker pool at the given time.
func (s *Scheduler) SubmitAt(at time.Time, task func()) {
	s.mu.Lock()
	heap.Push(&s.pq, timerTask{at: at, task: task})
	if !s.started {
		s.started = true
		go s.runTimers()
	}
	s.cond.Broadcast()
	s.mu.Unlock()
}

func (s *Scheduler) runTimers() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for !s.closing {
		for len(s.pq) == 0 {
			s.cond.Wait()
			if s.closing {
				return
			}
		}
		next := s.pq[0].at
		wait := time.Until(next)
		if wait > 0 {
			s.mu.Unlock()
			timer := time.NewTimer(wait)
			<-timer.C
			s.mu.Lock()
			continue
		}
		item := heap.Pop(&s.pq).(timerTask)
		s.mu.Unlock()
		s.Submit(item.task)
		s.mu.Lock()
	}
}

// Close stops the scheduler's timer goroutine and worker pool. Pending
// timed tasks are discarded.
func (s *Scheduler) Close() {
	s.mu.Lock()
	s.closing = true
	s.cond.Broadcast()
	s.mu.Unlock()
	close(s.jobs)
}

// DefaultScheduler is a small process-wide worker pool shared by pollers
// that don't need a dedicated one.
var DefaultScheduler = NewScheduler(3)

// PollingTrigger re-runs task on a fixed interval and fires its callback
// only when the freshly polled value differs from the last one observed —
// mirroring the teacher lineage's Poller, which suppresses invalidation
// when a scheduled refresh returns an unchanged result.
type PollingTrigger struct {
	scheduler   *Scheduler
	task        func() (any, error)
	repeatEvery time.Duration

	mu       sync.Mutex
	callback func()
	armed    bool
	have     bool
	last     any
	lastErr  error
}

// NewPollingTrigger creates a trigger that re-invokes task every
// repeatEvery while armed.
func NewPollingTrigger(task func() (any, error), repeatEvery time.Duration) *PollingTrigger {
	return &PollingTrigger{scheduler: DefaultScheduler, task: task, repeatEvery: repeatEvery}
}

// Arm implements kernel.Trigger. It does not itself run task — the cell's
// thunk already did that on the calling goroutine — it only schedules the
// next background refresh.
func (p *PollingTrigger) Arm(callback func()) error {
	p.mu.Lock()
	p.callback = callback
	p.armed = true
	p.mu.Unlock()
	p.reschedule()
	return nil
}

// Disarm implements kernel.Trigger.
func (p *PollingTrigger) Disarm() {
	p.mu.Lock()
	p.armed = false
	p.callback = nil
	p.mu.Unlock()
}

// Seed records the value most recently produced by the cell's own thunk
// evaluation, so the first background poll has something to compare
// against. Callers that construct a cell around this trigger should call
// Seed with the thunk's result before the cell is read for the first time.
func (p *PollingTrigger) Seed(v any, err error) {
	p.mu.Lock()
	p.have = true
	p.last, p.lastErr = v, err
	p.mu.Unlock()
}

func (p *PollingTrigger) reschedule() {
	p.scheduler.SubmitAt(time.Now().Add(p.repeatEvery), p.poll)
}

func (p *PollingTrigger) poll() {
	v, err := p.task()

	p.mu.Lock()
	armed := p.armed
	changed := !p.have || err != nil || p.lastErr != nil || !reflect.DeepEqual(v, p.last)
	p.have = true
	p.last, p.lastErr = v, err
	cb := p.callback
	p.mu.Unlock()

	if !armed {
		return
	}
	p.reschedule()
	if changed && cb != nil {
		cb()
	}
}
