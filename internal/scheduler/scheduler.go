// Package scheduler provides a deterministic virtual-time event loop.
//
// A Scheduler holds periodic ticks registered with Every and one-shot timers
// registered with After. Advance moves virtual time forward and runs every
// event that falls due, in order of due time. At equal due time one-shot
// timers run before periodic ticks, and periodic ticks run in registration
// order. Callbacks may register or cancel timers; a timer registered during
// Advance that falls due inside the same window runs in that window.
//
// A Scheduler is not safe for concurrent use. The owner serializes access.
package scheduler

import (
	"container/heap"
	"errors"
	"fmt"
	"time"
)

// Token identifies a one-shot timer. The zero Token is never issued.
type Token uint64

// ErrInvalidInterval is returned by Every for non-positive intervals.
var ErrInvalidInterval = errors.New("scheduler: interval must be positive")

const (
	priorityTimer = iota
	priorityPeriodic
)

type event struct {
	due      time.Duration
	priority int
	order    uint64
	fn       func()

	// periodic fields
	name     string
	interval time.Duration

	token Token
	index int
}

// Scheduler is a virtual clock plus a queue of pending events.
type Scheduler struct {
	now       time.Duration
	seq       uint64
	nextToken Token
	queue     eventQueue
	timers    map[Token]*event
	periodics []*event
}

// New returns an empty scheduler at virtual time zero.
func New() *Scheduler {
	return &Scheduler{timers: make(map[Token]*event)}
}

// Now returns the current virtual time.
func (s *Scheduler) Now() time.Duration {
	return s.now
}

// Every registers fn to run every interval, first at Now()+interval.
func (s *Scheduler) Every(name string, interval time.Duration, fn func()) error {
	if interval <= 0 {
		return fmt.Errorf("every %q: %w", name, ErrInvalidInterval)
	}
	ev := &event{
		due:      s.now + interval,
		priority: priorityPeriodic,
		order:    uint64(len(s.periodics)),
		fn:       fn,
		name:     name,
		interval: interval,
	}
	s.periodics = append(s.periodics, ev)
	heap.Push(&s.queue, ev)
	return nil
}

// After registers fn to run once at Now()+delay. A negative delay is treated
// as zero. The returned token can be passed to Cancel or Remaining.
func (s *Scheduler) After(delay time.Duration, fn func()) Token {
	if delay < 0 {
		delay = 0
	}
	s.nextToken++
	s.seq++
	ev := &event{
		due:      s.now + delay,
		priority: priorityTimer,
		order:    s.seq,
		fn:       fn,
		token:    s.nextToken,
	}
	s.timers[ev.token] = ev
	heap.Push(&s.queue, ev)
	return ev.token
}

// Cancel removes a pending timer. It reports whether the timer was pending;
// cancelling a fired, cancelled or zero token returns false.
func (s *Scheduler) Cancel(tok Token) bool {
	ev, ok := s.timers[tok]
	if !ok {
		return false
	}
	delete(s.timers, tok)
	heap.Remove(&s.queue, ev.index)
	return true
}

// Remaining returns the time until a pending timer fires.
func (s *Scheduler) Remaining(tok Token) (time.Duration, bool) {
	ev, ok := s.timers[tok]
	if !ok {
		return 0, false
	}
	return ev.due - s.now, true
}

// Pending returns the number of pending one-shot timers.
func (s *Scheduler) Pending() int {
	return len(s.timers)
}

// Advance moves virtual time forward by dt, running all events due in
// (Now(), Now()+dt], then leaves Now() at exactly Now()+dt.
func (s *Scheduler) Advance(dt time.Duration) {
	if dt < 0 {
		return
	}
	target := s.now + dt
	for s.queue.Len() > 0 {
		ev := s.queue[0]
		if ev.due > target {
			break
		}
		heap.Pop(&s.queue)
		s.now = ev.due

		if ev.priority == priorityTimer {
			delete(s.timers, ev.token)
		} else {
			ev.due += ev.interval
			heap.Push(&s.queue, ev)
		}
		ev.fn()
	}
	s.now = target
}

type eventQueue []*event

func (q eventQueue) Len() int { return len(q) }

func (q eventQueue) Less(i, j int) bool {
	a, b := q[i], q[j]
	if a.due != b.due {
		return a.due < b.due
	}
	if a.priority != b.priority {
		return a.priority < b.priority
	}
	return a.order < b.order
}

func (q eventQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *eventQueue) Push(x any) {
	ev := x.(*event)
	ev.index = len(*q)
	*q = append(*q, ev)
}

func (q *eventQueue) Pop() any {
	old := *q
	n := len(old)
	ev := old[n-1]
	old[n-1] = nil
	ev.index = -1
	*q = old[:n-1]
	return ev
}
