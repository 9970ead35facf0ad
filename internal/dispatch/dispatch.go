// Package dispatch serializes message processing per author.
//
// Every author gets a logical lane: tasks enqueued for the same author run
// one at a time in arrival order, while different authors proceed fully in
// parallel. This is what keeps moderation-state mutations and cache writes
// for one author from racing each other without any global lock. A task
// failing (or panicking) never aborts the tasks queued behind it.
//
// Lanes are created lazily on first enqueue and torn down by the periodic
// sweep once empty, never by the enqueue path; tearing down inline would race
// a concurrent enqueue on the same author.
package dispatch

import (
	"runtime/debug"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// lane is one author's pending task chain.
type lane struct {
	mu       sync.Mutex
	pending  []func()
	running  bool
	lastDone time.Time
	// dead marks a lane the sweeper has removed from the map; an enqueue
	// that raced the sweep must not use it.
	dead bool
}

// Serializer runs tasks FIFO per author key. Safe for concurrent use.
type Serializer struct {
	log zerolog.Logger

	mu    sync.Mutex
	lanes map[string]*lane

	now func() time.Time
}

// NewSerializer constructs an empty Serializer.
func NewSerializer(log zerolog.Logger) *Serializer {
	return &Serializer{
		log:   log,
		lanes: make(map[string]*lane),
		now:   time.Now,
	}
}

// Enqueue schedules task to run after every previously enqueued task for
// authorID has completed, regardless of how those tasks ended. It returns
// immediately; the task runs on the author's lane goroutine.
func (s *Serializer) Enqueue(authorID string, task func()) {
	for {
		s.mu.Lock()
		ln, ok := s.lanes[authorID]
		if !ok {
			ln = &lane{}
			s.lanes[authorID] = ln
		}
		s.mu.Unlock()

		ln.mu.Lock()
		if ln.dead {
			// Lost a race with the sweeper; take a fresh lane.
			ln.mu.Unlock()
			continue
		}
		ln.pending = append(ln.pending, task)
		spawn := !ln.running
		if spawn {
			ln.running = true
		}
		ln.mu.Unlock()

		if spawn {
			go s.drain(authorID, ln)
		}
		return
	}
}

// drain runs the lane's tasks until the queue is empty, then parks the lane
// for the sweeper to collect.
func (s *Serializer) drain(authorID string, ln *lane) {
	for {
		ln.mu.Lock()
		if len(ln.pending) == 0 {
			ln.running = false
			ln.lastDone = s.now()
			ln.mu.Unlock()
			return
		}
		task := ln.pending[0]
		ln.pending = ln.pending[1:]
		ln.mu.Unlock()

		s.run(authorID, task)
	}
}

// run executes one task, containing panics so the rest of the lane survives.
func (s *Serializer) run(authorID string, task func()) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error().
				Str("author_id", authorID).
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Msg("serialized task panicked")
		}
	}()
	task()
}

// Sweep removes lanes that have been idle (not running, nothing pending)
// since before cutoff, returning the number removed. A lane whose mutex is
// busy is skipped rather than waited on; the next sweep will get it.
func (s *Serializer) Sweep(cutoff time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, ln := range s.lanes {
		if !ln.mu.TryLock() {
			continue
		}
		idle := !ln.running && len(ln.pending) == 0 && ln.lastDone.Before(cutoff)
		if idle {
			ln.dead = true
			delete(s.lanes, id)
			removed++
		}
		ln.mu.Unlock()
	}
	return removed
}

// Len reports the number of live lanes, for metrics and tests.
func (s *Serializer) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.lanes)
}
