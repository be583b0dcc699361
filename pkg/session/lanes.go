package session

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrLanesClosed is returned by Dispatch after Close.
var ErrLanesClosed = errors.New("lanes closed")

const laneBuffer = 32

// DefaultLaneIdle is how long a lane waits for work before it stops.
const DefaultLaneIdle = 10 * time.Minute

// Job is one unit of work on a conversation.
type Job func(ctx context.Context)

type lane struct {
	jobs chan Job
	// pending counts jobs dispatched but not yet taken by the worker.
	pending int
}

// Lanes runs jobs one at a time per key, in dispatch order. Jobs of
// different keys run concurrently. A lane with no work for the idle timeout
// stops and is forgotten; the next job for its key starts a fresh one.
type Lanes struct {
	ctx  context.Context
	done chan struct{}
	idle time.Duration

	mu     sync.Mutex
	lanes  map[string]*lane
	closed bool
	wg     sync.WaitGroup
}

// NewLanes runs every job with ctx. Cancelling ctx stops the lanes after
// their current job. A non-positive idle uses DefaultLaneIdle.
func NewLanes(ctx context.Context, idle time.Duration) *Lanes {
	if idle <= 0 {
		idle = DefaultLaneIdle
	}
	return &Lanes{
		ctx:   ctx,
		done:  make(chan struct{}),
		idle:  idle,
		lanes: make(map[string]*lane),
	}
}

// Dispatch queues job on the lane for key, starting the lane if needed. It
// blocks while the lane's queue is full.
func (l *Lanes) Dispatch(key string, job Job) error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return ErrLanesClosed
	}
	ln, ok := l.lanes[key]
	if !ok {
		ln = &lane{jobs: make(chan Job, laneBuffer)}
		l.lanes[key] = ln
		l.wg.Add(1)
		go l.run(key, ln)
	}
	ln.pending++
	l.mu.Unlock()

	select {
	case ln.jobs <- job:
		return nil
	case <-l.done:
		return ErrLanesClosed
	case <-l.ctx.Done():
		return l.ctx.Err()
	}
}

func (l *Lanes) run(key string, ln *lane) {
	defer l.wg.Done()
	timer := time.NewTimer(l.idle)
	defer timer.Stop()
	for {
		select {
		case job := <-ln.jobs:
			l.mu.Lock()
			ln.pending--
			l.mu.Unlock()
			job(l.ctx)
			timer.Reset(l.idle)
		case <-timer.C:
			if l.reap(key, ln) {
				return
			}
			timer.Reset(l.idle)
		case <-l.done:
			return
		case <-l.ctx.Done():
			return
		}
	}
}

// reap forgets ln unless a Dispatch still owes it a job.
func (l *Lanes) reap(key string, ln *lane) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if ln.pending > 0 {
		return false
	}
	if l.lanes[key] == ln {
		delete(l.lanes, key)
	}
	return true
}

// Len is the number of running lanes.
func (l *Lanes) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.lanes)
}

// Close stops accepting jobs and waits for running jobs to return. Queued
// jobs that have not started are dropped.
func (l *Lanes) Close() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		l.wg.Wait()
		return
	}
	l.closed = true
	close(l.done)
	l.mu.Unlock()
	l.wg.Wait()
}
