package eventloop

import (
	"context"
	"log"
	"sync"
	"time"
)

// Loop runs tasks one at a time on a single goroutine, in the order they were posted.
// Deferred tasks are clock timers that post into the loop when due; they are never cancelled.
type Loop struct {
	clock Clock
	tasks chan func()

	mu      sync.Mutex
	stopped bool
	done    chan struct{}
}

func New(clock Clock) *Loop {
	if clock == nil {
		clock = RealClock()
	}
	return &Loop{
		clock: clock,
		tasks: make(chan func(), 256),
		done:  make(chan struct{}),
	}
}

func (l *Loop) Now() time.Time { return l.clock.Now() }

// Run executes tasks until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) {
	defer close(l.done)
	for {
		select {
		case <-ctx.Done():
			l.mu.Lock()
			l.stopped = true
			l.mu.Unlock()
			return
		case task := <-l.tasks:
			l.exec(task)
		}
	}
}

// Start runs the loop on its own goroutine.
func (l *Loop) Start(ctx context.Context) {
	go l.Run(ctx)
}

// Done is closed once Run has returned.
func (l *Loop) Done() <-chan struct{} { return l.done }

func (l *Loop) exec(task func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("eventloop: task panicked: %v", r)
		}
	}()
	task()
}

// Post queues f to run on the loop.
func (l *Loop) Post(f func()) {
	l.mu.Lock()
	stopped := l.stopped
	l.mu.Unlock()
	if stopped {
		log.Printf("eventloop: dropping task posted after stop")
		return
	}
	select {
	case l.tasks <- f:
	case <-l.done:
	}
}

// After queues f to run on the loop once d has elapsed.
func (l *Loop) After(d time.Duration, f func()) {
	l.clock.AfterFunc(d, func() { l.Post(f) })
}

// Do runs f on the loop and waits for it to finish. It must not be called from a loop task.
func (l *Loop) Do(f func()) {
	finished := make(chan struct{})
	l.Post(func() {
		defer close(finished)
		f()
	})
	select {
	case <-finished:
	case <-l.done:
	}
}

// Flush waits until every task posted before the call has run.
func (l *Loop) Flush() { l.Do(func() {}) }
