package core

import "context"

// Loop serializes orchestration work onto one goroutine. Adapter
// callbacks, timer ticks and fetch results are posted here as closures,
// so session state is never touched concurrently and the single-session
// invariant stays a pure guard condition.
type Loop struct {
	tasks chan func()
	done  chan struct{}
}

func NewLoop() *Loop {
	return &Loop{
		tasks: make(chan func(), 256),
		done:  make(chan struct{}),
	}
}

// Run drains tasks until ctx is done. Call from exactly one goroutine.
func (l *Loop) Run(ctx context.Context) {
	defer close(l.done)
	for {
		select {
		case <-ctx.Done():
			return
		case fn := <-l.tasks:
			fn()
		}
	}
}

// Post enqueues fn; it is dropped once the loop has stopped.
func (l *Loop) Post(fn func()) {
	select {
	case l.tasks <- fn:
	case <-l.done:
	}
}
