// Package runner executes dispatched functions one at a time on a dedicated
// goroutine.
package runner

import "sync"

// Runner owns a single goroutine that runs dispatched functions in mutual
// exclusion. Nothing is promised about the order in which functions
// dispatched from different goroutines run, only that they never overlap.
type Runner struct {
	requests chan func()

	mu     sync.Mutex
	closed chan struct{}
	done   chan struct{}
}

// New returns a Runner with its loop already running.
func New() *Runner {
	r := &Runner{
		requests: make(chan func()),
		closed:   make(chan struct{}),
		done:     make(chan struct{}),
	}
	go r.run()
	return r
}

func (r *Runner) run() {
	defer close(r.done)

	for {
		select {
		case fn := <-r.requests:
			fn()
		case <-r.closed:
			return
		}
	}
}

// Dispatch hands fn to the run loop, returning once the loop has accepted
// it. fn runs after every previously accepted function has returned; its
// completion is observable through whatever fn itself signals. Dispatching
// on a closed Runner is a programming error and panics.
func (r *Runner) Dispatch(fn func()) {
	select {
	case r.requests <- fn:
	case <-r.closed:
		panic("runner: Dispatch called on closed Runner")
	}
}

// Close stops the loop once any in-flight function returns and waits for
// the goroutine to exit. Close may be called more than once.
func (r *Runner) Close() {
	r.mu.Lock()
	select {
	case <-r.closed:
	default:
		close(r.closed)
	}
	r.mu.Unlock()

	<-r.done
}
