package control

import "sync"

// Loop is the single goroutine on which all pane and catalog state is
// mutated. Timers, rescan workers and async commands hand their
// results back via Post; nothing outside the loop touches controller
// state, so the controller needs no locks.
type Loop struct {
	mu      sync.Mutex
	cond    *sync.Cond
	queue   []func()
	stopped bool
}

func NewLoop() *Loop {
	l := &Loop{}
	l.cond = sync.NewCond(&l.mu)
	return l
}

// Run drains tasks until Stop. Call from exactly one goroutine.
// Tasks queued before Stop still run, so shutdown work completes.
func (l *Loop) Run() {
	l.mu.Lock()
	for {
		for len(l.queue) == 0 && !l.stopped {
			l.cond.Wait()
		}
		if len(l.queue) == 0 {
			l.mu.Unlock()
			return
		}
		fn := l.queue[0]
		l.queue = l.queue[1:]
		l.mu.Unlock()
		fn()
		l.mu.Lock()
	}
}

// Post queues fn for execution on the loop. Safe from any goroutine,
// including a task already running on the loop: the queue is
// unbounded, so posting a follow-up can never block the loop itself.
// Posts landing after Stop never run.
func (l *Loop) Post(fn func()) {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return
	}
	l.queue = append(l.queue, fn)
	l.mu.Unlock()
	l.cond.Signal()
}

// Stop ends Run after the queued tasks drain.
func (l *Loop) Stop() {
	l.mu.Lock()
	l.stopped = true
	l.mu.Unlock()
	l.cond.Broadcast()
}
