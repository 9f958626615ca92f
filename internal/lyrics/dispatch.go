package lyrics

import "sync"

// Dispatcher delivers completion callbacks on the caller's interactive
// context. The terminal front end routes them through its event loop.
type Dispatcher interface {
	Dispatch(fn func())
}

type DispatchFunc func(fn func())

func (f DispatchFunc) Dispatch(fn func()) { f(fn) }

// Immediate runs callbacks on the worker that produced them.
var Immediate Dispatcher = DispatchFunc(func(fn func()) { fn() })

// Loop runs callbacks one at a time, in arrival order, on its own goroutine.
type Loop struct {
	ch   chan func()
	done chan struct{}
	once sync.Once
	wg   sync.WaitGroup
}

func NewLoop(buffer int) *Loop {
	l := &Loop{ch: make(chan func(), buffer), done: make(chan struct{})}
	l.wg.Add(1)
	go l.run()
	return l
}

func (l *Loop) run() {
	defer l.wg.Done()
	for {
		select {
		case fn := <-l.ch:
			fn()
		case <-l.done:
			return
		}
	}
}

// Dispatch queues fn. Calls after Close are dropped.
func (l *Loop) Dispatch(fn func()) {
	select {
	case <-l.done:
		return
	default:
	}
	select {
	case l.ch <- fn:
	case <-l.done:
	}
}

// Close stops the loop and waits for the running callback to return.
func (l *Loop) Close() {
	l.once.Do(func() { close(l.done) })
	l.wg.Wait()
}
