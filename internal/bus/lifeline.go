package bus

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
)

// Lifeline is a handle representing a running supervised task. Cancelling a
// lifeline (or cancelling the context it was derived from) stops the task;
// Go has no destructor-triggered cancellation, so callers are expected to
// call Cancel explicitly wherever the original design relies on a handle
// going out of scope (§9 design notes).
type Lifeline struct {
	name   string
	cancel context.CancelFunc
	done   chan struct{}

	mu  sync.Mutex
	err error
}

// Spawn runs fn in a new goroutine under a context derived from ctx, and
// returns a Lifeline that supervises it. If fn returns a non-nil error, the
// failure is recorded and logged (§7: "the surrounding component decides
// whether to restart"); Spawn never restarts fn itself.
func Spawn(ctx context.Context, log *logrus.Logger, name string, fn func(context.Context) error) *Lifeline {
	taskCtx, cancel := context.WithCancel(ctx)
	l := &Lifeline{name: name, cancel: cancel, done: make(chan struct{})}

	go func() {
		defer close(l.done)
		err := fn(taskCtx)
		l.mu.Lock()
		l.err = err
		l.mu.Unlock()
		if err != nil && taskCtx.Err() == nil && log != nil {
			log.WithError(err).WithField("lifeline", name).Error("task ended with error")
		}
	}()

	return l
}

// Cancel stops the task. It does not wait for the task to exit; use Wait
// for that.
func (l *Lifeline) Cancel() {
	l.cancel()
}

// Done returns a channel that is closed when the task has exited.
func (l *Lifeline) Done() <-chan struct{} {
	return l.done
}

// Wait blocks until the task has exited and returns its error, if any.
func (l *Lifeline) Wait() error {
	<-l.done
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.err
}

// Err returns the task's terminal error without blocking. It is only
// meaningful after Done() is closed.
func (l *Lifeline) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.err
}

// Group supervises a set of lifelines as a unit, e.g. the handful of
// forwarding tasks that make up a carrier (§4.4) or the three flows that
// make up a PTY session (§4.6).
type Group struct {
	mu        sync.Mutex
	lifelines []*Lifeline
}

// Add registers a lifeline with the group.
func (g *Group) Add(l *Lifeline) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.lifelines = append(g.lifelines, l)
}

// Cancel cancels every lifeline in the group.
func (g *Group) Cancel() {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, l := range g.lifelines {
		l.Cancel()
	}
}

// Wait blocks until every lifeline in the group has exited.
func (g *Group) Wait() {
	g.mu.Lock()
	lifelines := append([]*Lifeline(nil), g.lifelines...)
	g.mu.Unlock()
	for _, l := range lifelines {
		<-l.Done()
	}
}
