package host

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
)

// ErrLoopClosed is returned by Loop.Do after Close.
var ErrLoopClosed = errors.New("host loop closed")

// Scheduler runs framework lifecycle work on the goroutine that owns the
// framework's objects. Do blocks until fn has run. A panic in fn is returned
// as an error.
type Scheduler interface {
	Do(ctx context.Context, fn func()) error
}

// Inline runs fn on the calling goroutine.
type Inline struct{}

// Do runs fn immediately.
func (Inline) Do(ctx context.Context, fn func()) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return runGuarded(fn)
}

// Loop owns one goroutine and runs submitted work on it in order.
// fn must not call Do on the same loop.
type Loop struct {
	tasks     chan *task
	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

type task struct {
	fn   func()
	err  error
	done chan struct{}
}

// NewLoop starts the owning goroutine.
func NewLoop() *Loop {
	l := &Loop{
		tasks: make(chan *task),
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	go l.run()
	return l
}

func (l *Loop) run() {
	defer close(l.done)
	for {
		select {
		case t := <-l.tasks:
			t.err = runGuarded(t.fn)
			close(t.done)
		case <-l.stop:
			return
		}
	}
}

// Do hands fn to the loop and waits for it. Once accepted, fn always runs to
// completion even if ctx is cancelled meanwhile.
func (l *Loop) Do(ctx context.Context, fn func()) error {
	t := &task{fn: fn, done: make(chan struct{})}
	select {
	case l.tasks <- t:
	case <-ctx.Done():
		return ctx.Err()
	case <-l.stop:
		return ErrLoopClosed
	}
	<-t.done
	return t.err
}

// Close stops the loop and waits for the goroutine to exit.
func (l *Loop) Close() {
	l.closeOnce.Do(func() { close(l.stop) })
	<-l.done
}

func runGuarded(fn func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("host task panicked: %v\n%s", r, debug.Stack())
		}
	}()
	fn()
	return nil
}
