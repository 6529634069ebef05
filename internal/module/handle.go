package module

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	ErrSpawnFailed    = errors.New("worker spawn failed")
	ErrAlreadyRunning = errors.New("module already running")
	ErrInconsistent   = errors.New("module state inconsistent")
)

// workerHandle is a joinable reference to one worker goroutine.
type workerHandle struct {
	name string
	done chan struct{}
	err  error
}

// join blocks until the worker returns and reports its result.
func (h *workerHandle) join() error {
	<-h.done
	return h.err
}

func (h *workerHandle) exited() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

// goFunc launches body on a new goroutine.
type goFunc func(body func()) error

func goRoutine(body func()) error {
	go body()
	return nil
}

// spawn starts entry under containment and waits until the goroutine has
// actually begun executing, at most c.spawnTimeout.
func (c *Controller) spawn(ctx context.Context, name string, entry func(context.Context) error) (*workerHandle, error) {
	h := &workerHandle{name: name, done: make(chan struct{})}
	started := make(chan struct{})
	contain := c.contain
	body := func() {
		defer close(h.done)
		close(started)
		h.err = contain.run(ctx, name, entry)
	}
	if err := c.goFn(body); err != nil {
		return nil, fmt.Errorf("%s: %w: %w", name, ErrSpawnFailed, err)
	}
	t := time.NewTimer(c.spawnTimeout)
	defer t.Stop()
	select {
	case <-started:
		return h, nil
	case <-t.C:
		return nil, fmt.Errorf("%s: %w: not started within %s", name, ErrSpawnFailed, c.spawnTimeout)
	}
}
