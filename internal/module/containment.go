package module

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/loykin/tablesync/internal/metrics"
)

// FaultError is the result of a worker whose entry point panicked.
type FaultError struct {
	Worker string
	Value  any
	Stack  []byte
}

func (e *FaultError) Error() string {
	return fmt.Sprintf("%s worker fault: %v", e.Worker, e.Value)
}

// FaultHandler is notified of every contained fault, from the faulting
// worker's goroutine.
type FaultHandler func(*FaultError)

// containment turns a panic inside a worker entry point into a *FaultError
// returned as that worker's result. Nothing escapes to the host.
type containment struct {
	logger  *slog.Logger
	onFault FaultHandler
}

func newContainment(logger *slog.Logger, onFault FaultHandler) *containment {
	return &containment{logger: logger, onFault: onFault}
}

func (c *containment) run(ctx context.Context, worker string, fn func(context.Context) error) (err error) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		fe := &FaultError{Worker: worker, Value: r, Stack: debug.Stack()}
		c.logger.Error("worker fault contained", "worker", worker, "fault", fmt.Sprint(r))
		c.logger.Debug("worker fault stack", "worker", worker, "stack", string(fe.Stack))
		metrics.IncFault(worker)
		c.notify(fe)
		err = fe
	}()
	return fn(ctx)
}

func (c *containment) notify(fe *FaultError) {
	if c.onFault == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("fault handler panicked", "worker", fe.Worker, "fault", fmt.Sprint(r))
		}
	}()
	c.onFault(fe)
}
