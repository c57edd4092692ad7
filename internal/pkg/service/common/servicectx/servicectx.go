// Package servicectx provides unique ID for a process and support for the graceful shutdown.
package servicectx

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"testing"

	"github.com/keboola/go-barrier/internal/pkg/idgenerator"
	"github.com/keboola/go-barrier/internal/pkg/log"
	"github.com/keboola/go-barrier/internal/pkg/utils/errors"
)

type Process struct {
	ctx      context.Context
	cancel   context.CancelFunc
	logger   log.Logger
	wg       *sync.WaitGroup
	causeCh  chan error
	uniqueID string

	lock        *sync.Mutex
	terminating bool
	onShutdown  []OnShutdownFn
}

type Option func(c *config)

type OnShutdownFn func(ctx context.Context)

// ShutdownFn triggers termination of the Process, nil cause means a successful completion.
type ShutdownFn func(cause error)

type config struct {
	uniqueID string
	signals  bool
}

// WithUniqueID sets unique ID of the process.
// By default, it is generated from the hostname and PID.
func WithUniqueID(v string) Option {
	return func(c *config) {
		c.uniqueID = v
	}
}

// WithoutSignals disables the SIGINT and SIGTERM handler.
func WithoutSignals() Option {
	return func(c *config) {
		c.signals = false
	}
}

func New(ctx context.Context, cancel context.CancelFunc, logger log.Logger, opts ...Option) (*Process, error) {
	// Apply options
	c := config{signals: true}
	for _, o := range opts {
		o(&c)
	}

	// Generate uniqueID if not set
	if c.uniqueID == "" {
		hostname, err := os.Hostname()
		if err != nil {
			return nil, err
		}
		c.uniqueID = fmt.Sprintf(`%s-%05d`, hostname, os.Getpid())
	}

	proc := &Process{
		ctx:      ctx,
		cancel:   cancel,
		logger:   logger.WithComponent("process"),
		wg:       &sync.WaitGroup{},
		causeCh:  make(chan error),
		uniqueID: c.uniqueID,
		lock:     &sync.Mutex{},
	}

	// SIGINT and SIGTERM signals cause the operations to stop gracefully.
	if c.signals {
		go func() {
			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			select {
			case sig := <-sigCh:
				proc.Shutdown(errors.Errorf("%s", sig))
			case <-ctx.Done():
				signal.Stop(sigCh)
			}
		}()
	}

	// Register onShutdown operation
	proc.Add(func(ctx context.Context, _ ShutdownFn) {
		<-ctx.Done()
		proc.lock.Lock()
		proc.terminating = true
		callbacks := proc.onShutdown
		proc.lock.Unlock()

		// Iterate callbacks in reverse order, LIFO
		shutdownCtx := context.WithoutCancel(ctx)
		for i := len(callbacks) - 1; i >= 0; i-- {
			callbacks[i](shutdownCtx)
		}
	})

	proc.logger.Infof(ctx, `process unique id "%s"`, proc.UniqueID())
	return proc, nil
}

func NewForTest(t *testing.T) *Process {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	proc, err := New(ctx, cancel, log.NewNopLogger(), WithoutSignals(), WithUniqueID("test_"+idgenerator.ParticipantID()))
	if err != nil {
		t.Fatal(err)
		return nil
	}

	t.Cleanup(func() {
		proc.Shutdown(errors.New("test cleanup"))
		_ = proc.WaitForShutdown()
	})

	return proc
}

// Ctx returns context of the Process.
func (v *Process) Ctx() context.Context {
	return v.ctx
}

// Shutdown triggers termination of the Process.
// Only the first cause is returned by WaitForShutdown, later calls are ignored.
func (v *Process) Shutdown(cause error) {
	go func() {
		select {
		case v.causeCh <- cause:
		case <-v.ctx.Done():
		}
	}()
}

// WaitForShutdown blocks until the first shutdown cause, then it cancels the context and waits for all operations.
// The cause is returned, nil means a successful completion.
func (v *Process) WaitForShutdown() error {
	cause := <-v.causeCh
	if cause == nil {
		v.logger.Info(v.ctx, "exiting (completed)")
	} else {
		v.logger.Infof(v.ctx, "exiting (%s)", cause.Error())
	}

	// Send cancellation signal to the goroutines.
	v.cancel()

	// Wait for all operations
	v.wg.Wait()

	v.logger.Info(context.WithoutCancel(v.ctx), "exited")
	return cause
}

// UniqueID returns unique process ID, it consists of hostname and PID.
func (v *Process) UniqueID() string {
	return v.uniqueID
}

// Add an operation.
// The Process is graceful terminated when all operations are completed.
// The ctx parameter can be used to wait for the termination.
// The shutdown parameter can be used to stop the process with a cause.
func (v *Process) Add(operation func(ctx context.Context, shutdown ShutdownFn)) {
	v.wg.Add(1)
	go func() {
		defer v.wg.Done()
		operation(v.ctx, v.Shutdown)
	}()
}

// OnShutdown registers a callback that is invoked when the process is terminating.
// Graceful shutdown waits until the callback has finished.
// Callback are invoked sequentially in LIFO order.
func (v *Process) OnShutdown(fn OnShutdownFn) {
	v.lock.Lock()
	defer v.lock.Unlock()
	if v.terminating {
		v.logger.Error(v.ctx, `cannot register OnShutdown callback: the process is terminating`)
		return
	}
	v.onShutdown = append(v.onShutdown, fn)
}
