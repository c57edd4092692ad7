package servicectx

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keboola/go-barrier/internal/pkg/log"
	"github.com/keboola/go-barrier/internal/pkg/utils/errors"
)

func TestProcess_Add(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	logger := log.NewDebugLogger()
	proc, err := New(ctx, cancel, logger, WithUniqueID("<id>"), WithoutSignals())
	require.NoError(t, err)

	// Do some work, operations run in parallel, sleep determines the completion order to make it testable
	proc.Add(func(ctx context.Context, _ ShutdownFn) {
		<-ctx.Done()
		time.Sleep(100 * time.Millisecond)
		logger.Info(ctx, "end1")
	})
	proc.Add(func(ctx context.Context, _ ShutdownFn) {
		<-ctx.Done()
		time.Sleep(200 * time.Millisecond)
		logger.Info(ctx, "end2")
	})
	proc.Add(func(ctx context.Context, shutdown ShutdownFn) {
		shutdown(errors.New("operation failed"))
	})
	proc.OnShutdown(func(ctx context.Context) {
		logger.Info(ctx, "onShutdown1")
	})
	proc.OnShutdown(func(ctx context.Context) {
		logger.Info(ctx, "onShutdown2")
	})

	cause := proc.WaitForShutdown()
	require.Error(t, cause)
	assert.Equal(t, "operation failed", cause.Error())

	logger.AssertJSONMessages(t, `
{"level":"info","message":"process unique id \"<id>\"","component":"process"}
{"level":"info","message":"exiting (operation failed)","component":"process"}
{"level":"info","message":"onShutdown2"}
{"level":"info","message":"onShutdown1"}
{"level":"info","message":"end1"}
{"level":"info","message":"end2"}
{"level":"info","message":"exited","component":"process"}
`)
}

func TestProcess_Shutdown_Completed(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	logger := log.NewDebugLogger()
	proc, err := New(ctx, cancel, logger, WithUniqueID("<id>"), WithoutSignals())
	require.NoError(t, err)

	proc.Add(func(ctx context.Context, shutdown ShutdownFn) {
		shutdown(nil)
		<-ctx.Done()
	})
	proc.Shutdown(errors.New("ignored"))

	// The first cause wins, both are possible here, so only the log order is checked.
	_ = proc.WaitForShutdown()
	logger.AssertJSONMessages(t, `
{"level":"info","message":"exiting (%s)"}
{"level":"info","message":"exited"}
`)
	assert.Error(t, proc.Ctx().Err())
}

func TestProcess_OnShutdown_Terminating(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	logger := log.NewDebugLogger()
	proc, err := New(ctx, cancel, logger, WithoutSignals())
	require.NoError(t, err)

	proc.Shutdown(nil)
	assert.NoError(t, proc.WaitForShutdown())

	proc.OnShutdown(func(ctx context.Context) {})
	logger.AssertJSONMessages(t, `{"level":"error","message":"cannot register OnShutdown callback: the process is terminating"}`)
}
