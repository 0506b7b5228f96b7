package shutdown

import (
	"bytes"
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trendmaker/internal/pkg/logger"
)

func newTestLogger() *logger.Logger {
	var buf bytes.Buffer
	return logger.New(logger.Config{
		Level:  "debug",
		Format: "json",
		Output: &buf,
	})
}

func TestNewManager(t *testing.T) {
	mgr := NewManager(newTestLogger(), 0)
	require.NotNil(t, mgr)
	assert.Equal(t, DefaultTimeout, mgr.timeout)

	mgr = NewManager(newTestLogger(), 10*time.Second)
	assert.Equal(t, 10*time.Second, mgr.timeout)
}

func TestRegister(t *testing.T) {
	mgr := NewManager(newTestLogger(), 5*time.Second)
	mgr.Register("controller", func(context.Context) error { return nil })

	require.Len(t, mgr.steps, 1)
	assert.Equal(t, "controller", mgr.steps[0].Name)
}

func TestRegisterSimple(t *testing.T) {
	mgr := NewManager(newTestLogger(), 5*time.Second)

	var called bool
	mgr.RegisterSimple("recorder", func() { called = true })

	require.NoError(t, mgr.Shutdown())
	assert.True(t, called)
}

func TestShutdown_ReverseOrder(t *testing.T) {
	mgr := NewManager(newTestLogger(), 5*time.Second)

	var order []string
	for _, name := range []string{"journal", "recorder", "controller"} {
		mgr.Register(name, func(context.Context) error {
			order = append(order, name)
			return nil
		})
	}

	require.NoError(t, mgr.Shutdown())
	assert.Equal(t, []string{"controller", "recorder", "journal"}, order)
}

func TestShutdown_CollectsErrors(t *testing.T) {
	mgr := NewManager(newTestLogger(), 5*time.Second)
	boom := stderrors.New("boom")

	var ran bool
	mgr.Register("first", func(context.Context) error { ran = true; return nil })
	mgr.Register("failing", func(context.Context) error { return boom })

	err := mgr.Shutdown()
	assert.ErrorIs(t, err, boom)
	assert.True(t, ran, "a failing step must not stop the rest")
}

func TestShutdown_Once(t *testing.T) {
	mgr := NewManager(newTestLogger(), 5*time.Second)

	calls := 0
	mgr.RegisterSimple("server", func() { calls++ })

	require.NoError(t, mgr.Shutdown())
	require.NoError(t, mgr.Shutdown())
	assert.Equal(t, 1, calls)
}

func TestShutdown_Timeout(t *testing.T) {
	mgr := NewManager(newTestLogger(), 50*time.Millisecond)

	var skipped = true
	mgr.RegisterSimple("after", func() { skipped = false })
	mgr.Register("slow", func(ctx context.Context) error {
		select {
		case <-time.After(5 * time.Second):
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})

	start := time.Now()
	err := mgr.Shutdown()

	assert.Less(t, time.Since(start), time.Second)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.True(t, skipped)
}

func TestDone(t *testing.T) {
	mgr := NewManager(newTestLogger(), 5*time.Second)

	select {
	case <-mgr.Done():
		t.Fatal("done closed before shutdown")
	default:
	}

	require.NoError(t, mgr.Shutdown())

	select {
	case <-mgr.Done():
	case <-time.After(time.Second):
		t.Fatal("done not closed after shutdown")
	}
}

func TestWait_ContextCanceled(t *testing.T) {
	mgr := NewManager(newTestLogger(), 5*time.Second)

	var called bool
	mgr.RegisterSimple("server", func() { called = true })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, mgr.Wait(ctx))
	assert.True(t, called)
}

func TestWait_AfterShutdown(t *testing.T) {
	mgr := NewManager(newTestLogger(), 5*time.Second)
	require.NoError(t, mgr.Shutdown())

	// returns immediately instead of waiting for a signal
	require.NoError(t, mgr.Wait(context.Background()))
}
