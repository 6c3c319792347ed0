package shutdown

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestManager_ShutdownRunsInReverseOrder(t *testing.T) {
	m := New(time.Second, zap.NewNop())

	var order []string
	m.Add("first", func(ctx context.Context) error {
		order = append(order, "first")
		return nil
	})
	m.Add("second", func(ctx context.Context) error {
		order = append(order, "second")
		return errors.New("boom") // ошибка не должна останавливать остальные
	})
	m.Add("third", func(ctx context.Context) error {
		order = append(order, "third")
		return nil
	})

	m.Shutdown()
	m.Shutdown() // второй вызов ничего не делает

	require.Equal(t, []string{"third", "second", "first"}, order)
}

func TestManager_WaitReturnsOnContextCancel(t *testing.T) {
	m := New(time.Second, zap.NewNop())

	called := make(chan struct{})
	m.Add("flag", func(ctx context.Context) error {
		close(called)
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	m.Wait(ctx)

	select {
	case <-called:
	case <-time.After(time.Second):
		t.Fatal("shutdown function was not called")
	}
}

func TestManager_FunctionGetsTimeout(t *testing.T) {
	m := New(10*time.Millisecond, zap.NewNop())

	var deadlineSet bool
	m.Add("deadline", func(ctx context.Context) error {
		_, deadlineSet = ctx.Deadline()
		return nil
	})

	m.Shutdown()
	require.True(t, deadlineSet)
}
