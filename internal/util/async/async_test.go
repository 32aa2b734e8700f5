package async

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRunParallel_Success(t *testing.T) {
	t.Parallel()
	var count atomic.Int32

	tasks := make([]Task, 5)
	for i := range tasks {
		tasks[i] = Task{Name: "task", Func: func(_ context.Context) error {
			count.Add(1)
			return nil
		}}
	}

	assert.NoError(t, RunParallel(context.Background(), tasks, 2))
	assert.Equal(t, int32(5), count.Load())
}

func TestRunParallel_EmptyTasks(t *testing.T) {
	t.Parallel()
	assert.NoError(t, RunParallel(context.Background(), nil, 0))
	assert.NoError(t, RunFailFast(context.Background(), []Task{}, 0))
}

func TestRunParallel_CollectsAllErrors(t *testing.T) {
	t.Parallel()
	err1 := errors.New("error 1")
	err2 := errors.New("error 2")
	var ran atomic.Int32

	tasks := []Task{
		{Name: "fail1", Func: func(_ context.Context) error { ran.Add(1); return err1 }},
		{Name: "ok", Func: func(_ context.Context) error { ran.Add(1); return nil }},
		{Name: "fail2", Func: func(_ context.Context) error { ran.Add(1); return err2 }},
	}

	err := RunParallel(context.Background(), tasks, 0)
	assert.ErrorIs(t, err, err1)
	assert.ErrorIs(t, err, err2)
	assert.Contains(t, err.Error(), "fail1: error 1")
	assert.Contains(t, err.Error(), "fail2: error 2")
	assert.Equal(t, int32(3), ran.Load(), "a failure does not stop other tasks")
}

func TestRunParallel_RespectsLimit(t *testing.T) {
	t.Parallel()
	var current, peak atomic.Int32

	tasks := make([]Task, 8)
	for i := range tasks {
		tasks[i] = Task{Name: "task", Func: func(_ context.Context) error {
			n := current.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			current.Add(-1)
			return nil
		}}
	}

	assert.NoError(t, RunParallel(context.Background(), tasks, 3))
	assert.LessOrEqual(t, peak.Load(), int32(3))
}

func TestRunFailFast_CancelsOthers(t *testing.T) {
	t.Parallel()
	boom := errors.New("boom")

	tasks := []Task{
		{Name: "fails", Func: func(_ context.Context) error { return boom }},
		{Name: "waits", Func: func(ctx context.Context) error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(5 * time.Second):
				return nil
			}
		}},
	}

	start := time.Now()
	err := RunFailFast(context.Background(), tasks, 0)
	assert.ErrorIs(t, err, boom)
	assert.Less(t, time.Since(start), 5*time.Second)
}
