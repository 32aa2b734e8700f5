package async

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// Task represents an asynchronous operation with a name and function.
type Task struct {
	Name string
	Func func(context.Context) error
}

// RunParallel runs every task, at most limit at a time (limit <= 0 means
// unbounded), and waits for all of them. A failing task does not cancel the
// others. The returned error joins each failure, prefixed with its task name.
//
// Example:
//
//	tasks := []Task{
//	    {Name: "subnet-0", Func: createSubnet(0)},
//	    {Name: "subnet-1", Func: createSubnet(1)},
//	}
//	if err := RunParallel(ctx, tasks, 4); err != nil {
//	    return err
//	}
func RunParallel(ctx context.Context, tasks []Task, limit int) error {
	if len(tasks) == 0 {
		return nil
	}

	var g errgroup.Group
	if limit > 0 {
		g.SetLimit(limit)
	}

	errs := make([]error, len(tasks))
	for i, task := range tasks {
		g.Go(func() error {
			if err := task.Func(ctx); err != nil {
				errs[i] = fmt.Errorf("%s: %w", task.Name, err)
			}
			return nil
		})
	}
	_ = g.Wait()

	return errors.Join(errs...)
}

// RunFailFast runs every task, at most limit at a time, and cancels the
// context passed to the remaining tasks as soon as one fails. It returns the
// first failure.
func RunFailFast(ctx context.Context, tasks []Task, limit int) error {
	if len(tasks) == 0 {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	for _, task := range tasks {
		g.Go(func() error {
			if err := task.Func(gctx); err != nil {
				return fmt.Errorf("%s: %w", task.Name, err)
			}
			return nil
		})
	}
	return g.Wait()
}
