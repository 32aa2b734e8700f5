package hcloud

import (
	"context"
	"errors"
	"fmt"
	"reflect"

	"github.com/hetznercloud/hcloud-go/v2/hcloud"

	"github.com/imamik/vpcmesh/internal/util/retry"
)

// CreateResult wraps a created resource with the actions to await.
type CreateResult[T any] struct {
	Resource T
	Action   *hcloud.Action
	Actions  []*hcloud.Action
}

// DeleteOperation deletes one resource looked up by id or name. A missing
// resource is success; locked resources are retried with backoff.
type DeleteOperation[T any] struct {
	Key          string
	ResourceType string

	Get    func(ctx context.Context, idOrName string) (T, *hcloud.Response, error)
	Delete func(ctx context.Context, resource T) (*hcloud.Response, error)
}

// Execute runs the delete under the client's delete timeout.
func (op *DeleteOperation[T]) Execute(ctx context.Context, client *Client) error {
	ctx, cancel := context.WithTimeout(ctx, client.timeouts.Delete)
	defer cancel()

	return retry.WithExponentialBackoff(ctx, func() error {
		resource, _, err := op.Get(ctx, op.Key)
		if err != nil {
			return retry.Fatal(fmt.Errorf("failed to get %s %s: %w", op.ResourceType, op.Key, err))
		}
		if reflect.ValueOf(resource).IsNil() {
			return nil
		}

		_, err = op.Delete(ctx, resource)
		switch {
		case err == nil, IsNotFound(err):
			return nil
		case isResourceLocked(err):
			return err
		default:
			return retry.Fatal(fmt.Errorf("failed to delete %s %s: %w", op.ResourceType, op.Key, err))
		}
	},
		retry.WithMaxRetries(client.timeouts.RetryMaxAttempts),
		retry.WithInitialDelay(client.timeouts.RetryInitialDelay))
}

// EnsureOperation is get-or-create for one named resource. Validate, when
// set, rejects an existing resource that does not match the request.
type EnsureOperation[T any, CreateOpts any] struct {
	Name         string
	ResourceType string

	Get              func(ctx context.Context, idOrName string) (T, *hcloud.Response, error)
	Create           func(ctx context.Context, opts CreateOpts) (*CreateResult[T], *hcloud.Response, error)
	Validate         func(resource T) error
	CreateOptsMapper func() CreateOpts
}

// Execute returns the existing resource or creates it and waits for the
// creation actions.
func (op *EnsureOperation[T, CreateOpts]) Execute(ctx context.Context, client *Client) (T, error) {
	var zero T

	resource, _, err := op.Get(ctx, op.Name)
	if err != nil {
		return zero, fmt.Errorf("failed to get %s: %w", op.ResourceType, err)
	}

	if !reflect.ValueOf(resource).IsNil() {
		if op.Validate != nil {
			if err := op.Validate(resource); err != nil {
				return zero, err
			}
		}
		return resource, nil
	}

	result, _, err := op.Create(ctx, op.CreateOptsMapper())
	if err != nil {
		return zero, fmt.Errorf("failed to create %s: %w", op.ResourceType, err)
	}
	if err := waitForActionResult(ctx, client, result); err != nil {
		return zero, fmt.Errorf("failed to wait for %s creation: %w", op.ResourceType, err)
	}
	return result.Resource, nil
}

func (c *Client) waitForActions(ctx context.Context, actions ...*hcloud.Action) error {
	if len(actions) == 0 {
		return nil
	}
	return c.client.Action.WaitFor(ctx, actions...)
}

// waitForActionResult waits for the singular Action if set, else Actions.
func waitForActionResult[T any](ctx context.Context, c *Client, result *CreateResult[T]) error {
	if result.Action != nil {
		return c.waitForActions(ctx, result.Action)
	}
	return c.waitForActions(ctx, result.Actions...)
}

// simpleCreate adapts create calls that return the resource directly.
func simpleCreate[T any, Opts any](
	createFn func(context.Context, Opts) (T, *hcloud.Response, error),
) func(context.Context, Opts) (*CreateResult[T], *hcloud.Response, error) {
	return func(ctx context.Context, opts Opts) (*CreateResult[T], *hcloud.Response, error) {
		resource, resp, err := createFn(ctx, opts)
		if err != nil {
			return nil, resp, err
		}
		return &CreateResult[T]{Resource: resource}, resp, nil
	}
}

// withRetry retries fn while the API reports a locked resource, rate
// limiting or a transient error. Concurrent subnet additions lock the
// network, so every network action goes through here.
func (c *Client) withRetry(ctx context.Context, fn func() error) error {
	err := retry.WithExponentialBackoff(ctx, func() error {
		err := fn()
		if err != nil && !isRetryable(err) {
			return retry.Fatal(err)
		}
		return err
	},
		retry.WithMaxRetries(c.timeouts.RetryMaxAttempts),
		retry.WithInitialDelay(c.timeouts.RetryInitialDelay))
	var fatal *retry.FatalError
	if errors.As(err, &fatal) {
		return fatal.Err
	}
	return err
}
