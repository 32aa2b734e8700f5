package provisioning

import (
	"context"
	"maps"

	"github.com/imamik/vpcmesh/internal/config"
	"github.com/imamik/vpcmesh/internal/platform/cloud"
)

// Context wraps all dependencies needed by one provisioning step.
type Context struct {
	context.Context
	Topology string
	Unit     string
	Provider cloud.Provider
	Observer Observer
	Metrics  *Metrics
	Timeouts *config.Timeouts
	Tags     map[string]string
}

// NewContext creates a provisioning context with a discarding observer,
// no metrics and env-configured timeouts.
func NewContext(ctx context.Context, topologyName string, provider cloud.Provider) *Context {
	return &Context{
		Context:  ctx,
		Topology: topologyName,
		Provider: provider,
		Observer: NewDiscardObserver(),
		Timeouts: config.LoadTimeouts(),
	}
}

// ForUnit returns a copy scoped to one deployment unit. The observer
// carries the unit name on every event.
func (c *Context) ForUnit(unit string, tags map[string]string) *Context {
	scoped := *c
	scoped.Unit = unit
	scoped.Observer = c.Observer.WithFields(map[string]string{"unit": unit})
	scoped.Tags = maps.Clone(c.Tags)
	if scoped.Tags == nil {
		scoped.Tags = map[string]string{}
	}
	maps.Copy(scoped.Tags, tags)
	return &scoped
}

// CallContext returns a context bounded by the provider call timeout.
func (c *Context) CallContext() (context.Context, context.CancelFunc) {
	if c.Timeouts == nil || c.Timeouts.ProviderCall <= 0 {
		return context.WithCancel(c.Context)
	}
	return context.WithTimeout(c.Context, c.Timeouts.ProviderCall)
}

// Call runs one provider call under the provider call timeout.
func Call[T any](ctx *Context, fn func(context.Context) (T, error)) (T, error) {
	cctx, cancel := ctx.CallContext()
	defer cancel()
	return fn(cctx)
}

// Do is Call for operations without a result.
func Do(ctx *Context, fn func(context.Context) error) error {
	cctx, cancel := ctx.CallContext()
	defer cancel()
	return fn(cctx)
}

// WithContext returns a copy bound to ctx, for per-call timeouts.
func (c *Context) WithContext(ctx context.Context) *Context {
	scoped := *c
	scoped.Context = ctx
	return &scoped
}
