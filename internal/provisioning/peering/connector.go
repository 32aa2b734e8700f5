package peering

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/imamik/vpcmesh/internal/platform/cloud"
	"github.com/imamik/vpcmesh/internal/provisioning"
	"github.com/imamik/vpcmesh/internal/topology"
	"github.com/imamik/vpcmesh/internal/util/labels"
	"github.com/imamik/vpcmesh/internal/util/naming"
)

const (
	phase = "peering"

	defaultPollInterval = 2 * time.Second
)

// Connector creates peering links. It keeps no idempotency record: every
// Connect call creates exactly one link, so callers must reuse a
// previously published link id instead of calling again.
type Connector struct {
	pollInterval time.Duration
}

// Option configures a Connector.
type Option func(*Connector)

// WithPollInterval sets how often link status is polled while waiting for
// it to become active.
func WithPollInterval(d time.Duration) Option {
	return func(c *Connector) {
		if d > 0 {
			c.pollInterval = d
		}
	}
}

// NewConnector creates a peering connector.
func NewConnector(opts ...Option) *Connector {
	c := &Connector{pollInterval: defaultPollInterval}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Connect creates a link from requester to the accepter network, accepts it
// in the accepter region and waits for it to become active. The accepter
// block is unknown here; callers that hold it set Link.AccepterBlock.
func (c *Connector) Connect(ctx *provisioning.Context, requester topology.NetworkRef, accepterID, accepterRegion string) (*topology.PeeringLink, error) {
	start := time.Now()
	provisioning.LogPhaseStart(ctx.Observer, phase)

	link, err := c.connect(ctx, requester, accepterID, accepterRegion)
	if err != nil {
		provisioning.LogPhaseFailed(ctx.Observer, phase, err)
		return link, err
	}
	provisioning.LogPhaseComplete(ctx.Observer, phase, time.Since(start))
	return link, nil
}

func (c *Connector) connect(ctx *provisioning.Context, requester topology.NetworkRef, accepterID, accepterRegion string) (*topology.PeeringLink, error) {
	if requester.ID == "" || accepterID == "" || accepterRegion == "" {
		return nil, fmt.Errorf("%w: peering needs requester and accepter network ids and the accepter region",
			topology.ErrInvalidConfig)
	}
	if requester.ID == accepterID {
		return nil, fmt.Errorf("%w: network %s cannot peer with itself", topology.ErrPeeringRejected, accepterID)
	}

	reqClient, err := ctx.Provider.Client(ctx, requester.Region)
	if err != nil {
		return nil, fmt.Errorf("failed to get client for %s: %w", requester.Region, err)
	}
	accClient, err := ctx.Provider.Client(ctx, accepterRegion)
	if err != nil {
		return nil, fmt.Errorf("failed to get client for %s: %w", accepterRegion, err)
	}

	name := naming.Peering(ctx.Topology, ctx.Unit)
	tags := labels.NewLabelBuilder(ctx.Topology).
		WithUnit(ctx.Unit).
		WithRegion(requester.Region).
		Merge(ctx.Tags).
		WithName(name).
		Build()

	provisioning.LogResourceCreating(ctx.Observer, phase, "peering link", name)
	linkID, err := provisioning.Call(ctx, func(cc context.Context) (string, error) {
		return reqClient.CreatePeering(cc, cloud.PeeringRequest{
			RequesterNetworkID: requester.ID,
			AccepterNetworkID:  accepterID,
			AccepterRegion:     accepterRegion,
			Tags:               tags,
		})
	})
	if err != nil {
		return nil, asRejected(err, "failed to create peering link %s", name)
	}
	provisioning.LogResourceCreated(ctx.Observer, phase, "peering link", name, linkID)
	ctx.Metrics.RecordResourceCreated("peering link")

	link := &topology.PeeringLink{
		ID:                 linkID,
		RequesterNetworkID: requester.ID,
		RequesterRegion:    requester.Region,
		RequesterBlock:     requester.Block,
		AccepterNetworkID:  accepterID,
		AccepterRegion:     accepterRegion,
		CrossRegion:        requester.Region != accepterRegion,
		Status:             topology.PeeringPendingAcceptance,
	}

	status, err := provisioning.Call(ctx, func(cc context.Context) (topology.PeeringStatus, error) {
		return reqClient.DescribePeering(cc, linkID)
	})
	if err != nil {
		return link, fmt.Errorf("failed to describe peering link %s: %w", linkID, err)
	}
	link.Status = status
	if status.Terminal() {
		return link, fmt.Errorf("%w: link %s to %s in %s is %s",
			topology.ErrPeeringRejected, linkID, accepterID, accepterRegion, status)
	}

	if status == topology.PeeringPendingAcceptance {
		if err := provisioning.Do(ctx, func(cc context.Context) error {
			return accClient.AcceptPeering(cc, linkID)
		}); err != nil {
			return link, asRejected(err, "failed to accept peering link %s in %s", linkID, accepterRegion)
		}
	}

	if err := c.waitActive(ctx, reqClient, link); err != nil {
		return link, err
	}
	return link, nil
}

// waitActive polls the link until it is active, terminal, or the peering
// timeout expires.
func (c *Connector) waitActive(ctx *provisioning.Context, client cloud.Client, link *topology.PeeringLink) error {
	timeout := 5 * time.Minute
	if ctx.Timeouts != nil && ctx.Timeouts.PeeringActive > 0 {
		timeout = ctx.Timeouts.PeeringActive
	}
	wctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		status, err := provisioning.Call(ctx.WithContext(wctx), func(cc context.Context) (topology.PeeringStatus, error) {
			return client.DescribePeering(cc, link.ID)
		})
		if err != nil {
			return fmt.Errorf("failed to describe peering link %s: %w", link.ID, err)
		}
		link.Status = status

		switch {
		case status == topology.PeeringActive:
			return nil
		case status.Terminal():
			return fmt.Errorf("%w: link %s is %s", topology.ErrPeeringRejected, link.ID, status)
		}

		select {
		case <-wctx.Done():
			return fmt.Errorf("timeout waiting for peering link %s to become active (last status %s): %w",
				link.ID, link.Status, wctx.Err())
		case <-ticker.C:
		}
	}
}

// Status reports the provider-side status of link.
func (c *Connector) Status(ctx *provisioning.Context, link topology.PeeringLink) (topology.PeeringStatus, error) {
	client, err := ctx.Provider.Client(ctx, link.RequesterRegion)
	if err != nil {
		return "", fmt.Errorf("failed to get client for %s: %w", link.RequesterRegion, err)
	}
	return provisioning.Call(ctx, func(cc context.Context) (topology.PeeringStatus, error) {
		return client.DescribePeering(cc, link.ID)
	})
}

// Disconnect deletes link. Deleting a link that no longer exists succeeds.
func (c *Connector) Disconnect(ctx *provisioning.Context, link topology.PeeringLink) error {
	if link.ID == "" {
		return nil
	}
	client, err := ctx.Provider.Client(ctx, link.RequesterRegion)
	if err != nil {
		return fmt.Errorf("failed to get client for %s: %w", link.RequesterRegion, err)
	}

	provisioning.LogResourceDeleting(ctx.Observer, phase, "peering link", link.ID)
	err = provisioning.Do(ctx, func(cc context.Context) error {
		return client.DeletePeering(cc, link.ID)
	})
	if err != nil && !errors.Is(err, cloud.ErrNotFound) {
		return fmt.Errorf("failed to delete peering link %s: %w", link.ID, err)
	}
	provisioning.LogResourceDeleted(ctx.Observer, phase, "peering link", link.ID)
	return nil
}

// asRejected wraps err, classifying providers that cannot peer at all as a
// rejection.
func asRejected(err error, format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	if errors.Is(err, cloud.ErrUnsupported) && !errors.Is(err, topology.ErrPeeringRejected) {
		return fmt.Errorf("%s: %w: %w", msg, topology.ErrPeeringRejected, err)
	}
	return fmt.Errorf("%s: %w", msg, err)
}
