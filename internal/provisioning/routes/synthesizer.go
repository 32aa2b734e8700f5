package routes

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/imamik/vpcmesh/internal/platform/cloud"
	"github.com/imamik/vpcmesh/internal/provisioning"
	"github.com/imamik/vpcmesh/internal/topology"
)

const phase = "routes"

// Synthesizer writes peering routes. It never overwrites an existing route
// for a destination: a second install for the same table and destination
// fails with a RouteConflict.
type Synthesizer struct{}

// NewSynthesizer creates a route synthesizer.
func NewSynthesizer() *Synthesizer {
	return &Synthesizer{}
}

// Install routes each present side's PeerBlock through link. Either side
// may be nil when the caller has authority over one region only. Side A is
// written before side B; if B fails, the result still carries A's id.
func (s *Synthesizer) Install(ctx *provisioning.Context, link topology.PeeringLink, sideA, sideB *topology.RouteSide) (topology.RouteInstallResult, error) {
	var result topology.RouteInstallResult
	if err := validate(link, sideA, sideB); err != nil {
		return result, err
	}

	start := time.Now()
	provisioning.LogPhaseStart(ctx.Observer, phase)

	if sideA != nil {
		id, err := s.installSide(ctx, link, sideA)
		if err != nil {
			provisioning.LogPhaseFailed(ctx.Observer, phase, err)
			return result, err
		}
		result.RouteIDA = id
	}
	if sideB != nil {
		id, err := s.installSide(ctx, link, sideB)
		if err != nil {
			provisioning.LogPhaseFailed(ctx.Observer, phase, err)
			return result, err
		}
		result.RouteIDB = id
	}

	provisioning.LogPhaseComplete(ctx.Observer, phase, time.Since(start))
	return result, nil
}

func validate(link topology.PeeringLink, sideA, sideB *topology.RouteSide) error {
	if link.ID == "" {
		return fmt.Errorf("%w: peering link id is required", topology.ErrInvalidConfig)
	}
	if sideA == nil && sideB == nil {
		return fmt.Errorf("%w: no route side given for link %s", topology.ErrInvalidConfig, link.ID)
	}
	for _, side := range []*topology.RouteSide{sideA, sideB} {
		if side == nil {
			continue
		}
		if err := side.Validate(); err != nil {
			return err
		}
	}
	if sideA != nil && sideB != nil && !sideA.Mirrors(sideB) {
		return fmt.Errorf("%w: sides %s->%s and %s->%s do not describe the same link",
			topology.ErrInvalidConfig, sideA.OwnBlock, sideA.PeerBlock, sideB.OwnBlock, sideB.PeerBlock)
	}
	return nil
}

// installSide is a single provider call: the provider rejects the request
// atomically when the destination is already routed.
func (s *Synthesizer) installSide(ctx *provisioning.Context, link topology.PeeringLink, side *topology.RouteSide) (string, error) {
	client, err := ctx.Provider.Client(ctx, side.Region)
	if err != nil {
		return "", fmt.Errorf("failed to get client for %s: %w", side.Region, err)
	}

	name := fmt.Sprintf("%s -> %s", side.RouteTableID, side.PeerBlock)
	provisioning.LogResourceCreating(ctx.Observer, phase, "route", name)
	id, err := provisioning.Call(ctx, func(c context.Context) (string, error) {
		return client.CreateRoute(c, cloud.RouteRequest{
			TableID:     side.RouteTableID,
			Destination: side.PeerBlock,
			Target:      link.ID,
			TargetKind:  topology.TargetPeering,
		})
	})
	if err != nil {
		return "", fmt.Errorf("failed to install route %s via %s: %w", name, link.ID, err)
	}
	provisioning.LogResourceCreated(ctx.Observer, phase, "route", name, id)
	ctx.Metrics.RecordResourceCreated("route")
	return id, nil
}

// Verify reads both tables and reports which directions are routed through
// link. A nil side counts as unrouted.
func (s *Synthesizer) Verify(ctx *provisioning.Context, link topology.PeeringLink, sideA, sideB *topology.RouteSide) (topology.Reachability, error) {
	routedA, err := s.Routed(ctx, link, sideA)
	if err != nil {
		return "", err
	}
	routedB, err := s.Routed(ctx, link, sideB)
	if err != nil {
		return "", err
	}
	return topology.ReachabilityOf(routedA, routedB), nil
}

// Routed reports whether side's table sends PeerBlock through link.
func (s *Synthesizer) Routed(ctx *provisioning.Context, link topology.PeeringLink, side *topology.RouteSide) (bool, error) {
	if side == nil {
		return false, nil
	}
	route, err := s.lookup(ctx, side)
	if err != nil {
		return false, err
	}
	return route != nil && route.Target == link.ID, nil
}

// Remove deletes side's route through link. A route to the same
// destination through another target is left alone.
func (s *Synthesizer) Remove(ctx *provisioning.Context, link topology.PeeringLink, side *topology.RouteSide) error {
	if side == nil {
		return nil
	}
	route, err := s.lookup(ctx, side)
	if err != nil {
		return err
	}
	if route == nil || route.Target != link.ID {
		return nil
	}

	client, err := ctx.Provider.Client(ctx, side.Region)
	if err != nil {
		return fmt.Errorf("failed to get client for %s: %w", side.Region, err)
	}
	provisioning.LogResourceDeleting(ctx.Observer, phase, "route", route.ID)
	if err := provisioning.Do(ctx, func(c context.Context) error {
		return client.DeleteRoute(c, side.RouteTableID, side.PeerBlock)
	}); err != nil {
		return fmt.Errorf("failed to delete route %s: %w", route.ID, err)
	}
	provisioning.LogResourceDeleted(ctx.Observer, phase, "route", route.ID)
	return nil
}

// lookup returns side's route for PeerBlock, or nil. A table that no
// longer exists has no routes.
func (s *Synthesizer) lookup(ctx *provisioning.Context, side *topology.RouteSide) (*topology.Route, error) {
	client, err := ctx.Provider.Client(ctx, side.Region)
	if err != nil {
		return nil, fmt.Errorf("failed to get client for %s: %w", side.Region, err)
	}
	routes, err := provisioning.Call(ctx, func(c context.Context) ([]topology.Route, error) {
		return client.ListRoutes(c, side.RouteTableID)
	})
	if err != nil {
		if errors.Is(err, cloud.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list routes of %s: %w", side.RouteTableID, err)
	}
	for i := range routes {
		if routes[i].Destination == side.PeerBlock {
			return &routes[i], nil
		}
	}
	return nil, nil
}
