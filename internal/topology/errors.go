package topology

import (
	"errors"
	"fmt"
)

// Kind names a class of failure. Every kind is terminal for the unit that
// raises it and is never retried.
type Kind string

const (
	KindUnknownRegionSelector Kind = "UnknownRegionSelector"
	KindInvalidParentBlock    Kind = "InvalidParentBlock"
	KindOffsetOutOfRange      Kind = "OffsetOutOfRange"
	KindDuplicateSubnetOffset Kind = "DuplicateSubnetOffset"
	KindPeeringRejected       Kind = "PeeringRejected"
	KindRouteConflict         Kind = "RouteConflict"
	KindDependencyNotApplied  Kind = "DependencyNotApplied"
	KindInvalidConfig         Kind = "InvalidConfig"
	KindResourceConflict      Kind = "ResourceConflict"
)

// Sentinel errors, one per Kind. Wrap them with fmt.Errorf("...: %w") to
// add context; KindOf still finds them.
var (
	ErrUnknownRegionSelector = errors.New("unknown region selector")
	ErrInvalidParentBlock    = errors.New("invalid parent block")
	ErrOffsetOutOfRange      = errors.New("subnet offset out of range")
	ErrDuplicateSubnetOffset = errors.New("duplicate subnet offset")
	ErrPeeringRejected       = errors.New("peering rejected")
	ErrRouteConflict         = errors.New("route conflict")
	ErrDependencyNotApplied  = errors.New("dependency not applied")
	ErrInvalidConfig         = errors.New("invalid configuration")
	ErrResourceConflict      = errors.New("resource conflict")
)

var kinds = []struct {
	kind Kind
	err  error
}{
	{KindUnknownRegionSelector, ErrUnknownRegionSelector},
	{KindInvalidParentBlock, ErrInvalidParentBlock},
	{KindOffsetOutOfRange, ErrOffsetOutOfRange},
	{KindDuplicateSubnetOffset, ErrDuplicateSubnetOffset},
	{KindPeeringRejected, ErrPeeringRejected},
	{KindRouteConflict, ErrRouteConflict},
	{KindDependencyNotApplied, ErrDependencyNotApplied},
	{KindInvalidConfig, ErrInvalidConfig},
	{KindResourceConflict, ErrResourceConflict},
}

// KindOf returns the kind of the first sentinel found in err's chain, or ""
// for errors that carry no kind (provider faults, timeouts).
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var unitErr *UnitError
	if errors.As(err, &unitErr) && unitErr.Kind != "" {
		return unitErr.Kind
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return ""
}

// UnitError reports the failure of one deployment unit.
type UnitError struct {
	Unit string
	Kind Kind
	Err  error
}

// NewUnitError wraps err for unit, classifying it with KindOf.
func NewUnitError(unit string, err error) *UnitError {
	return &UnitError{Unit: unit, Kind: KindOf(err), Err: err}
}

func (e *UnitError) Error() string {
	if e.Kind == "" {
		return fmt.Sprintf("unit %s: %v", e.Unit, e.Err)
	}
	return fmt.Sprintf("unit %s: %s: %v", e.Unit, e.Kind, e.Err)
}

func (e *UnitError) Unwrap() error {
	return e.Err
}

// RouteConflictError is returned when a route for the destination already
// exists in the table. It matches ErrRouteConflict.
type RouteConflictError struct {
	TableID         string
	Destination     AddressBlock
	ExistingTarget  string
	RequestedTarget string
}

func (e *RouteConflictError) Error() string {
	return fmt.Sprintf("route conflict in table %s: destination %s already routed to %s (requested %s)",
		e.TableID, e.Destination, e.ExistingTarget, e.RequestedTarget)
}

// Is makes errors.Is(err, ErrRouteConflict) succeed.
func (e *RouteConflictError) Is(target error) bool {
	return target == ErrRouteConflict
}
