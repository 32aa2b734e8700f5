package state

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/imamik/vpcmesh/internal/topology"
)

// ErrNotFound is returned when no record exists for a unit.
var ErrNotFound = errors.New("state record not found")

// Record is the persisted state of one unit.
type Record struct {
	Unit        string              `json:"unit"`
	Status      topology.UnitStatus `json:"status"`
	Outputs     topology.Outputs    `json:"outputs"`
	InputsHash  string              `json:"inputsHash"`
	NetworkHash string              `json:"networkHash,omitempty"`
	Revision    string              `json:"revision"`
	AppliedAt   time.Time           `json:"appliedAt,omitzero"`
	UpdatedAt   time.Time           `json:"updatedAt"`
	Error       string              `json:"error,omitempty"`
	ErrorKind   topology.Kind       `json:"errorKind,omitempty"`
}

// Store reads and writes unit records of one topology.
type Store interface {
	// Get returns the record of unit or ErrNotFound.
	Get(ctx context.Context, unit string) (*Record, error)
	// Put writes rec, assigning a new revision and update time.
	Put(ctx context.Context, rec *Record) error
	// Delete removes the record of unit. A missing record is not an error.
	Delete(ctx context.Context, unit string) error
	// List returns all records sorted by unit name.
	List(ctx context.Context) ([]*Record, error)
	Close() error
}

// stamp assigns a fresh revision and update time before a write.
func stamp(rec *Record, now time.Time) {
	rec.Revision = newRevision()
	rec.UpdatedAt = now.UTC()
}

// newRevision returns a time-ordered id, so revisions sort by write order.
func newRevision() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New().String()
	}
	return id.String()
}
