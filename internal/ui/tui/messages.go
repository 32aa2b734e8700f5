// Package tui provides a Bubble Tea view that follows an apply run unit by
// unit.
package tui

import (
	"github.com/imamik/vpcmesh/internal/orchestration"
	"github.com/imamik/vpcmesh/internal/provisioning"
)

// EventMsg carries one observer event of the run.
type EventMsg struct {
	Event provisioning.Event
}

// LevelMsg reports that a level of the apply order has finished.
type LevelMsg struct {
	Current int
	Total   int
}

// TickMsg is sent periodically to animate the view.
type TickMsg struct{}

// ErrMsg carries an error that ended the run before a report existed.
type ErrMsg struct{ Err error }

// DoneMsg signals that the run finished.
type DoneMsg struct {
	Report *orchestration.Report
	Err    error
}
