package tui

import (
	"context"
	"fmt"
	"maps"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/imamik/vpcmesh/internal/orchestration"
	"github.com/imamik/vpcmesh/internal/provisioning"
)

// RunFunc runs an apply with the given observer.
type RunFunc func(ctx context.Context, obs provisioning.Observer) (*orchestration.Report, error)

// RunApplyTUI wraps an apply run with a Bubble Tea view. Events are also
// passed on to next, which may be nil. Quitting the view cancels the run and
// waits for it to stop.
func RunApplyTUI(ctx context.Context, topologyName string, plan *orchestration.Plan, next provisioning.Observer, run RunFunc) (*orchestration.Report, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	m := NewApplyModel(topologyName, plan)
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))

	type result struct {
		report *orchestration.Report
		err    error
	}
	done := make(chan result, 1)
	go func() {
		report, err := run(ctx, NewObserver(p.Send, next))
		done <- result{report, err}
		p.Send(DoneMsg{Report: report, Err: err})
	}()

	_, err := p.Run()
	cancel()
	res := <-done
	if err != nil && res.err == nil {
		return res.report, fmt.Errorf("TUI error: %w", err)
	}
	return res.report, res.err
}

// Observer forwards provisioning events into a Bubble Tea program.
type Observer struct {
	send   func(tea.Msg)
	next   provisioning.Observer
	fields map[string]string
}

// NewObserver returns an observer that calls send for every event and
// passes the event on to next.
func NewObserver(send func(tea.Msg), next provisioning.Observer) *Observer {
	if next == nil {
		next = provisioning.NewDiscardObserver()
	}
	return &Observer{send: send, next: next, fields: map[string]string{}}
}

// Printf implements provisioning.Observer.
func (o *Observer) Printf(format string, v ...any) {
	o.next.Printf(format, v...)
}

// Event implements provisioning.Observer.
func (o *Observer) Event(event provisioning.Event) {
	o.next.Event(event)

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	fields := maps.Clone(o.fields)
	maps.Copy(fields, event.Fields)
	event.Fields = fields
	o.send(EventMsg{Event: event})
}

// Progress implements provisioning.Observer.
func (o *Observer) Progress(phase string, current, total int) {
	o.next.Progress(phase, current, total)
	if phase == "apply" {
		o.send(LevelMsg{Current: current, Total: total})
	}
}

// WithFields implements provisioning.Observer.
func (o *Observer) WithFields(fields map[string]string) provisioning.Observer {
	merged := maps.Clone(o.fields)
	maps.Copy(merged, fields)
	return &Observer{send: o.send, next: o.next.WithFields(fields), fields: merged}
}
