package tui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/imamik/vpcmesh/internal/orchestration"
	"github.com/imamik/vpcmesh/internal/provisioning"
)

// RowState is the display state of one unit.
type RowState int

const (
	RowPending RowState = iota
	RowRunning
	RowApplied
	RowUnchanged
	RowFailed
	RowSkipped
)

// UnitRow is one unit line of the view.
type UnitRow struct {
	Name      string
	Region    string
	Level     int
	State     RowState
	Message   string
	Resources int
	Started   time.Time
	Finished  time.Time
}

func (r UnitRow) finished() bool {
	return r.State >= RowApplied
}

// Model is the Bubble Tea model for a running apply.
type Model struct {
	Topology string
	Units    []UnitRow
	Levels   int

	LevelsDone int
	Report     *orchestration.Report

	StartTime    time.Time
	SpinnerFrame int

	Width  int
	Height int
	Err    error
	Done   bool
}

// NewApplyModel creates a model with one pending row per planned unit, in
// apply order.
func NewApplyModel(topologyName string, plan *orchestration.Plan) Model {
	m := Model{
		Topology:  topologyName,
		Levels:    len(plan.Levels),
		StartTime: time.Now(),
	}
	for _, level := range plan.Levels {
		for _, name := range level {
			pu, ok := plan.Unit(name)
			if !ok {
				continue
			}
			m.Units = append(m.Units, UnitRow{Name: pu.Name, Region: pu.Region, Level: pu.Level})
		}
	}
	return m
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tickCmd()
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height

	case EventMsg:
		m.applyEvent(msg.Event)

	case LevelMsg:
		m.LevelsDone = msg.Current
		if msg.Total > 0 {
			m.Levels = msg.Total
		}

	case TickMsg:
		m.SpinnerFrame++
		return m, tickCmd()

	case ErrMsg:
		m.Err = msg.Err
		return m, tea.Quit

	case DoneMsg:
		m.Done = true
		m.Report = msg.Report
		m.Err = msg.Err
		return m, tea.Quit
	}

	return m, nil
}

func (m *Model) applyEvent(ev provisioning.Event) {
	row := m.row(ev.Fields["unit"])
	if row == nil {
		return
	}
	now := ev.Timestamp
	if now.IsZero() {
		now = time.Now()
	}

	switch ev.Type {
	case provisioning.EventUnitApplying:
		row.State = RowRunning
		row.Started = now
		row.Message = ev.Message
	case provisioning.EventUnitApplied:
		row.State = RowApplied
		if ev.Message == "unchanged" {
			row.State = RowUnchanged
		}
		row.Finished = now
		row.Message = ev.Message
	case provisioning.EventUnitFailed:
		row.State = RowFailed
		row.Finished = now
		row.Message = ev.Message
	case provisioning.EventUnitSkipped:
		row.State = RowSkipped
		row.Finished = now
		row.Message = ev.Message
	case provisioning.EventResourceCreated:
		row.Resources++
		row.Message = ev.Resource + ": " + ev.Message
	case provisioning.EventResourceExists, provisioning.EventResourceCreating:
		row.Message = ev.Resource + ": " + ev.Message
	}
}

func (m *Model) row(name string) *UnitRow {
	for i := range m.Units {
		if m.Units[i].Name == name {
			return &m.Units[i]
		}
	}
	return nil
}

func tickCmd() tea.Cmd {
	return tea.Tick(200*time.Millisecond, func(_ time.Time) tea.Msg {
		return TickMsg{}
	})
}

// View implements tea.Model.
func (m Model) View() string {
	return renderView(m)
}
