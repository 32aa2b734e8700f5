package tui

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/imamik/vpcmesh/internal/allocator"
	"github.com/imamik/vpcmesh/internal/orchestration"
	"github.com/imamik/vpcmesh/internal/provisioning"
	"github.com/imamik/vpcmesh/internal/topology"
)

func testPlan(t *testing.T) *orchestration.Plan {
	t.Helper()
	network := func(name, region string) topology.UnitSpec {
		return topology.UnitSpec{
			Name:    name,
			Region:  region,
			Network: &topology.NetworkSection{Subnets: []topology.SubnetSpec{{Visibility: topology.Private, Offset: 1}}},
		}
	}
	east2 := network("east2", "us-east-2")
	east2.Peering = &topology.PeeringSection{Peer: topology.PeerRef{Unit: "east1"}, Routes: topology.RoutesLocal}

	plan, err := orchestration.NewComposer(allocator.DefaultRegistry(), nil).
		Plan(context.Background(), []topology.UnitSpec{network("east1", "us-east-1"), east2})
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	return plan
}

func unitEvent(unit string, typ provisioning.EventType, msg string) EventMsg {
	return EventMsg{Event: provisioning.Event{Type: typ, Message: msg, Fields: map[string]string{"unit": unit}}}
}

func update(m Model, msg tea.Msg) Model {
	next, _ := m.Update(msg)
	return next.(Model)
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{0, "0s"},
		{30 * time.Second, "30s"},
		{90 * time.Second, "1m30s"},
		{3600 * time.Second, "1h0m"},
		{3661 * time.Second, "1h1m"},
	}
	for _, tt := range tests {
		got := formatDuration(tt.d)
		if got != tt.want {
			t.Errorf("formatDuration(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}

func TestNewApplyModel_RowsInApplyOrder(t *testing.T) {
	m := NewApplyModel("mesh", testPlan(t))
	if len(m.Units) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(m.Units))
	}
	if m.Units[0].Name != "east1" || m.Units[1].Name != "east2" {
		t.Errorf("unexpected order: %s, %s", m.Units[0].Name, m.Units[1].Name)
	}
	if m.Units[1].Level != 1 {
		t.Errorf("expected east2 on level 1, got %d", m.Units[1].Level)
	}
	if m.Levels != 2 {
		t.Errorf("expected 2 levels, got %d", m.Levels)
	}
}

func TestModelUpdate_UnitLifecycle(t *testing.T) {
	m := NewApplyModel("mesh", testPlan(t))

	m = update(m, unitEvent("east1", provisioning.EventUnitApplying, "applying in us-east-1"))
	if m.Units[0].State != RowRunning {
		t.Errorf("expected east1 running, got %v", m.Units[0].State)
	}

	created := unitEvent("east1", provisioning.EventResourceCreated, "network created")
	created.Event.Resource = "mesh-east1"
	m = update(m, created)
	if m.Units[0].Resources != 1 {
		t.Errorf("expected one created resource, got %d", m.Units[0].Resources)
	}

	m = update(m, unitEvent("east1", provisioning.EventUnitApplied, "applied"))
	m = update(m, unitEvent("east2", provisioning.EventUnitFailed, "peering rejected"))
	if m.Units[0].State != RowApplied {
		t.Errorf("expected east1 applied, got %v", m.Units[0].State)
	}
	if m.Units[1].State != RowFailed || m.Units[1].Message != "peering rejected" {
		t.Errorf("expected east2 failed, got %v %q", m.Units[1].State, m.Units[1].Message)
	}

	if p := calculateProgress(m); p != 1.0 {
		t.Errorf("expected full progress with every unit finished, got %v", p)
	}
}

func TestModelUpdate_UnchangedAndSkipped(t *testing.T) {
	m := NewApplyModel("mesh", testPlan(t))
	m = update(m, unitEvent("east1", provisioning.EventUnitApplied, "unchanged"))
	m = update(m, unitEvent("east2", provisioning.EventUnitSkipped, "dependency not applied"))
	if m.Units[0].State != RowUnchanged {
		t.Errorf("expected unchanged, got %v", m.Units[0].State)
	}
	if m.Units[1].State != RowSkipped {
		t.Errorf("expected skipped, got %v", m.Units[1].State)
	}
}

func TestModelUpdate_IgnoresUnknownUnits(t *testing.T) {
	m := NewApplyModel("mesh", testPlan(t))
	m = update(m, unitEvent("ghost", provisioning.EventUnitApplying, ""))
	for _, u := range m.Units {
		if u.State != RowPending {
			t.Errorf("expected %s pending, got %v", u.Name, u.State)
		}
	}
}

func TestModelUpdate_DoneQuits(t *testing.T) {
	m := NewApplyModel("mesh", testPlan(t))
	next, cmd := m.Update(DoneMsg{Report: &orchestration.Report{}})
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	if !next.(Model).Done {
		t.Error("expected model to be done")
	}
}

func TestModelUpdate_Level(t *testing.T) {
	m := NewApplyModel("mesh", testPlan(t))
	m = update(m, LevelMsg{Current: 1, Total: 2})
	if m.LevelsDone != 1 {
		t.Errorf("expected one level done, got %d", m.LevelsDone)
	}
	if !strings.Contains(renderView(m), "level 2 of 2") {
		t.Error("expected header to show the running level")
	}
}

func TestRenderView(t *testing.T) {
	m := NewApplyModel("mesh", testPlan(t))
	m = update(m, unitEvent("east1", provisioning.EventUnitApplied, "applied"))
	m = update(m, unitEvent("east2", provisioning.EventUnitFailed, "route conflict in rtb-1"))

	output := renderView(m)
	for _, want := range []string{"vpcmesh apply: mesh", "Level 0", "Level 1", "east1", "us-east-2", "2/2 units", "Errors", "route conflict in rtb-1"} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in output", want)
		}
	}
}

func TestRenderView_RunError(t *testing.T) {
	m := NewApplyModel("mesh", testPlan(t))
	m = update(m, ErrMsg{Err: errors.New("state store unavailable")})
	if !strings.Contains(renderView(m), "state store unavailable") {
		t.Error("expected run error in output")
	}
}

func TestRenderView_RowMarks(t *testing.T) {
	m := NewApplyModel("mesh", testPlan(t))
	m = update(m, unitEvent("east1", provisioning.EventUnitApplied, "applied"))
	m = update(m, unitEvent("east2", provisioning.EventUnitSkipped, "east1 is failed"))

	output := renderView(m)
	for _, want := range []string{"[OK]", "[--]"} {
		if !strings.Contains(output, want) {
			t.Errorf("expected mark %q in output", want)
		}
	}
}

func TestLookOf(t *testing.T) {
	for state := RowPending; state <= RowSkipped; state++ {
		if _, ok := rowLooks[state]; !ok {
			t.Errorf("no look for row state %d", state)
		}
	}
	if lookOf(RowRunning).mark != "" {
		t.Error("running rows draw the spinner")
	}
	if got := lookOf(RowState(99)).mark; got != "[  ]" {
		t.Errorf("unknown state mark = %q, want pending", got)
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("abcdefghij", 6); got != "abc..." {
		t.Errorf("truncate = %q", got)
	}
	if got := truncate("abc", 0); got != "abc" {
		t.Errorf("truncate without width = %q", got)
	}
}

func TestObserver_ForwardsUnitFields(t *testing.T) {
	var mu sync.Mutex
	var msgs []tea.Msg
	send := func(msg tea.Msg) {
		mu.Lock()
		defer mu.Unlock()
		msgs = append(msgs, msg)
	}
	rec := provisioning.NewRecordingObserver()
	obs := NewObserver(send, rec)

	obs.WithFields(map[string]string{"unit": "east1"}).Event(provisioning.Event{Type: provisioning.EventUnitApplied})
	obs.Progress("apply", 1, 2)
	obs.Progress("destroy", 1, 2)

	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	ev, ok := msgs[0].(EventMsg)
	if !ok || ev.Event.Fields["unit"] != "east1" {
		t.Errorf("expected unit field on event, got %#v", msgs[0])
	}
	if ev.Event.Timestamp.IsZero() {
		t.Error("expected timestamp to be set")
	}
	if lvl, ok := msgs[1].(LevelMsg); !ok || lvl.Current != 1 || lvl.Total != 2 {
		t.Errorf("expected level message, got %#v", msgs[1])
	}
	if n := len(rec.OfType(provisioning.EventUnitApplied)); n != 1 {
		t.Errorf("expected event passed on, got %d", n)
	}
}
