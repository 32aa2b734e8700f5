package ui

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"

	"github.com/imamik/vpcmesh/internal/orchestration"
	"github.com/imamik/vpcmesh/internal/topology"
)

// Renderer writes plans, reports and status tables.
type Renderer struct {
	w     io.Writer
	color bool
	st    styles
}

// NewRenderer returns a renderer for w. Colour is used only when w is a
// terminal.
func NewRenderer(w io.Writer) *Renderer {
	return NewRendererWithColor(w, IsTerminal(w))
}

// NewRendererWithColor returns a renderer with colour forced on or off.
func NewRendererWithColor(w io.Writer, color bool) *Renderer {
	return &Renderer{w: w, color: color, st: newStyles(color)}
}

// IsTerminal reports whether w is an interactive terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// Plan writes the apply order and the change each unit would see.
func (r *Renderer) Plan(topologyName string, p *orchestration.Plan) {
	var b strings.Builder
	b.WriteString(r.st.title.Render("vpcmesh plan: "+topologyName) + "\n")

	for i, level := range p.Levels {
		b.WriteString(r.st.section.Render(fmt.Sprintf("Level %d", i)) + "\n")
		for _, name := range level {
			u, ok := p.Unit(name)
			if !ok {
				continue
			}
			r.planUnit(&b, u)
		}
	}

	if len(p.Edges) > 0 {
		b.WriteString(r.st.section.Render("Dependencies") + "\n")
		for _, e := range p.Edges {
			fmt.Fprintf(&b, "  %s\n", r.st.dim.Render(e.String()))
		}
	}

	creates, updates, blocked := 0, 0, 0
	for _, u := range p.Units {
		switch u.Change {
		case orchestration.ChangeCreate:
			creates++
		case orchestration.ChangeUpdate:
			updates++
		case orchestration.ChangeBlocked:
			blocked++
		}
	}
	summary := fmt.Sprintf("%d to create, %d to update, %d unchanged", creates, updates, len(p.Units)-creates-updates-blocked)
	if blocked > 0 {
		summary += ", " + r.st.failed.Render(fmt.Sprintf("%d blocked", blocked))
	}
	b.WriteString(r.st.section.Render("Summary") + "\n  " + summary + "\n")
	r.write(b.String())
}

func (r *Renderer) planUnit(b *strings.Builder, u *orchestration.PlannedUnit) {
	var mark string
	switch u.Change {
	case orchestration.ChangeCreate:
		mark = r.st.ok.Render("+ create")
	case orchestration.ChangeUpdate:
		mark = r.st.warning.Render("~ update")
	case orchestration.ChangeBlocked:
		mark = r.st.failed.Render("! blocked")
	default:
		mark = r.st.dim.Render("  none")
	}
	fmt.Fprintf(b, "  %-9s %s %s\n", mark, r.st.active.Render(u.Name), r.st.dim.Render("("+u.Region+")"))

	if a := u.Allocation; a != nil {
		fmt.Fprintf(b, "      network %s\n", a.Block)
		for _, s := range a.Subnets {
			fmt.Fprintf(b, "      %-7s %s\n", s.Spec.Visibility, s.Block)
		}
	}
	if len(u.DependsOn) > 0 {
		fmt.Fprintf(b, "      %s\n", r.st.dim.Render("after "+strings.Join(u.DependsOn, ", ")))
	}
	if u.Reason != "" {
		fmt.Fprintf(b, "      %s\n", r.st.dim.Render(u.Reason))
	}
}

// Report writes the outcome of an apply or destroy run.
func (r *Renderer) Report(title string, rep *orchestration.Report) {
	var b strings.Builder
	b.WriteString(r.st.title.Render(title) + "\n")

	failed := 0
	for _, res := range rep.Results {
		var mark string
		switch {
		case res.Err != nil && topology.KindOf(res.Err) == topology.KindDependencyNotApplied:
			mark = r.st.dim.Render(skipMark)
		case res.Err != nil:
			mark = r.st.failed.Render(crossMark)
			failed++
		case res.Changed:
			mark = r.st.ok.Render(checkMark)
		default:
			mark = r.st.dim.Render(checkMark)
		}

		line := fmt.Sprintf("  %s  %-20s %s", mark, res.Unit, res.Status)
		if res.Duration > 0 {
			line += " " + r.st.dim.Render(formatDuration(res.Duration))
		}
		b.WriteString(line + "\n")
		if res.Err != nil {
			b.WriteString("        " + r.st.failed.Render(res.Err.Error()) + "\n")
		}
	}

	if failed == 0 {
		b.WriteString(r.st.ok.Render(fmt.Sprintf("\n%d units done", len(rep.Results))) + "\n")
	} else {
		b.WriteString(r.st.failed.Render(fmt.Sprintf("\n%d of %d units failed", failed, len(rep.Results))) + "\n")
	}
	r.write(b.String())
}

// Status writes one block per unit with its resources and reachability.
func (r *Renderer) Status(topologyName string, views []orchestration.UnitView) {
	var b strings.Builder
	b.WriteString(r.st.title.Render("vpcmesh status: "+topologyName) + "\n")
	if len(views) == 0 {
		b.WriteString(r.st.dim.Render("  no units") + "\n")
		r.write(b.String())
		return
	}

	for _, v := range views {
		name := r.st.active.Render(v.Unit)
		if !v.Declared {
			name += " " + r.st.warning.Render("(not declared)")
		}
		fmt.Fprintf(&b, "\n  %s %s %s\n", r.statusMark(v.Status), name, r.st.dim.Render(v.Region))
		fmt.Fprintf(&b, "      status        %s\n", r.statusText(v.Status))
		if v.NetworkID != "" {
			fmt.Fprintf(&b, "      network       %s %s\n", v.NetworkID, r.st.dim.Render(v.NetworkBlock.String()))
		}
		if v.PeeringLinkID != "" {
			fmt.Fprintf(&b, "      peering       %s %s\n", v.PeeringLinkID, r.st.dim.Render("to "+v.PeerRegion))
		}
		if v.Reachability != "" {
			fmt.Fprintf(&b, "      reachability  %s\n", r.reachability(v.Reachability))
		}
		if len(v.Routes) > 0 {
			fmt.Fprintf(&b, "      routes        %s\n", strings.Join(v.Routes, ", "))
		}
		if !v.AppliedAt.IsZero() {
			fmt.Fprintf(&b, "      applied       %s\n", r.st.dim.Render(v.AppliedAt.UTC().Format(time.RFC3339)))
		}
		if v.Error != "" {
			fmt.Fprintf(&b, "      error         %s\n", r.st.failed.Render(fmt.Sprintf("%s: %s", v.ErrorKind, v.Error)))
		}
	}
	r.write(b.String())
}

// Drifts writes the result of a refresh.
func (r *Renderer) Drifts(drifts []orchestration.Drift) {
	var b strings.Builder
	b.WriteString(r.st.section.Render("Refresh") + "\n")
	if len(drifts) == 0 {
		b.WriteString(r.st.dim.Render("  nothing to check") + "\n")
	}
	for _, d := range drifts {
		if len(d.Reasons) == 0 {
			fmt.Fprintf(&b, "  %s  %s in sync\n", r.st.ok.Render(checkMark), d.Unit)
			continue
		}
		fmt.Fprintf(&b, "  %s  %s drifted\n", r.st.warning.Render(warnMark), d.Unit)
		for _, reason := range d.Reasons {
			fmt.Fprintf(&b, "        %s\n", r.st.warning.Render(reason))
		}
	}
	r.write(b.String())
}

func (r *Renderer) statusMark(s topology.UnitStatus) string {
	switch s {
	case topology.StatusApplied:
		return r.st.ok.Render(checkMark)
	case topology.StatusFailed:
		return r.st.failed.Render(crossMark)
	case topology.StatusDrifted:
		return r.st.warning.Render(warnMark)
	case topology.StatusDestroyed:
		return r.st.dim.Render(skipMark)
	default:
		return r.st.dim.Render(pending)
	}
}

func (r *Renderer) statusText(s topology.UnitStatus) string {
	switch s {
	case topology.StatusApplied:
		return r.st.ok.Render(string(s))
	case topology.StatusFailed:
		return r.st.failed.Render(string(s))
	case topology.StatusDrifted, topology.StatusApplying:
		return r.st.warning.Render(string(s))
	default:
		return r.st.dim.Render(string(s))
	}
}

func (r *Renderer) reachability(v topology.Reachability) string {
	switch v {
	case topology.Bidirectional:
		return r.st.ok.Render(string(v))
	case topology.Unrouted:
		return r.st.dim.Render(string(v))
	default:
		return r.st.warning.Render(string(v))
	}
}

func (r *Renderer) write(s string) {
	_, _ = io.WriteString(r.w, s)
}

func formatDuration(d time.Duration) string {
	switch {
	case d < time.Second:
		return d.Round(time.Millisecond).String()
	case d < time.Hour:
		return d.Round(time.Second).String()
	default:
		h := int(d.Hours())
		m := int(d.Minutes()) % 60
		return fmt.Sprintf("%dh%dm", h, m)
	}
}
