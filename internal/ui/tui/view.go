package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

func renderView(m Model) string {
	var b strings.Builder

	renderHeader(&b, m)
	renderProgressBar(&b, m)
	renderUnits(&b, m)
	renderErrors(&b, m)
	renderFooter(&b, m)

	return b.String()
}

func renderHeader(b *strings.Builder, m Model) {
	b.WriteString(topologyStyle.Render("vpcmesh apply: " + m.Topology))

	status := " "
	switch {
	case m.Err != nil:
		status += lookOf(RowFailed).style.Render("Failed")
	case m.Done:
		status += lookOf(RowApplied).style.Render("Done")
	default:
		status += lookOf(RowRunning).style.Render(currentSpinner(m.SpinnerFrame)+" ") +
			lookOf(RowSkipped).style.Render(fmt.Sprintf("level %d of %d", min(m.LevelsDone+1, m.Levels), m.Levels))
	}
	b.WriteString(status)
	b.WriteString("\n")
}

func renderProgressBar(b *strings.Builder, m Model) {
	progress := calculateProgress(m)
	barWidth := 40
	if m.Width > 0 && m.Width < 80 {
		barWidth = max(m.Width-30, 10)
	}
	filled := min(int(float64(barWidth)*progress), barWidth)

	bar := barDone.Render(strings.Repeat("█", filled)) +
		barPending.Render(strings.Repeat("░", barWidth-filled))

	done := 0
	for _, u := range m.Units {
		if u.finished() {
			done++
		}
	}
	fmt.Fprintf(b, "  %s %d%% %s\n", bar, int(progress*100), mutedStyle.Render(fmt.Sprintf("%d/%d units", done, len(m.Units))))
}

func renderUnits(b *strings.Builder, m Model) {
	level := -1
	for _, u := range m.Units {
		if u.Level != level {
			level = u.Level
			b.WriteString(levelStyle.Render(fmt.Sprintf("  Level %d", level)))
			b.WriteString("\n")
		}

		look := lookOf(u.State)
		mark := look.mark
		if mark == "" {
			mark = currentSpinner(m.SpinnerFrame)
		}
		dur := ""
		switch {
		case !u.Finished.IsZero() && !u.Started.IsZero():
			dur = formatDuration(u.Finished.Sub(u.Started))
		case u.State == RowRunning && !u.Started.IsZero():
			dur = formatDuration(time.Since(u.Started))
		}
		fmt.Fprintf(b, "    %s %-20s %-10s %s\n",
			look.style.Render(mark), look.style.Render(u.Name), mutedStyle.Render(u.Region), mutedStyle.Render(dur))

		if u.State == RowRunning && u.Message != "" {
			fmt.Fprintf(b, "         %s\n", mutedStyle.Render(truncate(u.Message, m.Width-10)))
		}
	}
}

func renderErrors(b *strings.Builder, m Model) {
	var failed []UnitRow
	for _, u := range m.Units {
		if u.State == RowFailed {
			failed = append(failed, u)
		}
	}
	if len(failed) == 0 && m.Err == nil {
		return
	}

	b.WriteString(levelStyle.Render("  Errors"))
	b.WriteString("\n")
	for _, u := range failed {
		fmt.Fprintf(b, "    %s %s\n", lookOf(RowFailed).style.Render(u.Name+":"), truncate(u.Message, m.Width-10))
	}
	if m.Err != nil && len(failed) == 0 {
		fmt.Fprintf(b, "    %s\n", lookOf(RowFailed).style.Render(m.Err.Error()))
	}
}

func renderFooter(b *strings.Builder, m Model) {
	elapsed := formatDuration(time.Since(m.StartTime))
	b.WriteString(hintStyle.Render(fmt.Sprintf("  Elapsed: %s  |  q: quit", elapsed)))
	b.WriteString("\n")
}

func currentSpinner(frame int) string {
	if frame < 0 {
		frame = -frame
	}
	return spinnerFrames[frame%len(spinnerFrames)]
}

func calculateProgress(m Model) float64 {
	if m.Done && m.Err == nil {
		return 1.0
	}
	if len(m.Units) == 0 {
		return 0
	}
	done := 0
	for _, u := range m.Units {
		if u.finished() {
			done++
		}
	}
	return float64(done) / float64(len(m.Units))
}

func truncate(s string, width int) string {
	if width <= 0 || lipgloss.Width(s) <= width {
		return s
	}
	r := []rune(s)
	if width > len(r) {
		return s
	}
	return string(r[:max(width-3, 0)]) + "..."
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
}
