package tui

import "github.com/charmbracelet/lipgloss"

// palette holds the colors of the apply view.
var palette = struct {
	applied, failed, skipped, level, muted, text lipgloss.Color
}{
	applied: lipgloss.Color("#22c55e"),
	failed:  lipgloss.Color("#ef4444"),
	skipped: lipgloss.Color("#eab308"),
	level:   lipgloss.Color("#3b82f6"),
	muted:   lipgloss.Color("#6b7280"),
	text:    lipgloss.Color("#f9fafb"),
}

var (
	topologyStyle = lipgloss.NewStyle().Bold(true).Foreground(palette.text)
	levelStyle    = lipgloss.NewStyle().Bold(true).Foreground(palette.level).MarginTop(1)
	mutedStyle    = lipgloss.NewStyle().Foreground(palette.muted)
	hintStyle     = mutedStyle.MarginTop(1)

	barDone    = lipgloss.NewStyle().Foreground(palette.applied)
	barPending = mutedStyle
)

// rowLook is how a unit row in a given state is drawn. An empty mark means
// the row shows the spinner.
type rowLook struct {
	mark  string
	style lipgloss.Style
}

var rowLooks = map[RowState]rowLook{
	RowPending:   {mark: "[  ]", style: mutedStyle},
	RowRunning:   {style: lipgloss.NewStyle().Bold(true).Foreground(palette.text)},
	RowApplied:   {mark: "[OK]", style: lipgloss.NewStyle().Foreground(palette.applied)},
	RowUnchanged: {mark: "[OK]", style: mutedStyle},
	RowFailed:    {mark: "[!!]", style: lipgloss.NewStyle().Foreground(palette.failed)},
	RowSkipped:   {mark: "[--]", style: lipgloss.NewStyle().Foreground(palette.skipped)},
}

var spinnerFrames = []string{"[. ]", "[..]", "[ .]", "[  ]"}

func lookOf(state RowState) rowLook {
	if look, ok := rowLooks[state]; ok {
		return look
	}
	return rowLooks[RowPending]
}
