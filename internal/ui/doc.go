// Package ui renders plans, run reports and unit status for the terminal.
// Output is coloured with lipgloss only when it goes to a TTY; the live
// apply view lives in the tui subpackage.
package ui
