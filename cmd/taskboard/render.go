package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"taskboard/board"
	"taskboard/domain"
)

const columnWidth = 32

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	columnStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1).Width(columnWidth)
	titleStyle  = lipgloss.NewStyle().Bold(true)
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)

// renderBoard draws one column per category, side by side.
func renderBoard(snap board.Snapshot) string {
	cols := make([]string, 0, len(domain.Categories))
	for _, c := range domain.Categories {
		cols = append(cols, columnStyle.Render(renderColumn(c, snap[c])))
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, cols...)
}

func renderColumn(c domain.Category, tasks []domain.Task) string {
	lines := []string{headerStyle.Render(fmt.Sprintf("%s (%d)", c, len(tasks)))}
	if len(tasks) == 0 {
		lines = append(lines, mutedStyle.Render("no tasks"))
	}
	for _, t := range tasks {
		lines = append(lines, "", titleStyle.Render(t.Title))
		lines = append(lines, mutedStyle.Render(t.Key()))
		if t.Description != "" {
			lines = append(lines, t.Description)
		}
		if due := strings.TrimSpace(t.CompletionDate + " " + t.CompletionTime); due != "" {
			lines = append(lines, mutedStyle.Render("due "+due))
		}
	}
	return strings.Join(lines, "\n")
}

func renderOutcome(verb string, out board.Outcome) string {
	if out.Status == board.NoOp {
		return mutedStyle.Render("nothing to do")
	}
	return statusStyle.Render(fmt.Sprintf("%s %s: %q in %s", verb, out.Task.Key(), out.Task.Title, out.Task.Category))
}
