// Package render draws board snapshots as terminal text.
package render

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/truncate"
	"github.com/muesli/reflow/wordwrap"

	"github.com/h0rv/kanban/internal/domain"
	"github.com/h0rv/kanban/internal/optimistic"
	"github.com/h0rv/kanban/internal/realtime"
)

// Options controls board rendering.
type Options struct {
	// Width is the terminal width; zero means 100.
	Width int
	// Highlight marks one card, e.g. the target of the last command.
	Highlight string
}

// Board renders the columns of st side by side, in column order.
func Board(st domain.BoardState, opts Options) string {
	if len(st.ColumnOrder) == 0 {
		return dimStyle.Render("(no columns)")
	}
	width := opts.Width
	if width <= 0 {
		width = 100
	}

	colWidth := width / len(st.ColumnOrder)
	colWidth = max(min(colWidth, maxColumnWidth), minColumnWidth)
	// border (2) + padding (2)
	innerWidth := colWidth - 4

	views := make([]string, 0, len(st.ColumnOrder))
	for i, colID := range st.ColumnOrder {
		views = append(views, renderColumn(st, st.ColumnsByID[colID], i+1, colWidth, innerWidth, opts.Highlight))
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, views...)
}

func renderColumn(st domain.BoardState, col domain.ColumnEntry, num, width, innerWidth int, highlight string) string {
	header := truncate.StringWithTail(fmt.Sprintf("[%d] %s (%d)", num, col.Title, len(col.CardIDs)), uint(innerWidth), "…")
	lines := []string{columnHeaderStyle.Render(header)}

	for _, id := range col.CardIDs {
		card, ok := st.CardsByID[id]
		if !ok {
			continue
		}
		text := formatCardText(st, card, innerWidth-2)
		if id == highlight {
			lines = append(lines, highlightCardStyle.Render("> "+text))
		} else {
			lines = append(lines, cardStyle.Render("  "+text))
		}
	}
	if len(col.CardIDs) == 0 {
		lines = append(lines, dimStyle.Render("(empty)"))
	}

	return lipgloss.NewStyle().
		Width(width-2). // Subtract border width
		Padding(0, 1).
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Render(strings.Join(lines, "\n"))
}

// formatCardText renders the card title with its id, plus a second line
// naming the assignee. Cards still waiting for the backend are marked.
func formatCardText(st domain.BoardState, card domain.CardEntry, maxWidth int) string {
	id := card.ID
	if optimistic.IsPlaceholder(id) {
		id = "(saving)"
	}
	title := truncate.StringWithTail(card.Title, uint(max(maxWidth-len(id)-1, 5)), "…")
	padding := max(maxWidth-lipgloss.Width(title)-len(id), 1)
	line := title + strings.Repeat(" ", padding) + dimStyle.Render(id)

	if u, ok := st.Assignee(card.ID); ok {
		line += "\n    " + dimStyle.Render(truncate.StringWithTail("@"+u.Name, uint(max(maxWidth-2, 1)), "…"))
	}
	return line
}

// Card renders the detail view of one card.
func Card(card domain.CardEntry, assignee *domain.User, column string, width int) string {
	if width <= 0 {
		width = 72
	}
	var b strings.Builder
	b.WriteString(labelStyle.Render(card.ID))
	b.WriteString("\n\n")
	b.WriteString(TitleStyle.Render(wordwrap.String(card.Title, width-2)))
	b.WriteString("\n")

	if column != "" {
		b.WriteString(labelStyle.Render("Column: "))
		b.WriteString(column)
		b.WriteString("\n")
	}
	b.WriteString(labelStyle.Render("Assigned: "))
	if assignee != nil {
		b.WriteString(assignee.Name)
	} else {
		b.WriteString(dimStyle.Render("nobody"))
	}
	b.WriteString("\n")

	if card.Description != "" {
		b.WriteString("\n")
		b.WriteString(labelStyle.Render("Description:"))
		b.WriteString("\n")
		b.WriteString(wordwrap.String(card.Description, width-2))
		b.WriteString("\n")
	}
	return b.String()
}

// Status renders the realtime connection state.
func Status(s realtime.Status) string {
	switch s {
	case realtime.StatusLive:
		return liveStyle.Render("● live")
	case realtime.StatusDisconnected:
		return ErrorStyle.Render("● disconnected")
	}
	return StatusStyle.Render("● " + s.String())
}
