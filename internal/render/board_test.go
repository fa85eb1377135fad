package render

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/h0rv/kanban/internal/domain"
	"github.com/h0rv/kanban/internal/realtime"
)

// createTestState creates a normalized board with an assigned card, a
// placeholder and an empty column.
func createTestState() domain.BoardState {
	st := domain.Normalize(domain.BoardPayload{Columns: []domain.Column{
		{ID: "todo", Title: "To do", Cards: []domain.Card{
			{ID: "TICKET-1", Title: "Install payment SDK", Assignee: &domain.User{ID: 2, Name: "Ana Souza"}},
			{ID: "tmp-123", Title: "Draft"},
		}},
		{ID: "done", Title: "Done", Cards: []domain.Card{}},
	}})
	return st
}

func TestBoard_RendersColumnsInOrder(t *testing.T) {
	out := Board(createTestState(), Options{Width: 80})

	assert.Contains(t, out, "[1] To do (2)")
	assert.Contains(t, out, "[2] Done (0)")
	assert.Less(t, strings.Index(out, "To do"), strings.Index(out, "Done"))
	assert.Contains(t, out, "Install payment SDK")
	assert.Contains(t, out, "@Ana Souza")
	assert.Contains(t, out, "(saving)")
	assert.Contains(t, out, "(empty)")
}

func TestBoard_HighlightsCard(t *testing.T) {
	out := Board(createTestState(), Options{Width: 80, Highlight: "TICKET-1"})

	assert.Contains(t, out, "> Install payment SDK")
}

func TestBoard_TruncatesLongTitles(t *testing.T) {
	st := createTestState()
	card := st.CardsByID["TICKET-1"]
	card.Title = strings.Repeat("very long title ", 10)
	st.CardsByID["TICKET-1"] = card

	out := Board(st, Options{Width: 44})

	assert.Contains(t, out, "…")
	assert.NotContains(t, out, card.Title)
}

func TestBoard_Empty(t *testing.T) {
	assert.Equal(t, "(no columns)", Board(domain.NewBoardState(), Options{}))
}

func TestCard(t *testing.T) {
	card := domain.CardEntry{ID: "TICKET-4", Title: "Migrate session store", Description: "Move sessions off the legacy cluster before the freeze"}

	out := Card(card, &domain.User{ID: 6, Name: "Priya Nair"}, "In progress", 30)

	assert.Contains(t, out, "TICKET-4")
	assert.Contains(t, out, "Column: In progress")
	assert.Contains(t, out, "Assigned: Priya Nair")
	for _, line := range strings.Split(out, "\n") {
		assert.LessOrEqual(t, len(line), 30, line)
	}

	assert.Contains(t, Card(card, nil, "", 0), "nobody")
}

func TestStatus(t *testing.T) {
	assert.Contains(t, Status(realtime.StatusLive), "live")
	assert.Contains(t, Status(realtime.StatusDisconnected), "disconnected")
	assert.Contains(t, Status(realtime.StatusConnecting), "connecting")
}
