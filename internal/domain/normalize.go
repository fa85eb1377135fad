package domain

// Normalize flattens a nested board payload into entity tables and order
// lists. Embedded assignees are hoisted into the user table; when the same
// user id appears on several cards the last snapshot wins.
func Normalize(payload BoardPayload) BoardState {
	state := NewBoardState()

	for _, col := range payload.Columns {
		cardIDs := make([]string, 0, len(col.Cards))

		for _, c := range col.Cards {
			entry := CardEntry{
				ID:          c.ID,
				Title:       c.Title,
				Description: c.Description,
			}
			if c.Assignee != nil {
				state.UsersByID[c.Assignee.ID] = *c.Assignee
				entry.AssigneeID = IntPtr(c.Assignee.ID)
			}
			state.CardsByID[c.ID] = entry
			cardIDs = append(cardIDs, c.ID)
		}

		state.ColumnsByID[col.ID] = ColumnEntry{
			ID:      col.ID,
			Title:   col.Title,
			CardIDs: cardIDs,
		}
		state.ColumnOrder = append(state.ColumnOrder, col.ID)
	}

	return state
}

// Denormalize rebuilds the nested payload from a state. Assignee ids that do
// not resolve are rendered as unassigned.
func Denormalize(state BoardState) BoardPayload {
	payload := BoardPayload{Columns: make([]Column, 0, len(state.ColumnOrder))}

	for _, colID := range state.ColumnOrder {
		col, ok := state.ColumnsByID[colID]
		if !ok {
			continue
		}
		out := Column{ID: col.ID, Title: col.Title, Cards: make([]Card, 0, len(col.CardIDs))}
		for _, cardID := range col.CardIDs {
			entry, ok := state.CardsByID[cardID]
			if !ok {
				continue
			}
			card := Card{ID: entry.ID, Title: entry.Title, Description: entry.Description}
			if u, ok := state.Assignee(cardID); ok {
				card.Assignee = &u
			}
			out.Cards = append(out.Cards, card)
		}
		payload.Columns = append(payload.Columns, out)
	}

	return payload
}
