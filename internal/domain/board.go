package domain

import (
	"errors"
	"fmt"
	"sort"
)

// ErrInvariant reports a BoardState whose tables and order lists disagree.
var ErrInvariant = errors.New("board invariant violated")

// BoardState is the flat, id-indexed representation of one board.
type BoardState struct {
	UsersByID           map[int]User
	CardsByID           map[string]CardEntry
	ColumnsByID         map[string]ColumnEntry
	ColumnOrder         []string
	SelectedAssigneeIDs map[int]struct{}
}

// NewBoardState returns an empty state with all tables allocated.
func NewBoardState() BoardState {
	return BoardState{
		UsersByID:           make(map[int]User),
		CardsByID:           make(map[string]CardEntry),
		ColumnsByID:         make(map[string]ColumnEntry),
		ColumnOrder:         []string{},
		SelectedAssigneeIDs: make(map[int]struct{}),
	}
}

// Clone returns a deep copy of the state.
func (b BoardState) Clone() BoardState {
	out := NewBoardState()
	for id, u := range b.UsersByID {
		out.UsersByID[id] = u
	}
	for id, c := range b.CardsByID {
		if c.AssigneeID != nil {
			c.AssigneeID = IntPtr(*c.AssigneeID)
		}
		out.CardsByID[id] = c
	}
	for id, col := range b.ColumnsByID {
		col.CardIDs = append([]string{}, col.CardIDs...)
		out.ColumnsByID[id] = col
	}
	out.ColumnOrder = append(out.ColumnOrder, b.ColumnOrder...)
	for id := range b.SelectedAssigneeIDs {
		out.SelectedAssigneeIDs[id] = struct{}{}
	}
	return out
}

// Assignee resolves the card's assignee. Unknown cards, unassigned cards and
// dangling user ids all resolve to false.
func (b BoardState) Assignee(cardID string) (User, bool) {
	card, ok := b.CardsByID[cardID]
	if !ok || card.AssigneeID == nil {
		return User{}, false
	}
	u, ok := b.UsersByID[*card.AssigneeID]
	return u, ok
}

// SelectedAssignees returns the assignee filter as a sorted slice.
func (b BoardState) SelectedAssignees() []int {
	ids := make([]int, 0, len(b.SelectedAssigneeIDs))
	for id := range b.SelectedAssigneeIDs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// Validate checks the referential invariants between the order lists and the
// entity tables.
func (b BoardState) Validate() error {
	for _, colID := range b.ColumnOrder {
		if _, ok := b.ColumnsByID[colID]; !ok {
			return fmt.Errorf("%w: column %q in order but not in table", ErrInvariant, colID)
		}
	}
	owner := make(map[string]string)
	for colID, col := range b.ColumnsByID {
		for _, cardID := range col.CardIDs {
			if _, ok := b.CardsByID[cardID]; !ok {
				return fmt.Errorf("%w: card %q in column %q but not in table", ErrInvariant, cardID, colID)
			}
			if prev, dup := owner[cardID]; dup {
				return fmt.Errorf("%w: card %q in columns %q and %q", ErrInvariant, cardID, prev, colID)
			}
			owner[cardID] = colID
		}
	}
	return nil
}
