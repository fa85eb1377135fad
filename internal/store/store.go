// Package store holds the normalized board state of one session and exposes the
// mutation primitives shared by local optimistic edits and realtime events.
// Every mutation runs under the store lock, so two mutations never interleave.
package store

import (
	"errors"
	"sync"

	"github.com/h0rv/kanban/internal/domain"
)

var (
	// ErrCardNotFound indicates the requested card does not exist.
	ErrCardNotFound = errors.New("card not found")
	// ErrColumnNotFound indicates the requested column does not exist.
	ErrColumnNotFound = errors.New("column not found")
)

// Listener is notified with a snapshot after every mutation.
type Listener func(domain.BoardState)

// Store owns a single BoardState. The zero value is not usable; call New.
type Store struct {
	mu      sync.Mutex
	state   domain.BoardState
	version uint64

	// notifyMu serializes mutation+notification so listeners observe
	// snapshots in mutation order.
	notifyMu sync.Mutex

	listenersMu sync.Mutex
	listeners   map[int]Listener
	nextID      int
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		state:     domain.NewBoardState(),
		listeners: make(map[int]Listener),
	}
}

// Subscribe registers fn for change notifications and returns a function that
// removes it. Listeners run synchronously after the mutation and must not
// mutate the store themselves; they may read it, subscribe or cancel.
func (s *Store) Subscribe(fn Listener) (cancel func()) {
	s.listenersMu.Lock()
	defer s.listenersMu.Unlock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	return func() {
		s.listenersMu.Lock()
		delete(s.listeners, id)
		s.listenersMu.Unlock()
	}
}

func (s *Store) listenerSnapshot() []Listener {
	s.listenersMu.Lock()
	defer s.listenersMu.Unlock()
	ls := make([]Listener, 0, len(s.listeners))
	for _, l := range s.listeners {
		ls = append(ls, l)
	}
	return ls
}

// mutate applies fn under the lock. fn reports whether it changed anything.
func (s *Store) mutate(fn func(st *domain.BoardState) bool) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	listeners := s.listenerSnapshot()

	s.mu.Lock()
	changed := fn(&s.state)
	if changed {
		s.version++
	}
	var snap domain.BoardState
	notify := changed && len(listeners) > 0
	if notify {
		snap = s.state.Clone()
	}
	s.mu.Unlock()

	if !notify {
		return
	}
	for _, l := range listeners {
		l(snap)
	}
}

// IngestBoard merges a freshly fetched board. Users and cards are merged key
// by key; the column order and every column's membership are replaced by the
// payload, so cards filtered out server-side drop out of view.
func (s *Store) IngestBoard(payload domain.BoardPayload) {
	fresh := domain.Normalize(payload)
	s.mutate(func(st *domain.BoardState) bool {
		for id, u := range fresh.UsersByID {
			st.UsersByID[id] = domain.MergeUser(st.UsersByID[id], u)
		}
		for id, c := range fresh.CardsByID {
			st.CardsByID[id] = c
		}
		// Columns absent from the payload keep their entry but lose their
		// stale membership.
		for id, col := range st.ColumnsByID {
			if _, ok := fresh.ColumnsByID[id]; !ok {
				col.CardIDs = []string{}
				st.ColumnsByID[id] = col
			}
		}
		for id, col := range fresh.ColumnsByID {
			st.ColumnsByID[id] = col
		}
		st.ColumnOrder = fresh.ColumnOrder
		return true
	})
}

// IngestUsers merges each user into the user table.
func (s *Store) IngestUsers(users []domain.User) {
	if len(users) == 0 {
		return
	}
	s.mutate(func(st *domain.BoardState) bool {
		for _, u := range users {
			st.UsersByID[u.ID] = domain.MergeUser(st.UsersByID[u.ID], u)
		}
		return true
	})
}

// UpsertUser merges a single user into the user table.
func (s *Store) UpsertUser(user domain.User) {
	s.IngestUsers([]domain.User{user})
}

// PutUser replaces the user entry as a whole, clearing fields absent from user.
func (s *Store) PutUser(user domain.User) {
	s.mutate(func(st *domain.BoardState) bool {
		if prev, ok := st.UsersByID[user.ID]; ok && prev == user {
			return false
		}
		st.UsersByID[user.ID] = user
		return true
	})
}

// RemoveUser drops the user entry. Cards still pointing at it keep their
// weak reference, which resolves to no assignee.
func (s *Store) RemoveUser(userID int) {
	s.mutate(func(st *domain.BoardState) bool {
		if _, ok := st.UsersByID[userID]; !ok {
			return false
		}
		delete(st.UsersByID, userID)
		return true
	})
}

// UpdateCard merges patch into the card. Unknown cards are ignored; they may
// have been removed by a concurrent realtime event.
func (s *Store) UpdateCard(cardID string, patch domain.CardPatch) {
	s.mutate(func(st *domain.BoardState) bool {
		card, ok := st.CardsByID[cardID]
		if !ok {
			return false
		}
		st.CardsByID[cardID] = patch.Apply(card)
		return true
	})
}

// RemoveCard deletes the card and drops it from the column holding it.
func (s *Store) RemoveCard(cardID string) {
	s.mutate(func(st *domain.BoardState) bool {
		_, known := st.CardsByID[cardID]
		delete(st.CardsByID, cardID)
		colID, idx, ok := locate(st, cardID)
		if ok {
			col := st.ColumnsByID[colID]
			col.CardIDs = removeAt(col.CardIDs, idx)
			st.ColumnsByID[colID] = col
		}
		return known || ok
	})
}

// AddCard inserts card at the end of the column. The column must exist. A
// card that is already on the board keeps its position and only has its
// fields refreshed.
func (s *Store) AddCard(columnID string, card domain.CardEntry) error {
	return s.InsertCard(columnID, -1, card)
}

// InsertCard inserts card into the column at index, clamped to the valid
// range. A negative index appends.
func (s *Store) InsertCard(columnID string, index int, card domain.CardEntry) error {
	var err error
	s.mutate(func(st *domain.BoardState) bool {
		col, ok := st.ColumnsByID[columnID]
		if !ok {
			err = ErrColumnNotFound
			return false
		}
		st.CardsByID[card.ID] = card
		if _, _, placed := locate(st, card.ID); placed {
			return true
		}
		if index < 0 {
			index = len(col.CardIDs)
		}
		col.CardIDs = insertAt(col.CardIDs, index, card.ID)
		st.ColumnsByID[columnID] = col
		return true
	})
	return err
}

// MoveCard removes the card from fromIndex in fromColumnID and inserts it at
// toIndex in toColumnID. Indices are clamped and the insertion index is taken
// after the removal, so same-column moves behave like a list reorder. If the
// card is not at fromIndex its actual position is used. A card that is on no
// column, e.g. filtered out of view, is left where it is.
func (s *Store) MoveCard(cardID, fromColumnID, toColumnID string, fromIndex, toIndex int) {
	s.mutate(func(st *domain.BoardState) bool {
		if _, ok := st.CardsByID[cardID]; !ok {
			return false
		}
		to, ok := st.ColumnsByID[toColumnID]
		if !ok {
			return false
		}
		if _, ok := st.ColumnsByID[fromColumnID]; !ok {
			return false
		}

		srcID, srcIdx, found := locateFrom(st, cardID, fromColumnID, fromIndex)
		if !found {
			return false
		}
		src := st.ColumnsByID[srcID]
		src.CardIDs = removeAt(src.CardIDs, srcIdx)
		st.ColumnsByID[srcID] = src
		if srcID == toColumnID {
			to = src
		}

		to.CardIDs = insertAt(to.CardIDs, toIndex, cardID)
		st.ColumnsByID[toColumnID] = to
		return true
	})
}

// ReplaceCardID swaps the placeholder oldID for the authoritative card at the
// same position. If the authoritative id is already present the placeholder is
// dropped. It reports false when the placeholder was not on any column and the
// authoritative card is not yet known, leaving placement to the caller.
func (s *Store) ReplaceCardID(oldID string, card domain.CardEntry) bool {
	replaced := true
	s.mutate(func(st *domain.BoardState) bool {
		colID, idx, placed := locate(st, oldID)
		delete(st.CardsByID, oldID)

		if _, exists := st.CardsByID[card.ID]; exists {
			if placed {
				col := st.ColumnsByID[colID]
				col.CardIDs = removeAt(col.CardIDs, idx)
				st.ColumnsByID[colID] = col
			}
			st.CardsByID[card.ID] = card
			return true
		}

		if !placed {
			replaced = false
			return true
		}
		st.CardsByID[card.ID] = card
		col := st.ColumnsByID[colID]
		col.CardIDs[idx] = card.ID
		st.ColumnsByID[colID] = col
		return true
	})
	return replaced
}

// ToggleAssigneeFilter adds userID to the assignee filter, or removes it if
// already selected.
func (s *Store) ToggleAssigneeFilter(userID int) {
	s.mutate(func(st *domain.BoardState) bool {
		if _, ok := st.SelectedAssigneeIDs[userID]; ok {
			delete(st.SelectedAssigneeIDs, userID)
		} else {
			st.SelectedAssigneeIDs[userID] = struct{}{}
		}
		return true
	})
}

// ClearAssigneeFilters empties the assignee filter.
func (s *Store) ClearAssigneeFilters() {
	s.mutate(func(st *domain.BoardState) bool {
		if len(st.SelectedAssigneeIDs) == 0 {
			return false
		}
		st.SelectedAssigneeIDs = make(map[int]struct{})
		return true
	})
}

// Reset drops all state.
func (s *Store) Reset() {
	s.mutate(func(st *domain.BoardState) bool {
		*st = domain.NewBoardState()
		return true
	})
}

// Snapshot returns a deep copy of the current state.
func (s *Store) Snapshot() domain.BoardState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

// Board returns the current state in nested form.
func (s *Store) Board() domain.BoardPayload {
	return domain.Denormalize(s.Snapshot())
}

// Version returns a counter incremented by every effective mutation.
func (s *Store) Version() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version
}

// Card retrieves a card by id, returning ErrCardNotFound if not found.
func (s *Store) Card(cardID string) (domain.CardEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	card, ok := s.state.CardsByID[cardID]
	if !ok {
		return domain.CardEntry{}, ErrCardNotFound
	}
	if card.AssigneeID != nil {
		card.AssigneeID = domain.IntPtr(*card.AssigneeID)
	}
	return card, nil
}

// User looks up a user by id.
func (s *Store) User(userID int) (domain.User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.state.UsersByID[userID]
	return u, ok
}

// Assignee resolves the card's assignee through the user table.
func (s *Store) Assignee(cardID string) (domain.User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Assignee(cardID)
}

// Locate returns the column and position currently holding cardID.
func (s *Store) Locate(cardID string) (columnID string, index int, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return locate(&s.state, cardID)
}

// ColumnCards returns a copy of the card ids of a column.
func (s *Store) ColumnCards(columnID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	col, ok := s.state.ColumnsByID[columnID]
	if !ok {
		return []string{}
	}
	return append([]string{}, col.CardIDs...)
}

// SelectedAssignees returns the assignee filter sorted ascending.
func (s *Store) SelectedAssignees() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.SelectedAssignees()
}

func locate(st *domain.BoardState, cardID string) (string, int, bool) {
	for colID, col := range st.ColumnsByID {
		for i, id := range col.CardIDs {
			if id == cardID {
				return colID, i, true
			}
		}
	}
	return "", 0, false
}

// locateFrom prefers the hinted position and falls back to a full scan.
func locateFrom(st *domain.BoardState, cardID, columnID string, index int) (string, int, bool) {
	col := st.ColumnsByID[columnID]
	if len(col.CardIDs) > 0 {
		i := clamp(index, 0, len(col.CardIDs)-1)
		if col.CardIDs[i] == cardID {
			return columnID, i, true
		}
	}
	return locate(st, cardID)
}

func removeAt(ids []string, i int) []string {
	out := make([]string, 0, len(ids)-1)
	out = append(out, ids[:i]...)
	return append(out, ids[i+1:]...)
}

func insertAt(ids []string, i int, id string) []string {
	i = clamp(i, 0, len(ids))
	out := make([]string, 0, len(ids)+1)
	out = append(out, ids[:i]...)
	out = append(out, id)
	return append(out, ids[i:]...)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
