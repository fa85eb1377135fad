package optimistic

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/h0rv/kanban/internal/api"
	"github.com/h0rv/kanban/internal/domain"
	"github.com/h0rv/kanban/internal/store"
)

// PlaceholderPrefix marks card ids issued locally before the backend answers.
const PlaceholderPrefix = "tmp-"

// IsPlaceholder reports whether cardID was issued locally.
func IsPlaceholder(cardID string) bool {
	return strings.HasPrefix(cardID, PlaceholderPrefix)
}

// Assign sets the card's assignee, or clears it when user is nil. The user
// entry is merged into the user table; a rollback restores the entry it held
// before, or drops it if the user was not known.
func Assign(remote Remote, cardID string, user *domain.User) Mutation {
	var (
		known     bool
		prev      *int
		userKnown bool
		prevUser  domain.User
	)
	return Mutation{
		Name: "assign " + cardID,
		Forward: func(s *store.Store) {
			card, err := s.Card(cardID)
			known, prev = err == nil, card.AssigneeID
			if user == nil {
				s.UpdateCard(cardID, domain.Unassign())
				return
			}
			prevUser, userKnown = s.User(user.ID)
			s.UpsertUser(*user)
			s.UpdateCard(cardID, domain.AssignTo(user.ID))
		},
		Inverse: func(s *store.Store) {
			if known {
				s.UpdateCard(cardID, domain.CardPatch{Assignee: &domain.AssigneeChange{ID: prev}})
			}
			if user == nil {
				return
			}
			if userKnown {
				s.PutUser(prevUser)
			} else {
				s.RemoveUser(user.ID)
			}
		},
		Sync: func(ctx context.Context) error {
			var lite *domain.User
			if user != nil {
				u := user.Lite()
				lite = &u
			}
			_, err := remote.UpdateCard(ctx, cardID, api.CardUpdate{SetAssignee: true, Assignee: lite})
			return err
		},
	}
}

// Edit changes a card's title and/or description. Nil fields are left as is.
func Edit(remote Remote, cardID string, title, description *string) Mutation {
	var (
		known bool
		prev  domain.CardEntry
		saved domain.Card
	)
	return Mutation{
		Name: "edit " + cardID,
		Forward: func(s *store.Store) {
			card, err := s.Card(cardID)
			known, prev = err == nil, card
			s.UpdateCard(cardID, domain.CardPatch{Title: title, Description: description})
		},
		Inverse: func(s *store.Store) {
			if known {
				s.UpdateCard(cardID, domain.CardPatch{Title: &prev.Title, Description: &prev.Description})
			}
		},
		Sync: func(ctx context.Context) error {
			card, err := remote.UpdateCard(ctx, cardID, api.CardUpdate{Title: title, Description: description})
			saved = card
			return err
		},
		Commit: func(s *store.Store) error {
			if saved.ID == "" {
				return nil
			}
			s.UpdateCard(cardID, domain.CardPatch{Title: &saved.Title, Description: &saved.Description})
			return nil
		},
	}
}

// Move repositions a card. The rollback returns it to where it actually was
// when the move was applied, which may differ from the fromIndex hint. A card
// on no column is not moved locally, so there is nothing to undo.
func Move(remote Remote, cardID, fromColumnID, toColumnID string, fromIndex, toIndex int) Mutation {
	var (
		placed  bool
		origCol string
		origIdx int
	)
	return Mutation{
		Name: "move " + cardID,
		Forward: func(s *store.Store) {
			origCol, origIdx, placed = s.Locate(cardID)
			s.MoveCard(cardID, fromColumnID, toColumnID, fromIndex, toIndex)
		},
		Inverse: func(s *store.Store) {
			if !placed {
				return
			}
			if col, idx, ok := s.Locate(cardID); ok {
				s.MoveCard(cardID, col, origCol, idx, origIdx)
			}
		},
		Sync: func(ctx context.Context) error {
			_, err := remote.MoveCard(ctx, cardID, api.MoveRequest{
				FromColumnID: fromColumnID,
				ToColumnID:   toColumnID,
				FromIndex:    fromIndex,
				ToIndex:      toIndex,
			})
			return err
		},
	}
}

// Delete removes a card. The rollback reinserts it at its original position.
func Delete(remote Remote, cardID string) Mutation {
	var (
		known    bool
		card     domain.CardEntry
		columnID string
		index    int
		placed   bool
	)
	return Mutation{
		Name: "delete " + cardID,
		Forward: func(s *store.Store) {
			c, err := s.Card(cardID)
			known, card = err == nil, c
			columnID, index, placed = s.Locate(cardID)
			s.RemoveCard(cardID)
		},
		Inverse: func(s *store.Store) {
			if known && placed {
				_ = s.InsertCard(columnID, index, card)
			}
		},
		Sync: func(ctx context.Context) error {
			return remote.DeleteCard(ctx, cardID)
		},
	}
}

// Create appends a placeholder card to the column and swaps it for the
// server-issued card once the backend answers. If the realtime echo of the
// new card arrived first, the placeholder is simply dropped.
func Create(remote Remote, columnID, title string) Mutation {
	placeholder := PlaceholderPrefix + uuid.NewString()
	title = strings.TrimSpace(title)
	var created domain.Card

	return Mutation{
		Name: "create card in " + columnID,
		Forward: func(s *store.Store) {
			_ = s.AddCard(columnID, domain.CardEntry{ID: placeholder, Title: title})
		},
		Inverse: func(s *store.Store) {
			s.RemoveCard(placeholder)
		},
		Sync: func(ctx context.Context) error {
			card, err := remote.CreateCard(ctx, api.CreateCardRequest{Title: title, ColumnID: columnID})
			created = card
			return err
		},
		Commit: func(s *store.Store) error {
			entry := domain.CardEntry{ID: created.ID, Title: created.Title, Description: created.Description}
			if created.Assignee != nil {
				s.UpsertUser(*created.Assignee)
				entry.AssigneeID = domain.IntPtr(created.Assignee.ID)
			}
			if s.ReplaceCardID(placeholder, entry) {
				return nil
			}
			if err := s.AddCard(columnID, entry); err != nil {
				return fmt.Errorf("failed to place card %s in %s: %w", created.ID, columnID, err)
			}
			return nil
		},
	}
}

// RenameUser changes a user's display name.
func RenameUser(remote Remote, userID int, name string) Mutation {
	var (
		known bool
		prev  domain.User
	)
	return Mutation{
		Name: fmt.Sprintf("rename user %d", userID),
		Forward: func(s *store.Store) {
			prev, known = s.User(userID)
			s.UpsertUser(domain.User{ID: userID, Name: name})
		},
		Inverse: func(s *store.Store) {
			if known {
				s.PutUser(prev)
			} else {
				s.RemoveUser(userID)
			}
		},
		Sync: func(ctx context.Context) error {
			_, err := remote.UpdateUser(ctx, userID, api.UserUpdate{Name: &name})
			return err
		},
	}
}

// AssignCard builds and executes Assign.
func (c *Coordinator) AssignCard(ctx context.Context, cardID string, user *domain.User) error {
	return c.Execute(ctx, Assign(c.remote, cardID, user))
}

// EditCard builds and executes Edit.
func (c *Coordinator) EditCard(ctx context.Context, cardID string, title, description *string) error {
	if title == nil && description == nil {
		return fmt.Errorf("%w: nothing to edit on %s", ErrInvalid, cardID)
	}
	return c.Execute(ctx, Edit(c.remote, cardID, title, description))
}

// MoveCard builds and executes Move.
func (c *Coordinator) MoveCard(ctx context.Context, cardID, fromColumnID, toColumnID string, fromIndex, toIndex int) error {
	return c.Execute(ctx, Move(c.remote, cardID, fromColumnID, toColumnID, fromIndex, toIndex))
}

// DeleteCard builds and executes Delete.
func (c *Coordinator) DeleteCard(ctx context.Context, cardID string) error {
	return c.Execute(ctx, Delete(c.remote, cardID))
}

// CreateCard builds and executes Create.
func (c *Coordinator) CreateCard(ctx context.Context, columnID, title string) error {
	if strings.TrimSpace(title) == "" || columnID == "" {
		return fmt.Errorf("%w: title and column are required", ErrInvalid)
	}
	return c.Execute(ctx, Create(c.remote, columnID, title))
}

// RenameUser builds and executes RenameUser.
func (c *Coordinator) RenameUser(ctx context.Context, userID int, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("%w: user name is required", ErrInvalid)
	}
	return c.Execute(ctx, RenameUser(c.remote, userID, name))
}
