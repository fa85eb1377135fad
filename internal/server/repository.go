// Package server is the mock board backend: an echo application over
// embedded fixtures that pushes board events over SSE and WebSocket.
package server

import (
	_ "embed"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/bytedance/sonic"

	"github.com/h0rv/kanban/internal/domain"
)

var (
	//go:embed fixtures/board.json
	boardFixture []byte
	//go:embed fixtures/users.json
	usersFixture []byte
)

var (
	// ErrCardNotFound is returned for unknown card ids.
	ErrCardNotFound = errors.New("card not found")
	// ErrColumnNotFound is returned for unknown column ids.
	ErrColumnNotFound = errors.New("column not found")
	// ErrUserNotFound is returned for unknown user ids.
	ErrUserNotFound = errors.New("user not found")
)

// Repository is the in-memory board and user table. Card ids are matched
// case-insensitively. The zero value is not usable; call NewRepository or
// LoadFixtures.
type Repository struct {
	mu    sync.Mutex
	board domain.BoardPayload
	users []domain.User
}

// NewRepository wraps the given board and users. Both are copied.
func NewRepository(board domain.BoardPayload, users []domain.User) *Repository {
	return &Repository{board: copyBoard(board), users: append([]domain.User{}, users...)}
}

// LoadFixtures builds a repository from the embedded demo board.
func LoadFixtures() (*Repository, error) {
	var board domain.BoardPayload
	if err := sonic.Unmarshal(boardFixture, &board); err != nil {
		return nil, fmt.Errorf("failed to parse board fixture: %w", err)
	}
	var users []domain.User
	if err := sonic.Unmarshal(usersFixture, &users); err != nil {
		return nil, fmt.Errorf("failed to parse users fixture: %w", err)
	}
	return &Repository{board: board, users: users}, nil
}

// CardPatch is a partial card update received by PATCH /api/cards/:id.
type CardPatch struct {
	Title       *string
	Description *string
	SetAssignee bool
	Assignee    *domain.User
}

// Move describes a card reposition.
type Move struct {
	FromColumnID string `json:"fromColumnId"`
	ToColumnID   string `json:"toColumnId"`
	FromIndex    int    `json:"fromIndex"`
	ToIndex      int    `json:"toIndex"`
}

// Board returns the board filtered by q and assigneeIDs. q matches title, id
// and assignee name case-insensitively. When assigneeIDs is non-empty only
// cards assigned to one of them are kept.
func (r *Repository) Board(q string, assigneeIDs []int) domain.BoardPayload {
	r.mu.Lock()
	defer r.mu.Unlock()

	q = strings.ToLower(strings.TrimSpace(q))
	wanted := make(map[int]bool, len(assigneeIDs))
	for _, id := range assigneeIDs {
		wanted[id] = true
	}

	out := domain.BoardPayload{Columns: make([]domain.Column, 0, len(r.board.Columns))}
	for _, col := range r.board.Columns {
		cards := []domain.Card{}
		for _, card := range col.Cards {
			if len(wanted) > 0 && (card.Assignee == nil || !wanted[card.Assignee.ID]) {
				continue
			}
			if q != "" && !matches(card, q) {
				continue
			}
			cards = append(cards, copyCard(card))
		}
		out.Columns = append(out.Columns, domain.Column{ID: col.ID, Title: col.Title, Cards: cards})
	}
	return out
}

func matches(card domain.Card, q string) bool {
	if strings.Contains(strings.ToLower(card.Title), q) || strings.Contains(strings.ToLower(card.ID), q) {
		return true
	}
	return card.Assignee != nil && strings.Contains(strings.ToLower(card.Assignee.Name), q)
}

// ParseAssigneeIDs parses a comma-separated id list, dropping entries that
// are not integers.
func ParseAssigneeIDs(v string) []int {
	var ids []int
	for _, p := range strings.Split(v, ",") {
		id, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids
}

// UserPage is one page of a user search.
type UserPage struct {
	Items    []domain.User `json:"items"`
	PageInfo PageInfo      `json:"pageInfo"`
}

// PageInfo describes a page of results.
type PageInfo struct {
	Total    int  `json:"total"`
	Page     int  `json:"page"`
	PageSize int  `json:"pageSize"`
	HasMore  bool `json:"hasMore"`
}

// SearchUsers pages through users whose name contains query.
func (r *Repository) SearchUsers(query string, page, pageSize int) UserPage {
	r.mu.Lock()
	defer r.mu.Unlock()

	query = strings.ToLower(strings.TrimSpace(query))
	source := r.users
	if query != "" {
		source = nil
		for _, u := range r.users {
			if strings.Contains(strings.ToLower(u.Name), query) {
				source = append(source, u)
			}
		}
	}

	total := len(source)
	start := min(max(page*pageSize, 0), total)
	end := min(start+max(pageSize, 0), total)
	return UserPage{
		Items:    append([]domain.User{}, source[start:end]...),
		PageInfo: PageInfo{Total: total, Page: page, PageSize: pageSize, HasMore: page*pageSize+pageSize < total},
	}
}

// User returns one user.
func (r *Repository) User(id int) (domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.ID == id {
			return u, nil
		}
	}
	return domain.User{}, ErrUserNotFound
}

// UpdateUser merges the non-empty fields of patch into the user.
func (r *Repository) UpdateUser(id int, patch domain.User) (domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, u := range r.users {
		if u.ID == id {
			patch.ID = id
			r.users[i] = domain.MergeUser(u, patch)
			return r.users[i], nil
		}
	}
	return domain.User{}, ErrUserNotFound
}

// Card returns a card and the column holding it.
func (r *Repository) Card(id string) (domain.Card, domain.Column, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ci, pos, ok := r.find(id)
	if !ok {
		return domain.Card{}, domain.Column{}, ErrCardNotFound
	}
	col := r.board.Columns[ci]
	return copyCard(col.Cards[pos]), domain.Column{ID: col.ID, Title: col.Title}, nil
}

// CreateCard appends a card with the next TICKET-n id to the column.
func (r *Repository) CreateCard(columnID, title string) (domain.Card, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ci := r.column(columnID)
	if ci < 0 {
		return domain.Card{}, ErrColumnNotFound
	}
	total := 0
	for _, col := range r.board.Columns {
		total += len(col.Cards)
	}
	// Counting cards can reuse the id of a deleted card; skip taken ids.
	n := total + 1
	for {
		if _, _, taken := r.find("TICKET-" + strconv.Itoa(n)); !taken {
			break
		}
		n++
	}

	card := domain.Card{ID: "TICKET-" + strconv.Itoa(n), Title: strings.TrimSpace(title)}
	r.board.Columns[ci].Cards = append(r.board.Columns[ci].Cards, card)
	return card, nil
}

// UpdateCard merges patch into the card and returns the result.
func (r *Repository) UpdateCard(id string, patch CardPatch) (domain.Card, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ci, pos, ok := r.find(id)
	if !ok {
		return domain.Card{}, ErrCardNotFound
	}
	card := &r.board.Columns[ci].Cards[pos]
	if patch.Title != nil {
		card.Title = *patch.Title
	}
	if patch.Description != nil {
		card.Description = *patch.Description
	}
	if patch.SetAssignee {
		if patch.Assignee == nil {
			card.Assignee = nil
		} else {
			lite := patch.Assignee.Lite()
			card.Assignee = &lite
		}
	}
	return copyCard(*card), nil
}

// DeleteCard removes a card.
func (r *Repository) DeleteCard(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	ci, pos, ok := r.find(id)
	if !ok {
		return ErrCardNotFound
	}
	cards := r.board.Columns[ci].Cards
	r.board.Columns[ci].Cards = append(cards[:pos:pos], cards[pos+1:]...)
	return nil
}

// MoveCard takes the card out of the column currently holding it and inserts
// it into the target column at the clamped index.
func (r *Repository) MoveCard(id string, mv Move) (domain.Card, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ci, pos, ok := r.find(id)
	if !ok {
		return domain.Card{}, ErrCardNotFound
	}
	to := r.column(mv.ToColumnID)
	if to < 0 || (mv.FromColumnID != "" && r.column(mv.FromColumnID) < 0) {
		return domain.Card{}, ErrColumnNotFound
	}

	src := r.board.Columns[ci].Cards
	card := src[pos]
	r.board.Columns[ci].Cards = append(src[:pos:pos], src[pos+1:]...)

	dst := r.board.Columns[to].Cards
	idx := min(max(mv.ToIndex, 0), len(dst))
	out := make([]domain.Card, 0, len(dst)+1)
	out = append(out, dst[:idx]...)
	out = append(out, card)
	r.board.Columns[to].Cards = append(out, dst[idx:]...)
	return copyCard(card), nil
}

func (r *Repository) find(id string) (int, int, bool) {
	for ci, col := range r.board.Columns {
		for pos, card := range col.Cards {
			if strings.EqualFold(card.ID, id) {
				return ci, pos, true
			}
		}
	}
	return 0, 0, false
}

func (r *Repository) column(id string) int {
	for i, col := range r.board.Columns {
		if col.ID == id {
			return i
		}
	}
	return -1
}

func copyCard(card domain.Card) domain.Card {
	if card.Assignee != nil {
		a := *card.Assignee
		card.Assignee = &a
	}
	return card
}

func copyBoard(board domain.BoardPayload) domain.BoardPayload {
	out := domain.BoardPayload{Columns: make([]domain.Column, len(board.Columns))}
	for i, col := range board.Columns {
		cards := make([]domain.Card, len(col.Cards))
		for j, card := range col.Cards {
			cards[j] = copyCard(card)
		}
		out.Columns[i] = domain.Column{ID: col.ID, Title: col.Title, Cards: cards}
	}
	return out
}
