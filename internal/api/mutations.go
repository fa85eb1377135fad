package api

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/bytedance/sonic"

	"github.com/h0rv/kanban/internal/domain"
)

// CreateCardRequest is the body of POST /api/cards.
type CreateCardRequest struct {
	Title    string `json:"title"`
	ColumnID string `json:"columnId"`
}

// CardUpdate is the body of PATCH /api/cards/:id. Nil fields are omitted.
// The assignee is tri-state: omitted unless SetAssignee is true, in which
// case a nil Assignee is sent as an explicit null (unassign).
type CardUpdate struct {
	Title       *string
	Description *string
	SetAssignee bool
	Assignee    *domain.User
}

// MarshalJSON renders only the fields present in the update.
func (u CardUpdate) MarshalJSON() ([]byte, error) {
	body := make(map[string]any, 3)
	if u.Title != nil {
		body["title"] = *u.Title
	}
	if u.Description != nil {
		body["description"] = *u.Description
	}
	if u.SetAssignee {
		body["assignee"] = u.Assignee
	}
	return sonic.Marshal(body)
}

// MoveRequest is the body of PATCH /api/cards/:id/move.
type MoveRequest struct {
	FromColumnID string `json:"fromColumnId"`
	ToColumnID   string `json:"toColumnId"`
	FromIndex    int    `json:"fromIndex"`
	ToIndex      int    `json:"toIndex"`
}

// UserUpdate is the body of PATCH /api/users/:id.
type UserUpdate struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
	AvatarURL   *string `json:"avatar_url,omitempty"`
}

// CreateCard creates a card at the end of a column and returns it with its
// server-issued id.
func (c *Client) CreateCard(ctx context.Context, req CreateCardRequest) (domain.Card, error) {
	var card domain.Card
	err := c.do(ctx, http.MethodPost, "/api/cards", nil, req, &card)
	return card, err
}

// UpdateCard patches a card's fields, including its assignee.
func (c *Client) UpdateCard(ctx context.Context, cardID string, update CardUpdate) (domain.Card, error) {
	var card domain.Card
	err := c.do(ctx, http.MethodPatch, "/api/cards/"+url.PathEscape(cardID), nil, update, &card)
	return card, err
}

// DeleteCard removes a card.
func (c *Client) DeleteCard(ctx context.Context, cardID string) error {
	return c.do(ctx, http.MethodDelete, "/api/cards/"+url.PathEscape(cardID), nil, nil, nil)
}

// MoveCard repositions a card between or within columns.
func (c *Client) MoveCard(ctx context.Context, cardID string, req MoveRequest) (domain.Card, error) {
	var card domain.Card
	err := c.do(ctx, http.MethodPatch, "/api/cards/"+url.PathEscape(cardID)+"/move", nil, req, &card)
	return card, err
}

// UpdateUser patches a user's profile fields.
func (c *Client) UpdateUser(ctx context.Context, userID int, update UserUpdate) (domain.User, error) {
	var user domain.User
	err := c.do(ctx, http.MethodPatch, "/api/users/"+strconv.Itoa(userID), nil, update, &user)
	return user, err
}
