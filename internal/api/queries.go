package api

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/h0rv/kanban/internal/domain"
)

// Query narrows a board fetch. The zero value fetches the whole board.
type Query struct {
	Q           string
	AssigneeIDs []int
}

// Values encodes the query the way the backend expects it: q plus a
// comma-separated assigneeIds list, each only when set.
func (q Query) Values() url.Values {
	v := url.Values{}
	if q.Q != "" {
		v.Set("q", q.Q)
	}
	if len(q.AssigneeIDs) > 0 {
		ids := make([]string, len(q.AssigneeIDs))
		for i, id := range q.AssigneeIDs {
			ids[i] = strconv.Itoa(id)
		}
		v.Set("assigneeIds", strings.Join(ids, ","))
	}
	return v
}

// Key identifies the query for staleness checks.
func (q Query) Key() string {
	return q.Values().Encode()
}

// PageInfo describes one page of a paged listing.
type PageInfo struct {
	Total    int  `json:"total"`
	Page     int  `json:"page"`
	PageSize int  `json:"pageSize"`
	HasMore  bool `json:"hasMore"`
}

// UserPage is one page of a user search.
type UserPage struct {
	Items    []domain.User `json:"items"`
	PageInfo PageInfo      `json:"pageInfo"`
}

// ColumnRef names the column holding a looked-up card.
type ColumnRef struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// CardLookup is the response of GET /api/cards/:id.
type CardLookup struct {
	Ticket domain.Card `json:"ticket"`
	Column ColumnRef   `json:"column"`
}

// GetBoard fetches a board, filtered by query.
func (c *Client) GetBoard(ctx context.Context, boardID string, query Query) (domain.BoardPayload, error) {
	var board domain.BoardPayload
	err := c.do(ctx, http.MethodGet, "/api/board/"+url.PathEscape(boardID), query.Values(), nil, &board)
	return board, err
}

// GetUser fetches one user.
func (c *Client) GetUser(ctx context.Context, userID int) (domain.User, error) {
	var user domain.User
	err := c.do(ctx, http.MethodGet, "/api/users/"+strconv.Itoa(userID), nil, nil, &user)
	return user, err
}

// SearchUsers runs a paged, case-insensitive name search. Page numbers start at 0.
func (c *Client) SearchUsers(ctx context.Context, query string, page, pageSize int) (UserPage, error) {
	v := url.Values{}
	v.Set("query", query)
	v.Set("page", strconv.Itoa(page))
	v.Set("pageSize", strconv.Itoa(pageSize))

	var out UserPage
	err := c.do(ctx, http.MethodGet, "/api/users", v, nil, &out)
	return out, err
}

// GetCard looks up a card and the column currently holding it.
func (c *Client) GetCard(ctx context.Context, cardID string) (CardLookup, error) {
	var out CardLookup
	err := c.do(ctx, http.MethodGet, "/api/cards/"+url.PathEscape(cardID), nil, nil, &out)
	return out, err
}
