// Package domain defines the board types exchanged with the backend and their
// normalized, id-indexed counterparts held by the client cache.
package domain

// User is a board member. The backend embeds a trimmed copy of it on every
// assigned card.
type User struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	AvatarURL   string `json:"avatar_url"`
}

// Card is a ticket as delivered inside a board payload.
type Card struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Assignee    *User  `json:"assignee,omitempty"`
}

// Column is an ordered list of cards as delivered inside a board payload.
type Column struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Cards []Card `json:"cards"`
}

// BoardPayload is the nested board document returned by GET /api/board/:id.
type BoardPayload struct {
	Columns []Column `json:"columns"`
}

// CardEntry is a normalized card. The assignee is a weak reference into the
// user table and may not resolve.
type CardEntry struct {
	ID          string
	Title       string
	Description string
	AssigneeID  *int
}

// ColumnEntry is a normalized column owning the order of its card ids.
type ColumnEntry struct {
	ID      string
	Title   string
	CardIDs []string
}

// AssigneeChange describes a change of assignee. A nil ID unassigns the card.
type AssigneeChange struct {
	ID *int
}

// CardPatch holds the fields to merge into a card. Nil fields are left untouched.
type CardPatch struct {
	Title       *string
	Description *string
	Assignee    *AssigneeChange
}

// AssignTo returns a patch setting the assignee to userID.
func AssignTo(userID int) CardPatch {
	id := userID
	return CardPatch{Assignee: &AssigneeChange{ID: &id}}
}

// Unassign returns a patch clearing the assignee.
func Unassign() CardPatch {
	return CardPatch{Assignee: &AssigneeChange{}}
}

// Apply merges the patch into card and returns the result.
func (p CardPatch) Apply(card CardEntry) CardEntry {
	if p.Title != nil {
		card.Title = *p.Title
	}
	if p.Description != nil {
		card.Description = *p.Description
	}
	if p.Assignee != nil {
		if p.Assignee.ID == nil {
			card.AssigneeID = nil
		} else {
			id := *p.Assignee.ID
			card.AssigneeID = &id
		}
	}
	return card
}

// MergeUser overwrites the fields of prev with the non-empty fields of next.
func MergeUser(prev, next User) User {
	merged := prev
	merged.ID = next.ID
	if next.Name != "" {
		merged.Name = next.Name
	}
	if next.Description != "" {
		merged.Description = next.Description
	}
	if next.AvatarURL != "" {
		merged.AvatarURL = next.AvatarURL
	}
	return merged
}

// Lite strips the user down to the fields embedded on cards.
func (u User) Lite() User {
	return User{ID: u.ID, Name: u.Name, AvatarURL: u.AvatarURL}
}

// IntPtr returns a pointer to v.
func IntPtr(v int) *int {
	return &v
}

// StringPtr returns a pointer to v.
func StringPtr(v string) *string {
	return &v
}
