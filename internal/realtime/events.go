// Package realtime folds board events pushed over SSE or WebSocket into the
// client cache store.
package realtime

import (
	"errors"
	"fmt"

	"github.com/bytedance/sonic"

	"github.com/h0rv/kanban/internal/domain"
)

// Kind names an event on the push channel.
type Kind string

const (
	KindConnected    Kind = "connected"
	KindCardAssigned Kind = "card-assigned"
	KindCardUpdated  Kind = "card-updated"
	KindCardCreated  Kind = "card-created"
)

// ErrUnknownEvent is returned by Decode for event names outside the closed set.
var ErrUnknownEvent = errors.New("unknown event")

// Event is one of Connected, CardAssigned, CardUpdated or CardCreated.
type Event interface {
	Kind() Kind
	isEvent()
}

// Connected is sent once when the subscription is established.
type Connected struct {
	BoardID string `json:"boardId"`
}

// CardAssigned carries the updated card. A nil assignee means the card was
// unassigned.
type CardAssigned struct {
	Card domain.Card
}

// CardUpdated carries the changed card fields; absent fields are unchanged.
type CardUpdated struct {
	CardID      string  `json:"id"`
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
}

// CardCreated carries a new card and the column it was appended to.
type CardCreated struct {
	Card     domain.Card `json:"card"`
	ColumnID string      `json:"columnId"`
}

func (Connected) Kind() Kind    { return KindConnected }
func (CardAssigned) Kind() Kind { return KindCardAssigned }
func (CardUpdated) Kind() Kind  { return KindCardUpdated }
func (CardCreated) Kind() Kind  { return KindCardCreated }

func (Connected) isEvent()    {}
func (CardAssigned) isEvent() {}
func (CardUpdated) isEvent()  {}
func (CardCreated) isEvent()  {}

// Patch returns the store patch described by the event.
func (e CardUpdated) Patch() domain.CardPatch {
	return domain.CardPatch{Title: e.Title, Description: e.Description}
}

// Frame is a raw named event as read from a transport.
type Frame struct {
	Name string
	Data []byte
}

// Decode parses a frame payload into its typed event.
func Decode(name string, data []byte) (Event, error) {
	switch Kind(name) {
	case KindConnected:
		var ev Connected
		if len(data) > 0 {
			if err := sonic.Unmarshal(data, &ev); err != nil {
				return nil, fmt.Errorf("failed to decode %s: %w", name, err)
			}
		}
		return ev, nil
	case KindCardAssigned:
		var card domain.Card
		if err := sonic.Unmarshal(data, &card); err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", name, err)
		}
		if card.ID == "" {
			return nil, fmt.Errorf("failed to decode %s: missing card id", name)
		}
		return CardAssigned{Card: card}, nil
	case KindCardUpdated:
		var ev CardUpdated
		if err := sonic.Unmarshal(data, &ev); err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", name, err)
		}
		if ev.CardID == "" {
			return nil, fmt.Errorf("failed to decode %s: missing card id", name)
		}
		return ev, nil
	case KindCardCreated:
		var ev CardCreated
		if err := sonic.Unmarshal(data, &ev); err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", name, err)
		}
		if ev.Card.ID == "" || ev.ColumnID == "" {
			return nil, fmt.Errorf("failed to decode %s: missing card or column id", name)
		}
		return ev, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, name)
	}
}

// Encode renders an event as a frame.
func Encode(ev Event) (Frame, error) {
	var (
		data []byte
		err  error
	)
	switch e := ev.(type) {
	case CardAssigned:
		data, err = sonic.Marshal(e.Card)
	default:
		data, err = sonic.Marshal(e)
	}
	if err != nil {
		return Frame{}, fmt.Errorf("failed to encode %s: %w", ev.Kind(), err)
	}
	return Frame{Name: string(ev.Kind()), Data: data}, nil
}
