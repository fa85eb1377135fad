package server

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"

	"github.com/h0rv/kanban/internal/domain"
	"github.com/h0rv/kanban/internal/realtime"
)

func (s *Server) getBoard(c echo.Context) error {
	q := c.QueryParam("q")
	board := s.repo.Board(q, ParseAssigneeIDs(c.QueryParam("assigneeIds")))
	s.delay(c.Request().Context(), boardDelay(q))
	return c.JSON(http.StatusOK, board)
}

func (s *Server) searchUsers(c echo.Context) error {
	page, err := intParam(c, "page", 0)
	if err != nil {
		return errorJSON(c, http.StatusBadRequest, err.Error())
	}
	pageSize, err := intParam(c, "pageSize", 5)
	if err != nil {
		return errorJSON(c, http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, s.repo.SearchUsers(c.QueryParam("query"), page, pageSize))
}

func (s *Server) getUser(c echo.Context) error {
	id := c.Param("id")
	userID, err := strconv.Atoi(id)
	if err != nil {
		return errorJSON(c, http.StatusNotFound, fmt.Sprintf("User %s not found", id))
	}
	user, err := s.repo.User(userID)
	if err != nil {
		return errorJSON(c, http.StatusNotFound, fmt.Sprintf("User %s not found", id))
	}
	return c.JSON(http.StatusOK, user)
}

type userUpdateBody struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	AvatarURL   string `json:"avatar_url"`
}

func (s *Server) updateUser(c echo.Context) error {
	id := c.Param("id")
	userID, err := strconv.Atoi(id)
	if err != nil {
		return errorJSON(c, http.StatusNotFound, fmt.Sprintf("User %s not found", id))
	}
	var body userUpdateBody
	if err := c.Bind(&body); err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid JSON body")
	}
	user, err := s.repo.UpdateUser(userID, domain.User{Name: body.Name, Description: body.Description, AvatarURL: body.AvatarURL})
	if err != nil {
		return errorJSON(c, http.StatusNotFound, fmt.Sprintf("User %s not found", id))
	}
	return c.JSON(http.StatusOK, user)
}

type cardLookup struct {
	Ticket domain.Card `json:"ticket"`
	Column struct {
		ID    string `json:"id"`
		Title string `json:"title"`
	} `json:"column"`
}

func (s *Server) getCard(c echo.Context) error {
	id := c.Param("id")
	card, col, err := s.repo.Card(id)
	if err != nil {
		return errorJSON(c, http.StatusNotFound, fmt.Sprintf("Card %s not found", id))
	}
	var out cardLookup
	out.Ticket = card
	out.Column.ID, out.Column.Title = col.ID, col.Title
	return c.JSON(http.StatusOK, out)
}

type createCardBody struct {
	Title    string `json:"title"`
	ColumnID string `json:"columnId"`
}

func (s *Server) createCard(c echo.Context) error {
	var body createCardBody
	if err := c.Bind(&body); err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid JSON body")
	}
	if strings.TrimSpace(body.Title) == "" || body.ColumnID == "" {
		return errorJSON(c, http.StatusBadRequest, "Title and columnId are required")
	}

	card, err := s.repo.CreateCard(body.ColumnID, body.Title)
	if err != nil {
		return errorJSON(c, http.StatusNotFound, fmt.Sprintf("Column %s not found", body.ColumnID))
	}
	s.delay(c.Request().Context(), 200*time.Millisecond)

	s.publish(c, realtime.CardCreated{Card: card, ColumnID: body.ColumnID})
	return c.JSON(http.StatusCreated, card)
}

func (s *Server) updateCard(c echo.Context) error {
	id := c.Param("id")
	var body map[string]any
	if err := new(echo.DefaultBinder).BindBody(c, &body); err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid JSON body")
	}
	patch, err := decodeCardPatch(body)
	if err != nil {
		return errorJSON(c, http.StatusBadRequest, err.Error())
	}

	s.delay(c.Request().Context(), time.Second)
	if s.failing[strings.ToLower(id)] {
		s.log.WithField("card", id).Warn("simulating card update failure")
		return errorJSON(c, http.StatusInternalServerError, "Internal server error")
	}

	card, err := s.repo.UpdateCard(id, patch)
	if err != nil {
		return errorJSON(c, http.StatusNotFound, fmt.Sprintf("Card %s not found", id))
	}

	if patch.SetAssignee {
		s.publish(c, realtime.CardAssigned{Card: card})
	} else {
		s.publish(c, realtime.CardUpdated{CardID: card.ID, Title: patch.Title, Description: patch.Description})
	}
	return c.JSON(http.StatusOK, card)
}

// decodeCardPatch keeps the distinction between an absent assignee and an
// explicit null.
func decodeCardPatch(body map[string]any) (CardPatch, error) {
	var patch CardPatch
	for _, field := range []struct {
		name string
		dst  **string
	}{{"title", &patch.Title}, {"description", &patch.Description}} {
		v, ok := body[field.name]
		if !ok {
			continue
		}
		str, ok := v.(string)
		if !ok {
			return patch, fmt.Errorf("%s must be a string", field.name)
		}
		*field.dst = &str
	}

	v, ok := body["assignee"]
	if !ok {
		return patch, nil
	}
	patch.SetAssignee = true
	if v == nil {
		return patch, nil
	}
	data, err := sonic.Marshal(v)
	if err != nil {
		return patch, errors.New("assignee must be a user object")
	}
	var user domain.User
	if err := sonic.Unmarshal(data, &user); err != nil || user.ID == 0 {
		return patch, errors.New("assignee must be a user object")
	}
	patch.Assignee = &user
	return patch, nil
}

func (s *Server) moveCard(c echo.Context) error {
	id := c.Param("id")
	var mv Move
	if err := c.Bind(&mv); err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid JSON body")
	}
	if mv.ToColumnID == "" {
		return errorJSON(c, http.StatusBadRequest, "toColumnId is required")
	}
	card, err := s.repo.MoveCard(id, mv)
	switch {
	case errors.Is(err, ErrCardNotFound):
		return errorJSON(c, http.StatusNotFound, fmt.Sprintf("Card %s not found", id))
	case errors.Is(err, ErrColumnNotFound):
		return errorJSON(c, http.StatusNotFound, fmt.Sprintf("Column %s not found", mv.ToColumnID))
	case err != nil:
		return err
	}
	return c.JSON(http.StatusOK, card)
}

func (s *Server) deleteCard(c echo.Context) error {
	id := c.Param("id")
	if err := s.repo.DeleteCard(id); err != nil {
		return errorJSON(c, http.StatusNotFound, fmt.Sprintf("Card %s not found", id))
	}
	return c.NoContent(http.StatusNoContent)
}

// publish broadcasts ev to every open stream. Failures are logged; the
// mutation itself has already succeeded.
func (s *Server) publish(c echo.Context, ev realtime.Event) {
	frame, err := realtime.Encode(ev)
	if err != nil {
		s.log.WithError(err).Error("failed to encode board event")
		return
	}
	if err := s.broker.Publish(c.Request().Context(), frame); err != nil {
		s.log.WithError(err).WithField("event", frame.Name).Error("failed to publish board event")
	}
}

func intParam(c echo.Context, name string, def int) (int, error) {
	v := c.QueryParam(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid %s", name)
	}
	return n, nil
}
