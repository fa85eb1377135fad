package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/h0rv/kanban/internal/domain"
	"github.com/h0rv/kanban/internal/realtime"
)

// createTestServer builds a server over the embedded fixtures with latency
// disabled and an in-process broker.
func createTestServer(t *testing.T, mutate func(*Config)) (*Server, *MemoryBroker) {
	t.Helper()
	repo, err := LoadFixtures()
	require.NoError(t, err)
	cfg := Defaults()
	cfg.Heartbeat = 50 * time.Millisecond
	if mutate != nil {
		mutate(&cfg)
	}
	broker := NewMemoryBroker()
	logger, _ := logtest.NewNullLogger()
	return New(cfg, repo, broker, logger), broker
}

func doRequest(s *Server, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, sonic.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func cardIDs(board domain.BoardPayload) []string {
	ids := []string{}
	for _, col := range board.Columns {
		for _, card := range col.Cards {
			ids = append(ids, card.ID)
		}
	}
	return ids
}

func TestGetBoard(t *testing.T) {
	s, _ := createTestServer(t, nil)

	tests := []struct {
		name   string
		target string
		want   []string
	}{
		{"whole board", "/api/board/main", []string{"TICKET-1", "TICKET-2", "TICKET-3", "TICKET-4", "TICKET-5", "TICKET-6", "TICKET-7", "TICKET-8"}},
		{"query on title", "/api/board/main?q=INST", []string{"TICKET-1", "TICKET-2"}},
		{"shorter prefix matches more", "/api/board/main?q=ins", []string{"TICKET-1", "TICKET-2", "TICKET-6"}},
		{"query on id", "/api/board/main?q=ticket-8", []string{"TICKET-8"}},
		{"query on assignee name", "/api/board/main?q=priya", []string{"TICKET-4"}},
		{"assignee filter drops unassigned", "/api/board/main?assigneeIds=2,x,4", []string{"TICKET-1", "TICKET-5"}},
		{"both filters", "/api/board/main?q=install&assigneeIds=3", []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(s, http.MethodGet, tt.target, "")
			require.Equal(t, http.StatusOK, rec.Code)
			board := decodeBody[domain.BoardPayload](t, rec)
			assert.Len(t, board.Columns, 4)
			assert.Equal(t, tt.want, cardIDs(board))
		})
	}
}

func TestBoardDelay(t *testing.T) {
	for q, base := range map[string]time.Duration{"inst": 150 * time.Millisecond, "ins": 650 * time.Millisecond, "": 300 * time.Millisecond} {
		d := boardDelay(q)
		assert.GreaterOrEqual(t, d, base, q)
		assert.Less(t, d, base+120*time.Millisecond, q)
	}
}

func TestLatencyIsOptIn(t *testing.T) {
	var slept []time.Duration
	s, _ := createTestServer(t, func(c *Config) { c.Latency = true })
	s.sleep = func(_ context.Context, d time.Duration) { slept = append(slept, d) }

	doRequest(s, http.MethodGet, "/api/board/main?q=inst", "")
	doRequest(s, http.MethodPatch, "/api/cards/TICKET-2", `{"title":"x"}`)

	require.Len(t, slept, 2)
	assert.Equal(t, time.Second, slept[1])
}

func TestSearchUsers(t *testing.T) {
	s, _ := createTestServer(t, nil)

	rec := doRequest(s, http.MethodGet, "/api/users", "")
	page := decodeBody[UserPage](t, rec)
	assert.Len(t, page.Items, 5)
	assert.Equal(t, PageInfo{Total: 7, Page: 0, PageSize: 5, HasMore: true}, page.PageInfo)

	rec = doRequest(s, http.MethodGet, "/api/users?page=1&pageSize=5", "")
	page = decodeBody[UserPage](t, rec)
	assert.Len(t, page.Items, 2)
	assert.False(t, page.PageInfo.HasMore)

	rec = doRequest(s, http.MethodGet, "/api/users?query=AN", "")
	page = decodeBody[UserPage](t, rec)
	assert.Equal(t, 2, page.PageInfo.Total)

	rec = doRequest(s, http.MethodGet, "/api/users?page=-1", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUsers(t *testing.T) {
	s, _ := createTestServer(t, nil)

	rec := doRequest(s, http.MethodGet, "/api/users/2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Ana Souza", decodeBody[domain.User](t, rec).Name)

	rec = doRequest(s, http.MethodGet, "/api/users/42", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":"User 42 not found"}`, rec.Body.String())

	rec = doRequest(s, http.MethodPatch, "/api/users/2", `{"name":"Ana Maria"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	updated := decodeBody[domain.User](t, rec)
	assert.Equal(t, "Ana Maria", updated.Name)
	assert.Equal(t, "Backend engineer", updated.Description)
}

func TestGetCard(t *testing.T) {
	s, _ := createTestServer(t, nil)

	rec := doRequest(s, http.MethodGet, "/api/cards/ticket-4", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{
		"ticket": {"id":"TICKET-4","title":"Migrate session store","description":"Move sessions off the legacy cluster",
			"assignee":{"id":6,"name":"Priya Nair","avatar_url":"https://i.pravatar.cc/64?u=6"}},
		"column": {"id":"in-progress","title":"In progress"}
	}`, rec.Body.String())

	assert.Equal(t, http.StatusNotFound, doRequest(s, http.MethodGet, "/api/cards/TICKET-99", "").Code)
}

func TestCreateCard(t *testing.T) {
	s, broker := createTestServer(t, nil)
	frames, cancel, err := broker.Subscribe(context.Background())
	require.NoError(t, err)
	defer cancel()

	rec := doRequest(s, http.MethodPost, "/api/cards", `{"title":"  Rotate keys ","columnId":"review"}`)

	require.Equal(t, http.StatusCreated, rec.Code)
	card := decodeBody[domain.Card](t, rec)
	assert.Equal(t, domain.Card{ID: "TICKET-9", Title: "Rotate keys"}, card)

	frame := <-frames
	ev, err := realtime.Decode(frame.Name, frame.Data)
	require.NoError(t, err)
	assert.Equal(t, realtime.CardCreated{Card: card, ColumnID: "review"}, ev)
}

func TestCreateCard_Validation(t *testing.T) {
	s, _ := createTestServer(t, nil)

	rec := doRequest(s, http.MethodPost, "/api/cards", `{"title":"","columnId":"todo"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"Title and columnId are required"}`, rec.Body.String())

	rec = doRequest(s, http.MethodPost, "/api/cards", `{"title":"x","columnId":"icebox"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":"Column icebox not found"}`, rec.Body.String())
}

func TestCreateCard_SkipsTakenIDs(t *testing.T) {
	s, _ := createTestServer(t, nil)
	require.Equal(t, http.StatusNoContent, doRequest(s, http.MethodDelete, "/api/cards/TICKET-2", "").Code)

	rec := doRequest(s, http.MethodPost, "/api/cards", `{"title":"x","columnId":"todo"}`)

	// Seven cards remain, and TICKET-8 is still on the board.
	assert.Equal(t, "TICKET-9", decodeBody[domain.Card](t, rec).ID)
}

func TestUpdateCard_FailingCard(t *testing.T) {
	s, broker := createTestServer(t, nil)
	frames, cancel, _ := broker.Subscribe(context.Background())
	defer cancel()

	rec := doRequest(s, http.MethodPatch, "/api/cards/ticket-1", `{"assignee":null}`)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"Internal server error"}`, rec.Body.String())
	assert.Empty(t, frames)
}

func TestUpdateCard_Assignee(t *testing.T) {
	s, broker := createTestServer(t, nil)
	frames, cancel, _ := broker.Subscribe(context.Background())
	defer cancel()

	rec := doRequest(s, http.MethodPatch, "/api/cards/TICKET-2", `{"assignee":null}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, decodeBody[domain.Card](t, rec).Assignee)

	frame := <-frames
	assert.Equal(t, "card-assigned", frame.Name)
	assert.JSONEq(t, `{"id":"TICKET-2","title":"Instrument checkout funnel"}`, string(frame.Data))

	rec = doRequest(s, http.MethodPatch, "/api/cards/TICKET-2",
		`{"assignee":{"id":5,"name":"Sam Okafor","description":"QA engineer","avatar_url":""}}`)
	require.Equal(t, http.StatusOK, rec.Code)
	card := decodeBody[domain.Card](t, rec)
	require.NotNil(t, card.Assignee)
	assert.Equal(t, domain.User{ID: 5, Name: "Sam Okafor"}, *card.Assignee)
	assert.Equal(t, "card-assigned", (<-frames).Name)
}

func TestUpdateCard_FieldsPublishPatchOnly(t *testing.T) {
	s, broker := createTestServer(t, nil)
	frames, cancel, _ := broker.Subscribe(context.Background())
	defer cancel()

	rec := doRequest(s, http.MethodPatch, "/api/cards/TICKET-4", `{"title":"Migrate sessions"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	card := decodeBody[domain.Card](t, rec)
	assert.Equal(t, "Migrate sessions", card.Title)
	require.NotNil(t, card.Assignee, "assignee must survive a title edit")

	frame := <-frames
	assert.Equal(t, "card-updated", frame.Name)
	assert.JSONEq(t, `{"id":"TICKET-4","title":"Migrate sessions"}`, string(frame.Data))
}

func TestUpdateCard_BadInput(t *testing.T) {
	s, _ := createTestServer(t, nil)

	assert.Equal(t, http.StatusBadRequest, doRequest(s, http.MethodPatch, "/api/cards/TICKET-2", `{"title":7}`).Code)
	assert.Equal(t, http.StatusBadRequest, doRequest(s, http.MethodPatch, "/api/cards/TICKET-2", `{"assignee":"bob"}`).Code)
	assert.Equal(t, http.StatusNotFound, doRequest(s, http.MethodPatch, "/api/cards/TICKET-77", `{"title":"x"}`).Code)
}

func TestMoveCard(t *testing.T) {
	s, _ := createTestServer(t, nil)

	rec := doRequest(s, http.MethodPatch, "/api/cards/TICKET-1/move",
		`{"fromColumnId":"todo","toColumnId":"done","fromIndex":0,"toIndex":99}`)
	require.Equal(t, http.StatusOK, rec.Code)

	board := decodeBody[domain.BoardPayload](t, doRequest(s, http.MethodGet, "/api/board/main", ""))
	assert.Equal(t, []string{"TICKET-2", "TICKET-3", "TICKET-4", "TICKET-5", "TICKET-6", "TICKET-7", "TICKET-8", "TICKET-1"}, cardIDs(board))

	rec = doRequest(s, http.MethodPatch, "/api/cards/TICKET-1/move", `{"fromColumnId":"done","toColumnId":"icebox","toIndex":0}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = doRequest(s, http.MethodPatch, "/api/cards/TICKET-404/move", `{"toColumnId":"todo"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteCard(t *testing.T) {
	s, _ := createTestServer(t, nil)

	assert.Equal(t, http.StatusNoContent, doRequest(s, http.MethodDelete, "/api/cards/ticket-3", "").Code)
	assert.Equal(t, http.StatusNotFound, doRequest(s, http.MethodDelete, "/api/cards/TICKET-3", "").Code)
}

func TestRequireToken(t *testing.T) {
	s, _ := createTestServer(t, func(c *Config) { c.Token = "secret" })

	assert.Equal(t, http.StatusUnauthorized, doRequest(s, http.MethodDelete, "/api/cards/TICKET-3", "").Code)
	assert.Equal(t, http.StatusOK, doRequest(s, http.MethodGet, "/api/board/main", "").Code)

	req := httptest.NewRequest(http.MethodDelete, "/api/cards/TICKET-3", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer secret")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestFromEnv(t *testing.T) {
	t.Setenv("PORT", "5000")
	t.Setenv("KANBAN_HEARTBEAT", "2s")
	t.Setenv("KANBAN_FAIL_CARDS", "TICKET-2, TICKET-3,")
	t.Setenv("KANBAN_LATENCY", "true")

	cfg, err := FromEnv(Defaults())

	require.NoError(t, err)
	assert.Equal(t, ":5000", cfg.Addr)
	assert.Equal(t, 2*time.Second, cfg.Heartbeat)
	assert.Equal(t, []string{"TICKET-2", "TICKET-3"}, cfg.FailingCardIDs)
	assert.True(t, cfg.Latency)

	t.Setenv("KANBAN_HEARTBEAT", "soon")
	_, err = FromEnv(Defaults())
	assert.Error(t, err)
}

func TestRedisOptions(t *testing.T) {
	opts := RedisOptions("redis://:pw@localhost:6380/2")
	assert.Equal(t, "localhost:6380", opts.Addr)
	assert.Equal(t, 2, opts.DB)

	opts = RedisOptions("cache.example:6380,password=pw,ssl=True")
	assert.Equal(t, "cache.example:6380", opts.Addr)
	assert.Equal(t, "pw", opts.Password)
	assert.NotNil(t, opts.TLSConfig)
}
