package optimistic

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/h0rv/kanban/internal/api"
	"github.com/h0rv/kanban/internal/domain"
	"github.com/h0rv/kanban/internal/store"
)

var errBoom = &api.StatusError{Method: "PATCH", Path: "/api/cards/T-1", Code: 500, Message: "Internal server error"}

// fakeRemote records calls and answers with the configured results.
type fakeRemote struct {
	err     error
	created domain.Card
	updated domain.Card

	updates []api.CardUpdate
	moves   []api.MoveRequest
	deleted []string
	renamed []api.UserUpdate
}

func (f *fakeRemote) CreateCard(_ context.Context, req api.CreateCardRequest) (domain.Card, error) {
	return f.created, f.err
}

func (f *fakeRemote) UpdateCard(_ context.Context, _ string, update api.CardUpdate) (domain.Card, error) {
	f.updates = append(f.updates, update)
	return f.updated, f.err
}

func (f *fakeRemote) DeleteCard(_ context.Context, cardID string) error {
	f.deleted = append(f.deleted, cardID)
	return f.err
}

func (f *fakeRemote) MoveCard(_ context.Context, _ string, req api.MoveRequest) (domain.Card, error) {
	f.moves = append(f.moves, req)
	return domain.Card{}, f.err
}

func (f *fakeRemote) UpdateUser(_ context.Context, userID int, update api.UserUpdate) (domain.User, error) {
	f.renamed = append(f.renamed, update)
	return domain.User{ID: userID}, f.err
}

func createTestCoordinator(remote Remote) (*Coordinator, *logtest.Hook) {
	s := store.New()
	s.IngestBoard(domain.BoardPayload{Columns: []domain.Column{
		{ID: "c1", Title: "Todo", Cards: []domain.Card{
			{ID: "T-1", Title: "Fix login", Description: "steps", Assignee: &domain.User{ID: 2, Name: "Ana"}},
			{ID: "T-2", Title: "Write docs"},
		}},
		{ID: "c2", Title: "Done", Cards: []domain.Card{
			{ID: "T-3", Title: "Ship"},
		}},
	}})
	logger, hook := logtest.NewNullLogger()
	return New(s, remote, logger), hook
}

func assertUnchanged(t *testing.T, before, after domain.BoardState) {
	t.Helper()
	if diff := cmp.Diff(before, after); diff != "" {
		t.Errorf("state changed after rollback (-before +after):\n%s", diff)
	}
}

// TestAssignCard_RollbackRestoresPreviousAssignee verifies a rejected
// assignment leaves the store exactly as before.
func TestAssignCard_RollbackRestoresPreviousAssignee(t *testing.T) {
	remote := &fakeRemote{err: errBoom}
	c, hook := createTestCoordinator(remote)
	before := c.Store().Snapshot()

	err := c.AssignCard(context.Background(), "T-1", nil)

	var rb *RollbackError
	require.ErrorAs(t, err, &rb)
	assert.Equal(t, "assign T-1", rb.Mutation)
	assert.ErrorIs(t, err, api.ErrServer)
	assertUnchanged(t, before, c.Store().Snapshot())

	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)
	assert.Equal(t, "assign T-1", hook.LastEntry().Data["mutation"])
}

func TestAssignCard_RollbackRestoresUserEntry(t *testing.T) {
	t.Run("known user", func(t *testing.T) {
		c, _ := createTestCoordinator(&fakeRemote{err: errBoom})
		c.Store().UpsertUser(domain.User{ID: 5, Name: "Bo", AvatarURL: "old.png"})
		before := c.Store().Snapshot()

		err := c.AssignCard(context.Background(), "T-2", &domain.User{ID: 5, Name: "Bo Renamed", AvatarURL: "new.png"})

		assert.Error(t, err)
		assertUnchanged(t, before, c.Store().Snapshot())
	})

	t.Run("unknown user", func(t *testing.T) {
		c, _ := createTestCoordinator(&fakeRemote{err: errBoom})
		before := c.Store().Snapshot()

		err := c.AssignCard(context.Background(), "T-2", &domain.User{ID: 9, Name: "New"})

		assert.Error(t, err)
		assertUnchanged(t, before, c.Store().Snapshot())
	})
}

func TestAssignCard_AppliesBeforeSync(t *testing.T) {
	c, _ := createTestCoordinator(nil)
	user := &domain.User{ID: 5, Name: "Rui", Description: "designer"}
	var seen *int
	m := Assign(nil, "T-2", user)
	m.Sync = func(context.Context) error {
		card, _ := c.Store().Card("T-2")
		seen = card.AssigneeID
		return nil
	}

	require.NoError(t, c.Execute(context.Background(), m))

	require.NotNil(t, seen)
	assert.Equal(t, 5, *seen)
	assignee, ok := c.Store().Assignee("T-2")
	require.True(t, ok)
	assert.Equal(t, "Rui", assignee.Name)
}

func TestAssignCard_SendsExplicitNull(t *testing.T) {
	remote := &fakeRemote{}
	c, _ := createTestCoordinator(remote)

	require.NoError(t, c.AssignCard(context.Background(), "T-1", nil))

	require.Len(t, remote.updates, 1)
	assert.True(t, remote.updates[0].SetAssignee)
	assert.Nil(t, remote.updates[0].Assignee)
	card, _ := c.Store().Card("T-1")
	assert.Nil(t, card.AssigneeID)
}

func TestEditCard_CommitsServerValues(t *testing.T) {
	remote := &fakeRemote{updated: domain.Card{ID: "T-1", Title: "Fix login (trimmed)", Description: "steps"}}
	c, _ := createTestCoordinator(remote)

	require.NoError(t, c.EditCard(context.Background(), "T-1", domain.StringPtr("  Fix login (trimmed)  "), nil))

	card, _ := c.Store().Card("T-1")
	assert.Equal(t, "Fix login (trimmed)", card.Title)
	assert.Equal(t, "steps", card.Description)
}

func TestEditCard_Rollback(t *testing.T) {
	c, _ := createTestCoordinator(&fakeRemote{err: errBoom})
	before := c.Store().Snapshot()

	err := c.EditCard(context.Background(), "T-1", domain.StringPtr("x"), domain.StringPtr("y"))

	assert.Error(t, err)
	assertUnchanged(t, before, c.Store().Snapshot())
}

func TestEditCard_NothingToEdit(t *testing.T) {
	remote := &fakeRemote{}
	c, _ := createTestCoordinator(remote)

	err := c.EditCard(context.Background(), "T-1", nil, nil)

	assert.ErrorIs(t, err, ErrInvalid)
	assert.Empty(t, remote.updates)
}

func TestMoveCard(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		remote := &fakeRemote{}
		c, _ := createTestCoordinator(remote)

		require.NoError(t, c.MoveCard(context.Background(), "T-1", "c1", "c2", 0, 1))

		assert.Equal(t, []string{"T-2"}, c.Store().ColumnCards("c1"))
		assert.Equal(t, []string{"T-3", "T-1"}, c.Store().ColumnCards("c2"))
		assert.Equal(t, []api.MoveRequest{{FromColumnID: "c1", ToColumnID: "c2", FromIndex: 0, ToIndex: 1}}, remote.moves)
	})

	t.Run("rollback to original position", func(t *testing.T) {
		c, _ := createTestCoordinator(&fakeRemote{err: errBoom})
		before := c.Store().Snapshot()

		err := c.MoveCard(context.Background(), "T-1", "c1", "c2", 0, 0)

		assert.Error(t, err)
		assertUnchanged(t, before, c.Store().Snapshot())
	})

	t.Run("rollback of card filtered out of view", func(t *testing.T) {
		c, _ := createTestCoordinator(&fakeRemote{err: errBoom})
		c.Store().IngestBoard(domain.BoardPayload{Columns: []domain.Column{
			{ID: "c1", Title: "Todo", Cards: []domain.Card{{ID: "T-1", Title: "Fix login", Description: "steps", Assignee: &domain.User{ID: 2, Name: "Ana"}}}},
			{ID: "c2", Title: "Done", Cards: []domain.Card{{ID: "T-3", Title: "Ship"}}},
		}})
		before := c.Store().Snapshot()

		err := c.MoveCard(context.Background(), "T-2", "c1", "c2", 1, 0)

		assert.Error(t, err)
		assertUnchanged(t, before, c.Store().Snapshot())
	})

	t.Run("rollback of same-column reorder", func(t *testing.T) {
		c, _ := createTestCoordinator(&fakeRemote{err: errBoom})

		err := c.MoveCard(context.Background(), "T-1", "c1", "c1", 0, 5)

		assert.Error(t, err)
		assert.Equal(t, []string{"T-1", "T-2"}, c.Store().ColumnCards("c1"))
	})
}

func TestDeleteCard(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		remote := &fakeRemote{}
		c, _ := createTestCoordinator(remote)

		require.NoError(t, c.DeleteCard(context.Background(), "T-1"))

		_, err := c.Store().Card("T-1")
		assert.ErrorIs(t, err, store.ErrCardNotFound)
		assert.Equal(t, []string{"T-1"}, remote.deleted)
	})

	t.Run("rollback reinserts at original index", func(t *testing.T) {
		c, _ := createTestCoordinator(&fakeRemote{err: api.ErrNotFound})
		before := c.Store().Snapshot()

		err := c.DeleteCard(context.Background(), "T-1")

		assert.ErrorIs(t, err, api.ErrNotFound)
		assertUnchanged(t, before, c.Store().Snapshot())
	})
}

func TestCreateCard(t *testing.T) {
	t.Run("placeholder replaced in place", func(t *testing.T) {
		remote := &fakeRemote{created: domain.Card{ID: "TICKET-4", Title: "New"}}
		c, _ := createTestCoordinator(remote)
		m := Create(remote, "c2", " New ")
		var during []string
		sync := m.Sync
		m.Sync = func(ctx context.Context) error {
			during = c.Store().ColumnCards("c2")
			return sync(ctx)
		}

		require.NoError(t, c.Execute(context.Background(), m))

		require.Len(t, during, 2)
		assert.True(t, IsPlaceholder(during[1]))
		assert.Equal(t, []string{"T-3", "TICKET-4"}, c.Store().ColumnCards("c2"))
		_, err := c.Store().Card(during[1])
		assert.ErrorIs(t, err, store.ErrCardNotFound)
		assert.NoError(t, c.Store().Snapshot().Validate())
	})

	t.Run("realtime echo arrived first", func(t *testing.T) {
		remote := &fakeRemote{created: domain.Card{ID: "TICKET-4", Title: "New"}}
		c, _ := createTestCoordinator(remote)
		m := Create(remote, "c2", "New")
		sync := m.Sync
		m.Sync = func(ctx context.Context) error {
			require.NoError(t, c.Store().AddCard("c2", domain.CardEntry{ID: "TICKET-4", Title: "New"}))
			return sync(ctx)
		}

		require.NoError(t, c.Execute(context.Background(), m))

		assert.Equal(t, []string{"T-3", "TICKET-4"}, c.Store().ColumnCards("c2"))
		assert.NoError(t, c.Store().Snapshot().Validate())
	})

	t.Run("rollback removes placeholder", func(t *testing.T) {
		c, _ := createTestCoordinator(&fakeRemote{err: errBoom})
		before := c.Store().Snapshot()

		err := c.CreateCard(context.Background(), "c2", "New")

		assert.Error(t, err)
		assertUnchanged(t, before, c.Store().Snapshot())
	})

	t.Run("column gone before commit is logged", func(t *testing.T) {
		remote := &fakeRemote{created: domain.Card{ID: "TICKET-4", Title: "New"}}
		c, hook := createTestCoordinator(remote)

		require.NoError(t, c.CreateCard(context.Background(), "ghost", "New"))

		_, err := c.Store().Card("TICKET-4")
		assert.ErrorIs(t, err, store.ErrCardNotFound)
		entry := hook.LastEntry()
		require.NotNil(t, entry)
		assert.Equal(t, logrus.WarnLevel, entry.Level)
		assert.Equal(t, "create card in ghost", entry.Data["mutation"])
		assert.ErrorIs(t, entry.Data[logrus.ErrorKey].(error), store.ErrColumnNotFound)
	})

	t.Run("blank title rejected", func(t *testing.T) {
		c, _ := createTestCoordinator(&fakeRemote{})

		assert.ErrorIs(t, c.CreateCard(context.Background(), "c2", "   "), ErrInvalid)
	})
}

func TestRenameUser(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		remote := &fakeRemote{}
		c, _ := createTestCoordinator(remote)

		require.NoError(t, c.RenameUser(context.Background(), 2, "Ana Maria"))

		user, _ := c.Store().User(2)
		assert.Equal(t, "Ana Maria", user.Name)
		require.Len(t, remote.renamed, 1)
		assert.Equal(t, "Ana Maria", *remote.renamed[0].Name)
	})

	t.Run("rollback", func(t *testing.T) {
		c, _ := createTestCoordinator(&fakeRemote{err: errBoom})

		assert.Error(t, c.RenameUser(context.Background(), 2, "Ana Maria"))

		user, _ := c.Store().User(2)
		assert.Equal(t, "Ana", user.Name)
	})

	t.Run("rollback of unknown user", func(t *testing.T) {
		c, _ := createTestCoordinator(&fakeRemote{err: errBoom})

		assert.Error(t, c.RenameUser(context.Background(), 77, "Ghost"))

		_, ok := c.Store().User(77)
		assert.False(t, ok)
	})
}

func TestExecute_PanickingSyncRollsBack(t *testing.T) {
	c, _ := createTestCoordinator(nil)
	before := c.Store().Snapshot()
	m := Assign(nil, "T-1", &domain.User{ID: 9, Name: "Zed"})
	m.Sync = func(context.Context) error { panic("connection reset") }

	err := c.Execute(context.Background(), m)

	var rb *RollbackError
	require.True(t, errors.As(err, &rb))
	assert.Contains(t, rb.Error(), "connection reset")
	card, _ := c.Store().Card("T-1")
	require.NotNil(t, card.AssigneeID)
	assert.Equal(t, 2, *card.AssigneeID)
	assertUnchanged(t, before, c.Store().Snapshot())
}
