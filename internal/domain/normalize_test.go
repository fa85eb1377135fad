package domain

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func samplePayload() BoardPayload {
	ana := &User{ID: 2, Name: "Ana", AvatarURL: "https://avatars.example/2.png"}
	bo := &User{ID: 3, Name: "Bo", AvatarURL: ""}
	return BoardPayload{Columns: []Column{
		{ID: "c1", Title: "Todo", Cards: []Card{
			{ID: "T-1", Title: "Fix bug", Assignee: ana},
			{ID: "T-2", Title: "Write docs", Description: "user guide"},
		}},
		{ID: "c2", Title: "Doing", Cards: []Card{
			{ID: "T-3", Title: "Ship it", Assignee: bo},
			{ID: "T-4", Title: "Review", Assignee: ana},
		}},
		{ID: "c3", Title: "Done", Cards: []Card{}},
	}}
}

func TestNormalize_Scenario(t *testing.T) {
	payload := BoardPayload{Columns: []Column{
		{ID: "c1", Title: "Todo", Cards: []Card{
			{ID: "T-1", Title: "Fix bug", Assignee: &User{ID: 2, Name: "Ana", AvatarURL: ""}},
		}},
	}}

	state := Normalize(payload)

	assert.Equal(t, map[int]User{2: {ID: 2, Name: "Ana", AvatarURL: ""}}, state.UsersByID)
	assert.Equal(t, map[string]CardEntry{"T-1": {ID: "T-1", Title: "Fix bug", AssigneeID: IntPtr(2)}}, state.CardsByID)
	assert.Equal(t, map[string]ColumnEntry{"c1": {ID: "c1", Title: "Todo", CardIDs: []string{"T-1"}}}, state.ColumnsByID)
	assert.Equal(t, []string{"c1"}, state.ColumnOrder)
	assert.Empty(t, state.SelectedAssigneeIDs)
}

func TestNormalize_PreservesOrder(t *testing.T) {
	state := Normalize(samplePayload())

	assert.Equal(t, []string{"c1", "c2", "c3"}, state.ColumnOrder)
	assert.Equal(t, []string{"T-1", "T-2"}, state.ColumnsByID["c1"].CardIDs)
	assert.Equal(t, []string{"T-3", "T-4"}, state.ColumnsByID["c2"].CardIDs)
	assert.Empty(t, state.ColumnsByID["c3"].CardIDs)
	require.NoError(t, state.Validate())
}

func TestNormalize_LastAssigneeSnapshotWins(t *testing.T) {
	payload := BoardPayload{Columns: []Column{
		{ID: "c1", Title: "Todo", Cards: []Card{
			{ID: "T-1", Title: "a", Assignee: &User{ID: 7, Name: "Old"}},
			{ID: "T-2", Title: "b", Assignee: &User{ID: 7, Name: "New"}},
		}},
	}}

	state := Normalize(payload)

	assert.Equal(t, "New", state.UsersByID[7].Name)
}

func TestNormalize_IsPure(t *testing.T) {
	payload := samplePayload()

	first := Normalize(payload)
	second := Normalize(payload)

	if diff := cmp.Diff(first, second); diff != "" {
		t.Fatalf("normalize not deterministic (-first +second):\n%s", diff)
	}
}

func TestDenormalize_RoundTrip(t *testing.T) {
	payload := samplePayload()

	got := Denormalize(Normalize(payload))

	if diff := cmp.Diff(payload, got); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestDenormalize_DanglingAssignee(t *testing.T) {
	state := Normalize(samplePayload())
	delete(state.UsersByID, 3)

	got := Denormalize(state)

	assert.Nil(t, got.Columns[1].Cards[0].Assignee)
	_, ok := state.Assignee("T-3")
	assert.False(t, ok)
}

func TestValidate(t *testing.T) {
	t.Run("column order references missing column", func(t *testing.T) {
		state := Normalize(samplePayload())
		state.ColumnOrder = append(state.ColumnOrder, "ghost")
		assert.ErrorIs(t, state.Validate(), ErrInvariant)
	})

	t.Run("card id without entry", func(t *testing.T) {
		state := Normalize(samplePayload())
		col := state.ColumnsByID["c3"]
		col.CardIDs = []string{"missing"}
		state.ColumnsByID["c3"] = col
		assert.ErrorIs(t, state.Validate(), ErrInvariant)
	})

	t.Run("card in two columns", func(t *testing.T) {
		state := Normalize(samplePayload())
		col := state.ColumnsByID["c3"]
		col.CardIDs = []string{"T-1"}
		state.ColumnsByID["c3"] = col
		assert.ErrorIs(t, state.Validate(), ErrInvariant)
	})
}

func TestCardPatch_Apply(t *testing.T) {
	card := CardEntry{ID: "T-1", Title: "old", AssigneeID: IntPtr(2)}

	assert.Equal(t, "new", CardPatch{Title: StringPtr("new")}.Apply(card).Title)
	assert.Equal(t, IntPtr(2), CardPatch{Title: StringPtr("new")}.Apply(card).AssigneeID)
	assert.Nil(t, Unassign().Apply(card).AssigneeID)
	assert.Equal(t, IntPtr(5), AssignTo(5).Apply(card).AssigneeID)
}

func TestMergeUser(t *testing.T) {
	prev := User{ID: 1, Name: "Ana", Description: "dev", AvatarURL: "a.png"}

	merged := MergeUser(prev, User{ID: 1, Name: "Ana B."})

	assert.Equal(t, User{ID: 1, Name: "Ana B.", Description: "dev", AvatarURL: "a.png"}, merged)
}
