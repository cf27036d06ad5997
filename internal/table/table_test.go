package table

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"calclient/internal/model"
)

func ids(events []model.Event) []int64 {
	out := make([]int64, 0, len(events))
	for _, e := range events {
		out = append(out, e.ID)
	}
	return out
}

func TestUpsertNewGrowsByOne(t *testing.T) {
	tbl := New[int64, model.Event]()

	assert.True(t, tbl.Upsert(model.Event{ID: 1, Name: "a"}))
	assert.True(t, tbl.Upsert(model.Event{ID: 2, Name: "b"}))
	assert.Equal(t, 2, tbl.Len())
}

func TestUpsertExistingReplacesInPlace(t *testing.T) {
	tbl := New[int64, model.Event]()
	tbl.Upsert(model.Event{ID: 1, Name: "a"})
	tbl.Upsert(model.Event{ID: 2, Name: "b"})
	tbl.Upsert(model.Event{ID: 3, Name: "c"})

	assert.False(t, tbl.Upsert(model.Event{ID: 2, Name: "b2"}))
	assert.Equal(t, 3, tbl.Len())
	assert.Equal(t, []int64{1, 2, 3}, ids(tbl.All()))

	got, ok := tbl.Get(2)
	require.True(t, ok)
	assert.Equal(t, "b2", got.Name)
}

func TestRemove(t *testing.T) {
	tbl := New[int64, model.Event]()
	for i := int64(1); i <= 4; i++ {
		tbl.Upsert(model.Event{ID: i})
	}

	removed, ok := tbl.Remove(2)
	require.True(t, ok)
	assert.Equal(t, int64(2), removed.ID)
	assert.Equal(t, []int64{1, 3, 4}, ids(tbl.All()))

	_, ok = tbl.Remove(2)
	assert.False(t, ok, "missing identity is not an error")

	// Index must still resolve the shifted records.
	got, ok := tbl.Get(4)
	require.True(t, ok)
	assert.Equal(t, int64(4), got.ID)
	assert.False(t, tbl.Upsert(model.Event{ID: 4, Name: "moved"}))
	assert.Equal(t, 3, tbl.Len())
}

func TestReplaceAllDeduplicates(t *testing.T) {
	tbl := New[int64, model.Schedule]()
	tbl.Upsert(model.Schedule{ID: 9})

	tbl.ReplaceAll([]model.Schedule{{ID: 1, Name: "old"}, {ID: 2}, {ID: 1, Name: "new"}})
	assert.Equal(t, 2, tbl.Len())
	_, ok := tbl.Get(9)
	assert.False(t, ok)

	got, _ := tbl.Get(1)
	assert.Equal(t, "new", got.Name)
}

func TestClear(t *testing.T) {
	tbl := New[int64, model.AccessLevel]()
	tbl.Upsert(model.AccessLevel{ID: 1})
	tbl.Clear()

	assert.Equal(t, 0, tbl.Len())
	_, ok := tbl.Get(1)
	assert.False(t, ok)
	assert.True(t, tbl.Upsert(model.AccessLevel{ID: 1}))
}
