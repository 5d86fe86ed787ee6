package index

import (
	"os"
	"path/filepath"
	"sort"
	"testing"

	"gotest.tools/v3/assert"

	"github.com/leengari/offsetkv/internal/filter"
	"github.com/leengari/offsetkv/internal/storage/cursor"
)

func newTestCursor(t *testing.T) *cursor.Cursor {
	t.Helper()
	path := filepath.Join(t.TempDir(), "t.db")
	c, err := cursor.Open(path, nil)
	assert.NilError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func seedTable(t *testing.T, c *cursor.Cursor) cursor.MetaTable {
	t.Helper()
	table := cursor.MetaTable{
		Name:    "people",
		Keys:    []cursor.KeyColumn{{Name: "id", Type: cursor.DbTypeStr}, {Name: "content", Type: cursor.DbTypeInt}},
		Indexes: []string{"id"},
	}
	_, err := c.WriteTableMeta(table)
	assert.NilError(t, err)
	return table
}

func TestHashIsDeterministic(t *testing.T) {
	assert.Equal(t, Hash("aaa"), Hash("aaa"))
	assert.Assert(t, Hash("aaa") != Hash("bbb"))
}

func TestBuildForTableAndGetOffsetsFor(t *testing.T) {
	c := newTestCursor(t)
	table := seedTable(t, c)

	_, off1, err := c.WriteRowMeta("people", cursor.MetaRow{Data: map[string]any{"id": "aaa", "content": int64(1)}})
	assert.NilError(t, err)
	_, off2, err := c.WriteRowMeta("people", cursor.MetaRow{Data: map[string]any{"id": "bbb", "content": int64(1)}})
	assert.NilError(t, err)

	ix := New(c, nil)
	assert.NilError(t, ix.BuildForTable("people"))

	offsets, err := ix.GetOffsetsFor(table, "id", "aaa")
	assert.NilError(t, err)
	assert.DeepEqual(t, offsets, []uint64{off1})

	offsets, err = ix.GetOffsetsFor(table, "id", "bbb")
	assert.NilError(t, err)
	assert.DeepEqual(t, offsets, []uint64{off2})
}

func TestGetOffsetsForMissingIndex(t *testing.T) {
	c := newTestCursor(t)
	table := seedTable(t, c)
	ix := New(c, nil)
	_, err := ix.GetOffsetsFor(table, "content", 1)
	assert.ErrorType(t, err, (*MissingIndexError)(nil))
}

func TestGetFilterOffsetsUnionAndIntersection(t *testing.T) {
	c := newTestCursor(t)
	table := cursor.MetaTable{
		Name:    "people",
		Keys:    []cursor.KeyColumn{{Name: "id", Type: cursor.DbTypeStr}, {Name: "content", Type: cursor.DbTypeInt}},
		Indexes: []string{"id", "content"},
	}
	_, err := c.WriteTableMeta(table)
	assert.NilError(t, err)

	_, offAAA, err := c.WriteRowMeta("people", cursor.MetaRow{Data: map[string]any{"id": "aaa", "content": int64(1)}})
	assert.NilError(t, err)
	_, offBBB, err := c.WriteRowMeta("people", cursor.MetaRow{Data: map[string]any{"id": "bbb", "content": int64(1)}})
	assert.NilError(t, err)

	ix := New(c, nil)
	assert.NilError(t, ix.BuildForDatabase())
	table, err = c.GetTableByName("people")
	assert.NilError(t, err)

	// AND within a part: id=aaa AND content=1 -> just offAAA.
	offsets, err := ix.GetFilterOffsets(table, filter.New(filter.FilterPart{"id": "aaa", "content": int64(1)}))
	assert.NilError(t, err)
	assert.DeepEqual(t, offsets, []uint64{offAAA})

	// OR across parts: id=aaa OR id=bbb -> both, sorted.
	offsets, err = ix.GetFilterOffsets(table, filter.New(filter.FilterPart{"id": "aaa"}, filter.FilterPart{"id": "bbb"}))
	assert.NilError(t, err)
	sort.Slice(offsets, func(i, j int) bool { return offsets[i] < offsets[j] })
	assert.DeepEqual(t, offsets, sortedOffsets(offAAA, offBBB))
}

func sortedOffsets(a, b uint64) []uint64 {
	out := []uint64{a, b}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func TestGetFilterOffsetsRejectsEmptyFilter(t *testing.T) {
	c := newTestCursor(t)
	table := seedTable(t, c)
	ix := New(c, nil)
	_, err := ix.GetFilterOffsets(table, filter.New())
	assert.ErrorType(t, err, (*InvalidFilterError)(nil))
}

func TestLoadOrRebuildFallsBackOnMissingSidecar(t *testing.T) {
	c := newTestCursor(t)
	seedTable(t, c)
	_, _, err := c.WriteRowMeta("people", cursor.MetaRow{Data: map[string]any{"id": "aaa", "content": int64(1)}})
	assert.NilError(t, err)

	ix := New(c, nil)
	assert.NilError(t, ix.LoadOrRebuild())
	assert.NilError(t, ix.Save())

	assert.NilError(t, os.Remove(ix.sidecarPath()))

	ix2 := New(c, nil)
	assert.NilError(t, ix2.LoadOrRebuild())

	table, err := c.GetTableByName("people")
	assert.NilError(t, err)
	offsets, err := ix2.GetOffsetsFor(table, "id", "aaa")
	assert.NilError(t, err)
	assert.Equal(t, len(offsets), 1)
}
