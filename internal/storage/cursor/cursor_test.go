package cursor

import (
	"path/filepath"
	"strings"
	"testing"

	"gotest.tools/v3/assert"
)

func open(t *testing.T, name string) *Cursor {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	c, err := Open(path, nil)
	assert.NilError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestCreatePersistReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "t.db")

	c, err := Open(path, nil)
	assert.NilError(t, err)
	meta := c.DBMeta()
	assert.Equal(t, meta.FirstTableOffset, uint64(0))
	assert.Equal(t, meta.LastTableOffset, uint64(0))
	assert.Equal(t, meta.Created, meta.Updated)
	c.Close()

	c2, err := Open(path, nil)
	assert.NilError(t, err)
	defer c2.Close()
	assert.DeepEqual(t, c2.DBMeta(), meta)
}

func TestTwoTablesOrderPreserved(t *testing.T) {
	c := open(t, "t.db")

	t1 := MetaTable{Name: "A", Keys: []KeyColumn{{Name: "id", Type: DbTypeStr}, {Name: "content", Type: DbTypeInt}}, Indexes: []string{}}
	off1, err := c.WriteTableMeta(t1)
	assert.NilError(t, err)

	t2 := MetaTable{Name: "B", Keys: []KeyColumn{{Name: "idx", Type: DbTypeStr}, {Name: "contentx", Type: DbTypeInt}, {Name: "column", Type: DbTypeInt}}, Indexes: []string{}}
	off2, err := c.WriteTableMeta(t2)
	assert.NilError(t, err)

	entries, err := c.ReadAllTables()
	assert.NilError(t, err)
	assert.Equal(t, len(entries), 2)
	assert.Equal(t, entries[0].Table.Name, "A")
	assert.Equal(t, entries[1].Table.Name, "B")

	assert.Equal(t, c.DBMeta().FirstTableOffset, off1)
	assert.Equal(t, c.DBMeta().LastTableOffset, off2)
}

func TestTwoRowsDoublyLinked(t *testing.T) {
	c := open(t, "t.db")
	table := MetaTable{Name: "A", Keys: []KeyColumn{{Name: "id", Type: DbTypeStr}, {Name: "content", Type: DbTypeInt}}, Indexes: []string{}}
	_, err := c.WriteTableMeta(table)
	assert.NilError(t, err)

	_, _, err = c.WriteRowMeta("A", MetaRow{Data: map[string]any{"id": "aaa", "content": int64(1)}})
	assert.NilError(t, err)
	_, _, err = c.WriteRowMeta("A", MetaRow{Data: map[string]any{"id": "bbb", "content": int64(2)}})
	assert.NilError(t, err)

	updated, err := c.GetTableByName("A")
	assert.NilError(t, err)

	first, err := c.ReadRowMeta(updated.FirstRowOffset)
	assert.NilError(t, err)
	assert.Equal(t, first.PrevRowOffset, uint64(0))
	assert.Equal(t, first.NextRowOffset, updated.LastRowOffset)

	last, err := c.ReadRowMeta(first.NextRowOffset)
	assert.NilError(t, err)
	assert.Equal(t, last.PrevRowOffset, updated.FirstRowOffset)
	assert.Equal(t, last.NextRowOffset, uint64(0))
}

func TestOverrideTableMetaRelocatesWhenOversized(t *testing.T) {
	c := open(t, "t.db")
	table := MetaTable{Name: "A", Keys: []KeyColumn{{Name: "id", Type: DbTypeStr}}, Indexes: []string{}}
	offA, err := c.WriteTableMeta(table)
	assert.NilError(t, err)
	tableB := MetaTable{Name: "B", Keys: []KeyColumn{{Name: "id", Type: DbTypeStr}}, Indexes: []string{}}
	offB, err := c.WriteTableMeta(tableB)
	assert.NilError(t, err)

	a, err := c.GetTableByName("A")
	assert.NilError(t, err)
	updated := a.Copy()
	updated.Indexes = append(updated.Indexes, strings.Repeat("x", 400))
	assert.NilError(t, c.OverrideTableMeta(updated, "A"))

	movedA, err := c.GetTableByName("A")
	assert.NilError(t, err)

	b, err := c.ReadTableMeta(offB)
	assert.NilError(t, err)
	assert.Assert(t, b.PrevTableOffset != offA)

	movedEntries, err := c.ReadAllTables()
	assert.NilError(t, err)
	assert.Equal(t, len(movedEntries), 2)
	assert.Equal(t, movedEntries[0].Table.Name, "A")
	assert.Equal(t, movedEntries[1].Table.Name, "B")
	assert.Equal(t, c.DBMeta().LastTableOffset, offB)
	assert.Equal(t, movedA.NextTableOffset, offB)
}

func TestWriteRowMetaRejectsSchemaMismatch(t *testing.T) {
	c := open(t, "t.db")
	table := MetaTable{Name: "A", Keys: []KeyColumn{{Name: "id", Type: DbTypeStr}}, Indexes: []string{}}
	_, err := c.WriteTableMeta(table)
	assert.NilError(t, err)

	_, _, err = c.WriteRowMeta("A", MetaRow{Data: map[string]any{"id": "aaa", "extra": "nope"}})
	assert.ErrorType(t, err, (*SchemaMismatchError)(nil))
}

func TestWriteTableMetaRejectsDuplicateName(t *testing.T) {
	c := open(t, "t.db")
	table := MetaTable{Name: "A", Keys: []KeyColumn{{Name: "id", Type: DbTypeStr}}, Indexes: []string{}}
	_, err := c.WriteTableMeta(table)
	assert.NilError(t, err)

	_, err = c.WriteTableMeta(table)
	assert.ErrorType(t, err, (*DuplicateNameError)(nil))
}
