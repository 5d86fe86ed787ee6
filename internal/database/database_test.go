package database

import (
	"path/filepath"
	"testing"

	"gotest.tools/v3/assert"

	"github.com/leengari/offsetkv/internal/filter"
	"github.com/leengari/offsetkv/internal/storage/cursor"
)

func newTestDB(t *testing.T) *Database {
	t.Helper()
	path := filepath.Join(t.TempDir(), "t.db")
	db, err := Open(path, nil)
	assert.NilError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func collect(t *testing.T, it *RowIterator) []Row {
	t.Helper()
	var out []Row
	for {
		row, ok := it.Next()
		if !ok {
			break
		}
		out = append(out, row)
	}
	assert.NilError(t, it.Err())
	return out
}

func seedPeople(t *testing.T, db *Database) {
	t.Helper()
	assert.NilError(t, db.CreateTable("people", []cursor.KeyColumn{
		{Name: "id", Type: cursor.DbTypeStr},
		{Name: "content", Type: cursor.DbTypeInt},
	}))
	assert.NilError(t, db.Insert("people", map[string]any{"id": "aaa", "content": int64(1)}))
	assert.NilError(t, db.Insert("people", map[string]any{"id": "bbb", "content": int64(1)}))
}

func TestIterateRowsFilterVariants(t *testing.T) {
	db := newTestDB(t)
	seedPeople(t, db)

	cases := []struct {
		name string
		f    filter.Filter
		want int
	}{
		{"scalar match", filter.New(filter.FilterPart{"id": "aaa"}), 1},
		{"scalar no match", filter.New(filter.FilterPart{"id": "ccc"}), 0},
		{"or of parts", filter.New(filter.FilterPart{"id": "aaa"}, filter.FilterPart{"id": "bbb"}), 2},
		{"list membership", filter.New(filter.FilterPart{"id": []any{"aaa", "bbb"}}), 2},
		{"empty filter matches all", filter.New(), 2},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			it, err := db.IterateRows("people", tc.f)
			assert.NilError(t, err)
			rows := collect(t, it)
			assert.Equal(t, len(rows), tc.want)
		})
	}
}

func TestFilterValueCoercion(t *testing.T) {
	db := newTestDB(t)
	seedPeople(t, db)

	it, err := db.IterateRows("people", filter.New(filter.FilterPart{"content": "1"}))
	assert.NilError(t, err)
	rows := collect(t, it)
	assert.Equal(t, len(rows), 2)
}

func TestCreateIndexAndIndexedLookup(t *testing.T) {
	db := newTestDB(t)
	seedPeople(t, db)
	assert.NilError(t, db.CreateIndex("people", "id"))

	it, err := db.IterateRowsUseIndex("people", filter.New(filter.FilterPart{"id": "aaa"}))
	assert.NilError(t, err)
	rows := collect(t, it)
	assert.Equal(t, len(rows), 1)
	assert.Equal(t, rows[0].Data["id"], "aaa")
}

func TestIterateRowsUseIndexRequiresNonEmptyFilter(t *testing.T) {
	db := newTestDB(t)
	seedPeople(t, db)
	assert.NilError(t, db.CreateIndex("people", "id"))

	_, err := db.IterateRowsUseIndex("people", filter.New())
	assert.ErrorContains(t, err, "invalid filter")
}

func TestInsertRejectsUnknownColumn(t *testing.T) {
	db := newTestDB(t)
	seedPeople(t, db)
	err := db.Insert("people", map[string]any{"id": "zzz", "nope": int64(1)})
	assert.ErrorType(t, err, (*cursor.SchemaMismatchError)(nil))
}
