// Package database is the user-facing façade: it maps Table/Row DTOs to
// the cursor's stored descriptors, evaluates filters (full scan or
// index-accelerated), and keeps the indexer in sync with every mutation.
package database

import (
	"fmt"
	"log/slog"

	"github.com/leengari/offsetkv/internal/filter"
	"github.com/leengari/offsetkv/internal/index"
	"github.com/leengari/offsetkv/internal/storage/cursor"
)

// Table is the user-level view of a stored table descriptor.
type Table struct {
	Name    string
	Keys    []cursor.KeyColumn
	Indexes []string
}

// Row is the user-level view of a stored row: column name to value.
type Row struct {
	Data map[string]any
}

// Database wraps a cursor and an indexer behind the operations the REPL
// (and any other consumer) needs.
type Database struct {
	cursor *cursor.Cursor
	index  *index.Indexer
	logger *slog.Logger
}

// Open opens (or creates) the data file at path and bootstraps its index,
// loading the sidecar if present and falling back to a full rebuild
// otherwise.
func Open(path string, logger *slog.Logger) (*Database, error) {
	if logger == nil {
		logger = slog.Default()
	}
	c, err := cursor.Open(path, logger)
	if err != nil {
		return nil, err
	}
	ix := index.New(c, logger)
	if err := ix.LoadOrRebuild(); err != nil {
		c.Close()
		return nil, fmt.Errorf("database: bootstrap index: %w", err)
	}
	return &Database{cursor: c, index: ix, logger: logger}, nil
}

// Close flushes the index sidecar and releases the data file handle. The
// index lives entirely in memory otherwise and is only durable after this
// call (or an explicit Flush) succeeds.
func (d *Database) Close() error {
	if err := d.index.Save(); err != nil {
		d.logger.Error("failed to save index sidecar on close", "error", err)
	}
	return d.cursor.Close()
}

// Flush persists the index sidecar without closing the data file.
func (d *Database) Flush() error {
	return d.index.Save()
}

func tableFromMeta(m cursor.MetaTable) Table {
	return Table{Name: m.Name, Keys: m.Keys, Indexes: m.Indexes}
}

func rowFromMeta(m cursor.MetaRow) Row {
	return Row{Data: m.Data}
}

// ListTables returns every table descriptor, in chain (insertion) order.
func (d *Database) ListTables() ([]Table, error) {
	entries, err := d.cursor.ReadAllTables()
	if err != nil {
		return nil, err
	}
	out := make([]Table, len(entries))
	for i, e := range entries {
		out[i] = tableFromMeta(e.Table)
	}
	return out, nil
}

// GetTable returns the descriptor for name.
func (d *Database) GetTable(name string) (Table, error) {
	m, err := d.cursor.GetTableByName(name)
	if err != nil {
		return Table{}, err
	}
	return tableFromMeta(m), nil
}

// CreateTable writes a new table descriptor (empty indexes, empty row
// list) and registers it with the indexer.
func (d *Database) CreateTable(name string, keys []cursor.KeyColumn) error {
	for _, k := range keys {
		if !k.Type.Valid() {
			return &cursor.SchemaMismatchError{Table: name, Err: fmt.Errorf("unknown column type %q for %q", k.Type, k.Name)}
		}
	}
	meta := cursor.MetaTable{Name: name, Keys: keys, Indexes: []string{}}
	if _, err := d.cursor.WriteTableMeta(meta); err != nil {
		return err
	}
	d.index.InitTable(name)
	d.logger.Info("table created", "name", name, "columns", len(keys))
	return nil
}

// CreateIndex adds column to table's indexes and builds it from a full
// scan of existing rows.
func (d *Database) CreateIndex(tableName, column string) error {
	table, err := d.cursor.GetTableByName(tableName)
	if err != nil {
		return err
	}
	if !table.HasKey(column) {
		return &cursor.NotFoundError{Kind: "column", Name: column}
	}
	if table.HasIndex(column) {
		return fmt.Errorf("index for column %q already exists on table %q", column, tableName)
	}

	updated := table.Copy()
	updated.Indexes = append(updated.Indexes, column)
	if err := d.cursor.OverrideTableMeta(updated, tableName); err != nil {
		return err
	}
	if err := d.index.BuildForTableKey(tableName, column); err != nil {
		return err
	}
	d.logger.Info("index created", "table", tableName, "column", column)
	return nil
}

// Insert validates and appends row to table, then updates every index on
// that table.
func (d *Database) Insert(tableName string, data map[string]any) error {
	table, err := d.cursor.GetTableByName(tableName)
	if err != nil {
		return err
	}
	metaRow, offset, err := d.cursor.WriteRowMeta(tableName, cursor.MetaRow{Data: data})
	if err != nil {
		return err
	}
	d.index.AddItem(table, metaRow, offset)
	return nil
}

// convertFilterPart coerces every value in part to its column's declared
// DbType, so that "1" and 1 compare equal against an int column.
func (d *Database) convertFilterPart(table cursor.MetaTable, part filter.FilterPart) (filter.FilterPart, error) {
	out := make(filter.FilterPart, len(part))
	for key, val := range part {
		if !table.HasKey(key) {
			return nil, &cursor.NotFoundError{Kind: "column", Name: key}
		}
		if list, ok := val.([]any); ok {
			converted := make([]any, len(list))
			for i, v := range list {
				cv, err := d.cursor.ConvertDBTypeValue(table, key, v)
				if err != nil {
					return nil, err
				}
				converted[i] = cv
			}
			out[key] = converted
		} else {
			cv, err := d.cursor.ConvertDBTypeValue(table, key, val)
			if err != nil {
				return nil, err
			}
			out[key] = cv
		}
	}
	return out, nil
}

// coerceRowData re-applies each column's declared DbType to a row decoded
// off disk. Decoding goes through encoding/json's UseNumber mode, so an int
// column comes back as json.Number rather than int64; without this step a
// full-scan filter's coerced int64 literal would never compare equal to the
// row's json.Number value even though both represent the same number.
func coerceRowData(table cursor.MetaTable, data map[string]any) map[string]any {
	keyMap := table.KeyMap()
	out := make(map[string]any, len(data))
	for key, val := range data {
		declaredType, ok := keyMap[key]
		if !ok {
			out[key] = val
			continue
		}
		converted, err := declaredType.Convert(val)
		if err != nil {
			out[key] = val
			continue
		}
		out[key] = converted
	}
	return out
}

func (d *Database) convertFilter(table cursor.MetaTable, f filter.Filter) (filter.Filter, error) {
	if f.Empty() {
		return f, nil
	}
	parts := make([]filter.FilterPart, 0, len(f.Parts()))
	for _, part := range f.Parts() {
		converted, err := d.convertFilterPart(table, part)
		if err != nil {
			return filter.Filter{}, err
		}
		parts = append(parts, converted)
	}
	return filter.New(parts...), nil
}

// RowIterator yields rows one at a time. Call Next until it returns false;
// Err reports whether iteration stopped due to an error.
type RowIterator struct {
	next func() (Row, bool)
	err  error
}

// Next advances the iterator and reports whether a row is available.
func (it *RowIterator) Next() (Row, bool) {
	if it.err != nil {
		return Row{}, false
	}
	return it.next()
}

// Err returns any error encountered during iteration.
func (it *RowIterator) Err() error { return it.err }

// IterateRows performs a sequential scan of tableName from
// first_row_offset, applying f as a full-scan predicate (OR-of-ANDs,
// empty filter matches everything).
func (d *Database) IterateRows(tableName string, f filter.Filter) (*RowIterator, error) {
	table, err := d.cursor.GetTableByName(tableName)
	if err != nil {
		return nil, err
	}
	convertedFilter, err := d.convertFilter(table, f)
	if err != nil {
		return nil, err
	}

	it := &RowIterator{}
	offset := table.FirstRowOffset
	it.next = func() (Row, bool) {
		for offset != 0 {
			row, err := d.cursor.ReadRowMeta(offset)
			if err != nil {
				it.err = err
				return Row{}, false
			}
			offset = row.NextRowOffset
			row.Data = coerceRowData(table, row.Data)
			if convertedFilter.Matches(row.Data) {
				return rowFromMeta(row), true
			}
		}
		return Row{}, false
	}
	return it, nil
}

// IterateRowsUseIndex performs an index-accelerated lookup; f must be
// non-empty and reference only indexed columns.
func (d *Database) IterateRowsUseIndex(tableName string, f filter.Filter) (*RowIterator, error) {
	table, err := d.cursor.GetTableByName(tableName)
	if err != nil {
		return nil, err
	}
	convertedFilter, err := d.convertFilter(table, f)
	if err != nil {
		return nil, err
	}
	offsets, err := d.index.GetFilterOffsets(table, convertedFilter)
	if err != nil {
		return nil, err
	}

	i := 0
	it := &RowIterator{}
	it.next = func() (Row, bool) {
		if i >= len(offsets) {
			return Row{}, false
		}
		row, err := d.cursor.ReadRowMeta(offsets[i])
		i++
		if err != nil {
			it.err = err
			return Row{}, false
		}
		row.Data = coerceRowData(table, row.Data)
		return rowFromMeta(row), true
	}
	return it, nil
}
