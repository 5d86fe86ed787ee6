// Package cursor implements the on-disk storage engine: it owns the
// database file, reads and writes the header, the doubly-linked table
// directory, and each table's doubly-linked row list, and performs
// relocate-on-overflow when a record's encoded size outgrows its 512-byte
// slot.
//
// Records are never deleted and relocated slots are never reclaimed; this
// mirrors the original design's accepted non-goal (no free-list, no
// compaction, no crash recovery).
package cursor

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/leengari/offsetkv/internal/storage/codec"
)

// tableEntry is the in-memory cache of a table descriptor and the offset
// it currently lives at.
type tableEntry struct {
	meta   MetaTable
	offset uint64
}

// Cursor owns a single data file for its lifetime.
type Cursor struct {
	path   string
	file   *os.File
	logger *slog.Logger

	dbMeta MetaDB
	tables map[string]tableEntry
}

// Open opens path, creating it (and its parent directories) with a fresh
// header if it does not exist. An existing file whose magic prefix does
// not match, or whose header cannot be decoded, is reported as
// IncorrectDatabaseError.
func Open(path string, logger *slog.Logger) (*Cursor, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("cursor: create parent directories: %w", err)
		}
	}

	_, statErr := os.Stat(path)
	fresh := os.IsNotExist(statErr)

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("cursor: open %q: %w", path, err)
	}

	c := &Cursor{path: path, file: f, logger: logger, tables: make(map[string]tableEntry)}

	if fresh {
		now := time.Now().UTC()
		c.dbMeta = MetaDB{Created: now, Updated: now}
		if err := c.writeDBMeta(c.dbMeta); err != nil {
			f.Close()
			return nil, err
		}
		c.logger.Info("created new database file", "path", path)
	} else {
		meta, err := c.readDBMeta()
		if err != nil {
			f.Close()
			return nil, &IncorrectDatabaseError{Path: path, Err: err}
		}
		c.dbMeta = meta
		if err := c.loadAllTables(); err != nil {
			f.Close()
			return nil, &IncorrectDatabaseError{Path: path, Err: err}
		}
		c.logger.Info("opened existing database file", "path", path, "tables", len(c.tables))
	}

	return c, nil
}

// Close releases the underlying file handle.
func (c *Cursor) Close() error {
	return c.file.Close()
}

// Path returns the data file path the cursor was opened with.
func (c *Cursor) Path() string { return c.path }

// DBMeta returns the current in-memory database header.
func (c *Cursor) DBMeta() MetaDB { return c.dbMeta }

func (c *Cursor) currentOffset() (int64, error) {
	info, err := c.file.Stat()
	if err != nil {
		return 0, fmt.Errorf("cursor: stat: %w", err)
	}
	return info.Size(), nil
}

// readDBMeta validates the magic prefix and decodes the header.
func (c *Cursor) readDBMeta() (MetaDB, error) {
	prefix := make([]byte, len(codec.DBPrefix))
	if _, err := c.file.ReadAt(prefix, 0); err != nil {
		return MetaDB{}, fmt.Errorf("read magic prefix: %w", err)
	}
	if string(prefix) != codec.DBPrefix {
		return MetaDB{}, fmt.Errorf("magic prefix mismatch: got %q", prefix)
	}
	var meta MetaDB
	if err := codec.ReadSlot(c.file, int64(len(codec.DBPrefix)), &meta); err != nil {
		return MetaDB{}, fmt.Errorf("decode db header: %w", err)
	}
	return meta, nil
}

// writeDBMeta overwrites the header region (magic + buffered MetaDB slot).
// Always in-place.
func (c *Cursor) writeDBMeta(meta MetaDB) error {
	if _, err := c.file.WriteAt([]byte(codec.DBPrefix), 0); err != nil {
		return fmt.Errorf("cursor: write magic prefix: %w", err)
	}
	if err := codec.WriteSlot(c.file, int64(len(codec.DBPrefix)), meta, codec.MetaBufferSize); err != nil {
		return fmt.Errorf("cursor: write db header: %w", err)
	}
	return nil
}

// updateDBMeta writes meta and refreshes the in-memory copy.
func (c *Cursor) updateDBMeta(meta MetaDB) error {
	meta.Updated = time.Now().UTC()
	if err := c.writeDBMeta(meta); err != nil {
		return err
	}
	c.dbMeta = meta
	return nil
}

// ReadTableMeta decodes the table descriptor stored at offset.
func (c *Cursor) ReadTableMeta(offset uint64) (MetaTable, error) {
	var table MetaTable
	if err := codec.ReadSlot(c.file, int64(offset), &table); err != nil {
		return MetaTable{}, fmt.Errorf("cursor: read table meta at %d: %w", offset, err)
	}
	return table, nil
}

// ReadAllTables walks the table chain from the header and returns every
// live table with its offset, in chain order.
func (c *Cursor) ReadAllTables() ([]TableEntry, error) {
	var out []TableEntry
	offset := c.dbMeta.FirstTableOffset
	for offset != 0 {
		table, err := c.ReadTableMeta(offset)
		if err != nil {
			return nil, err
		}
		out = append(out, TableEntry{Table: table, Offset: offset})
		offset = table.NextTableOffset
	}
	return out, nil
}

// TableEntry pairs a table descriptor with the offset it lives at.
type TableEntry struct {
	Table  MetaTable
	Offset uint64
}

func (c *Cursor) loadAllTables() error {
	entries, err := c.ReadAllTables()
	if err != nil {
		return err
	}
	c.tables = make(map[string]tableEntry, len(entries))
	for _, e := range entries {
		c.tables[e.Table.Name] = tableEntry{meta: e.Table, offset: e.Offset}
	}
	return nil
}

// HasTable reports whether name is a known table.
func (c *Cursor) HasTable(name string) bool {
	_, ok := c.tables[name]
	return ok
}

// GetTableByName returns the cached descriptor for name.
func (c *Cursor) GetTableByName(name string) (MetaTable, error) {
	entry, ok := c.tables[name]
	if !ok {
		return MetaTable{}, &NotFoundError{Kind: "table", Name: name}
	}
	return entry.meta, nil
}

// GetCachedTableByOffset finds the table currently cached at offset.
func (c *Cursor) GetCachedTableByOffset(offset uint64) (MetaTable, error) {
	for _, entry := range c.tables {
		if entry.offset == offset {
			return entry.meta, nil
		}
	}
	return MetaTable{}, &UnknownOffsetError{Offset: offset}
}

func (c *Cursor) updateTableCache(table MetaTable, offset uint64) {
	c.tables[table.Name] = tableEntry{meta: table, offset: offset}
}

// WriteTableMeta appends a new table descriptor at the file tail, links
// it after the current last table (if any), and updates the database
// header's first/last table offsets.
func (c *Cursor) WriteTableMeta(table MetaTable) (uint64, error) {
	if c.HasTable(table.Name) {
		return 0, &DuplicateNameError{Name: table.Name}
	}

	offset, err := c.currentOffset()
	if err != nil {
		return 0, err
	}
	table.NextTableOffset = 0
	table.PrevTableOffset = c.dbMeta.LastTableOffset
	if err := codec.WriteSlot(c.file, offset, table, codec.MetaBufferSize); err != nil {
		return 0, fmt.Errorf("cursor: write table meta: %w", err)
	}
	c.updateTableCache(table, uint64(offset))

	if c.dbMeta.LastTableOffset != 0 {
		lastTable, err := c.GetCachedTableByOffset(c.dbMeta.LastTableOffset)
		if err != nil {
			return 0, err
		}
		updated := lastTable.Copy()
		updated.NextTableOffset = uint64(offset)
		if err := c.OverrideTableMeta(updated, lastTable.Name); err != nil {
			return 0, err
		}

		dbMeta := c.dbMeta
		dbMeta.LastTableOffset = uint64(offset)
		if err := c.updateDBMeta(dbMeta); err != nil {
			return 0, err
		}
	}

	if c.dbMeta.FirstTableOffset == 0 {
		dbMeta := c.dbMeta
		dbMeta.FirstTableOffset = uint64(offset)
		dbMeta.LastTableOffset = uint64(offset)
		if err := c.updateDBMeta(dbMeta); err != nil {
			return 0, err
		}
	}

	c.logger.Debug("table written", "name", table.Name, "offset", offset)
	return uint64(offset), nil
}

// OverrideTableMeta is the central update-in-place/relocate algorithm for
// table descriptors. overrideName identifies the currently-cached table
// being replaced (table.Name may differ from overrideName only when the
// rename itself doesn't collide with an existing table).
func (c *Cursor) OverrideTableMeta(table MetaTable, overrideName string) error {
	oldEntry, ok := c.tables[overrideName]
	if !ok {
		return &NotFoundError{Kind: "table", Name: overrideName}
	}
	oldMeta, offset := oldEntry.meta, oldEntry.offset

	if table.Name != oldMeta.Name && c.HasTable(table.Name) {
		return &DuplicateNameError{Name: table.Name}
	}

	_, encErr := codec.EncodeSlot(table, codec.MetaBufferSize)
	if encErr == nil {
		if werr := codec.WriteSlot(c.file, int64(offset), table, codec.MetaBufferSize); werr != nil {
			return fmt.Errorf("cursor: override table meta in place: %w", werr)
		}
		c.updateTableCache(table, offset)
		return nil
	}

	// Relocate: append the new encoding at the tail and rewire neighbors.
	newOffset, err := c.currentOffset()
	if err != nil {
		return err
	}
	if err := codec.WriteSlotOverflow(c.file, newOffset, table, codec.MetaBufferSize); err != nil {
		return fmt.Errorf("cursor: write relocated table meta: %w", err)
	}
	c.updateTableCache(table, uint64(newOffset))
	c.logger.Debug("table relocated", "name", table.Name, "old_offset", offset, "new_offset", newOffset)

	if oldMeta.HasPrev() {
		prev, err := c.ReadTableMeta(oldMeta.PrevTableOffset)
		if err != nil {
			return err
		}
		updated := prev.Copy()
		updated.NextTableOffset = uint64(newOffset)
		if err := c.OverrideTableMeta(updated, prev.Name); err != nil {
			return err
		}
	}

	if oldMeta.HasNext() {
		next, err := c.ReadTableMeta(oldMeta.NextTableOffset)
		if err != nil {
			return err
		}
		updated := next.Copy()
		updated.PrevTableOffset = uint64(newOffset)
		if err := c.OverrideTableMeta(updated, next.Name); err != nil {
			return err
		}
	}

	if !oldMeta.HasPrev() {
		dbMeta := c.dbMeta
		dbMeta.FirstTableOffset = uint64(newOffset)
		if err := c.updateDBMeta(dbMeta); err != nil {
			return err
		}
	}

	if c.dbMeta.LastTableOffset == offset {
		dbMeta := c.dbMeta
		dbMeta.LastTableOffset = uint64(newOffset)
		if err := c.updateDBMeta(dbMeta); err != nil {
			return err
		}
	}

	return nil
}

// ReadRowMeta decodes the row descriptor stored at offset.
func (c *Cursor) ReadRowMeta(offset uint64) (MetaRow, error) {
	var row MetaRow
	if err := codec.ReadSlot(c.file, int64(offset), &row); err != nil {
		return MetaRow{}, fmt.Errorf("cursor: read row meta at %d: %w", offset, err)
	}
	return row, nil
}

// preprocessRowData validates row.Data against table's declared columns
// and coerces every value to its declared DbType.
func (c *Cursor) preprocessRowData(table MetaTable, row MetaRow) (MetaRow, error) {
	keyMap := table.KeyMap()
	if len(row.Data) != len(keyMap) {
		return MetaRow{}, &SchemaMismatchError{Table: table.Name, Err: fmt.Errorf("expected %d columns, got %d", len(keyMap), len(row.Data))}
	}
	data := make(map[string]any, len(row.Data))
	for key, declaredType := range keyMap {
		val, ok := row.Data[key]
		if !ok {
			return MetaRow{}, &SchemaMismatchError{Table: table.Name, Err: fmt.Errorf("missing column %q", key)}
		}
		converted, err := declaredType.Convert(val)
		if err != nil {
			return MetaRow{}, &SchemaMismatchError{Table: table.Name, Err: fmt.Errorf("column %q: %w", key, err)}
		}
		data[key] = converted
	}
	for key := range row.Data {
		if _, ok := keyMap[key]; !ok {
			return MetaRow{}, &SchemaMismatchError{Table: table.Name, Err: fmt.Errorf("unknown column %q", key)}
		}
	}
	out := row.Copy()
	out.Data = data
	return out, nil
}

// ConvertDBTypeValue coerces val to the declared type of key in table,
// for use by callers (the façade) normalizing filter literals before
// comparison.
func (c *Cursor) ConvertDBTypeValue(table MetaTable, key string, val any) (any, error) {
	declaredType, ok := table.KeyMap()[key]
	if !ok {
		return nil, &NotFoundError{Kind: "column", Name: key}
	}
	return declaredType.Convert(val)
}

// WriteRowMeta validates and appends row to the tail of tableName's row
// chain, rewiring the previous tail's next-pointer and the table's
// first/last row offsets.
func (c *Cursor) WriteRowMeta(tableName string, row MetaRow) (MetaRow, uint64, error) {
	table, err := c.GetTableByName(tableName)
	if err != nil {
		return MetaRow{}, 0, err
	}

	row, err = c.preprocessRowData(table, row)
	if err != nil {
		return MetaRow{}, 0, err
	}
	row.NextRowOffset = 0

	offset, err := c.currentOffset()
	if err != nil {
		return MetaRow{}, 0, err
	}

	if table.LastRowOffset != 0 {
		row.PrevRowOffset = table.LastRowOffset
		lastRow, err := c.ReadRowMeta(table.LastRowOffset)
		if err != nil {
			return MetaRow{}, 0, err
		}
		updated := lastRow.Copy()
		updated.NextRowOffset = uint64(offset)
		if err := c.OverrideRowMeta(tableName, updated, table.LastRowOffset); err != nil {
			return MetaRow{}, 0, err
		}
	}

	if err := codec.WriteSlot(c.file, offset, row, codec.MetaBufferSize); err != nil {
		return MetaRow{}, 0, fmt.Errorf("cursor: write row meta: %w", err)
	}

	updatedTable := table.Copy()
	if table.FirstRowOffset == 0 {
		updatedTable.FirstRowOffset = uint64(offset)
	}
	updatedTable.LastRowOffset = uint64(offset)
	if err := c.OverrideTableMeta(updatedTable, tableName); err != nil {
		return MetaRow{}, 0, err
	}

	c.logger.Debug("row written", "table", tableName, "offset", offset)
	return row, uint64(offset), nil
}

// OverrideRowMeta is the central update-in-place/relocate algorithm for
// row descriptors within tableName's chain.
func (c *Cursor) OverrideRowMeta(tableName string, row MetaRow, overrideOffset uint64) error {
	table, err := c.GetTableByName(tableName)
	if err != nil {
		return err
	}
	row, err = c.preprocessRowData(table, row)
	if err != nil {
		return err
	}
	oldRow, err := c.ReadRowMeta(overrideOffset)
	if err != nil {
		return err
	}

	_, err = codec.EncodeSlot(row, codec.MetaBufferSize)
	if err == nil {
		if werr := codec.WriteSlot(c.file, int64(overrideOffset), row, codec.MetaBufferSize); werr != nil {
			return fmt.Errorf("cursor: override row meta in place: %w", werr)
		}
		return nil
	}

	newOffset, err := c.currentOffset()
	if err != nil {
		return err
	}
	if err := codec.WriteSlotOverflow(c.file, newOffset, row, codec.MetaBufferSize); err != nil {
		return fmt.Errorf("cursor: write relocated row meta: %w", err)
	}
	c.logger.Debug("row relocated", "table", tableName, "old_offset", overrideOffset, "new_offset", newOffset)

	if oldRow.HasPrev() {
		prev, err := c.ReadRowMeta(oldRow.PrevRowOffset)
		if err != nil {
			return err
		}
		updated := prev.Copy()
		updated.NextRowOffset = uint64(newOffset)
		if err := c.OverrideRowMeta(tableName, updated, oldRow.PrevRowOffset); err != nil {
			return err
		}
	}

	if oldRow.HasNext() {
		next, err := c.ReadRowMeta(oldRow.NextRowOffset)
		if err != nil {
			return err
		}
		updated := next.Copy()
		updated.PrevRowOffset = uint64(newOffset)
		if err := c.OverrideRowMeta(tableName, updated, oldRow.NextRowOffset); err != nil {
			return err
		}
	}

	// Re-read the table: a neighbor override above may have relocated it.
	table, err = c.GetTableByName(tableName)
	if err != nil {
		return err
	}
	if table.FirstRowOffset == overrideOffset {
		updated := table.Copy()
		updated.FirstRowOffset = uint64(newOffset)
		if err := c.OverrideTableMeta(updated, tableName); err != nil {
			return err
		}
	}
	table, err = c.GetTableByName(tableName)
	if err != nil {
		return err
	}
	if table.LastRowOffset == overrideOffset {
		updated := table.Copy()
		updated.LastRowOffset = uint64(newOffset)
		if err := c.OverrideTableMeta(updated, tableName); err != nil {
			return err
		}
	}

	return nil
}
