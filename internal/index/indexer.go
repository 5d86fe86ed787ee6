// Package index maintains the in-memory hash index used to accelerate
// equality filters, and keeps it consistent with the cursor's data file
// via an on-disk sidecar.
package index

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sort"

	"github.com/leengari/offsetkv/internal/filter"
	"github.com/leengari/offsetkv/internal/storage/cursor"
)

// MissingIndexError is returned when a filter references a column that
// isn't indexed, during index-accelerated resolution.
type MissingIndexError struct {
	Table  string
	Column string
}

func (e *MissingIndexError) Error() string {
	return fmt.Sprintf("index for column %q does not exist on table %q", e.Column, e.Table)
}

// InvalidFilterError is returned when an empty filter is passed to
// index-accelerated resolution.
type InvalidFilterError struct {
	Reason string
}

func (e *InvalidFilterError) Error() string {
	return fmt.Sprintf("invalid filter: %s", e.Reason)
}

// buckets maps a hashed value to the row offsets sharing that hash.
type buckets map[string][]uint64

// Indexer maintains table → column → hash(value) → []offset.
type Indexer struct {
	cursor *cursor.Cursor
	logger *slog.Logger
	data   map[string]map[string]buckets
}

// New creates an indexer bound to c. It does not populate itself; call
// LoadOrRebuild to bootstrap it from the sidecar or a full scan.
func New(c *cursor.Cursor, logger *slog.Logger) *Indexer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Indexer{cursor: c, logger: logger, data: make(map[string]map[string]buckets)}
}

// Hash returns the hex-encoded MD5 digest of v's textual form. Collisions
// are tolerated: candidate offsets returned from a bucket are trusted
// without re-verifying against the original value.
func Hash(v any) string {
	sum := md5.Sum([]byte(fmt.Sprintf("%v", v)))
	return hex.EncodeToString(sum[:])
}

func (ix *Indexer) tableBuckets(table string) map[string]buckets {
	tb, ok := ix.data[table]
	if !ok {
		tb = make(map[string]buckets)
		ix.data[table] = tb
	}
	return tb
}

// addVal appends offset under table/column/hash(value), without
// duplicating an offset already present in that bucket.
func (ix *Indexer) addVal(table, column string, value any, offset uint64) {
	tb := ix.tableBuckets(table)
	cb, ok := tb[column]
	if !ok {
		cb = make(buckets)
		tb[column] = cb
	}
	h := Hash(value)
	for _, existing := range cb[h] {
		if existing == offset {
			return
		}
	}
	cb[h] = append(cb[h], offset)
}

// InitTable registers an (empty) index entry for a newly created table.
func (ix *Indexer) InitTable(tableName string) {
	ix.tableBuckets(tableName)
}

// AddItem indexes row (stored at offset) under every column table has an
// index for.
func (ix *Indexer) AddItem(table cursor.MetaTable, row cursor.MetaRow, offset uint64) {
	for _, column := range table.Indexes {
		ix.addVal(table.Name, column, row.Data[column], offset)
	}
}

// GetOffsetsFor returns the candidate row offsets for table.column == value.
// It fails if the column has no index.
func (ix *Indexer) GetOffsetsFor(table cursor.MetaTable, column string, value any) ([]uint64, error) {
	if !table.HasIndex(column) {
		return nil, &MissingIndexError{Table: table.Name, Column: column}
	}
	return ix.tableBuckets(table.Name)[column][Hash(value)], nil
}

// BuildForTable rebuilds the index for every indexed column of tableName
// by scanning all of its rows.
func (ix *Indexer) BuildForTable(tableName string) error {
	table, err := ix.cursor.GetTableByName(tableName)
	if err != nil {
		return err
	}
	offset := table.FirstRowOffset
	count := 0
	for offset != 0 {
		row, err := ix.cursor.ReadRowMeta(offset)
		if err != nil {
			return err
		}
		ix.AddItem(table, row, offset)
		offset = row.NextRowOffset
		count++
	}
	ix.logger.Debug("index built for table", "table", tableName, "rows", count)
	return nil
}

// BuildForTableKey rebuilds the index for a single column of tableName.
func (ix *Indexer) BuildForTableKey(tableName, key string) error {
	table, err := ix.cursor.GetTableByName(tableName)
	if err != nil {
		return err
	}
	if !table.HasKey(key) {
		return &cursor.NotFoundError{Kind: "column", Name: key}
	}
	offset := table.FirstRowOffset
	for offset != 0 {
		row, err := ix.cursor.ReadRowMeta(offset)
		if err != nil {
			return err
		}
		ix.addVal(tableName, key, row.Data[key], offset)
		offset = row.NextRowOffset
	}
	return nil
}

// BuildForDatabase rebuilds indexes for every table in the cursor.
func (ix *Indexer) BuildForDatabase() error {
	entries, err := ix.cursor.ReadAllTables()
	if err != nil {
		return err
	}
	for _, e := range entries {
		if err := ix.BuildForTable(e.Table.Name); err != nil {
			return err
		}
	}
	return nil
}

// sidecarPath returns the path of the index sidecar file for the cursor's
// data file.
func (ix *Indexer) sidecarPath() string {
	return ix.cursor.Path() + ".index.json"
}

// Save serializes the full index to the sidecar file, 2-space indented.
func (ix *Indexer) Save() error {
	out, err := json.MarshalIndent(ix.data, "", "  ")
	if err != nil {
		return fmt.Errorf("index: marshal sidecar: %w", err)
	}
	if err := os.WriteFile(ix.sidecarPath(), out, 0o644); err != nil {
		return fmt.Errorf("index: write sidecar: %w", err)
	}
	ix.logger.Info("index sidecar saved", "path", ix.sidecarPath())
	return nil
}

// Load reads the sidecar file into memory. Callers should treat any
// failure as recoverable and rebuild from a full scan instead.
func (ix *Indexer) Load() error {
	raw, err := os.ReadFile(ix.sidecarPath())
	if err != nil {
		return fmt.Errorf("index: read sidecar: %w", err)
	}
	var data map[string]map[string]buckets
	if err := json.Unmarshal(raw, &data); err != nil {
		return fmt.Errorf("index: decode sidecar: %w", err)
	}
	ix.data = data
	ix.logger.Info("index sidecar loaded", "path", ix.sidecarPath())
	return nil
}

// LoadOrRebuild attempts Load; on any failure it rebuilds the entire
// index from the cursor's tables and logs the fallback.
func (ix *Indexer) LoadOrRebuild() error {
	if err := ix.Load(); err != nil {
		ix.logger.Warn("index sidecar missing or invalid, rebuilding from scan", "error", err)
		ix.data = make(map[string]map[string]buckets)
		return ix.BuildForDatabase()
	}
	return nil
}

// FilterKeysForIndexes collects every column referenced by f and validates
// each one is indexed on table; it errors on the first column that isn't.
func FilterKeysForIndexes(table cursor.MetaTable, f filter.Filter) ([]string, error) {
	seen := make(map[string]bool)
	var keys []string
	addPart := func(part filter.FilterPart) error {
		for key := range part {
			if seen[key] {
				continue
			}
			if !table.HasIndex(key) {
				return &MissingIndexError{Table: table.Name, Column: key}
			}
			seen[key] = true
			keys = append(keys, key)
		}
		return nil
	}
	for _, part := range f.Parts() {
		if err := addPart(part); err != nil {
			return nil, err
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// getFilterPartValOffsets returns the union of candidate offsets for a
// single (key, value) pair, unioning over a list value's elements.
func (ix *Indexer) getFilterPartValOffsets(table cursor.MetaTable, key string, value any) (map[uint64]bool, error) {
	result := make(map[uint64]bool)
	values, isList := value.([]any)
	if !isList {
		values = []any{value}
	}
	for _, v := range values {
		offsets, err := ix.GetOffsetsFor(table, key, v)
		if err != nil {
			return nil, err
		}
		for _, o := range offsets {
			result[o] = true
		}
	}
	return result, nil
}

// getFilterPartOffsets intersects the per-key candidate sets within a
// single AND-clause. This is the corrected AND-within-a-part semantics
// (see SPEC_FULL.md §4.3): the original Python has a dead `continue` that
// degrades this to "first key only", which is not reproduced here.
func (ix *Indexer) getFilterPartOffsets(table cursor.MetaTable, part filter.FilterPart) (map[uint64]bool, error) {
	var result map[uint64]bool
	for _, key := range sortedKeys(part) {
		sub, err := ix.getFilterPartValOffsets(table, key, part[key])
		if err != nil {
			return nil, err
		}
		if result == nil {
			result = sub
			continue
		}
		result = intersect(result, sub)
	}
	if result == nil {
		return make(map[uint64]bool), nil
	}
	return result, nil
}

// GetFilterOffsets resolves f against table's indexes, returning the union
// across OR-parts of the AND-within-a-part intersections.
func (ix *Indexer) GetFilterOffsets(table cursor.MetaTable, f filter.Filter) ([]uint64, error) {
	if f.Empty() {
		return nil, &InvalidFilterError{Reason: "filter cannot be empty for index-accelerated select"}
	}
	if _, err := FilterKeysForIndexes(table, f); err != nil {
		return nil, err
	}

	result := make(map[uint64]bool)
	for _, part := range f.Parts() {
		sub, err := ix.getFilterPartOffsets(table, part)
		if err != nil {
			return nil, err
		}
		for o := range sub {
			result[o] = true
		}
	}

	offsets := make([]uint64, 0, len(result))
	for o := range result {
		offsets = append(offsets, o)
	}
	sort.Slice(offsets, func(i, j int) bool { return offsets[i] < offsets[j] })
	return offsets, nil
}

func intersect(a, b map[uint64]bool) map[uint64]bool {
	out := make(map[uint64]bool)
	for k := range a {
		if b[k] {
			out[k] = true
		}
	}
	return out
}

func sortedKeys(part filter.FilterPart) []string {
	keys := make([]string, 0, len(part))
	for k := range part {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
