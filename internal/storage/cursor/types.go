package cursor

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// DbType is the declared type of a table column.
type DbType string

const (
	DbTypeInt DbType = "int"
	DbTypeStr DbType = "str"
)

// Valid reports whether t is one of the known column types.
func (t DbType) Valid() bool {
	switch t {
	case DbTypeInt, DbTypeStr:
		return true
	default:
		return false
	}
}

// Convert coerces val to the Go representation of t: "str" accepts
// anything and stringifies it, "int" accepts numbers and numeric strings
// but rejects anything else.
func (t DbType) Convert(val any) (any, error) {
	switch t {
	case DbTypeStr:
		return fmt.Sprintf("%v", val), nil
	case DbTypeInt:
		switch v := val.(type) {
		case int64:
			return v, nil
		case int:
			return int64(v), nil
		case float64:
			return int64(v), nil
		case json.Number:
			n, err := v.Int64()
			if err != nil {
				return nil, fmt.Errorf("value %q is not a valid int: %w", v, err)
			}
			return n, nil
		case string:
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("value %q is not a valid int: %w", v, err)
			}
			return n, nil
		default:
			return nil, fmt.Errorf("value %v (%T) is not a valid int", val, val)
		}
	default:
		return nil, fmt.Errorf("unknown column type %q", t)
	}
}

// KeyColumn is one entry of a table's ordered column list.
type KeyColumn struct {
	Name string `json:"name"`
	Type DbType `json:"type"`
}

// MetaDB is the singleton database header.
type MetaDB struct {
	Created          time.Time `json:"created"`
	Updated          time.Time `json:"updated"`
	FirstTableOffset uint64    `json:"first_table_offset"`
	LastTableOffset  uint64    `json:"last_table_offset"`
}

// HasTables reports whether the database has at least one table.
func (m MetaDB) HasTables() bool {
	return m.FirstTableOffset > 0
}

// MetaTable is a stored table descriptor.
type MetaTable struct {
	Name            string      `json:"name"`
	Keys            []KeyColumn `json:"keys"`
	Indexes         []string    `json:"indexes"`
	FirstRowOffset  uint64      `json:"first_row_offset"`
	LastRowOffset   uint64      `json:"last_row_offset"`
	NextTableOffset uint64      `json:"next_table_offset"`
	PrevTableOffset uint64      `json:"prev_table_offset"`
}

// HasNext reports whether another table follows this one in the chain.
func (m MetaTable) HasNext() bool { return m.NextTableOffset > 0 }

// HasPrev reports whether a table precedes this one in the chain.
func (m MetaTable) HasPrev() bool { return m.PrevTableOffset > 0 }

// Copy returns an independent copy of m, safe to mutate.
func (m MetaTable) Copy() MetaTable {
	cp := m
	cp.Keys = append([]KeyColumn(nil), m.Keys...)
	cp.Indexes = append([]string(nil), m.Indexes...)
	return cp
}

// KeyMap returns the column-name → type lookup derived from Keys.
func (m MetaTable) KeyMap() map[string]DbType {
	out := make(map[string]DbType, len(m.Keys))
	for _, k := range m.Keys {
		out[k.Name] = k.Type
	}
	return out
}

// HasKey reports whether name is a declared column.
func (m MetaTable) HasKey(name string) bool {
	for _, k := range m.Keys {
		if k.Name == name {
			return true
		}
	}
	return false
}

// HasIndex reports whether column is already indexed.
func (m MetaTable) HasIndex(column string) bool {
	for _, c := range m.Indexes {
		if c == column {
			return true
		}
	}
	return false
}

// MetaRow is a stored row descriptor.
type MetaRow struct {
	Data         map[string]any `json:"data"`
	NextRowOffset uint64        `json:"next_row_offset"`
	PrevRowOffset uint64        `json:"prev_row_offset"`
}

// HasNext reports whether another row follows this one in the table's chain.
func (r MetaRow) HasNext() bool { return r.NextRowOffset > 0 }

// HasPrev reports whether a row precedes this one in the table's chain.
func (r MetaRow) HasPrev() bool { return r.PrevRowOffset > 0 }

// Copy returns an independent copy of r, safe to mutate.
func (r MetaRow) Copy() MetaRow {
	cp := r
	data := make(map[string]any, len(r.Data))
	for k, v := range r.Data {
		data[k] = v
	}
	cp.Data = data
	return cp
}
