// Package generate provides default-value generators for insert-auto
// columns: a random small int, or a fresh UUID string.
package generate

import (
	"fmt"
	"math/rand"

	"github.com/google/uuid"

	"github.com/leengari/offsetkv/internal/storage/cursor"
)

// IntUpperBound is the exclusive upper bound for generated int defaults.
const IntUpperBound = 1000

// Int returns a random value in [0, IntUpperBound).
func Int() int64 {
	return int64(rand.Intn(IntUpperBound))
}

// String returns a freshly generated UUID string.
func String() string {
	return uuid.NewString()
}

// ForType returns a default value appropriate for t.
func ForType(t cursor.DbType) (any, error) {
	switch t {
	case cursor.DbTypeInt:
		return Int(), nil
	case cursor.DbTypeStr:
		return String(), nil
	default:
		return nil, fmt.Errorf("generate: unknown column type %q", t)
	}
}

// Row fills in any column from keys missing in data with a generated
// default, leaving explicitly supplied values untouched.
func Row(keys []cursor.KeyColumn, data map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(keys))
	for k, v := range data {
		out[k] = v
	}
	for _, key := range keys {
		if _, ok := out[key.Name]; ok {
			continue
		}
		val, err := ForType(key.Type)
		if err != nil {
			return nil, err
		}
		out[key.Name] = val
	}
	return out, nil
}
