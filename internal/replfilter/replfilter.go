// Package replfilter canonicalizes the REPL's tolerant, loosely-quoted
// JSON-ish literals (table specs, row data, filters) into strict JSON: a
// small hand-rolled scanner, not a chain of regexes, in the style of a
// lexer — it quotes bare keys and bare value word-runs and drops
// whitespace that hugs structural punctuation, while preserving
// whitespace inside a word run verbatim.
package replfilter

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/leengari/offsetkv/internal/filter"
)

// Canonicalize rewrites s into strict JSON text.
func Canonicalize(s string) string {
	runes := []rune(s)
	n := len(runes)
	var out strings.Builder

	i := 0
	for i < n {
		c := runes[i]
		switch {
		case c == '"':
			end := quotedEnd(runes, i)
			out.WriteString(string(runes[i:end]))
			i = end
		case isStructural(c):
			out.WriteRune(c)
			i++
		case isSpace(c):
			i++
		default:
			word, next := readWord(runes, i)
			if word != "" {
				out.WriteByte('"')
				out.WriteString(escape(word))
				out.WriteByte('"')
			}
			i = next
		}
	}
	return out.String()
}

// quotedEnd returns the index just past the closing quote of the string
// literal starting at start (which must point at the opening `"`).
func quotedEnd(runes []rune, start int) int {
	j := start + 1
	n := len(runes)
	for j < n {
		if runes[j] == '\\' && j+1 < n {
			j += 2
			continue
		}
		if runes[j] == '"' {
			j++
			break
		}
		j++
	}
	return j
}

// readWord consumes a maximal run of non-structural, non-quote runes
// starting at start, trimming trailing whitespace but preserving
// whitespace between non-space runes. It returns the trimmed word and the
// index just past the (possibly untrimmed) run.
func readWord(runes []rune, start int) (string, int) {
	n := len(runes)
	i := start
	end := start
	for i < n && !isStructural(runes[i]) && runes[i] != '"' {
		if !isSpace(runes[i]) {
			end = i + 1
		}
		i++
	}
	return string(runes[start:end]), i
}

func isStructural(c rune) bool {
	switch c {
	case '{', '}', '[', ']', ':', ',':
		return true
	}
	return false
}

func isSpace(c rune) bool {
	switch c {
	case ' ', '\t', '\n', '\r':
		return true
	}
	return false
}

func escape(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return s
}

// ParseJSON canonicalizes s and decodes it into v, using json.Number for
// any interface{}-shaped numeric destination.
func ParseJSON(s string, v any) error {
	canonical := Canonicalize(s)
	dec := json.NewDecoder(strings.NewReader(canonical))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("replfilter: incorrect JSON format %q: %w", s, err)
	}
	return nil
}

// ParseFilter canonicalizes and decodes s into a Filter literal.
func ParseFilter(s string) (filter.Filter, error) {
	var f filter.Filter
	if err := ParseJSON(s, &f); err != nil {
		return filter.Filter{}, err
	}
	return f, nil
}

// ParseRowData canonicalizes and decodes s into a row's column→value map.
func ParseRowData(s string) (map[string]any, error) {
	var data map[string]any
	if err := ParseJSON(s, &data); err != nil {
		return nil, err
	}
	return data, nil
}

// TableSpec is the parsed form of a create-table literal: a name and a
// column→type mapping. The mapping is a Go map, so the order in which the
// columns appear in the source is not kept; callers that need deterministic column
// order should prefer the programmatic cursor.KeyColumn API; the REPL
// path accepts this as a known limitation of parsing free-form JSON.
type TableSpec struct {
	Name string            `json:"name"`
	Keys map[string]string `json:"keys"`
}

// ParseTableSpec canonicalizes and decodes s into a TableSpec.
func ParseTableSpec(s string) (TableSpec, error) {
	var spec TableSpec
	if err := ParseJSON(s, &spec); err != nil {
		return TableSpec{}, err
	}
	return spec, nil
}
