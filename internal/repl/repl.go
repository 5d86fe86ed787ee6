// Package repl implements the interactive command loop: a
// bufio.Scanner read loop, a command dispatch table, and
// text/tabwriter result printing, the front end described as an
// external collaborator of the storage engine.
package repl

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/leengari/offsetkv/internal/database"
	"github.com/leengari/offsetkv/internal/filter"
	"github.com/leengari/offsetkv/internal/generate"
	"github.com/leengari/offsetkv/internal/obslog"
	"github.com/leengari/offsetkv/internal/replfilter"
	"github.com/leengari/offsetkv/internal/storage/cursor"
	"github.com/leengari/offsetkv/internal/timing"
)

// rowPauseEvery is how many printed rows trigger an interactive pause
// unless --all was given.
const rowPauseEvery = 6

// REPL reads commands from in, prints results and prompts to out, and
// dispatches them against db.
type REPL struct {
	db     *database.Database
	logger *slog.Logger
	in     *bufio.Scanner
	out    io.Writer

	commands map[string]func(rest string) error
}

// New builds a REPL wired to db, reading from in and writing to out.
func New(db *database.Database, logger *slog.Logger, in io.Reader, out io.Writer) *REPL {
	r := &REPL{
		db:     db,
		logger: logger,
		in:     bufio.NewScanner(in),
		out:    out,
	}
	r.commands = map[string]func(rest string) error{
		"create-table": r.cmdCreateTable,
		"create-index": r.cmdCreateIndex,
		"list-tables":  r.cmdListTables,
		"insert":       r.cmdInsert,
		"insert-auto":  r.cmdInsertAuto,
		"select":       r.cmdSelect,
		"help":         r.cmdHelp,
	}
	return r
}

// Run reads and dispatches commands until EOF or a read error.
func (r *REPL) Run() error {
	fmt.Fprintln(r.out, "offsetkv ready. Type 'help' for commands.")
	for {
		fmt.Fprint(r.out, "> ")
		if !r.in.Scan() {
			break
		}
		line := strings.TrimSpace(r.in.Text())
		if line == "" {
			continue
		}
		r.dispatch(line)
	}
	return r.in.Err()
}

func (r *REPL) dispatch(line string) {
	name, rest := splitWord(line)
	handler, ok := r.commands[name]
	if !ok {
		fmt.Fprintf(r.out, "unknown command: %s (try 'help')\n", name)
		return
	}

	opID := obslog.NewOperationID()
	wrapped := timing.Wrap(name, opID, r.logger, handler)
	if err := wrapped(rest); err != nil {
		fmt.Fprintf(r.out, "error: %v\n", err)
	}
}

func splitWord(s string) (word, rest string) {
	s = strings.TrimSpace(s)
	idx := strings.IndexAny(s, " \t")
	if idx == -1 {
		return s, ""
	}
	return s[:idx], strings.TrimSpace(s[idx:])
}

// parseFlags splits a "--name value --other value2" argument string into
// a name→value map. A flag with no following text before the next --flag
// (or end of string) is recorded with an empty value, which handlers
// treat as a boolean switch.
func parseFlags(s string) map[string]string {
	out := make(map[string]string)
	s = strings.TrimSpace(s)
	for strings.HasPrefix(s, "--") {
		s = s[2:]
		name, remainder := splitWord(s)
		if strings.HasPrefix(remainder, "--") {
			out[name] = ""
			s = remainder
			continue
		}
		idx := strings.Index(remainder, " --")
		var val string
		if idx == -1 {
			val, s = remainder, ""
		} else {
			val, s = remainder[:idx], strings.TrimSpace(remainder[idx:])
		}
		out[name] = strings.TrimSpace(val)
	}
	return out
}

func (r *REPL) cmdCreateTable(rest string) error {
	spec, err := replfilter.ParseTableSpec(rest)
	if err != nil {
		return err
	}
	if spec.Name == "" {
		return fmt.Errorf("create-table: missing table name")
	}
	keys := make([]cursor.KeyColumn, 0, len(spec.Keys))
	for name, typ := range spec.Keys {
		keys = append(keys, cursor.KeyColumn{Name: name, Type: cursor.DbType(typ)})
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Name < keys[j].Name })
	if err := r.db.CreateTable(spec.Name, keys); err != nil {
		return err
	}
	fmt.Fprintf(r.out, "table %q created\n", spec.Name)
	return nil
}

func (r *REPL) cmdCreateIndex(rest string) error {
	flags := parseFlags(rest)
	table, key := flags["table"], flags["key"]
	if table == "" || key == "" {
		return fmt.Errorf("create-index: usage: create-index --table T --key K")
	}
	if err := r.db.CreateIndex(table, key); err != nil {
		return err
	}
	fmt.Fprintf(r.out, "index on %s.%s created\n", table, key)
	return nil
}

func (r *REPL) cmdListTables(rest string) error {
	tables, err := r.db.ListTables()
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(r.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tCOLUMNS\tINDEXES")
	for _, t := range tables {
		cols := make([]string, len(t.Keys))
		for i, k := range t.Keys {
			cols[i] = fmt.Sprintf("%s:%s", k.Name, k.Type)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", t.Name, strings.Join(cols, ","), strings.Join(t.Indexes, ","))
	}
	return w.Flush()
}

func (r *REPL) cmdInsert(rest string) error {
	flags := parseFlags(rest)
	table, data := flags["table"], flags["data"]
	if table == "" || data == "" {
		return fmt.Errorf("insert: usage: insert --table T --data <row-json>")
	}
	rowData, err := replfilter.ParseRowData(data)
	if err != nil {
		return err
	}
	if err := r.db.Insert(table, rowData); err != nil {
		return err
	}
	fmt.Fprintln(r.out, "1 row inserted")
	return nil
}

func (r *REPL) cmdInsertAuto(rest string) error {
	flags := parseFlags(rest)
	tableName := flags["table"]
	if tableName == "" {
		return fmt.Errorf("insert-auto: usage: insert-auto --table T --amount N")
	}
	amount, err := strconv.Atoi(flags["amount"])
	if err != nil || amount <= 0 {
		return fmt.Errorf("insert-auto: --amount must be a positive integer")
	}
	table, err := r.db.GetTable(tableName)
	if err != nil {
		return err
	}
	for i := 0; i < amount; i++ {
		row, err := generate.Row(table.Keys, nil)
		if err != nil {
			return err
		}
		if err := r.db.Insert(tableName, row); err != nil {
			return err
		}
	}
	fmt.Fprintf(r.out, "%d rows inserted\n", amount)
	return nil
}

func (r *REPL) cmdSelect(rest string) error {
	flags := parseFlags(rest)
	table := flags["table"]
	if table == "" {
		return fmt.Errorf("select: usage: select --table T [--filter F] [--limit N] [--all] [--counter] [--use-index]")
	}

	var f filter.Filter
	if raw, ok := flags["filter"]; ok && raw != "" {
		parsed, err := replfilter.ParseFilter(raw)
		if err != nil {
			return err
		}
		f = parsed
	}

	_, useIndex := flags["use-index"]
	_, all := flags["all"]
	_, counter := flags["counter"]

	var limit int = -1
	if raw, ok := flags["limit"]; ok && raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return fmt.Errorf("select: --limit must be an integer: %w", err)
		}
		limit = n
	}

	var it *database.RowIterator
	var err error
	if useIndex {
		it, err = r.db.IterateRowsUseIndex(table, f)
	} else {
		it, err = r.db.IterateRows(table, f)
	}
	if err != nil {
		return err
	}

	count := 0
	for {
		row, ok := it.Next()
		if !ok {
			break
		}
		count++
		if !counter {
			fmt.Fprintf(r.out, "%v\n", row.Data)
		}
		if !all && count%rowPauseEvery == 0 && !counter {
			fmt.Fprint(r.out, "-- more (press Enter) --\n")
			r.in.Scan()
		}
		if limit > 0 && count >= limit {
			break
		}
	}
	if err := it.Err(); err != nil {
		return err
	}
	fmt.Fprintf(r.out, "%d row(s)\n", count)
	return nil
}

func (r *REPL) cmdHelp(rest string) error {
	fmt.Fprintln(r.out, `commands:
  create-table <table-spec>                 create a table, e.g. {name: T, keys: {id: str}}
  create-index --table T --key K            add an index on column K of table T
  list-tables                               list every table and its columns/indexes
  insert --table T --data <row-json>        insert one row
  insert-auto --table T --amount N          insert N rows with generated column values
  select --table T [--filter F] [--limit N] [--all] [--counter] [--use-index]
                                             scan or index-lookup rows
  help                                       print this message`)
	return nil
}
