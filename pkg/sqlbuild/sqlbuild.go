// Package sqlbuild renders the parameterized statements used by the dual-write
// and repair paths. Identifiers can only enter a statement as Ident values,
// which are always quoted, and WHERE fragments only as Predicate values, which
// are checked and renumbered before they are spliced in.
package sqlbuild

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
)

var (
	ErrInvalidIdentifier   = errors.New("invalid identifier")
	ErrUnsafePredicate     = errors.New("unsafe predicate")
	ErrPlaceholderMismatch = errors.New("placeholder count does not match arguments")
	ErrNoValues            = errors.New("no column values supplied")
)

var placeholderPattern = regexp.MustCompile(`\$(\d+)`)

// Ident is a quoted SQL identifier.
type Ident struct {
	name string
}

// Table returns the identifier for a table name.
func Table(name string) (Ident, error) {
	return newIdent(name)
}

// Column returns the identifier for a column name.
func Column(name string) (Ident, error) {
	return newIdent(name)
}

func newIdent(name string) (Ident, error) {
	if name == "" {
		return Ident{}, fmt.Errorf("%w: empty name", ErrInvalidIdentifier)
	}
	if strings.ContainsRune(name, 0) {
		return Ident{}, fmt.Errorf("%w: %q contains NUL", ErrInvalidIdentifier, name)
	}
	return Ident{name: name}, nil
}

// Name returns the unquoted name.
func (i Ident) Name() string { return i.name }

// String renders the identifier double-quoted with embedded quotes escaped.
func (i Ident) String() string {
	return pgx.Identifier{i.name}.Sanitize()
}

// Predicate is a trusted WHERE fragment with its own $1..$n placeholders.
//
// The text must come from the program, never from request input: the
// builders reject statement separators and comments, but cannot tell a
// hostile expression from a legitimate one.
type Predicate struct {
	text string
	args []any
}

// Where creates a predicate. Placeholders are numbered from $1 relative to args.
func Where(text string, args ...any) Predicate {
	return Predicate{text: text, args: args}
}

// Text returns the fragment as written.
func (p Predicate) Text() string { return p.text }

// Args returns the fragment's arguments.
func (p Predicate) Args() []any { return p.args }

func (p Predicate) check() error {
	if strings.TrimSpace(p.text) == "" {
		return fmt.Errorf("%w: empty WHERE clause", ErrUnsafePredicate)
	}
	for _, tok := range []string{";", "--", "/*", "*/"} {
		if strings.Contains(p.text, tok) {
			return fmt.Errorf("%w: %q not allowed in WHERE clause", ErrUnsafePredicate, tok)
		}
	}

	highest := 0
	for _, m := range placeholderPattern.FindAllStringSubmatch(p.text, -1) {
		n, err := strconv.Atoi(m[1])
		if err != nil || n == 0 {
			return fmt.Errorf("%w: bad placeholder %s", ErrUnsafePredicate, m[0])
		}
		if n > highest {
			highest = n
		}
	}
	if highest != len(p.args) {
		return fmt.Errorf("%w: highest placeholder $%d, %d args", ErrPlaceholderMismatch, highest, len(p.args))
	}
	return nil
}

// render shifts every placeholder by offset.
func (p Predicate) render(offset int) string {
	if offset == 0 {
		return p.text
	}
	return placeholderPattern.ReplaceAllStringFunc(p.text, func(m string) string {
		n, _ := strconv.Atoi(m[1:])
		return "$" + strconv.Itoa(n+offset)
	})
}

// Values maps column names to values.
type Values map[string]any

// columns returns the keys sorted so generated SQL is deterministic.
func (v Values) columns() ([]Ident, []any, error) {
	if len(v) == 0 {
		return nil, nil, ErrNoValues
	}
	names := make([]string, 0, len(v))
	for k := range v {
		names = append(names, k)
	}
	sort.Strings(names)

	cols := make([]Ident, len(names))
	args := make([]any, len(names))
	for i, name := range names {
		col, err := Column(name)
		if err != nil {
			return nil, nil, err
		}
		cols[i] = col
		args[i] = v[name]
	}
	return cols, args, nil
}

// Statement is SQL text plus its positional arguments.
type Statement struct {
	SQL  string
	Args []any
}

func placeholders(from, n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = "$" + strconv.Itoa(from+i)
	}
	return strings.Join(parts, ", ")
}

func joinIdents(ids []Ident) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = id.String()
	}
	return strings.Join(parts, ", ")
}

func insert(table Ident, values Values, returning bool) (Statement, error) {
	cols, args, err := values.columns()
	if err != nil {
		return Statement{}, err
	}
	sql := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", table, joinIdents(cols), placeholders(1, len(cols)))
	if returning {
		sql += " RETURNING *"
	}
	return Statement{SQL: sql, Args: args}, nil
}

// Insert renders INSERT ... RETURNING *.
func Insert(table Ident, values Values) (Statement, error) {
	return insert(table, values, true)
}

// InsertRow renders a plain INSERT, used when copying rows between replicas.
func InsertRow(table Ident, values Values) (Statement, error) {
	return insert(table, values, false)
}

// Update renders UPDATE ... SET ... WHERE ... RETURNING *. The predicate's
// placeholders are shifted past the SET values.
func Update(table Ident, values Values, where Predicate) (Statement, error) {
	cols, args, err := values.columns()
	if err != nil {
		return Statement{}, err
	}
	if err := where.check(); err != nil {
		return Statement{}, err
	}

	sets := make([]string, len(cols))
	for i, col := range cols {
		sets[i] = fmt.Sprintf("%s = $%d", col, i+1)
	}

	sql := fmt.Sprintf("UPDATE %s SET %s WHERE %s RETURNING *", table, strings.Join(sets, ", "), where.render(len(cols)))
	return Statement{SQL: sql, Args: append(args, where.args...)}, nil
}

// Delete renders DELETE ... WHERE ... RETURNING *.
func Delete(table Ident, where Predicate) (Statement, error) {
	if err := where.check(); err != nil {
		return Statement{}, err
	}
	sql := fmt.Sprintf("DELETE FROM %s WHERE %s RETURNING *", table, where.render(0))
	return Statement{SQL: sql, Args: append([]any(nil), where.args...)}, nil
}

// DeleteAll renders an unconditional DELETE.
func DeleteAll(table Ident) Statement {
	return Statement{SQL: fmt.Sprintf("DELETE FROM %s", table)}
}

// Count renders SELECT COUNT(*) AS count.
func Count(table Ident) Statement {
	return Statement{SQL: fmt.Sprintf("SELECT COUNT(*) AS count FROM %s", table)}
}

// SelectOrdered renders SELECT * ordered by the id column.
func SelectOrdered(table Ident) Statement {
	return Statement{SQL: fmt.Sprintf("SELECT * FROM %s ORDER BY id", table)}
}

// Checksum renders an md5 over the text form of every row ordered by id.
// A positive limit restricts the digest to the first limit rows.
func Checksum(table Ident, limit int) Statement {
	source := fmt.Sprintf("SELECT * FROM %s ORDER BY id", table)
	var args []any
	if limit > 0 {
		source += " LIMIT $1"
		args = []any{limit}
	}
	sql := fmt.Sprintf(
		"SELECT md5(COALESCE(string_agg(r::text, ',' ORDER BY r.id), '')) AS checksum FROM (%s) AS r",
		source,
	)
	return Statement{SQL: sql, Args: args}
}

// Ping is the liveness probe statement.
func Ping() Statement {
	return Statement{SQL: "SELECT 1"}
}
