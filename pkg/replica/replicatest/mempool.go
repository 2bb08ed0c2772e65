// Package replicatest provides an in-memory replica.Pool for tests.
//
// MemPool understands the statement shapes produced by pkg/sqlbuild plus
// simple unquoted SELECT/UPDATE/INSERT/DELETE forms whose WHERE clause is a
// conjunction of "col = $n" terms. Anything else fails with ErrUnsupported.
package replicatest

import (
	"context"
	"crypto/md5" //nolint:gosec // content fingerprint, not security
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dd0wney/dualdb/pkg/replica"
)

var (
	ErrUnsupported = errors.New("replicatest: unsupported statement")
	ErrClosed      = errors.New("replicatest: pool closed")
)

const ident = `("(?:[^"]|"")+"|[A-Za-z_][A-Za-z0-9_.]*)`

var (
	pingRe     = regexp.MustCompile(`(?i)^SELECT 1$`)
	countRe    = regexp.MustCompile(`(?i)^SELECT COUNT\(\*\)(?: AS count)? FROM ` + ident + `$`)
	checksumRe = regexp.MustCompile(`(?i)^SELECT md5\(.*\) AS checksum FROM \(SELECT \* FROM ` + ident + ` ORDER BY id( LIMIT \$1)?\) AS r$`)
	selectRe   = regexp.MustCompile(`(?i)^SELECT \* FROM ` + ident + `(?: WHERE (.+?))?(?: ORDER BY id)?$`)
	insertRe   = regexp.MustCompile(`(?i)^INSERT INTO ` + ident + ` \((.+)\) VALUES \((.+)\)( RETURNING \*)?$`)
	updateRe   = regexp.MustCompile(`(?i)^UPDATE ` + ident + ` SET (.+?) WHERE (.+?)( RETURNING \*)?$`)
	deleteRe   = regexp.MustCompile(`(?i)^DELETE FROM ` + ident + `(?: WHERE (.+?))?( RETURNING \*)?$`)
	termRe     = regexp.MustCompile(`^` + ident + `\s*=\s*\$(\d+)$`)
	andRe      = regexp.MustCompile(`(?i)\s+AND\s+`)
)

// Call is one recorded Query invocation.
type Call struct {
	SQL  string
	Args []any
}

// MemPool is a concurrency-safe in-memory replica.
type MemPool struct {
	mu      sync.Mutex
	role    replica.Role
	tables  map[string][]replica.Row
	calls   []Call
	failing error
	failOn  func(sql string, args []any) error
	delay   time.Duration
	stats   replica.Stats
	closed  bool
}

var _ replica.Pool = (*MemPool)(nil)

// New returns an empty pool for role.
func New(role replica.Role) *MemPool {
	return &MemPool{
		role:   role,
		tables: make(map[string][]replica.Row),
		stats:  replica.Stats{TotalConns: 1, IdleConns: 1, MaxConns: 10},
	}
}

// Seed replaces the contents of table.
func (p *MemPool) Seed(table string, rows ...replica.Row) {
	p.mu.Lock()
	defer p.mu.Unlock()
	copied := make([]replica.Row, len(rows))
	for i, r := range rows {
		copied[i] = cloneRow(r)
	}
	p.tables[table] = copied
}

// Rows returns a copy of table ordered by id.
func (p *MemPool) Rows(table string) []replica.Row {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sortedLocked(table)
}

// Find returns the row of table whose id equals id.
func (p *MemPool) Find(table string, id any) (replica.Row, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, r := range p.tables[table] {
		if equalValues(r["id"], id) {
			return cloneRow(r), true
		}
	}
	return nil, false
}

// SetFailing makes every Query and Ping return err. A nil err heals the pool.
func (p *MemPool) SetFailing(err error) {
	p.mu.Lock()
	p.failing = err
	p.mu.Unlock()
}

// SetFailOn installs a per-statement failure hook; a nil return lets the
// statement run.
func (p *MemPool) SetFailOn(fn func(sql string, args []any) error) {
	p.mu.Lock()
	p.failOn = fn
	p.mu.Unlock()
}

// SetDelay makes every call wait d, or until its context is done.
func (p *MemPool) SetDelay(d time.Duration) {
	p.mu.Lock()
	p.delay = d
	p.mu.Unlock()
}

// SetStats sets what Stat reports.
func (p *MemPool) SetStats(s replica.Stats) {
	p.mu.Lock()
	p.stats = s
	p.mu.Unlock()
}

// Calls returns every recorded Query in order.
func (p *MemPool) Calls() []Call {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Call(nil), p.calls...)
}

// QueryCount returns how many times Query has been invoked.
func (p *MemPool) QueryCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}

// ResetCalls forgets recorded calls.
func (p *MemPool) ResetCalls() {
	p.mu.Lock()
	p.calls = nil
	p.mu.Unlock()
}

// Closed reports whether Close has been called.
func (p *MemPool) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *MemPool) Role() replica.Role { return p.role }

func (p *MemPool) Stat() replica.Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

func (p *MemPool) Close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
}

func (p *MemPool) wait(ctx context.Context) error {
	p.mu.Lock()
	d := p.delay
	p.mu.Unlock()
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *MemPool) Ping(ctx context.Context) error {
	if err := p.wait(ctx); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	return p.failing
}

func (p *MemPool) Query(ctx context.Context, sql string, args ...any) (*replica.Result, error) {
	p.mu.Lock()
	p.calls = append(p.calls, Call{SQL: sql, Args: append([]any(nil), args...)})
	p.mu.Unlock()

	if err := p.wait(ctx); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, ErrClosed
	}
	if p.failing != nil {
		return nil, p.failing
	}
	if p.failOn != nil {
		if err := p.failOn(sql, args); err != nil {
			return nil, err
		}
	}
	return p.execLocked(strings.TrimSpace(sql), args)
}

func (p *MemPool) execLocked(sql string, args []any) (*replica.Result, error) {
	if pingRe.MatchString(sql) {
		return &replica.Result{Rows: []replica.Row{{"?column?": int32(1)}}, RowsAffected: 1, Command: "SELECT 1"}, nil
	}
	if m := countRe.FindStringSubmatch(sql); m != nil {
		n := int64(len(p.tables[unquote(m[1])]))
		return &replica.Result{Rows: []replica.Row{{"count": n}}, RowsAffected: 1, Command: "SELECT 1"}, nil
	}
	if m := checksumRe.FindStringSubmatch(sql); m != nil {
		rows := p.sortedLocked(unquote(m[1]))
		if m[2] != "" && len(args) == 1 {
			if limit, ok := toInt64(args[0]); ok && limit >= 0 && int(limit) < len(rows) {
				rows = rows[:limit]
			}
		}
		return &replica.Result{Rows: []replica.Row{{"checksum": fingerprint(rows)}}, RowsAffected: 1, Command: "SELECT 1"}, nil
	}
	if m := selectRe.FindStringSubmatch(sql); m != nil {
		match, err := parseWhere(m[2], args)
		if err != nil {
			return nil, err
		}
		var out []replica.Row
		for _, r := range p.sortedLocked(unquote(m[1])) {
			if match(r) {
				out = append(out, r)
			}
		}
		return &replica.Result{Rows: out, RowsAffected: int64(len(out)), Command: fmt.Sprintf("SELECT %d", len(out))}, nil
	}
	if m := insertRe.FindStringSubmatch(sql); m != nil {
		return p.insertLocked(unquote(m[1]), m[2], m[3], m[4] != "", args)
	}
	if m := updateRe.FindStringSubmatch(sql); m != nil {
		return p.updateLocked(unquote(m[1]), m[2], m[3], m[4] != "", args)
	}
	if m := deleteRe.FindStringSubmatch(sql); m != nil {
		return p.deleteLocked(unquote(m[1]), m[2], m[3] != "", args)
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupported, sql)
}

func (p *MemPool) insertLocked(table, colList, valList string, returning bool, args []any) (*replica.Result, error) {
	cols := splitList(colList)
	vals := splitList(valList)
	if len(cols) != len(vals) {
		return nil, fmt.Errorf("%w: %d columns, %d values", ErrUnsupported, len(cols), len(vals))
	}

	row := make(replica.Row, len(cols))
	for i, col := range cols {
		v, err := argFor(vals[i], args)
		if err != nil {
			return nil, err
		}
		row[unquote(col)] = v
	}

	if id, ok := row["id"]; ok {
		for _, existing := range p.tables[table] {
			if equalValues(existing["id"], id) {
				return nil, fmt.Errorf("duplicate key value violates unique constraint %q: id=%v", table+"_pkey", id)
			}
		}
	}

	p.tables[table] = append(p.tables[table], row)
	res := &replica.Result{RowsAffected: 1, Command: "INSERT 0 1"}
	if returning {
		res.Rows = []replica.Row{cloneRow(row)}
	}
	return res, nil
}

func (p *MemPool) updateLocked(table, setList, where string, returning bool, args []any) (*replica.Result, error) {
	type assignment struct {
		col string
		val any
	}
	var sets []assignment
	for _, part := range splitList(setList) {
		m := termRe.FindStringSubmatch(strings.TrimSpace(part))
		if m == nil {
			return nil, fmt.Errorf("%w: SET %s", ErrUnsupported, part)
		}
		v, err := argFor("$"+m[2], args)
		if err != nil {
			return nil, err
		}
		sets = append(sets, assignment{col: unquote(m[1]), val: v})
	}

	match, err := parseWhere(where, args)
	if err != nil {
		return nil, err
	}

	res := &replica.Result{}
	for _, r := range p.tables[table] {
		if !match(r) {
			continue
		}
		for _, s := range sets {
			r[s.col] = s.val
		}
		res.RowsAffected++
		if returning {
			res.Rows = append(res.Rows, cloneRow(r))
		}
	}
	res.Command = fmt.Sprintf("UPDATE %d", res.RowsAffected)
	return res, nil
}

func (p *MemPool) deleteLocked(table, where string, returning bool, args []any) (*replica.Result, error) {
	match, err := parseWhere(where, args)
	if err != nil {
		return nil, err
	}

	res := &replica.Result{}
	kept := p.tables[table][:0:0]
	for _, r := range p.tables[table] {
		if match(r) {
			res.RowsAffected++
			if returning {
				res.Rows = append(res.Rows, cloneRow(r))
			}
			continue
		}
		kept = append(kept, r)
	}
	p.tables[table] = kept
	res.Command = fmt.Sprintf("DELETE %d", res.RowsAffected)
	return res, nil
}

func (p *MemPool) sortedLocked(table string) []replica.Row {
	rows := make([]replica.Row, len(p.tables[table]))
	for i, r := range p.tables[table] {
		rows[i] = cloneRow(r)
	}
	sort.SliceStable(rows, func(i, j int) bool { return lessValues(rows[i]["id"], rows[j]["id"]) })
	return rows
}

// parseWhere accepts "" (match all) or "a = $1 AND b = $2".
func parseWhere(where string, args []any) (func(replica.Row) bool, error) {
	where = strings.TrimSpace(where)
	if where == "" {
		return func(replica.Row) bool { return true }, nil
	}

	type cond struct {
		col string
		val any
	}
	var conds []cond
	for _, term := range andRe.Split(where, -1) {
		m := termRe.FindStringSubmatch(strings.TrimSpace(term))
		if m == nil {
			return nil, fmt.Errorf("%w: WHERE %s", ErrUnsupported, term)
		}
		v, err := argFor("$"+m[2], args)
		if err != nil {
			return nil, err
		}
		conds = append(conds, cond{col: unquote(m[1]), val: v})
	}

	return func(r replica.Row) bool {
		for _, c := range conds {
			if !equalValues(r[c.col], c.val) {
				return false
			}
		}
		return true
	}, nil
}

func argFor(placeholder string, args []any) (any, error) {
	placeholder = strings.TrimSpace(placeholder)
	if !strings.HasPrefix(placeholder, "$") {
		return nil, fmt.Errorf("%w: value %s", ErrUnsupported, placeholder)
	}
	n, err := strconv.Atoi(placeholder[1:])
	if err != nil || n < 1 || n > len(args) {
		return nil, fmt.Errorf("%w: placeholder %s with %d args", ErrUnsupported, placeholder, len(args))
	}
	return args[n-1], nil
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func unquote(name string) string {
	if len(name) >= 2 && name[0] == '"' && name[len(name)-1] == '"' {
		return strings.ReplaceAll(name[1:len(name)-1], `""`, `"`)
	}
	return name
}

func cloneRow(r replica.Row) replica.Row {
	out := make(replica.Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// fingerprint hashes rows in a column-order independent way.
func fingerprint(rows []replica.Row) string {
	h := md5.New() //nolint:gosec
	for _, r := range rows {
		keys := make([]string, 0, len(r))
		for k := range r {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(h, "%s=%v;", k, r[k])
		}
		h.Write([]byte{'\n'})
	}
	return hex.EncodeToString(h.Sum(nil))
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint64:
		return int64(n), true
	case float64:
		if n == float64(int64(n)) {
			return int64(n), true
		}
	}
	return 0, false
}

func equalValues(a, b any) bool {
	if x, ok := toInt64(a); ok {
		if y, ok := toInt64(b); ok {
			return x == y
		}
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}

func lessValues(a, b any) bool {
	if x, ok := toInt64(a); ok {
		if y, ok := toInt64(b); ok {
			return x < y
		}
	}
	return fmt.Sprint(a) < fmt.Sprint(b)
}
