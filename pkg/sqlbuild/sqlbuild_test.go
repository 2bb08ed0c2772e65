package sqlbuild

import (
	"errors"
	"reflect"
	"testing"
)

func mustTable(t *testing.T, name string) Ident {
	t.Helper()
	id, err := Table(name)
	if err != nil {
		t.Fatalf("Table(%q): %v", name, err)
	}
	return id
}

func TestIdentQuoting(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"users", `"users"`},
		{"Mixed_Case", `"Mixed_Case"`},
		{`evil"; DROP TABLE users; --`, `"evil""; DROP TABLE users; --"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := mustTable(t, tt.name).String(); got != tt.want {
				t.Errorf("String() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestIdentRejectsEmpty(t *testing.T) {
	if _, err := Table(""); !errors.Is(err, ErrInvalidIdentifier) {
		t.Errorf("Table(\"\") error = %v, want ErrInvalidIdentifier", err)
	}
	if _, err := Column("a\x00b"); !errors.Is(err, ErrInvalidIdentifier) {
		t.Errorf("Column with NUL error = %v, want ErrInvalidIdentifier", err)
	}
}

func TestInsert(t *testing.T) {
	stmt, err := Insert(mustTable(t, "t"), Values{"name": "a", "id": 1})
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}

	wantSQL := `INSERT INTO "t" ("id", "name") VALUES ($1, $2) RETURNING *`
	if stmt.SQL != wantSQL {
		t.Errorf("SQL = %s\nwant  %s", stmt.SQL, wantSQL)
	}
	if !reflect.DeepEqual(stmt.Args, []any{1, "a"}) {
		t.Errorf("Args = %v", stmt.Args)
	}
}

func TestInsertRowHasNoReturning(t *testing.T) {
	stmt, err := InsertRow(mustTable(t, "t"), Values{"id": 1})
	if err != nil {
		t.Fatalf("InsertRow: %v", err)
	}
	if stmt.SQL != `INSERT INTO "t" ("id") VALUES ($1)` {
		t.Errorf("SQL = %s", stmt.SQL)
	}
}

func TestInsertRequiresValues(t *testing.T) {
	if _, err := Insert(mustTable(t, "t"), Values{}); !errors.Is(err, ErrNoValues) {
		t.Errorf("error = %v, want ErrNoValues", err)
	}
}

func TestUpdateRenumbersPredicate(t *testing.T) {
	stmt, err := Update(mustTable(t, "t"), Values{"name": "b", "status": "ok"}, Where("id = $1 AND owner = $2", 7, "x"))
	if err != nil {
		t.Fatalf("Update: %v", err)
	}

	wantSQL := `UPDATE "t" SET "name" = $1, "status" = $2 WHERE id = $3 AND owner = $4 RETURNING *`
	if stmt.SQL != wantSQL {
		t.Errorf("SQL = %s\nwant  %s", stmt.SQL, wantSQL)
	}
	if !reflect.DeepEqual(stmt.Args, []any{"b", "ok", 7, "x"}) {
		t.Errorf("Args = %v", stmt.Args)
	}
}

func TestDelete(t *testing.T) {
	stmt, err := Delete(mustTable(t, "t"), Where("id = $1", 1))
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if stmt.SQL != `DELETE FROM "t" WHERE id = $1 RETURNING *` {
		t.Errorf("SQL = %s", stmt.SQL)
	}
	if !reflect.DeepEqual(stmt.Args, []any{1}) {
		t.Errorf("Args = %v", stmt.Args)
	}
}

func TestPredicateChecks(t *testing.T) {
	tests := []struct {
		name string
		pred Predicate
		want error
	}{
		{"empty", Where("  "), ErrUnsafePredicate},
		{"statement separator", Where("id = $1; DROP TABLE t", 1), ErrUnsafePredicate},
		{"line comment", Where("id = $1 -- x", 1), ErrUnsafePredicate},
		{"block comment", Where("id = $1 /* x */", 1), ErrUnsafePredicate},
		{"zero placeholder", Where("id = $0"), ErrUnsafePredicate},
		{"too few args", Where("id = $1 AND x = $2", 1), ErrPlaceholderMismatch},
		{"too many args", Where("id = $1", 1, 2), ErrPlaceholderMismatch},
		{"repeated placeholder ok", Where("a = $1 OR b = $1", 1), nil},
		{"no placeholders ok", Where("archived"), nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Delete(mustTable(t, "t"), tt.pred)
			if tt.want == nil {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestReadStatements(t *testing.T) {
	table := mustTable(t, "users")

	if got := Count(table).SQL; got != `SELECT COUNT(*) AS count FROM "users"` {
		t.Errorf("Count = %s", got)
	}
	if got := SelectOrdered(table).SQL; got != `SELECT * FROM "users" ORDER BY id` {
		t.Errorf("SelectOrdered = %s", got)
	}
	if got := DeleteAll(table).SQL; got != `DELETE FROM "users"` {
		t.Errorf("DeleteAll = %s", got)
	}

	full := Checksum(table, 0)
	if len(full.Args) != 0 {
		t.Errorf("Checksum without limit has args %v", full.Args)
	}
	limited := Checksum(table, 10)
	if !reflect.DeepEqual(limited.Args, []any{10}) {
		t.Errorf("Checksum limit args = %v", limited.Args)
	}
}
