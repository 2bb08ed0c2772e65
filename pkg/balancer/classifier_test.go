package balancer

import (
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/dd0wney/dualdb/pkg/replica"
	"github.com/dd0wney/dualdb/pkg/replica/replicatest"
)

func TestIsReadQuery(t *testing.T) {
	tests := []struct {
		sql  string
		want bool
	}{
		{"SELECT * FROM products", true},
		{"   select 1", true},
		{"\n\tExplain analyze select 1", true},
		{"SHOW search_path", true},
		{"describe products", true},
		{"INSERT INTO products VALUES (1)", false},
		{"update products set x = 1", false},
		{"DELETE FROM products", false},
		{"WITH x AS (SELECT 1) SELECT * FROM x", false},
		{"", false},
		{"-- comment\nSELECT 1", false},
	}

	for _, tt := range tests {
		t.Run(tt.sql, func(t *testing.T) {
			if got := IsReadQuery(tt.sql); got != tt.want {
				t.Errorf("IsReadQuery(%q) = %v, want %v", tt.sql, got, tt.want)
			}
		})
	}
}

func TestClassify(t *testing.T) {
	c := DefaultClassifier()

	tests := []struct {
		sql  string
		want Kind
	}{
		{"SELECT * FROM products", KindRead},
		{"SELECT * FROM users WHERE id = $1", KindCritical},
		{"select * from Position_History", KindCritical},
		{"INSERT INTO invoices (id) VALUES ($1)", KindCritical},
		{"UPDATE custodial_sessions SET x = 1", KindCritical},
		{"UPDATE products SET x = 1", KindWrite},
		{"VACUUM", KindWrite},
		// Substring match: any mention counts.
		{"SELECT * FROM superusers_log", KindCritical},
	}

	for _, tt := range tests {
		t.Run(tt.sql, func(t *testing.T) {
			if got := c.Classify(tt.sql); got != tt.want {
				t.Errorf("Classify(%q) = %s, want %s", tt.sql, got, tt.want)
			}
		})
	}
}

func TestCustomCriticalTables(t *testing.T) {
	c := NewClassifier([]string{" Ledger ", ""})

	if got := c.CriticalTables(); len(got) != 1 || got[0] != "ledger" {
		t.Fatalf("CriticalTables() = %v, want [ledger]", got)
	}
	if !c.IsCriticalQuery("SELECT * FROM LEDGER") {
		t.Error("expected ledger to be critical")
	}
	if c.IsCriticalQuery("SELECT * FROM users") {
		t.Error("users should not be critical with a custom list")
	}

	none := NewClassifier(nil)
	if none.Classify("SELECT * FROM users") != KindRead {
		t.Error("empty critical list should classify plain reads as read")
	}
}

func readPrefixGen() gopter.Gen {
	return gen.OneConstOf(
		"select", "SELECT", "Select", "sElEcT",
		"show", "SHOW", "Show",
		"explain", "EXPLAIN", "Explain",
		"describe", "DESCRIBE", "Describe",
	)
}

func whitespaceGen() gopter.Gen {
	return gen.OneConstOf("", " ", "   ", "\n", "\t \n ")
}

func startsWithReadVerb(s string) bool {
	lower := strings.ToLower(strings.TrimSpace(s))
	for _, p := range readPrefixes {
		if strings.HasPrefix(lower, p) {
			return true
		}
	}
	return false
}

// TestClassifierProperties checks read detection and the critical override
// over generated statements.
func TestClassifierProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200

	properties := gopter.NewProperties(parameters)

	properties.Property("statements starting with a read verb are reads", prop.ForAll(
		func(ws, prefix, rest string) bool {
			return IsReadQuery(ws + prefix + rest)
		},
		whitespaceGen(),
		readPrefixGen(),
		gen.AlphaString(),
	))

	properties.Property("statements not starting with a read verb are not reads", prop.ForAll(
		func(ws, s string) bool {
			return !IsReadQuery(ws + s)
		},
		whitespaceGen(),
		gen.AlphaString().SuchThat(func(s string) bool { return !startsWithReadVerb(s) }),
	))

	properties.Property("statements naming a critical table route to the primary", prop.ForAll(
		func(verb, table, before, after string, upper bool) bool {
			if upper {
				table = strings.ToUpper(table)
			}
			sql := verb + " " + before + table + after

			primary := replicatest.New(replica.Primary)
			secondary := replicatest.New(replica.Secondary)
			r := NewRouter(primary, secondary, nil)

			target, kind := r.Route(sql)
			return kind == KindCritical && target.Role() == replica.Primary
		},
		gen.OneConstOf("SELECT * FROM", "select count(*) from", "EXPLAIN SELECT * FROM", "INSERT INTO", "DELETE FROM", "UPDATE"),
		gen.OneConstOf("users", "custodial_sessions", "position_history", "invoices"),
		gen.AlphaString(),
		gen.AlphaString(),
		gen.Bool(),
	))

	properties.TestingRun(t)
}
