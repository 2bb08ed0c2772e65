// Package balancer routes SQL statements between the primary and secondary
// replicas: plain reads go to the secondary while it is online, everything
// else goes to the primary.
package balancer

import (
	"strings"

	"github.com/dd0wney/dualdb/pkg/config"
)

// Kind is the routing class of a statement.
type Kind string

const (
	KindRead     Kind = "read"
	KindWrite    Kind = "write"
	KindCritical Kind = "critical"
)

var readPrefixes = []string{"select", "show", "explain", "describe"}

// IsReadQuery reports whether the trimmed, lowercased statement starts with a
// read-only verb.
func IsReadQuery(sql string) bool {
	normalized := strings.ToLower(strings.TrimSpace(sql))
	for _, prefix := range readPrefixes {
		if strings.HasPrefix(normalized, prefix) {
			return true
		}
	}
	return false
}

// Classifier decides the routing class of statements.
type Classifier struct {
	critical []string
}

// NewClassifier creates a classifier for the given sensitive tables. An empty
// list means no statement is ever critical.
func NewClassifier(criticalTables []string) *Classifier {
	c := &Classifier{critical: make([]string, 0, len(criticalTables))}
	for _, t := range criticalTables {
		if t = strings.ToLower(strings.TrimSpace(t)); t != "" {
			c.critical = append(c.critical, t)
		}
	}
	return c
}

// DefaultClassifier uses config.DefaultCriticalTables.
func DefaultClassifier() *Classifier {
	return NewClassifier(config.DefaultCriticalTables)
}

// IsCriticalQuery reports whether the statement mentions a sensitive table
// anywhere in its text. The match is a case-insensitive substring, so
// "users_archive" or a string literal containing "invoices" also match.
func (c *Classifier) IsCriticalQuery(sql string) bool {
	normalized := strings.ToLower(sql)
	for _, table := range c.critical {
		if strings.Contains(normalized, table) {
			return true
		}
	}
	return false
}

// Classify applies the routing rules in order: critical overrides the verb,
// then read verbs, then everything else is a write.
func (c *Classifier) Classify(sql string) Kind {
	switch {
	case c.IsCriticalQuery(sql):
		return KindCritical
	case IsReadQuery(sql):
		return KindRead
	default:
		return KindWrite
	}
}

// CriticalTables returns the configured sensitive tables.
func (c *Classifier) CriticalTables() []string {
	return append([]string(nil), c.critical...)
}
