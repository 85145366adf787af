// Package catalog loads statement table definitions from YAML and applies
// them to a database.
//
// A catalog file names a set of statement tables and the queries behind
// them. Applying the catalog creates the tables through the statement
// module; a Reloader can re-apply the file on a schedule so a running
// service picks up catalog edits without restarting.
package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/SimonWaldherr/stmtvtab/internal/statement"
)

// Statement is one statement table definition.
type Statement struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description,omitempty"`
	SQL         string `yaml:"sql"`
	// Replace re-creates the table on every apply, picking up SQL edits.
	// Without it an existing table is left untouched.
	Replace bool `yaml:"replace,omitempty"`
}

// Catalog is a parsed catalog file.
type Catalog struct {
	// Module is the registered module name the tables are created with.
	// Empty means the default module.
	Module     string      `yaml:"module,omitempty"`
	Statements []Statement `yaml:"statements"`
}

// Load reads and parses a catalog file.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}
	return Parse(data)
}

// Parse parses catalog YAML and validates it.
func Parse(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("catalog: parse: %w", err)
	}
	if c.Module == "" {
		c.Module = statement.DefaultModule
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks the static parts of the catalog: every statement needs a
// unique name and query text. Whether each query is valid SQL is decided by
// the database when the catalog is applied.
func (c *Catalog) Validate() error {
	if len(c.Statements) == 0 {
		return fmt.Errorf("catalog: no statements defined")
	}
	seen := make(map[string]bool, len(c.Statements))
	for i, st := range c.Statements {
		if strings.TrimSpace(st.Name) == "" {
			return fmt.Errorf("catalog: statement %d has no name", i+1)
		}
		if seen[st.Name] {
			return fmt.Errorf("catalog: duplicate statement name %q", st.Name)
		}
		seen[st.Name] = true
		if strings.TrimSpace(st.SQL) == "" {
			return fmt.Errorf("catalog: statement %q has no sql", st.Name)
		}
	}
	return nil
}

// Apply creates every statement table in the catalog. Tables marked replace
// are dropped and re-created; the others are created only if missing. The
// first failing statement aborts the apply so a broken catalog edit does not
// take down the tables after it.
func (c *Catalog) Apply(ctx context.Context, db *sql.DB) error {
	for _, st := range c.Statements {
		if err := c.applyOne(ctx, db, st); err != nil {
			return fmt.Errorf("catalog: apply %q: %w", st.Name, err)
		}
	}
	return nil
}

func (c *Catalog) applyOne(ctx context.Context, db *sql.DB, st Statement) error {
	name := statement.QuoteIdent(st.Name)
	ifNotExists := " IF NOT EXISTS"
	if st.Replace {
		if _, err := db.ExecContext(ctx, "DROP TABLE IF EXISTS "+name); err != nil {
			return err
		}
		ifNotExists = ""
	}
	ddl := fmt.Sprintf("CREATE VIRTUAL TABLE%s %s USING %s((%s))",
		ifNotExists, name, statement.QuoteIdent(c.Module), st.SQL)
	_, err := db.ExecContext(ctx, ddl)
	return err
}

// Lookup returns the definition of a named statement, if present.
func (c *Catalog) Lookup(name string) (Statement, bool) {
	for _, st := range c.Statements {
		if st.Name == name {
			return st, true
		}
	}
	return Statement{}, false
}
