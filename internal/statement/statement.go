// Package statement implements a virtual table module that exposes a
// precompiled, read-only SQL statement as a queryable table.
//
// What: A table created with CREATE VIRTUAL TABLE ... USING statement((sql))
// presents the statement's result columns as ordinary columns and its bind
// parameters as hidden columns. Constraining a hidden column with equality,
// or calling the table as a table-valued function with positional arguments,
// binds the value into the statement before it runs; bound values are echoed
// back through their hidden columns.
// How: Creation scans the statement text for parameters, probes it once on a
// throwaway connection under PRAGMA query_only to capture its result shape
// and prove it cannot write, and declares the derived schema. Per query, the
// planner accepts equality constraints on parameter columns and tells the
// engine where to deliver each value, emitting a compact mapping payload
// when argument positions and parameter ordinals diverge. Each cursor runs
// the statement through the connection pool and serves rows until
// exhaustion.
// Why: Precompiling a query behind a table name gives callers a stable,
// injection-free surface: the SQL is fixed at creation time and only values
// travel at query time.
package statement

import (
	"context"
	"database/sql"
	"fmt"

	"modernc.org/sqlite/vtab"
)

// DefaultModule is the conventional module name for statement tables.
const DefaultModule = "statement"

// Register installs the module on db under the given name. Modules are
// installed on pool connections as they are opened, so Register must run
// before db has served queries. Module names are process-wide in the
// driver: registering the same name for a second database fails, use a
// distinct name per database instead.
func Register(db *sql.DB, name string) error {
	if db == nil {
		return fmt.Errorf("statement: register %q: nil database handle", name)
	}
	if err := vtab.RegisterModule(db, name, &module{db: db}); err != nil {
		return fmt.Errorf("statement: register %q: %w", name, err)
	}
	return nil
}

// Definition describes the virtual shape a statement is given: the declared
// schema and the derived column list.
type Definition struct {
	DDL        string   // declaration handed to the engine
	Columns    []Column // outputs first, then one hidden column per parameter
	NumInputs  int
	NumOutputs int
}

// Column is one declared column of a statement table.
type Column struct {
	Name     string
	DeclType string // empty for expression outputs and for hidden columns
	Hidden   bool
}

// Describe probes query exactly the way table creation does and reports the
// shape it would be declared with. The query is passed bare, without the
// parentheses CREATE VIRTUAL TABLE arguments need.
func Describe(ctx context.Context, db *sql.DB, query string) (*Definition, error) {
	info, err := scanStatement(query)
	if err != nil {
		return nil, err
	}
	if err := checkBindable(info.params); err != nil {
		return nil, err
	}
	outputs, err := inspectStatement(ctx, db, info)
	if err != nil {
		return nil, err
	}
	def := &Definition{
		DDL:        renderDeclaration(outputs, info.params),
		Columns:    make([]Column, 0, len(outputs)+len(info.params)),
		NumInputs:  len(info.params),
		NumOutputs: len(outputs),
	}
	for _, col := range outputs {
		def.Columns = append(def.Columns, Column{Name: col.name, DeclType: col.declType})
	}
	for i, name := range info.params {
		def.Columns = append(def.Columns, Column{Name: hiddenColumnName(i, name), Hidden: true})
	}
	return def, nil
}
