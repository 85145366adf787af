// Package stmtvtab exposes precompiled, read-only SQL statements as SQLite
// virtual tables.
//
// A statement table is created from a single SELECT (or any other read-only
// statement) whose text is fixed at creation time. Its result columns become
// ordinary table columns; its bind parameters become hidden columns. Querying
// the table runs the statement, and constraining a hidden column with
// equality binds that value to the matching parameter first:
//
//	CREATE VIRTUAL TABLE grownups USING statement((
//	    select name, age from people where age >= :min order by name
//	));
//	SELECT name FROM grownups WHERE min = 18;
//
// Because hidden columns also accept positional arguments, every statement
// table doubles as a table-valued function:
//
//	SELECT name FROM grownups(18);
//
// # Basic Usage
//
// Register the module on a database handle before it serves queries, then
// create tables either by hand or through CreateTable:
//
//	db, _ := sql.Open("sqlite", "app.db")
//	if err := stmtvtab.Register(db); err != nil {
//	    log.Fatal(err)
//	}
//	err := stmtvtab.CreateTable(ctx, db, "grownups",
//	    "select name, age from people where age >= :min order by name")
//
// # Inspection
//
// Describe reports the schema a statement would be declared with, without
// creating anything:
//
//	def, _ := stmtvtab.Describe(ctx, db, "select name from people where age >= :min")
//	fmt.Println(def.NumOutputs, def.NumInputs) // 1 1
//
// # Connection Pools
//
// Three properties of database/sql matter here:
//
//   - Register installs the module on connections as the pool opens them;
//     it must run before the first query.
//   - Running a statement table acquires a second pool connection while the
//     outer query holds its own, so the pool must allow at least two open
//     connections. Do not combine this package with SetMaxOpenConns(1).
//   - A plain ":memory:" DSN gives every pool connection its own private
//     database. Use a file-backed database so all connections see the same
//     schema.
//
// Module names are process-wide: one registered name serves exactly one
// database handle. Use RegisterAs to give additional handles their own
// module names.
package stmtvtab

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/SimonWaldherr/stmtvtab/internal/statement"
)

// ============================================================================
// Core Types - Re-exported from internal packages for public API
// ============================================================================

// Definition describes the virtual shape a statement is given: the declared
// schema, the derived column list, and the parameter/result counts.
type Definition = statement.Definition

// Column is one declared column of a statement table. Hidden columns carry
// parameter values; the others carry statement results.
type Column = statement.Column

// DefaultModule is the module name Register installs.
const DefaultModule = statement.DefaultModule

// ============================================================================
// Errors
// ============================================================================

// Sentinel errors reported during table creation and querying. Creation
// errors travel through the engine, so matching their text with errors like
// "no statement provided" also works from raw CREATE VIRTUAL TABLE calls.
var (
	// ErrNoStatement means the module arguments carry no statement text.
	ErrNoStatement = statement.ErrNoStatement
	// ErrNotParenthesized means the statement argument is missing its
	// surrounding parentheses.
	ErrNotParenthesized = statement.ErrNotParenthesized
	// ErrNotReadOnly means the statement would write to the database.
	ErrNotReadOnly = statement.ErrNotReadOnly
	// ErrBadParameterName means a parameter exists that database/sql can
	// never bind, such as ":1x" or two spellings of one bare name.
	ErrBadParameterName = statement.ErrBadParameterName
	// ErrUnsupportedConstraint means a parameter column was constrained
	// with something other than equality.
	ErrUnsupportedConstraint = statement.ErrUnsupportedConstraint
	// ErrUnboundPlan means the chosen query plan cannot deliver parameter
	// values, typically because a join forced the table into an outer loop.
	ErrUnboundPlan = statement.ErrUnboundPlan
)

// ============================================================================
// Registration
// ============================================================================

// Register installs the statement module on db under DefaultModule.
// It must be called before db serves its first query.
func Register(db *sql.DB) error {
	return statement.Register(db, DefaultModule)
}

// RegisterAs installs the statement module on db under a custom name.
// Module names are process-wide, so a second database handle needs its own
// name.
func RegisterAs(db *sql.DB, name string) error {
	return statement.Register(db, name)
}

// ============================================================================
// Table Management
// ============================================================================

// CreateTable creates a statement table named name from query, using the
// module installed by Register. The query is passed bare, without the
// parentheses CREATE VIRTUAL TABLE arguments need.
func CreateTable(ctx context.Context, db *sql.DB, name, query string) error {
	return CreateTableAs(ctx, db, DefaultModule, name, query)
}

// CreateTableAs is CreateTable for a module registered under a custom name.
func CreateTableAs(ctx context.Context, db *sql.DB, module, name, query string) error {
	ddl := fmt.Sprintf("CREATE VIRTUAL TABLE %s USING %s((%s))",
		statement.QuoteIdent(name), statement.QuoteIdent(module), query)
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("stmtvtab: create table %q: %w", name, err)
	}
	return nil
}

// DropTable removes a statement table. Dropping a table that does not exist
// is not an error.
func DropTable(ctx context.Context, db *sql.DB, name string) error {
	if _, err := db.ExecContext(ctx, "DROP TABLE IF EXISTS "+statement.QuoteIdent(name)); err != nil {
		return fmt.Errorf("stmtvtab: drop table %q: %w", name, err)
	}
	return nil
}

// Describe probes query the way table creation does and reports the shape it
// would be declared with. No table is created and nothing is executed beyond
// a single read-only probe.
func Describe(ctx context.Context, db *sql.DB, query string) (*Definition, error) {
	return statement.Describe(ctx, db, query)
}
