package statement

import (
	"context"
	"database/sql"
	"fmt"

	"modernc.org/sqlite/vtab"
)

// module serves every virtual table created under one registered name. It
// keeps the database handle the statements run against.
type module struct {
	db *sql.DB
}

// Create builds a new table. args carries the module name, database name
// and table name, then the arguments written in CREATE VIRTUAL TABLE.
func (m *module) Create(ctx vtab.Context, args []string) (vtab.Table, error) {
	return m.connect(ctx, args)
}

// Connect re-derives the schema the same way Create does; derivation is
// cheap and deterministic. The entry points stay distinct so the engine
// does not treat the module as an eponymous table-valued function.
func (m *module) Connect(ctx vtab.Context, args []string) (vtab.Table, error) {
	return m.connect(ctx, args)
}

func (m *module) connect(ctx vtab.Context, args []string) (vtab.Table, error) {
	if len(args) < 4 || len(args[3]) < 3 {
		return nil, ErrNoStatement
	}
	text := args[3]
	if text[0] != '(' || text[len(text)-1] != ')' {
		return nil, ErrNotParenthesized
	}
	info, err := scanStatement(text[1 : len(text)-1])
	if err != nil {
		return nil, err
	}
	if err := checkBindable(info.params); err != nil {
		return nil, err
	}
	outputs, err := inspectStatement(context.Background(), m.db, info)
	if err != nil {
		return nil, err
	}
	if err := ctx.Declare(renderDeclaration(outputs, info.params)); err != nil {
		return nil, err
	}
	return &table{db: m.db, info: info, numOutputs: len(outputs)}, nil
}

// table is one virtual table instance. All fields are fixed at connect
// time, so concurrently open cursors share it without locking.
type table struct {
	db         *sql.DB
	info       statementInfo
	numOutputs int
}

func (t *table) BestIndex(info *vtab.IndexInfo) error {
	return planIndex(t.numOutputs, info)
}

func (t *table) Open() (vtab.Cursor, error) {
	return &cursor{table: t, eof: true}, nil
}

func (t *table) Disconnect() error { return nil }

func (t *table) Destroy() error { return nil }

// cursor is one scan over a table. Each Filter call starts an independent
// execution of the statement; nothing is shared with other cursors.
type cursor struct {
	table *table

	rows  *sql.Rows
	row   []any        // current row's output values
	ptrs  []any        // scan destinations, one per output
	args  []vtab.Value // filter arguments, echoed through hidden columns
	rowid int64
	eof   bool
}

// Filter binds the supplied values and starts the statement. Argument
// position i serves parameter ordinal i+1 directly unless a mapping payload
// assigns it elsewhere. An immediate empty result is not an error.
func (c *cursor) Filter(idxNum int, idxStr string, vals []vtab.Value) error {
	if err := c.reset(); err != nil {
		return err
	}
	if idxNum == planUnbound {
		return ErrUnboundPlan
	}
	if idxStr != "" && len(idxStr) != len(vals)*paramIndexWidth {
		return fmt.Errorf("statement: mapping payload carries %d bytes for %d arguments", len(idxStr), len(vals))
	}

	params := c.table.info.params
	args := nullArgs(params)
	for i, v := range vals {
		target := i + 1
		if idxStr != "" {
			target = decodeParamIndex(idxStr[i*paramIndexWidth:])
		}
		if target < 1 || target > len(params) {
			return fmt.Errorf("statement: parameter ordinal %d out of range 1..%d", target, len(params))
		}
		if name := params[target-1]; bindsByName(name) {
			args[target-1] = sql.Named(bareName(name), v)
		} else {
			args[target-1] = v
		}
	}

	rows, err := c.table.db.QueryContext(context.Background(), c.table.info.head, args...)
	if err != nil {
		return err
	}
	c.rows = rows
	c.args = vals
	c.rowid = 1
	c.eof = false
	c.row = make([]any, c.table.numOutputs)
	c.ptrs = make([]any, len(c.row))
	for i := range c.row {
		c.ptrs[i] = &c.row[i]
	}
	return c.step()
}

// Next advances to the following row. Exhaustion parks the cursor at end of
// scan rather than failing.
func (c *cursor) Next() error {
	if c.eof || c.rows == nil {
		return nil
	}
	if err := c.step(); err != nil {
		return err
	}
	if !c.eof {
		c.rowid++
	}
	return nil
}

func (c *cursor) step() error {
	if c.rows.Next() {
		return c.rows.Scan(c.ptrs...)
	}
	c.eof = true
	return c.rows.Err()
}

func (c *cursor) Eof() bool { return c.eof }

// Column serves output columns from the current row and parameter columns
// from the retained filter arguments. A parameter column beyond the
// argument list was not constrained this scan and reads as NULL.
func (c *cursor) Column(col int) (vtab.Value, error) {
	if col < c.table.numOutputs {
		if c.row == nil {
			return nil, nil
		}
		return c.row[col], nil
	}
	if i := col - c.table.numOutputs; i < len(c.args) {
		return c.args[i], nil
	}
	return nil, nil
}

func (c *cursor) Rowid() (int64, error) { return c.rowid, nil }

// Close ends the scan. It is safe in any state, including mid-iteration.
func (c *cursor) Close() error { return c.reset() }

// reset clears all scan state. Filter may be called repeatedly on one
// cursor; every call starts from a clean slate.
func (c *cursor) reset() error {
	c.row = nil
	c.ptrs = nil
	c.args = nil
	c.rowid = 0
	c.eof = true
	if c.rows == nil {
		return nil
	}
	rows := c.rows
	c.rows = nil
	return rows.Close()
}
