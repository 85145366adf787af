package statement

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"unicode"
	"unicode/utf8"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// inspectStatement runs the statement once on a dedicated connection with
// PRAGMA query_only set, capturing its result columns. A statement that
// attempts to write fails here with ErrNotReadOnly instead of reaching the
// database.
func inspectStatement(ctx context.Context, db *sql.DB, info statementInfo) ([]resultColumn, error) {
	conn, err := db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("statement probe: %w", err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, "PRAGMA query_only=ON"); err != nil {
		return nil, fmt.Errorf("statement probe: %w", err)
	}
	defer func() {
		if _, err := conn.ExecContext(ctx, "PRAGMA query_only=OFF"); err != nil {
			// The pragma must not ride back into the pool on this
			// connection; discard it.
			_ = conn.Raw(func(any) error { return driver.ErrBadConn })
		}
	}()

	rows, err := conn.QueryContext(ctx, info.head, nullArgs(info.params)...)
	if err != nil {
		var se *sqlite.Error
		if errors.As(err, &se) && se.Code()&0xff == sqlite3.SQLITE_READONLY {
			return nil, ErrNotReadOnly
		}
		return nil, err
	}
	defer rows.Close()

	names, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	types, err := rows.ColumnTypes()
	if err != nil {
		return nil, err
	}
	outputs := make([]resultColumn, len(names))
	for i, name := range names {
		outputs[i] = resultColumn{name: name, declType: types[i].DatabaseTypeName()}
	}
	return outputs, nil
}

// nullArgs builds an argument list that leaves every parameter NULL. Named
// parameters need a matching sql.Named entry; anonymous and ?NNN parameters
// match by position.
func nullArgs(params []string) []any {
	args := make([]any, len(params))
	for i, name := range params {
		if bindsByName(name) {
			args[i] = sql.Named(bareName(name), nil)
		}
	}
	return args
}

// bindsByName reports whether a parameter must be supplied as a named
// argument. ?NNN parameters carry a name but bind by position.
func bindsByName(name string) bool {
	return name != "" && name[0] != '?'
}

// bareName strips the marker character from a parameter name.
func bareName(name string) string { return name[1:] }

// checkBindable rejects parameters that database/sql cannot address. Named
// arguments are matched by bare name, so the bare name must begin with a
// letter or underscore and must be unique across marker characters.
func checkBindable(params []string) error {
	seen := make(map[string]string)
	for _, name := range params {
		if !bindsByName(name) {
			continue
		}
		bare := bareName(name)
		r, _ := utf8.DecodeRuneInString(bare)
		if !unicode.IsLetter(r) && r != '_' {
			return fmt.Errorf("%w: %q", ErrBadParameterName, name)
		}
		if prev, ok := seen[bare]; ok {
			return fmt.Errorf("%w: %q and %q bind the same argument", ErrBadParameterName, prev, name)
		}
		seen[bare] = name
	}
	return nil
}
