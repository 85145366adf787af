package statement

import (
	"strconv"
	"strings"
)

// resultColumn is one result column of a probed statement.
type resultColumn struct {
	name     string
	declType string // "" when the column is an expression with no declared type
}

// renderDeclaration builds the CREATE TABLE declaration for a statement's
// shape: every result column in statement order, then one hidden column per
// parameter ordinal. Column names are emitted as quoted literals so
// arbitrary parameter names stay valid identifiers.
func renderDeclaration(outputs []resultColumn, params []string) string {
	cols := make([]string, 0, len(outputs)+len(params))
	for _, col := range outputs {
		c := quoteLiteral(col.name)
		if col.declType != "" {
			c += " " + col.declType
		}
		cols = append(cols, c)
	}
	for i, name := range params {
		cols = append(cols, quoteLiteral(hiddenColumnName(i, name))+" hidden")
	}
	return "CREATE TABLE x(" + strings.Join(cols, ",") + ")"
}

// hiddenColumnName names the hidden column for parameter ordinal i+1: the
// parameter's name with its marker stripped, or the ordinal itself when the
// parameter is anonymous.
func hiddenColumnName(i int, name string) string {
	if name == "" {
		return strconv.Itoa(i + 1)
	}
	return name[1:]
}

// quoteLiteral renders s as a single-quoted SQL string, doubling embedded
// quotes.
func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// QuoteIdent renders s as a double-quoted SQL identifier.
func QuoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
