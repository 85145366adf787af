// Command stmtq runs statement tables from the terminal.
//
// One-shot mode calls a single statement table (-name, trailing arguments
// become its inputs) or runs raw SQL (-sql), prints the rows in the chosen
// format and exits. Without either flag it drops into an interactive shell.
package main

import (
	"bufio"
	"context"
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/SimonWaldherr/stmtvtab"
	"github.com/SimonWaldherr/stmtvtab/internal/catalog"
	"github.com/SimonWaldherr/stmtvtab/internal/statement"
)

// Flags
var (
	flagDSN      = flag.String("dsn", "", "SQLite database path (required)")
	flagCatalog  = flag.String("catalog", "", "Catalog YAML to apply before running (optional)")
	flagModule   = flag.String("module", stmtvtab.DefaultModule, "Module name to register")
	flagName     = flag.String("name", "", "Statement table to call; trailing arguments are its inputs")
	flagSQL      = flag.String("sql", "", "Run a single SQL statement and exit")
	flagDescribe = flag.String("describe", "", "Print the derived schema of a query and exit")
	flagFormat   = flag.String("format", "table", "Output format: table, csv, tsv, json, yaml, markdown")
)

func main() {
	flag.Parse()
	if *flagDSN == "" {
		log.Fatal("missing -dsn")
	}

	db, err := sql.Open("sqlite", *flagDSN)
	if err != nil {
		log.Fatalf("open error: %v", err)
	}
	defer db.Close()

	if err := stmtvtab.RegisterAs(db, *flagModule); err != nil {
		log.Fatalf("register error: %v", err)
	}

	ctx := context.Background()
	if *flagCatalog != "" {
		cat, err := catalog.Load(*flagCatalog)
		if err != nil {
			log.Fatalf("catalog error: %v", err)
		}
		if cat.Module != *flagModule {
			if err := stmtvtab.RegisterAs(db, cat.Module); err != nil {
				log.Fatalf("register error: %v", err)
			}
		}
		if err := cat.Apply(ctx, db); err != nil {
			log.Fatalf("catalog apply error: %v", err)
		}
	}

	switch {
	case *flagDescribe != "":
		def, err := stmtvtab.Describe(ctx, db, *flagDescribe)
		if err != nil {
			log.Fatalf("describe error: %v", err)
		}
		printDefinition(def)
	case *flagName != "":
		q, args := callQuery(*flagName, flag.Args())
		if err := run(ctx, db, q, args, *flagFormat); err != nil {
			log.Fatalf("query error: %v", err)
		}
	case *flagSQL != "":
		if err := run(ctx, db, *flagSQL, nil, *flagFormat); err != nil {
			log.Fatalf("query error: %v", err)
		}
	default:
		runShell(ctx, db, *flagFormat)
	}
}

// callQuery builds the table-valued call for a statement table name and its
// command line arguments.
func callQuery(name string, raw []string) (string, []any) {
	if len(raw) == 0 {
		return "SELECT * FROM " + statement.QuoteIdent(name), nil
	}
	args := make([]any, len(raw))
	for i, s := range raw {
		args[i] = typedArg(s)
	}
	marks := strings.TrimSuffix(strings.Repeat("?,", len(args)), ",")
	return fmt.Sprintf("SELECT * FROM %s(%s)", statement.QuoteIdent(name), marks), args
}

// typedArg converts a command line argument to the narrowest SQL type.
func typedArg(s string) any {
	if strings.EqualFold(s, "null") {
		return nil
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}

func run(ctx context.Context, db *sql.DB, q string, args []any, format string) error {
	rows, err := db.QueryContext(ctx, q, args...)
	if err != nil {
		return err
	}
	defer rows.Close()
	cols, recs, err := scanAll(rows)
	if err != nil {
		return err
	}
	return printRows(os.Stdout, cols, recs, format)
}

// scanAll drains a result set into column names and untyped cells.
func scanAll(rows *sql.Rows) ([]string, [][]any, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, nil, err
	}
	var recs [][]any
	for rows.Next() {
		cells := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range cells {
			ptrs[i] = &cells[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, nil, err
		}
		recs = append(recs, cells)
	}
	return cols, recs, rows.Err()
}

func printDefinition(def *stmtvtab.Definition) {
	fmt.Printf("outputs: %d  inputs: %d\n", def.NumOutputs, def.NumInputs)
	recs := make([][]any, len(def.Columns))
	for i, c := range def.Columns {
		role := "output"
		if c.Hidden {
			role = "input"
		}
		recs[i] = []any{c.Name, c.DeclType, role}
	}
	printTable(os.Stdout, []string{"column", "type", "role"}, recs)
}

// ==================== Interactive Shell ====================

func runShell(ctx context.Context, db *sql.DB, format string) {
	fmt.Println("stmtq shell (database/sql). Type .help for help, .quit to exit.")
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 1024*1024), 4*1024*1024)
	for {
		fmt.Print("stmtq> ")
		if !scanner.Scan() {
			fmt.Println()
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, ".") {
			if quit := metaCommand(ctx, db, line, &format); quit {
				return
			}
			continue
		}
		if err := run(ctx, db, line, nil, format); err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
		}
	}
}

func metaCommand(ctx context.Context, db *sql.DB, line string, format *string) bool {
	fields := strings.Fields(line)
	switch fields[0] {
	case ".quit", ".exit":
		return true
	case ".help":
		fmt.Println(".help             show this help")
		fmt.Println(".tables           list tables")
		fmt.Println(".format <name>    switch output format (table, csv, tsv, json, yaml, markdown)")
		fmt.Println(".quit             exit")
	case ".tables":
		err := run(ctx, db, "SELECT name FROM sqlite_master WHERE type = 'table' ORDER BY name", nil, *format)
		if err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
		}
	case ".format":
		if len(fields) != 2 {
			fmt.Fprintln(os.Stderr, "usage: .format <name>")
			break
		}
		*format = fields[1]
	default:
		fmt.Fprintf(os.Stderr, "unknown command %s\n", fields[0])
	}
	return false
}

// ==================== Output Formats ====================

func printRows(w io.Writer, cols []string, recs [][]any, format string) error {
	switch format {
	case "table":
		printTable(w, cols, recs)
	case "csv":
		printCSV(w, cols, recs)
	case "tsv":
		printTSV(w, cols, recs)
	case "markdown":
		printMarkdown(w, cols, recs)
	case "json":
		return printJSON(w, cols, recs)
	case "yaml":
		return printYAML(w, cols, recs)
	default:
		return fmt.Errorf("unknown format %q", format)
	}
	return nil
}

func printTable(w io.Writer, cols []string, recs [][]any) {
	widths := make([]int, len(cols))
	for i, c := range cols {
		widths[i] = len(c)
	}
	grid := make([][]string, len(recs))
	for r, rec := range recs {
		grid[r] = make([]string, len(cols))
		for i, v := range rec {
			s := cell(v)
			grid[r][i] = s
			if len(s) > widths[i] {
				widths[i] = len(s)
			}
		}
	}
	for i, c := range cols {
		if i > 0 {
			fmt.Fprint(w, "  ")
		}
		fmt.Fprint(w, padRight(c, widths[i]))
	}
	fmt.Fprintln(w)
	for i := range cols {
		if i > 0 {
			fmt.Fprint(w, "  ")
		}
		fmt.Fprint(w, strings.Repeat("-", widths[i]))
	}
	fmt.Fprintln(w)
	for _, rec := range grid {
		for i, s := range rec {
			if i > 0 {
				fmt.Fprint(w, "  ")
			}
			fmt.Fprint(w, padRight(s, widths[i]))
		}
		fmt.Fprintln(w)
	}
	fmt.Fprintf(w, "(%d rows)\n", len(recs))
}

func printCSV(w io.Writer, cols []string, recs [][]any) {
	line := make([]string, len(cols))
	for i, c := range cols {
		line[i] = csvEscape(c)
	}
	fmt.Fprintln(w, strings.Join(line, ","))
	for _, rec := range recs {
		for i, v := range rec {
			line[i] = csvEscape(cell(v))
		}
		fmt.Fprintln(w, strings.Join(line, ","))
	}
}

func csvEscape(s string) string {
	if strings.ContainsAny(s, ",\"\n") {
		return "\"" + strings.ReplaceAll(s, "\"", "\"\"") + "\""
	}
	return s
}

func printTSV(w io.Writer, cols []string, recs [][]any) {
	fmt.Fprintln(w, strings.Join(cols, "\t"))
	line := make([]string, len(cols))
	for _, rec := range recs {
		for i, v := range rec {
			line[i] = cell(v)
		}
		fmt.Fprintln(w, strings.Join(line, "\t"))
	}
}

func printMarkdown(w io.Writer, cols []string, recs [][]any) {
	fmt.Fprintln(w, "| "+strings.Join(cols, " | ")+" |")
	seps := make([]string, len(cols))
	for i := range seps {
		seps[i] = "---"
	}
	fmt.Fprintln(w, "| "+strings.Join(seps, " | ")+" |")
	line := make([]string, len(cols))
	for _, rec := range recs {
		for i, v := range rec {
			line[i] = cell(v)
		}
		fmt.Fprintln(w, "| "+strings.Join(line, " | ")+" |")
	}
}

func printJSON(w io.Writer, cols []string, recs [][]any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(toMaps(cols, recs))
}

func printYAML(w io.Writer, cols []string, recs [][]any) error {
	data, err := yaml.Marshal(toMaps(cols, recs))
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

func toMaps(cols []string, recs [][]any) []map[string]any {
	out := make([]map[string]any, len(recs))
	for r, rec := range recs {
		m := make(map[string]any, len(cols))
		for i, c := range cols {
			if b, ok := rec[i].([]byte); ok {
				m[c] = string(b)
			} else {
				m[c] = rec[i]
			}
		}
		out[r] = m
	}
	return out
}

// cell formats a single value for text output.
func cell(v any) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case []byte:
		return string(x)
	case string:
		return x
	default:
		return fmt.Sprintf("%v", x)
	}
}

func padRight(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return s + strings.Repeat(" ", width-len(s))
}
