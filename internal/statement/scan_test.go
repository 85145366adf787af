package statement

import (
	"errors"
	"reflect"
	"strings"
	"testing"
)

func TestScanStatementParams(t *testing.T) {
	tests := []struct {
		name   string
		sql    string
		params []string
	}{
		{"none", "select 1", nil},
		{"anonymous", "select ?, ?", []string{"", ""}},
		{"named", "select :a, :b", []string{":a", ":b"}},
		{"named reuse", "select :a, :b, :a", []string{":a", ":b"}},
		{"marker kinds", "select :a, @b, $c", []string{":a", "@b", "$c"}},
		{"numbered", "select ?3", []string{"", "", "?3"}},
		{"numbered then anonymous", "select ?3, ?", []string{"", "", "?3", ""}},
		{"numbered fills gap name", "select ?3, ?2", []string{"", "?2", "?3"}},
		{"numbered keeps earlier name", "select :a, ?1", []string{":a"}},
		{"numbered before named", "select ?1, :a", []string{"?1", ":a"}},
		{"mixed", "select ?, :n, ?2", []string{"", ":n"}},
		{"quoted regions", `select '?', ":x", ` + "`@y`" + `, [$z]`, nil},
		{"escaped quote", "select 'it''s ?', :a", []string{":a"}},
		{"line comment", "select 1 -- :x\n, :y", []string{":y"}},
		{"block comment", "select /* :x */ :y", []string{":y"}},
		{"tcl namespace", "select $x::y", []string{"$x::y"}},
		{"tcl array", "select $arr(key)", []string{"$arr(key)"}},
		{"multibyte name", "select :größe", []string{":größe"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info, err := scanStatement(tt.sql)
			if err != nil {
				t.Fatalf("scanStatement(%q): %v", tt.sql, err)
			}
			if !reflect.DeepEqual(info.params, tt.params) {
				t.Fatalf("scanStatement(%q) params = %q, want %q", tt.sql, info.params, tt.params)
			}
		})
	}
}

func TestScanStatementHead(t *testing.T) {
	tests := []struct {
		name      string
		sql       string
		head      string
		numParams int
	}{
		{"single statement", "select 1", "select 1", 0},
		{"trailing statement dropped", "select ? as v; drop table t", "select ? as v", 1},
		{"params after split ignored", "select 1; select :x", "select 1", 0},
		{"semicolon in literal", "select ';', ?", "select ';', ?", 1},
		{"semicolon in comment", "select ? /* ; */ as v", "select ? /* ; */ as v", 1},
		{"semicolon in bracket ident", "select [a;b] from t; drop table t", "select [a;b] from t", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info, err := scanStatement(tt.sql)
			if err != nil {
				t.Fatalf("scanStatement(%q): %v", tt.sql, err)
			}
			if info.head != tt.head {
				t.Fatalf("head = %q, want %q", info.head, tt.head)
			}
			if len(info.params) != tt.numParams {
				t.Fatalf("params = %q, want %d entries", info.params, tt.numParams)
			}
		})
	}
}

func TestScanStatementEmpty(t *testing.T) {
	for _, sql := range []string{"", "   \t\n", "; select 1"} {
		if _, err := scanStatement(sql); !errors.Is(err, ErrNoStatement) {
			t.Fatalf("scanStatement(%q) err = %v, want ErrNoStatement", sql, err)
		}
	}
}

func TestScanStatementVariableNumber(t *testing.T) {
	for _, sql := range []string{"select ?0", "select ?32767", "select ?99999999999999999999"} {
		_, err := scanStatement(sql)
		if err == nil || !strings.Contains(err.Error(), "variable number") {
			t.Fatalf("scanStatement(%q) err = %v, want variable number error", sql, err)
		}
	}
	info, err := scanStatement("select ?32766")
	if err != nil {
		t.Fatalf("scanStatement(?32766): %v", err)
	}
	if len(info.params) != maxVariableNumber {
		t.Fatalf("params length = %d, want %d", len(info.params), maxVariableNumber)
	}
}
