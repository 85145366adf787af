package statement

import (
	"fmt"
	"strconv"
	"strings"
)

// maxVariableNumber mirrors SQLITE_MAX_VARIABLE_NUMBER as compiled into
// modernc.org/sqlite. ?NNN parameters beyond it are rejected here with the
// engine's own wording.
const maxVariableNumber = 32766

// statementInfo is the scanned shape of a statement's text.
type statementInfo struct {
	// head is the executable text: everything up to the first top-level
	// semicolon. database/sql runs every statement it is handed, so text
	// after the first statement must never reach it.
	head string

	// params holds one entry per parameter ordinal: params[i] is the name
	// of parameter i+1 as written, marker included (":n", "@n", "$n",
	// "?NNN"), or "" for anonymous parameters and for ordinals that exist
	// only because a larger ?NNN skipped them.
	params []string
}

// scanStatement tokenizes text the way the engine does, far enough to find
// the end of the first statement and its parameter table. Ordinals follow
// the engine's rules: "?" takes one more than the largest ordinal assigned
// so far, "?NNN" selects ordinal NNN directly without renaming it, and a
// named parameter reuses the ordinal of its first occurrence.
func scanStatement(text string) (statementInfo, error) {
	info := statementInfo{head: text}
	ordinals := make(map[string]int)
	i := 0
	for i < len(text) {
		c := text[i]
		switch {
		case c == ';':
			info.head = text[:i]
			i = len(text)
		case c == '\'' || c == '"' || c == '`':
			i = skipQuoted(text, i, c)
		case c == '[':
			i = skipBracketed(text, i)
		case c == '-' && i+1 < len(text) && text[i+1] == '-':
			i = skipLineComment(text, i)
		case c == '/' && i+1 < len(text) && text[i+1] == '*':
			i = skipBlockComment(text, i)
		case c == '?':
			j := i + 1
			for j < len(text) && isDigit(text[j]) {
				j++
			}
			if j == i+1 {
				info.params = append(info.params, "")
				i = j
				continue
			}
			n, err := strconv.Atoi(text[i+1 : j])
			if err != nil || n < 1 || n > maxVariableNumber {
				return statementInfo{}, fmt.Errorf("variable number must be between ?1 and ?%d", maxVariableNumber)
			}
			for len(info.params) < n {
				info.params = append(info.params, "")
			}
			if info.params[n-1] == "" {
				info.params[n-1] = text[i:j]
			}
			i = j
		case c == ':' || c == '@' || c == '$':
			j, ok := scanParamName(text, i)
			if ok {
				name := text[i:j]
				if _, seen := ordinals[name]; !seen {
					info.params = append(info.params, name)
					ordinals[name] = len(info.params)
				}
			}
			// A bare marker is an illegal token; leave it for the probe
			// to reject with the engine's own message.
			i = j
		default:
			i++
		}
	}
	if strings.TrimSpace(info.head) == "" {
		return statementInfo{}, ErrNoStatement
	}
	return info, nil
}

// scanParamName scans a named parameter token opened by the marker byte at
// text[i]. It returns the index just past the token and whether the token
// carries a usable name. The engine's TCL-era forms are matched: "::"
// extends a name and "(...)" closes one.
func scanParamName(text string, i int) (end int, ok bool) {
	n := 0
	j := i + 1
	for j < len(text) {
		c := text[j]
		if isIdChar(c) {
			n++
			j++
			continue
		}
		if c == '(' && n > 0 {
			j++
			for j < len(text) && !isSpace(text[j]) && text[j] != ')' {
				j++
			}
			if j < len(text) && text[j] == ')' {
				return j + 1, true
			}
			return j, false
		}
		if c == ':' && j+1 < len(text) && text[j+1] == ':' {
			j += 2
			continue
		}
		break
	}
	return j, n > 0
}

// skipQuoted returns the index just past a region quoted with q. A doubled
// quote is an escape; an unterminated region extends to the end of text.
func skipQuoted(text string, i int, q byte) int {
	j := i + 1
	for j < len(text) {
		if text[j] != q {
			j++
			continue
		}
		if j+1 < len(text) && text[j+1] == q {
			j += 2
			continue
		}
		return j + 1
	}
	return j
}

// skipBracketed returns the index just past a [bracketed] identifier, which
// has no escape form.
func skipBracketed(text string, i int) int {
	j := i + 1
	for j < len(text) && text[j] != ']' {
		j++
	}
	if j < len(text) {
		j++
	}
	return j
}

func skipLineComment(text string, i int) int {
	j := i + 2
	for j < len(text) && text[j] != '\n' {
		j++
	}
	return j
}

func skipBlockComment(text string, i int) int {
	for j := i + 2; j+1 < len(text); j++ {
		if text[j] == '*' && text[j+1] == '/' {
			return j + 2
		}
	}
	return len(text)
}

// isIdChar matches the engine's identifier class: ASCII alphanumerics,
// underscore, and every byte of a multibyte UTF-8 sequence.
func isIdChar(c byte) bool {
	return c >= 0x80 ||
		'a' <= c && c <= 'z' ||
		'A' <= c && c <= 'Z' ||
		isDigit(c) ||
		c == '_'
}

func isDigit(c byte) bool { return '0' <= c && c <= '9' }

func isSpace(c byte) bool {
	switch c {
	case ' ', '\t', '\n', '\v', '\f', '\r':
		return true
	}
	return false
}
