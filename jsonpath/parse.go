package jsonpath

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrSyntax is wrapped by every error returned from Parse.
var ErrSyntax = errors.New("path syntax error")

func syntaxErrf(pos int, format string, args ...any) error {
	return fmt.Errorf("%w at offset %d: %s", ErrSyntax, pos, fmt.Sprintf(format, args...))
}

// Parse parses the textual form of a path. The empty string parses to the
// empty path, which addresses the document root.
func Parse(s string) (Path, error) {
	var (
		p   Path
		pos = 0
	)
	for pos < len(s) {
		switch s[pos] {
		case '.':
			if pos == 0 {
				return nil, syntaxErrf(pos, "leading '.'")
			}
			pos++
			field, n, err := parseField(s, pos)
			if err != nil {
				return nil, err
			}
			p = append(p, Segment{Field: &field})
			pos = n
		case '[':
			seg, n, err := parseBracket(s, pos)
			if err != nil {
				return nil, err
			}
			p = append(p, seg)
			pos = n
		default:
			if pos != 0 {
				return nil, syntaxErrf(pos, "expected '.' or '[', got %q", s[pos])
			}
			field, n, err := parseField(s, pos)
			if err != nil {
				return nil, err
			}
			p = append(p, Segment{Field: &field})
			pos = n
		}
	}
	return p, nil
}

// MustParse is Parse for paths known valid at compile time.
func MustParse(s string) Path {
	p, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return p
}

func isIdentStart(c byte) bool {
	return c == '_' || c == '$' ||
		(c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdent(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}

func parseField(s string, pos int) (string, int, error) {
	if pos >= len(s) || !isIdentStart(s[pos]) {
		return "", 0, syntaxErrf(pos, "expected attribute name")
	}
	end := pos
	for end < len(s) && isIdent(s[end]) {
		end++
	}
	return s[pos:end], end, nil
}

// parseBracket parses one "[...]" segment starting at the '[' in s[pos].
func parseBracket(s string, pos int) (Segment, int, error) {
	close := closingBracket(s, pos)
	if close == -1 {
		return Segment{}, 0, syntaxErrf(pos, "unclosed '['")
	}
	inner := s[pos+1 : close]
	next := close + 1
	if inner == "" {
		return Segment{}, 0, syntaxErrf(pos, "empty '[]'")
	}
	// Key predicates contain '==', but the quoted value might too, so look
	// for the operator before any quote.
	if i := strings.Index(inner, "=="); i >= 0 && !strings.ContainsAny(inner[:i], `"'`) {
		km, err := parseKeyMatch(inner, pos+1)
		if err != nil {
			return Segment{}, 0, err
		}
		return Segment{Key: km}, next, nil
	}
	if i := strings.IndexByte(inner, ':'); i >= 0 {
		r := &Range{}
		if i > 0 {
			start, err := strconv.Atoi(inner[:i])
			if err != nil {
				return Segment{}, 0, syntaxErrf(pos+1, "invalid range start %q", inner[:i])
			}
			r.Start = &start
		}
		if i < len(inner)-1 {
			end, err := strconv.Atoi(inner[i+1:])
			if err != nil {
				return Segment{}, 0, syntaxErrf(pos+1, "invalid range end %q", inner[i+1:])
			}
			r.End = &end
		}
		return Segment{Range: r}, next, nil
	}
	idx, err := strconv.Atoi(inner)
	if err != nil {
		return Segment{}, 0, syntaxErrf(pos+1, "invalid index %q", inner)
	}
	return Segment{Index: &idx}, next, nil
}

// closingBracket returns the offset of the ']' matching the '[' at s[pos],
// skipping over quoted predicate values, or -1.
func closingBracket(s string, pos int) int {
	var quote byte
	for i := pos + 1; i < len(s); i++ {
		c := s[i]
		if quote != 0 {
			if c == '\\' && quote == '"' {
				i++
				continue
			}
			if c == quote {
				quote = 0
			}
			continue
		}
		switch c {
		case '"', '\'':
			quote = c
		case ']':
			return i
		}
	}
	return -1
}

func parseKeyMatch(inner string, pos int) (*KeyMatch, error) {
	i := strings.Index(inner, "==")
	field := strings.TrimSpace(inner[:i])
	if field == "" {
		return nil, syntaxErrf(pos, "missing predicate field")
	}
	for j := 0; j < len(field); j++ {
		if j == 0 && !isIdentStart(field[j]) || !isIdent(field[j]) {
			return nil, syntaxErrf(pos, "invalid predicate field %q", field)
		}
	}
	lit := strings.TrimSpace(inner[i+2:])
	if len(lit) < 2 || (lit[0] != '"' && lit[0] != '\'') || lit[len(lit)-1] != lit[0] {
		return nil, syntaxErrf(pos, "predicate value must be a quoted string, got %q", lit)
	}
	var value string
	if lit[0] == '"' {
		v, err := strconv.Unquote(lit)
		if err != nil {
			return nil, syntaxErrf(pos, "bad quoted value %q: %v", lit, err)
		}
		value = v
	} else {
		value = lit[1 : len(lit)-1]
	}
	return &KeyMatch{Field: field, Value: value}, nil
}
