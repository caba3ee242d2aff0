package script

import (
	"fmt"
	"strings"
)

// SyntaxError reports a lexing or parsing failure. The message mirrors
// Python's phrasing because the decision agent sees it verbatim and replans
// from it.
type SyntaxError struct {
	Msg  string
	Line int
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("SyntaxError: %s at line %d", e.Msg, e.Line)
}

type lexer struct {
	src         string
	pos         int
	line        int
	indents     []int
	parenDepth  int
	atLineStart bool
	tokens      []token
}

// lex tokenizes source with Python-style significant indentation. Brackets
// suppress newlines, blank lines and comments are skipped.
func lex(src string) ([]token, error) {
	l := &lexer{
		src:         strings.ReplaceAll(src, "\r\n", "\n"),
		line:        1,
		indents:     []int{0},
		atLineStart: true,
	}
	if err := l.run(); err != nil {
		return nil, err
	}
	return l.tokens, nil
}

func (l *lexer) errorf(format string, args ...any) error {
	return &SyntaxError{Msg: fmt.Sprintf(format, args...), Line: l.line}
}

func (l *lexer) emit(kind tokenKind, text string) {
	l.tokens = append(l.tokens, token{kind: kind, text: text, line: l.line})
}

func (l *lexer) peek() byte {
	if l.pos >= len(l.src) {
		return 0
	}
	return l.src[l.pos]
}

func (l *lexer) peekAt(offset int) byte {
	if l.pos+offset >= len(l.src) {
		return 0
	}
	return l.src[l.pos+offset]
}

func (l *lexer) run() error {
	for l.pos < len(l.src) {
		if l.atLineStart && l.parenDepth == 0 {
			if err := l.handleIndent(); err != nil {
				return err
			}
			if l.pos >= len(l.src) {
				break
			}
		}

		c := l.peek()
		switch {
		case c == '\n':
			l.pos++
			l.line++
			if l.parenDepth == 0 {
				if n := len(l.tokens); n > 0 && l.tokens[n-1].kind != tokNewline && l.tokens[n-1].kind != tokIndent && l.tokens[n-1].kind != tokDedent {
					l.emit(tokNewline, "\n")
				}
				l.atLineStart = true
			}
		case c == '#':
			for l.pos < len(l.src) && l.src[l.pos] != '\n' {
				l.pos++
			}
		case c == ' ' || c == '\t':
			l.pos++
		case c == '"' || c == '\'':
			if err := l.lexString(false); err != nil {
				return err
			}
		case (c == 'f' || c == 'F') && (l.peekAt(1) == '"' || l.peekAt(1) == '\''):
			l.pos++
			if err := l.lexString(true); err != nil {
				return err
			}
		case isDigit(c) || (c == '.' && isDigit(l.peekAt(1))):
			l.lexNumber()
		case isNameStart(c):
			l.lexName()
		default:
			if err := l.lexOp(); err != nil {
				return err
			}
		}
	}

	// Close any open line and outstanding indents.
	if n := len(l.tokens); n > 0 && l.tokens[n-1].kind != tokNewline && l.tokens[n-1].kind != tokDedent {
		l.emit(tokNewline, "\n")
	}
	for len(l.indents) > 1 {
		l.indents = l.indents[:len(l.indents)-1]
		l.emit(tokDedent, "")
	}
	l.emit(tokEOF, "")
	return nil
}

func (l *lexer) handleIndent() error {
	// Measure leading whitespace; skip blank and comment-only lines.
	for {
		start := l.pos
		width := 0
		for l.pos < len(l.src) {
			switch l.src[l.pos] {
			case ' ':
				width++
			case '\t':
				width += 8 - width%8
			default:
				goto measured
			}
			l.pos++
		}
	measured:
		if l.pos >= len(l.src) {
			return nil
		}
		if l.src[l.pos] == '\n' {
			l.pos++
			l.line++
			continue
		}
		if l.src[l.pos] == '#' {
			for l.pos < len(l.src) && l.src[l.pos] != '\n' {
				l.pos++
			}
			continue
		}

		_ = start
		current := l.indents[len(l.indents)-1]
		switch {
		case width > current:
			l.indents = append(l.indents, width)
			l.emit(tokIndent, "")
		case width < current:
			for len(l.indents) > 1 && l.indents[len(l.indents)-1] > width {
				l.indents = l.indents[:len(l.indents)-1]
				l.emit(tokDedent, "")
			}
			if l.indents[len(l.indents)-1] != width {
				return l.errorf("unindent does not match any outer indentation level")
			}
		}
		l.atLineStart = false
		return nil
	}
}

func (l *lexer) lexString(isFString bool) error {
	quote := l.src[l.pos]
	l.pos++
	var sb strings.Builder
	for {
		if l.pos >= len(l.src) {
			return l.errorf("unterminated string literal")
		}
		c := l.src[l.pos]
		if c == quote {
			l.pos++
			break
		}
		if c == '\n' {
			return l.errorf("unterminated string literal")
		}
		if c == '\\' && l.pos+1 < len(l.src) {
			l.pos++
			switch l.src[l.pos] {
			case 'n':
				sb.WriteByte('\n')
			case 't':
				sb.WriteByte('\t')
			case 'r':
				sb.WriteByte('\r')
			case '\\':
				sb.WriteByte('\\')
			case '\'':
				sb.WriteByte('\'')
			case '"':
				sb.WriteByte('"')
			default:
				sb.WriteByte('\\')
				sb.WriteByte(l.src[l.pos])
			}
			l.pos++
			continue
		}
		sb.WriteByte(c)
		l.pos++
	}
	if isFString {
		l.emit(tokFString, sb.String())
	} else {
		l.emit(tokString, sb.String())
	}
	return nil
}

func (l *lexer) lexNumber() {
	start := l.pos
	seenDot := false
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		if isDigit(c) || c == '_' {
			l.pos++
		} else if c == '.' && !seenDot && isDigit(l.peekAt(1)) {
			seenDot = true
			l.pos++
		} else if (c == 'e' || c == 'E') && (isDigit(l.peekAt(1)) || ((l.peekAt(1) == '+' || l.peekAt(1) == '-') && isDigit(l.peekAt(2)))) {
			seenDot = true
			l.pos += 2
		} else {
			break
		}
	}
	l.emit(tokNumber, strings.ReplaceAll(l.src[start:l.pos], "_", ""))
}

func (l *lexer) lexName() {
	start := l.pos
	for l.pos < len(l.src) && isNameChar(l.src[l.pos]) {
		l.pos++
	}
	name := l.src[start:l.pos]
	if keywords[name] {
		l.emit(tokKeyword, name)
	} else {
		l.emit(tokName, name)
	}
}

var twoCharOps = map[string]bool{
	"==": true, "!=": true, "<=": true, ">=": true,
	"//": true, "**": true,
	"+=": true, "-=": true, "*=": true, "/=": true,
}

func (l *lexer) lexOp() error {
	if l.pos+1 < len(l.src) {
		two := l.src[l.pos : l.pos+2]
		if twoCharOps[two] {
			l.pos += 2
			l.emit(tokOp, two)
			return nil
		}
	}

	c := l.src[l.pos]
	switch c {
	case '(', '[', '{':
		l.parenDepth++
	case ')', ']', '}':
		if l.parenDepth > 0 {
			l.parenDepth--
		}
	case '+', '-', '*', '/', '%', '<', '>', '=', ',', ':', '.':
	default:
		return l.errorf("invalid character %q", string(c))
	}
	l.pos++
	l.emit(tokOp, string(c))
	return nil
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func isNameStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isNameChar(c byte) bool {
	return isNameStart(c) || isDigit(c)
}
