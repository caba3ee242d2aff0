// Package script implements the small Python-like snippet language the
// decision agent emits: a lexer, parser, rewrite passes, and a tree-walking
// evaluator. Snippets run sandboxed; the only outside effects available are
// the tool functions and builtins the executor injects.
package script

import "fmt"

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokNewline
	tokIndent
	tokDedent
	tokName
	tokNumber
	tokString
	tokFString
	tokOp
	tokKeyword
)

var keywords = map[string]bool{
	"def": true, "return": true, "if": true, "elif": true, "else": true,
	"for": true, "in": true, "while": true, "await": true,
	"and": true, "or": true, "not": true,
	"True": true, "False": true, "None": true,
	"break": true, "continue": true, "pass": true, "import": true,
}

type token struct {
	kind tokenKind
	text string
	line int
}

func (t token) String() string {
	switch t.kind {
	case tokEOF:
		return "end of input"
	case tokNewline:
		return "newline"
	case tokIndent:
		return "indent"
	case tokDedent:
		return "dedent"
	default:
		return fmt.Sprintf("%q", t.text)
	}
}

func (t token) is(kind tokenKind, text string) bool {
	return t.kind == kind && t.text == text
}
