package script

import (
	"fmt"
	"strconv"
	"strings"
)

type parser struct {
	tokens []token
	pos    int
}

// Parse lexes and parses a snippet into a Module.
func Parse(src string) (*Module, error) {
	tokens, err := lex(src)
	if err != nil {
		return nil, err
	}
	p := &parser{tokens: tokens}
	module := &Module{}
	for !p.at(tokEOF) {
		stmt, err := p.parseStmt()
		if err != nil {
			return nil, err
		}
		module.Body = append(module.Body, stmt...)
	}
	return module, nil
}

func (p *parser) cur() token {
	return p.tokens[p.pos]
}

func (p *parser) at(kind tokenKind) bool {
	return p.cur().kind == kind
}

func (p *parser) atOp(text string) bool {
	return p.cur().is(tokOp, text)
}

func (p *parser) atKeyword(text string) bool {
	return p.cur().is(tokKeyword, text)
}

func (p *parser) advance() token {
	tok := p.cur()
	if tok.kind != tokEOF {
		p.pos++
	}
	return tok
}

func (p *parser) errorf(format string, args ...any) error {
	return &SyntaxError{Msg: fmt.Sprintf(format, args...), Line: p.cur().line}
}

func (p *parser) expectOp(text string) error {
	if !p.atOp(text) {
		return p.errorf("expected %q, got %s", text, p.cur())
	}
	p.advance()
	return nil
}

func (p *parser) expectNewline() error {
	if p.at(tokEOF) || p.at(tokDedent) {
		return nil
	}
	if !p.at(tokNewline) {
		return p.errorf("unexpected %s", p.cur())
	}
	p.advance()
	return nil
}

// parseStmt returns one or more statements (a simple statement line can hold
// several separated by semicolons in Python; this subset keeps one).
func (p *parser) parseStmt() ([]Stmt, error) {
	switch {
	case p.atKeyword("if"):
		stmt, err := p.parseIf()
		return wrap(stmt, err)
	case p.atKeyword("for"):
		stmt, err := p.parseFor()
		return wrap(stmt, err)
	case p.atKeyword("while"):
		stmt, err := p.parseWhile()
		return wrap(stmt, err)
	case p.atKeyword("def"):
		stmt, err := p.parseDef()
		return wrap(stmt, err)
	default:
		stmt, err := p.parseSimpleStmt()
		if err != nil {
			return nil, err
		}
		if err := p.expectNewline(); err != nil {
			return nil, err
		}
		return []Stmt{stmt}, nil
	}
}

func wrap(stmt Stmt, err error) ([]Stmt, error) {
	if err != nil {
		return nil, err
	}
	return []Stmt{stmt}, nil
}

func (p *parser) parseSimpleStmt() (Stmt, error) {
	switch {
	case p.atKeyword("return"):
		line := p.advance().line
		if p.at(tokNewline) || p.at(tokEOF) || p.at(tokDedent) {
			return &ReturnStmt{Line: line}, nil
		}
		value, err := p.parseExprOrTuple()
		if err != nil {
			return nil, err
		}
		return &ReturnStmt{Value: value, Line: line}, nil
	case p.atKeyword("break"):
		p.advance()
		return &BreakStmt{}, nil
	case p.atKeyword("continue"):
		p.advance()
		return &ContinueStmt{}, nil
	case p.atKeyword("pass"):
		p.advance()
		return &PassStmt{}, nil
	case p.atKeyword("import"):
		return p.parseImport()
	}

	expr, err := p.parseExprOrTuple()
	if err != nil {
		return nil, err
	}

	if p.atOp("=") || p.atOp("+=") || p.atOp("-=") || p.atOp("*=") || p.atOp("/=") {
		op := p.advance().text
		if !isAssignable(expr) {
			return nil, p.errorf("cannot assign to this expression")
		}
		value, err := p.parseExprOrTuple()
		if err != nil {
			return nil, err
		}
		return &AssignStmt{Target: expr, Op: op, Value: value}, nil
	}

	return &ExprStmt{Value: expr}, nil
}

func (p *parser) parseImport() (Stmt, error) {
	stmt := &ImportStmt{Line: p.advance().line}
	for {
		if !p.at(tokName) {
			return nil, p.errorf("expected module name after import")
		}
		name := ImportName{Module: p.advance().text}
		// `as` is not reserved; it only means aliasing right here.
		if p.cur().is(tokName, "as") {
			p.advance()
			if !p.at(tokName) {
				return nil, p.errorf("expected name after as")
			}
			name.Alias = p.advance().text
		}
		stmt.Names = append(stmt.Names, name)
		if !p.atOp(",") {
			return stmt, nil
		}
		p.advance()
	}
}

func isAssignable(expr Expr) bool {
	switch expr.(type) {
	case *Name, *Subscript, *Attribute:
		return true
	}
	return false
}

func (p *parser) parseBlock() ([]Stmt, error) {
	if err := p.expectOp(":"); err != nil {
		return nil, err
	}
	if !p.at(tokNewline) {
		// Single-line body: `if x: return y`
		stmt, err := p.parseSimpleStmt()
		if err != nil {
			return nil, err
		}
		if err := p.expectNewline(); err != nil {
			return nil, err
		}
		return []Stmt{stmt}, nil
	}
	p.advance()
	if !p.at(tokIndent) {
		return nil, p.errorf("expected an indented block")
	}
	p.advance()

	var body []Stmt
	for !p.at(tokDedent) && !p.at(tokEOF) {
		stmts, err := p.parseStmt()
		if err != nil {
			return nil, err
		}
		body = append(body, stmts...)
	}
	if p.at(tokDedent) {
		p.advance()
	}
	return body, nil
}

func (p *parser) parseIf() (Stmt, error) {
	p.advance()
	cond, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}

	stmt := &IfStmt{Cond: cond, Body: body}
	switch {
	case p.atKeyword("elif"):
		elifStmt, err := p.parseIf2()
		if err != nil {
			return nil, err
		}
		stmt.Else = []Stmt{elifStmt}
	case p.atKeyword("else"):
		p.advance()
		elseBody, err := p.parseBlock()
		if err != nil {
			return nil, err
		}
		stmt.Else = elseBody
	}
	return stmt, nil
}

// parseIf2 parses an elif clause as a nested if.
func (p *parser) parseIf2() (Stmt, error) {
	return p.parseIf()
}

func (p *parser) parseFor() (Stmt, error) {
	p.advance()
	targets, err := p.parseNameList()
	if err != nil {
		return nil, err
	}
	if !p.atKeyword("in") {
		return nil, p.errorf("expected 'in', got %s", p.cur())
	}
	p.advance()
	iter, err := p.parseExprOrTuple()
	if err != nil {
		return nil, err
	}
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	return &ForStmt{Targets: targets, Iter: iter, Body: body}, nil
}

func (p *parser) parseNameList() ([]string, error) {
	var names []string
	for {
		if !p.at(tokName) {
			return nil, p.errorf("expected a name, got %s", p.cur())
		}
		names = append(names, p.advance().text)
		if !p.atOp(",") {
			return names, nil
		}
		p.advance()
	}
}

func (p *parser) parseWhile() (Stmt, error) {
	p.advance()
	cond, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	return &WhileStmt{Cond: cond, Body: body}, nil
}

func (p *parser) parseDef() (Stmt, error) {
	p.advance()
	if !p.at(tokName) {
		return nil, p.errorf("expected function name, got %s", p.cur())
	}
	name := p.advance().text

	if err := p.expectOp("("); err != nil {
		return nil, err
	}
	var params []string
	for !p.atOp(")") {
		if !p.at(tokName) {
			return nil, p.errorf("expected parameter name, got %s", p.cur())
		}
		params = append(params, p.advance().text)
		if p.atOp(",") {
			p.advance()
		}
	}
	p.advance()

	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	return &DefStmt{Name: name, Params: params, Body: body}, nil
}

// parseExprOrTuple parses a possibly bare tuple like `a, b`.
func (p *parser) parseExprOrTuple() (Expr, error) {
	first, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if !p.atOp(",") {
		return first, nil
	}

	elems := []Expr{first}
	for p.atOp(",") {
		p.advance()
		if p.at(tokNewline) || p.at(tokEOF) || p.atOp(")") || p.atOp("]") {
			break
		}
		elem, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		elems = append(elems, elem)
	}
	return &TupleLit{Elems: elems}, nil
}

func (p *parser) parseExpr() (Expr, error) {
	return p.parseOr()
}

func (p *parser) parseOr() (Expr, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.atKeyword("or") {
		p.advance()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &BoolOp{Op: "or", Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseAnd() (Expr, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for p.atKeyword("and") {
		p.advance()
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		left = &BoolOp{Op: "and", Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseNot() (Expr, error) {
	if p.atKeyword("not") {
		p.advance()
		operand, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return &UnaryOp{Op: "not", Operand: operand}, nil
	}
	return p.parseComparison()
}

func (p *parser) parseComparison() (Expr, error) {
	left, err := p.parseArith()
	if err != nil {
		return nil, err
	}
	for {
		var op string
		line := p.cur().line
		switch {
		case p.atOp("=="), p.atOp("!="), p.atOp("<"), p.atOp("<="), p.atOp(">"), p.atOp(">="):
			op = p.advance().text
		case p.atKeyword("in"):
			p.advance()
			op = "in"
		case p.atKeyword("not") && p.tokens[p.pos+1].is(tokKeyword, "in"):
			p.advance()
			p.advance()
			op = "not in"
		default:
			return left, nil
		}
		right, err := p.parseArith()
		if err != nil {
			return nil, err
		}
		left = &Compare{Op: op, Left: left, Right: right, Line: line}
	}
}

func (p *parser) parseArith() (Expr, error) {
	left, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	for p.atOp("+") || p.atOp("-") {
		tok := p.advance()
		right, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		left = &BinOp{Op: tok.text, Left: left, Right: right, Line: tok.line}
	}
	return left, nil
}

func (p *parser) parseTerm() (Expr, error) {
	left, err := p.parseFactor()
	if err != nil {
		return nil, err
	}
	for p.atOp("*") || p.atOp("/") || p.atOp("//") || p.atOp("%") {
		tok := p.advance()
		right, err := p.parseFactor()
		if err != nil {
			return nil, err
		}
		left = &BinOp{Op: tok.text, Left: left, Right: right, Line: tok.line}
	}
	return left, nil
}

func (p *parser) parseFactor() (Expr, error) {
	if p.atOp("-") || p.atOp("+") {
		op := p.advance().text
		operand, err := p.parseFactor()
		if err != nil {
			return nil, err
		}
		return &UnaryOp{Op: op, Operand: operand}, nil
	}
	return p.parsePower()
}

func (p *parser) parsePower() (Expr, error) {
	base, err := p.parsePostfix()
	if err != nil {
		return nil, err
	}
	if p.atOp("**") {
		tok := p.advance()
		// Right-associative.
		exponent, err := p.parseFactor()
		if err != nil {
			return nil, err
		}
		return &BinOp{Op: "**", Left: base, Right: exponent, Line: tok.line}, nil
	}
	return base, nil
}

func (p *parser) parsePostfix() (Expr, error) {
	expr, err := p.parseAtom()
	if err != nil {
		return nil, err
	}
	for {
		switch {
		case p.atOp("("):
			expr, err = p.parseCall(expr)
		case p.atOp("["):
			expr, err = p.parseSubscript(expr)
		case p.atOp("."):
			line := p.advance().line
			if !p.at(tokName) {
				return nil, p.errorf("expected attribute name, got %s", p.cur())
			}
			expr = &Attribute{Value: expr, Attr: p.advance().text, Line: line}
		default:
			return expr, nil
		}
		if err != nil {
			return nil, err
		}
	}
}

func (p *parser) parseCall(fn Expr) (Expr, error) {
	line := p.advance().line
	call := &Call{Func: fn, Line: line}
	for !p.atOp(")") {
		if p.at(tokEOF) {
			return nil, p.errorf("unexpected end of input in call")
		}
		// keyword argument: NAME = expr
		if p.at(tokName) && p.tokens[p.pos+1].is(tokOp, "=") {
			name := p.advance().text
			p.advance()
			value, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			call.Keywords = append(call.Keywords, Keyword{Name: name, Value: value})
		} else {
			arg, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			call.Args = append(call.Args, arg)
		}
		if p.atOp(",") {
			p.advance()
		} else if !p.atOp(")") {
			return nil, p.errorf("expected ',' or ')' in call, got %s", p.cur())
		}
	}
	p.advance()
	return call, nil
}

func (p *parser) parseSubscript(value Expr) (Expr, error) {
	line := p.advance().line
	sub := &Subscript{Value: value, Line: line}

	if p.atOp(":") {
		sub.IsSlice = true
	} else {
		index, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		sub.Index = index
		sub.Low = index
	}

	if p.atOp(":") {
		p.advance()
		sub.IsSlice = true
		if !p.atOp("]") {
			high, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			sub.High = high
		}
	}

	if err := p.expectOp("]"); err != nil {
		return nil, err
	}
	return sub, nil
}

func (p *parser) parseAtom() (Expr, error) {
	tok := p.cur()
	switch tok.kind {
	case tokNumber:
		p.advance()
		return parseNumber(tok)
	case tokString:
		p.advance()
		return &StringLit{Value: tok.text}, nil
	case tokFString:
		p.advance()
		return parseFString(tok)
	case tokName:
		p.advance()
		return &Name{ID: tok.text, Line: tok.line}, nil
	case tokKeyword:
		switch tok.text {
		case "True":
			p.advance()
			return &BoolLit{Value: true}, nil
		case "False":
			p.advance()
			return &BoolLit{Value: false}, nil
		case "None":
			p.advance()
			return &NoneLit{}, nil
		case "await":
			p.advance()
			value, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			return &Await{Value: value}, nil
		}
	case tokOp:
		switch tok.text {
		case "(":
			return p.parseParenOrTuple()
		case "[":
			return p.parseListOrComp()
		case "{":
			return p.parseDict()
		}
	}
	return nil, p.errorf("unexpected %s", p.cur())
}

func (p *parser) parseParenOrTuple() (Expr, error) {
	p.advance()
	if p.atOp(")") {
		p.advance()
		return &TupleLit{}, nil
	}

	first, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if p.atOp(")") {
		p.advance()
		return first, nil
	}

	elems := []Expr{first}
	for p.atOp(",") {
		p.advance()
		if p.atOp(")") {
			break
		}
		elem, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		elems = append(elems, elem)
	}
	if err := p.expectOp(")"); err != nil {
		return nil, err
	}
	return &TupleLit{Elems: elems}, nil
}

func (p *parser) parseListOrComp() (Expr, error) {
	p.advance()
	if p.atOp("]") {
		p.advance()
		return &ListLit{}, nil
	}

	first, err := p.parseExpr()
	if err != nil {
		return nil, err
	}

	if p.atKeyword("for") {
		p.advance()
		targets, err := p.parseNameList()
		if err != nil {
			return nil, err
		}
		if !p.atKeyword("in") {
			return nil, p.errorf("expected 'in' in comprehension, got %s", p.cur())
		}
		p.advance()
		iter, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		comp := &ListComp{Elt: first, Targets: targets, Iter: iter}
		if p.atKeyword("if") {
			p.advance()
			cond, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			comp.Cond = cond
		}
		if err := p.expectOp("]"); err != nil {
			return nil, err
		}
		return comp, nil
	}

	elems := []Expr{first}
	for p.atOp(",") {
		p.advance()
		if p.atOp("]") {
			break
		}
		elem, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		elems = append(elems, elem)
	}
	if err := p.expectOp("]"); err != nil {
		return nil, err
	}
	return &ListLit{Elems: elems}, nil
}

func (p *parser) parseDict() (Expr, error) {
	p.advance()
	dict := &DictLit{}
	for !p.atOp("}") {
		if p.at(tokEOF) {
			return nil, p.errorf("unexpected end of input in dict literal")
		}
		key, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if err := p.expectOp(":"); err != nil {
			return nil, err
		}
		value, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		dict.Keys = append(dict.Keys, key)
		dict.Values = append(dict.Values, value)
		if p.atOp(",") {
			p.advance()
		} else if !p.atOp("}") {
			return nil, p.errorf("expected ',' or '}' in dict literal, got %s", p.cur())
		}
	}
	p.advance()
	return dict, nil
}

func parseNumber(tok token) (Expr, error) {
	if !strings.ContainsAny(tok.text, ".eE") {
		intVal, err := strconv.ParseInt(tok.text, 10, 64)
		if err == nil {
			return &NumberLit{IsInt: true, IntVal: intVal}, nil
		}
	}
	floatVal, err := strconv.ParseFloat(tok.text, 64)
	if err != nil {
		return nil, &SyntaxError{Msg: "invalid number literal " + tok.text, Line: tok.line}
	}
	return &NumberLit{FloatVal: floatVal}, nil
}

// parseFString splits an f-string into literal and expression parts; each
// expression is parsed with a fresh sub-parser.
func parseFString(tok token) (Expr, error) {
	fstr := &FStringLit{}
	text := tok.text
	var literal strings.Builder

	for i := 0; i < len(text); i++ {
		c := text[i]
		switch {
		case c == '{' && i+1 < len(text) && text[i+1] == '{':
			literal.WriteByte('{')
			i++
		case c == '}' && i+1 < len(text) && text[i+1] == '}':
			literal.WriteByte('}')
			i++
		case c == '{':
			depth := 1
			j := i + 1
			for j < len(text) && depth > 0 {
				switch text[j] {
				case '{':
					depth++
				case '}':
					depth--
				}
				if depth > 0 {
					j++
				}
			}
			if depth != 0 {
				return nil, &SyntaxError{Msg: "unterminated expression in f-string", Line: tok.line}
			}
			exprSrc := text[i+1 : j]
			// Format specs are not supported; strip a trailing one.
			if colon := strings.LastIndex(exprSrc, ":"); colon > 0 && !strings.ContainsAny(exprSrc[colon:], "])}") {
				exprSrc = exprSrc[:colon]
			}
			inner, err := parseEmbeddedExpr(exprSrc, tok.line)
			if err != nil {
				return nil, err
			}
			if literal.Len() > 0 {
				fstr.Parts = append(fstr.Parts, FStringPart{Literal: literal.String()})
				literal.Reset()
			}
			fstr.Parts = append(fstr.Parts, FStringPart{Expr: inner})
			i = j
		default:
			literal.WriteByte(c)
		}
	}
	if literal.Len() > 0 {
		fstr.Parts = append(fstr.Parts, FStringPart{Literal: literal.String()})
	}
	return fstr, nil
}

func parseEmbeddedExpr(src string, line int) (Expr, error) {
	tokens, err := lex(src)
	if err != nil {
		return nil, &SyntaxError{Msg: "invalid expression in f-string", Line: line}
	}
	p := &parser{tokens: tokens}
	expr, err := p.parseExpr()
	if err != nil {
		return nil, &SyntaxError{Msg: "invalid expression in f-string", Line: line}
	}
	return expr, nil
}
