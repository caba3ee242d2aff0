package script

// Walk calls fn for node and every node beneath it.
func Walk(node Node, fn func(Node)) {
	if node == nil {
		return
	}
	fn(node)
	switch n := node.(type) {
	case *Module:
		walkStmts(n.Body, fn)
	case *ExprStmt:
		Walk(n.Value, fn)
	case *AssignStmt:
		Walk(n.Target, fn)
		Walk(n.Value, fn)
	case *ReturnStmt:
		if n.Value != nil {
			Walk(n.Value, fn)
		}
	case *IfStmt:
		Walk(n.Cond, fn)
		walkStmts(n.Body, fn)
		walkStmts(n.Else, fn)
	case *ForStmt:
		Walk(n.Iter, fn)
		walkStmts(n.Body, fn)
	case *WhileStmt:
		Walk(n.Cond, fn)
		walkStmts(n.Body, fn)
	case *DefStmt:
		walkStmts(n.Body, fn)
	case *FStringLit:
		for _, part := range n.Parts {
			if part.Expr != nil {
				Walk(part.Expr, fn)
			}
		}
	case *ListLit:
		walkExprs(n.Elems, fn)
	case *TupleLit:
		walkExprs(n.Elems, fn)
	case *DictLit:
		walkExprs(n.Keys, fn)
		walkExprs(n.Values, fn)
	case *ListComp:
		Walk(n.Elt, fn)
		Walk(n.Iter, fn)
		if n.Cond != nil {
			Walk(n.Cond, fn)
		}
	case *Call:
		Walk(n.Func, fn)
		walkExprs(n.Args, fn)
		for _, kw := range n.Keywords {
			Walk(kw.Value, fn)
		}
	case *Await:
		Walk(n.Value, fn)
	case *Attribute:
		Walk(n.Value, fn)
	case *Subscript:
		if n.Index != nil {
			Walk(n.Index, fn)
		}
		if n.IsSlice {
			if n.Low != nil && n.Low != n.Index {
				Walk(n.Low, fn)
			}
			if n.High != nil {
				Walk(n.High, fn)
			}
		}
	case *UnaryOp:
		Walk(n.Operand, fn)
	case *BinOp:
		Walk(n.Left, fn)
		Walk(n.Right, fn)
	case *Compare:
		Walk(n.Left, fn)
		Walk(n.Right, fn)
	case *BoolOp:
		Walk(n.Left, fn)
		Walk(n.Right, fn)
	}
}

func walkStmts(stmts []Stmt, fn func(Node)) {
	for _, stmt := range stmts {
		Walk(stmt, fn)
	}
}

func walkExprs(exprs []Expr, fn func(Node)) {
	for _, expr := range exprs {
		Walk(expr, fn)
	}
}

// CountCalls returns the number of call expressions anywhere in the module.
// The executor uses it for the operation budget and the timeout.
func CountCalls(module *Module) int {
	count := 0
	Walk(module, func(node Node) {
		if _, ok := node.(*Call); ok {
			count++
		}
	})
	return count
}

// StripKeywords rewrites every call so keyword arguments become positional:
// the names are discarded and the values appended in order. Planners often
// invent keyword names tool schemas do not have; positional binding against
// the declared parameter order is the reliable path.
func StripKeywords(module *Module) {
	Walk(module, func(node Node) {
		call, ok := node.(*Call)
		if !ok || len(call.Keywords) == 0 {
			return
		}
		for _, kw := range call.Keywords {
			call.Args = append(call.Args, kw.Value)
		}
		call.Keywords = nil
	})
}

// LocalDefs returns the names of every function defined in the snippet, at
// any nesting level. A local def shadows the tool of the same name, so the
// executor must not treat calls to it as tool calls.
func LocalDefs(module *Module) map[string]bool {
	defs := make(map[string]bool)
	Walk(module, func(node Node) {
		if def, ok := node.(*DefStmt); ok {
			defs[def.Name] = true
		}
	})
	return defs
}

// EnsureResultReturn appends `return result` when the snippet has no
// top-level return but does assign a top-level variable named result.
// Planners habitually end snippets with `result = ...`.
func EnsureResultReturn(module *Module) {
	for _, stmt := range module.Body {
		if _, ok := stmt.(*ReturnStmt); ok {
			return
		}
	}

	assignsResult := false
	for _, stmt := range module.Body {
		if assign, ok := stmt.(*AssignStmt); ok {
			if name, ok := assign.Target.(*Name); ok && name.ID == "result" {
				assignsResult = true
				break
			}
		}
	}
	if !assignsResult {
		return
	}

	module.Body = append(module.Body, &ReturnStmt{Value: &Name{ID: "result"}})
}
