package script

import (
	"context"
	"fmt"
	"io"
	"math"
	"reflect"
	"strings"
)

// GoFunc is a host function exposed to snippets: builtins, module functions,
// and tool proxies all share this shape.
type GoFunc func(ctx context.Context, args []any) (any, error)

// List is the mutable list value. A pointer type so append mutates in place.
type List struct {
	Items []any
}

// Tuple is the immutable sequence value.
type Tuple struct {
	Items []any
}

// Function is a snippet-defined function.
type Function struct {
	Name    string
	Params  []string
	Body    []Stmt
	Closure *Env
}

// RuntimeError is a snippet evaluation failure. Kind follows Python's
// exception naming so the decision agent can replan from familiar text.
type RuntimeError struct {
	Kind string
	Msg  string
	Line int
}

func (e *RuntimeError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func runtimeErrorf(kind string, line int, format string, args ...any) error {
	return &RuntimeError{Kind: kind, Msg: fmt.Sprintf(format, args...), Line: line}
}

// Env is a lexical scope.
type Env struct {
	vars   map[string]any
	parent *Env
}

// NewEnv creates a scope under parent (nil for the global scope).
func NewEnv(parent *Env) *Env {
	return &Env{vars: make(map[string]any), parent: parent}
}

// Get resolves a name through the scope chain.
func (e *Env) Get(name string) (any, bool) {
	for env := e; env != nil; env = env.parent {
		if v, ok := env.vars[name]; ok {
			return v, true
		}
	}
	return nil, false
}

// Set binds a name in this scope.
func (e *Env) Set(name string, value any) {
	e.vars[name] = value
}

// control-flow signals travel as errors
type returnSignal struct{ value any }
type breakSignal struct{}
type continueSignal struct{}

func (returnSignal) Error() string   { return "return outside function" }
func (breakSignal) Error() string    { return "break outside loop" }
func (continueSignal) Error() string { return "continue outside loop" }

// Interp evaluates a parsed snippet. Loops and statements poll the context
// so deadlines interrupt runaway code.
type Interp struct {
	ctx     context.Context
	globals *Env
	stdout  io.Writer
	steps   int
}

// NewInterp creates an interpreter. globals seeds the global scope; stdout
// receives print output.
func NewInterp(ctx context.Context, globals map[string]any, stdout io.Writer) *Interp {
	env := NewEnv(nil)
	for name, value := range globals {
		env.Set(name, value)
	}
	return &Interp{ctx: ctx, globals: env, stdout: stdout}
}

// Globals returns the global scope.
func (in *Interp) Globals() *Env {
	return in.globals
}

// Run executes the module body as an implicit function: a top-level return
// yields the snippet's value. Without one, Run returns nil.
func (in *Interp) Run(module *Module) (any, error) {
	err := in.execStmts(module.Body, in.globals)
	if ret, ok := err.(returnSignal); ok {
		return ret.value, nil
	}
	return nil, err
}

func (in *Interp) execStmts(stmts []Stmt, env *Env) error {
	for _, stmt := range stmts {
		if err := in.exec(stmt, env); err != nil {
			return err
		}
	}
	return nil
}

func (in *Interp) checkStep() error {
	in.steps++
	if in.steps%64 == 0 {
		if err := in.ctx.Err(); err != nil {
			return err
		}
	}
	return nil
}

func (in *Interp) exec(stmt Stmt, env *Env) error {
	if err := in.checkStep(); err != nil {
		return err
	}

	switch s := stmt.(type) {
	case *ExprStmt:
		_, err := in.eval(s.Value, env)
		return err

	case *AssignStmt:
		return in.execAssign(s, env)

	case *ReturnStmt:
		if s.Value == nil {
			return returnSignal{}
		}
		value, err := in.eval(s.Value, env)
		if err != nil {
			return err
		}
		return returnSignal{value: value}

	case *ImportStmt:
		for _, name := range s.Names {
			value, ok := env.Get(name.Module)
			module, isModule := value.(map[string]any)
			if !ok || !isModule {
				return runtimeErrorf("ImportError", s.Line, "No module named '%s'", name.Module)
			}
			bound := name.Module
			if name.Alias != "" {
				bound = name.Alias
			}
			env.Set(bound, module)
		}
		return nil

	case *BreakStmt:
		return breakSignal{}
	case *ContinueStmt:
		return continueSignal{}
	case *PassStmt:
		return nil

	case *IfStmt:
		cond, err := in.eval(s.Cond, env)
		if err != nil {
			return err
		}
		if truthy(cond) {
			return in.execStmts(s.Body, env)
		}
		return in.execStmts(s.Else, env)

	case *ForStmt:
		return in.execFor(s, env)

	case *WhileStmt:
		for {
			cond, err := in.eval(s.Cond, env)
			if err != nil {
				return err
			}
			if !truthy(cond) {
				return nil
			}
			if err := in.execStmts(s.Body, env); err != nil {
				switch err.(type) {
				case breakSignal:
					return nil
				case continueSignal:
					continue
				default:
					return err
				}
			}
			if err := in.checkStep(); err != nil {
				return err
			}
		}

	case *DefStmt:
		env.Set(s.Name, &Function{Name: s.Name, Params: s.Params, Body: s.Body, Closure: env})
		return nil

	default:
		return runtimeErrorf("RuntimeError", 0, "unsupported statement %T", stmt)
	}
}

func (in *Interp) execAssign(s *AssignStmt, env *Env) error {
	value, err := in.eval(s.Value, env)
	if err != nil {
		return err
	}

	if s.Op != "=" {
		current, err := in.eval(s.Target, env)
		if err != nil {
			return err
		}
		value, err = binaryOp(strings.TrimSuffix(s.Op, "="), current, value, 0)
		if err != nil {
			return err
		}
	}

	switch target := s.Target.(type) {
	case *Name:
		env.Set(target.ID, value)
		return nil
	case *Subscript:
		container, err := in.eval(target.Value, env)
		if err != nil {
			return err
		}
		index, err := in.eval(target.Index, env)
		if err != nil {
			return err
		}
		return setItem(container, index, value, target.Line)
	default:
		return runtimeErrorf("TypeError", 0, "cannot assign to this expression")
	}
}

func (in *Interp) execFor(s *ForStmt, env *Env) error {
	iterValue, err := in.eval(s.Iter, env)
	if err != nil {
		return err
	}
	items, err := iterate(iterValue)
	if err != nil {
		return err
	}

	for _, item := range items {
		if err := bindTargets(env, s.Targets, item); err != nil {
			return err
		}
		if err := in.execStmts(s.Body, env); err != nil {
			switch err.(type) {
			case breakSignal:
				return nil
			case continueSignal:
				continue
			default:
				return err
			}
		}
		if err := in.checkStep(); err != nil {
			return err
		}
	}
	return nil
}

func bindTargets(env *Env, targets []string, item any) error {
	if len(targets) == 1 {
		env.Set(targets[0], item)
		return nil
	}
	elems, err := iterate(item)
	if err != nil {
		return err
	}
	if len(elems) != len(targets) {
		return runtimeErrorf("ValueError", 0, "cannot unpack %d values into %d names", len(elems), len(targets))
	}
	for i, target := range targets {
		env.Set(target, elems[i])
	}
	return nil
}

func (in *Interp) eval(expr Expr, env *Env) (any, error) {
	if err := in.checkStep(); err != nil {
		return nil, err
	}

	switch e := expr.(type) {
	case *NumberLit:
		if e.IsInt {
			return e.IntVal, nil
		}
		return e.FloatVal, nil
	case *StringLit:
		return e.Value, nil
	case *BoolLit:
		return e.Value, nil
	case *NoneLit:
		return nil, nil

	case *Name:
		if value, ok := env.Get(e.ID); ok {
			return value, nil
		}
		return nil, runtimeErrorf("NameError", e.Line, "name '%s' is not defined", e.ID)

	case *FStringLit:
		var sb strings.Builder
		for _, part := range e.Parts {
			if part.Expr == nil {
				sb.WriteString(part.Literal)
				continue
			}
			value, err := in.eval(part.Expr, env)
			if err != nil {
				return nil, err
			}
			sb.WriteString(Repr(value, false))
		}
		return sb.String(), nil

	case *ListLit:
		items, err := in.evalAll(e.Elems, env)
		if err != nil {
			return nil, err
		}
		return &List{Items: items}, nil

	case *TupleLit:
		items, err := in.evalAll(e.Elems, env)
		if err != nil {
			return nil, err
		}
		return &Tuple{Items: items}, nil

	case *DictLit:
		dict := make(map[string]any, len(e.Keys))
		for i := range e.Keys {
			key, err := in.eval(e.Keys[i], env)
			if err != nil {
				return nil, err
			}
			value, err := in.eval(e.Values[i], env)
			if err != nil {
				return nil, err
			}
			dict[Repr(key, false)] = value
		}
		return dict, nil

	case *ListComp:
		return in.evalListComp(e, env)

	case *Await:
		// Tool calls block natively; await is accepted and transparent.
		return in.eval(e.Value, env)

	case *Call:
		return in.evalCall(e, env)

	case *Attribute:
		value, err := in.eval(e.Value, env)
		if err != nil {
			return nil, err
		}
		return getAttribute(value, e.Attr, e.Line)

	case *Subscript:
		return in.evalSubscript(e, env)

	case *UnaryOp:
		operand, err := in.eval(e.Operand, env)
		if err != nil {
			return nil, err
		}
		return unaryOp(e.Op, operand)

	case *BinOp:
		left, err := in.eval(e.Left, env)
		if err != nil {
			return nil, err
		}
		right, err := in.eval(e.Right, env)
		if err != nil {
			return nil, err
		}
		return binaryOp(e.Op, left, right, e.Line)

	case *Compare:
		left, err := in.eval(e.Left, env)
		if err != nil {
			return nil, err
		}
		right, err := in.eval(e.Right, env)
		if err != nil {
			return nil, err
		}
		return compareOp(e.Op, left, right, e.Line)

	case *BoolOp:
		left, err := in.eval(e.Left, env)
		if err != nil {
			return nil, err
		}
		if e.Op == "and" {
			if !truthy(left) {
				return left, nil
			}
		} else {
			if truthy(left) {
				return left, nil
			}
		}
		return in.eval(e.Right, env)

	default:
		return nil, runtimeErrorf("RuntimeError", 0, "unsupported expression %T", expr)
	}
}

func (in *Interp) evalAll(exprs []Expr, env *Env) ([]any, error) {
	items := make([]any, 0, len(exprs))
	for _, expr := range exprs {
		value, err := in.eval(expr, env)
		if err != nil {
			return nil, err
		}
		items = append(items, value)
	}
	return items, nil
}

func (in *Interp) evalListComp(e *ListComp, env *Env) (any, error) {
	iterValue, err := in.eval(e.Iter, env)
	if err != nil {
		return nil, err
	}
	items, err := iterate(iterValue)
	if err != nil {
		return nil, err
	}

	out := &List{}
	for _, item := range items {
		if err := bindTargets(env, e.Targets, item); err != nil {
			return nil, err
		}
		if e.Cond != nil {
			cond, err := in.eval(e.Cond, env)
			if err != nil {
				return nil, err
			}
			if !truthy(cond) {
				continue
			}
		}
		elem, err := in.eval(e.Elt, env)
		if err != nil {
			return nil, err
		}
		out.Items = append(out.Items, elem)
		if err := in.checkStep(); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (in *Interp) evalCall(call *Call, env *Env) (any, error) {
	fn, err := in.eval(call.Func, env)
	if err != nil {
		return nil, err
	}
	args, err := in.evalAll(call.Args, env)
	if err != nil {
		return nil, err
	}
	// Keyword args surviving to evaluation (inside local defs the strip
	// pass still rewrote them, so this only defends direct host calls).
	for _, kw := range call.Keywords {
		value, err := in.eval(kw.Value, env)
		if err != nil {
			return nil, err
		}
		args = append(args, value)
	}
	return in.CallValue(fn, args, call.Line)
}

// CallValue invokes a callable value with already-evaluated arguments.
func (in *Interp) CallValue(fn any, args []any, line int) (any, error) {
	switch f := fn.(type) {
	case GoFunc:
		return f(in.ctx, args)
	case *Function:
		if len(args) != len(f.Params) {
			return nil, runtimeErrorf("TypeError", line, "%s() takes %d arguments but %d were given", f.Name, len(f.Params), len(args))
		}
		local := NewEnv(f.Closure)
		for i, param := range f.Params {
			local.Set(param, args[i])
		}
		err := in.execStmts(f.Body, local)
		if ret, ok := err.(returnSignal); ok {
			return ret.value, nil
		}
		return nil, err
	default:
		return nil, runtimeErrorf("TypeError", line, "'%s' object is not callable", TypeName(fn))
	}
}

func (in *Interp) evalSubscript(e *Subscript, env *Env) (any, error) {
	container, err := in.eval(e.Value, env)
	if err != nil {
		return nil, err
	}

	if e.IsSlice {
		low, high := 0, math.MaxInt
		if e.Low != nil {
			value, err := in.eval(e.Low, env)
			if err != nil {
				return nil, err
			}
			low, err = asIndex(value, e.Line)
			if err != nil {
				return nil, err
			}
		}
		if e.High != nil {
			value, err := in.eval(e.High, env)
			if err != nil {
				return nil, err
			}
			high, err = asIndex(value, e.Line)
			if err != nil {
				return nil, err
			}
		}
		return sliceValue(container, low, high, e.Line)
	}

	index, err := in.eval(e.Index, env)
	if err != nil {
		return nil, err
	}
	return getItem(container, index, e.Line)
}

// Stdout returns the writer print output goes to.
func (in *Interp) Stdout() io.Writer {
	return in.stdout
}

// TypeName returns the Python-style type name of a value.
func TypeName(value any) string {
	switch value.(type) {
	case nil:
		return "NoneType"
	case bool:
		return "bool"
	case int64:
		return "int"
	case float64:
		return "float"
	case string:
		return "str"
	case *List:
		return "list"
	case *Tuple:
		return "tuple"
	case map[string]any:
		return "dict"
	case *Function, GoFunc:
		return "function"
	default:
		return reflect.TypeOf(value).String()
	}
}
