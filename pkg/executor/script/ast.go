package script

// Node is any AST node.
type Node interface {
	node()
}

// Module is a parsed snippet: a flat list of top-level statements.
type Module struct {
	Body []Stmt
}

// Stmt is a statement node.
type Stmt interface {
	Node
	stmt()
}

// Expr is an expression node.
type Expr interface {
	Node
	expr()
}

type ExprStmt struct {
	Value Expr
}

type AssignStmt struct {
	// Target is a Name, Subscript, or Attribute expression.
	Target Expr
	// Op is "=" or an augmented operator like "+=".
	Op    string
	Value Expr
}

type ReturnStmt struct {
	Value Expr // nil for bare return
	Line  int
}

// ImportStmt binds pre-loaded modules. Only the modules the sandbox ships
// with can be imported; anything else fails at run time.
type ImportStmt struct {
	Names []ImportName
	Line  int
}

// ImportName is one `module` or `module as alias` clause.
type ImportName struct {
	Module string
	Alias  string
}

type BreakStmt struct{}
type ContinueStmt struct{}
type PassStmt struct{}

type IfStmt struct {
	Cond Expr
	Body []Stmt
	// Else holds the else branch; an elif chain nests an IfStmt here.
	Else []Stmt
}

type ForStmt struct {
	// Targets are loop variable names; more than one unpacks tuples.
	Targets []string
	Iter    Expr
	Body    []Stmt
}

type WhileStmt struct {
	Cond Expr
	Body []Stmt
}

type DefStmt struct {
	Name   string
	Params []string
	Body   []Stmt
}

func (*ExprStmt) stmt()     {}
func (*ImportStmt) stmt()   {}
func (*AssignStmt) stmt()   {}
func (*ReturnStmt) stmt()   {}
func (*BreakStmt) stmt()    {}
func (*ContinueStmt) stmt() {}
func (*PassStmt) stmt()     {}
func (*IfStmt) stmt()       {}
func (*ForStmt) stmt()      {}
func (*WhileStmt) stmt()    {}
func (*DefStmt) stmt()      {}

func (*ExprStmt) node()     {}
func (*ImportStmt) node()   {}
func (*AssignStmt) node()   {}
func (*ReturnStmt) node()   {}
func (*BreakStmt) node()    {}
func (*ContinueStmt) node() {}
func (*PassStmt) node()     {}
func (*IfStmt) node()       {}
func (*ForStmt) node()      {}
func (*WhileStmt) node()    {}
func (*DefStmt) node()      {}
func (*Module) node()       {}

type Name struct {
	ID   string
	Line int
}

type NumberLit struct {
	// IsInt distinguishes 3 from 3.0.
	IsInt    bool
	IntVal   int64
	FloatVal float64
}

type StringLit struct {
	Value string
}

// FStringLit is an interpolated string; Parts alternate literal text and
// embedded expressions.
type FStringLit struct {
	Parts []FStringPart
}

type FStringPart struct {
	Literal string
	Expr    Expr // nil for literal parts
}

type BoolLit struct {
	Value bool
}

type NoneLit struct{}

type ListLit struct {
	Elems []Expr
}

type TupleLit struct {
	Elems []Expr
}

type DictLit struct {
	Keys   []Expr
	Values []Expr
}

// ListComp is a simple comprehension: [Elt for Targets in Iter if Cond].
type ListComp struct {
	Elt     Expr
	Targets []string
	Iter    Expr
	Cond    Expr // nil when absent
}

type Keyword struct {
	Name  string
	Value Expr
}

type Call struct {
	Func     Expr
	Args     []Expr
	Keywords []Keyword
	Line     int
}

type Await struct {
	Value Expr
}

type Attribute struct {
	Value Expr
	Attr  string
	Line  int
}

type Subscript struct {
	Value Expr
	Index Expr
	// Slice indices; used when IsSlice is set, either may be nil.
	IsSlice bool
	Low     Expr
	High    Expr
	Line    int
}

type UnaryOp struct {
	Op      string // "-", "+", "not"
	Operand Expr
}

type BinOp struct {
	Op    string // "+", "-", "*", "/", "//", "%", "**"
	Left  Expr
	Right Expr
	Line  int
}

type Compare struct {
	Op    string // "==", "!=", "<", "<=", ">", ">=", "in", "not in"
	Left  Expr
	Right Expr
	Line  int
}

type BoolOp struct {
	Op    string // "and", "or"
	Left  Expr
	Right Expr
}

func (*Name) expr()       {}
func (*NumberLit) expr()  {}
func (*StringLit) expr()  {}
func (*FStringLit) expr() {}
func (*BoolLit) expr()    {}
func (*NoneLit) expr()    {}
func (*ListLit) expr()    {}
func (*TupleLit) expr()   {}
func (*DictLit) expr()    {}
func (*ListComp) expr()   {}
func (*Call) expr()       {}
func (*Await) expr()      {}
func (*Attribute) expr()  {}
func (*Subscript) expr()  {}
func (*UnaryOp) expr()    {}
func (*BinOp) expr()      {}
func (*Compare) expr()    {}
func (*BoolOp) expr()     {}

func (*Name) node()       {}
func (*NumberLit) node()  {}
func (*StringLit) node()  {}
func (*FStringLit) node() {}
func (*BoolLit) node()    {}
func (*NoneLit) node()    {}
func (*ListLit) node()    {}
func (*TupleLit) node()   {}
func (*DictLit) node()    {}
func (*ListComp) node()   {}
func (*Call) node()       {}
func (*Await) node()      {}
func (*Attribute) node()  {}
func (*Subscript) node()  {}
func (*UnaryOp) node()    {}
func (*BinOp) node()      {}
func (*Compare) node()    {}
func (*BoolOp) node()     {}
