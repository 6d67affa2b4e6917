package expr

// E is a fluent builder wrapping a Node: the AST is the contract, E is the
// convenience host-language sugar named in the redesign notes — replacing
// the source language's operator-overloaded expression DSL with an
// explicit combinator API.
type E struct{ Node Node }

// Wrap lifts any Node into the fluent builder.
func Wrap(n Node) E { return E{Node: n} }

// Lit builds a fluent literal.
func Lit(v Value) E { return E{Node: Const(v)} }

// Col builds a fluent field reference.
func Col(name string) E { return E{Node: Field(name)} }

func (e E) Add(other E) E { return E{Node: BinOp(OpAdd, e.Node, other.Node)} }
func (e E) Sub(other E) E { return E{Node: BinOp(OpSub, e.Node, other.Node)} }
func (e E) Mul(other E) E { return E{Node: BinOp(OpMul, e.Node, other.Node)} }
func (e E) Div(other E) E { return E{Node: BinOp(OpDiv, e.Node, other.Node)} }
func (e E) Mod(other E) E { return E{Node: BinOp(OpMod, e.Node, other.Node)} }
func (e E) Pow(other E) E { return E{Node: BinOp(OpPow, e.Node, other.Node)} }

func (e E) Gt(other E) E { return E{Node: BinOp(OpGt, e.Node, other.Node)} }
func (e E) Lt(other E) E { return E{Node: BinOp(OpLt, e.Node, other.Node)} }
func (e E) Ge(other E) E { return E{Node: BinOp(OpGe, e.Node, other.Node)} }
func (e E) Le(other E) E { return E{Node: BinOp(OpLe, e.Node, other.Node)} }
func (e E) Eq(other E) E { return E{Node: BinOp(OpEq, e.Node, other.Node)} }
func (e E) Ne(other E) E { return E{Node: BinOp(OpNe, e.Node, other.Node)} }

func (e E) And(other E) E { return E{Node: BinOp(OpAnd, e.Node, other.Node)} }
func (e E) Or(other E) E  { return E{Node: BinOp(OpOr, e.Node, other.Node)} }

func (e E) Neg() E { return E{Node: UnaryOp(OpNeg, e.Node)} }
func (e E) Abs() E { return E{Node: UnaryOp(OpAbs, e.Node)} }
func (e E) Not() E { return E{Node: UnaryOp(OpNot, e.Node)} }

func (e E) Length() E               { return E{Node: StrOp(StrLength, e.Node, nil)} }
func (e E) Upper() E                { return E{Node: StrOp(StrUpper, e.Node, nil)} }
func (e E) Lower() E                { return E{Node: StrOp(StrLower, e.Node, nil)} }
func (e E) Contains(other E) E      { return E{Node: StrOp(StrContains, e.Node, other.Node)} }
func (e E) StartsWith(other E) E    { return E{Node: StrOp(StrStartsWith, e.Node, other.Node)} }
func (e E) Concat(other E) E        { return E{Node: StrOp(StrConcat, e.Node, other.Node)} }
func (e E) IsNull() E               { return E{Node: IsNull(e.Node)} }
func (e E) If(then, els E) E        { return E{Node: If(e.Node, then.Node, els.Node)} }

// CoalesceE builds a fluent coalesce over a list of fluent expressions.
func CoalesceE(exprs ...E) E {
	nodes := make([]Node, len(exprs))
	for i, e := range exprs {
		nodes[i] = e.Node
	}
	return E{Node: Coalesce(nodes...)}
}

// FuncE builds a fluent function call.
func FuncE(name string, args ...E) E {
	nodes := make([]Node, len(args))
	for i, a := range args {
		nodes[i] = a.Node
	}
	return E{Node: Func(name, nodes...)}
}
