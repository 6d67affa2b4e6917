package expr

import (
	"fmt"
	"math"
	"strings"

	infraerrors "github.com/r3e-network/objectstore/infrastructure/errors"
)

// Node is an expression tree node. Every node compiles to three targets:
// native evaluation, a Postgres JSONB filter fragment, and an external
// analytics DSL fragment, plus a self-describing JSON form.
type Node interface {
	Eval(ctx Context) (Value, error)

	// sqlFilter appends any literal arguments to args and returns the
	// fragment referencing them by positional placeholder.
	sqlFilter(column string, args *[]any) string

	// deephavenFilter returns a fragment of the host's query-string
	// language (bare column names, Java-like operators).
	deephavenFilter() string

	toJSON() map[string]any
}

// ToSQLFilter compiles n into a parameterized predicate against the given
// JSONB column, suitable for a WHERE clause: ("data"->>'price')::float8 > $1.
func ToSQLFilter(n Node, column string) (string, []any) {
	var args []any
	frag := n.sqlFilter(column, &args)
	return frag, args
}

// ToDeephavenFilter compiles n into a query-string fragment for a
// Deephaven-style downstream analytics engine.
func ToDeephavenFilter(n Node) string {
	return n.deephavenFilter()
}

// --- Const -------------------------------------------------------------

// ConstNode is a literal value.
type ConstNode struct{ Value Value }

// Const builds a literal node.
func Const(v Value) ConstNode { return ConstNode{Value: v} }

func (c ConstNode) Eval(Context) (Value, error) { return c.Value, nil }

func (c ConstNode) sqlFilter(_ string, args *[]any) string {
	if c.Value == nil {
		return "NULL"
	}
	*args = append(*args, c.Value)
	return fmt.Sprintf("$%d", len(*args))
}

func (c ConstNode) deephavenFilter() string {
	switch v := c.Value.(type) {
	case nil:
		return "null"
	case string:
		return "`" + strings.ReplaceAll(v, "`", "\\`") + "`"
	case bool:
		if v {
			return "true"
		}
		return "false"
	default:
		return fmt.Sprintf("%v", v)
	}
}

func (c ConstNode) toJSON() map[string]any {
	return map[string]any{"type": "Const", "value": c.Value}
}

// --- Field ---------------------------------------------------------------

// FieldNode reads a named field from the evaluation context.
type FieldNode struct{ Name string }

// Field builds a field-reference node.
func Field(name string) FieldNode { return FieldNode{Name: name} }

func (f FieldNode) Eval(ctx Context) (Value, error) {
	v, ok := ctx[f.Name]
	if !ok {
		return nil, nil
	}
	return v, nil
}

func (f FieldNode) sqlFilter(column string, _ *[]any) string {
	return fmt.Sprintf("(%s->>'%s')", column, f.Name)
}

func (f FieldNode) deephavenFilter() string { return f.Name }

func (f FieldNode) toJSON() map[string]any {
	return map[string]any{"type": "Field", "name": f.Name}
}

// castNumericSQL wraps a Field's text extraction with a numeric cast when
// it appears in an arithmetic or comparison context; other node kinds
// compile their own numeric representation already.
func castNumericSQL(n Node, column string, args *[]any) string {
	if f, ok := n.(FieldNode); ok {
		return fmt.Sprintf("(%s->>'%s')::float8", column, f.Name)
	}
	return n.sqlFilter(column, args)
}

// --- BinOp -----------------------------------------------------------------

// BinOpNode is a binary arithmetic, comparison, or logical operation.
type BinOpNode struct {
	Op          string
	Left, Right Node
}

const (
	OpAdd = "+"
	OpSub = "-"
	OpMul = "*"
	OpDiv = "/"
	OpMod = "%"
	OpPow = "^"
	OpGt  = ">"
	OpLt  = "<"
	OpGe  = ">="
	OpLe  = "<="
	OpEq  = "="
	OpNe  = "!="
	OpAnd = "and"
	OpOr  = "or"
)

var arithmeticOrComparisonOps = map[string]bool{
	OpAdd: true, OpSub: true, OpMul: true, OpDiv: true, OpMod: true, OpPow: true,
	OpGt: true, OpLt: true, OpGe: true, OpLe: true,
}

// BinOp builds a binary operation node.
func BinOp(op string, left, right Node) BinOpNode {
	return BinOpNode{Op: op, Left: left, Right: right}
}

func (b BinOpNode) Eval(ctx Context) (Value, error) {
	l, err := b.Left.Eval(ctx)
	if err != nil {
		return nil, err
	}

	// Logical operators short-circuit before evaluating the right side.
	if b.Op == OpAnd {
		if !truthy(l) {
			return false, nil
		}
		r, err := b.Right.Eval(ctx)
		if err != nil {
			return nil, err
		}
		return truthy(r), nil
	}
	if b.Op == OpOr {
		if truthy(l) {
			return true, nil
		}
		r, err := b.Right.Eval(ctx)
		if err != nil {
			return nil, err
		}
		return truthy(r), nil
	}

	r, err := b.Right.Eval(ctx)
	if err != nil {
		return nil, err
	}

	if b.Op == OpEq {
		return valuesEqual(l, r), nil
	}
	if b.Op == OpNe {
		return !valuesEqual(l, r), nil
	}

	if l == nil || r == nil {
		return nil, nil
	}

	lf, err := asFloat64(l)
	if err != nil {
		return nil, err
	}
	rf, err := asFloat64(r)
	if err != nil {
		return nil, err
	}

	switch b.Op {
	case OpAdd:
		return lf + rf, nil
	case OpSub:
		return lf - rf, nil
	case OpMul:
		return lf * rf, nil
	case OpDiv:
		if rf == 0 {
			return nil, infraerrors.ArithmeticError("division by zero")
		}
		return lf / rf, nil
	case OpMod:
		if rf == 0 {
			return nil, infraerrors.ArithmeticError("modulo by zero")
		}
		return math.Mod(lf, rf), nil
	case OpPow:
		return math.Pow(lf, rf), nil
	case OpGt:
		return lf > rf, nil
	case OpLt:
		return lf < rf, nil
	case OpGe:
		return lf >= rf, nil
	case OpLe:
		return lf <= rf, nil
	}
	return nil, fmt.Errorf("expr: unknown binary op %q", b.Op)
}

func valuesEqual(l, r Value) bool {
	if l == nil || r == nil {
		return l == r
	}
	lf, lok := toComparableFloat(l)
	rf, rok := toComparableFloat(r)
	if lok && rok {
		return lf == rf
	}
	return l == r
}

func toComparableFloat(v Value) (float64, bool) {
	f, err := asFloat64(v)
	if err != nil {
		return 0, false
	}
	return f, true
}

var sqlOps = map[string]string{
	OpAdd: "+", OpSub: "-", OpMul: "*", OpDiv: "/", OpMod: "%", OpPow: "^",
	OpGt: ">", OpLt: "<", OpGe: ">=", OpLe: "<=", OpEq: "=", OpNe: "!=",
	OpAnd: "AND", OpOr: "OR",
}

var deephavenOps = map[string]string{
	OpAdd: "+", OpSub: "-", OpMul: "*", OpDiv: "/", OpMod: "%", OpPow: "**",
	OpGt: ">", OpLt: "<", OpGe: ">=", OpLe: "<=", OpEq: "==", OpNe: "!=",
	OpAnd: "&&", OpOr: "||",
}

func (b BinOpNode) sqlFilter(column string, args *[]any) string {
	var l, r string
	if arithmeticOrComparisonOps[b.Op] {
		l = castNumericSQL(b.Left, column, args)
		r = castNumericSQL(b.Right, column, args)
	} else {
		l = b.Left.sqlFilter(column, args)
		r = b.Right.sqlFilter(column, args)
	}
	return fmt.Sprintf("(%s %s %s)", l, sqlOps[b.Op], r)
}

func (b BinOpNode) deephavenFilter() string {
	return fmt.Sprintf("(%s %s %s)", b.Left.deephavenFilter(), deephavenOps[b.Op], b.Right.deephavenFilter())
}

func (b BinOpNode) toJSON() map[string]any {
	return map[string]any{
		"type":  "BinOp",
		"op":    b.Op,
		"left":  b.Left.toJSON(),
		"right": b.Right.toJSON(),
	}
}

// --- UnaryOp -----------------------------------------------------------------

// UnaryOpNode is a unary arithmetic or logical operation.
type UnaryOpNode struct {
	Op      string
	Operand Node
}

const (
	OpNeg = "neg"
	OpAbs = "abs"
	OpNot = "not"
)

// UnaryOp builds a unary operation node.
func UnaryOp(op string, operand Node) UnaryOpNode {
	return UnaryOpNode{Op: op, Operand: operand}
}

func (u UnaryOpNode) Eval(ctx Context) (Value, error) {
	v, err := u.Operand.Eval(ctx)
	if err != nil {
		return nil, err
	}
	if u.Op == OpNot {
		return !truthy(v), nil
	}
	if v == nil {
		return nil, nil
	}
	f, err := asFloat64(v)
	if err != nil {
		return nil, err
	}
	switch u.Op {
	case OpNeg:
		return -f, nil
	case OpAbs:
		return math.Abs(f), nil
	}
	return nil, fmt.Errorf("expr: unknown unary op %q", u.Op)
}

func (u UnaryOpNode) sqlFilter(column string, args *[]any) string {
	switch u.Op {
	case OpNeg:
		return fmt.Sprintf("(-%s)", castNumericSQL(u.Operand, column, args))
	case OpAbs:
		return fmt.Sprintf("ABS(%s)", castNumericSQL(u.Operand, column, args))
	case OpNot:
		return fmt.Sprintf("NOT (%s)", u.Operand.sqlFilter(column, args))
	}
	return ""
}

func (u UnaryOpNode) deephavenFilter() string {
	switch u.Op {
	case OpNeg:
		return fmt.Sprintf("(-%s)", u.Operand.deephavenFilter())
	case OpAbs:
		return fmt.Sprintf("Math.abs(%s)", u.Operand.deephavenFilter())
	case OpNot:
		return fmt.Sprintf("!(%s)", u.Operand.deephavenFilter())
	}
	return ""
}

func (u UnaryOpNode) toJSON() map[string]any {
	return map[string]any{"type": "UnaryOp", "op": u.Op, "operand": u.Operand.toJSON()}
}

// --- Func -----------------------------------------------------------------

// FuncNode is a named function call over one or more arguments.
type FuncNode struct {
	Name string
	Args []Node
}

// Func builds a function-call node. Name must be one of sqrt, ceil, floor,
// round, log, exp, min, max.
func Func(name string, args ...Node) FuncNode {
	return FuncNode{Name: name, Args: args}
}

var sqlFuncs = map[string]string{
	"sqrt": "SQRT", "ceil": "CEIL", "floor": "FLOOR", "round": "ROUND",
	"log": "LN", "exp": "EXP", "min": "LEAST", "max": "GREATEST",
}

var deephavenFuncs = map[string]string{
	"sqrt": "Math.sqrt", "ceil": "Math.ceil", "floor": "Math.floor", "round": "Math.round",
	"log": "Math.log", "exp": "Math.exp", "min": "Math.min", "max": "Math.max",
}

func (fn FuncNode) Eval(ctx Context) (Value, error) {
	args := make([]float64, len(fn.Args))
	for i, a := range fn.Args {
		v, err := a.Eval(ctx)
		if err != nil {
			return nil, err
		}
		if v == nil {
			return nil, nil
		}
		f, err := asFloat64(v)
		if err != nil {
			return nil, err
		}
		args[i] = f
	}
	switch fn.Name {
	case "sqrt":
		if args[0] < 0 {
			return nil, infraerrors.ArithmeticError("sqrt of negative number")
		}
		return math.Sqrt(args[0]), nil
	case "ceil":
		return math.Ceil(args[0]), nil
	case "floor":
		return math.Floor(args[0]), nil
	case "round":
		return math.Round(args[0]), nil
	case "log":
		if args[0] <= 0 {
			return nil, infraerrors.ArithmeticError("log of non-positive number")
		}
		return math.Log(args[0]), nil
	case "exp":
		return math.Exp(args[0]), nil
	case "min":
		m := args[0]
		for _, a := range args[1:] {
			m = math.Min(m, a)
		}
		return m, nil
	case "max":
		m := args[0]
		for _, a := range args[1:] {
			m = math.Max(m, a)
		}
		return m, nil
	}
	return nil, fmt.Errorf("expr: unknown function %q", fn.Name)
}

func (fn FuncNode) sqlFilter(column string, args *[]any) string {
	sqlName, ok := sqlFuncs[fn.Name]
	if !ok {
		sqlName = strings.ToUpper(fn.Name)
	}
	parts := make([]string, len(fn.Args))
	for i, a := range fn.Args {
		parts[i] = castNumericSQL(a, column, args)
	}
	return fmt.Sprintf("%s(%s)", sqlName, strings.Join(parts, ", "))
}

func (fn FuncNode) deephavenFilter() string {
	name, ok := deephavenFuncs[fn.Name]
	if !ok {
		name = fn.Name
	}
	parts := make([]string, len(fn.Args))
	for i, a := range fn.Args {
		parts[i] = a.deephavenFilter()
	}
	return fmt.Sprintf("%s(%s)", name, strings.Join(parts, ", "))
}

func (fn FuncNode) toJSON() map[string]any {
	args := make([]map[string]any, len(fn.Args))
	for i, a := range fn.Args {
		args[i] = a.toJSON()
	}
	return map[string]any{"type": "Func", "name": fn.Name, "args": args}
}

// --- If -----------------------------------------------------------------

// IfNode is a conditional expression.
type IfNode struct {
	Cond, Then, Else Node
}

// If builds a conditional node.
func If(cond, then, els Node) IfNode { return IfNode{Cond: cond, Then: then, Else: els} }

func (n IfNode) Eval(ctx Context) (Value, error) {
	c, err := n.Cond.Eval(ctx)
	if err != nil {
		return nil, err
	}
	if truthy(c) {
		return n.Then.Eval(ctx)
	}
	return n.Else.Eval(ctx)
}

func (n IfNode) sqlFilter(column string, args *[]any) string {
	return fmt.Sprintf("CASE WHEN %s THEN %s ELSE %s END",
		n.Cond.sqlFilter(column, args), n.Then.sqlFilter(column, args), n.Else.sqlFilter(column, args))
}

func (n IfNode) deephavenFilter() string {
	return fmt.Sprintf("(%s ? %s : %s)", n.Cond.deephavenFilter(), n.Then.deephavenFilter(), n.Else.deephavenFilter())
}

func (n IfNode) toJSON() map[string]any {
	return map[string]any{"type": "If", "condition": n.Cond.toJSON(), "then": n.Then.toJSON(), "else": n.Else.toJSON()}
}

// --- Coalesce -----------------------------------------------------------------

// CoalesceNode returns the first non-null value from its children.
type CoalesceNode struct{ Exprs []Node }

// Coalesce builds a coalesce node.
func Coalesce(exprs ...Node) CoalesceNode { return CoalesceNode{Exprs: exprs} }

func (n CoalesceNode) Eval(ctx Context) (Value, error) {
	for _, e := range n.Exprs {
		v, err := e.Eval(ctx)
		if err != nil {
			return nil, err
		}
		if v != nil {
			return v, nil
		}
	}
	return nil, nil
}

func (n CoalesceNode) sqlFilter(column string, args *[]any) string {
	parts := make([]string, len(n.Exprs))
	for i, e := range n.Exprs {
		parts[i] = e.sqlFilter(column, args)
	}
	return fmt.Sprintf("COALESCE(%s)", strings.Join(parts, ", "))
}

func (n CoalesceNode) deephavenFilter() string {
	if len(n.Exprs) == 0 {
		return "null"
	}
	expr := n.Exprs[len(n.Exprs)-1].deephavenFilter()
	for i := len(n.Exprs) - 2; i >= 0; i-- {
		cur := n.Exprs[i].deephavenFilter()
		expr = fmt.Sprintf("(%s == null ? %s : %s)", cur, expr, cur)
	}
	return expr
}

func (n CoalesceNode) toJSON() map[string]any {
	exprs := make([]map[string]any, len(n.Exprs))
	for i, e := range n.Exprs {
		exprs[i] = e.toJSON()
	}
	return map[string]any{"type": "Coalesce", "exprs": exprs}
}

// --- IsNull -----------------------------------------------------------------

// IsNullNode tests whether its operand evaluates to null.
type IsNullNode struct{ Operand Node }

// IsNull builds an is-null test node.
func IsNull(operand Node) IsNullNode { return IsNullNode{Operand: operand} }

func (n IsNullNode) Eval(ctx Context) (Value, error) {
	v, err := n.Operand.Eval(ctx)
	if err != nil {
		return nil, err
	}
	return v == nil, nil
}

func (n IsNullNode) sqlFilter(column string, args *[]any) string {
	return fmt.Sprintf("(%s IS NULL)", n.Operand.sqlFilter(column, args))
}

func (n IsNullNode) deephavenFilter() string {
	return fmt.Sprintf("(%s == null)", n.Operand.deephavenFilter())
}

func (n IsNullNode) toJSON() map[string]any {
	return map[string]any{"type": "IsNull", "operand": n.Operand.toJSON()}
}

// --- StrOp -----------------------------------------------------------------

// StrOpNode is a string operation: length, upper, lower, contains,
// starts_with, or concat.
type StrOpNode struct {
	Op      string
	Operand Node
	Arg     Node // nil for length/upper/lower
}

const (
	StrLength     = "length"
	StrUpper      = "upper"
	StrLower      = "lower"
	StrContains   = "contains"
	StrStartsWith = "starts_with"
	StrConcat     = "concat"
)

// StrOp builds a string-operation node. arg may be nil for unary string ops.
func StrOp(op string, operand Node, arg Node) StrOpNode {
	return StrOpNode{Op: op, Operand: operand, Arg: arg}
}

func (n StrOpNode) Eval(ctx Context) (Value, error) {
	v, err := n.Operand.Eval(ctx)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, nil
	}
	s, ok := v.(string)
	if !ok {
		return nil, fmt.Errorf("expr: StrOp operand %v (%T) is not a string", v, v)
	}

	var argVal Value
	if n.Arg != nil {
		argVal, err = n.Arg.Eval(ctx)
		if err != nil {
			return nil, err
		}
	}

	switch n.Op {
	case StrLength:
		return int64(len(s)), nil
	case StrUpper:
		return strings.ToUpper(s), nil
	case StrLower:
		return strings.ToLower(s), nil
	case StrContains:
		sub, _ := argVal.(string)
		return strings.Contains(s, sub), nil
	case StrStartsWith:
		prefix, _ := argVal.(string)
		return strings.HasPrefix(s, prefix), nil
	case StrConcat:
		return s + fmt.Sprintf("%v", argVal), nil
	}
	return nil, fmt.Errorf("expr: unknown string op %q", n.Op)
}

func (n StrOpNode) sqlFilter(column string, args *[]any) string {
	s := n.Operand.sqlFilter(column, args)
	switch n.Op {
	case StrLength:
		return fmt.Sprintf("LENGTH(%s)", s)
	case StrUpper:
		return fmt.Sprintf("UPPER(%s)", s)
	case StrLower:
		return fmt.Sprintf("LOWER(%s)", s)
	case StrContains:
		return fmt.Sprintf("(%s LIKE '%%' || %s || '%%')", s, n.Arg.sqlFilter(column, args))
	case StrStartsWith:
		return fmt.Sprintf("(%s LIKE %s || '%%')", s, n.Arg.sqlFilter(column, args))
	case StrConcat:
		return fmt.Sprintf("(%s || %s)", s, n.Arg.sqlFilter(column, args))
	}
	return ""
}

func (n StrOpNode) deephavenFilter() string {
	p := n.Operand.deephavenFilter()
	switch n.Op {
	case StrLength:
		return fmt.Sprintf("%s.length()", p)
	case StrUpper:
		return fmt.Sprintf("%s.toUpperCase()", p)
	case StrLower:
		return fmt.Sprintf("%s.toLowerCase()", p)
	case StrContains:
		return fmt.Sprintf("%s.contains(%s)", p, n.Arg.deephavenFilter())
	case StrStartsWith:
		return fmt.Sprintf("%s.startsWith(%s)", p, n.Arg.deephavenFilter())
	case StrConcat:
		return fmt.Sprintf("(%s + %s)", p, n.Arg.deephavenFilter())
	}
	return ""
}

func (n StrOpNode) toJSON() map[string]any {
	d := map[string]any{"type": "StrOp", "op": n.Op, "operand": n.Operand.toJSON()}
	if n.Arg != nil {
		d["arg"] = n.Arg.toJSON()
	}
	return d
}
