package expr

import (
	"encoding/json"
	"fmt"
)

// ToJSON renders n as its self-describing map form: {"type": ..., ...}.
func ToJSON(n Node) map[string]any { return n.toJSON() }

// Serialize renders n as its self-describing JSON form.
func Serialize(n Node) ([]byte, error) {
	return json.Marshal(n.toJSON())
}

// Deserialize parses a self-describing JSON form back into a Node tree
// that is observationally equivalent to the original under Eval.
func Deserialize(data []byte) (Node, error) {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("expr: deserialize: %w", err)
	}
	return FromMap(raw)
}

// FromMap reconstructs a Node from its decoded JSON map form.
func FromMap(data map[string]any) (Node, error) {
	typ, _ := data["type"].(string)
	switch typ {
	case "Const":
		return ConstNode{Value: data["value"]}, nil

	case "Field":
		name, _ := data["name"].(string)
		return FieldNode{Name: name}, nil

	case "BinOp":
		left, err := childNode(data, "left")
		if err != nil {
			return nil, err
		}
		right, err := childNode(data, "right")
		if err != nil {
			return nil, err
		}
		op, _ := data["op"].(string)
		return BinOpNode{Op: op, Left: left, Right: right}, nil

	case "UnaryOp":
		operand, err := childNode(data, "operand")
		if err != nil {
			return nil, err
		}
		op, _ := data["op"].(string)
		return UnaryOpNode{Op: op, Operand: operand}, nil

	case "Func":
		name, _ := data["name"].(string)
		rawArgs, _ := data["args"].([]any)
		args := make([]Node, len(rawArgs))
		for i, ra := range rawArgs {
			m, ok := ra.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("expr: Func arg %d is not an object", i)
			}
			n, err := FromMap(m)
			if err != nil {
				return nil, err
			}
			args[i] = n
		}
		return FuncNode{Name: name, Args: args}, nil

	case "If":
		cond, err := childNode(data, "condition")
		if err != nil {
			return nil, err
		}
		then, err := childNode(data, "then")
		if err != nil {
			return nil, err
		}
		els, err := childNode(data, "else")
		if err != nil {
			return nil, err
		}
		return IfNode{Cond: cond, Then: then, Else: els}, nil

	case "Coalesce":
		rawExprs, _ := data["exprs"].([]any)
		exprs := make([]Node, len(rawExprs))
		for i, re := range rawExprs {
			m, ok := re.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("expr: Coalesce expr %d is not an object", i)
			}
			n, err := FromMap(m)
			if err != nil {
				return nil, err
			}
			exprs[i] = n
		}
		return CoalesceNode{Exprs: exprs}, nil

	case "IsNull":
		operand, err := childNode(data, "operand")
		if err != nil {
			return nil, err
		}
		return IsNullNode{Operand: operand}, nil

	case "StrOp":
		operand, err := childNode(data, "operand")
		if err != nil {
			return nil, err
		}
		op, _ := data["op"].(string)
		var arg Node
		if rawArg, ok := data["arg"]; ok {
			m, ok := rawArg.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("expr: StrOp arg is not an object")
			}
			arg, err = FromMap(m)
			if err != nil {
				return nil, err
			}
		}
		return StrOpNode{Op: op, Operand: operand, Arg: arg}, nil
	}

	return nil, fmt.Errorf("expr: unknown expression type %q", typ)
}

func childNode(data map[string]any, key string) (Node, error) {
	raw, ok := data[key]
	if !ok {
		return nil, fmt.Errorf("expr: missing field %q", key)
	}
	m, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("expr: field %q is not an object", key)
	}
	return FromMap(m)
}
