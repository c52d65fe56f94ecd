// Copyright SAP SE
// SPDX-License-Identifier: Apache-2.0

package filters

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/kramdoss/manila/internal/scheduling/manila/hosts"
)

// Node of a compiled json filter expression.
//
// Expressions are either objects with a single operator key, such as
// {"and": [{">=": ["$free_capacity_gb", 100]}]}, or lists with the operator
// first, such as ["and", [">=", "$free_capacity_gb", 100]].
type queryNode struct {
	// Operator of inner nodes, empty for operands.
	op   string
	args []*queryNode
	// Host attribute referenced by a "$" operand.
	attr string
	// Literal operand.
	value any
}

var queryOps = []string{"=", "<", ">", "<=", ">=", "in", "not", "or", "and"}

// Marker for operands that reference an attribute the host doesn't have.
type missingValue struct{}

// Parse a json filter. Returns nil if the expression is empty.
// The expression may also be a json string containing the encoded tree.
func parseJsonQuery(raw json.RawMessage) (*queryNode, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}
	var decoded any
	if err := json.Unmarshal(trimmed, &decoded); err != nil {
		return nil, fmt.Errorf("malformed json filter: %w", err)
	}
	if encoded, ok := decoded.(string); ok {
		if strings.TrimSpace(encoded) == "" {
			return nil, nil
		}
		if err := json.Unmarshal([]byte(encoded), &decoded); err != nil {
			return nil, fmt.Errorf("malformed json filter: %w", err)
		}
	}
	node, err := compileQuery(decoded)
	if err != nil {
		return nil, err
	}
	if node.op == "" {
		return nil, errors.New("json filter must start with an operator")
	}
	return node, nil
}

func compileQuery(value any) (*queryNode, error) {
	switch v := value.(type) {
	case map[string]any:
		if len(v) != 1 {
			return nil, fmt.Errorf("json filter object must have exactly one operator, got %d keys", len(v))
		}
		for op, args := range v {
			list, ok := args.([]any)
			if !ok {
				list = []any{args}
			}
			return compileOperator(op, list)
		}
	case []any:
		if len(v) > 0 {
			if op, ok := v[0].(string); ok && slices.Contains(queryOps, op) {
				return compileOperator(op, v[1:])
			}
		}
		return &queryNode{value: v}, nil
	case string:
		if attr, ok := strings.CutPrefix(v, "$"); ok {
			if attr == "" {
				return nil, errors.New("json filter references an empty attribute")
			}
			return &queryNode{attr: attr}, nil
		}
	}
	return &queryNode{value: value}, nil
}

func compileOperator(op string, rawArgs []any) (*queryNode, error) {
	if !slices.Contains(queryOps, op) {
		return nil, fmt.Errorf("unsupported json filter operator %q", op)
	}
	node := &queryNode{op: op}
	for _, raw := range rawArgs {
		arg, err := compileQuery(raw)
		if err != nil {
			return nil, err
		}
		node.args = append(node.args, arg)
	}
	switch op {
	case "not":
		if len(node.args) != 1 {
			return nil, fmt.Errorf("json filter operator not needs one argument, got %d", len(node.args))
		}
	case "and", "or":
		if len(node.args) == 0 {
			return nil, fmt.Errorf("json filter operator %s needs arguments", op)
		}
	default:
		if len(node.args) < 2 {
			return nil, fmt.Errorf("json filter operator %s needs at least two arguments, got %d", op, len(node.args))
		}
	}
	return node, nil
}

// Evaluate the expression against the host and return whether it matches.
func (n *queryNode) matches(host hosts.HostState) (bool, error) {
	result, err := n.eval(host)
	if err != nil {
		return false, err
	}
	b, ok := result.(bool)
	if !ok {
		return false, fmt.Errorf("json filter evaluated to %v instead of a boolean", result)
	}
	return b, nil
}

func (n *queryNode) eval(host hosts.HostState) (any, error) {
	if n.op == "" {
		if n.attr == "" {
			return n.value, nil
		}
		if key, ok := strings.CutPrefix(n.attr, "capabilities."); ok {
			if value, found := host.Capabilities[key]; found {
				return value, nil
			}
			return missingValue{}, nil
		}
		if value, found := hostAttribute(host, n.attr); found {
			return value, nil
		}
		return missingValue{}, nil
	}
	args := make([]any, len(n.args))
	for i, arg := range n.args {
		value, err := arg.eval(host)
		if err != nil {
			return nil, err
		}
		args[i] = value
	}
	switch n.op {
	case "and", "or", "not":
		return evalLogical(n.op, args)
	case "in":
		for _, candidate := range args[1:] {
			if valuesEqual(args[0], candidate) {
				return true, nil
			}
		}
		return false, nil
	case "=":
		for _, other := range args[1:] {
			if !valuesEqual(args[0], other) {
				return false, nil
			}
		}
		return true, nil
	}
	// Ordering comparisons hold pairwise, e.g. [">", 10, 5, 1].
	for i := 0; i+1 < len(args); i++ {
		ok, err := compareOrdered(n.op, args[i], args[i+1])
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

func evalLogical(op string, args []any) (bool, error) {
	bools := make([]bool, len(args))
	for i, arg := range args {
		b, ok := arg.(bool)
		if !ok {
			return false, fmt.Errorf("json filter operator %s needs boolean arguments, got %v", op, arg)
		}
		bools[i] = b
	}
	switch op {
	case "not":
		return !bools[0], nil
	case "or":
		return slices.Contains(bools, true), nil
	default:
		return !slices.Contains(bools, false), nil
	}
}

func valuesEqual(a, b any) bool {
	if _, missing := a.(missingValue); missing {
		return false
	}
	if _, missing := b.(missingValue); missing {
		return false
	}
	aNum, aIsNum := a.(float64)
	bNum, bIsNum := b.(float64)
	if aIsNum && bIsNum {
		return aNum == bNum
	}
	if aIsNum || bIsNum {
		// Compare reported strings such as "100" with numbers.
		aNum, aOk := toNumber(a)
		bNum, bOk := toNumber(b)
		return aOk && bOk && aNum == bNum
	}
	return formatValue(a) == formatValue(b)
}

// Missing attributes never satisfy a comparison.
func compareOrdered(op string, a, b any) (bool, error) {
	if _, missing := a.(missingValue); missing {
		return false, nil
	}
	if _, missing := b.(missingValue); missing {
		return false, nil
	}
	var c int
	aNum, aOk := toNumber(a)
	bNum, bOk := toNumber(b)
	aStr, aIsStr := a.(string)
	bStr, bIsStr := b.(string)
	switch {
	case aIsStr && bIsStr && !(aOk && bOk):
		c = strings.Compare(aStr, bStr)
	case aOk && bOk:
		switch {
		case aNum < bNum:
			c = -1
		case aNum > bNum:
			c = 1
		}
	default:
		return false, fmt.Errorf("cannot compare %v and %v with %s", a, b, op)
	}
	switch op {
	case "<":
		return c < 0, nil
	case ">":
		return c > 0, nil
	case "<=":
		return c <= 0, nil
	default:
		return c >= 0, nil
	}
}
