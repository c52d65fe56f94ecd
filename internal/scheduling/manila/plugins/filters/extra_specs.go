// Copyright SAP SE
// SPDX-License-Identifier: Apache-2.0

package filters

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Operator of an extra spec constraint.
type ExtraSpecOp int

const (
	// Unprefixed value: boolean match for True/False, exact string match otherwise.
	OpScope ExtraSpecOp = iota
	// "= 10" means the capability is at least 10.
	OpNumAtLeast
	OpNumLt
	OpNumLe
	OpNumGt
	OpNumGe
	OpStrEq
	OpStrNe
	// "<in> x" means x is a substring of, or element of, the capability.
	OpIn
	// "<is> True" is a boolean match.
	OpIs
)

var extraSpecOps = map[string]ExtraSpecOp{
	"=":    OpNumAtLeast,
	"<":    OpNumLt,
	"<=":   OpNumLe,
	">":    OpNumGt,
	">=":   OpNumGe,
	"s==":  OpStrEq,
	"s!=":  OpStrNe,
	"<in>": OpIn,
	"<is>": OpIs,
}

// The capability is not reported by the host.
var errMissingCapability = errors.New("missing capability")

// Parsed extra spec constraint "key: [op] value".
type ExtraSpec struct {
	// Capability key without the "capabilities:" namespace.
	Key string
	Op  ExtraSpecOp
	// The expression as given in the request.
	Raw string
	// The operand without operator.
	Value string
	// The operand of numeric operators.
	Number float64
	// The operand of boolean matches.
	Bool bool
}

// Parse an extra spec. Specs in a namespace other than "capabilities" don't
// constrain the backend and are returned with ok=false.
func ParseExtraSpec(key, expr string) (spec ExtraSpec, ok bool, err error) {
	if ns, name, found := strings.Cut(key, ":"); found {
		if ns != "capabilities" {
			return ExtraSpec{}, false, nil
		}
		key = name
	}
	if key == "" {
		return ExtraSpec{}, false, errors.New("empty extra spec key")
	}
	spec = ExtraSpec{Key: key, Op: OpScope, Raw: expr, Value: strings.TrimSpace(expr)}
	fields := strings.Fields(expr)
	if len(fields) > 0 {
		if op, known := extraSpecOps[fields[0]]; known {
			spec.Op = op
			spec.Value = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(expr), fields[0]))
			if spec.Value == "" {
				return ExtraSpec{}, false, fmt.Errorf("extra spec %s: operator %s needs an operand", key, fields[0])
			}
		} else if looksLikeOperator(fields[0]) && len(fields) > 1 {
			return ExtraSpec{}, false, fmt.Errorf("extra spec %s: unsupported operator %s", key, fields[0])
		}
	}
	switch spec.Op {
	case OpNumAtLeast, OpNumLt, OpNumLe, OpNumGt, OpNumGe:
		n, err := strconv.ParseFloat(spec.Value, 64)
		if err != nil {
			return ExtraSpec{}, false, fmt.Errorf("extra spec %s: %q is not a number", key, spec.Value)
		}
		spec.Number = n
	case OpIs:
		b, isBool := toBool(spec.Value)
		if !isBool {
			return ExtraSpec{}, false, fmt.Errorf("extra spec %s: %q is not a boolean", key, spec.Value)
		}
		spec.Bool = b
	case OpScope:
		spec.Bool, _ = toBool(spec.Value)
	}
	return spec, true, nil
}

// Operators like "==", "s<" or "<all-in>" that are not part of the grammar.
func looksLikeOperator(token string) bool {
	if len(token) > 2 && strings.HasPrefix(token, "<") && strings.HasSuffix(token, ">") {
		return true
	}
	if len(token) > 3 {
		return false
	}
	return strings.Trim(strings.TrimPrefix(token, "s"), "<>=!") == "" && token != "s"
}

// Whether the spec is a boolean match.
func (e ExtraSpec) isBoolMatch() bool {
	if e.Op == OpIs {
		return true
	}
	_, isBool := toBool(e.Value)
	return e.Op == OpScope && isBool
}

// Check whether the capability value satisfies the spec.
// A missing capability only satisfies boolean matches against False.
func (e ExtraSpec) Match(capability any, present bool) (bool, error) {
	if !present {
		if e.isBoolMatch() && !e.Bool {
			return true, nil
		}
		return false, fmt.Errorf("%w %s", errMissingCapability, e.Key)
	}
	if e.isBoolMatch() {
		have, isBool := toBool(capability)
		if !isBool {
			return false, fmt.Errorf("capability %s: %q is not a boolean", e.Key, formatValue(capability))
		}
		return have == e.Bool, nil
	}
	switch e.Op {
	case OpScope, OpStrEq:
		return formatValue(capability) == e.Value, nil
	case OpStrNe:
		return formatValue(capability) != e.Value, nil
	case OpIn:
		if list, isList := capability.([]any); isList {
			for _, item := range list {
				if formatValue(item) == e.Value {
					return true, nil
				}
			}
			return false, nil
		}
		return strings.Contains(formatValue(capability), e.Value), nil
	}
	have, isNumber := toNumber(capability)
	if !isNumber {
		return false, fmt.Errorf("capability %s: %q is not a number", e.Key, formatValue(capability))
	}
	switch e.Op {
	case OpNumAtLeast, OpNumGe:
		return have >= e.Number, nil
	case OpNumLt:
		return have < e.Number, nil
	case OpNumLe:
		return have <= e.Number, nil
	case OpNumGt:
		return have > e.Number, nil
	}
	return false, fmt.Errorf("extra spec %s: unhandled operator %d", e.Key, e.Op)
}
