package domain

import (
	"fmt"
	"strings"
)

type ConditionOp string

const (
	OpAnd      ConditionOp = "and"
	OpOr       ConditionOp = "or"
	OpNot      ConditionOp = "not"
	OpEq       ConditionOp = "eq"
	OpNeq      ConditionOp = "neq"
	OpContains ConditionOp = "contains"
	OpGte      ConditionOp = "gte"
	OpLte      ConditionOp = "lte"
	OpExists   ConditionOp = "exists"
)

// Condition is a boolean tree over extracted candidate fields. Composite ops
// (and, or, not) nest through Terms; leaf ops compare Field against Value.
// The zero value matches every candidate.
type Condition struct {
	Op    ConditionOp `json:"op,omitempty"`
	Terms []Condition `json:"terms,omitempty"`
	Field string      `json:"field,omitempty"`
	Value any         `json:"value,omitempty"`
}

func (c Condition) IsZero() bool {
	return c.Op == "" && len(c.Terms) == 0 && c.Field == ""
}

func (c Condition) Validate() error {
	if c.IsZero() {
		return nil
	}
	switch c.Op {
	case OpAnd, OpOr:
		if len(c.Terms) == 0 {
			return WrapError(ErrInvalidInput, "condition", fmt.Errorf("%s requires terms", c.Op))
		}
		for _, t := range c.Terms {
			if err := t.Validate(); err != nil {
				return err
			}
		}
	case OpNot:
		if len(c.Terms) != 1 {
			return WrapError(ErrInvalidInput, "condition", fmt.Errorf("not requires exactly one term, got %d", len(c.Terms)))
		}
		return c.Terms[0].Validate()
	case OpEq, OpNeq, OpContains, OpGte, OpLte:
		if c.Field == "" {
			return WrapError(ErrInvalidInput, "condition", fmt.Errorf("%s requires a field", c.Op))
		}
		if c.Value == nil {
			return WrapError(ErrInvalidInput, "condition", fmt.Errorf("%s on %q requires a value", c.Op, c.Field))
		}
	case OpExists:
		if c.Field == "" {
			return WrapError(ErrInvalidInput, "condition", fmt.Errorf("exists requires a field"))
		}
	default:
		return WrapError(ErrInvalidInput, "condition", fmt.Errorf("unknown op %q", c.Op))
	}
	return nil
}

// Evaluate applies the tree to a candidate's typed fields. Missing fields
// make leaf predicates false (except exists); a predicate over the wrong
// value kind is false, never an error, so the same tree always yields the
// same verdict for the same fields.
func (c Condition) Evaluate(fields map[string]Value) bool {
	if c.IsZero() {
		return true
	}
	switch c.Op {
	case OpAnd:
		for _, t := range c.Terms {
			if !t.Evaluate(fields) {
				return false
			}
		}
		return true
	case OpOr:
		for _, t := range c.Terms {
			if t.Evaluate(fields) {
				return true
			}
		}
		return false
	case OpNot:
		return !c.Terms[0].Evaluate(fields)
	case OpExists:
		_, ok := fields[c.Field]
		return ok
	}
	val, ok := fields[c.Field]
	if !ok {
		return false
	}
	want, ok := ValueFromAny(c.Value)
	if !ok {
		return false
	}
	switch c.Op {
	case OpEq:
		return valueEqual(val, want)
	case OpNeq:
		return !valueEqual(val, want)
	case OpContains:
		return valueContains(val, want)
	case OpGte:
		return val.Kind == KindNumber && want.Kind == KindNumber && val.Num >= want.Num
	case OpLte:
		return val.Kind == KindNumber && want.Kind == KindNumber && val.Num <= want.Num
	}
	return false
}

func valueEqual(a, b Value) bool {
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case KindNumber:
		return a.Num == b.Num
	case KindBool:
		return a.Bool == b.Bool
	case KindList:
		if len(a.List) != len(b.List) {
			return false
		}
		for i := range a.List {
			if !strings.EqualFold(a.List[i], b.List[i]) {
				return false
			}
		}
		return true
	default:
		return strings.EqualFold(a.Str, b.Str)
	}
}

// valueContains matches lists by element and strings by substring,
// case-insensitively in both cases.
func valueContains(haystack, needle Value) bool {
	ns := needle.String()
	if ns == "" {
		return false
	}
	switch haystack.Kind {
	case KindList:
		for _, item := range haystack.List {
			if strings.EqualFold(item, ns) {
				return true
			}
		}
		return false
	case KindString:
		return strings.Contains(strings.ToLower(haystack.Str), strings.ToLower(ns))
	}
	return false
}
