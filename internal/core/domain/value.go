package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

type ValueKind uint8

const (
	KindString ValueKind = iota
	KindNumber
	KindBool
	KindList
)

// Value is one extracted field. Model output is loosely typed JSON; pinning
// each field to one of four kinds keeps condition evaluation total: a
// predicate over the wrong kind is false, never a panic or a type error.
type Value struct {
	Kind ValueKind
	Str  string
	Num  float64
	Bool bool
	List []string
}

func StringValue(s string) Value      { return Value{Kind: KindString, Str: s} }
func NumberValue(n float64) Value     { return Value{Kind: KindNumber, Num: n} }
func BoolValue(b bool) Value          { return Value{Kind: KindBool, Bool: b} }
func ListValue(items ...string) Value { return Value{Kind: KindList, List: items} }

// ValueFromAny converts decoded JSON into a Value. Objects, nulls and
// anything else unrepresentable report false.
func ValueFromAny(raw any) (Value, bool) {
	switch v := raw.(type) {
	case string:
		return StringValue(v), true
	case float64:
		return NumberValue(v), true
	case float32:
		return NumberValue(float64(v)), true
	case int:
		return NumberValue(float64(v)), true
	case int64:
		return NumberValue(float64(v)), true
	case json.Number:
		n, err := v.Float64()
		if err != nil {
			return Value{}, false
		}
		return NumberValue(n), true
	case bool:
		return BoolValue(v), true
	case []string:
		return ListValue(v...), true
	case []any:
		items := make([]string, 0, len(v))
		for _, item := range v {
			iv, ok := ValueFromAny(item)
			if !ok {
				continue
			}
			items = append(items, iv.String())
		}
		return ListValue(items...), true
	case Value:
		return v, true
	}
	return Value{}, false
}

// FieldsFromAny converts a decoded JSON object into typed fields, dropping
// entries with no Value representation (nulls, nested objects).
func FieldsFromAny(raw map[string]any) map[string]Value {
	fields := make(map[string]Value, len(raw))
	for key, item := range raw {
		if v, ok := ValueFromAny(item); ok {
			fields[key] = v
		}
	}
	return fields
}

func (v Value) String() string {
	switch v.Kind {
	case KindNumber:
		return strconv.FormatFloat(v.Num, 'f', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.Bool)
	case KindList:
		return strings.Join(v.List, ", ")
	default:
		return v.Str
	}
}

func (v Value) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case KindNumber:
		return json.Marshal(v.Num)
	case KindBool:
		return json.Marshal(v.Bool)
	case KindList:
		if v.List == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(v.List)
	default:
		return json.Marshal(v.Str)
	}
}

func (v *Value) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, ok := ValueFromAny(raw)
	if !ok {
		return fmt.Errorf("value: unsupported JSON shape %s", strings.TrimSpace(string(data)))
	}
	*v = parsed
	return nil
}
