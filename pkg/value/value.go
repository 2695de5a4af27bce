// Package value defines the dynamic value universe V shared by the
// expression engine, the ValueRef resolver, and the engine runtime:
// null, boolean, arbitrary-precision integer, exact decimal, string,
// ordered list, and string-keyed map.
package value

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
	"sort"
	"strings"

	"github.com/smilemakc/ais-go/pkg/numeric"
)

// Kind tags the dynamic type of a Value.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindDecimal
	KindString
	KindList
	KindMap
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindDecimal:
		return "decimal"
	case KindString:
		return "string"
	case KindList:
		return "list"
	case KindMap:
		return "map"
	default:
		return "unknown"
	}
}

// Value is an immutable, tagged member of the dynamic value universe.
type Value struct {
	kind    Kind
	boolean bool
	integer *big.Int
	decimal numeric.Decimal
	str     string
	list    []Value
	obj     map[string]Value
}

// Null is the null value.
func Null() Value { return Value{kind: KindNull} }

// Bool wraps a boolean.
func Bool(b bool) Value { return Value{kind: KindBool, boolean: b} }

// Int wraps an arbitrary-precision integer.
func Int(i *big.Int) Value { return Value{kind: KindInt, integer: new(big.Int).Set(i)} }

// IntFromInt64 is a convenience constructor for small integers.
func IntFromInt64(i int64) Value { return Int(big.NewInt(i)) }

// Dec wraps a Decimal.
func Dec(d numeric.Decimal) Value { return Value{kind: KindDecimal, decimal: d} }

// Str wraps a string.
func Str(s string) Value { return Value{kind: KindString, str: s} }

// List wraps an ordered slice of values (copied).
func List(items []Value) Value {
	cp := make([]Value, len(items))
	copy(cp, items)
	return Value{kind: KindList, list: cp}
}

// Map wraps a string-keyed map of values (copied).
func Map(m map[string]Value) Value {
	cp := make(map[string]Value, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return Value{kind: KindMap, obj: cp}
}

func (v Value) Kind() Kind          { return v.kind }
func (v Value) IsNull() bool        { return v.kind == KindNull }
func (v Value) AsBool() bool        { return v.boolean }
func (v Value) AsInt() *big.Int     { return new(big.Int).Set(v.integer) }
func (v Value) AsDecimal() numeric.Decimal { return v.decimal }
func (v Value) AsString() string    { return v.str }

// AsList returns the underlying slice (copied) or nil if not a list.
func (v Value) AsList() []Value {
	if v.kind != KindList {
		return nil
	}
	cp := make([]Value, len(v.list))
	copy(cp, v.list)
	return cp
}

// AsMap returns the underlying map (copied) or nil if not a map.
func (v Value) AsMap() map[string]Value {
	if v.kind != KindMap {
		return nil
	}
	cp := make(map[string]Value, len(v.obj))
	for k, val := range v.obj {
		cp[k] = val
	}
	return cp
}

// Get looks up a key in a map value; ok is false if not a map or the key
// is absent.
func (v Value) Get(key string) (Value, bool) {
	if v.kind != KindMap {
		return Value{}, false
	}
	val, ok := v.obj[key]
	return val, ok
}

// Index looks up a position in a list value.
func (v Value) Index(i int) (Value, bool) {
	if v.kind != KindList || i < 0 || i >= len(v.list) {
		return Value{}, false
	}
	return v.list[i], true
}

// SortedKeys returns the map's keys sorted for deterministic iteration.
func (v Value) SortedKeys() []string {
	if v.kind != KindMap {
		return nil
	}
	keys := make([]string, 0, len(v.obj))
	for k := range v.obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Truthy implements the truthy coercion rule used by exists/all/ternary
// conditions: null -> false, bool -> self, numeric -> nonzero,
// string -> nonempty, list/map -> nonempty.
func (v Value) Truthy() bool {
	switch v.kind {
	case KindNull:
		return false
	case KindBool:
		return v.boolean
	case KindInt:
		return v.integer.Sign() != 0
	case KindDecimal:
		return !v.decimal.IsZero()
	case KindString:
		return v.str != ""
	case KindList:
		return len(v.list) != 0
	case KindMap:
		return len(v.obj) != 0
	default:
		return false
	}
}

// Equal implements structural equality: lists and maps compare
// element-wise, integers/decimals compare numerically across kinds.
func Equal(a, b Value) bool {
	if a.kind == KindInt && b.kind == KindDecimal {
		return numeric.FromAtomicInt(a.integer, 0).Equal(b.decimal)
	}
	if a.kind == KindDecimal && b.kind == KindInt {
		return a.decimal.Equal(numeric.FromAtomicInt(b.integer, 0))
	}
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case KindNull:
		return true
	case KindBool:
		return a.boolean == b.boolean
	case KindInt:
		return a.integer.Cmp(b.integer) == 0
	case KindDecimal:
		return a.decimal.Equal(b.decimal)
	case KindString:
		return a.str == b.str
	case KindList:
		if len(a.list) != len(b.list) {
			return false
		}
		for i := range a.list {
			if !Equal(a.list[i], b.list[i]) {
				return false
			}
		}
		return true
	case KindMap:
		if len(a.obj) != len(b.obj) {
			return false
		}
		for k, av := range a.obj {
			bv, ok := b.obj[k]
			if !ok || !Equal(av, bv) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// TypeName returns the CEL `type()` builtin's name for this value.
func (v Value) TypeName() string { return v.kind.String() }

// ToInterface converts a Value into a generic any tree (map[string]any,
// []any, string, bool, nil, and numeric types) suitable for JSON
// encoding or handing to external documents.
func (v Value) ToInterface() interface{} {
	switch v.kind {
	case KindNull:
		return nil
	case KindBool:
		return v.boolean
	case KindInt:
		if v.integer.IsInt64() {
			return v.integer.Int64()
		}
		return v.integer.String()
	case KindDecimal:
		return v.decimal.String()
	case KindString:
		return v.str
	case KindList:
		out := make([]interface{}, len(v.list))
		for i, item := range v.list {
			out[i] = item.ToInterface()
		}
		return out
	case KindMap:
		out := make(map[string]interface{}, len(v.obj))
		for k, item := range v.obj {
			out[k] = item.ToInterface()
		}
		return out
	default:
		return nil
	}
}

// FromInterface lifts a generic JSON-like tree into the value universe.
// Numbers with a fractional part or that overflow int64 precision parse
// as decimals; integral float64s and json.Number integers parse as
// arbitrary-precision integers.
func FromInterface(v interface{}) (Value, error) {
	switch t := v.(type) {
	case nil:
		return Null(), nil
	case bool:
		return Bool(t), nil
	case string:
		return Str(t), nil
	case int:
		return IntFromInt64(int64(t)), nil
	case int64:
		return IntFromInt64(t), nil
	case float64:
		return floatToValue(t)
	case json.Number:
		return numberToValue(t)
	case []interface{}:
		items := make([]Value, len(t))
		for i, item := range t {
			cv, err := FromInterface(item)
			if err != nil {
				return Value{}, err
			}
			items[i] = cv
		}
		return List(items), nil
	case map[string]interface{}:
		m := make(map[string]Value, len(t))
		for k, item := range t {
			cv, err := FromInterface(item)
			if err != nil {
				return Value{}, err
			}
			m[k] = cv
		}
		return Map(m), nil
	default:
		return Value{}, fmt.Errorf("value: unsupported native type %T", v)
	}
}

func floatToValue(f float64) (Value, error) {
	if f == float64(int64(f)) {
		return IntFromInt64(int64(f)), nil
	}
	d, err := numeric.Parse(trimFloat(f))
	if err != nil {
		return Value{}, err
	}
	return Dec(d), nil
}

func trimFloat(f float64) string {
	return fmt.Sprintf("%v", f)
}

// numberToValue parses a json.Number, preserving full precision: an
// integral literal becomes an arbitrary-precision KindInt rather than
// round-tripping through float64, and anything with a fractional or
// exponent part becomes a KindDecimal.
func numberToValue(n json.Number) (Value, error) {
	if !strings.ContainsAny(string(n), ".eE") {
		if i, ok := new(big.Int).SetString(string(n), 10); ok {
			return Int(i), nil
		}
	}
	d, err := numeric.Parse(string(n))
	if err != nil {
		return Value{}, err
	}
	return Dec(d), nil
}

// MarshalJSON encodes v as plain JSON: integers and decimals as JSON
// number literals at full precision, lists and maps element by element,
// and the remaining kinds through ToInterface. It never reflects over
// Value's unexported fields.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindInt:
		return []byte(v.integer.String()), nil
	case KindDecimal:
		return []byte(v.decimal.String()), nil
	case KindList:
		return json.Marshal(v.list)
	case KindMap:
		return json.Marshal(v.obj)
	default:
		return json.Marshal(v.ToInterface())
	}
}

// UnmarshalJSON decodes a plain JSON tree into v via FromInterface,
// decoding numbers through json.Number so integers of any size survive
// the round trip instead of losing precision through float64.
func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw interface{}
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	cv, err := FromInterface(raw)
	if err != nil {
		return err
	}
	*v = cv
	return nil
}
