// Package value defines the tagged JSON-like value shared by contract
// storage, transaction arguments and event payloads.
//
// Modelling the heterogeneous values as a closed variant instead of a bare
// interface{} gives every backend and the persistence layer one
// serialization-safe type to agree on.
package value

import (
	"encoding/json"
	"sort"
	"strconv"

	"golang.org/x/xerrors"
)

// Kind enumerates the possible shapes of a value.
type Kind int

// Supported kinds, in the order of the JSON data model.
const (
	Null Kind = iota
	Bool
	Number
	String
	List
	Map
)

// String implements fmt.Stringer. It returns a human readable name of the
// kind.
func (k Kind) String() string {
	switch k {
	case Null:
		return "null"
	case Bool:
		return "bool"
	case Number:
		return "number"
	case String:
		return "string"
	case List:
		return "list"
	case Map:
		return "map"
	default:
		return "unknown"
	}
}

// V is a single JSON-like value. The zero value is the null value.
type V struct {
	kind Kind
	b    bool
	n    float64
	s    string
	l    []V
	m    map[string]V
}

// NewNull returns the null value.
func NewNull() V {
	return V{kind: Null}
}

// NewBool returns a boolean value.
func NewBool(b bool) V {
	return V{kind: Bool, b: b}
}

// NewNumber returns a numeric value.
func NewNumber(n float64) V {
	return V{kind: Number, n: n}
}

// NewString returns a string value.
func NewString(s string) V {
	return V{kind: String, s: s}
}

// NewList returns a list value containing the given elements.
func NewList(elems ...V) V {
	return V{kind: List, l: elems}
}

// NewMap returns a map value containing the given entries.
func NewMap(entries map[string]V) V {
	if entries == nil {
		entries = map[string]V{}
	}

	return V{kind: Map, m: entries}
}

// FromAny converts a value freshly decoded by encoding/json into a V. It
// returns an error when the dynamic type is not part of the JSON data model.
func FromAny(raw interface{}) (V, error) {
	switch v := raw.(type) {
	case nil:
		return NewNull(), nil
	case bool:
		return NewBool(v), nil
	case float64:
		return NewNumber(v), nil
	case int:
		return NewNumber(float64(v)), nil
	case int64:
		return NewNumber(float64(v)), nil
	case uint64:
		return NewNumber(float64(v)), nil
	case string:
		return NewString(v), nil
	case []interface{}:
		elems := make([]V, len(v))
		for i, e := range v {
			conv, err := FromAny(e)
			if err != nil {
				return V{}, xerrors.Errorf("element %d: %v", i, err)
			}

			elems[i] = conv
		}

		return NewList(elems...), nil
	case map[string]interface{}:
		entries := make(map[string]V, len(v))
		for key, e := range v {
			conv, err := FromAny(e)
			if err != nil {
				return V{}, xerrors.Errorf("key '%s': %v", key, err)
			}

			entries[key] = conv
		}

		return NewMap(entries), nil
	default:
		return V{}, xerrors.Errorf("unsupported type '%T'", raw)
	}
}

// Kind returns the kind of the value.
func (v V) Kind() Kind {
	return v.kind
}

// IsNull returns true when the value is null.
func (v V) IsNull() bool {
	return v.kind == Null
}

// Bool returns the boolean payload. It is false for any other kind.
func (v V) Bool() bool {
	return v.kind == Bool && v.b
}

// Number returns the numeric payload, or 0 for any other kind. Null
// deliberately coerces to 0 so that arithmetic over missing storage keys is
// well defined.
func (v V) Number() float64 {
	if v.kind == Number {
		return v.n
	}

	return 0
}

// Str returns the string payload, or "" for any other kind.
func (v V) Str() string {
	if v.kind == String {
		return v.s
	}

	return ""
}

// List returns the elements of a list value, or nil.
func (v V) List() []V {
	return v.l
}

// Map returns the entries of a map value, or nil.
func (v V) Map() map[string]V {
	return v.m
}

// Get returns the entry of a map value for the key, or null.
func (v V) Get(key string) V {
	if v.kind != Map {
		return NewNull()
	}

	return v.m[key]
}

// At returns the element of a list value at the index, or null when the index
// is out of range.
func (v V) At(i int) V {
	if v.kind != List || i < 0 || i >= len(v.l) {
		return NewNull()
	}

	return v.l[i]
}

// Truthy reports whether the value counts as true in a conditional: false,
// null, 0 and "" are falsy, everything else is truthy.
func (v V) Truthy() bool {
	switch v.kind {
	case Null:
		return false
	case Bool:
		return v.b
	case Number:
		return v.n != 0
	case String:
		return v.s != ""
	default:
		return true
	}
}

// Equal returns true when the other value has the same kind and payload.
func (v V) Equal(other V) bool {
	if v.kind != other.kind {
		return false
	}

	switch v.kind {
	case Null:
		return true
	case Bool:
		return v.b == other.b
	case Number:
		return v.n == other.n
	case String:
		return v.s == other.s
	case List:
		if len(v.l) != len(other.l) {
			return false
		}

		for i, e := range v.l {
			if !e.Equal(other.l[i]) {
				return false
			}
		}

		return true
	case Map:
		if len(v.m) != len(other.m) {
			return false
		}

		for key, e := range v.m {
			o, ok := other.m[key]
			if !ok || !e.Equal(o) {
				return false
			}
		}

		return true
	default:
		return false
	}
}

// String implements fmt.Stringer. It returns a compact textual form of the
// value, mainly for logs.
func (v V) String() string {
	switch v.kind {
	case Null:
		return "null"
	case Bool:
		return strconv.FormatBool(v.b)
	case Number:
		return strconv.FormatFloat(v.n, 'f', -1, 64)
	case String:
		return v.s
	default:
		data, err := v.MarshalJSON()
		if err != nil {
			return "<invalid>"
		}

		return string(data)
	}
}

// Interface returns the value as the dynamic type encoding/json would have
// produced for it.
func (v V) Interface() interface{} {
	switch v.kind {
	case Null:
		return nil
	case Bool:
		return v.b
	case Number:
		return v.n
	case String:
		return v.s
	case List:
		elems := make([]interface{}, len(v.l))
		for i, e := range v.l {
			elems[i] = e.Interface()
		}

		return elems
	case Map:
		entries := make(map[string]interface{}, len(v.m))
		for key, e := range v.m {
			entries[key] = e.Interface()
		}

		return entries
	default:
		return nil
	}
}

// MarshalJSON implements json.Marshaler. Map keys are written in sorted order
// so the encoding is deterministic.
func (v V) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case Null:
		return []byte("null"), nil
	case Bool:
		return json.Marshal(v.b)
	case Number:
		return json.Marshal(v.n)
	case String:
		return json.Marshal(v.s)
	case List:
		out := []byte{'['}
		for i, e := range v.l {
			if i > 0 {
				out = append(out, ',')
			}

			data, err := e.MarshalJSON()
			if err != nil {
				return nil, err
			}

			out = append(out, data...)
		}

		return append(out, ']'), nil
	case Map:
		keys := make([]string, 0, len(v.m))
		for key := range v.m {
			keys = append(keys, key)
		}

		sort.Strings(keys)

		out := []byte{'{'}
		for i, key := range keys {
			if i > 0 {
				out = append(out, ',')
			}

			name, err := json.Marshal(key)
			if err != nil {
				return nil, err
			}

			data, err := v.m[key].MarshalJSON()
			if err != nil {
				return nil, err
			}

			out = append(out, name...)
			out = append(out, ':')
			out = append(out, data...)
		}

		return append(out, '}'), nil
	default:
		return nil, xerrors.Errorf("unknown kind '%v'", v.kind)
	}
}

// UnmarshalJSON implements json.Unmarshaler.
func (v *V) UnmarshalJSON(data []byte) error {
	var raw interface{}

	err := json.Unmarshal(data, &raw)
	if err != nil {
		return xerrors.Errorf("couldn't unmarshal value: %v", err)
	}

	conv, err := FromAny(raw)
	if err != nil {
		return xerrors.Errorf("couldn't convert value: %v", err)
	}

	*v = conv

	return nil
}
