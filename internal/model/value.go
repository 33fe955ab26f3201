package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Kind tags the variant held by a Value
type Kind uint8

const (
	// KindNull is the zero value; it also represents an unset reference
	KindNull Kind = iota
	// KindString holds Str
	KindString
	// KindNumber holds Num
	KindNumber
	// KindBool holds Bool
	KindBool
	// KindRef holds Ref: a uuid inside a Graph, an iid inside a Bundle
	KindRef
	// KindList holds List
	KindList
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	case KindRef:
		return "ref"
	case KindList:
		return "list"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Value is a field value of an Instance.
// Only the member selected by Kind is meaningful.
type Value struct {
	Kind Kind
	Str  string
	Num  float64
	Bool bool
	Ref  string
	List []Value
}

// Null returns the null value
func Null() Value { return Value{} }

// String returns a string value
func String(s string) Value { return Value{Kind: KindString, Str: s} }

// Number returns a numeric value
func Number(n float64) Value { return Value{Kind: KindNumber, Num: n} }

// Bool returns a boolean value
func Bool(b bool) Value { return Value{Kind: KindBool, Bool: b} }

// Ref returns a reference value
func Ref(id string) Value { return Value{Kind: KindRef, Ref: id} }

// List returns a list value. A nil argument list yields an empty list.
func List(items ...Value) Value {
	if items == nil {
		items = []Value{}
	}
	return Value{Kind: KindList, List: items}
}

// Refs returns a list of reference values
func Refs(ids ...string) Value {
	items := make([]Value, len(ids))
	for i, id := range ids {
		items[i] = Ref(id)
	}
	return List(items...)
}

// IsNull reports whether v is null
func (v Value) IsNull() bool { return v.Kind == KindNull }

// Items returns the list members, or nil for non-list values
func (v Value) Items() []Value {
	if v.Kind != KindList {
		return nil
	}
	return v.List
}

// Equal reports structural equality
func (v Value) Equal(o Value) bool {
	if v.Kind != o.Kind {
		// an absent list and an empty list are the same field state
		if v.Kind == KindNull && o.Kind == KindList && len(o.List) == 0 {
			return true
		}
		if o.Kind == KindNull && v.Kind == KindList && len(v.List) == 0 {
			return true
		}
		return false
	}
	switch v.Kind {
	case KindNull:
		return true
	case KindString:
		return v.Str == o.Str
	case KindNumber:
		return v.Num == o.Num
	case KindBool:
		return v.Bool == o.Bool
	case KindRef:
		return v.Ref == o.Ref
	case KindList:
		if len(v.List) != len(o.List) {
			return false
		}
		for i := range v.List {
			if !v.List[i].Equal(o.List[i]) {
				return false
			}
		}
		return true
	}
	return false
}

// Key returns a canonical string usable as a map key. Equal values have equal keys.
func (v Value) Key() string {
	switch v.Kind {
	case KindNull:
		return "null"
	case KindString:
		return "s:" + strconv.Quote(v.Str)
	case KindNumber:
		return "n:" + strconv.FormatFloat(v.Num, 'g', -1, 64)
	case KindBool:
		return "b:" + strconv.FormatBool(v.Bool)
	case KindRef:
		return "r:" + v.Ref
	case KindList:
		if len(v.List) == 0 {
			return "null"
		}
		parts := make([]string, len(v.List))
		for i, item := range v.List {
			parts[i] = item.Key()
		}
		return "[" + strings.Join(parts, ",") + "]"
	}
	return "?"
}

// String renders the value for humans
func (v Value) String() string {
	switch v.Kind {
	case KindString:
		return strconv.Quote(v.Str)
	case KindRef:
		return "&" + v.Ref
	case KindList:
		parts := make([]string, len(v.List))
		for i, item := range v.List {
			parts[i] = item.String()
		}
		return "[" + strings.Join(parts, ", ") + "]"
	default:
		return strings.TrimPrefix(strings.TrimPrefix(strings.TrimPrefix(v.Key(), "n:"), "b:"), "s:")
	}
}

// RefIDs returns every reference contained in v, in order
func (v Value) RefIDs() []string {
	switch v.Kind {
	case KindRef:
		return []string{v.Ref}
	case KindList:
		var out []string
		for _, item := range v.List {
			out = append(out, item.RefIDs()...)
		}
		return out
	}
	return nil
}

// Clone returns a deep copy
func (v Value) Clone() Value {
	if v.Kind != KindList {
		return v
	}
	items := make([]Value, len(v.List))
	for i, item := range v.List {
		items[i] = item.Clone()
	}
	return Value{Kind: KindList, List: items}
}

// Rewrite maps every reference through fn. When fn reports false the reference is
// dropped: list members are removed, a bare reference becomes null.
func (v Value) Rewrite(fn func(ref string) (string, bool)) Value {
	switch v.Kind {
	case KindRef:
		if id, ok := fn(v.Ref); ok {
			return Ref(id)
		}
		return Null()
	case KindList:
		items := make([]Value, 0, len(v.List))
		for _, item := range v.List {
			if item.Kind == KindRef {
				if id, ok := fn(item.Ref); ok {
					items = append(items, Ref(id))
				}
				continue
			}
			items = append(items, item.Rewrite(fn))
		}
		return List(items...)
	}
	return v
}

type refJSON struct {
	Ref string `json:"__ref"`
}

// MarshalJSON encodes scalars natively, references as {"__ref": id} and lists as arrays
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case KindNull:
		return []byte("null"), nil
	case KindString:
		return json.Marshal(v.Str)
	case KindNumber:
		return json.Marshal(v.Num)
	case KindBool:
		return json.Marshal(v.Bool)
	case KindRef:
		return json.Marshal(refJSON{Ref: v.Ref})
	case KindList:
		items := v.List
		if items == nil {
			items = []Value{}
		}
		return json.Marshal(items)
	}
	return nil, fmt.Errorf("cannot encode value of kind %s", v.Kind)
}

// UnmarshalJSON is the inverse of MarshalJSON
func (v *Value) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return fmt.Errorf("empty value")
	}
	switch data[0] {
	case 'n':
		*v = Null()
		return nil
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(data, &b); err != nil {
			return err
		}
		*v = Bool(b)
		return nil
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = String(s)
		return nil
	case '{':
		var r refJSON
		if err := json.Unmarshal(data, &r); err != nil {
			return err
		}
		if r.Ref == "" {
			return fmt.Errorf("object values must be references: %s", data)
		}
		*v = Ref(r.Ref)
		return nil
	case '[':
		var items []Value
		if err := json.Unmarshal(data, &items); err != nil {
			return err
		}
		*v = List(items...)
		return nil
	default:
		var n float64
		if err := json.Unmarshal(data, &n); err != nil {
			return err
		}
		*v = Number(n)
		return nil
	}
}
