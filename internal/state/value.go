package state

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
)

type Kind uint8

const (
	KindNull Kind = iota
	KindNumber
	KindBool
	KindString
	KindList
	KindMap
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	case KindString:
		return "string"
	case KindList:
		return "list"
	case KindMap:
		return "map"
	default:
		return "kind(" + strconv.Itoa(int(k)) + ")"
	}
}

// Value is a tagged variant holding one node of a Document.
// The zero Value is null.
type Value struct {
	kind Kind
	num  float64
	b    bool
	str  string
	list []Value
	doc  Document
}

func Null() Value               { return Value{} }
func Number(f float64) Value    { return Value{kind: KindNumber, num: f} }
func Bool(b bool) Value         { return Value{kind: KindBool, b: b} }
func String(s string) Value     { return Value{kind: KindString, str: s} }
func List(items ...Value) Value { return Value{kind: KindList, list: items} }
func Map(d Document) Value      { return Value{kind: KindMap, doc: d} }

func (v Value) Kind() Kind { return v.kind }

// Float returns the numeric reading of a leaf. Bools read as 1 or 0 so that
// flags such as stallWarning can sit in an observation vector.
func (v Value) Float() (float64, bool) {
	switch v.kind {
	case KindNumber:
		return v.num, true
	case KindBool:
		if v.b {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}

func (v Value) Str() (string, bool) {
	if v.kind != KindString {
		return "", false
	}
	return v.str, true
}

func (v Value) Document() (Document, bool) {
	if v.kind != KindMap {
		return nil, false
	}
	return v.doc, true
}

func (v Value) Items() ([]Value, bool) {
	if v.kind != KindList {
		return nil, false
	}
	return v.list, true
}

// Any converts the value back to plain Go types (float64, bool, string,
// []any, map[string]any, nil).
func (v Value) Any() any {
	switch v.kind {
	case KindNumber:
		return v.num
	case KindBool:
		return v.b
	case KindString:
		return v.str
	case KindList:
		out := make([]any, len(v.list))
		for i, item := range v.list {
			out[i] = item.Any()
		}
		return out
	case KindMap:
		return v.doc.Any()
	default:
		return nil
	}
}

func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNumber:
		return v.num == o.num || (math.IsNaN(v.num) && math.IsNaN(o.num))
	case KindBool:
		return v.b == o.b
	case KindString:
		return v.str == o.str
	case KindList:
		if len(v.list) != len(o.list) {
			return false
		}
		for i := range v.list {
			if !v.list[i].Equal(o.list[i]) {
				return false
			}
		}
		return true
	case KindMap:
		return v.doc.Equal(o.doc)
	default:
		return true
	}
}

func (v Value) clone() Value {
	switch v.kind {
	case KindList:
		items := make([]Value, len(v.list))
		for i, item := range v.list {
			items[i] = item.clone()
		}
		return Value{kind: KindList, list: items}
	case KindMap:
		return Value{kind: KindMap, doc: v.doc.Clone()}
	default:
		return v
	}
}

func (v Value) String() string {
	switch v.kind {
	case KindNumber:
		return strconv.FormatFloat(v.num, 'g', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindString:
		return strconv.Quote(v.str)
	case KindNull:
		return "null"
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("<%s>", v.kind)
		}
		return string(data)
	}
}

func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Any())
}

func (v *Value) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := FromAny(raw)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// FromAny converts decoded JSON or hand-built Go values into a Value.
func FromAny(x any) (Value, error) {
	switch t := x.(type) {
	case nil:
		return Null(), nil
	case Value:
		return t, nil
	case Document:
		return Map(t), nil
	case float64:
		return Number(t), nil
	case float32:
		return Number(float64(t)), nil
	case int:
		return Number(float64(t)), nil
	case int32:
		return Number(float64(t)), nil
	case int64:
		return Number(float64(t)), nil
	case uint32:
		return Number(float64(t)), nil
	case uint64:
		return Number(float64(t)), nil
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return Value{}, fmt.Errorf("state: invalid number %q: %w", t, err)
		}
		return Number(f), nil
	case bool:
		return Bool(t), nil
	case string:
		return String(t), nil
	case []any:
		items := make([]Value, len(t))
		for i, item := range t {
			v, err := FromAny(item)
			if err != nil {
				return Value{}, err
			}
			items[i] = v
		}
		return List(items...), nil
	case []float64:
		items := make([]Value, len(t))
		for i, f := range t {
			items[i] = Number(f)
		}
		return List(items...), nil
	case map[string]any:
		doc, err := DocumentFrom(t)
		if err != nil {
			return Value{}, err
		}
		return Map(doc), nil
	case map[string]float64:
		doc := make(Document, len(t))
		for k, f := range t {
			doc[k] = Number(f)
		}
		return Map(doc), nil
	default:
		return Value{}, fmt.Errorf("state: unsupported value type %T", x)
	}
}

// Document is one complete snapshot of externally observed state.
type Document map[string]Value

func DocumentFrom(m map[string]any) (Document, error) {
	doc := make(Document, len(m))
	for k, raw := range m {
		v, err := FromAny(raw)
		if err != nil {
			return nil, fmt.Errorf("state: key %q: %w", k, err)
		}
		doc[k] = v
	}
	return doc, nil
}

func (d Document) Clone() Document {
	if d == nil {
		return nil
	}
	out := make(Document, len(d))
	for k, v := range d {
		out[k] = v.clone()
	}
	return out
}

func (d Document) Equal(o Document) bool {
	if len(d) != len(o) {
		return false
	}
	for k, v := range d {
		ov, ok := o[k]
		if !ok || !v.Equal(ov) {
			return false
		}
	}
	return true
}

func (d Document) Any() map[string]any {
	out := make(map[string]any, len(d))
	for k, v := range d {
		out[k] = v.Any()
	}
	return out
}

// Get walks path through nested maps and lists. List elements are addressed
// by their decimal index.
func (d Document) Get(path KeyPath) (Value, bool) {
	if len(path) == 0 || d == nil {
		return Value{}, false
	}
	cur, ok := d[path[0]]
	if !ok {
		return Value{}, false
	}
	for _, seg := range path[1:] {
		switch cur.kind {
		case KindMap:
			cur, ok = cur.doc[seg]
			if !ok {
				return Value{}, false
			}
		case KindList:
			idx, err := strconv.Atoi(seg)
			if err != nil || idx < 0 || idx >= len(cur.list) {
				return Value{}, false
			}
			cur = cur.list[idx]
		default:
			return Value{}, false
		}
	}
	return cur, true
}

func (d Document) Float(path KeyPath) (float64, bool) {
	v, ok := d.Get(path)
	if !ok {
		return 0, false
	}
	return v.Float()
}

// Flatten returns every numeric (or bool) leaf keyed by its dotted path.
func (d Document) Flatten() map[string]float64 {
	out := make(map[string]float64)
	flattenInto(out, "", Map(d))
	return out
}

func flattenInto(out map[string]float64, prefix string, v Value) {
	switch v.kind {
	case KindMap:
		for k, child := range v.doc {
			flattenInto(out, joinKey(prefix, k), child)
		}
	case KindList:
		for i, child := range v.list {
			flattenInto(out, joinKey(prefix, strconv.Itoa(i)), child)
		}
	default:
		if f, ok := v.Float(); ok && prefix != "" {
			out[prefix] = f
		}
	}
}

func joinKey(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}

// Keys returns the top-level keys in sorted order.
func (d Document) Keys() []string {
	keys := make([]string, 0, len(d))
	for k := range d {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
