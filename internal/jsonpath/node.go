// Package jsonpath holds the untyped JSON tree used for FHIR payloads and the
// dotted path resolver that queries it.
package jsonpath

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
)

// Kind identifies the variant held by a Node.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindArray
	KindObject
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	default:
		return "unknown"
	}
}

// Field is one key/value pair of an object node.
type Field struct {
	Key   string
	Value Node
}

// Node is an immutable JSON value. The zero value is JSON null.
// Object fields keep their insertion order so documents re-serialise with
// the field order the server sent.
type Node struct {
	kind   Kind
	b      bool
	text   string // string value or number literal
	items  []Node
	fields []Field
}

func Null() Node { return Node{} }

func Bool(b bool) Node { return Node{kind: KindBool, b: b} }

func Number(n json.Number) Node { return Node{kind: KindNumber, text: string(n)} }

func Int(i int) Node { return Node{kind: KindNumber, text: strconv.Itoa(i)} }

func String(s string) Node { return Node{kind: KindString, text: s} }

// Array returns an array node holding a copy of items.
func Array(items ...Node) Node {
	cp := make([]Node, len(items))
	copy(cp, items)
	return Node{kind: KindArray, items: cp}
}

// Object returns an object node. A repeated key keeps its first position and
// the last value.
func Object(fields ...Field) Node {
	n := Node{kind: KindObject, fields: make([]Field, 0, len(fields))}
	for _, f := range fields {
		n.fields = setField(n.fields, f.Key, f.Value)
	}
	return n
}

func (n Node) Kind() Kind { return n.kind }

func (n Node) IsNull() bool { return n.kind == KindNull }

// Len returns the number of items of an array or fields of an object, 0 otherwise.
func (n Node) Len() int {
	switch n.kind {
	case KindArray:
		return len(n.items)
	case KindObject:
		return len(n.fields)
	default:
		return 0
	}
}

// Get looks up key on an object node.
func (n Node) Get(key string) (Node, bool) {
	if n.kind != KindObject {
		return Node{}, false
	}
	for _, f := range n.fields {
		if f.Key == key {
			return f.Value, true
		}
	}
	return Node{}, false
}

// Index returns the i-th item of an array node.
func (n Node) Index(i int) (Node, bool) {
	if n.kind != KindArray || i < 0 || i >= len(n.items) {
		return Node{}, false
	}
	return n.items[i], true
}

// Keys returns the object keys in insertion order.
func (n Node) Keys() []string {
	if n.kind != KindObject {
		return nil
	}
	keys := make([]string, len(n.fields))
	for i, f := range n.fields {
		keys[i] = f.Key
	}
	return keys
}

// Items returns a copy of the array items.
func (n Node) Items() []Node {
	if n.kind != KindArray {
		return nil
	}
	cp := make([]Node, len(n.items))
	copy(cp, n.items)
	return cp
}

// Str returns the value of a string node.
func (n Node) Str() (string, bool) {
	if n.kind != KindString {
		return "", false
	}
	return n.text, true
}

// Int returns the value of a number node holding an integer.
func (n Node) Int() (int, bool) {
	if n.kind != KindNumber {
		return 0, false
	}
	i, err := strconv.Atoi(n.text)
	if err != nil {
		return 0, false
	}
	return i, true
}

// Set returns a copy of the object with key set to value. A null node is
// promoted to an empty object first; any other kind is replaced.
func (n Node) Set(key string, value Node) Node {
	var fields []Field
	if n.kind == KindObject {
		fields = make([]Field, len(n.fields), len(n.fields)+1)
		copy(fields, n.fields)
	}
	return Node{kind: KindObject, fields: setField(fields, key, value)}
}

// Append returns a copy of the array with values added at the end.
func (n Node) Append(values ...Node) Node {
	var items []Node
	if n.kind == KindArray {
		items = make([]Node, len(n.items), len(n.items)+len(values))
		copy(items, n.items)
	}
	return Node{kind: KindArray, items: append(items, values...)}
}

// Equal reports deep equality. Object comparison ignores key order.
func (n Node) Equal(o Node) bool {
	if n.kind != o.kind {
		return false
	}
	switch n.kind {
	case KindNull:
		return true
	case KindBool:
		return n.b == o.b
	case KindNumber, KindString:
		return n.text == o.text
	case KindArray:
		if len(n.items) != len(o.items) {
			return false
		}
		for i := range n.items {
			if !n.items[i].Equal(o.items[i]) {
				return false
			}
		}
		return true
	case KindObject:
		if len(n.fields) != len(o.fields) {
			return false
		}
		for _, f := range n.fields {
			v, ok := o.Get(f.Key)
			if !ok || !f.Value.Equal(v) {
				return false
			}
		}
		return true
	}
	return false
}

func (n Node) String() string {
	b, err := n.MarshalJSON()
	if err != nil {
		return "<invalid>"
	}
	return string(b)
}

func setField(fields []Field, key string, value Node) []Field {
	for i := range fields {
		if fields[i].Key == key {
			fields[i].Value = value
			return fields
		}
	}
	return append(fields, Field{Key: key, Value: value})
}

// Parse decodes a single JSON document.
func Parse(data []byte) (Node, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	n, err := decodeValue(dec)
	if err != nil {
		return Node{}, fmt.Errorf("failed to decode JSON: %w", err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return Node{}, fmt.Errorf("failed to decode JSON: trailing data after top-level value")
	}
	return n, nil
}

func decodeValue(dec *json.Decoder) (Node, error) {
	tok, err := dec.Token()
	if err != nil {
		return Node{}, err
	}

	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			fields := []Field{}
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return Node{}, err
				}
				key, ok := keyTok.(string)
				if !ok {
					return Node{}, fmt.Errorf("unexpected object key %v", keyTok)
				}
				value, err := decodeValue(dec)
				if err != nil {
					return Node{}, err
				}
				fields = setField(fields, key, value)
			}
			if _, err := dec.Token(); err != nil {
				return Node{}, err
			}
			return Node{kind: KindObject, fields: fields}, nil
		case '[':
			items := []Node{}
			for dec.More() {
				item, err := decodeValue(dec)
				if err != nil {
					return Node{}, err
				}
				items = append(items, item)
			}
			if _, err := dec.Token(); err != nil {
				return Node{}, err
			}
			return Node{kind: KindArray, items: items}, nil
		}
		return Node{}, fmt.Errorf("unexpected delimiter %q", t)
	case bool:
		return Bool(t), nil
	case json.Number:
		return Number(t), nil
	case string:
		return String(t), nil
	case nil:
		return Null(), nil
	}
	return Node{}, fmt.Errorf("unexpected token %v", tok)
}

// UnmarshalJSON implements json.Unmarshaler.
func (n *Node) UnmarshalJSON(data []byte) error {
	parsed, err := Parse(data)
	if err != nil {
		return err
	}
	*n = parsed
	return nil
}

// MarshalJSON implements json.Marshaler. HTML characters are not escaped.
func (n Node) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := n.encode(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// MarshalIndent encodes the node with the given prefix and indentation,
// keeping object field order.
func (n Node) MarshalIndent(prefix, indent string) ([]byte, error) {
	compact, err := n.MarshalJSON()
	if err != nil {
		return nil, err
	}
	var out bytes.Buffer
	if err := json.Indent(&out, compact, prefix, indent); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

func (n Node) encode(buf *bytes.Buffer) error {
	switch n.kind {
	case KindNull:
		buf.WriteString("null")
	case KindBool:
		buf.WriteString(strconv.FormatBool(n.b))
	case KindNumber:
		if n.text == "" {
			buf.WriteString("0")
			return nil
		}
		buf.WriteString(n.text)
	case KindString:
		return encodeString(buf, n.text)
	case KindArray:
		buf.WriteByte('[')
		for i, item := range n.items {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := item.encode(buf); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case KindObject:
		buf.WriteByte('{')
		for i, f := range n.fields {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := encodeString(buf, f.Key); err != nil {
				return err
			}
			buf.WriteByte(':')
			if err := f.Value.encode(buf); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	default:
		return fmt.Errorf("unknown node kind %d", n.kind)
	}
	return nil
}

func encodeString(buf *bytes.Buffer, s string) error {
	var scratch bytes.Buffer
	enc := json.NewEncoder(&scratch)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return err
	}
	buf.Write(bytes.TrimRight(scratch.Bytes(), "\n"))
	return nil
}
