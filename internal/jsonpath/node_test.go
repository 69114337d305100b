package jsonpath

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseKeepsFieldOrder(t *testing.T) {
	n := mustParse(t, `{"resourceType":"Patient","id":"1","active":true,"meta":{"z":1,"a":2}}`)

	assert.Equal(t, []string{"resourceType", "id", "active", "meta"}, n.Keys())

	out, err := n.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `{"resourceType":"Patient","id":"1","active":true,"meta":{"z":1,"a":2}}`, string(out))
}

func TestParseKeepsNumberText(t *testing.T) {
	n := mustParse(t, `{"value": 12.50, "big": 12345678901234567890}`)
	out, err := n.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `{"value":12.50,"big":12345678901234567890}`, string(out))
}

func TestParseErrors(t *testing.T) {
	for _, in := range []string{``, `{`, `{"a":1} {"b":2}`, `[1,]`} {
		_, err := Parse([]byte(in))
		assert.Error(t, err, "input %q", in)
	}
}

func TestMarshalDoesNotEscapeHTML(t *testing.T) {
	n := Object(Field{Key: "div", Value: String(`<div>Müller & Söhne</div>`)})
	out, err := n.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `{"div":"<div>Müller & Söhne</div>"}`, string(out))
}

func TestMarshalIndent(t *testing.T) {
	n := Object(
		Field{Key: "b", Value: Array(Int(1))},
		Field{Key: "a", Value: Null()},
	)
	out, err := n.MarshalIndent("", "    ")
	require.NoError(t, err)
	assert.Equal(t, "{\n    \"b\": [\n        1\n    ],\n    \"a\": null\n}", string(out))
}

func TestSetIsCopyOnWrite(t *testing.T) {
	orig := mustParse(t, `{"a": 1}`)
	updated := orig.Set("b", String("x")).Set("a", Int(2))

	a, _ := orig.Get("a")
	assert.True(t, Int(1).Equal(a))
	_, ok := orig.Get("b")
	assert.False(t, ok)

	a, _ = updated.Get("a")
	assert.True(t, Int(2).Equal(a))
	assert.Equal(t, []string{"a", "b"}, updated.Keys())

	promoted := Null().Set("k", Bool(true))
	assert.Equal(t, KindObject, promoted.Kind())
}

func TestAppendIsCopyOnWrite(t *testing.T) {
	orig := Array(Int(1))
	grown := orig.Append(Int(2), Int(3))
	assert.Equal(t, 1, orig.Len())
	assert.Equal(t, 3, grown.Len())
}

func TestEqualIgnoresObjectOrder(t *testing.T) {
	a := mustParse(t, `{"x": 1, "y": [1, 2]}`)
	b := mustParse(t, `{"y": [1, 2], "x": 1}`)
	c := mustParse(t, `{"y": [2, 1], "x": 1}`)
	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
}

func TestNodeWithEncodingJSON(t *testing.T) {
	type envelope struct {
		Resource Node `json:"resource"`
	}
	var env envelope
	require.NoError(t, json.Unmarshal([]byte(`{"resource": {"id": "7"}}`), &env))

	id, ok := LookupString(env.Resource, "id")
	assert.True(t, ok)
	assert.Equal(t, "7", id)

	out, err := json.Marshal(env)
	require.NoError(t, err)
	assert.JSONEq(t, `{"resource": {"id": "7"}}`, string(out))
}
