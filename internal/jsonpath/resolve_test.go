package jsonpath

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustParse(t *testing.T, s string) Node {
	t.Helper()
	n, err := Parse([]byte(s))
	require.NoError(t, err)
	return n
}

const searchset = `{
	"resourceType": "Bundle",
	"total": 3,
	"entry": [
		{"resource": {"resourceType": "Patient", "id": "42", "name": [{"family": "Doe"}]}},
		{"search": {"mode": "include"}},
		{"resource": {"resourceType": "Patient", "id": "43"}}
	]
}`

func TestResolveWithoutWildcard(t *testing.T) {
	root := mustParse(t, searchset)

	tests := []struct {
		name     string
		expr     string
		expected Node
	}{
		{name: "top level key", expr: "resourceType", expected: String("Bundle")},
		{name: "number", expr: "total", expected: Int(3)},
		{name: "index then key", expr: "entry.0.resource.id", expected: String("42")},
		{name: "nested array", expr: "entry.0.resource.name.0.family", expected: String("Doe")},
		{name: "missing key degrades to null", expr: "entry.1.resource.id", expected: Null()},
		{name: "index out of range", expr: "entry.7.resource", expected: Null()},
		{name: "key on a string", expr: "resourceType.id", expected: Null()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rs, err := Resolve(tt.expr, root)
			require.NoError(t, err)
			require.Len(t, rs, 1)
			assert.Equal(t, tt.expr, rs[0].Path)
			assert.True(t, tt.expected.Equal(rs[0].Value), "got %s", rs[0].Value)
		})
	}
}

func TestResolveMatchesManualDescent(t *testing.T) {
	root := mustParse(t, searchset)

	entries, ok := root.Get("entry")
	require.True(t, ok)
	first, ok := entries.Index(0)
	require.True(t, ok)
	resource, ok := first.Get("resource")
	require.True(t, ok)
	names, ok := resource.Get("name")
	require.True(t, ok)
	name, ok := names.Index(0)
	require.True(t, ok)

	rs, err := Resolve("entry.0.resource.name.0", root)
	require.NoError(t, err)
	require.Len(t, rs, 1)
	assert.True(t, name.Equal(rs[0].Value))
}

func TestResolveWildcard(t *testing.T) {
	root := mustParse(t, searchset)

	rs, err := Resolve("entry.X.resource.id", root)
	require.NoError(t, err)
	require.Len(t, rs, 2)

	assert.Equal(t, "entry.0.resource.id", rs[0].Path)
	assert.Equal(t, "entry.2.resource.id", rs[1].Path)
	assert.True(t, String("42").Equal(rs[0].Value))
	assert.True(t, String("43").Equal(rs[1].Value))
}

func TestResolveWildcardCounts(t *testing.T) {
	// For every N and every subset of matching items the result set holds one
	// row per match, ascending by index.
	for n := 0; n <= 5; n++ {
		for mask := 0; mask < 1<<n; mask++ {
			var items []string
			var want []int
			for i := 0; i < n; i++ {
				if mask&(1<<i) != 0 {
					items = append(items, fmt.Sprintf(`{"v": %d}`, i))
					want = append(want, i)
				} else {
					items = append(items, `{"other": true}`)
				}
			}
			root := mustParse(t, `{"list": [`+strings.Join(items, ",")+`]}`)

			rs, err := Resolve("list.X.v", root)
			require.NoError(t, err)
			require.Len(t, rs, len(want), "n=%d mask=%b", n, mask)
			for i, idx := range want {
				assert.Equal(t, fmt.Sprintf("list.%d.v", idx), rs[i].Path)
				assert.True(t, Int(idx).Equal(rs[i].Value))
			}
		}
	}
}

func TestResolveWildcardEdgeCases(t *testing.T) {
	root := mustParse(t, `{"empty": [], "single": [{"a": 1}], "obj": {"a": 1}, "trailing": [1, 2]}`)

	tests := []struct {
		name  string
		expr  string
		paths []string
	}{
		{name: "empty array", expr: "empty.X.a", paths: nil},
		{name: "single item", expr: "single.X.a", paths: []string{"single.0.a"}},
		{name: "wildcard over object", expr: "obj.X", paths: nil},
		{name: "missing collection", expr: "nothing.X", paths: nil},
		{name: "trailing wildcard", expr: "trailing.X", paths: []string{"trailing.0", "trailing.1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rs, err := Resolve(tt.expr, root)
			require.NoError(t, err)
			var paths []string
			for _, r := range rs {
				paths = append(paths, r.Path)
			}
			assert.Equal(t, tt.paths, paths)
		})
	}
}

func TestResolveRejectsMalformedExpressions(t *testing.T) {
	root := mustParse(t, searchset)

	_, err := Resolve("entry.X.resource.name.X", root)
	assert.ErrorIs(t, err, ErrMultipleWildcards)

	_, err = Resolve("entry..resource", root)
	assert.ErrorIs(t, err, ErrEmptySegment)

	_, err = Resolve("", root)
	assert.ErrorIs(t, err, ErrEmptySegment)
}

func TestResolveIsDeterministic(t *testing.T) {
	root := mustParse(t, searchset)
	first, err := Resolve("entry.X.resource", root)
	require.NoError(t, err)
	second, err := Resolve("entry.X.resource", root)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestNumericSegmentOnObject(t *testing.T) {
	root := mustParse(t, `{"codes": {"0": "zero"}}`)
	v, ok := Lookup(root, "codes.0")
	require.True(t, ok)
	s, _ := v.Str()
	assert.Equal(t, "zero", s)
}

func TestLookup(t *testing.T) {
	root := mustParse(t, `{"a": {"b": null}, "list": [{"id": "x"}]}`)

	v, ok := Lookup(root, "a.b")
	assert.True(t, ok, "explicit null is present")
	assert.True(t, v.IsNull())

	_, ok = Lookup(root, "a.c")
	assert.False(t, ok)

	s, ok := LookupString(root, "list.X.id")
	assert.True(t, ok)
	assert.Equal(t, "x", s)

	_, ok = Lookup(root, "a..b")
	assert.False(t, ok)
}

func TestFindKey(t *testing.T) {
	root := mustParse(t, `{
		"entry": [
			{"resource": {"status": "final"}},
			{"resource": {"contained": [{"status": "draft"}]}}
		],
		"status": "top"
	}`)

	rs := FindKey(root, "status")
	require.Len(t, rs, 3)
	assert.Equal(t, "entry.0.resource.status", rs[0].Path)
	assert.Equal(t, "entry.1.resource.contained.0.status", rs[1].Path)
	assert.Equal(t, "status", rs[2].Path)

	resources := FindKey(root, "resource")
	require.Len(t, resources, 2, "matched values are not searched further")
}

func TestResultSetNode(t *testing.T) {
	root := mustParse(t, searchset)

	rs, err := Resolve("entry.X.resource.id", root)
	require.NoError(t, err)

	data, err := rs.Node().MarshalJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `[{"path":"entry.0.resource.id","value":"42"},{"path":"entry.2.resource.id","value":"43"}]`, string(data))

	empty, err := ResultSet(nil).Node().MarshalJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(empty))
}
