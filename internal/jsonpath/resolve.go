package jsonpath

import (
	"errors"
	"strconv"
	"strings"
)

// Wildcard is the path segment that enumerates every item of an array.
const Wildcard = "X"

var (
	ErrEmptySegment      = errors.New("jsonpath: empty path segment")
	ErrMultipleWildcards = errors.New("jsonpath: more than one wildcard segment")
)

type SegmentKind uint8

const (
	SegmentKey SegmentKind = iota
	SegmentIndex
	SegmentWildcard
)

// Segment is one dot-separated element of a path expression.
type Segment struct {
	Kind  SegmentKind
	Raw   string
	Index int
}

// Path is a parsed path expression such as "entry.X.resource.id".
type Path struct {
	expr     string
	segments []Segment
	wildcard int
}

// Result pairs a resolved path with the value found there.
type Result struct {
	Path  string
	Value Node
}

// ResultSet is ordered by the enumerated wildcard index.
type ResultSet []Result

func (rs ResultSet) Values() []Node {
	values := make([]Node, len(rs))
	for i, r := range rs {
		values[i] = r.Value
	}
	return values
}

func (rs ResultSet) First() (Result, bool) {
	if len(rs) == 0 {
		return Result{}, false
	}
	return rs[0], true
}

// Node renders the results as [{"path": ..., "value": ...}]
func (rs ResultSet) Node() Node {
	items := make([]Node, len(rs))
	for i, r := range rs {
		items[i] = Object(
			Field{Key: "path", Value: String(r.Path)},
			Field{Key: "value", Value: r.Value},
		)
	}
	return Array(items...)
}

// ParsePath splits expr on dots. Integer segments become indexes and the
// Wildcard token marks the enumerated collection. Only one wildcard is allowed.
func ParsePath(expr string) (Path, error) {
	p := Path{expr: expr, wildcard: -1}
	for _, raw := range strings.Split(expr, ".") {
		if raw == "" {
			return Path{}, ErrEmptySegment
		}
		seg := Segment{Kind: SegmentKey, Raw: raw}
		if raw == Wildcard {
			if p.wildcard >= 0 {
				return Path{}, ErrMultipleWildcards
			}
			seg.Kind = SegmentWildcard
			p.wildcard = len(p.segments)
		} else if i, err := strconv.Atoi(raw); err == nil {
			seg.Kind = SegmentIndex
			seg.Index = i
		}
		p.segments = append(p.segments, seg)
	}
	return p, nil
}

// MustParsePath is ParsePath for expressions known at compile time.
func MustParsePath(expr string) Path {
	p, err := ParsePath(expr)
	if err != nil {
		panic(err)
	}
	return p
}

func (p Path) String() string { return p.expr }

// Resolve evaluates the path against root.
//
// Without a wildcard the result set always holds exactly one result; a
// descent that fails on a missing key or a type mismatch yields a null value.
// With a wildcard every array item that resolves the remaining segments
// contributes one result, its path carrying the item index; items that do
// not resolve are skipped.
func (p Path) Resolve(root Node) ResultSet {
	if p.wildcard < 0 {
		v, ok := descend(root, p.segments)
		if !ok {
			v = Null()
		}
		return ResultSet{{Path: p.expr, Value: v}}
	}

	coll, ok := descend(root, p.segments[:p.wildcard])
	if !ok || coll.kind != KindArray {
		return ResultSet{}
	}

	rest := p.segments[p.wildcard+1:]
	out := make(ResultSet, 0, len(coll.items))
	for i, item := range coll.items {
		v, ok := descend(item, rest)
		if !ok {
			continue
		}
		out = append(out, Result{Path: p.expand(i), Value: v})
	}
	return out
}

// Lookup descends without a wildcard and reports whether the value exists.
// With a wildcard it returns the first match.
func (p Path) Lookup(root Node) (Node, bool) {
	if p.wildcard < 0 {
		return descend(root, p.segments)
	}
	r, ok := p.Resolve(root).First()
	return r.Value, ok
}

func (p Path) expand(index int) string {
	parts := make([]string, len(p.segments))
	for i, seg := range p.segments {
		parts[i] = seg.Raw
	}
	parts[p.wildcard] = strconv.Itoa(index)
	return strings.Join(parts, ".")
}

// Resolve parses expr and evaluates it against root.
func Resolve(expr string, root Node) (ResultSet, error) {
	p, err := ParsePath(expr)
	if err != nil {
		return nil, err
	}
	return p.Resolve(root), nil
}

// Lookup parses expr and reports the value found at it, if any. Malformed
// expressions are reported as not found.
func Lookup(root Node, expr string) (Node, bool) {
	p, err := ParsePath(expr)
	if err != nil {
		return Node{}, false
	}
	return p.Lookup(root)
}

// LookupString is Lookup restricted to string values.
func LookupString(root Node, expr string) (string, bool) {
	v, ok := Lookup(root, expr)
	if !ok {
		return "", false
	}
	return v.Str()
}

func descend(n Node, segs []Segment) (Node, bool) {
	cur := n
	for _, seg := range segs {
		next, ok := step(cur, seg)
		if !ok {
			return Node{}, false
		}
		cur = next
	}
	return cur, true
}

func step(n Node, seg Segment) (Node, bool) {
	switch seg.Kind {
	case SegmentKey:
		return n.Get(seg.Raw)
	case SegmentIndex:
		if n.kind == KindArray {
			return n.Index(seg.Index)
		}
		// objects keyed by numeric strings
		return n.Get(seg.Raw)
	default:
		return Node{}, false
	}
}

// FindKey returns every value stored under key anywhere in root, depth first
// in document order. The value of a matching field is not searched further.
func FindKey(root Node, key string) ResultSet {
	var out ResultSet
	findKey(root, key, "", &out)
	return out
}

func findKey(n Node, key, prefix string, out *ResultSet) {
	switch n.kind {
	case KindObject:
		for _, f := range n.fields {
			path := joinPath(prefix, f.Key)
			if f.Key == key {
				*out = append(*out, Result{Path: path, Value: f.Value})
				continue
			}
			findKey(f.Value, key, path, out)
		}
	case KindArray:
		for i, item := range n.items {
			findKey(item, key, joinPath(prefix, strconv.Itoa(i)), out)
		}
	}
}

func joinPath(prefix, seg string) string {
	if prefix == "" {
		return seg
	}
	return prefix + "." + seg
}
