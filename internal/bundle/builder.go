package bundle

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"stealthcompany.com/fhirrecord/internal/jsonpath"
)

// Type is the Bundle.type of an assembled record
type Type string

const (
	Transaction Type = "transaction"
	Batch       Type = "batch"
	Searchset   Type = "searchset"
)

// TimeLayout is ISO-8601 with a colon-delimited timezone offset
const TimeLayout = "2006-01-02T15:04:05-07:00"

var (
	entriesPath   = jsonpath.MustParsePath("entry.X")
	resourcesPath = jsonpath.MustParsePath("entry.X.resource")
)

// ParseType validates a bundle type name
func ParseType(s string) (Type, error) {
	switch t := Type(s); t {
	case Transaction, Batch, Searchset:
		return t, nil
	}
	return "", fmt.Errorf("unsupported bundle type %q", s)
}

// Builder wraps resource entries into the Bundle envelope
type Builder struct {
	now   func() time.Time
	newID func() string
}

// NewBuilder creates a builder stamping local time and random ids
func NewBuilder() *Builder {
	return &Builder{
		now:   time.Now,
		newID: uuid.NewString,
	}
}

// Build returns {resourceType, id, meta.lastUpdated, type, [total], entry}.
// Entries keep the given order.
func (b *Builder) Build(entries []jsonpath.Node, t Type) jsonpath.Node {
	fields := []jsonpath.Field{
		{Key: "resourceType", Value: jsonpath.String("Bundle")},
		{Key: "id", Value: jsonpath.String(b.newID())},
		{Key: "meta", Value: jsonpath.Object(jsonpath.Field{
			Key:   "lastUpdated",
			Value: jsonpath.String(b.now().Format(TimeLayout)),
		})},
		{Key: "type", Value: jsonpath.String(string(t))},
	}
	if t == Searchset {
		fields = append(fields, jsonpath.Field{Key: "total", Value: jsonpath.Int(len(entries))})
	}
	fields = append(fields, jsonpath.Field{Key: "entry", Value: jsonpath.Array(entries...)})

	return jsonpath.Object(fields...)
}

// Entries returns the entries of a bundle in order
func Entries(bundle jsonpath.Node) []jsonpath.Node {
	return entriesPath.Resolve(bundle).Values()
}

// Resources returns the resource of every entry that carries one
func Resources(bundle jsonpath.Node) []jsonpath.Node {
	return resourcesPath.Resolve(bundle).Values()
}

// Total reads Bundle.total when the server sent it
func Total(bundle jsonpath.Node) (int, bool) {
	v, ok := jsonpath.Lookup(bundle, "total")
	if !ok {
		return 0, false
	}
	return v.Int()
}

// Matches counts the matches of a search result, preferring Bundle.total
func Matches(bundle jsonpath.Node) int {
	if total, ok := Total(bundle); ok {
		return total
	}
	return len(Entries(bundle))
}
