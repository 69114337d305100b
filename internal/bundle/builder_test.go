package bundle

import (
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"stealthcompany.com/fhirrecord/internal/jsonpath"
)

func mustParse(t *testing.T, s string) jsonpath.Node {
	t.Helper()
	n, err := jsonpath.Parse([]byte(s))
	require.NoError(t, err)
	return n
}

func sampleEntries(t *testing.T) []jsonpath.Node {
	return []jsonpath.Node{
		mustParse(t, `{"resource": {"resourceType": "Encounter", "id": "1"}, "request": {"method": "PUT", "url": "Encounter/1"}}`),
		mustParse(t, `{"resource": {"resourceType": "Patient", "id": "42"}, "request": {"method": "PUT", "url": "Patient/42"}}`),
		mustParse(t, `{"resource": {"resourceType": "Medication", "id": "m1"}, "request": {"method": "PUT", "url": "Medication/m1"}}`),
	}
}

func TestBuildEnvelope(t *testing.T) {
	fixed := time.Date(2024, 3, 1, 9, 30, 0, 0, time.FixedZone("CET", 3600))
	b := &Builder{
		now:   func() time.Time { return fixed },
		newID: func() string { return "bundle-1" },
	}

	got := b.Build(sampleEntries(t), Transaction)

	assert.Equal(t, []string{"resourceType", "id", "meta", "type", "entry"}, got.Keys())

	rt, _ := jsonpath.LookupString(got, "resourceType")
	assert.Equal(t, "Bundle", rt)
	id, _ := jsonpath.LookupString(got, "id")
	assert.Equal(t, "bundle-1", id)
	typ, _ := jsonpath.LookupString(got, "type")
	assert.Equal(t, "transaction", typ)
	ts, _ := jsonpath.LookupString(got, "meta.lastUpdated")
	assert.Equal(t, "2024-03-01T09:30:00+01:00", ts)

	_, hasTotal := Total(got)
	assert.False(t, hasTotal, "total is only set on searchset bundles")
}

func TestBuildSearchsetCarriesTotal(t *testing.T) {
	got := NewBuilder().Build(sampleEntries(t), Searchset)
	total, ok := Total(got)
	require.True(t, ok)
	assert.Equal(t, 3, total)
}

func TestBuildFreshIDAndColonOffset(t *testing.T) {
	b := NewBuilder()
	first := b.Build(nil, Transaction)
	second := b.Build(nil, Transaction)

	id1, _ := jsonpath.LookupString(first, "id")
	id2, _ := jsonpath.LookupString(second, "id")
	assert.NotEqual(t, id1, id2)
	assert.Regexp(t, regexp.MustCompile(`^[A-Za-z0-9\-.]{1,64}$`), id1)

	ts, _ := jsonpath.LookupString(first, "meta.lastUpdated")
	assert.Regexp(t, regexp.MustCompile(`^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}[+-]\d{2}:\d{2}$`), ts)

	entries, ok := jsonpath.Lookup(first, "entry")
	require.True(t, ok)
	assert.Equal(t, jsonpath.KindArray, entries.Kind())
	assert.Equal(t, 0, entries.Len())
}

func TestBuildRoundTrip(t *testing.T) {
	entries := sampleEntries(t)
	built := NewBuilder().Build(entries, Transaction)

	gotEntries := Entries(built)
	require.Len(t, gotEntries, len(entries))
	for i := range entries {
		assert.True(t, entries[i].Equal(gotEntries[i]), "entry %d", i)
	}

	gotResources := Resources(built)
	require.Len(t, gotResources, len(entries))
	for i := range entries {
		want, _ := entries[i].Get("resource")
		assert.True(t, want.Equal(gotResources[i]), "resource %d", i)
	}
}

func TestParseType(t *testing.T) {
	for _, s := range []string{"transaction", "batch", "searchset"} {
		typ, err := ParseType(s)
		require.NoError(t, err)
		assert.Equal(t, Type(s), typ)
	}
	_, err := ParseType("document")
	assert.Error(t, err)
}

func TestMatches(t *testing.T) {
	assert.Equal(t, 0, Matches(mustParse(t, `{"resourceType": "Bundle", "total": 0}`)))
	assert.Equal(t, 2, Matches(mustParse(t, `{"resourceType": "Bundle", "entry": [{}, {}]}`)))
	assert.Equal(t, 0, Matches(mustParse(t, `{"resourceType": "Bundle"}`)))
}
