package fhirpathq

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"stealthcompany.com/fhirrecord/internal/jsonpath"
)

const patient = `{
	"resourceType": "Patient",
	"id": "p1",
	"active": true,
	"name": [{"family": "Doe", "given": ["Jane", "Q"]}]
}`

func TestEvaluate(t *testing.T) {
	node, err := jsonpath.Parse([]byte(patient))
	require.NoError(t, err)

	e := New()
	got, err := e.Evaluate("Patient.name.given", node)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Contains(t, got[0], "Jane")

	got, err = e.Evaluate("Patient.telecom", node)
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = e.Evaluate("Patient.name.given", node)
	require.NoError(t, err)
	assert.Equal(t, 2, e.CacheSize())
}

func TestCacheIsBounded(t *testing.T) {
	node, err := jsonpath.Parse([]byte(patient))
	require.NoError(t, err)

	e := NewWithCacheSize(4)
	for i := 0; i < 20; i++ {
		_, err := e.Evaluate(fmt.Sprintf("Patient.name.where(family != 'x%d').given", i), node)
		require.NoError(t, err)
		assert.LessOrEqual(t, e.CacheSize(), 4)
	}
	assert.Equal(t, 4, e.CacheSize())

	got, err := e.Evaluate("Patient.name.where(family != 'x19').given", node)
	require.NoError(t, err)
	assert.Len(t, got, 2, "a cached expression still evaluates")
}

func TestCompileError(t *testing.T) {
	_, err := New().Evaluate("Patient.name.where(", jsonpath.Object())
	assert.Error(t, err)
}
