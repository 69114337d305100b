// Package fhirpathq evaluates FHIRPath expressions against JSON trees.
package fhirpathq

import (
	"fmt"

	"github.com/gofhir/fhirpath"
	lru "github.com/hashicorp/golang-lru/v2"
	"stealthcompany.com/fhirrecord/internal/jsonpath"
)

// DefaultCacheSize bounds the compiled expressions an evaluator keeps
const DefaultCacheSize = 256

// Evaluator compiles FHIRPath expressions once and reuses them. The least
// recently used expression is evicted once the cache is full.
type Evaluator struct {
	cache *lru.Cache[string, *fhirpath.Expression]
}

// New creates an evaluator caching up to DefaultCacheSize expressions
func New() *Evaluator {
	return NewWithCacheSize(DefaultCacheSize)
}

// NewWithCacheSize creates an evaluator caching up to size expressions
func NewWithCacheSize(size int) *Evaluator {
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, err := lru.New[string, *fhirpath.Expression](size)
	if err != nil {
		panic(fmt.Sprintf("fhirpathq: %v", err))
	}
	return &Evaluator{cache: cache}
}

// Evaluate runs expr against node and returns each result item as text
func (e *Evaluator) Evaluate(expr string, node jsonpath.Node) ([]string, error) {
	compiled, err := e.compile(expr)
	if err != nil {
		return nil, fmt.Errorf("failed to compile FHIRPath expression '%s': %w", expr, err)
	}

	data, err := node.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("failed to encode resource: %w", err)
	}

	result, err := compiled.Evaluate(data)
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate FHIRPath expression '%s': %w", expr, err)
	}

	out := make([]string, 0, len(result))
	for _, v := range result {
		out = append(out, fmt.Sprint(v))
	}
	return out, nil
}

// CacheSize returns the number of compiled expressions held
func (e *Evaluator) CacheSize() int {
	return e.cache.Len()
}

func (e *Evaluator) compile(expr string) (*fhirpath.Expression, error) {
	if compiled, ok := e.cache.Get(expr); ok {
		return compiled, nil
	}

	compiled, err := fhirpath.Compile(expr)
	if err != nil {
		return nil, err
	}
	e.cache.Add(expr, compiled)
	return compiled, nil
}
