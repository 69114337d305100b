// Package stitch turns search-result entries into transaction entries and
// drops entries whose references can never resolve.
package stitch

import (
	"fmt"
	"net/http"

	"stealthcompany.com/fhirrecord/internal/fhirerr"
	"stealthcompany.com/fhirrecord/internal/jsonpath"
)

// DropError explains why an entry was excluded from the record
type DropError struct {
	ResourceType string
	ID           string
	Reason       string
	Err          error
}

func (e *DropError) Error() string {
	return fmt.Sprintf("dropped entry (%s/%s): %s", e.ResourceType, e.ID, e.Reason)
}

func (e *DropError) Unwrap() error { return e.Err }

// Stitcher normalizes entries for transaction bundles
type Stitcher struct {
	// Method is the verb of synthesized request directives
	Method string
}

// New returns a stitcher that synthesizes PUT directives
func New() *Stitcher {
	return &Stitcher{Method: http.MethodPut}
}

// Normalize returns entry with a request directive, or a *DropError when the
// entry cannot be part of the record. Entries that already carry a request
// are returned unchanged. The input is never modified.
func (s *Stitcher) Normalize(entry jsonpath.Node) (jsonpath.Node, error) {
	resource, ok := entry.Get("resource")
	if !ok || resource.Kind() != jsonpath.KindObject {
		return jsonpath.Node{}, &DropError{
			Reason: "entry carries no resource",
			Err:    fhirerr.ErrMalformedEntry,
		}
	}

	resourceType, _ := jsonpath.LookupString(resource, "resourceType")
	id, _ := jsonpath.LookupString(resource, "id")

	if ref, dangling := hasDanglingMedication(entry); dangling {
		return jsonpath.Node{}, &DropError{
			ResourceType: resourceType,
			ID:           id,
			Reason:       fmt.Sprintf("medication reference %q does not resolve", ref),
			Err:          fhirerr.ErrUnresolvableReference,
		}
	}

	if _, ok := entry.Get("request"); ok {
		return entry, nil
	}

	if resourceType == "" || id == "" {
		return jsonpath.Node{}, &DropError{
			ResourceType: resourceType,
			ID:           id,
			Reason:       "resource has no type or id to address it by",
			Err:          fhirerr.ErrMalformedEntry,
		}
	}

	request := jsonpath.Object(
		jsonpath.Field{Key: "method", Value: jsonpath.String(s.method())},
		jsonpath.Field{Key: "url", Value: jsonpath.String(resourceType + "/" + id)},
	)
	return entry.Set("request", request), nil
}

func (s *Stitcher) method() string {
	if s.Method == "" {
		return http.MethodPut
	}
	return s.Method
}
