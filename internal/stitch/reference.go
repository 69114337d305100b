package stitch

import (
	"strings"

	"stealthcompany.com/fhirrecord/internal/jsonpath"
)

const medicationPrefix = "Medication/"

// Reference locations of the medication a resource points at. The second
// form is the R5 CodeableReference.
var medicationReferencePaths = []jsonpath.Path{
	jsonpath.MustParsePath("resource.medicationReference.reference"),
	jsonpath.MustParsePath("resource.medication.reference.reference"),
}

var medicationUsers = map[string]bool{
	"MedicationAdministration": true,
	"MedicationDispense":       true,
	"MedicationRequest":        true,
	"MedicationStatement":      true,
}

// IsMedicationUser reports whether resources of this type reference a Medication.
func IsMedicationUser(resourceType string) bool {
	return medicationUsers[resourceType]
}

// medicationReference returns the raw medication reference of an entry.
func medicationReference(entry jsonpath.Node) (string, bool) {
	for _, p := range medicationReferencePaths {
		v, ok := p.Lookup(entry)
		if !ok {
			continue
		}
		if ref, ok := v.Str(); ok {
			return ref, true
		}
	}
	return "", false
}

// ParseMedicationReference extracts <id> from "Medication/<id>", absolute
// ".../Medication/<id>" and versioned "Medication/<id>/_history[/<v>]" forms.
// A query string after the id is ignored. A placeholder id (empty, "?" or
// "*") is reported as absent.
func ParseMedicationReference(ref string) (string, bool) {
	_, id, found := strings.Cut(ref, medicationPrefix)
	if !found {
		return "", false
	}
	id = strings.TrimSpace(id)
	if isPlaceholder(id) {
		return "", false
	}
	id, _, _ = strings.Cut(id, "?")
	id, _, _ = strings.Cut(id, "/")
	if isPlaceholder(id) {
		return "", false
	}
	return id, true
}

// MedicationID returns the fetchable id of the Medication an entry references.
func MedicationID(entry jsonpath.Node) (string, bool) {
	ref, ok := medicationReference(entry)
	if !ok {
		return "", false
	}
	return ParseMedicationReference(ref)
}

// hasDanglingMedication reports a medication reference whose target is the
// unresolvable marker.
func hasDanglingMedication(entry jsonpath.Node) (string, bool) {
	ref, ok := medicationReference(entry)
	if !ok || !strings.Contains(ref, medicationPrefix) {
		return "", false
	}
	if _, ok := ParseMedicationReference(ref); ok {
		return "", false
	}
	return ref, true
}

func isPlaceholder(id string) bool {
	return id == "" || id == "?" || id == "*"
}
