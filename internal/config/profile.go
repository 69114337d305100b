package config

import (
	"fmt"
	"os"

	"github.com/goccy/go-json"
)

// Placeholder loading codes substituted once the real identifiers are known
const (
	EncounterPlaceholder = "encounter_id"
	PatientPlaceholder   = "patient_id"
)

// ProfileEntry describes how to search one resource type
type ProfileEntry struct {
	ResourceType  string `json:"resourceType"`
	LoadingSuffix string `json:"loadingSuffix"`
	LoadingCode   string `json:"loadingCode"`
}

// DependsOnPatient reports whether the search needs the patient id
func (e ProfileEntry) DependsOnPatient() bool {
	return e.LoadingCode == PatientPlaceholder
}

// Profile is a named search configuration, keyed by resource type
type Profile struct {
	Name    string
	entries []ProfileEntry
}

// NewProfile builds a profile; a later entry for the same resource type
// replaces an earlier one.
func NewProfile(name string, entries []ProfileEntry) Profile {
	p := Profile{Name: name}
	for _, e := range entries {
		p = p.with(e)
	}
	return p
}

func (p Profile) with(e ProfileEntry) Profile {
	entries := make([]ProfileEntry, 0, len(p.entries)+1)
	replaced := false
	for _, cur := range p.entries {
		if cur.ResourceType == e.ResourceType {
			entries = append(entries, e)
			replaced = true
			continue
		}
		entries = append(entries, cur)
	}
	if !replaced {
		entries = append(entries, e)
	}
	return Profile{Name: p.Name, entries: entries}
}

// Lookup returns the search configuration of a resource type
func (p Profile) Lookup(resourceType string) (ProfileEntry, bool) {
	for _, e := range p.entries {
		if e.ResourceType == resourceType {
			return e, true
		}
	}
	return ProfileEntry{}, false
}

// Entries returns the configured entries in file order
func (p Profile) Entries() []ProfileEntry {
	cp := make([]ProfileEntry, len(p.entries))
	copy(cp, p.entries)
	return cp
}

// ResourceTypes lists the configured resource types in file order
func (p Profile) ResourceTypes() []string {
	types := make([]string, len(p.entries))
	for i, e := range p.entries {
		types[i] = e.ResourceType
	}
	return types
}

// Bind returns a copy with the placeholders replaced. An empty patientID
// leaves patient placeholders untouched so callers can detect them.
func (p Profile) Bind(encounterID, patientID string) Profile {
	bound := Profile{Name: p.Name, entries: make([]ProfileEntry, len(p.entries))}
	for i, e := range p.entries {
		switch {
		case e.LoadingCode == EncounterPlaceholder:
			e.LoadingCode = encounterID
		case e.LoadingCode == PatientPlaceholder && patientID != "":
			e.LoadingCode = patientID
		}
		bound.entries[i] = e
	}
	return bound
}

// DefaultProfile is used when no profile file is configured
func DefaultProfile() Profile {
	return NewProfile("default", []ProfileEntry{
		{ResourceType: "Encounter", LoadingSuffix: "?_id=", LoadingCode: EncounterPlaceholder},
		{ResourceType: "Patient", LoadingSuffix: "?_has:Encounter:patient:_id=", LoadingCode: EncounterPlaceholder},
		{ResourceType: "MedicationRequest", LoadingSuffix: "?encounter=", LoadingCode: EncounterPlaceholder},
		{ResourceType: "MedicationStatement", LoadingSuffix: "?subject=", LoadingCode: PatientPlaceholder},
		{ResourceType: "MedicationAdministration", LoadingSuffix: "?subject=", LoadingCode: PatientPlaceholder},
		{ResourceType: "Observation", LoadingSuffix: "?subject=", LoadingCode: PatientPlaceholder},
		{ResourceType: "Medication", LoadingSuffix: "?_id="},
	})
}

// ParseProfiles decodes a profile file: {"<profile>": [{resourceType, loadingSuffix, loadingCode}]}
func ParseProfiles(data []byte) (map[string]Profile, error) {
	var raw map[string][]ProfileEntry
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode profile file: %w", err)
	}

	profiles := make(map[string]Profile, len(raw))
	for name, entries := range raw {
		for i, e := range entries {
			if e.ResourceType == "" {
				return nil, fmt.Errorf("profile %s entry %d has no resourceType", name, i)
			}
		}
		profiles[name] = NewProfile(name, entries)
	}
	return profiles, nil
}

// LoadProfile reads the named profile from a profile file
func LoadProfile(path, name string) (Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Profile{}, fmt.Errorf("failed to read profile file %s: %w", path, err)
	}

	profiles, err := ParseProfiles(data)
	if err != nil {
		return Profile{}, err
	}

	p, ok := profiles[name]
	if !ok {
		return Profile{}, fmt.Errorf("profile %q not found in %s", name, path)
	}
	return p, nil
}
