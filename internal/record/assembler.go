// Package record assembles the resources linked to one encounter into a
// single Bundle.
package record

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"stealthcompany.com/fhirrecord/internal/bundle"
	"stealthcompany.com/fhirrecord/internal/config"
	"stealthcompany.com/fhirrecord/internal/fhirerr"
	"stealthcompany.com/fhirrecord/internal/jsonpath"
	"stealthcompany.com/fhirrecord/internal/metrics"
	"stealthcompany.com/fhirrecord/internal/stitch"
)

const (
	medicationType = "Medication"
	defaultIDQuery = "?_id="
)

var patientIDPath = jsonpath.MustParsePath("entry.X.resource.id")

// Source is the read side of the FHIR server
type Source interface {
	SearchURL(resourceType, suffix, code string) string
	GetBundle(ctx context.Context, url string) (jsonpath.Node, error)
	CollectAll(ctx context.Context, url string) ([]jsonpath.Node, error)
}

// State is the stage an assembly has reached
type State int

const (
	Validating State = iota
	ResolvingPatient
	FetchingPrimaryResources
	ResolvingMedications
	Stitching
	Bundling
	Done
	Failed
)

func (s State) String() string {
	switch s {
	case Validating:
		return "validating"
	case ResolvingPatient:
		return "resolving_patient"
	case FetchingPrimaryResources:
		return "fetching_primary_resources"
	case ResolvingMedications:
		return "resolving_medications"
	case Stitching:
		return "stitching"
	case Bundling:
		return "bundling"
	case Done:
		return "done"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Record is the outcome of one encounter
type Record struct {
	EncounterID string
	// PatientID is empty when the encounter's patient could not be resolved
	PatientID string
	Bundle    jsonpath.Node
	// Entries are the stitched entries in bundle order
	Entries  []jsonpath.Node
	Dropped  []*stitch.DropError
	Warnings []error
}

// Degraded reports whether the record completed with warnings
func (r *Record) Degraded() bool {
	return len(r.Warnings) > 0
}

// Assembler builds encounter records from a Source. It is not safe for
// concurrent use; create one per concurrent caller.
type Assembler struct {
	source     Source
	profile    config.Profile
	diag       zerolog.Logger
	bundleType bundle.Type
	builder    *bundle.Builder
	stitcher   *stitch.Stitcher

	state       State
	errorStatus bool
}

// Option configures an Assembler
type Option func(*Assembler)

// WithDiagnostics sets the sink for per-encounter diagnostic lines
func WithDiagnostics(logger zerolog.Logger) Option {
	return func(a *Assembler) { a.diag = logger }
}

// WithBundleType sets the Bundle.type of assembled records
func WithBundleType(t bundle.Type) Option {
	return func(a *Assembler) { a.bundleType = t }
}

// WithBuilder replaces the bundle builder
func WithBuilder(b *bundle.Builder) Option {
	return func(a *Assembler) { a.builder = b }
}

// WithStitcher replaces the entry stitcher
func WithStitcher(s *stitch.Stitcher) Option {
	return func(a *Assembler) { a.stitcher = s }
}

// New creates an assembler reading from source with the given profile
func New(source Source, profile config.Profile, opts ...Option) *Assembler {
	a := &Assembler{
		source:     source,
		profile:    profile,
		diag:       zerolog.Nop(),
		bundleType: bundle.Transaction,
		builder:    bundle.NewBuilder(),
		stitcher:   stitch.New(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// ErrorStatus reports whether any encounter assembled by a has produced a
// warning or failed. It is never reset.
func (a *Assembler) ErrorStatus() bool {
	return a.errorStatus
}

// State returns the stage of the current or last assembly
func (a *Assembler) State() State {
	return a.state
}

// run carries the state of one encounter
type run struct {
	encounterID string
	record      *Record
	medications *IDSet
	primary     []jsonpath.Node
	resolved    []jsonpath.Node
}

// Assemble builds the record of one encounter. The only error returned is
// an invalid encounter (wrapping fhirerr.ErrInvalidEncounter) or a
// cancelled context; every other failure is a warning on the record.
func (a *Assembler) Assemble(ctx context.Context, encounterID string, resourceTypes []string) (*Record, error) {
	startTime := time.Now()
	r := &run{
		encounterID: encounterID,
		record:      &Record{EncounterID: encounterID},
		medications: NewIDSet(),
	}

	a.setState(encounterID, Validating)
	if err := a.validateEncounter(ctx, r); err != nil {
		a.errorStatus = true
		a.setState(encounterID, Failed)
		metrics.RecordAssembly("invalid_encounter", startTime)
		return nil, err
	}

	a.setState(encounterID, ResolvingPatient)
	a.resolvePatient(ctx, r)

	bound := a.profile.Bind(encounterID, r.record.PatientID)

	a.setState(encounterID, FetchingPrimaryResources)
	for _, resourceType := range resourceTypes {
		if resourceType == medicationType {
			continue
		}
		if err := ctx.Err(); err != nil {
			return a.abort(startTime, encounterID, err)
		}
		a.fetchPrimary(ctx, r, bound, resourceType)
	}

	var medications []jsonpath.Node
	if slices.Contains(resourceTypes, medicationType) {
		a.setState(encounterID, ResolvingMedications)
		medications = a.resolveMedications(ctx, r, bound)
		if err := ctx.Err(); err != nil {
			return a.abort(startTime, encounterID, err)
		}
	}

	a.setState(encounterID, Stitching)
	a.stitchEntries(r, append(r.primary, medications...))

	a.setState(encounterID, Bundling)
	r.record.Entries = r.resolved
	r.record.Bundle = a.builder.Build(r.resolved, a.bundleType)

	a.setState(encounterID, Done)
	outcome := "complete"
	if r.record.Degraded() {
		outcome = "degraded"
	}
	metrics.RecordAssembly(outcome, startTime)

	log.Info().
		Str("encounter_id", encounterID).
		Str("patient_id", r.record.PatientID).
		Int("entries", len(r.resolved)).
		Int("dropped", len(r.record.Dropped)).
		Int("warnings", len(r.record.Warnings)).
		Dur("duration", time.Since(startTime)).
		Msg("Encounter record assembled")

	return r.record, nil
}

func (a *Assembler) abort(startTime time.Time, encounterID string, err error) (*Record, error) {
	a.errorStatus = true
	a.setState(encounterID, Failed)
	metrics.RecordAssembly("failed", startTime)
	return nil, fmt.Errorf("assembly of encounter %s interrupted: %w", encounterID, err)
}

func (a *Assembler) setState(encounterID string, s State) {
	a.state = s
	log.Debug().Str("encounter_id", encounterID).Stringer("state", s).Msg("Assembly state changed")
}

// warn records a degraded outcome on the record and the diagnostic sink
func (a *Assembler) warn(r *run, level zerolog.Level, msg string, err error) {
	a.errorStatus = true
	r.record.Warnings = append(r.record.Warnings, err)
	a.diag.WithLevel(level).Msg(msg)
	log.Warn().Err(err).Str("encounter_id", r.encounterID).Msg(msg)
}

// fail records a failure outside a single assembly run
func (a *Assembler) fail(msg string) {
	a.errorStatus = true
	a.diag.Error().Msg(msg)
}

func (a *Assembler) notFound(r *run, resourceType string) {
	a.warn(r, zerolog.WarnLevel,
		fmt.Sprintf("Encounter ID %s -> Requested resource (%s): No resource found", r.encounterID, resourceType),
		fmt.Errorf("%s for encounter %s: %w", resourceType, r.encounterID, fhirerr.ErrResourceNotFound))
}

func (a *Assembler) downloadError(r *run, url string, err error) {
	a.warn(r, zerolog.ErrorLevel, "Download Error: "+url, err)
}

func (a *Assembler) suffix(resourceType, fallback string) string {
	if e, ok := a.profile.Lookup(resourceType); ok {
		return e.LoadingSuffix
	}
	if e, ok := config.DefaultProfile().Lookup(resourceType); ok {
		return e.LoadingSuffix
	}
	return fallback
}

func (a *Assembler) validateEncounter(ctx context.Context, r *run) error {
	url := a.source.SearchURL("Encounter", a.suffix("Encounter", defaultIDQuery), r.encounterID)
	log.Info().Str("encounter_id", r.encounterID).Str("url", url).Msg("Validating encounter")

	result, err := a.source.GetBundle(ctx, url)
	if err != nil {
		a.diag.Error().Msg("Download Error: " + url)
		a.diag.Error().Msg("Encounter identifier validation failed.")
		return fmt.Errorf("encounter %s: %w: %w", r.encounterID, fhirerr.ErrInvalidEncounter, err)
	}

	if bundle.Matches(result) == 0 {
		a.diag.Error().Msg("Encounter identifier validation failed.")
		return fmt.Errorf("encounter %s has no match on the server: %w", r.encounterID, fhirerr.ErrInvalidEncounter)
	}
	return nil
}

func (a *Assembler) resolvePatient(ctx context.Context, r *run) {
	url := a.source.SearchURL("Patient", a.suffix("Patient", "?_has:Encounter:patient:_id="), r.encounterID)
	log.Info().Str("encounter_id", r.encounterID).Str("url", url).Msg("Resolving patient")

	result, err := a.source.GetBundle(ctx, url)
	if err != nil {
		a.downloadError(r, url, err)
		a.notFound(r, "Patient")
		return
	}

	for _, v := range patientIDPath.Resolve(result).Values() {
		if id, ok := v.Str(); ok && id != "" {
			r.record.PatientID = id
			return
		}
	}
	a.notFound(r, "Patient")
}

func (a *Assembler) fetchPrimary(ctx context.Context, r *run, bound config.Profile, resourceType string) {
	entry, ok := bound.Lookup(resourceType)
	if !ok {
		a.warn(r, zerolog.WarnLevel,
			fmt.Sprintf("Encounter ID %s -> Requested resource (%s): Not configured in profile %s", r.encounterID, resourceType, bound.Name),
			fmt.Errorf("%s is not configured in profile %s: %w", resourceType, bound.Name, fhirerr.ErrResourceNotFound))
		return
	}

	if entry.DependsOnPatient() {
		a.warn(r, zerolog.WarnLevel,
			fmt.Sprintf("Encounter ID %s -> Requested resource (%s): Skipped, patient unknown", r.encounterID, resourceType),
			fmt.Errorf("%s needs the patient of encounter %s: %w", resourceType, r.encounterID, fhirerr.ErrResourceNotFound))
		return
	}

	url := a.source.SearchURL(resourceType, entry.LoadingSuffix, entry.LoadingCode)
	log.Info().Str("encounter_id", r.encounterID).Str("url", url).Msg("Searching resources")

	entries, err := a.source.CollectAll(ctx, url)
	if err != nil {
		a.downloadError(r, url, err)
	} else if len(entries) == 0 {
		a.notFound(r, resourceType)
	}
	metrics.RecordEntries(resourceType, len(entries))

	for _, e := range entries {
		r.primary = append(r.primary, e)

		entryType, _ := jsonpath.LookupString(e, "resource.resourceType")
		if entryType == "" {
			entryType = resourceType
		}
		if !stitch.IsMedicationUser(entryType) {
			continue
		}
		if id, ok := stitch.MedicationID(e); ok {
			r.medications.Add(id)
		}
	}
}

func (a *Assembler) resolveMedications(ctx context.Context, r *run, bound config.Profile) []jsonpath.Node {
	suffix := defaultIDQuery
	if e, ok := bound.Lookup(medicationType); ok && e.LoadingSuffix != "" {
		suffix = e.LoadingSuffix
	}

	log.Info().
		Str("encounter_id", r.encounterID).
		Int("medications", r.medications.Len()).
		Msg("Resolving medications")

	var out []jsonpath.Node
	for _, id := range r.medications.Values() {
		if ctx.Err() != nil {
			return out
		}

		url := a.source.SearchURL(medicationType, suffix, id)
		entries, err := a.source.CollectAll(ctx, url)
		if err != nil {
			a.downloadError(r, url, err)
			continue
		}
		if len(entries) == 0 {
			a.warn(r, zerolog.WarnLevel,
				fmt.Sprintf("Medication ID %s -> Requested resource (Medication): No resource found", id),
				fmt.Errorf("medication %s: %w", id, fhirerr.ErrResourceNotFound))
			continue
		}
		out = append(out, entries...)
	}
	metrics.RecordEntries(medicationType, len(out))
	return out
}

func (a *Assembler) stitchEntries(r *run, entries []jsonpath.Node) {
	for _, e := range entries {
		normalized, err := a.stitcher.Normalize(e)
		if err == nil {
			r.resolved = append(r.resolved, normalized)
			continue
		}

		var drop *stitch.DropError
		if !errors.As(err, &drop) {
			drop = &stitch.DropError{Reason: err.Error(), Err: err}
		}
		r.record.Dropped = append(r.record.Dropped, drop)
		metrics.RecordDropped(dropReason(drop))

		a.warn(r, zerolog.WarnLevel,
			fmt.Sprintf("Encounter ID %s -> Dropped entry (%s/%s): %s", r.encounterID, drop.ResourceType, drop.ID, drop.Reason),
			drop)
	}
}

func dropReason(drop *stitch.DropError) string {
	switch {
	case errors.Is(drop, fhirerr.ErrUnresolvableReference):
		return "unresolvable_reference"
	case errors.Is(drop, fhirerr.ErrMalformedEntry):
		return "malformed_entry"
	}
	return "other"
}
