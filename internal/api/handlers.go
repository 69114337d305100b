package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/goccy/go-json"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"
	"stealthcompany.com/fhirrecord/internal/archive"
	"stealthcompany.com/fhirrecord/internal/bundle"
	"stealthcompany.com/fhirrecord/internal/config"
	"stealthcompany.com/fhirrecord/internal/fhirerr"
	"stealthcompany.com/fhirrecord/internal/fhirpathq"
	"stealthcompany.com/fhirrecord/internal/jsonpath"
	"stealthcompany.com/fhirrecord/internal/record"
)

const (
	fhirContentType = "application/fhir+json"
	maxQueryBody    = 32 << 20

	// DegradedHeader is set on records assembled with warnings
	DegradedHeader = "X-Record-Degraded"
	warningsHeader = "X-Record-Warnings"
)

// Handlers serves encounter records on demand
type Handlers struct {
	// NewAssembler returns a fresh assembler for each request
	NewAssembler func(opts ...record.Option) *record.Assembler
	// Resources are assembled when a request names none
	Resources []string
	// Archive is optional; it serves previously exported bundles
	Archive archive.Loader

	evaluator *fhirpathq.Evaluator
}

// NewHandlers creates handlers assembling records with newAssembler
func NewHandlers(newAssembler func(opts ...record.Option) *record.Assembler, resources []string, loader archive.Loader) *Handlers {
	return &Handlers{
		NewAssembler: newAssembler,
		Resources:    resources,
		Archive:      loader,
		evaluator:    fhirpathq.New(),
	}
}

// HealthHandler reports that the server is up
func HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// RecordHandler assembles the record of one encounter.
// Query parameters: resources=A,B (defaults to the configured list) and
// type=transaction|batch|searchset.
func (h *Handlers) RecordHandler(w http.ResponseWriter, r *http.Request) {
	encounterID := mux.Vars(r)["encounterID"]

	resources := config.SplitList(r.URL.Query().Get("resources"))
	if len(resources) == 0 {
		resources = h.Resources
	}
	if len(resources) == 0 {
		writeOutcome(w, http.StatusBadRequest, "required", "no resource types requested")
		return
	}

	opts := []record.Option{}
	if t := r.URL.Query().Get("type"); t != "" {
		bundleType, err := bundle.ParseType(t)
		if err != nil {
			writeOutcome(w, http.StatusBadRequest, "invalid", err.Error())
			return
		}
		opts = append(opts, record.WithBundleType(bundleType))
	}

	log.Info().
		Str("method", r.Method).
		Str("path", r.URL.Path).
		Str("remote_addr", r.RemoteAddr).
		Str("encounter_id", encounterID).
		Strs("resources", resources).
		Msg("Record requested")

	rec, err := h.NewAssembler(opts...).Assemble(r.Context(), encounterID, resources)
	// cancellation during validation also wraps ErrInvalidEncounter
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeOutcome(w, http.StatusServiceUnavailable, "timeout", err.Error())
		return
	case errors.Is(err, fhirerr.ErrInvalidEncounter):
		writeOutcome(w, http.StatusNotFound, "not-found", "Encounter identifier validation failed.")
		return
	case err != nil:
		log.Error().Err(err).Str("encounter_id", encounterID).Msg("Failed to assemble record")
		writeOutcome(w, http.StatusInternalServerError, "exception", err.Error())
		return
	}

	if rec.Degraded() {
		w.Header().Set(DegradedHeader, "true")
		w.Header().Set(warningsHeader, strconv.Itoa(len(rec.Warnings)))
	}
	writeNode(w, http.StatusOK, rec.Bundle)
}

// ArchivedBundleHandler returns a bundle stored by an earlier export
func (h *Handlers) ArchivedBundleHandler(w http.ResponseWriter, r *http.Request) {
	encounterID := mux.Vars(r)["encounterID"]

	b, err := h.Archive.Load(r.Context(), encounterID)
	if errors.Is(err, archive.ErrNotFound) {
		writeOutcome(w, http.StatusNotFound, "not-found", "no archived bundle for encounter "+encounterID)
		return
	}
	if err != nil {
		log.Error().Err(err).Str("encounter_id", encounterID).Msg("Failed to load archived bundle")
		writeOutcome(w, http.StatusInternalServerError, "exception", err.Error())
		return
	}
	writeNode(w, http.StatusOK, b)
}

// QueryHandler evaluates a dotted path (?path=) or a FHIRPath expression
// (?fhirpath=) against the JSON document in the request body
func (h *Handlers) QueryHandler(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxQueryBody))
	if err != nil {
		writeOutcome(w, http.StatusBadRequest, "structure", "failed to read body")
		return
	}
	doc, err := jsonpath.Parse(body)
	if err != nil {
		writeOutcome(w, http.StatusBadRequest, "structure", err.Error())
		return
	}

	q := r.URL.Query()
	switch {
	case q.Get("fhirpath") != "":
		evaluator := h.evaluator
		if evaluator == nil {
			evaluator = fhirpathq.New()
		}
		values, err := evaluator.Evaluate(q.Get("fhirpath"), doc)
		if err != nil {
			writeOutcome(w, http.StatusBadRequest, "invalid", err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string][]string{"results": values})

	case q.Get("path") != "":
		results, err := jsonpath.Resolve(q.Get("path"), doc)
		if err != nil {
			writeOutcome(w, http.StatusBadRequest, "invalid", err.Error())
			return
		}
		writeNode(w, http.StatusOK, results.Node())

	case q.Get("key") != "":
		writeNode(w, http.StatusOK, jsonpath.FindKey(doc, q.Get("key")).Node())

	default:
		writeOutcome(w, http.StatusBadRequest, "required", "one of path, key or fhirpath is required")
	}
}

// OperationOutcome builds a single-issue outcome resource
func OperationOutcome(code, diagnostics string) jsonpath.Node {
	issue := jsonpath.Object(
		jsonpath.Field{Key: "severity", Value: jsonpath.String("error")},
		jsonpath.Field{Key: "code", Value: jsonpath.String(code)},
		jsonpath.Field{Key: "diagnostics", Value: jsonpath.String(diagnostics)},
	)
	return jsonpath.Object(
		jsonpath.Field{Key: "resourceType", Value: jsonpath.String("OperationOutcome")},
		jsonpath.Field{Key: "issue", Value: jsonpath.Array(issue)},
	)
}

func writeOutcome(w http.ResponseWriter, status int, code, diagnostics string) {
	writeNode(w, status, OperationOutcome(code, diagnostics))
}

func writeNode(w http.ResponseWriter, status int, n jsonpath.Node) {
	data, err := n.MarshalJSON()
	if err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", fhirContentType)
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		log.Error().Err(err).Msg("Failed to write response")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to write response")
	}
}
