package record

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"stealthcompany.com/fhirrecord/internal/archive"
	"stealthcompany.com/fhirrecord/internal/fhirerr"
	"stealthcompany.com/fhirrecord/internal/jsonpath"
)

// Uploader sends an assembled bundle to a destination server
type Uploader interface {
	Upload(ctx context.Context, bundle jsonpath.Node) error
}

// Locker guards a batch run against concurrent exports
type Locker interface {
	Lock(ctx context.Context) error
	Unlock(ctx context.Context) error
}

// Summary lists the encounters of a batch run by outcome
type Summary struct {
	Succeeded []string
	// Degraded encounters produced a bundle with warnings, or could not be
	// stored or uploaded everywhere
	Degraded []string
	// Failed encounters produced no bundle
	Failed []string
}

// HasErrors reports whether any encounter did not complete cleanly
func (s *Summary) HasErrors() bool {
	return len(s.Failed) > 0 || len(s.Degraded) > 0
}

// Runner assembles a list of encounters one after another
type Runner struct {
	Assembler *Assembler
	Sinks     []archive.Sink
	// Uploader is optional
	Uploader Uploader
	// Lock is optional
	Lock Locker
}

// Run processes every encounter in order. An invalid encounter is skipped;
// storage and upload failures are logged and the loop continues. Only lock
// failures and cancellation end the run early.
func (r *Runner) Run(ctx context.Context, encounterIDs []string, resourceTypes []string) (*Summary, error) {
	summary := &Summary{}

	if r.Lock != nil {
		if err := r.Lock.Lock(ctx); err != nil {
			return summary, fmt.Errorf("failed to lock export: %w", err)
		}
		defer func() {
			if err := r.Lock.Unlock(context.WithoutCancel(ctx)); err != nil {
				log.Error().Err(err).Msg("Failed to unlock export")
			}
		}()
	}

	for _, encounterID := range encounterIDs {
		if err := ctx.Err(); err != nil {
			return summary, fmt.Errorf("batch run interrupted: %w", err)
		}

		rec, err := r.Assembler.Assemble(ctx, encounterID, resourceTypes)
		if err != nil {
			summary.Failed = append(summary.Failed, encounterID)
			if errors.Is(err, fhirerr.ErrInvalidEncounter) {
				log.Error().Err(err).Str("encounter_id", encounterID).Msg("Encounter identifier validation failed, skipping")
				continue
			}
			return summary, err
		}

		clean := !rec.Degraded()
		if !r.deliver(ctx, rec) {
			clean = false
		}

		if clean {
			summary.Succeeded = append(summary.Succeeded, encounterID)
		} else {
			summary.Degraded = append(summary.Degraded, encounterID)
			log.Warn().Str("encounter_id", encounterID).Msg("Errors have occurred, check the diagnostic log")
		}
	}

	log.Info().
		Int("succeeded", len(summary.Succeeded)).
		Int("degraded", len(summary.Degraded)).
		Int("failed", len(summary.Failed)).
		Msg("Batch run completed")

	return summary, nil
}

// deliver stores and uploads a record and reports whether every step worked.
// Failures reach the assembler's diagnostic log and set its error status.
func (r *Runner) deliver(ctx context.Context, rec *Record) bool {
	ok := true
	for _, sink := range r.Sinks {
		if err := sink.Store(ctx, rec.EncounterID, rec.Bundle); err != nil {
			log.Error().Err(err).Str("encounter_id", rec.EncounterID).Msg("Failed to store bundle")
			r.Assembler.fail(fmt.Sprintf("Store Error: %s -> %v", rec.EncounterID, err))
			ok = false
		}
	}

	if r.Uploader == nil {
		return ok
	}
	if err := r.Uploader.Upload(ctx, rec.Bundle); err != nil {
		log.Error().Err(err).Str("encounter_id", rec.EncounterID).Msg("Failed to upload bundle")
		r.Assembler.fail(fmt.Sprintf("Upload Error: %s -> %v", rec.EncounterID, err))
		return false
	}
	return ok
}
