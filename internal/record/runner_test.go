package record

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"stealthcompany.com/fhirrecord/internal/archive"
	"stealthcompany.com/fhirrecord/internal/fhirerr"
	"stealthcompany.com/fhirrecord/internal/jsonpath"
	"stealthcompany.com/fhirrecord/pkg/zerolog_config"
)

type memorySink struct {
	stored map[string]jsonpath.Node
	err    error
}

func (m *memorySink) Store(_ context.Context, name string, b jsonpath.Node) error {
	if m.err != nil {
		return m.err
	}
	if m.stored == nil {
		m.stored = map[string]jsonpath.Node{}
	}
	m.stored[name] = b
	return nil
}

type fakeUploader struct {
	uploads int
	err     error
}

func (f *fakeUploader) Upload(context.Context, jsonpath.Node) error {
	f.uploads++
	return f.err
}

type fakeLock struct {
	locked, unlocked bool
	err              error
}

func (l *fakeLock) Lock(context.Context) error {
	l.locked = true
	return l.err
}

func (l *fakeLock) Unlock(context.Context) error {
	l.unlocked = true
	return nil
}

func TestRunnerSkipsInvalidEncounters(t *testing.T) {
	sink := &memorySink{}
	uploader := &fakeUploader{}
	lock := &fakeLock{}
	r := &Runner{
		Assembler: newTestAssembler(standardSource()),
		Sinks:     []archive.Sink{sink},
		Uploader:  uploader,
		Lock:      lock,
	}

	summary, err := r.Run(context.Background(), []string{"e1", "bogus", "e1"}, []string{"Encounter", "Patient"})
	require.NoError(t, err)

	assert.Equal(t, []string{"e1", "e1"}, summary.Succeeded)
	assert.Equal(t, []string{"bogus"}, summary.Failed)
	assert.Empty(t, summary.Degraded)
	assert.True(t, summary.HasErrors())
	assert.Contains(t, sink.stored, "e1")
	assert.NotContains(t, sink.stored, "bogus")
	assert.Equal(t, 2, uploader.uploads)
	assert.True(t, lock.locked)
	assert.True(t, lock.unlocked)
}

func TestRunnerUploadFailureContinues(t *testing.T) {
	src := standardSource()
	src.serve("Encounter?_id=e2", res("Encounter", "e2"))
	src.serve("Patient?_has:Encounter:patient:_id=e2", res("Patient", "p1"))
	uploader := &fakeUploader{err: fmt.Errorf("destination returned status 422: Patient/42 is invalid: %w", fhirerr.ErrUploadFailure)}

	var diag bytes.Buffer
	a := newTestAssembler(src, WithDiagnostics(zerolog_config.NewDiagnosticWriterLogger(&diag)))
	r := &Runner{Assembler: a, Uploader: uploader}
	summary, err := r.Run(context.Background(), []string{"e1", "e2"}, []string{"Encounter"})
	require.NoError(t, err)

	assert.Equal(t, []string{"e1", "e2"}, summary.Degraded)
	assert.Equal(t, 2, uploader.uploads)
	assert.True(t, a.ErrorStatus())
	assert.Contains(t, diag.String(), "Upload Error: e1 -> destination returned status 422: Patient/42 is invalid")
	assert.Contains(t, diag.String(), "Upload Error: e2 -> destination returned status 422")
}

func TestRunnerSinkFailureDegrades(t *testing.T) {
	var diag bytes.Buffer
	r := &Runner{
		Assembler: newTestAssembler(standardSource(), WithDiagnostics(zerolog_config.NewDiagnosticWriterLogger(&diag))),
		Sinks:     []archive.Sink{&memorySink{err: errors.New("disk full")}},
	}
	summary, err := r.Run(context.Background(), []string{"e1"}, []string{"Encounter"})
	require.NoError(t, err)
	assert.Equal(t, []string{"e1"}, summary.Degraded)
	assert.Contains(t, diag.String(), "Store Error: e1 -> disk full")
}

func TestRunnerLockFailure(t *testing.T) {
	lock := &fakeLock{err: errors.New("export already running")}
	r := &Runner{Assembler: newTestAssembler(standardSource()), Lock: lock}

	_, err := r.Run(context.Background(), []string{"e1"}, []string{"Encounter"})
	require.Error(t, err)
	assert.False(t, lock.unlocked)
}

func TestRunnerStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := &Runner{Assembler: newTestAssembler(standardSource())}
	summary, err := r.Run(ctx, []string{"e1"}, []string{"Encounter"})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, summary.Succeeded)
}

func TestSummaryHasErrors(t *testing.T) {
	assert.False(t, (&Summary{Succeeded: []string{"a"}}).HasErrors())
	assert.True(t, (&Summary{Degraded: []string{"a"}}).HasErrors())
}
