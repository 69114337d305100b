package zerolog_config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiagnosticLoggerWritesOneLinePerEvent(t *testing.T) {
	var buf bytes.Buffer
	logger := NewDiagnosticWriterLogger(&buf)

	logger.Warn().Msg("Encounter ID 1 -> Requested resource (Observation): No resource found")
	logger.Error().Msg("Download Error: http://fhir/Observation?subject=42")

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "Encounter ID 1 -> Requested resource (Observation): No resource found")
	assert.Regexp(t, `^\d{4}-\d{2}-\d{2}T`, lines[0])
	assert.NotContains(t, lines[0], "\x1b[", "no colour codes in the log file")
}

func TestDiagnosticLoggerAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.txt")
	require.NoError(t, os.WriteFile(path, []byte("earlier line\n"), 0o644))

	logger, closer, err := NewDiagnosticLogger(path)
	require.NoError(t, err)
	logger.Warn().Msg("new line")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "earlier line\n"))
	assert.Contains(t, string(data), "new line")
}

func TestDiagnosticLoggerWithoutPathDropsEvents(t *testing.T) {
	logger, closer, err := NewDiagnosticLogger("")
	require.NoError(t, err)
	assert.NotPanics(t, func() { logger.Warn().Msg("dropped") })
	assert.NoError(t, closer.Close())
}

func TestStartupWithEnvRequiresSubAddress(t *testing.T) {
	assert.Error(t, StartupWithEnv("", "", "info"))
	assert.Error(t, StartupWithEnv("", "test-", "loud"))
}

func TestConsoleLevelDoesNotFilterDiagnostics(t *testing.T) {
	saved := log.Logger
	t.Cleanup(func() { log.Logger = saved })

	startupLoggerWithEnv("", "test-", zerolog.ErrorLevel)
	assert.Equal(t, zerolog.ErrorLevel, log.Logger.GetLevel())
	assert.Less(t, zerolog.GlobalLevel(), zerolog.WarnLevel)

	var buf bytes.Buffer
	diag := NewDiagnosticWriterLogger(&buf)
	diag.WithLevel(zerolog.WarnLevel).Msg("Encounter ID 1 -> Requested resource (Observation): No resource found")
	diag.Debug().Msg("Assembly state changed")

	assert.Contains(t, buf.String(), "Encounter ID 1 -> Requested resource (Observation): No resource found")
	assert.Contains(t, buf.String(), "Assembly state changed")
}
