package zerolog_config

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.elastic.co/ecszerolog"
)

var appPrefix string
var setAppPrefixOnce *sync.Once = &sync.Once{}
var startupLoggerOnce *sync.Once = &sync.Once{}

// ElasticsearchWriter sends logs directly to Elasticsearch
type ElasticsearchWriter struct {
	URL    string
	Client *http.Client
}

func (ew ElasticsearchWriter) Write(p []byte) (n int, err error) {
	client := ew.Client
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Post(ew.URL+"/_doc", "application/json", bytes.NewBuffer(p))
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return 0, fmt.Errorf("elasticsearch returned %d", resp.StatusCode)
	}

	return len(p), nil
}

// startupLoggerWithEnv levels the global logger only. zerolog's global level
// is left alone since it would also filter the diagnostic log.
func startupLoggerWithEnv(elasticsearchURL, subAddress string, level zerolog.Level) {
	consoleWriter := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}

	if elasticsearchURL == "" {
		log.Logger = zerolog.New(consoleWriter).Level(level).With().Str("app", appPrefix).
			Timestamp().Logger()
		return
	}

	// ECS format for Elasticsearch with semantic endpoint
	ecsLogger := ecszerolog.New(&ElasticsearchWriter{
		URL:    elasticsearchURL + "/" + subAddress,
		Client: &http.Client{Timeout: 5 * time.Second},
	})

	multi := zerolog.MultiLevelWriter(ecsLogger, consoleWriter)

	log.Logger = zerolog.New(multi).Level(level).With().Str("app", appPrefix).
		Timestamp().Logger()
}

// SetAppPrefix sets the app prefix
func SetAppPrefix(subAddress string) {
	setAppPrefixOnce.Do(func() {
		appPrefix = subAddress
	})
}

// StartupWithEnv sets up the global logger. Console output always goes to
// stderr so bundles written to stdout stay clean; when elasticsearchURL is set
// logs are also shipped in ECS format under subAddress.
// Run SetAppPrefix before StartupWithEnv.
func StartupWithEnv(elasticsearchURL, subAddress, levelName string) error {
	if subAddress == "" {
		return fmt.Errorf("subAddress is required")
	}

	level := zerolog.InfoLevel
	if levelName != "" {
		parsed, err := zerolog.ParseLevel(levelName)
		if err != nil {
			return fmt.Errorf("invalid log level %q: %w", levelName, err)
		}
		level = parsed
	}

	startupLoggerOnce.Do(func() {
		startupLoggerWithEnv(elasticsearchURL, subAddress, level)
	})
	return nil
}

// NewDiagnosticLogger opens the append-only diagnostic log at path. Each
// event becomes one plain-text line led by its timestamp. An empty path
// yields a logger that drops everything.
func NewDiagnosticLogger(path string) (zerolog.Logger, io.Closer, error) {
	if path == "" {
		return zerolog.Nop(), io.NopCloser(nil), nil
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return zerolog.Nop(), nil, fmt.Errorf("failed to open diagnostic log %s: %w", path, err)
	}

	// shared by concurrent API requests
	return NewDiagnosticWriterLogger(zerolog.SyncWriter(f)), f, nil
}

// NewDiagnosticWriterLogger formats diagnostic events as plain lines on w
func NewDiagnosticWriterLogger(w io.Writer) zerolog.Logger {
	writer := zerolog.ConsoleWriter{
		Out:        w,
		NoColor:    true,
		TimeFormat: time.RFC3339,
	}
	return zerolog.New(writer).Level(zerolog.TraceLevel).With().Timestamp().Logger()
}
