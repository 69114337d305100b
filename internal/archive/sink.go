// Package archive persists assembled bundles.
package archive

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
	"stealthcompany.com/fhirrecord/internal/jsonpath"
	"stealthcompany.com/fhirrecord/internal/metrics"
)

// Indent is the indentation of persisted bundle files
const Indent = "    "

// ErrNotFound is returned when no bundle is stored under a name
var ErrNotFound = errors.New("bundle not found")

// Sink stores one bundle under a name, typically the encounter id
type Sink interface {
	Store(ctx context.Context, name string, bundle jsonpath.Node) error
}

// Loader reads back a stored bundle
type Loader interface {
	Load(ctx context.Context, name string) (jsonpath.Node, error)
}

// FileSink writes each bundle to <Dir>/<name>.json
type FileSink struct {
	Dir string
}

// NewFileSink creates dir if needed and returns a sink writing into it
func NewFileSink(dir string) (*FileSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory %s: %w", dir, err)
	}
	return &FileSink{Dir: dir}, nil
}

// Path returns the file a bundle named name is written to
func (s *FileSink) Path(name string) string {
	return filepath.Join(s.Dir, FileName(name))
}

// Store writes the bundle as pretty-printed UTF-8 JSON, replacing any
// earlier file of the same name
func (s *FileSink) Store(_ context.Context, name string, bundle jsonpath.Node) error {
	data, err := bundle.MarshalIndent("", Indent)
	if err != nil {
		metrics.RecordArchiveWrite("file", "error")
		return fmt.Errorf("failed to encode bundle %s: %w", name, err)
	}

	path := s.Path(name)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, append(data, '\n'), 0o644); err != nil {
		metrics.RecordArchiveWrite("file", "error")
		return fmt.Errorf("failed to write bundle file %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		metrics.RecordArchiveWrite("file", "error")
		return fmt.Errorf("failed to move bundle file into place %s: %w", path, err)
	}

	metrics.RecordArchiveWrite("file", "success")
	log.Info().Str("path", path).Msg("Bundle saved")
	return nil
}

// Load reads the bundle stored under name
func (s *FileSink) Load(_ context.Context, name string) (jsonpath.Node, error) {
	data, err := os.ReadFile(s.Path(name))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return jsonpath.Node{}, fmt.Errorf("bundle %s: %w", name, ErrNotFound)
		}
		return jsonpath.Node{}, fmt.Errorf("failed to read bundle file: %w", err)
	}
	return jsonpath.Parse(data)
}

// FileName maps a bundle name to a safe file name
func FileName(name string) string {
	r := strings.NewReplacer("/", "_", "\\", "_", "..", "_")
	return r.Replace(name) + ".json"
}
