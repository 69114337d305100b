package main

import (
	"context"
	"fmt"
	"io"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
	"stealthcompany.com/fhirrecord/internal/archive"
	"stealthcompany.com/fhirrecord/internal/bundle"
	"stealthcompany.com/fhirrecord/internal/config"
	"stealthcompany.com/fhirrecord/internal/couchbase"
	"stealthcompany.com/fhirrecord/internal/fhir"
	"stealthcompany.com/fhirrecord/internal/metrics"
	"stealthcompany.com/fhirrecord/internal/objectstore"
	"stealthcompany.com/fhirrecord/internal/record"
	"stealthcompany.com/fhirrecord/pkg/zerolog_config"
)

// app holds everything a command needs, built once from settings
type app struct {
	settings *config.Settings
	profile  config.Profile
	client   *fhir.Client
	couch    *couchbase.Client
	closers  []io.Closer
}

func newApp(v *viper.Viper) (*app, error) {
	s, err := config.LoadSettings(v)
	if err != nil {
		return nil, err
	}

	zerolog_config.SetAppPrefix("recordctl")
	if err := zerolog_config.StartupWithEnv(s.ElasticsearchURL, "recordctl-", s.LogLevel); err != nil {
		return nil, err
	}
	metrics.SetEnabled(s.EnableBusinessMetrics)

	profile, err := s.LoadProfile()
	if err != nil {
		return nil, err
	}

	client := fhir.NewClient(fhir.Config{
		BaseURL:        s.FHIRBaseURL,
		Timeout:        s.FHIRTimeout,
		Count:          s.FHIRCount,
		Format:         s.FHIRFormat,
		RateLimit:      s.FHIRRateLimitRPS,
		MaxPages:       s.FHIRMaxPages,
		DestinationURL: s.DestinationURL,
		UploadMethod:   s.UploadMethod,
	})

	log.Info().
		Str("fhir_base_url", s.FHIRBaseURL).
		Str("profile", profile.Name).
		Msg("recordctl configured")

	return &app{settings: s, profile: profile, client: client}, nil
}

// resources returns the configured resource list, or every profile type
func (a *app) resources() []string {
	if list := a.settings.ResourceList(); len(list) > 0 {
		return list
	}
	return a.profile.ResourceTypes()
}

func (a *app) bundleType() (bundle.Type, error) {
	return bundle.ParseType(a.settings.BundleType)
}

// diagnostics opens the diagnostic log; callers close it through a.close
func (a *app) diagnostics() (record.Option, error) {
	logger, closer, err := zerolog_config.NewDiagnosticLogger(a.settings.LogPath)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, closer)
	return record.WithDiagnostics(logger), nil
}

// couchbaseClient connects on first use when Couchbase is configured
func (a *app) couchbaseClient() (*couchbase.Client, error) {
	if a.couch != nil || a.settings.CouchbaseURL == "" {
		return a.couch, nil
	}
	c, err := couchbase.NewClient(a.settings.CouchbaseURL, a.settings.CouchbaseUsername,
		a.settings.CouchbasePassword, a.settings.CouchbaseBucket)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Couchbase: %w", err)
	}
	a.couch = c
	a.closers = append(a.closers, c)
	return c, nil
}

// sinks opens every configured archive. The first one able to read bundles
// back is returned as the loader.
func (a *app) sinks(ctx context.Context) ([]archive.Sink, archive.Loader, error) {
	var sinks []archive.Sink
	var loader archive.Loader

	add := func(s archive.Sink) {
		sinks = append(sinks, s)
		if l, ok := s.(archive.Loader); ok && loader == nil {
			loader = l
		}
	}

	if a.settings.OutputDir != "" {
		fs, err := archive.NewFileSink(a.settings.OutputDir)
		if err != nil {
			return nil, nil, err
		}
		add(fs)
	}

	couch, err := a.couchbaseClient()
	if err != nil {
		return nil, nil, err
	}
	if couch != nil {
		add(couch.BundleStore())
	}

	if a.settings.MinioEndpoint != "" {
		ms, err := objectstore.NewMinioSink(ctx, objectstore.Options{
			Endpoint:  a.settings.MinioEndpoint,
			AccessKey: a.settings.MinioAccessKey,
			SecretKey: a.settings.MinioSecretKey,
			UseSSL:    a.settings.MinioUseSSL,
			Bucket:    a.settings.MinioBucket,
			Prefix:    a.settings.MinioPrefix,
		})
		if err != nil {
			return nil, nil, err
		}
		add(ms)
	}

	return sinks, loader, nil
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close resource")
		}
	}
}
