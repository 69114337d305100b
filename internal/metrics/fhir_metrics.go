package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// FHIR client and record assembly metrics
var (
	fhirFetchTotal      *prometheus.CounterVec
	fhirFetchDuration   *prometheus.HistogramVec
	assemblyTotal       *prometheus.CounterVec
	assemblyDuration    *prometheus.HistogramVec
	entriesCollected    *prometheus.CounterVec
	entriesDropped      *prometheus.CounterVec
	uploadTotal         *prometheus.CounterVec
	archiveWritesTotal  *prometheus.CounterVec
	paginationPageTotal prometheus.Counter

	fhirMetricsOnce sync.Once
)

func initializeFHIRMetrics() {
	fhirMetricsOnce.Do(func() {
		fhirFetchTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fhir_fetch_total",
				Help: "Total number of requests to the source FHIR server",
			},
			[]string{"operation", "status_code"},
		)

		fhirFetchDuration = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fhir_fetch_duration_seconds",
				Help:    "Duration of requests to the source FHIR server in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		)

		assemblyTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "record_assembly_total",
				Help: "Total number of encounter records assembled",
			},
			[]string{"outcome"}, // "complete", "degraded", "invalid_encounter", "failed"
		)

		assemblyDuration = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "record_assembly_duration_seconds",
				Help:    "Time spent assembling one encounter record",
				Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
			},
			[]string{"outcome"},
		)

		entriesCollected = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "record_entries_collected_total",
				Help: "Total number of entries collected per resource type",
			},
			[]string{"resource_type"},
		)

		entriesDropped = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "record_entries_dropped_total",
				Help: "Total number of entries dropped while stitching",
			},
			[]string{"reason"}, // "unresolvable_reference", "malformed_entry"
		)

		uploadTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "record_upload_total",
				Help: "Total number of bundle uploads to the destination server",
			},
			[]string{"status_code"},
		)

		archiveWritesTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "record_archive_writes_total",
				Help: "Total number of bundles written to archive sinks",
			},
			[]string{"sink", "status"},
		)

		paginationPageTotal = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "fhir_pagination_pages_total",
				Help: "Total number of search result pages followed",
			},
		)

		GetInstance().registry.MustRegister(
			fhirFetchTotal,
			fhirFetchDuration,
			assemblyTotal,
			assemblyDuration,
			entriesCollected,
			entriesDropped,
			uploadTotal,
			archiveWritesTotal,
			paginationPageTotal,
		)
	})
}

// RecordFetch records one request to the source server. statusCode is 0 when
// the request failed before a response arrived.
func RecordFetch(operation string, statusCode int, duration time.Duration) {
	if !Enabled() {
		return
	}
	initializeFHIRMetrics()

	fhirFetchTotal.WithLabelValues(operation, strconv.Itoa(statusCode)).Inc()
	fhirFetchDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordPage counts a followed search result page
func RecordPage() {
	if !Enabled() {
		return
	}
	initializeFHIRMetrics()
	paginationPageTotal.Inc()
}

// RecordAssembly records the outcome of one encounter run
func RecordAssembly(outcome string, startTime time.Time) {
	if !Enabled() {
		return
	}
	initializeFHIRMetrics()

	assemblyTotal.WithLabelValues(outcome).Inc()
	assemblyDuration.WithLabelValues(outcome).Observe(time.Since(startTime).Seconds())
}

// RecordEntries counts entries collected for a resource type
func RecordEntries(resourceType string, count int) {
	if !Enabled() {
		return
	}
	initializeFHIRMetrics()
	entriesCollected.WithLabelValues(resourceType).Add(float64(count))
}

// RecordDropped counts an entry excluded by the stitcher
func RecordDropped(reason string) {
	if !Enabled() {
		return
	}
	initializeFHIRMetrics()
	entriesDropped.WithLabelValues(reason).Inc()
}

// RecordUpload records a bundle upload attempt
func RecordUpload(statusCode int) {
	if !Enabled() {
		return
	}
	initializeFHIRMetrics()
	uploadTotal.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordArchiveWrite records a write to an archive sink
func RecordArchiveWrite(sink, status string) {
	if !Enabled() {
		return
	}
	initializeFHIRMetrics()
	archiveWritesTotal.WithLabelValues(sink, status).Inc()
}
