package fhir

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"stealthcompany.com/fhirrecord/internal/fhirerr"
	"stealthcompany.com/fhirrecord/internal/jsonpath"
	"stealthcompany.com/fhirrecord/internal/metrics"
)

var (
	issuePath       = jsonpath.MustParsePath("issue.X")
	diagnosticsPath = jsonpath.MustParsePath("diagnostics")
	detailsTextPath = jsonpath.MustParsePath("details.text")
)

// ErrNoDestination is returned by Upload when no destination is configured
var ErrNoDestination = errors.New("no destination server configured")

// UploadError is returned when the destination rejects a bundle
type UploadError struct {
	Status int
	Detail string
}

func (e *UploadError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("destination returned status %d", e.Status)
	}
	return fmt.Sprintf("destination returned status %d: %s", e.Status, e.Detail)
}

func (e *UploadError) Unwrap() error { return fhirerr.ErrUploadFailure }

// Upload sends a transaction bundle to the destination server root
func (c *Client) Upload(ctx context.Context, bundle jsonpath.Node) error {
	if c.config.DestinationURL == "" {
		return ErrNoDestination
	}

	body, err := bundle.MarshalJSON()
	if err != nil {
		return fmt.Errorf("failed to encode bundle: %w", err)
	}

	method := strings.ToUpper(c.config.UploadMethod)
	if method == "" {
		method = http.MethodPost
	}

	requestID := uuid.NewString()
	header := http.Header{}
	header.Set("Content-Type", ContentType)
	header.Set("X-Request-ID", requestID)

	resp, err := c.do(ctx, "upload", method, c.config.DestinationURL, bytes.NewReader(body), header)
	if err != nil {
		metrics.RecordUpload(0)
		return fmt.Errorf("failed to upload bundle: %w: %w", fhirerr.ErrUploadFailure, err)
	}
	metrics.RecordUpload(resp.StatusCode)

	if resp.OK() {
		log.Info().
			Str("request_id", requestID).
			Int("status", resp.StatusCode).
			Msg("Bundle uploaded")
		return nil
	}

	uerr := &UploadError{Status: resp.StatusCode, Detail: outcomeDetail(resp.Body)}
	log.Error().
		Str("request_id", requestID).
		Int("status", uerr.Status).
		Str("detail", uerr.Detail).
		Msg("Bundle upload rejected")
	return uerr
}

// outcomeDetail joins the issue texts of an OperationOutcome reply
func outcomeDetail(body []byte) string {
	outcome, err := jsonpath.Parse(body)
	if err != nil {
		return strings.TrimSpace(string(body))
	}

	var details []string
	for _, issue := range issuePath.Resolve(outcome).Values() {
		if v, ok := diagnosticsPath.Lookup(issue); ok {
			if s, ok := v.Str(); ok && s != "" {
				details = append(details, s)
				continue
			}
		}
		if v, ok := detailsTextPath.Lookup(issue); ok {
			if s, ok := v.Str(); ok && s != "" {
				details = append(details, s)
			}
		}
	}
	return strings.Join(details, "; ")
}
