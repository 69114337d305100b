// Package fhirerr defines the failure taxonomy of record assembly. Only
// ErrInvalidEncounter aborts an encounter; the others are recorded as
// warnings and processing continues.
package fhirerr

import "errors"

var (
	ErrInvalidEncounter      = errors.New("invalid encounter")
	ErrResourceNotFound      = errors.New("resource not found")
	ErrUnresolvableReference = errors.New("unresolvable reference")
	ErrMalformedEntry        = errors.New("malformed entry")
	ErrTransportFailure      = errors.New("transport failure")
	ErrUploadFailure         = errors.New("upload failure")
	ErrPageLimit             = errors.New("page limit reached")
)
