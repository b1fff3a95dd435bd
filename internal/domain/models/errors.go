package models

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownMarket is returned when a market key is not configured.
	ErrUnknownMarket = errors.New("unknown market key")
	// ErrNotFound is returned by stores when a lookup has no row.
	ErrNotFound = errors.New("not found")
	// ErrUnsupportedFormat is returned for an export format outside json, csv and parquet.
	ErrUnsupportedFormat = errors.New("unsupported format")
	// ErrRunInProgress is returned when another load holds the run lock.
	ErrRunInProgress = errors.New("load already in progress")
	// ErrQualityCheck is returned when stored row counts fall below thresholds.
	ErrQualityCheck = errors.New("quality check failed")

	errInvalidPayload = errors.New("raw payload is not valid JSON")
)

// ValidationError means a canonical record could not be constructed.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "invalid market signal: " + e.Reason
	}
	return fmt.Sprintf("invalid market signal: %s %s", e.Field, e.Reason)
}

// InvalidGeoFormatError means a geography id cannot be normalized for a source.
type InvalidGeoFormatError struct {
	Geo    string
	Reason string
}

func (e *InvalidGeoFormatError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("invalid geography format %q", e.Geo)
	}
	return fmt.Sprintf("invalid geography format %q: %s", e.Geo, e.Reason)
}

// UnsupportedGeoLevelError means a source cannot serve the geography level.
type UnsupportedGeoLevelError struct {
	Level string
}

func (e *UnsupportedGeoLevelError) Error() string {
	return fmt.Sprintf("unsupported geo level %q", e.Level)
}

// ExportError wraps a failure to write an export destination.
type ExportError struct {
	Path string
	Err  error
}

func (e *ExportError) Error() string {
	return fmt.Sprintf("export to %s: %v", e.Path, e.Err)
}

func (e *ExportError) Unwrap() error {
	return e.Err
}

// IsGeoConfigError reports whether err is a caller geography misconfiguration.
func IsGeoConfigError(err error) bool {
	var invalid *InvalidGeoFormatError
	var unsupported *UnsupportedGeoLevelError
	return errors.As(err, &invalid) || errors.As(err, &unsupported)
}
