package scan

import (
	"errors"
	"fmt"

	"github.com/aquasecurity/layerscan/pkg/clamav"
)

// OutcomeKind tags the result of scanning one content unit.
type OutcomeKind string

const (
	// OK means the scan service returned a verdict.
	OK OutcomeKind = "OK"
	// Aborted means the scan did not complete for a recoverable reason, e.g.
	// a timeout or the service stopping the scan early.
	Aborted OutcomeKind = "Aborted"
)

// UnitOutcome is the outcome of scanning one content unit. Unrecoverable
// failures are never represented as an outcome; they are returned as errors.
type UnitOutcome struct {
	Kind    OutcomeKind    `json:"kind"`
	Path    string         `json:"path"`
	Verdict clamav.Verdict `json:"verdict"`
	Reason  string         `json:"reason,omitempty"`
}

// MalwareDetected returns true if the unit was scanned and found malicious.
func (o UnitOutcome) MalwareDetected() bool {
	return o.Kind == OK && o.Verdict.MalwareDetected()
}

// Finding describes the outcome in a single line.
func (o UnitOutcome) Finding() string {
	switch {
	case o.Kind == Aborted:
		return o.Reason
	case o.MalwareDetected():
		return fmt.Sprintf("%v in %s", o.Verdict.Findings, o.Path)
	default:
		return ""
	}
}

// Classify maps the result of one scan call to an outcome. Scan errors the
// service reports as aborted, timeouts and connection errors become Aborted
// outcomes; any other error is returned.
func Classify(path string, verdict clamav.Verdict, err error) (UnitOutcome, error) {
	if err == nil {
		return UnitOutcome{Kind: OK, Path: path, Verdict: verdict}, nil
	}

	var scanErr *clamav.ScanError
	var transportErr *clamav.TransportError
	switch {
	case errors.As(err, &scanErr) && scanErr.Aborted():
		return UnitOutcome{
			Kind:   Aborted,
			Path:   path,
			Reason: fmt.Sprintf("Scan aborted: error_message=%q status_code=%d", scanErr.Message, scanErr.StatusCode),
		}, nil
	case errors.As(err, &transportErr):
		return UnitOutcome{
			Kind:   Aborted,
			Path:   path,
			Reason: fmt.Sprintf("Scan aborted (%s): %v", transportErr.Kind, transportErr.Err),
		}, nil
	default:
		return UnitOutcome{}, fmt.Errorf("scanning %s: %w", path, err)
	}
}
