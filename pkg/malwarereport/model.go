package malwarereport

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aquasecurity/layerscan/pkg/component"
	"github.com/aquasecurity/layerscan/pkg/scan"
)

// ErrUnsupportedAccess is returned for resources whose access type is not
// backed by an OCI registry.
var ErrUnsupportedAccess = errors.New("unsupported access type")

// ConfigurationError reports a resource which cannot be scanned as declared.
type ConfigurationError struct {
	Identity   component.Identity
	AccessType string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("resource %s: %v %q", e.Identity, ErrUnsupportedAccess, e.AccessType)
}

func (e *ConfigurationError) Unwrap() error {
	return ErrUnsupportedAccess
}

// ResourceScanResult is the final scan result of one resource.
type ResourceScanResult struct {
	ScanID         string               `json:"scanID"`
	Identity       component.Identity   `json:"identity"`
	ImageReference string               `json:"imageReference"`
	Result         scan.ImageScanResult `json:"result"`
	StartedAt      time.Time            `json:"startedAt"`
	FinishedAt     time.Time            `json:"finishedAt"`
}

// MalwareDetected returns true if any content unit of the resource was found
// malicious.
func (r ResourceScanResult) MalwareDetected() bool {
	return r.Result.MalwareDetected()
}

// Item is one element of the result stream: either the result of a resource
// or the error which prevented its scan. Items produced for enumeration
// failures carry no identity.
type Item struct {
	Identity component.Identity
	Result   *ResourceScanResult
	Err      error
}

// Failed returns true if the item carries an error.
func (i Item) Failed() bool {
	return i.Err != nil
}

// FailurePolicy decides what happens to the result stream when a resource
// fails unrecoverably.
type FailurePolicy string

const (
	// ReportInline delivers failures as items alongside results. The batch
	// always completes.
	ReportInline FailurePolicy = "ReportInline"
	// FailFast delivers the first failure and then stops the batch.
	FailFast FailurePolicy = "FailFast"
)

// ParseFailurePolicy accepts the policy names case-insensitively, ignoring
// dashes and underscores, e.g. "fail-fast" or "FAIL_FAST". An empty value
// selects ReportInline.
func ParseFailurePolicy(value string) (FailurePolicy, error) {
	switch policyName.Replace(strings.ToLower(strings.TrimSpace(value))) {
	case "", "reportinline", "inline":
		return ReportInline, nil
	case "failfast":
		return FailFast, nil
	default:
		return "", fmt.Errorf("unrecognized failure policy %q, allowed values are: ReportInline,FailFast", value)
	}
}

var policyName = strings.NewReplacer("-", "", "_", "")
