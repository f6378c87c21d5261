package scan

import (
	"context"
	"io"
	"iter"
	"time"

	"github.com/go-logr/logr"

	"github.com/aquasecurity/layerscan/pkg/clamav"
	"github.com/aquasecurity/layerscan/pkg/oci"
)

// StreamScanner scans one stream of content using the event based endpoint.
type StreamScanner interface {
	SSEScan(ctx context.Context, data io.Reader, timeout time.Duration) (clamav.Verdict, error)
}

// Driver scans every content unit of an image, one scan call per unit.
type Driver struct {
	registry  oci.Client
	scanner   StreamScanner
	timeout   time.Duration
	flattened bool
	logger    logr.Logger
}

type Option func(*Driver)

// WithScanTimeout bounds each scan call.
func WithScanTimeout(timeout time.Duration) Option {
	return func(d *Driver) {
		d.timeout = timeout
	}
}

// WithFlattenedImage additionally scans the merged filesystem of the image.
func WithFlattenedImage(flattened bool) Option {
	return func(d *Driver) {
		d.flattened = flattened
	}
}

func WithLogger(logger logr.Logger) Option {
	return func(d *Driver) {
		d.logger = logger
	}
}

func NewDriver(registry oci.Client, scanner StreamScanner, opts ...Option) *Driver {
	d := &Driver{
		registry: registry,
		scanner:  scanner,
		timeout:  clamav.DefaultScanTimeout,
		logger:   logr.Discard(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// ScanImage lazily scans the content units of the image and yields the
// outcomes worth reporting: malware findings and aborted scans. Clean units
// are dropped. The sequence stops at the first unrecoverable error.
func (d *Driver) ScanImage(ctx context.Context, imageRef string) iter.Seq2[UnitOutcome, error] {
	return func(yield func(UnitOutcome, error) bool) {
		logger := d.logger.WithValues("image", imageRef)
		for unit, err := range oci.ContentUnits(ctx, d.registry, imageRef, d.flattened) {
			if err != nil {
				yield(UnitOutcome{}, err)
				return
			}
			outcome, err := d.scanUnit(ctx, unit)
			if err != nil {
				yield(UnitOutcome{}, err)
				return
			}
			switch {
			case outcome.Kind == Aborted:
				logger.Info("Scan aborted", "path", unit.Path, "reason", outcome.Reason)
			case outcome.MalwareDetected():
				logger.Info("Malware detected", "path", unit.Path, "findings", outcome.Verdict.Findings)
			default:
				logger.V(1).Info("Content unit clean", "path", unit.Path)
				continue
			}
			if !yield(outcome, nil) {
				return
			}
		}
	}
}

func (d *Driver) scanUnit(ctx context.Context, unit oci.ContentUnit) (UnitOutcome, error) {
	defer unit.Content.Close()
	verdict, err := d.scanner.SSEScan(ctx, unit.Content, d.timeout)
	if ctx.Err() != nil {
		return UnitOutcome{}, ctx.Err()
	}
	return Classify(unit.Path, verdict, err)
}
