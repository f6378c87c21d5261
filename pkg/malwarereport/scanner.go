package malwarereport

import (
	"context"
	"fmt"
	"iter"
	"sync/atomic"
	"time"

	"github.com/go-logr/logr"
	"golang.org/x/sync/errgroup"
	"k8s.io/utils/clock"

	"github.com/aquasecurity/layerscan/pkg/component"
	"github.com/aquasecurity/layerscan/pkg/ext"
	"github.com/aquasecurity/layerscan/pkg/runner"
	"github.com/aquasecurity/layerscan/pkg/scan"
)

// DefaultWorkers is the default number of resources scanned in parallel.
const DefaultWorkers = 16

// ImageScanner scans the content units of one image, see scan.Driver.
type ImageScanner interface {
	ScanImage(ctx context.Context, imageRef string) iter.Seq2[scan.UnitOutcome, error]
}

// Observer is notified about every item before it is delivered.
type Observer interface {
	Observe(item Item, duration time.Duration)
}

// Scanner scans the resources of components concurrently.
type Scanner struct {
	images          ImageScanner
	workers         int
	resourceTimeout time.Duration
	policy          FailurePolicy
	idGenerator     ext.IDGenerator
	clock           clock.PassiveClock
	observer        Observer
	runner          runner.Runner
	logger          logr.Logger
}

type Option func(*Scanner)

// WithWorkers sets the number of resources scanned in parallel.
func WithWorkers(workers int) Option {
	return func(s *Scanner) {
		s.workers = workers
	}
}

// WithResourceTimeout bounds the scan of a single resource. Zero means no
// timeout; each scan call is still bounded by the driver.
func WithResourceTimeout(timeout time.Duration) Option {
	return func(s *Scanner) {
		s.resourceTimeout = timeout
	}
}

func WithFailurePolicy(policy FailurePolicy) Option {
	return func(s *Scanner) {
		s.policy = policy
	}
}

func WithIDGenerator(idGenerator ext.IDGenerator) Option {
	return func(s *Scanner) {
		s.idGenerator = idGenerator
	}
}

func WithClock(clock clock.PassiveClock) Option {
	return func(s *Scanner) {
		s.clock = clock
	}
}

func WithObserver(observer Observer) Option {
	return func(s *Scanner) {
		s.observer = observer
	}
}

func WithLogger(logger logr.Logger) Option {
	return func(s *Scanner) {
		s.logger = logger
	}
}

// NewScanner constructs a new Scanner delegating the scan of each image to
// images.
func NewScanner(images ImageScanner, opts ...Option) *Scanner {
	s := &Scanner{
		images:      images,
		workers:     DefaultWorkers,
		policy:      ReportInline,
		idGenerator: ext.NewGoogleUUIDGenerator(),
		clock:       clock.RealClock{},
		logger:      logr.Discard(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.workers < 1 {
		s.logger.Info("Rectifying nonsense workers argument", "value", s.workers, "default", DefaultWorkers)
		s.workers = DefaultWorkers
	}
	if s.resourceTimeout > 0 {
		s.runner = runner.NewWithTimeout(s.resourceTimeout)
	} else {
		s.runner = runner.New()
	}
	return s
}

// Scan schedules one scan task per resource and returns the stream of items
// in completion order. At most the configured number of resources are scanned
// at a time; resources are pulled from the sequence only when a worker is
// free. Resources which cannot be scanned as declared fail when they are
// pulled, without waiting for a worker.
//
// The channel is closed once the sequence is exhausted and all scans have
// been delivered, or, with the FailFast policy, after the first failure. The
// caller must drain the channel or cancel ctx.
func (s *Scanner) Scan(ctx context.Context, resources iter.Seq2[component.ComponentResource, error]) <-chan Item {
	items := make(chan Item)
	scanID := s.idGenerator.GenerateID()
	logger := s.logger.WithValues("scanID", scanID)

	ctx, cancel := context.WithCancel(ctx)
	g := &errgroup.Group{}
	g.SetLimit(s.workers)

	go func() {
		defer close(items)
		defer cancel()

		var submitted, pending atomic.Int64
		var rejected int
		logger.Info("Scanning resources", "workers", s.workers, "failurePolicy", s.policy)
		for cr, err := range resources {
			if ctx.Err() != nil {
				break
			}
			if err != nil {
				s.deliver(ctx, items, Item{Err: fmt.Errorf("enumerating resources: %w", err)}, 0, cancel)
				break
			}
			if cerr := checkAccess(cr); cerr != nil {
				rejected++
				logger.V(1).Info("Rejecting resource", "resource", cr.Identity().String(), "accessType", cr.Resource.Access.Type)
				s.deliver(ctx, items, Item{Identity: cr.Identity(), Err: cerr}, 0, cancel)
				continue
			}
			submitted.Add(1)
			pending.Add(1)
			g.Go(func() error {
				defer pending.Add(-1)
				if ctx.Err() != nil {
					return nil
				}
				started := s.clock.Now()
				item := s.scanResource(ctx, scanID, cr)
				logger.V(1).Info("Scan finished", "resource", item.Identity.String(), "failed", item.Failed(), "pending", pending.Load()-1)
				s.deliver(ctx, items, item, s.clock.Since(started), cancel)
				return nil
			})
		}
		_ = g.Wait()
		logger.Info("Finished scanning resources", "submitted", submitted.Load(), "rejected", rejected, "cancelled", ctx.Err() != nil)
	}()

	return items
}

// deliver sends item unless the batch has been cancelled, and stops the
// batch after a failure if the policy says so.
func (s *Scanner) deliver(ctx context.Context, items chan<- Item, item Item, duration time.Duration, cancel context.CancelFunc) {
	if ctx.Err() != nil {
		return
	}
	if s.observer != nil {
		s.observer.Observe(item, duration)
	}
	select {
	case items <- item:
	case <-ctx.Done():
		return
	}
	if item.Failed() && s.policy == FailFast {
		cancel()
	}
}

// checkAccess returns a ConfigurationError if the resource is not stored in
// an OCI registry.
func checkAccess(cr component.ComponentResource) error {
	if access := cr.Resource.Access; !access.IsOCI() {
		return &ConfigurationError{Identity: cr.Identity(), AccessType: access.Type}
	}
	return nil
}

func (s *Scanner) scanResource(ctx context.Context, scanID string, cr component.ComponentResource) Item {
	id := cr.Identity()
	imageRef := cr.Resource.Access.ImageReference
	startedAt := s.clock.Now()
	var result scan.ImageScanResult
	err := s.runner.Run(ctx, runner.RunnableFunc(func(ctx context.Context) error {
		var err error
		result, err = scan.Aggregate(imageRef, id.String(), s.images.ScanImage(ctx, imageRef))
		return err
	}))
	if err != nil {
		return Item{Identity: id, Err: fmt.Errorf("scanning resource %s (%s): %w", id, imageRef, err)}
	}

	return Item{
		Identity: id,
		Result: &ResourceScanResult{
			ScanID:         scanID,
			Identity:       id,
			ImageReference: imageRef,
			Result:         result,
			StartedAt:      startedAt,
			FinishedAt:     s.clock.Now(),
		},
	}
}
