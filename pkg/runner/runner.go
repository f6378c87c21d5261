package runner

import (
	"context"
	"errors"
	"time"

	"k8s.io/klog/v2"
)

// ErrTimeout is returned when Runner's Run method fails due to a timeout event.
var ErrTimeout = errors.New("runner received timeout")

// Runnable is the interface that wraps the basic Run method.
//
// Run should be implemented by any task intended to be executed by the Runner.
type Runnable interface {
	Run(ctx context.Context) error
}

// The RunnableFunc type is an adapter to allow the use of ordinary functions as Runnable tasks.
// If f is a function with the appropriate signature, RunnableFunc(f) is a Runnable that calls f.
type RunnableFunc func(ctx context.Context) error

// Run calls f(ctx)
func (f RunnableFunc) Run(ctx context.Context) error {
	return f(ctx)
}

// Runner is the interface that wraps the basic Run method.
//
// Run executes submitted Runnable tasks.
type Runner interface {
	Run(ctx context.Context, task Runnable) error
}

// New constructs a new ready-to-use Runner which waits for the task until it
// completes or ctx is done.
func New() Runner {
	return &runner{}
}

// NewWithTimeout constructs a new ready-to-use Runner with the specified timeout for running a Runnable task.
// A zero duration means no timeout.
//
// The task receives a context which is cancelled once the timeout elapses, and
// is expected to return shortly after.
func NewWithTimeout(d time.Duration) Runner {
	return &runner{
		timeoutDuration: d,
	}
}

type runner struct {
	timeoutDuration time.Duration
}

// Run runs the specified task and monitors its completion.
func (r *runner) Run(ctx context.Context, task Runnable) error {
	if r.timeoutDuration > 0 {
		klog.V(3).Infof("Running task with timeout: %v", r.timeoutDuration)
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeoutDuration)
		defer cancel()
	} else {
		klog.V(3).Info("Running task and waiting until it completes")
	}

	// Buffered so that an abandoned task does not block forever.
	complete := make(chan error, 1)
	go func() {
		complete <- task.Run(ctx)
	}()

	var err error
	select {
	// Signaled when processing is done.
	case err = <-complete:
		klog.V(3).Infof("Stopping runner on task completion with error: %v", err)
	// Signaled when we run out of time or the caller gives up.
	case <-ctx.Done():
		err = ctx.Err()
	}
	if err != nil && r.timeoutDuration > 0 && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		klog.V(3).Info("Stopping runner on timeout")
		return ErrTimeout
	}
	return err
}
