package runner_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aquasecurity/layerscan/pkg/runner"
	"github.com/stretchr/testify/assert"
)

func TestRunner_Run(t *testing.T) {
	t.Run("Should return task error", func(t *testing.T) {
		err := runner.New().Run(context.Background(), runner.RunnableFunc(func(ctx context.Context) error {
			return errors.New("scan failed")
		}))
		assert.EqualError(t, err, "scan failed")
	})

	t.Run("Should return nil when task completes within timeout", func(t *testing.T) {
		err := runner.NewWithTimeout(time.Second).Run(context.Background(), runner.RunnableFunc(func(ctx context.Context) error {
			return nil
		}))
		assert.NoError(t, err)
	})

	t.Run("Should return ErrTimeout and cancel task context", func(t *testing.T) {
		cancelled := make(chan struct{})
		err := runner.NewWithTimeout(10*time.Millisecond).Run(context.Background(), runner.RunnableFunc(func(ctx context.Context) error {
			<-ctx.Done()
			close(cancelled)
			return ctx.Err()
		}))
		assert.Equal(t, runner.ErrTimeout, err)
		select {
		case <-cancelled:
		case <-time.After(time.Second):
			t.Fatal("task context was not cancelled")
		}
	})

	t.Run("Should return context error when caller cancels", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		block := make(chan struct{})
		defer close(block)
		err := runner.New().Run(ctx, runner.RunnableFunc(func(ctx context.Context) error {
			<-block
			return nil
		}))
		assert.ErrorIs(t, err, context.Canceled)
	})
}
