package cmd

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-logr/logr/testr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	clocktesting "k8s.io/utils/clock/testing"

	"github.com/aquasecurity/layerscan/pkg/etc"
)

func TestScanOptions_RunOnSchedule(t *testing.T) {
	descriptor := filepath.Join(t.TempDir(), "component-descriptor.yaml")
	require.NoError(t, os.WriteFile(descriptor, []byte(`meta:
  schemaVersion: v2
component:
  name: example.com/docs
  version: 1.0.0
  resources:
  - name: docs
    version: 1.0.0
    type: blob
    access:
      type: localBlob
      localReference: sha256:0000
`), 0o600))

	fakeClock := clocktesting.NewFakeClock(time.Date(2026, time.January, 1, 12, 0, 0, 0, time.UTC))
	opts := &scanOptions{
		globalOptions: &globalOptions{
			config: etc.Config{
				ClamAV:  etc.ClamAV{URL: "http://127.0.0.1:1", ScanTimeout: time.Minute},
				Scanner: etc.Scanner{MaxWorkers: 2, FailurePolicy: "ReportInline"},
				Report:  etc.Report{Format: "table", Schedule: "@hourly"},
			},
			errWriter: io.Discard,
			logger:    testr.New(t),
		},
		clock: fakeClock,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	out := &bytes.Buffer{}
	done := make(chan error, 1)
	go func() {
		done <- opts.run(ctx, []string{descriptor}, out)
	}()

	// The first run completes and the loop waits for 13:00.
	require.Eventually(t, fakeClock.HasWaiters, 5*time.Second, 10*time.Millisecond)
	fakeClock.Step(time.Hour)
	// The second run completes and the loop waits for 14:00.
	require.Eventually(t, fakeClock.HasWaiters, 5*time.Second, 10*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("scheduled scan did not stop after cancellation")
	}
	assert.Equal(t, 2, strings.Count(out.String(), "Total: 0 (clean: 0, malware: 0, aborted: 0, failed: 0)"))
}
