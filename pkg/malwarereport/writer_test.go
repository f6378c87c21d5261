package malwarereport_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aquasecurity/layerscan/pkg/clamav"
	"github.com/aquasecurity/layerscan/pkg/component"
	"github.com/aquasecurity/layerscan/pkg/malwarereport"
	"github.com/aquasecurity/layerscan/pkg/scan"
)

var (
	cleanItem = malwarereport.Item{
		Identity: component.Identity{ComponentName: "example.com/app", ComponentVersion: "1.0.0", ResourceName: "api", ResourceVersion: "1.0.0"},
		Result: &malwarereport.ResourceScanResult{
			ScanID:         "00000000-0000-0000-0000-000000000001",
			ImageReference: "registry.local/app/api:1",
			Result: scan.ImageScanResult{
				ImageReference: "registry.local/app/api:1",
				Aborted: []scan.UnitOutcome{
					{Kind: scan.Aborted, Path: "registry.local/app/api:1@sha256:1", Reason: "Scan aborted (timed out): deadline"},
				},
			},
		},
	}
	malwareItem = malwarereport.Item{
		Identity: component.Identity{ComponentName: "example.com/app", ComponentVersion: "1.0.0", ResourceName: "worker", ResourceVersion: "1.0.0"},
		Result: &malwarereport.ResourceScanResult{
			ScanID:         "00000000-0000-0000-0000-000000000001",
			ImageReference: "registry.local/app/worker:1",
			Result: scan.ImageScanResult{
				ImageReference: "registry.local/app/worker:1",
				Verdict:        clamav.Verdict{Findings: []string{"Eicar-Signature"}},
				Malware: []scan.UnitOutcome{
					{Kind: scan.OK, Path: "registry.local/app/worker:1@sha256:2", Verdict: clamav.Verdict{Findings: []string{"Eicar-Signature"}}},
				},
			},
		},
	}
	failedItem = malwarereport.Item{
		Identity: component.Identity{ComponentName: "example.com/app", ComponentVersion: "1.0.0", ResourceName: "archive"},
		Err:      errors.New("resource example.com/app/archive: unsupported access type \"s3\""),
	}
)

func TestSummary(t *testing.T) {
	var summary malwarereport.Summary
	for _, item := range []malwarereport.Item{cleanItem, malwareItem, failedItem} {
		summary.Add(item)
	}

	if diff := cmp.Diff(malwarereport.Summary{Total: 3, Clean: 1, Malware: 1, Aborted: 1, Failed: 1}, summary); diff != "" {
		t.Errorf("summary mismatch (-want +got):\n%s", diff)
	}
	assert.False(t, summary.Healthy())
	assert.True(t, malwarereport.Summary{Total: 2, Clean: 2}.Healthy())
}

func TestNewWriter(t *testing.T) {
	_, err := malwarereport.NewWriter("xml", &bytes.Buffer{})
	assert.EqualError(t, err, `invalid output format "xml", allowed formats are: table,json,yaml`)
}

func writeAll(t *testing.T, format string) string {
	t.Helper()
	out := &bytes.Buffer{}
	writer, err := malwarereport.NewWriter(format, out)
	require.NoError(t, err)
	var summary malwarereport.Summary
	for _, item := range []malwarereport.Item{cleanItem, malwareItem, failedItem} {
		summary.Add(item)
		require.NoError(t, writer.Write(item))
	}
	require.NoError(t, writer.Flush(summary))
	return out.String()
}

func TestTableWriter(t *testing.T) {
	lines := strings.Split(strings.TrimSpace(writeAll(t, malwarereport.FormatTable)), "\n")

	require.Len(t, lines, 6)
	assert.Equal(t, []string{"COMPONENT", "RESOURCE", "IMAGE", "VERDICT", "FINDINGS", "ABORTED"}, strings.Fields(lines[0]))
	assert.Equal(t, []string{"example.com/app", "api", "registry.local/app/api:1", "CLEAN", "0", "1"}, strings.Fields(lines[1]))
	assert.Equal(t, []string{"example.com/app", "worker", "registry.local/app/worker:1", "MALWARE", "1", "0"}, strings.Fields(lines[2]))
	assert.Equal(t, []string{"example.com/app", "archive", "-", "ERROR", "0", "0"}, strings.Fields(lines[3]))
	assert.Equal(t, "", lines[4])
	assert.Equal(t, "Total: 3 (clean: 1, malware: 1, aborted: 1, failed: 1)", lines[5])
}

func TestJSONWriter(t *testing.T) {
	decoder := json.NewDecoder(strings.NewReader(writeAll(t, malwarereport.FormatJSON)))

	var reports []malwarereport.Report
	for i := 0; i < 3; i++ {
		var report malwarereport.Report
		require.NoError(t, decoder.Decode(&report))
		reports = append(reports, report)
	}
	var trailer struct {
		Summary malwarereport.Summary `json:"summary"`
	}
	require.NoError(t, decoder.Decode(&trailer))

	assert.False(t, reports[0].MalwareDetected)
	assert.Len(t, reports[0].Aborted, 1)
	assert.True(t, reports[1].MalwareDetected)
	assert.Equal(t, []string{"Eicar-Signature"}, reports[1].Findings)
	assert.Equal(t, `resource example.com/app/archive: unsupported access type "s3"`, reports[2].Error)
	require.NotNil(t, reports[2].Identity)
	assert.Equal(t, "archive", reports[2].Identity.ResourceName)
	assert.Equal(t, 3, trailer.Summary.Total)
}

func TestYAMLWriter(t *testing.T) {
	output := writeAll(t, malwarereport.FormatYAML)

	assert.Equal(t, 4, strings.Count(output, "---\n"))
	assert.Contains(t, output, "malwareDetected: true")
	assert.Contains(t, output, "- Eicar-Signature")
	assert.Contains(t, output, "summary:\n  aborted: 1\n  clean: 1\n  failed: 1\n  malware: 1\n  total: 3\n")
}
