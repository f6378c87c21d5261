package malwarereport

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"sigs.k8s.io/yaml"

	"github.com/aquasecurity/layerscan/pkg/component"
	"github.com/aquasecurity/layerscan/pkg/scan"
)

const (
	FormatTable = "table"
	FormatJSON  = "json"
	FormatYAML  = "yaml"
)

const (
	verdictClean   = "CLEAN"
	verdictMalware = "MALWARE"
	verdictError   = "ERROR"
)

// Writer prints items as they arrive from the Scanner.
type Writer interface {
	Write(item Item) error
	// Flush writes whatever is buffered, followed by the summary.
	Flush(summary Summary) error
}

// NewWriter returns a Writer for the given output format. An empty format
// selects the table.
func NewWriter(format string, out io.Writer) (Writer, error) {
	switch format {
	case "", FormatTable:
		return newTableWriter(out), nil
	case FormatJSON:
		return &jsonWriter{encoder: json.NewEncoder(out)}, nil
	case FormatYAML:
		return &yamlWriter{out: out}, nil
	default:
		return nil, fmt.Errorf("invalid output format %q, allowed formats are: table,json,yaml", format)
	}
}

// Report is the printable form of an Item.
type Report struct {
	Identity        *component.Identity `json:"identity,omitempty"`
	ScanID          string              `json:"scanID,omitempty"`
	ImageReference  string              `json:"imageReference,omitempty"`
	MalwareDetected bool                `json:"malwareDetected"`
	Findings        []string            `json:"findings,omitempty"`
	Malware         []scan.UnitOutcome  `json:"malware,omitempty"`
	Aborted         []scan.UnitOutcome  `json:"aborted,omitempty"`
	Error           string              `json:"error,omitempty"`
}

// NewReport converts an item into its printable form.
func NewReport(item Item) Report {
	var report Report
	if item.Identity != (component.Identity{}) {
		id := item.Identity
		report.Identity = &id
	}
	if item.Err != nil {
		report.Error = item.Err.Error()
		return report
	}
	if item.Result != nil {
		report.ScanID = item.Result.ScanID
		report.ImageReference = item.Result.ImageReference
		report.MalwareDetected = item.Result.MalwareDetected()
		report.Findings = item.Result.Result.Verdict.Findings
		report.Malware = item.Result.Result.Malware
		report.Aborted = item.Result.Result.Aborted
	}
	return report
}

type jsonWriter struct {
	encoder *json.Encoder
}

func (w *jsonWriter) Write(item Item) error {
	return w.encoder.Encode(NewReport(item))
}

func (w *jsonWriter) Flush(summary Summary) error {
	return w.encoder.Encode(struct {
		Summary Summary `json:"summary"`
	}{Summary: summary})
}

type yamlWriter struct {
	out io.Writer
}

func (w *yamlWriter) Write(item Item) error {
	return w.document(NewReport(item))
}

func (w *yamlWriter) Flush(summary Summary) error {
	return w.document(struct {
		Summary Summary `json:"summary"`
	}{Summary: summary})
}

func (w *yamlWriter) document(v interface{}) error {
	data, err := yaml.Marshal(v)
	if err != nil {
		return err
	}
	if _, err = fmt.Fprintln(w.out, "---"); err != nil {
		return err
	}
	_, err = w.out.Write(data)
	return err
}

type tableWriter struct {
	tw            *tabwriter.Writer
	headerWritten bool
}

func newTableWriter(out io.Writer) *tableWriter {
	return &tableWriter{tw: tabwriter.NewWriter(out, 0, 8, 2, ' ', 0)}
}

func (w *tableWriter) Write(item Item) error {
	if !w.headerWritten {
		if _, err := fmt.Fprintln(w.tw, "COMPONENT\tRESOURCE\tIMAGE\tVERDICT\tFINDINGS\tABORTED"); err != nil {
			return err
		}
		w.headerWritten = true
	}
	componentName, resourceName := item.Identity.ComponentName, item.Identity.ResourceName
	if componentName == "" {
		componentName = "-"
	}
	if resourceName == "" {
		resourceName = "-"
	}
	if item.Err != nil || item.Result == nil {
		_, err := fmt.Fprintf(w.tw, "%s\t%s\t%s\t%s\t%d\t%d\n", componentName, resourceName, "-", verdictError, 0, 0)
		return err
	}
	verdict := verdictClean
	if item.Result.MalwareDetected() {
		verdict = verdictMalware
	}
	_, err := fmt.Fprintf(w.tw, "%s\t%s\t%s\t%s\t%d\t%d\n",
		componentName,
		resourceName,
		item.Result.ImageReference,
		verdict,
		len(item.Result.Result.Verdict.Findings),
		len(item.Result.Result.Aborted))
	return err
}

func (w *tableWriter) Flush(summary Summary) error {
	if err := w.tw.Flush(); err != nil {
		return err
	}
	out := w.tw
	_, err := fmt.Fprintf(out, "\nTotal: %d (clean: %d, malware: %d, aborted: %d, failed: %d)\n",
		summary.Total, summary.Clean, summary.Malware, summary.Aborted, summary.Failed)
	if err != nil {
		return err
	}
	return out.Flush()
}
