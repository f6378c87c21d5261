package clamav

import (
	"fmt"
	"strings"
)

// Status is the raw scan result reported by the scan service.
type Status string

const (
	StatusOK    Status = "OK"
	StatusFound Status = "FOUND"
	StatusError Status = "ERROR"
)

// Verdict is the outcome of scanning one unit of content.
//
// A Verdict is malware-detected iff it carries at least one finding.
type Verdict struct {
	Findings []string `json:"findings,omitempty"`
	Meta     ScanMeta `json:"meta"`
}

// MalwareDetected returns true if the verdict carries any finding.
func (v Verdict) MalwareDetected() bool {
	return len(v.Findings) > 0
}

// ScanMeta describes how much content was scanned and for how long.
type ScanMeta struct {
	ScannedOctets       int64   `json:"scanned_octets"`
	ScanDurationSeconds float64 `json:"scan_duration_seconds"`
}

// ScanResponse is the JSON document returned by the scan endpoints.
type ScanResponse struct {
	Result   Status   `json:"result"`
	Message  string   `json:"message,omitempty"`
	Name     string   `json:"name,omitempty"`
	Findings []string `json:"findings,omitempty"`
	Meta     ScanMeta `json:"meta"`
}

// Verdict converts the response into a Verdict. A FOUND response without
// explicit findings gets one synthesized from the signature and file name.
func (r ScanResponse) Verdict() (Verdict, error) {
	switch r.Result {
	case StatusOK:
		return Verdict{Meta: r.Meta}, nil
	case StatusFound:
		findings := r.Findings
		if len(findings) == 0 {
			findings = []string{r.finding()}
		}
		return Verdict{Findings: findings, Meta: r.Meta}, nil
	default:
		return Verdict{}, fmt.Errorf("unexpected scan result %q: %s", r.Result, r.Message)
	}
}

func (r ScanResponse) finding() string {
	signature := strings.TrimSpace(r.Message)
	if signature == "" {
		signature = "malware"
	}
	if r.Name == "" {
		return fmt.Sprintf("%s found", signature)
	}
	return fmt.Sprintf("%s found in file %s", signature, r.Name)
}

// Info describes the scanning engine and its signature database.
type Info struct {
	ClamAVVersion    string `json:"clamav_version"`
	SignatureVersion int    `json:"signature_version"`
	SignatureDate    string `json:"signature_date"`
}

// Health is the readiness state of the scan service.
type Health struct {
	OK      bool   `json:"ok"`
	Message string `json:"message,omitempty"`
}

// MonitoringInfo holds runtime statistics of the scan service.
type MonitoringInfo struct {
	State       string  `json:"state"`
	Threads     Threads `json:"threads"`
	QueueLength int     `json:"queue_length"`
	MemoryMB    float64 `json:"memory_mb"`
}

type Threads struct {
	Live int `json:"live"`
	Idle int `json:"idle"`
	Max  int `json:"max"`
}
