package scan

import (
	"iter"

	"github.com/aquasecurity/layerscan/pkg/clamav"
)

// ImageScanResult is the aggregated verdict of all content units of an image.
type ImageScanResult struct {
	ImageReference string         `json:"imageReference"`
	Name           string         `json:"name"`
	Verdict        clamav.Verdict `json:"verdict"`
	Malware        []UnitOutcome  `json:"malware,omitempty"`
	Aborted        []UnitOutcome  `json:"aborted,omitempty"`
}

// MalwareDetected returns true if any content unit was found malicious.
func (r ImageScanResult) MalwareDetected() bool {
	return r.Verdict.MalwareDetected()
}

// Aggregate consumes the outcomes of one image. Only malware-detected units
// contribute findings to the verdict; aborted units are kept as diagnostics.
// The first error stops aggregation and is returned.
func Aggregate(imageRef, name string, outcomes iter.Seq2[UnitOutcome, error]) (ImageScanResult, error) {
	result := ImageScanResult{
		ImageReference: imageRef,
		Name:           name,
	}
	for outcome, err := range outcomes {
		if err != nil {
			return ImageScanResult{}, err
		}
		switch {
		case outcome.Kind == Aborted:
			result.Aborted = append(result.Aborted, outcome)
		case outcome.MalwareDetected():
			result.Malware = append(result.Malware, outcome)
			result.Verdict.Findings = append(result.Verdict.Findings, outcome.Verdict.Findings...)
		}
	}
	return result, nil
}
