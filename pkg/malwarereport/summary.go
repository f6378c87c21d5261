package malwarereport

// Summary counts the items of one scan batch. A resource with aborted units
// is counted both as aborted and as clean or malware.
type Summary struct {
	Total   int `json:"total"`
	Clean   int `json:"clean"`
	Malware int `json:"malware"`
	Aborted int `json:"aborted"`
	Failed  int `json:"failed"`
}

// Add accounts for one item.
func (s *Summary) Add(item Item) {
	s.Total++
	switch {
	case item.Failed() || item.Result == nil:
		s.Failed++
		return
	case item.Result.MalwareDetected():
		s.Malware++
	default:
		s.Clean++
	}
	if len(item.Result.Result.Aborted) > 0 {
		s.Aborted++
	}
}

// Healthy returns true if no malware was found and no resource failed.
func (s Summary) Healthy() bool {
	return s.Malware == 0 && s.Failed == 0
}
