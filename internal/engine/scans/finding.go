// Package scans gives findings a stable identity and derives views from it:
// diffs between consecutive scans and dismissal-adjusted scores.
package scans

type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
	SeverityInfo     Severity = "info"
)

type Finding struct {
	ID             string   `json:"id,omitempty"`
	Title          string   `json:"title"`
	Severity       Severity `json:"severity"`
	Description    string   `json:"description,omitempty"`
	Recommendation string   `json:"recommendation,omitempty"`
}

// ScannerResult is one scanner's output within a scan.
type ScannerResult struct {
	Findings []Finding `json:"findings"`
}

// Results maps scanner key to that scanner's output.
type Results map[string]ScannerResult

// Fingerprint derives the identity of a finding. Two findings are the same
// issue iff their fingerprints are equal; diffing and dismissal matching both
// rely on exactly this contract.
func Fingerprint(scannerKey string, f Finding) string {
	id := f.ID
	if id == "" {
		id = f.Title
	}
	return scannerKey + "::" + id + "::" + string(f.Severity)
}

// IssueCounts is the severity breakdown of a scan, excluding informational
// findings.
type IssueCounts struct {
	Critical int `json:"critical"`
	High     int `json:"high"`
	Medium   int `json:"medium"`
	Low      int `json:"low"`
	Total    int `json:"total"`
}

func CountIssues(results Results) IssueCounts {
	var counts IssueCounts
	for _, result := range results {
		for _, f := range result.Findings {
			switch f.Severity {
			case SeverityCritical:
				counts.Critical++
			case SeverityHigh:
				counts.High++
			case SeverityMedium:
				counts.Medium++
			case SeverityLow:
				counts.Low++
			default:
				continue
			}
			counts.Total++
		}
	}
	return counts
}
