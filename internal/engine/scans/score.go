package scans

import "math"

var severityPenalty = map[Severity]float64{
	SeverityCritical: 15,
	SeverityHigh:     8,
	SeverityMedium:   4,
	SeverityLow:      1.5,
	SeverityInfo:     0,
}

// AdjustedScore computes the 0-100 risk score for a scan, skipping findings
// whose fingerprints the user has dismissed. No undismissed findings means a
// perfect 100; otherwise the score decays exponentially with the summed
// penalty and never drops below 5, the irreducible residual-risk floor.
func AdjustedScore(results Results, dismissed map[string]struct{}) int {
	var penalty float64
	for key, result := range results {
		for _, f := range result.Findings {
			if _, ok := dismissed[Fingerprint(key, f)]; ok {
				continue
			}
			penalty += severityPenalty[f.Severity]
		}
	}

	if penalty == 0 {
		return 100
	}

	score := int(math.Round(100 * math.Exp(-penalty/120)))
	if score < 5 {
		return 5
	}
	if score > 100 {
		return 100
	}
	return score
}
