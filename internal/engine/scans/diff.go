package scans

import "sort"

// DiffFinding pairs a finding with the scanner that produced it.
type DiffFinding struct {
	ScannerKey string  `json:"scanner_key"`
	Finding    Finding `json:"finding"`
}

type Diff struct {
	NewIssues       []DiffFinding `json:"new_issues"`
	ResolvedIssues  []DiffFinding `json:"resolved_issues"`
	UnchangedIssues []DiffFinding `json:"unchanged_issues"`
}

// ComputeDiff compares two scans' findings by fingerprint. Informational
// findings are never diffed. The result is a pure function of the two input
// sets; each bucket is sorted by fingerprint so equal inputs always yield an
// identical diff regardless of finding order.
func ComputeDiff(current, previous Results) Diff {
	currentFPs := collectFingerprints(current)
	previousFPs := collectFingerprints(previous)

	diff := Diff{
		NewIssues:       []DiffFinding{},
		ResolvedIssues:  []DiffFinding{},
		UnchangedIssues: []DiffFinding{},
	}

	for fp, df := range currentFPs {
		if _, ok := previousFPs[fp]; ok {
			diff.UnchangedIssues = append(diff.UnchangedIssues, df)
		} else {
			diff.NewIssues = append(diff.NewIssues, df)
		}
	}
	for fp, df := range previousFPs {
		if _, ok := currentFPs[fp]; !ok {
			diff.ResolvedIssues = append(diff.ResolvedIssues, df)
		}
	}

	sortByFingerprint(diff.NewIssues)
	sortByFingerprint(diff.ResolvedIssues)
	sortByFingerprint(diff.UnchangedIssues)

	return diff
}

func collectFingerprints(results Results) map[string]DiffFinding {
	out := make(map[string]DiffFinding)
	for key, result := range results {
		for _, f := range result.Findings {
			if f.Severity == SeverityInfo {
				continue
			}
			out[Fingerprint(key, f)] = DiffFinding{ScannerKey: key, Finding: f}
		}
	}
	return out
}

func sortByFingerprint(findings []DiffFinding) {
	sort.Slice(findings, func(i, j int) bool {
		return Fingerprint(findings[i].ScannerKey, findings[i].Finding) <
			Fingerprint(findings[j].ScannerKey, findings[j].Finding)
	})
}
