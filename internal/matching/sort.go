package matching

import "sort"

// sortResults orders results deterministically: eligible before ineligible;
// eligible by score descending; ties and ineligible results by lender name,
// policy name, then policy id.
func sortResults(results []Result) {
	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.Eligible != b.Eligible {
			return a.Eligible
		}
		if a.Eligible && a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.LenderName != b.LenderName {
			return a.LenderName < b.LenderName
		}
		if a.PolicyName != b.PolicyName {
			return a.PolicyName < b.PolicyName
		}
		return a.PolicyID < b.PolicyID
	})
}
