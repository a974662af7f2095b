// Package severity maps numeric issue severities to display tiers.
package severity

// Tier is the display tier of an issue severity.
type Tier string

const (
	TierMinor    Tier = "minor"
	TierModerate Tier = "moderate"
	TierSevere   Tier = "severe"
)

// Classify maps a severity value to its tier. Severities are nominally
// 1-5; the mapping is total over integers and open-ended above 5.
func Classify(severity int) Tier {
	switch {
	case severity >= 4:
		return TierSevere
	case severity >= 2:
		return TierModerate
	default:
		return TierMinor
	}
}
