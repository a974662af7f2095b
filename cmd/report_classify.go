package cmd

import "strings"

// classifyCategory infers the issue category from the description using
// keyword heuristics. Light keywords are checked first, then roadwork
// before blockage (e.g. "road closed for construction" = roadwork).
// Defaults to "broken_light" if nothing matches.
func classifyCategory(description string) string {
	lower := strings.ToLower(description)

	lightKeywords := []string{
		"light", "lamp", "lantern", "dark", "bulb", "streetlight",
		"flicker", "unlit",
	}
	for _, kw := range lightKeywords {
		if strings.Contains(lower, kw) {
			return "broken_light"
		}
	}

	roadworkKeywords := []string{
		"roadwork", "road work", "construction", "excavation", "digging",
		"resurfacing", "repaving", "pothole", "crane",
	}
	for _, kw := range roadworkKeywords {
		if strings.Contains(lower, kw) {
			return "roadwork"
		}
	}

	blockageKeywords := []string{
		"block", "obstacle", "obstruction", "fallen", "tree", "debris",
		"flood", "closed", "impassable",
	}
	for _, kw := range blockageKeywords {
		if strings.Contains(lower, kw) {
			return "blockage"
		}
	}

	return "broken_light"
}

// classifySeverity infers severity 1-5 from the description. Danger
// keywords are checked before nuisance keywords. Defaults to 2.
func classifySeverity(description string) int {
	lower := strings.ToLower(description)

	dangerKeywords := []string{
		"danger", "injury", "injured", "accident", "urgent", "emergency",
		"collapsed", "live wire", "gas",
	}
	for _, kw := range dangerKeywords {
		if strings.Contains(lower, kw) {
			return 5
		}
	}

	majorKeywords := []string{
		"completely", "impassable", "entire", "major", "closed",
	}
	for _, kw := range majorKeywords {
		if strings.Contains(lower, kw) {
			return 4
		}
	}

	minorKeywords := []string{
		"minor", "small", "slight", "cosmetic", "flicker",
	}
	for _, kw := range minorKeywords {
		if strings.Contains(lower, kw) {
			return 1
		}
	}

	return 2
}
