package heuristic

import (
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

// FuzzyColumn returns the option closest to term whose similarity ratio is at
// least cutoff. Comparison is case-insensitive; the original spelling of the
// option is returned. Ties keep the earlier option.
func FuzzyColumn(term string, options []string, cutoff float64) (string, bool) {
	if len(options) == 0 {
		return "", false
	}
	needle := strings.ToLower(term)
	best, bestScore := "", -1.0
	for _, option := range options {
		score := similarity(needle, strings.ToLower(option))
		if score >= cutoff && score > bestScore {
			best, bestScore = option, score
		}
	}
	return best, bestScore >= 0
}

// similarity is the SequenceMatcher ratio over characters.
func similarity(a, b string) float64 {
	return difflib.NewMatcher(strings.Split(a, ""), strings.Split(b, "")).Ratio()
}
