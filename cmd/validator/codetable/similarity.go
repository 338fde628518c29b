// similarity.go
package codetable

import (
	"strings"
)

// similarity scores how close candidate is to value on a 0-1 scale.
// Containment of one string in the other (case-folded) and normalized
// edit distance both contribute; the better of the two wins.
func similarity(value, candidate string) float64 {
	if value == candidate {
		return 1.0
	}
	if value == "" || candidate == "" {
		return 0.0
	}

	containment := containmentScore(strings.ToUpper(value), strings.ToUpper(candidate))

	longest := len(value)
	if len(candidate) > longest {
		longest = len(candidate)
	}
	edit := 1.0 - float64(levenshtein(value, candidate))/float64(longest)

	if containment > edit {
		return containment
	}
	return edit
}

// containmentScore rewards exact substring containment, scaled by how
// much of the longer string the shorter one covers.
func containmentScore(a, b string) float64 {
	shorter, longer := a, b
	if len(shorter) > len(longer) {
		shorter, longer = longer, shorter
	}
	if strings.Contains(longer, shorter) {
		return float64(len(shorter)) / float64(len(longer))
	}
	return 0.0
}

// levenshtein computes the edit distance between two strings using the
// two-row dynamic programming form.
func levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}

	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min3(curr[j-1]+1, prev[j]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}

	return prev[len(rb)]
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}
