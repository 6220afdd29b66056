package metadata

import (
	"strings"
	"unicode"
)

// Match is a search hit scored against the query that produced it.
type Match struct {
	Hit        MinimalMetadata
	Distance   int
	Confidence float64 // 0.0 to 1.0, higher is better
}

// RankHits scores hits by how closely their titles match query, closest
// first. Hits with equal distance keep the provider's order.
func RankHits(query string, hits []MinimalMetadata) []Match {
	q := normalizeTitle(query)
	out := make([]Match, 0, len(hits))
	for _, h := range hits {
		t := normalizeTitle(h.Title)
		d := levenshtein(q, t)
		m := Match{Hit: h, Distance: d}
		if n := max(len([]rune(q)), len([]rune(t))); n > 0 {
			m.Confidence = 1.0 - float64(d)/float64(n)
		}
		out = append(out, m)
	}

	// insertion sort keeps equal distances stable
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].Distance < out[j-1].Distance; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

// levenshtein computes the edit distance between two strings, by rune.
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
			cost := 0
			if ra[i-1] != rb[j-1] {
				cost = 1
			}
			curr[j] = min(
				prev[j]+1,      // deletion
				curr[j-1]+1,    // insertion
				prev[j-1]+cost, // substitution
			)
		}
		prev, curr = curr, prev
	}

	return prev[len(rb)]
}

// normalizeTitle lowercases s and drops everything but letters and digits.
func normalizeTitle(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
