package qc

import (
	"fmt"
	"regexp"
	"strings"
)

// DefaultOverlapThreshold is the minimum share of a claim's key terms that
// must appear in the corpus for the heuristic validator to mark it verified.
const DefaultOverlapThreshold = 0.30

var termSplitPattern = regexp.MustCompile(`[^a-z0-9]+`)

var stopwords = map[string]bool{
	"this": true, "that": true, "with": true, "from": true, "have": true,
	"were": true, "been": true, "their": true, "which": true, "will": true,
	"would": true, "there": true, "these": true, "than": true, "they": true,
	"about": true, "into": true, "over": true, "also": true, "more": true,
	"most": true, "such": true, "when": true, "where": true, "while": true,
}

// heuristicValidate approximates claim validation without an external
// service: a claim whose key terms overlap the corpus terms above the
// configured threshold counts as provisionally verified. The result always
// carries a warning so downstream consumers know the score is approximate.
func (c *Checker) heuristicValidate(claims []Claim, corpus string) Result {
	corpusTerms := keyTerms(corpus)

	result := Result{
		TotalCount:   len(claims),
		FallbackUsed: true,
	}
	for _, claim := range claims {
		terms := keyTerms(claim.Text)
		if overlapRatio(terms, corpusTerms) >= c.cfg.OverlapThreshold {
			result.VerifiedCount++
			continue
		}
		result.Issues = append(result.Issues, Issue{
			Severity:     SeverityWarning,
			Kind:         IssueUnverified,
			Location:     claim.Location,
			OriginalText: claim.Text,
			Explanation:  "claim terms have low overlap with the research corpus",
		})
	}

	result.AccuracyScore = accuracyScore(result.VerifiedCount, result.TotalCount)
	result.IsValid = result.AccuracyScore >= c.cfg.MinAccuracyScore
	result.Issues = append(result.Issues, Issue{
		Severity: SeverityWarning,
		Kind:     IssueUnverified,
		Location: "report",
		Explanation: fmt.Sprintf(
			"full claim validation was unavailable; scores come from key-term overlap at threshold %.2f",
			c.cfg.OverlapThreshold),
	})
	return result
}

// keyTerms lowercases, splits on non-alphanumerics, and keeps distinct words
// of four letters or more that are not stopwords.
func keyTerms(s string) map[string]bool {
	terms := make(map[string]bool)
	for _, word := range termSplitPattern.Split(strings.ToLower(s), -1) {
		if len(word) < 4 || stopwords[word] {
			continue
		}
		terms[word] = true
	}
	return terms
}

func overlapRatio(claim, corpus map[string]bool) float64 {
	if len(claim) == 0 {
		return 0
	}
	matched := 0
	for term := range claim {
		if corpus[term] {
			matched++
		}
	}
	return float64(matched) / float64(len(claim))
}
