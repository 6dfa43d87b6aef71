package qc

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	numberPattern = regexp.MustCompile(`[0-9][0-9,.]*\s*%?`)

	// Strong factual predicates only count alongside a quantity or magnitude
	// word; "the market is competitive" alone is not checkable.
	strongVerbPattern = regexp.MustCompile(`(?i)\b(is|are|has|have|was|were)\b`)

	magnitudePattern = regexp.MustCompile(`(?i)\b(million|billion|thousand|percent|percentage|majority|most|all|none|half|double|triple|quarter|significant|significantly|increase|increased|decrease|decreased|grew|growth|decline|declined|higher|lower|largest|smallest|fastest|slowest)\b`)

	// A table separator row like |---|---|---| contains only pipes, dashes,
	// colons and whitespace and must never be flagged as a claim.
	tableSeparatorPattern = regexp.MustCompile(`^[\s|:\-]+$`)

	sentenceSplitPattern = regexp.MustCompile(`[.!?](?:\s+|$)`)
)

// ExtractClaims pulls verifiable statements out of generated text: sentence
// units and table rows containing a number/percentage or a strong factual
// verb paired with a magnitude word. Exact-text repeats are deduplicated.
func ExtractClaims(text string) []Claim {
	var claims []Claim
	seen := make(map[string]bool)

	add := func(candidate, location string) {
		candidate = strings.TrimSpace(candidate)
		if len(candidate) < 8 || seen[candidate] {
			return
		}
		if !isCheckable(candidate) {
			return
		}
		seen[candidate] = true
		claims = append(claims, Claim{
			Text:         candidate,
			Location:     location,
			Quantitative: numberPattern.MatchString(candidate),
		})
	}

	sentenceIdx := 0
	for lineIdx, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}

		if strings.HasPrefix(trimmed, "|") {
			if tableSeparatorPattern.MatchString(trimmed) {
				continue
			}
			add(trimmed, fmt.Sprintf("table row %d", lineIdx+1))
			continue
		}

		for _, sentence := range sentenceSplitPattern.Split(trimmed, -1) {
			if strings.TrimSpace(sentence) == "" {
				continue
			}
			sentenceIdx++
			add(sentence, fmt.Sprintf("sentence %d", sentenceIdx))
		}
	}

	return claims
}

func isCheckable(s string) bool {
	if tableSeparatorPattern.MatchString(s) {
		return false
	}
	if numberPattern.MatchString(s) {
		return true
	}
	return strongVerbPattern.MatchString(s) && magnitudePattern.MatchString(s)
}
