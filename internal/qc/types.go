package qc

// Severity grades a quality-control issue.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// IssueKind names what went wrong with a claim.
type IssueKind string

const (
	IssueHallucination     IssueKind = "hallucination"
	IssueUnverified        IssueKind = "unverified"
	IssueStatisticMismatch IssueKind = "statistic-mismatch"
	IssueSourceMissing     IssueKind = "source-missing"
	IssueInconsistency     IssueKind = "inconsistency"
)

// Issue is a single finding against the generated report.
type Issue struct {
	Severity     Severity  `json:"severity"`
	Kind         IssueKind `json:"kind"`
	Location     string    `json:"location"`
	OriginalText string    `json:"original_text"`
	Explanation  string    `json:"explanation"`
	SuggestedFix string    `json:"suggested_fix,omitempty"`
}

// Claim is a span of generated text carrying a checkable assertion.
type Claim struct {
	Text         string `json:"text"`
	Location     string `json:"location"`
	Quantitative bool   `json:"quantitative"`
}

// Context carries report metadata for validation prompts.
type Context struct {
	Domain   string   `json:"domain"`
	Audience []string `json:"audience,omitempty"`
}

// Result is the outcome of one quality-control pass. It is computed once per
// generated report and immutable afterwards.
type Result struct {
	IsValid       bool    `json:"is_valid"`
	Issues        []Issue `json:"issues"`
	VerifiedCount int     `json:"verified_count"`
	TotalCount    int     `json:"total_count"`
	AccuracyScore int     `json:"accuracy_score"`
	Corrections   string  `json:"corrections,omitempty"`
	// FallbackUsed marks results produced by the heuristic validator after
	// every full validation attempt failed.
	FallbackUsed bool `json:"fallback_used,omitempty"`
}

// ErrorCount returns the number of error-severity issues.
func (r *Result) ErrorCount() int {
	count := 0
	for _, issue := range r.Issues {
		if issue.Severity == SeverityError {
			count++
		}
	}
	return count
}
