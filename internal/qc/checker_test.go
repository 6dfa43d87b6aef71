package qc

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/synthpanel/orchestrator/internal/config"
)

type fakeValidationClient struct {
	validateCalls [][]Claim
	rewriteCalls  int
	validate      func(claims []Claim) ([]ClaimVerdict, error)
	rewrite       func() (string, error)
}

func (f *fakeValidationClient) ValidateBatch(_ context.Context, claims []Claim, _ string, _ Context) ([]ClaimVerdict, error) {
	f.validateCalls = append(f.validateCalls, claims)
	return f.validate(claims)
}

func (f *fakeValidationClient) Rewrite(context.Context, string, string, []Issue) (string, error) {
	f.rewriteCalls++
	if f.rewrite == nil {
		return "", errors.New("rewrite not configured")
	}
	return f.rewrite()
}

func testQCConfig() config.QCConfig {
	return config.QCConfig{
		BatchSize:           20,
		MinAccuracyScore:    90,
		CorrectionThreshold: 85,
		OverlapThreshold:    0.30,
		MaxRetries:          3,
		RetryBaseDelay:      time.Millisecond,
	}
}

func allSupported(claims []Claim) ([]ClaimVerdict, error) {
	verdicts := make([]ClaimVerdict, len(claims))
	for i, c := range claims {
		verdicts[i] = ClaimVerdict{Claim: c.Text, Supported: true}
	}
	return verdicts, nil
}

func TestQualityControlNoClaimsSkipsValidation(t *testing.T) {
	client := &fakeValidationClient{validate: allSupported}
	checker := NewChecker(client, testQCConfig(), nil, zaptest.NewLogger(t))

	res := checker.PerformQualityControl(context.Background(), "Just a short note without facts to check, purely descriptive prose.", "corpus", Context{})

	assert.True(t, res.IsValid)
	assert.Equal(t, 100, res.AccuracyScore)
	assert.Zero(t, res.TotalCount)
	assert.Empty(t, client.validateCalls, "no claims means no validation call")
}

func TestQualityControlAllVerified(t *testing.T) {
	client := &fakeValidationClient{validate: allSupported}
	checker := NewChecker(client, testQCConfig(), nil, zaptest.NewLogger(t))

	res := checker.PerformQualityControl(context.Background(),
		"Revenue grew 40% in 2024. Headcount grew 8% in 2024.",
		"corpus", Context{Domain: "retail"})

	assert.True(t, res.IsValid)
	assert.Equal(t, 100, res.AccuracyScore)
	assert.Equal(t, 2, res.VerifiedCount)
	assert.Equal(t, 2, res.TotalCount)
	assert.Empty(t, res.Issues)
	assert.False(t, res.FallbackUsed)
}

func TestQualityControlBatchSequencing(t *testing.T) {
	cfg := testQCConfig()
	cfg.BatchSize = 2
	client := &fakeValidationClient{validate: allSupported}
	checker := NewChecker(client, cfg, nil, zaptest.NewLogger(t))

	report := "Revenue grew 10% in Q1. Revenue grew 11% in Q2. Revenue grew 12% in Q3. Revenue grew 13% in Q4. Revenue grew 14% in 2025."
	res := checker.PerformQualityControl(context.Background(), report, "corpus", Context{})

	assert.Equal(t, 5, res.TotalCount)
	require.Len(t, client.validateCalls, 3)
	assert.Len(t, client.validateCalls[0], 2)
	assert.Len(t, client.validateCalls[1], 2)
	assert.Len(t, client.validateCalls[2], 1)
}

func TestQualityControlHallucinationInvalidates(t *testing.T) {
	client := &fakeValidationClient{
		validate: func(claims []Claim) ([]ClaimVerdict, error) {
			verdicts := make([]ClaimVerdict, len(claims))
			for i, c := range claims {
				verdicts[i] = ClaimVerdict{Claim: c.Text, Supported: i > 0, Fabricated: i == 0}
			}
			return verdicts, nil
		},
	}
	cfg := testQCConfig()
	cfg.CorrectionThreshold = 40 // below the resulting accuracy, so no rewrite
	checker := NewChecker(client, cfg, nil, zaptest.NewLogger(t))

	res := checker.PerformQualityControl(context.Background(),
		"Revenue grew 40% in 2024. Headcount grew 8% in 2024.",
		"corpus", Context{})

	assert.False(t, res.IsValid)
	require.Len(t, res.Issues, 1)
	assert.Equal(t, SeverityError, res.Issues[0].Severity)
	assert.Equal(t, IssueHallucination, res.Issues[0].Kind)
	assert.Equal(t, 50, res.AccuracyScore)
}

func TestQualityControlUnverifiedIsWarning(t *testing.T) {
	client := &fakeValidationClient{
		validate: func(claims []Claim) ([]ClaimVerdict, error) {
			verdicts := make([]ClaimVerdict, len(claims))
			for i, c := range claims {
				verdicts[i] = ClaimVerdict{Claim: c.Text, Supported: false}
			}
			return verdicts, nil
		},
	}
	checker := NewChecker(client, testQCConfig(), nil, zaptest.NewLogger(t))

	res := checker.PerformQualityControl(context.Background(), "Revenue grew 40% in 2024.", "corpus", Context{})

	require.Len(t, res.Issues, 1)
	assert.Equal(t, SeverityWarning, res.Issues[0].Severity)
	assert.Equal(t, IssueUnverified, res.Issues[0].Kind)
	assert.Zero(t, res.ErrorCount())
	// Low accuracy alone still invalidates.
	assert.False(t, res.IsValid)
}

func TestQualityControlCorrectionRequested(t *testing.T) {
	client := &fakeValidationClient{
		validate: func(claims []Claim) ([]ClaimVerdict, error) {
			verdicts := make([]ClaimVerdict, len(claims))
			for i, c := range claims {
				verdicts[i] = ClaimVerdict{Claim: c.Text, Fabricated: true}
			}
			return verdicts, nil
		},
		rewrite: func() (string, error) { return "corrected report text", nil },
	}
	checker := NewChecker(client, testQCConfig(), nil, zaptest.NewLogger(t))

	res := checker.PerformQualityControl(context.Background(), "Revenue grew 40% in 2024.", "corpus", Context{})

	assert.Equal(t, 1, client.rewriteCalls)
	assert.Equal(t, "corrected report text", res.Corrections)
	assert.False(t, res.IsValid)
}

func TestQualityControlRewriteFailureSwallowed(t *testing.T) {
	client := &fakeValidationClient{
		validate: func(claims []Claim) ([]ClaimVerdict, error) {
			verdicts := make([]ClaimVerdict, len(claims))
			for i, c := range claims {
				verdicts[i] = ClaimVerdict{Claim: c.Text, Fabricated: true}
			}
			return verdicts, nil
		},
		rewrite: func() (string, error) { return "", errors.New("rewrite service down") },
	}
	checker := NewChecker(client, testQCConfig(), nil, zaptest.NewLogger(t))

	res := checker.PerformQualityControl(context.Background(), "Revenue grew 40% in 2024.", "corpus", Context{})

	assert.Empty(t, res.Corrections)
	assert.Equal(t, 1, res.TotalCount, "scored result survives the rewrite failure")
}

func TestQualityControlRetriesThenHeuristicFallback(t *testing.T) {
	client := &fakeValidationClient{
		validate: func([]Claim) ([]ClaimVerdict, error) {
			return nil, errors.New("validation service unreachable")
		},
	}
	checker := NewChecker(client, testQCConfig(), nil, zaptest.NewLogger(t))

	corpus := "Annual revenue grew 40% during 2024 according to filings."
	res := checker.PerformQualityControl(context.Background(), "Revenue grew 40% in 2024.", corpus, Context{})

	assert.Len(t, client.validateCalls, 3, "every retry attempt exhausted")
	assert.True(t, res.FallbackUsed)
	assert.Equal(t, 1, res.VerifiedCount, "overlapping claim provisionally verified")
	// The fallback always flags itself.
	require.NotEmpty(t, res.Issues)
	last := res.Issues[len(res.Issues)-1]
	assert.Equal(t, SeverityWarning, last.Severity)
	assert.Contains(t, last.Explanation, "overlap")
}

func TestQualityControlHeuristicLowOverlap(t *testing.T) {
	client := &fakeValidationClient{
		validate: func([]Claim) ([]ClaimVerdict, error) {
			return nil, errors.New("validation service unreachable")
		},
	}
	checker := NewChecker(client, testQCConfig(), nil, zaptest.NewLogger(t))

	res := checker.PerformQualityControl(context.Background(),
		"Quarterly subscription churn decreased 15% worldwide.",
		"The weather in coastal regions stayed unusually warm.", Context{})

	assert.True(t, res.FallbackUsed)
	assert.Zero(t, res.VerifiedCount)
	assert.False(t, res.IsValid)
}

func TestKeyTermsFiltering(t *testing.T) {
	terms := keyTerms("The revenue from EMEA grew to $4.2M, which was significant!")

	assert.True(t, terms["revenue"])
	assert.True(t, terms["emea"])
	assert.True(t, terms["significant"])
	assert.False(t, terms["the"], "short words dropped")
	assert.False(t, terms["which"], "stopwords dropped")
}
