package verify

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/synthpanel/orchestrator/internal/metrics"
	"github.com/synthpanel/orchestrator/internal/telemetry"
)

// MergeResult is the verified corpus plus which verifiers contributed.
type MergeResult struct {
	Corpus       string
	Contributors []string
}

// Merger runs two independent verification passes concurrently and combines
// their outputs. Either verifier may fail without blocking the pipeline; if
// both fail the original corpus passes through unchanged.
type Merger struct {
	primary   Verifier
	secondary Verifier
	reporter  telemetry.Reporter
	logger    *zap.Logger
}

func NewMerger(primary, secondary Verifier, reporter telemetry.Reporter, logger *zap.Logger) *Merger {
	return &Merger{primary: primary, secondary: secondary, reporter: reporter, logger: logger}
}

type verifierOutcome struct {
	name   string
	output string
	err    error
}

// Merge launches both verifiers concurrently and collects both results with
// settle-all semantics: one verifier's rejection never cancels or delays the
// other. The merge is deterministic given which verifiers succeeded.
func (m *Merger) Merge(ctx context.Context, corpus string, vctx Context) MergeResult {
	if corpus == "" {
		return MergeResult{Corpus: corpus}
	}

	run := func(v Verifier, ch chan<- verifierOutcome) {
		if v == nil {
			ch <- verifierOutcome{err: context.Canceled}
			return
		}
		out, err := v.Verify(ctx, corpus, vctx)
		ch <- verifierOutcome{name: v.Name(), output: out, err: err}
	}

	primaryCh := make(chan verifierOutcome, 1)
	secondaryCh := make(chan verifierOutcome, 1)
	go run(m.primary, primaryCh)
	go run(m.secondary, secondaryCh)

	outcomes := make([]verifierOutcome, 0, 2)
	for i := 0; i < 2; i++ {
		select {
		case out := <-primaryCh:
			primaryCh = nil
			outcomes = append(outcomes, out)
		case out := <-secondaryCh:
			secondaryCh = nil
			outcomes = append(outcomes, out)
		}
	}

	var primaryOut, secondaryOut string
	var contributors []string
	for _, out := range outcomes {
		if out.err != nil {
			if out.name != "" {
				metrics.VerifierResults.WithLabelValues(out.name, "failure").Inc()
				m.logger.Warn("Verifier failed", zap.String("verifier", out.name), zap.Error(out.err))
			}
			continue
		}
		if strings.TrimSpace(out.output) == "" {
			metrics.VerifierResults.WithLabelValues(out.name, "empty").Inc()
			continue
		}
		metrics.VerifierResults.WithLabelValues(out.name, "success").Inc()
		contributors = append(contributors, out.name)
		if m.primary != nil && out.name == m.primary.Name() {
			primaryOut = out.output
		} else {
			secondaryOut = out.output
		}
	}

	merged := mergeOutputs(corpus, primaryOut, secondaryOut)

	telemetry.Emit(m.reporter, telemetry.Event{
		Kind:    telemetry.KindVerifierMerge,
		Message: "verified corpus merged",
		Fields:  map[string]interface{}{"contributors": contributors},
	})
	m.logger.Info("Verification merge complete",
		zap.Strings("contributors", contributors),
		zap.Int("corpus_length", len(merged)),
	)

	return MergeResult{Corpus: merged, Contributors: contributors}
}

// mergeOutputs layers verifier outputs over the original corpus:
// both succeeded -> primary output plus the secondary's non-redundant
// paragraphs; exactly one -> its output; none -> the original, untouched.
func mergeOutputs(original, primary, secondary string) string {
	switch {
	case primary != "" && secondary != "":
		return appendNonRedundant(primary, secondary)
	case primary != "":
		return primary
	case secondary != "":
		return secondary
	default:
		return original
	}
}

// appendNonRedundant appends paragraphs from extra that base does not already
// contain, preserving extra's order.
func appendNonRedundant(base, extra string) string {
	seen := make(map[string]bool)
	for _, p := range strings.Split(base, "\n\n") {
		seen[normalizeParagraph(p)] = true
	}

	var sb strings.Builder
	sb.WriteString(base)
	for _, p := range strings.Split(extra, "\n\n") {
		key := normalizeParagraph(p)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		sb.WriteString("\n\n")
		sb.WriteString(strings.TrimSpace(p))
	}
	return sb.String()
}

func normalizeParagraph(p string) string {
	return strings.ToLower(strings.Join(strings.Fields(p), " "))
}
