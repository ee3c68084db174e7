// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/AleutianAI/GroundCheck/services/llm"
	"github.com/AleutianAI/GroundCheck/services/orchestrator/datatypes"
)

// =============================================================================
// Revision Gates
// =============================================================================

const (
	// CoverageThreshold is the evidence coverage a ledger must reach to pass.
	CoverageThreshold = 0.85

	// RelaxedCoverageThreshold applies once the session has already burned
	// two or more revision cycles; at that point demanding full coverage
	// would loop the writer on evidence the corpus does not contain.
	RelaxedCoverageThreshold = 0.70

	// RelaxationCycle is the revision cycle at which the relaxed threshold
	// takes over.
	RelaxationCycle = 2

	// NotFoundGate fails a ledger when more than this fraction of all claims
	// found no evidence at all.
	NotFoundGate = 0.05

	// MaxRevisionCycles bounds how many times the writer may be sent back.
	MaxRevisionCycles = 2
)

// coverageThresholdFor returns the coverage bar for the given revision cycle.
func coverageThresholdFor(cycle int) float64 {
	if cycle >= RelaxationCycle {
		return RelaxedCoverageThreshold
	}
	return CoverageThreshold
}

// GateResult is the outcome of running the revision gates over a ledger.
type GateResult struct {
	Passed  bool
	Reasons []string
}

// EvaluateGates runs the deterministic revision gates over an adjudicated
// ledger. The gates, not the judge model's own revisionNeeded opinion, decide
// whether a draft goes back to the writer:
//
//   - evidence coverage below the (cycle-dependent) threshold
//   - any critical claim contradicted by the corpus
//   - more than NotFoundGate of all claims with no evidence located
//
// A fail-soft ledger from an unparseable judge response always passes: there
// is nothing actionable to revise against.
func EvaluateGates(l *datatypes.EvidenceLedger, cycle int) GateResult {
	if l.ParseFailed {
		return GateResult{Passed: true}
	}

	var reasons []string
	threshold := coverageThresholdFor(cycle)
	if l.Summary.EvidenceCoverage < threshold {
		reasons = append(reasons, fmt.Sprintf(
			"evidence coverage %.2f is below the %.2f threshold",
			l.Summary.EvidenceCoverage, threshold))
	}
	if l.HasCriticalContradiction() {
		reasons = append(reasons, "a critical claim is contradicted by the corpus")
	}
	if frac := l.NotFoundFraction(); frac > NotFoundGate {
		reasons = append(reasons, fmt.Sprintf(
			"%.0f%% of claims found no evidence (limit %.0f%%)",
			frac*100, NotFoundGate*100))
	}
	return GateResult{Passed: len(reasons) == 0, Reasons: reasons}
}

// ApplyTerminationFlags annotates a ledger that is terminating while gates
// still fail, so the caller can see why the answer shipped anyway.
func ApplyTerminationFlags(l *datatypes.EvidenceLedger, cycle int) {
	if l.HasCriticalContradiction() {
		l.RiskFlags = append(l.RiskFlags, datatypes.RiskFlag{
			Code:     datatypes.RiskFlagUnresolvedContradiction,
			Severity: datatypes.RiskHigh,
			Detail:   "revision budget exhausted with a critical claim still contradicted",
		})
	}
	if l.Summary.EvidenceCoverage < coverageThresholdFor(cycle) {
		l.RiskFlags = append(l.RiskFlags, datatypes.RiskFlag{
			Code:     datatypes.RiskFlagLowCoverage,
			Severity: datatypes.RiskMedium,
			Detail: fmt.Sprintf("terminated at %.2f evidence coverage",
				l.Summary.EvidenceCoverage),
		})
	}
}

// =============================================================================
// Judge
// =============================================================================

// Judge is the final authority on the Evidence Ledger.
//
// # Description
//
// The judge model re-derives every verdict from the context passages; the
// skeptic's report is input, never precedent. The model's output is parsed
// defensively: an unparseable response produces the fail-soft empty ledger
// (parse_error risk flag, no revision) instead of an error, because a judge
// that cannot be parsed must terminate the session, not crash it. Backend
// transport failures do surface as errors.
type Judge struct {
	client  llm.LLMClient
	prompts *PromptStore
	params  llm.GenerationParams
}

// NewJudge constructs a Judge over the given backend.
func NewJudge(client llm.LLMClient, prompts *PromptStore) *Judge {
	temp := float32(0.0)
	maxTokens := 8192
	return &Judge{
		client:  client,
		prompts: prompts,
		params:  llm.GenerationParams{Temperature: &temp, MaxTokens: &maxTokens},
	}
}

// Adjudicate produces the Evidence Ledger for one draft. The returned
// ledger's summary is always recomputed locally; the revision decision is
// overwritten by the gates.
func (j *Judge) Adjudicate(ctx context.Context, query, draft string,
	chunks []datatypes.ScoredChunk, report *SkepticReport, cycle int) (*datatypes.EvidenceLedger, error) {

	var b strings.Builder
	b.WriteString("## Question\n")
	b.WriteString(query)
	b.WriteString("\n\n## Context Passages\n")
	b.WriteString(FormatContext(chunks))
	b.WriteString("\n\n## Draft\n")
	b.WriteString(draft)
	b.WriteString("\n\n## Skeptic Report (advisory)\n")
	b.WriteString(report.Digest())

	messages := []datatypes.Message{
		{Role: "system", Content: j.prompts.Get().Judge},
		{Role: "user", Content: b.String()},
	}
	raw, err := j.client.Chat(ctx, messages, j.params)
	if err != nil {
		return nil, fmt.Errorf("judge adjudication failed: %w", err)
	}

	ledger, parseErr := datatypes.ParseEvidenceLedger(raw)
	if parseErr != nil {
		slog.Error("Judge output was not a parseable ledger, failing soft",
			"error", parseErr, "response_length", len(raw))
		return datatypes.EmptyLedger(parseErr.Error()), nil
	}

	gates := EvaluateGates(ledger, cycle)
	ledger.RevisionNeeded = !gates.Passed
	if ledger.RevisionNeeded && ledger.RevisionInstructions == "" {
		// The model passed its own review but the gates did not; synthesize
		// instructions from the gate reasons so the writer has a target.
		ledger.RevisionInstructions = "Address the following: " + strings.Join(gates.Reasons, "; ")
	}
	if !gates.Passed {
		slog.Info("Revision gates failed", "cycle", cycle, "reasons", gates.Reasons)
	}
	return ledger, nil
}
