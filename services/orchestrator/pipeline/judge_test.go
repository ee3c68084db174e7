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
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/GroundCheck/services/orchestrator/datatypes"
)

// =============================================================================
// Gate Tests
// =============================================================================

func ledgerWith(claims ...datatypes.AdjudicatedClaim) *datatypes.EvidenceLedger {
	l := &datatypes.EvidenceLedger{Claims: claims}
	l.RecomputeCoverage()
	return l
}

func supported(importance datatypes.Importance) datatypes.AdjudicatedClaim {
	return datatypes.AdjudicatedClaim{
		Text: "c", Importance: importance, Verdict: datatypes.VerdictSupported,
	}
}

func TestEvaluateGates_AllSupported_Passes(t *testing.T) {
	l := ledgerWith(
		supported(datatypes.ImportanceCritical),
		supported(datatypes.ImportanceMaterial),
	)

	result := EvaluateGates(l, 0)

	assert.True(t, result.Passed)
	assert.Empty(t, result.Reasons)
}

func TestEvaluateGates_LowCoverage_Fails(t *testing.T) {
	// 3 of 4 covered claims supported: coverage 0.75 < 0.85.
	l := ledgerWith(
		supported(datatypes.ImportanceCritical),
		supported(datatypes.ImportanceMaterial),
		supported(datatypes.ImportanceMaterial),
		datatypes.AdjudicatedClaim{
			Text: "c", Importance: datatypes.ImportanceMaterial,
			Verdict: datatypes.VerdictContradicted,
		},
	)

	result := EvaluateGates(l, 0)

	require.False(t, result.Passed)
	assert.Contains(t, result.Reasons[0], "coverage")
}

func TestEvaluateGates_RelaxedThresholdAtCycleTwo(t *testing.T) {
	// Coverage 0.75 fails the 0.85 bar but passes the relaxed 0.70 bar.
	// The contradicted claim must be material, not critical, or the
	// contradiction gate fires regardless of cycle.
	l := ledgerWith(
		supported(datatypes.ImportanceMaterial),
		supported(datatypes.ImportanceMaterial),
		supported(datatypes.ImportanceMaterial),
		datatypes.AdjudicatedClaim{
			Text: "c", Importance: datatypes.ImportanceMaterial,
			Verdict: datatypes.VerdictContradicted,
		},
	)

	assert.False(t, EvaluateGates(l, 1).Passed)
	assert.True(t, EvaluateGates(l, RelaxationCycle).Passed)
}

func TestEvaluateGates_CriticalContradiction_FailsEveryCycle(t *testing.T) {
	claims := make([]datatypes.AdjudicatedClaim, 0, 20)
	for i := 0; i < 19; i++ {
		claims = append(claims, supported(datatypes.ImportanceMaterial))
	}
	claims = append(claims, datatypes.AdjudicatedClaim{
		Text: "critical one", Importance: datatypes.ImportanceCritical,
		Verdict: datatypes.VerdictContradicted,
	})
	l := ledgerWith(claims...)

	for cycle := 0; cycle <= MaxRevisionCycles; cycle++ {
		result := EvaluateGates(l, cycle)
		require.False(t, result.Passed, "cycle %d", cycle)
		assert.Contains(t, result.Reasons, "a critical claim is contradicted by the corpus")
	}
}

func TestEvaluateGates_NotFoundFraction_Fails(t *testing.T) {
	// 1 not_found in 10 claims: 10% > 5% gate, even though coverage passes.
	claims := make([]datatypes.AdjudicatedClaim, 0, 10)
	for i := 0; i < 9; i++ {
		claims = append(claims, supported(datatypes.ImportanceMaterial))
	}
	claims = append(claims, datatypes.AdjudicatedClaim{
		Text: "c", Importance: datatypes.ImportanceMinor,
		Verdict: datatypes.VerdictNotFound,
	})
	l := ledgerWith(claims...)
	require.GreaterOrEqual(t, l.Summary.EvidenceCoverage, CoverageThreshold)

	result := EvaluateGates(l, 0)

	assert.False(t, result.Passed)
}

func TestEvaluateGates_ParseErrorLedger_AlwaysPasses(t *testing.T) {
	l := datatypes.EmptyLedger("unparseable")

	result := EvaluateGates(l, 0)

	assert.True(t, result.Passed)
}

func TestEvaluateGates_EchoedParseErrorFlagStillGated(t *testing.T) {
	// A well-formed ledger may carry a model-echoed parse_error risk flag;
	// only the fail-soft ledger built for an unparseable response bypasses
	// the gates.
	l := ledgerWith(datatypes.AdjudicatedClaim{
		Text: "c", Importance: datatypes.ImportanceCritical,
		Verdict: datatypes.VerdictContradicted,
	})
	l.RiskFlags = append(l.RiskFlags, datatypes.RiskFlag{
		Code:     datatypes.RiskFlagParseError,
		Severity: datatypes.RiskLow,
		Detail:   "echoed by the model",
	})

	result := EvaluateGates(l, 0)

	require.False(t, result.Passed)
	assert.Contains(t, result.Reasons, "a critical claim is contradicted by the corpus")
}

func TestApplyTerminationFlags(t *testing.T) {
	l := ledgerWith(datatypes.AdjudicatedClaim{
		Text: "c", Importance: datatypes.ImportanceCritical,
		Verdict: datatypes.VerdictContradicted,
	})

	ApplyTerminationFlags(l, MaxRevisionCycles)

	codes := make(map[string]datatypes.RiskSeverity)
	for _, f := range l.RiskFlags {
		codes[f.Code] = f.Severity
	}
	assert.Equal(t, datatypes.RiskHigh, codes[datatypes.RiskFlagUnresolvedContradiction])
	assert.Equal(t, datatypes.RiskMedium, codes[datatypes.RiskFlagLowCoverage])
}

// =============================================================================
// Judge Tests
// =============================================================================

func TestJudge_Adjudicate_ParsesAndOverridesRevision(t *testing.T) {
	// The model claims no revision is needed, but coverage is 0 so the
	// gates must flip revisionNeeded on and synthesize instructions.
	client := &mockLLM{responses: []string{`{
		"ledger": [{"text": "claim", "importance": "critical", "verdict": "not_found"}],
		"revisionNeeded": false
	}`}}
	judge := NewJudge(client, testPrompts())

	ledger, err := judge.Adjudicate(context.Background(), "q", "draft",
		[]datatypes.ScoredChunk{scoredChunk("c1", "content", "doc.md")},
		&SkepticReport{}, 0)

	require.NoError(t, err)
	assert.True(t, ledger.RevisionNeeded)
	assert.NotEmpty(t, ledger.RevisionInstructions)
}

func TestJudge_Adjudicate_UnparseableOutput_FailsSoft(t *testing.T) {
	client := &mockLLM{responses: []string{"I cannot comply with this request."}}
	judge := NewJudge(client, testPrompts())

	ledger, err := judge.Adjudicate(context.Background(), "q", "draft", nil,
		&SkepticReport{}, 0)

	require.NoError(t, err)
	assert.Empty(t, ledger.Claims)
	assert.False(t, ledger.RevisionNeeded)
	require.Len(t, ledger.RiskFlags, 1)
	assert.Equal(t, datatypes.RiskFlagParseError, ledger.RiskFlags[0].Code)
}

func TestJudge_Adjudicate_TransportError_Surfaces(t *testing.T) {
	client := &mockLLM{errs: []error{errors.New("connection refused")}}
	judge := NewJudge(client, testPrompts())

	_, err := judge.Adjudicate(context.Background(), "q", "draft", nil,
		&SkepticReport{}, 0)

	assert.Error(t, err)
}

func TestJudge_Adjudicate_KeepsModelInstructionsWhenPresent(t *testing.T) {
	client := &mockLLM{responses: []string{`{
		"ledger": [{"text": "claim", "importance": "critical", "verdict": "contradicted"}],
		"revisionNeeded": true,
		"revisionInstructions": "Remove the second paragraph."
	}`}}
	judge := NewJudge(client, testPrompts())

	ledger, err := judge.Adjudicate(context.Background(), "q", "draft", nil,
		&SkepticReport{}, 0)

	require.NoError(t, err)
	assert.True(t, ledger.RevisionNeeded)
	assert.Equal(t, "Remove the second paragraph.", ledger.RevisionInstructions)
}
