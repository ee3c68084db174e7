// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

import (
	"encoding/json"
	"fmt"
	"strings"
)

// =============================================================================
// Evidence Ledger Schema
// =============================================================================

// RiskSeverity grades a risk flag.
type RiskSeverity string

const (
	RiskLow    RiskSeverity = "low"
	RiskMedium RiskSeverity = "medium"
	RiskHigh   RiskSeverity = "high"
)

// RiskFlagParseError is the code attached when the judge's own output could
// not be parsed into a well-formed ledger.
const RiskFlagParseError = "parse_error"

// RiskFlagUnresolvedContradiction is attached when the cycle budget ran out
// while a critical claim was still contradicted by the corpus.
const RiskFlagUnresolvedContradiction = "unresolved_critical_contradiction"

// RiskFlagLowCoverage is attached when a session terminates below the
// coverage threshold because the revision budget was exhausted.
const RiskFlagLowCoverage = "low_evidence_coverage"

// RiskFlag is a structured warning summarizing a systemic problem with a
// ledger (parse failure, missing critical evidence, and so on).
type RiskFlag struct {
	Code     string       `json:"code"`
	Severity RiskSeverity `json:"severity"`
	Detail   string       `json:"detail,omitempty"`
}

// LedgerSummary is the aggregate view over one adjudication.
type LedgerSummary struct {
	EvidenceCoverage float64 `json:"evidenceCoverage"`
	TotalClaims      int     `json:"totalClaims"`
	Supported        int     `json:"supported"`
	Weak             int     `json:"weak"`
	Contradicted     int     `json:"contradicted"`
	NotFound         int     `json:"notFound"`
}

// AdjudicatedClaim is one claim with its final verdict as returned by the
// judge. All enum fields are already coerced to known members.
type AdjudicatedClaim struct {
	Text             string     `json:"text"`
	Type             ClaimType  `json:"type"`
	Importance       Importance `json:"importance"`
	RequiresCitation bool       `json:"requires_citation"`
	Verdict          Verdict    `json:"verdict"`
	SourceTag        string     `json:"source_tag,omitempty"`
	Confidence       float64    `json:"confidence"`
	SupportingChunks []string   `json:"supporting_chunks,omitempty"`
	EvidenceSnippet  string     `json:"evidence_snippet,omitempty"`
	Notes            string     `json:"notes,omitempty"`
}

// EvidenceLedger is the authoritative per-adjudication result: one verdict
// per claim, an aggregate summary, risk flags, and the revision decision.
type EvidenceLedger struct {
	VerifiedResponse     string             `json:"verified_response,omitempty"`
	Claims               []AdjudicatedClaim `json:"ledger"`
	Summary              LedgerSummary      `json:"summary"`
	RiskFlags            []RiskFlag         `json:"riskFlags"`
	RevisionNeeded       bool               `json:"revisionNeeded"`
	RevisionInstructions string             `json:"revisionInstructions,omitempty"`

	// ParseFailed is set only by EmptyLedger. A risk flag with the
	// parse_error code is not a reliable signal here, since the model may
	// echo one back in an otherwise well-formed ledger.
	ParseFailed bool `json:"-"`
}

// RecomputeCoverage derives the summary counts and evidence coverage from
// the claims themselves, overwriting whatever the model reported.
//
// Coverage = supportive / count(importance in {critical, material}), where
// supportive verdicts are supported, weak, and expert_verified.
// Minor claims never enter the numerator or the denominator. An empty ledger
// has coverage 0.
func (l *EvidenceLedger) RecomputeCoverage() {
	sum := LedgerSummary{TotalClaims: len(l.Claims)}
	covered := 0
	supportive := 0
	for _, c := range l.Claims {
		switch c.Verdict {
		case VerdictSupported, VerdictExpertVerified:
			sum.Supported++
		case VerdictWeak:
			sum.Weak++
		case VerdictContradicted:
			sum.Contradicted++
		case VerdictNotFound:
			sum.NotFound++
		}
		if c.Importance.Covered() {
			covered++
			if c.Verdict.Supportive() {
				supportive++
			}
		}
	}
	if covered > 0 {
		sum.EvidenceCoverage = float64(supportive) / float64(covered)
	}
	l.Summary = sum
}

// UnsupportedCount returns the number of claims whose verdict is neither
// supported, weak, nor expert_verified.
func (l *EvidenceLedger) UnsupportedCount() int {
	n := 0
	for _, c := range l.Claims {
		switch c.Verdict {
		case VerdictSupported, VerdictWeak, VerdictExpertVerified:
		default:
			n++
		}
	}
	return n
}

// HasCriticalContradiction reports whether any critical claim was
// contradicted by the corpus.
func (l *EvidenceLedger) HasCriticalContradiction() bool {
	for _, c := range l.Claims {
		if c.Importance == ImportanceCritical && c.Verdict == VerdictContradicted {
			return true
		}
	}
	return false
}

// NotFoundFraction returns the fraction of claims with verdict not_found
// over all claims. Zero for an empty ledger.
func (l *EvidenceLedger) NotFoundFraction() float64 {
	if len(l.Claims) == 0 {
		return 0
	}
	return float64(l.Summary.NotFound) / float64(len(l.Claims))
}

// =============================================================================
// Parsing & Coercion
// =============================================================================

// rawLedger mirrors the generation model's JSON shape before coercion.
// Everything the model controls is a loose type here; ParseEvidenceLedger
// validates and coerces field by field rather than trusting the shape.
type rawLedger struct {
	VerifiedResponse     string     `json:"verified_response"`
	Ledger               []rawClaim `json:"ledger"`
	RiskFlags            []rawFlag  `json:"riskFlags"`
	RevisionNeeded       bool       `json:"revisionNeeded"`
	RevisionInstructions string     `json:"revisionInstructions"`
}

type rawClaim struct {
	Text             string   `json:"text"`
	Type             string   `json:"type"`
	Importance       string   `json:"importance"`
	RequiresCitation bool     `json:"requires_citation"`
	Verdict          string   `json:"verdict"`
	SourceTag        string   `json:"source_tag"`
	Confidence       *float64 `json:"confidence"`
	SupportingChunks []string `json:"supporting_chunks"`
	EvidenceSnippet  string   `json:"evidence_snippet"`
	Notes            string   `json:"notes"`
}

type rawFlag struct {
	Code     string `json:"code"`
	Severity string `json:"severity"`
	Detail   string `json:"detail"`
}

// ParseEvidenceLedger parses the judge model's raw text into a validated
// EvidenceLedger.
//
// # Description
//
// The generation model returns free text that should contain a strict JSON
// object. This function extracts the JSON (tolerating markdown code fences
// and leading prose), unmarshals it, then coerces every enum field to a known
// member: unknown verdicts become not_found, unknown importance becomes
// material, confidence is clamped to [0,1]. The summary is always recomputed
// from the coerced claims, never taken from the model.
//
// # Inputs
//
//   - raw: The model's complete text output.
//
// # Outputs
//
//   - *EvidenceLedger: Validated ledger with recomputed summary.
//   - error: Non-nil if no parseable JSON object was found or the ledger
//     array is missing. Callers must fail soft on this error (empty ledger,
//     parse_error risk flag, no revision) rather than retrying the model.
func ParseEvidenceLedger(raw string) (*EvidenceLedger, error) {
	jsonText, err := ExtractJSONObject(raw)
	if err != nil {
		return nil, err
	}

	var parsed rawLedger
	if err := json.Unmarshal([]byte(jsonText), &parsed); err != nil {
		return nil, fmt.Errorf("ledger JSON is malformed: %w", err)
	}
	if parsed.Ledger == nil {
		return nil, fmt.Errorf("ledger JSON is missing the required 'ledger' array")
	}

	ledger := &EvidenceLedger{
		VerifiedResponse:     strings.TrimSpace(parsed.VerifiedResponse),
		Claims:               make([]AdjudicatedClaim, 0, len(parsed.Ledger)),
		RevisionNeeded:       parsed.RevisionNeeded,
		RevisionInstructions: strings.TrimSpace(parsed.RevisionInstructions),
		RiskFlags:            make([]RiskFlag, 0, len(parsed.RiskFlags)),
	}

	for _, rc := range parsed.Ledger {
		text := strings.TrimSpace(rc.Text)
		if text == "" {
			// A claim without text cannot be attributed to the draft.
			continue
		}
		ledger.Claims = append(ledger.Claims, AdjudicatedClaim{
			Text:             text,
			Type:             ParseClaimType(rc.Type),
			Importance:       ParseImportance(rc.Importance),
			RequiresCitation: rc.RequiresCitation,
			Verdict:          ParseVerdict(rc.Verdict),
			SourceTag:        strings.TrimSpace(rc.SourceTag),
			Confidence:       clampConfidence(rc.Confidence),
			SupportingChunks: rc.SupportingChunks,
			EvidenceSnippet:  rc.EvidenceSnippet,
			Notes:            rc.Notes,
		})
	}

	for _, rf := range parsed.RiskFlags {
		code := strings.TrimSpace(rf.Code)
		if code == "" {
			continue
		}
		ledger.RiskFlags = append(ledger.RiskFlags, RiskFlag{
			Code:     code,
			Severity: parseSeverity(rf.Severity),
			Detail:   rf.Detail,
		})
	}

	ledger.RecomputeCoverage()
	return ledger, nil
}

// EmptyLedger returns the fail-soft ledger used when the judge's output
// could not be parsed: no claims, a single high-severity parse_error risk
// flag, and revisionNeeded false so the pipeline terminates instead of
// looping on unparseable output.
func EmptyLedger(detail string) *EvidenceLedger {
	l := &EvidenceLedger{
		Claims: []AdjudicatedClaim{},
		RiskFlags: []RiskFlag{{
			Code:     RiskFlagParseError,
			Severity: RiskHigh,
			Detail:   detail,
		}},
		RevisionNeeded: false,
		ParseFailed:    true,
	}
	l.RecomputeCoverage()
	return l
}

// ExtractJSONObject locates the first balanced top-level JSON object in the
// given text. Generation models frequently wrap JSON in markdown fences or
// prepend commentary; this strips both.
func ExtractJSONObject(raw string) (string, error) {
	s := strings.TrimSpace(raw)

	// Strip a markdown code fence if the whole payload is fenced.
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if idx := strings.LastIndex(s, "```"); idx >= 0 {
			s = s[:idx]
		}
		s = strings.TrimSpace(s)
	}

	start := strings.Index(s, "{")
	if start < 0 {
		return "", fmt.Errorf("no JSON object found in model output")
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		ch := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], nil
			}
		}
	}
	return "", fmt.Errorf("unbalanced JSON object in model output")
}

func clampConfidence(c *float64) float64 {
	if c == nil {
		return 0
	}
	if *c < 0 {
		return 0
	}
	if *c > 1 {
		return 1
	}
	return *c
}

func parseSeverity(s string) RiskSeverity {
	switch RiskSeverity(strings.ToLower(strings.TrimSpace(s))) {
	case RiskLow:
		return RiskLow
	case RiskMedium:
		return RiskMedium
	case RiskHigh:
		return RiskHigh
	default:
		return RiskMedium
	}
}
