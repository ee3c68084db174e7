// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package datatypes defines the data model shared by the orchestrator's
// handlers, pipeline, and stores.
//
// The verification domain revolves around four aggregates:
//   - Document / Chunk: the ingested corpus (chunk vectors live in Weaviate)
//   - Session: one verification run and its terminal summary
//   - Claim / LedgerEntry: the Evidence Ledger produced by the judge
//   - PipelineProgress: live phase status, observability only
package datatypes

import (
	"strings"
	"time"
)

// =============================================================================
// Session
// =============================================================================

// SessionStatus is the lifecycle state of a verification session.
type SessionStatus string

const (
	SessionPending    SessionStatus = "pending"
	SessionProcessing SessionStatus = "processing"
	SessionCompleted  SessionStatus = "completed"
	SessionError      SessionStatus = "error"
)

// Terminal reports whether the session can no longer change.
func (s SessionStatus) Terminal() bool {
	return s == SessionCompleted || s == SessionError
}

// VerifyMode selects what the writer produces: a final answer or a draft
// the caller intends to edit further.
type VerifyMode string

const (
	ModeAnswer VerifyMode = "answer"
	ModeDraft  VerifyMode = "draft"
)

// ValidMode reports whether the given mode string is one we accept.
func ValidMode(m string) bool {
	return m == string(ModeAnswer) || m == string(ModeDraft)
}

// HistoryTurn is one prior exchange supplied for multi-turn context.
type HistoryTurn struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// Session is one verification run. Created pending, mutated by the pipeline
// at each phase, terminal once completed or error.
type Session struct {
	SessionId        string        `json:"session_id"`
	DataSpace        string        `json:"data_space"`
	Query            string        `json:"query"`
	Mode             VerifyMode    `json:"mode"`
	Status           SessionStatus `json:"status"`
	FinalResponse    string        `json:"final_response,omitempty"`
	RiskFlags        []RiskFlag    `json:"risk_flags,omitempty"`
	EvidenceCoverage float64       `json:"evidence_coverage"`
	UnsupportedCount int           `json:"unsupported_claim_count"`
	RevisionCycles   int           `json:"revision_cycles"`
	History          []HistoryTurn `json:"history,omitempty"`
	ErrorMessage     string        `json:"error_message,omitempty"`
	CreatedAt        int64         `json:"created_at"`
	UpdatedAt        int64         `json:"updated_at"`
}

// Touch refreshes the UpdatedAt timestamp.
func (s *Session) Touch() {
	s.UpdatedAt = time.Now().UnixMilli()
}

// =============================================================================
// Claims
// =============================================================================

// ClaimType classifies the kind of factual assertion a claim makes.
type ClaimType string

const (
	ClaimFact       ClaimType = "fact"
	ClaimPolicy     ClaimType = "policy"
	ClaimNumeric    ClaimType = "numeric"
	ClaimDefinition ClaimType = "definition"
	ClaimScientific ClaimType = "scientific"
	ClaimHistorical ClaimType = "historical"
	ClaimLegal      ClaimType = "legal"
)

// ParseClaimType coerces a model-supplied type string to a known member.
// Unknown or empty values default to "fact" rather than failing the ledger.
func ParseClaimType(s string) ClaimType {
	ct := ClaimType(strings.ToLower(strings.TrimSpace(s)))
	switch ct {
	case ClaimFact, ClaimPolicy, ClaimNumeric, ClaimDefinition,
		ClaimScientific, ClaimHistorical, ClaimLegal:
		return ct
	default:
		return ClaimFact
	}
}

// Importance ranks how much a claim matters to the answer's correctness.
// Only critical and material claims count toward evidence coverage.
type Importance string

const (
	ImportanceCritical Importance = "critical"
	ImportanceMaterial Importance = "material"
	ImportanceMinor    Importance = "minor"
)

// ParseImportance coerces a model-supplied importance to a known member.
// Unknown values default to material so the claim still counts toward
// coverage instead of silently dropping out of the denominator.
func ParseImportance(s string) Importance {
	imp := Importance(strings.ToLower(strings.TrimSpace(s)))
	switch imp {
	case ImportanceCritical, ImportanceMaterial, ImportanceMinor:
		return imp
	default:
		return ImportanceMaterial
	}
}

// Covered reports whether this importance level participates in the
// evidence coverage denominator.
func (i Importance) Covered() bool {
	return i == ImportanceCritical || i == ImportanceMaterial
}

// Claim is an atomic factual assertion extracted from a draft.
// Claims are immutable once recorded; re-adjudication replaces the whole set.
type Claim struct {
	ClaimId          string     `json:"claim_id"`
	SessionId        string     `json:"session_id"`
	Text             string     `json:"text"`
	Type             ClaimType  `json:"type"`
	Importance       Importance `json:"importance"`
	RequiresCitation bool       `json:"requires_citation"`
	CreatedAt        int64      `json:"created_at"`
}

// =============================================================================
// Ledger Entries
// =============================================================================

// Verdict is the adjudicated status of a claim.
type Verdict string

const (
	VerdictSupported      Verdict = "supported"
	VerdictWeak           Verdict = "weak"
	VerdictContradicted   Verdict = "contradicted"
	VerdictNotFound       Verdict = "not_found"
	VerdictExpertVerified Verdict = "expert_verified"
	VerdictConflict       Verdict = "conflict_flagged"
)

// ParseVerdict coerces a model-supplied verdict to a known member.
// Unknown or missing verdicts default to not_found: the safe reading of an
// unparseable verdict is "no evidence located".
func ParseVerdict(s string) Verdict {
	v := Verdict(strings.ToLower(strings.TrimSpace(s)))
	switch v {
	case VerdictSupported, VerdictWeak, VerdictContradicted,
		VerdictNotFound, VerdictExpertVerified, VerdictConflict:
		return v
	default:
		return VerdictNotFound
	}
}

// Supportive reports whether the verdict counts as evidence-backed for the
// coverage computation (supported, weak, or expert_verified).
func (v Verdict) Supportive() bool {
	return v == VerdictSupported || v == VerdictWeak || v == VerdictExpertVerified
}

// LedgerEntry is the authoritative verdict for one claim. At most one entry
// exists per claim within a session; a revision cycle replaces the entry.
type LedgerEntry struct {
	ClaimId          string   `json:"claim_id"`
	SessionId        string   `json:"session_id"`
	Verdict          Verdict  `json:"verdict"`
	SourceTag        string   `json:"source_tag,omitempty"`
	Confidence       float64  `json:"confidence"`
	SupportingChunks []string `json:"supporting_chunks,omitempty"`
	EvidenceSnippet  string   `json:"evidence_snippet,omitempty"`
	Notes            string   `json:"notes,omitempty"`
}

// =============================================================================
// Pipeline Progress
// =============================================================================

// Phase names the pipeline stage currently executing for a session.
type Phase string

const (
	PhaseRetrieval Phase = "retrieval"
	PhaseWriter    Phase = "writer"
	PhaseSkeptic   Phase = "skeptic"
	PhaseJudge     Phase = "judge"
	PhaseRevision  Phase = "revision"
)

// PhaseStatus is the state of the current phase.
type PhaseStatus string

const (
	PhasePending    PhaseStatus = "pending"
	PhaseInProgress PhaseStatus = "in_progress"
	PhaseCompleted  PhaseStatus = "completed"
	PhaseError      PhaseStatus = "error"
)

// PipelineProgress is the live status record for a session. Exactly one
// exists per session, upserted on every phase transition. It is for status
// display only; readers must never treat it as the Evidence Ledger.
type PipelineProgress struct {
	SessionId      string      `json:"session_id"`
	Phase          Phase       `json:"phase"`
	Status         PhaseStatus `json:"status"`
	PartialContent string      `json:"partial_content,omitempty"`
	RevisionCycle  int         `json:"revision_cycle"`
	UpdatedAt      int64       `json:"updated_at"`
}

// =============================================================================
// Feedback
// =============================================================================

// FeedbackType classifies user feedback on a completed session.
type FeedbackType string

const (
	FeedbackHelpful   FeedbackType = "helpful"
	FeedbackUnhelpful FeedbackType = "unhelpful"
	FeedbackIncorrect FeedbackType = "incorrect"
	FeedbackReport    FeedbackType = "report"
)

// ValidFeedbackType reports whether the given feedback type is accepted.
func ValidFeedbackType(t string) bool {
	switch FeedbackType(t) {
	case FeedbackHelpful, FeedbackUnhelpful, FeedbackIncorrect, FeedbackReport:
		return true
	default:
		return false
	}
}

// Feedback is a user's judgment on a session's final answer.
type Feedback struct {
	FeedbackId string       `json:"feedback_id"`
	SessionId  string       `json:"session_id"`
	Type       FeedbackType `json:"type"`
	Comment    string       `json:"comment,omitempty"`
	CreatedAt  int64        `json:"created_at"`
}
