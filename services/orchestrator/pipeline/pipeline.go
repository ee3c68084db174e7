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
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/AleutianAI/GroundCheck/services/orchestrator/datatypes"
	"github.com/AleutianAI/GroundCheck/services/orchestrator/observability"
	"github.com/AleutianAI/GroundCheck/services/orchestrator/store"
)

var tracer = otel.Tracer("groundcheck.pipeline")

// =============================================================================
// Cancellation Registry
// =============================================================================

// CancelRegistry tracks the cancel function of every in-flight session so a
// handler can abort a run by id.
//
// # Thread Safety
//
// Safe for concurrent use.
type CancelRegistry struct {
	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

// NewCancelRegistry constructs an empty registry.
func NewCancelRegistry() *CancelRegistry {
	return &CancelRegistry{cancels: make(map[string]context.CancelFunc)}
}

// Register associates a cancel function with a session id.
func (r *CancelRegistry) Register(sessionId string, cancel context.CancelFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cancels[sessionId] = cancel
}

// Unregister drops the session's entry, called when the run finishes.
func (r *CancelRegistry) Unregister(sessionId string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.cancels, sessionId)
}

// Cancel aborts the session's run if it is in flight. Returns false when the
// session has no live run.
func (r *CancelRegistry) Cancel(sessionId string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	cancel, ok := r.cancels[sessionId]
	if ok {
		cancel()
	}
	return ok
}

// =============================================================================
// Progress Notification
// =============================================================================

// ProgressNotifier receives live progress updates for streaming to clients.
// Implementations must not block; the pipeline calls this inline.
type ProgressNotifier interface {
	NotifyProgress(prog *datatypes.PipelineProgress)
}

// =============================================================================
// Pipeline
// =============================================================================

// Pipeline is the verification state machine.
//
// # Description
//
// One Verify call drives a session through retrieval → writer → skeptic →
// judge, looping back through revision at most MaxRevisionCycles times when
// the gates fail. Each phase transition is persisted as the session's
// progress record and mirrored to the notifier. Claims and ledger entries
// are replaced wholesale on every adjudication, so readers only ever see a
// complete, internally consistent set.
//
// Cancellation is honored between phases: an aborted run discards its
// in-flight results and parks the session in error status.
//
// # Thread Safety
//
// Safe for concurrent use; concurrent sessions are independent.
type Pipeline struct {
	sessions  store.SessionStore
	retriever *Retriever
	writer    *Writer
	skeptic   *Skeptic
	judge     *Judge
	registry  *CancelRegistry
	notifier  ProgressNotifier
}

// NewPipeline wires the verification stages together. notifier may be nil.
func NewPipeline(sessions store.SessionStore, retriever *Retriever, writer *Writer,
	skeptic *Skeptic, judge *Judge, registry *CancelRegistry, notifier ProgressNotifier) *Pipeline {
	return &Pipeline{
		sessions:  sessions,
		retriever: retriever,
		writer:    writer,
		skeptic:   skeptic,
		judge:     judge,
		registry:  registry,
		notifier:  notifier,
	}
}

// Run executes the full pipeline for a pending session. Intended to be
// called on its own goroutine; all outcomes, including failures, are
// recorded on the session rather than returned.
func (p *Pipeline) Run(ctx context.Context, sess *datatypes.Session) {
	ctx, cancel := context.WithCancel(ctx)
	p.registry.Register(sess.SessionId, cancel)
	defer func() {
		cancel()
		p.registry.Unregister(sess.SessionId)
	}()

	ctx, span := tracer.Start(ctx, "Pipeline.Run")
	defer span.End()
	span.SetAttributes(
		attribute.String("session.id", sess.SessionId),
		attribute.String("session.data_space", sess.DataSpace),
		attribute.String("session.mode", string(sess.Mode)),
	)

	if err := p.verify(ctx, sess); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		p.failSession(sess, err)
		return
	}
	span.SetAttributes(attribute.Float64("session.coverage", sess.EvidenceCoverage))
}

func (p *Pipeline) verify(ctx context.Context, sess *datatypes.Session) error {
	sess.Status = datatypes.SessionProcessing
	sess.Touch()
	if err := p.sessions.UpdateSession(ctx, sess); err != nil {
		return fmt.Errorf("failed to mark session processing: %w", err)
	}

	// --- Retrieval ---
	p.progress(ctx, sess, datatypes.PhaseRetrieval, datatypes.PhaseInProgress, "", 0)
	chunks, err := p.retrieveSpan(ctx, sess)
	if err != nil {
		p.progress(ctx, sess, datatypes.PhaseRetrieval, datatypes.PhaseError, "", 0)
		return err
	}
	p.progress(ctx, sess, datatypes.PhaseRetrieval, datatypes.PhaseCompleted, "", 0)

	req := WriterRequest{
		Query:   sess.Query,
		Mode:    sess.Mode,
		History: sess.History,
		Chunks:  chunks,
	}
	tagMap := TagToChunkId(chunks)

	// --- Initial draft ---
	p.progress(ctx, sess, datatypes.PhaseWriter, datatypes.PhaseInProgress, "", 0)
	draft, err := p.draftSpan(ctx, req)
	if err != nil {
		p.progress(ctx, sess, datatypes.PhaseWriter, datatypes.PhaseError, "", 0)
		return err
	}
	p.progress(ctx, sess, datatypes.PhaseWriter, datatypes.PhaseCompleted, draft, 0)

	// --- Adjudication loop ---
	var ledger *datatypes.EvidenceLedger
	cycle := 0
	for {
		if err := ctx.Err(); err != nil {
			return cancellationError(err)
		}

		p.progress(ctx, sess, datatypes.PhaseSkeptic, datatypes.PhaseInProgress, "", cycle)
		report, err := p.skepticSpan(ctx, draft, chunks)
		if err != nil {
			p.progress(ctx, sess, datatypes.PhaseSkeptic, datatypes.PhaseError, "", cycle)
			return err
		}
		p.progress(ctx, sess, datatypes.PhaseSkeptic, datatypes.PhaseCompleted, "", cycle)

		p.progress(ctx, sess, datatypes.PhaseJudge, datatypes.PhaseInProgress, "", cycle)
		ledger, err = p.judgeSpan(ctx, sess.Query, draft, chunks, report, cycle)
		if err != nil {
			p.progress(ctx, sess, datatypes.PhaseJudge, datatypes.PhaseError, "", cycle)
			return err
		}

		// Cancellation between adjudication and persistence discards the
		// in-flight ledger entirely.
		if err := ctx.Err(); err != nil {
			return cancellationError(err)
		}
		if err := p.persistVerdicts(ctx, sess, ledger, tagMap); err != nil {
			return err
		}
		p.progress(ctx, sess, datatypes.PhaseJudge, datatypes.PhaseCompleted, "", cycle)

		if !ledger.RevisionNeeded {
			break
		}
		if cycle >= MaxRevisionCycles {
			ApplyTerminationFlags(ledger, cycle)
			if err := p.persistVerdicts(ctx, sess, ledger, tagMap); err != nil {
				return err
			}
			slog.Warn("Revision budget exhausted, terminating with flags",
				"session_id", sess.SessionId,
				"coverage", ledger.Summary.EvidenceCoverage)
			break
		}

		cycle++
		p.progress(ctx, sess, datatypes.PhaseRevision, datatypes.PhaseInProgress, "", cycle)
		draft, err = p.reviseSpan(ctx, req, draft, ledger.RevisionInstructions)
		if err != nil {
			p.progress(ctx, sess, datatypes.PhaseRevision, datatypes.PhaseError, "", cycle)
			return err
		}
		p.progress(ctx, sess, datatypes.PhaseRevision, datatypes.PhaseCompleted, draft, cycle)
	}

	// --- Finalize ---
	final := ledger.VerifiedResponse
	if final == "" {
		final = draft
	}
	sess.Status = datatypes.SessionCompleted
	sess.FinalResponse = final
	sess.RiskFlags = ledger.RiskFlags
	sess.EvidenceCoverage = ledger.Summary.EvidenceCoverage
	sess.UnsupportedCount = ledger.UnsupportedCount()
	sess.RevisionCycles = cycle
	sess.Touch()
	if err := p.sessions.UpdateSession(ctx, sess); err != nil {
		return fmt.Errorf("failed to finalize session: %w", err)
	}

	slog.Info("Session completed",
		"session_id", sess.SessionId,
		"coverage", sess.EvidenceCoverage,
		"unsupported_claims", sess.UnsupportedCount,
		"revision_cycles", sess.RevisionCycles,
		"risk_flags", len(sess.RiskFlags))
	return nil
}

// persistVerdicts converts the adjudicated ledger into stored claims and
// ledger entries, resolving context tags in supporting_chunks to chunk ids.
func (p *Pipeline) persistVerdicts(ctx context.Context, sess *datatypes.Session,
	ledger *datatypes.EvidenceLedger, tagMap map[string]string) error {

	now := time.Now().UnixMilli()
	claims := make([]datatypes.Claim, len(ledger.Claims))
	entries := make([]datatypes.LedgerEntry, len(ledger.Claims))
	for i, ac := range ledger.Claims {
		claimId := uuid.NewString()
		claims[i] = datatypes.Claim{
			ClaimId:          claimId,
			SessionId:        sess.SessionId,
			Text:             ac.Text,
			Type:             ac.Type,
			Importance:       ac.Importance,
			RequiresCitation: ac.RequiresCitation,
			CreatedAt:        now,
		}
		entries[i] = datatypes.LedgerEntry{
			ClaimId:          claimId,
			SessionId:        sess.SessionId,
			Verdict:          ac.Verdict,
			SourceTag:        ac.SourceTag,
			Confidence:       ac.Confidence,
			SupportingChunks: resolveTags(ac.SupportingChunks, tagMap),
			EvidenceSnippet:  ac.EvidenceSnippet,
			Notes:            ac.Notes,
		}
	}
	if err := p.sessions.ReplaceVerdicts(ctx, sess.SessionId, claims, entries); err != nil {
		return fmt.Errorf("failed to persist verdicts: %w", err)
	}
	return nil
}

// resolveTags maps Sn context tags to chunk ids; unknown references pass
// through untouched.
func resolveTags(refs []string, tagMap map[string]string) []string {
	if len(refs) == 0 {
		return nil
	}
	out := make([]string, len(refs))
	for i, ref := range refs {
		if id, ok := tagMap[ref]; ok {
			out[i] = id
		} else {
			out[i] = ref
		}
	}
	return out
}

// progress upserts the session's live progress record and mirrors it to the
// notifier. Persistence failures are logged, never fatal: progress is
// observability, not state.
func (p *Pipeline) progress(ctx context.Context, sess *datatypes.Session,
	phase datatypes.Phase, status datatypes.PhaseStatus, partial string, cycle int) {

	prog := &datatypes.PipelineProgress{
		SessionId:      sess.SessionId,
		Phase:          phase,
		Status:         status,
		PartialContent: partial,
		RevisionCycle:  cycle,
		UpdatedAt:      time.Now().UnixMilli(),
	}
	if err := p.sessions.UpsertProgress(ctx, prog); err != nil && ctx.Err() == nil {
		slog.Warn("Failed to persist progress", "session_id", sess.SessionId, "error", err)
	}
	if p.notifier != nil {
		p.notifier.NotifyProgress(prog)
	}
}

// failSession parks the session in error status. Uses a fresh context so a
// cancelled run can still record its own demise.
func (p *Pipeline) failSession(sess *datatypes.Session, cause error) {
	slog.Error("Session failed", "session_id", sess.SessionId, "error", cause)
	sess.Status = datatypes.SessionError
	sess.ErrorMessage = cause.Error()
	sess.Touch()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := p.sessions.UpdateSession(ctx, sess); err != nil {
		slog.Error("Failed to record session error", "session_id", sess.SessionId, "error", err)
	}
	p.progress(ctx, sess, datatypes.PhaseJudge, datatypes.PhaseError, "", sess.RevisionCycles)
}

func cancellationError(err error) error {
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("verification cancelled, in-flight results discarded")
	}
	return fmt.Errorf("verification aborted: %w", err)
}

// --- per-phase spans -------------------------------------------------------

// observePhase records a phase's wall-clock duration. Used with defer.
func observePhase(phase datatypes.Phase, start time.Time) {
	if observability.DefaultMetrics != nil {
		observability.DefaultMetrics.PhaseDurationSeconds.
			WithLabelValues(string(phase)).Observe(time.Since(start).Seconds())
	}
}

func (p *Pipeline) retrieveSpan(ctx context.Context, sess *datatypes.Session) ([]datatypes.ScoredChunk, error) {
	ctx, span := tracer.Start(ctx, "Pipeline.Retrieve")
	defer span.End()
	defer observePhase(datatypes.PhaseRetrieval, time.Now())
	chunks, err := p.retriever.Retrieve(ctx, sess.DataSpace, sess.Query)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("retrieval.chunks", len(chunks)))
	return chunks, nil
}

func (p *Pipeline) draftSpan(ctx context.Context, req WriterRequest) (string, error) {
	ctx, span := tracer.Start(ctx, "Pipeline.Draft")
	defer span.End()
	defer observePhase(datatypes.PhaseWriter, time.Now())
	draft, err := p.writer.Draft(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return draft, err
}

func (p *Pipeline) reviseSpan(ctx context.Context, req WriterRequest, draft, instructions string) (string, error) {
	ctx, span := tracer.Start(ctx, "Pipeline.Revise")
	defer span.End()
	defer observePhase(datatypes.PhaseRevision, time.Now())
	revised, err := p.writer.Revise(ctx, req, draft, instructions)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return revised, err
}

func (p *Pipeline) skepticSpan(ctx context.Context, draft string, chunks []datatypes.ScoredChunk) (*SkepticReport, error) {
	ctx, span := tracer.Start(ctx, "Pipeline.Skeptic")
	defer span.End()
	defer observePhase(datatypes.PhaseSkeptic, time.Now())
	report, err := p.skeptic.Review(ctx, draft, chunks)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(
		attribute.Int("skeptic.claims", len(report.Claims)),
		attribute.Bool("skeptic.parse_failed", report.ParseFailed),
	)
	return report, nil
}

func (p *Pipeline) judgeSpan(ctx context.Context, query, draft string,
	chunks []datatypes.ScoredChunk, report *SkepticReport, cycle int) (*datatypes.EvidenceLedger, error) {

	ctx, span := tracer.Start(ctx, "Pipeline.Judge")
	defer span.End()
	defer observePhase(datatypes.PhaseJudge, time.Now())
	span.SetAttributes(attribute.Int("judge.cycle", cycle))
	ledger, err := p.judge.Adjudicate(ctx, query, draft, chunks, report, cycle)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(
		attribute.Float64("judge.coverage", ledger.Summary.EvidenceCoverage),
		attribute.Bool("judge.revision_needed", ledger.RevisionNeeded),
	)
	return ledger, nil
}
