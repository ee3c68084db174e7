// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/AleutianAI/GroundCheck/pkg/extensions"
	"github.com/AleutianAI/GroundCheck/pkg/validation"
	"github.com/AleutianAI/GroundCheck/services/orchestrator/datatypes"
	"github.com/AleutianAI/GroundCheck/services/orchestrator/middleware"
	"github.com/AleutianAI/GroundCheck/services/orchestrator/observability"
	"github.com/AleutianAI/GroundCheck/services/orchestrator/pipeline"
	"github.com/AleutianAI/GroundCheck/services/orchestrator/store"
)

// VerifyRequest is the payload for starting a verification session.
type VerifyRequest struct {
	Query     string                  `json:"query" binding:"required"`
	DataSpace string                  `json:"data_space" binding:"required"`
	Mode      string                  `json:"mode"`
	History   []datatypes.HistoryTurn `json:"history"`
}

// HandleVerify creates a session and launches the verification pipeline.
//
// # Description
//
// The pipeline runs on its own goroutine with a detached context: the
// session outlives the HTTP request, and only an explicit cancel or process
// shutdown stops it. The response is 202 with the pending session; callers
// poll the session or subscribe to the progress stream.
func HandleVerify(sessions store.SessionStore, pl *pipeline.Pipeline,
	opts extensions.ServiceOptions) gin.HandlerFunc {

	return func(c *gin.Context) {
		var req VerifyRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}
		if err := validation.ValidateQuery(req.Query); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err := validation.ValidateDataSpace(req.DataSpace); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		mode := req.Mode
		if mode == "" {
			mode = string(datatypes.ModeAnswer)
		}
		if !datatypes.ValidMode(mode) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "mode must be 'answer' or 'draft'"})
			return
		}
		if !middleware.RequireMembership(c, opts.MembershipProvider, req.DataSpace) {
			return
		}

		now := time.Now().UnixMilli()
		sess := &datatypes.Session{
			SessionId: uuid.NewString(),
			DataSpace: req.DataSpace,
			Query:     req.Query,
			Mode:      datatypes.VerifyMode(mode),
			Status:    datatypes.SessionPending,
			History:   req.History,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := sessions.CreateSession(c.Request.Context(), sess); err != nil {
			slog.Error("Failed to create session", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create session"})
			return
		}
		audit(c, opts, extensions.AuditEvent{
			EventType:    "session.create",
			DataSpace:    req.DataSpace,
			ResourceType: "session",
			ResourceID:   sess.SessionId,
			Outcome:      "success",
		})

		go runSession(pl, sess)

		c.JSON(http.StatusAccepted, gin.H{"session": sess})
	}
}

// runSession drives the pipeline to completion and records the session
// outcome metrics.
func runSession(pl *pipeline.Pipeline, sess *datatypes.Session) {
	m := observability.DefaultMetrics
	if m != nil {
		m.ActiveSessions.Inc()
		defer m.ActiveSessions.Dec()
	}
	start := time.Now()

	pl.Run(context.Background(), sess)

	if m != nil {
		m.SessionsTotal.WithLabelValues(string(sess.Status), string(sess.Mode)).Inc()
		if sess.Status == datatypes.SessionCompleted {
			m.EvidenceCoverage.Observe(sess.EvidenceCoverage)
			m.RevisionCycles.Observe(float64(sess.RevisionCycles))
		}
		for _, f := range sess.RiskFlags {
			m.RiskFlagsTotal.WithLabelValues(f.Code).Inc()
		}
	}
	slog.Debug("Session run finished",
		"session_id", sess.SessionId,
		"status", sess.Status,
		"duration", time.Since(start))
}

// loadAuthorizedSession fetches the session and enforces data-space
// membership. Aborts the request and returns nil when access is denied or
// the session does not exist.
func loadAuthorizedSession(c *gin.Context, sessions store.SessionStore,
	opts extensions.ServiceOptions) *datatypes.Session {

	sess, err := sessions.GetSession(c.Request.Context(), c.Param("sessionId"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "session not found"})
			return nil
		}
		slog.Error("Failed to load session", "session_id", c.Param("sessionId"), "error", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to load session"})
		return nil
	}
	if !middleware.RequireMembership(c, opts.MembershipProvider, sess.DataSpace) {
		return nil
	}
	return sess
}

// GetSession returns the session record.
func GetSession(sessions store.SessionStore, opts extensions.ServiceOptions) gin.HandlerFunc {
	return func(c *gin.Context) {
		sess := loadAuthorizedSession(c, sessions, opts)
		if sess == nil {
			return
		}
		c.JSON(http.StatusOK, gin.H{"session": sess})
	}
}

// ListSessions returns the sessions of a data space, newest first.
func ListSessions(sessions store.SessionStore, opts extensions.ServiceOptions) gin.HandlerFunc {
	return func(c *gin.Context) {
		dataSpace := c.Query("data_space")
		if err := validation.ValidateDataSpace(dataSpace); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if !middleware.RequireMembership(c, opts.MembershipProvider, dataSpace) {
			return
		}
		list, err := sessions.ListSessions(c.Request.Context(), dataSpace)
		if err != nil {
			slog.Error("Failed to list sessions", "data_space", dataSpace, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list sessions"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"data_space": dataSpace, "sessions": list})
	}
}

// LedgerEntryView joins a claim with its adjudicated verdict for display.
type LedgerEntryView struct {
	Claim datatypes.Claim       `json:"claim"`
	Entry datatypes.LedgerEntry `json:"entry"`
}

// GetLedger returns the session's Evidence Ledger.
//
// The ledger is readable while the session is still processing, but until
// the session completes it reflects an in-progress adjudication; the
// response carries an authoritative flag so clients do not present interim
// verdicts as final.
func GetLedger(sessions store.SessionStore, opts extensions.ServiceOptions) gin.HandlerFunc {
	return func(c *gin.Context) {
		sess := loadAuthorizedSession(c, sessions, opts)
		if sess == nil {
			return
		}
		claims, err := sessions.GetClaims(c.Request.Context(), sess.SessionId)
		if err != nil {
			slog.Error("Failed to load claims", "session_id", sess.SessionId, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load ledger"})
			return
		}
		entries, err := sessions.GetLedgerEntries(c.Request.Context(), sess.SessionId)
		if err != nil {
			slog.Error("Failed to load ledger entries", "session_id", sess.SessionId, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load ledger"})
			return
		}

		byClaim := make(map[string]datatypes.LedgerEntry, len(entries))
		for _, e := range entries {
			byClaim[e.ClaimId] = e
		}
		views := make([]LedgerEntryView, 0, len(claims))
		for _, cl := range claims {
			views = append(views, LedgerEntryView{Claim: cl, Entry: byClaim[cl.ClaimId]})
		}

		c.JSON(http.StatusOK, gin.H{
			"session_id":        sess.SessionId,
			"status":            sess.Status,
			"authoritative":     sess.Status == datatypes.SessionCompleted,
			"evidence_coverage": sess.EvidenceCoverage,
			"risk_flags":        sess.RiskFlags,
			"ledger":            views,
		})
	}
}

// CancelSession aborts an in-flight verification run. The pipeline discards
// in-flight results; the session lands in error status.
func CancelSession(sessions store.SessionStore, registry *pipeline.CancelRegistry,
	opts extensions.ServiceOptions) gin.HandlerFunc {

	return func(c *gin.Context) {
		sess := loadAuthorizedSession(c, sessions, opts)
		if sess == nil {
			return
		}
		if sess.Status.Terminal() {
			c.JSON(http.StatusConflict, gin.H{"error": "session already finished"})
			return
		}
		if !registry.Cancel(sess.SessionId) {
			// No live run holds this session (e.g. the process restarted
			// mid-flight), so nobody else will terminalize it.
			sess.Status = datatypes.SessionError
			sess.ErrorMessage = "cancelled by user"
			sess.Touch()
			if err := sessions.UpdateSession(c.Request.Context(), sess); err != nil {
				slog.Error("Failed to mark session cancelled", "session_id", sess.SessionId, "error", err)
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to cancel session"})
				return
			}
		}
		audit(c, opts, extensions.AuditEvent{
			EventType:    "session.cancel",
			DataSpace:    sess.DataSpace,
			ResourceType: "session",
			ResourceID:   sess.SessionId,
			Outcome:      "success",
		})
		c.JSON(http.StatusOK, gin.H{"session_id": sess.SessionId, "cancelled": true})
	}
}

// DeleteSession cancels any in-flight run and removes the session with all
// owned records.
func DeleteSession(sessions store.SessionStore, registry *pipeline.CancelRegistry,
	opts extensions.ServiceOptions) gin.HandlerFunc {

	return func(c *gin.Context) {
		sess := loadAuthorizedSession(c, sessions, opts)
		if sess == nil {
			return
		}
		registry.Cancel(sess.SessionId)
		if err := sessions.DeleteSessionCascade(c.Request.Context(), sess.SessionId); err != nil {
			slog.Error("Failed to delete session", "session_id", sess.SessionId, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete session"})
			return
		}
		audit(c, opts, extensions.AuditEvent{
			EventType:    "session.delete",
			DataSpace:    sess.DataSpace,
			ResourceType: "session",
			ResourceID:   sess.SessionId,
			Outcome:      "success",
		})
		c.JSON(http.StatusOK, gin.H{"status": "deleted", "session_id": sess.SessionId})
	}
}
