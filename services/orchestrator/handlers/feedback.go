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
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/AleutianAI/GroundCheck/pkg/extensions"
	"github.com/AleutianAI/GroundCheck/services/orchestrator/datatypes"
	"github.com/AleutianAI/GroundCheck/services/orchestrator/store"
)

const maxFeedbackCommentLength = 4096

// FeedbackRequest is the payload for recording feedback on a session.
type FeedbackRequest struct {
	Type    string `json:"type" binding:"required"`
	Comment string `json:"comment"`
}

// CreateFeedback records a user's judgment on a session's final answer.
// Feedback is accepted for any session the caller can read, including
// failed ones; a report on a bad failure mode is as useful as one on a
// bad answer.
func CreateFeedback(sessions store.SessionStore, opts extensions.ServiceOptions) gin.HandlerFunc {
	return func(c *gin.Context) {
		sess := loadAuthorizedSession(c, sessions, opts)
		if sess == nil {
			return
		}
		var req FeedbackRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}
		if !datatypes.ValidFeedbackType(req.Type) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "type must be one of: helpful, unhelpful, incorrect, report",
			})
			return
		}
		if len(req.Comment) > maxFeedbackCommentLength {
			c.JSON(http.StatusBadRequest, gin.H{"error": "comment too long"})
			return
		}

		fb := &datatypes.Feedback{
			FeedbackId: uuid.NewString(),
			SessionId:  sess.SessionId,
			Type:       datatypes.FeedbackType(req.Type),
			Comment:    req.Comment,
			CreatedAt:  time.Now().UnixMilli(),
		}
		if err := sessions.SaveFeedback(c.Request.Context(), fb); err != nil {
			slog.Error("Failed to save feedback", "session_id", sess.SessionId, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save feedback"})
			return
		}
		audit(c, opts, extensions.AuditEvent{
			EventType:    "feedback.create",
			DataSpace:    sess.DataSpace,
			ResourceType: "feedback",
			ResourceID:   fb.FeedbackId,
			Outcome:      "success",
			Metadata:     map[string]any{"type": req.Type},
		})
		c.JSON(http.StatusCreated, gin.H{"feedback": fb})
	}
}

// ListFeedback returns all feedback recorded for a session, oldest first.
func ListFeedback(sessions store.SessionStore, opts extensions.ServiceOptions) gin.HandlerFunc {
	return func(c *gin.Context) {
		sess := loadAuthorizedSession(c, sessions, opts)
		if sess == nil {
			return
		}
		items, err := sessions.ListFeedback(c.Request.Context(), sess.SessionId)
		if err != nil {
			slog.Error("Failed to list feedback", "session_id", sess.SessionId, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list feedback"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"session_id": sess.SessionId, "feedback": items})
	}
}
