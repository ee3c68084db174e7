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
	"time"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/GroundCheck/pkg/extensions"
	"github.com/AleutianAI/GroundCheck/services/orchestrator/middleware"
)

// audit records an event through the configured audit logger, filling in
// the caller identity and timestamp. Audit failures are logged, never
// surfaced to the client.
func audit(c *gin.Context, opts extensions.ServiceOptions, event extensions.AuditEvent) {
	if event.UserID == "" {
		if info := middleware.GetAuthInfo(c); info != nil {
			event.UserID = info.UserID
		} else {
			event.UserID = "anonymous"
		}
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if err := opts.AuditLogger.Log(c.Request.Context(), event); err != nil {
		slog.Warn("Failed to record audit event", "event_type", event.EventType, "error", err)
	}
}
