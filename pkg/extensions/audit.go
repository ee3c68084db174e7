// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package extensions

import (
	"context"
	"log/slog"
	"time"
)

// AuditEvent represents a security-relevant event for compliance logging.
//
// Events are categorized by type for filtering and alerting:
//   - Authentication: "auth.denied"
//   - Membership: "membership.denied"
//   - Documents: "document.ingest", "document.delete"
//   - Sessions: "session.create", "session.delete", "session.cancel"
//   - Feedback: "feedback.create"
type AuditEvent struct {
	// EventType categorizes the event. Format: "category.action".
	EventType string

	// Timestamp is when the event occurred (always UTC).
	// If zero, implementations set it to time.Now().UTC().
	Timestamp time.Time

	// UserID identifies who performed the action. Use "system" for
	// automated actions.
	UserID string

	// DataSpace scopes the event when the resource lives in one.
	DataSpace string

	// ResourceType is the category of resource involved.
	// Examples: "document", "session", "feedback".
	ResourceType string

	// ResourceID is the specific resource instance (optional).
	ResourceID string

	// Outcome indicates the result: "success", "failure", "denied".
	Outcome string

	// Metadata holds additional event-specific data.
	Metadata map[string]any
}

// AuditLogger records security-relevant events.
//
// Implementations must be safe for concurrent use and must never block the
// request path for long; buffer or drop rather than stall.
type AuditLogger interface {
	// Log records an event. Implementations must not return before the
	// event is durably accepted (queued counts as accepted).
	Log(ctx context.Context, event AuditEvent) error
}

// SlogAuditLogger writes audit events through structured logging. The
// default for open source, where the JSON log stream is the audit trail.
type SlogAuditLogger struct{}

// Log implements the AuditLogger interface.
func (l *SlogAuditLogger) Log(_ context.Context, event AuditEvent) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	slog.Info("audit",
		"event_type", event.EventType,
		"user_id", event.UserID,
		"data_space", event.DataSpace,
		"resource_type", event.ResourceType,
		"resource_id", event.ResourceID,
		"outcome", event.Outcome,
	)
	return nil
}

// NopAuditLogger discards all events.
type NopAuditLogger struct{}

// Log implements the AuditLogger interface.
func (l *NopAuditLogger) Log(_ context.Context, _ AuditEvent) error { return nil }

var (
	_ AuditLogger = (*SlogAuditLogger)(nil)
	_ AuditLogger = (*NopAuditLogger)(nil)
)
