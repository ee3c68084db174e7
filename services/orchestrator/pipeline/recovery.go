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

	"github.com/AleutianAI/GroundCheck/services/orchestrator/datatypes"
	"github.com/AleutianAI/GroundCheck/services/orchestrator/store"
)

// RecoverInterruptedSessions parks every non-terminal session in error
// status. Run it once at startup, before any new runs are accepted: a
// pending or processing session found on disk belonged to a previous
// process, and no goroutine will ever finish it. Returns the number of
// sessions swept.
func RecoverInterruptedSessions(ctx context.Context, sessions store.SessionStore) (int, error) {
	all, err := sessions.ListSessions(ctx, "")
	if err != nil {
		return 0, fmt.Errorf("failed to list sessions for recovery: %w", err)
	}

	swept := 0
	for i := range all {
		sess := &all[i]
		if sess.Status.Terminal() {
			continue
		}
		sess.Status = datatypes.SessionError
		sess.ErrorMessage = "interrupted by restart"
		sess.Touch()
		if err := sessions.UpdateSession(ctx, sess); err != nil {
			return swept, fmt.Errorf("failed to recover session %s: %w", sess.SessionId, err)
		}
		slog.Warn("Recovered interrupted session",
			"session_id", sess.SessionId,
			"data_space", sess.DataSpace)
		swept++
	}
	return swept, nil
}
