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
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/AleutianAI/GroundCheck/pkg/extensions"
	"github.com/AleutianAI/GroundCheck/services/orchestrator/datatypes"
	"github.com/AleutianAI/GroundCheck/services/orchestrator/store"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  64 * 1024,
	WriteBufferSize: 64 * 1024,
}

// =============================================================================
// Progress Hub
// =============================================================================

// ProgressHub fans live progress updates out to websocket subscribers.
//
// # Description
//
// The pipeline pushes every phase transition through NotifyProgress; each
// subscriber holds a buffered channel per session. A slow subscriber loses
// intermediate updates rather than blocking the pipeline: progress is a
// live view, the store holds the latest record for anyone who reconnects.
//
// # Thread Safety
//
// Safe for concurrent use.
type ProgressHub struct {
	mu   sync.RWMutex
	subs map[string]map[chan *datatypes.PipelineProgress]bool
}

// NewProgressHub constructs an empty hub.
func NewProgressHub() *ProgressHub {
	return &ProgressHub{subs: make(map[string]map[chan *datatypes.PipelineProgress]bool)}
}

// NotifyProgress implements the pipeline.ProgressNotifier interface.
func (h *ProgressHub) NotifyProgress(prog *datatypes.PipelineProgress) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.subs[prog.SessionId] {
		select {
		case ch <- prog:
		default:
			// Subscriber is behind; drop rather than stall the pipeline.
		}
	}
}

// Subscribe registers a channel for a session's updates.
func (h *ProgressHub) Subscribe(sessionId string) chan *datatypes.PipelineProgress {
	ch := make(chan *datatypes.PipelineProgress, 16)
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subs[sessionId] == nil {
		h.subs[sessionId] = make(map[chan *datatypes.PipelineProgress]bool)
	}
	h.subs[sessionId][ch] = true
	return ch
}

// Unsubscribe removes the channel.
func (h *ProgressHub) Unsubscribe(sessionId string, ch chan *datatypes.PipelineProgress) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subs[sessionId], ch)
	if len(h.subs[sessionId]) == 0 {
		delete(h.subs, sessionId)
	}
}

// =============================================================================
// Handlers
// =============================================================================

// GetProgress returns the session's latest persisted progress record.
func GetProgress(sessions store.SessionStore, opts extensions.ServiceOptions) gin.HandlerFunc {
	return func(c *gin.Context) {
		sess := loadAuthorizedSession(c, sessions, opts)
		if sess == nil {
			return
		}
		prog, err := sessions.GetProgress(c.Request.Context(), sess.SessionId)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				c.JSON(http.StatusOK, gin.H{
					"session_id": sess.SessionId,
					"status":     sess.Status,
					"progress":   nil,
				})
				return
			}
			slog.Error("Failed to load progress", "session_id", sess.SessionId, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load progress"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"session_id": sess.SessionId,
			"status":     sess.Status,
			"progress":   prog,
		})
	}
}

// StreamProgress upgrades to a websocket and streams progress updates until
// the session reaches a terminal status or the client disconnects.
func StreamProgress(sessions store.SessionStore, hub *ProgressHub,
	opts extensions.ServiceOptions) gin.HandlerFunc {

	return func(c *gin.Context) {
		sess := loadAuthorizedSession(c, sessions, opts)
		if sess == nil {
			return
		}

		ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			slog.Error("WebSocket upgrade failed", "error", err)
			return
		}
		defer ws.Close()

		// Subscribe before the snapshot so no transition falls between them.
		ch := hub.Subscribe(sess.SessionId)
		defer hub.Unsubscribe(sess.SessionId, ch)

		if prog, err := sessions.GetProgress(c.Request.Context(), sess.SessionId); err == nil {
			if err := sendProgress(ws, prog); err != nil {
				return
			}
		}
		if sess.Status.Terminal() {
			sendFinal(c, ws, sessions, sess.SessionId)
			return
		}

		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case prog := <-ch:
				if err := sendProgress(ws, prog); err != nil {
					return
				}
				if terminalProgress(c, sessions, sess.SessionId) {
					sendFinal(c, ws, sessions, sess.SessionId)
					return
				}
			case <-ticker.C:
				// Keepalive; also catches a session that finished without a
				// final notification reaching this subscriber.
				if err := ws.WriteControl(websocket.PingMessage, nil,
					time.Now().Add(10*time.Second)); err != nil {
					return
				}
				if terminalProgress(c, sessions, sess.SessionId) {
					sendFinal(c, ws, sessions, sess.SessionId)
					return
				}
			case <-c.Request.Context().Done():
				return
			}
		}
	}
}

func sendProgress(ws *websocket.Conn, prog *datatypes.PipelineProgress) error {
	err := ws.WriteJSON(gin.H{"type": "progress", "progress": prog})
	if err != nil {
		slog.Warn("Failed to write WebSocket JSON", "error", err)
	}
	return err
}

func terminalProgress(c *gin.Context, sessions store.SessionStore, sessionId string) bool {
	sess, err := sessions.GetSession(c.Request.Context(), sessionId)
	return err == nil && sess.Status.Terminal()
}

func sendFinal(c *gin.Context, ws *websocket.Conn, sessions store.SessionStore, sessionId string) {
	sess, err := sessions.GetSession(c.Request.Context(), sessionId)
	if err != nil {
		return
	}
	_ = ws.WriteJSON(gin.H{"type": "final", "session": sess})
}
