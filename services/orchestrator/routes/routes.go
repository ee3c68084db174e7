// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package routes registers the orchestrator's HTTP surface.
package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/AleutianAI/GroundCheck/pkg/extensions"
	"github.com/AleutianAI/GroundCheck/services/orchestrator/handlers"
	"github.com/AleutianAI/GroundCheck/services/orchestrator/middleware"
	"github.com/AleutianAI/GroundCheck/services/orchestrator/pipeline"
	"github.com/AleutianAI/GroundCheck/services/orchestrator/store"
)

// Deps bundles everything the route handlers need. All fields are required
// unless noted.
type Deps struct {
	Sessions store.SessionStore
	Pipeline *pipeline.Pipeline
	Ingestor *pipeline.Ingestor
	Registry *pipeline.CancelRegistry
	Hub      *handlers.ProgressHub
	Limiter  *middleware.KeyedRateLimiter
	Opts     extensions.ServiceOptions

	// EnableMetrics exposes /metrics when true.
	EnableMetrics bool
}

// SetupRoutes registers all routes on the given engine.
//
// Everything under /v1 requires authentication. Data-space scoped routes
// additionally enforce membership: document routes carry the data space in
// the path and are checked by middleware, while session routes resolve the
// data space from the stored session inside the handler.
func SetupRoutes(router *gin.Engine, d Deps) {
	router.GET("/health", handlers.HealthCheck)
	if d.EnableMetrics {
		router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	v1 := router.Group("/v1")
	v1.Use(middleware.AuthMiddleware(d.Opts.AuthProvider))
	{
		v1.POST("/verify",
			middleware.RateLimitMiddleware(d.Limiter, "verify"),
			handlers.HandleVerify(d.Sessions, d.Pipeline, d.Opts))
		v1.POST("/documents",
			middleware.RateLimitMiddleware(d.Limiter, "ingest"),
			handlers.IngestDocument(d.Ingestor, d.Opts))

		sessions := v1.Group("/sessions")
		{
			sessions.GET("", handlers.ListSessions(d.Sessions, d.Opts))
			sessions.GET("/:sessionId", handlers.GetSession(d.Sessions, d.Opts))
			sessions.DELETE("/:sessionId", handlers.DeleteSession(d.Sessions, d.Registry, d.Opts))
			sessions.GET("/:sessionId/ledger", handlers.GetLedger(d.Sessions, d.Opts))
			sessions.GET("/:sessionId/progress", handlers.GetProgress(d.Sessions, d.Opts))
			sessions.GET("/:sessionId/stream", handlers.StreamProgress(d.Sessions, d.Hub, d.Opts))
			sessions.POST("/:sessionId/cancel", handlers.CancelSession(d.Sessions, d.Registry, d.Opts))
			sessions.POST("/:sessionId/feedback", handlers.CreateFeedback(d.Sessions, d.Opts))
			sessions.GET("/:sessionId/feedback", handlers.ListFeedback(d.Sessions, d.Opts))
		}

		spaces := v1.Group("/dataspaces/:dataSpace")
		spaces.Use(middleware.MembershipMiddleware(d.Opts.MembershipProvider))
		{
			spaces.GET("/documents", handlers.ListDocuments(d.Sessions))
			spaces.GET("/documents/:documentId", handlers.GetDocument(d.Sessions))
			spaces.DELETE("/documents/:documentId", handlers.DeleteDocument(d.Ingestor, d.Opts))
		}
	}
}
