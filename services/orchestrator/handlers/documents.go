// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package handlers provides HTTP request handlers for the orchestrator
// service.
package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/GroundCheck/pkg/extensions"
	"github.com/AleutianAI/GroundCheck/pkg/validation"
	"github.com/AleutianAI/GroundCheck/services/orchestrator/middleware"
	"github.com/AleutianAI/GroundCheck/services/orchestrator/observability"
	"github.com/AleutianAI/GroundCheck/services/orchestrator/pipeline"
	"github.com/AleutianAI/GroundCheck/services/orchestrator/store"
)

// IngestDocumentRequest is the payload for document ingestion.
type IngestDocumentRequest struct {
	Content     string `json:"content" binding:"required"`
	Source      string `json:"source" binding:"required"`
	DataSpace   string `json:"data_space" binding:"required"`
	ContentType string `json:"content_type"`
}

// IngestDocument receives a document and runs the full ingestion lifecycle.
// The response carries the terminal document record; on ingestion failure
// the document survives in error status for inspection.
func IngestDocument(ingestor *pipeline.Ingestor, opts extensions.ServiceOptions) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req IngestDocumentRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}
		if err := validation.ValidateDataSpace(req.DataSpace); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err := validation.ValidateSourceName(req.Source); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if !middleware.RequireMembership(c, opts.MembershipProvider, req.DataSpace) {
			return
		}

		doc, err := ingestor.Ingest(c.Request.Context(), pipeline.IngestRequest{
			DataSpace:   req.DataSpace,
			Source:      req.Source,
			ContentType: req.ContentType,
			Data:        []byte(req.Content),
		})
		outcome := "success"
		documentId := ""
		if err != nil {
			outcome = "failure"
		}
		if doc != nil {
			documentId = doc.DocumentId
		}
		audit(c, opts, extensions.AuditEvent{
			EventType:    "document.ingest",
			DataSpace:    req.DataSpace,
			ResourceType: "document",
			ResourceID:   documentId,
			Outcome:      outcome,
		})
		if err != nil {
			slog.Error("Ingestion failed", "source", req.Source, "error", err)
			if observability.DefaultMetrics != nil {
				observability.DefaultMetrics.DocumentsIngestedTotal.WithLabelValues("error").Inc()
			}
			status := http.StatusInternalServerError
			resp := gin.H{"error": err.Error()}
			if doc != nil {
				resp["document"] = doc
			}
			c.JSON(status, resp)
			return
		}

		if observability.DefaultMetrics != nil {
			observability.DefaultMetrics.DocumentsIngestedTotal.WithLabelValues("ready").Inc()
			observability.DefaultMetrics.ChunksPerDocument.Observe(float64(doc.ChunkCount))
		}
		slog.Info("Successfully ingested document via API",
			"source", req.Source, "document_id", doc.DocumentId, "chunks", doc.ChunkCount)
		c.JSON(http.StatusCreated, gin.H{"document": doc})
	}
}

// ListDocuments returns all document metadata in a data space, every
// status included so callers can watch processing and error states.
func ListDocuments(sessions store.SessionStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		dataSpace := c.Param("dataSpace")
		docs, err := sessions.ListDocuments(c.Request.Context(), dataSpace)
		if err != nil {
			slog.Error("Failed to list documents", "data_space", dataSpace, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list documents"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"data_space": dataSpace, "documents": docs})
	}
}

// GetDocument returns a single document's metadata.
func GetDocument(sessions store.SessionStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		dataSpace := c.Param("dataSpace")
		documentId := c.Param("documentId")
		doc, err := sessions.GetDocument(c.Request.Context(), dataSpace, documentId)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "document not found"})
				return
			}
			slog.Error("Failed to get document", "document_id", documentId, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get document"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"document": doc})
	}
}

// DeleteDocument removes a document's chunks and metadata.
func DeleteDocument(ingestor *pipeline.Ingestor, opts extensions.ServiceOptions) gin.HandlerFunc {
	return func(c *gin.Context) {
		dataSpace := c.Param("dataSpace")
		documentId := c.Param("documentId")
		err := ingestor.DeleteDocument(c.Request.Context(), dataSpace, documentId)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "document not found"})
				return
			}
			slog.Error("Failed to delete document", "document_id", documentId, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete document"})
			return
		}
		audit(c, opts, extensions.AuditEvent{
			EventType:    "document.delete",
			DataSpace:    dataSpace,
			ResourceType: "document",
			ResourceID:   documentId,
			Outcome:      "success",
		})
		c.JSON(http.StatusOK, gin.H{"status": "deleted", "document_id": documentId})
	}
}
