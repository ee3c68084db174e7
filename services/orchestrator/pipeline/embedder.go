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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/AleutianAI/GroundCheck/services/orchestrator/datatypes"
)

// Embedder converts text into fixed-length vectors. Documents and queries
// go through the same implementation so similarity scores stay comparable.
type Embedder interface {
	// Embed returns the vector for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch returns one vector per input text, in order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Compile-time interface implementation check.
var _ Embedder = (*HTTPEmbedder)(nil)

// HTTPEmbedder calls the embedding service's /embed and /batch_embed
// endpoints.
type HTTPEmbedder struct {
	baseURL string
	client  *http.Client
}

// NewHTTPEmbedder builds an embedder from EMBEDDING_SERVICE_URL. The batch
// endpoint gets a long timeout; a full document batch can take minutes on
// CPU-only deployments.
func NewHTTPEmbedder() (*HTTPEmbedder, error) {
	baseURL := strings.TrimSuffix(os.Getenv("EMBEDDING_SERVICE_URL"), "/")
	baseURL = strings.TrimSuffix(baseURL, "/embed")
	if baseURL == "" {
		return nil, fmt.Errorf("EMBEDDING_SERVICE_URL is not set")
	}
	return &HTTPEmbedder{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 5 * time.Minute},
	}, nil
}

func (e *HTTPEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	body, err := e.post(ctx, e.baseURL+"/embed", datatypes.EmbeddingRequest{Text: text})
	if err != nil {
		return nil, err
	}
	var resp datatypes.EmbeddingResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse embedding response: %w", err)
	}
	if len(resp.Vector) == 0 {
		return nil, fmt.Errorf("embedding service returned an empty vector")
	}
	return resp.Vector, nil
}

func (e *HTTPEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	body, err := e.post(ctx, e.baseURL+"/batch_embed", datatypes.BatchEmbeddingRequest{Texts: texts})
	if err != nil {
		return nil, err
	}
	var resp datatypes.BatchEmbeddingResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse batch embedding response: %w", err)
	}
	if len(resp.Vectors) != len(texts) {
		return nil, fmt.Errorf("embedding service returned %d vectors for %d texts",
			len(resp.Vectors), len(texts))
	}
	return resp.Vectors, nil
}

func (e *HTTPEmbedder) post(ctx context.Context, url string, payload any) ([]byte, error) {
	reqBody, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal embedding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embedding service call failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read embedding response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		slog.Error("Embedding service returned a non-200 status",
			"url", url, "status", resp.StatusCode)
		return nil, fmt.Errorf("embedding service returned status %d: %s",
			resp.StatusCode, string(body))
	}
	return body, nil
}
