// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

// EmbeddingRequest is the payload for the embedding service's /embed
// endpoint. The same endpoint is used for documents and queries so that
// similarity scores stay comparable.
type EmbeddingRequest struct {
	Text string `json:"text"`
}

// EmbeddingResponse is the embedding service's reply: one fixed-dimension
// float vector per request.
type EmbeddingResponse struct {
	Id        string    `json:"id"`
	Timestamp int64     `json:"timestamp"`
	Text      string    `json:"text"`
	Vector    []float32 `json:"vector"`
	Model     string    `json:"model,omitempty"`
	Dim       int       `json:"dim"`
}

// BatchEmbeddingRequest is the payload for /batch_embed.
type BatchEmbeddingRequest struct {
	Texts []string `json:"texts"`
}

// BatchEmbeddingResponse carries one vector per input text, in order.
type BatchEmbeddingResponse struct {
	Id        string      `json:"id"`
	Timestamp int64       `json:"timestamp"`
	Vectors   [][]float32 `json:"vectors"`
	Model     string      `json:"model"`
	Dim       int         `json:"dim"`
}
