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

import (
	"encoding/json"
	"fmt"

	"github.com/weaviate/weaviate/entities/models"
)

// ParseGraphQLResponse parses a Weaviate GraphQL response into the target
// type via the marshal/unmarshal pattern. Weaviate returns dynamic
// map[string]models.JSONObject data; the target type T must carry json tags
// matching the response shape. Type mismatches produce zero values, not
// errors, so callers should validate required fields after parsing.
func ParseGraphQLResponse[T any](resp *models.GraphQLResponse) (*T, error) {
	if resp == nil {
		return nil, fmt.Errorf("nil GraphQL response")
	}
	if len(resp.Errors) > 0 {
		return nil, fmt.Errorf("GraphQL query returned an error: %s", resp.Errors[0].Message)
	}

	respBytes, err := json.Marshal(resp.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal GraphQL response data: %w", err)
	}

	var parsed T
	if err := json.Unmarshal(respBytes, &parsed); err != nil {
		return nil, fmt.Errorf("failed to unmarshal GraphQL response: %w", err)
	}
	return &parsed, nil
}

// ChunkQueryResult is one DocumentChunk row as returned by a GraphQL Get.
type ChunkQueryResult struct {
	Content      string `json:"content"`
	ContentHash  string `json:"content_hash"`
	DocumentId   string `json:"document_id"`
	ParentSource string `json:"parent_source"`
	DataSpace    string `json:"data_space"`
	ChunkIndex   int    `json:"chunk_index"`
	PageHint     string `json:"page_hint"`
	StartOffset  int    `json:"start_offset"`
	EndOffset    int    `json:"end_offset"`
	Additional   struct {
		Id        string  `json:"id"`
		Certainty float64 `json:"certainty"`
	} `json:"_additional"`
}

// ChunkQueryResponse is the envelope for DocumentChunk Get queries.
type ChunkQueryResponse struct {
	Get struct {
		DocumentChunk []ChunkQueryResult `json:"DocumentChunk"`
	} `json:"Get"`
}
