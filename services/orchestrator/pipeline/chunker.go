// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package pipeline implements the claim-verification pipeline: chunking and
// ingestion of documents, retrieval, drafting, adversarial critique,
// adjudication into an Evidence Ledger, and the bounded-revision state
// machine that drives a session from query to verified answer.
package pipeline

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Chunker configuration defaults. A 1500-character budget keeps a chunk
// inside a single embedding context while staying large enough that a claim
// and its qualifiers usually land in the same chunk.
const (
	DefaultChunkSize    = 1500
	DefaultChunkOverlap = 100
)

// ChunkerConfig controls the sliding-window splitter.
type ChunkerConfig struct {
	// ChunkSize is the character budget per chunk.
	ChunkSize int
	// Overlap is how many characters consecutive chunks share.
	Overlap int
}

// DefaultChunkerConfig returns the production defaults.
func DefaultChunkerConfig() ChunkerConfig {
	return ChunkerConfig{ChunkSize: DefaultChunkSize, Overlap: DefaultChunkOverlap}
}

// ChunkPiece is one split passage with its identity and location.
type ChunkPiece struct {
	Index       int
	Content     string
	ContentHash string
	PageHint    string
	StartOffset int
	EndOffset   int
}

// sentence- or line-boundary markers, searched backward from a window end.
// Ordered longest-first so ".\n" wins over "\n" at the same position.
var boundaryMarkers = []string{". ", ".\n", "? ", "?\n", "! ", "!\n", "\n"}

// SplitText splits normalized document text into overlapping chunks.
//
// # Description
//
// Walks the text in windows of ChunkSize characters. When a window would end
// mid-sentence, the split point is moved backward to the nearest sentence or
// line boundary, but only within the latter half of the window, so that a
// claim is not severed across a chunk boundary. The start pointer then
// advances to (end − Overlap); a window that would not move the start
// strictly forward advances to the window end instead, which guarantees
// termination on any input. Whitespace-only windows are dropped but still
// advance the walk.
//
// # Inputs
//
//   - text: Normalized document text. May be empty.
//   - cfg: Splitter configuration; zero values fall back to defaults.
//
// # Outputs
//
//   - []ChunkPiece: Ordered chunks with content hashes and byte offsets.
//     Empty slice for empty or whitespace-only input.
func SplitText(text string, cfg ChunkerConfig) []ChunkPiece {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultChunkSize
	}
	if cfg.Overlap < 0 || cfg.Overlap >= cfg.ChunkSize {
		cfg.Overlap = DefaultChunkOverlap
		if cfg.Overlap >= cfg.ChunkSize {
			cfg.Overlap = cfg.ChunkSize / 10
		}
	}

	var pieces []ChunkPiece
	start := 0
	index := 0

	for start < len(text) {
		end := start + cfg.ChunkSize
		if end >= len(text) {
			end = len(text)
		} else {
			end = breakAtBoundary(text, start, end)
		}

		window := text[start:end]
		if strings.TrimSpace(window) != "" {
			pieces = append(pieces, ChunkPiece{
				Index:       index,
				Content:     window,
				ContentHash: HashContent(window),
				PageHint:    headingBefore(text, start),
				StartOffset: start,
				EndOffset:   end,
			})
			index++
		}

		if end >= len(text) {
			break
		}

		next := end - cfg.Overlap
		// Never move the start at or before the previous start; a pathological
		// boundary position must not stall the walk.
		if next <= start {
			next = end
		}
		start = next
	}

	return pieces
}

// breakAtBoundary searches backward from end (exclusive) for the nearest
// sentence- or line-boundary, restricted to the latter half of the window.
// If no boundary exists there, the hard cut at end stands.
func breakAtBoundary(text string, start, end int) int {
	half := start + (end-start)/2
	window := text[half:end]

	best := -1
	bestLen := 0
	for _, marker := range boundaryMarkers {
		if idx := strings.LastIndex(window, marker); idx > best {
			best = idx
			bestLen = len(marker)
		}
	}
	if best < 0 {
		return end
	}
	// Cut after the boundary marker so the punctuation stays with its
	// sentence; trailing whitespace belongs to the next window.
	return half + best + bestLen
}

// headingBefore returns the most recent markdown heading line preceding the
// offset, used as an optional locator for attribution. Empty when the text
// has no headings.
func headingBefore(text string, offset int) string {
	segment := text[:offset]
	lineStart := -1
	if strings.HasPrefix(segment, "#") {
		lineStart = 0
	}
	if idx := strings.LastIndex(segment, "\n#"); idx >= 0 {
		lineStart = idx + 1
	}
	if lineStart < 0 {
		return ""
	}
	line := text[lineStart:]
	if nl := strings.IndexByte(line, '\n'); nl >= 0 {
		line = line[:nl]
	}
	return strings.TrimSpace(strings.TrimLeft(line, "# "))
}

// HashContent returns the hex SHA-256 of chunk content, the dedup key
// within a document.
func HashContent(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}
