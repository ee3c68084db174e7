// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package validation provides input validation utilities for security-critical operations.
//
// This package contains validators for user-provided inputs that end up in
// database filters, vector store queries, or object store keys. Using these
// validators prevents injection attacks and path traversal.
package validation

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// dataSpacePattern matches valid data space identifiers.
// Allows: lowercase letters, digits, hyphens and underscores between them.
// Max length: 64 characters.
var dataSpacePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_\-]{0,63}$`)

// MaxQueryLength bounds a verification query. Queries feed prompt
// construction; anything longer is almost certainly a pasted document that
// belongs in ingestion instead.
const MaxQueryLength = 8192

// MaxSourceNameLength bounds an uploaded document's source name.
const MaxSourceNameLength = 255

// ValidateDataSpace validates a data space identifier.
//
// Valid identifiers:
//   - 1-64 characters
//   - Lowercase letters a-z, digits 0-9
//   - Hyphens and underscores after the first character
//
// The identifier is used verbatim in Weaviate filters, Badger key prefixes,
// and object store paths, so the character set is deliberately narrow.
//
// Example:
//
//	if err := validation.ValidateDataSpace(space); err != nil {
//	    return fmt.Errorf("invalid data space: %w", err)
//	}
func ValidateDataSpace(dataSpace string) error {
	if dataSpace == "" {
		return fmt.Errorf("data space cannot be empty")
	}
	if !dataSpacePattern.MatchString(dataSpace) {
		return fmt.Errorf("invalid data space format: %q (must be 1-64 lowercase alphanumeric chars, hyphens, or underscores)", dataSpace)
	}
	return nil
}

// ValidateQuery validates a verification query.
func ValidateQuery(query string) error {
	trimmed := strings.TrimSpace(query)
	if trimmed == "" {
		return fmt.Errorf("query cannot be empty")
	}
	if len(trimmed) > MaxQueryLength {
		return fmt.Errorf("query exceeds %d bytes", MaxQueryLength)
	}
	if !utf8.ValidString(trimmed) {
		return fmt.Errorf("query is not valid UTF-8")
	}
	return nil
}

// ValidateSourceName validates an uploaded document's source name and
// rejects path traversal. The name becomes part of the object store key.
func ValidateSourceName(source string) error {
	if source == "" {
		return fmt.Errorf("source name cannot be empty")
	}
	if len(source) > MaxSourceNameLength {
		return fmt.Errorf("source name exceeds %d characters", MaxSourceNameLength)
	}
	if strings.Contains(source, "..") || strings.ContainsAny(source, "/\\\x00") {
		return fmt.Errorf("source name must not contain path separators or traversal sequences")
	}
	return nil
}
