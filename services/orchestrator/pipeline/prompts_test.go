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
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPromptStore_EmptyPathServesDefaults(t *testing.T) {
	ps, err := NewPromptStore("")

	require.NoError(t, err)
	assert.Equal(t, DefaultRolePrompts(), ps.Get())
}

func TestNewPromptStore_FileOverridesMergePerRole(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "prompts.yaml")
	require.NoError(t, os.WriteFile(path, []byte(
		"judge: |\n  Custom judge instructions.\n"), 0o644))

	ps, err := NewPromptStore(path)

	require.NoError(t, err)
	got := ps.Get()
	assert.Equal(t, "Custom judge instructions.\n", got.Judge)
	// Roles the file does not name keep their defaults.
	assert.Equal(t, DefaultRolePrompts().Writer, got.Writer)
	assert.Equal(t, DefaultRolePrompts().Skeptic, got.Skeptic)
}

func TestNewPromptStore_MissingFileErrors(t *testing.T) {
	_, err := NewPromptStore(filepath.Join(t.TempDir(), "absent.yaml"))

	assert.Error(t, err)
}

func TestNewPromptStore_MalformedYAMLErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompts.yaml")
	require.NoError(t, os.WriteFile(path, []byte("judge: [unclosed"), 0o644))

	_, err := NewPromptStore(path)

	assert.Error(t, err)
}

func TestDefaultRolePrompts_EnhancedSkepticExtendsBase(t *testing.T) {
	p := DefaultRolePrompts()

	assert.Contains(t, p.SkepticEnhanced, p.Skeptic)
	assert.Contains(t, p.SkepticEnhanced, "conflict_flagged")
}
