// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package validation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateDataSpace(t *testing.T) {
	valid := []string{"default", "team-a", "project_42", "a", strings.Repeat("x", 64)}
	for _, s := range valid {
		assert.NoError(t, ValidateDataSpace(s), "expected %q to be valid", s)
	}

	invalid := []string{
		"",
		"UPPER",
		"-leading-hyphen",
		"_leading_underscore",
		"has space",
		"has/slash",
		"has.dot",
		strings.Repeat("x", 65),
	}
	for _, s := range invalid {
		assert.Error(t, ValidateDataSpace(s), "expected %q to be rejected", s)
	}
}

func TestValidateQuery(t *testing.T) {
	assert.NoError(t, ValidateQuery("How long is the refund window?"))

	assert.Error(t, ValidateQuery(""))
	assert.Error(t, ValidateQuery("   \n\t "))
	assert.Error(t, ValidateQuery(strings.Repeat("a", MaxQueryLength+1)))
	assert.Error(t, ValidateQuery("broken \xff encoding"))
}

func TestValidateSourceName(t *testing.T) {
	assert.NoError(t, ValidateSourceName("policy.md"))
	assert.NoError(t, ValidateSourceName("2024 Annual Report.pdf"))

	assert.Error(t, ValidateSourceName(""))
	assert.Error(t, ValidateSourceName("../etc/passwd"))
	assert.Error(t, ValidateSourceName("a/b.md"))
	assert.Error(t, ValidateSourceName(`a\b.md`))
	assert.Error(t, ValidateSourceName("nul\x00byte"))
	assert.Error(t, ValidateSourceName(strings.Repeat("x", MaxSourceNameLength+1)))
}
