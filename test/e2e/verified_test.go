// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package e2e

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"
)

// TestVerify_Workflow runs the full ingest -> ask -> ledger loop and checks
// that the verified answer carries the planted fact, cites its source, and
// that the ledger records a supported claim.
func TestVerify_Workflow(t *testing.T) {
	requireStack(t)

	// Plant a unique fact so the answer is unambiguous and cannot come
	// from the model's own knowledge.
	uniqueID := time.Now().UnixNano()
	testSpace := fmt.Sprintf("e2e_space_%d", uniqueID)
	secretCode := fmt.Sprintf("Omega-Code-%d", uniqueID)
	testFilename := fmt.Sprintf("protocol_omega_%d.txt", uniqueID)

	testFile := filepath.Join(t.TempDir(), testFilename)
	content := fmt.Sprintf("The activation code for facility %d is strictly %s.", uniqueID, secretCode)
	if err := os.WriteFile(testFile, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write test file: %v", err)
	}

	t.Logf("Ingesting test data: %s", testFile)
	ingestCmd := exec.Command(cliBinary, "ingest", testFile, "--data-space", testSpace)
	if out, err := ingestCmd.CombinedOutput(); err != nil {
		t.Fatalf("Ingestion failed: %v\nOutput: %s", err, string(out))
	}

	question := fmt.Sprintf("What is the activation code for facility %d?", uniqueID)
	askCmd := exec.Command(cliBinary, "ask", question, "--data-space", testSpace)

	start := time.Now()
	outBytes, err := askCmd.CombinedOutput()
	output := string(outBytes)
	if err != nil {
		t.Fatalf("Ask command failed: %v\nOutput: %s", err, output)
	}
	t.Logf("Verification completed in %s", time.Since(start))

	if !strings.Contains(output, secretCode) {
		t.Errorf("Answer did not contain the planted code.\nExpected: %s\nGot: %s", secretCode, output)
	}
	if !strings.Contains(output, "Evidence coverage:") {
		t.Errorf("Answer did not carry the coverage summary.\nOutput: %s", output)
	}

	// Pull the session id out of the CLI's progress line.
	m := regexp.MustCompile(`Session (\S+) started`).FindStringSubmatch(output)
	if m == nil {
		t.Fatalf("Could not find session id in output:\n%s", output)
	}
	sessionId := m[1]

	ledgerCmd := exec.Command(cliBinary, "ledger", sessionId, "--json")
	ledgerBytes, err := ledgerCmd.CombinedOutput()
	if err != nil {
		t.Fatalf("Ledger command failed: %v\nOutput: %s", err, string(ledgerBytes))
	}
	ledger := string(ledgerBytes)
	if !strings.Contains(ledger, `"supported"`) {
		t.Errorf("Ledger contains no supported claim.\nLedger: %s", ledger)
	}
	if !strings.Contains(ledger, testFilename) {
		t.Errorf("Ledger evidence does not cite the source file.\nLedger: %s", ledger)
	}
}

// TestVerify_NoEvidence checks the empty-scope path: asking in a data space
// with no documents still completes, with the missing evidence disclosed as
// zero coverage rather than a hard failure.
func TestVerify_NoEvidence(t *testing.T) {
	requireStack(t)

	emptySpace := fmt.Sprintf("e2e_empty_%d", time.Now().UnixNano())
	askCmd := exec.Command(cliBinary, "ask", "What is our refund policy?",
		"--data-space", emptySpace)

	outBytes, err := askCmd.CombinedOutput()
	output := string(outBytes)
	if err != nil {
		t.Fatalf("Ask in an empty data space should not fail: %v\nOutput: %s", err, output)
	}

	if !strings.Contains(output, "Evidence coverage: 0%") {
		t.Errorf("Expected zero coverage disclosed for an empty data space.\nOutput: %s", output)
	}
}
