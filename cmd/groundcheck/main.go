// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command groundcheck is the CLI for the GroundCheck verification service.
//
// It talks to a running orchestrator over HTTP:
//
//	groundcheck ingest notes.md --data-space myproject
//	groundcheck ask "What is our refund policy?" --data-space myproject
//	groundcheck ledger <session-id>
package main

import (
	"log"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("Error executing command: %v", err)
	}
}
