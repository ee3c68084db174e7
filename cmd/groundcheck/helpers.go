// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/mattn/go-isatty"
)

// Constants for default connection settings
const (
	DefaultServerURL = "http://localhost:12310"
	DefaultDataSpace = "default"
)

var httpClient = &http.Client{Timeout: 60 * time.Second}

// getBaseURL resolves the orchestrator base URL: flag, then environment,
// then localhost default.
func getBaseURL() string {
	if serverURL != "" {
		return serverURL
	}
	if env := os.Getenv("GROUNDCHECK_SERVER"); env != "" {
		return env
	}
	return DefaultServerURL
}

// getDataSpace resolves the active data space: flag, then environment, then
// "default".
func getDataSpace() string {
	if dataSpace != "" {
		return dataSpace
	}
	if env := os.Getenv("GROUNDCHECK_DATA_SPACE"); env != "" {
		return env
	}
	return DefaultDataSpace
}

// apiRequest issues an HTTP request to the orchestrator and returns the
// response body. A GROUNDCHECK_TOKEN environment variable, when present, is
// forwarded as a bearer token. Any non-2xx response is fatal with the
// orchestrator's error body included.
func apiRequest(method, path string, payload any) []byte {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			log.Fatalf("Failed to encode request: %v", err)
		}
		body = bytes.NewBuffer(data)
	}

	req, err := http.NewRequest(method, getBaseURL()+path, body)
	if err != nil {
		log.Fatalf("Failed to create request: %v", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := os.Getenv("GROUNDCHECK_TOKEN"); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		log.Fatalf("Failed to connect to orchestrator at %s: %v", getBaseURL(), err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		log.Fatalf("Orchestrator returned an error (status %d): %s",
			resp.StatusCode, string(respBody))
	}
	return respBody
}

// decodeInto parses an orchestrator response body into out.
func decodeInto(body []byte, out any) {
	if err := json.Unmarshal(body, out); err != nil {
		log.Fatalf("Failed to parse response from orchestrator: %v", err)
	}
}

// wantJSON reports whether output should be raw JSON: either the --json
// flag, or stdout is not a terminal (piped into jq or a file).
func wantJSON() bool {
	if outputJSON {
		return true
	}
	return !isatty.IsTerminal(os.Stdout.Fd()) && !isatty.IsCygwinTerminal(os.Stdout.Fd())
}

// printJSON pretty-prints raw response bytes.
func printJSON(body []byte) {
	var buf bytes.Buffer
	if err := json.Indent(&buf, body, "", "  "); err != nil {
		fmt.Println(string(body))
		return
	}
	fmt.Println(buf.String())
}
