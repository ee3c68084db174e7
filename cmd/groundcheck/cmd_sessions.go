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
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/spf13/cobra"
)

type ledgerView struct {
	Claim struct {
		Text       string `json:"text"`
		Type       string `json:"type"`
		Importance string `json:"importance"`
	} `json:"claim"`
	Entry struct {
		Verdict         string  `json:"verdict"`
		SourceTag       string  `json:"source_tag"`
		Confidence      float64 `json:"confidence"`
		EvidenceSnippet string  `json:"evidence_snippet"`
		Notes           string  `json:"notes"`
	} `json:"entry"`
}

func runStatus(cmd *cobra.Command, args []string) {
	body := apiRequest(http.MethodGet, "/v1/sessions/"+args[0], nil)
	if wantJSON() {
		printJSON(body)
		return
	}

	var resp struct {
		Session sessionInfo `json:"session"`
	}
	decodeInto(body, &resp)
	s := resp.Session
	fmt.Printf("Session: %s\nData space: %s\nStatus: %s\nQuery: %s\n",
		s.SessionId, s.DataSpace, s.Status, s.Query)
	if terminalStatus(s.Status) {
		printSession(s)
	}
}

func runLedger(cmd *cobra.Command, args []string) {
	body := apiRequest(http.MethodGet, "/v1/sessions/"+args[0]+"/ledger", nil)
	if wantJSON() {
		printJSON(body)
		return
	}

	var resp struct {
		SessionId        string       `json:"session_id"`
		Status           string       `json:"status"`
		Authoritative    bool         `json:"authoritative"`
		EvidenceCoverage float64      `json:"evidence_coverage"`
		RiskFlags        []riskFlag   `json:"risk_flags"`
		Ledger           []ledgerView `json:"ledger"`
	}
	decodeInto(body, &resp)

	fmt.Printf("Evidence Ledger for %s (status: %s, coverage: %.0f%%)\n",
		resp.SessionId, resp.Status, resp.EvidenceCoverage*100)
	if !resp.Authoritative {
		fmt.Println("NOTE: session not completed, verdicts are not final.")
	}
	for _, f := range resp.RiskFlags {
		fmt.Printf("RISK [%s] %s: %s\n", strings.ToUpper(f.Severity), f.Code, f.Detail)
	}
	if len(resp.Ledger) == 0 {
		fmt.Println("\nNo claims recorded.")
		return
	}

	fmt.Println("------------------------------------------------------------------")
	for i, v := range resp.Ledger {
		fmt.Printf("%d. [%s/%s] %s\n", i+1, v.Claim.Importance, v.Claim.Type, v.Claim.Text)
		fmt.Printf("   verdict: %s (confidence %.2f, source %s)\n",
			v.Entry.Verdict, v.Entry.Confidence, orDash(v.Entry.SourceTag))
		if v.Entry.EvidenceSnippet != "" {
			fmt.Printf("   evidence: %s\n", v.Entry.EvidenceSnippet)
		}
		if v.Entry.Notes != "" {
			fmt.Printf("   notes: %s\n", v.Entry.Notes)
		}
	}
}

func runListSessions(cmd *cobra.Command, args []string) {
	space := getDataSpace()
	body := apiRequest(http.MethodGet,
		"/v1/sessions?data_space="+url.QueryEscape(space), nil)
	if wantJSON() {
		printJSON(body)
		return
	}

	var resp struct {
		Sessions []sessionInfo `json:"sessions"`
	}
	decodeInto(body, &resp)
	if len(resp.Sessions) == 0 {
		fmt.Printf("No sessions in data space %q.\n", space)
		return
	}

	fmt.Printf("Sessions in %q:\n", space)
	fmt.Println("------------------------------------------------------------------")
	for _, s := range resp.Sessions {
		fmt.Printf("ID: %s\nStatus: %s  Coverage: %.0f%%\nQuery: %s\n\n",
			s.SessionId, s.Status, s.EvidenceCoverage*100, s.Query)
	}
}

func runCancelSession(cmd *cobra.Command, args []string) {
	body := apiRequest(http.MethodPost, "/v1/sessions/"+args[0]+"/cancel", nil)
	var resp map[string]any
	decodeInto(body, &resp)
	fmt.Printf("Cancelled: %v\n", resp["cancelled"])
}

func runDeleteSession(cmd *cobra.Command, args []string) {
	body := apiRequest(http.MethodDelete, "/v1/sessions/"+args[0], nil)
	var resp map[string]any
	decodeInto(body, &resp)
	fmt.Printf("Success: %v\n", resp["status"])
}

func runFeedback(cmd *cobra.Command, args []string) {
	payload := map[string]string{"type": args[1]}
	if feedbackComment != "" {
		payload["comment"] = feedbackComment
	}
	body := apiRequest(http.MethodPost, "/v1/sessions/"+args[0]+"/feedback", payload)
	var resp map[string]any
	decodeInto(body, &resp)
	fmt.Println("Feedback recorded.")
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
