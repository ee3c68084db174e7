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
	"strings"
	"time"

	"github.com/spf13/cobra"
)

// sessionInfo mirrors the orchestrator's session record.
type sessionInfo struct {
	SessionId        string     `json:"session_id"`
	DataSpace        string     `json:"data_space"`
	Query            string     `json:"query"`
	Status           string     `json:"status"`
	FinalResponse    string     `json:"final_response"`
	RiskFlags        []riskFlag `json:"risk_flags"`
	EvidenceCoverage float64    `json:"evidence_coverage"`
	UnsupportedCount int        `json:"unsupported_count"`
	RevisionCycles   int        `json:"revision_cycles"`
	ErrorMessage     string     `json:"error_message"`
}

type riskFlag struct {
	Code     string `json:"code"`
	Severity string `json:"severity"`
	Detail   string `json:"detail"`
}

type progressInfo struct {
	Phase         string `json:"phase"`
	Status        string `json:"status"`
	RevisionCycle int    `json:"revision_cycle"`
}

func terminalStatus(status string) bool {
	return status == "completed" || status == "error"
}

func runAsk(cmd *cobra.Command, args []string) {
	question := strings.Join(args, " ")
	space := getDataSpace()

	body := apiRequest(http.MethodPost, "/v1/verify", map[string]string{
		"query":      question,
		"data_space": space,
		"mode":       askMode,
	})
	var created struct {
		Session sessionInfo `json:"session"`
	}
	decodeInto(body, &created)
	sessionId := created.Session.SessionId

	if noWait {
		fmt.Println(sessionId)
		return
	}
	fmt.Printf("Session %s started, verifying...\n", sessionId)

	sess := waitForSession(sessionId)
	if wantJSON() {
		printJSON(apiRequest(http.MethodGet, "/v1/sessions/"+sessionId, nil))
		return
	}
	printSession(sess)
	fmt.Printf("\nFull evidence ledger: groundcheck ledger %s\n", sessionId)
}

// waitForSession polls until the session reaches a terminal status, printing
// phase transitions as they happen.
func waitForSession(sessionId string) sessionInfo {
	lastPhase := ""
	for {
		time.Sleep(time.Second)

		body := apiRequest(http.MethodGet, "/v1/sessions/"+sessionId+"/progress", nil)
		var progResp struct {
			Progress *progressInfo `json:"progress"`
		}
		decodeInto(body, &progResp)
		if p := progResp.Progress; p != nil {
			phase := p.Phase
			if p.RevisionCycle > 0 {
				phase = fmt.Sprintf("%s (revision %d)", p.Phase, p.RevisionCycle)
			}
			if phase != lastPhase && !wantJSON() {
				fmt.Printf("  phase: %s\n", phase)
				lastPhase = phase
			}
		}

		body = apiRequest(http.MethodGet, "/v1/sessions/"+sessionId, nil)
		var resp struct {
			Session sessionInfo `json:"session"`
		}
		decodeInto(body, &resp)
		if terminalStatus(resp.Session.Status) {
			return resp.Session
		}
	}
}

// printSession renders a terminal session for human eyes.
func printSession(sess sessionInfo) {
	if sess.Status == "error" {
		fmt.Printf("\nVerification failed: %s\n", sess.ErrorMessage)
		return
	}

	fmt.Println()
	fmt.Println(sess.FinalResponse)
	fmt.Println("------------------------------------------------------------------")
	fmt.Printf("Evidence coverage: %.0f%%  Unsupported claims: %d  Revisions: %d\n",
		sess.EvidenceCoverage*100, sess.UnsupportedCount, sess.RevisionCycles)
	for _, f := range sess.RiskFlags {
		fmt.Printf("RISK [%s] %s", strings.ToUpper(f.Severity), f.Code)
		if f.Detail != "" {
			fmt.Printf(": %s", f.Detail)
		}
		fmt.Println()
	}
}
