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
	"github.com/spf13/cobra"

	"github.com/AleutianAI/GroundCheck/pkg/logging"
)

// --- Global Command Variables ---
var (
	serverURL       string
	dataSpace       string
	outputJSON      bool
	askMode         string
	feedbackComment string
	noWait          bool
	verbose         bool
	logDir          string

	rootCmd = &cobra.Command{
		Use:   "groundcheck",
		Short: "A cli for the GroundCheck answer verification service",
		Long: `GroundCheck verifies LLM-generated answers against your own
documents and produces an auditable evidence ledger per answer.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := logging.LevelInfo
			if verbose {
				level = logging.LevelDebug
			}
			cliLogger = logging.New(logging.Config{
				Level:   level,
				LogDir:  logDir,
				Service: "cli",
			})
			cliLogger.SetAsDefault()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if cliLogger != nil {
				cliLogger.Close()
			}
		},
	}

	cliLogger *logging.Logger

	// --- Documents ---
	ingestCmd = &cobra.Command{
		Use:     "ingest [file...]",
		Short:   "Ingest documents into a data space",
		Aliases: []string{"i"},
		Args:    cobra.MinimumNArgs(1),
		Run:     runIngest, // Defined in cmd_ingest.go
	}
	documentsCmd = &cobra.Command{
		Use:   "documents",
		Short: "Manage ingested documents",
	}
	listDocumentsCmd = &cobra.Command{
		Use:   "list",
		Short: "List documents in a data space with their status",
		Run:   runListDocuments, // Defined in cmd_ingest.go
	}
	deleteDocumentCmd = &cobra.Command{
		Use:   "delete [document_id]",
		Short: "Delete a document and all its chunks",
		Args:  cobra.ExactArgs(1),
		Run:   runDeleteDocument, // Defined in cmd_ingest.go
	}

	// --- Verification ---
	askCmd = &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask a question and wait for the verified answer",
		Args:  cobra.MinimumNArgs(1),
		Run:   runAsk, // Defined in cmd_ask.go
	}
	statusCmd = &cobra.Command{
		Use:   "status [session_id]",
		Short: "Show a verification session's status and summary",
		Args:  cobra.ExactArgs(1),
		Run:   runStatus, // Defined in cmd_sessions.go
	}
	ledgerCmd = &cobra.Command{
		Use:   "ledger [session_id]",
		Short: "Show the evidence ledger for a session",
		Args:  cobra.ExactArgs(1),
		Run:   runLedger, // Defined in cmd_sessions.go
	}

	// --- Sessions ---
	sessionsCmd = &cobra.Command{
		Use:   "sessions",
		Short: "Manage verification sessions",
	}
	listSessionsCmd = &cobra.Command{
		Use:   "list",
		Short: "List sessions in a data space",
		Run:   runListSessions, // Defined in cmd_sessions.go
	}
	cancelSessionCmd = &cobra.Command{
		Use:   "cancel [session_id]",
		Short: "Cancel a running verification session",
		Args:  cobra.ExactArgs(1),
		Run:   runCancelSession, // Defined in cmd_sessions.go
	}
	deleteSessionCmd = &cobra.Command{
		Use:   "delete [session_id]",
		Short: "Delete a session and everything it owns",
		Args:  cobra.ExactArgs(1),
		Run:   runDeleteSession, // Defined in cmd_sessions.go
	}

	// --- Feedback ---
	feedbackCmd = &cobra.Command{
		Use:   "feedback [session_id] [helpful|unhelpful|incorrect|report]",
		Short: "Record feedback on a session's answer",
		Args:  cobra.ExactArgs(2),
		Run:   runFeedback, // Defined in cmd_sessions.go
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "",
		"Orchestrator base URL (default GROUNDCHECK_SERVER or http://localhost:12310)")
	rootCmd.PersistentFlags().StringVarP(&dataSpace, "data-space", "d", "",
		"Data space to operate on (default GROUNDCHECK_DATA_SPACE or 'default')")
	rootCmd.PersistentFlags().BoolVar(&outputJSON, "json", false,
		"Emit raw JSON instead of formatted output")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false,
		"Enable debug logging on stderr")
	rootCmd.PersistentFlags().StringVar(&logDir, "log-dir", "",
		"Also write JSON logs to this directory (e.g. ~/.groundcheck/logs)")

	askCmd.Flags().StringVar(&askMode, "mode", "answer", "Output mode: answer or draft")
	askCmd.Flags().BoolVar(&noWait, "no-wait", false,
		"Submit the question and print the session id without waiting")
	feedbackCmd.Flags().StringVar(&feedbackComment, "comment", "", "Optional comment")

	documentsCmd.AddCommand(listDocumentsCmd, deleteDocumentCmd)
	sessionsCmd.AddCommand(listSessionsCmd, cancelSessionCmd, deleteSessionCmd)
	rootCmd.AddCommand(ingestCmd, documentsCmd, askCmd, statusCmd, ledgerCmd,
		sessionsCmd, feedbackCmd)
}
