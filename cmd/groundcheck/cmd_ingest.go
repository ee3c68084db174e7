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
	"log"
	"mime"
	"net/http"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

// documentInfo mirrors the fields of the orchestrator's document record the
// CLI cares about.
type documentInfo struct {
	DocumentId string `json:"document_id"`
	Source     string `json:"source"`
	Status     string `json:"status"`
	ChunkCount int    `json:"chunk_count"`
	ErrorMsg   string `json:"error_message"`
}

func runIngest(cmd *cobra.Command, args []string) {
	space := getDataSpace()
	for _, path := range args {
		data, err := os.ReadFile(path)
		if err != nil {
			log.Fatalf("Failed to read %s: %v", path, err)
		}
		contentType := mime.TypeByExtension(filepath.Ext(path))
		if contentType == "" {
			contentType = "text/plain"
		}

		fmt.Printf("Ingesting %s into data space %q...\n", path, space)
		body := apiRequest(http.MethodPost, "/v1/documents", map[string]string{
			"content":      string(data),
			"source":       filepath.Base(path),
			"data_space":   space,
			"content_type": contentType,
		})

		var resp struct {
			Document documentInfo `json:"document"`
		}
		decodeInto(body, &resp)
		fmt.Printf("  %s: %s (%d chunks)\n",
			resp.Document.DocumentId, resp.Document.Status, resp.Document.ChunkCount)
	}
}

func runListDocuments(cmd *cobra.Command, args []string) {
	space := getDataSpace()
	body := apiRequest(http.MethodGet, "/v1/dataspaces/"+space+"/documents", nil)
	if wantJSON() {
		printJSON(body)
		return
	}

	var resp struct {
		Documents []documentInfo `json:"documents"`
	}
	decodeInto(body, &resp)
	if len(resp.Documents) == 0 {
		fmt.Printf("No documents in data space %q.\n", space)
		return
	}

	fmt.Printf("Documents in %q:\n", space)
	fmt.Println("------------------------------------------------------------------")
	for _, d := range resp.Documents {
		fmt.Printf("ID: %s\nSource: %s\nStatus: %s  Chunks: %d\n",
			d.DocumentId, d.Source, d.Status, d.ChunkCount)
		if d.ErrorMsg != "" {
			fmt.Printf("Error: %s\n", d.ErrorMsg)
		}
		fmt.Println()
	}
}

func runDeleteDocument(cmd *cobra.Command, args []string) {
	space := getDataSpace()
	documentId := args[0]
	fmt.Printf("Deleting document %s from data space %q...\n", documentId, space)
	body := apiRequest(http.MethodDelete,
		"/v1/dataspaces/"+space+"/documents/"+documentId, nil)

	var resp map[string]any
	decodeInto(body, &resp)
	fmt.Printf("Success: %v\n", resp["status"])
}
