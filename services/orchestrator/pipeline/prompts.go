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
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// =============================================================================
// Default Role Prompts
// =============================================================================

// The tagging convention in these prompts is load-bearing: the skeptic and
// judge locate claims by their [Source: Sn] / [Model Knowledge: ...] tags,
// and the writer must preserve tags verbatim through revisions.

const defaultWriterPrompt = `You are the Writer. Answer the user's question using ONLY the numbered
context passages below. Every factual statement in your answer MUST end with
a tag identifying where it came from:
  - [Source: Sn] when the statement is backed by context passage Sn
  - [Model Knowledge: writer] when the statement comes from your own knowledge
Do not invent passages. If the context does not answer the question, say so.`

const defaultWriterRevisionPrompt = `You are the Writer, revising a previous draft. The Judge reviewed your draft
and requires changes. Address every revision instruction. Keep all source
tags exactly as specified: [Source: Sn] for passage-backed statements,
[Model Knowledge: writer] for your own knowledge. Statements you do not
change must keep their existing tags verbatim.`

const defaultSkepticPrompt = `You are the Skeptic. Extract EVERY factual claim from the draft below and
assess each against the numbered context passages. Respond with a single
JSON object:
{
  "claims": [
    {
      "text": "<claim text verbatim from the draft>",
      "type": "fact|policy|numeric|definition|scientific|historical|legal",
      "importance": "critical|material|minor",
      "requires_citation": true,
      "verdict": "supported|weak|contradicted|not_found",
      "source_tag": "<the tag the draft attached, if any>",
      "notes": "<one sentence of reasoning>"
    }
  ],
  "structural_findings": ["<missing tag, wrong tag, or overgeneralization>"]
}
Judge each claim only against the provided passages.`

const defaultSkepticEnhancedAddendum = `
Additionally, check each claim against well-established general knowledge in
the domain, independent of the passages. If a passage asserts something that
contradicts well-established facts, set "verdict": "conflict_flagged" and
record BOTH positions in "notes"; do not let one override the other.`

const defaultJudgePrompt = `You are the Judge, the final authority on the Evidence Ledger. You receive
context passages, a draft answer, and the Skeptic's report. The Skeptic's
verdicts are advisory only: re-derive every verdict and confidence yourself
from the passages. Respond with ONLY a JSON object matching this schema:
{
  "verified_response": "<the draft with incorrect statements corrected, optional>",
  "ledger": [
    {
      "text": "<claim text>",
      "type": "fact|policy|numeric|definition|scientific|historical|legal",
      "importance": "critical|material|minor",
      "requires_citation": true,
      "verdict": "supported|weak|contradicted|not_found|expert_verified|conflict_flagged",
      "source_tag": "<tag from the draft>",
      "confidence": 0.0,
      "supporting_chunks": ["<Sn passage ids>"],
      "evidence_snippet": "<the passage text that decides the verdict>",
      "notes": ""
    }
  ],
  "riskFlags": [{"code": "", "severity": "low|medium|high", "detail": ""}],
  "revisionNeeded": false,
  "revisionInstructions": "<exactly which claims to fix and how, when revisionNeeded>"
}`

// =============================================================================
// Prompt Store
// =============================================================================

// RolePrompts holds the system instructions for each pipeline role.
type RolePrompts struct {
	Writer          string `yaml:"writer"`
	WriterRevision  string `yaml:"writer_revision"`
	Skeptic         string `yaml:"skeptic"`
	SkepticEnhanced string `yaml:"skeptic_enhanced"`
	Judge           string `yaml:"judge"`
}

// DefaultRolePrompts returns the built-in prompts.
func DefaultRolePrompts() RolePrompts {
	return RolePrompts{
		Writer:          defaultWriterPrompt,
		WriterRevision:  defaultWriterRevisionPrompt,
		Skeptic:         defaultSkepticPrompt,
		SkepticEnhanced: defaultSkepticPrompt + defaultSkepticEnhancedAddendum,
		Judge:           defaultJudgePrompt,
	}
}

// PromptStore serves the current role prompts and hot-reloads them when the
// prompt file changes on disk. With no file configured it serves the
// built-in defaults.
//
// # Thread Safety
//
// Safe for concurrent use; Get returns a copy under a read lock.
type PromptStore struct {
	mu      sync.RWMutex
	prompts RolePrompts
	path    string
}

// NewPromptStore loads prompts from the given YAML file, or the defaults
// when path is empty. Missing keys in the file fall back to the defaults,
// so a deployment can override a single role.
func NewPromptStore(path string) (*PromptStore, error) {
	ps := &PromptStore{prompts: DefaultRolePrompts(), path: path}
	if path == "" {
		return ps, nil
	}
	if err := ps.reload(); err != nil {
		return nil, err
	}
	return ps, nil
}

// Get returns the current prompts.
func (ps *PromptStore) Get() RolePrompts {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	return ps.prompts
}

// Watch hot-reloads the prompt file on change until the context is
// cancelled. A reload failure keeps the previous prompts; the pipeline
// never runs without a full prompt set.
func (ps *PromptStore) Watch(ctx context.Context) error {
	if ps.path == "" {
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create prompt watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(ps.path)); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch prompt directory: %w", err)
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Name != ps.path {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}
				if err := ps.reload(); err != nil {
					slog.Error("Failed to reload prompts, keeping previous set",
						"path", ps.path, "error", err)
					continue
				}
				slog.Info("Reloaded role prompts", "path", ps.path)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				slog.Warn("Prompt watcher error", "error", err)
			}
		}
	}()
	return nil
}

func (ps *PromptStore) reload() error {
	data, err := os.ReadFile(ps.path)
	if err != nil {
		return fmt.Errorf("failed to read prompt file: %w", err)
	}

	loaded := RolePrompts{}
	if err := yaml.Unmarshal(data, &loaded); err != nil {
		return fmt.Errorf("failed to parse prompt file: %w", err)
	}

	merged := DefaultRolePrompts()
	if loaded.Writer != "" {
		merged.Writer = loaded.Writer
	}
	if loaded.WriterRevision != "" {
		merged.WriterRevision = loaded.WriterRevision
	}
	if loaded.Skeptic != "" {
		merged.Skeptic = loaded.Skeptic
	}
	if loaded.SkepticEnhanced != "" {
		merged.SkepticEnhanced = loaded.SkepticEnhanced
	}
	if loaded.Judge != "" {
		merged.Judge = loaded.Judge
	}

	ps.mu.Lock()
	ps.prompts = merged
	ps.mu.Unlock()
	return nil
}
