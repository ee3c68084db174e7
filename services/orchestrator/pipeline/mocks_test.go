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
	"sync"

	"github.com/AleutianAI/GroundCheck/services/llm"
	"github.com/AleutianAI/GroundCheck/services/orchestrator/datatypes"
	"github.com/AleutianAI/GroundCheck/services/orchestrator/store"
)

// =============================================================================
// Mock LLM Client
// =============================================================================

// mockLLM scripts Chat responses in call order; when the script runs out the
// last response repeats. Generate delegates to the same script.
type mockLLM struct {
	mu        sync.Mutex
	responses []string
	errs      []error
	calls     [][]datatypes.Message
}

var _ llm.LLMClient = (*mockLLM)(nil)

func (m *mockLLM) next() (string, error) {
	i := len(m.calls) - 1
	if i >= len(m.responses) {
		i = len(m.responses) - 1
	}
	var err error
	if len(m.calls)-1 < len(m.errs) {
		err = m.errs[len(m.calls)-1]
	}
	if i < 0 {
		return "", err
	}
	return m.responses[i], err
}

func (m *mockLLM) Chat(ctx context.Context, messages []datatypes.Message,
	params llm.GenerationParams) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, messages)
	return m.next()
}

func (m *mockLLM) Generate(ctx context.Context, prompt string,
	params llm.GenerationParams) (string, error) {
	return m.Chat(ctx, []datatypes.Message{{Role: "user", Content: prompt}}, params)
}

func (m *mockLLM) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// lastUserContent returns the user turn of the most recent call.
func (m *mockLLM) lastUserContent() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.calls) == 0 {
		return ""
	}
	msgs := m.calls[len(m.calls)-1]
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == "user" {
			return msgs[i].Content
		}
	}
	return ""
}

// =============================================================================
// Mock Session Store
// =============================================================================

// memSessionStore is an in-memory SessionStore for pipeline tests.
type memSessionStore struct {
	mu       sync.Mutex
	docs     map[string]*datatypes.Document
	sessions map[string]*datatypes.Session
	claims   map[string][]datatypes.Claim
	entries  map[string][]datatypes.LedgerEntry
	progress map[string]*datatypes.PipelineProgress
	feedback map[string][]datatypes.Feedback

	replaceCalls int
}

var _ store.SessionStore = (*memSessionStore)(nil)

func newMemSessionStore() *memSessionStore {
	return &memSessionStore{
		docs:     make(map[string]*datatypes.Document),
		sessions: make(map[string]*datatypes.Session),
		claims:   make(map[string][]datatypes.Claim),
		entries:  make(map[string][]datatypes.LedgerEntry),
		progress: make(map[string]*datatypes.PipelineProgress),
		feedback: make(map[string][]datatypes.Feedback),
	}
}

func (s *memSessionStore) docKey(dataSpace, documentId string) string {
	return dataSpace + "/" + documentId
}

func (s *memSessionStore) CreateDocument(ctx context.Context, doc *datatypes.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *doc
	s.docs[s.docKey(doc.DataSpace, doc.DocumentId)] = &cp
	return nil
}

func (s *memSessionStore) UpdateDocument(ctx context.Context, doc *datatypes.Document) error {
	return s.CreateDocument(ctx, doc)
}

func (s *memSessionStore) GetDocument(ctx context.Context, dataSpace, documentId string) (*datatypes.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[s.docKey(dataSpace, documentId)]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *doc
	return &cp, nil
}

func (s *memSessionStore) ListDocuments(ctx context.Context, dataSpace string) ([]datatypes.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []datatypes.Document
	for _, d := range s.docs {
		if d.DataSpace == dataSpace {
			out = append(out, *d)
		}
	}
	return out, nil
}

func (s *memSessionStore) ReadyDocuments(ctx context.Context, dataSpace string) ([]datatypes.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []datatypes.Document
	for _, d := range s.docs {
		if d.DataSpace == dataSpace && d.Status == datatypes.DocumentReady {
			out = append(out, *d)
		}
	}
	return out, nil
}

func (s *memSessionStore) DeleteDocument(ctx context.Context, dataSpace, documentId string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := s.docKey(dataSpace, documentId)
	if _, ok := s.docs[key]; !ok {
		return store.ErrNotFound
	}
	delete(s.docs, key)
	return nil
}

func (s *memSessionStore) CreateSession(ctx context.Context, sess *datatypes.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *sess
	s.sessions[sess.SessionId] = &cp
	return nil
}

func (s *memSessionStore) UpdateSession(ctx context.Context, sess *datatypes.Session) error {
	return s.CreateSession(ctx, sess)
}

func (s *memSessionStore) GetSession(ctx context.Context, sessionId string) (*datatypes.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionId]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *sess
	return &cp, nil
}

func (s *memSessionStore) ListSessions(ctx context.Context, dataSpace string) ([]datatypes.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []datatypes.Session
	for _, sess := range s.sessions {
		if dataSpace == "" || sess.DataSpace == dataSpace {
			out = append(out, *sess)
		}
	}
	return out, nil
}

func (s *memSessionStore) ReplaceVerdicts(ctx context.Context, sessionId string,
	claims []datatypes.Claim, entries []datatypes.LedgerEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replaceCalls++
	s.claims[sessionId] = append([]datatypes.Claim(nil), claims...)
	s.entries[sessionId] = append([]datatypes.LedgerEntry(nil), entries...)
	return nil
}

func (s *memSessionStore) GetClaims(ctx context.Context, sessionId string) ([]datatypes.Claim, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]datatypes.Claim(nil), s.claims[sessionId]...), nil
}

func (s *memSessionStore) GetLedgerEntries(ctx context.Context, sessionId string) ([]datatypes.LedgerEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]datatypes.LedgerEntry(nil), s.entries[sessionId]...), nil
}

func (s *memSessionStore) UpsertProgress(ctx context.Context, prog *datatypes.PipelineProgress) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *prog
	s.progress[prog.SessionId] = &cp
	return nil
}

func (s *memSessionStore) GetProgress(ctx context.Context, sessionId string) (*datatypes.PipelineProgress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prog, ok := s.progress[sessionId]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *prog
	return &cp, nil
}

func (s *memSessionStore) SaveFeedback(ctx context.Context, fb *datatypes.Feedback) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.feedback[fb.SessionId] = append(s.feedback[fb.SessionId], *fb)
	return nil
}

func (s *memSessionStore) ListFeedback(ctx context.Context, sessionId string) ([]datatypes.Feedback, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]datatypes.Feedback(nil), s.feedback[sessionId]...), nil
}

func (s *memSessionStore) DeleteSessionCascade(ctx context.Context, sessionId string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.feedback, sessionId)
	delete(s.entries, sessionId)
	delete(s.claims, sessionId)
	delete(s.progress, sessionId)
	delete(s.sessions, sessionId)
	return nil
}

// =============================================================================
// Mock Chunk Store & Embedder
// =============================================================================

// memChunkStore serves a fixed result set and records inserts.
type memChunkStore struct {
	mu          sync.Mutex
	results     []datatypes.ScoredChunk
	inserted    []datatypes.Chunk
	searchCalls int
	deleted     []string
}

var _ store.ChunkStore = (*memChunkStore)(nil)

func (s *memChunkStore) PutChunks(ctx context.Context, doc *datatypes.Document,
	chunks []datatypes.Chunk, vectors [][]float32) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inserted = append(s.inserted, chunks...)
	return len(chunks), nil
}

func (s *memChunkStore) Search(ctx context.Context, dataSpace string, documentIds []string,
	vector []float32, limit int, threshold float64) ([]datatypes.ScoredChunk, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.searchCalls++
	return s.results, nil
}

func (s *memChunkStore) GetChunk(ctx context.Context, chunkId string) (*datatypes.Chunk, error) {
	return nil, store.ErrNotFound
}

func (s *memChunkStore) DeleteByDocument(ctx context.Context, documentId string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleted = append(s.deleted, documentId)
	return nil
}

// mockEmbedder returns a constant vector and counts calls.
type mockEmbedder struct {
	mu    sync.Mutex
	calls int
	err   error
}

var _ Embedder = (*mockEmbedder)(nil)

func (e *mockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return e.embed(1)
}

func (e *mockEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	v, err := e.embed(len(texts))
	if err != nil {
		return nil, err
	}
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = v
	}
	return out, nil
}

func (e *mockEmbedder) embed(n int) ([]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	if e.err != nil {
		return nil, e.err
	}
	return []float32{0.1, 0.2, 0.3}, nil
}

func (e *mockEmbedder) callCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

// =============================================================================
// Shared Builders
// =============================================================================

func testPrompts() *PromptStore {
	ps, err := NewPromptStore("")
	if err != nil {
		panic(err)
	}
	return ps
}

func scoredChunk(id, content, source string) datatypes.ScoredChunk {
	return datatypes.ScoredChunk{
		Chunk: datatypes.Chunk{
			ChunkId:   id,
			Content:   content,
			DataSpace: "test-space",
		},
		SourceName: source,
		Similarity: 0.9,
	}
}
