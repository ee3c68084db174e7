// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/GroundCheck/pkg/extensions"
	"github.com/AleutianAI/GroundCheck/services/llm"
	"github.com/AleutianAI/GroundCheck/services/orchestrator/datatypes"
	"github.com/AleutianAI/GroundCheck/services/orchestrator/middleware"
	"github.com/AleutianAI/GroundCheck/services/orchestrator/pipeline"
	"github.com/AleutianAI/GroundCheck/services/orchestrator/store"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// staticLLM answers every call with the same text.
type staticLLM struct{ response string }

func (s *staticLLM) Chat(context.Context, []datatypes.Message, llm.GenerationParams) (string, error) {
	return s.response, nil
}

func (s *staticLLM) Generate(context.Context, string, llm.GenerationParams) (string, error) {
	return s.response, nil
}

// fakeChunkStore records inserts and serves an empty search result.
type fakeChunkStore struct{ deleted []string }

func (f *fakeChunkStore) PutChunks(_ context.Context, _ *datatypes.Document,
	chunks []datatypes.Chunk, _ [][]float32) (int, error) {
	return len(chunks), nil
}

func (f *fakeChunkStore) Search(context.Context, string, []string, []float32, int, float64) ([]datatypes.ScoredChunk, error) {
	return nil, nil
}

func (f *fakeChunkStore) GetChunk(context.Context, string) (*datatypes.Chunk, error) {
	return nil, store.ErrNotFound
}

func (f *fakeChunkStore) DeleteByDocument(_ context.Context, documentId string) error {
	f.deleted = append(f.deleted, documentId)
	return nil
}

// fakeEmbedder returns constant vectors.
type fakeEmbedder struct{}

func (fakeEmbedder) Embed(context.Context, string) ([]float32, error) {
	return []float32{0.1, 0.2}, nil
}

func (fakeEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = []float32{0.1, 0.2}
	}
	return out, nil
}

// testEnv wires real handlers over an in-memory store.
type testEnv struct {
	sessions *store.BadgerSessionStore
	ingestor *pipeline.Ingestor
	pipeline *pipeline.Pipeline
	registry *pipeline.CancelRegistry
	opts     extensions.ServiceOptions
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	sessions, err := store.NewBadgerSessionStore(store.BadgerConfig{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { sessions.Close() })

	chunks := &fakeChunkStore{}
	embedder := fakeEmbedder{}
	prompts, err := pipeline.NewPromptStore("")
	require.NoError(t, err)
	client := &staticLLM{response: "unused"}
	registry := pipeline.NewCancelRegistry()

	pl := pipeline.NewPipeline(sessions,
		pipeline.NewRetriever(sessions, chunks, embedder, pipeline.RetrieverConfig{}),
		pipeline.NewWriter(client, prompts),
		pipeline.NewSkeptic(client, prompts, false),
		pipeline.NewJudge(client, prompts),
		registry, nil)

	return &testEnv{
		sessions: sessions,
		ingestor: pipeline.NewIngestor(sessions, chunks, store.NewMemoryObjectStore(),
			embedder, pipeline.DefaultChunkerConfig()),
		pipeline: pl,
		registry: registry,
		opts:     extensions.DefaultOptions(),
	}
}

// authed injects the local user before the handler under test, standing in
// for the auth middleware.
func authed(h gin.HandlerFunc) []gin.HandlerFunc {
	return []gin.HandlerFunc{
		func(c *gin.Context) {
			middleware.SetAuthInfo(c, &extensions.AuthInfo{UserID: "local-user"})
			c.Next()
		},
		h,
	}
}

func doJSON(router *gin.Engine, method, path string, payload any) *httptest.ResponseRecorder {
	var body *bytes.Buffer
	if payload != nil {
		data, _ := json.Marshal(payload)
		body = bytes.NewBuffer(data)
	} else {
		body = bytes.NewBuffer(nil)
	}
	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

// =============================================================================
// Verify
// =============================================================================

func TestHandleVerify_Accepts(t *testing.T) {
	env := newTestEnv(t)
	router := gin.New()
	router.POST("/v1/verify", authed(HandleVerify(env.sessions, env.pipeline, env.opts))...)

	w := doJSON(router, http.MethodPost, "/v1/verify", gin.H{
		"query":      "How long is the refund window?",
		"data_space": "test-space",
	})

	require.Equal(t, http.StatusAccepted, w.Code)
	var resp struct {
		Session datatypes.Session `json:"session"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.Session.SessionId)
	assert.Equal(t, datatypes.ModeAnswer, resp.Session.Mode)

	_, err := env.sessions.GetSession(context.Background(), resp.Session.SessionId)
	assert.NoError(t, err)
}

func TestHandleVerify_BadInput(t *testing.T) {
	env := newTestEnv(t)
	router := gin.New()
	router.POST("/v1/verify", authed(HandleVerify(env.sessions, env.pipeline, env.opts))...)

	cases := []gin.H{
		{},                                      // missing everything
		{"query": "q"},                          // missing data space
		{"query": "", "data_space": "a"},        // empty query
		{"query": "q", "data_space": "NotValid"},
		{"query": "q", "data_space": "a", "mode": "prophecy"},
	}
	for i, payload := range cases {
		w := doJSON(router, http.MethodPost, "/v1/verify", payload)
		assert.Equal(t, http.StatusBadRequest, w.Code, "case %d", i)
	}
}

func TestHandleVerify_MembershipDenied(t *testing.T) {
	env := newTestEnv(t)
	env.opts = env.opts.WithMembership(extensions.NewStaticMembershipProvider(nil))
	router := gin.New()
	router.POST("/v1/verify", authed(HandleVerify(env.sessions, env.pipeline, env.opts))...)

	w := doJSON(router, http.MethodPost, "/v1/verify", gin.H{
		"query":      "q",
		"data_space": "test-space",
	})

	assert.Equal(t, http.StatusForbidden, w.Code)
}

// =============================================================================
// Sessions
// =============================================================================

func TestGetSession_UnknownIs404(t *testing.T) {
	env := newTestEnv(t)
	router := gin.New()
	router.GET("/v1/sessions/:sessionId", authed(GetSession(env.sessions, env.opts))...)

	w := doJSON(router, http.MethodGet, "/v1/sessions/absent", nil)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetLedger_AuthoritativeOnlyWhenCompleted(t *testing.T) {
	env := newTestEnv(t)
	router := gin.New()
	router.GET("/v1/sessions/:sessionId/ledger", authed(GetLedger(env.sessions, env.opts))...)

	ctx := context.Background()
	sess := &datatypes.Session{
		SessionId: "sess-1",
		DataSpace: "test-space",
		Status:    datatypes.SessionProcessing,
	}
	require.NoError(t, env.sessions.CreateSession(ctx, sess))
	require.NoError(t, env.sessions.ReplaceVerdicts(ctx, "sess-1",
		[]datatypes.Claim{{ClaimId: "c1", SessionId: "sess-1", Text: "a claim"}},
		[]datatypes.LedgerEntry{{ClaimId: "c1", SessionId: "sess-1", Verdict: datatypes.VerdictSupported}}))

	w := doJSON(router, http.MethodGet, "/v1/sessions/sess-1/ledger", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Authoritative bool              `json:"authoritative"`
		Ledger        []LedgerEntryView `json:"ledger"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Authoritative)
	require.Len(t, resp.Ledger, 1)
	assert.Equal(t, "a claim", resp.Ledger[0].Claim.Text)
	assert.Equal(t, datatypes.VerdictSupported, resp.Ledger[0].Entry.Verdict)

	sess.Status = datatypes.SessionCompleted
	require.NoError(t, env.sessions.UpdateSession(ctx, sess))

	w = doJSON(router, http.MethodGet, "/v1/sessions/sess-1/ledger", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Authoritative)
}

func TestCancelSession_TerminalIs409(t *testing.T) {
	env := newTestEnv(t)
	router := gin.New()
	router.POST("/v1/sessions/:sessionId/cancel",
		authed(CancelSession(env.sessions, env.registry, env.opts))...)

	require.NoError(t, env.sessions.CreateSession(context.Background(), &datatypes.Session{
		SessionId: "sess-1",
		DataSpace: "test-space",
		Status:    datatypes.SessionCompleted,
	}))

	w := doJSON(router, http.MethodPost, "/v1/sessions/sess-1/cancel", nil)

	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestCancelSession_NoLiveRunTerminalizes(t *testing.T) {
	env := newTestEnv(t)
	router := gin.New()
	router.POST("/v1/sessions/:sessionId/cancel",
		authed(CancelSession(env.sessions, env.registry, env.opts))...)

	// Processing on disk but absent from the registry: the run that owned it
	// is gone, so the cancel endpoint must terminalize the session itself.
	require.NoError(t, env.sessions.CreateSession(context.Background(), &datatypes.Session{
		SessionId: "sess-1",
		DataSpace: "test-space",
		Status:    datatypes.SessionProcessing,
	}))

	w := doJSON(router, http.MethodPost, "/v1/sessions/sess-1/cancel", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Cancelled bool `json:"cancelled"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Cancelled)

	stored, err := env.sessions.GetSession(context.Background(), "sess-1")
	require.NoError(t, err)
	assert.Equal(t, datatypes.SessionError, stored.Status)
	assert.Equal(t, "cancelled by user", stored.ErrorMessage)
}

func TestDeleteSession_RemovesAggregate(t *testing.T) {
	env := newTestEnv(t)
	router := gin.New()
	router.DELETE("/v1/sessions/:sessionId",
		authed(DeleteSession(env.sessions, env.registry, env.opts))...)

	ctx := context.Background()
	require.NoError(t, env.sessions.CreateSession(ctx, &datatypes.Session{
		SessionId: "sess-1",
		DataSpace: "test-space",
		Status:    datatypes.SessionCompleted,
	}))

	w := doJSON(router, http.MethodDelete, "/v1/sessions/sess-1", nil)
	require.Equal(t, http.StatusOK, w.Code)

	_, err := env.sessions.GetSession(ctx, "sess-1")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestGetProgress_NoRecordYet(t *testing.T) {
	env := newTestEnv(t)
	router := gin.New()
	router.GET("/v1/sessions/:sessionId/progress",
		authed(GetProgress(env.sessions, env.opts))...)

	require.NoError(t, env.sessions.CreateSession(context.Background(), &datatypes.Session{
		SessionId: "sess-1",
		DataSpace: "test-space",
		Status:    datatypes.SessionPending,
	}))

	w := doJSON(router, http.MethodGet, "/v1/sessions/sess-1/progress", nil)

	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Progress *datatypes.PipelineProgress `json:"progress"`
		Status   datatypes.SessionStatus     `json:"status"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Nil(t, resp.Progress)
	assert.Equal(t, datatypes.SessionPending, resp.Status)
}

// =============================================================================
// Feedback
// =============================================================================

func TestCreateFeedback(t *testing.T) {
	env := newTestEnv(t)
	router := gin.New()
	router.POST("/v1/sessions/:sessionId/feedback",
		authed(CreateFeedback(env.sessions, env.opts))...)
	router.GET("/v1/sessions/:sessionId/feedback",
		authed(ListFeedback(env.sessions, env.opts))...)

	require.NoError(t, env.sessions.CreateSession(context.Background(), &datatypes.Session{
		SessionId: "sess-1",
		DataSpace: "test-space",
		Status:    datatypes.SessionCompleted,
	}))

	w := doJSON(router, http.MethodPost, "/v1/sessions/sess-1/feedback", gin.H{
		"type":    "incorrect",
		"comment": "the refund window is wrong",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	w = doJSON(router, http.MethodPost, "/v1/sessions/sess-1/feedback", gin.H{
		"type": "enthusiastic",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(router, http.MethodGet, "/v1/sessions/sess-1/feedback", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Feedback []datatypes.Feedback `json:"feedback"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Feedback, 1)
	assert.Equal(t, datatypes.FeedbackIncorrect, resp.Feedback[0].Type)
}

// =============================================================================
// Documents
// =============================================================================

func documentsRouter(env *testEnv) *gin.Engine {
	router := gin.New()
	router.POST("/v1/documents", authed(IngestDocument(env.ingestor, env.opts))...)
	router.GET("/v1/dataspaces/:dataSpace/documents", authed(ListDocuments(env.sessions))...)
	router.GET("/v1/dataspaces/:dataSpace/documents/:documentId", authed(GetDocument(env.sessions))...)
	router.DELETE("/v1/dataspaces/:dataSpace/documents/:documentId",
		authed(DeleteDocument(env.ingestor, env.opts))...)
	return router
}

func TestIngestDocument(t *testing.T) {
	env := newTestEnv(t)
	router := documentsRouter(env)

	w := doJSON(router, http.MethodPost, "/v1/documents", gin.H{
		"content":    "Refunds are available within 30 days.",
		"source":     "policy.md",
		"data_space": "test-space",
	})

	require.Equal(t, http.StatusCreated, w.Code)
	var resp struct {
		Document datatypes.Document `json:"document"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, datatypes.DocumentReady, resp.Document.Status)
	assert.Equal(t, "policy.md", resp.Document.Source)

	w = doJSON(router, http.MethodGet,
		"/v1/dataspaces/test-space/documents/"+resp.Document.DocumentId, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestIngestDocument_RejectsTraversalSource(t *testing.T) {
	env := newTestEnv(t)
	router := documentsRouter(env)

	w := doJSON(router, http.MethodPost, "/v1/documents", gin.H{
		"content":    "x",
		"source":     "../../etc/passwd",
		"data_space": "test-space",
	})

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDeleteDocument_Unknown404(t *testing.T) {
	env := newTestEnv(t)
	router := documentsRouter(env)

	w := doJSON(router, http.MethodDelete, "/v1/dataspaces/test-space/documents/absent", nil)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

// =============================================================================
// Health
// =============================================================================

func TestHealthCheck(t *testing.T) {
	router := gin.New()
	router.GET("/health", HealthCheck)

	w := doJSON(router, http.MethodGet, "/health", nil)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "healthy")
	assert.Contains(t, w.Body.String(), "groundcheck-orchestrator")
}
