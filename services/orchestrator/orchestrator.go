// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package orchestrator assembles the GroundCheck verification service.
//
// This package wires the verification pipeline (retriever, writer, skeptic,
// judge), the document ingestion path, persistence, and the HTTP surface
// into a runnable Service.
//
// # Enterprise Integration
//
// The orchestrator supports dependency injection via extensions.ServiceOptions,
// enabling downstream distributions to provide custom implementations of:
//   - AuthProvider: request authentication (JWT, API keys)
//   - MembershipProvider: data-space access control
//   - AuditLogger: compliance audit logging
//
// # Usage
//
// Open source (uses no-op defaults):
//
//	cfg := orchestrator.Config{Port: 12310}
//	svc, err := orchestrator.New(cfg, nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	svc.Run()
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/AleutianAI/GroundCheck/pkg/extensions"
	"github.com/AleutianAI/GroundCheck/services/llm"
	"github.com/AleutianAI/GroundCheck/services/orchestrator/datatypes"
	"github.com/AleutianAI/GroundCheck/services/orchestrator/handlers"
	"github.com/AleutianAI/GroundCheck/services/orchestrator/middleware"
	"github.com/AleutianAI/GroundCheck/services/orchestrator/observability"
	"github.com/AleutianAI/GroundCheck/services/orchestrator/pipeline"
	"github.com/AleutianAI/GroundCheck/services/orchestrator/routes"
	"github.com/AleutianAI/GroundCheck/services/orchestrator/store"
)

// =============================================================================
// Interface Definition
// =============================================================================

// Service defines the contract for the orchestrator service.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use. Run() blocks and should
// only be called once per instance.
type Service interface {
	// Run starts the HTTP server and blocks until shutdown signal or error.
	Run() error

	// Router returns the underlying Gin engine for testing.
	Router() *gin.Engine
}

// =============================================================================
// Configuration
// =============================================================================

// Config holds orchestrator configuration options. Zero values use defaults
// applied by New().
type Config struct {
	// Port is the HTTP server port. Default: 12310
	Port int

	// WeaviateURL is the Weaviate vector database URL. Required: chunk
	// storage and retrieval have no fallback.
	// Example: "http://localhost:8080"
	WeaviateURL string

	// DataDir is the directory for the embedded session store.
	// Default: "./data/groundcheck"
	DataDir string

	// GCSBucket archives raw uploaded document bytes when set. Empty means
	// uploads are kept in memory only.
	GCSBucket string

	// PromptPath is an optional YAML file overriding the built-in role
	// prompts. The file is hot-reloaded on change.
	PromptPath string

	// EnhancedSkeptic lets the skeptic flag conflicts with general domain
	// knowledge in addition to the retrieved passages.
	EnhancedSkeptic bool

	// OTelEndpoint is the OpenTelemetry collector endpoint.
	// Default: "groundcheck-otel-collector:4317"
	OTelEndpoint string

	// EnableMetrics exposes Prometheus metrics on /metrics. Default: true
	EnableMetrics bool

	// GinMode sets the Gin framework mode ("debug", "release", "test").
	// Default: uses GIN_MODE env var or "debug"
	GinMode string

	// ShutdownGrace bounds how long Run waits for in-flight requests on
	// shutdown. Default: 15s
	ShutdownGrace time.Duration
}

// =============================================================================
// Implementation
// =============================================================================

// service implements Service for production use.
//
// # Thread Safety
//
// Thread-safe after construction. All fields are read-only after New()
// returns.
type service struct {
	config         Config
	opts           extensions.ServiceOptions
	router         *gin.Engine
	sessions       *store.BadgerSessionStore
	weaviateClient *weaviate.Client
	pipeline       *pipeline.Pipeline
	ingestor       *pipeline.Ingestor
	registry       *pipeline.CancelRegistry
	hub            *handlers.ProgressHub
	tracerCleanup  func(context.Context)
	watchCancel    context.CancelFunc
}

// New creates a ready-to-run orchestrator Service.
//
// # Description
//
// New initializes all orchestrator components in dependency order: tracing
// and metrics, the Weaviate chunk store, the embedded session store, the
// object store, the embedding client, the prompt store with hot reload, the
// per-role LLM clients, and finally the pipeline and HTTP router. If opts is
// nil, DefaultOptions() is used (no-op auth, slog audit).
//
// # Outputs
//
//   - Service: Ready-to-run orchestrator service
//   - error: Non-nil if any required component fails to initialize
//
// # Assumptions
//
//   - Environment variables are set for the LLM backend and embedding
//     service (API keys, URLs)
//   - Weaviate is reachable at the configured URL
func New(cfg Config, opts *extensions.ServiceOptions) (Service, error) {
	s := &service{
		config: applyConfigDefaults(cfg),
	}

	if opts != nil {
		s.opts = *opts
	} else {
		s.opts = extensions.DefaultOptions()
	}

	cleanup, err := s.initTracer()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracer: %w", err)
	}
	s.tracerCleanup = cleanup

	if s.config.EnableMetrics {
		observability.InitMetrics()
		slog.Info("Initialized Prometheus metrics")
	}

	if err := s.initWeaviate(); err != nil {
		s.cleanup()
		return nil, fmt.Errorf("failed to initialize weaviate: %w", err)
	}

	s.sessions, err = store.NewBadgerSessionStore(store.DefaultBadgerConfig(s.config.DataDir))
	if err != nil {
		s.cleanup()
		return nil, fmt.Errorf("failed to open session store: %w", err)
	}

	// Sessions left non-terminal by a previous process can never finish;
	// park them in error before accepting new work.
	swept, err := pipeline.RecoverInterruptedSessions(context.Background(), s.sessions)
	if err != nil {
		s.cleanup()
		return nil, fmt.Errorf("failed to recover interrupted sessions: %w", err)
	}
	if swept > 0 {
		slog.Info("Swept interrupted sessions from previous run", "count", swept)
	}

	if err := s.initPipeline(); err != nil {
		s.cleanup()
		return nil, err
	}

	s.initRouter()

	return s, nil
}

// Run starts the HTTP server and blocks until a shutdown signal or a fatal
// server error. In-flight requests get ShutdownGrace to finish; background
// verification sessions are cancelled through the registry.
func (s *service) Run() error {
	defer s.cleanup()

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", s.config.Port),
		Handler: s.router,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Starting orchestrator server", "port", s.config.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("Shutdown signal received, draining")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownGrace)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// Router returns the underlying Gin engine for testing. Callers must not
// modify routes after construction.
func (s *service) Router() *gin.Engine {
	return s.router
}

// =============================================================================
// Private Initialization Methods
// =============================================================================

// applyConfigDefaults fills in missing configuration values.
func applyConfigDefaults(cfg Config) Config {
	if cfg.Port == 0 {
		cfg.Port = 12310
	}
	if cfg.DataDir == "" {
		cfg.DataDir = "./data/groundcheck"
	}
	if cfg.OTelEndpoint == "" {
		cfg.OTelEndpoint = "groundcheck-otel-collector:4317"
	}
	if cfg.ShutdownGrace == 0 {
		cfg.ShutdownGrace = 15 * time.Second
	}
	// Metrics are always on; scrape or ignore them.
	cfg.EnableMetrics = true
	return cfg
}

// initTracer initializes OpenTelemetry distributed tracing with an OTLP
// gRPC exporter. Uses an insecure connection, appropriate for internal
// networks.
func (s *service) initTracer() (func(context.Context), error) {
	ctx := context.Background()

	conn, err := grpc.NewClient(s.config.OTelEndpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("failed to create gRPC connection: %w", err)
	}

	traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String("groundcheck-orchestrator")))
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	bsp := sdktrace.NewBatchSpanProcessor(traceExporter)
	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(bsp))

	otel.SetTracerProvider(traceProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{}))

	cleanup := func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, time.Second*5)
		defer cancel()
		if err := traceExporter.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown OTLP exporter", "error", err)
		}
	}

	return cleanup, nil
}

// initWeaviate initializes the Weaviate client and ensures the chunk schema
// exists. Unlike logging or tracing, the chunk store has no degraded mode:
// without it there is nothing to verify against.
func (s *service) initWeaviate() error {
	weaviateURL := strings.Trim(s.config.WeaviateURL, "\"' ")
	if weaviateURL == "" {
		return fmt.Errorf("WEAVIATE_SERVICE_URL is required")
	}

	parsedURL, err := url.Parse(weaviateURL)
	if err != nil || parsedURL.Scheme == "" || parsedURL.Host == "" {
		return fmt.Errorf("invalid Weaviate URL: %s", weaviateURL)
	}

	clientConf := weaviate.Config{
		Host:   parsedURL.Host,
		Scheme: parsedURL.Scheme,
	}
	s.weaviateClient, err = weaviate.NewClient(clientConf)
	if err != nil {
		return fmt.Errorf("failed to create Weaviate client: %w", err)
	}

	datatypes.EnsureWeaviateSchema(s.weaviateClient)
	slog.Info("Weaviate client initialized", "url", weaviateURL)
	return nil
}

// initPipeline builds the ingestion path and the verification pipeline.
func (s *service) initPipeline() error {
	chunks := store.NewWeaviateChunkStore(s.weaviateClient)

	var objects store.ObjectStore
	if s.config.GCSBucket != "" {
		gcs, err := store.NewGCSObjectStore(context.Background(), s.config.GCSBucket)
		if err != nil {
			return fmt.Errorf("failed to initialize GCS object store: %w", err)
		}
		objects = gcs
		slog.Info("Archiving raw uploads to GCS", "bucket", s.config.GCSBucket)
	} else {
		objects = store.NewMemoryObjectStore()
		slog.Warn("GCS_BUCKET not set, raw uploads are held in memory only")
	}

	embedder, err := pipeline.NewHTTPEmbedder()
	if err != nil {
		return fmt.Errorf("failed to initialize embedder: %w", err)
	}

	prompts, err := pipeline.NewPromptStore(s.config.PromptPath)
	if err != nil {
		return fmt.Errorf("failed to load role prompts: %w", err)
	}
	watchCtx, watchCancel := context.WithCancel(context.Background())
	s.watchCancel = watchCancel
	if s.config.PromptPath != "" {
		if err := prompts.Watch(watchCtx); err != nil {
			slog.Warn("Prompt hot reload unavailable", "path", s.config.PromptPath, "error", err)
		}
	}

	writerLLM, err := llm.NewClientForRole(llm.RoleWriter)
	if err != nil {
		return fmt.Errorf("failed to initialize writer LLM client: %w", err)
	}
	skepticLLM, err := llm.NewClientForRole(llm.RoleSkeptic)
	if err != nil {
		return fmt.Errorf("failed to initialize skeptic LLM client: %w", err)
	}
	judgeLLM, err := llm.NewClientForRole(llm.RoleJudge)
	if err != nil {
		return fmt.Errorf("failed to initialize judge LLM client: %w", err)
	}
	go llm.NewRoleWarmer().WarmRoleModels(watchCtx)

	retriever := pipeline.NewRetriever(s.sessions, chunks, embedder, pipeline.RetrieverConfig{
		Limit:     pipeline.DefaultRetrievalLimit,
		Threshold: pipeline.DefaultCertaintyThreshold,
	})
	writer := pipeline.NewWriter(writerLLM, prompts)
	skeptic := pipeline.NewSkeptic(skepticLLM, prompts, s.config.EnhancedSkeptic)
	judge := pipeline.NewJudge(judgeLLM, prompts)

	s.registry = pipeline.NewCancelRegistry()
	s.hub = handlers.NewProgressHub()
	s.pipeline = pipeline.NewPipeline(s.sessions, retriever, writer, skeptic, judge,
		s.registry, s.hub)
	s.ingestor = pipeline.NewIngestor(s.sessions, chunks, objects, embedder,
		pipeline.DefaultChunkerConfig())

	slog.Info("Pipeline initialized", "enhanced_skeptic", s.config.EnhancedSkeptic)
	return nil
}

// initRouter sets up the Gin HTTP router with all routes.
func (s *service) initRouter() {
	if s.config.GinMode != "" {
		gin.SetMode(s.config.GinMode)
	}
	s.router = gin.Default()
	s.router.Use(otelgin.Middleware("groundcheck-orchestrator"))

	routes.SetupRoutes(s.router, routes.Deps{
		Sessions:      s.sessions,
		Pipeline:      s.pipeline,
		Ingestor:      s.ingestor,
		Registry:      s.registry,
		Hub:           s.hub,
		Limiter:       middleware.NewKeyedRateLimiter(middleware.DefaultRateLimiterConfig()),
		Opts:          s.opts,
		EnableMetrics: s.config.EnableMetrics,
	})
}

// cleanup releases all resources held by the service.
func (s *service) cleanup() {
	if s.watchCancel != nil {
		s.watchCancel()
	}
	if s.sessions != nil {
		if err := s.sessions.Close(); err != nil {
			slog.Warn("Session store close error", "error", err)
		}
	}
	if s.tracerCleanup != nil {
		s.tracerCleanup(context.Background())
	}
}

// =============================================================================
// Compile-time Interface Compliance
// =============================================================================

var _ Service = (*service)(nil)
