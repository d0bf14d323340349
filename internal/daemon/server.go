package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"time"

	"github.com/felixgeelhaar/healthbuddy/internal/archive"
	"github.com/felixgeelhaar/healthbuddy/internal/coach"
	"github.com/felixgeelhaar/healthbuddy/internal/config"
	"github.com/felixgeelhaar/healthbuddy/internal/llm"
	"github.com/felixgeelhaar/healthbuddy/internal/onboarding"
	"github.com/felixgeelhaar/healthbuddy/internal/queue"
	"github.com/felixgeelhaar/healthbuddy/internal/session"
	"github.com/felixgeelhaar/healthbuddy/internal/storage/redisstore"
	"github.com/felixgeelhaar/healthbuddy/internal/storage/sqlite"
)

// Version is reported by the status endpoint.
const Version = "0.1.0"

// Server represents the Health Buddy daemon HTTP server
type Server struct {
	cfg       *config.LocalConfig
	server    *http.Server
	router    *http.ServeMux
	startedAt time.Time

	// Services
	llmRegistry *llm.Registry
	engine      *onboarding.Engine
	sessions    session.SessionService
	stats       session.StatsSource
	counter     statusCounter
	archive     *archive.PostgresArchive

	service  *session.Service
	consumer *queue.Consumer
	closers  []func() error
}

// ServerConfig holds configuration for creating a new server
type ServerConfig struct {
	Config       *config.LocalConfig
	DataDir      string // Defaults to ~/.healthbuddy
	SessionsPath string // Path for JSON session storage
}

// NewServer creates a new daemon server
func NewServer(ctx context.Context, cfg ServerConfig) (*Server, error) {
	s := &Server{
		cfg:       cfg.Config,
		router:    http.NewServeMux(),
		startedAt: time.Now(),
	}

	dataDir := cfg.DataDir
	if dataDir == "" {
		dir, err := config.Dir()
		if err != nil {
			return nil, fmt.Errorf("get data dir: %w", err)
		}
		dataDir = dir
	}

	flow, err := loadFlow(cfg.Config.Onboarding.FlowPath)
	if err != nil {
		return nil, err
	}
	s.engine = onboarding.NewEngine(flow, onboarding.WithLogger(slog.Default()))

	if err := s.build(ctx, dataDir, cfg.SessionsPath); err != nil {
		s.close()
		return nil, err
	}

	s.setupRoutes()

	addr := fmt.Sprintf("%s:%d", cfg.Config.Daemon.Bind, cfg.Config.Daemon.Port)
	handler := chain(s.router, withRequestID, withRecovery, withAccessLog)
	s.server = &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second, // Completion runs the narrator inline
		IdleTimeout:  120 * time.Second,
	}

	return s, nil
}

// statusCounter is implemented by stores that can count sessions per status
// without loading them.
type statusCounter interface {
	CountByStatus() (map[session.Status]int, error)
}

// Sessions returns the session service behind the HTTP API.
func (s *Server) Sessions() session.SessionService { return s.sessions }

// Handler returns the HTTP handler with middleware applied.
func (s *Server) Handler() http.Handler { return s.server.Handler }

// Engine returns the onboarding engine running the configured flow.
func (s *Server) Engine() *onboarding.Engine { return s.engine }

func loadFlow(path string) (*onboarding.Flow, error) {
	if path == "" {
		return onboarding.DefaultFlow(), nil
	}
	flow, err := onboarding.LoadFlow(path)
	if err != nil {
		return nil, fmt.Errorf("load flow %s: %w", path, err)
	}
	slog.Info("loaded onboarding flow", "path", path, "flow", flow.ID(), "version", flow.Version())
	return flow, nil
}

// build wires storage, analytics, the narrator and the optional archive and
// event queue into the session service.
func (s *Server) build(ctx context.Context, dataDir, sessionsPath string) error {
	store, err := s.setupStore(dataDir, sessionsPath)
	if err != nil {
		return err
	}

	svc := session.NewService(store, s.engine)
	svc.SetAnalysisDelay(s.cfg.Onboarding.AnalysisDelay())
	if rec, ok := s.stats.(session.Recorder); ok {
		svc.SetRecorder(rec)
	}
	s.service = svc
	s.sessions = svc
	s.closers = append(s.closers, func() error { svc.Close(); return nil })

	registry := llm.NewRegistry()
	if err := s.setupLLMProviders(registry); err != nil {
		return fmt.Errorf("setup llm providers: %w", err)
	}
	s.llmRegistry = registry
	svc.SetNarrator(s.newNarrator())

	if err := s.setupArchive(ctx); err != nil {
		return err
	}
	if err := s.setupEvents(ctx); err != nil {
		return err
	}

	n, err := svc.ResumePending(ctx)
	if err != nil {
		slog.Warn("failed to resume pending analyses", "error", err)
	} else if n > 0 {
		slog.Info("resumed pending analyses", "sessions", n)
	}
	return nil
}

// setupStore opens the analytics database and the configured session store.
func (s *Server) setupStore(dataDir, sessionsPath string) (session.SessionStore, error) {
	db, err := sqlite.OpenAndMigrate(s.cfg.StoragePath(dataDir))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	s.closers = append(s.closers, db.Close)
	s.stats = sqlite.NewAnalyticsStore(db)

	switch s.cfg.Storage.Backend {
	case config.StorageSQLite:
		slog.Info("using sqlite session store", "path", s.cfg.StoragePath(dataDir))
		store := sqlite.NewSessionStore(db)
		s.counter = store
		return store, nil

	case config.StorageRedis:
		rcfg := redisstore.DefaultConfig()
		rcfg.Addr = s.cfg.Storage.RedisAddr
		rcfg.Password = s.cfg.Storage.RedisPassword
		rcfg.DB = s.cfg.Storage.RedisDB
		rcfg.TTL = time.Duration(s.cfg.Storage.SessionTTLMin) * time.Minute
		store, err := redisstore.New(rcfg)
		if err != nil {
			return nil, fmt.Errorf("create redis session store: %w", err)
		}
		s.closers = append(s.closers, store.Close)
		slog.Info("using redis session store", "addr", rcfg.Addr, "ttl", rcfg.TTL)
		return store, nil

	default:
		if sessionsPath == "" {
			sessionsPath = filepath.Join(dataDir, "sessions")
		}
		store, err := session.NewStore(sessionsPath)
		if err != nil {
			return nil, fmt.Errorf("create session store: %w", err)
		}
		s.counter = store
		return store, nil
	}
}

// setupLLMProviders initializes configured LLM providers
func (s *Server) setupLLMProviders(registry *llm.Registry) error {
	for _, name := range []string{"claude", "ollama"} {
		providerCfg, ok := s.cfg.LLM.Providers[name]
		if !ok || !providerCfg.Enabled {
			continue
		}

		switch name {
		case "claude":
			if providerCfg.APIKey == "" {
				slog.Debug("Claude provider enabled but no API key set")
				continue
			}
			registry.Register("claude", llm.NewClaudeProvider(llm.ClaudeConfig{
				APIKey: providerCfg.APIKey,
				Model:  providerCfg.Model,
			}))
		case "ollama":
			registry.Register("ollama", llm.NewOllamaProvider(llm.OllamaConfig{
				BaseURL: providerCfg.URL,
				Model:   providerCfg.Model,
			}))
		}
		slog.Info("registered LLM provider", "name", name, "model", providerCfg.Model)
	}

	if len(registry.List()) == 0 {
		return nil
	}
	if err := registry.SetDefault(s.cfg.LLM.DefaultProvider); err != nil {
		slog.Warn("default LLM provider unavailable, using first registered",
			"provider", s.cfg.LLM.DefaultProvider, "error", err)
		return registry.SetDefault("auto")
	}
	return nil
}

// newNarrator guards every registered provider and chains them, default
// first. Without a provider the narrator writes the static welcome.
func (s *Server) newNarrator() *coach.Narrator {
	providers := s.llmRegistry.Ordered()
	if len(providers) == 0 {
		slog.Info("no LLM provider configured, using static welcome messages")
		return coach.NewNarrator(nil)
	}

	guarded := make([]llm.Provider, len(providers))
	for i, p := range providers {
		g := llm.NewGuard(p, llm.DefaultGuardConfig())
		s.closers = append(s.closers, g.Close)
		guarded[i] = g
	}
	if len(guarded) == 1 {
		return coach.NewNarrator(guarded[0])
	}
	return coach.NewNarrator(llm.NewFallback(slog.Default(), guarded...))
}

func (s *Server) setupArchive(ctx context.Context) error {
	if !s.cfg.Archive.Enabled() {
		return nil
	}

	pool, err := archive.Connect(ctx, s.cfg.Archive.PostgresURL)
	if err != nil {
		return fmt.Errorf("connect archive: %w", err)
	}
	s.closers = append(s.closers, func() error { pool.Close(); return nil })

	s.archive = archive.NewPostgresArchive(pool)
	if err := s.archive.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("ensure archive schema: %w", err)
	}

	// With an in-process consumer the archive is fed from the queue instead.
	if !s.cfg.Events.Enabled || !s.cfg.Events.Consume {
		s.service.SetArchive(s.archive)
	}
	slog.Info("recommendation archive enabled")
	return nil
}

func (s *Server) setupEvents(ctx context.Context) error {
	if !s.cfg.Events.Enabled {
		return nil
	}

	conn, err := queue.NewConnection(s.cfg.Events.AMQPURL)
	if err != nil {
		return fmt.Errorf("connect event queue: %w", err)
	}
	s.closers = append(s.closers, conn.Close)
	s.service.SetPublisher(queue.NewProducer(conn))

	if s.cfg.Events.Consume && s.archive != nil {
		cfg := queue.DefaultConsumerConfig()
		if s.cfg.Events.Workers > 0 {
			cfg.Workers = s.cfg.Events.Workers
		}
		s.consumer = queue.NewConsumer(conn, archiveHandler(s.archive), cfg)
		if err := s.consumer.Start(ctx); err != nil {
			return fmt.Errorf("start completion consumer: %w", err)
		}
	}
	slog.Info("completion events enabled", "consume", s.consumer != nil)
	return nil
}

// archiveHandler stores each completion event. Sessions the archive rejects
// are never retried.
func archiveHandler(a session.Archive) queue.CompletionHandler {
	return func(ctx context.Context, ev *queue.CompletionEvent) error {
		if ev.Session == nil {
			return fmt.Errorf("%w: event %s carries no session", queue.ErrPermanent, ev.ID)
		}
		err := a.Save(ctx, ev.Session)
		if errors.Is(err, archive.ErrNotCompleted) {
			return fmt.Errorf("%w: %w", queue.ErrPermanent, err)
		}
		return err
	}
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	// Health & status
	s.router.HandleFunc("GET /v1/health", s.handleHealth)
	s.router.HandleFunc("GET /v1/status", s.handleStatus)
	s.router.HandleFunc("GET /v1/stats", s.handleStats)

	// Catalogue
	s.router.HandleFunc("GET /v1/flow", s.handleFlow)
	s.router.HandleFunc("GET /v1/trainers", s.handleTrainers)

	// Onboarding sessions
	s.router.HandleFunc("POST /v1/onboarding", s.handleCreateSession)
	s.router.HandleFunc("GET /v1/onboarding", s.handleListSessions)
	s.router.HandleFunc("GET /v1/onboarding/{id}", s.handleGetSession)
	s.router.HandleFunc("DELETE /v1/onboarding/{id}", s.handleDeleteSession)

	// Transitions
	s.router.HandleFunc("POST /v1/onboarding/{id}/answer", s.handleAnswer)
	s.router.HandleFunc("POST /v1/onboarding/{id}/select", s.handleSelect)
	s.router.HandleFunc("POST /v1/onboarding/{id}/confirm", s.handleConfirm)
	s.router.HandleFunc("POST /v1/onboarding/{id}/skip", s.handleSkip)
	s.router.HandleFunc("POST /v1/onboarding/{id}/text", s.handleText)
	s.router.HandleFunc("POST /v1/onboarding/{id}/abandon", s.handleAbandon)
	s.router.HandleFunc("GET /v1/onboarding/{id}/recommendation", s.handleRecommendation)
}

// Start starts the HTTP server
func (s *Server) Start() error {
	slog.Info("starting healthbuddy daemon",
		"addr", s.server.Addr,
		"flow", s.engine.Flow().ID(),
		"storage", s.cfg.Storage.Backend,
		"llm_providers", s.llmRegistry.List(),
	)
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	slog.Info("shutting down daemon...")

	err := s.server.Shutdown(ctx)
	s.close()
	return err
}

// close stops the consumer and releases resources in reverse order of setup.
func (s *Server) close() {
	if s.consumer != nil {
		s.consumer.Stop()
		s.consumer = nil
	}
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			slog.Warn("failed to release resource", "error", err)
		}
	}
	s.closers = nil
}

// Helper methods

func (s *Server) jsonResponse(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, data)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func (s *Server) jsonError(w http.ResponseWriter, status int, message string, err error) {
	response := map[string]any{
		"error":  message,
		"status": status,
	}
	if err != nil {
		response["details"] = err.Error()
	}
	s.jsonResponse(w, status, response)
}
