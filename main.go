package main

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/legal-assist-poc/server/internal/agent/graph"
	"github.com/legal-assist-poc/server/internal/agent/graph/nodes"
	"github.com/legal-assist-poc/server/internal/agent/model"
	"github.com/legal-assist-poc/server/internal/agent/repo"
	"github.com/legal-assist-poc/server/internal/analysis"
	"github.com/legal-assist-poc/server/internal/core"
	"github.com/legal-assist-poc/server/internal/documents"
	"github.com/legal-assist-poc/server/internal/server"
	"github.com/legal-assist-poc/server/internal/storage"
	logx "github.com/legal-assist-poc/server/pkg/logger"
	pkgpostgres "github.com/legal-assist-poc/server/pkg/postgres"
	pkgredis "github.com/legal-assist-poc/server/pkg/redis"
)

// AppConfig defines all configurable parameters of the service,
// sourced from environment variables (loaded from .env for local runs).
type AppConfig struct {
	Environment string `envconfig:"ENVIRONMENT" default:"development"`

	// Infrastructure
	Redis    pkgredis.Config
	Postgres pkgpostgres.Config

	// LLM provider
	LLM        model.LLMConfig
	Response   model.ResponseModelConfig
	Classifier model.ClassifierModelConfig

	Conversation model.ConversationConfig
	Knowledge    model.KnowledgeConfig
	Analysis     model.AnalysisConfig
	Server       model.ServerConfig
}

func main() {
	ctx := context.Background()

	if err := godotenv.Load(".env"); err != nil {
		logx.Warn().Err(err).Msg("Could not load .env file")
	}

	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		logx.Fatal().Err(err).Msg("Failed to process environment config")
	}

	env := core.ParseEnvironment(cfg.Environment)
	logx.Init(logx.LoggerOpts{Environment: env})
	if env.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	short, err := cfg.LLM.Validate()
	if err != nil {
		logx.Fatal().Err(err).Msg("Invalid LLM configuration")
	}
	if short {
		logx.Warn().Int("length", len(cfg.LLM.APIKey)).Msg("GEMINI_API_KEY seems too short, it might be invalid")
	}

	models, err := nodes.NewChatModels(ctx, nodes.ChatModelConfig{
		LLM:        cfg.LLM,
		Response:   &cfg.Response,
		Classifier: &cfg.Classifier,
	})
	if err != nil {
		logx.Fatal().Err(err).Msg("Failed to create chat models")
	}

	sessions, closeSessions := newSessionRepository(cfg)
	defer closeSessions()

	source := documents.NewLocalFileSource()
	docContext, err := documents.LoadKnowledgeBase(ctx, source, cfg.Knowledge.BasePath)
	if err != nil {
		logx.Fatal().Err(err).Msg("Failed to load knowledge base")
	}
	escalationRules, err := documents.LoadEscalationRules(cfg.Knowledge.EscalationRulesFile)
	if err != nil {
		logx.Fatal().Err(err).Msg("Failed to load escalation rules")
	}
	logx.Info().
		Int("doc_context_chars", len(docContext)).
		Int("escalation_rules_chars", len(escalationRules)).
		Msg("Knowledge loaded")

	conversation, err := graph.BuildConversationGraph(ctx, graph.Config{
		Models:          models,
		Sessions:        sessions,
		DocContext:      docContext,
		EscalationRules: escalationRules,
		Conversation:    cfg.Conversation,
	})
	if err != nil {
		logx.Fatal().Err(err).Msg("Failed to build conversation graph")
	}

	tracker := analysis.NewProgressTracker()
	pipeline, err := graph.BuildAnalysisGraph(ctx, graph.AnalysisConfig{
		Models:    models,
		LoadRules: analysis.RulesFileLoader(cfg.Analysis.RiskRulesFile),
		Progress:  tracker.Step,
	})
	if err != nil {
		logx.Fatal().Err(err).Msg("Failed to build analysis graph")
	}

	store, closeStore := newAnalysisStore(ctx, cfg)
	defer closeStore()

	analyses, err := analysis.NewService(analysis.ServiceConfig{
		Runner:    pipeline,
		Store:     store,
		Tracker:   tracker,
		Source:    source,
		UploadDir: cfg.Analysis.UploadDir,
	})
	if err != nil {
		logx.Fatal().Err(err).Msg("Failed to create analysis service")
	}

	srv, err := server.New(server.Deps{
		Conversation: conversation,
		Sessions:     sessions,
		Analyses:     analyses,
	}, server.Options{
		Addr:           cfg.Server.Addr,
		AllowedOrigins: cfg.Server.OriginList(),
		StatusBuffer:   cfg.Conversation.Status.Buffer,
		MaxUploadBytes: cfg.Analysis.MaxUploadMB << 20,
	})
	if err != nil {
		logx.Fatal().Err(err).Msg("Failed to create server")
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		if err != nil {
			logx.Error().Err(err).Msg("HTTP server stopped")
		}
	case sig := <-stop:
		logx.Info().Str("signal", sig.String()).Msg("Shutting down")
	}

	grace, err := time.ParseDuration(cfg.Server.ShutdownGrace)
	if err != nil || grace <= 0 {
		grace = 15 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, grace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logx.Error().Err(err).Msg("Graceful shutdown failed")
	}

	done := make(chan struct{})
	go func() {
		analyses.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-shutdownCtx.Done():
		logx.Warn().Msg("Analysis jobs still running at shutdown")
	}
}

// newSessionRepository picks the conversation store named by CONVERSATION_STORE.
func newSessionRepository(cfg AppConfig) (model.SessionRepository, func()) {
	if cfg.Conversation.Store != "redis" {
		logx.Info().Msg("Using in-memory session store")
		return repo.NewMemorySessionRepository(), func() {}
	}

	ttl, err := time.ParseDuration(cfg.Conversation.TTL)
	if err != nil {
		logx.Fatal().Err(err).Str("value", cfg.Conversation.TTL).Msg("Invalid CONVERSATION_TTL")
	}
	rdb, err := cfg.Redis.New()
	if err != nil {
		logx.Fatal().Err(err).Msg("Failed to initialise Redis client")
	}
	logx.Info().Dur("ttl", ttl).Msg("Connected to Redis session store")
	return repo.NewRedisSessionRepository(rdb, ttl), func() { rdb.Close() }
}

// newAnalysisStore picks the analysis store named by ANALYSIS_STORE.
func newAnalysisStore(ctx context.Context, cfg AppConfig) (storage.AnalysisStore, func()) {
	if cfg.Analysis.Store != "postgres" {
		store, err := storage.NewLocalStore(cfg.Analysis.StoragePath)
		if err != nil {
			logx.Fatal().Err(err).Msg("Failed to create local analysis store")
		}
		logx.Info().Str("path", cfg.Analysis.StoragePath).Msg("Using local analysis store")
		return store, func() {}
	}

	if !cfg.Postgres.Enabled() {
		logx.Fatal().Err(errors.New("POSTGRES_URL is empty")).Msg("ANALYSIS_STORE=postgres needs a database")
	}
	db, err := cfg.Postgres.New(ctx)
	if err != nil {
		logx.Fatal().Err(err).Msg("Failed to connect to Postgres")
	}
	if err := storage.RunMigrations(ctx, db); err != nil {
		db.Close()
		logx.Fatal().Err(err).Msg("Failed to run migrations")
	}
	logx.Info().Msg("Using Postgres analysis store")
	return storage.NewPostgresStore(db), closeDB(db)
}

func closeDB(db *sql.DB) func() {
	return func() {
		if err := db.Close(); err != nil {
			logx.Warn().Err(err).Msg("Failed to close database")
		}
	}
}
