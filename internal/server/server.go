// Package server exposes the REST + SSE surface of the agent execution
// server: session CRUD, prompt/interrupt, the /events stream plane, and
// provider/model/environment management, all backed by the orchestrator.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/arborio/agentcore/internal/agent"
	"github.com/arborio/agentcore/internal/event"
	"github.com/arborio/agentcore/internal/logging"
	"github.com/arborio/agentcore/internal/mcp"
	"github.com/arborio/agentcore/internal/orchestrator"
	"github.com/arborio/agentcore/internal/provider"
	"github.com/arborio/agentcore/internal/session"
	"github.com/arborio/agentcore/internal/storage"
	"github.com/arborio/agentcore/internal/tool"
	"github.com/arborio/agentcore/pkg/types"
)

// Config holds server configuration.
type Config struct {
	Port         int
	EnvDir       string
	EnableCORS   bool
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultConfig returns the default server configuration. WriteTimeout
// stays zero so SSE streams are never cut.
func DefaultConfig() *Config {
	return &Config{
		Port:        8080,
		EnableCORS:  true,
		ReadTimeout: 30 * time.Second,
	}
}

// Server is the HTTP server.
type Server struct {
	config         *Config
	router         *chi.Mux
	httpSrv        *http.Server
	appConfig      *types.Config
	storage        *storage.Storage
	sessionService *session.Service
	providerReg    *provider.Registry
	toolReg        *tool.Registry
	bus            *event.Bus
	mcpManager     *mcp.Manager
	agentReg       *agent.Registry
	orchestrator   *orchestrator.Orchestrator
}

// New assembles the server: session service, MCP manager, agent registry,
// and the orchestrator, all sharing the process-wide event bus so
// orchestrator-originated events reach the SSE plane.
func New(cfg *Config, appConfig *types.Config, store *storage.Storage, providerReg *provider.Registry, toolReg *tool.Registry) *Server {
	var defaultProviderID, defaultModelID string
	if appConfig != nil && appConfig.Model != "" {
		defaultProviderID, defaultModelID = provider.ParseModelString(appConfig.Model)
	}

	mcpManager := mcp.NewManager()
	agentReg := agent.NewRegistry()
	if appConfig != nil {
		agentReg.LoadFromConfig(appConfig.Agent)
	}
	bus := event.Default()

	s := &Server{
		config:         cfg,
		router:         chi.NewRouter(),
		appConfig:      appConfig,
		storage:        store,
		sessionService: session.NewServiceWithProcessor(store, providerReg, toolReg, defaultProviderID, defaultModelID),
		providerReg:    providerReg,
		toolReg:        toolReg,
		bus:            bus,
		mcpManager:     mcpManager,
		agentReg:       agentReg,
	}

	s.orchestrator = orchestrator.New(orchestrator.Config{
		EnvDir:           cfg.EnvDir,
		Storage:          store,
		SessionService:   s.sessionService,
		ProviderRegistry: providerReg,
		ToolRegistry:     toolReg,
		AgentRegistry:    agentReg,
		MCPManager:       mcpManager,
		Bus:              bus,
	})

	if cfg.EnvDir != "" {
		if err := s.orchestrator.StartEnvironmentWatch(cfg.EnvDir); err != nil {
			// A failed watch (e.g. directory not yet created) just disables
			// hot-reload; explicit environment switches still work.
			logging.Logger.Warn().Err(err).Str("dir", cfg.EnvDir).Msg("environment watch not started")
		}
	}

	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// InitializeMCP connects the servers named in the environment config and
// registers their tools.
func (s *Server) InitializeMCP(ctx context.Context) error {
	if s.appConfig == nil || len(s.appConfig.MCP) == 0 {
		return nil
	}

	for name, cfg := range s.appConfig.MCP {
		enabled := cfg.Enabled == nil || *cfg.Enabled
		mcpCfg := &mcp.Config{
			Enabled:     enabled,
			Type:        mcp.TransportType(cfg.Type),
			Command:     cfg.Command,
			URL:         cfg.URL,
			Headers:     cfg.Headers,
			Environment: cfg.Environment,
			Timeout:     cfg.Timeout,
		}
		if err := s.mcpManager.Connect(ctx, name, mcpCfg); err != nil {
			logging.Logger.Warn().Err(err).Str("server", name).Msg("mcp server connect failed")
		}
	}

	mcp.RegisterTools(s.mcpManager, s.toolReg)
	return nil
}

// Close quiesces the orchestrator and MCP connections.
func (s *Server) Close() error {
	return s.orchestrator.Shutdown()
}

// Orchestrator returns the server's environment orchestrator.
func (s *Server) Orchestrator() *orchestrator.Orchestrator {
	return s.orchestrator
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Recoverer)

	if s.config.EnableCORS {
		s.router.Use(cors.Handler(cors.Options{
			AllowedOrigins:   []string{"*"},
			AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
			ExposedHeaders:   []string{"Link", "X-Request-ID"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}
}

// Start begins serving; blocks until shutdown.
func (s *Server) Start() error {
	s.httpSrv = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}
	return s.httpSrv.ListenAndServe()
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

// Router returns the chi router, for tests.
func (s *Server) Router() *chi.Mux {
	return s.router
}
