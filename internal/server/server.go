package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/legal-assist-poc/server/internal/agent/graph"
	"github.com/legal-assist-poc/server/internal/agent/model"
	"github.com/legal-assist-poc/server/internal/analysis"
	logx "github.com/legal-assist-poc/server/pkg/logger"
)

// Deps are the services behind the HTTP surface. A nil service leaves its routes unregistered.
type Deps struct {
	Conversation graph.Runner
	Sessions     model.SessionRepository
	Analyses     *analysis.Service
}

type Options struct {
	Addr           string
	AllowedOrigins []string
	StatusBuffer   int
	MaxUploadBytes int64
}

type Server struct {
	engine   *gin.Engine
	registry *sessionRegistry
	http     *http.Server
}

// New builds the gin engine with middleware and routes registered.
func New(deps Deps, opts Options) (*Server, error) {
	if deps.Conversation != nil && deps.Sessions == nil {
		return nil, errors.New("conversation runner requires a session repository")
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 10 << 20
	}

	origins := newOriginPolicy(opts.AllowedOrigins)
	registry := newSessionRegistry()

	r := gin.New()
	r.Use(requestID(), requestLogger(), recovery(), cors(origins))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "sessions": registry.len()})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	if deps.Conversation != nil {
		ws := newWSHandler(deps.Conversation, deps.Sessions, registry, origins, opts.StatusBuffer)
		r.GET("/ws", ws.serve)
	}
	if deps.Analyses != nil {
		h := &analysisHandler{svc: deps.Analyses, maxUploadBytes: opts.MaxUploadBytes}
		h.register(r.Group("/api"))
	}

	return &Server{
		engine:   r,
		registry: registry,
		http: &http.Server{
			Addr:              opts.Addr,
			Handler:           r,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}, nil
}

func (s *Server) Handler() http.Handler {
	return s.engine
}

// ListenAndServe blocks until the server stops. A graceful shutdown returns nil.
func (s *Server) ListenAndServe() error {
	logx.Info().Str("addr", s.http.Addr).Msg("HTTP server listening")
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown closes live websocket sessions and drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.registry.closeAll()
	return s.http.Shutdown(ctx)
}
