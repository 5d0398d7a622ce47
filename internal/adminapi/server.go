// Package adminapi exposes a small read-only JSON surface for
// observing a running coordinator: ledger size, per-worker pending and
// idle figures, and dispatcher states. Gated by a bearer management token.
package adminapi

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/itsthedevman/redis-ipc/internal/authtoken"
	"github.com/itsthedevman/redis-ipc/internal/logging"
)

// LedgerStats is a snapshot of the ledger's outstanding rows.
type LedgerStats struct {
	OutstandingCount int `json:"outstanding_count"`
}

// WorkerStats describes one worker's queue depth.
type WorkerStats struct {
	Name     string `json:"name"`
	Pending  int64  `json:"pending"`
	IdleMs   int64  `json:"idle_ms"`
	Inactive int64  `json:"inactive_ms"`
}

// DispatcherStats describes one dispatcher's recent activity.
type DispatcherStats struct {
	Name          string `json:"name"`
	State         string `json:"state"`
	LastOutcome   string `json:"last_outcome"`
	LastTickedAt  string `json:"last_ticked_at,omitempty"`
}

// StatsSource is implemented by the coordinator (or a thin adapter
// over it) to supply the data this API reports.
type StatsSource interface {
	LedgerStats() LedgerStats
	WorkerStats() []WorkerStats
	DispatcherStats() []DispatcherStats
}

// Server is the admin API's HTTP surface.
type Server struct {
	httpServer *http.Server
	engine     *gin.Engine
	source     StatsSource
	secret     *authtoken.ManagementSecret
	logger     *zap.Logger
}

// NewServer builds a Server listening on addr, gated by a bcrypt hash
// of managementToken held in an authtoken.ManagementSecret.
func NewServer(addr string, source StatsSource, managementToken string, logger *zap.Logger) (*Server, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String(logging.FieldComponent, logging.ComponentAdminAPI))

	secret, err := authtoken.NewManagementSecret(managementToken)
	if err != nil {
		return nil, err
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Logger(), gin.Recovery())

	s := &Server{
		engine: engine,
		source: source,
		secret: secret,
		logger: logger,
	}
	s.routes()

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      engine,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}
	return s, nil
}

// routes wires the read-only stats surface behind the bearer-token auth
// middleware.
func (s *Server) routes() {
	s.engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	authorized := s.engine.Group("/", s.requireManagementToken())
	authorized.GET("/stats/ledger", func(c *gin.Context) {
		c.JSON(http.StatusOK, s.source.LedgerStats())
	})
	authorized.GET("/stats/workers", func(c *gin.Context) {
		c.JSON(http.StatusOK, s.source.WorkerStats())
	})
	authorized.GET("/stats/dispatchers", func(c *gin.Context) {
		c.JSON(http.StatusOK, s.source.DispatcherStats())
	})
}

// requireManagementToken rejects any request whose Authorization header
// does not carry a bearer token matching the configured management
// token hash.
func (s *Server) requireManagementToken() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token := strings.TrimPrefix(header, "Bearer ")
		if token == header || token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}

		if !s.secret.Verify(token) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid management token"})
			return
		}

		c.Next()
	}
}

// ListenAndServe blocks serving the admin API until the server is shut
// down or fails to bind.
func (s *Server) ListenAndServe() error {
	s.logger.Info("admin API listening", zap.String(logging.FieldAddr, s.httpServer.Addr))
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown gracefully stops the admin API's HTTP listener.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
