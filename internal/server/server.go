package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/jaki95/registry-sync/config"
	"github.com/jaki95/registry-sync/internal/progress"
	"github.com/jaki95/registry-sync/internal/storage"
	"github.com/jaki95/registry-sync/internal/syncer"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Deps are the services the HTTP API exposes.
type Deps struct {
	Orchestrator *syncer.Orchestrator
	Importer     *syncer.Importer
	Tracker      *progress.Tracker
	Store        storage.OperatorStore
}

// Server handles HTTP requests for the registry sync service
type Server struct {
	cfg    *config.Config
	router *gin.Engine
	deps   Deps

	// Runs outlive their request but stop when the server shuts down
	runCtx     context.Context
	cancelRuns context.CancelFunc
	background sync.WaitGroup
}

// New creates a new HTTP server instance
func New(cfg *config.Config, deps Deps) *Server {
	router := gin.Default()

	runCtx, cancelRuns := context.WithCancel(context.Background())
	server := &Server{
		cfg:        cfg,
		router:     router,
		deps:       deps,
		runCtx:     runCtx,
		cancelRuns: cancelRuns,
	}

	server.setupRoutes()
	return server
}

// setupRoutes configures the HTTP routes
func (s *Server) setupRoutes() {
	s.router.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:    []string{"Origin", "Content-Type"},
		ExposeHeaders:   []string{"Content-Length"},
		MaxAge:          12 * time.Hour,
	}))

	s.router.GET("/health", s.healthCheck)
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := s.router.Group("/api")
	{
		api.POST("/run-sync", s.runSync)
		api.GET("/sync-progress", s.syncProgress)
		api.POST("/import-batch", s.importBatch)
		api.GET("/operators", s.listOperators)
		api.GET("/operator/:serialNumber", s.getOperator)
		api.DELETE("/operator/:serialNumber", s.deleteOperator)
	}
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves HTTP until ctx is cancelled, then shuts down gracefully. Any
// run still in progress is interrupted and marked failed.
func (s *Server) Start(ctx context.Context, port string) error {
	ln, err := net.Listen("tcp", ":"+port)
	if err != nil {
		return err
	}
	slog.Info("Starting HTTP server", "port", port)
	return s.Serve(ctx, ln)
}

// Serve is Start on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("Shutting down HTTP server")

	// Synchronous sync requests only return once their run stops
	s.cancelRuns()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)

	s.background.Wait()
	return err
}

// healthCheck handles health check requests
func (s *Server) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":      "ok",
		"timestamp":   time.Now(),
		"service":     "registry-sync",
		"syncRunning": s.deps.Tracker.Running(),
	})
}
