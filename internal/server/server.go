// Package server runs the HTTP API of the job module.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hashicorp/go-hclog"
	"github.com/mantonx/remuxer/internal/config"
	"github.com/mantonx/remuxer/internal/middleware"
	"github.com/mantonx/remuxer/internal/modules/jobmodule/api"
)

// Server wraps the gin router and its http.Server.
type Server struct {
	router *gin.Engine
	http   *http.Server
	logger hclog.Logger
}

// SetupRouter configures and returns the main router.
func SetupRouter(service api.JobService, logger hclog.Logger) *gin.Engine {
	if !logger.IsDebug() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.CORS())
	r.Use(middleware.RequestLogger(logger))
	r.Use(middleware.ErrorLogger(logger))

	r.GET("/api/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	api.RegisterRoutes(r, api.NewAPIHandler(service, logger))
	return r
}

// New creates a server for cfg.Address.
func New(cfg config.ServerConfig, service api.JobService, logger hclog.Logger) *Server {
	router := SetupRouter(service, logger)
	return &Server{
		router: router,
		http: &http.Server{
			Addr:              cfg.Address,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
		logger: logger.Named("server"),
	}
}

// Router returns the configured router.
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Start serves in the background. Errors other than a clean shutdown are
// delivered on the returned channel.
func (s *Server) Start() <-chan error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "address", s.http.Addr)
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	return errCh
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
