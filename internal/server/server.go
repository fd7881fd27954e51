// Package server exposes the automation runner over HTTP: health,
// job triggering, and run history. All routes except the health check
// require a bearer token.
package server

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/finward/opsflow/internal/common"
	"github.com/finward/opsflow/internal/orchestration"
	"github.com/finward/opsflow/internal/store"
)

// Config wires the server's collaborators.
type Config struct {
	Runner  *orchestration.Runner
	Runbook *orchestration.Runbook
	Store   *store.Store
	Auth    VerifyConfig
	// JobTimeout bounds one triggered job run, zero means an hour.
	JobTimeout time.Duration
}

// Server is the HTTP facade over the runner and the run history.
type Server struct {
	engine     *gin.Engine
	runner     *orchestration.Runner
	runbook    *orchestration.Runbook
	store      *store.Store
	jobTimeout time.Duration
	logger     *common.Logger
}

// New builds the server and registers its routes.
func New(cfg Config) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	s := &Server{
		engine:     engine,
		runner:     cfg.Runner,
		runbook:    cfg.Runbook,
		store:      cfg.Store,
		jobTimeout: cfg.JobTimeout,
		logger:     common.GetLogger().WithComponent("server"),
	}
	if s.jobTimeout <= 0 {
		s.jobTimeout = time.Hour
	}

	engine.GET("/healthz", s.health)

	api := engine.Group("/", jwtMiddleware(cfg.Auth))
	api.POST("/jobs/:name/run", s.runJob)
	api.GET("/runs", s.listRuns)
	api.GET("/runs/:id", s.getRun)

	return s
}

// Handler returns the underlying http.Handler.
func (s *Server) Handler() http.Handler { return s.engine }

// Serve blocks on the listener until the context is cancelled.
func (s *Server) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	s.logger.Info("server listening", "addr", addr)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// runJob triggers one job asynchronously. The response only confirms
// the job was accepted; progress lands in the run history.
func (s *Server) runJob(c *gin.Context) {
	name := c.Param("name")
	found := false
	for _, job := range s.runbook.Jobs {
		if job.Name == name {
			found = true
			break
		}
	}
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown job: " + name})
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.jobTimeout)
		defer cancel()
		if _, err := s.runner.RunJob(ctx, s.runbook, name); err != nil {
			s.logger.WithJob(name).Error("triggered run failed", "error", err)
		}
	}()

	c.JSON(http.StatusAccepted, gin.H{"job": name, "status": "accepted"})
}

func (s *Server) listRuns(c *gin.Context) {
	if s.store == nil {
		c.JSON(http.StatusOK, gin.H{"runs": []any{}})
		return
	}
	runs, err := s.store.ListRuns(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs})
}

func (s *Server) getRun(c *gin.Context) {
	if s.store == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "run history not configured"})
		return
	}
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "run id must be numeric"})
		return
	}
	run, err := s.store.GetRun(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if run == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
		return
	}
	c.JSON(http.StatusOK, run)
}
