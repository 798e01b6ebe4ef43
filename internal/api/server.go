/**
 * HTTP surface for inkcompare
 *
 * POST /compare runs a comparison inline or enqueues it, GET /reports/:id
 * serves rendered reports, GET /comparisons/:id reads the history store.
 */

package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/adverant/nexus/inkcompare/internal/logging"
	"github.com/adverant/nexus/inkcompare/internal/processor"
	"github.com/adverant/nexus/inkcompare/internal/queue"
	"github.com/adverant/nexus/inkcompare/internal/storage"
)

// maxMultipartMemory is how much of an upload gin keeps in memory before
// spooling to disk
const maxMultipartMemory = 32 << 20

// ReportStore resolves report ids to files
type ReportStore interface {
	Lookup(id string) (string, error)
}

// HistoryReader reads stored comparisons
type HistoryReader interface {
	Get(ctx context.Context, id string) (*storage.HistoryRecord, error)
}

// Enqueuer submits comparisons to the worker queue
type Enqueuer interface {
	Enqueue(ctx context.Context, payload *queue.ComparePayload) (string, error)
}

// ServerConfig holds the collaborators of the HTTP server. History and
// Queue are optional.
type ServerConfig struct {
	Processor   processor.ComparisonProcessorInterface
	Reports     ReportStore
	History     HistoryReader
	Queue       Enqueuer
	MaxFileSize int64
}

// Server is the gin HTTP server
type Server struct {
	cfg    ServerConfig
	logger *logging.Logger
}

// NewServer creates an HTTP server
func NewServer(cfg *ServerConfig) (*Server, error) {
	if cfg.Processor == nil {
		return nil, fmt.Errorf("processor is required")
	}
	if cfg.Reports == nil {
		return nil, fmt.Errorf("report store is required")
	}
	return &Server{cfg: *cfg, logger: logging.NewLogger("api")}, nil
}

// Router builds the gin engine with every route registered
func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.MaxMultipartMemory = maxMultipartMemory
	router.Use(gin.Recovery(), s.requestLogger())

	router.GET("/healthcheck", s.healthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	router.POST("/compare", s.compare)
	router.GET("/reports/:id", s.getReport)
	router.GET("/comparisons/:id", s.getComparison)

	return router
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server failed: %w", err)
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down HTTP server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}
	return nil
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("Request handled",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start))
	}
}

func (s *Server) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "inkcompare",
		"history": s.cfg.History != nil,
		"queue":   s.cfg.Queue != nil,
	})
}
