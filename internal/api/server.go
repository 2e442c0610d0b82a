// Package api exposes the extraction boundary over HTTP: one endpoint that
// accepts either recognized text or a raw file and returns structured results.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/rfmoraes/clinic-exams/internal/analyze"
	"github.com/rfmoraes/clinic-exams/internal/export"
	"github.com/rfmoraes/clinic-exams/internal/journal"
)

type Config struct {
	Addr             string
	MaxFileSizeBytes int64
	RequestTimeout   time.Duration
}

type Server struct {
	cfg      Config
	engine   *gin.Engine
	analyzer analyze.Analyzer
	reader   DocumentReader
	journal  journal.Recorder
	exporter *export.Service
	log      *slog.Logger
}

func NewServer(cfg Config, analyzer analyze.Analyzer, reader DocumentReader, rec journal.Recorder, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if rec == nil {
		rec = journal.Nop{}
	}
	if cfg.MaxFileSizeBytes <= 0 {
		cfg.MaxFileSizeBytes = 15 << 20
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 60 * time.Second
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery(), RequestID(), RequestLogger(logger))
	engine.MaxMultipartMemory = cfg.MaxFileSizeBytes

	s := &Server{
		cfg:      cfg,
		engine:   engine,
		analyzer: analyzer,
		reader:   reader,
		journal:  rec,
		exporter: export.NewService(logger),
		log:      logger,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.engine.GET("/healthz", s.handleHealth)
	s.engine.POST("/extract", s.handleExtract)
	s.engine.POST("/export/xlsx", s.handleExportXLSX)
}

// Handler exposes the router, used directly by tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.log.Info("http server listening", "addr", s.cfg.Addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		s.log.Info("shutting down http server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
