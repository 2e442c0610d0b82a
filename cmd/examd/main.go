// examd serves the extraction boundary: POST /extract with recognized text or
// a raw exam document, structured results back.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/rfmoraes/clinic-exams/internal/analyze"
	"github.com/rfmoraes/clinic-exams/internal/api"
	"github.com/rfmoraes/clinic-exams/internal/common"
	"github.com/rfmoraes/clinic-exams/internal/journal"
	"github.com/rfmoraes/clinic-exams/internal/recognize"
)

func main() {
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg := common.LoadConfig()
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var rec journal.Recorder = journal.Nop{}
	if cfg.Journal.DSN != "" {
		pool, err := journal.Open(ctx, journal.Config{
			DSN:             cfg.Journal.DSN,
			MaxConns:        10,
			MinConns:        1,
			MaxConnLifetime: 30 * time.Minute,
			MaxConnIdleTime: 5 * time.Minute,
			DialTimeout:     3 * time.Second,
		}, logger)
		if err != nil {
			logger.Error("failed to open journal database", "error", err)
			os.Exit(1)
		}
		defer pool.Close()
		if err := journal.HealthCheck(ctx, pool, 5*time.Second); err != nil {
			logger.Error("journal database ping failed", "error", err)
			os.Exit(1)
		}
		j := journal.New(pool, logger)
		if err := j.EnsureSchema(ctx); err != nil {
			logger.Error("journal schema setup failed", "error", err)
			os.Exit(1)
		}
		rec = j
	}

	recognizer := recognize.New(recognize.Config{
		Tesseract:        cfg.OCR.Tesseract,
		Lang:             cfg.OCR.Lang,
		TessdataDir:      cfg.OCR.TessdataDir,
		ArtifactCacheDir: cfg.OCR.ArtifactCacheDir,
		PSM:              6,
	}, logger)

	analyzer := analyze.NewOpenAIClient(analyze.OpenAIConfig{
		APIKey:      cfg.LLM.APIKey,
		BaseURL:     cfg.LLM.BaseURL,
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		Timeout:     cfg.LLM.Timeout,
	}, logger)

	reader := &api.OCRReader{
		Recognizer: recognizer,
		PDF:        recognize.PDFConfig{Pdftotext: cfg.OCR.Pdftotext},
		ScratchDir: cfg.OCR.ArtifactCacheDir,
	}

	server := api.NewServer(api.Config{
		Addr:             cfg.Server.Addr,
		MaxFileSizeBytes: cfg.Server.MaxFileSizeBytes,
	}, analyzer, reader, rec, logger)

	if err := server.Run(ctx); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}
