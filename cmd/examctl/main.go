// examctl runs the intake pipeline from the command line: classify and
// process the given files, then save the resulting exam to the store.
package main

import (
	"context"
	"log/slog"
	"mime"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/joho/godotenv"

	"github.com/rfmoraes/clinic-exams/internal/common"
	"github.com/rfmoraes/clinic-exams/internal/exam"
	"github.com/rfmoraes/clinic-exams/internal/extractor"
	"github.com/rfmoraes/clinic-exams/internal/intake"
	"github.com/rfmoraes/clinic-exams/internal/notify"
	"github.com/rfmoraes/clinic-exams/internal/persist"
	"github.com/rfmoraes/clinic-exams/internal/recognize"
	"github.com/rfmoraes/clinic-exams/internal/store"
)

func main() {
	_ = godotenv.Load()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if len(os.Args) < 3 {
		logger.Error("usage", "cmd", "examctl <patient-id> <file>...")
		os.Exit(2)
	}
	patientID := os.Args[1]
	paths := os.Args[2:]

	cfg := common.LoadConfig()
	if cfg.Extract.Endpoint == "" {
		logger.Error("EXTRACT_ENDPOINT is required")
		os.Exit(1)
	}
	if cfg.Store.BaseURL == "" {
		logger.Error("STORE_BASE_URL is required")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	storeClient := store.NewClient(store.Config{
		BaseURL:    cfg.Store.BaseURL,
		APIKey:     cfg.Store.APIKey,
		DatabaseID: cfg.Store.DatabaseID,
		BucketID:   cfg.Store.BucketID,
		Timeout:    cfg.Store.Timeout,
	}, logger)
	records := store.NewRecords(storeClient, logger)
	blobs := store.NewAttachments(storeClient, logger)

	recognizer := recognize.New(recognize.Config{
		Tesseract:        cfg.OCR.Tesseract,
		Lang:             cfg.OCR.Lang,
		TessdataDir:      cfg.OCR.TessdataDir,
		ArtifactCacheDir: cfg.OCR.ArtifactCacheDir,
		PSM:              6,
	}, logger)

	e := &exam.Exam{PatientID: patientID}
	session := intake.NewSession(e, intake.Deps{
		Recognizer: recognizer,
		Extractor:  extractor.NewClient(cfg.Extract.Endpoint, cfg.Extract.Timeout, logger),
		Blobs:      blobs,
		Notifier:   &notify.LogNotifier{Logger: logger},
		Logger:     logger,
		OnProgress: func(percent int, phase recognize.Phase) {
			logger.Info("recognition progress", "percent", percent, "phase", string(phase))
		},
		FetchTimeout: cfg.Store.Timeout,
	})

	var files []intake.IncomingFile
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			logger.Error("cannot read file", "path", p, "error", err)
			os.Exit(1)
		}
		files = append(files, intake.IncomingFile{
			Name:      filepath.Base(p),
			MediaType: mime.TypeByExtension(filepath.Ext(p)),
			Data:      data,
		})
	}

	session.Intake(ctx, files)

	coordinator := persist.NewCoordinator(records, records, blobs, logger)
	out, err := coordinator.Save(ctx, e)
	if err != nil {
		logger.Error("save failed", "error", err)
		os.Exit(1)
	}

	logger.Info("exam saved",
		"exam_id", out.ID,
		"status", string(out.Status),
		"uploaded", len(out.Applied),
		"failed_uploads", len(out.Fails),
		"results", e.Results.Len(),
		"title", e.Title,
	)
	for _, f := range out.Fails {
		logger.Warn("upload failed", "file", f.FileName, "error", f.Err)
	}
}
