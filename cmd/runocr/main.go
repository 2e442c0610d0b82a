// runocr runs the local recognition engines over one file and prints the
// recovered text, useful when tuning OCR settings.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/rfmoraes/clinic-exams/internal/classify"
	"github.com/rfmoraes/clinic-exams/internal/common"
	"github.com/rfmoraes/clinic-exams/internal/recognize"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	slog.SetDefault(logger)

	if len(os.Args) != 2 {
		logger.Error("usage", "cmd", "runocr <file>")
		os.Exit(2)
	}
	path := os.Args[1]

	cfg := common.LoadConfig()
	recognizer := recognize.New(recognize.Config{
		Tesseract:        cfg.OCR.Tesseract,
		Lang:             cfg.OCR.Lang,
		TessdataDir:      cfg.OCR.TessdataDir,
		ArtifactCacheDir: cfg.OCR.ArtifactCacheDir,
		PSM:              6,
	}, logger)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	cls := classify.File(filepath.Base(path), "")
	start := time.Now()

	var text string
	switch {
	case cls.IsImage:
		data, err := os.ReadFile(path)
		if err != nil {
			logger.Error("cannot read file", "path", path, "error", err)
			os.Exit(1)
		}
		res, err := recognizer.Recognize(ctx, data, func(percent int, phase recognize.Phase) {
			logger.Debug("progress", "percent", percent, "phase", string(phase))
		})
		if err != nil {
			logger.Error("recognition failed", "error", err, "kind", string(common.KindOf(err)))
			os.Exit(1)
		}
		text = res.Text
	case cls.IsPDF:
		var err error
		text, err = recognizer.PDFText(ctx, recognize.PDFConfig{Pdftotext: cfg.OCR.Pdftotext}, path)
		if err != nil {
			logger.Error("pdf text extraction failed", "error", err, "kind", string(common.KindOf(err)))
			os.Exit(1)
		}
	default:
		logger.Error("unsupported file type", "path", path)
		os.Exit(2)
	}

	logger.Info("text recovered", "bytes", len(text), "elapsed_ms", time.Since(start).Milliseconds())
	fmt.Println(text)
}
