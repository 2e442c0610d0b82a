package api

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rfmoraes/clinic-exams/internal/recognize"
)

// DocumentReader recovers raw text from uploaded payloads server-side.
type DocumentReader interface {
	ImageText(ctx context.Context, data []byte) (string, error)
	PDFText(ctx context.Context, data []byte) (string, error)
}

// OCRReader backs DocumentReader with the local recognition engines.
type OCRReader struct {
	Recognizer *recognize.Recognizer
	PDF        recognize.PDFConfig
	ScratchDir string
}

func (r *OCRReader) ImageText(ctx context.Context, data []byte) (string, error) {
	res, err := r.Recognizer.Recognize(ctx, data, nil)
	if err != nil {
		return "", err
	}
	return res.Text, nil
}

// PDFText stages the payload on disk because the underlying tool reads files.
func (r *OCRReader) PDFText(ctx context.Context, data []byte) (string, error) {
	dir := r.ScratchDir
	if dir == "" {
		dir = os.TempDir()
	}
	workdir, err := os.MkdirTemp(dir, "pdftext-*")
	if err != nil {
		return "", fmt.Errorf("create pdf workdir: %w", err)
	}
	defer func() { _ = os.RemoveAll(workdir) }()

	path := filepath.Join(workdir, "input.pdf")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", fmt.Errorf("stage pdf: %w", err)
	}
	return r.Recognizer.PDFText(ctx, r.PDF, path)
}
