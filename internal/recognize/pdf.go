package recognize

import (
	"context"
	"fmt"
	"unicode/utf8"

	"github.com/rfmoraes/clinic-exams/internal/common"
)

// PDFConfig points at the pdftotext binary.
type PDFConfig struct {
	Pdftotext string // if empty -> "pdftotext"
}

// PDFText extracts the embedded text layer of a PDF. Scanned PDFs with no
// text layer resolve as InsufficientText so the caller can degrade to a
// warning instead of shipping an empty payload downstream.
func (r *Recognizer) PDFText(ctx context.Context, cfg PDFConfig, path string) (string, error) {
	bin := cfg.Pdftotext
	if bin == "" {
		bin = "pdftotext"
	}

	// -layout keeps tabular alignment, which lab reports rely on.
	out, errb, err := r.runner.Run(ctx, bin, "-layout", path, "-")
	if err != nil {
		if tErr := common.AsTimeout(ctx.Err(), "pdf text extraction timed out"); tErr != nil {
			return "", tErr
		}
		return "", fmt.Errorf("pdftotext: %w (%s)", err, truncate(string(errb), 512))
	}

	text := Normalize(string(out))
	if utf8.RuneCountInString(text) < MinUsableTextLen {
		return "", common.Failuref(common.KindInsufficientText,
			"pdf has no usable text layer (%d characters)", utf8.RuneCountInString(text))
	}
	return text, nil
}
